package server

// Tool represents an MCP tool definition
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

func objectSchema(props map[string]interface{}, required ...string) map[string]interface{} {
	schema := map[string]interface{}{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func prop(typ, description string) map[string]interface{} {
	return map[string]interface{}{"type": typ, "description": description}
}

func pathProp() map[string]interface{} {
	return prop("string", "Absolute path to the screenshot")
}

func regionProp() map[string]interface{} {
	return map[string]interface{}{
		"type":        "object",
		"description": "Crop region as fractions (0-1) of image width and height. Overrides preset.",
		"properties": map[string]interface{}{
			"x":      prop("number", "Left edge fraction"),
			"y":      prop("number", "Top edge fraction"),
			"width":  prop("number", "Width fraction (> 0)"),
			"height": prop("number", "Height fraction (> 0)"),
		},
		"required": []string{"x", "y", "width", "height"},
	}
}

func presetProp() map[string]interface{} {
	return prop("string", "Name of a saved crop preset. Defaults to the configured crop_preset.")
}

// GetToolDefinitions returns all available tools
func GetToolDefinitions() []Tool {
	return []Tool{
		// Calibration and cropping
		{
			Name:        "roster_crop_preview",
			Description: "Draw a crop region over a screenshot with a fractional grid so the calibration can be checked before a batch. Returns a base64 PNG.",
			InputSchema: objectSchema(map[string]interface{}{
				"path":           pathProp(),
				"region":         regionProp(),
				"preset":         presetProp(),
				"outline_color":  prop("string", "Outline colour as #RRGGBB (default #FF3B30)"),
				"tint_opacity":   prop("number", "Region tint opacity 0-1 (default 0.25)"),
				"grid_divisions": prop("integer", "Grid cells per axis, 0 for none (default 10)"),
			}, "path"),
		},
		{
			Name:        "roster_suggest_region",
			Description: "Find the largest text-dense area of a sample screenshot and propose it as a crop region. Check it with roster_crop_preview, then keep it with roster_save_preset.",
			InputSchema: objectSchema(map[string]interface{}{
				"path":        pathProp(),
				"min_density": prop("number", "Edge density a window needs to count as text (default 0.03)"),
				"padding":     prop("integer", "Pixels added around the text area (default 4)"),
			}, "path"),
		},
		{
			Name:        "roster_crop",
			Description: "Crop the profile card out of a screenshot and return it as base64 PNG.",
			InputSchema: objectSchema(map[string]interface{}{
				"path":   pathProp(),
				"region": regionProp(),
				"preset": presetProp(),
			}, "path"),
		},
		{
			Name:        "roster_batch_crop",
			Description: "Crop many screenshots with one region and write cropped_001.png, cropped_002.png, ... to a directory. Defaults to the open project's input/ and cropped/ folders.",
			InputSchema: objectSchema(map[string]interface{}{
				"paths": map[string]interface{}{
					"type":        "array",
					"items":       map[string]interface{}{"type": "string"},
					"description": "Screenshots in order",
				},
				"output_dir": prop("string", "Directory for the cropped images"),
				"region":     regionProp(),
				"preset":     presetProp(),
			}),
		},
		{
			Name:        "roster_preprocess",
			Description: "Return the three preprocessing variants (sharpened, binarized, inverted) of a cropped screenshot as base64 PNGs.",
			InputSchema: objectSchema(map[string]interface{}{
				"path":   pathProp(),
				"region": regionProp(),
				"preset": presetProp(),
				"crop":   prop("boolean", "Crop before preprocessing (default true)"),
			}, "path"),
		},
		{
			Name:        "roster_save_preset",
			Description: "Save a named crop region to settings, optionally as the default.",
			InputSchema: objectSchema(map[string]interface{}{
				"name":         prop("string", "Preset name"),
				"region":       regionProp(),
				"make_default": prop("boolean", "Use this preset when none is given"),
			}, "name", "region"),
		},

		// Recognition
		{
			Name:        "roster_ocr",
			Description: "Crop and preprocess a screenshot, read it with both OCR engines and compare the readings.",
			InputSchema: objectSchema(map[string]interface{}{
				"path":      pathProp(),
				"region":    regionProp(),
				"preset":    presetProp(),
				"threshold": prop("number", "Similarity threshold 0-100 (default from settings)"),
			}, "path"),
		},
		{
			Name:        "roster_compare",
			Description: "Score two OCR readings (0-100) and auto-accept the primary one when the score reaches the threshold.",
			InputSchema: objectSchema(map[string]interface{}{
				"primary_text":   prop("string", "Primary engine reading"),
				"secondary_text": prop("string", "Secondary engine reading"),
				"threshold":      prop("number", "Similarity threshold 0-100 (default from settings)"),
			}, "primary_text", "secondary_text"),
		},
		{
			Name:        "roster_parse",
			Description: "Extract the roster fields (nickname, role, faction, ...) from OCR text.",
			InputSchema: objectSchema(map[string]interface{}{
				"text":  prop("string", "OCR text"),
				"index": prop("integer", "Record index to assign"),
			}, "text"),
		},
		{
			Name:        "roster_ocr_info",
			Description: "Report OCR engine availability, versions and recognition settings.",
			InputSchema: objectSchema(map[string]interface{}{}),
		},

		// Batches and review
		{
			Name:        "roster_open_project",
			Description: "Open (or create) a project folder with input/, cropped/ and ocr_raw/. Batches then default to its screenshots and keep their artifacts there.",
			InputSchema: objectSchema(map[string]interface{}{
				"root": prop("string", "Project folder"),
			}, "root"),
		},
		{
			Name:        "roster_process_batch",
			Description: "Start processing screenshots into roster records in the background. Returns a batch id; readings that disagree wait in roster_pending_reviews.",
			InputSchema: objectSchema(map[string]interface{}{
				"paths": map[string]interface{}{
					"type":        "array",
					"items":       map[string]interface{}{"type": "string"},
					"description": "Screenshots in roster order (default: the open project's input/)",
				},
				"region":      regionProp(),
				"preset":      presetProp(),
				"concurrency": prop("integer", "Images processed at once (default from settings)"),
				"threshold":   prop("number", "Similarity threshold 0-100 (default from settings)"),
			}),
		},
		{
			Name:        "roster_batch_status",
			Description: "Get progress and per-image results of a batch, or list all batches when batch_id is omitted.",
			InputSchema: objectSchema(map[string]interface{}{
				"batch_id": prop("string", "Batch id from roster_process_batch"),
			}),
		},
		{
			Name:        "roster_batch_cancel",
			Description: "Stop a running batch. Records already appended are kept; pending reviews are cancelled.",
			InputSchema: objectSchema(map[string]interface{}{
				"batch_id": prop("string", "Batch id from roster_process_batch"),
			}, "batch_id"),
		},
		{
			Name:        "roster_pending_reviews",
			Description: "List readings waiting for a review decision, oldest first, with both texts and the similarity score.",
			InputSchema: objectSchema(map[string]interface{}{}),
		},
		{
			Name:        "roster_review_resolve",
			Description: "Decide a pending review: accept the primary or secondary reading, supply edited text, or cancel (no record).",
			InputSchema: objectSchema(map[string]interface{}{
				"id": prop("string", "Review id from roster_pending_reviews"),
				"action": map[string]interface{}{
					"type":        "string",
					"enum":        []string{"primary", "secondary", "manual", "cancel"},
					"description": "Decision",
				},
				"text": prop("string", "Edited text for the manual action"),
			}, "id", "action"),
		},

		// Records
		{
			Name:        "roster_records",
			Description: "Return the roster: column order and every record.",
			InputSchema: objectSchema(map[string]interface{}{}),
		},
		{
			Name:        "roster_update_record",
			Description: "Replace the record with the same index by the given record.",
			InputSchema: objectSchema(map[string]interface{}{
				"record": map[string]interface{}{
					"type":        "object",
					"description": "Full record: index, nickname, role, faction, days_since_join, weekly_activity, martial_realm, exploration_skill, tech_mastery, extras",
				},
			}, "record"),
		},
		{
			Name:        "roster_add_column",
			Description: "Add a custom column shown (empty) for every record.",
			InputSchema: objectSchema(map[string]interface{}{
				"name": prop("string", "Column name; fixed field names are rejected"),
			}, "name"),
		},
		{
			Name:        "roster_export_csv",
			Description: "Write the roster as CSV. Defaults to the opened CSV, then the project's output.csv, then default_csv_path.",
			InputSchema: objectSchema(map[string]interface{}{
				"path": prop("string", "Target CSV file"),
			}),
		},
		{
			Name:        "roster_import_csv",
			Description: "Load records from an exported CSV. Unknown columns become extras.",
			InputSchema: objectSchema(map[string]interface{}{
				"path":    prop("string", "CSV file"),
				"replace": prop("boolean", "Clear the roster first (default false: append)"),
			}, "path"),
		},
	}
}

// handleToolsList returns the list of available tools
func (s *Server) handleToolsList(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"tools": GetToolDefinitions(),
		},
	}
}
