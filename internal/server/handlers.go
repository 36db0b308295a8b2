package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"

	"github.com/ironsheep/roster-ocr/internal/imaging"
	"github.com/ironsheep/roster-ocr/internal/ocr"
	"github.com/ironsheep/roster-ocr/internal/pipeline"
	"github.com/ironsheep/roster-ocr/internal/reconcile"
	"github.com/ironsheep/roster-ocr/internal/review"
	"github.com/ironsheep/roster-ocr/internal/roster"
)

// ToolCallParams represents the parameters for a tools/call MCP request.
type ToolCallParams struct {
	// Name is the tool to invoke (e.g., "roster_crop", "roster_process_batch").
	Name string `json:"name"`

	// Arguments contains the tool-specific parameters as JSON.
	Arguments json.RawMessage `json:"arguments"`
}

// handleToolsCall processes a tools/call request and executes the specified tool.
//
// The response wraps the tool result in MCP's content format:
//
//	{
//	  "content": [{"type": "text", "text": "<JSON result>"}]
//	}
//
// Tool execution errors return a JSON-RPC error response with code -32000.
func (s *Server) handleToolsCall(ctx context.Context, req *MCPRequest) *MCPResponse {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.errorResponse(req.ID, -32602, "Invalid params", err.Error())
	}
	if len(params.Arguments) == 0 {
		params.Arguments = json.RawMessage("{}")
	}

	result, err := s.executeTool(ctx, params.Name, params.Arguments)
	if err != nil {
		s.log.WithField("tool", params.Name).WithError(err).Debug("Tool failed")
		return s.errorResponse(req.ID, -32000, "Tool execution failed", err.Error())
	}

	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"content": []map[string]interface{}{
				{
					"type": "text",
					"text": mustMarshalJSON(result),
				},
			},
		},
	}
}

// executeTool dispatches tool execution to the appropriate handler function.
//
// Each tool handler:
//  1. Unmarshals arguments from JSON
//  2. Applies default values for optional parameters
//  3. Resolves the crop region from the arguments or the settings
//  4. Calls the appropriate imaging/ocr/pipeline/roster function
//  5. Returns the result or error
func (s *Server) executeTool(ctx context.Context, name string, args json.RawMessage) (interface{}, error) {
	switch name {
	// Calibration and cropping
	case "roster_crop_preview":
		return s.handleCropPreview(args)
	case "roster_suggest_region":
		return s.handleSuggestRegion(args)
	case "roster_crop":
		return s.handleCrop(args)
	case "roster_batch_crop":
		return s.handleBatchCrop(args)
	case "roster_preprocess":
		return s.handlePreprocess(args)
	case "roster_save_preset":
		return s.handleSavePreset(args)

	// Recognition
	case "roster_ocr":
		return s.handleOCR(ctx, args)
	case "roster_compare":
		return s.handleCompare(args)
	case "roster_parse":
		return s.handleParse(args)
	case "roster_ocr_info":
		return s.handleOCRInfo()

	// Batches and review
	case "roster_open_project":
		return s.handleOpenProject(args)
	case "roster_process_batch":
		return s.handleProcessBatch(ctx, args)
	case "roster_batch_status":
		return s.handleBatchStatus(args)
	case "roster_batch_cancel":
		return s.handleBatchCancel(args)
	case "roster_pending_reviews":
		return s.handlePendingReviews()
	case "roster_review_resolve":
		return s.handleReviewResolve(args)

	// Records
	case "roster_records":
		return s.handleRecords()
	case "roster_update_record":
		return s.handleUpdateRecord(args)
	case "roster_add_column":
		return s.handleAddColumn(args)
	case "roster_export_csv":
		return s.handleExportCSV(args)
	case "roster_import_csv":
		return s.handleImportCSV(args)

	default:
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
}

// errorResponse creates a JSON-RPC error response with the given details.
func (s *Server) errorResponse(id interface{}, code int, message, data string) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &MCPError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
}

// mustMarshalJSON converts a value to pretty-printed JSON string.
// Panics are suppressed; on marshal failure, returns an empty string.
func mustMarshalJSON(v interface{}) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

// regionArgs selects a crop region: an explicit region wins, otherwise the
// named preset, otherwise the default preset from settings.
type regionArgs struct {
	Region *imaging.CropRegion `json:"region,omitempty"`
	Preset string              `json:"preset,omitempty"`
}

func (s *Server) resolveRegion(a regionArgs) (imaging.CropRegion, error) {
	if a.Region != nil {
		if err := a.Region.Validate(); err != nil {
			return imaging.CropRegion{}, err
		}
		return *a.Region, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.settings.Preset(a.Preset)
	if !ok {
		if a.Preset != "" {
			return imaging.CropRegion{}, fmt.Errorf("unknown crop preset %q", a.Preset)
		}
		return imaging.CropRegion{}, errors.New("no crop region: pass region or preset, or configure a default crop preset")
	}
	return p.Region, nil
}

func (s *Server) loadCropped(path string, a regionArgs) (image.Image, error) {
	region, err := s.resolveRegion(a)
	if err != nil {
		return nil, err
	}
	img, err := s.cache.Load(path)
	if err != nil {
		return nil, err
	}
	return imaging.Crop(img, region)
}

func requirePath(path string) error {
	if path == "" {
		return errors.New("path is required")
	}
	return nil
}

// === Calibration and Cropping Handlers ===

type cropPreviewArgs struct {
	Path string `json:"path"`
	regionArgs
	OutlineColor  string   `json:"outline_color"`
	TintOpacity   *float64 `json:"tint_opacity"`
	GridDivisions *int     `json:"grid_divisions"`
}

func (s *Server) handleCropPreview(args json.RawMessage) (interface{}, error) {
	var a cropPreviewArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if err := requirePath(a.Path); err != nil {
		return nil, err
	}

	opts := imaging.DefaultPreviewOptions()
	if a.OutlineColor != "" {
		opts.OutlineColor = a.OutlineColor
	}
	if a.TintOpacity != nil {
		opts.TintOpacity = *a.TintOpacity
	}
	if a.GridDivisions != nil {
		opts.GridDivisions = *a.GridDivisions
	}

	region, err := s.resolveRegion(a.regionArgs)
	if err != nil {
		return nil, err
	}
	img, err := s.cache.Load(a.Path)
	if err != nil {
		return nil, err
	}
	return imaging.RenderRegionPreview(img, region, opts)
}

type suggestRegionArgs struct {
	Path       string   `json:"path"`
	MinDensity *float64 `json:"min_density"`
	Padding    *int     `json:"padding"`
}

func (s *Server) handleSuggestRegion(args json.RawMessage) (interface{}, error) {
	var a suggestRegionArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if err := requirePath(a.Path); err != nil {
		return nil, err
	}

	opts := imaging.DefaultSuggestOptions()
	if a.MinDensity != nil {
		opts.MinDensity = *a.MinDensity
	}
	if a.Padding != nil {
		opts.Padding = *a.Padding
	}

	img, err := s.cache.Load(a.Path)
	if err != nil {
		return nil, err
	}
	return imaging.SuggestRegion(img, opts)
}

type cropArgs struct {
	Path string `json:"path"`
	regionArgs
}

func (s *Server) handleCrop(args json.RawMessage) (interface{}, error) {
	var a cropArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if err := requirePath(a.Path); err != nil {
		return nil, err
	}
	cropped, err := s.loadCropped(a.Path, a.regionArgs)
	if err != nil {
		return nil, err
	}
	return imaging.NewCropResult(cropped)
}

type batchCropArgs struct {
	Paths     []string `json:"paths"`
	OutputDir string   `json:"output_dir"`
	regionArgs
}

func (s *Server) handleBatchCrop(args json.RawMessage) (interface{}, error) {
	var a batchCropArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	region, err := s.resolveRegion(a.regionArgs)
	if err != nil {
		return nil, err
	}

	proj := s.currentProject()
	if len(a.Paths) == 0 {
		if proj == nil {
			return nil, errors.New("paths is required when no project is open")
		}
		if a.Paths, err = proj.Paths.InputImages(); err != nil {
			return nil, err
		}
	}
	if a.OutputDir == "" {
		if proj == nil {
			return nil, errors.New("output_dir is required when no project is open")
		}
		a.OutputDir = proj.Paths.CroppedDir()
	}

	written, err := imaging.BatchCrop(a.Paths, region, a.OutputDir)
	result := map[string]interface{}{
		"output_dir": a.OutputDir,
		"count":      len(written),
		"written":    written,
	}
	if err != nil {
		result["error"] = err.Error()
		result["kind"] = pipeline.Classify(err)
	}
	return result, nil
}

type preprocessArgs struct {
	Path string `json:"path"`
	regionArgs
	Crop *bool `json:"crop"`
}

type variantResult struct {
	Index int                 `json:"index"`
	Spec  imaging.VariantSpec `json:"spec"`
	*imaging.CropResult
}

func (s *Server) handlePreprocess(args json.RawMessage) (interface{}, error) {
	var a preprocessArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if err := requirePath(a.Path); err != nil {
		return nil, err
	}

	var (
		img image.Image
		err error
	)
	if a.Crop == nil || *a.Crop {
		img, err = s.loadCropped(a.Path, a.regionArgs)
	} else {
		img, err = s.cache.Load(a.Path)
	}
	if err != nil {
		return nil, err
	}

	variants, err := imaging.Variants(img)
	if err != nil {
		return nil, err
	}
	out := make([]variantResult, len(variants))
	for i, v := range variants {
		encoded, err := imaging.NewCropResult(v)
		if err != nil {
			return nil, err
		}
		out[i] = variantResult{Index: i, Spec: imaging.VariantSpecs[i], CropResult: encoded}
	}
	return map[string]interface{}{"variants": out}, nil
}

type savePresetArgs struct {
	Name        string             `json:"name"`
	Region      imaging.CropRegion `json:"region"`
	MakeDefault bool               `json:"make_default"`
}

func (s *Server) handleSavePreset(args json.RawMessage) (interface{}, error) {
	var a savePresetArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.settings.SetPreset(imaging.CropPreset{Name: a.Name, Region: a.Region}, a.MakeDefault); err != nil {
		return nil, err
	}
	saved := false
	if s.settingsPath != "" {
		if err := s.settings.Save(s.settingsPath); err != nil {
			return nil, err
		}
		saved = true
	}
	return map[string]interface{}{
		"presets": s.settings.CropPresets,
		"default": s.settings.CropPreset,
		"saved":   saved,
	}, nil
}

// === Recognition Handlers ===

type ocrArgs struct {
	Path string `json:"path"`
	regionArgs
	Threshold *float64 `json:"threshold"`
}

type engineReading struct {
	Engine  string `json:"engine"`
	Variant string `json:"variant"`
	Text    string `json:"text"`
}

func (s *Server) engines() (ocr.Engine, ocr.Engine, error) {
	if s.primary == nil || s.secondary == nil {
		return nil, nil, errors.New("OCR engines are not configured")
	}
	return s.primary, s.secondary, nil
}

func (s *Server) handleOCR(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a ocrArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if err := requirePath(a.Path); err != nil {
		return nil, err
	}
	primary, secondary, err := s.engines()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	threshold := s.settings.SimilarityThreshold
	pv, sv := s.settings.PrimaryVariant, s.settings.SecondaryVariant
	s.mu.Unlock()
	if a.Threshold != nil {
		threshold = *a.Threshold
	}

	cropped, err := s.loadCropped(a.Path, a.regionArgs)
	if err != nil {
		return nil, err
	}
	variants, err := imaging.Variants(cropped)
	if err != nil {
		return nil, err
	}

	readings := make([]engineReading, 0, 2)
	for _, r := range []struct {
		engine  ocr.Engine
		variant int
	}{{primary, pv}, {secondary, sv}} {
		text, err := r.engine.ReadText(ctx, variants[r.variant])
		if err != nil {
			return nil, err
		}
		readings = append(readings, engineReading{
			Engine:  r.engine.Name(),
			Variant: imaging.VariantSpecs[r.variant].Name,
			Text:    text,
		})
	}

	return map[string]interface{}{
		"readings":   readings,
		"comparison": reconcile.Compare(readings[0].Text, readings[1].Text, threshold),
	}, nil
}

type compareArgs struct {
	PrimaryText   string   `json:"primary_text"`
	SecondaryText string   `json:"secondary_text"`
	Threshold     *float64 `json:"threshold"`
}

func (s *Server) handleCompare(args json.RawMessage) (interface{}, error) {
	var a compareArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	s.mu.Lock()
	threshold := s.settings.SimilarityThreshold
	s.mu.Unlock()
	if a.Threshold != nil {
		threshold = *a.Threshold
	}
	if threshold < 0 || threshold > 100 {
		return nil, fmt.Errorf("threshold must be between 0 and 100, got %v", threshold)
	}
	return reconcile.Compare(a.PrimaryText, a.SecondaryText, threshold), nil
}

type parseArgs struct {
	Text  string `json:"text"`
	Index int    `json:"index"`
}

func (s *Server) handleParse(args json.RawMessage) (interface{}, error) {
	var a parseArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	rec, warning := roster.Parse(a.Text, a.Index)
	result := map[string]interface{}{"record": rec}
	if warning != nil {
		result["warning"] = warning.Error()
	}
	return result, nil
}

func (s *Server) handleOCRInfo() (interface{}, error) {
	var engines []ocr.EngineInfo
	if s.primary != nil && s.secondary != nil {
		engines = ocr.Info(s.primary, s.secondary)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return map[string]interface{}{
		"engines":              engines,
		"language":             s.settings.OCRLanguage,
		"similarity_threshold": s.settings.SimilarityThreshold,
		"primary_variant":      imaging.VariantSpecs[s.settings.PrimaryVariant].Name,
		"secondary_variant":    imaging.VariantSpecs[s.settings.SecondaryVariant].Name,
		"ocr_timeout":          s.settings.OCRTimeout.String(),
	}, nil
}

// === Batch and Review Handlers ===

func (s *Server) currentProject() *pipeline.Project {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.project
}

type openProjectArgs struct {
	Root string `json:"root"`
}

func (s *Server) handleOpenProject(args json.RawMessage) (interface{}, error) {
	var a openProjectArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if a.Root == "" {
		return nil, errors.New("root is required")
	}
	if s.tracker.Running() != "" {
		return nil, pipeline.ErrBatchRunning
	}

	proj, err := pipeline.OpenProject(a.Root)
	if err != nil {
		return nil, err
	}
	inputs, err := proj.Paths.InputImages()
	if err != nil {
		proj.Close()
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.project.Close(); err != nil {
		s.log.WithError(err).Warn("Failed to close previous project log")
	}
	s.project = proj
	s.settings.LastOpenedProject = a.Root
	if s.settingsPath != "" {
		if err := s.settings.Save(s.settingsPath); err != nil {
			s.log.WithError(err).Warn("Failed to save settings")
		}
	}
	s.log.WithField("root", a.Root).Info("Project opened")

	return map[string]interface{}{
		"root":   a.Root,
		"inputs": len(inputs),
	}, nil
}

type processBatchArgs struct {
	Paths []string `json:"paths"`
	regionArgs
	Concurrency int      `json:"concurrency"`
	Threshold   *float64 `json:"threshold"`
}

func (s *Server) handleProcessBatch(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a processBatchArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	primary, secondary, err := s.engines()
	if err != nil {
		return nil, err
	}
	region, err := s.resolveRegion(a.regionArgs)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	opts := pipeline.Options{
		Region:           region,
		Threshold:        s.settings.SimilarityThreshold,
		Concurrency:      s.settings.Concurrency,
		PrimaryVariant:   s.settings.PrimaryVariant,
		SecondaryVariant: s.settings.SecondaryVariant,
		Project:          s.project,
	}
	s.mu.Unlock()
	if a.Concurrency > 0 {
		opts.Concurrency = a.Concurrency
	}
	if a.Threshold != nil {
		opts.Threshold = *a.Threshold
	}

	if len(a.Paths) == 0 {
		if opts.Project == nil {
			return nil, errors.New("paths is required when no project is open")
		}
		if a.Paths, err = opts.Project.Paths.InputImages(); err != nil {
			return nil, err
		}
	}
	if len(a.Paths) == 0 {
		return nil, errors.New("no images to process")
	}

	p, err := pipeline.New(primary, secondary, s.queue, s.store, opts, s.log)
	if err != nil {
		return nil, err
	}
	id, err := s.tracker.Start(ctx, p, a.Paths)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"batch_id": id,
		"total":    len(a.Paths),
	}, nil
}

type batchIDArgs struct {
	BatchID string `json:"batch_id"`
}

func (s *Server) handleBatchStatus(args json.RawMessage) (interface{}, error) {
	var a batchIDArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if a.BatchID == "" {
		return map[string]interface{}{
			"running": s.tracker.Running(),
			"batches": s.tracker.List(),
		}, nil
	}
	return s.tracker.Status(a.BatchID)
}

func (s *Server) handleBatchCancel(args json.RawMessage) (interface{}, error) {
	var a batchIDArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if err := s.tracker.Cancel(a.BatchID); err != nil {
		return nil, err
	}
	return map[string]interface{}{"batch_id": a.BatchID, "cancelled": true}, nil
}

func (s *Server) handlePendingReviews() (interface{}, error) {
	return map[string]interface{}{"pending": s.queue.Pending()}, nil
}

type reviewResolveArgs struct {
	ID     string        `json:"id"`
	Action review.Action `json:"action"`
	Text   string        `json:"text"`
}

func (s *Server) handleReviewResolve(args json.RawMessage) (interface{}, error) {
	var a reviewResolveArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if err := s.queue.Resolve(a.ID, review.Decision{Action: a.Action, Text: a.Text}); err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"id":        a.ID,
		"action":    a.Action,
		"remaining": s.queue.Len(),
	}, nil
}

// === Record Handlers ===

func (s *Server) handleRecords() (interface{}, error) {
	return map[string]interface{}{
		"columns": s.store.Columns(),
		"records": s.store.Records(),
		"count":   s.store.Len(),
	}, nil
}

type updateRecordArgs struct {
	Record roster.Record `json:"record"`
}

func (s *Server) handleUpdateRecord(args json.RawMessage) (interface{}, error) {
	var a updateRecordArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if err := s.store.Replace(a.Record); err != nil {
		return nil, err
	}
	rec, _ := s.store.Get(a.Record.Index)
	return map[string]interface{}{"record": rec}, nil
}

type addColumnArgs struct {
	Name string `json:"name"`
}

func (s *Server) handleAddColumn(args json.RawMessage) (interface{}, error) {
	var a addColumnArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if err := s.store.AddColumn(a.Name); err != nil {
		return nil, err
	}
	return map[string]interface{}{"columns": s.store.Columns()}, nil
}

type csvPathArgs struct {
	Path    string `json:"path"`
	Replace bool   `json:"replace"`
}

// exportPath picks the export target: the argument, the CSV the roster was
// opened from, the open project's output.csv, then the settings default.
func (s *Server) exportPath(path string) (string, error) {
	if path != "" {
		return path, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.csvPath != "":
		return s.csvPath, nil
	case s.project != nil:
		return s.project.Paths.OutputCSV(), nil
	case s.settings.DefaultCSVPath != "":
		return s.settings.DefaultCSVPath, nil
	}
	return "", errors.New("path is required: no CSV file, project or default_csv_path is set")
}

func (s *Server) handleExportCSV(args json.RawMessage) (interface{}, error) {
	var a csvPathArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	path, err := s.exportPath(a.Path)
	if err != nil {
		return nil, err
	}
	if err := s.store.SaveFile(path); err != nil {
		return nil, err
	}
	s.log.WithField("path", path).WithField("records", s.store.Len()).Info("Roster exported")
	return map[string]interface{}{
		"path":    path,
		"records": s.store.Len(),
		"columns": s.store.Columns(),
	}, nil
}

func (s *Server) handleImportCSV(args json.RawMessage) (interface{}, error) {
	var a csvPathArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if err := requirePath(a.Path); err != nil {
		return nil, err
	}
	if s.tracker.Running() != "" {
		return nil, pipeline.ErrBatchRunning
	}

	loaded, err := roster.OpenFile(a.Path)
	if err != nil {
		return nil, err
	}
	table := &roster.Table{
		Extras:  loaded.Columns()[len(roster.FixedColumns):],
		Records: loaded.Records(),
	}

	if a.Replace {
		s.store.Reset()
	}
	n, err := s.store.Load(table)
	if err != nil {
		return nil, fmt.Errorf("import of %s rejected, roster unchanged: %w", a.Path, err)
	}

	s.mu.Lock()
	s.csvPath = a.Path
	s.mu.Unlock()

	return map[string]interface{}{
		"path":     a.Path,
		"imported": n,
		"records":  s.store.Len(),
		"columns":  s.store.Columns(),
	}, nil
}
