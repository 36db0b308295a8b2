package server

import (
	"testing"
)

func TestGetToolDefinitions(t *testing.T) {
	tools := GetToolDefinitions()

	expectedTools := []string{
		"roster_crop_preview",
		"roster_suggest_region",
		"roster_crop",
		"roster_batch_crop",
		"roster_preprocess",
		"roster_save_preset",
		"roster_ocr",
		"roster_compare",
		"roster_parse",
		"roster_ocr_info",
		"roster_open_project",
		"roster_process_batch",
		"roster_batch_status",
		"roster_batch_cancel",
		"roster_pending_reviews",
		"roster_review_resolve",
		"roster_records",
		"roster_update_record",
		"roster_add_column",
		"roster_export_csv",
		"roster_import_csv",
	}

	toolMap := make(map[string]Tool)
	for _, tool := range tools {
		if _, dup := toolMap[tool.Name]; dup {
			t.Errorf("tool %s defined twice", tool.Name)
		}
		toolMap[tool.Name] = tool
	}

	for _, name := range expectedTools {
		if _, ok := toolMap[name]; !ok {
			t.Errorf("Expected tool %s not found", name)
		}
	}
	if len(tools) != len(expectedTools) {
		t.Errorf("tool count: got %d, want %d", len(tools), len(expectedTools))
	}
}

func TestToolDefinitions_Structure(t *testing.T) {
	for _, tool := range GetToolDefinitions() {
		t.Run(tool.Name, func(t *testing.T) {
			if tool.Description == "" {
				t.Error("Tool description is empty")
			}
			if tool.InputSchema["type"] != "object" {
				t.Errorf("InputSchema type: got %v, want 'object'", tool.InputSchema["type"])
			}
			props, ok := tool.InputSchema["properties"].(map[string]interface{})
			if !ok {
				t.Fatal("InputSchema properties should be a map")
			}

			// Every required parameter must be declared
			if required, ok := tool.InputSchema["required"].([]string); ok {
				for _, r := range required {
					if _, ok := props[r]; !ok {
						t.Errorf("required parameter %s is not a property", r)
					}
				}
			}
		})
	}
}

func TestToolDefinitions_RequiredPath(t *testing.T) {
	toolsRequiringPath := []string{
		"roster_crop_preview",
		"roster_suggest_region",
		"roster_crop",
		"roster_preprocess",
		"roster_ocr",
		"roster_import_csv",
	}

	toolMap := make(map[string]Tool)
	for _, tool := range GetToolDefinitions() {
		toolMap[tool.Name] = tool
	}

	for _, name := range toolsRequiringPath {
		t.Run(name, func(t *testing.T) {
			required, ok := toolMap[name].InputSchema["required"].([]string)
			if !ok {
				t.Fatal("'required' should be a string slice")
			}
			hasPath := false
			for _, r := range required {
				if r == "path" {
					hasPath = true
				}
			}
			if !hasPath {
				t.Error("Tool should require 'path' parameter")
			}
		})
	}
}

func TestToolDefinitions_ReviewActions(t *testing.T) {
	var tool Tool
	for _, tt := range GetToolDefinitions() {
		if tt.Name == "roster_review_resolve" {
			tool = tt
		}
	}

	props := tool.InputSchema["properties"].(map[string]interface{})
	action := props["action"].(map[string]interface{})
	enum, ok := action["enum"].([]string)
	if !ok {
		t.Fatal("action should have an enum")
	}

	want := []string{"primary", "secondary", "manual", "cancel"}
	if len(enum) != len(want) {
		t.Fatalf("enum: got %v, want %v", enum, want)
	}
	for i := range want {
		if enum[i] != want[i] {
			t.Errorf("enum[%d]: got %s, want %s", i, enum[i], want[i])
		}
	}
}
