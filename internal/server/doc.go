// Package server implements the MCP (Model Context Protocol) server that
// drives the roster OCR pipeline.
//
// A desktop or chat client uses it to calibrate the crop region, submit
// screenshot batches, answer review prompts and edit or export the roster.
//
// # Protocol
//
// The server communicates over stdio using JSON-RPC 2.0:
//   - Input: JSON-RPC requests on stdin (one per line)
//   - Output: JSON-RPC responses and notifications on stdout
//
// Supported MCP methods:
//   - initialize: Protocol handshake
//   - tools/list: Enumerate available tools
//   - tools/call: Execute a tool with arguments
//   - ping: Health check
//
// Logs go to stderr; stdout carries protocol messages only.
//
// # Available Tools
//
// Calibration and cropping:
//   - roster_crop_preview: Draw a region over a screenshot
//   - roster_suggest_region: Propose a region around the text
//   - roster_crop: Crop one screenshot
//   - roster_batch_crop: Crop many screenshots to cropped_NNN.png
//   - roster_preprocess: Show the three preprocessing variants
//   - roster_save_preset: Persist a named crop region
//
// Recognition:
//   - roster_ocr: Read one screenshot with both engines and compare
//   - roster_compare: Score two readings
//   - roster_parse: Extract fields from text
//   - roster_ocr_info: Engine availability
//
// Batches and review:
//   - roster_open_project: Select the project folder
//   - roster_process_batch: Start a background batch
//   - roster_batch_status, roster_batch_cancel: Follow or stop it
//   - roster_pending_reviews, roster_review_resolve: Answer reviews
//
// Records:
//   - roster_records, roster_update_record, roster_add_column
//   - roster_export_csv, roster_import_csv
//
// # Batches and Review
//
// roster_process_batch returns immediately; the batch runs in its own
// goroutine so the request loop stays free. When the two OCR readings of an
// image disagree, that image waits in the review queue until a
// roster_review_resolve call decides it. Other images keep flowing. A
// notifications/message is sent when a batch finishes.
//
// # Error Handling
//
// Tool execution errors are returned as JSON-RPC error responses with:
//   - code: -32000 (tool execution failure) or standard JSON-RPC codes
//   - message: Human-readable error description
//   - data: Additional error details (typically the Go error string)
//
// Per-image batch failures are not tool errors; they appear in the batch
// status with an error kind such as INPUT_ERROR or ENGINE_ERROR.
//
// # Usage
//
//	srv := server.New(server.Config{Settings: settings, Primary: tess, Secondary: neural})
//	defer srv.Close()
//	if err := srv.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
package server
