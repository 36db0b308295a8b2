package server

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ironsheep/roster-ocr/internal/config"
	"github.com/ironsheep/roster-ocr/internal/imaging"
	"github.com/ironsheep/roster-ocr/internal/roster"
)

const sampleText = "닉네임 홍길동 직책 문주 문파 청운각"

type stubEngine struct {
	name string
	text string
	err  error
}

func (s *stubEngine) Name() string { return s.name }

func (s *stubEngine) ReadText(ctx context.Context, img image.Image) (string, error) {
	return s.text, s.err
}

func quietLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// createTestImageFile creates a test image file in dir and returns its path
func createTestImageFile(t *testing.T, dir, name string, width, height int, c color.Color) string {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, c)
		}
	}

	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create image file: %v", err)
	}
	defer f.Close()

	if err := png.Encode(f, img); err != nil {
		t.Fatalf("failed to encode image: %v", err)
	}
	return path
}

// newTestServer returns a server whose default crop preset is the right
// half of the image.
func newTestServer(t *testing.T, primary, secondary string) *Server {
	t.Helper()
	settings := config.Default()
	half := imaging.CropPreset{Name: "right", Region: imaging.CropRegion{X: 0.5, Y: 0, Width: 0.5, Height: 1}}
	if err := settings.SetPreset(half, true); err != nil {
		t.Fatal(err)
	}

	s := New(Config{
		Settings:  settings,
		Primary:   &stubEngine{name: "primary", text: primary},
		Secondary: &stubEngine{name: "secondary", text: secondary},
		Log:       quietLogger(),
	})
	t.Cleanup(func() { s.Close() })
	return s
}

// callTool runs a tool and decodes its JSON text result.
func callTool(t *testing.T, s *Server, name string, args interface{}) (map[string]interface{}, *MCPError) {
	t.Helper()
	params, err := json.Marshal(map[string]interface{}{"name": name, "arguments": args})
	if err != nil {
		t.Fatal(err)
	}

	resp := s.handleToolsCall(context.Background(), &MCPRequest{JSONRPC: "2.0", ID: 1, Method: "tools/call", Params: params})
	if resp.Error != nil {
		return nil, resp.Error
	}

	result := resp.Result.(map[string]interface{})
	content := result["content"].([]map[string]interface{})
	var out map[string]interface{}
	if err := json.Unmarshal([]byte(content[0]["text"].(string)), &out); err != nil {
		t.Fatalf("failed to decode %s result: %v", name, err)
	}
	return out, nil
}

func mustCall(t *testing.T, s *Server, name string, args interface{}) map[string]interface{} {
	t.Helper()
	out, mcpErr := callTool(t, s, name, args)
	if mcpErr != nil {
		t.Fatalf("%s failed: %s (%v)", name, mcpErr.Message, mcpErr.Data)
	}
	return out
}

func TestHandleToolsCall_InvalidParams(t *testing.T) {
	s := newTestServer(t, "", "")
	resp := s.handleToolsCall(context.Background(), &MCPRequest{JSONRPC: "2.0", ID: 1, Params: json.RawMessage(`not json`)})
	if resp.Error == nil || resp.Error.Code != -32602 {
		t.Errorf("got %+v, want code -32602", resp.Error)
	}
}

func TestHandleToolsCall_UnknownTool(t *testing.T) {
	s := newTestServer(t, "", "")
	_, mcpErr := callTool(t, s, "image_load", map[string]interface{}{})
	if mcpErr == nil || mcpErr.Code != -32000 {
		t.Errorf("got %+v, want code -32000", mcpErr)
	}
}

func TestHandleCrop(t *testing.T) {
	dir := t.TempDir()
	path := createTestImageFile(t, dir, "shot.png", 100, 80, color.RGBA{255, 0, 0, 255})
	s := newTestServer(t, "", "")

	tests := []struct {
		name       string
		args       map[string]interface{}
		wantWidth  float64
		wantHeight float64
	}{
		{"default preset", map[string]interface{}{"path": path}, 50, 80},
		{"named preset", map[string]interface{}{"path": path, "preset": "right"}, 50, 80},
		{"explicit region", map[string]interface{}{
			"path":   path,
			"region": map[string]interface{}{"x": 0.25, "y": 0.25, "width": 0.5, "height": 0.5},
		}, 50, 40},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := mustCall(t, s, "roster_crop", tt.args)
			if out["width"] != tt.wantWidth || out["height"] != tt.wantHeight {
				t.Errorf("size: got %vx%v, want %vx%v", out["width"], out["height"], tt.wantWidth, tt.wantHeight)
			}
			if out["image_base64"] == "" {
				t.Error("missing image data")
			}
		})
	}
}

func TestHandleCrop_Errors(t *testing.T) {
	dir := t.TempDir()
	path := createTestImageFile(t, dir, "shot.png", 100, 80, color.White)
	s := newTestServer(t, "", "")

	tests := []struct {
		name string
		args map[string]interface{}
	}{
		{"missing path", map[string]interface{}{}},
		{"missing file", map[string]interface{}{"path": filepath.Join(dir, "nope.png")}},
		{"unknown preset", map[string]interface{}{"path": path, "preset": "left"}},
		{"region past edge", map[string]interface{}{
			"path":   path,
			"region": map[string]interface{}{"x": 0.6, "y": 0, "width": 0.5, "height": 1},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, mcpErr := callTool(t, s, "roster_crop", tt.args); mcpErr == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestHandleCrop_NoRegionConfigured(t *testing.T) {
	path := createTestImageFile(t, t.TempDir(), "shot.png", 10, 10, color.White)
	s := New(Config{Log: quietLogger()})
	if _, mcpErr := callTool(t, s, "roster_crop", map[string]interface{}{"path": path}); mcpErr == nil {
		t.Error("expected error without region or preset")
	}
}

func TestHandleSuggestRegion(t *testing.T) {
	dir := t.TempDir()
	img := image.NewRGBA(image.Rect(0, 0, 200, 100))
	for y := 0; y < 100; y++ {
		for x := 0; x < 200; x++ {
			c := color.RGBA{255, 255, 255, 255}
			if x >= 120 && x < 180 && y >= 20 && y < 80 {
				c = color.RGBA{0, 0, 0, 255}
			}
			img.Set(x, y, c)
		}
	}
	path := filepath.Join(dir, "shot.png")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
	f.Close()

	s := newTestServer(t, "", "")
	out := mustCall(t, s, "roster_suggest_region", map[string]interface{}{"path": path})
	region, ok := out["region"].(map[string]interface{})
	if !ok {
		t.Fatalf("region missing: %v", out)
	}
	if x := region["x"].(float64); x < 0.5 {
		t.Errorf("region x: got %v, want >= 0.5", x)
	}

	blank := createTestImageFile(t, dir, "blank.png", 100, 80, color.White)
	if _, mcpErr := callTool(t, s, "roster_suggest_region", map[string]interface{}{"path": blank}); mcpErr == nil {
		t.Error("expected an error for an image without text")
	}
}

func TestHandleCropPreview(t *testing.T) {
	path := createTestImageFile(t, t.TempDir(), "shot.png", 100, 80, color.White)
	s := newTestServer(t, "", "")

	out := mustCall(t, s, "roster_crop_preview", map[string]interface{}{"path": path, "grid_divisions": 0})
	if out["width"] != float64(100) || out["height"] != float64(80) {
		t.Errorf("size: got %vx%v, want 100x80", out["width"], out["height"])
	}
	if out["mime_type"] != "image/png" {
		t.Errorf("mime_type: got %v", out["mime_type"])
	}
}

func TestHandleBatchCrop(t *testing.T) {
	dir := t.TempDir()
	paths := []string{
		createTestImageFile(t, dir, "a.png", 40, 20, color.White),
		createTestImageFile(t, dir, "b.png", 40, 20, color.Black),
	}
	outDir := filepath.Join(dir, "out")
	s := newTestServer(t, "", "")

	out := mustCall(t, s, "roster_batch_crop", map[string]interface{}{"paths": paths, "output_dir": outDir})
	if out["count"] != float64(2) {
		t.Errorf("count: got %v, want 2", out["count"])
	}
	for _, name := range []string{"cropped_001.png", "cropped_002.png"} {
		if _, err := os.Stat(filepath.Join(outDir, name)); err != nil {
			t.Errorf("%s: %v", name, err)
		}
	}

	// Without a project both paths and output_dir are needed
	if _, mcpErr := callTool(t, s, "roster_batch_crop", map[string]interface{}{}); mcpErr == nil {
		t.Error("expected error without paths")
	}
}

func TestHandlePreprocess(t *testing.T) {
	path := createTestImageFile(t, t.TempDir(), "shot.png", 60, 30, color.RGBA{200, 180, 40, 255})
	s := newTestServer(t, "", "")

	out := mustCall(t, s, "roster_preprocess", map[string]interface{}{"path": path})
	variants, ok := out["variants"].([]interface{})
	if !ok || len(variants) != imaging.VariantCount {
		t.Fatalf("variants: got %v, want %d", out["variants"], imaging.VariantCount)
	}
	for i, v := range variants {
		m := v.(map[string]interface{})
		if m["index"] != float64(i) {
			t.Errorf("variant %d index: got %v", i, m["index"])
		}
		if m["width"] != float64(30) {
			t.Errorf("variant %d width: got %v, want 30", i, m["width"])
		}
		spec := m["spec"].(map[string]interface{})
		if spec["name"] != imaging.VariantSpecs[i].Name {
			t.Errorf("variant %d name: got %v", i, spec["name"])
		}
	}
}

func TestHandleSavePreset(t *testing.T) {
	settingsPath := filepath.Join(t.TempDir(), "settings.json")
	s := New(Config{SettingsPath: settingsPath, Log: quietLogger()})

	out := mustCall(t, s, "roster_save_preset", map[string]interface{}{
		"name":         "card",
		"region":       map[string]interface{}{"x": 0.1, "y": 0.2, "width": 0.3, "height": 0.4},
		"make_default": true,
	})
	if out["default"] != "card" || out["saved"] != true {
		t.Errorf("result: got %v", out)
	}

	loaded, err := config.Load(settingsPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	p, ok := loaded.Preset("")
	if !ok || p.Name != "card" || p.Region.Width != 0.3 {
		t.Errorf("saved preset: got %+v, %v", p, ok)
	}

	if _, mcpErr := callTool(t, s, "roster_save_preset", map[string]interface{}{
		"name":   "bad",
		"region": map[string]interface{}{"x": 0.9, "y": 0, "width": 0.3, "height": 1},
	}); mcpErr == nil {
		t.Error("expected error for invalid region")
	}
}

func TestHandleOCR(t *testing.T) {
	path := createTestImageFile(t, t.TempDir(), "shot.png", 60, 30, color.White)
	s := newTestServer(t, sampleText, sampleText)

	out := mustCall(t, s, "roster_ocr", map[string]interface{}{"path": path})
	readings := out["readings"].([]interface{})
	if len(readings) != 2 {
		t.Fatalf("readings: got %d, want 2", len(readings))
	}
	first := readings[0].(map[string]interface{})
	if first["engine"] != "primary" || first["variant"] != "binarized" {
		t.Errorf("primary reading: got %v", first)
	}
	cmp := out["comparison"].(map[string]interface{})
	if cmp["is_match"] != true || cmp["chosen_text"] != sampleText {
		t.Errorf("comparison: got %v", cmp)
	}
}

func TestHandleOCR_EngineError(t *testing.T) {
	path := createTestImageFile(t, t.TempDir(), "shot.png", 60, 30, color.White)
	s := newTestServer(t, "", "")
	s.secondary = &stubEngine{name: "secondary", err: errors.New("model missing")}

	if _, mcpErr := callTool(t, s, "roster_ocr", map[string]interface{}{"path": path}); mcpErr == nil {
		t.Error("expected error")
	}
}

func TestHandleOCR_NoEngines(t *testing.T) {
	path := createTestImageFile(t, t.TempDir(), "shot.png", 10, 10, color.White)
	s := New(Config{Log: quietLogger()})
	if _, mcpErr := callTool(t, s, "roster_ocr", map[string]interface{}{"path": path}); mcpErr == nil {
		t.Error("expected error without engines")
	}
}

func TestHandleCompare(t *testing.T) {
	s := newTestServer(t, "", "")

	tests := []struct {
		name      string
		args      map[string]interface{}
		wantMatch bool
		wantScore float64
	}{
		{"identical", map[string]interface{}{"primary_text": "ABC", "secondary_text": "ABC"}, true, 100},
		{"different", map[string]interface{}{"primary_text": "길동", "secondary_text": "개똥"}, false, 0},
		{"low threshold", map[string]interface{}{"primary_text": "ABCD", "secondary_text": "ABCE", "threshold": 50}, true, 75},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := mustCall(t, s, "roster_compare", tt.args)
			if out["is_match"] != tt.wantMatch {
				t.Errorf("is_match: got %v, want %v", out["is_match"], tt.wantMatch)
			}
			if out["similarity_score"] != tt.wantScore {
				t.Errorf("similarity_score: got %v, want %v", out["similarity_score"], tt.wantScore)
			}
			if !tt.wantMatch && out["chosen_text"] != nil {
				t.Errorf("chosen_text: got %v, want null", out["chosen_text"])
			}
		})
	}

	if _, mcpErr := callTool(t, s, "roster_compare", map[string]interface{}{"primary_text": "a", "secondary_text": "a", "threshold": 150}); mcpErr == nil {
		t.Error("expected error for threshold out of range")
	}
}

func TestHandleParse(t *testing.T) {
	s := newTestServer(t, "", "")

	out := mustCall(t, s, "roster_parse", map[string]interface{}{"text": sampleText, "index": 7})
	rec := out["record"].(map[string]interface{})
	if rec["index"] != float64(7) || rec["nickname"] != "홍길동" || rec["faction"] != "청운각" {
		t.Errorf("record: got %v", rec)
	}
	if _, ok := out["warning"]; ok {
		t.Errorf("unexpected warning: %v", out["warning"])
	}

	out = mustCall(t, s, "roster_parse", map[string]interface{}{"text": "???", "index": 1})
	if _, ok := out["warning"]; !ok {
		t.Error("expected a warning for unrecognized text")
	}
}

func TestHandleOCRInfo(t *testing.T) {
	s := newTestServer(t, "", "")
	out := mustCall(t, s, "roster_ocr_info", nil)

	engines := out["engines"].([]interface{})
	if len(engines) != 2 {
		t.Fatalf("engines: got %d, want 2", len(engines))
	}
	if e := engines[1].(map[string]interface{}); e["name"] != "secondary" || e["backend"] != "custom" {
		t.Errorf("secondary: got %v", e)
	}
	if out["language"] != "kor+eng" || out["primary_variant"] != "binarized" {
		t.Errorf("settings: got %v", out)
	}
}

// waitForReviews polls roster_pending_reviews until n are waiting.
func waitForReviews(t *testing.T, s *Server, n int) []interface{} {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		out := mustCall(t, s, "roster_pending_reviews", nil)
		if pending, _ := out["pending"].([]interface{}); len(pending) == n {
			return pending
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d pending reviews", n)
	return nil
}

func waitBatch(t *testing.T, s *Server, id string) map[string]interface{} {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := s.tracker.Wait(ctx, id); err != nil {
		t.Fatalf("batch did not finish: %v", err)
	}
	return mustCall(t, s, "roster_batch_status", map[string]interface{}{"batch_id": id})
}

func TestProcessBatch_WithReview(t *testing.T) {
	dir := t.TempDir()
	paths := []string{
		createTestImageFile(t, dir, "01.png", 40, 20, color.White),
		createTestImageFile(t, dir, "02.png", 40, 20, color.White),
	}
	s := newTestServer(t, "닉네임 길동", "닉네임 개똥")

	out := mustCall(t, s, "roster_process_batch", map[string]interface{}{"paths": paths})
	id, _ := out["batch_id"].(string)
	if id == "" || out["total"] != float64(2) {
		t.Fatalf("result: got %v", out)
	}

	pending := waitForReviews(t, s, 1)
	first := pending[0].(map[string]interface{})
	mustCall(t, s, "roster_review_resolve", map[string]interface{}{"id": first["id"], "action": "manual", "text": "닉네임 수정됨"})

	pending = waitForReviews(t, s, 1)
	second := pending[0].(map[string]interface{})
	mustCall(t, s, "roster_review_resolve", map[string]interface{}{"id": second["id"], "action": "cancel"})

	status := waitBatch(t, s, id)
	if status["state"] != "done" {
		t.Errorf("state: got %v, want done", status["state"])
	}
	report := status["report"].(map[string]interface{})
	if report["recorded"] != float64(1) || report["cancelled"] != float64(1) {
		t.Errorf("report: got recorded %v cancelled %v", report["recorded"], report["cancelled"])
	}

	records := mustCall(t, s, "roster_records", nil)
	if records["count"] != float64(1) {
		t.Fatalf("count: got %v, want 1", records["count"])
	}
	rec := records["records"].([]interface{})[0].(map[string]interface{})
	if rec["nickname"] != "수정됨" {
		t.Errorf("nickname: got %v", rec["nickname"])
	}

	if _, mcpErr := callTool(t, s, "roster_review_resolve", map[string]interface{}{"id": first["id"], "action": "primary"}); mcpErr == nil {
		t.Error("expected error resolving a finished review")
	}
}

func TestProcessBatch_Cancel(t *testing.T) {
	path := createTestImageFile(t, t.TempDir(), "01.png", 40, 20, color.White)
	s := newTestServer(t, "ABC", "XYZ")

	out := mustCall(t, s, "roster_process_batch", map[string]interface{}{"paths": []string{path}})
	id := out["batch_id"].(string)
	waitForReviews(t, s, 1)

	if _, mcpErr := callTool(t, s, "roster_process_batch", map[string]interface{}{"paths": []string{path}}); mcpErr == nil {
		t.Error("expected error starting a second batch")
	}
	if _, mcpErr := callTool(t, s, "roster_import_csv", map[string]interface{}{"path": "x.csv"}); mcpErr == nil {
		t.Error("expected error importing during a batch")
	}

	mustCall(t, s, "roster_batch_cancel", map[string]interface{}{"batch_id": id})
	status := waitBatch(t, s, id)
	if status["state"] != "aborted" {
		t.Errorf("state: got %v, want aborted", status["state"])
	}
	if s.store.Len() != 0 {
		t.Errorf("store size: got %d, want 0", s.store.Len())
	}

	list := mustCall(t, s, "roster_batch_status", nil)
	if batches := list["batches"].([]interface{}); len(batches) != 1 {
		t.Errorf("batches: got %d, want 1", len(batches))
	}
}

func TestOpenProject_BatchUsesInputs(t *testing.T) {
	root := t.TempDir()
	s := newTestServer(t, sampleText, sampleText)

	out := mustCall(t, s, "roster_open_project", map[string]interface{}{"root": root})
	if out["inputs"] != float64(0) {
		t.Errorf("inputs: got %v, want 0", out["inputs"])
	}
	inputDir := filepath.Join(root, "input")
	createTestImageFile(t, inputDir, "b.png", 40, 20, color.White)
	createTestImageFile(t, inputDir, "a.png", 40, 20, color.White)

	out = mustCall(t, s, "roster_process_batch", map[string]interface{}{})
	status := waitBatch(t, s, out["batch_id"].(string))
	items := status["items"].([]interface{})
	if len(items) != 2 {
		t.Fatalf("items: got %d, want 2", len(items))
	}

	for _, name := range []string{"cropped/cropped_001.png", "cropped/cropped_002.png", "ocr_raw/001_primary.txt", "ocr_raw/002_secondary.txt", "log.txt"} {
		if _, err := os.Stat(filepath.Join(root, name)); err != nil {
			t.Errorf("%s: %v", name, err)
		}
	}
	if s.settings.LastOpenedProject != root {
		t.Errorf("LastOpenedProject: got %s, want %s", s.settings.LastOpenedProject, root)
	}

	// Export defaults to the project's output.csv
	out = mustCall(t, s, "roster_export_csv", nil)
	if out["path"] != filepath.Join(root, "output.csv") {
		t.Errorf("export path: got %v", out["path"])
	}
}

func TestRecordEditing(t *testing.T) {
	s := newTestServer(t, "", "")
	if err := s.store.Append(roster.Record{Index: 1, Nickname: "홍길동"}); err != nil {
		t.Fatal(err)
	}

	out := mustCall(t, s, "roster_update_record", map[string]interface{}{
		"record": map[string]interface{}{
			"index":    1,
			"nickname": "홍길동",
			"role":     "장로",
			"extras":   map[string]interface{}{"메모": "신규"},
		},
	})
	rec := out["record"].(map[string]interface{})
	if rec["role"] != "장로" {
		t.Errorf("role: got %v", rec["role"])
	}

	if _, mcpErr := callTool(t, s, "roster_update_record", map[string]interface{}{
		"record": map[string]interface{}{"index": 9},
	}); mcpErr == nil {
		t.Error("expected error for unknown index")
	}

	out = mustCall(t, s, "roster_add_column", map[string]interface{}{"name": "비고"})
	cols := out["columns"].([]interface{})
	want := len(roster.FixedColumns) + 2
	if len(cols) != want || cols[want-2] != "메모" || cols[want-1] != "비고" {
		t.Errorf("columns: got %v", cols)
	}

	if _, mcpErr := callTool(t, s, "roster_add_column", map[string]interface{}{"name": "nickname"}); mcpErr == nil {
		t.Error("expected error for a fixed column name")
	}
}

func TestCSVExportImport(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "roster.csv")
	s := newTestServer(t, "", "")

	if _, mcpErr := callTool(t, s, "roster_export_csv", nil); mcpErr == nil {
		t.Error("expected error without any export path")
	}

	first := roster.Record{Index: 1, Nickname: "홍길동", Extras: roster.ExtrasOf("메모", "a")}
	second := roster.Record{Index: 2, Nickname: "임꺽정"}
	for _, rec := range []roster.Record{first, second} {
		if err := s.store.Append(rec); err != nil {
			t.Fatal(err)
		}
	}

	out := mustCall(t, s, "roster_export_csv", map[string]interface{}{"path": csvPath})
	if out["records"] != float64(2) {
		t.Errorf("records: got %v, want 2", out["records"])
	}

	other := newTestServer(t, "", "")
	out = mustCall(t, other, "roster_import_csv", map[string]interface{}{"path": csvPath})
	if out["imported"] != float64(2) {
		t.Errorf("imported: got %v, want 2", out["imported"])
	}
	got, ok := other.store.Get(1)
	if !ok || got.Nickname != "홍길동" {
		t.Errorf("record 1: got %+v", got)
	}
	if v, _ := got.Extras.Get("메모"); v != "a" {
		t.Errorf("extra: got %q, want a", v)
	}

	// Appending the same file again collides on index
	if _, mcpErr := callTool(t, other, "roster_import_csv", map[string]interface{}{"path": csvPath}); mcpErr == nil {
		t.Error("expected duplicate index error")
	}

	out = mustCall(t, other, "roster_import_csv", map[string]interface{}{"path": csvPath, "replace": true})
	if out["records"] != float64(2) {
		t.Errorf("records after replace: got %v, want 2", out["records"])
	}

	// Export now defaults to the imported file
	out = mustCall(t, other, "roster_export_csv", nil)
	if out["path"] != csvPath {
		t.Errorf("export path: got %v, want %s", out["path"], csvPath)
	}
}

func TestImportCSV_CollisionLeavesStoreUnchanged(t *testing.T) {
	csvPath := filepath.Join(t.TempDir(), "roster.csv")
	src := roster.NewStore()
	for _, rec := range []roster.Record{
		{Index: 1, Nickname: "홍길동", Extras: roster.ExtrasOf("메모", "a")},
		{Index: 2, Nickname: "임꺽정"},
	} {
		if err := src.Append(rec); err != nil {
			t.Fatal(err)
		}
	}
	if err := src.SaveFile(csvPath); err != nil {
		t.Fatal(err)
	}

	s := newTestServer(t, "", "")
	if err := s.store.Append(roster.Record{Index: 2, Nickname: "기존"}); err != nil {
		t.Fatal(err)
	}
	before := s.store.Columns()

	if _, mcpErr := callTool(t, s, "roster_import_csv", map[string]interface{}{"path": csvPath}); mcpErr == nil {
		t.Fatal("expected duplicate index error")
	}
	if s.store.Len() != 1 {
		t.Errorf("store size: got %d, want 1", s.store.Len())
	}
	if _, ok := s.store.Get(1); ok {
		t.Error("record 1 was appended before the collision was found")
	}
	if got := s.store.Columns(); len(got) != len(before) {
		t.Errorf("columns: got %v, want %v", got, before)
	}
}
