// Package project manages the on-disk layout of a roster project folder.
//
//	<root>/
//	  input/       source screenshots
//	  cropped/     cropped_NNN.png written by a batch
//	  ocr_raw/     NNN_<engine>.txt raw OCR output
//	  output.csv   exported roster
//	  log.txt      batch log
package project

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Paths resolves the standard locations inside a project root.
type Paths struct {
	Root string `json:"root"`
}

func (p Paths) InputDir() string   { return filepath.Join(p.Root, "input") }
func (p Paths) CroppedDir() string { return filepath.Join(p.Root, "cropped") }
func (p Paths) OCRRawDir() string  { return filepath.Join(p.Root, "ocr_raw") }
func (p Paths) OutputCSV() string  { return filepath.Join(p.Root, "output.csv") }
func (p Paths) LogFile() string    { return filepath.Join(p.Root, "log.txt") }

// RawTextPath is where the raw text of one engine for record index is kept.
func (p Paths) RawTextPath(index int, engine string) string {
	return filepath.Join(p.OCRRawDir(), fmt.Sprintf("%03d_%s.txt", index, engine))
}

// Ensure creates the project directories under root if missing and returns
// its Paths. It is safe to call on an existing project.
func Ensure(root string) (Paths, error) {
	p := Paths{Root: root}
	for _, dir := range []string{p.InputDir(), p.CroppedDir(), p.OCRRawDir()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return Paths{}, fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return p, nil
}

// WriteRawText stores the raw OCR output of engine for record index.
func (p Paths) WriteRawText(index int, engine, text string) error {
	path := p.RawTextPath(index, engine)
	if err := os.WriteFile(path, []byte(text), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

var imageExts = map[string]bool{".png": true, ".jpg": true, ".jpeg": true, ".gif": true}

// InputImages lists the screenshots in input/, sorted by file name.
func (p Paths) InputImages() ([]string, error) {
	entries, err := os.ReadDir(p.InputDir())
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", p.InputDir(), err)
	}

	var out []string
	for _, e := range entries {
		if e.IsDir() || !imageExts[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		out = append(out, filepath.Join(p.InputDir(), e.Name()))
	}
	sort.Strings(out)
	return out, nil
}
