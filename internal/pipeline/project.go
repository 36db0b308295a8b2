package pipeline

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/ironsheep/roster-ocr/internal/imaging"
	"github.com/ironsheep/roster-ocr/internal/project"
)

// Project is an open project folder that a batch writes its artifacts to:
// cropped/cropped_NNN.png, ocr_raw/NNN_<engine>.txt and one log.txt line per
// image. NNN is the record index. A nil *Project writes nothing.
type Project struct {
	Paths project.Paths

	mu   sync.Mutex
	file *os.File
	log  *logrus.Logger
}

// OpenProject creates the project layout under root if needed and opens its
// log for appending.
func OpenProject(root string) (*Project, error) {
	paths, err := project.Ensure(root)
	if err != nil {
		return nil, err
	}

	f, err := os.OpenFile(paths.LogFile(), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open project log: %w", err)
	}

	log := logrus.New()
	log.SetOutput(f)
	log.SetFormatter(&logrus.TextFormatter{DisableColors: true, FullTimestamp: true})

	return &Project{Paths: paths, file: f, log: log}, nil
}

// Close closes the project log.
func (p *Project) Close() error {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.file == nil {
		return nil
	}
	err := p.file.Close()
	p.file = nil
	return err
}

func (p *Project) saveCrop(index int, img image.Image) error {
	if p == nil {
		return nil
	}
	return imaging.SavePNG(img, filepath.Join(p.Paths.CroppedDir(), imaging.CroppedName(index)))
}

func (p *Project) saveRawText(index int, primaryName, primary, secondaryName, secondary string) error {
	if p == nil {
		return nil
	}
	if err := p.Paths.WriteRawText(index, primaryName, primary); err != nil {
		return err
	}
	return p.Paths.WriteRawText(index, secondaryName, secondary)
}

func (p *Project) logItem(item ItemReport) {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.file == nil {
		return
	}

	entry := p.log.WithFields(logrus.Fields{
		"index":      item.Index,
		"image":      filepath.Base(item.Path),
		"status":     item.Status,
		"similarity": fmt.Sprintf("%.1f", item.Similarity),
	})
	if item.Kind != KindNone {
		entry = entry.WithField("kind", item.Kind)
	}
	if item.Error != "" {
		entry.Warn(item.Error)
		return
	}
	entry.Info("ok")
}
