package ocr

import (
	"context"
	"errors"
	"image"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// NeuralName is the engine name reported by Neural.
const NeuralName = "neural"

var errNoDetector = errors.New("no detector configured")

// Detector finds and reads text regions in an encoded PNG image.
//
// Regions are returned in the detector's native order (typically top to
// bottom). Close releases whatever model or process backs the detector.
type Detector interface {
	Detect(ctx context.Context, pngData []byte) ([]TextRegion, error)
	Close() error
}

// DetectorFactory builds a Detector. It is expensive (loads a model or
// starts a process) and Neural calls it at most once.
type DetectorFactory func() (Detector, error)

// Neural is the deep-learning OCR backend.
//
// The detector is constructed on first use, exactly once per Neural value,
// even when many goroutines call ReadText concurrently. A construction
// failure is remembered and returned from every later call.
type Neural struct {
	factory DetectorFactory
	log     logrus.FieldLogger

	once     sync.Once
	detector Detector
	initErr  error

	mu     sync.Mutex
	closed bool
}

// NewNeural returns a Neural backend that builds its detector with factory.
func NewNeural(factory DetectorFactory, log logrus.FieldLogger) *Neural {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Neural{
		factory: factory,
		log:     log.WithField("engine", NeuralName),
	}
}

// Name implements Engine.
func (n *Neural) Name() string { return NeuralName }

// ReadText implements Engine. Region texts are joined with "\n".
func (n *Neural) ReadText(ctx context.Context, img image.Image) (string, error) {
	regions, err := n.ReadRegions(ctx, img)
	if err != nil {
		return "", err
	}

	lines := make([]string, len(regions))
	for i, r := range regions {
		lines[i] = r.Text
	}
	return strings.Join(lines, "\n"), nil
}

// ReadRegions returns the raw detector output for img.
func (n *Neural) ReadRegions(ctx context.Context, img image.Image) ([]TextRegion, error) {
	if err := ctx.Err(); err != nil {
		return nil, &EngineError{Engine: NeuralName, Err: err}
	}

	data, err := encodePNG(img)
	if err != nil {
		return nil, &EngineError{Engine: NeuralName, Err: err}
	}

	det, err := n.ensureDetector()
	if err != nil {
		return nil, &EngineError{Engine: NeuralName, Err: err}
	}

	regions, err := det.Detect(ctx, data)
	if err != nil {
		return nil, wrapEngineError(NeuralName, err)
	}
	return regions, nil
}

func (n *Neural) ensureDetector() (Detector, error) {
	n.once.Do(func() {
		var (
			det Detector
			err = errNoDetector
		)
		if n.factory != nil {
			n.log.Info("Initializing neural OCR detector")
			det, err = n.factory()
		}
		if err != nil {
			n.log.WithError(err).Error("Neural OCR detector failed to initialize")
		}
		n.mu.Lock()
		n.detector, n.initErr = det, err
		n.mu.Unlock()
	})

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return nil, errors.New("engine closed")
	}
	return n.detector, n.initErr
}

// Initialized reports whether the detector has been built successfully.
func (n *Neural) Initialized() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.detector != nil && !n.closed
}

// Close releases the detector if it was ever built. The engine is unusable
// afterwards.
func (n *Neural) Close() error {
	// Block construction so a racing first call cannot build a detector
	// after Close has run.
	n.once.Do(func() {
		n.mu.Lock()
		n.initErr = errors.New("engine closed")
		n.mu.Unlock()
	})

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return nil
	}
	n.closed = true
	if n.detector != nil {
		return n.detector.Close()
	}
	return nil
}

// Info implements the diagnostics hook used by Info. It never triggers
// detector construction, so a detector that has not been built yet is
// reported as not available. A missing factory is reported as an error
// straight away.
func (n *Neural) Info() EngineInfo {
	info := EngineInfo{
		Name:        NeuralName,
		Backend:     "detector",
		Initialized: n.Initialized(),
	}
	if n.factory == nil {
		info.Error = errNoDetector.Error()
		return info
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	switch {
	case n.initErr != nil:
		info.Error = n.initErr.Error()
	case n.detector == nil:
		info.Backend = "detector (starts on first use)"
	default:
		info.Available = true
		if d, ok := n.detector.(interface{ Describe() string }); ok {
			info.Backend = d.Describe()
		}
	}
	return info
}
