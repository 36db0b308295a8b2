package ocr

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// LanguagesEnv carries the requested reader languages to the helper process
// as a comma-separated list.
const LanguagesEnv = "ROSTER_OCR_NEURAL_LANGUAGES"

// detectRequest is one line written to the helper's stdin.
type detectRequest struct {
	ID          int64  `json:"id"`
	ImageBase64 string `json:"image_base64"`
}

// detectResponse is one line read from the helper's stdout.
type detectResponse struct {
	ID      int64        `json:"id"`
	Regions []TextRegion `json:"regions"`
	Error   string       `json:"error,omitempty"`
}

// ProcessDetector is a Detector backed by a long-lived helper process that
// hosts a neural OCR model (an EasyOCR or PaddleOCR wrapper, for example).
//
// The protocol is newline-delimited JSON over the helper's stdio:
//
//	-> {"id": 1, "image_base64": "<PNG>"}
//	<- {"id": 1, "regions": [{"text": "...", "confidence": 0.93, "bounds": {...}}]}
//	<- {"id": 2, "error": "..."}
//
// Requests are serialized; the helper handles one image at a time. Responses
// whose id does not match the outstanding request are discarded.
//
// A request whose context ends while the helper is still working kills the
// helper, so a hung model never holds the detector. The next request starts
// a fresh helper. Close stops the helper without waiting for a request in
// flight.
type ProcessDetector struct {
	argv      []string
	languages []string
	log       logrus.FieldLogger

	// mu serializes requests.
	mu     sync.Mutex
	nextID int64

	// stateMu guards proc and closed; it is never held while waiting on
	// the helper.
	stateMu sync.Mutex
	proc    *helperProc
	closed  bool
}

// closeGrace is how long Close lets the helper exit on its own after its
// stdin is closed before killing it.
var closeGrace = 2 * time.Second

// helperProc is one running helper process.
type helperProc struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Scanner
	log    logrus.FieldLogger

	waitOnce sync.Once
	waitErr  error
	killed   atomic.Bool
}

// wait reaps the process. Safe to call more than once.
func (h *helperProc) wait() error {
	h.waitOnce.Do(func() { h.waitErr = h.cmd.Wait() })
	return h.waitErr
}

func (h *helperProc) kill() {
	h.killed.Store(true)
	if err := h.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		h.log.WithError(err).Debug("Killing neural helper")
	}
}

// StartProcessDetector launches argv as the helper process. The helper's
// stderr is forwarded to the log at debug level.
func StartProcessDetector(argv []string, languages []string, log logrus.FieldLogger) (*ProcessDetector, error) {
	if len(argv) == 0 {
		return nil, errors.New("neural helper command is empty")
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	p := &ProcessDetector{argv: argv, languages: languages, log: log}
	proc, err := p.start()
	if err != nil {
		return nil, err
	}
	p.proc = proc
	return p, nil
}

func (p *ProcessDetector) start() (*helperProc, error) {
	cmd := exec.Command(p.argv[0], p.argv[1:]...)
	cmd.Env = append(os.Environ(), LanguagesEnv+"="+strings.Join(p.languages, ","))

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open helper stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open helper stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open helper stderr: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start neural helper %q: %w", p.argv[0], err)
	}

	helperLog := p.log.WithFields(logrus.Fields{"helper": p.argv[0], "pid": cmd.Process.Pid})
	go func() {
		lines := bufio.NewScanner(stderr)
		for lines.Scan() {
			helperLog.Debug(lines.Text())
		}
	}()
	helperLog.Info("Neural OCR helper started")

	// Responses carry whole region lists; allow large lines
	scanner := bufio.NewScanner(stdout)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 16*1024*1024)

	return &helperProc{cmd: cmd, stdin: stdin, stdout: scanner, log: helperLog}, nil
}

// ProcessFactory returns a DetectorFactory that starts argv on first use.
func ProcessFactory(argv []string, languages []string, log logrus.FieldLogger) DetectorFactory {
	return func() (Detector, error) {
		return StartProcessDetector(argv, languages, log)
	}
}

// current returns the running helper, starting a new one if the previous
// one is gone.
func (p *ProcessDetector) current() (*helperProc, error) {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()
	if p.closed {
		return nil, errors.New("neural helper is closed")
	}
	if p.proc == nil {
		proc, err := p.start()
		if err != nil {
			return nil, err
		}
		p.proc = proc
	}
	return p.proc, nil
}

// retire drops proc after it died or was killed and reaps it.
func (p *ProcessDetector) retire(proc *helperProc) {
	p.stateMu.Lock()
	if p.proc == proc {
		p.proc = nil
	}
	p.stateMu.Unlock()

	proc.kill()
	if err := proc.wait(); err != nil {
		proc.log.WithError(err).Debug("Neural helper exited")
	}
}

// Detect implements Detector.
func (p *ProcessDetector) Detect(ctx context.Context, pngData []byte) ([]TextRegion, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	proc, err := p.current()
	if err != nil {
		return nil, err
	}

	p.nextID++
	req := detectRequest{ID: p.nextID, ImageBase64: base64.StdEncoding.EncodeToString(pngData)}
	line, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}
	// A helper that stops reading or answering is killed when ctx ends,
	// which unblocks both the write and the read below.
	stop := context.AfterFunc(ctx, func() {
		proc.log.Warn("Neural helper did not answer in time, killing it")
		proc.kill()
	})

	if _, err := proc.stdin.Write(append(line, '\n')); err != nil {
		stop()
		p.retire(proc)
		if ctx.Err() != nil {
			return nil, fmt.Errorf("neural helper abandoned: %w", ctx.Err())
		}
		return nil, fmt.Errorf("failed to write to neural helper: %w", err)
	}

	regions, err := p.readResponse(proc, req.ID)
	var reported *helperError
	if !stop() || (err != nil && !errors.As(err, &reported)) {
		p.retire(proc)
	}
	if ctx.Err() != nil && err != nil {
		return nil, fmt.Errorf("neural helper abandoned: %w", ctx.Err())
	}
	return regions, err
}

// readResponse scans helper output until the response for id arrives.
func (p *ProcessDetector) readResponse(proc *helperProc, id int64) ([]TextRegion, error) {
	for proc.stdout.Scan() {
		var resp detectResponse
		if err := json.Unmarshal(proc.stdout.Bytes(), &resp); err != nil {
			proc.log.WithError(err).Warn("Ignoring malformed helper output")
			continue
		}
		if resp.ID != id {
			proc.log.WithField("id", resp.ID).Debug("Discarding stale helper response")
			continue
		}
		if resp.Error != "" {
			return nil, &helperError{msg: resp.Error}
		}
		if resp.Regions == nil {
			resp.Regions = []TextRegion{}
		}
		return resp.Regions, nil
	}

	if err := proc.stdout.Err(); err != nil {
		return nil, fmt.Errorf("failed to read from neural helper: %w", err)
	}
	return nil, errors.New("neural helper has exited")
}

// helperError is an error reported by a healthy helper for one image.
type helperError struct{ msg string }

func (e *helperError) Error() string { return e.msg }

// Close shuts the helper down: it closes the helper's stdin, gives it
// closeGrace to exit and kills it otherwise. Close does not wait for a
// request in flight; that request fails once the helper is gone.
func (p *ProcessDetector) Close() error {
	p.stateMu.Lock()
	if p.closed {
		p.stateMu.Unlock()
		return nil
	}
	p.closed = true
	proc := p.proc
	p.proc = nil
	p.stateMu.Unlock()

	if proc == nil {
		return nil
	}
	if err := proc.stdin.Close(); err != nil {
		proc.log.WithError(err).Debug("Closing helper stdin")
	}

	done := make(chan error, 1)
	go func() { done <- proc.wait() }()

	var err error
	select {
	case err = <-done:
	case <-time.After(closeGrace):
		proc.log.Warn("Neural helper ignored shutdown, killing it")
		proc.kill()
		err = <-done
	}
	if err != nil && !proc.killed.Load() {
		return fmt.Errorf("neural helper exited with error: %w", err)
	}
	proc.log.Info("Neural OCR helper stopped")
	return nil
}

// Describe names the helper for diagnostics.
func (p *ProcessDetector) Describe() string {
	return "process: " + strings.Join(p.argv, " ")
}
