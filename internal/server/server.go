package server

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/ironsheep/roster-ocr/internal/config"
	"github.com/ironsheep/roster-ocr/internal/imaging"
	"github.com/ironsheep/roster-ocr/internal/ocr"
	"github.com/ironsheep/roster-ocr/internal/pipeline"
	"github.com/ironsheep/roster-ocr/internal/review"
	"github.com/ironsheep/roster-ocr/internal/roster"
)

// Version is reported in the initialize handshake.
const Version = "0.1.0"

// Server handles MCP protocol communication
type Server struct {
	cache        *imaging.ImageCache
	settingsPath string
	primary      ocr.Engine
	secondary    ocr.Engine
	store        *roster.Store
	queue        *review.Queue
	tracker      *pipeline.Tracker
	log          logrus.FieldLogger

	mu       sync.Mutex
	settings *config.Settings
	csvPath  string
	project  *pipeline.Project

	outMu sync.Mutex
	enc   *json.Encoder
}

// Config wires a Server to its collaborators. Zero fields get defaults:
// built-in settings, an empty store and the standard logger.
type Config struct {
	Settings     *config.Settings
	SettingsPath string // where roster_save_preset persists; "" keeps changes in memory

	Primary   ocr.Engine
	Secondary ocr.Engine

	Store   *roster.Store
	CSVPath string // default target for roster_export_csv

	Project *pipeline.Project
	Log     logrus.FieldLogger
}

// MCPRequest represents an incoming JSON-RPC request
type MCPRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// MCPResponse represents an outgoing JSON-RPC response
type MCPResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *MCPError   `json:"error,omitempty"`
}

// MCPError represents a JSON-RPC error
type MCPError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// MCPNotification represents an outgoing notification (no ID)
type MCPNotification struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

// New creates a new MCP server instance
func New(cfg Config) *Server {
	if cfg.Settings == nil {
		cfg.Settings = config.Default()
	}
	if cfg.Store == nil {
		cfg.Store = roster.NewStore()
	}
	if cfg.Log == nil {
		cfg.Log = logrus.StandardLogger()
	}

	s := &Server{
		cache:        imaging.NewImageCache(),
		settingsPath: cfg.SettingsPath,
		primary:      cfg.Primary,
		secondary:    cfg.Secondary,
		store:        cfg.Store,
		queue:        review.NewQueue(cfg.Log),
		tracker:      pipeline.NewTracker(cfg.Log),
		log:          cfg.Log,
		settings:     cfg.Settings,
		csvPath:      cfg.CSVPath,
		project:      cfg.Project,
	}
	s.tracker.OnDone = s.batchDone
	return s
}

// Run starts the MCP server, reading from stdin and writing to stdout
func (s *Server) Run(ctx context.Context) error {
	return s.Serve(ctx, os.Stdin, os.Stdout)
}

// Serve reads one JSON-RPC request per line from r and writes responses and
// notifications to w until r is exhausted.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	// Increase buffer size for large requests
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	s.outMu.Lock()
	s.enc = json.NewEncoder(w)
	s.outMu.Unlock()

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req MCPRequest
		if err := json.Unmarshal(line, &req); err != nil {
			s.log.WithError(err).Warn("Failed to parse request")
			continue
		}

		resp := s.handleRequest(ctx, &req)
		if resp != nil {
			s.send(resp)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scanner error: %w", err)
	}

	return nil
}

// Close cancels a running batch, releasing any review it is waiting on,
// and closes the open project.
func (s *Server) Close() error {
	if id := s.tracker.Running(); id != "" {
		_ = s.tracker.Cancel(id)
		_, _ = s.tracker.Wait(context.Background(), id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.project.Close()
	s.project = nil
	return err
}

// send writes one message. Batches notify from their own goroutine, so
// writes are serialized.
func (s *Server) send(v interface{}) {
	s.outMu.Lock()
	defer s.outMu.Unlock()
	if s.enc == nil {
		return
	}
	if err := s.enc.Encode(v); err != nil {
		s.log.WithError(err).Error("Failed to encode response")
	}
}

// notify sends an MCP log message notification.
func (s *Server) notify(level string, data interface{}) {
	s.send(&MCPNotification{
		JSONRPC: "2.0",
		Method:  "notifications/message",
		Params: map[string]interface{}{
			"level":  level,
			"logger": "roster-ocr",
			"data":   data,
		},
	})
}

func (s *Server) batchDone(status pipeline.BatchStatus) {
	summary := map[string]interface{}{
		"event":    "batch_finished",
		"batch_id": status.ID,
		"state":    status.State,
	}
	if status.Report != nil {
		summary["recorded"] = status.Report.Recorded
		summary["cancelled"] = status.Report.Cancelled
		summary["skipped"] = status.Report.Skipped
	}
	level := "info"
	if status.State == pipeline.BatchAborted {
		level = "warning"
	}
	s.notify(level, summary)
}

// handleRequest routes requests to appropriate handlers
func (s *Server) handleRequest(ctx context.Context, req *MCPRequest) *MCPResponse {
	switch req.Method {
	case "initialize":
		return s.handleInitialize(req)
	case "notifications/initialized":
		// Client acknowledgment, no response needed
		return nil
	case "tools/list":
		return s.handleToolsList(req)
	case "tools/call":
		return s.handleToolsCall(ctx, req)
	case "ping":
		return &MCPResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Result:  map[string]interface{}{},
		}
	default:
		return &MCPResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error: &MCPError{
				Code:    -32601,
				Message: fmt.Sprintf("Method not found: %s", req.Method),
			},
		}
	}
}

// handleInitialize responds to the initialize request
func (s *Server) handleInitialize(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"protocolVersion": "2024-11-05",
			"capabilities": map[string]interface{}{
				"tools":   map[string]interface{}{},
				"logging": map[string]interface{}{},
			},
			"serverInfo": map[string]interface{}{
				"name":    "roster-ocr",
				"version": Version,
			},
		},
	}
}
