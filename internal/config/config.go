// Package config loads and saves roster-ocr settings.
//
// Settings come from three layers, later ones winning:
//
//  1. built-in defaults (Default)
//  2. a JSON settings file
//  3. ROSTER_OCR_* environment variables, optionally seeded from a .env file
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/ironsheep/roster-ocr/internal/imaging"
)

// DefaultPath is the settings file used when none is given.
const DefaultPath = "settings.json"

// Environment variables that override file settings.
const (
	EnvLanguage         = "ROSTER_OCR_LANGUAGE"
	EnvTessdataPrefix   = "ROSTER_OCR_TESSDATA_PREFIX"
	EnvThreshold        = "ROSTER_OCR_THRESHOLD"
	EnvConcurrency      = "ROSTER_OCR_CONCURRENCY"
	EnvTimeout          = "ROSTER_OCR_TIMEOUT"
	EnvNeuralCommand    = "ROSTER_OCR_NEURAL_COMMAND"
	EnvNeuralLanguages  = "ROSTER_OCR_NEURAL_LANGUAGES"
	EnvLogLevel         = "ROSTER_OCR_LOG_LEVEL"
	EnvDefaultCSV       = "ROSTER_OCR_DEFAULT_CSV"
	EnvPrimaryVariant   = "ROSTER_OCR_PRIMARY_VARIANT"
	EnvSecondaryVariant = "ROSTER_OCR_SECONDARY_VARIANT"
)

// Settings is the persisted configuration.
type Settings struct {
	// Carried over from the desktop settings file
	DefaultCSVPath    string `json:"default_csv_path"`
	LastOpenedProject string `json:"last_opened_project"`
	CropPreset        string `json:"crop_preset"`
	OCRLanguage       string `json:"ocr_language"`

	// CropPresets are the calibrated regions; CropPreset names the default.
	CropPresets []imaging.CropPreset `json:"crop_presets,omitempty"`

	TessdataPrefix      string   `json:"tessdata_prefix,omitempty"`
	SimilarityThreshold float64  `json:"similarity_threshold"`
	Concurrency         int      `json:"concurrency"`
	OCRTimeout          Duration `json:"ocr_timeout"`
	NeuralCommand       []string `json:"neural_command,omitempty"`
	NeuralLanguages     []string `json:"neural_languages"`

	// Which preprocessing variant each backend reads (0-2)
	PrimaryVariant   int `json:"primary_variant"`
	SecondaryVariant int `json:"secondary_variant"`

	LogLevel string `json:"log_level"`
}

// Default returns the built-in settings.
func Default() *Settings {
	return &Settings{
		OCRLanguage:         "kor+eng",
		SimilarityThreshold: 85,
		Concurrency:         1,
		OCRTimeout:          Duration(60 * time.Second),
		NeuralLanguages:     []string{"ko", "en"},
		PrimaryVariant:      1,
		SecondaryVariant:    0,
		LogLevel:            "info",
	}
}

// Load reads settings from path on top of the defaults, applies environment
// overrides and validates the result. A missing file is not an error.
func Load(path string) (*Settings, error) {
	s := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read settings: %w", err)
		default:
			if err := json.Unmarshal(data, s); err != nil {
				return nil, fmt.Errorf("failed to parse %s: %w", path, err)
			}
		}
	}

	if err := s.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return s, nil
}

// LoadEnvFile loads KEY=VALUE pairs from a .env file into the process
// environment without overriding variables that are already set. A missing
// file is not an error.
func LoadEnvFile(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides fields from ROSTER_OCR_* variables that are set.
func (s *Settings) ApplyEnv() error {
	if v := os.Getenv(EnvLanguage); v != "" {
		s.OCRLanguage = v
	}
	if v := os.Getenv(EnvTessdataPrefix); v != "" {
		s.TessdataPrefix = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		s.LogLevel = v
	}
	if v := os.Getenv(EnvDefaultCSV); v != "" {
		s.DefaultCSVPath = v
	}
	if v := os.Getenv(EnvNeuralCommand); v != "" {
		s.NeuralCommand = strings.Fields(v)
	}
	if v := os.Getenv(EnvNeuralLanguages); v != "" {
		s.NeuralLanguages = splitList(v)
	}

	var err error
	if s.SimilarityThreshold, err = envFloat(EnvThreshold, s.SimilarityThreshold); err != nil {
		return err
	}
	if s.Concurrency, err = envInt(EnvConcurrency, s.Concurrency); err != nil {
		return err
	}
	if s.PrimaryVariant, err = envInt(EnvPrimaryVariant, s.PrimaryVariant); err != nil {
		return err
	}
	if s.SecondaryVariant, err = envInt(EnvSecondaryVariant, s.SecondaryVariant); err != nil {
		return err
	}
	if v := os.Getenv(EnvTimeout); v != "" {
		d, err := parseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvTimeout, err)
		}
		s.OCRTimeout = d
	}
	return nil
}

// Validate checks ranges and cross-references.
func (s *Settings) Validate() error {
	if strings.TrimSpace(s.OCRLanguage) == "" {
		return fmt.Errorf("ocr_language is required")
	}
	if s.SimilarityThreshold < 0 || s.SimilarityThreshold > 100 {
		return fmt.Errorf("similarity_threshold must be between 0 and 100, got %v", s.SimilarityThreshold)
	}
	if s.Concurrency < 1 || s.Concurrency > 64 {
		return fmt.Errorf("concurrency must be between 1 and 64, got %d", s.Concurrency)
	}
	if s.OCRTimeout < 0 {
		return fmt.Errorf("ocr_timeout must not be negative, got %s", s.OCRTimeout)
	}
	if s.PrimaryVariant < 0 || s.PrimaryVariant >= imaging.VariantCount {
		return fmt.Errorf("primary_variant must be between 0 and %d, got %d", imaging.VariantCount-1, s.PrimaryVariant)
	}
	if s.SecondaryVariant < 0 || s.SecondaryVariant >= imaging.VariantCount {
		return fmt.Errorf("secondary_variant must be between 0 and %d, got %d", imaging.VariantCount-1, s.SecondaryVariant)
	}
	if _, err := logrus.ParseLevel(s.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}

	seen := make(map[string]bool)
	for _, p := range s.CropPresets {
		if p.Name == "" {
			return fmt.Errorf("crop preset without a name")
		}
		if seen[p.Name] {
			return fmt.Errorf("duplicate crop preset %q", p.Name)
		}
		seen[p.Name] = true
		if err := p.Region.Validate(); err != nil {
			return fmt.Errorf("crop preset %q: %w", p.Name, err)
		}
	}
	if s.CropPreset != "" && !seen[s.CropPreset] {
		return fmt.Errorf("crop_preset %q is not defined in crop_presets", s.CropPreset)
	}
	return nil
}

// Preset returns the crop preset called name, or the default preset when
// name is empty.
func (s *Settings) Preset(name string) (imaging.CropPreset, bool) {
	if name == "" {
		name = s.CropPreset
	}
	for _, p := range s.CropPresets {
		if p.Name == name {
			return p, true
		}
	}
	return imaging.CropPreset{}, false
}

// SetPreset adds or replaces a crop preset. makeDefault also selects it.
func (s *Settings) SetPreset(p imaging.CropPreset, makeDefault bool) error {
	if p.Name == "" {
		return fmt.Errorf("crop preset without a name")
	}
	if err := p.Region.Validate(); err != nil {
		return err
	}

	replaced := false
	for i := range s.CropPresets {
		if s.CropPresets[i].Name == p.Name {
			s.CropPresets[i] = p
			replaced = true
		}
	}
	if !replaced {
		s.CropPresets = append(s.CropPresets, p)
	}
	if makeDefault {
		s.CropPreset = p.Name
	}
	return nil
}

// Save writes the settings to path as indented UTF-8 JSON. Non-ASCII text is
// written as is, not escaped.
func (s *Settings) Save(path string) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s); err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}
	return nil
}

// Level returns the parsed log level, falling back to info.
func (s *Settings) Level() logrus.Level {
	lvl, err := logrus.ParseLevel(s.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}

func envInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return def, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func envFloat(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return def, fmt.Errorf("%s must be a number, got %q", key, v)
	}
	return f, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
