package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/ironsheep/roster-ocr/internal/config"
	"github.com/ironsheep/roster-ocr/internal/ocr"
	"github.com/ironsheep/roster-ocr/internal/pipeline"
	"github.com/ironsheep/roster-ocr/internal/roster"
	"github.com/ironsheep/roster-ocr/internal/server"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// Exit codes
const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

func main() {
	// Handle --version and -v flags
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "--version", "-v", "version":
			fmt.Printf("roster-ocr %s\n", Version)
			fmt.Printf("  Build time: %s\n", BuildTime)
			fmt.Printf("  Git commit: %s\n", GitCommit)
			return
		case "--help", "-h", "help":
			printHelp()
			return
		}
	}

	os.Exit(run(os.Args[1:]))
}

func printHelp() {
	fmt.Println("roster-ocr - MCP server that turns guild roster screenshots into records")
	fmt.Println()
	fmt.Println("Usage: roster-ocr [options]")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  --config PATH      Settings file (default settings.json)")
	fmt.Println("  --open-csv PATH    Load an exported roster on startup")
	fmt.Println("  --new              Start with an empty roster")
	fmt.Println("  --project DIR      Open a project folder")
	fmt.Println("  --version, -v      Print version information")
	fmt.Println("  --help, -h         Print this help message")
	fmt.Println()
	fmt.Println("Environment variables (also read from .env):")
	fmt.Println("  ROSTER_OCR_LOG_LEVEL=debug          Enable debug logging")
	fmt.Println("  ROSTER_OCR_LANGUAGE=kor+eng         Tesseract language")
	fmt.Println("  ROSTER_OCR_NEURAL_COMMAND=\"...\"     Secondary OCR helper command")
	fmt.Println("  ROSTER_OCR_THRESHOLD=85             Auto-accept similarity")
	fmt.Println()
	fmt.Println("This server communicates via MCP protocol over stdin/stdout.")
}

type options struct {
	configPath string
	openCSV    string
	newRoster  bool
	project    string
}

func parseFlags(args []string) (options, error) {
	var o options
	fs := flag.NewFlagSet("roster-ocr", flag.ContinueOnError)
	fs.StringVar(&o.configPath, "config", config.DefaultPath, "settings file")
	fs.StringVar(&o.openCSV, "open-csv", "", "CSV roster to load")
	fs.BoolVar(&o.newRoster, "new", false, "start with an empty roster")
	fs.StringVar(&o.project, "project", "", "project folder")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if fs.NArg() > 0 {
		return o, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	if o.newRoster && o.openCSV != "" {
		return o, errors.New("--new and --open-csv are mutually exclusive")
	}
	return o, nil
}

func run(args []string) int {
	opts, err := parseFlags(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "roster-ocr: %v\n", err)
		return exitUsage
	}

	// Configure logging to stderr (stdout is for MCP protocol)
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if err := config.LoadEnvFile(".env"); err != nil {
		log.WithError(err).Warn("Ignoring .env file")
	}

	if opts.configPath != config.DefaultPath {
		if _, err := os.Stat(opts.configPath); err != nil {
			log.WithError(err).Error("Settings file not found")
			return exitUsage
		}
	}
	settings, err := config.Load(opts.configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load settings")
		return exitUsage
	}
	log.SetLevel(settings.Level())

	log.WithFields(logrus.Fields{
		"version": Version,
		"commit":  GitCommit,
		"built":   BuildTime,
	}).Debug("Roster OCR server starting")

	store, csvPath, err := openRoster(opts, settings, log)
	if err != nil {
		log.WithError(err).Error("Failed to open roster")
		return exitUsage
	}

	project, err := openProject(opts, settings, log)
	if err != nil {
		log.WithError(err).Error("Failed to open project")
		return exitUsage
	}

	primary, secondary, closeEngines := buildEngines(settings, log)
	defer closeEngines()

	srv := server.New(server.Config{
		Settings:     settings,
		SettingsPath: opts.configPath,
		Primary:      primary,
		Secondary:    secondary,
		Store:        store,
		CSVPath:      csvPath,
		Project:      project,
		Log:          log,
	})
	defer srv.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(ctx); err != nil {
		log.WithError(err).Error("Server error")
		return exitError
	}
	return exitOK
}

// openRoster picks the starting roster: --open-csv, then --new, then the
// settings default CSV when it exists, else an empty roster.
func openRoster(opts options, settings *config.Settings, log logrus.FieldLogger) (*roster.Store, string, error) {
	switch {
	case opts.openCSV != "":
		if _, err := os.Stat(opts.openCSV); err != nil {
			return nil, "", err
		}
		store, err := roster.OpenFile(opts.openCSV)
		if err != nil {
			return nil, "", err
		}
		log.WithField("path", opts.openCSV).WithField("records", store.Len()).Info("Roster loaded")
		return store, opts.openCSV, nil

	case opts.newRoster:
		return roster.NewStore(), "", nil

	case settings.DefaultCSVPath != "":
		if _, err := os.Stat(settings.DefaultCSVPath); err != nil {
			log.WithField("path", settings.DefaultCSVPath).Debug("Default CSV not present, starting empty")
			return roster.NewStore(), settings.DefaultCSVPath, nil
		}
		store, err := roster.OpenFile(settings.DefaultCSVPath)
		if err != nil {
			return nil, "", err
		}
		log.WithField("path", settings.DefaultCSVPath).WithField("records", store.Len()).Info("Roster loaded")
		return store, settings.DefaultCSVPath, nil
	}
	return roster.NewStore(), "", nil
}

// openProject opens --project, or the last opened project if it still
// exists.
func openProject(opts options, settings *config.Settings, log logrus.FieldLogger) (*pipeline.Project, error) {
	root := opts.project
	if root == "" {
		root = settings.LastOpenedProject
		if root == "" {
			return nil, nil
		}
		if info, err := os.Stat(root); err != nil || !info.IsDir() {
			log.WithField("root", root).Warn("Last opened project is gone")
			return nil, nil
		}
	}

	project, err := pipeline.OpenProject(root)
	if err != nil {
		return nil, err
	}
	log.WithField("root", root).Info("Project opened")
	return project, nil
}

// buildEngines creates the Tesseract primary engine and the neural
// secondary engine, each bounded by the configured timeout.
func buildEngines(settings *config.Settings, log *logrus.Logger) (ocr.Engine, ocr.Engine, func()) {
	tess := ocr.NewTesseract(settings.OCRLanguage)
	tess.TessdataPrefix = settings.TessdataPrefix

	var factory ocr.DetectorFactory
	if len(settings.NeuralCommand) > 0 {
		factory = ocr.ProcessFactory(settings.NeuralCommand, settings.NeuralLanguages, log)
	} else {
		log.Warn("neural_command is not set; secondary OCR will fail until it is configured")
	}
	neural := ocr.NewNeural(factory, log)

	timeout := settings.OCRTimeout.Std()
	closeEngines := func() {
		if err := neural.Close(); err != nil {
			log.WithError(err).Warn("Failed to stop neural OCR helper")
		}
	}
	return ocr.WithTimeout(tess, timeout), ocr.WithTimeout(neural, timeout), closeEngines
}
