// Image crop engine: fyne crop window or headless batch transform

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/theme"
	"github.com/sirupsen/logrus"

	"image-crop-engine/internal/bridge"
	"image-crop-engine/internal/config"
	"image-crop-engine/internal/core"
	"image-crop-engine/internal/display"
	"image-crop-engine/internal/gui"
	"image-crop-engine/internal/loader"
	"image-crop-engine/internal/raster"
)

const (
	AppName    = "Image Crop Engine"
	AppID      = "com.imagecrop.engine"
	AppVersion = "1.0.0"
)

func main() {
	debugMode := flag.Bool("debug", false, "Enable debug mode with verbose logging")
	configPath := flag.String("config", "", "Path to a TOML config file")
	backend := flag.String("backend", "", "Raster backend: opencv or native (overrides config)")
	source := flag.String("source", "", "Image locator to load on start")
	ops := flag.String("ops", "", "Headless mode: comma separated cw,ccw,fh,fv,reset applied to -source")
	out := flag.String("out", "", "Headless mode: directory for the saved crop")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if *backend != "" {
		cfg.Raster.Backend = raster.Backend(*backend)
	}
	if *debugMode {
		cfg.Log.Level = "debug"
		cfg.Log.Format = "text"
		cfg.Debug.Memory = true
		cfg.Debug.VerifyReset = true
	}
	if *out != "" {
		cfg.Save.CacheDir = *out
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger := initLogger(cfg.Log)
	logger.WithFields(logrus.Fields{
		"version": AppVersion,
		"backend": cfg.Raster.Backend,
		"debug":   *debugMode,
	}).Info("Starting " + AppName)

	headless := *ops != "" || *out != ""
	if headless {
		if err := runBatch(cfg, logger, *source, *ops); err != nil {
			logger.WithError(err).Error("Batch run failed")
			os.Exit(1)
		}
		return
	}
	runGUI(cfg, logger, *source)
}

type services struct {
	engine  *core.Engine
	manager *bridge.Manager
	ledger  *raster.Ledger
}

func newServices(cfg config.Config, logger *logrus.Logger, onReady core.ReadyFunc, listener bridge.Listener) (*services, error) {
	src, err := loader.New(cfg.Loader, cfg.Raster.Backend, logger)
	if err != nil {
		return nil, err
	}
	enc, err := loader.NewEncoder(cfg.Raster.Backend)
	if err != nil {
		return nil, err
	}

	s := &services{}
	engineOpts := []core.Option{
		core.WithReadyListener(onReady),
		core.WithResetVerification(cfg.Debug.VerifyReset),
	}
	if cfg.Debug.Memory {
		s.ledger = raster.NewLedger(logger)
		engineOpts = append(engineOpts, core.WithLedger(s.ledger))
	}
	s.engine = core.NewEngine(src, logger, engineOpts...)
	s.manager = bridge.NewManager(s.engine, enc, cfg.Save, listener, logger)
	return s, nil
}

func (s *services) close(logger logrus.FieldLogger) {
	s.engine.Close()
	if s.ledger == nil {
		return
	}
	s.ledger.LogSummary()
	if err := s.ledger.Check(); err != nil {
		logger.WithError(err).Error("Buffer ledger mismatch")
		return
	}
	logger.WithField("allocated", s.ledger.Allocated()).Debug("All buffers released")
}

func runGUI(cfg config.Config, logger *logrus.Logger, source string) {
	fyneApp := app.NewWithID(AppID)
	fyneApp.SetIcon(theme.DocumentIcon())

	var window *gui.Application
	s, err := newServices(cfg, logger,
		func(id core.InstanceID, err error) {
			if window != nil {
				window.OnImageReady(id, err)
			}
		},
		bridge.ListenerFunc(func(id core.InstanceID, ev bridge.ImageSaved) {
			if window != nil {
				window.OnImageSaved(id, ev)
			}
		}))
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialise")
	}

	window = gui.NewApplication(fyneApp, s.engine, s.manager, logger)
	if source != "" {
		window.LoadSource(source)
	}
	window.ShowAndRun()

	s.close(logger)
	logger.Info("Application shutting down gracefully")
}

// runBatch applies ops to source without a window and saves the full frame.
func runBatch(cfg config.Config, logger *logrus.Logger, source, ops string) error {
	if source == "" {
		return fmt.Errorf("-source is required in headless mode")
	}

	s, err := newServices(cfg, logger, nil, bridge.ListenerFunc(func(_ core.InstanceID, ev bridge.ImageSaved) {
		fmt.Println(ev.URI)
	}))
	if err != nil {
		return err
	}
	defer s.close(logger)

	const id core.InstanceID = 1
	ctx := context.Background()
	s.manager.Mount(id, display.NewHeadless(logger))

	if err := <-s.manager.SetSourceURL(ctx, id, source); err != nil {
		return err
	}

	for _, op := range strings.Split(ops, ",") {
		op = strings.TrimSpace(op)
		if op == "" {
			continue
		}
		cmd, args, err := parseOp(op)
		if err != nil {
			return err
		}
		if err := s.manager.ReceiveCommand(ctx, id, cmd, args); err != nil {
			return err
		}
	}

	_, err = s.manager.Save(id, cfg.Save.PreserveTransparency, cfg.Save.Quality)
	return err
}

func parseOp(op string) (bridge.Command, []any, error) {
	switch op {
	case "cw":
		return bridge.RotateImage, []any{true}, nil
	case "ccw":
		return bridge.RotateImage, []any{false}, nil
	case "fh":
		return bridge.FlipImageHorizontally, nil, nil
	case "fv":
		return bridge.FlipImageVertically, nil, nil
	case "reset":
		return bridge.ResetImage, nil, nil
	default:
		cmd, err := bridge.ParseCommand(op)
		return cmd, nil, err
	}
}

// initLogger initializes the logger with appropriate level
func initLogger(cfg config.LogConfig) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.Format == "text" {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
			ForceColors:   true,
		})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}
	logger.Debug("Debug logging enabled")
	return logger
}
