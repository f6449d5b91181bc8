package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"

	"github.com/codebuildervaibhav/video-enhancer/internal/cleanup"
	"github.com/codebuildervaibhav/video-enhancer/internal/config"
	"github.com/codebuildervaibhav/video-enhancer/internal/controller"
	"github.com/codebuildervaibhav/video-enhancer/internal/handlers"
	"github.com/codebuildervaibhav/video-enhancer/internal/queue"
	"github.com/codebuildervaibhav/video-enhancer/internal/remote"
	"github.com/codebuildervaibhav/video-enhancer/internal/selector"
	"github.com/codebuildervaibhav/video-enhancer/internal/storage"
	"github.com/codebuildervaibhav/video-enhancer/internal/types"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config/config.yaml", "path to the YAML config file")
	filePath := flag.String("file", "", "enhance this video from the terminal and exit")
	model := flag.String("model", "", "upscaling model (defaults to default_model)")
	driveLogin := flag.Bool("drive-login", false, "authorize Google Drive export and exit")
	verbose := flag.Bool("v", false, "print logs to stderr in terminal mode")
	flag.Parse()

	terminalMode := *filePath != ""

	logBuffer := NewLogBuffer()
	if terminalMode && !*verbose {
		log.SetOutput(logBuffer)
	} else {
		log.SetOutput(io.MultiWriter(os.Stderr, logBuffer))
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *driveLogin {
		if err := storage.LoginDrive(ctx, cfg.GoogleDrive.CredentialsFile, cfg.GoogleDrive.TokenFile); err != nil {
			fmt.Fprintf(os.Stderr, "Google Drive login failed: %v\n", err)
			return 1
		}
		fmt.Println("Google Drive token saved to", cfg.GoogleDrive.TokenFile)
		return 0
	}

	if err := cleanup.EnsureDirs(cfg.Storage.TempDir, cfg.Storage.OutputDir); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create directories: %v\n", err)
		return 1
	}

	log.Println("[main] initializing components...")

	client, err := remote.NewClient(cfg.Backend.BaseURL, remote.Endpoints{
		Upload: cfg.Backend.UploadPath,
		Start:  cfg.Backend.StartPath,
		Status: cfg.Backend.StatusPath,
		Cancel: cfg.Backend.CancelPath,
	}, nil, cfg.Timeout())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid backend configuration: %v\n", err)
		return 1
	}

	db, err := storage.NewHistoryDB(cfg.Storage.Database)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize database: %v\n", err)
		return 1
	}
	defer db.Close()

	var localStorage *storage.LocalStorage
	if cfg.Storage.Download {
		localStorage = storage.NewLocalStorage(cfg.Storage.OutputDir, nil)
	}

	// Google Drive export is optional and needs a downloaded copy
	var exporter storage.Exporter
	switch {
	case !cfg.GoogleDrive.Enabled:
	case localStorage == nil:
		log.Println("[main] Google Drive export needs storage.download_results - saving history only")
	default:
		driveClient, err := storage.NewDriveClient(ctx,
			cfg.GoogleDrive.CredentialsFile,
			cfg.GoogleDrive.TokenFile,
			cfg.GoogleDrive.FolderName,
		)
		if err != nil {
			log.Printf("[main] WARNING: Google Drive not available: %v", err)
			log.Println("[main] results will only be saved locally")
		} else {
			exporter = driveClient
			log.Println("[main] Google Drive integration enabled")
		}
	}

	archiver := storage.NewArchiver(db, localStorage, exporter, 0)
	workerPool := queue.NewWorkerPool(cfg.Workers.Count, archiver)
	workerPool.Start()
	// runs before db.Close so queued jobs are archived first
	defer workerPool.Stop()

	opts := controller.Options{
		PollInterval: cfg.PollInterval(),
		Origin:       client.BaseURL(),
		DefaultModel: cfg.DefaultModel,
		LegacyReset:  cfg.Polling.LegacyReset,
		Recorder:     workerPool,
	}

	if terminalMode {
		return runTerminal(ctx, cfg, client, opts, *filePath, *model)
	}
	return runCompanion(ctx, cfg, client, opts, db, logBuffer)
}

// runTerminal enhances one file and reports the outcome as the exit code
func runTerminal(ctx context.Context, cfg *config.Config, client *remote.Client, opts controller.Options, path, model string) int {
	if model == "" {
		model = cfg.DefaultModel
	}
	if !knownModel(cfg.Models, model) {
		fmt.Fprintf(os.Stderr, "Unknown model %q\n", model)
		return 2
	}

	cleanupScheduler := startCleanup(cfg, nil)
	defer cleanupScheduler.Stop()

	view := NewTerminalView(os.Stdout)
	ctrl := controller.New(client, view, view, opts)
	defer ctrl.Close()

	file, err := selector.FromPath(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if err := ctrl.SelectFile(file); err != nil {
		return 1
	}

	if err := ctrl.Enhance(ctx, model); err != nil {
		fmt.Println()
		return exitCode(ctrl.State(), err)
	}

	state, err := ctrl.Wait(ctx)
	if errors.Is(err, context.Canceled) {
		cancelCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		ctrl.Cancel(cancelCtx)
	}
	fmt.Println()
	return exitCode(state, err)
}

// exitCode maps the outcome of a terminal run to a process exit status
func exitCode(state controller.State, err error) int {
	switch {
	case errors.Is(err, context.Canceled):
		return 130
	case err != nil:
		return 1
	case state != controller.StateCompleted:
		return 1
	}
	return 0
}

// runCompanion serves the page-facing HTTP and websocket API until interrupted
func runCompanion(ctx context.Context, cfg *config.Config, client *remote.Client, opts controller.Options, db *storage.HistoryDB, logBuffer *LogBuffer) int {
	opts.Release = func(f selector.File) {
		if err := selector.Unstage(f, cfg.Storage.TempDir); err != nil {
			log.Printf("[main] %v", err)
		}
	}
	hub := handlers.NewHub()
	ctrl := controller.New(client, hub, hub, opts)
	defer ctrl.Close()

	// the current selection is staged in temp_dir and must outlive max_age_hours
	cleanupScheduler := startCleanup(cfg, func(path string) bool {
		return path == ctrl.SelectedPath()
	})
	defer cleanupScheduler.Stop()

	app := fiber.New(fiber.Config{
		// oversized selections must reach validation to get the proper message
		BodyLimit: int(2 * types.MaxUploadBytes),
	})

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept",
	}))

	controlHandler := handlers.NewControlHandler(ctx, ctrl, cfg.Models, cfg.DefaultModel)
	selectHandler := handlers.NewSelectHandler(ctrl, cfg.Storage.TempDir)
	historyHandler := handlers.NewHistoryHandler(db)
	streamHandler := handlers.NewStreamHandler(hub, ctrl)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "healthy",
			"version": "1.0.0",
			"backend": client.BaseURL().String(),
		})
	})

	app.Get("/models", controlHandler.Models)
	app.Get("/state", controlHandler.State)
	app.Post("/select", selectHandler.Handle)
	app.Post("/enhance", controlHandler.Enhance)
	app.Post("/cancel", controlHandler.Cancel)
	app.Post("/reset", controlHandler.Reset)
	app.Get("/history", historyHandler.List)
	app.Get("/history/:id", historyHandler.Get)
	app.Static("/outputs", cfg.Storage.OutputDir)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(streamHandler.Handle))

	app.Get("/logs", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"logs": logBuffer.GetLogs(),
		})
	})

	addr := cfg.Addr()
	log.Printf("[main] companion starting on %s (backend %s)", addr, client.BaseURL())
	log.Println("[main] endpoints:")
	log.Println("   POST /select   - Choose a video (multipart field \"file\")")
	log.Println("   POST /enhance  - Upload and start enhancement")
	log.Println("   POST /cancel   - Cancel the running job")
	log.Println("   POST /reset    - Clear the selection")
	log.Println("   GET  /state    - Current controller state")
	log.Println("   GET  /models   - Available models")
	log.Println("   GET  /ws       - Live view updates")
	log.Println("   GET  /history  - Past jobs")
	log.Println("   GET  /logs     - View client logs")
	log.Println("   GET  /health   - Health check")

	go func() {
		<-ctx.Done()
		log.Println("[main] shutting down gracefully...")
		app.Shutdown()
	}()

	if err := app.Listen(addr); err != nil {
		log.Printf("[main] server failed: %v", err)
		return 1
	}
	return 0
}

// startCleanup starts pruning temp_dir and, when configured, downloaded results.
// keep protects files in temp_dir from the sweep.
func startCleanup(cfg *config.Config, keep func(path string) bool) *cleanup.Scheduler {
	targets := []cleanup.Target{{
		Dir:    cfg.Storage.TempDir,
		MaxAge: time.Duration(cfg.Cleanup.MaxAgeHours) * time.Hour,
		Keep:   keep,
	}}
	if cfg.Cleanup.ResultsMaxAgeHours > 0 {
		targets = append(targets, cleanup.Target{
			Dir:    cfg.Storage.OutputDir,
			MaxAge: time.Duration(cfg.Cleanup.ResultsMaxAgeHours) * time.Hour,
		})
	}
	s := cleanup.NewScheduler(time.Duration(cfg.Cleanup.IntervalMinutes)*time.Minute, targets...)
	s.Start()
	return s
}

func knownModel(models []types.ModelOption, model string) bool {
	for _, m := range models {
		if m.Value == model {
			return true
		}
	}
	return false
}
