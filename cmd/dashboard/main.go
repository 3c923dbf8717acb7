package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zanzhit/packing_dashboard/internal/broadcast"
	"github.com/zanzhit/packing_dashboard/internal/camera"
	"github.com/zanzhit/packing_dashboard/internal/config"
	"github.com/zanzhit/packing_dashboard/internal/domain/models"
	authhandler "github.com/zanzhit/packing_dashboard/internal/http-server/handlers/auth"
	camerahandler "github.com/zanzhit/packing_dashboard/internal/http-server/handlers/cameras"
	employeehandler "github.com/zanzhit/packing_dashboard/internal/http-server/handlers/employees"
	recordhandler "github.com/zanzhit/packing_dashboard/internal/http-server/handlers/records"
	sessionhandler "github.com/zanzhit/packing_dashboard/internal/http-server/handlers/session"
	wshandler "github.com/zanzhit/packing_dashboard/internal/http-server/handlers/ws"
	authmiddleware "github.com/zanzhit/packing_dashboard/internal/http-server/middleware/auth"
	"github.com/zanzhit/packing_dashboard/internal/http-server/middleware/logger"
	"github.com/zanzhit/packing_dashboard/internal/lib/sl"
	"github.com/zanzhit/packing_dashboard/internal/monitor"
	"github.com/zanzhit/packing_dashboard/internal/recorder"
	authservice "github.com/zanzhit/packing_dashboard/internal/services/auth"
	cameraservice "github.com/zanzhit/packing_dashboard/internal/services/cameras"
	"github.com/zanzhit/packing_dashboard/internal/services/employees"
	"github.com/zanzhit/packing_dashboard/internal/services/records"
	"github.com/zanzhit/packing_dashboard/internal/services/session"
	"github.com/zanzhit/packing_dashboard/internal/storage/postgres"
	authstorage "github.com/zanzhit/packing_dashboard/internal/storage/postgres/auth"
	employeestorage "github.com/zanzhit/packing_dashboard/internal/storage/postgres/employees"
	recordstorage "github.com/zanzhit/packing_dashboard/internal/storage/postgres/records"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func main() {
	cfg := config.MustLoad()

	log := setupLogger(cfg.Env)

	log.Info("starting packing dashboard", slog.String("env", cfg.Env))

	cfg.DB.Password = os.Getenv("POSTGRES_PASSWORD")
	if cfg.DB.Password == "" {
		panic("POSTGRES_PASSWORD is required")
	}

	storage, err := postgres.New(cfg.DB)
	if err != nil {
		panic(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	recordStorage := recordstorage.New(storage)
	employeeStorage := employeestorage.New(storage)
	authStorage := authstorage.New(storage)

	// the hub and the registry reference each other; the closure resolves
	// the registry after it is built
	var registry *session.Service

	hub := broadcast.New(log,
		func() any { return registry.Snapshot() },
		cfg.Broadcast.SnapshotInterval,
		cfg.Broadcast.ClientBuffer,
	)

	manager := camera.NewManager(log, camera.NewOpenCVSource, camera.Settings{
		FailureThreshold: cfg.Capture.FailureThreshold,
		RetryInterval:    cfg.Capture.RetryInterval,
		MaxRetryInterval: cfg.Capture.MaxRetryInterval,
	}, func(cameraID string, state models.ConnState, _ int) {
		registry.OnCameraState(cameraID, state)
	})

	recorderService := recorder.New(log, recordStorage, manager, recorder.NewOpenCVEncoder,
		cfg.VideosPath, cfg.Capture.FPS, cfg.Capture.FrameBuffer)

	registry = session.New(log, recorderService, manager, hub)

	if err := recorderService.Sweep(); err != nil {
		log.Error("orphan sweep failed", sl.Err(err))
	}

	for _, cam := range cfg.Cameras {
		manager.Add(models.Camera{
			CameraID: cam.ID,
			Name:     cam.Name,
			URL:      cam.URL,
			Enabled:  cam.Enabled,
		})
	}
	manager.StartAll(ctx)

	go hub.Run(ctx)

	resourceMonitor := monitor.New(log, hub, recorderService, cfg.VideosPath, cfg.Monitor.Interval, monitor.Limits{
		RAM:  cfg.Monitor.RAMLimit,
		CPU:  cfg.Monitor.CPULimit,
		Disk: cfg.Monitor.DiskLimit,
	})
	go resourceMonitor.Run(ctx)

	authService := authservice.New(log, authStorage, authStorage, cfg.TokenTTL, cfg.Secret)
	if err := authService.CreateInitialAdmin(); err != nil {
		log.Warn("initial admin not created", sl.Err(err))
	}
	cameraService := cameraservice.New(log, manager, 0)
	recordService := records.New(log, recordStorage)
	employeeService := employees.New(log, employeeStorage)

	authHandler := authhandler.New(log, authService)
	sessionHandler := sessionhandler.New(log, registry)
	cameraHandler := camerahandler.New(log, cameraService)
	recordHandler := recordhandler.New(log, recordService)
	employeeHandler := employeehandler.New(log, employeeService)
	wsHandler := wshandler.New(log, hub)

	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(logger.New(log))
	router.Use(middleware.Recoverer)
	router.Use(middleware.URLFormat)

	router.Post("/auth/login", authHandler.Login)
	router.Get("/ws", wsHandler)

	router.Group(func(r chi.Router) {
		r.Use(authmiddleware.JWTAuth(cfg.Secret))

		r.Route("/session", func(r chi.Router) {
			r.Post("/", sessionHandler.Create)
			r.Delete("/", sessionHandler.End)
			r.Get("/slots", sessionHandler.Slots)
			r.Post("/assign", sessionHandler.Assign)
			r.Post("/unassign", sessionHandler.Unassign)
			r.Post("/scan", sessionHandler.Scan)
			r.Post("/reset", sessionHandler.Reset)
			r.Post("/emergency-stop", sessionHandler.EmergencyStop)
		})

		r.Route("/cameras", func(r chi.Router) {
			r.Get("/", cameraHandler.List)
			r.Get("/{cameraID}", cameraHandler.Camera)
			r.Post("/{cameraID}/probe", cameraHandler.Probe)
			r.Post("/{cameraID}/restart", cameraHandler.Restart)
		})

		r.Route("/records", func(r chi.Router) {
			r.Get("/", recordHandler.List)
			r.Get("/stats/today", recordHandler.TodayStats)
			r.Get("/export", recordHandler.ExportCSV)
			r.Get("/{recordID}", recordHandler.Record)
		})

		r.Get("/employees", employeeHandler.List)

		// finalized videos are reviewed straight from disk
		r.Handle("/recordings/*", http.StripPrefix("/recordings/",
			http.FileServer(http.Dir(cfg.VideosPath))))

		r.Group(func(r chi.Router) {
			r.Use(authmiddleware.AdminRequired)

			r.Post("/auth/register", authHandler.RegisterNewUser)
			r.Post("/employees", employeeHandler.Create)
			r.Put("/employees/{employeeID}", employeeHandler.Update)
			r.Delete("/employees/{employeeID}", employeeHandler.Delete)
		})
	})

	srv := &http.Server{
		Addr:         cfg.Address,
		Handler:      router,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	go func() {
		log.Info("server started", slog.String("address", cfg.Address))

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server stopped", sl.Err(err))
		}
	}()

	<-ctx.Done()

	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("failed to shutdown server", sl.Err(err))
	}

	registry.Teardown()
	manager.StopAll()

	log.Info("stopped")
}

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	}

	return log
}
