package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"studiplan/internal/aggregate"
	"studiplan/internal/config"
	appLog "studiplan/internal/log"
	"studiplan/internal/model"
	"studiplan/internal/notify"
	"studiplan/internal/plan"
	"studiplan/internal/refresh"
	"studiplan/internal/sched"
	"studiplan/internal/snapshot"
	"studiplan/internal/source"
	"studiplan/internal/web"
)

// flagConfig holds CLI flag values.
type flagConfig struct {
	configPath string
	listen     string
	once       bool
}

func main() {
	appLog.Info("studiplan starting", "version", "0.1.0")

	flags := parseFlags()

	// Secrets live in the environment; a local .env is optional.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		appLog.Warn("failed to load .env file", "error", err)
	}

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	conf.ApplyEnv()

	// CLI --listen overrides config file listen if provided.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}

	appLog.Info("effective config",
		"listen", conf.Listen,
		"timezone", conf.Timezone,
		"semester", conf.Semester,
		"horizon_days", conf.HorizonDays,
		"ics_count", len(conf.ICS),
		"mail_configured", conf.Mail.APIKey != "",
		"once", flags.once,
	)

	store, err := snapshot.Open(conf.DataPath)
	if err != nil {
		appLog.Error("failed to open snapshot store", err, "path", conf.DataPath)
		os.Exit(1)
	}
	defer store.Close()

	loc := conf.Location()
	semStart := conf.SemesterStart("")

	// All configured ICS subscriptions feed the timetable family. The
	// materials family has no network source here and runs on its demo
	// dataset until one is added.
	adapters := make([]source.Adapter, 0, len(conf.ICS))
	for _, ics := range conf.ICS {
		adapters = append(adapters, source.NewICSAdapter(source.Feed{
			ID:       ics.ID,
			URL:      ics.URL,
			Platform: ics.Platform,
		}, conf.CacheDir, loc, conf.HorizonDays))
	}

	timetableAgg := aggregate.New(adapters, func() []model.Event {
		return source.DemoTimetable(semStart)
	})
	materialsAgg := aggregate.New(nil, func() []model.Event {
		return source.DemoMaterialSet(semStart)
	})

	mailer := notify.NewMailer(conf.Mail)

	timetable := refresh.New(model.FamilyTimetable, store, timetableAgg, mailer.SendChangeMail)
	materials := refresh.New(model.FamilyMaterials, store, materialsAgg, nil)

	exams := plan.NewService(store)

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	if flags.once {
		runOnce(ctx, timetable, materials)
		return
	}

	scheduler, err := sched.Start(sched.Deps{
		Timetable: timetable,
		Materials: materials,
		Mailer:    mailer,
		Store:     store,
		Schedules: conf.Schedules,
	})
	if err != nil {
		appLog.Error("failed to start scheduler", err)
		os.Exit(1)
	}
	defer scheduler.Stop()

	server := web.NewServer(conf, store, exams, timetable, materials, mailer)
	httpServer := &http.Server{
		Addr:              conf.Listen,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		appLog.Info("HTTP server listening", "addr", conf.Listen)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLog.Error("HTTP server failed", err)
			cancel()
		}
	}()

	// Warm both snapshots in the background so the first API hit does
	// not have to wait for the demo seed path.
	go func() {
		if _, err := timetable.Refresh(ctx, false); err != nil {
			appLog.Warn("initial timetable refresh failed", "error", err)
		}
		if _, err := materials.Refresh(ctx, false); err != nil {
			appLog.Warn("initial materials refresh failed", "error", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		appLog.Error("HTTP server shutdown failed", err)
	}
	appLog.Info("studiplan exiting")
}

// runOnce refreshes both families and exits; used for cron-style
// invocation without the long-running daemon.
func runOnce(ctx context.Context, timetable, materials *refresh.Coordinator) {
	if _, err := timetable.Refresh(ctx, false); err != nil {
		appLog.Error("timetable refresh failed", err)
	}
	if _, err := materials.Refresh(ctx, false); err != nil {
		appLog.Error("materials refresh failed", err)
	}
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "./config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Refresh both snapshot families once and exit")

	flag.Parse()

	return cfg
}
