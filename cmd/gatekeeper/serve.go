package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/raidingdoncaster/Snorlax-Gatekeeper/internal/campfire"
	"github.com/raidingdoncaster/Snorlax-Gatekeeper/internal/config"
	"github.com/raidingdoncaster/Snorlax-Gatekeeper/internal/httpapi"
	"github.com/raidingdoncaster/Snorlax-Gatekeeper/internal/logging"
	"github.com/raidingdoncaster/Snorlax-Gatekeeper/internal/ocr"
	"github.com/raidingdoncaster/Snorlax-Gatekeeper/internal/passport"
	"github.com/raidingdoncaster/Snorlax-Gatekeeper/internal/session"
	"github.com/raidingdoncaster/Snorlax-Gatekeeper/internal/store"
	"github.com/raidingdoncaster/Snorlax-Gatekeeper/internal/store/memory"
	"github.com/raidingdoncaster/Snorlax-Gatekeeper/internal/store/postgres"
	"github.com/raidingdoncaster/Snorlax-Gatekeeper/internal/store/sheets"
	"github.com/raidingdoncaster/Snorlax-Gatekeeper/internal/uploads"
)

func runServe(ctx context.Context, level slog.Level) error {
	log := logging.NewJSON(level)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Error(ctx, "invalid configuration", "err", err)
		return err
	}

	rootCtx, cancelRoot := context.WithCancel(ctx)
	defer cancelRoot()

	table, closer, err := openTable(rootCtx, cfg, log)
	if err != nil {
		log.Error(ctx, "failed to init account store", "backend", cfg.StoreBackend, "err", err)
		return err
	}
	if closer != nil {
		defer closer()
	}

	up, err := openUploads(rootCtx, cfg)
	if err != nil {
		log.Error(ctx, "failed to init uploads", "backend", cfg.UploadBackend, "err", err)
		return err
	}

	if cfg.CampfireToken == "" {
		log.Warn(ctx, "CAMPFIRE_TOKEN not set, campfire pages will be unavailable")
	}

	sessions := session.NewManager(cfg.SecretKey, cfg.SessionTTL(), cfg.SecureCookies)
	svc := passport.NewService(store.NewAccounts(table), up, ocr.NewTesseract(cfg.TesseractPath), log)

	srv := httpapi.NewServer(cfg, httpapi.Deps{
		Passport: svc,
		Sessions: sessions,
		Uploads:  up,
		Campfire: campfire.New(cfg.CampfireToken, cfg.CampfireBaseURL),
		Logger:   log,
	})

	go runSessionSweepLoop(rootCtx, sessions, cfg.SessionSweepInterval(), log)

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info(ctx, "gatekeeper listening", "addr", cfg.ListenAddr(), "store", cfg.StoreBackend, "uploads", cfg.UploadBackend)
		errCh <- httpServer.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	var serveErr error
	select {
	case <-stop:
		log.Info(ctx, "shutdown requested")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Error(ctx, "server error", "err", err)
			serveErr = err
		}
	}

	cancelRoot()

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	_ = httpServer.Shutdown(ctxShutdown)
	return serveErr
}

// openTable picks the account table backend. The returned closer may be nil.
func openTable(ctx context.Context, cfg config.Config, log logging.Logger) (store.Table, func(), error) {
	switch cfg.StoreBackend {
	case config.StoreSheets:
		t, err := sheets.Open(ctx, []byte(cfg.ServiceAccountJSON), sheets.Options{
			SpreadsheetID:   cfg.SpreadsheetID,
			SpreadsheetName: cfg.SpreadsheetName,
		})
		if err != nil {
			return nil, nil, err
		}
		log.Info(ctx, "using sheets store", "spreadsheet_id", t.SpreadsheetID(), "sheet", t.SheetTitle())
		return t, nil, nil
	case config.StorePostgres:
		t, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		log.Info(ctx, "using postgres store")
		return t, func() { _ = t.Close() }, nil
	case config.StoreMemory:
		log.Warn(ctx, "using memory store, accounts are lost on restart")
		return memory.NewTable(), nil, nil
	default:
		return nil, nil, fmt.Errorf("%w: store %q", config.ErrUnknownBackend, cfg.StoreBackend)
	}
}

func openUploads(ctx context.Context, cfg config.Config) (uploads.Store, error) {
	switch cfg.UploadBackend {
	case config.UploadsDisk:
		d, err := uploads.NewDisk(cfg.UploadDir)
		if err != nil {
			return nil, err
		}
		return d, nil
	case config.UploadsS3:
		s, err := uploads.NewS3(ctx, uploads.S3Options{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
		})
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("%w: uploads %q", config.ErrUnknownBackend, cfg.UploadBackend)
	}
}

type sweeper interface {
	Sweep(now time.Time) int
}

func runSessionSweepLoop(ctx context.Context, s sweeper, interval time.Duration, log logging.Logger) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}

	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := s.Sweep(time.Now()); n > 0 {
				log.Debug(ctx, "expired sessions swept", "count", n)
			}
		}
	}
}
