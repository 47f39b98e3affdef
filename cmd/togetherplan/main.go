package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dukerupert/togetherplan/internal/backup"
	"github.com/dukerupert/togetherplan/internal/config"
	"github.com/dukerupert/togetherplan/internal/database"
	"github.com/dukerupert/togetherplan/internal/digest"
	"github.com/dukerupert/togetherplan/internal/email"
	"github.com/dukerupert/togetherplan/internal/logging"
	"github.com/dukerupert/togetherplan/internal/push"
	"github.com/dukerupert/togetherplan/internal/server"
)

func main() {
	genKeys := flag.Bool("gen-vapid-keys", false, "print a new VAPID key pair for Web Push and exit")
	listBackups := flag.Bool("list-backups", false, "list uploaded database snapshots and exit")
	restoreKey := flag.String("restore", "", "download and decrypt the snapshot with this key, then exit")
	restoreTo := flag.String("restore-to", "togetherplan-restored.db", "path the restored snapshot is written to")
	flag.Parse()

	if *genKeys {
		pub, priv, err := push.GenerateVAPIDKeys()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Printf("TOGETHERPLAN_VAPID_PUBLIC_KEY=%s\nTOGETHERPLAN_VAPID_PRIVATE_KEY=%s\n", pub, priv)
		return
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := logging.Setup(cfg.LogLevel)

	if *listBackups || *restoreKey != "" {
		if err := runBackupCommand(cfg, *listBackups, *restoreKey, *restoreTo, logger); err != nil {
			logger.Error("backup command failed", "error", err)
			os.Exit(1)
		}
		return
	}

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		logger.Error("failed to open database", "error", err, "path", cfg.DBPath)
		os.Exit(1)
	}
	defer db.Close()

	emailClient := email.NewClient(cfg.PostmarkToken, cfg.FromEmail, cfg.BaseURL)
	if !emailClient.Configured() {
		logger.Warn("postmark token not set, invitation and digest mail disabled")
	}

	srv, err := server.New(db, cfg, emailClient, logger)
	if err != nil {
		logger.Error("failed to build server", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv.Queue().Start(ctx)
	var digestSched *digest.Scheduler
	if emailClient.Configured() {
		digestSched = digest.NewScheduler(srv.Digest(), cfg.DigestInterval)
		digestSched.Start(ctx)
	}
	var backups *backup.Manager
	if cfg.BackupEnabled() {
		backups = backup.NewManager(backupConfig(cfg), db, logger.With("component", "backup"))
		backups.Start(ctx)
	}
	go cleanupLoop(ctx, srv, cfg.CleanupInterval, logger.With("component", "cleanup"))

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("togetherplan listening", "addr", httpServer.Addr, "base_url", cfg.BaseURL)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	if digestSched != nil {
		digestSched.Stop()
	}
	if backups != nil {
		backups.Stop()
	}
	srv.Queue().Stop()
}

func backupConfig(cfg *config.Config) backup.Config {
	return backup.Config{
		S3: backup.S3Config{
			Endpoint:  cfg.BackupS3Endpoint,
			Bucket:    cfg.BackupS3Bucket,
			Region:    cfg.BackupS3Region,
			AccessKey: cfg.BackupS3AccessKey,
			SecretKey: cfg.BackupS3SecretKey,
		},
		Passphrase: cfg.BackupPassphrase,
		Prefix:     cfg.BackupPrefix,
		Interval:   cfg.BackupInterval,
		Retention:  cfg.BackupRetention,
	}
}

// runBackupCommand lists or restores snapshots without opening the live database.
func runBackupCommand(cfg *config.Config, list bool, key, dst string, logger *slog.Logger) error {
	if !cfg.BackupEnabled() {
		return errors.New("backups are not configured: set TOGETHERPLAN_BACKUP_S3_BUCKET")
	}
	m := backup.NewManager(backupConfig(cfg), nil, logger.With("component", "backup"))
	ctx := context.Background()

	if list {
		snaps, err := m.List(ctx)
		if err != nil {
			return err
		}
		for _, s := range snaps {
			fmt.Printf("%s\t%d\t%s\n", s.CreatedAt.Format(time.RFC3339), s.Size, s.Key)
		}
		return nil
	}
	return m.Restore(ctx, key, dst)
}

// cleanupLoop prunes expired sessions and idle rate limiter buckets.
func cleanupLoop(ctx context.Context, srv *server.Server, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := srv.SessionStore().DeleteExpired(ctx)
			if err != nil {
				logger.Error("delete expired sessions", "error", err)
			} else if n > 0 {
				logger.Info("deleted expired sessions", "count", n)
			}
			srv.RateLimiter().Cleanup(interval)
		}
	}
}
