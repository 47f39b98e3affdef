// Command bestdate mails event creators the best date of events created
// yesterday (UTC), or on the day given with -day.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dukerupert/togetherplan/internal/config"
	"github.com/dukerupert/togetherplan/internal/database"
	"github.com/dukerupert/togetherplan/internal/digest"
	"github.com/dukerupert/togetherplan/internal/email"
	"github.com/dukerupert/togetherplan/internal/logging"
	"github.com/dukerupert/togetherplan/internal/store"
)

func main() {
	dayFlag := flag.String("day", "", "day to process as YYYY-MM-DD (default yesterday, UTC)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logging.Setup("info").Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := logging.Setup(cfg.LogLevel)

	day := time.Now().UTC().AddDate(0, 0, -1)
	if *dayFlag != "" {
		day, err = time.Parse(time.DateOnly, *dayFlag)
		if err != nil {
			logger.Error("invalid -day", "error", err, "day", *dayFlag)
			os.Exit(2)
		}
	}

	emailClient := email.NewClient(cfg.PostmarkToken, cfg.FromEmail, cfg.BaseURL)
	if !emailClient.Configured() {
		logger.Error("postmark token not set, nothing to send")
		os.Exit(1)
	}

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		logger.Error("failed to open database", "error", err, "path", cfg.DBPath)
		os.Exit(1)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runner := digest.NewRunner(store.NewEventStore(db), store.NewUserStore(db), store.NewDigestStore(db), emailClient, logger.With("component", "digest"))
	sent, err := runner.Run(ctx, day)
	if err != nil {
		logger.Error("best date digest finished with errors", "error", err, "sent", sent)
		os.Exit(1)
	}
	logger.Info("best date digest sent", "sent", sent)
}
