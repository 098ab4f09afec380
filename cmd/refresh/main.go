// Package main runs one refresh cycle over the tracked wallet roster and
// exits. Use it from cron or to backfill a single wallet by hand.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kol-dashboard/internal/app"
	"github.com/kol-dashboard/internal/config"
	"github.com/kol-dashboard/internal/logging"
	"github.com/kol-dashboard/internal/service"
	"github.com/kol-dashboard/internal/storage"
)

func main() {
	var (
		wallet  = flag.String("wallet", "", "Refresh only this roster address")
		timeout = flag.Duration("timeout", 30*time.Minute, "Abort the cycle after this long")
		asJSON  = flag.Bool("json", false, "Print the cycle report as JSON")
		flush   = flag.Bool("flush-prices", false, "Drop cached price quotes before the cycle")
	)
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logging.InitGlobalLoggerWithOptions(logging.Options{
		Level:      logging.ParseLogLevel(cfg.Logging.Level),
		Format:     logging.ParseLogFormat(cfg.Logging.Format),
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})
	logger := logging.GetGlobalLogger().WithField("component", "refresh")

	ctx, cancel := context.WithTimeout(logging.WithLogger(context.Background(), logger), *timeout)
	defer cancel()

	// Cancel the cycle on interrupt; partial wallets are never stored
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			logger.WithField("signal", sig.String()).Warn("Interrupted, cancelling refresh")
			cancel()
		case <-ctx.Done():
		}
	}()

	components, err := app.Build(ctx, cfg)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize components")
	}

	if *flush {
		if components.Cache == nil {
			logger.Warn("Redis is disabled, nothing to flush")
		} else if err := components.Cache.InvalidatePattern(ctx, string(storage.CacheKeyPrice)+":*"); err != nil {
			logger.WithError(err).Warn("Failed to flush cached prices")
		} else {
			logger.Info("Cached prices flushed")
		}
	}

	var report service.CycleReport
	if *wallet != "" {
		report, err = refreshOne(ctx, components.Refresh, *wallet)
		if err != nil {
			components.Close()
			logger.WithError(err).Fatal("Refresh failed")
		}
	} else {
		report = components.Refresh.RunCycle(ctx)
	}
	components.Close()

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			log.Fatalf("Failed to encode report: %v", err)
		}
	} else {
		printReport(report)
	}

	if len(report.Failed) > 0 {
		os.Exit(1)
	}
}

// refreshOne refreshes a single roster wallet and wraps the outcome in a report
func refreshOne(ctx context.Context, refresh *service.RefreshService, address string) (service.CycleReport, error) {
	for _, profile := range refresh.Roster() {
		if profile.Address != address {
			continue
		}
		report := service.CycleReport{
			CycleID:   "wallet:" + address,
			StartedAt: time.Now(),
			Succeeded: []service.WalletResult{},
			Failed:    []service.WalletFailure{},
		}
		result, err := refresh.RefreshWallet(ctx, profile)
		if err != nil {
			report.Failed = append(report.Failed, service.WalletFailure{Address: address, Error: err.Error()})
		} else {
			report.Succeeded = append(report.Succeeded, *result)
		}
		report.FinishedAt = time.Now()
		return report, nil
	}
	return service.CycleReport{}, fmt.Errorf("wallet %s is not in the roster", address)
}

func printReport(report service.CycleReport) {
	fmt.Printf("Refresh cycle %s finished in %s\n", report.CycleID, report.Duration().Round(time.Millisecond))
	for _, r := range report.Succeeded {
		fmt.Printf("  ok    %s  txs=%d trades=%d holdings=%d skipped=%d\n",
			r.Address, r.Transactions, r.Trades, r.Holdings, r.SkippedTxs)
	}
	for _, f := range report.Failed {
		fmt.Printf("  FAIL  %s  %s\n", f.Address, f.Error)
	}
}
