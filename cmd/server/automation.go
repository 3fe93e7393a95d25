package main

import (
	"context"
	"time"

	"github.com/oremus-labs/ol-cvi-coach/internal/logutil"
	"github.com/oremus-labs/ol-cvi-coach/internal/session"
	"github.com/oremus-labs/ol-cvi-coach/internal/store"
)

type automationOptions struct {
	Store      *store.Store
	Sessions   session.Sweeper
	Interval   time.Duration
	HistoryTTL time.Duration
}

func startAutomation(ctx context.Context, opts automationOptions) {
	if opts.Interval <= 0 || (opts.Store == nil && opts.Sessions == nil) {
		return
	}
	logger := logutil.Component("automation")
	logger.Info().
		Dur("interval", opts.Interval).
		Dur("history_ttl", opts.HistoryTTL).
		Msg("starting automation loop")
	ticker := time.NewTicker(opts.Interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				runAutomationSweep(opts, time.Now().UTC())
			}
		}
	}()
}

func runAutomationSweep(opts automationOptions, now time.Time) {
	logger := logutil.Component("automation")
	if opts.Sessions != nil {
		if removed := opts.Sessions.Sweep(now); removed > 0 {
			logger.Info().Int("removed", removed).Msg("expired sessions dropped")
		}
	}
	if opts.Store != nil && opts.HistoryTTL > 0 {
		before := now.Add(-opts.HistoryTTL)
		removed, err := opts.Store.CleanupHistoryBefore(before)
		if err != nil {
			logger.Warn().Err(err).Msg("history cleanup failed")
		} else if removed > 0 {
			logger.Info().Int64("removed", removed).Msg("history entries purged")
		}
	}
}
