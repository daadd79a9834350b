package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"subvoice/internal/config"
	"subvoice/internal/history"
	"subvoice/internal/logging"
	"subvoice/internal/notifications"
	"subvoice/internal/preflight"
	"subvoice/internal/workspace"
)

// runEnv bundles what a convert or transcribe run shares.
type runEnv struct {
	cfg     *config.Config
	logger  *slog.Logger
	logPath string
	store   *history.Store
	ws      *workspace.Workspace
	notify  notifications.Service
	alerts  *notifications.Sink
	close   func()
}

// prepareRun sets up logging, history and the workspace for one run and
// performs startup housekeeping.
func (c *commandContext) prepareRun(ctx context.Context, kind string) (*runEnv, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	if failed := preflight.Failed(preflight.RunAll(ctx, cfg, preflight.Options{})); len(failed) > 0 {
		details := make([]string, 0, len(failed))
		for _, r := range failed {
			details = append(details, fmt.Sprintf("%s: %s", r.Name, r.Detail))
		}
		return nil, fmt.Errorf("preflight failed (run subvoice doctor): %s", strings.Join(details, "; "))
	}
	base, err := c.ensureLogger()
	if err != nil {
		return nil, err
	}
	logger, logPath, closeLog := c.runLogger(base, kind)

	store, err := c.openStore()
	if err != nil {
		closeLog()
		return nil, err
	}
	ws, err := c.workspace(logger)
	if err != nil {
		closeLog()
		return nil, err
	}

	closeInterruptedRuns(ctx, store, ws, logger)
	if cfg.Workspace.AutoCleanup {
		autoSweep(ctx, ws, cfg.Workspace.CleanupDays, logger)
	}
	notify := notifications.NewService(cfg)
	alerts := notifications.NewSink(notify, logger)
	return &runEnv{
		cfg:     cfg,
		logger:  logger,
		logPath: logPath,
		store:   store,
		ws:      ws,
		notify:  notify,
		alerts:  alerts,
		close: func() {
			alerts.Wait()
			closeLog()
		},
	}, nil
}

// notifyRun reports a finished run. Delivery failures only reach the log.
func (e *runEnv) notifyRun(ctx context.Context, run notifications.RunSummary) {
	if !notifications.Enabled(e.notify) {
		return
	}
	if err := e.notify.NotifyRunCompleted(context.WithoutCancel(ctx), run); err != nil {
		logging.WarnWithContext(e.logger, "run notification not delivered", "notification_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic"),
			logging.String(logging.FieldImpact, "no push notification for this run"),
		)
	}
}

// closeInterruptedRuns marks runs a crashed process left open. It does
// nothing while any job directory is locked, since another process may own
// those runs.
func closeInterruptedRuns(ctx context.Context, store *history.Store, ws *workspace.Workspace, logger *slog.Logger) {
	dirs, err := ws.List()
	if err != nil {
		logger.Debug("workspace listing failed; interrupted runs left open", logging.Error(err))
		return
	}
	for _, dir := range dirs {
		if dir.Locked {
			logger.Debug("workspace in use; interrupted runs left open", logging.String("dir", dir.Path))
			return
		}
	}
	closed, err := store.MarkInterrupted(ctx)
	if err != nil {
		logging.WarnWithContext(logger, "failed to close interrupted runs", "history_write_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check state_dir permissions"),
			logging.String(logging.FieldImpact, "history keeps showing old runs as running"),
		)
		return
	}
	if closed > 0 {
		logger.Info("closed interrupted runs",
			logging.String(logging.FieldEventType, "runs_interrupted"),
			logging.Int64("runs", closed),
		)
	}
}

// autoSweep removes stale job directories before a run.
func autoSweep(ctx context.Context, ws *workspace.Workspace, days int, logger *slog.Logger) {
	if days <= 0 {
		return
	}
	result := ws.Sweep(ctx, time.Duration(days)*24*time.Hour)
	for _, failure := range result.Errors {
		logging.WarnWithContext(logger, "stale work directory not removed", "sweep_failed",
			logging.String("path", failure.Path),
			logging.Error(failure.Error),
			logging.String(logging.FieldErrorHint, "remove the directory manually or run subvoice sweep"),
			logging.String(logging.FieldImpact, "disk space is not reclaimed"),
		)
	}
	if len(result.Removed) > 0 {
		logger.Info("swept stale work directories",
			logging.String(logging.FieldEventType, "workspace_swept"),
			logging.Int("removed", len(result.Removed)),
			logging.Int("locked", len(result.Locked)),
		)
	}
}
