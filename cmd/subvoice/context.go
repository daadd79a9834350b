package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"subvoice/internal/config"
	"subvoice/internal/history"
	"subvoice/internal/logging"
	"subvoice/internal/workspace"
)

// runLogDir holds one JSON log per convert or transcribe run.
const runLogDir = "runs"

type commandContext struct {
	configFlag   *string
	logLevelFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger
	loggerErr  error

	storeMu sync.Mutex
	store   *history.Store
}

func newCommandContext(configFlag, logLevelFlag *string) *commandContext {
	return &commandContext{
		configFlag:   configFlag,
		logLevelFlag: logLevelFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// configPath is the --config value, empty when the default lookup applies.
func (c *commandContext) configPath() string {
	if c.configFlag == nil {
		return ""
	}
	return strings.TrimSpace(*c.configFlag)
}

// ensureLogger builds the process logger from config, honoring --log-level.
func (c *commandContext) ensureLogger() (*slog.Logger, error) {
	c.loggerOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.loggerErr = err
			return
		}
		effective := *cfg
		if c.logLevelFlag != nil && strings.TrimSpace(*c.logLevelFlag) != "" {
			effective.Logging.Level = strings.ToLower(strings.TrimSpace(*c.logLevelFlag))
		}
		logger, err := logging.NewFromConfig(&effective)
		if err != nil {
			c.loggerErr = fmt.Errorf("init logger: %w", err)
			return
		}
		c.logger = logger
	})
	return c.logger, c.loggerErr
}

// openStore opens the history database once per invocation.
func (c *commandContext) openStore() (*history.Store, error) {
	c.storeMu.Lock()
	defer c.storeMu.Unlock()
	if c.store != nil {
		return c.store, nil
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	store, err := history.Open(cfg.HistoryPath())
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	c.store = store
	return store, nil
}

func (c *commandContext) workspace(logger *slog.Logger) (*workspace.Workspace, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return workspace.New(cfg.Paths.WorkDir, logger), nil
}

func (c *commandContext) close() {
	c.storeMu.Lock()
	defer c.storeMu.Unlock()
	if c.store != nil {
		_ = c.store.Close()
		c.store = nil
	}
}

// runLogger mirrors logger into a JSON file under <log_dir>/runs for the
// duration of one run and prunes run logs past retention. The returned
// closer must be called when the run ends.
func (c *commandContext) runLogger(logger *slog.Logger, kind string) (*slog.Logger, string, func()) {
	cfg, err := c.ensureConfig()
	if err != nil || strings.TrimSpace(cfg.Paths.LogDir) == "" {
		return logger, "", func() {}
	}
	dir := filepath.Join(cfg.Paths.LogDir, runLogDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		logging.WarnWithContext(logger, "run log directory unavailable", "run_log_unavailable",
			logging.String("path", dir),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check log_dir permissions"),
			logging.String(logging.FieldImpact, "this run is only logged to the main log"),
		)
		return logger, "", func() {}
	}
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays, logging.RetentionTarget{Dir: dir, Pattern: "*.log"})

	path := filepath.Join(dir, fmt.Sprintf("%s-%s.log", time.Now().Format("20060102T150405"), kind))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		logging.WarnWithContext(logger, "run log unavailable", "run_log_unavailable",
			logging.String("path", path),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check log_dir permissions"),
			logging.String(logging.FieldImpact, "this run is only logged to the main log"),
		)
		return logger, "", func() {}
	}
	tee := logging.TeeLogger(logger, logging.NewJSONHandler(file, slog.LevelDebug, false))
	return tee, path, func() { _ = file.Close() }
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}

func (c *commandContext) configValue() *config.Config {
	cfg, _ := c.ensureConfig()
	return cfg
}
