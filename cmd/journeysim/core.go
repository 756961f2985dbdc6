package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/bizobs/journeysim"
	"github.com/bizobs/journeysim/internal/config"
	"github.com/bizobs/journeysim/internal/logging"
	redisstore "github.com/bizobs/journeysim/pkg/adapters/redis"
	"github.com/spf13/cobra"
)

// buildCore assembles a Core from the config file and shared flags.
// The spawned worker binary is this binary in "worker" mode.
func buildCore(cmd *cobra.Command) (*journeysim.Core, config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, cfg, err
	}

	logger := logging.New(logLevel(cmd))
	slog.SetDefault(logger)

	executable := cfg.WorkerExecutable
	var args []string
	if executable == "" {
		self, err := os.Executable()
		if err != nil {
			return nil, cfg, fmt.Errorf("cannot resolve own executable: %w", err)
		}
		executable = self
		args = []string{"worker"}
	}

	opts := []journeysim.Option{
		journeysim.WithLogger(logger),
		journeysim.WithPortRange(cfg.Ports.Min, cfg.Ports.Max),
		journeysim.WithCallTimeout(cfg.Call.Timeout.Std()),
		journeysim.WithBreaker(cfg.Breaker.Threshold, cfg.Breaker.Cooldown.Std()),
		journeysim.WithHealthBudget(cfg.Health.Budget.Std()),
		journeysim.WithThinkTime(cfg.Journey.ThinkTime.Std()),
		journeysim.WithWorkerCommand(executable, args...),
		journeysim.WithMetrics(),
	}

	if cfg.Redis.Addr != "" {
		store := redisstore.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB,
			redisstore.WithTTL(cfg.Redis.TTL.Std()))
		opts = append(opts, journeysim.WithRecordStore(store))
	}

	core, err := journeysim.New(opts...)
	return core, cfg, err
}

func logLevel(cmd *cobra.Command) slog.Level {
	level, _ := cmd.Flags().GetString("log-level")
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
