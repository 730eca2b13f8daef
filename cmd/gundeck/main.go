package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/gundeck/internal/config"
	"git.home.luguber.info/inful/gundeck/internal/daemon"
	"git.home.luguber.info/inful/gundeck/internal/errors"
	"git.home.luguber.info/inful/gundeck/internal/locks"
	"git.home.luguber.info/inful/gundeck/internal/settings"
	"git.home.luguber.info/inful/gundeck/internal/version"
)

var CLI struct {
	Config  string `short:"c" help:"Configuration file path" default:"gundeck.yaml"`
	Verbose bool   `short:"v" help:"Enable verbose logging"`

	Serve struct {
		History string `help:"Task history database path" default:"gundeck-tasks.db"`
	} `cmd:"" help:"Run the dashboard API server"`

	Init struct {
		Force bool `help:"Overwrite existing configuration file"`
	} `cmd:"" help:"Write a starter configuration file"`

	Patch struct {
		Platform string   `short:"p" help:"Platform to patch (defaults to the configured default)"`
		P2       bool     `help:"Apply the pairs to the player-two settings"`
		Pairs    []string `arg:"" name:"key=value" help:"Settings to apply"`
	} `cmd:"" help:"Patch settings values directly in the live config file"`

	Version struct{} `cmd:"" help:"Print version information"`
}

func main() {
	ctx := kong.Parse(&CLI)

	logLevel := slog.LevelInfo
	if CLI.Verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	adapter := errors.NewCLIErrorAdapter(CLI.Verbose, logger)

	switch ctx.Command() {
	case "serve":
		cfg, err := config.Load(CLI.Config)
		if err != nil {
			adapter.HandleError(err)
		}
		adapter.HandleError(runServe(cfg, logger))
	case "init":
		adapter.HandleError(config.WriteStarter(CLI.Config, CLI.Init.Force))
		fmt.Printf("Wrote %s\n", CLI.Config)
	case "patch <key=value>":
		cfg, err := config.Load(CLI.Config)
		if err != nil {
			adapter.HandleError(err)
		}
		adapter.HandleError(runPatch(cfg))
	case "version":
		fmt.Printf("gundeck %s (commit %s, built %s)\n", version.Version, version.GitCommit, version.BuildTime)
	}
}

func runServe(cfg *config.Config, logger *slog.Logger) error {
	d, err := daemon.New(cfg, logger, daemon.Options{
		HistoryPath: CLI.Serve.History,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return d.Run(ctx)
}

func runPatch(cfg *config.Config) error {
	name := cfg.ResolvePlatform(CLI.Patch.Platform)
	platform, ok := cfg.Platforms[name]
	if !ok {
		return errors.ValidationError(fmt.Sprintf("unknown platform: %s", CLI.Patch.Platform))
	}

	pairs := make([]settings.KV, 0, len(CLI.Patch.Pairs))
	for _, raw := range CLI.Patch.Pairs {
		key, value, found := strings.Cut(raw, "=")
		if !found || key == "" {
			return errors.ValidationError(fmt.Sprintf("expected key=value, got %q", raw))
		}
		pairs = append(pairs, settings.KV{Key: key, Value: value})
	}

	patcher := settings.NewPatcher(locks.New())
	var player1, player2 []settings.KV
	if CLI.Patch.P2 {
		player2 = pairs
	} else {
		player1 = pairs
	}
	if err := patcher.Patch(platform.ConfigPath, player1, player2); err != nil {
		return err
	}
	fmt.Printf("Patched %d setting(s) in %s\n", len(pairs), platform.ConfigPath)
	return nil
}
