// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Command shellwatch watches outbound connection attempts and process
// activity for reverse shell indicators.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"grimm.is/shellwatch/internal/agent"
	"grimm.is/shellwatch/internal/config"
	"grimm.is/shellwatch/internal/errors"
	"grimm.is/shellwatch/internal/logging"
)

const usage = `Usage: shellwatch [-config path] <command>

Commands:
  run              start the agent (default)
  validate         load the config and print the effective settings
  replay <file>    run a pcap or pcapng capture through the detector
  history          print persisted alerts (-limit N, -type name)
`

func main() {
	configPath := flag.String("config", "", "Path to HCL config file")
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	args := flag.Args()
	subcmd := "run"
	if len(args) > 0 {
		subcmd = args[0]
	}

	var err error
	switch subcmd {
	case "run":
		err = runAgent(*configPath)
	case "validate":
		err = runValidate(*configPath, os.Stdout)
	case "replay":
		if len(args) < 2 {
			flag.Usage()
			os.Exit(2)
		}
		err = runReplay(*configPath, args[1], os.Stdout, os.Stderr)
	case "history":
		err = runHistory(*configPath, args[1:], os.Stdout)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", subcmd)
		flag.Usage()
		os.Exit(2)
	}

	if err != nil {
		args := []any{"error", err, "kind", errors.GetKind(err).String()}
		for k, v := range errors.GetAttributes(err) {
			args = append(args, k, v)
		}
		logging.Error("shellwatch failed", args...)
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.DefaultConfig(), nil
	}
	return config.LoadFile(path)
}

func runAgent(path string) error {
	cfg, err := loadConfig(path)
	if err != nil {
		return err
	}

	logger, closeLog, err := agent.NewLogger(cfg.Log, os.Stderr)
	if err != nil {
		return err
	}
	defer closeLog()
	logging.SetDefault(logger)

	a, err := agent.New(path, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return a.Run(ctx)
}
