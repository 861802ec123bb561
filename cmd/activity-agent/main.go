// activity-agent watches the foreground window, reads the text on screen and
// classifies what the user is working on. Results are stored in a local
// SQLite database and published on an in-process event bus.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	_ "go.uber.org/automaxprocs"
	"jordanella.com/activity-agent/internal/config"
)

type options struct {
	configPath  string
	logLevel    string
	metricsAddr string
	once        bool
	writeConfig bool
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var opts options

	flagSet := pflag.NewFlagSet("activity-agent", pflag.ContinueOnError)
	flagSet.StringVarP(&opts.configPath, "config", "c", config.DefaultPath, "path to agent.ini")
	flagSet.StringVar(&opts.logLevel, "log-level", "", "override [Logging] Level (DEBUG, INFO, WARN, ERROR)")
	flagSet.StringVar(&opts.metricsAddr, "metrics-addr", "", "override [Metrics] Address; \"off\" disables the endpoint")
	flagSet.BoolVar(&opts.once, "once", false, "capture and classify a single frame, print the result and exit")
	flagSet.BoolVar(&opts.writeConfig, "write-config", false, "write the effective config to --config and exit")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			printHelp(flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}
	if args := flagSet.Args(); len(args) > 0 {
		return fmt.Errorf("unexpected argument: %s", args[0])
	}

	cfg, err := config.LoadOrDefault(opts.configPath)
	if err != nil {
		return err
	}
	applyFlags(cfg, opts)

	if opts.writeConfig {
		if err := config.SaveToINI(cfg, opts.configPath); err != nil {
			return err
		}
		fmt.Printf("Wrote %s\n", opts.configPath)
		return nil
	}

	a, err := newAgent(cfg, opts.configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	if opts.once {
		return a.RunOnce(context.Background(), os.Stdout)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	return a.Run(ctx)
}

func applyFlags(cfg *config.Config, opts options) {
	if opts.logLevel != "" {
		cfg.Logging.Level = opts.logLevel
	}
	switch opts.metricsAddr {
	case "":
	case "off":
		cfg.Metrics.Enabled = false
	default:
		cfg.Metrics.Enabled = true
		cfg.Metrics.Address = opts.metricsAddr
	}
	if opts.once {
		cfg.Pipeline.StallTimeout = 0
	}
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `activity-agent captures the active window, extracts its text and
classifies the activity.

Settings are read from agent.ini; edits to the file are applied while the
agent runs where possible (capture rate, change threshold, OCR mode and
confidence, classifier rules, log level).

Usage:
  activity-agent [flags]

Flags:
%s`, flagSet.FlagUsages())
}
