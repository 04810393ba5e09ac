// Command minechat-reader follows the underground chat and keeps a
// timestamped history of everything said.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/lawnchairsociety/minechat/internal/config"
	"github.com/lawnchairsociety/minechat/internal/database"
	"github.com/lawnchairsociety/minechat/internal/history"
	"github.com/lawnchairsociety/minechat/internal/logger"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var (
		configPath    string
		host          string
		port          int
		historyPath   string
		transportKind string
	)

	flagSet := pflag.NewFlagSet("minechat-reader", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", config.DefaultPath, "path to the YAML config file")
	flagSet.StringVar(&host, "host", "", "chat host (default from config: minechat.dvmn.org)")
	flagSet.IntVar(&port, "port", 0, "reader port (default from config: 5000)")
	flagSet.StringVar(&historyPath, "history", "", "history file (default from config: history.txt)")
	flagSet.StringVar(&transportKind, "transport", "", "tcp or websocket")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		fmt.Fprintln(os.Stderr, "Usage: minechat-reader [flags]")
		flagSet.PrintDefaults()
		return nil
	}
	if flagSet.NArg() > 0 {
		return fmt.Errorf("unexpected argument: %s", flagSet.Arg(0))
	}

	logConfig, err := logger.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load logging config: %w", err)
	}
	if err := logger.Initialize(logConfig); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Close()

	cfg, err := config.LoadClientConfig(configPath)
	if err != nil {
		return err
	}
	if flagSet.Changed("host") {
		cfg.Server.Host = host
	}
	if flagSet.Changed("port") {
		cfg.Server.ReaderPort = port
	}
	if flagSet.Changed("history") {
		cfg.History.Path = historyPath
	}
	if flagSet.Changed("transport") {
		cfg.Server.Transport = transportKind
	}

	dialer, err := cfg.Dialer()
	if err != nil {
		return err
	}

	sinks := []history.Sink{
		history.NewConsoleSink(os.Stdout),
		history.NewFileSink(cfg.History.Path, cfg.History.MaxSizeMB, cfg.History.MaxBackups),
	}
	if cfg.History.Database != nil {
		db, err := database.OpenWithConfig(*cfg.History.Database)
		if err != nil {
			return err
		}
		sinks = append(sinks, history.NewDatabaseSink(db))
	}

	reader := history.NewReader(dialer, cfg.ReaderEndpoint(), logger.Logger(), sinks...)
	defer reader.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Following chat", "endpoint", cfg.ReaderEndpoint().String(), "history", cfg.History.Path)
	return reader.Run(ctx)
}
