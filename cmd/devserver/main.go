// Command minechat-devserver runs a local chat server that speaks the
// writer and reader protocols, for development without the public server.
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
	"github.com/lawnchairsociety/minechat/internal/devserver"
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
		configPath string
		host       string
		writerPort int
		readerPort int
		wsPort     int
		dbPath     string
	)

	flagSet := pflag.NewFlagSet("minechat-devserver", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", config.DefaultPath, "path to the YAML config file (devserver: section)")
	flagSet.StringVar(&host, "host", "", "listen host (default 127.0.0.1)")
	flagSet.IntVar(&writerPort, "writer-port", 0, "writer port (default 5050)")
	flagSet.IntVar(&readerPort, "reader-port", 0, "reader port (default 5000)")
	flagSet.IntVar(&wsPort, "ws-port", 0, "WebSocket port; 0 in config disables it (default 8080)")
	flagSet.StringVar(&dbPath, "db", "", "SQLite database path (default data/minechat.db)")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		fmt.Fprintln(os.Stderr, "Usage: minechat-devserver [flags]")
		flagSet.PrintDefaults()
		return nil
	}

	logConfig, err := logger.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load logging config: %w", err)
	}
	if err := logger.Initialize(logConfig); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Close()

	cfg, err := config.LoadServerConfig(configPath)
	if err != nil {
		return err
	}
	if flagSet.Changed("host") {
		cfg.Listen.Host = host
	}
	if flagSet.Changed("writer-port") {
		cfg.Listen.WriterPort = writerPort
	}
	if flagSet.Changed("reader-port") {
		cfg.Listen.ReaderPort = readerPort
	}
	if flagSet.Changed("ws-port") {
		cfg.Listen.WebSocketPort = wsPort
	}
	if flagSet.Changed("db") {
		cfg.Database = database.DefaultConfig(dbPath)
	}

	db, err := database.OpenWithConfig(cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Starting minechat dev server", "database", cfg.Database.Driver)
	return devserver.New(cfg, db, logger.Logger()).Run(ctx)
}
