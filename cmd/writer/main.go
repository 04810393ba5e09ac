// Command minechat-writer posts one message to the underground chat,
// registering a new account first when it has no valid token.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/lawnchairsociety/minechat/internal/config"
	"github.com/lawnchairsociety/minechat/internal/logger"
	"github.com/lawnchairsociety/minechat/internal/protocol"
	"github.com/lawnchairsociety/minechat/internal/session"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

// exitCode reports an interrupted session with the shell's SIGINT status,
// so scripts can tell the message was not sent.
func exitCode(err error) int {
	if protocol.KindOf(err) == protocol.KindCanceled {
		return 130
	}
	return 1
}

func run(args []string) error {
	var (
		configPath    string
		host          string
		port          int
		token         string
		username      string
		message       string
		transportKind string
	)

	flagSet := pflag.NewFlagSet("minechat-writer", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", config.DefaultPath, "path to the YAML config file; a new token is saved here")
	flagSet.StringVar(&host, "host", "", "chat host (default from config: minechat.dvmn.org)")
	flagSet.IntVar(&port, "port", 0, "writer port (default from config: 5050)")
	flagSet.StringVar(&token, "token", "", "account token; empty registers a new account")
	flagSet.StringVar(&username, "username", "", "preferred nickname if an account is registered")
	flagSet.StringVarP(&message, "message", "m", "", "message to send; defaults to the remaining arguments")
	flagSet.StringVar(&transportKind, "transport", "", "tcp or websocket")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		fmt.Fprintln(os.Stderr, "Usage: minechat-writer [flags] [message...]")
		flagSet.PrintDefaults()
		return nil
	}

	if message == "" {
		message = strings.Join(flagSet.Args(), " ")
	}
	if message == "" {
		return errors.New("no message given; use --message or pass it as arguments")
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
		cfg.Server.WriterPort = port
	}
	if flagSet.Changed("token") {
		cfg.Account.Token = token
	}
	if flagSet.Changed("username") {
		cfg.Account.Username = username
	}
	if flagSet.Changed("transport") {
		cfg.Server.Transport = transportKind
	}

	dialer, err := cfg.Dialer()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := session.NewClient(dialer, logger.Logger())
	result, err := client.Submit(ctx, session.Request{
		Endpoint: cfg.WriterEndpoint(),
		Token:    cfg.Account.Token,
		Username: cfg.Account.Username,
		Message:  message,
	})

	// A freshly minted account is worth keeping even if sending failed.
	if result.Registered {
		if saveErr := config.SaveToken(configPath, result.Account); saveErr != nil {
			logger.Error("Failed to save account token", "path", configPath, "error", saveErr)
			fmt.Fprintf(os.Stderr, "new account token (not saved): %s\n", result.Account.Token)
		} else {
			logger.Info("Saved account token", "path", configPath, "nickname", result.Account.Nickname)
		}
	}

	if err != nil {
		if protocol.KindOf(err) == protocol.KindCanceled {
			logger.Warning("Interrupted, message not sent")
			return err
		}
		logger.Error("Failed to send message", "kind", protocol.KindOf(err), "error", err)
		return err
	}

	logger.Info("Message sent", "nickname", result.Nickname)
	fmt.Println(result.Ack)
	return nil
}
