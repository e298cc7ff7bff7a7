// syncwatch connects to a teamsync server, optionally joins as a user, and
// logs every event along with a summary of the reconciled state.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/huangang/teamsync/internal/models"
	"github.com/huangang/teamsync/internal/protocol"
	"github.com/huangang/teamsync/pkg/logger"
	"github.com/huangang/teamsync/pkg/syncclient"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		url         string
		userID      string
		userName    string
		role        string
		attempts    int
		delay       time.Duration
		echoUpdates bool
		logLevel    string
	)

	flagSet := pflag.NewFlagSet("syncwatch", pflag.ContinueOnError)
	flagSet.StringVar(&url, "url", "ws://localhost:3001/ws", "sync server WebSocket endpoint")
	flagSet.StringVar(&userID, "user-id", "", "join as this user id (observe only when empty)")
	flagSet.StringVar(&userName, "name", "syncwatch", "display name used with --user-id")
	flagSet.StringVar(&role, "role", models.RoleFaculty, "role used with --user-id (student or faculty)")
	flagSet.IntVar(&attempts, "reconnect-attempts", 5, "consecutive failed dials before giving up")
	flagSet.DurationVar(&delay, "reconnect-delay", time.Second, "base delay; the n-th retry waits n times this")
	flagSet.BoolVar(&echoUpdates, "echo-updates", false, "server runs with sync.echo_updates")
	flagSet.StringVar(&logLevel, "log-level", "info", "debug, info, warn or error")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printHelp(flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}

	logger.Init(logLevel)

	policies := protocol.DefaultPolicies()
	if echoUpdates {
		policies = policies.WithEchoUpdates()
	}

	var client *syncclient.Client
	joined := false
	client = syncclient.New(syncclient.Options{
		URL:               url,
		ReconnectAttempts: attempts,
		ReconnectDelay:    delay,
		Policies:          policies,
		OnEvent: func(out protocol.Outbound, changed bool) {
			logger.Info().Str("event", out.Event).Bool("changed", changed).Msg("received")
			if out.Event == protocol.EventStateInitial && userID != "" && !joined {
				joined = true
				user := models.User{ID: userID, Name: userName, Role: role}
				if err := client.Join(user); err != nil {
					logger.Warn().Err(err).Msg("join failed")
				}
			}
			if changed {
				logSummary(client.Reconciler())
			}
		},
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := client.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func logSummary(r *syncclient.Reconciler) {
	state := r.State()
	logger.Info().
		Int("projects", len(state.Projects)).
		Int("users", len(state.Users)).
		Int("messages", state.MessageCount()).
		Int("online", len(r.Online())).
		Msg("mirror")
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, "Usage: syncwatch [flags]\n\nWatch a teamsync server and log the reconciled state.\n\nFlags:\n")
	flagSet.PrintDefaults()
}
