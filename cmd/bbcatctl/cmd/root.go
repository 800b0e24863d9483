package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/guilhermesalviano/bbcat/internal/client"
)

const (
	envRelayURL = "BBCAT_RELAY_URL"
	envAPIKey   = "BBCAT_API_KEY"
	envToken    = "BBCAT_TOKEN"
)

type globalOptions struct {
	relayURL string
	apiKey   string
	token    string
	timeout  time.Duration
}

func (o *globalOptions) client() (*client.Client, error) {
	opts := []client.Option{}
	if o.apiKey != "" {
		opts = append(opts, client.WithAPIKey(o.apiKey))
	}
	if o.token != "" {
		opts = append(opts, client.WithBearerToken(o.token))
	}
	return client.New(o.relayURL, opts...)
}

// requestContext bounds one-shot commands by --timeout.
func (o *globalOptions) requestContext(parent context.Context) (context.Context, context.CancelFunc) {
	if o.timeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, o.timeout)
}

// NewRootCommand builds the bbcatctl command tree.
func NewRootCommand() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "bbcatctl",
		Short: "Inspect and drive a running bbcat relay",
		Long: `bbcatctl talks to a bbcat relay: host status, upstream stream details,
snapshots, and a live view of a signaling room.`,
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	relayDefault := os.Getenv(envRelayURL)
	if relayDefault == "" {
		relayDefault = "http://localhost:3000"
	}
	pf := root.PersistentFlags()
	pf.StringVarP(&opts.relayURL, "relay", "r", relayDefault, "relay base URL (env "+envRelayURL+")")
	pf.StringVar(&opts.apiKey, "api-key", os.Getenv(envAPIKey), "API key for AUTH_MODE=api_key relays (env "+envAPIKey+")")
	pf.StringVar(&opts.token, "token", os.Getenv(envToken), "bearer token for AUTH_MODE=jwt relays (env "+envToken+")")
	pf.DurationVar(&opts.timeout, "timeout", client.DefaultTimeout, "timeout for one-shot requests")

	root.AddCommand(
		statusCommand(opts),
		streamInfoCommand(opts),
		snapshotCommand(opts),
		roomCommand(opts),
		tokenCommand(),
	)
	return root
}

// Execute runs bbcatctl with os.Args and exits non-zero on error.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, errorLine(err.Error()))
		stop()
		os.Exit(1)
	}
}
