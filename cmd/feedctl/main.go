// Command feedctl is a terminal client for the feed API. It drives the same
// feed controller, engagement coordinator and preference editor a UI would.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sujalbistaa/feedsync/internal/client"
	"github.com/sujalbistaa/feedsync/internal/config"
	"github.com/sujalbistaa/feedsync/internal/engagement"
	"github.com/sujalbistaa/feedsync/internal/feed"
	"github.com/sujalbistaa/feedsync/internal/logging"
	"github.com/sujalbistaa/feedsync/internal/session"
)

var version = "dev"

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	configPath string
	serverURL  string
	token      string
	asJSON     bool
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:   "feedctl",
		Short: "Terminal client for the feed API",
		Long: `feedctl reads and writes the post feed: paging, likes, comments,
posts and feed preferences.

Authenticate once with "feedctl login" and export the printed token as
CLIENT_TOKEN, or pass --token on every call.

Examples:
  feedctl login --username ana --password secret123
  feedctl feed --mode personalized --pages 2
  feedctl like 6f1c2a9e-...`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to a YAML config file")
	root.PersistentFlags().StringVar(&opts.serverURL, "server", "", "API base URL (overrides client.base_url)")
	root.PersistentFlags().StringVar(&opts.token, "token", "", "bearer token (overrides client.token)")
	root.PersistentFlags().BoolVar(&opts.asJSON, "json", false, "print results as JSON")

	root.AddCommand(
		newRegisterCmd(opts),
		newLoginCmd(opts),
		newMeCmd(opts),
		newFeedCmd(opts),
		newLikeCmd(opts),
		newCommentsCmd(opts),
		newCommentCmd(opts),
		newUncommentCmd(opts),
		newPostCmd(opts),
		newDeleteCmd(opts),
		newPrefsCmd(opts),
		newWatchCmd(opts),
	)
	return root
}

// app is the wired client stack for one invocation.
type app struct {
	cfg    *config.Config
	log    *zap.Logger
	client *client.Client
	feed   *feed.Controller
	engage *engagement.Coordinator
}

func newApp(opts *globalOptions) (*app, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if opts.serverURL != "" {
		cfg.Client.BaseURL = opts.serverURL
	}
	if opts.token != "" {
		cfg.Client.Token = opts.token
	}
	log, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}

	c := client.New(cfg.Client.BaseURL, session.New(cfg.Client.Token),
		client.WithTimeout(cfg.Client.Timeout),
		client.WithRateLimit(cfg.Client.RPS, cfg.Client.Burst),
		client.WithLogger(log.Named("client")),
	)
	fc := feed.New(c, feed.WithPageSize(cfg.Client.PageSize), feed.WithLogger(log.Named("feed")))
	return &app{
		cfg:    cfg,
		log:    log,
		client: c,
		feed:   fc,
		engage: engagement.NewCoordinator(fc, c, c, log.Named("engagement")),
	}, nil
}
