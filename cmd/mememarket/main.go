package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "mememarket",
		Short:         "Score Reddit posts for virality and serve ranked predictions",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")

	root.AddCommand(collectCmd())
	root.AddCommand(predictCmd())
	root.AddCommand(statusCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(runCmd())

	return root
}

func collectCmd() *cobra.Command {
	var subreddits []string

	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Collect hot posts from the configured subreddits",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCollect(cmd.Context(), subreddits)
		},
	}

	cmd.Flags().StringSliceVar(&subreddits, "subreddit", nil, "specific subreddits to collect (e.g., memes,funny)")
	return cmd
}

func predictCmd() *cobra.Command {
	var (
		jsonOutput bool
		limit      int
		hours      int
	)

	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Show ranked virality predictions",
	}
	cmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	top := &cobra.Command{
		Use:   "top",
		Short: "Top posts of the last 6 hours",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPredict(cmd.Context(), predictTop, "", limit, 0, jsonOutput)
		},
	}
	top.Flags().IntVar(&limit, "limit", 10, "max posts to show")

	trending := &cobra.Command{
		Use:   "trending",
		Short: "Posts scoring above 50 within the window",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPredict(cmd.Context(), predictTrending, "", 0, hours, jsonOutput)
		},
	}
	trending.Flags().IntVar(&hours, "hours", 24, "look-back window in hours")

	subreddit := &cobra.Command{
		Use:   "subreddit <name>",
		Short: "Top posts of one subreddit in the last 12 hours",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPredict(cmd.Context(), predictSubreddit, args[0], limit, 0, jsonOutput)
		},
	}
	subreddit.Flags().IntVar(&limit, "limit", 10, "max posts to show")

	explain := &cobra.Command{
		Use:   "explain <reddit_id>",
		Short: "Show every term of a stored post's virality score",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExplain(cmd.Context(), args[0], jsonOutput)
		},
	}

	cmd.AddCommand(top, trending, subreddit, explain)
	return cmd
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show collection status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd.Context())
		},
	}
}

func serveCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(port)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "server port (default: from config)")
	return cmd
}

func runCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start daemon with scheduler and HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(port)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "server port (default: from config)")
	return cmd
}
