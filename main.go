package main

import (
	"bonbon-radar/pkg/cache"
	"bonbon-radar/pkg/config"
	"bonbon-radar/pkg/fetch"
	"bonbon-radar/pkg/pipeline"
	"bonbon-radar/pkg/snapshot"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
)

var (
	flagVerbose bool
	flagConfig  string
	flagOut     string
	flagCache   string
	flagPort    string
)

var rootCmd = &cobra.Command{
	Use:          "bonbon-radar",
	Short:        "Tracks bonbon drop sticker stock and chatter across shops and social search",
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging(flagVerbose)
	},
}

var updateCmd = &cobra.Command{
	Use:   "update [--config <file>] [--out <dir>] [--cache <db>]",
	Short: "Run one scraping pass and rewrite products.json and sns.json",
	RunE:  runUpdate,
}

var serveCmd = &cobra.Command{
	Use:   "serve [--out <dir>] [--port <port>]",
	Short: "Serve the latest snapshot over HTTP",
	RunE:  runServe,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("bonbon-radar %s (commit: %s)\n", version, commit)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "path to a json5 config file")
	rootCmd.PersistentFlags().StringVar(&flagOut, "out", "", "snapshot directory (default from config)")

	updateCmd.Flags().StringVar(&flagCache, "cache", "", "sqlite page cache path (disabled when empty)")
	serveCmd.Flags().StringVar(&flagPort, "port", "9090", "port to listen on")

	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func setupLogging(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
	})))
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	if flagOut != "" {
		cfg.OutputDir = flagOut
	}
	if flagCache != "" {
		cfg.Cache.DBPath = flagCache
	}
	return cfg, nil
}

func runUpdate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	static := fetch.NewHTTPFetcher(
		fetch.WithUserAgent(cfg.UserAgent),
		fetch.WithTimeout(cfg.RequestTimeout()),
	)
	p := pipeline.New(cfg, static)

	browser := fetch.NewBrowserFetcher()
	browser.UserAgent = cfg.UserAgent
	p.Renderer = browser

	if cfg.Cache.DBPath != "" {
		pageCache, err := cache.New(cfg.Cache.DBPath, cfg.Cache.TTL())
		if err != nil {
			return fmt.Errorf("init page cache: %w", err)
		}
		defer pageCache.Close()
		p.Cache = pageCache
		slog.Info("page cache enabled", "path", cfg.Cache.DBPath, "ttl", cfg.Cache.TTL())
	}

	start := time.Now()
	res, err := p.Run(cmd.Context())
	res.Report.Log()
	if err != nil {
		return fmt.Errorf("update aborted: %w", err)
	}

	if err := snapshot.Write(cfg.OutputDir, res.Products, res.Posts); err != nil {
		return err
	}
	slog.Info("snapshot written",
		"dir", cfg.OutputDir,
		"products", len(res.Products),
		"posts", len(res.Posts),
		"seconds", time.Since(start).Seconds(),
	)
	return nil
}
