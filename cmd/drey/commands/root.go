package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/dyluth/drey/internal/config"
	"github.com/dyluth/drey/pkg/backplane"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

var (
	version string
	commit  string
	date    string
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "drey",
	Short: "Drey - build farm coordination CLI",
	Long: `Drey is the operator CLI for a drey build farm's coordination layer.

It reads the same Redis backplane that the farm's submitters, scheduler,
and workers coordinate through: registered workers, per-job lifecycle
records, change event channels, and the invocation blacklist.`,
	Version: version,
	RunE: func(cmd *cobra.Command, args []string) error {
		// If no subcommand is specified, show help
		return cmd.Help()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	// Silence Cobra's default error and usage printing
	// We print formatted colored errors directly in the printer package
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	return rootCmd.Execute()
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "drey.yml", "Path to drey configuration file")
}

// newBackplane loads configuration and returns a started backplane plus a
// cleanup function closing the underlying Redis client. REDIS_URL in the
// environment (or a .env file) overrides the configured URL.
func newBackplane(ctx context.Context) (*backplane.Backplane, func(), error) {
	_ = godotenv.Load()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, err
	}
	if url := os.Getenv("REDIS_URL"); url != "" {
		cfg.RedisURL = url
	}

	opts, err := cfg.RedisOptions()
	if err != nil {
		return nil, nil, err
	}
	client := redis.NewClient(opts)
	provider := func() (redis.UniversalClient, error) {
		return client, nil
	}

	bp, err := backplane.New(cfg.Backplane, cfg.Source, nil, nil, provider)
	if err != nil {
		client.Close()
		return nil, nil, err
	}

	hostname, _ := os.Hostname()
	identity := fmt.Sprintf("%d/%s:%d", time.Now().Unix(), hostname, os.Getpid())
	if err := bp.Start(ctx, identity); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("failed to start backplane: %w", err)
	}

	return bp, func() { client.Close() }, nil
}
