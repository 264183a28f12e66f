package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ringwire/callflow/internal/config"
	"github.com/ringwire/callflow/internal/logging"
)

var (
	cfgFile string
	v       *viper.Viper
	cfg     *config.Config
	logger  *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "callflow",
	Short: "Callflow runs voice-agent call flows",
	Long: `Callflow stores, validates and executes node-based call flows for voice agents.
Conversation turns come in over HTTP (or a simulated console); the engine answers
with the actions the telephony host must carry out.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(v, cfgFile)
		if err != nil {
			return err
		}
		cfg = loaded
		logger = logging.New(logging.ParseLevel(cfg.Log.Level), logging.Format(cfg.Log.Format))
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	v = config.New()

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default ./callflow.yaml or $HOME/.config/callflow/callflow.yaml)")
	flags.String("log-level", "", "log level: debug, info, warn, error")
	flags.String("log-format", "", "log format: text, json")
	flags.String("storage", "", "storage driver: memory, file, redis, sqlite")
	flags.String("storage-dir", "", "data directory for the file driver")
	flags.String("redis-addr", "", "redis address for the redis driver")
	flags.String("sqlite-path", "", "database path for the sqlite driver")

	bindFlag("log.level", flags.Lookup("log-level"))
	bindFlag("log.format", flags.Lookup("log-format"))
	bindFlag("storage.driver", flags.Lookup("storage"))
	bindFlag("storage.dir", flags.Lookup("storage-dir"))
	bindFlag("storage.redis.addr", flags.Lookup("redis-addr"))
	bindFlag("storage.sqlite.path", flags.Lookup("sqlite-path"))
}
