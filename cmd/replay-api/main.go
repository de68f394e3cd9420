package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/MarcoPoloResearchLab/replay/internal/config"
	"github.com/MarcoPoloResearchLab/replay/internal/database"
	"github.com/MarcoPoloResearchLab/replay/internal/store"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	cfgFile string
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "replay-api",
		Short: "Recording and synchronized playback service",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
		SilenceUsage: true,
	}

	setupFlags(rootCmd)
	rootCmd.AddCommand(newRecordingsCommand(), newTokenCommand())
	return rootCmd
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().StringSlice("allowed-origins", nil, "CORS origins allowed to send credentials")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("store-driver", defaults.GetString("store.driver"), "Recording store driver (sqlite, memory)")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().Int("tick-interval-ms", defaults.GetInt("playback.tick_interval_ms"), "Free-running playback poll interval in milliseconds")
	cmd.PersistentFlags().Bool("pause-on-user-interaction", defaults.GetBool("playback.pause_on_user_interaction"), "Pause playback when the user edits")
	cmd.PersistentFlags().Bool("enable-audio-sync", defaults.GetBool("playback.enable_audio_sync"), "Anchor playback to recorded audio")
	cmd.PersistentFlags().Bool("audio-capture", defaults.GetBool("audio.capture_enabled"), "Accept microphone capture uploads")
	cmd.PersistentFlags().String("signing-secret", "", "Session signing secret (overrides env, empty disables auth)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "http.allowed_origins", "allowed-origins")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "store.driver", "store-driver")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "playback.tick_interval_ms", "tick-interval-ms")
	bindFlag(cmd, "playback.pause_on_user_interaction", "pause-on-user-interaction")
	bindFlag(cmd, "playback.enable_audio_sync", "enable-audio-sync")
	bindFlag(cmd, "audio.capture_enabled", "audio-capture")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

// openStore builds the configured recording store. The returned closer releases the database handle.
func openStore(appConfig config.AppConfig, logger *zap.Logger) (store.Store, func(), error) {
	switch appConfig.StoreDriver {
	case config.StoreDriverMemory:
		return store.NewMemoryStore(), func() {}, nil
	case config.StoreDriverSQLite:
		db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
		if err != nil {
			return nil, nil, err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, nil, err
		}
		closer := func() {
			if closeErr := sqlDB.Close(); closeErr != nil {
				logger.Warn("database close failed", zap.Error(closeErr))
			}
		}
		recordingStore, err := store.NewGormStore(store.GormConfig{Database: db, Logger: logger})
		if err != nil {
			closer()
			return nil, nil, err
		}
		return recordingStore, closer, nil
	default:
		return nil, nil, fmt.Errorf("unsupported store driver %q", appConfig.StoreDriver)
	}
}
