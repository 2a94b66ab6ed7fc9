package main

import (
	"errors"
	"os"

	"github.com/MarcoPoloResearchLab/proofing/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
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
		Use:          "proofing-api",
		Short:        "Photo proofing client runtime: favorites, comments and selection exports",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
	}

	setupFlags(rootCmd)

	rootCmd.AddCommand(
		newServeCommand(),
		newFavoritesCommand(),
		newCommentsCommand(),
		newSessionCommand(),
		newExportCommand(),
		newMigrateCommand(),
		newGalleryCommand(),
		newSettingsCommand(),
	)
	return rootCmd
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	flags := cmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "Path to configuration file")
	flags.String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	flags.StringSlice("allowed-origins", nil, "CORS origins allowed to call the API (all when empty)")
	flags.String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	flags.String("log-format", defaults.GetString("log.format"), "Log encoding (json, console)")
	flags.String("database-dsn", defaults.GetString("database.dsn"), "Shared record store DSN (SQLite path or postgres URL; empty keeps data on this device)")
	flags.String("local-path", defaults.GetString("local.path"), "Device-local store path")
	flags.String("storage-driver", defaults.GetString("storage.driver"), "Blob storage driver (fs, gcs)")
	flags.String("storage-root", defaults.GetString("storage.root"), "Root directory for the fs storage driver")
	flags.String("storage-public-url", defaults.GetString("storage.public_base_url"), "Public base URL of the fs storage driver")
	flags.String("photos-bucket", defaults.GetString("storage.photos_bucket"), "Bucket holding photos and selections")
	flags.String("sendgrid-api-key", "", "SendGrid API key (overrides env)")
	flags.String("email-from-address", defaults.GetString("email.from_address"), "Sender address of notifications")
	flags.String("email-from-name", defaults.GetString("email.from_name"), "Sender name of notifications")
	flags.String("photographer-address", defaults.GetString("email.photographer_address"), "Default notification recipient")
	flags.Bool("email-enabled", defaults.GetBool("email.enabled"), "Enable selection notifications by default")
	flags.String("app-base-url", defaults.GetString("app.base_url"), "Public URL of the gallery application")
	flags.String("signing-secret", "", "Gallery access token signing secret (overrides env)")
	flags.Int("token-ttl-minutes", defaults.GetInt("auth.token_ttl_minutes"), "Gallery access token TTL in minutes")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "http.allowed_origins", "allowed-origins")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "log.format", "log-format")
	bindFlag(cmd, "database.dsn", "database-dsn")
	bindFlag(cmd, "local.path", "local-path")
	bindFlag(cmd, "storage.driver", "storage-driver")
	bindFlag(cmd, "storage.root", "storage-root")
	bindFlag(cmd, "storage.public_base_url", "storage-public-url")
	bindFlag(cmd, "storage.photos_bucket", "photos-bucket")
	bindFlag(cmd, "email.sendgrid_api_key", "sendgrid-api-key")
	bindFlag(cmd, "email.from_address", "email-from-address")
	bindFlag(cmd, "email.from_name", "email-from-name")
	bindFlag(cmd, "email.photographer_address", "photographer-address")
	bindFlag(cmd, "email.enabled", "email-enabled")
	bindFlag(cmd, "app.base_url", "app-base-url")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
	bindFlag(cmd, "auth.token_ttl_minutes", "token-ttl-minutes")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("proofing")
		viper.AddConfigPath(".")
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}
