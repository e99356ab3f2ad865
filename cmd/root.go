package cmd

import (
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	globalConfig "github.com/blaze-sports-intel/scorecache/config"
	"github.com/blaze-sports-intel/scorecache/pkg/utils"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "scorecache",
	Short: "Stale-while-revalidate cache service for sports data",
	Long: `scorecache keeps sports payloads (live scores, standings, historical stats)
in Valkey with per-category freshness windows, background revalidation and
tag-based invalidation.`,
}

func init() {
	utils.LoadConfig(".")

	time.Local = time.UTC

	rootCmd.CompletionOptions.DisableDefaultCmd = true

	initFlags()

	cobra.OnInitialize(initEnvConfig)
}

func initFlags() {
	rootCmd.PersistentFlags().StringVarP(&globalConfig.AppPort, "port", "p", globalConfig.AppPort, "port to serve the REST API on")
	rootCmd.PersistentFlags().BoolVarP(&globalConfig.AppDebug, "debug", "d", globalConfig.AppDebug, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&globalConfig.ValkeyAddress, "valkey-address", globalConfig.ValkeyAddress, "valkey address host:port")
}

// initEnvConfig loads configuration from environment variables
func initEnvConfig() {
	if envPort := viper.GetString("app_port"); envPort != "" {
		globalConfig.AppPort = envPort
	}
	if envDebug := viper.GetBool("app_debug"); envDebug {
		globalConfig.AppDebug = envDebug
	}
	if envBasePath := viper.GetString("app_base_path"); envBasePath != "" {
		globalConfig.AppBasePath = envBasePath
	}
	envBasicAuth := viper.GetString("app_basic_auth")
	if envBasicAuth == "" {
		envBasicAuth = os.Getenv("APP_BASIC_AUTH")
	}
	if envBasicAuth != "" {
		globalConfig.AppBasicAuthCredential = strings.Split(envBasicAuth, ",")
	}

	if envAddr := viper.GetString("valkey_address"); envAddr != "" {
		globalConfig.ValkeyAddress = envAddr
	}
	if envPassword := viper.GetString("valkey_password"); envPassword != "" {
		globalConfig.ValkeyPassword = envPassword
	}
	if viper.IsSet("valkey_db") {
		globalConfig.ValkeyDB = viper.GetInt("valkey_db")
	}
	if envPrefix := viper.GetString("valkey_key_prefix"); envPrefix != "" {
		globalConfig.ValkeyKeyPrefix = envPrefix
	}

	if viper.IsSet("deferred_workers") {
		if n := viper.GetInt("deferred_workers"); n > 0 {
			globalConfig.DeferredWorkers = n
		}
	}
	if viper.IsSet("deferred_queue_size") {
		if n := viper.GetInt("deferred_queue_size"); n > 0 {
			globalConfig.DeferredQueueSize = n
		}
	}

	globalConfig.ServerID = utils.GetServerID(viper.GetString("server_id"))

	if globalConfig.AppDebug {
		logrus.SetLevel(logrus.DebugLevel)
	}
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		logrus.Fatalf("Failed to execute command: %v", err)
	}
}
