package main

import (
	"os"

	"github.com/anantadwi13/coredns-record-manager/internal"
	"github.com/anantadwi13/coredns-record-manager/internal/domain"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func main() {
	if err := newRootCommand(viper.New()).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand(v *viper.Viper) *cobra.Command {
	var configFile, envFile string

	root := &cobra.Command{
		Use:          "coredns-manager",
		Short:        "Manage CoreDNS host records and generated zone files",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(v, cmd.Flags(), configFile, envFile)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "optional YAML configuration file")
	flags.StringVar(&envFile, "env-file", ".env", "optional dotenv file loaded before reading the environment")
	flags.String(internal.KeyStorageDriver, "json", "record store backend: json, sqlite or redis")
	flags.String(internal.KeyStoragePath, "/data/records.json", "record store file for the json and sqlite backends")
	flags.String(internal.KeyRedisAddress, "127.0.0.1:6379", "redis address for the redis backend")
	flags.String(internal.KeyRedisKey, "coredns:records", "redis key holding the records")
	flags.String(internal.KeyCorefile, "/etc/coredns/Corefile", "generated Corefile path")
	flags.String(internal.KeyTemplate, "/app/Corefile.template", "Corefile template path")
	flags.String(internal.KeyZonesDir, "/etc/coredns/zones", "directory of generated zone files")
	flags.String(internal.KeyServerBinary, "coredns", "coredns binary used for restarts")
	flags.String(internal.KeyServerPID, "", "pid of the running coredns (env COREDNS_PID)")
	flags.String(internal.KeyLogLevel, "info", "log level")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Serve the records API and keep the CoreDNS configuration up to date",
		RunE: func(cmd *cobra.Command, args []string) error {
			config, log, err := buildConfig(v)
			if err != nil {
				return err
			}
			defer log.Sync()
			return internal.NewService(config, log).Start()
		},
	}
	serve.Flags().String(internal.KeyListen, ":8000", "api listen address")
	serve.Flags().Bool(internal.KeyWatchTemplate, true, "regenerate the configuration when the template changes")

	rebuild := &cobra.Command{
		Use:   "rebuild",
		Short: "Regenerate the CoreDNS configuration once and reload the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			config, log, err := buildConfig(v)
			if err != nil {
				return err
			}
			defer log.Sync()
			return internal.NewService(config, log).Rebuild()
		},
	}

	root.AddCommand(serve, rebuild)
	return root
}

func loadConfig(v *viper.Viper, flags *pflag.FlagSet, configFile string, envFile string) error {
	if envFile != "" {
		err := godotenv.Load(envFile)
		if err != nil && !os.IsNotExist(err) {
			return errors.Wrapf(err, "load env file %v", envFile)
		}
	}

	internal.SetDefaults(v)
	if err := v.BindPFlags(flags); err != nil {
		return err
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return errors.Wrapf(err, "read config %v", configFile)
		}
	}
	return nil
}

func buildConfig(v *viper.Viper) (domain.Config, *zap.Logger, error) {
	config := internal.NewConfig(v)
	log, err := internal.NewLogger(config.LogLevel(), []string{"stdout"}, []string{"stderr"})
	if err != nil {
		return nil, nil, err
	}
	return config, log, nil
}
