package cmd

import (
	"log"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/spigell/jobhunter/internal/notify"
	"github.com/spigell/jobhunter/internal/pipeline"
	"github.com/spigell/jobhunter/internal/profile"
	"github.com/spigell/jobhunter/internal/sources"
)

const (
	app = "jobhunter"
)

type Config struct {
	Pipeline  pipeline.Config    `mapstructure:"pipeline"`
	Profiles  []*profile.Profile `mapstructure:"profiles"`
	Sources   []sources.Config   `mapstructure:"sources"`
	Database  DatabaseConfig     `mapstructure:"database"`
	Redis     RedisConfig        `mapstructure:"redis"`
	UserAgent string             `mapstructure:"user-agent"`
	Schedule  string             `mapstructure:"schedule"`
}

type DatabaseConfig struct {
	URL     string `mapstructure:"url"`
	URLFile string `mapstructure:"url-file"`
}

type RedisConfig struct {
	URL     string `mapstructure:"url"`
	URLFile string `mapstructure:"url-file"`
	Channel string `mapstructure:"channel"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "jobhunter collects job postings, ranks them against your profiles and tracks your applications",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	for key, env := range map[string]string{
		"database.url-file": "JOBHUNTER_DATABASE_URL_FILE",
		"database.url":      "JOBHUNTER_DATABASE_URL",
		"redis.url":         "JOBHUNTER_REDIS_URL",
	} {
		if err := viper.BindEnv(key, env); err != nil {
			log.Fatalf("binding %s environment variable: %v", env, err)
		}
	}

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is jobhunter.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func initConfig() {
	// The version command works without a config.
	if versionCmd.CalledAs() != "" {
		return
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app + ".yaml")
		viper.SetConfigType("yaml")
	}

	// We can't proceed if the config file parsed with error.
	if err := viper.ReadInConfig(); err != nil {
		log.Fatal(err)
	}
}

// redacted returns a copy safe to log: inline connection URLs carry passwords.
func (c *Config) redacted() *Config {
	out := *c
	if out.Database.URL != "" {
		out.Database.URL = "<redacted>"
	}
	if out.Redis.URL != "" {
		out.Redis.URL = "<redacted>"
	}
	return &out
}

func getConfig() (*Config, error) {
	config := &Config{Pipeline: pipeline.DefaultConfig()}
	if err := viper.Unmarshal(config); err != nil {
		return nil, err
	}

	if config.Redis.Channel == "" {
		config.Redis.Channel = notify.DefaultChannel
	}

	return config, nil
}
