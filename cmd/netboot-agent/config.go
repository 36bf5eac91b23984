package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/EternisAI/netboot/internal/agent"
	"github.com/EternisAI/netboot/internal/logging"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Log    logging.Config
	Server ServerConfig `mapstructure:"server"`
	Agent  AgentConfig  `mapstructure:"agent"`
}

type ServerConfig struct {
	URL string `mapstructure:"url"`
}

type AgentConfig struct {
	StateFile string            `mapstructure:"state_file"`
	Interface string            `mapstructure:"interface"`
	DryRun    bool              `mapstructure:"dry_run"`
	Timeout   time.Duration     `mapstructure:"request_timeout"`
	Retry     agent.RetryConfig `mapstructure:"retry"`
}

var config Config

func InitConfig(path string) error {
	_ = godotenv.Load()

	if path != "" {
		viper.SetConfigFile(path)
	} else {
		viper.SetConfigName("application")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./cmd/netboot-agent")
		viper.SetConfigType("yaml")
	}
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	_ = viper.BindEnv("server.url", "NETBOOT_SERVER_URL")

	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}
	if err := viper.Unmarshal(&config); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}

	logging.Init(config.Log)

	if config.Log.Debug() {
		configJSON, err := json.MarshalIndent(config, "", "  ")
		if err == nil {
			fmt.Println("Config loaded:")
			fmt.Println(string(configJSON))
		}
	}
	return nil
}
