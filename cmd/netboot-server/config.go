package main

import (
	"encoding/json"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/EternisAI/netboot/internal/api/http"
	"github.com/EternisAI/netboot/internal/auth"
	"github.com/EternisAI/netboot/internal/blobstore"
	"github.com/EternisAI/netboot/internal/db"
	"github.com/EternisAI/netboot/internal/discovery"
	grpctls "github.com/EternisAI/netboot/internal/grpc/tls"
	"github.com/EternisAI/netboot/internal/logging"
	"github.com/EternisAI/netboot/internal/presence"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Log       logging.Config
	Http      http.Config
	Grpc      GrpcConfig
	DB        db.Config        `mapstructure:"db"`
	Storage   blobstore.Config `mapstructure:"storage"`
	Presence  presence.Config  `mapstructure:"presence"`
	Discovery discovery.Config `mapstructure:"discovery"`
	Agent     AgentConfig      `mapstructure:"agent"`
	Auth      auth.Config      `mapstructure:"auth"`
}

type GrpcConfig struct {
	Port int            `mapstructure:"port"`
	TLS  grpctls.Config `mapstructure:"tls"`
	// Generate a CA and server pair at the configured paths when missing.
	AutoGenerate bool   `mapstructure:"auto_generate"`
	CAKeyFile    string `mapstructure:"ca_key_file"`
	DomainNames  string `mapstructure:"domain_names"`
	IPAddresses  string `mapstructure:"ip_addresses"`
}

// AgentConfig is handed to agents at registration.
type AgentConfig struct {
	AutoLogin           bool          `mapstructure:"auto_login"`
	MonitoringInterval  time.Duration `mapstructure:"monitoring_interval"`
	CommandPollInterval time.Duration `mapstructure:"command_poll_interval"`
}

var config Config

func ParseCommaSeparated(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func ParseIPs(input string) ([]net.IP, error) {
	var ips []net.IP
	for _, s := range ParseCommaSeparated(input) {
		ip := net.ParseIP(s)
		if ip == nil {
			return nil, fmt.Errorf("invalid IP address: %s", s)
		}
		ips = append(ips, ip)
	}
	return ips, nil
}

func InitConfig() {
	var err error

	_ = godotenv.Load()

	viper.SetConfigName("application")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./cmd/netboot-server")
	viper.SetConfigType("yaml")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	_ = viper.BindEnv("auth.jwt_secret", "JWT_SECRET")
	_ = viper.BindEnv("http.boot_api_key", "BOOT_API_KEY")
	_ = viper.BindEnv("db.url", "DATABASE_URL")

	if err := viper.ReadInConfig(); err != nil {
		panic(err)
	}

	err = viper.Unmarshal(&config)
	if err != nil {
		panic(err)
	}

	logging.Init(config.Log)

	if config.Log.Debug() {
		configJSON, err := json.MarshalIndent(config, "", "  ")
		if err == nil {
			fmt.Println("Config loaded:")
			fmt.Println(string(configJSON))
		}
	}
}
