package http

type Config struct {
	Port       uint   `mapstructure:"port"`
	ServerURL  string `mapstructure:"server_url"`
	BootAPIKey string `mapstructure:"boot_api_key"`
}
