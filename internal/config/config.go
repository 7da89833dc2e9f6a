package config

import (
	"fmt"
	"net"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Defaults for the gateway's own settings.
const (
	DefaultHost         = "127.0.0.1"
	DefaultPort         = 5000
	DefaultFunctionsDir = "./functions"
	DefaultConfigFile   = "./serverless.yml"
)

// Config holds all settings for one gateway run.
type Config struct {
	Host          string
	Port          int
	FunctionsDir  string
	ConfigFile    string
	EnvFile       string
	LayerDir      string
	Network       string
	ThrottleRPS   float64
	ThrottleBurst int
	Verbose       bool
}

// Load assembles the configuration from defaults, GATEWAY_* environment
// variables and any command-line flags the caller bound into viper.
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	// Set up Viper
	viper.SetEnvPrefix("GATEWAY")
	viper.AutomaticEnv()
	viper.SetDefault("HOST", DefaultHost)
	viper.SetDefault("PORT", DefaultPort)
	viper.SetDefault("FUNCTIONS", DefaultFunctionsDir)
	viper.SetDefault("SLS", DefaultConfigFile)
	viper.SetDefault("THROTTLE_BURST", 1)

	config := &Config{
		Host:          viper.GetString("HOST"),
		Port:          viper.GetInt("PORT"),
		FunctionsDir:  viper.GetString("FUNCTIONS"),
		ConfigFile:    viper.GetString("SLS"),
		EnvFile:       viper.GetString("ENV"),
		LayerDir:      viper.GetString("LAYER"),
		Network:       viper.GetString("NETWORK"),
		ThrottleRPS:   viper.GetFloat64("THROTTLE_RPS"),
		ThrottleBurst: viper.GetInt("THROTTLE_BURST"),
		Verbose:       viper.GetBool("VERBOSE"),
	}

	if config.Port < 1 || config.Port > 65535 {
		return nil, fmt.Errorf("invalid port %d", config.Port)
	}
	if config.ThrottleRPS < 0 {
		return nil, fmt.Errorf("invalid throttle rate %v", config.ThrottleRPS)
	}

	return config, nil
}

// Addr returns the host:port the gateway listens on.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// LoadEnvironment reads an env file into the variable map handed to every
// sandbox run. An empty path means no file was configured.
func LoadEnvironment(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	env, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("reading environment file '%s': %w", path, err)
	}
	return env, nil
}
