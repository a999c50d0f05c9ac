package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/mesh-intelligence/cartsync/internal/checkout"
	"github.com/mesh-intelligence/cartsync/internal/gateway"
	"github.com/mesh-intelligence/cartsync/pkg/types"
)

const (
	configFileName = "config"
	configFileType = "yaml"
	configFileExt  = "config.yaml"

	// envPrefix maps config keys to CART_BACKEND, CART_BASE_URL and so on.
	envPrefix = "CART"

	cfgKeyBackend     = "backend"
	cfgKeyDataDir     = "data_dir"
	cfgKeyBaseURL     = "base_url"
	cfgKeyTimeout     = "timeout"
	cfgKeyDeliveryFee = "delivery_fee"

	defaultBaseURL = "http://localhost:5000"
)

// configFile is the structure written to config.yaml.
type configFile struct {
	Backend     string `yaml:"backend"`
	BaseURL     string `yaml:"base_url"`
	Timeout     string `yaml:"timeout"`
	DeliveryFee string `yaml:"delivery_fee"`
	DataDir     string `yaml:"data_dir,omitempty"`
}

func defaultConfigFile() configFile {
	return configFile{
		Backend:     types.BackendSQLite,
		BaseURL:     defaultBaseURL,
		Timeout:     gateway.DefaultTimeout.String(),
		DeliveryFee: checkout.DefaultFeeRule,
	}
}

// loadConfig reads config.yaml from configDir, creating the directory and a
// default file on first run. Environment variables override the file.
func loadConfig(configDir string) (*viper.Viper, error) {
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return nil, fmt.Errorf("create config dir: %w", err)
	}
	if err := writeConfigIfMissing(filepath.Join(configDir, configFileExt), defaultConfigFile()); err != nil {
		return nil, fmt.Errorf("write default config: %w", err)
	}

	v := viper.New()
	def := defaultConfigFile()
	v.SetDefault(cfgKeyBackend, def.Backend)
	v.SetDefault(cfgKeyBaseURL, def.BaseURL)
	v.SetDefault(cfgKeyTimeout, def.Timeout)
	v.SetDefault(cfgKeyDeliveryFee, def.DeliveryFee)
	v.SetDefault(cfgKeyDataDir, "")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName(configFileName)
	v.SetConfigType(configFileType)
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return v, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	return v, nil
}

// writeConfigIfMissing creates path with cfg unless it already exists.
func writeConfigIfMissing(path string, cfg configFile) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("stat config file: %w", err)
	}

	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	header := []byte("# cart CLI configuration. CART_* environment variables override these keys.\n")
	return os.WriteFile(path, append(header, data...), 0o644)
}

// timeout returns the configured gateway timeout.
func timeout(v *viper.Viper) (time.Duration, error) {
	raw := strings.TrimSpace(v.GetString(cfgKeyTimeout))
	if raw == "" {
		return gateway.DefaultTimeout, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", cfgKeyTimeout, raw, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s %q: must be positive", cfgKeyTimeout, raw)
	}
	return d, nil
}
