package config

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/spf13/viper"
)

const (
	// AppName is the application name used for config files and directories
	AppName = "go-docdat"

	// EnvPrefix is the prefix for environment variables
	EnvPrefix = "DOCDAT"
)

// AppConfig holds the application configuration
type AppConfig struct {
	// Core settings
	Debug     bool   `mapstructure:"debug"`
	LogFormat string `mapstructure:"log_format"`
	LogFile   string `mapstructure:"log_file"`

	// Output settings
	Output struct {
		Dir   string `mapstructure:"dir"`   // destination for DOCUMENT.DAT / extracted pages
		Force bool   `mapstructure:"force"` // overwrite existing artifacts
	} `mapstructure:"output"`

	// Document settings
	Docdat struct {
		Type     string `mapstructure:"type"`      // "ps1" or "psp"
		GameID   string `mapstructure:"game_id"`   // header game identifier
		KeysFile string `mapstructure:"keys_file"` // path to a 16-byte KEYS.BIN
	} `mapstructure:"docdat"`
}

// Global variables
var (
	// Global configuration instance
	Instance AppConfig

	// Status indicators
	ConfigLoaded bool
	ConfigFile   string

	// Viper instance
	v *viper.Viper

	// Ensure thread safety
	initOnce sync.Once
)

// Initialize sets up the configuration system. It runs at most once per
// process; later calls are no-ops. Use Reload to pick up a config file
// chosen after startup.
func Initialize(cfgFile string) error {
	var err error

	initOnce.Do(func() {
		err = load(cfgFile)
	})

	return err
}

// Reload re-reads configuration from the given file, replacing the current
// Instance. This is the path for a config file passed on the command line,
// which arrives after Initialize has already run.
func Reload(cfgFile string) error {
	return load(cfgFile)
}

// load builds a fresh viper instance and unmarshals it into Instance.
func load(cfgFile string) error {
	// Create a new viper instance
	v = viper.New()

	// Set default values
	setDefaults(v)

	// Load configuration from file if specified
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		// Set config name and type
		v.SetConfigName(AppName)
		v.SetConfigType("yaml")

		// Add default search paths
		addSearchPaths(v)
	}

	// Set up environment variables
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// Read configuration file
	if readErr := v.ReadInConfig(); readErr != nil {
		if _, ok := readErr.(viper.ConfigFileNotFoundError); !ok {
			// Only fail if the config file was found but couldn't be read
			return fmt.Errorf("error reading config file: %w", readErr)
		}
		// Config file not found, using defaults and environment variables
		ConfigLoaded = false
		ConfigFile = ""
	} else {
		ConfigLoaded = true
		ConfigFile = v.ConfigFileUsed()
	}

	// Unmarshal config into struct
	if unmarshalErr := v.Unmarshal(&Instance); unmarshalErr != nil {
		return fmt.Errorf("error parsing config: %w", unmarshalErr)
	}
	return nil
}

// setDefaults sets default values for configuration
func setDefaults(v *viper.Viper) {
	// Core settings
	v.SetDefault("debug", false)
	v.SetDefault("log_format", "human")
	v.SetDefault("log_file", "")

	// Output defaults
	v.SetDefault("output.dir", ".")
	v.SetDefault("output.force", false)

	// Document defaults
	v.SetDefault("docdat.type", "psp")
	v.SetDefault("docdat.game_id", "")
	v.SetDefault("docdat.keys_file", "")
}

// addSearchPaths adds config search paths
func addSearchPaths(v *viper.Viper) {
	// Always check current directory first
	v.AddConfigPath(".")

	// Add user config directory
	if configDir, err := os.UserConfigDir(); err == nil {
		v.AddConfigPath(configDir + "/" + AppName)
	}

	// Add system-wide config directory
	v.AddConfigPath("/etc/" + AppName)
}
