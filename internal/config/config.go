// Package config handles configuration management using Viper
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	XInput  XInputConfig  `mapstructure:"xinput"`
	Engine  EngineConfig  `mapstructure:"engine"`
	IPC     IPCConfig     `mapstructure:"ipc"`
	SSH     SSHConfig     `mapstructure:"ssh"`
	Profile ProfileConfig `mapstructure:"profile"`

	// Logging configuration
	Logging LoggingConfig `mapstructure:"logging"`
}

// XInputConfig controls how the xinput binary is invoked
type XInputConfig struct {
	Display string        `mapstructure:"display"` // Empty means $DISPLAY
	Binary  string        `mapstructure:"binary"`
	Timeout time.Duration `mapstructure:"timeout"` // Per command
}

// EngineConfig holds the edit policy
type EngineConfig struct {
	Mode            string        `mapstructure:"mode"`          // staged | immediate
	RemoveReturn    string        `mapstructure:"remove_return"` // defaults | floating
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
}

// IPCConfig locates the daemon socket
type IPCConfig struct {
	SocketPath string `mapstructure:"socket_path"` // Empty means the runtime dir default
}

// SSHConfig contains settings for the remote editor
type SSHConfig struct {
	Listen             string `mapstructure:"listen"`
	HostKeyPath        string `mapstructure:"host_key_path"`
	AuthorizedKeysPath string `mapstructure:"authorized_keys_path"`
}

// ProfileConfig locates saved layouts
type ProfileConfig struct {
	Dir string `mapstructure:"dir"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	FileLogging bool   `mapstructure:"file_logging"` // Enable/disable file logging
	LogLevel    string `mapstructure:"log_level"`    // Override LOG_LEVEL env var
}

var (
	// DefaultConfig provides sensible defaults
	DefaultConfig = Config{
		XInput: XInputConfig{
			Display: "",
			Binary:  "xinput",
			Timeout: 5 * time.Second,
		},
		Engine: EngineConfig{
			Mode:            "staged",
			RemoveReturn:    "defaults",
			RefreshInterval: 2 * time.Second,
		},
		IPC: IPCConfig{
			SocketPath: "",
		},
		SSH: SSHConfig{
			Listen:             ":2323",
			HostKeyPath:        "~/.config/xhier/ssh_host_ed25519",
			AuthorizedKeysPath: "~/.ssh/authorized_keys",
		},
		Profile: ProfileConfig{
			Dir: "~/.config/xhier/profiles",
		},
		Logging: LoggingConfig{
			FileLogging: false,
			LogLevel:    "", // Empty means use LOG_LEVEL env var
		},
	}

	// Global config instance
	cfg *Config

	// Override config path if set
	configPathOverride string
)

// SetConfigPath allows overriding the config path
func SetConfigPath(path string) {
	configPathOverride = path
}

// Init initializes the configuration system
func Init() error {
	viper.SetConfigName("xhier")
	viper.SetConfigType("toml")

	if configPathOverride != "" {
		viper.SetConfigFile(configPathOverride)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "xhier"))
		}
		viper.AddConfigPath("/etc/xhier")
		viper.AddConfigPath(".") // Current directory (lowest priority)
	}

	viper.SetEnvPrefix("XHIER")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Set defaults - need to set individual fields for proper merging
	viper.SetDefault("xinput.display", DefaultConfig.XInput.Display)
	viper.SetDefault("xinput.binary", DefaultConfig.XInput.Binary)
	viper.SetDefault("xinput.timeout", DefaultConfig.XInput.Timeout)

	viper.SetDefault("engine.mode", DefaultConfig.Engine.Mode)
	viper.SetDefault("engine.remove_return", DefaultConfig.Engine.RemoveReturn)
	viper.SetDefault("engine.refresh_interval", DefaultConfig.Engine.RefreshInterval)

	viper.SetDefault("ipc.socket_path", DefaultConfig.IPC.SocketPath)

	viper.SetDefault("ssh.listen", DefaultConfig.SSH.Listen)
	viper.SetDefault("ssh.host_key_path", DefaultConfig.SSH.HostKeyPath)
	viper.SetDefault("ssh.authorized_keys_path", DefaultConfig.SSH.AuthorizedKeysPath)

	viper.SetDefault("profile.dir", DefaultConfig.Profile.Dir)

	viper.SetDefault("logging.file_logging", DefaultConfig.Logging.FileLogging)
	viper.SetDefault("logging.log_level", DefaultConfig.Logging.LogLevel)

	if err := viper.ReadInConfig(); err != nil {
		_, notFound := err.(viper.ConfigFileNotFoundError)
		if !notFound && !os.IsNotExist(err) {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found, use defaults
	}

	c := &Config{}
	if err := viper.Unmarshal(c); err != nil {
		return fmt.Errorf("unable to unmarshal config: %w", err)
	}
	c.SSH.HostKeyPath = ExpandHome(c.SSH.HostKeyPath)
	c.SSH.AuthorizedKeysPath = ExpandHome(c.SSH.AuthorizedKeysPath)
	c.Profile.Dir = ExpandHome(c.Profile.Dir)
	cfg = c

	return nil
}

// Get returns the current configuration
func Get() *Config {
	if cfg == nil {
		// Return defaults if not initialized
		return &DefaultConfig
	}
	return cfg
}

// Set sets the current configuration (for testing)
func Set(c *Config) {
	cfg = c
}

// Save saves the current configuration to file
func Save() error {
	configPath := GetConfigPath()

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0750); err != nil {
		if os.IsPermission(err) && strings.Contains(configPath, "/etc/") {
			return fmt.Errorf("failed to create config directory %s: permission denied. Try running with sudo", dir)
		}
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := viper.WriteConfigAs(configPath); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// GetConfigPath returns the path to the config file
func GetConfigPath() string {
	if configPathOverride != "" {
		return configPathOverride
	}

	if viper.ConfigFileUsed() != "" {
		return viper.ConfigFileUsed()
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "/etc/xhier/xhier.toml"
	}

	return filepath.Join(home, ".config", "xhier", "xhier.toml")
}

// SocketPath resolves the IPC socket location
func SocketPath() string {
	if p := Get().IPC.SocketPath; p != "" {
		return ExpandHome(p)
	}
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "xhier.sock")
	}
	user := os.Getenv("USER")
	if user == "" {
		user = fmt.Sprintf("%d", os.Getuid())
	}
	return filepath.Join(os.TempDir(), fmt.Sprintf("xhier-%s.sock", user))
}

// ExpandHome replaces a leading ~ with the user's home directory
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

// UpdateEngine stores a new edit policy and saves it
func UpdateEngine(engineCfg EngineConfig) error {
	viper.Set("engine.mode", engineCfg.Mode)
	viper.Set("engine.remove_return", engineCfg.RemoveReturn)
	viper.Set("engine.refresh_interval", engineCfg.RefreshInterval.String())
	Get().Engine = engineCfg
	return Save()
}
