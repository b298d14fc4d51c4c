package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"wake-agent/internal/launcher"
	"wake-agent/internal/wake"

	"github.com/BurntSushi/toml"
	log "github.com/sirupsen/logrus"
)

// UserConfig represents the user configuration file structure
type UserConfig struct {
	DeviceName string `json:"device_name" toml:"device_name"`
	MQTT       struct {
		Broker   string `json:"broker" toml:"broker"`
		User     string `json:"user" toml:"user"`
		Pass     string `json:"pass" toml:"pass"`
		ClientID string `json:"client_id" toml:"client_id"`
	} `json:"mqtt" toml:"mqtt"`
	HTTP struct {
		Listen string `json:"listen" toml:"listen"`
	} `json:"http" toml:"http"`
	Wake       WakeConfig       `json:"wake" toml:"wake"`
	MainScreen MainScreenConfig `json:"main_screen" toml:"main_screen"`
	Log        struct {
		Level  string `json:"level" toml:"level"`
		File   string `json:"file" toml:"file"`
		Format string `json:"format" toml:"format"`
	} `json:"log" toml:"log"`
}

type WakeConfig struct {
	Tag           string `json:"tag" toml:"tag"`
	LockTimeoutMs int    `json:"lock_timeout_ms" toml:"lock_timeout_ms"`
	RevertDelayMs int    `json:"revert_delay_ms" toml:"revert_delay_ms"`
	Capability    string `json:"capability" toml:"capability"`
}

type MainScreenConfig struct {
	Component   string   `json:"component" toml:"component"`
	Command     []string `json:"command" toml:"command"`
	ProcessName string   `json:"process_name" toml:"process_name"`
}

// Loaded configuration (populated by LoadUserConfig)
var (
	DeviceName   string
	DeviceID     string
	MQTTBroker   string
	MQTTUser     string
	MQTTPass     string
	MQTTClientID string

	HTTPListen string

	// Capability is "auto", "declarative" or "legacy". It is read once
	// at startup and not hot-reloaded.
	Capability string

	LogLevel  string
	LogFile   string
	LogFormat string

	configPath string // Path to the config file for the file watcher
)

// DiscoveryPrefix is the HA MQTT discovery prefix.
const DiscoveryPrefix = "homeassistant"

// TopicPrefix roots the agent's own (non-discovery) topics.
const TopicPrefix = "wake-agent"

var configNames = []string{"userConfig.json", "userConfig.toml"}

// LoadUserConfig loads configuration from path, or when path is empty from
// userConfig.json or userConfig.toml next to the executable.
func LoadUserConfig(path string) error {
	if path == "" {
		found, err := findConfig()
		if err != nil {
			return err
		}
		path = found
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("couldn't open config %s: %w", path, err)
	}
	configPath = path
	return loadConfigFromFile()
}

func findConfig() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("couldn't get executable path: %w", err)
	}
	exeDir := filepath.Dir(exe)
	for _, name := range configNames {
		p := filepath.Join(exeDir, name)
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("%s not found in %s", strings.Join(configNames, " or "), exeDir)
}

func readConfig(path string) (*UserConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("couldn't read %s: %w", filepath.Base(path), err)
	}

	var cfg UserConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(data), &cfg); err != nil {
			return nil, fmt.Errorf("couldn't parse %s: %w", filepath.Base(path), err)
		}
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("couldn't parse %s: %w", filepath.Base(path), err)
		}
	}
	applyEnv(&cfg)
	return &cfg, nil
}

// applyEnv lets WAKE_AGENT_* variables override the file.
func applyEnv(cfg *UserConfig) {
	if v := os.Getenv("WAKE_AGENT_DEVICE_NAME"); v != "" {
		cfg.DeviceName = v
	}
	if v := os.Getenv("WAKE_AGENT_MQTT_BROKER"); v != "" {
		cfg.MQTT.Broker = v
	}
	if v := os.Getenv("WAKE_AGENT_MQTT_USER"); v != "" {
		cfg.MQTT.User = v
	}
	if v := os.Getenv("WAKE_AGENT_MQTT_PASS"); v != "" {
		cfg.MQTT.Pass = v
	}
	if v := os.Getenv("WAKE_AGENT_HTTP_LISTEN"); v != "" {
		cfg.HTTP.Listen = v
	}
	if v := os.Getenv("WAKE_AGENT_CAPABILITY"); v != "" {
		cfg.Wake.Capability = v
	}
	if v := os.Getenv("WAKE_AGENT_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
}

// loadConfigFromFile reads and parses the config file
func loadConfigFromFile() error {
	cfg, err := readConfig(configPath)
	if err != nil {
		return err
	}

	if cfg.DeviceName == "" || cfg.DeviceName == "my-pc" {
		return fmt.Errorf("please set device_name in %s (currently: %q)", filepath.Base(configPath), cfg.DeviceName)
	}

	settings, screens, err := wakeFromConfig(cfg)
	if err != nil {
		return err
	}

	DeviceName = cfg.DeviceName
	DeviceID = strings.ReplaceAll(cfg.DeviceName, "-", "_")

	MQTTBroker = cfg.MQTT.Broker
	if MQTTBroker == "" {
		MQTTBroker = "tcp://homeassistant.local:1883"
	}
	MQTTUser = cfg.MQTT.User
	MQTTPass = cfg.MQTT.Pass
	MQTTClientID = cfg.MQTT.ClientID
	if MQTTClientID == "" {
		MQTTClientID = "wake-agent-" + DeviceName
	}

	HTTPListen = cfg.HTTP.Listen
	Capability = cfg.Wake.Capability
	if Capability == "" {
		Capability = "auto"
	}

	LogLevel = cfg.Log.Level
	if LogLevel == "" {
		LogLevel = "info"
	}
	LogFile = cfg.Log.File
	LogFormat = cfg.Log.Format

	setWakeSettings(settings, screens)

	log.Infof("Loaded config for device: %s", DeviceName)
	if MQTTUser == "" {
		log.Warn("MQTT user/pass not set - connecting without authentication")
	}
	return nil
}

// wakeFromConfig converts the wake and main_screen sections, applying
// defaults and validating the result.
func wakeFromConfig(cfg *UserConfig) (wake.Settings, map[string]launcher.Screen, error) {
	s := wake.DefaultSettings()
	if cfg.Wake.Tag != "" {
		s.Tag = cfg.Wake.Tag
	}
	if cfg.Wake.LockTimeoutMs > 0 {
		s.LockTimeout = time.Duration(cfg.Wake.LockTimeoutMs) * time.Millisecond
	}
	if cfg.Wake.RevertDelayMs > 0 {
		s.RevertDelay = time.Duration(cfg.Wake.RevertDelayMs) * time.Millisecond
	}
	if cfg.MainScreen.Component != "" {
		s.MainScreen = cfg.MainScreen.Component
	}
	if err := s.Validate(); err != nil {
		return wake.Settings{}, nil, fmt.Errorf("invalid wake settings: %w", err)
	}

	screens := map[string]launcher.Screen{}
	if len(cfg.MainScreen.Command) > 0 {
		name := cfg.MainScreen.ProcessName
		if name == "" {
			name = filepath.Base(cfg.MainScreen.Command[0])
		}
		screens[s.MainScreen] = launcher.Screen{
			Command:     cfg.MainScreen.Command,
			ProcessName: name,
		}
	} else {
		log.Warn("main_screen.command not set - wake requests will fail to launch")
	}
	return s, screens, nil
}

// GetConfigPath returns the path of the loaded config file
func GetConfigPath() string {
	return configPath
}
