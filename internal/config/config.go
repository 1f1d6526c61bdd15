package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Default ports for the SeaweedFS internal roles. The S3 port is the only
// externally facing one and comes from settings.
const (
	SeaweedMasterPort = 9333
	SeaweedVolumePort = 8080
	SeaweedFilerPort  = 8888
)

const DefaultControlListen = "127.0.0.1:43209"

// SeaweedSettings configures the optional object-storage service.
type SeaweedSettings struct {
	Enabled  bool   `toml:"enabled" mapstructure:"enabled"`
	S3Port   int    `toml:"s3_port" mapstructure:"s3_port"`
	WeedPath string `toml:"weed_path" mapstructure:"weed_path"` // explicit binary override
}

// LogSettings controls the child-service log files.
type LogSettings struct {
	MaxSizeMB int `toml:"max_size_mb" mapstructure:"max_size_mb"`
}

// ServerSettings configures the local control API.
type ServerSettings struct {
	Listen   string `toml:"listen" mapstructure:"listen"`
	BasePath string `toml:"base_path" mapstructure:"base_path"`
}

// Settings is the immutable per-start-cycle configuration of the orchestrator.
// It is produced by the desktop settings wizard (an external collaborator) and
// loaded here from a TOML file.
type Settings struct {
	// Home is the user-chosen managed home directory holding config, logs,
	// runtime files and data for both services.
	Home string `toml:"home" mapstructure:"home"`
	// InstallRoot is the installation/checkout root used to locate the core
	// interpreter or sidecar. Empty means "derive from the host executable".
	InstallRoot string `toml:"install_root" mapstructure:"install_root"`
	// CorePort is the loopback port the core backend serves on.
	CorePort int `toml:"core_port" mapstructure:"core_port"`
	// AutoRestart opts into the background restart policy. Manual control is
	// the default posture.
	AutoRestart bool `toml:"auto_restart" mapstructure:"auto_restart"`
	// StorePath is the sqlite event-history database. Empty means
	// <home>/stagehand.db.
	StorePath string `toml:"store_path" mapstructure:"store_path"`

	Seaweed SeaweedSettings `toml:"seaweed" mapstructure:"seaweed"`
	Log     LogSettings     `toml:"log" mapstructure:"log"`
	Server  ServerSettings  `toml:"server" mapstructure:"server"`
}

// Load reads settings from a TOML file.
func Load(path string) (Settings, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return Settings{}, fmt.Errorf("read settings %s: %w", path, err)
	}
	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, fmt.Errorf("parse settings %s: %w", path, err)
	}
	s.ApplyDefaults()
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// ApplyDefaults fills derived and defaulted fields in place.
func (s *Settings) ApplyDefaults() {
	if s.Log.MaxSizeMB < 1 {
		s.Log.MaxSizeMB = 1
	}
	if s.Server.Listen == "" {
		s.Server.Listen = DefaultControlListen
	}
	if s.StorePath == "" && s.Home != "" {
		s.StorePath = filepath.Join(s.Home, "stagehand.db")
	}
}

func (s *Settings) Validate() error {
	if strings.TrimSpace(s.Home) == "" {
		return fmt.Errorf("settings: home directory is required")
	}
	if s.CorePort < 1 || s.CorePort > 65535 {
		return fmt.Errorf("settings: core_port %d out of range", s.CorePort)
	}
	if s.Seaweed.Enabled {
		if s.Seaweed.S3Port < 1 || s.Seaweed.S3Port > 65535 {
			return fmt.Errorf("settings: seaweed enabled but s3_port %d out of range", s.Seaweed.S3Port)
		}
	}
	return nil
}

// LogsDir returns the directory holding the per-service log files.
func (s *Settings) LogsDir() string { return filepath.Join(s.Home, "logs") }

// SeaweedDataDir returns the data directory handed to weed server.
func (s *Settings) SeaweedDataDir() string {
	return filepath.Join(s.Home, "s3", "seaweedfs")
}

// CoreURL returns the loopback base URL of the core backend.
func (s *Settings) CoreURL() string {
	return fmt.Sprintf("http://127.0.0.1:%d", s.CorePort)
}
