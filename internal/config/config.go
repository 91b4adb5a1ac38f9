package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Cockpit stores runtime configuration for the recording cockpit.
type Cockpit struct {
	Audio      AudioConfig      `mapstructure:"audio" validate:"required"`
	LocalStore LocalStoreConfig `mapstructure:"local_store" validate:"required"`
	Delivery   DeliveryConfig   `mapstructure:"delivery" validate:"required"`
	Uploader   UploaderConfig   `mapstructure:"uploader"`
	Directory  DirectoryConfig  `mapstructure:"directory"`
	Log        LogConfig        `mapstructure:"log" validate:"required"`
}

type AudioConfig struct {
	RecorderCommand string `mapstructure:"ffmpeg_command" validate:"required"`
	InputFormat     string `mapstructure:"input_format" validate:"required"`
	InputDevice     string `mapstructure:"input_device" validate:"required"`
	SampleRate      int    `mapstructure:"sample_rate" validate:"gt=0"`
	Channels        int    `mapstructure:"channels" validate:"gt=0"`
	ChunkSize       int    `mapstructure:"chunk_size" validate:"gte=256"`
}

type LocalStoreConfig struct {
	Driver string `mapstructure:"driver" validate:"oneof=file sqlite"`
	Path   string `mapstructure:"path" validate:"required"`
}

type DeliveryConfig struct {
	BaseURL    string        `mapstructure:"base_url" validate:"required,url"`
	Timeout    time.Duration `mapstructure:"timeout" validate:"gt=0"`
	RetryCount int           `mapstructure:"retry_count" validate:"gte=0"`
}

type UploaderConfig struct {
	// SweepInterval enables the periodic re-scan; zero disables it.
	SweepInterval time.Duration `mapstructure:"sweep_interval" validate:"gte=0"`
	DrainTimeout  time.Duration `mapstructure:"drain_timeout" validate:"gte=0"`
}

type DirectoryConfig struct {
	Path string `mapstructure:"path"`
}

type LogConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Path  string `mapstructure:"path"`
}

// Service stores runtime configuration for the delivery service.
type Service struct {
	Host  string      `mapstructure:"host" validate:"required"`
	Port  int         `mapstructure:"port" validate:"gt=0,lt=65536"`
	Store StoreConfig `mapstructure:"store" validate:"required"`
	CORS  CORSConfig  `mapstructure:"cors"`
	Log   LogConfig   `mapstructure:"log" validate:"required"`
}

type StoreConfig struct {
	Driver      string `mapstructure:"driver" validate:"oneof=memory postgres redis"`
	PostgresDSN string `mapstructure:"postgres_dsn"`
	RedisURL    string `mapstructure:"redis_url"`
	ChunkSize   int    `mapstructure:"chunk_size" validate:"gt=0"`
}

type CORSConfig struct {
	AllowOrigins string `mapstructure:"allow_origins"`
}

// Origins splits the comma separated allow list.
func (c CORSConfig) Origins() []string {
	var out []string
	for _, origin := range strings.Split(c.AllowOrigins, ",") {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// Addr is the listen address.
func (s Service) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LoadCockpit resolves cockpit configuration from COCKPIT_* environment
// variables, an optional file named by COCKPIT_CONFIG, and defaults.
func LoadCockpit() (Cockpit, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Cockpit{}, errors.New("could not determine home directory")
	}
	base := filepath.Join(home, ".config", "cockpit")

	v, err := newViper("COCKPIT", os.Getenv("COCKPIT_CONFIG"))
	if err != nil {
		return Cockpit{}, err
	}
	setCockpitDefaults(v, base)

	var cfg Cockpit
	if err := unmarshalAndValidate(v, &cfg); err != nil {
		return Cockpit{}, err
	}
	cfg.LocalStore.Path = expandTilde(cfg.LocalStore.Path, home)
	cfg.Directory.Path = expandTilde(cfg.Directory.Path, home)
	cfg.Log.Path = expandTilde(cfg.Log.Path, home)
	return cfg, nil
}

// LoadService resolves delivery service configuration from DELIVERYD_*
// environment variables, an optional file named by DELIVERYD_CONFIG, and defaults.
func LoadService() (Service, error) {
	v, err := newViper("DELIVERYD", os.Getenv("DELIVERYD_CONFIG"))
	if err != nil {
		return Service{}, err
	}
	setServiceDefaults(v)

	var cfg Service
	if err := unmarshalAndValidate(v, &cfg); err != nil {
		return Service{}, err
	}
	return cfg, nil
}

func newViper(prefix string, file string) (*viper.Viper, error) {
	v := viper.NewWithOptions(viper.KeyDelimiter("__"))
	v.SetEnvPrefix(prefix)
	v.AutomaticEnv()

	file = strings.TrimSpace(file)
	if file == "" {
		return v, nil
	}
	v.SetConfigFile(file)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %q: %w", file, err)
	}
	return v, nil
}

// Every key needs a default so that AutomaticEnv overrides reach Unmarshal.
func setCockpitDefaults(v *viper.Viper, base string) {
	v.SetDefault("audio__ffmpeg_command", "ffmpeg")
	v.SetDefault("audio__input_format", "pulse")
	v.SetDefault("audio__input_device", "default")
	v.SetDefault("audio__sample_rate", 16000)
	v.SetDefault("audio__channels", 1)
	v.SetDefault("audio__chunk_size", 4096)

	v.SetDefault("local_store__driver", "file")
	v.SetDefault("local_store__path", filepath.Join(base, "store"))

	v.SetDefault("delivery__base_url", "http://127.0.0.1:9090")
	v.SetDefault("delivery__timeout", 30*time.Second)
	v.SetDefault("delivery__retry_count", 2)

	v.SetDefault("uploader__sweep_interval", 30*time.Second)
	v.SetDefault("uploader__drain_timeout", 2*time.Minute)

	v.SetDefault("directory__path", "")

	v.SetDefault("log__level", "info")
	v.SetDefault("log__path", "")
}

func setServiceDefaults(v *viper.Viper) {
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("port", 9090)

	v.SetDefault("store__driver", "memory")
	v.SetDefault("store__postgres_dsn", "")
	v.SetDefault("store__redis_url", "")
	v.SetDefault("store__chunk_size", 256*1024)

	v.SetDefault("cors__allow_origins", "")

	v.SetDefault("log__level", "info")
	v.SetDefault("log__path", "")
}

func unmarshalAndValidate(v *viper.Viper, out any) error {
	if err := v.Unmarshal(out); err != nil {
		return fmt.Errorf("failed to decode config: %w", err)
	}
	if err := validator.New().Struct(out); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func expandTilde(path string, home string) string {
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}
