// Package config loads the serialscan configuration from a YAML file,
// SERIALSCAN_* environment variables and command-line flags, in
// increasing order of precedence. The resolved configuration is handed
// to a session as one immutable object.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/scanforge/serialscan/internal/pipeline"
	"github.com/scanforge/serialscan/internal/recognizer"
)

// EnvPrefix is the environment variable prefix, e.g. SERIALSCAN_LOG_LEVEL.
const EnvPrefix = "SERIALSCAN"

// Config is the full application configuration.
type Config struct {
	Log    LogConfig    `mapstructure:"log" yaml:"log"`
	Models ModelsConfig `mapstructure:"models" yaml:"models"`
	Scan   ScanConfig   `mapstructure:"scan" yaml:"scan"`
	Server ServerConfig `mapstructure:"server" yaml:"server"`
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`   // debug, info, warn, error
	Format string `mapstructure:"format" yaml:"format"` // text or json
}

// ModelsConfig locates and tunes the scoring models.
type ModelsConfig struct {
	Dir        string `mapstructure:"dir" yaml:"dir"`
	NumThreads int    `mapstructure:"num_threads" yaml:"num_threads"`
	GPU        bool   `mapstructure:"gpu" yaml:"gpu"`
}

// ScanConfig holds the session thresholds and budgets.
type ScanConfig struct {
	AcceptThreshold     float64       `mapstructure:"accept_threshold" yaml:"accept_threshold"`
	BorderlineThreshold float64       `mapstructure:"borderline_threshold" yaml:"borderline_threshold"`
	ClassifierAccept    float64       `mapstructure:"classifier_accept" yaml:"classifier_accept"`
	StabilizedThreshold float64       `mapstructure:"stabilized_threshold" yaml:"stabilized_threshold"`
	Window              int           `mapstructure:"window" yaml:"window"`
	EarlyExit           float64       `mapstructure:"early_exit" yaml:"early_exit"`
	MaxFrames           int           `mapstructure:"max_frames" yaml:"max_frames"`
	TimeBudget          time.Duration `mapstructure:"time_budget" yaml:"time_budget"`
	MinFrameInterval    time.Duration `mapstructure:"min_frame_interval" yaml:"min_frame_interval"`
	DeviceClass         string        `mapstructure:"device_class" yaml:"device_class"`
	Accuracy            string        `mapstructure:"accuracy" yaml:"accuracy"` // fast or accurate
}

// ServerConfig holds the HTTP/WebSocket server settings.
type ServerConfig struct {
	Addr          string        `mapstructure:"addr" yaml:"addr"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	MaxFrameBytes int64         `mapstructure:"max_frame_bytes" yaml:"max_frame_bytes"`
}

// Default returns the built-in configuration.
func Default() Config {
	p := pipeline.DefaultConfig()
	return Config{
		Log: LogConfig{Level: "info", Format: "text"},
		Models: ModelsConfig{
			Dir:        "",
			NumThreads: 0,
			GPU:        false,
		},
		Scan: ScanConfig{
			AcceptThreshold:     p.Validator.AcceptThreshold,
			BorderlineThreshold: p.Validator.BorderlineThreshold,
			ClassifierAccept:    p.Classifier.AcceptThreshold,
			StabilizedThreshold: p.Classifier.StabilizedThreshold,
			Window:              p.Window,
			EarlyExit:           p.EarlyExitConfidence,
			MaxFrames:           p.MaxFrames,
			TimeBudget:          p.TimeBudget,
			MinFrameInterval:    p.MinFrameInterval,
			DeviceClass:         string(p.DeviceClass),
			Accuracy:            string(recognizer.AccuracyAccurate),
		},
		Server: ServerConfig{
			Addr:          ":8080",
			ReadTimeout:   30 * time.Second,
			WriteTimeout:  30 * time.Second,
			MaxFrameBytes: 8 << 20,
		},
	}
}

// NewViper creates a viper instance seeded with the defaults, optional
// config file and the environment.
func NewViper(cfgFile string) (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		return v, nil
	}

	v.SetConfigName("serialscan")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.serialscan")
	v.AddConfigPath("/etc/serialscan")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}
	return v, nil
}

// Load resolves the configuration from file, environment and any bound
// flags on v.
func Load(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, c Config) {
	v.SetDefault("log.level", c.Log.Level)
	v.SetDefault("log.format", c.Log.Format)
	v.SetDefault("models.dir", c.Models.Dir)
	v.SetDefault("models.num_threads", c.Models.NumThreads)
	v.SetDefault("models.gpu", c.Models.GPU)
	v.SetDefault("scan.accept_threshold", c.Scan.AcceptThreshold)
	v.SetDefault("scan.borderline_threshold", c.Scan.BorderlineThreshold)
	v.SetDefault("scan.classifier_accept", c.Scan.ClassifierAccept)
	v.SetDefault("scan.stabilized_threshold", c.Scan.StabilizedThreshold)
	v.SetDefault("scan.window", c.Scan.Window)
	v.SetDefault("scan.early_exit", c.Scan.EarlyExit)
	v.SetDefault("scan.max_frames", c.Scan.MaxFrames)
	v.SetDefault("scan.time_budget", c.Scan.TimeBudget)
	v.SetDefault("scan.min_frame_interval", c.Scan.MinFrameInterval)
	v.SetDefault("scan.device_class", c.Scan.DeviceClass)
	v.SetDefault("scan.accuracy", c.Scan.Accuracy)
	v.SetDefault("server.addr", c.Server.Addr)
	v.SetDefault("server.read_timeout", c.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", c.Server.WriteTimeout)
	v.SetDefault("server.max_frame_bytes", c.Server.MaxFrameBytes)
}

// Validate checks cross-field consistency before a session starts.
func (c Config) Validate() error {
	if c.Scan.BorderlineThreshold >= c.Scan.AcceptThreshold {
		return fmt.Errorf("borderline threshold %.2f must be below accept threshold %.2f",
			c.Scan.BorderlineThreshold, c.Scan.AcceptThreshold)
	}
	if c.Scan.StabilizedThreshold > c.Scan.ClassifierAccept {
		return fmt.Errorf("stabilized threshold %.2f must not exceed classifier accept %.2f",
			c.Scan.StabilizedThreshold, c.Scan.ClassifierAccept)
	}
	if c.Scan.Window <= 0 || c.Scan.MaxFrames <= 0 || c.Scan.TimeBudget <= 0 {
		return fmt.Errorf("window, max frames and time budget must be positive")
	}
	switch c.Scan.Accuracy {
	case string(recognizer.AccuracyFast), string(recognizer.AccuracyAccurate):
	default:
		return fmt.Errorf("unknown accuracy level %q", c.Scan.Accuracy)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}
	return nil
}

// Pipeline maps the configuration onto a session configuration.
func (c Config) Pipeline() pipeline.Config {
	p := pipeline.DefaultConfig()
	p.Validator.AcceptThreshold = c.Scan.AcceptThreshold
	p.Validator.BorderlineThreshold = c.Scan.BorderlineThreshold
	p.Classifier.AcceptThreshold = c.Scan.ClassifierAccept
	p.Classifier.StabilizedThreshold = c.Scan.StabilizedThreshold
	p.Window = c.Scan.Window
	p.EarlyExitConfidence = c.Scan.EarlyExit
	p.MaxFrames = c.Scan.MaxFrames
	p.TimeBudget = c.Scan.TimeBudget
	p.MinFrameInterval = c.Scan.MinFrameInterval
	p.DeviceClass = pipeline.DeviceClass(c.Scan.DeviceClass)
	p.Recognizer.Accuracy = recognizer.Accuracy(c.Scan.Accuracy)
	p.Detector.NumThreads = c.Models.NumThreads
	return p
}

// SlogLevel maps the configured level to slog.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.Log.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// YAML renders the configuration for `serialscan config show`.
func (c Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}
