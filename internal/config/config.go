// Package config loads mudra settings from a YAML file and MUDRA_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/ayusman/mudra/internal/bridge"
	"github.com/ayusman/mudra/internal/capture"
	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/gesture"
	"github.com/ayusman/mudra/internal/session"
)

// FileName is the config file name looked up without an explicit path.
const FileName = "mudra"

// Inference backends.
const (
	BackendTemplate = "template"
	BackendBridge   = "bridge"
)

// SessionConfig controls the validation session.
type SessionConfig struct {
	Gestures             []string      `mapstructure:"gestures" yaml:"gestures" env:"GESTURES" envSeparator:","`
	Timeout              time.Duration `mapstructure:"timeout" yaml:"timeout" env:"TIMEOUT"`
	RetryOnFailure       bool          `mapstructure:"retry_on_failure" yaml:"retry_on_failure" env:"RETRY_ON_FAILURE"`
	MaxRetryCount        int           `mapstructure:"max_retry_count" yaml:"max_retry_count" env:"MAX_RETRY_COUNT"`
	FeedbackDuration     time.Duration `mapstructure:"feedback_duration" yaml:"feedback_duration" env:"FEEDBACK_DURATION"`
	ProbThreshold        float64       `mapstructure:"prob_threshold" yaml:"prob_threshold" env:"PROB_THRESHOLD"`
	ConfThreshold        float64       `mapstructure:"conf_threshold" yaml:"conf_threshold" env:"CONF_THRESHOLD"`
	MinFrames            int           `mapstructure:"min_frames" yaml:"min_frames" env:"MIN_FRAMES"`
	MinSeconds           float64       `mapstructure:"min_seconds" yaml:"min_seconds" env:"MIN_SECONDS"`
	MinInferenceInterval time.Duration `mapstructure:"min_inference_interval" yaml:"min_inference_interval" env:"MIN_INFERENCE_INTERVAL"`
	TickInterval         time.Duration `mapstructure:"tick_interval" yaml:"tick_interval" env:"TICK_INTERVAL"`
}

// FeaturesConfig controls window and sequence shaping.
type FeaturesConfig struct {
	MaxLength        int     `mapstructure:"max_length" yaml:"max_length" env:"MAX_LENGTH"`
	FeatureDim       int     `mapstructure:"feature_dim" yaml:"feature_dim" env:"FEATURE_DIM"`
	AssumedFPS       float64 `mapstructure:"assumed_fps" yaml:"assumed_fps" env:"ASSUMED_FPS"`
	PadMissingFrames bool    `mapstructure:"pad_missing_frames" yaml:"pad_missing_frames" env:"PAD_MISSING_FRAMES"`
}

// InferenceConfig selects and tunes the classifier.
type InferenceConfig struct {
	Backend     string        `mapstructure:"backend" yaml:"backend" env:"BACKEND"`
	LabelMap    string        `mapstructure:"label_map" yaml:"label_map" env:"LABEL_MAP"`
	BridgeAddr  string        `mapstructure:"bridge_addr" yaml:"bridge_addr" env:"BRIDGE_ADDR"`
	Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout" env:"TIMEOUT"`
	DialTimeout time.Duration `mapstructure:"dial_timeout" yaml:"dial_timeout" env:"DIAL_TIMEOUT"`
	QueueSize   int           `mapstructure:"queue_size" yaml:"queue_size" env:"QUEUE_SIZE"`
	Temperature float64       `mapstructure:"temperature" yaml:"temperature" env:"TEMPERATURE"`
}

// CameraConfig selects the capture device and motion gate.
type CameraConfig struct {
	Enabled         bool          `mapstructure:"enabled" yaml:"enabled" env:"ENABLED"`
	Device          int           `mapstructure:"device" yaml:"device" env:"DEVICE"`
	Width           int           `mapstructure:"width" yaml:"width" env:"WIDTH"`
	Height          int           `mapstructure:"height" yaml:"height" env:"HEIGHT"`
	MotionThreshold float64       `mapstructure:"motion_threshold" yaml:"motion_threshold" env:"MOTION_THRESHOLD"`
	IdleFPS         int           `mapstructure:"idle_fps" yaml:"idle_fps" env:"IDLE_FPS"`
	ActiveFPS       int           `mapstructure:"active_fps" yaml:"active_fps" env:"ACTIVE_FPS"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout" env:"IDLE_TIMEOUT"`
	AlwaysActive    bool          `mapstructure:"always_active" yaml:"always_active" env:"ALWAYS_ACTIVE"`
	PreferRightHand bool          `mapstructure:"prefer_right_hand" yaml:"prefer_right_hand" env:"PREFER_RIGHT_HAND"`
	MinConfidence   float64       `mapstructure:"min_confidence" yaml:"min_confidence" env:"MIN_CONFIDENCE"`
	TrackerScript   string        `mapstructure:"tracker_script" yaml:"tracker_script" env:"TRACKER_SCRIPT"`
}

// PluginConfig controls feedback plugins.
type PluginConfig struct {
	Dir       string        `mapstructure:"dir" yaml:"dir" env:"DIR"`
	Timeout   time.Duration `mapstructure:"timeout" yaml:"timeout" env:"TIMEOUT"`
	QueueSize int           `mapstructure:"queue_size" yaml:"queue_size" env:"QUEUE_SIZE"`
}

// TelemetryConfig controls trace export. An empty endpoint disables it.
type TelemetryConfig struct {
	Endpoint    string `mapstructure:"endpoint" yaml:"endpoint" env:"ENDPOINT"`
	Insecure    bool   `mapstructure:"insecure" yaml:"insecure" env:"INSECURE"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name" env:"SERVICE_NAME"`
}

// Config is the complete application configuration.
type Config struct {
	DataDir    string          `mapstructure:"data_dir" yaml:"data_dir" env:"DATA_DIR"`
	StorePath  string          `mapstructure:"store_path" yaml:"store_path" env:"STORE_PATH"`
	ServerAddr string          `mapstructure:"server_addr" yaml:"server_addr" env:"SERVER_ADDR"`
	Tray       bool            `mapstructure:"tray" yaml:"tray" env:"TRAY"`
	Session    SessionConfig   `mapstructure:"session" yaml:"session" envPrefix:"SESSION_"`
	Features   FeaturesConfig  `mapstructure:"features" yaml:"features" envPrefix:"FEATURES_"`
	Inference  InferenceConfig `mapstructure:"inference" yaml:"inference" envPrefix:"INFERENCE_"`
	Camera     CameraConfig    `mapstructure:"camera" yaml:"camera" envPrefix:"CAMERA_"`
	Plugins    PluginConfig    `mapstructure:"plugins" yaml:"plugins" envPrefix:"PLUGINS_"`
	Telemetry  TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry" envPrefix:"TELEMETRY_"`
}

// Default returns the built-in configuration. Paths under the data
// directory are resolved by Load.
func Default() Config {
	s := session.DefaultConfig()
	src := capture.DefaultSourceConfig()
	cli := bridge.DefaultClientConfig()
	det := detector.DefaultConfig()

	return Config{
		ServerAddr: "127.0.0.1:8080",
		Session: SessionConfig{
			Gestures:             []string{},
			Timeout:              s.Timeout,
			RetryOnFailure:       s.RetryOnFailure,
			MaxRetryCount:        s.MaxRetryCount,
			FeedbackDuration:     s.FeedbackDuration,
			ProbThreshold:        s.ProbThreshold,
			ConfThreshold:        s.ConfThreshold,
			MinFrames:            s.MinFrames,
			MinSeconds:           s.MinSeconds,
			MinInferenceInterval: s.MinInferenceInterval,
			TickInterval:         50 * time.Millisecond,
		},
		Features: FeaturesConfig{
			MaxLength:  s.MaxLength,
			FeatureDim: s.FeatureDim,
			AssumedFPS: s.AssumedFPS,
		},
		Inference: InferenceConfig{
			Backend:     BackendTemplate,
			BridgeAddr:  "127.0.0.1:8765",
			Timeout:     s.InferenceTimeout,
			DialTimeout: cli.DialTimeout,
			QueueSize:   cli.QueueSize,
		},
		Camera: CameraConfig{
			Enabled:         true,
			Width:           capture.DefaultWidth,
			Height:          capture.DefaultHeight,
			MotionThreshold: 1.0,
			IdleFPS:         src.IdleFPS,
			ActiveFPS:       src.ActiveFPS,
			IdleTimeout:     src.IdleTimeout,
			PreferRightHand: src.PreferRightHand,
			MinConfidence:   det.MinConfidence,
		},
		Plugins: PluginConfig{
			Timeout:   5 * time.Second,
			QueueSize: 32,
		},
		Telemetry: TelemetryConfig{
			ServiceName: "mudra",
		},
	}
}

// Load reads the config file at path, or mudra.yaml from the working and
// data directories when path is empty, applies MUDRA_* environment
// overrides and validates the result. A missing default config file is not
// an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v, cfg)

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(FileName)
		v.AddConfigPath(".")
		if dir, err := defaultDataDir(); err == nil {
			v.AddConfigPath(dir)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := ParseEnv(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.resolvePaths(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper, cfg Config) {
	v.SetDefault("data_dir", cfg.DataDir)
	v.SetDefault("store_path", cfg.StorePath)
	v.SetDefault("server_addr", cfg.ServerAddr)
	v.SetDefault("tray", cfg.Tray)

	v.SetDefault("session.gestures", cfg.Session.Gestures)
	v.SetDefault("session.timeout", cfg.Session.Timeout)
	v.SetDefault("session.retry_on_failure", cfg.Session.RetryOnFailure)
	v.SetDefault("session.max_retry_count", cfg.Session.MaxRetryCount)
	v.SetDefault("session.feedback_duration", cfg.Session.FeedbackDuration)
	v.SetDefault("session.prob_threshold", cfg.Session.ProbThreshold)
	v.SetDefault("session.conf_threshold", cfg.Session.ConfThreshold)
	v.SetDefault("session.min_frames", cfg.Session.MinFrames)
	v.SetDefault("session.min_seconds", cfg.Session.MinSeconds)
	v.SetDefault("session.min_inference_interval", cfg.Session.MinInferenceInterval)
	v.SetDefault("session.tick_interval", cfg.Session.TickInterval)

	v.SetDefault("features.max_length", cfg.Features.MaxLength)
	v.SetDefault("features.feature_dim", cfg.Features.FeatureDim)
	v.SetDefault("features.assumed_fps", cfg.Features.AssumedFPS)
	v.SetDefault("features.pad_missing_frames", cfg.Features.PadMissingFrames)

	v.SetDefault("inference.backend", cfg.Inference.Backend)
	v.SetDefault("inference.label_map", cfg.Inference.LabelMap)
	v.SetDefault("inference.bridge_addr", cfg.Inference.BridgeAddr)
	v.SetDefault("inference.timeout", cfg.Inference.Timeout)
	v.SetDefault("inference.dial_timeout", cfg.Inference.DialTimeout)
	v.SetDefault("inference.queue_size", cfg.Inference.QueueSize)
	v.SetDefault("inference.temperature", cfg.Inference.Temperature)

	v.SetDefault("camera.enabled", cfg.Camera.Enabled)
	v.SetDefault("camera.device", cfg.Camera.Device)
	v.SetDefault("camera.width", cfg.Camera.Width)
	v.SetDefault("camera.height", cfg.Camera.Height)
	v.SetDefault("camera.motion_threshold", cfg.Camera.MotionThreshold)
	v.SetDefault("camera.idle_fps", cfg.Camera.IdleFPS)
	v.SetDefault("camera.active_fps", cfg.Camera.ActiveFPS)
	v.SetDefault("camera.idle_timeout", cfg.Camera.IdleTimeout)
	v.SetDefault("camera.always_active", cfg.Camera.AlwaysActive)
	v.SetDefault("camera.prefer_right_hand", cfg.Camera.PreferRightHand)
	v.SetDefault("camera.min_confidence", cfg.Camera.MinConfidence)
	v.SetDefault("camera.tracker_script", cfg.Camera.TrackerScript)

	v.SetDefault("plugins.dir", cfg.Plugins.Dir)
	v.SetDefault("plugins.timeout", cfg.Plugins.Timeout)
	v.SetDefault("plugins.queue_size", cfg.Plugins.QueueSize)

	v.SetDefault("telemetry.endpoint", cfg.Telemetry.Endpoint)
	v.SetDefault("telemetry.insecure", cfg.Telemetry.Insecure)
	v.SetDefault("telemetry.service_name", cfg.Telemetry.ServiceName)
}

func defaultDataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".mudra"), nil
}

// resolvePaths fills empty paths relative to the data directory.
func (c *Config) resolvePaths() error {
	if c.DataDir == "" {
		dir, err := defaultDataDir()
		if err != nil {
			return fmt.Errorf("resolve data dir: %w", err)
		}
		c.DataDir = dir
	}
	if c.StorePath == "" {
		c.StorePath = filepath.Join(c.DataDir, "mudra.db")
	}
	if c.Plugins.Dir == "" {
		c.Plugins.Dir = filepath.Join(c.DataDir, "plugins")
	}
	return nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	s := c.Session
	switch {
	case s.Timeout <= 0:
		return errors.New("session.timeout must be positive")
	case s.MaxRetryCount < 0:
		return errors.New("session.max_retry_count must not be negative")
	case s.FeedbackDuration < 0:
		return errors.New("session.feedback_duration must not be negative")
	case s.ProbThreshold < 0 || s.ProbThreshold > 1:
		return errors.New("session.prob_threshold must be within [0, 1]")
	case s.ConfThreshold < 0 || s.ConfThreshold > 1:
		return errors.New("session.conf_threshold must be within [0, 1]")
	case s.MinFrames < 1:
		return errors.New("session.min_frames must be at least 1")
	case s.MinSeconds < 0:
		return errors.New("session.min_seconds must not be negative")
	case s.TickInterval <= 0:
		return errors.New("session.tick_interval must be positive")
	}

	f := c.Features
	switch {
	case f.MaxLength < 1:
		return errors.New("features.max_length must be at least 1")
	case f.FeatureDim < gesture.FeatureCount:
		return fmt.Errorf("features.feature_dim must be at least %d", gesture.FeatureCount)
	case f.AssumedFPS <= 0:
		return errors.New("features.assumed_fps must be positive")
	}

	switch strings.ToLower(c.Inference.Backend) {
	case BackendTemplate:
	case BackendBridge:
		if c.Inference.BridgeAddr == "" {
			return errors.New("inference.bridge_addr is required for the bridge backend")
		}
	default:
		return fmt.Errorf("inference.backend %q is not one of %s, %s", c.Inference.Backend, BackendTemplate, BackendBridge)
	}

	if c.Camera.Enabled && (c.Camera.IdleFPS <= 0 || c.Camera.ActiveFPS <= 0) {
		return errors.New("camera fps must be positive")
	}

	return nil
}

// SessionSettings converts the config into session settings without
// collaborators.
func (c *Config) SessionSettings() session.Config {
	cfg := session.DefaultConfig()
	cfg.Gestures = append([]string(nil), c.Session.Gestures...)
	cfg.Timeout = c.Session.Timeout
	cfg.RetryOnFailure = c.Session.RetryOnFailure
	cfg.MaxRetryCount = c.Session.MaxRetryCount
	cfg.FeedbackDuration = c.Session.FeedbackDuration
	cfg.ProbThreshold = c.Session.ProbThreshold
	cfg.ConfThreshold = c.Session.ConfThreshold
	cfg.MinFrames = c.Session.MinFrames
	cfg.MinSeconds = c.Session.MinSeconds
	cfg.MinInferenceInterval = c.Session.MinInferenceInterval
	cfg.AssumedFPS = c.Features.AssumedFPS
	cfg.PadMissingFrames = c.Features.PadMissingFrames
	cfg.MaxLength = c.Features.MaxLength
	cfg.FeatureDim = c.Features.FeatureDim
	cfg.InferenceTimeout = c.Inference.Timeout
	return cfg
}

// SourceSettings converts the camera section into live tracker settings.
func (c *Config) SourceSettings() capture.SourceConfig {
	cfg := capture.DefaultSourceConfig()
	cfg.IdleFPS = c.Camera.IdleFPS
	cfg.ActiveFPS = c.Camera.ActiveFPS
	cfg.IdleTimeout = c.Camera.IdleTimeout
	cfg.AlwaysActive = c.Camera.AlwaysActive
	cfg.PreferRightHand = c.Camera.PreferRightHand
	return cfg
}

// ClientSettings converts the inference section into bridge client
// settings.
func (c *Config) ClientSettings() bridge.ClientConfig {
	cfg := bridge.DefaultClientConfig()
	cfg.DialTimeout = c.Inference.DialTimeout
	if c.Inference.QueueSize > 0 {
		cfg.QueueSize = c.Inference.QueueSize
	}
	return cfg
}

// DetectorSettings converts the camera section into hand tracker settings.
func (c *Config) DetectorSettings() detector.Config {
	cfg := detector.DefaultConfig()
	cfg.MinConfidence = c.Camera.MinConfidence
	cfg.ScriptPath = c.Camera.TrackerScript
	return cfg
}

// YAML encodes the effective configuration.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}
