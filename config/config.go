package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment variables overriding configuration keys,
// e.g. FACESPACE_MODEL_METRIC for model.metric.
const EnvPrefix = "FACESPACE"

// Config is the main application configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Log        LogConfig        `mapstructure:"log"`
	DB         DBConfig         `mapstructure:"db"`
	Model      ModelConfig      `mapstructure:"model"`
	Classifier ClassifierConfig `mapstructure:"classifier"`
	MQTT       MQTTConfig       `mapstructure:"mqtt"`
	Cleanup    CleanupConfig    `mapstructure:"cleanup"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string   `mapstructure:"host"`
	Port            int      `mapstructure:"port"`
	DataDir         string   `mapstructure:"data_dir"`
	CORSOrigins     []string `mapstructure:"cors_origins"`
	Workers         int      `mapstructure:"workers"`
	MaxUploadMB     int      `mapstructure:"max_upload_mb"`
	HistoryLimit    int      `mapstructure:"history_limit"`
	ShutdownSeconds int      `mapstructure:"shutdown_seconds"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	File   string `mapstructure:"file"`
	Format string `mapstructure:"format"` // text or json
}

// DBConfig holds the SQLite settings.
type DBConfig struct {
	File string `mapstructure:"file"`
}

// ModelConfig holds the face space settings.
type ModelConfig struct {
	PatchWidth         int     `mapstructure:"patch_width"`
	PatchHeight        int     `mapstructure:"patch_height"`
	FaceSpaceThreshold float64 `mapstructure:"face_space_threshold"`
	UnknownThreshold   float64 `mapstructure:"unknown_threshold"`
	Metric             string  `mapstructure:"metric"`       // euclidean, mahalanobis, mahalanobis_cosine
	Decision           string  `mapstructure:"decision"`     // distance or classifier
	Illumination       string  `mapstructure:"illumination"` // none or census
	Preprocessor       string  `mapstructure:"preprocessor"` // imaging or opencv
	TrainOnStart       bool    `mapstructure:"train_on_start"`
}

// ClassifierConfig holds the support vector classifier settings used in
// classifier decision mode.
type ClassifierConfig struct {
	Kernel        string  `mapstructure:"kernel"`
	C             float64 `mapstructure:"c"`
	Gamma         float64 `mapstructure:"gamma"`
	Tolerance     float64 `mapstructure:"tolerance"`
	MaxPasses     int     `mapstructure:"max_passes"`
	MaxIterations int     `mapstructure:"max_iterations"`
}

// MQTTConfig holds the MQTT publisher settings.
type MQTTConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Broker      string `mapstructure:"broker"`
	Port        int    `mapstructure:"port"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	ClientID    string `mapstructure:"client_id"`
	TopicPrefix string `mapstructure:"topic_prefix"`
	QoS         int    `mapstructure:"qos"`
	Retain      bool   `mapstructure:"retain"`

	// HomeAssistant publishes MQTT discovery configs and per-identity sensors.
	HomeAssistant   bool   `mapstructure:"home_assistant"`
	DiscoveryPrefix string `mapstructure:"discovery_prefix"`
}

// CleanupConfig holds the recognition history retention settings.
type CleanupConfig struct {
	RetentionDays int `mapstructure:"retention_days"`
	IntervalHours int `mapstructure:"interval_hours"`
}

// Load reads configuration from defaults, the optional file at configPath and
// environment variables. Later sources override earlier ones.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			log.Warnf("Config file %s does not exist, using defaults", configPath)
		} else {
			v.SetConfigFile(configPath)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			log.Infof("Config loaded from %s", configPath)
		}
	}

	v.AutomaticEnv()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := ensureDirectories(&cfg); err != nil {
		return nil, fmt.Errorf("failed to create required directories: %w", err)
	}

	return &cfg, nil
}

// Validate checks values viper cannot check by type alone.
func (c *Config) Validate() error {
	if c.Model.PatchWidth <= 0 || c.Model.PatchHeight <= 0 {
		return fmt.Errorf("model patch size must be positive, got %dx%d", c.Model.PatchWidth, c.Model.PatchHeight)
	}
	switch c.Model.Decision {
	case "distance", "classifier":
	default:
		return fmt.Errorf("model.decision must be distance or classifier, got %q", c.Model.Decision)
	}
	if c.Server.Workers <= 0 {
		return fmt.Errorf("server.workers must be positive, got %d", c.Server.Workers)
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", c.MQTT.QoS)
	}
	return nil
}

// Address returns the listen address of the HTTP server.
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.data_dir", "./data")
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.workers", 4)
	v.SetDefault("server.max_upload_mb", 16)
	v.SetDefault("server.history_limit", 100)
	v.SetDefault("server.shutdown_seconds", 10)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.format", "text")

	v.SetDefault("db.file", "./data/facespace.db")

	v.SetDefault("model.patch_width", 100)
	v.SetDefault("model.patch_height", 100)
	// Residual in [0,1] pixel units over the whole patch.
	v.SetDefault("model.face_space_threshold", 20.0)
	// Mahalanobis-cosine distance, i.e. a cosine similarity of at least 0.5.
	v.SetDefault("model.unknown_threshold", -0.5)
	v.SetDefault("model.metric", "mahalanobis_cosine")
	v.SetDefault("model.decision", "distance")
	v.SetDefault("model.illumination", "none")
	v.SetDefault("model.preprocessor", "imaging")
	v.SetDefault("model.train_on_start", false)

	v.SetDefault("classifier.kernel", "rbf")
	v.SetDefault("classifier.c", 10.0)
	v.SetDefault("classifier.gamma", 0.001953125)
	v.SetDefault("classifier.tolerance", 1e-3)
	v.SetDefault("classifier.max_passes", 10)
	v.SetDefault("classifier.max_iterations", 10000)

	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "localhost")
	v.SetDefault("mqtt.port", 1883)
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.client_id", "facespace")
	v.SetDefault("mqtt.topic_prefix", "facespace")
	v.SetDefault("mqtt.qos", 0)
	v.SetDefault("mqtt.retain", false)
	v.SetDefault("mqtt.home_assistant", false)
	v.SetDefault("mqtt.discovery_prefix", "homeassistant")

	v.SetDefault("cleanup.retention_days", 30)
	v.SetDefault("cleanup.interval_hours", 24)
}

func ensureDirectories(cfg *Config) error {
	if cfg.Server.DataDir != "" {
		if err := os.MkdirAll(cfg.Server.DataDir, 0755); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	if cfg.Log.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Log.File), 0755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
	}

	if cfg.DB.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.DB.File), 0755); err != nil {
			return fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	return nil
}
