package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// DBConfig holds the label database connection settings.
type DBConfig struct {
	Host     string `json:"host" mapstructure:"host"`
	Port     string `json:"port" mapstructure:"port"`
	Username string `json:"username" mapstructure:"username"`
	Password string `json:"password" mapstructure:"password"`
	Database string `json:"database" mapstructure:"database"`
}

// LabelsConfig selects where labels are loaded from.
type LabelsConfig struct {
	// Source is one of "fallback", "sqlite", "postgres".
	Source     string `json:"source" mapstructure:"source"`
	SQLitePath string `json:"sqlitePath" mapstructure:"sqlitePath"`
}

// BridgeConfig holds the optional cross-context WebSocket bridge settings.
type BridgeConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	URL     string `json:"url" mapstructure:"url"`
	Secret  string `json:"secret" mapstructure:"secret"`
}

// OTelConfig holds OpenTelemetry export settings.
type OTelConfig struct {
	Enabled      bool          `json:"enabled" mapstructure:"enabled"`
	ServiceName  string        `json:"serviceName" mapstructure:"serviceName"`
	BatchTimeout time.Duration `json:"batchTimeout" mapstructure:"batchTimeout"`
	Endpoint     string        `json:"endpoint" mapstructure:"endpoint"`
	Insecure     bool          `json:"insecure" mapstructure:"insecure"`
}

// InfluxConfig holds the paint-statistics reporter settings.
type InfluxConfig struct {
	Enabled  bool   `json:"enabled" mapstructure:"enabled"`
	Host     string `json:"host" mapstructure:"host"`
	Port     string `json:"port" mapstructure:"port"`
	Protocol string `json:"protocol" mapstructure:"protocol"`
	Token    string `json:"token" mapstructure:"token"`
	Org      string `json:"org" mapstructure:"org"`
	Bucket   string `json:"bucket" mapstructure:"bucket"`
}

// DebugConfig holds developer toggles.
type DebugConfig struct {
	// GridHighlight outlines intercepted tile draws.
	GridHighlight bool `json:"gridHighlight" mapstructure:"gridHighlight"`
	// SingleLabel restricts compositing to the named label.
	SingleLabel string `json:"singleLabel" mapstructure:"singleLabel"`
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file.
func Load(configDir string) error {
	// Set default values
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./overlaylogs")

	viper.SetDefault("overlay.tileUnit", 256)
	viper.SetDefault("overlay.mode", "auto")

	viper.SetDefault("labels.source", "fallback")
	viper.SetDefault("labels.sqlitePath", "")

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "overlay")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "")
	viper.SetDefault("influx.org", "overlay-metrics")
	viper.SetDefault("influx.bucket", "overlay")

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("bridge.enabled", false)
	viper.SetDefault("bridge.url", "ws://localhost:8777/overlay")
	viper.SetDefault("bridge.secret", "")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "tile-overlay")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)

	viper.SetDefault("debug.gridHighlight", false)
	viper.SetDefault("debug.singleLabel", "")

	viper.SetConfigName("overlay.cfg.json")
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %v", err)
	}

	return nil
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetDBConfig returns the label database settings.
func GetDBConfig() DBConfig {
	return DBConfig{
		Host:     viper.GetString("db.host"),
		Port:     viper.GetString("db.port"),
		Username: viper.GetString("db.username"),
		Password: viper.GetString("db.password"),
		Database: viper.GetString("db.database"),
	}
}

// GetLabelsConfig returns the label source settings.
func GetLabelsConfig() LabelsConfig {
	return LabelsConfig{
		Source:     viper.GetString("labels.source"),
		SQLitePath: viper.GetString("labels.sqlitePath"),
	}
}

// GetBridgeConfig returns the cross-context bridge settings.
func GetBridgeConfig() BridgeConfig {
	return BridgeConfig{
		Enabled: viper.GetBool("bridge.enabled"),
		URL:     viper.GetString("bridge.url"),
		Secret:  viper.GetString("bridge.secret"),
	}
}

// GetOTelConfig returns the OpenTelemetry settings.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:      viper.GetBool("otel.enabled"),
		ServiceName:  viper.GetString("otel.serviceName"),
		BatchTimeout: viper.GetDuration("otel.batchTimeout"),
		Endpoint:     viper.GetString("otel.endpoint"),
		Insecure:     viper.GetBool("otel.insecure"),
	}
}

// GetInfluxConfig returns the paint-statistics reporter settings.
func GetInfluxConfig() InfluxConfig {
	return InfluxConfig{
		Enabled:  viper.GetBool("influx.enabled"),
		Host:     viper.GetString("influx.host"),
		Port:     viper.GetString("influx.port"),
		Protocol: viper.GetString("influx.protocol"),
		Token:    viper.GetString("influx.token"),
		Org:      viper.GetString("influx.org"),
		Bucket:   viper.GetString("influx.bucket"),
	}
}

// GetDebugConfig returns the developer toggles.
func GetDebugConfig() DebugConfig {
	return DebugConfig{
		GridHighlight: viper.GetBool("debug.gridHighlight"),
		SingleLabel:   viper.GetString("debug.singleLabel"),
	}
}
