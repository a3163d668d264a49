package config

import (
	"fmt"
	"time"

	"github.com/botroyale/gridroyale/internal/royale"
	"github.com/spf13/viper"
)

// FileName is the config file looked up in the config directory.
const FileName = "gridroyale.cfg.json"

// ServerConfig holds HTTP listener settings
type ServerConfig struct {
	Listen       string
	AdminKey     string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// GameConfig holds the match rules and engine timing
type GameConfig struct {
	Rules           royale.Rules
	ActionTimeout   time.Duration
	ResolveInterval time.Duration
	RequireVerified bool
	Rating          string
	Seed            uint64
}

// MemoryConfig holds in-memory storage backend settings
type MemoryConfig struct {
	MaxFrames int `json:"maxFrames" mapstructure:"maxFrames"`
}

// SQLiteConfig holds SQLite storage backend settings
type SQLiteConfig struct {
	DumpInterval time.Duration
	DumpPath     string
}

// StorageConfig selects and configures the storage backend
type StorageConfig struct {
	Type   string
	Memory MemoryConfig
	SQLite SQLiteConfig
}

// OTelConfig holds OpenTelemetry settings
type OTelConfig struct {
	Enabled         bool
	ServiceName     string
	BatchTimeout    time.Duration
	MetricsInterval time.Duration
	Endpoint        string
	Insecure        bool
}

// InfluxConfig holds InfluxDB match metrics settings
type InfluxConfig struct {
	Enabled    bool
	URL        string
	Token      string
	Org        string
	Bucket     string
	BackupPath string
}

// MonitorConfig holds status monitor settings
type MonitorConfig struct {
	Interval   time.Duration
	StatusFile string
}

// BotConfig holds filler bot settings
type BotConfig struct {
	ServerURL    string
	Count        int
	NamePrefix   string
	PollInterval time.Duration
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file.
func Load(configDir string) error {
	setDefaults()

	viper.SetConfigName(FileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}

	return nil
}

func setDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./logs")

	viper.SetDefault("server.listen", ":8080")
	viper.SetDefault("server.adminKey", "")
	viper.SetDefault("server.readTimeout", "10s")
	viper.SetDefault("server.writeTimeout", "10s")

	rules := royale.DefaultRules()
	viper.SetDefault("game.gridSize", rules.GridSize)
	viper.SetDefault("game.maxTicks", rules.MaxTicks)
	viper.SetDefault("game.startingHp", rules.StartingHP)
	viper.SetDefault("game.bulletRange", rules.BulletRange)
	viper.SetDefault("game.bulletDamage", rules.BulletDamage)
	viper.SetDefault("game.zoneDamage", rules.ZoneDamage)
	viper.SetDefault("game.shrinkInterval", rules.ShrinkInterval)
	viper.SetDefault("game.shrinkStep", rules.ShrinkStep)
	viper.SetDefault("game.maxTimeouts", rules.MaxTimeouts)
	viper.SetDefault("game.minPlayers", rules.MinPlayers)
	viper.SetDefault("game.maxPlayers", rules.MaxPlayers)
	viper.SetDefault("game.actionTimeout", "3s")
	viper.SetDefault("game.resolveInterval", "1s")
	viper.SetDefault("game.requireVerified", false)
	viper.SetDefault("game.rating", "fixed")
	viper.SetDefault("game.seed", 0)

	viper.SetDefault("storage.type", "memory")
	viper.SetDefault("storage.memory.maxFrames", 200)
	viper.SetDefault("storage.sqlite.dumpInterval", "3m")
	viper.SetDefault("storage.sqlite.dumpPath", "./data/gridroyale.db")

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "gridroyale")
	viper.SetDefault("db.sslmode", "disable")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "gridroyale")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.metricsInterval", "30s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "supersecrettoken")
	viper.SetDefault("influx.org", "gridroyale")
	viper.SetDefault("influx.bucket", "matches")
	viper.SetDefault("influx.backupPath", "./data/influx_backup.lp.gz")

	viper.SetDefault("monitor.interval", "30s")
	viper.SetDefault("monitor.statusFile", "")

	viper.SetDefault("bot.serverUrl", "http://localhost:8080")
	viper.SetDefault("bot.count", 2)
	viper.SetDefault("bot.namePrefix", "filler")
	viper.SetDefault("bot.pollInterval", "500ms")
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

// GetServerConfig returns the HTTP server settings.
func GetServerConfig() ServerConfig {
	return ServerConfig{
		Listen:       viper.GetString("server.listen"),
		AdminKey:     viper.GetString("server.adminKey"),
		ReadTimeout:  viper.GetDuration("server.readTimeout"),
		WriteTimeout: viper.GetDuration("server.writeTimeout"),
	}
}

// GetGameConfig returns the match rules and engine timing.
func GetGameConfig() GameConfig {
	return GameConfig{
		Rules: royale.Rules{
			GridSize:       viper.GetInt("game.gridSize"),
			MaxTicks:       viper.GetInt("game.maxTicks"),
			StartingHP:     viper.GetInt("game.startingHp"),
			BulletRange:    viper.GetInt("game.bulletRange"),
			BulletDamage:   viper.GetInt("game.bulletDamage"),
			ZoneDamage:     viper.GetInt("game.zoneDamage"),
			ShrinkInterval: viper.GetInt("game.shrinkInterval"),
			ShrinkStep:     viper.GetInt("game.shrinkStep"),
			MaxTimeouts:    viper.GetInt("game.maxTimeouts"),
			MinPlayers:     viper.GetInt("game.minPlayers"),
			MaxPlayers:     viper.GetInt("game.maxPlayers"),
		},
		ActionTimeout:   viper.GetDuration("game.actionTimeout"),
		ResolveInterval: viper.GetDuration("game.resolveInterval"),
		RequireVerified: viper.GetBool("game.requireVerified"),
		Rating:          viper.GetString("game.rating"),
		Seed:            viper.GetUint64("game.seed"),
	}
}

// GetStorageConfig returns the storage backend settings.
func GetStorageConfig() StorageConfig {
	return StorageConfig{
		Type: viper.GetString("storage.type"),
		Memory: MemoryConfig{
			MaxFrames: viper.GetInt("storage.memory.maxFrames"),
		},
		SQLite: SQLiteConfig{
			DumpInterval: viper.GetDuration("storage.sqlite.dumpInterval"),
			DumpPath:     viper.GetString("storage.sqlite.dumpPath"),
		},
	}
}

// GetOTelConfig returns the OpenTelemetry settings.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:         viper.GetBool("otel.enabled"),
		ServiceName:     viper.GetString("otel.serviceName"),
		BatchTimeout:    viper.GetDuration("otel.batchTimeout"),
		MetricsInterval: viper.GetDuration("otel.metricsInterval"),
		Endpoint:        viper.GetString("otel.endpoint"),
		Insecure:        viper.GetBool("otel.insecure"),
	}
}

// GetInfluxConfig returns the InfluxDB settings.
func GetInfluxConfig() InfluxConfig {
	return InfluxConfig{
		Enabled: viper.GetBool("influx.enabled"),
		URL: fmt.Sprintf("%s://%s:%s",
			viper.GetString("influx.protocol"),
			viper.GetString("influx.host"),
			viper.GetString("influx.port"),
		),
		Token:      viper.GetString("influx.token"),
		Org:        viper.GetString("influx.org"),
		Bucket:     viper.GetString("influx.bucket"),
		BackupPath: viper.GetString("influx.backupPath"),
	}
}

// GetMonitorConfig returns the status monitor settings.
func GetMonitorConfig() MonitorConfig {
	return MonitorConfig{
		Interval:   viper.GetDuration("monitor.interval"),
		StatusFile: viper.GetString("monitor.statusFile"),
	}
}

// GetBotConfig returns the filler bot settings.
func GetBotConfig() BotConfig {
	return BotConfig{
		ServerURL:    viper.GetString("bot.serverUrl"),
		Count:        viper.GetInt("bot.count"),
		NamePrefix:   viper.GetString("bot.namePrefix"),
		PollInterval: viper.GetDuration("bot.pollInterval"),
	}
}
