package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(body), 0644))
	return dir
}

func TestLoad_WithValidConfigFile(t *testing.T) {
	t.Cleanup(viper.Reset)

	dir := writeConfig(t, `{
		"logLevel": "debug",
		"server": { "listen": ":9090", "adminKey": "s3cret" },
		"db": { "host": "10.0.0.1", "port": "5433" }
	}`)

	err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "debug", viper.GetString("logLevel"))
	assert.Equal(t, ":9090", viper.GetString("server.listen"))
	assert.Equal(t, "s3cret", viper.GetString("server.adminKey"))
	assert.Equal(t, "10.0.0.1", viper.GetString("db.host"))
	assert.Equal(t, "5433", viper.GetString("db.port"))
}

func TestLoad_DefaultValues(t *testing.T) {
	t.Cleanup(viper.Reset)

	require.NoError(t, Load(writeConfig(t, `{}`)))

	assert.Equal(t, "info", viper.GetString("logLevel"))
	assert.Equal(t, "./logs", viper.GetString("logsDir"))
	assert.Equal(t, ":8080", viper.GetString("server.listen"))
	assert.Equal(t, "", viper.GetString("server.adminKey"))
	assert.Equal(t, "localhost", viper.GetString("db.host"))
	assert.Equal(t, "5432", viper.GetString("db.port"))
	assert.Equal(t, "gridroyale", viper.GetString("db.database"))
	assert.Equal(t, "memory", viper.GetString("storage.type"))
	assert.Equal(t, 200, viper.GetInt("storage.memory.maxFrames"))
	assert.Equal(t, "3m", viper.GetString("storage.sqlite.dumpInterval"))
	assert.Equal(t, false, viper.GetBool("influx.enabled"))
	assert.Equal(t, "matches", viper.GetString("influx.bucket"))
	assert.Equal(t, "fixed", viper.GetString("game.rating"))
}

func TestLoad_MissingFile(t *testing.T) {
	t.Cleanup(viper.Reset)

	err := Load("/nonexistent/path")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error reading config file")
}

func TestGetString(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("testKey", "testValue")
	assert.Equal(t, "testValue", GetString("testKey"))
}

func TestGetInt(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("testInt", 42)
	assert.Equal(t, 42, GetInt("testInt"))
}

func TestGetBool(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("testBool", true)
	assert.Equal(t, true, GetBool("testBool"))
}

func TestGetGameConfig_Defaults(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{}`)))

	gc := GetGameConfig()
	assert.Equal(t, 15, gc.Rules.GridSize)
	assert.Equal(t, 100, gc.Rules.MaxTicks)
	assert.Equal(t, 3, gc.Rules.StartingHP)
	assert.Equal(t, 5, gc.Rules.BulletRange)
	assert.Equal(t, 10, gc.Rules.ShrinkInterval)
	assert.Equal(t, 5, gc.Rules.MaxTimeouts)
	assert.Equal(t, 2, gc.Rules.MinPlayers)
	assert.Equal(t, 8, gc.Rules.MaxPlayers)
	assert.NoError(t, gc.Rules.Validate())
	assert.Equal(t, 3*time.Second, gc.ActionTimeout)
	assert.Equal(t, time.Second, gc.ResolveInterval)
	assert.False(t, gc.RequireVerified)
	assert.Equal(t, "fixed", gc.Rating)
	assert.Equal(t, uint64(0), gc.Seed)
}

func TestGetGameConfig_Override(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{
		"game": {
			"gridSize": 21,
			"maxPlayers": 4,
			"actionTimeout": "500ms",
			"requireVerified": true,
			"rating": "elo",
			"seed": 7
		}
	}`)))

	gc := GetGameConfig()
	assert.Equal(t, 21, gc.Rules.GridSize)
	assert.Equal(t, 4, gc.Rules.MaxPlayers)
	assert.Equal(t, 500*time.Millisecond, gc.ActionTimeout)
	assert.True(t, gc.RequireVerified)
	assert.Equal(t, "elo", gc.Rating)
	assert.Equal(t, uint64(7), gc.Seed)
}

func TestGetStorageConfig_Defaults(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{}`)))

	cfg := GetStorageConfig()
	assert.Equal(t, "memory", cfg.Type)
	assert.Equal(t, 200, cfg.Memory.MaxFrames)
	assert.Equal(t, 3*time.Minute, cfg.SQLite.DumpInterval)
	assert.Equal(t, "./data/gridroyale.db", cfg.SQLite.DumpPath)
}

func TestGetStorageConfig_Override(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{
		"storage": {
			"type": "sqlite",
			"memory": { "maxFrames": 10 },
			"sqlite": { "dumpInterval": "10m", "dumpPath": "/tmp/gr.db" }
		}
	}`)))

	sc := GetStorageConfig()
	assert.Equal(t, "sqlite", sc.Type)
	assert.Equal(t, 10, sc.Memory.MaxFrames)
	assert.Equal(t, 10*time.Minute, sc.SQLite.DumpInterval)
	assert.Equal(t, "/tmp/gr.db", sc.SQLite.DumpPath)
}

func TestGetOTelConfig_Defaults(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{}`)))

	cfg := GetOTelConfig()
	assert.Equal(t, false, cfg.Enabled)
	assert.Equal(t, "gridroyale", cfg.ServiceName)
	assert.Equal(t, 5*time.Second, cfg.BatchTimeout)
	assert.Equal(t, 30*time.Second, cfg.MetricsInterval)
	assert.Equal(t, "", cfg.Endpoint)
	assert.Equal(t, true, cfg.Insecure)
}

func TestGetOTelConfig_Override(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{
		"otel": {
			"enabled": true,
			"serviceName": "my-service",
			"batchTimeout": "30s",
			"endpoint": "localhost:4318",
			"insecure": false
		}
	}`)))

	oc := GetOTelConfig()
	assert.Equal(t, true, oc.Enabled)
	assert.Equal(t, "my-service", oc.ServiceName)
	assert.Equal(t, 30*time.Second, oc.BatchTimeout)
	assert.Equal(t, "localhost:4318", oc.Endpoint)
	assert.Equal(t, false, oc.Insecure)
}

func TestGetInfluxConfig(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{
		"influx": { "enabled": true, "host": "influx.local", "port": "9999", "protocol": "https" }
	}`)))

	ic := GetInfluxConfig()
	assert.True(t, ic.Enabled)
	assert.Equal(t, "https://influx.local:9999", ic.URL)
	assert.Equal(t, "gridroyale", ic.Org)
	assert.Equal(t, "matches", ic.Bucket)
}

func TestGetServerMonitorAndBotConfig(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{
		"bot": { "count": 5 },
		"monitor": { "interval": "1m" }
	}`)))

	assert.Equal(t, 10*time.Second, GetServerConfig().ReadTimeout)
	assert.Equal(t, time.Minute, GetMonitorConfig().Interval)

	bc := GetBotConfig()
	assert.Equal(t, 5, bc.Count)
	assert.Equal(t, "http://localhost:8080", bc.ServerURL)
	assert.Equal(t, "filler", bc.NamePrefix)
	assert.Equal(t, 500*time.Millisecond, bc.PollInterval)
}
