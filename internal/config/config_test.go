package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsFromEnvOnly(t *testing.T) {
	t.Setenv("CARPOOL_MAPS__API_KEY", "key")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "51.155406,71.4101", cfg.Route.Destination)
	assert.Equal(t, 2*time.Hour, cfg.Route.DurationBudget)
	assert.Equal(t, 5*time.Minute, cfg.Route.ProximityThreshold)
	assert.Equal(t, 50.0, cfg.Route.ArrivalRadiusM)
	assert.Equal(t, 10*time.Second, cfg.Route.ProviderTimeout)
	assert.Equal(t, 3, cfg.Route.JoinAttempts)
	assert.Empty(t, cfg.DB.DSN)
	assert.Empty(t, cfg.Kafka.Brokers)
}

func TestLoadYAMLWithEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "carpool.yaml")
	body := `
http:
  addr: ":9090"
maps:
  api_key: from-file
route:
  destination: "25.0478,121.5170"
  duration_budget: 90m
  join_attempts: 5
kafka:
  brokers: ["k1:9092", "k2:9092"]
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	t.Setenv("CARPOOL_HTTP__ADDR", ":7070")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.HTTP.Addr)
	assert.Equal(t, "from-file", cfg.Maps.APIKey)
	assert.Equal(t, "25.0478,121.5170", cfg.Route.Destination)
	assert.Equal(t, 90*time.Minute, cfg.Route.DurationBudget)
	assert.Equal(t, 5, cfg.Route.JoinAttempts)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "carpool.route-events", cfg.Kafka.Topic)
}

func TestLoadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "carpool.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"maps":{"api_key":"k"},"log":{"level":"debug"}}`), 0o600))
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadRejectsUnknownExtension(t *testing.T) {
	_, err := Load("carpool.toml")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := &Config{}
	cfg.SetDefaults()
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)

	cfg.Maps.APIKey = "k"
	require.NoError(t, cfg.Validate())

	cfg.Route.Destination = "nowhere"
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)

	cfg.Route.Destination = "1,1"
	cfg.Firebase.CredentialsFile = "creds.json"
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
}

func TestValidateRejectsSubSecondDurations(t *testing.T) {
	cfg := &Config{Maps: MapsConfig{APIKey: "k"}}
	cfg.Route.DurationBudget = 7200
	cfg.SetDefaults()
	err := cfg.Validate()
	require.ErrorIs(t, err, ErrInvalidConfig)
	assert.Contains(t, err.Error(), "route.duration_budget")

	cfg.Route.DurationBudget = 2 * time.Hour
	cfg.Route.ProximityThreshold = 300 * time.Millisecond
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
}

func TestLoadRejectsUnitlessDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "carpool.yaml")
	body := "maps:\n  api_key: k\nroute:\n  duration_budget: 7200\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	_, err := Load(path)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
