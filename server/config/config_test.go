package config

import (
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) Manager {
	t.Helper()
	cmd := &cobra.Command{}
	cmd.PersistentFlags().String("config", "", "config file")
	return NewManager(cmd)
}

func TestLoadConfigDefaults(t *testing.T) {
	man := newTestManager(t)
	conf := man.LoadConfig()

	assert.Equal(t, "localhost:3306", conf.Mysql.Address)
	assert.Equal(t, "soteria", conf.Mysql.Database)
	assert.Equal(t, 100, conf.Fleet.PerPage)
	assert.Equal(t, 30*time.Second, conf.Fleet.Timeout)
	assert.Equal(t, 5*time.Minute, conf.Sync.Interval)
	assert.Equal(t, 10, conf.Sync.Workers)
	assert.InDelta(t, 0.1, conf.Sync.FailureTolerance, 0.0001)
	assert.False(t, conf.Logging.Debug)
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("SOTERIA_FLEET_URL", "https://fleet.example.com")
	t.Setenv("SOTERIA_SYNC_WORKERS", "3")
	t.Setenv("SOTERIA_LOGGING_DEBUG", "true")

	man := newTestManager(t)
	conf := man.LoadConfig()

	assert.Equal(t, "https://fleet.example.com", conf.Fleet.URL)
	assert.Equal(t, 3, conf.Sync.Workers)
	assert.True(t, conf.Logging.Debug)
}

func TestIsSet(t *testing.T) {
	t.Setenv("SOTERIA_MYSQL_ADDRESS", "db:3306")

	man := newTestManager(t)
	require.True(t, man.IsSet("mysql.address"))
	require.False(t, man.IsSet("mysql.username"))
}
