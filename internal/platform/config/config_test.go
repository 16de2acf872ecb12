package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDatabaseConfigDSN(t *testing.T) {
	c := DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "p", Database: "daemonflow", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=daemonflow sslmode=disable", c.DSN())
}

func TestRedisConfigAddr(t *testing.T) {
	c := RedisConfig{Host: "cache", Port: 6379}
	assert.Equal(t, "cache:6379", c.Addr())
}

func TestToEnvPrefix(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"single word", "orchestrator", "ORCHESTRATOR"},
		{"camel case splits on boundary", "actionWorker", "ACTION_WORKER"},
		{"already upper", "ABC", "A_B_C"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, toEnvPrefix(tc.in))
		})
	}
}

func TestLoadAppliesDefaultsWithNoConfigFilePresent(t *testing.T) {
	cfg, err := Load("orchestrator")
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "orchestrator", cfg.Service.Name)
	assert.Equal(t, 4, cfg.Daemon.NumActionWorkers)
	assert.Equal(t, "workflow.results", cfg.Kafka.Topic)
	assert.Equal(t, "dev", cfg.Version)
}
