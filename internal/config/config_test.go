package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"GO_ENV", "ENVIRONMENT", "ENV", "DATABASE_URL", "REDIS_URL", "JWT_SIGNING_KEY", "MAX_INHERITANCE_DEPTH", "BROADCAST_BUFFER", "SESSION_IDLE_TIMEOUT_SECS"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestLoadDefaultsOutsideProduction(t *testing.T) {
	clearEnv(t)
	t.Setenv("ENVIRONMENT", "development")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultMaxInheritanceDepth, cfg.MaxInheritanceDepth)
	assert.Equal(t, DefaultBroadcastBuffer, cfg.BroadcastBuffer)
	assert.False(t, cfg.IsProduction)
}

func TestLoadFailsFastInProductionWithoutRequiredValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("ENVIRONMENT", "production")

	_, err := Load()
	require.Error(t, err)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Missing, "DATABASE_URL")
	assert.Contains(t, verr.Missing, "JWT_SIGNING_KEY")
}

func TestIntEnvOverridesDefault(t *testing.T) {
	clearEnv(t)
	t.Setenv("ENVIRONMENT", "development")
	t.Setenv("MAX_INHERITANCE_DEPTH", "7")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.MaxInheritanceDepth)
}
