package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAppliesDefaultsAndDerived(t *testing.T) {
	path := writeConfig(t, `
app:
  port: 9000
jwt:
  alg: HS256
  hs_secret: s3cret
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.App.Port)
	assert.Equal(t, "9000", cfg.App.PortString())
	assert.Equal(t, 15*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, 30*time.Second, cfg.LockTTL)
	assert.Equal(t, "memory", cfg.Lock.Backend)
	assert.Equal(t, "log", cfg.Push.Provider)
	assert.Equal(t, "New message", cfg.Push.Title)
	assert.Equal(t, 30*time.Second, cfg.BreakerTimeout)
	assert.Equal(t, 120, cfg.App.SendsPerMinute)
	assert.Empty(t, cfg.Consul.Addr)
	assert.True(t, cfg.Dev())
}

func TestLoadEnvOverride(t *testing.T) {
	path := writeConfig(t, `
jwt:
  hs_secret: from-file
`)
	t.Setenv("JWT_HS_SECRET", "from-env")
	t.Setenv("MONGO_DATABASE", "chat_test")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.JWT.HSSecret)
	assert.Equal(t, "chat_test", cfg.Mongo.Database)
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"missing secret": "jwt:\n  alg: HS256\n",
		"bad alg":        "jwt:\n  alg: none\n  hs_secret: x\n",
		"fcm without credentials": "jwt:\n  hs_secret: x\npush:\n  provider: fcm\n",
		"s3 without bucket":       "jwt:\n  hs_secret: x\nstorage:\n  backend: s3\n",
		"bad lock backend":        "jwt:\n  hs_secret: x\nlock:\n  backend: etcd\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}
