package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("REFRESH_HASH_SECRET", testSecret)

	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":8080", c.Server.Addr)
	assert.Equal(t, "memory", c.Storage.Driver)
	assert.Equal(t, "memory", c.Protocol.Driver)
	assert.Equal(t, "memory", c.Cache.Kind)
	assert.Equal(t, 14*24*time.Hour, c.Session.SlidingWindow)
	assert.Equal(t, 90*24*time.Hour, c.Session.AbsoluteLifetime)
	assert.Equal(t, time.Minute, c.Session.ExtensionEventThreshold)
	assert.Equal(t, []string{"log"}, c.Audit.Sinks)
	assert.Equal(t, "partial", c.Audit.Masking)
	assert.False(t, c.RateLimit.Enabled)
	assert.Equal(t, 60, c.RateLimit.Max)
	assert.Equal(t, time.Minute, c.RateLimit.Window)
}

func TestLoad_YAMLAndEnvOverrides(t *testing.T) {
	p := writeYAML(t, `
server:
  addr: ":9000"
storage:
  driver: postgres
  dsn: postgres://u:p@localhost/grantkeeper
session:
  sliding_window: 30m
  absolute_lifetime: 1h
security:
  refresh_hash_secret: `+testSecret+`
audit:
  masking: full
`)
	t.Setenv("SERVER_ADDR", ":9100")
	t.Setenv("AUDIT_SINKS", "db, log")

	c, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, ":9100", c.Server.Addr)
	assert.Equal(t, 30*time.Minute, c.Session.SlidingWindow)
	assert.Equal(t, time.Hour, c.Session.AbsoluteLifetime)
	assert.Equal(t, "postgres", c.Protocol.Driver)
	assert.Equal(t, c.Storage.DSN, c.Protocol.DSN)
	assert.Equal(t, []string{"db", "log"}, c.Audit.Sinks)
	assert.Equal(t, "full", c.Audit.Masking)
}

func TestValidate(t *testing.T) {
	cases := map[string]struct {
		yaml string
		want string
	}{
		"short secret": {
			yaml: "security:\n  refresh_hash_secret: short\n",
			want: "refresh_hash_secret",
		},
		"unknown driver": {
			yaml: "storage:\n  driver: mongo\nsecurity:\n  refresh_hash_secret: " + testSecret + "\n",
			want: "unknown storage.driver",
		},
		"mysql without dsn": {
			yaml: "storage:\n  driver: mysql\nsecurity:\n  refresh_hash_secret: " + testSecret + "\n",
			want: "storage.dsn required",
		},
		"sliding past absolute": {
			yaml: "session:\n  sliding_window: 2h\n  absolute_lifetime: 1h\nsecurity:\n  refresh_hash_secret: " + testSecret + "\n",
			want: "exceeds",
		},
		"bad masking": {
			yaml: "audit:\n  masking: some\nsecurity:\n  refresh_hash_secret: " + testSecret + "\n",
			want: "audit.masking",
		},
		"short jwt secret": {
			yaml: "jwt:\n  hmac_secret: short\nsecurity:\n  refresh_hash_secret: " + testSecret + "\n",
			want: "jwt.hmac_secret",
		},
		"bad rate limit": {
			yaml: "rate_limit:\n  enabled: true\n  max: -1\nsecurity:\n  refresh_hash_secret: " + testSecret + "\n",
			want: "rate_limit",
		},
		"redis sink without redis": {
			yaml: "audit:\n  sinks: [redis]\nsecurity:\n  refresh_hash_secret: " + testSecret + "\n",
			want: "requires cache.redis.addr",
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeYAML(t, tc.yaml))
			require.Error(t, err)
			assert.True(t, strings.Contains(err.Error(), tc.want), err.Error())
		})
	}
}

func TestGetEnvCSV(t *testing.T) {
	t.Setenv("X_CSV", " a, ,b ")
	v, ok := getEnvCSV("X_CSV")
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, v)

	_, ok = getEnvCSV("X_CSV_MISSING")
	assert.False(t, ok)
}
