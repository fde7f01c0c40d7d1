package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func setEnv(t *testing.T, kv map[string]string) {
	t.Helper()
	for k, v := range kv {
		t.Setenv(k, v)
	}
}

func TestLoadValid(t *testing.T) {
	setEnv(t, map[string]string{
		"USER_ID":   "a1b2c3d4-e5f6-4a7b-8c9d-0e1f2a3b4c5d",
		"PASSWORD":  "s3cret",
		"DOH_URL":   "https://dns.example.com/dns-query",
		"LOG_LEVEL": "DEBUG",
		"PORT":      "9443",
		"CONFIG":    `[{"path":"/api","backends":["http://a","http://b"]}]`,
	})

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "a1b2c3d4-e5f6-4a7b-8c9d-0e1f2a3b4c5d", cfg.UserID)
	require.Equal(t, 9443, cfg.Port)
	require.Len(t, cfg.Routes, 1)
	require.Equal(t, "/api", cfg.Routes[0].Path)
}

func TestLoadMissingUserID(t *testing.T) {
	setEnv(t, map[string]string{
		"USER_ID":  "",
		"PASSWORD": "s3cret",
	})

	_, err := Load()
	require.Error(t, err)
}

func TestLoadInvalidUserID(t *testing.T) {
	setEnv(t, map[string]string{
		"USER_ID":  "not-a-uuid",
		"PASSWORD": "s3cret",
	})

	_, err := Load()
	require.Error(t, err)
}

func TestLoadBadRouteJSON(t *testing.T) {
	setEnv(t, map[string]string{
		"USER_ID":  "a1b2c3d4-e5f6-4a7b-8c9d-0e1f2a3b4c5d",
		"PASSWORD": "s3cret",
		"CONFIG":   `not json`,
	})

	_, err := Load()
	require.Error(t, err)
}
