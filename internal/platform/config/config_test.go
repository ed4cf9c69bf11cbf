package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	cfg := FromEnv()
	require.Equal(t, ":8080", cfg.Addr)
	require.Equal(t, "development", cfg.Environment)
	require.Equal(t, 30*time.Second, cfg.CommandTimeout)
	require.Equal(t, 4, cfg.MaxConcurrentDeployments)
	require.NotEmpty(t, cfg.JWTSigningKey)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("BASTION_ADDR", ":9999")
	t.Setenv("BASTION_COMMAND_TIMEOUT", "5s")
	t.Setenv("BASTION_MAX_CONCURRENT_DEPLOYMENTS", "2")
	t.Setenv("BASTION_JWT_SIGNING_KEY", "test-key")

	cfg := FromEnv()
	require.Equal(t, ":9999", cfg.Addr)
	require.Equal(t, 5*time.Second, cfg.CommandTimeout)
	require.Equal(t, 2, cfg.MaxConcurrentDeployments)
	require.Equal(t, "test-key", cfg.JWTSigningKey)
}

func TestLoadPolicyDefault(t *testing.T) {
	pol, err := LoadPolicy("")
	require.NoError(t, err)
	require.NoError(t, pol.CheckCommand("git status"))
	require.Error(t, pol.CheckCommand("rm -rf /"))
}

func TestLoadPolicyFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	doc := `
allowed_executables:
  - git
  - make
deny_patterns:
  - 'rm\s+-rf'
trusted_repo_pattern: '^https://git\.internal/'
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	pol, err := LoadPolicy(path)
	require.NoError(t, err)
	require.NoError(t, pol.CheckCommand("make build"))
	require.Error(t, pol.CheckCommand("npm install"), "npm is not in the file's allow list")
	require.Error(t, pol.CheckCommand("rm -rf /tmp"))
	require.NoError(t, pol.CheckRepoURL("https://git.internal/team/app.git"))
	require.Error(t, pol.CheckRepoURL("https://github.com/evil/app.git"))
}

func TestLoadPolicyBadFile(t *testing.T) {
	_, err := LoadPolicy(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
