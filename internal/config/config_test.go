package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nanoncore/nano-onuprov/types"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "onuprov.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Session.MaxRetries)
	assert.Equal(t, 5*time.Second, cfg.Session.RetryBackoff)
	assert.Equal(t, "end", cfg.Session.ResetCommand)
	assert.Equal(t, "Bridge", cfg.ZTE.ONUType)
	assert.Equal(t, 128, cfg.ZTE.MaxONUID)
	assert.Equal(t, types.DefaultCommandTimeout, cfg.SSH.Timeout)
	assert.Equal(t, "json", cfg.Store.Backend)
	assert.Equal(t, "local", cfg.Archive.Backend)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
session:
  max_retries: 5
  retry_backoff: 2s
zte:
  tcont_profile: UP-200M
  error_markers: ["Error", "%Fail"]
batch:
  verify: true
archive:
  backend: minio
  minio:
    endpoint: minio.local:9000
    bucket: traces
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Session.MaxRetries)
	assert.Equal(t, 2*time.Second, cfg.Session.RetryBackoff)
	assert.True(t, cfg.Batch.Verify)
	assert.Equal(t, "traces", cfg.Archive.Minio.Bucket)

	opts := cfg.ZTEOptions()
	assert.Equal(t, "UP-200M", opts.TCONTProfile)
	assert.Equal(t, "Bridge", opts.ONUType)
	assert.Equal(t, []string{"Error", "%Fail"}, opts.ErrorMarkers)

	sc := cfg.SessionConfig()
	assert.Equal(t, 5, sc.MaxRetries)
}

func TestLoadEnvOverrides(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("ONUPROV_SESSION_MAX_RETRIES", "7")
	t.Setenv("ONUPROV_ZTE_ONU_TYPE", "F660")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.Session.MaxRetries)
	assert.Equal(t, "F660", cfg.ZTE.ONUType)
}

func TestLegacyCredentials(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	_, ok := cfg.LegacyCredentials()
	assert.False(t, ok)

	t.Setenv("OLT_HOST", "192.168.10.2")
	t.Setenv("OLT_PORT", "2222")
	t.Setenv("OLT_USERNAME", "zte")
	t.Setenv("OLT_PASSWORD", "secret")

	cfg, err = Load("")
	require.NoError(t, err)
	creds, ok := cfg.LegacyCredentials()
	require.True(t, ok)
	assert.Equal(t, "192.168.10.2", creds.Address)
	assert.Equal(t, 2222, creds.Port)
	assert.Equal(t, "zte", creds.Username)
	assert.Equal(t, "secret", creds.Password)
	assert.Equal(t, types.VendorZTE, creds.Vendor)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "store:\n  backend: redis\n"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "session:\n  max_retries: -1\n"))
	assert.Error(t, err)
}

func TestBatchOptionsAppliesDeviceMetadata(t *testing.T) {
	chdir(t, t.TempDir())
	cfg, err := Load("")
	require.NoError(t, err)

	opts := cfg.BatchOptions(types.DeviceCredentials{Metadata: map[string]string{"zte.tcont_profile": "VIP"}})
	assert.Equal(t, "VIP", opts.ZTE.TCONTProfile)
	assert.Equal(t, 3, opts.Session.MaxRetries)
}

// chdir changes the working directory for the duration of the test
// (stand-in for testing.T.Chdir, which needs Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(prev); err != nil {
			t.Fatal(err)
		}
	})
}
