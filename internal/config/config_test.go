package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestValidate checks required fields and format validations for Config.
func TestValidate(t *testing.T) {
	t.Parallel()

	require.Error(t, Validate(nil))
	require.NoError(t, Validate(Default()))

	// Missing name.
	cfg := Default()
	cfg.Name = ""
	require.ErrorIs(t, Validate(cfg), errFieldRequired)

	// No channels.
	cfg = Default()
	cfg.Channels = nil
	require.ErrorIs(t, Validate(cfg), errNoChannels)

	// Bucket is not an S3 URI.
	cfg = Default()
	cfg.Storage.Bucket = "/var/www/update"
	require.ErrorIs(t, Validate(cfg), errBadBucket)

	// Bad download URL.
	cfg = Default()
	cfg.Storage.DownloadBaseURL = "not a url"
	require.Error(t, Validate(cfg))

	// Defaults are filled in.
	cfg = Default()
	cfg.WorkDir = ""
	cfg.UpdateServer.Timeout = 0
	require.NoError(t, Validate(cfg))
	require.Equal(t, ".", cfg.WorkDir)
	require.Equal(t, DefaultUpdateServerTimeout, cfg.UpdateServer.Timeout)
}

// TestLoad_OverlaysDefaults ensures values from YAML override defaults and the rest survive.
func TestLoad_OverlaysDefaults(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "release.yaml")
	contents := `
name: Navigation
command_timeout: 2m
channels:
  beta_test:
    exclude: [debug.html]
storage:
  bucket: s3://example/update/
`
	require.NoError(t, os.WriteFile(path, []byte(contents), DefaultFilePermissions))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "Navigation", cfg.Name)
	require.Equal(t, 2*time.Minute, cfg.CommandTimeout)
	require.Equal(t, "s3://example/update/", cfg.Storage.Bucket)
	require.Equal(t, "public-read", cfg.Storage.ACL)
	require.Equal(t, "cliqz@cliqz.com", cfg.AddonID)
	require.ElementsMatch(t, []string{ChannelBrowser, ChannelAMO, "beta_test"}, cfg.ChannelNames())
}

// TestLoad_MissingFile distinguishes an absent explicit path from an absent default file.
func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

// TestSaveLoadRoundtrip ensures settings are persisted and loaded back correctly.
func TestSaveLoadRoundtrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "settings.yaml")

	settings := Default()
	settings.Name = "Ghostery"
	settings.CommandTimeout = 90 * time.Second

	require.NoError(t, Save(path, settings))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, settings, loaded)

	require.ErrorIs(t, Save(path, nil), errConfigIsNotSet)
}

// TestScratchDir checks the scratch directory naming.
func TestScratchDir(t *testing.T) {
	t.Parallel()

	cfg := Default()
	cfg.SourceDir = "extension/"
	require.Equal(t, "extension_temp", cfg.ScratchDir())
}

// TestLoadCredentials covers present and missing environment variables.
//
//nolint:paralleltest // Mutates process environment.
func TestLoadCredentials(t *testing.T) {
	t.Setenv(EnvUpdateServerUser, "admin")
	t.Setenv(EnvUpdateServerPassword, "secret")

	creds, err := LoadCredentials()
	require.NoError(t, err)
	require.Equal(t, &Credentials{Username: "admin", Password: "secret"}, creds)

	t.Setenv(EnvUpdateServerPassword, "")

	_, err = LoadCredentials()
	require.ErrorIs(t, err, ErrMissingCredentials)
}
