package signer

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/xpi-release/internal/config"
	"github.com/oshokin/xpi-release/internal/domain/release"
	"github.com/oshokin/xpi-release/internal/shell"
	"github.com/oshokin/xpi-release/internal/shell/shelltest"
)

// fakeSign writes the signed output named by the last argument.
func fakeSign(dir string) shelltest.Handler {
	return func(cmd *shell.Command) (string, error) {
		out := cmd.Args[len(cmd.Args)-1]
		return "", os.WriteFile(filepath.Join(dir, out), []byte("signed"), 0o600)
	}
}

func newTestSigner(t *testing.T) (*Signer, *shelltest.Runner, string) {
	t.Helper()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Cliqz.1.0.xpi"), []byte("unsigned"), 0o600))

	cfg := config.Default()
	cfg.WorkDir = dir

	runner := shelltest.NewRunner()

	return New(runner, cfg), runner, dir
}

// TestSigner_Sign_DefaultPaths checks the signer command line with configured defaults.
func TestSigner_Sign_DefaultPaths(t *testing.T) {
	t.Parallel()

	s, runner, dir := newTestSigner(t)
	runner.On("python", fakeSign(dir))

	a := &release.Artifact{FileName: "Cliqz.1.0.xpi"}
	require.NoError(t, s.Sign(context.Background(), a, "", ""))
	require.True(t, a.Signed)

	calls := runner.Find("python")
	require.Len(t, calls, 1)
	require.Equal(t, dir, calls[0].Dir)

	defaults := config.Default().Signer
	require.Equal(t, []string{
		filepath.Join("..", "xpi-sign", "xpisign.py"),
		"-k", defaults.CertPath,
		"--signer", "openssl",
		"--passin", "file:" + defaults.PassPath,
		"UNSIGNED_Cliqz.1.0.xpi", "Cliqz.1.0.xpi",
	}, calls[0].Args)

	unsigned, err := os.ReadFile(filepath.Join(dir, "UNSIGNED_Cliqz.1.0.xpi"))
	require.NoError(t, err)
	require.Equal(t, "unsigned", string(unsigned))

	signed, err := os.ReadFile(filepath.Join(dir, "Cliqz.1.0.xpi"))
	require.NoError(t, err)
	require.Equal(t, "signed", string(signed))
}

// TestSigner_Sign_ExplicitPaths checks explicit certificate paths win over defaults.
func TestSigner_Sign_ExplicitPaths(t *testing.T) {
	t.Parallel()

	s, runner, dir := newTestSigner(t)
	runner.On("python", fakeSign(dir))

	require.NoError(t, s.Sign(context.Background(), &release.Artifact{FileName: "Cliqz.1.0.xpi"}, "/certs/key", "/certs/pass"))

	args := runner.Find("python")[0].Args
	require.Contains(t, args, "/certs/key")
	require.Contains(t, args, "file:/certs/pass")
}

// TestSigner_Sign_Failures covers tool errors and a missing signed output.
func TestSigner_Sign_Failures(t *testing.T) {
	t.Parallel()

	s, runner, _ := newTestSigner(t)

	// Signer exits cleanly but writes nothing.
	a := &release.Artifact{FileName: "Cliqz.1.0.xpi"}
	require.ErrorIs(t, s.Sign(context.Background(), a, "", ""), errNoSignedOutput)
	require.False(t, a.Signed)

	s, runner, _ = newTestSigner(t)
	runner.On("python", func(*shell.Command) (string, error) {
		return "", shell.ErrToolNotFound
	})

	require.ErrorIs(t, s.Sign(context.Background(), &release.Artifact{FileName: "Cliqz.1.0.xpi"}, "", ""), shell.ErrToolNotFound)

	// Nothing to sign.
	require.ErrorIs(t, s.Sign(context.Background(), &release.Artifact{FileName: "missing.xpi"}, "", ""), os.ErrNotExist)
}
