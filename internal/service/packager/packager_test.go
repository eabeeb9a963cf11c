package packager

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/oshokin/xpi-release/internal/config"
	"github.com/oshokin/xpi-release/internal/domain/release"
	"github.com/oshokin/xpi-release/internal/logger"
	"github.com/oshokin/xpi-release/internal/shell"
	"github.com/oshokin/xpi-release/internal/shell/shelltest"
)

const testDescribe = "0.4.08-2-gb4f9f56"

// fixture is a release working directory with an extension source tree.
type fixture struct {
	cfg    *config.Config
	runner *shelltest.Runner
	work   string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	root := t.TempDir()
	work := filepath.Join(root, "firefox")

	files := map[string]string{
		filepath.Join(root, "package.json"):                                   `{"version": "0.4.08"}`,
		filepath.Join(work, "templates", "install.rdf"):                       `{{ .Name }} {{ .Version }} {{ .Folder }} {{ .Beta }}`,
		filepath.Join(work, "extension", "chrome", "content", "abtests.html"): "<html></html>",
		filepath.Join(work, "extension", "chrome", "content", "core.js"):      "var CLIQZ = {};",
		filepath.Join(work, "extension", ".DS_Store"):                         "finder",
		filepath.Join(work, "extension", "chrome", ".DS_Store"):               "finder",
		filepath.Join(work, "extension", "bootstrap.js"):                      "function startup() {}",
	}
	for path, contents := range files {
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	}

	cfg := config.Default()
	cfg.WorkDir = work

	runner := shelltest.NewRunner().WithFileTools().
		On("git", func(*shell.Command) (string, error) {
			return testDescribe, nil
		}).
		On("python", func(cmd *shell.Command) (string, error) {
			out := cmd.Args[len(cmd.Args)-1]
			return "", os.WriteFile(filepath.Join(cmd.Dir, out), []byte("signed"), 0o600)
		})

	return &fixture{
		cfg:    cfg,
		runner: runner,
		work:   work,
	}
}

func (f *fixture) entries(t *testing.T, name string) []string {
	t.Helper()

	entries, err := shelltest.ArchiveEntries(filepath.Join(f.work, name))
	require.NoError(t, err)

	return entries
}

// TestPackage_BetaFromTags covers the tag 0.4.08-2-gb4f9f56 scenario end to end.
func TestPackage_BetaFromTags(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	a, err := New(f.runner, f.cfg).Package(context.Background(), &Options{
		Beta:    true,
		Channel: config.ChannelBrowser,
	})
	require.NoError(t, err)
	require.Equal(t, "0.4.08.1b2", a.Version)
	require.Equal(t, "Cliqz.0.4.08.1b2.xpi", a.FileName)
	require.False(t, a.Signed)

	manifest, err := os.ReadFile(filepath.Join(f.work, "extension", "install.rdf"))
	require.NoError(t, err)
	require.Equal(t, "Cliqz 0.4.08.1b2 browser_beta true", string(manifest))

	require.ElementsMatch(t, []string{
		"install.rdf",
		"bootstrap.js",
		"chrome/content/abtests.html",
		"chrome/content/core.js",
	}, f.entries(t, a.FileName))

	archive, err := os.ReadFile(filepath.Join(f.work, a.FileName))
	require.NoError(t, err)

	latest, err := os.ReadFile(filepath.Join(f.work, release.LatestArchive))
	require.NoError(t, err)
	require.Equal(t, archive, latest)

	require.NoDirExists(t, filepath.Join(f.work, f.cfg.ScratchDir()))
	require.Empty(t, f.runner.Find("python"))
}

// TestPackage_ExplicitVersion checks the archive name when a version is given without beta.
func TestPackage_ExplicitVersion(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	core, logs := observer.New(zapcore.DebugLevel)
	ctx := logger.ToContext(context.Background(), zap.New(core).Sugar())

	a, err := New(f.runner, f.cfg).Package(ctx, &Options{
		Version: "1.2.3",
		Channel: config.ChannelBrowser,
	})
	require.NoError(t, err)
	require.Equal(t, "Cliqz.1.2.3.xpi", a.FileName)
	require.FileExists(t, filepath.Join(f.work, "Cliqz.1.2.3.xpi"))
	require.Empty(t, f.runner.Find("git"))

	warnings := logs.FilterLevelExact(zapcore.WarnLevel).All()
	require.Len(t, warnings, 1)
	require.Contains(t, warnings[0].Message, "will not take the 1.2.3 tag from git")
}

// TestPackage_BetaWithVersion skips the warning and git when both are given.
func TestPackage_BetaWithVersion(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	core, logs := observer.New(zapcore.DebugLevel)
	ctx := logger.ToContext(context.Background(), zap.New(core).Sugar())

	a, err := New(f.runner, f.cfg).Package(ctx, &Options{
		Beta:    true,
		Version: "1.2.3.1b7",
		Channel: config.ChannelBrowser,
	})
	require.NoError(t, err)
	require.Equal(t, "Cliqz.1.2.3.1b7.xpi", a.FileName)
	require.Empty(t, logs.FilterLevelExact(zapcore.WarnLevel).All())
	require.Empty(t, f.runner.Find("git"))
}

// TestPackage_ChannelExclusions checks the amo build drops the excluded file and others keep it.
func TestPackage_ChannelExclusions(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	p := New(f.runner, f.cfg)

	amo, err := p.Package(context.Background(), &Options{Version: "1.0.0", Channel: config.ChannelAMO})
	require.NoError(t, err)
	require.NotContains(t, f.entries(t, amo.FileName), "chrome/content/abtests.html")

	// The source tree is untouched.
	require.FileExists(t, filepath.Join(f.work, "extension", "chrome", "content", "abtests.html"))

	browser, err := p.Package(context.Background(), &Options{Version: "1.0.1", Channel: config.ChannelBrowser})
	require.NoError(t, err)
	require.Contains(t, f.entries(t, browser.FileName), "chrome/content/abtests.html")
}

// TestPackage_Sign checks the signer runs and the signed archive is promoted to latest.
func TestPackage_Sign(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	a, err := New(f.runner, f.cfg).Package(context.Background(), &Options{
		Version:  "1.0.0",
		Sign:     true,
		Channel:  config.ChannelBrowser,
		CertPath: "/certs/key",
	})
	require.NoError(t, err)
	require.True(t, a.Signed)

	calls := f.runner.Find("python")
	require.Len(t, calls, 1)
	require.Contains(t, calls[0].Args, "/certs/key")
	require.Contains(t, calls[0].Args, "file:"+f.cfg.Signer.PassPath)

	require.FileExists(t, filepath.Join(f.work, "UNSIGNED_Cliqz.1.0.0.xpi"))

	latest, err := os.ReadFile(filepath.Join(f.work, release.LatestArchive))
	require.NoError(t, err)
	require.Equal(t, "signed", string(latest))
}

// TestPackage_Rebuild replaces an archive left by a previous run.
func TestPackage_Rebuild(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	require.NoError(t, os.WriteFile(filepath.Join(f.work, "Cliqz.1.0.0.xpi"), []byte("stale"), 0o600))
	require.NoError(t, os.MkdirAll(filepath.Join(f.work, f.cfg.ScratchDir(), "leftover"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(f.work, f.cfg.ScratchDir(), "leftover", "old.js"), nil, 0o600))

	a, err := New(f.runner, f.cfg).Package(context.Background(), &Options{Version: "1.0.0", Channel: config.ChannelBrowser})
	require.NoError(t, err)
	require.NotContains(t, f.entries(t, a.FileName), "leftover/old.js")
	require.NotContains(t, f.entries(t, a.FileName), "extension/bootstrap.js")
}

// TestPackage_Failures covers an unknown channel, a missing template and a failing zip.
func TestPackage_Failures(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	_, err := New(f.runner, f.cfg).Package(context.Background(), &Options{Version: "1.0.0", Channel: "chrome"})
	require.ErrorIs(t, err, release.ErrUnknownChannel)

	f.cfg.TemplatesDir = "missing"

	_, err = New(f.runner, f.cfg).Package(context.Background(), &Options{Version: "1.0.0", Channel: config.ChannelBrowser})
	require.ErrorIs(t, err, os.ErrNotExist)

	f = newFixture(t)
	f.runner.On("zip", func(*shell.Command) (string, error) {
		return "", &shell.ExitError{Command: "zip", Code: 15}
	})

	_, err = New(f.runner, f.cfg).Package(context.Background(), &Options{Version: "1.0.0", Channel: config.ChannelBrowser})

	var exitErr *shell.ExitError
	require.ErrorAs(t, err, &exitErr)
	require.NoDirExists(t, filepath.Join(f.work, f.cfg.ScratchDir()))
	require.NoFileExists(t, filepath.Join(f.work, release.LatestArchive))
}
