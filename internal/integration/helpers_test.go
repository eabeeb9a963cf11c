package integration

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/xpi-release/internal/config"
)

// signScript stands in for the signer: it copies UNSIGNED_<file> to <file>.
// Positional arguments follow `-k <cert> --signer openssl --passin file:<pass> <in> <out>`.
const signScript = `cp "$7" "$8"`

// requireTools skips the test when any of the named tools is missing.
func requireTools(t *testing.T, tools ...string) {
	t.Helper()

	for _, tool := range tools {
		if _, err := exec.LookPath(tool); err != nil {
			t.Skipf("%s is not installed", tool)
		}
	}
}

// git runs git in dir with a fixed identity.
func git(t *testing.T, dir string, args ...string) {
	t.Helper()

	args = append([]string{"-c", "user.email=release@example.com", "-c", "user.name=Release Bot"}, args...)

	cmd := exec.CommandContext(context.Background(), "git", args...)
	cmd.Dir = dir

	out, err := cmd.CombinedOutput()
	require.NoError(t, err, string(out))
}

// writeFiles creates files with contents, making parent directories as needed.
func writeFiles(t *testing.T, files map[string]string) {
	t.Helper()

	for path, contents := range files {
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	}
}

// newRepository creates a git checkout tagged 0.4.08 with two commits on top
// and returns the configuration of its firefox working directory.
func newRepository(t *testing.T) *config.Config {
	t.Helper()

	requireTools(t, "git", "cp", "zip", "unzip", "sh")

	root := t.TempDir()
	work := filepath.Join(root, "firefox")

	templates, err := filepath.Abs(filepath.Join("..", "..", "templates"))
	require.NoError(t, err)

	writeFiles(t, map[string]string{
		filepath.Join(root, "package.json"):                                   `{"name": "cliqz", "version": "0.4.08"}`,
		filepath.Join(work, "extension", "bootstrap.js"):                      "function startup() {}",
		filepath.Join(work, "extension", "chrome", "content", "abtests.html"): "<html></html>",
		filepath.Join(work, "extension", "chrome", "content", "core.js"):      "var CLIQZ = {};",
		filepath.Join(work, "extension", ".DS_Store"):                         "finder",
	})

	git(t, root, "init", "-q")
	git(t, root, "add", ".")
	git(t, root, "commit", "-q", "-m", "initial")
	git(t, root, "tag", "0.4.08")

	for _, name := range []string{"first.js", "second.js"} {
		writeFiles(t, map[string]string{filepath.Join(work, "extension", name): "// " + name})
		git(t, root, "add", ".")
		git(t, root, "commit", "-q", "-m", name)
	}

	cfg := config.Default()
	cfg.WorkDir = work
	cfg.TemplatesDir = templates
	cfg.Signer.Command = []string{"sh", "-c", signScript, "xpisign"}
	require.NoError(t, config.Validate(cfg))

	return cfg
}
