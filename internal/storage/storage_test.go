package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/xpi-release/internal/shell"
	"github.com/oshokin/xpi-release/internal/shell/shelltest"
)

// TestS3CLI_Upload checks the aws command line with ACL and content type.
func TestS3CLI_Upload(t *testing.T) {
	t.Parallel()

	runner := shelltest.NewRunner()
	uploader := NewS3CLI(runner, "public-read", "/work")

	require.NoError(t, uploader.Upload(context.Background(), "Cliqz.1.0.xpi", "s3://cdncliqz/update/browser/"))
	require.NoError(t, uploader.Upload(context.Background(), "latest.rdf", "s3://cdncliqz/update/browser/",
		WithContentType("text/rdf")))

	require.Equal(t, []string{
		"aws s3 cp Cliqz.1.0.xpi s3://cdncliqz/update/browser/ --acl public-read",
		"aws s3 cp latest.rdf s3://cdncliqz/update/browser/ --acl public-read --content-type text/rdf",
	}, runner.Lines())
	require.Equal(t, "/work", runner.Calls()[0].Dir)
}

// TestS3CLI_Upload_Errors covers a missing destination and tool failures.
func TestS3CLI_Upload_Errors(t *testing.T) {
	t.Parallel()

	runner := shelltest.NewRunner().On("aws", func(*shell.Command) (string, error) {
		return "", &shell.ExitError{Command: "aws", Code: 1, Stderr: "Unable to locate credentials"}
	})
	uploader := NewS3CLI(runner, "", "")

	require.ErrorIs(t, uploader.Upload(context.Background(), "a.xpi", ""), errRemoteDirRequired)

	err := uploader.Upload(context.Background(), "a.xpi", "s3://bucket/")

	var exitErr *shell.ExitError
	require.ErrorAs(t, err, &exitErr)
	require.Equal(t, []string{"s3", "cp", "a.xpi", "s3://bucket/"}, runner.Calls()[0].Args)
}

// TestJoinURL checks slash handling for bucket URIs and HTTP URLs.
func TestJoinURL(t *testing.T) {
	t.Parallel()

	require.Equal(t, "s3://cdncliqz/update/browser_pre/", JoinURL("s3://cdncliqz/update/", true, "browser_pre"))
	require.Equal(t,
		"https://s3.amazonaws.com/cdncliqz/update/browser/Cliqz.1.0.xpi",
		JoinURL("https://s3.amazonaws.com/cdncliqz/update", false, "browser", "Cliqz.1.0.xpi"))
	require.Equal(t, "http://cdn2.cliqz.com/update", JoinURL("http://cdn2.cliqz.com/update/", false))
}
