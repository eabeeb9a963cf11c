// Package storage uploads release files to the content-delivery bucket.
package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/oshokin/xpi-release/internal/logger"
	"github.com/oshokin/xpi-release/internal/shell"
)

// errRemoteDirRequired is returned when an upload has no destination.
var errRemoteDirRequired = errors.New("remote directory must be provided")

// Uploader copies local files into a remote directory.
type Uploader interface {
	Upload(ctx context.Context, localPath, remoteDir string, opts ...UploadOption) error
}

// uploadOptions are per-upload settings.
type uploadOptions struct {
	contentType string
}

// UploadOption configures a single upload.
type UploadOption func(*uploadOptions)

// WithContentType overrides the content type the object is served with.
func WithContentType(contentType string) UploadOption {
	return func(o *uploadOptions) {
		o.contentType = contentType
	}
}

// S3CLI uploads with the aws command line client, using the credentials
// the client is configured with.
type S3CLI struct {
	runner shell.Runner
	// acl is the canned ACL applied to every object.
	acl string
	// dir is where the aws client is started.
	dir string
}

// NewS3CLI creates an uploader applying acl to every object.
func NewS3CLI(runner shell.Runner, acl, workDir string) *S3CLI {
	return &S3CLI{
		runner: runner,
		acl:    acl,
		dir:    workDir,
	}
}

// Upload copies localPath into remoteDir.
func (s *S3CLI) Upload(ctx context.Context, localPath, remoteDir string, opts ...UploadOption) error {
	if remoteDir == "" {
		return errRemoteDirRequired
	}

	var options uploadOptions
	for _, opt := range opts {
		opt(&options)
	}

	args := []string{"s3", "cp", localPath, remoteDir}
	if s.acl != "" {
		args = append(args, "--acl", s.acl)
	}

	if options.contentType != "" {
		args = append(args, "--content-type", options.contentType)
	}

	logger.InfoKV(ctx, "Uploading", "file", localPath, "to", remoteDir)

	if _, err := s.runner.Run(ctx, shell.New("aws", args...).In(s.dir)); err != nil {
		return fmt.Errorf("upload %s: %w", localPath, err)
	}

	return nil
}

// JoinURL appends path elements to a base URL or bucket URI, keeping its scheme
// and adding a trailing slash when trailingSlash is set.
func JoinURL(base string, trailingSlash bool, elems ...string) string {
	joined := strings.TrimSuffix(base, "/")
	if rest := path.Join(elems...); rest != "" && rest != "." {
		joined += "/" + strings.TrimPrefix(rest, "/")
	}

	if trailingSlash {
		joined += "/"
	}

	return joined
}
