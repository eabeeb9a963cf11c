// Package signer signs packaged archives with an external signing tool.
package signer

import (
	"context"
	"errors"
	"fmt"

	"github.com/oshokin/xpi-release/internal/config"
	"github.com/oshokin/xpi-release/internal/domain/release"
	"github.com/oshokin/xpi-release/internal/logger"
	"github.com/oshokin/xpi-release/internal/repository/artifact"
	"github.com/oshokin/xpi-release/internal/shell"
)

// errNoSignedOutput is returned when the signer exits cleanly without producing the archive.
var errNoSignedOutput = errors.New("signer produced no output")

// Signer invokes the configured signing command.
type Signer struct {
	runner    shell.Runner
	workspace *artifact.Workspace
	settings  config.Signer
}

// New creates a signer for the configured tool.
func New(runner shell.Runner, cfg *config.Config) *Signer {
	return &Signer{
		runner:    runner,
		workspace: artifact.NewWorkspace(cfg.WorkDir),
		settings:  cfg.Signer,
	}
}

// Sign moves the archive aside under its UNSIGNED_ name and has the signing
// tool write the signed archive back under the original name. Empty certPath
// and passPath fall back to the configured defaults.
func (s *Signer) Sign(ctx context.Context, a *release.Artifact, certPath, passPath string) error {
	if certPath == "" {
		certPath = s.settings.CertPath
	}

	if passPath == "" {
		passPath = s.settings.PassPath
	}

	unsigned := release.UnsignedName(a.FileName)

	if err := s.workspace.Rename(a.FileName, unsigned); err != nil {
		return err
	}

	logger.InfoKV(ctx, "Signing archive", "file", a.FileName, "cert", certPath)

	args := append([]string(nil), s.settings.Command[1:]...)
	args = append(args,
		"-k", certPath,
		"--signer", "openssl",
		"--passin", "file:"+passPath,
		unsigned, a.FileName,
	)

	cmd := shell.New(s.settings.Command[0], args...).In(s.workspace.Root())
	if _, err := s.runner.Run(ctx, cmd); err != nil {
		return fmt.Errorf("sign %s: %w", a.FileName, err)
	}

	if !s.workspace.Exists(a.FileName) {
		return fmt.Errorf("%s: %w", a.FileName, errNoSignedOutput)
	}

	a.Signed = true

	return nil
}
