package packager

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/oshokin/xpi-release/internal/config"
	"github.com/oshokin/xpi-release/internal/domain/release"
	"github.com/oshokin/xpi-release/internal/logger"
	"github.com/oshokin/xpi-release/internal/repository/artifact"
	"github.com/oshokin/xpi-release/internal/service/common"
	"github.com/oshokin/xpi-release/internal/service/manifest"
	"github.com/oshokin/xpi-release/internal/service/signer"
	"github.com/oshokin/xpi-release/internal/service/versioner"
	"github.com/oshokin/xpi-release/internal/shell"
)

// Options contains inputs for the package command.
type Options struct {
	// Beta appends the commit distance from the last tag to the version.
	Beta bool
	// Version packages an explicit version instead of resolving one from git.
	Version string
	// Sign runs the external signer on the archive.
	Sign bool
	// Channel selects the distribution channel.
	Channel release.Channel
	// CertPath overrides the configured signing certificate.
	CertPath string
	// CertPassPath overrides the configured passphrase file.
	CertPassPath string
}

// Packager builds release archives.
type Packager struct {
	cfg       *config.Config
	runner    shell.Runner
	workspace *artifact.Workspace
	resolver  *versioner.Resolver
	renderer  *manifest.Renderer
	signer    *signer.Signer
}

// Run executes the package command under the release lock.
func Run(ctx context.Context, cfg *config.Config, opts *Options) (*release.Artifact, error) {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "package")

	lock, err := common.AcquireLock(ctx, cfg.WorkDir, "package")
	if err != nil {
		return nil, err
	}

	defer func() {
		_ = lock.Release()
	}()

	runner := shell.NewExec(shell.WithTimeout(cfg.CommandTimeout))

	a, err := New(runner, cfg).Package(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("package failed: %w", err)
	}

	logger.InfoKV(ctx, "Package completed successfully", "file", a.FileName, "signed", a.Signed)

	return a, nil
}

// New creates a packager running external tools through runner.
func New(runner shell.Runner, cfg *config.Config) *Packager {
	workspace := artifact.NewWorkspace(cfg.WorkDir)

	return &Packager{
		cfg:       cfg,
		runner:    runner,
		workspace: workspace,
		resolver:  versioner.NewResolver(runner, cfg),
		renderer:  manifest.NewRenderer(workspace.Path(cfg.TemplatesDir)),
		signer:    signer.New(runner, cfg),
	}
}

// Package builds the archive described by opts and returns it.
func (p *Packager) Package(ctx context.Context, opts *Options) (*release.Artifact, error) {
	channel, ok := p.cfg.Channels[string(opts.Channel)]
	if !ok {
		return nil, fmt.Errorf("%q: %w", opts.Channel, release.ErrUnknownChannel)
	}

	if !opts.Beta && opts.Version != "" {
		logger.Warnf(ctx, "This will not take the %s tag from git. It packages the commit that HEAD is pointing to. "+
			"If you want to package a specific tag check it out first with: git checkout <tag>, "+
			"or for the latest tag just omit the version argument.", opts.Version)
	}

	version := opts.Version
	if version == "" {
		var err error

		if version, err = p.resolver.Resolve(ctx, opts.Beta); err != nil {
			return nil, fmt.Errorf("resolve version: %w", err)
		}
	}

	a := &release.Artifact{
		FileName: release.ArchiveName(p.cfg.Name, version),
		Version:  version,
		Channel:  opts.Channel,
		Beta:     opts.Beta,
	}

	ctx = logger.WithFields(ctx, "version", version, "channel", opts.Channel)

	if err := p.writeInstallManifest(ctx, a); err != nil {
		return nil, err
	}

	if err := p.zip(ctx, a, channel.Exclude); err != nil {
		return nil, err
	}

	if opts.Sign {
		if err := p.signer.Sign(ctx, a, opts.CertPath, opts.CertPassPath); err != nil {
			return nil, err
		}
	}

	// Keep a copy of the current build in case it has to be uploaded.
	if err := p.workspace.Promote(a.FileName, release.LatestArchive); err != nil {
		return nil, err
	}

	return a, nil
}

// writeInstallManifest renders install.rdf into the extension source tree.
func (p *Packager) writeInstallManifest(ctx context.Context, a *release.Artifact) error {
	data, err := p.renderer.RenderInstall(&manifest.InstallData{
		Name:    p.cfg.Name,
		Version: a.Version,
		Folder:  a.Folder(),
		Beta:    a.Beta,
	})
	if err != nil {
		return err
	}

	target := filepath.Join(p.cfg.SourceDir, manifest.InstallTemplate)

	logger.InfoKV(ctx, "Writing install manifest", "path", target)

	return p.workspace.WriteFile(target, data)
}

// zip copies the source tree to scratch, strips excluded files and archives it.
func (p *Packager) zip(ctx context.Context, a *release.Artifact, exclude []string) error {
	scratch := p.cfg.ScratchDir()

	// A scratch tree left by an aborted run would be copied into, not replaced.
	if err := p.workspace.RemoveAll(scratch); err != nil {
		return err
	}

	defer func() {
		_ = p.workspace.RemoveAll(scratch)
	}()

	copyCmd := shell.New("cp", "-R", p.cfg.SourceDir, scratch).In(p.workspace.Root())
	if _, err := p.runner.Run(ctx, copyCmd); err != nil {
		return fmt.Errorf("copy source tree: %w", err)
	}

	for _, name := range exclude {
		logger.InfoKV(ctx, "Removing file excluded from channel", "file", name)

		if err := p.workspace.Remove(filepath.Join(scratch, name)); err != nil {
			return err
		}
	}

	// zip updates existing archives in place.
	if err := p.workspace.Remove(a.FileName); err != nil {
		return err
	}

	out, err := filepath.Abs(a.Path(p.workspace.Root()))
	if err != nil {
		return fmt.Errorf("resolve %s: %w", a.FileName, err)
	}

	args := []string{"-q", "-r", out, "."}
	if len(p.cfg.ExcludePatterns) > 0 {
		args = append(args, "-x")
		args = append(args, p.cfg.ExcludePatterns...)
	}

	logger.InfoKV(ctx, "Zipping extension", "file", a.FileName)

	if _, err = p.runner.Run(ctx, shell.New("zip", args...).In(p.workspace.Path(scratch))); err != nil {
		return fmt.Errorf("zip extension: %w", err)
	}

	return nil
}
