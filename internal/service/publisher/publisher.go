package publisher

import (
	"context"
	"encoding/hex"
	"fmt"
	"path/filepath"

	"github.com/oshokin/xpi-release/internal/balrog"
	"github.com/oshokin/xpi-release/internal/config"
	"github.com/oshokin/xpi-release/internal/domain/release"
	"github.com/oshokin/xpi-release/internal/logger"
	"github.com/oshokin/xpi-release/internal/repository/artifact"
	"github.com/oshokin/xpi-release/internal/service/common"
	"github.com/oshokin/xpi-release/internal/service/manifest"
	"github.com/oshokin/xpi-release/internal/service/packager"
	"github.com/oshokin/xpi-release/internal/shell"
	"github.com/oshokin/xpi-release/internal/storage"
)

// Options are inputs accepted by the publish command.
type Options struct {
	// Beta publishes a beta build into the <channel>_beta folder.
	Beta bool
	// Version publishes an explicit version instead of resolving one from git.
	Version string
	// Channel selects the distribution channel.
	Channel release.Channel
	// Pre publishes into the <folder>_pre pre-release folder.
	Pre bool
	// CertPath overrides the configured signing certificate.
	CertPath string
	// CertPassPath overrides the configured passphrase file.
	CertPassPath string
}

// Submitter registers a release with the update server.
type Submitter interface {
	Submit(ctx context.Context, s *balrog.Submission) error
}

// Publisher uploads and registers releases.
type Publisher struct {
	cfg       *config.Config
	runner    shell.Runner
	workspace *artifact.Workspace
	packager  *packager.Packager
	renderer  *manifest.Renderer
	uploader  storage.Uploader
	submitter Submitter
}

// Run executes the publish command under the release lock.
func Run(ctx context.Context, cfg *config.Config, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "publish")

	// Checked first so a missing secret never leaves a half-published release.
	credentials, err := config.LoadCredentials()
	if err != nil {
		return err
	}

	client, err := balrog.New(
		cfg.UpdateServer.APIRoot,
		cfg.UpdateServer.Product,
		credentials,
		balrog.WithCallTimeout(cfg.UpdateServer.Timeout),
	)
	if err != nil {
		return fmt.Errorf("initialize update server client: %w", err)
	}

	lock, err := common.AcquireLock(ctx, cfg.WorkDir, "publish")
	if err != nil {
		return err
	}

	defer func() {
		_ = lock.Release()
	}()

	runner := shell.NewExec(shell.WithTimeout(cfg.CommandTimeout))
	uploader := storage.NewS3CLI(runner, cfg.Storage.ACL, cfg.WorkDir)

	if err = New(runner, cfg, uploader, client).Publish(ctx, opts); err != nil {
		logger.ErrorKV(ctx, "Publish failed", "error", err)
		return fmt.Errorf("publish failed: %w", err)
	}

	logger.Info(ctx, "Publish completed successfully")

	return nil
}

// New creates a publisher.
func New(runner shell.Runner, cfg *config.Config, uploader storage.Uploader, submitter Submitter) *Publisher {
	workspace := artifact.NewWorkspace(cfg.WorkDir)

	return &Publisher{
		cfg:       cfg,
		runner:    runner,
		workspace: workspace,
		packager:  packager.New(runner, cfg),
		renderer:  manifest.NewRenderer(workspace.Path(cfg.TemplatesDir)),
		uploader:  uploader,
		submitter: submitter,
	}
}

// Publish packages, uploads and registers a signed release.
func (p *Publisher) Publish(ctx context.Context, opts *Options) error {
	// Only signed archives are ever published.
	a, err := p.packager.Package(ctx, &packager.Options{
		Beta:         opts.Beta,
		Version:      opts.Version,
		Sign:         true,
		Channel:      opts.Channel,
		CertPath:     opts.CertPath,
		CertPassPath: opts.CertPassPath,
	})
	if err != nil {
		return err
	}

	var (
		folder       = a.Folder()
		uploadFolder = release.UploadFolder(opts.Beta, opts.Pre, opts.Channel)
		remoteDir    = storage.JoinURL(p.cfg.Storage.Bucket, true, uploadFolder)
	)

	ctx = logger.WithFields(ctx, "version", a.Version, "channel", a.Channel, "upload_folder", uploadFolder)

	if err = p.uploader.Upload(ctx, a.FileName, remoteDir); err != nil {
		return err
	}

	if err = p.publishUnpacked(ctx, a, remoteDir); err != nil {
		return err
	}

	if err = p.publishManifests(ctx, a, folder, remoteDir); err != nil {
		return err
	}

	return p.submit(ctx, a, uploadFolder)
}

// publishUnpacked re-zips the signed archive with store-only compression and uploads it.
func (p *Publisher) publishUnpacked(ctx context.Context, a *release.Artifact, remoteDir string) error {
	unpacked := a.UnpackedVariant()
	scratch := p.cfg.ScratchDir()

	if err := p.workspace.RemoveAll(scratch); err != nil {
		return err
	}

	defer func() {
		_ = p.workspace.RemoveAll(scratch)
	}()

	unzip := shell.New("unzip", "-q", a.FileName, "-d", scratch).In(p.workspace.Root())
	if _, err := p.runner.Run(ctx, unzip); err != nil {
		return fmt.Errorf("unpack %s: %w", a.FileName, err)
	}

	if err := p.workspace.Remove(unpacked.FileName); err != nil {
		return err
	}

	out, err := absPath(p.workspace, unpacked.FileName)
	if err != nil {
		return err
	}

	rezip := shell.New("zip", "-q", "-r", "-0", out, ".").In(p.workspace.Path(scratch))
	if _, err = p.runner.Run(ctx, rezip); err != nil {
		return fmt.Errorf("repack %s: %w", unpacked.FileName, err)
	}

	if err = p.uploader.Upload(ctx, unpacked.FileName, remoteDir); err != nil {
		return err
	}

	if err = p.workspace.Promote(unpacked.FileName, release.LatestUnpackedArchive); err != nil {
		return err
	}

	return p.uploader.Upload(ctx, release.LatestUnpackedArchive, remoteDir)
}

// publishManifests uploads the update manifest, the landing page and the
// refreshed latest.xpi. latest.xpi goes last so it only moves once
// everything else is in place.
func (p *Publisher) publishManifests(ctx context.Context, a *release.Artifact, folder, remoteDir string) error {
	update, err := p.renderer.RenderUpdate(&manifest.UpdateData{
		Version:      a.Version,
		DownloadLink: storage.JoinURL(p.cfg.Storage.DownloadBaseURL, false, folder, a.FileName),
	})
	if err != nil {
		return err
	}

	err = p.uploadDocument(ctx, manifest.UpdateTemplate, update, remoteDir,
		storage.WithContentType(manifest.UpdateContentType))
	if err != nil {
		return err
	}

	// Provide a link to the latest stable version.
	landing, err := p.renderer.RenderLanding(&manifest.LandingData{
		DownloadLink: storage.JoinURL(p.cfg.Storage.LandingBaseURL, false, folder, a.FileName),
		IconURL:      p.cfg.Storage.IconURL,
	})
	if err != nil {
		return err
	}

	if err = p.uploadDocument(ctx, manifest.LandingTemplate, landing, remoteDir); err != nil {
		return err
	}

	return p.uploader.Upload(ctx, release.LatestArchive, remoteDir)
}

// uploadDocument writes a rendered document, uploads it and removes the local copy.
func (p *Publisher) uploadDocument(
	ctx context.Context,
	name string,
	data []byte,
	remoteDir string,
	opts ...storage.UploadOption,
) error {
	if err := p.workspace.WriteFile(name, data); err != nil {
		return err
	}

	defer func() {
		_ = p.workspace.Remove(name)
	}()

	return p.uploader.Upload(ctx, name, remoteDir, opts...)
}

// submit registers the uploaded archive with the update server.
func (p *Publisher) submit(ctx context.Context, a *release.Artifact, uploadFolder string) error {
	sum, err := p.workspace.Checksum(a.FileName)
	if err != nil {
		return err
	}

	size, err := p.workspace.Size(a.FileName)
	if err != nil {
		return err
	}

	submission := &balrog.Submission{
		ReleaseName: p.cfg.UpdateServer.ReleasePrefix + uploadFolder,
		AddonID:     p.cfg.AddonID,
		Version:     a.Version,
		URL:         storage.JoinURL(p.cfg.Storage.DownloadBaseURL, false, uploadFolder, a.FileName),
		HashValue:   hex.EncodeToString(sum),
		Size:        size,
	}

	if err = p.submitter.Submit(ctx, submission); err != nil {
		return fmt.Errorf("submit release %s: %w", submission.ReleaseName, err)
	}

	return nil
}

func absPath(w *artifact.Workspace, name string) (string, error) {
	path, err := filepath.Abs(w.Path(name))
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", name, err)
	}

	return path, nil
}
