package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the release settings shared by the package and publish commands.
// It is passed explicitly to every service.
type Config struct {
	// Name is the product name used as the archive prefix (Name.Version.xpi).
	Name string `yaml:"name"`
	// AddonID is the extension identifier registered with the update server.
	AddonID string `yaml:"addon_id"`
	// WorkDir is the directory all relative paths below are resolved against.
	WorkDir string `yaml:"work_dir"`
	// SourceDir is the extension source tree that gets zipped.
	SourceDir string `yaml:"source_dir"`
	// TemplatesDir holds install.rdf, latest.rdf and latest.html templates.
	TemplatesDir string `yaml:"templates_dir"`
	// PackageFile is the JSON file whose "version" key is the base version.
	PackageFile string `yaml:"package_file"`
	// ExcludePatterns are zip exclusion patterns applied to every channel.
	ExcludePatterns []string `yaml:"exclude_patterns"`
	// Channels maps known distribution channels to their settings.
	Channels map[string]Channel `yaml:"channels"`
	// Signer configures the external signing tool.
	Signer Signer `yaml:"signer"`
	// Storage configures the content-delivery bucket.
	Storage Storage `yaml:"storage"`
	// UpdateServer configures the update-server admin API.
	UpdateServer UpdateServer `yaml:"update_server"`
	// CommandTimeout bounds every external command; zero disables the limit.
	CommandTimeout time.Duration `yaml:"command_timeout"`
}

// Channel holds per-channel packaging settings.
type Channel struct {
	// Exclude lists files (relative to the source tree) removed before zipping.
	Exclude []string `yaml:"exclude,omitempty"`
}

// Signer configures the external signing tool invocation.
type Signer struct {
	// Command is the signer executable followed by its leading arguments.
	Command []string `yaml:"command"`
	// CertPath is the default certificate path when none is given on the command line.
	CertPath string `yaml:"cert_path"`
	// PassPath is the default passphrase file when none is given on the command line.
	PassPath string `yaml:"pass_path"`
}

// Storage configures where artifacts are uploaded and how they are linked.
type Storage struct {
	// Bucket is the remote prefix uploads go to, e.g. s3://cdncliqz/update/.
	Bucket string `yaml:"bucket"`
	// ACL is the canned ACL applied to every upload.
	ACL string `yaml:"acl"`
	// DownloadBaseURL is the public HTTP(S) URL of Bucket.
	DownloadBaseURL string `yaml:"download_base_url"`
	// LandingBaseURL is the CDN URL used by the HTML landing page.
	LandingBaseURL string `yaml:"landing_base_url"`
	// IconURL is the icon shown on the landing page.
	IconURL string `yaml:"icon_url"`
}

// UpdateServer configures the update-server (Balrog) admin API.
type UpdateServer struct {
	// APIRoot is the admin API root, e.g. http://balrog-admin.10e99.net/api.
	APIRoot string `yaml:"api_root"`
	// Product is the Balrog product the release belongs to.
	Product string `yaml:"product"`
	// ReleasePrefix is prepended to the upload folder to form the release name.
	ReleasePrefix string `yaml:"release_prefix"`
	// Timeout is the per-request timeout.
	Timeout time.Duration `yaml:"timeout"`
}

const (
	// DefaultConfigFilename is the default filename for release settings.
	DefaultConfigFilename = "xpi-release.yaml"

	// DefaultUpdateServerTimeout is the default per-request timeout of the update-server client.
	DefaultUpdateServerTimeout = 30 * time.Second

	// DefaultFilePermissions is the default file permission for config files.
	DefaultFilePermissions = 0o600

	// ChannelBrowser is the general browser release channel.
	ChannelBrowser = "browser"

	// ChannelAMO is the addons.mozilla.org marketplace channel.
	ChannelAMO = "amo"
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errFieldRequired is returned when a mandatory setting is empty.
	errFieldRequired = errors.New("setting must be provided")
	// errNoChannels is returned when no distribution channel is configured.
	errNoChannels = errors.New("at least one channel must be configured")
	// errBadBucket is returned when the bucket is not an s3:// URI.
	errBadBucket = errors.New("bucket must be an s3:// URI")
)

// Default returns the settings the release script has always used.
func Default() *Config {
	return &Config{
		Name:            "Cliqz",
		AddonID:         "cliqz@cliqz.com",
		WorkDir:         ".",
		SourceDir:       "extension",
		TemplatesDir:    "templates",
		PackageFile:     filepath.Join("..", "package.json"),
		ExcludePatterns: []string{"*.DS_Store*"},
		Channels: map[string]Channel{
			ChannelBrowser: {},
			// Files which might cause problems on AMO review.
			ChannelAMO: {Exclude: []string{"chrome/content/abtests.html"}},
		},
		Signer: Signer{
			Command:  []string{"python", filepath.Join("..", "xpi-sign", "xpisign.py")},
			CertPath: filepath.Join("..", "certs", "CliqzFrontend", "xpisign-cliqz@cliqz.com"),
			PassPath: filepath.Join("..", "certs", "pass"),
		},
		Storage: Storage{
			Bucket:          "s3://cdncliqz/update/",
			ACL:             "public-read",
			DownloadBaseURL: "https://s3.amazonaws.com/cdncliqz/update/",
			LandingBaseURL:  "http://cdn2.cliqz.com/update/",
			IconURL:         "http://cdn2.cliqz.com/update/icon.png",
		},
		UpdateServer: UpdateServer{
			APIRoot:       "http://balrog-admin.10e99.net/api",
			Product:       "SystemAddons",
			ReleasePrefix: "SystemAddons-",
			Timeout:       DefaultUpdateServerTimeout,
		},
	}
}

// Load reads configuration from the provided path on top of Default.
// A missing file at the default location is not an error.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultConfigFilename
	}

	cfg := Default()

	contents, err := os.ReadFile(filepath.Clean(path))

	switch {
	case err == nil:
		if err = yaml.Unmarshal(contents, cfg); err != nil {
			return nil, fmt.Errorf("unmarshal settings: %w", err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
		// Defaults only.
	default:
		return nil, fmt.Errorf("read settings: %w", err)
	}

	if err = Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes settings to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate checks the provided settings for required fields and formatting.
func Validate(settings *Config) error {
	if settings == nil {
		return errConfigIsNotSet
	}

	required := map[string]string{
		"name":                  settings.Name,
		"addon_id":              settings.AddonID,
		"source_dir":            settings.SourceDir,
		"templates_dir":         settings.TemplatesDir,
		"package_file":          settings.PackageFile,
		"storage.bucket":        settings.Storage.Bucket,
		"update_server.product": settings.UpdateServer.Product,
	}
	for field, value := range required {
		if strings.TrimSpace(value) == "" {
			return fmt.Errorf("%s: %w", field, errFieldRequired)
		}
	}

	if len(settings.Channels) == 0 {
		return errNoChannels
	}

	if len(settings.Signer.Command) == 0 {
		return fmt.Errorf("signer.command: %w", errFieldRequired)
	}

	if !strings.HasPrefix(settings.Storage.Bucket, "s3://") {
		return fmt.Errorf("%s: %w", settings.Storage.Bucket, errBadBucket)
	}

	for field, value := range map[string]string{
		"storage.download_base_url": settings.Storage.DownloadBaseURL,
		"storage.landing_base_url":  settings.Storage.LandingBaseURL,
		"update_server.api_root":    settings.UpdateServer.APIRoot,
	} {
		if _, err := url.ParseRequestURI(value); err != nil {
			return fmt.Errorf("invalid %s: %w", field, err)
		}
	}

	// Set defaults for optional values.
	if settings.WorkDir == "" {
		settings.WorkDir = "."
	}

	if settings.UpdateServer.Timeout <= 0 {
		settings.UpdateServer.Timeout = DefaultUpdateServerTimeout
	}

	return nil
}

// ChannelNames returns the configured channel names.
func (c *Config) ChannelNames() []string {
	names := make([]string, 0, len(c.Channels))
	for name := range c.Channels {
		names = append(names, name)
	}

	return names
}

// ScratchDir returns the temporary copy of the source tree used while zipping.
func (c *Config) ScratchDir() string {
	return filepath.Clean(c.SourceDir) + "_temp"
}
