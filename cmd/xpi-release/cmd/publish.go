package cmd

import (
	"github.com/spf13/cobra"

	"github.com/oshokin/xpi-release/internal/config"
	"github.com/oshokin/xpi-release/internal/service/publisher"
)

// publishFlags are the inputs of the publish command.
var publishFlags struct {
	beta         bool
	pre          bool
	version      string
	channel      string
	certPath     string
	certPassPath string
}

// publishCmd packages, signs, uploads and registers a release.
var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Sign, upload and register a release",
	Long: `Packages and signs the extension, uploads the archives, the update manifest
and the landing page to <bucket><channel>[_beta][_pre]/ and registers the
release with the update server.

Requires ` + config.EnvUpdateServerUser + ` and ` + config.EnvUpdateServerPassword + ` in the environment.`,
	Args: cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		// Setup graceful shutdown handling.
		ctx, stop := signalContext()
		defer stop()

		cfg, channel, err := loadConfig(publishFlags.channel)
		if err != nil {
			return err
		}

		return publisher.Run(ctx, cfg, &publisher.Options{
			Beta:         publishFlags.beta,
			Version:      publishFlags.version,
			Channel:      channel,
			Pre:          publishFlags.pre,
			CertPath:     publishFlags.certPath,
			CertPassPath: publishFlags.certPassPath,
		})
	},
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	flags := publishCmd.Flags()
	flags.BoolVar(&publishFlags.beta, "beta", true, "publish a beta version into the <channel>_beta folder")
	flags.BoolVar(&publishFlags.pre, "pre", true, "publish into the _pre pre-release folder")
	flags.StringVar(&publishFlags.version, "version", "", "publish this version instead of resolving one from git")
	flags.StringVar(&publishFlags.channel, "channel", config.ChannelBrowser, "distribution channel")
	flags.StringVar(&publishFlags.certPath, "cert-path", "", "signing certificate (defaults to the configured one)")
	flags.StringVar(&publishFlags.certPassPath, "cert-pass-path", "", "certificate passphrase file (defaults to the configured one)")

	rootCmd.AddCommand(publishCmd)
}
