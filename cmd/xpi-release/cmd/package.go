package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/oshokin/xpi-release/internal/config"
	"github.com/oshokin/xpi-release/internal/service/packager"
)

// packageFlags are the inputs of the package command.
var packageFlags struct {
	beta         bool
	sign         bool
	version      string
	channel      string
	certPath     string
	certPassPath string
}

// packageCmd builds the extension archive.
var packageCmd = &cobra.Command{
	Use:   "package",
	Short: "Build the extension archive",
	Long: `Builds <name>.<version>.xpi from the extension directory and refreshes latest.xpi.

Without --version the version is taken from the package file and, for beta
builds, suffixed with the commit distance from the last git tag.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		// Setup graceful shutdown handling.
		ctx, stop := signalContext()
		defer stop()

		cfg, channel, err := loadConfig(packageFlags.channel)
		if err != nil {
			return err
		}

		a, err := packager.Run(ctx, cfg, &packager.Options{
			Beta:         packageFlags.beta,
			Version:      packageFlags.version,
			Sign:         packageFlags.sign,
			Channel:      channel,
			CertPath:     packageFlags.certPath,
			CertPassPath: packageFlags.certPassPath,
		})
		if err != nil {
			return err
		}

		_, err = fmt.Fprintln(cmd.OutOrStdout(), a.FileName)

		return err
	},
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	flags := packageCmd.Flags()
	flags.BoolVar(&packageFlags.beta, "beta", true, "build a beta version suffixed with the commit distance")
	flags.BoolVar(&packageFlags.sign, "sign", false, "sign the archive")
	flags.StringVar(&packageFlags.version, "version", "", "package this version instead of resolving one from git")
	flags.StringVar(&packageFlags.channel, "channel", config.ChannelBrowser, "distribution channel")
	flags.StringVar(&packageFlags.certPath, "cert-path", "", "signing certificate (defaults to the configured one)")
	flags.StringVar(&packageFlags.certPassPath, "cert-pass-path", "", "certificate passphrase file (defaults to the configured one)")

	rootCmd.AddCommand(packageCmd)
}
