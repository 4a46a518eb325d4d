package cli

import (
	"github.com/ralt/pkgconv/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "pkgconv",
		Short: "Convert packages between Linux and Unix package formats",
		Long: `Pkgconv converts a package built for one packaging system into an
equivalent package for another, keeping metadata, file ownership and
permissions, maintainer scripts and dependencies as far as the target allows.

Supported package types:
  - Debian (.deb packages)
  - RPM and LSB (.rpm packages)
  - Slackware (.tgz and .txz packages)
  - Solaris SVR4 (datastream .pkg packages)`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			verbose, _ := cmd.Flags().GetBool("verbose")
			if verbose {
				logrus.SetLevel(logrus.DebugLevel)
			} else {
				logrus.SetLevel(logrus.InfoLevel)
			}
		},
	}

	// Global flags
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().String("config", "", "Config file (default $XDG_CONFIG_HOME/pkgconv/config.toml)")

	rootCmd.AddCommand(NewConvertCmd())
	rootCmd.AddCommand(NewInspectCmd())
	rootCmd.AddCommand(NewConfigCmd())

	return rootCmd
}

// ExitCode maps a command error to the process exit status: 2 for bad
// configuration or arguments, 3 for packages that cannot be converted, 4 for
// I/O and signing failures and 1 for anything else.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case models.IsErrorType(err, models.ErrInvalidConfig):
		return 2
	case models.IsErrorType(err, models.ErrFormat),
		models.IsErrorType(err, models.ErrUnsupportedFeature),
		models.IsErrorType(err, models.ErrEncoding):
		return 3
	case models.IsErrorType(err, models.ErrIO), models.IsErrorType(err, models.ErrSigning):
		return 4
	}
	return 1
}
