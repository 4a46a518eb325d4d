package cli

import (
	"fmt"
	"strings"

	"github.com/ralt/pkgconv/internal/config"
	"github.com/ralt/pkgconv/internal/models"
	"github.com/ralt/pkgconv/internal/pipeline"
	"github.com/ralt/pkgconv/internal/scanner"
	"github.com/ralt/pkgconv/internal/signer"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// convertFlags maps config keys to the convert command's flags
var convertFlags = map[string]string{
	"output_dir":     "output-dir",
	"staging_dir":    "staging-dir",
	"from":           "from",
	"to":             "to",
	"workers":        "workers",
	"gpg_key":        "gpg-key",
	"gpg_passphrase": "gpg-passphrase",
	"scripts":        "scripts",
	"generate":       "generate",
	"description":    "description",
	"maintainer":     "maintainer",
	"architecture":   "target",
	"bump":           "bump",
	"compression":    "compression",
	"exclude":        "exclude",
}

// NewConvertCmd creates the convert command
func NewConvertCmd() *cobra.Command {
	defaults := config.Default()

	cmd := &cobra.Command{
		Use:   "convert [paths...]",
		Short: "Convert packages to other formats",
		Long: `Converts each package file, or every package found in each directory,
to the formats given with --to. Converted packages are written to the output
directory; nothing is installed.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, convertFlags)
			if err != nil {
				return err
			}
			cfg.Inputs = args
			if keep, _ := cmd.Flags().GetBool("keep-version"); keep {
				cfg.Bump = 0
			}

			if err := validateConfig(cfg); err != nil {
				return err
			}

			logrus.Info("Starting package conversion...")
			logrus.Debugf("Converting %v to %v", cfg.Inputs, cfg.Targets)

			return runConversion(cmd, cfg)
		},
	}

	// Input/Output flags
	cmd.Flags().StringSliceP("to", "t", nil, "Target formats (deb, rpm, lsb, tgz, pkg)")
	cmd.Flags().String("from", "", "Source format, detected from each file when empty")
	cmd.Flags().StringP("output-dir", "o", defaults.OutputDir, "Output directory")
	cmd.Flags().String("staging-dir", "", "Directory for staging areas (default system temp dir)")
	cmd.Flags().IntP("workers", "j", defaults.Workers, "Number of packages converted in parallel")

	// Conversion options
	cmd.Flags().String("scripts", string(defaults.Scripts), "Maintainer scripts: preserve or strip")
	cmd.Flags().StringSlice("generate", nil, "Fields to synthesize when missing (maintainer, summary, description, changelog)")
	cmd.Flags().String("description", "", "Replace the package description")
	cmd.Flags().String("maintainer", "", "Maintainer of the converted packages")
	cmd.Flags().String("target", "", "Override the package architecture")
	cmd.Flags().Int("bump", defaults.Bump, "Increase the release number by this much")
	cmd.Flags().Bool("keep-version", false, "Do not change the release number")
	cmd.Flags().String("compression", defaults.Compression, "Payload compression (gzip, xz, zstd)")
	cmd.Flags().StringSlice("exclude", nil, "Glob patterns of files to leave out")

	// GPG signing flags
	cmd.Flags().StringP("gpg-key", "k", "", "Path to GPG private key")
	cmd.Flags().StringP("gpg-passphrase", "p", "", "GPG key passphrase")

	return cmd
}

// loadConfig reads the config file named by --config and overlays the flags
func loadConfig(cmd *cobra.Command, flags map[string]string) (*models.ConversionConfig, error) {
	path, _ := cmd.Flags().GetString("config")
	v, err := config.New(path)
	if err != nil {
		return nil, err
	}
	if err := config.BindFlags(v, cmd.Flags(), flags); err != nil {
		return nil, err
	}
	return config.Load(v)
}

func validateConfig(cfg *models.ConversionConfig) error {
	if len(cfg.Inputs) == 0 {
		return &models.ConversionError{
			Type:   models.ErrInvalidConfig,
			Offset: -1,
			Err:    fmt.Errorf("at least one input is required"),
		}
	}

	if len(cfg.Targets) == 0 {
		return &models.ConversionError{
			Type:   models.ErrInvalidConfig,
			Offset: -1,
			Err:    fmt.Errorf("at least one target format is required (--to)"),
		}
	}

	return nil
}

func runConversion(cmd *cobra.Command, cfg *models.ConversionConfig) error {
	ctx := cmd.Context()

	// Step 1: Resolve inputs
	sc := scanner.NewFileSystemScanner()
	scanned, err := sc.ScanPaths(ctx, cfg.Inputs)
	if err != nil {
		return models.NewIOError("scan inputs", err)
	}
	if len(scanned) == 0 {
		logrus.Warn("No packages found in inputs")
		return nil
	}
	logrus.Infof("Found %d packages", len(scanned))

	// Step 2: Initialize signer
	var s pipeline.Signer
	if cfg.GPGKeyPath != "" {
		gpg, err := signer.NewGPGSigner(cfg.GPGKeyPath, cfg.GPGPassphrase)
		if err != nil {
			return &models.ConversionError{
				Type:   models.ErrSigning,
				Offset: -1,
				Err:    fmt.Errorf("failed to initialize GPG signer: %w", err),
			}
		}
		s = gpg
		logrus.Info("GPG signer initialized")
	}

	// Step 3: Build one request per input and target
	reqs, err := buildRequests(cfg, scanned)
	if err != nil {
		return err
	}

	// Step 4: Convert
	p := pipeline.New(cfg.StagingDir, s)
	results, err := p.ConvertAll(ctx, reqs, cfg.Workers)

	converted := 0
	for _, res := range results {
		if res == nil {
			continue
		}
		converted++
		logrus.Debugf("%s sha256 %s", res.OutputPath, res.Checksum)
		fmt.Fprintln(cmd.OutOrStdout(), res.OutputPath)
		if res.SignaturePath != "" {
			fmt.Fprintln(cmd.OutOrStdout(), res.SignaturePath)
		}
	}
	logrus.Infof("Converted %d of %d packages into %s", converted, len(reqs), cfg.OutputDir)
	return err
}

func buildRequests(cfg *models.ConversionConfig, scanned []scanner.ScannedPackage) ([]pipeline.Request, error) {
	source := scanner.TypeUnknown
	if cfg.Source != "" {
		t, err := scanner.ParsePackageType(cfg.Source)
		if err != nil {
			return nil, &models.ConversionError{Type: models.ErrInvalidConfig, Offset: -1, Err: err}
		}
		source = t
	}

	var targets []scanner.PackageType
	for _, name := range cfg.Targets {
		t, err := scanner.ParsePackageType(name)
		if err != nil {
			return nil, &models.ConversionError{Type: models.ErrInvalidConfig, Offset: -1, Err: err}
		}
		targets = append(targets, t)
	}

	var reqs []pipeline.Request
	for _, pkg := range scanned {
		from := source
		if from == scanner.TypeUnknown {
			from = pkg.Type
		}
		if from == scanner.TypeUnknown {
			logrus.Warnf("Skipping %s: unknown package type, use --from", pkg.Path)
			continue
		}
		for _, to := range targets {
			if to == from {
				logrus.Debugf("%s is already a %s package, rewriting it", pkg.Path, to)
			}
			reqs = append(reqs, pipeline.Request{
				InputPath:  pkg.Path,
				SourceType: from,
				TargetType: to,
				OutputDir:  cfg.OutputDir,
				Options:    cfg.ConversionOptions,
			})
		}
	}
	if len(reqs) == 0 {
		return nil, &models.ConversionError{
			Type:   models.ErrInvalidConfig,
			Offset: -1,
			Err:    fmt.Errorf("nothing to convert in %s", strings.Join(cfg.Inputs, ", ")),
		}
	}
	return reqs, nil
}
