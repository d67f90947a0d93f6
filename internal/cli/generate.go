package cli

import (
	"context"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ralt/apkkit/internal/generator"
	"github.com/ralt/apkkit/internal/generator/apk"
	"github.com/ralt/apkkit/internal/models"
	"github.com/ralt/apkkit/internal/scanner"
)

// NewIndexCmd creates the index command
func NewIndexCmd() *cobra.Command {
	var config models.RepositoryConfig
	var sha256 bool

	cmd := &cobra.Command{
		Use:     "index",
		Aliases: []string{"generate"},
		Short:   "Generate APKINDEX repositories",
		Long: `Scans the input directory for .apk files, verifies them and writes
<output-dir>/<arch>/APKINDEX.tar.gz next to copies of the packages. Packages
that fail verification are reported and left out.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateConfig(&config); err != nil {
				return err
			}

			logrus.Info("Starting repository generation...")
			logrus.Debugf("Configuration: %+v", config)

			return runGeneration(cmd.Context(), &config, signingFlags{
				RSAKeyPath:    config.RSAKeyPath,
				RSAPassphrase: config.RSAPassphrase,
				PGPKeyPath:    config.PGPKeyPath,
				PGPPassphrase: config.PGPPassphrase,
				KeyName:       config.KeyName,
				SHA256:        sha256,
			})
		},
	}

	// Input/Output flags
	cmd.Flags().StringVarP(&config.InputDir, "input-dir", "i", ".", "Input directory to scan")
	cmd.Flags().StringVarP(&config.OutputDir, "output-dir", "o", "./repo", "Output directory")

	// Repository metadata flags
	cmd.Flags().StringVar(&config.Description, "description", "", "Index description (defaults to one per architecture)")
	cmd.Flags().StringSliceVar(&config.Arches, "arch", nil, "Architectures to publish (default: all found)")
	cmd.Flags().BoolVar(&config.Incremental, "incremental", false, "Merge into the existing index instead of replacing it")
	cmd.Flags().IntVarP(&config.Workers, "workers", "j", 0, "Packages verified in parallel (default: one per CPU)")

	// Signing flags
	cmd.Flags().StringVar(&config.RSAKeyPath, "rsa-key", "", "Path to RSA private key")
	cmd.Flags().StringVar(&config.RSAPassphrase, "rsa-passphrase", "", "RSA key passphrase")
	cmd.Flags().StringVar(&config.PGPKeyPath, "pgp-key", "", "Path to OpenPGP private key")
	cmd.Flags().StringVar(&config.PGPPassphrase, "pgp-passphrase", "", "OpenPGP key passphrase")
	cmd.Flags().StringVar(&config.KeyName, "key-name", "", "Key id recorded in signatures (defaults to the key file name)")
	cmd.Flags().BoolVar(&sha256, "sha256", false, "Sign with RSA256 instead of legacy RSA/SHA1")

	// Verification flags
	cmd.Flags().StringVarP(&config.TrustedKeysDir, "keys-dir", "k", "", "Only index packages signed by a key in this directory")
	cmd.Flags().BoolVar(&config.RequireSignature, "require-signature", false, "Fail unless --keys-dir is set")

	return cmd
}

func validateConfig(config *models.RepositoryConfig) error {
	if config.InputDir == "" {
		return &models.PackageError{
			Type: models.ErrInvalidConfig,
			Err:  fmt.Errorf("input-dir is required"),
		}
	}

	if config.OutputDir == "" {
		return &models.PackageError{
			Type: models.ErrInvalidConfig,
			Err:  fmt.Errorf("output-dir is required"),
		}
	}

	if config.Workers < 0 {
		return &models.PackageError{
			Type: models.ErrInvalidConfig,
			Err:  fmt.Errorf("workers must not be negative"),
		}
	}

	if config.RequireSignature && config.TrustedKeysDir == "" {
		return &models.PackageError{
			Type: models.ErrInvalidConfig,
			Err:  fmt.Errorf("require-signature needs keys-dir"),
		}
	}

	for i, arch := range config.Arches {
		config.Arches[i] = models.NormalizeArch(arch)
	}

	return nil
}

func runGeneration(ctx context.Context, config *models.RepositoryConfig, signing signingFlags) error {
	// Step 1: Scan for packages
	logrus.Infof("Scanning directory: %s", config.InputDir)
	sc := scanner.NewFileSystemScanner()
	scanned, err := sc.Scan(ctx, config.InputDir)
	if err != nil {
		return &models.PackageError{
			Type: models.ErrFileOp,
			Err:  fmt.Errorf("failed to scan directory: %w", err),
		}
	}

	if len(scanner.Paths(scanned, scanner.TypeApk)) == 0 {
		logrus.Warn("No packages found in input directory")
		return nil
	}

	// Step 2: Initialize signers
	signers, err := loadSigners(signing)
	if err != nil {
		return err
	}

	// Step 3: Generate
	gen := apk.NewGenerator(signers...)
	result, err := gen.Generate(ctx, config, scanned)
	if err != nil {
		return err
	}

	if len(result.Failures) > 0 {
		logrus.Warnf("%d packages were skipped", len(result.Failures))
	}
	for _, arch := range indexedArches(result) {
		logrus.Infof("%s: %d packages", arch, result.Indexed[arch])
	}

	logrus.Info("Repository generation completed successfully!")
	logrus.Infof("Output directory: %s", config.OutputDir)

	return nil
}

// indexedArches returns the architectures of a run in sorted order
func indexedArches(result *generator.Result) []string {
	arches := make([]string, 0, len(result.Indexed))
	for arch := range result.Indexed {
		arches = append(arches, arch)
	}
	sort.Strings(arches)
	return arches
}
