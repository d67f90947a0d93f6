package cli

import (
	"fmt"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ralt/apkkit/internal/builder"
	"github.com/ralt/apkkit/internal/models"
	"github.com/ralt/apkkit/internal/source"
	"github.com/ralt/apkkit/internal/utils"
)

// NewBuildCmd creates the build command
func NewBuildCmd() *cobra.Command {
	var config models.BuildConfig

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build a package",
		Long: `Builds an APK package from a YAML manifest and a staged tree. The
tree can be a directory, a .tar/.tar.gz/.tar.xz/.tar.zst tarball or an RPM
whose payload and headers are repackaged. Output only depends on the inputs.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateBuildConfig(&config); err != nil {
				return err
			}
			path, err := runBuild(&config)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}

	cmd.Flags().StringVarP(&config.ManifestPath, "manifest", "m", "", "Path to the YAML package manifest")
	cmd.Flags().StringVarP(&config.Input, "input", "i", "", "Staged tree: directory, tarball or .rpm")
	cmd.Flags().StringVarP(&config.Output, "output-dir", "o", ".", "Directory to write the package to")

	cmd.Flags().StringVar(&config.RSAKeyPath, "rsa-key", "", "Path to RSA private key")
	cmd.Flags().StringVar(&config.RSAPassphrase, "rsa-passphrase", "", "RSA key passphrase")
	cmd.Flags().StringVar(&config.PGPKeyPath, "pgp-key", "", "Path to OpenPGP private key")
	cmd.Flags().StringVar(&config.PGPPassphrase, "pgp-passphrase", "", "OpenPGP key passphrase")
	cmd.Flags().StringVar(&config.KeyName, "key-name", "", "Key id recorded in signatures (defaults to the key file name)")
	cmd.Flags().BoolVar(&config.SHA256, "sha256", false, "Sign with RSA256 instead of legacy RSA/SHA1")

	return cmd
}

func validateBuildConfig(config *models.BuildConfig) error {
	if config.Input == "" {
		return &models.PackageError{
			Type: models.ErrInvalidConfig,
			Err:  fmt.Errorf("input is required"),
		}
	}
	if config.ManifestPath == "" && filepath.Ext(config.Input) != ".rpm" {
		return &models.PackageError{
			Type: models.ErrInvalidConfig,
			Err:  fmt.Errorf("manifest is required unless the input is an RPM"),
		}
	}
	if config.Output == "" {
		config.Output = "."
	}
	return nil
}

func runBuild(config *models.BuildConfig) (string, error) {
	logrus.Infof("Loading staged tree: %s", config.Input)
	tree, err := source.Load(config.Input)
	if err != nil {
		return "", err
	}

	meta := tree.Metadata
	var opts []builder.Option
	if config.ManifestPath != "" {
		manifest, err := LoadManifest(config.ManifestPath)
		if err != nil {
			return "", err
		}
		if meta, err = manifest.Apply(meta); err != nil {
			return "", err
		}
		scripts, err := manifest.LoadScripts()
		if err != nil {
			return "", err
		}
		opts = append(opts, builder.WithScripts(scripts...))
	}
	meta.Architecture = models.NormalizeArch(meta.Architecture)

	if meta.InstalledSize == 0 {
		for _, f := range tree.Files {
			meta.InstalledSize += int64(len(f.Content))
		}
	}

	signers, err := loadSigners(signingFlags{
		RSAKeyPath:    config.RSAKeyPath,
		RSAPassphrase: config.RSAPassphrase,
		PGPKeyPath:    config.PGPKeyPath,
		PGPPassphrase: config.PGPPassphrase,
		KeyName:       config.KeyName,
		SHA256:        config.SHA256,
	})
	if err != nil {
		return "", err
	}
	for _, s := range signers {
		opts = append(opts, builder.WithSigner(s))
	}

	pkg, err := builder.Build(meta, tree.Files, opts...)
	if err != nil {
		return "", err
	}

	path := filepath.Join(config.Output, builder.FileName(pkg.Metadata))
	if err := utils.WriteFileAtomic(path, pkg.Bytes(), 0644); err != nil {
		return "", &models.PackageError{Type: models.ErrFileOp, Package: pkg.Metadata.Name, Err: err}
	}

	logrus.Infof("Built %s (%d files, %d signatures)", path, len(tree.Files), len(pkg.Signatures))
	return path, nil
}
