package cli

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ralt/apkkit/internal/container"
	"github.com/ralt/apkkit/internal/index"
	"github.com/ralt/apkkit/internal/models"
	"github.com/ralt/apkkit/internal/scanner"
	"github.com/ralt/apkkit/internal/signer"
	"github.com/ralt/apkkit/internal/verify"
)

// NewVerifyCmd creates the verify command
func NewVerifyCmd() *cobra.Command {
	var keysDir string
	var skipSignature bool

	cmd := &cobra.Command{
		Use:   "verify FILE...",
		Short: "Verify packages and indexes",
		Long: `Checks the data checksum and control digest of every package. When a
trusted keys directory is given, signatures on packages and APKINDEX.tar.gz
files must verify against one of its keys.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var keys signer.Keyring
			if keysDir != "" && !skipSignature {
				var err error
				if keys, err = signer.LoadKeyring(keysDir); err != nil {
					return &models.PackageError{Type: models.ErrInvalidConfig, Err: err}
				}
				logrus.Debugf("Trusted keys: %v", keys.IDs())
			}

			failed := 0
			for _, path := range args {
				desc, err := verifyFile(path, keys)
				if err != nil {
					logrus.Errorf("%s: %v", path, err)
					failed++
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: OK (%s)\n", path, desc)
			}

			if failed > 0 {
				return fmt.Errorf("%d of %d files failed verification", failed, len(args))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&keysDir, "keys-dir", "k", "", "Directory of trusted public keys")
	cmd.Flags().BoolVar(&skipSignature, "no-signature", false, "Only check integrity, even when keys are given")

	return cmd
}

func verifyFile(path string, keys signer.Keyring) (string, error) {
	fileType, err := scanner.DetectFileType(path)
	if err != nil {
		return "", &models.PackageError{Type: models.ErrFileOp, Err: err}
	}
	if fileType == scanner.TypeIndex {
		return verifyIndex(path, keys)
	}

	f, err := os.Open(path)
	if err != nil {
		return "", &models.PackageError{Type: models.ErrFileOp, Err: err}
	}
	defer f.Close()

	pkg, err := container.Decode(f)
	if err != nil {
		return "", err
	}
	if err := verify.Integrity(pkg); err != nil {
		return "", err
	}
	desc := fmt.Sprintf("%s-%s, integrity", pkg.Metadata.Name, pkg.Metadata.Version)
	if keys != nil {
		if err := verify.Signature(pkg, keys); err != nil {
			return "", err
		}
		desc += ", signature"
	}
	return desc, nil
}

func verifyIndex(path string, keys signer.Keyring) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", &models.PackageError{Type: models.ErrFileOp, Err: err}
	}
	repo, err := index.Parse(data)
	if err != nil {
		return "", err
	}
	desc := fmt.Sprintf("index with %d packages", repo.Len())
	if keys != nil {
		if err := index.Verify(data, keys); err != nil {
			return "", err
		}
		desc += ", signature"
	}
	return desc, nil
}
