package cli

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/ralt/apkkit/internal/models"
	"github.com/ralt/apkkit/internal/signer"
)

type signingFlags struct {
	RSAKeyPath    string
	RSAPassphrase string
	PGPKeyPath    string
	PGPPassphrase string
	KeyName       string
	SHA256        bool
}

// defaultKeyName derives a key id from a private key path, the way abuild
// names the public half it installs in /etc/apk/keys.
func defaultKeyName(keyPath, suffix string) string {
	base := filepath.Base(keyPath)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return base + suffix
}

func loadSigners(f signingFlags) ([]signer.Signer, error) {
	var signers []signer.Signer

	if f.RSAKeyPath != "" {
		algorithm := models.AlgorithmRSA
		if f.SHA256 {
			algorithm = models.AlgorithmRSA256
		}
		keyName := f.KeyName
		if keyName == "" {
			keyName = defaultKeyName(f.RSAKeyPath, ".rsa.pub")
		}
		rsaSigner, err := signer.NewAlpineRSASigner(f.RSAKeyPath, f.RSAPassphrase, keyName, algorithm)
		if err != nil {
			return nil, &models.PackageError{
				Type: models.ErrSigning,
				Err:  fmt.Errorf("failed to initialize RSA signer: %w", err),
			}
		}
		logrus.Infof("RSA signer initialized (%s, %s)", keyName, algorithm)
		signers = append(signers, rsaSigner)
	}

	if f.PGPKeyPath != "" {
		keyName := f.KeyName
		if keyName == "" {
			keyName = defaultKeyName(f.PGPKeyPath, ".asc")
		}
		gpgSigner, err := signer.NewGPGSigner(f.PGPKeyPath, f.PGPPassphrase, keyName)
		if err != nil {
			return nil, &models.PackageError{
				Type: models.ErrSigning,
				Err:  fmt.Errorf("failed to initialize GPG signer: %w", err),
			}
		}
		logrus.Infof("GPG signer initialized (%s)", keyName)
		signers = append(signers, gpgSigner)
	}

	return signers, nil
}
