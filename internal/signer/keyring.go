package signer

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// PublicKey verifies signatures made over a control digest
type PublicKey interface {
	Verify(algorithm string, digest, signature []byte) error
}

// Keyring maps key ids to trusted public keys
type Keyring map[string]PublicKey

// Add trusts key under id
func (k Keyring) Add(id string, key PublicKey) {
	k[id] = key
}

// Lookup returns the key trusted under id
func (k Keyring) Lookup(id string) (PublicKey, bool) {
	key, ok := k[id]
	return key, ok
}

// IDs returns the trusted key ids in sorted order
func (k Keyring) IDs() []string {
	ids := make([]string, 0, len(k))
	for id := range k {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// LoadKeyring reads every public key in dir. RSA keys are PEM files named
// "*.pub" or "*.pem", OpenPGP keys are "*.asc" or "*.gpg". The key id is the
// file name, which is how apk-tools matches ".SIGN.RSA.<name>" entries to
// files in /etc/apk/keys.
func LoadKeyring(dir string) (Keyring, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read key directory: %w", err)
	}

	keyring := make(Keyring)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		path := filepath.Join(dir, name)

		var key PublicKey
		switch strings.ToLower(filepath.Ext(name)) {
		case ".pub", ".pem":
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, err
			}
			rsaKey, err := ParseRSAPublicKey(data)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", name, err)
			}
			key = rsaKey
		case ".asc", ".gpg":
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, err
			}
			pgpKey, err := ParsePGPPublicKey(data)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", name, err)
			}
			key = pgpKey
		default:
			continue
		}
		keyring.Add(name, key)
	}

	return keyring, nil
}
