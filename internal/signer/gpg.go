package signer

import (
	"bytes"
	"crypto"
	"fmt"
	"os"
	"time"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/armor"
	"github.com/ProtonMail/go-crypto/openpgp/packet"

	"github.com/ralt/apkkit/internal/models"
)

// GPGSigner implements Signer interface using OpenPGP detached signatures
type GPGSigner struct {
	entity  *openpgp.Entity
	keyName string
}

// NewGPGSigner creates a new GPG signer from a private key file
func NewGPGSigner(keyPath, passphrase, keyName string) (*GPGSigner, error) {
	if keyPath == "" {
		return nil, fmt.Errorf("key path is empty")
	}

	// Read private key file
	keyFile, err := os.Open(keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open key file: %w", err)
	}
	defer keyFile.Close()

	// Try to parse as armored key first
	entityList, err := openpgp.ReadArmoredKeyRing(keyFile)
	if err != nil {
		// Try as binary key
		if _, err := keyFile.Seek(0, 0); err != nil {
			return nil, fmt.Errorf("failed to rewind key file: %w", err)
		}
		entityList, err = openpgp.ReadKeyRing(keyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read key: %w", err)
		}
	}

	if len(entityList) == 0 {
		return nil, fmt.Errorf("no keys found in key file")
	}

	entity := entityList[0]

	// Decrypt private key if passphrase provided
	if passphrase != "" {
		if entity.PrivateKey != nil && entity.PrivateKey.Encrypted {
			err = entity.PrivateKey.Decrypt([]byte(passphrase))
			if err != nil {
				return nil, fmt.Errorf("failed to decrypt private key: %w", err)
			}
		}

		// Decrypt subkeys as well
		for _, subkey := range entity.Subkeys {
			if subkey.PrivateKey != nil && subkey.PrivateKey.Encrypted {
				err = subkey.PrivateKey.Decrypt([]byte(passphrase))
				if err != nil {
					return nil, fmt.Errorf("failed to decrypt subkey: %w", err)
				}
			}
		}
	}

	return NewGPGSignerFromEntity(entity, keyName)
}

// NewGPGSignerFromEntity wraps an already decrypted entity. An empty keyName
// defaults to the primary key id in hex.
func NewGPGSignerFromEntity(entity *openpgp.Entity, keyName string) (*GPGSigner, error) {
	if entity == nil || entity.PrivateKey == nil {
		return nil, fmt.Errorf("entity has no private key")
	}
	if keyName == "" {
		keyName = fmt.Sprintf("%016X", entity.PrimaryKey.KeyId)
	}
	return &GPGSigner{entity: entity, keyName: keyName}, nil
}

// KeyID returns the key name recorded in signature entries
func (s *GPGSigner) KeyID() string {
	return s.keyName
}

// Algorithm returns PGP
func (s *GPGSigner) Algorithm() string {
	return models.AlgorithmPGP
}

// SignDigest creates a binary detached signature over digest. The signature
// creation time is pinned to the newest self-signature on the key so that
// signing the same digest twice yields the same bytes for deterministic
// signature schemes.
func (s *GPGSigner) SignDigest(digest []byte) ([]byte, error) {
	created := signingTime(s.entity)
	var buf bytes.Buffer

	err := openpgp.DetachSign(&buf, s.entity, bytes.NewReader(digest), &packet.Config{
		DefaultHash: crypto.SHA256,
		Time:        func() time.Time { return created },
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create detached signature: %w", err)
	}

	return buf.Bytes(), nil
}

func signingTime(entity *openpgp.Entity) time.Time {
	t := entity.PrimaryKey.CreationTime
	for _, identity := range entity.Identities {
		if identity.SelfSignature != nil && identity.SelfSignature.CreationTime.After(t) {
			t = identity.SelfSignature.CreationTime
		}
	}
	for _, subkey := range entity.Subkeys {
		if subkey.Sig != nil && subkey.Sig.CreationTime.After(t) {
			t = subkey.Sig.CreationTime
		}
	}
	return t
}

// GetPublicKey returns the public key in armored format
func (s *GPGSigner) GetPublicKey() ([]byte, error) {
	var buf bytes.Buffer

	w, err := armor.Encode(&buf, openpgp.PublicKeyType, nil)
	if err != nil {
		return nil, err
	}

	err = s.entity.Serialize(w)
	if err != nil {
		w.Close()
		return nil, err
	}

	if err := w.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// PublicKey returns a verifier for signatures made by s
func (s *GPGSigner) PublicKey() PublicKey {
	return &PGPPublicKey{entities: openpgp.EntityList{s.entity}}
}

// PGPPublicKey verifies OpenPGP detached signatures
type PGPPublicKey struct {
	entities openpgp.EntityList
}

// ParsePGPPublicKey reads an armored or binary OpenPGP public key ring
func ParsePGPPublicKey(data []byte) (*PGPPublicKey, error) {
	entities, err := openpgp.ReadArmoredKeyRing(bytes.NewReader(data))
	if err != nil {
		entities, err = openpgp.ReadKeyRing(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("failed to read key: %w", err)
		}
	}
	if len(entities) == 0 {
		return nil, fmt.Errorf("no keys found")
	}
	return &PGPPublicKey{entities: entities}, nil
}

// Verify checks signature over digest
func (k *PGPPublicKey) Verify(algorithm string, digest, signature []byte) error {
	if algorithm != models.AlgorithmPGP {
		return fmt.Errorf("%w: algorithm %q does not apply to OpenPGP keys", models.ErrSignatureInvalid, algorithm)
	}
	_, err := openpgp.CheckDetachedSignature(k.entities, bytes.NewReader(digest), bytes.NewReader(signature), nil)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrSignatureInvalid, err)
	}
	return nil
}
