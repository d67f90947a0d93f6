package signer

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"

	"github.com/ralt/apkkit/internal/models"
)

// AlpineRSASigner implements RSASigner interface for Alpine APK signing
type AlpineRSASigner struct {
	privateKey *rsa.PrivateKey
	publicKey  *rsa.PublicKey
	keyName    string
	algorithm  string
}

// NewAlpineRSASigner creates a new RSA signer for Alpine from a private key file.
// algorithm is models.AlgorithmRSA or models.AlgorithmRSA256.
func NewAlpineRSASigner(keyPath, passphrase, keyName, algorithm string) (*AlpineRSASigner, error) {
	if keyPath == "" {
		return nil, fmt.Errorf("key path is empty")
	}

	// Read private key file
	keyData, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}

	// Parse PEM block
	block, _ := pem.Decode(keyData)
	if block == nil {
		return nil, fmt.Errorf("failed to decode PEM block")
	}

	// Check if key is encrypted
	var privateKey *rsa.PrivateKey
	if x509.IsEncryptedPEMBlock(block) {
		if passphrase == "" {
			return nil, fmt.Errorf("key is encrypted but no passphrase provided")
		}

		// Decrypt the PEM block
		decryptedData, err := x509.DecryptPEMBlock(block, []byte(passphrase))
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt key: %w", err)
		}

		privateKey, err = parseRSAPrivateKey(decryptedData)
		if err != nil {
			return nil, err
		}
	} else {
		privateKey, err = parseRSAPrivateKey(block.Bytes)
		if err != nil {
			return nil, err
		}
	}

	return NewRSASignerFromKey(privateKey, keyName, algorithm)
}

// NewRSASignerFromKey wraps an already loaded private key.
func NewRSASignerFromKey(privateKey *rsa.PrivateKey, keyName, algorithm string) (*AlpineRSASigner, error) {
	if keyName == "" {
		return nil, fmt.Errorf("key name is empty")
	}
	if algorithm == "" {
		algorithm = models.AlgorithmRSA
	}
	if algorithm != models.AlgorithmRSA && algorithm != models.AlgorithmRSA256 {
		return nil, fmt.Errorf("unsupported RSA signature algorithm %q", algorithm)
	}

	return &AlpineRSASigner{
		privateKey: privateKey,
		publicKey:  &privateKey.PublicKey,
		keyName:    keyName,
		algorithm:  algorithm,
	}, nil
}

// parseRSAPrivateKey tries to parse RSA private key in PKCS1 or PKCS8 format
func parseRSAPrivateKey(data []byte) (*rsa.PrivateKey, error) {
	// Try PKCS1 first
	key, err := x509.ParsePKCS1PrivateKey(data)
	if err == nil {
		return key, nil
	}

	// Try PKCS8
	parsedKey, err := x509.ParsePKCS8PrivateKey(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	rsaKey, ok := parsedKey.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("key is not an RSA private key")
	}

	return rsaKey, nil
}

// KeyID returns the key name recorded in signature entries
func (s *AlpineRSASigner) KeyID() string {
	return s.keyName
}

// Algorithm returns RSA or RSA256
func (s *AlpineRSASigner) Algorithm() string {
	return s.algorithm
}

// SignRSA creates an RSA PKCS1v15 signature using SHA1 (Alpine APK standard)
func (s *AlpineRSASigner) SignRSA(data []byte) ([]byte, error) {
	hashed := sha1.Sum(data)

	signature, err := rsa.SignPKCS1v15(rand.Reader, s.privateKey, crypto.SHA1, hashed[:])
	if err != nil {
		return nil, fmt.Errorf("failed to sign: %w", err)
	}

	return signature, nil
}

// SignDigest signs a SHA-256 control digest
func (s *AlpineRSASigner) SignDigest(digest []byte) ([]byte, error) {
	if s.algorithm == models.AlgorithmRSA {
		return s.SignRSA(digest)
	}
	if len(digest) != sha256.Size {
		return nil, fmt.Errorf("digest is %d bytes, want %d", len(digest), sha256.Size)
	}
	signature, err := rsa.SignPKCS1v15(rand.Reader, s.privateKey, crypto.SHA256, digest)
	if err != nil {
		return nil, fmt.Errorf("failed to sign: %w", err)
	}
	return signature, nil
}

// GetPublicKey returns the public key in PEM format
func (s *AlpineRSASigner) GetPublicKey() ([]byte, error) {
	pubKeyBytes, err := x509.MarshalPKIXPublicKey(s.publicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal public key: %w", err)
	}

	block := &pem.Block{
		Type:  "PUBLIC KEY",
		Bytes: pubKeyBytes,
	}

	return pem.EncodeToMemory(block), nil
}

// PublicKey returns a verifier for signatures made by s
func (s *AlpineRSASigner) PublicKey() PublicKey {
	return &RSAPublicKey{key: s.publicKey}
}

// RSAPublicKey verifies RSA and RSA256 signatures
type RSAPublicKey struct {
	key *rsa.PublicKey
}

// ParseRSAPublicKey parses a PEM encoded PKIX or PKCS1 RSA public key
func ParseRSAPublicKey(data []byte) (*RSAPublicKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("failed to decode PEM block")
	}

	if key, err := x509.ParsePKCS1PublicKey(block.Bytes); err == nil {
		return &RSAPublicKey{key: key}, nil
	}

	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}
	key, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("key is not an RSA public key")
	}
	return &RSAPublicKey{key: key}, nil
}

// Verify checks signature over digest
func (k *RSAPublicKey) Verify(algorithm string, digest, signature []byte) error {
	var err error
	switch algorithm {
	case models.AlgorithmRSA:
		hashed := sha1.Sum(digest)
		err = rsa.VerifyPKCS1v15(k.key, crypto.SHA1, hashed[:], signature)
	case models.AlgorithmRSA256:
		err = rsa.VerifyPKCS1v15(k.key, crypto.SHA256, digest, signature)
	default:
		return fmt.Errorf("%w: algorithm %q does not apply to RSA keys", models.ErrSignatureInvalid, algorithm)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrSignatureInvalid, err)
	}
	return nil
}
