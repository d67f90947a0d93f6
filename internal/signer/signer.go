package signer

// Signer signs the control digest of a package or index
type Signer interface {
	// KeyID names the key in signature entries (".SIGN.<algorithm>.<keyid>")
	KeyID() string

	// Algorithm returns the signature algorithm recorded with each signature
	Algorithm() string

	// SignDigest signs a control segment digest
	SignDigest(digest []byte) ([]byte, error)

	// GetPublicKey returns the public key in its distributable encoding
	GetPublicKey() ([]byte, error)

	// PublicKey returns the verifier matching this signer
	PublicKey() PublicKey
}

// RSASigner interface for RSA signing (Alpine APK)
type RSASigner interface {
	Signer

	// SignRSA creates an RSA PKCS1v15 signature over the SHA1 of data
	SignRSA(data []byte) ([]byte, error)
}
