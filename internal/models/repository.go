package models

// RepositoryConfig contains configuration for index generation and publishing
type RepositoryConfig struct {
	// Input/Output
	InputDir  string
	OutputDir string

	// Repository metadata
	Description string
	Arches      []string // Architectures to publish; empty publishes all found

	// Signing
	RSAKeyPath    string
	RSAPassphrase string
	PGPKeyPath    string
	PGPPassphrase string
	KeyName       string // Key id recorded in signature entries

	// Verification
	TrustedKeysDir   string // When set, packages must carry a valid signature
	RequireSignature bool

	// Workers bounds the number of packages decoded concurrently
	Workers int

	// Incremental mode
	Incremental bool // Merge into the existing index instead of replacing it
}

// BuildConfig contains configuration for building a single package
type BuildConfig struct {
	ManifestPath string
	Input        string // Directory, tarball (.tar, .tar.gz, .tar.xz, .tar.zst) or .rpm
	Output       string

	RSAKeyPath    string
	RSAPassphrase string
	PGPKeyPath    string
	PGPPassphrase string
	KeyName       string
	SHA256        bool // Sign with RSA256 instead of legacy RSA
}
