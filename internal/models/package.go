package models

// Metadata is the structured form of a package's control segment.
type Metadata struct {
	// Core metadata
	Name          string
	Version       string
	Architecture  string
	Maintainer    string
	Description   string
	Homepage      string
	License       string
	InstalledSize int64

	// DataHash is the hex SHA-256 of the data segment's uncompressed content.
	DataHash string

	Depends  []Dependency
	Provides []Provide
	Triggers []string

	// Extra holds control fields this package does not model, keyed by field
	// name with every occurrence kept in source order.
	Extra map[string][]string
}

// Clone returns a deep copy of m.
func (m Metadata) Clone() Metadata {
	out := m
	if m.Depends != nil {
		out.Depends = append([]Dependency(nil), m.Depends...)
	}
	if m.Provides != nil {
		out.Provides = append([]Provide(nil), m.Provides...)
	}
	if m.Triggers != nil {
		out.Triggers = append([]string(nil), m.Triggers...)
	}
	if m.Extra != nil {
		out.Extra = make(map[string][]string, len(m.Extra))
		for k, v := range m.Extra {
			out.Extra[k] = append([]string(nil), v...)
		}
	}
	return out
}

// Operator is the relation a dependency places on a version.
type Operator int

const (
	OpAny Operator = iota
	OpEqual
	OpLess
	OpLessEqual
	OpGreater
	OpGreaterEqual
	OpConflict
)

// String returns the operator as written in a dependency atom. OpConflict is
// written as a '!' prefix and OpAny has no textual form.
func (o Operator) String() string {
	switch o {
	case OpEqual:
		return "="
	case OpLess:
		return "<"
	case OpLessEqual:
		return "<="
	case OpGreater:
		return ">"
	case OpGreaterEqual:
		return ">="
	case OpConflict:
		return "!"
	default:
		return ""
	}
}

// Dependency is a single dependency constraint such as "musl>=1.2" or "!foo".
type Dependency struct {
	Name     string
	Operator Operator
	Version  string
}

// String renders the constraint in apk atom syntax.
func (d Dependency) String() string {
	switch d.Operator {
	case OpAny:
		return d.Name
	case OpConflict:
		return "!" + d.Name
	default:
		return d.Name + d.Operator.String() + d.Version
	}
}

// Provide is a virtual capability offered by a package.
type Provide struct {
	Name    string
	Version string
}

// String renders the provide as "name" or "name=version".
func (p Provide) String() string {
	if p.Version == "" {
		return p.Name
	}
	return p.Name + "=" + p.Version
}

// Signature is one signature attached to a package, covering the digest of
// its control segment.
type Signature struct {
	KeyID     string
	Algorithm string
	Raw       []byte
}

// Signature algorithms understood by the signer and verifier.
const (
	AlgorithmRSA    = "RSA"
	AlgorithmRSA256 = "RSA256"
	AlgorithmPGP    = "PGP"
)

// archAliases maps architecture names used by other distributions to the
// names used in APK metadata.
var archAliases = map[string]string{
	"amd64": "x86_64",
	"hppa":  "parisc",
	"arm64": "aarch64",
}

// NormalizeArch returns the APK name for arch.
func NormalizeArch(arch string) string {
	if a, ok := archAliases[arch]; ok {
		return a
	}
	return arch
}
