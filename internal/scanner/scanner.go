package scanner

import "context"

// FileType represents the kind of file found while scanning
type FileType int

const (
	TypeUnknown FileType = iota
	TypeApk
	TypeIndex
)

// String returns the string representation of FileType
func (ft FileType) String() string {
	switch ft {
	case TypeApk:
		return "apk"
	case TypeIndex:
		return "index"
	default:
		return "unknown"
	}
}

// ScannedFile represents a file found during scanning
type ScannedFile struct {
	Path string
	Type FileType
	Size int64
}

// Scanner interface for detecting and scanning packages
type Scanner interface {
	// Scan recursively scans a directory for packages
	Scan(ctx context.Context, dir string) ([]ScannedFile, error)

	// DetectType determines the type of a file
	DetectType(path string) (FileType, error)
}

// Paths returns the paths of files of type t, in scan order
func Paths(files []ScannedFile, t FileType) []string {
	var out []string
	for _, f := range files {
		if f.Type == t {
			out = append(out, f.Path)
		}
	}
	return out
}
