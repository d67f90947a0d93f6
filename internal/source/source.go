// Package source turns staged package contents into builder input. A staged
// tree can be a directory, a tarball or the payload of an RPM.
package source

import (
	"fmt"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/ralt/apkkit/internal/builder"
	"github.com/ralt/apkkit/internal/models"
	"github.com/ralt/apkkit/internal/utils"
)

// Tree is a loaded staged tree
type Tree struct {
	Files []builder.File

	// Metadata is seed metadata found in the source. Only RPM payloads carry
	// any; callers overlay their own fields on top.
	Metadata models.Metadata
}

// Load reads the staged tree at p, picking the loader from the file type
func Load(p string) (*Tree, error) {
	info, err := os.Stat(p)
	if err != nil {
		return nil, &models.PackageError{Type: models.ErrFileOp, Err: err}
	}

	if info.IsDir() {
		files, err := LoadDir(p)
		if err != nil {
			return nil, err
		}
		return &Tree{Files: files}, nil
	}

	if strings.HasSuffix(strings.ToLower(p), ".rpm") {
		return LoadRPM(p)
	}

	if _, ok := utils.DetectCompression(p); ok {
		files, err := LoadTarball(p)
		if err != nil {
			return nil, err
		}
		return &Tree{Files: files}, nil
	}

	return nil, &models.PackageError{
		Type: models.ErrInvalidConfig,
		Err:  fmt.Errorf("%s is not a directory, tarball or RPM", p),
	}
}

// cleanName converts an archive member name to a package relative path.
// It returns "" for the root entry.
func cleanName(name string) (string, error) {
	p := path.Clean("/" + strings.TrimPrefix(name, "./"))
	if p == "/" {
		return "", nil
	}
	for _, part := range strings.Split(name, "/") {
		if part == ".." {
			return "", models.Errorf(models.ErrInvalidFile, "member %q escapes the staged tree", name)
		}
	}
	return p[1:], nil
}

func sortFiles(files []builder.File) {
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
}
