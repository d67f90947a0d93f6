package source

import (
	"io/fs"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/ralt/apkkit/internal/builder"
	"github.com/ralt/apkkit/internal/models"
)

// LoadDir walks a staged directory. Regular files and symlinks become
// payload entries; directories are implied by their contents, and other file
// types are skipped.
func LoadDir(dir string) ([]builder.File, error) {
	var files []builder.File

	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		info, err := d.Info()
		if err != nil {
			return err
		}
		mode := int64(info.Mode().Perm())

		switch {
		case d.Type()&fs.ModeSymlink != 0:
			target, err := os.Readlink(p)
			if err != nil {
				return err
			}
			files = append(files, builder.File{Path: rel, Mode: mode, Linkname: target})
		case d.Type().IsRegular():
			content, err := os.ReadFile(p)
			if err != nil {
				return err
			}
			files = append(files, builder.File{Path: rel, Mode: mode, Content: content})
		default:
			logrus.Warnf("Skipping %s: unsupported file type %s", rel, d.Type())
		}
		return nil
	})
	if err != nil {
		return nil, &models.PackageError{Type: models.ErrFileOp, Err: err}
	}

	sortFiles(files)
	logrus.Debugf("Loaded %d files from %s", len(files), dir)
	return files, nil
}
