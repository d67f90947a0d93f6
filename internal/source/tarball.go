package source

import (
	"archive/tar"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/ralt/apkkit/internal/builder"
	"github.com/ralt/apkkit/internal/models"
	"github.com/ralt/apkkit/internal/utils"
)

// LoadTarball reads a staged tree from a .tar, .tar.gz, .tar.xz or .tar.zst
// file. Hard links are resolved to copies of their target.
func LoadTarball(p string) ([]builder.File, error) {
	compression, ok := utils.DetectCompression(p)
	if !ok {
		return nil, models.Errorf(models.ErrInvalidFile, "unsupported tarball %s", p)
	}

	f, err := os.Open(p)
	if err != nil {
		return nil, &models.PackageError{Type: models.ErrFileOp, Err: err}
	}
	defer f.Close()

	r, err := utils.NewDecompressor(f, compression)
	if err != nil {
		return nil, models.Errorf(models.ErrBadCompression, "%s: %v", p, err)
	}
	defer r.Close()

	files, err := readTar(tar.NewReader(r))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p, err)
	}
	logrus.Debugf("Loaded %d files from %s (%s)", len(files), p, compression)
	return files, nil
}

func readTar(tr *tar.Reader) ([]builder.File, error) {
	var files []builder.File
	index := make(map[string]int)

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, models.Errorf(models.ErrBadCompression, "corrupt tar stream: %v", err)
		}

		name, err := cleanName(hdr.Name)
		if err != nil {
			return nil, err
		}
		if name == "" {
			continue
		}
		mode := hdr.Mode & 07777

		var file builder.File
		switch hdr.Typeflag {
		case tar.TypeDir:
			continue
		case tar.TypeReg:
			content, err := io.ReadAll(tr)
			if err != nil {
				return nil, models.Errorf(models.ErrTruncatedStream, "%s: %v", name, err)
			}
			file = builder.File{Path: name, Mode: mode, Content: content}
		case tar.TypeSymlink:
			file = builder.File{Path: name, Mode: mode, Linkname: hdr.Linkname}
		case tar.TypeLink:
			target, err := cleanName(hdr.Linkname)
			if err != nil {
				return nil, err
			}
			i, ok := index[target]
			if !ok {
				return nil, models.Errorf(models.ErrInvalidFile, "hard link %s to unknown member %s", name, hdr.Linkname)
			}
			file = files[i]
			file.Path = name
		default:
			logrus.Warnf("Skipping %s: unsupported tar entry type %q", name, hdr.Typeflag)
			continue
		}

		if i, dup := index[name]; dup {
			// Later members override earlier ones, as with tar -x
			files[i] = file
			continue
		}
		index[name] = len(files)
		files = append(files, file)
	}

	sortFiles(files)
	return files, nil
}
