package scanner

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Gzip magic bytes; every APK segment is a gzip member
var gzipMagic = []byte{0x1F, 0x8B}

// indexFileName is the conventional name of a repository index
const indexFileName = "APKINDEX.tar.gz"

// DetectFileType determines the file type from its name and magic bytes
func DetectFileType(path string) (FileType, error) {
	basename := filepath.Base(path)
	isIndex := basename == indexFileName
	if !isIndex && !strings.EqualFold(filepath.Ext(path), ".apk") {
		return TypeUnknown, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return TypeUnknown, err
	}
	defer f.Close()

	header := make([]byte, len(gzipMagic))
	if _, err := io.ReadFull(f, header); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return TypeUnknown, nil
		}
		return TypeUnknown, err
	}
	if !bytes.Equal(header, gzipMagic) {
		return TypeUnknown, nil
	}

	if isIndex {
		return TypeIndex, nil
	}
	return TypeApk, nil
}
