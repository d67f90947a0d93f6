package source

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/sassoftware/go-rpmutils"
	"github.com/sirupsen/logrus"

	"github.com/ralt/apkkit/internal/builder"
	"github.com/ralt/apkkit/internal/models"
	"github.com/ralt/apkkit/internal/pkginfo"
	"github.com/ralt/apkkit/internal/version"
)

// cpio file type bits
const (
	modeTypeMask = 0170000
	modeDir      = 0040000
	modeRegular  = 0100000
	modeSymlink  = 0120000
)

// LoadRPM repackages the payload of an RPM. Seed metadata is taken from the
// RPM header; requirements on files and rpmlib features are dropped.
func LoadRPM(p string) (*Tree, error) {
	f, err := os.Open(p)
	if err != nil {
		return nil, &models.PackageError{Type: models.ErrFileOp, Err: err}
	}
	defer f.Close()

	rpm, err := rpmutils.ReadRpm(f)
	if err != nil {
		return nil, models.Errorf(models.ErrBadCompression, "failed to read RPM %s: %v", p, err)
	}

	meta := rpmMetadata(rpm)

	pr, err := rpm.PayloadReaderExtended()
	if err != nil {
		return nil, models.Errorf(models.ErrBadCompression, "failed to open RPM payload %s: %v", p, err)
	}
	files, err := readPayload(pr)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p, err)
	}

	logrus.Debugf("Loaded %d files from %s (%s-%s)", len(files), p, meta.Name, meta.Version)
	return &Tree{Files: files, Metadata: meta}, nil
}

type inode struct {
	device, inode int
}

func readPayload(pr rpmutils.PayloadReader) ([]builder.File, error) {
	var files []builder.File
	var short []int
	full := make(map[inode]int)
	links := make(map[int]inode)

	for {
		fi, err := pr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, models.Errorf(models.ErrBadCompression, "corrupt RPM payload: %v", err)
		}

		name, err := cleanName(fi.Name())
		if err != nil {
			return nil, err
		}
		if name == "" {
			continue
		}
		mode := int64(fi.Mode() & 07777)

		switch fi.Mode() & modeTypeMask {
		case modeDir:
			continue
		case modeSymlink:
			files = append(files, builder.File{Path: name, Mode: mode, Linkname: fi.Linkname()})
		case modeRegular:
			content, err := io.ReadAll(pr)
			if err != nil {
				return nil, models.Errorf(models.ErrTruncatedStream, "%s: %v", name, err)
			}
			id := inode{fi.Device(), fi.Inode()}
			i := len(files)
			links[i] = id
			if int64(len(content)) == fi.Size() {
				full[id] = i
			} else {
				// Hard link members carry no data; the content is stored once
				short = append(short, i)
			}
			files = append(files, builder.File{Path: name, Mode: mode, Content: content})
		default:
			logrus.Warnf("Skipping %s: unsupported file mode %o", name, fi.Mode())
		}
	}

	for _, i := range short {
		src, ok := full[links[i]]
		if !ok {
			return nil, models.Errorf(models.ErrTruncatedStream, "%s: payload ends before file content", files[i].Path)
		}
		files[i].Content = files[src].Content
	}

	sortFiles(files)
	return files, nil
}

func rpmMetadata(rpm *rpmutils.Rpm) models.Metadata {
	meta := models.Metadata{
		Name:         stringTag(rpm, rpmutils.NAME),
		Version:      rpmVersion(stringTag(rpm, rpmutils.VERSION), stringTag(rpm, rpmutils.RELEASE)),
		Architecture: rpmArch(stringTag(rpm, rpmutils.ARCH)),
		Description:  stringTag(rpm, rpmutils.SUMMARY),
		Maintainer:   stringTag(rpm, rpmutils.PACKAGER),
		Homepage:     stringTag(rpm, rpmutils.URL),
		License:      stringTag(rpm, rpmutils.LICENSE),
	}

	seen := make(map[string]bool)
	for _, req := range stringSliceTag(rpm, rpmutils.REQUIRENAME) {
		if seen[req] || strings.HasPrefix(req, "/") || strings.HasPrefix(req, "rpmlib(") || !pkginfo.ValidName(req) {
			continue
		}
		seen[req] = true
		meta.Depends = append(meta.Depends, models.Dependency{Name: req})
	}

	if t := intTag(rpm, rpmutils.BUILDTIME); t > 0 {
		meta.Extra = map[string][]string{"builddate": {strconv.FormatInt(t, 10)}}
	}
	return meta
}

// rpmVersion maps an RPM version and release to an apk version. Numeric
// releases become the "-r" revision; others are dropped.
func rpmVersion(ver, release string) string {
	if release == "" {
		return ver
	}
	if _, err := strconv.ParseUint(release, 10, 64); err == nil {
		candidate := ver + "-r" + release
		if version.Valid(candidate) {
			return candidate
		}
	}
	return ver
}

func rpmArch(arch string) string {
	switch arch {
	case "i386", "i486", "i586", "i686":
		return "x86"
	default:
		return models.NormalizeArch(arch)
	}
}

// stringTag safely gets a string tag from RPM
func stringTag(rpm *rpmutils.Rpm, tag int) string {
	val, err := rpm.Header.Get(tag)
	if err != nil {
		return ""
	}

	switch v := val.(type) {
	case string:
		return strings.TrimSpace(v)
	case []byte:
		return strings.TrimSpace(string(v))
	case []string:
		if len(v) > 0 {
			return strings.TrimSpace(v[0])
		}
	}
	return ""
}

func intTag(rpm *rpmutils.Rpm, tag int) int64 {
	val, err := rpm.Header.Get(tag)
	if err != nil {
		return 0
	}
	switch v := val.(type) {
	case int:
		return int64(v)
	case int64:
		return v
	case []int:
		if len(v) > 0 {
			return int64(v[0])
		}
	case []int32:
		if len(v) > 0 {
			return int64(v[0])
		}
	case []uint32:
		if len(v) > 0 {
			return int64(v[0])
		}
	}
	return 0
}

func stringSliceTag(rpm *rpmutils.Rpm, tag int) []string {
	val, err := rpm.Header.Get(tag)
	if err != nil {
		return nil
	}
	slice, ok := val.([]string)
	if !ok {
		return nil
	}
	var result []string
	for _, s := range slice {
		if s = strings.TrimSpace(s); s != "" {
			result = append(result, s)
		}
	}
	return result
}
