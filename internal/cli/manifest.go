package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ralt/apkkit/internal/container"
	"github.com/ralt/apkkit/internal/models"
	"github.com/ralt/apkkit/internal/pkginfo"
)

// Manifest describes a package to build. Empty fields keep the value seeded
// by the source (RPM headers); everything else is taken from the manifest.
type Manifest struct {
	Name          string              `yaml:"name"`
	Version       string              `yaml:"version"`
	Arch          string              `yaml:"arch"`
	Maintainer    string              `yaml:"maintainer"`
	Description   string              `yaml:"description"`
	URL           string              `yaml:"url"`
	License       string              `yaml:"license"`
	InstalledSize int64               `yaml:"installed_size"`
	Depends       []string            `yaml:"depends"`
	Provides      []string            `yaml:"provides"`
	Triggers      []string            `yaml:"triggers"`
	Extra         map[string][]string `yaml:"extra"`

	// Scripts maps a control script name (".post-install") to a file,
	// relative to the manifest.
	Scripts map[string]string `yaml:"scripts"`

	dir string
}

// LoadManifest reads a YAML manifest. Unknown keys are rejected.
func LoadManifest(path string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &models.PackageError{Type: models.ErrFileOp, Err: err}
	}
	defer f.Close()

	var m Manifest
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil && !errors.Is(err, io.EOF) {
		return nil, &models.PackageError{
			Type: models.ErrInvalidConfig,
			Err:  fmt.Errorf("invalid manifest %s: %w", path, err),
		}
	}
	m.dir = filepath.Dir(path)
	return &m, nil
}

// Apply overlays the manifest on seed metadata
func (m *Manifest) Apply(seed models.Metadata) (models.Metadata, error) {
	meta := seed.Clone()

	for _, f := range []struct {
		dst *string
		src string
	}{
		{&meta.Name, m.Name},
		{&meta.Version, m.Version},
		{&meta.Architecture, m.Arch},
		{&meta.Maintainer, m.Maintainer},
		{&meta.Description, m.Description},
		{&meta.Homepage, m.URL},
		{&meta.License, m.License},
	} {
		if f.src != "" {
			*f.dst = f.src
		}
	}
	meta.Architecture = models.NormalizeArch(meta.Architecture)
	if m.InstalledSize != 0 {
		meta.InstalledSize = m.InstalledSize
	}

	if m.Depends != nil {
		meta.Depends = nil
		for _, atom := range m.Depends {
			d, err := pkginfo.ParseDependency(atom)
			if err != nil {
				return models.Metadata{}, err
			}
			meta.Depends = append(meta.Depends, d)
		}
	}
	if m.Provides != nil {
		meta.Provides = nil
		for _, s := range m.Provides {
			p, err := pkginfo.ParseProvide(s)
			if err != nil {
				return models.Metadata{}, err
			}
			meta.Provides = append(meta.Provides, p)
		}
	}
	if m.Triggers != nil {
		meta.Triggers = append([]string(nil), m.Triggers...)
	}

	for k, v := range m.Extra {
		if meta.Extra == nil {
			meta.Extra = make(map[string][]string)
		}
		meta.Extra[k] = append([]string(nil), v...)
	}
	return meta, nil
}

// LoadScripts reads the control scripts named in the manifest
func (m *Manifest) LoadScripts() ([]container.Entry, error) {
	var scripts []container.Entry
	for name, file := range m.Scripts {
		if !strings.HasPrefix(name, ".") {
			name = "." + name
		}
		if !filepath.IsAbs(file) {
			file = filepath.Join(m.dir, file)
		}
		content, err := os.ReadFile(file)
		if err != nil {
			return nil, &models.PackageError{Type: models.ErrFileOp, Err: fmt.Errorf("script %s: %w", name, err)}
		}
		scripts = append(scripts, container.Entry{Name: name, Mode: 0755, Content: content})
	}
	return scripts, nil
}
