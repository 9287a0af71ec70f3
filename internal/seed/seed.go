// Package seed populates freshly formatted images from a YAML manifest.
//
// A manifest lists files in the order they are created:
//
//	files:
//	  - name: hello
//	    content: "hello world\n"
//	  - name: logo
//	    path: assets/logo.bin
//
// Paths are resolved against the manifest's directory.
package seed

import (
	"path"

	"github.com/goccy/go-yaml"
	"github.com/jmgilman/go/errors"
	"github.com/jmgilman/go/fs/core"

	extsimple "github.com/pilat/go-extsimple"
)

// Manifest is the root of a seed file.
type Manifest struct {
	Files []File `yaml:"files"`
}

// File is one file to create. Exactly one of Content and Path is set.
type File struct {
	Name    string `yaml:"name"`
	Content string `yaml:"content,omitempty"`
	Path    string `yaml:"path,omitempty"`
}

// Parse decodes and validates a manifest. Unknown keys are rejected.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.UnmarshalWithOptions(data, &m, yaml.DisallowUnknownField()); err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidInput, "failed to parse seed manifest")
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Load reads and parses the manifest at name.
func Load(fsys core.FS, name string) (*Manifest, error) {
	data, err := fsys.ReadFile(name)
	if err != nil {
		return nil, errors.WithContext(
			errors.Wrap(err, errors.CodeNotFound, "failed to read seed manifest"),
			"path", name)
	}
	return Parse(data)
}

// Validate checks that every entry names a source and names are unique.
func (m *Manifest) Validate() error {
	seen := make(map[string]bool, len(m.Files))
	for i, f := range m.Files {
		switch {
		case f.Name == "":
			return errors.Newf(errors.CodeInvalidInput, "files[%d]: name is required", i)
		case f.Content != "" && f.Path != "":
			return errors.Newf(errors.CodeInvalidInput, "files[%d]: content and path are mutually exclusive", i)
		case seen[f.Name]:
			return errors.WithContext(
				errors.Newf(errors.CodeInvalidInput, "files[%d]: duplicate name %q", i, f.Name),
				"name", f.Name)
		}
		seen[f.Name] = true
	}
	return nil
}

// Apply creates every file of the manifest in img. File paths are read from
// fsys relative to baseDir. The first failure stops the run; files created
// before it stay in the image.
func (m *Manifest) Apply(img *extsimple.Image, fsys core.FS, baseDir string) error {
	for _, f := range m.Files {
		content := []byte(f.Content)
		if f.Path != "" {
			p := f.Path
			if !path.IsAbs(p) {
				p = path.Join(baseDir, p)
			}
			data, err := fsys.ReadFile(p)
			if err != nil {
				return errors.WithContextMap(
					errors.Wrap(err, errors.CodeNotFound, "failed to read seed file"),
					map[string]interface{}{"name": f.Name, "path": p})
			}
			content = data
		}

		if err := img.CreateFile(f.Name, content); err != nil {
			return err
		}
	}
	return nil
}
