// Package staging manages the per-patient working directories used while a
// transfer is assembled: fetched images, the zip bundle attached to the
// submission, and cleanup once the patient is finished.
package staging

import (
	"archive/zip"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var (
	ErrNoFiles        = errors.New("staging: no files to bundle")
	ErrEmptyFile      = errors.New("staging: empty file")
	ErrUnsafeFilename = errors.New("staging: unsafe filename")
)

// MaxBundleSize caps a zip bundle at 500 MB. The portal rejects anything
// larger, so failing locally gives a clearer error.
const MaxBundleSize = 500 * 1024 * 1024

// File is one named payload destined for a bundle.
type File struct {
	Name string
	Data []byte
}

// Stage is rooted at a working directory, with one subdirectory per patient.
type Stage struct {
	root string
}

func New(root string) *Stage {
	return &Stage{root: root}
}

// Dir returns the absolute path of a per-patient subdirectory, creating it
// if needed. key is typically the patient's national ID.
func (s *Stage) Dir(key, sub string) (string, error) {
	if err := checkName(key); err != nil {
		return "", err
	}
	if sub != "" {
		if err := checkName(sub); err != nil {
			return "", err
		}
	}
	dir := filepath.Join(s.root, key, sub)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create staging dir %s: %w", dir, err)
	}
	return dir, nil
}

// WriteFile stages a single file under the patient's directory and returns
// its absolute path.
func (s *Stage) WriteFile(key, sub, name string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("%w: %s", ErrEmptyFile, name)
	}
	if err := checkName(name); err != nil {
		return "", err
	}
	dir, err := s.Dir(key, sub)
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write staged file %s: %w", path, err)
	}
	return path, nil
}

// Bundle writes the given files into a zip archive under the patient's
// directory and returns its absolute path. Files are stored in the order
// given; duplicate names get a numeric suffix.
func (s *Stage) Bundle(key, bundleName string, files []File) (string, error) {
	if len(files) == 0 {
		return "", ErrNoFiles
	}
	if err := checkName(bundleName); err != nil {
		return "", err
	}
	dir, err := s.Dir(key, "")
	if err != nil {
		return "", err
	}

	path := filepath.Join(dir, bundleName)
	out, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create bundle %s: %w", path, err)
	}
	defer out.Close()

	zw := zip.NewWriter(out)
	seen := make(map[string]int)
	var total int
	for _, f := range files {
		if len(f.Data) == 0 {
			return "", fmt.Errorf("%w: %s", ErrEmptyFile, f.Name)
		}
		total += len(f.Data)
		if total > MaxBundleSize {
			return "", fmt.Errorf("bundle %s exceeds %d bytes", bundleName, MaxBundleSize)
		}

		name := f.Name
		if n := seen[name]; n > 0 {
			ext := filepath.Ext(name)
			name = fmt.Sprintf("%s (%d)%s", strings.TrimSuffix(name, ext), n, ext)
		}
		seen[f.Name]++

		w, err := zw.Create(name)
		if err != nil {
			return "", fmt.Errorf("add %s to bundle: %w", name, err)
		}
		if _, err := w.Write(f.Data); err != nil {
			return "", fmt.Errorf("write %s to bundle: %w", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("finalize bundle %s: %w", path, err)
	}
	return path, nil
}

// Clean removes the patient's staging directory and everything under it.
func (s *Stage) Clean(key string) error {
	if err := checkName(key); err != nil {
		return err
	}
	return os.RemoveAll(filepath.Join(s.root, key))
}

// checkName rejects names that would escape the staging root.
func checkName(name string) error {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: %q", ErrUnsafeFilename, name)
	}
	return nil
}
