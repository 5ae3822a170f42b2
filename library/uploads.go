package library

import (
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/google/uuid"
)

// Upload kinds accepted by the catalog.
var (
	ImageExtensions = []string{".jpg", ".jpeg", ".png"}
	PDFExtension    = ".pdf"
)

// FileStore persists uploaded files and returns the URL they are served from.
type FileStore interface {
	Save(originalName string, r io.Reader) (string, error)
	Remove(url string) error
}

// UploadKind classifies an uploaded filename. It returns "image" or "pdf";
// allowPDF controls whether PDFs are accepted at all.
func UploadKind(originalName string, allowPDF bool) (string, error) {
	ext := strings.ToLower(filepath.Ext(originalName))
	switch {
	case slices.Contains(ImageExtensions, ext):
		return "image", nil
	case allowPDF && ext == PDFExtension:
		return "pdf", nil
	case allowPDF:
		return "", validationErr("only .jpg, .jpeg, .png or .pdf files are allowed")
	default:
		return "", validationErr("only .jpg, .jpeg, .png files are allowed")
	}
}

// DiskStore writes uploads under Dir and exposes them below URLPrefix.
type DiskStore struct {
	Dir       string
	URLPrefix string
}

// NewDiskStore ensures dir exists.
func NewDiskStore(dir, urlPrefix string) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &DiskStore{Dir: dir, URLPrefix: urlPrefix}, nil
}

// Save stores r under a fresh name that keeps the original extension.
func (s *DiskStore) Save(originalName string, r io.Reader) (string, error) {
	name := uuid.NewString() + strings.ToLower(filepath.Ext(originalName))
	f, err := os.Create(filepath.Join(s.Dir, name))
	if err != nil {
		return "", fmt.Errorf("create upload: %w", err)
	}

	_, err = io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("write upload: %w", err)
	}
	return path.Join(s.URLPrefix, name), nil
}

// Remove deletes a file previously returned by Save. Unknown URLs are ignored.
func (s *DiskStore) Remove(url string) error {
	if !strings.HasPrefix(url, s.URLPrefix+"/") {
		return nil
	}
	name := path.Base(url)
	err := os.Remove(filepath.Join(s.Dir, name))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
