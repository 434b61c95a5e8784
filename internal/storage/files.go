package storage

import (
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/Anosmish/pdf2word/internal/domain"
)

const (
	sourceExt  = ".pdf"
	derivedExt = ".docx"
)

// FileManager owns the on-disk layout under the storage root: the uploaded
// source lives at {root}/{id}_{name}.pdf and the converted output at
// {root}/{id}_{name}.docx. All filesystem access goes through afero so tests
// can run against an in-memory fs.
type FileManager struct {
	fs             afero.Fs
	root           string
	maxUploadBytes int64
}

func NewFileManager(fs afero.Fs, root string, maxUploadBytes int64) (*FileManager, error) {
	if err := fs.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir %s: %w", root, err)
	}

	return &FileManager{fs: fs, root: root, maxUploadBytes: maxUploadBytes}, nil
}

func (fm *FileManager) Fs() afero.Fs { return fm.fs }

// NewID returns a fresh opaque artifact id.
func (fm *FileManager) NewID() string {
	return uuid.NewString()
}

// ValidateID rejects anything that does not parse as a uuid, which also
// rules out path traversal through the id segment.
func (fm *FileManager) ValidateID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%w: %s", domain.ErrInvalidID, id)
	}
	return nil
}

// ValidateDownloadName checks that a client-supplied filename belongs to the
// given artifact id and cannot escape the storage root.
func (fm *FileManager) ValidateDownloadName(id, filename string) error {
	if strings.Contains(filename, "..") || strings.ContainsAny(filename, `/\`) {
		return fmt.Errorf("%w: traversal in filename", domain.ErrInvalidID)
	}
	if !strings.HasSuffix(filename, derivedExt) {
		return fmt.Errorf("%w: unexpected extension", domain.ErrInvalidID)
	}
	if !strings.HasPrefix(filename, id+"_") {
		return fmt.Errorf("%w: filename does not match id", domain.ErrInvalidID)
	}
	return nil
}

// SourcePath resolves the upload location for an id and original filename.
func (fm *FileManager) SourcePath(id, original string) string {
	return filepath.Join(fm.root, fmt.Sprintf("%s_%s%s", id, baseName(original), sourceExt))
}

// DerivedPath resolves the converted-output location.
func (fm *FileManager) DerivedPath(id, original string) string {
	return filepath.Join(fm.root, fmt.Sprintf("%s_%s%s", id, baseName(original), derivedExt))
}

// SaveUpload streams a multipart upload to path, enforcing the byte cap,
// and reports the sniffed content type alongside the byte count. Content
// that does not look like a PDF is still saved: the conversion engine is
// the authority on whether the bytes are convertible, so callers only log
// the sniff result. On any failure the partial file is removed before
// returning.
func (fm *FileManager) SaveUpload(file multipart.File, path string) (int64, string, error) {
	sample := make([]byte, 512)
	n, err := io.ReadFull(file, sample)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return 0, "", fmt.Errorf("read upload sample: %w", err)
	}
	sample = sample[:n]

	detected := mimetype.Detect(sample).String()

	out, err := fm.fs.Create(path)
	if err != nil {
		return 0, "", fmt.Errorf("create upload file: %w", err)
	}

	cleanup := func(err error) (int64, string, error) {
		out.Close()
		_ = fm.fs.Remove(path)
		return 0, "", err
	}

	total := int64(0)
	if len(sample) > 0 {
		if _, err := out.Write(sample); err != nil {
			return cleanup(fmt.Errorf("write upload sample: %w", err))
		}
		total += int64(len(sample))
	}

	buf := make([]byte, 32*1024)
	for {
		if fm.maxUploadBytes > 0 && total > fm.maxUploadBytes {
			return cleanup(domain.ErrUploadTooLarge)
		}

		n, err := file.Read(buf)
		if n > 0 {
			total += int64(n)
			if fm.maxUploadBytes > 0 && total > fm.maxUploadBytes {
				return cleanup(domain.ErrUploadTooLarge)
			}
			if _, werr := out.Write(buf[:n]); werr != nil {
				return cleanup(fmt.Errorf("write upload file: %w", werr))
			}
		}

		if err == io.EOF {
			break
		}
		if err != nil {
			return cleanup(fmt.Errorf("read upload content: %w", err))
		}
	}

	if err := out.Close(); err != nil {
		_ = fm.fs.Remove(path)
		return 0, "", fmt.Errorf("close upload file: %w", err)
	}

	return total, detected, nil
}

// FileSize stats path; returns an error if the file is absent.
func (fm *FileManager) FileSize(path string) (int64, error) {
	info, err := fm.fs.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", path, err)
	}
	return info.Size(), nil
}

// Exists reports whether path is present.
func (fm *FileManager) Exists(path string) bool {
	ok, err := afero.Exists(fm.fs, path)
	return err == nil && ok
}

// Remove unlinks path, treating an already-absent file as success. A
// registry entry can outlive its files when two cleanup triggers race, so
// absence is a normal outcome here.
func (fm *FileManager) Remove(path string) error {
	if path == "" {
		return nil
	}

	err := fm.fs.Remove(path)
	if err == nil || os.IsNotExist(err) {
		return nil
	}
	return fmt.Errorf("remove %s: %w", path, err)
}

// SanitizeName returns a filesystem-safe rendering of an upload filename,
// keeping its extension.
func SanitizeName(original string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(original)))
	return baseName(original) + ext
}

// baseName strips the extension from an upload filename and sanitizes the
// remainder for use in an on-disk name.
func baseName(original string) string {
	base := strings.TrimSuffix(filepath.Base(original), filepath.Ext(original))
	base = sanitizeFilename(base)
	if base == "" {
		base = "document"
	}
	return base
}

func sanitizeFilename(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-' || r == '_' || r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return strings.Trim(b.String(), "._")
}
