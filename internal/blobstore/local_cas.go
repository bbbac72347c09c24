package blobstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"

	"meshvault/internal/fault"
	"meshvault/internal/models"
)

const (
	shortKeyBytes = 16
	shardWidth    = 2
)

// zippable lists extensions whose managed payload is wrapped in a single-entry zip.
var zippable = map[string]struct{}{
	"stl":   {},
	"obj":   {},
	"step":  {},
	"stp":   {},
	"gcode": {},
}

// Zippable reports whether ext is stored zip-wrapped.
func Zippable(ext string) bool {
	_, ok := zippable[normalizeExt(ext)]
	return ok
}

// ContentKey derives the dedup key from a SHA-256 digest.
// short truncates to 16 bytes for libraries created with truncated keys.
func ContentKey(digest []byte, short bool) string {
	if short && len(digest) > shortKeyBytes {
		digest = digest[:shortKeyBytes]
	}
	return hex.EncodeToString(digest)
}

// LocalCAS stores blob payloads in a local content-addressed tree.
type LocalCAS struct {
	root      string
	shortKeys bool
}

// CASOption configures a LocalCAS.
type CASOption func(*LocalCAS)

// WithShortKeys truncates content keys to 16 bytes.
func WithShortKeys(short bool) CASOption {
	return func(c *LocalCAS) { c.shortKeys = short }
}

// NewLocalCAS creates a local CAS rooted at root.
func NewLocalCAS(root string, opts ...CASOption) (*LocalCAS, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, fmt.Errorf("local cas root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Join(abs, "tmp"), 0o755); err != nil {
		return nil, fault.FileSystem("create blob dir", err)
	}
	c := &LocalCAS{root: abs}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Root returns the absolute storage root.
func (c *LocalCAS) Root() string {
	return c.root
}

// Staged is a payload written to the scratch area whose content key is known.
type Staged struct {
	Key  string
	Size int64
	path string
}

// Discard removes the scratch file. It is a no-op after Commit.
func (s *Staged) Discard() {
	if s == nil || s.path == "" {
		return
	}
	_ = os.Remove(s.path)
	s.path = ""
}

// Stage streams r to a scratch file while hashing it.
func (c *LocalCAS) Stage(ctx context.Context, r io.Reader) (*Staged, error) {
	if c == nil {
		return nil, fmt.Errorf("blob store is not configured")
	}
	if r == nil {
		return nil, fmt.Errorf("reader is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tmp, err := os.CreateTemp(filepath.Join(c.root, "tmp"), "stage-*")
	if err != nil {
		return nil, fault.FileSystem("stage", err)
	}
	tmpPath := tmp.Name()

	h := sha256.New()
	n, err := io.Copy(io.MultiWriter(tmp, h), r)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmpPath)
		return nil, fault.FileSystem("stage", err)
	}

	return &Staged{Key: ContentKey(h.Sum(nil), c.shortKeys), Size: n, path: tmpPath}, nil
}

// HashFile computes the content key of a caller-owned file without copying it.
func (c *LocalCAS) HashFile(ctx context.Context, path string) (string, int64, error) {
	if err := ctx.Err(); err != nil {
		return "", 0, err
	}
	f, err := os.Open(path)
	if err != nil {
		return "", 0, fault.FileSystem("hash", err)
	}
	defer f.Close()

	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, fault.FileSystem("hash", err)
	}
	return ContentKey(h.Sum(nil), c.shortKeys), n, nil
}

// Commit moves a staged payload into managed storage and returns the stored filetype.
// Zippable extensions are wrapped and get the .zip suffix.
func (c *LocalCAS) Commit(ctx context.Context, staged *Staged, ext string) (string, error) {
	if staged == nil || staged.path == "" {
		return "", fmt.Errorf("nothing staged")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	ext = normalizeExt(ext)
	if ext == "" {
		return "", fmt.Errorf("extension is required")
	}
	filetype := ext
	if Zippable(ext) {
		filetype = ext + models.ZipSuffix
	}

	dst, err := c.managedPath(staged.Key, filetype)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fault.FileSystem("commit", err)
	}
	if _, err := os.Stat(dst); err == nil {
		staged.Discard()
		return filetype, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", fault.FileSystem("commit", err)
	}

	src := staged.path
	if Zippable(ext) {
		wrapped, err := c.wrap(staged, ext)
		if err != nil {
			return "", err
		}
		staged.Discard()
		src = wrapped
	}

	if err := os.Rename(src, dst); err != nil {
		_ = os.Remove(src)
		if _, statErr := os.Stat(dst); statErr == nil {
			staged.Discard()
			return filetype, nil
		}
		return "", fault.FileSystem("commit", err)
	}
	staged.path = ""
	return filetype, nil
}

// wrap writes the staged bytes into a single-entry zip next to it.
func (c *LocalCAS) wrap(staged *Staged, ext string) (string, error) {
	in, err := os.Open(staged.path)
	if err != nil {
		return "", fault.FileSystem("wrap", err)
	}
	defer in.Close()

	out, err := os.CreateTemp(filepath.Join(c.root, "tmp"), "wrap-*")
	if err != nil {
		return "", fault.FileSystem("wrap", err)
	}
	outPath := out.Name()
	fail := func(err error) (string, error) {
		_ = out.Close()
		_ = os.Remove(outPath)
		return "", fault.Archive("wrap", err)
	}

	zw := zip.NewWriter(out)
	entry, err := zw.CreateHeader(&zip.FileHeader{
		Name:   staged.Key + "." + ext,
		Method: zip.Deflate,
	})
	if err != nil {
		return fail(err)
	}
	if _, err := io.Copy(entry, in); err != nil {
		return fail(err)
	}
	if err := zw.Close(); err != nil {
		return fail(err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(outPath)
		return "", fault.FileSystem("wrap", err)
	}
	return outPath, nil
}

// Path returns where blob bytes live on disk: the caller-owned path for
// external blobs, the managed (possibly wrapped) file otherwise.
func (c *LocalCAS) Path(blob models.Blob) (string, error) {
	if blob.External() {
		return blob.DiskPath, nil
	}
	return c.managedPath(blob.ContentKey, blob.Filetype)
}

// Open returns a reader over the original bytes of blob, unwrapping zip storage.
func (c *LocalCAS) Open(ctx context.Context, blob models.Blob) (io.ReadCloser, error) {
	if c == nil {
		return nil, fmt.Errorf("blob store is not configured")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := c.Path(blob)
	if err != nil {
		return nil, err
	}
	if blob.External() || !blob.Wrapped() {
		f, err := os.Open(path)
		if err != nil {
			return nil, fault.FileSystem("open blob", err)
		}
		return f, nil
	}

	archive, err := zip.OpenReader(path)
	if err != nil {
		return nil, fault.Archive("open blob", err)
	}
	if len(archive.File) != 1 {
		_ = archive.Close()
		return nil, fault.Archive("open blob", fmt.Errorf("expected 1 entry in %s, found %d", path, len(archive.File)))
	}
	rc, err := archive.File[0].Open()
	if err != nil {
		_ = archive.Close()
		return nil, fault.Archive("open blob", err)
	}
	return &wrappedReader{ReadCloser: rc, archive: archive}, nil
}

// Delete removes a managed payload. External blobs and missing files are ignored.
func (c *LocalCAS) Delete(ctx context.Context, blob models.Blob) error {
	if c == nil {
		return fmt.Errorf("blob store is not configured")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if blob.External() {
		return nil
	}
	path, err := c.managedPath(blob.ContentKey, blob.Filetype)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fault.FileSystem("delete blob", err)
	}
	return nil
}

type wrappedReader struct {
	io.ReadCloser
	archive *zip.ReadCloser
}

func (w *wrappedReader) Close() error {
	err := w.ReadCloser.Close()
	if archiveErr := w.archive.Close(); err == nil {
		err = archiveErr
	}
	return err
}

func (c *LocalCAS) managedPath(key, filetype string) (string, error) {
	key = strings.ToLower(strings.TrimSpace(key))
	if len(key) <= shardWidth || !isHex(key) {
		return "", fmt.Errorf("invalid content key %q", key)
	}
	filetype = strings.ToLower(strings.TrimSpace(filetype))
	if filetype == "" || strings.ContainsAny(filetype, `/\`) || strings.Contains(filetype, "..") {
		return "", fmt.Errorf("invalid filetype %q", filetype)
	}
	return filepath.Join(c.root, key[:shardWidth], key+"."+filetype), nil
}

func normalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
}

func isHex(value string) bool {
	for _, r := range value {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return false
		}
	}
	return true
}
