// Package source classifies an import path and enumerates the files it contains.
package source

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"

	"meshvault/internal/fault"
)

// Kind is the classification of an import root.
type Kind int

const (
	KindFile Kind = iota
	KindDirectory
	KindZip
)

func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDirectory:
		return "directory"
	case KindZip:
		return "zip"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Options are the per-call import flags that affect enumeration.
type Options struct {
	Recursive         bool
	DeleteAfterImport bool
	ImportAsPath      bool
}

// File is one importable file or archive entry.
type File struct {
	// Path is the on-disk path, or the entry name for archive members.
	Path      string
	Name      string
	Extension string
	Size      int64

	entry *zip.File
}

// InArchive reports whether the file is a zip entry.
func (f File) InArchive() bool {
	return f.entry != nil
}

// Open returns a reader over the file bytes.
func (f File) Open() (io.ReadCloser, error) {
	if f.entry != nil {
		rc, err := f.entry.Open()
		if err != nil {
			return nil, fault.Archive("open entry "+f.Path, err)
		}
		return rc, nil
	}
	file, err := os.Open(f.Path)
	if err != nil {
		return nil, fault.FileSystem("open", err)
	}
	return file, nil
}

// Batch is a set of files that become one group. Name is empty for ungrouped imports.
type Batch struct {
	Name  string
	Dir   string
	Files []File
}

// Plan is the enumerated work for one import call.
type Plan struct {
	Kind    Kind
	Root    string
	Batches []Batch
	Total   int

	archive *zip.ReadCloser
}

// Close releases the archive handle held by zip plans.
func (p *Plan) Close() error {
	if p == nil || p.archive == nil {
		return nil
	}
	err := p.archive.Close()
	p.archive = nil
	return err
}

// CheckOptions rejects contradictory flag combinations for path without touching the filesystem.
func CheckOptions(path string, opts Options) error {
	if opts.ImportAsPath && opts.DeleteAfterImport {
		return fault.Conflict("cannot import as path and delete the source after import")
	}
	if opts.ImportAsPath && Extension(path) == "zip" {
		return fault.Conflict("cannot import a zip archive as path: %s", path)
	}
	return nil
}

// Classify validates opts, classifies path and enumerates every importable
// file, so Total is known before any file is processed.
func Classify(path string, opts Options, policy ExtensionPolicy) (*Plan, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fault.FileSystem("classify", fmt.Errorf("path is required"))
	}
	if err := CheckOptions(path, opts); err != nil {
		return nil, err
	}

	root, err := filepath.Abs(path)
	if err != nil {
		return nil, fault.FileSystem("classify", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fault.FileSystem("classify", err)
	}

	var plan *Plan
	switch {
	case info.IsDir():
		plan, err = classifyDirectory(root, opts.Recursive, policy)
	case Extension(root) == "zip":
		plan, err = classifyZip(root, policy)
	default:
		plan, err = classifyFile(root, info, policy)
	}
	if err != nil {
		return nil, err
	}
	for _, batch := range plan.Batches {
		plan.Total += len(batch.Files)
	}
	return plan, nil
}

func classifyFile(path string, info os.FileInfo, policy ExtensionPolicy) (*Plan, error) {
	ext := Extension(path)
	if !policy.Allowed(ext) {
		return nil, fault.Unsupported(path, ext)
	}
	file := File{Path: path, Name: ModelName(path), Extension: ext, Size: info.Size()}
	return &Plan{
		Kind:    KindFile,
		Root:    path,
		Batches: []Batch{{Dir: filepath.Dir(path), Files: []File{file}}},
	}, nil
}

func classifyDirectory(root string, recursive bool, policy ExtensionPolicy) (*Plan, error) {
	plan := &Plan{Kind: KindDirectory, Root: root}
	if !recursive {
		files, _, err := listDirectory(root, policy)
		if err != nil {
			return nil, err
		}
		if len(files) > 0 {
			plan.Batches = append(plan.Batches, Batch{Name: Prettify(filepath.Base(root)), Dir: root, Files: files})
		}
		return plan, nil
	}
	if err := walkDepthFirst(root, policy, &plan.Batches); err != nil {
		return nil, err
	}
	return plan, nil
}

// walkDepthFirst appends every subdirectory's batches before dir's own files.
func walkDepthFirst(dir string, policy ExtensionPolicy, batches *[]Batch) error {
	files, subdirs, err := listDirectory(dir, policy)
	if err != nil {
		return err
	}
	for _, sub := range subdirs {
		if err := walkDepthFirst(sub, policy, batches); err != nil {
			return err
		}
	}
	if len(files) > 0 {
		*batches = append(*batches, Batch{Name: Prettify(filepath.Base(dir)), Dir: dir, Files: files})
	}
	return nil
}

// listDirectory returns dir's importable regular files and its subdirectories, both in name order.
func listDirectory(dir string, policy ExtensionPolicy) ([]File, []string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, fault.FileSystem("read dir", err)
	}
	files := []File{}
	subdirs := []string{}
	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())
		if entry.IsDir() {
			subdirs = append(subdirs, path)
			continue
		}
		if !entry.Type().IsRegular() {
			continue
		}
		ext := Extension(entry.Name())
		if !policy.Allowed(ext) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return nil, nil, fault.FileSystem("stat", err)
		}
		files = append(files, File{Path: path, Name: ModelName(path), Extension: ext, Size: info.Size()})
	}
	return files, subdirs, nil
}

func classifyZip(path string, policy ExtensionPolicy) (*Plan, error) {
	archive, err := zip.OpenReader(path)
	if err != nil {
		return nil, fault.Archive("open archive", err)
	}

	files := []File{}
	for _, entry := range archive.File {
		if entry.FileInfo().IsDir() || strings.HasSuffix(entry.Name, "/") {
			_ = archive.Close()
			return nil, fault.Archive("read archive", fmt.Errorf("unexpected directory entry %q in %s", entry.Name, path))
		}
		ext := Extension(entry.Name)
		if !policy.Allowed(ext) {
			continue
		}
		files = append(files, File{
			Path:      entry.Name,
			Name:      ModelName(entry.Name),
			Extension: ext,
			Size:      int64(entry.UncompressedSize64),
			entry:     entry,
		})
	}

	plan := &Plan{Kind: KindZip, Root: path, archive: archive}
	if len(files) > 0 {
		plan.Batches = []Batch{{Name: Prettify(ModelName(path)), Dir: filepath.Dir(path), Files: files}}
	}
	return plan, nil
}
