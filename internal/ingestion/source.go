package ingestion

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/rpattn/medallion/internal/domain"

	"github.com/spf13/afero"
)

// SourceReader loads the source file of an entity.
type SourceReader interface {
	Read(entity domain.Entity) (Source, error)
}

// Source is one located source file.
type Source struct {
	Path    string
	Payload []byte
}

// DirSource resolves entity source files inside one directory.
type DirSource struct {
	fs  afero.Fs
	dir string
}

// NewDirSource reads sources from dir on the given filesystem. A nil fs means
// the operating system filesystem.
func NewDirSource(fsys afero.Fs, dir string) *DirSource {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	return &DirSource{fs: fsys, dir: dir}
}

// Path returns where the entity's file is expected.
func (d *DirSource) Path(entity domain.Entity) string {
	if filepath.IsAbs(entity.SourceFile) {
		return entity.SourceFile
	}
	return filepath.Join(d.dir, entity.SourceFile)
}

// Read returns the file content, or domain.ErrSourceNotFound when it is absent.
func (d *DirSource) Read(entity domain.Entity) (Source, error) {
	path := d.Path(entity)

	info, err := d.fs.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Source{Path: path}, fmt.Errorf("%w: %s", domain.ErrSourceNotFound, path)
		}
		return Source{Path: path}, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if info.IsDir() {
		return Source{Path: path}, fmt.Errorf("%w: %s is a directory", domain.ErrSourceNotFound, path)
	}

	payload, err := afero.ReadFile(d.fs, path)
	if err != nil {
		return Source{Path: path}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return Source{Path: path, Payload: payload}, nil
}
