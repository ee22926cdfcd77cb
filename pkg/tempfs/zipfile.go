package tempfs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zip"

	"scribble/pkg/fixture"
	"scribble/pkg/resource"
)

type zipEntry struct {
	name     string
	resolver resource.Resolver
	source   string
	data     []byte
}

// TemporaryZipFile is a zip archive inside a TemporaryFolder, assembled
// from its entries on setup.
type TemporaryZipFile struct {
	fixture.Base

	folder   *TemporaryFolder
	filename string
	entries  []zipEntry
	path     string
}

// NewTemporaryZipFile declares an archive named filename inside folder.
func NewTemporaryZipFile(folder *TemporaryFolder, filename string) *TemporaryZipFile {
	if filename == "" {
		filename = uuid.NewString() + ".zip"
	}
	z := &TemporaryZipFile{folder: folder, filename: filename}
	z.Init("TemporaryZipFile", folder)
	z.Declare("entries", fixture.Optional)
	return z
}

// AddEntry adds an archive entry named name whose content is resolved from
// source on setup.
func (z *TemporaryZipFile) AddEntry(name string, r resource.Resolver, source string) error {
	if err := z.Configure("entries"); err != nil {
		return err
	}
	z.entries = append(z.entries, zipEntry{name: cleanEntry(name), resolver: r, source: source})
	return nil
}

// AddEntryBytes adds an archive entry with fixed content.
func (z *TemporaryZipFile) AddEntryBytes(name string, data []byte) error {
	if err := z.Configure("entries"); err != nil {
		return err
	}
	z.entries = append(z.entries, zipEntry{name: cleanEntry(name), data: data})
	return nil
}

func (z *TemporaryZipFile) Before(ctx context.Context) error {
	if z.folder == nil {
		return ErrNoFolder
	}
	p, err := z.folder.resolve(z.filename)
	if err != nil {
		return err
	}
	out, err := os.Create(p)
	if err != nil {
		return fmt.Errorf("creating %s: %w", z.filename, err)
	}
	z.path = p
	z.Defer("zip "+p, func(ctx context.Context) error {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		return nil
	})

	zw := zip.NewWriter(out)
	for _, e := range z.entries {
		w, err := zw.Create(e.name)
		if err != nil {
			out.Close()
			return fmt.Errorf("adding entry %s: %w", e.name, err)
		}
		if e.resolver != nil {
			err = copyFrom(w, e.resolver, e.source)
		} else {
			_, err = w.Write(e.data)
		}
		if err != nil {
			out.Close()
			return fmt.Errorf("writing entry %s: %w", e.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		out.Close()
		return fmt.Errorf("finishing %s: %w", z.filename, err)
	}
	return out.Close()
}

func (z *TemporaryZipFile) After(ctx context.Context) error {
	return nil
}

func (z *TemporaryZipFile) BeforeClass(ctx context.Context) error {
	return z.Before(ctx)
}

func (z *TemporaryZipFile) AfterClass(ctx context.Context) error {
	return z.After(ctx)
}

// Path returns the location of the archive while it is active.
func (z *TemporaryZipFile) Path() string {
	return z.path
}

// Folder returns the folder the archive lives in.
func (z *TemporaryZipFile) Folder() *TemporaryFolder {
	return z.folder
}

// Entries returns the entry names in the order they were added.
func (z *TemporaryZipFile) Entries() []string {
	names := make([]string, 0, len(z.entries))
	for _, e := range z.entries {
		names = append(names, e.name)
	}
	return names
}

func cleanEntry(name string) string {
	return strings.TrimPrefix(filepath.ToSlash(name), "/")
}
