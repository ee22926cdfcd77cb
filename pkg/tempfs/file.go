package tempfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"scribble/pkg/fixture"
	"scribble/pkg/logging"
	"scribble/pkg/resource"
)

// ErrContentSourceNotSet is returned on setup of a TemporaryFile that
// requires content but has no source configured.
var ErrContentSourceNotSet = errors.New("content source is not set")

// ErrNoFolder is returned on setup of a fixture that was declared without
// the temporary folder it lives in.
var ErrNoFolder = errors.New("no temporary folder")

// TemporaryFile is a file inside a TemporaryFolder, optionally filled from
// a resource on setup and deleted on teardown.
type TemporaryFile struct {
	fixture.Base

	folder       *TemporaryFolder
	filename     string
	resolver     resource.Resolver
	source       string
	forceContent bool
	path         string
}

// NewTemporaryFile declares a file named filename inside folder. An empty
// filename is replaced by a random name.
func NewTemporaryFile(folder *TemporaryFolder, filename string) *TemporaryFile {
	if filename == "" {
		filename = uuid.NewString() + ".tmp"
	}
	f := &TemporaryFile{folder: folder, filename: filename}
	f.Init("TemporaryFile", folder)
	f.Declare("content", fixture.Optional)
	f.Declare("forceContent", fixture.Optional)
	return f
}

// SetContent fills the file from source resolved through r.
func (f *TemporaryFile) SetContent(r resource.Resolver, source string) error {
	if err := f.Configure("content"); err != nil {
		return err
	}
	f.resolver = r
	f.source = source
	return nil
}

// SetContentURL fills the file from an http(s) or file URL.
func (f *TemporaryFile) SetContentURL(u string) error {
	return f.SetContent(resource.URL(), u)
}

// SetForceContent makes a content source mandatory: setup fails with
// ErrContentSourceNotSet when none was configured.
func (f *TemporaryFile) SetForceContent(force bool) error {
	if err := f.Configure("forceContent"); err != nil {
		return err
	}
	f.forceContent = force
	return nil
}

func (f *TemporaryFile) Before(ctx context.Context) error {
	if f.forceContent && f.resolver == nil {
		return ErrContentSourceNotSet
	}

	if f.folder == nil {
		return ErrNoFolder
	}
	p, err := f.folder.resolve(f.filename)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return fmt.Errorf("creating parent of %s: %w", f.filename, err)
	}

	out, err := os.Create(p)
	if err != nil {
		return fmt.Errorf("creating %s: %w", f.filename, err)
	}
	f.path = p
	f.Defer("file "+p, func(ctx context.Context) error {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		return nil
	})

	if f.resolver != nil {
		if err := copyFrom(out, f.resolver, f.source); err != nil {
			out.Close()
			return err
		}
	}
	logging.Debug("TemporaryFile", "created %s", p)
	return out.Close()
}

func (f *TemporaryFile) After(ctx context.Context) error {
	return nil
}

func (f *TemporaryFile) BeforeClass(ctx context.Context) error {
	return f.Before(ctx)
}

func (f *TemporaryFile) AfterClass(ctx context.Context) error {
	return f.After(ctx)
}

// Path returns the location of the file while it is active.
func (f *TemporaryFile) Path() string {
	return f.path
}

// Filename returns the name given at construction.
func (f *TemporaryFile) Filename() string {
	return f.filename
}

// Folder returns the folder the file lives in.
func (f *TemporaryFile) Folder() *TemporaryFolder {
	return f.folder
}

// ReadContent returns the current content of the file.
func (f *TemporaryFile) ReadContent() ([]byte, error) {
	if err := f.RequireActive("ReadContent"); err != nil {
		return nil, err
	}
	return os.ReadFile(f.path)
}

func copyFrom(w io.Writer, r resource.Resolver, source string) error {
	in, err := r.Open(source)
	if err != nil {
		return fmt.Errorf("opening content %s: %w", source, err)
	}
	defer in.Close()
	if _, err := io.Copy(w, in); err != nil {
		return fmt.Errorf("copying content %s: %w", source, err)
	}
	return nil
}
