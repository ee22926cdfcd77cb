package tempfs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"scribble/pkg/fixture"
	"scribble/pkg/logging"
)

// TemporaryFolder is the outermost file system fixture. It creates a
// uniquely named directory on setup and removes it with everything inside
// on teardown.
type TemporaryFolder struct {
	fixture.Base

	parent string
	root   string
}

// NewTemporaryFolder returns a folder fixture below parent. An empty
// parent means os.TempDir().
func NewTemporaryFolder(parent string) *TemporaryFolder {
	f := &TemporaryFolder{parent: parent}
	f.Init("TemporaryFolder", nil)
	f.Declare("parent", fixture.Optional)
	return f
}

// SetParent changes the directory the folder is created in.
func (f *TemporaryFolder) SetParent(dir string) error {
	if err := f.Configure("parent"); err != nil {
		return err
	}
	f.parent = dir
	return nil
}

func (f *TemporaryFolder) Before(ctx context.Context) error {
	parent := f.parent
	if parent == "" {
		parent = os.TempDir()
	}
	if err := os.MkdirAll(parent, 0755); err != nil {
		return fmt.Errorf("creating parent directory %s: %w", parent, err)
	}

	dir, err := os.MkdirTemp(parent, "scribble-"+uuid.NewString()[:8]+"-")
	if err != nil {
		return fmt.Errorf("creating temporary folder: %w", err)
	}
	f.root = dir
	f.Defer("folder "+dir, func(ctx context.Context) error {
		logging.Debug("TemporaryFolder", "removing %s", dir)
		return os.RemoveAll(dir)
	})
	logging.Debug("TemporaryFolder", "created %s", dir)
	return nil
}

func (f *TemporaryFolder) After(ctx context.Context) error {
	return nil
}

func (f *TemporaryFolder) BeforeClass(ctx context.Context) error {
	return f.Before(ctx)
}

func (f *TemporaryFolder) AfterClass(ctx context.Context) error {
	return f.After(ctx)
}

// Root returns the path of the folder. It is empty before setup.
func (f *TemporaryFolder) Root() string {
	return f.root
}

// NewFile creates an empty file in the folder and returns its path.
func (f *TemporaryFolder) NewFile(name string) (string, error) {
	if err := f.RequireActive("NewFile"); err != nil {
		return "", err
	}
	p, err := f.resolve(name)
	if err != nil {
		return "", err
	}
	file, err := os.OpenFile(p, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return "", fmt.Errorf("creating file %s: %w", name, err)
	}
	return p, file.Close()
}

// NewFolder creates the nested directories names[0]/names[1]/... in the
// folder and returns the innermost path.
func (f *TemporaryFolder) NewFolder(names ...string) (string, error) {
	if err := f.RequireActive("NewFolder"); err != nil {
		return "", err
	}
	p, err := f.resolve(filepath.Join(names...))
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(p, 0755); err != nil {
		return "", fmt.Errorf("creating folder %s: %w", p, err)
	}
	return p, nil
}

// resolve joins name to the root and rejects paths escaping it.
func (f *TemporaryFolder) resolve(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("empty path")
	}
	p := filepath.Join(f.root, name)
	rel, err := filepath.Rel(f.root, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %s escapes the temporary folder", name)
	}
	return p, nil
}
