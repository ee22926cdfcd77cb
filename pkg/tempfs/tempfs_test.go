package tempfs

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scribble/pkg/fixture"
	"scribble/pkg/resource"
)

func TestTemporaryFolder_Lifecycle(t *testing.T) {
	parent := t.TempDir()
	folder := NewTemporaryFolder(parent)

	_, err := folder.NewFile("early.txt")
	assert.ErrorIs(t, err, fixture.ErrIllegalLifecycleState)

	var root string
	fixture.Run(t, folder, func(ctx context.Context) error {
		root = folder.Root()
		assert.DirExists(t, root)
		assert.Equal(t, parent, filepath.Dir(root))

		file, err := folder.NewFile("a.txt")
		require.NoError(t, err)
		assert.FileExists(t, file)

		_, err = folder.NewFile("a.txt")
		assert.Error(t, err, "existing files are not overwritten")

		dir, err := folder.NewFolder("x", "y")
		require.NoError(t, err)
		assert.DirExists(t, dir)
		assert.Equal(t, filepath.Join(root, "x", "y"), dir)

		_, err = folder.NewFile("../escape.txt")
		assert.Error(t, err)
		return nil
	})

	assert.NoDirExists(t, root)
	assert.Equal(t, fixture.StateDestroyed, folder.State())
	assert.ErrorIs(t, folder.SetParent("/elsewhere"), fixture.ErrIllegalLifecycleState)
}

func TestTemporaryFolder_SuiteScope(t *testing.T) {
	folder := NewTemporaryFolder(t.TempDir())
	err := fixture.Apply(folder, func(ctx context.Context) error {
		assert.DirExists(t, folder.Root())
		return nil
	}, fixture.Description{Suite: true})(context.Background())

	require.NoError(t, err)
	assert.NoDirExists(t, folder.Root())
}

func TestTemporaryFile_Content(t *testing.T) {
	folder := NewTemporaryFolder(t.TempDir())
	file := NewTemporaryFile(folder, "conf/app.yaml")
	require.NoError(t, file.SetContent(resource.Map{"app.yaml": []byte("port: 8080")}, "app.yaml"))

	fixture.Run(t, file, func(ctx context.Context) error {
		data, err := file.ReadContent()
		require.NoError(t, err)
		assert.Equal(t, "port: 8080", string(data))
		assert.Equal(t, filepath.Join(folder.Root(), "conf", "app.yaml"), file.Path())
		return nil
	})

	assert.NoFileExists(t, file.Path())
}

func TestTemporaryFile_EmptyWithoutSource(t *testing.T) {
	folder := NewTemporaryFolder(t.TempDir())
	file := NewTemporaryFile(folder, "")
	assert.NotEmpty(t, file.Filename())

	fixture.Run(t, file, func(ctx context.Context) error {
		info, err := os.Stat(file.Path())
		require.NoError(t, err)
		assert.Zero(t, info.Size())
		return nil
	})
}

func TestTemporaryFile_ForceContentWithoutSource(t *testing.T) {
	folder := NewTemporaryFolder(t.TempDir())
	file := NewTemporaryFile(folder, "required.txt")
	require.NoError(t, file.SetForceContent(true))

	err := fixture.Apply(file, func(ctx context.Context) error {
		t.Fatal("body must not run")
		return nil
	}, fixture.Description{})(context.Background())

	assert.ErrorIs(t, err, fixture.ErrResourceAcquisition)
	assert.ErrorIs(t, err, ErrContentSourceNotSet)
	assert.Equal(t, fixture.StateDestroyed, folder.State())
	assert.NoDirExists(t, folder.Root())
}

func TestTemporaryFile_MissingSource(t *testing.T) {
	folder := NewTemporaryFolder(t.TempDir())
	file := NewTemporaryFile(folder, "data.bin")
	require.NoError(t, file.SetContent(resource.Map{}, "missing"))

	err := fixture.Apply(file, func(ctx context.Context) error { return nil }, fixture.Description{})(context.Background())

	assert.ErrorIs(t, err, resource.ErrNotFound)
	assert.NoFileExists(t, filepath.Join(folder.Root(), "data.bin"), "partially created file is released")
}

func TestNamesMustStayInsideFolder(t *testing.T) {
	parent := t.TempDir()
	folder := NewTemporaryFolder(parent)
	file := NewTemporaryFile(folder, "../outside.txt")
	archive := NewTemporaryZipFile(folder, "../outside.zip")

	for _, r := range []fixture.Resource{file, archive} {
		err := fixture.Apply(r, func(ctx context.Context) error { return nil }, fixture.Description{})(context.Background())
		assert.ErrorIs(t, err, fixture.ErrResourceAcquisition)
		assert.ErrorContains(t, err, "escapes the temporary folder")
	}
	assert.NoFileExists(t, filepath.Join(parent, "outside.txt"))
	assert.NoFileExists(t, filepath.Join(parent, "outside.zip"))
}

func TestMissingFolder(t *testing.T) {
	ctx := context.Background()
	for _, r := range []fixture.Resource{NewTemporaryFile(nil, "a.txt"), NewTemporaryZipFile(nil, "a.zip")} {
		var err error
		assert.NotPanics(t, func() { err = fixture.Setup(ctx, r, fixture.ScopeInstance) })
		assert.ErrorIs(t, err, ErrNoFolder)
		assert.Equal(t, fixture.StateDestroyed, fixture.StateOf(r))
	}
}

func TestTemporaryZipFile(t *testing.T) {
	folder := NewTemporaryFolder(t.TempDir())
	archive := NewTemporaryZipFile(folder, "site.zip")
	require.NoError(t, archive.AddEntryBytes("/index.html", []byte("<h1>hi</h1>")))
	require.NoError(t, archive.AddEntry("css/site.css", resource.Map{"site.css": []byte("body{}")}, "site.css"))
	assert.Equal(t, []string{"index.html", "css/site.css"}, archive.Entries())

	fixture.Run(t, archive, func(ctx context.Context) error {
		zr, err := zip.OpenReader(archive.Path())
		require.NoError(t, err)
		defer zr.Close()

		contents := map[string]string{}
		for _, f := range zr.File {
			rc, err := f.Open()
			require.NoError(t, err)
			data, err := io.ReadAll(rc)
			rc.Close()
			require.NoError(t, err)
			contents[f.Name] = string(data)
		}
		assert.Equal(t, map[string]string{
			"index.html":   "<h1>hi</h1>",
			"css/site.css": "body{}",
		}, contents)
		return nil
	})

	assert.NoFileExists(t, archive.Path())
}
