package scribble

import (
	"scribble/pkg/fixture"
	"scribble/pkg/resource"
	"scribble/pkg/tempfs"
)

// TempFolderBuilder builds a TemporaryFolder.
type TempFolderBuilder struct {
	fixture.Builder[*tempfs.TemporaryFolder]
	parent string
}

func newTempFolderBuilder() *TempFolderBuilder {
	b := &TempFolderBuilder{}
	b.Builder = fixture.NewBuilder("TempFolderBuilder", func() (*tempfs.TemporaryFolder, error) {
		return tempfs.NewTemporaryFolder(b.parent), nil
	})
	return b
}

// WithParent creates the folder below dir instead of the system temp dir.
func (b *TempFolderBuilder) WithParent(dir string) *TempFolderBuilder {
	if b.Configure("parent") {
		b.parent = dir
	}
	return b
}

// AroundTempFile builds the folder and returns a builder for a file in it.
// An empty filename gets a generated name.
func (b *TempFolderBuilder) AroundTempFile(filename string) *TempFileBuilder {
	folder, err := b.Build()
	return newTempFileBuilder(folder, err, filename)
}

// AroundTempZipFile builds the folder and returns a builder for a zip
// archive in it.
func (b *TempFolderBuilder) AroundTempZipFile(filename string) *TempZipFileBuilder {
	folder, err := b.Build()
	return newTempZipFileBuilder(folder, err, filename)
}

// AroundInMemoryContentRepository builds the folder and returns a builder
// for an in-memory repository inside it.
func (b *TempFolderBuilder) AroundInMemoryContentRepository() *InMemoryContentRepositoryBuilder {
	folder, err := b.Build()
	return newInMemoryContentRepositoryBuilder(folder, err)
}

// AroundStandaloneContentRepository builds the folder and returns a builder
// for a file backed repository working in it.
func (b *TempFolderBuilder) AroundStandaloneContentRepository() *StandaloneContentRepositoryBuilder {
	folder, err := b.Build()
	return newStandaloneContentRepositoryBuilder(folder, err)
}

// AroundDirectory builds the folder and returns a directory builder.
func (b *TempFolderBuilder) AroundDirectory() *DirectoryBuilder {
	folder, err := b.Build()
	return newDirectoryBuilder(folder, err)
}

// AroundHTTPServer builds the folder and returns a builder for a server
// nested inside it.
func (b *TempFolderBuilder) AroundHTTPServer() *HTTPServerBuilder {
	folder, err := b.Build()
	return newHTTPServerBuilder(folder, err)
}

// TempFileBuilder builds a TemporaryFile.
type TempFileBuilder struct {
	fixture.Builder[*tempfs.TemporaryFile]

	resolver   resource.Resolver
	source     string
	contentURL string
	force      bool
}

func newTempFileBuilder(folder *tempfs.TemporaryFolder, outerErr error, filename string) *TempFileBuilder {
	b := &TempFileBuilder{}
	b.Builder = fixture.NewBuilder("TempFileBuilder", func() (*tempfs.TemporaryFile, error) {
		f := tempfs.NewTemporaryFile(folder, filename)
		if b.resolver != nil {
			if err := f.SetContent(b.resolver, b.source); err != nil {
				return nil, err
			}
		}
		if b.contentURL != "" {
			if err := f.SetContentURL(b.contentURL); err != nil {
				return nil, err
			}
		}
		if b.force {
			if err := f.SetForceContent(true); err != nil {
				return nil, err
			}
		}
		return f, nil
	})
	b.Fail(outerErr)
	return b
}

// WithContent fills the file from source resolved by r.
func (b *TempFileBuilder) WithContent(r resource.Resolver, source string) *TempFileBuilder {
	if b.Configure("content") {
		b.resolver = r
		b.source = source
		b.contentURL = ""
	}
	return b
}

// WithContentURL fills the file from a file or http(s) URL.
func (b *TempFileBuilder) WithContentURL(u string) *TempFileBuilder {
	if b.Configure("content") {
		b.contentURL = u
		b.resolver = nil
	}
	return b
}

// ForceContent makes setup fail when no content source is set.
func (b *TempFileBuilder) ForceContent() *TempFileBuilder {
	if b.Configure("forceContent") {
		b.force = true
	}
	return b
}

// TempZipFileBuilder builds a TemporaryZipFile.
type TempZipFileBuilder struct {
	fixture.Builder[*tempfs.TemporaryZipFile]
	entries []func(z *tempfs.TemporaryZipFile) error
}

func newTempZipFileBuilder(folder *tempfs.TemporaryFolder, outerErr error, filename string) *TempZipFileBuilder {
	b := &TempZipFileBuilder{}
	b.Builder = fixture.NewBuilder("TempZipFileBuilder", func() (*tempfs.TemporaryZipFile, error) {
		z := tempfs.NewTemporaryZipFile(folder, filename)
		for _, add := range b.entries {
			if err := add(z); err != nil {
				return nil, err
			}
		}
		return z, nil
	})
	b.Fail(outerErr)
	return b
}

// AddEntry adds an archive entry named name with the content of source.
func (b *TempZipFileBuilder) AddEntry(name string, r resource.Resolver, source string) *TempZipFileBuilder {
	if b.Configure("entry") {
		b.entries = append(b.entries, func(z *tempfs.TemporaryZipFile) error {
			return z.AddEntry(name, r, source)
		})
	}
	return b
}

// AddEntryBytes adds an archive entry with fixed content.
func (b *TempZipFileBuilder) AddEntryBytes(name string, data []byte) *TempZipFileBuilder {
	if b.Configure("entry") {
		b.entries = append(b.entries, func(z *tempfs.TemporaryZipFile) error {
			return z.AddEntryBytes(name, data)
		})
	}
	return b
}
