// Package scribble is the builder surface of the fixture library. Entry
// points create the builder of an outermost fixture; AroundX methods of a
// builder build it and return the builder of a fixture nested inside it.
//
//	folder := scribble.NewTempFolder()
//	file := folder.AroundTempFile("data.json").WithContent(resource.FS(testdata), "data.json")
//	fixture.Run(t, file.MustBuild(), func(ctx context.Context) error { ... })
//
// Options applied after Build are recorded as usage errors and returned by
// every later Build.
package scribble

// NewTempFolder starts a temporary folder builder.
func NewTempFolder() *TempFolderBuilder {
	return newTempFolderBuilder()
}

// NewInMemoryContentRepository starts an in-memory repository builder
// inside a fresh temporary folder.
func NewInMemoryContentRepository() *InMemoryContentRepositoryBuilder {
	return NewTempFolder().AroundInMemoryContentRepository()
}

// NewStandaloneContentRepository starts a file backed repository builder
// inside a fresh temporary folder.
func NewStandaloneContentRepository() *StandaloneContentRepositoryBuilder {
	return NewTempFolder().AroundStandaloneContentRepository()
}

// NewMockContentRepository starts a mock repository builder.
func NewMockContentRepository() *MockContentRepositoryBuilder {
	return newMockContentRepositoryBuilder()
}

// NewLookupContentRepository starts a builder for a repository looked up in
// a registry.
func NewLookupContentRepository() *LookupContentRepositoryBuilder {
	return newLookupContentRepositoryBuilder()
}

// NewDirectory starts a directory builder inside a fresh temporary folder.
func NewDirectory() *DirectoryBuilder {
	return NewTempFolder().AroundDirectory()
}

// NewHTTPServer starts an HTTP server builder without outer resource.
func NewHTTPServer() *HTTPServerBuilder {
	return newHTTPServerBuilder(nil, nil)
}

// NewMCPServer starts a mock MCP server builder without outer resource.
func NewMCPServer() *MCPServerBuilder {
	return newMCPServerBuilder(nil, nil)
}

// NewFakeCluster starts a fake Kubernetes cluster builder without outer
// resource.
func NewFakeCluster() *FakeClusterBuilder {
	return newFakeClusterBuilder(nil, nil)
}
