package config

// ScribbleConfig is the top-level configuration structure for scribble.
type ScribbleConfig struct {
	GlobalSettings GlobalSettings      `yaml:"globalSettings"`
	Fixtures       []FixtureDefinition `yaml:"fixtures"`
}

// GlobalSettings holds settings that apply to every fixture of the stack.
type GlobalSettings struct {
	LogLevel    string `yaml:"logLevel,omitempty"`    // debug, info, warn or error
	TempRoot    string `yaml:"tempRoot,omitempty"`    // Parent of temporary folders (default: system temp dir)
	MetricsAddr string `yaml:"metricsAddr,omitempty"` // Address of the /metrics listener, empty disables it
}

// FixtureType defines the kind of fixture a definition creates.
type FixtureType string

const (
	FixtureTypeTempFolder           FixtureType = "tempFolder"
	FixtureTypeTempFile             FixtureType = "tempFile"
	FixtureTypeTempZipFile          FixtureType = "tempZipFile"
	FixtureTypeInMemoryRepository   FixtureType = "inMemoryRepository"
	FixtureTypeStandaloneRepository FixtureType = "standaloneRepository"
	FixtureTypeDirectory            FixtureType = "directory"
	FixtureTypeHTTPServer           FixtureType = "httpServer"
	FixtureTypeMCPServer            FixtureType = "mcpServer"
	FixtureTypeFakeCluster          FixtureType = "fakeCluster"
)

// KnownFixtureTypes lists every supported fixture type.
var KnownFixtureTypes = []FixtureType{
	FixtureTypeTempFolder,
	FixtureTypeTempFile,
	FixtureTypeTempZipFile,
	FixtureTypeInMemoryRepository,
	FixtureTypeStandaloneRepository,
	FixtureTypeDirectory,
	FixtureTypeHTTPServer,
	FixtureTypeMCPServer,
	FixtureTypeFakeCluster,
}

// RequiresOuter reports whether fixtures of type t must name an outer
// temporary folder.
func (t FixtureType) RequiresOuter() bool {
	switch t {
	case FixtureTypeTempFile, FixtureTypeTempZipFile, FixtureTypeInMemoryRepository,
		FixtureTypeStandaloneRepository, FixtureTypeDirectory:
		return true
	}
	return false
}

// FixtureDefinition defines one fixture of the stack started by the CLI.
// Source paths are resolved relative to the file the definition was read
// from; http(s) and file URLs are accepted as well.
type FixtureDefinition struct {
	Name  string      `yaml:"name"`            // Unique name, e.g. "workspace", "site"
	Type  FixtureType `yaml:"type"`            // One of KnownFixtureTypes
	Outer string      `yaml:"outer,omitempty"` // Name of the enclosing fixture, defined earlier

	// Fields for Type = "tempFolder"
	Parent string `yaml:"parent,omitempty"` // Overrides GlobalSettings.TempRoot

	// Fields for Type = "tempFile"
	Filename string `yaml:"filename,omitempty"`
	Content  string `yaml:"content,omitempty"` // Source of the file content

	// Fields for Type = "tempZipFile"
	Entries map[string]string `yaml:"entries,omitempty"` // Entry name -> source

	// Fields for repository types
	NodeTypes      []string `yaml:"nodeTypes,omitempty"`
	InitialContent []string `yaml:"initialContent,omitempty"`

	// Fields for Type = "standaloneRepository" and "mcpServer"
	Config string `yaml:"config,omitempty"` // Repository or tool configuration source

	// Fields for Type = "directory"
	Partitions      []PartitionDefinition `yaml:"partitions,omitempty"`
	LDIF            []string              `yaml:"ldif,omitempty"`
	AccessControl   bool                  `yaml:"accessControl,omitempty"`
	AnonymousAccess *bool                 `yaml:"anonymousAccess,omitempty"` // Default: true

	// Fields for Type = "httpServer"
	Host  string            `yaml:"host,omitempty"`
	Port  int               `yaml:"port,omitempty"` // 0 picks a free port
	Serve []ServeDefinition `yaml:"serve,omitempty"`
	Stubs []StubDefinition  `yaml:"stubs,omitempty"`

	// Fields for Type = "fakeCluster"
	Namespaces []string `yaml:"namespaces,omitempty"`
	Manifests  []string `yaml:"manifests,omitempty"`

	// BaseDir is the directory of the file the definition was loaded from.
	BaseDir string `yaml:"-"`
}

// PartitionDefinition is a directory partition.
type PartitionDefinition struct {
	ID     string `yaml:"id"`
	Suffix string `yaml:"suffix"`
}

// ServeDefinition serves a temporary file or zip file fixture.
type ServeDefinition struct {
	Path string `yaml:"path"`
	From string `yaml:"from"` // Name of a tempFile or tempZipFile fixture
}

// StubDefinition is a canned HTTP response.
type StubDefinition struct {
	Method      string            `yaml:"method,omitempty"` // Default: GET
	Path        string            `yaml:"path"`
	Status      int               `yaml:"status,omitempty"` // Default: 200
	ContentType string            `yaml:"contentType,omitempty"`
	Headers     map[string]string `yaml:"headers,omitempty"`
	Body        string            `yaml:"body,omitempty"`
	Template    bool              `yaml:"template,omitempty"` // Render Body as a template per request
}
