package contentrepo

import (
	"context"
	"errors"
	"path"
	"strings"
)

var (
	ErrNodeNotFound        = errors.New("node not found")
	ErrItemExists          = errors.New("item exists")
	ErrLoginFailed         = errors.New("login failed")
	ErrSessionClosed       = errors.New("session is closed")
	ErrRepositoryClosed    = errors.New("repository is shut down")
	ErrNoSuchNodeType      = errors.New("no such node type")
	ErrConstraintViolation = errors.New("constraint violation")
)

// Built-in node types.
const (
	TypeRoot         = "rep:root"
	TypeUnstructured = "nt:unstructured"
	TypeFolder       = "nt:folder"
	TypeFile         = "nt:file"
)

// Descriptor keys every repository answers.
const (
	DescriptorName    = "repository.name"
	DescriptorVendor  = "repository.vendor"
	DescriptorBackend = "repository.backend"
)

// Credentials identify a repository user.
type Credentials struct {
	UserID   string `yaml:"userId"`
	Password string `yaml:"password"`
}

// AdminCredentials are accepted by every repository created by this
// package unless the configuration replaces them.
var AdminCredentials = Credentials{UserID: "admin", Password: "admin"}

// Node is a snapshot of a node at the time it was read.
type Node struct {
	Path        string
	PrimaryType string
	Properties  map[string]string
}

// Name returns the last path segment; the root node has an empty name.
func (n Node) Name() string {
	if n.Path == "/" {
		return ""
	}
	return path.Base(n.Path)
}

// PropertyDefinition declares a property of a node type.
type PropertyDefinition struct {
	Name     string `yaml:"name"`
	Required bool   `yaml:"required,omitempty"`
	Default  string `yaml:"default,omitempty"`
}

// NodeType declares the properties nodes of a type carry.
type NodeType struct {
	Name       string               `yaml:"name"`
	Supertypes []string             `yaml:"supertypes,omitempty"`
	Properties []PropertyDefinition `yaml:"properties,omitempty"`
}

// Repository is a hierarchical node store.
type Repository interface {
	Login(ctx context.Context, creds Credentials) (Session, error)
	Descriptor(key string) string
	RegisterNodeTypes(types ...NodeType) error
	Shutdown() error
}

// Session is a user's view of a repository. Changes are transient until
// Save.
type Session interface {
	UserID() string
	RootNode() (Node, error)
	GetNode(p string) (Node, error)
	Children(p string) ([]Node, error)
	AddNode(parentPath, name, primaryType string) (Node, error)
	SetProperty(p, name, value string) error
	Remove(p string) error
	Save() error
	Refresh(keepChanges bool) error
	Logout()
	IsLive() bool
}

func cleanPath(p string) string {
	if p == "" {
		return "/"
	}
	return path.Clean("/" + strings.TrimPrefix(p, "/"))
}

func isChildOf(child, parent string) bool {
	if parent == "/" {
		return child != "/" && !strings.Contains(strings.TrimPrefix(child, "/"), "/")
	}
	return strings.HasPrefix(child, parent+"/") && !strings.Contains(child[len(parent)+1:], "/")
}

func isDescendantOf(child, parent string) bool {
	if parent == "/" {
		return child != "/"
	}
	return strings.HasPrefix(child, parent+"/")
}
