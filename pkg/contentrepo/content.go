package contentrepo

import (
	"context"
	"fmt"
	"path"
	"sort"

	"gopkg.in/yaml.v3"

	"scribble/pkg/resource"
)

// NodeTypeFile is the YAML layout of a node type definition file:
//
//	nodeTypes:
//	  - name: app:page
//	    supertypes: [nt:unstructured]
//	    properties:
//	      - name: title
//	        required: true
type NodeTypeFile struct {
	NodeTypes []NodeType `yaml:"nodeTypes"`
}

// ContentNode is one node of an initial content file.
type ContentNode struct {
	Path        string            `yaml:"path"`
	PrimaryType string            `yaml:"primaryType,omitempty"`
	Properties  map[string]string `yaml:"properties,omitempty"`
}

// ContentFile is the YAML layout of an initial content file. Parents are
// created as nt:unstructured when they are not listed.
type ContentFile struct {
	Nodes []ContentNode `yaml:"nodes"`
}

// LoadNodeTypes reads a node type definition file.
func LoadNodeTypes(r resource.Resolver, source string) ([]NodeType, error) {
	data, err := resource.ReadAll(r, source)
	if err != nil {
		return nil, err
	}
	var f NodeTypeFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing node types %s: %w", source, err)
	}
	return f.NodeTypes, nil
}

// LoadContent reads an initial content file.
func LoadContent(r resource.Resolver, source string) ([]ContentNode, error) {
	data, err := resource.ReadAll(r, source)
	if err != nil {
		return nil, err
	}
	var f ContentFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing content %s: %w", source, err)
	}
	return f.Nodes, nil
}

// Import adds nodes through sess and saves them. Nodes are created
// parents first.
func Import(ctx context.Context, sess Session, nodes []ContentNode) error {
	sorted := append([]ContentNode(nil), nodes...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return depth(cleanPath(sorted[i].Path)) < depth(cleanPath(sorted[j].Path))
	})

	for _, n := range sorted {
		p := cleanPath(n.Path)
		if p == "/" {
			for k, v := range n.Properties {
				if err := sess.SetProperty(p, k, v); err != nil {
					return err
				}
			}
			continue
		}
		if err := ensureParents(sess, path.Dir(p)); err != nil {
			return err
		}
		if _, err := sess.GetNode(p); err != nil {
			if _, err := sess.AddNode(path.Dir(p), path.Base(p), n.PrimaryType); err != nil {
				return fmt.Errorf("importing %s: %w", p, err)
			}
		}
		keys := make([]string, 0, len(n.Properties))
		for k := range n.Properties {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if err := sess.SetProperty(p, k, n.Properties[k]); err != nil {
				return fmt.Errorf("importing %s: %w", p, err)
			}
		}
	}
	return sess.Save()
}

func ensureParents(sess Session, p string) error {
	if p == "/" {
		return nil
	}
	if _, err := sess.GetNode(p); err == nil {
		return nil
	}
	if err := ensureParents(sess, path.Dir(p)); err != nil {
		return err
	}
	_, err := sess.AddNode(path.Dir(p), path.Base(p), TypeUnstructured)
	return err
}

func depth(p string) int {
	if p == "/" {
		return 0
	}
	n := 0
	for _, c := range p {
		if c == '/' {
			n++
		}
	}
	return n
}
