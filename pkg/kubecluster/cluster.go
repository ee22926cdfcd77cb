// Package kubecluster provides a fake Kubernetes API fixture backed by the
// client-go object tracker.
package kubecluster

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	utilyaml "k8s.io/apimachinery/pkg/util/yaml"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/kubernetes/fake"
	"k8s.io/client-go/kubernetes/scheme"

	"scribble/pkg/fixture"
	"scribble/pkg/logging"
	"scribble/pkg/resource"
)

type manifest struct {
	resolver resource.Resolver
	source   string
}

// FakeCluster seeds an in-memory clientset with namespaces, objects and
// YAML manifests on setup and drops it on teardown.
type FakeCluster struct {
	fixture.Base

	namespaces []string
	objects    []runtime.Object
	manifests  []manifest

	mu        sync.RWMutex
	clientset *fake.Clientset
}

// NewFakeCluster declares a cluster. outer may be nil.
func NewFakeCluster(outer fixture.Resource) *FakeCluster {
	c := &FakeCluster{}
	c.Init("FakeCluster", outer)
	c.Declare("namespaces", fixture.Optional)
	c.Declare("objects", fixture.Optional)
	c.Declare("manifests", fixture.Optional)
	return c
}

// AddNamespaces creates the namespaces on setup.
func (c *FakeCluster) AddNamespaces(names ...string) error {
	if err := c.Configure("namespaces"); err != nil {
		return err
	}
	c.namespaces = append(c.namespaces, names...)
	return nil
}

// AddObjects seeds typed objects on setup.
func (c *FakeCluster) AddObjects(objs ...runtime.Object) error {
	if err := c.Configure("objects"); err != nil {
		return err
	}
	c.objects = append(c.objects, objs...)
	return nil
}

// SetManifests seeds the objects of the given multi-document YAML files.
func (c *FakeCluster) SetManifests(r resource.Resolver, sources ...string) error {
	if err := c.Configure("manifests"); err != nil {
		return err
	}
	for _, source := range sources {
		c.manifests = append(c.manifests, manifest{resolver: r, source: source})
	}
	return nil
}

func (c *FakeCluster) Before(ctx context.Context) error {
	objs := append([]runtime.Object(nil), c.objects...)
	for _, m := range c.manifests {
		decoded, err := decodeManifest(m.resolver, m.source)
		if err != nil {
			return err
		}
		objs = append(objs, decoded...)
	}

	cs := fake.NewSimpleClientset(objs...)
	for _, name := range c.namespaces {
		ns := &corev1.Namespace{ObjectMeta: metav1.ObjectMeta{Name: name}}
		if _, err := cs.CoreV1().Namespaces().Create(ctx, ns, metav1.CreateOptions{}); err != nil && !apierrors.IsAlreadyExists(err) {
			return fmt.Errorf("creating namespace %s: %w", name, err)
		}
	}

	c.mu.Lock()
	c.clientset = cs
	c.mu.Unlock()
	c.Defer("clientset", func(context.Context) error {
		c.mu.Lock()
		c.clientset = nil
		c.mu.Unlock()
		return nil
	})

	logging.Info("FakeCluster", "seeded %d objects and %d namespaces", len(objs), len(c.namespaces))
	return nil
}

func (c *FakeCluster) After(ctx context.Context) error {
	return nil
}

func (c *FakeCluster) BeforeClass(ctx context.Context) error {
	return c.Before(ctx)
}

func (c *FakeCluster) AfterClass(ctx context.Context) error {
	return c.After(ctx)
}

// Clientset returns the fake client while the cluster is active.
func (c *FakeCluster) Clientset() (kubernetes.Interface, error) {
	if err := c.RequireActive("clientset"); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.clientset, nil
}

// decodeManifest reads source and decodes every non-empty document with
// the client-go scheme.
func decodeManifest(r resource.Resolver, source string) ([]runtime.Object, error) {
	data, err := resource.ReadAll(r, source)
	if err != nil {
		return nil, err
	}

	decoder := scheme.Codecs.UniversalDeserializer()
	reader := utilyaml.NewYAMLReader(bufio.NewReader(bytes.NewReader(data)))

	var objs []runtime.Object
	for doc := 1; ; doc++ {
		raw, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", source, err)
		}
		if len(bytes.TrimSpace(raw)) == 0 || isCommentOnly(raw) {
			continue
		}
		obj, gvk, err := decoder.Decode(raw, nil, nil)
		if err != nil {
			return nil, fmt.Errorf("decoding document %d of %s: %w", doc, source, err)
		}
		logging.Debug("FakeCluster", "decoded %s from %s", gvk.Kind, source)
		objs = append(objs, obj)
	}
	return objs, nil
}

func isCommentOnly(raw []byte) bool {
	for _, line := range bytes.Split(raw, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) > 0 && line[0] != '#' {
			return false
		}
	}
	return true
}
