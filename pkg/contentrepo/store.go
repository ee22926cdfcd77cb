package contentrepo

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"scribble/pkg/logging"
)

type nodeRecord struct {
	PrimaryType string            `yaml:"primaryType"`
	Properties  map[string]string `yaml:"properties,omitempty"`
}

func (r nodeRecord) clone() nodeRecord {
	props := make(map[string]string, len(r.Properties))
	for k, v := range r.Properties {
		props[k] = v
	}
	return nodeRecord{PrimaryType: r.PrimaryType, Properties: props}
}

type tree map[string]nodeRecord

func (t tree) clone() tree {
	out := make(tree, len(t))
	for p, rec := range t {
		out[p] = rec.clone()
	}
	return out
}

func newTree() tree {
	return tree{"/": {PrimaryType: TypeRoot, Properties: map[string]string{}}}
}

// store is the repository implementation shared by the in-memory and the
// standalone fixtures. persist, when set, is called with the committed
// tree on every Save.
type store struct {
	mu          sync.RWMutex
	nodes       tree
	types       map[string]NodeType
	users       map[string]string
	descriptors map[string]string
	persist     func(tree) error
	closed      bool
	sessions    map[string]*session
}

func newStore(name, backend string, users map[string]string) *store {
	if len(users) == 0 {
		users = map[string]string{AdminCredentials.UserID: AdminCredentials.Password}
	}
	s := &store{
		nodes: newTree(),
		types: map[string]NodeType{},
		users: users,
		descriptors: map[string]string{
			DescriptorName:    name,
			DescriptorVendor:  "scribble",
			DescriptorBackend: backend,
		},
		sessions: map[string]*session{},
	}
	for _, builtin := range []string{TypeRoot, TypeUnstructured, TypeFolder, TypeFile} {
		s.types[builtin] = NodeType{Name: builtin}
	}
	return s
}

func (s *store) Login(ctx context.Context, creds Credentials) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrRepositoryClosed
	}
	if pw, ok := s.users[creds.UserID]; !ok || pw != creds.Password {
		return nil, fmt.Errorf("%w: user %q", ErrLoginFailed, creds.UserID)
	}
	sess := &session{
		id:     uuid.NewString(),
		store:  s,
		userID: creds.UserID,
		nodes:  s.nodes.clone(),
		live:   true,
	}
	s.sessions[sess.id] = sess
	logging.Debug("ContentRepository", "user %s logged in to %s (session %s)", creds.UserID, s.descriptors[DescriptorName], sess.id)
	return sess, nil
}

func (s *store) Descriptor(key string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.descriptors[key]
}

func (s *store) RegisterNodeTypes(types ...NodeType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, nt := range types {
		if nt.Name == "" {
			return fmt.Errorf("%w: node type without name", ErrConstraintViolation)
		}
		for _, super := range nt.Supertypes {
			if _, ok := s.types[super]; !ok {
				return fmt.Errorf("%w: supertype %s of %s", ErrNoSuchNodeType, super, nt.Name)
			}
		}
		s.types[nt.Name] = nt
	}
	return nil
}

// Shutdown closes every open session and rejects further logins.
func (s *store) Shutdown() error {
	s.mu.Lock()
	sessions := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.closed = true
	s.mu.Unlock()

	for _, sess := range sessions {
		sess.Logout()
	}
	return nil
}

// definitions returns the property definitions of typeName including the
// inherited ones.
func (s *store) definitions(typeName string, seen map[string]bool) []PropertyDefinition {
	if seen[typeName] {
		return nil
	}
	seen[typeName] = true
	nt, ok := s.types[typeName]
	if !ok {
		return nil
	}
	defs := append([]PropertyDefinition(nil), nt.Properties...)
	for _, super := range nt.Supertypes {
		defs = append(defs, s.definitions(super, seen)...)
	}
	return defs
}

func (s *store) commit(nodes tree) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrRepositoryClosed
	}

	paths := make([]string, 0, len(nodes))
	for p := range nodes {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		rec := nodes[p]
		for _, def := range s.definitions(rec.PrimaryType, map[string]bool{}) {
			if _, ok := rec.Properties[def.Name]; def.Required && !ok {
				return fmt.Errorf("%w: %s requires property %s", ErrConstraintViolation, p, def.Name)
			}
		}
	}

	committed := nodes.clone()
	if s.persist != nil {
		if err := s.persist(committed); err != nil {
			return fmt.Errorf("persisting repository: %w", err)
		}
	}
	s.nodes = committed
	return nil
}

func (s *store) snapshot() tree {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nodes.clone()
}

func (s *store) forget(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}

type session struct {
	mu     sync.Mutex
	id     string
	store  *store
	userID string
	nodes  tree
	live   bool
}

func (s *session) UserID() string { return s.userID }

func (s *session) IsLive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live
}

func (s *session) RootNode() (Node, error) {
	return s.GetNode("/")
}

func (s *session) GetNode(p string) (Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.live {
		return Node{}, ErrSessionClosed
	}
	p = cleanPath(p)
	rec, ok := s.nodes[p]
	if !ok {
		return Node{}, fmt.Errorf("%w: %s", ErrNodeNotFound, p)
	}
	return toNode(p, rec), nil
}

func (s *session) Children(p string) ([]Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.live {
		return nil, ErrSessionClosed
	}
	p = cleanPath(p)
	if _, ok := s.nodes[p]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, p)
	}
	var children []Node
	for child, rec := range s.nodes {
		if isChildOf(child, p) {
			children = append(children, toNode(child, rec))
		}
	}
	sort.Slice(children, func(i, j int) bool { return children[i].Path < children[j].Path })
	return children, nil
}

func (s *session) AddNode(parentPath, name, primaryType string) (Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.live {
		return Node{}, ErrSessionClosed
	}
	parentPath = cleanPath(parentPath)
	if _, ok := s.nodes[parentPath]; !ok {
		return Node{}, fmt.Errorf("%w: %s", ErrNodeNotFound, parentPath)
	}
	if primaryType == "" {
		primaryType = TypeUnstructured
	}
	s.store.mu.RLock()
	_, known := s.store.types[primaryType]
	defs := s.store.definitions(primaryType, map[string]bool{})
	s.store.mu.RUnlock()
	if !known {
		return Node{}, fmt.Errorf("%w: %s", ErrNoSuchNodeType, primaryType)
	}

	p := cleanPath(parentPath + "/" + name)
	if name == "" || p == parentPath || !isChildOf(p, parentPath) {
		return Node{}, fmt.Errorf("invalid node name %q", name)
	}
	if _, exists := s.nodes[p]; exists {
		return Node{}, fmt.Errorf("%w: %s", ErrItemExists, p)
	}
	rec := nodeRecord{PrimaryType: primaryType, Properties: map[string]string{}}
	for _, def := range defs {
		if def.Default != "" {
			rec.Properties[def.Name] = def.Default
		}
	}
	s.nodes[p] = rec
	return toNode(p, rec), nil
}

func (s *session) SetProperty(p, name, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.live {
		return ErrSessionClosed
	}
	p = cleanPath(p)
	rec, ok := s.nodes[p]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, p)
	}
	rec.Properties[name] = value
	return nil
}

func (s *session) Remove(p string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.live {
		return ErrSessionClosed
	}
	p = cleanPath(p)
	if p == "/" {
		return fmt.Errorf("%w: the root node cannot be removed", ErrConstraintViolation)
	}
	if _, ok := s.nodes[p]; !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, p)
	}
	for child := range s.nodes {
		if child == p || isDescendantOf(child, p) {
			delete(s.nodes, child)
		}
	}
	return nil
}

func (s *session) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.live {
		return ErrSessionClosed
	}
	return s.store.commit(s.nodes)
}

// Refresh discards transient changes unless keepChanges is set, in which
// case nodes saved by other sessions are merged below the local ones.
func (s *session) Refresh(keepChanges bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.live {
		return ErrSessionClosed
	}
	latest := s.store.snapshot()
	if keepChanges {
		for p, rec := range s.nodes {
			latest[p] = rec
		}
	}
	s.nodes = latest
	return nil
}

func (s *session) Logout() {
	s.mu.Lock()
	if !s.live {
		s.mu.Unlock()
		return
	}
	s.live = false
	s.nodes = nil
	s.mu.Unlock()
	s.store.forget(s.id)
	logging.Debug("ContentRepository", "session %s of %s logged out", s.id, s.userID)
}

func toNode(p string, rec nodeRecord) Node {
	return Node{Path: p, PrimaryType: rec.PrimaryType, Properties: rec.clone().Properties}
}
