package contentrepo

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockRepository is a Repository whose behaviour is set up with testify
// expectations.
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Login(ctx context.Context, creds Credentials) (Session, error) {
	args := m.Called(ctx, creds)
	if s := args.Get(0); s != nil {
		return s.(Session), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockRepository) Descriptor(key string) string {
	args := m.Called(key)
	return args.String(0)
}

func (m *MockRepository) RegisterNodeTypes(types ...NodeType) error {
	args := m.Called(types)
	return args.Error(0)
}

func (m *MockRepository) Shutdown() error {
	args := m.Called()
	return args.Error(0)
}

// MockSession is a Session whose behaviour is set up with testify
// expectations.
type MockSession struct {
	mock.Mock
}

func (m *MockSession) UserID() string {
	return m.Called().String(0)
}

func (m *MockSession) RootNode() (Node, error) {
	args := m.Called()
	return args.Get(0).(Node), args.Error(1)
}

func (m *MockSession) GetNode(p string) (Node, error) {
	args := m.Called(p)
	return args.Get(0).(Node), args.Error(1)
}

func (m *MockSession) Children(p string) ([]Node, error) {
	args := m.Called(p)
	nodes, _ := args.Get(0).([]Node)
	return nodes, args.Error(1)
}

func (m *MockSession) AddNode(parentPath, name, primaryType string) (Node, error) {
	args := m.Called(parentPath, name, primaryType)
	return args.Get(0).(Node), args.Error(1)
}

func (m *MockSession) SetProperty(p, name, value string) error {
	return m.Called(p, name, value).Error(0)
}

func (m *MockSession) Remove(p string) error {
	return m.Called(p).Error(0)
}

func (m *MockSession) Save() error {
	return m.Called().Error(0)
}

func (m *MockSession) Refresh(keepChanges bool) error {
	return m.Called(keepChanges).Error(0)
}

func (m *MockSession) Logout() {
	m.Called()
}

func (m *MockSession) IsLive() bool {
	return m.Called().Bool(0)
}

// MockContentRepository provides a MockRepository as a fixture. Set
// expectations on Mock before the fixture is set up.
type MockContentRepository struct {
	ContentRepository

	mock *MockRepository
}

// NewMockContentRepository declares a mock repository. It has no outer
// resource.
func NewMockContentRepository() *MockContentRepository {
	c := &MockContentRepository{mock: &MockRepository{}}
	c.initRepository("MockContentRepository", nil)
	return c
}

// Mock returns the mock to set expectations on.
func (c *MockContentRepository) Mock() *MockRepository {
	return c.mock
}

func (c *MockContentRepository) Before(ctx context.Context) error {
	return c.start(ctx, c.mock, false)
}

func (c *MockContentRepository) After(ctx context.Context) error {
	return nil
}

func (c *MockContentRepository) BeforeClass(ctx context.Context) error {
	return c.Before(ctx)
}

func (c *MockContentRepository) AfterClass(ctx context.Context) error {
	return c.After(ctx)
}
