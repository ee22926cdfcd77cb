package contentrepo

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"scribble/pkg/fixture"
	"scribble/pkg/resource"
	"scribble/pkg/tempfs"
)

var testdata = resource.Map{
	"nodetypes.yaml": []byte(`
nodeTypes:
  - name: app:page
    supertypes: [nt:unstructured]
    properties:
      - name: title
        required: true
      - name: template
        default: basic
`),
	"content.yaml": []byte(`
nodes:
  - path: /content/site/home
    primaryType: app:page
    properties:
      title: Home
  - path: /content
    properties:
      owner: admin
`),
	"standalone.yaml": []byte(`
name: test-repo
users:
  admin: admin
  alice: secret
persistenceFile: nodes.yaml
`),
}

func TestSession_NodeOperations(t *testing.T) {
	ctx := context.Background()
	st := newStore("unit", "memory", nil)

	sess, err := st.Login(ctx, AdminCredentials)
	require.NoError(t, err)
	assert.Equal(t, "admin", sess.UserID())

	root, err := sess.RootNode()
	require.NoError(t, err)
	assert.Equal(t, TypeRoot, root.PrimaryType)
	assert.Equal(t, "", root.Name())

	node, err := sess.AddNode("/", "docs", TypeFolder)
	require.NoError(t, err)
	assert.Equal(t, "/docs", node.Path)

	_, err = sess.AddNode("/", "docs", TypeFolder)
	assert.ErrorIs(t, err, ErrItemExists)
	_, err = sess.AddNode("/missing", "x", "")
	assert.ErrorIs(t, err, ErrNodeNotFound)
	_, err = sess.AddNode("/", "x", "app:unknown")
	assert.ErrorIs(t, err, ErrNoSuchNodeType)
	_, err = sess.AddNode("/", "a/b", "")
	assert.Error(t, err)

	require.NoError(t, sess.SetProperty("/docs", "title", "Docs"))
	_, err = sess.AddNode("/docs", "readme", TypeFile)
	require.NoError(t, err)

	children, err := sess.Children("/docs")
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, "readme", children[0].Name())

	// Unsaved changes are invisible to other sessions.
	other, err := st.Login(ctx, AdminCredentials)
	require.NoError(t, err)
	_, err = other.GetNode("/docs")
	assert.ErrorIs(t, err, ErrNodeNotFound)

	require.NoError(t, sess.Save())
	require.NoError(t, other.Refresh(false))
	docs, err := other.GetNode("/docs")
	require.NoError(t, err)
	assert.Equal(t, "Docs", docs.Properties["title"])

	require.NoError(t, other.Remove("/docs"))
	_, err = other.GetNode("/docs/readme")
	assert.ErrorIs(t, err, ErrNodeNotFound)
	assert.ErrorIs(t, other.Remove("/"), ErrConstraintViolation)
	require.NoError(t, other.Refresh(false))
	_, err = other.GetNode("/docs/readme")
	assert.NoError(t, err)

	sess.Logout()
	assert.False(t, sess.IsLive())
	_, err = sess.GetNode("/")
	assert.ErrorIs(t, err, ErrSessionClosed)
	sess.Logout()

	_, err = st.Login(ctx, Credentials{UserID: "admin", Password: "wrong"})
	assert.ErrorIs(t, err, ErrLoginFailed)

	require.NoError(t, st.Shutdown())
	assert.False(t, other.IsLive())
	_, err = st.Login(ctx, AdminCredentials)
	assert.ErrorIs(t, err, ErrRepositoryClosed)
}

func TestInMemoryContentRepository_NodeTypesAndContent(t *testing.T) {
	folder := tempfs.NewTemporaryFolder(t.TempDir())
	repo := NewInMemoryContentRepository(folder)
	require.NoError(t, repo.SetInitialContent(testdata, "content.yaml"))
	require.NoError(t, repo.SetNodeTypes(testdata, "nodetypes.yaml"))

	fixture.Run(t, repo, func(ctx context.Context) error {
		assert.Equal(t, "memory", repo.Repository().Descriptor(DescriptorBackend))

		sess, err := repo.AdminLogin(ctx)
		require.NoError(t, err)
		defer sess.Logout()

		home, err := sess.GetNode("/content/site/home")
		require.NoError(t, err)
		assert.Equal(t, "app:page", home.PrimaryType)
		assert.Equal(t, "Home", home.Properties["title"])
		assert.Equal(t, "basic", home.Properties["template"])

		content, err := sess.GetNode("/content")
		require.NoError(t, err)
		assert.Equal(t, "admin", content.Properties["owner"])

		_, err = sess.AddNode("/content", "broken", "app:page")
		require.NoError(t, err)
		assert.ErrorIs(t, sess.Save(), ErrConstraintViolation)
		return nil
	})

	_, err := repo.Login(context.Background(), AdminCredentials)
	assert.ErrorIs(t, err, fixture.ErrIllegalLifecycleState)
}

func TestStandaloneContentRepository_Persists(t *testing.T) {
	folder := tempfs.NewTemporaryFolder(t.TempDir())
	repo := NewStandaloneContentRepository(folder)
	require.NoError(t, repo.SetConfig(testdata, "standalone.yaml"))

	var workdir string
	fixture.Run(t, repo, func(ctx context.Context) error {
		workdir = repo.Workdir()
		assert.DirExists(t, workdir)
		assert.Equal(t, "test-repo", repo.Repository().Descriptor(DescriptorName))

		sess, err := repo.Login(ctx, Credentials{UserID: "alice", Password: "secret"})
		require.NoError(t, err)
		_, err = sess.AddNode("/", "saved", "")
		require.NoError(t, err)
		require.NoError(t, sess.Save())

		paths, err := repo.PersistedPaths()
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"/", "/saved"}, paths)
		assert.FileExists(t, workdir+"/nodes.yaml")
		return nil
	})

	assert.NoDirExists(t, workdir)
}

// Folder, repository and session; the body fails. Everything is torn down
// and the folder goes last.
func TestActiveSession_BodyFailureTearsDownChain(t *testing.T) {
	folder := tempfs.NewTemporaryFolder(t.TempDir())
	repo := NewStandaloneContentRepository(folder)
	session := NewActiveSession(repo)
	bodyErr := errors.New("assertion in test body")

	var liveSession Session
	err := fixture.Apply(session, func(ctx context.Context) error {
		liveSession = session.Session()
		require.True(t, liveSession.IsLive())
		assert.Equal(t, fixture.StateActive, folder.State())
		assert.Equal(t, fixture.StateActive, repo.State())
		return bodyErr
	}, fixture.Description{Name: "TestSessionScenario"})(context.Background())

	assert.Equal(t, bodyErr, err)
	assert.False(t, liveSession.IsLive())
	assert.Equal(t, fixture.StateDestroyed, session.State())
	assert.Equal(t, fixture.StateDestroyed, repo.State())
	assert.Equal(t, fixture.StateDestroyed, folder.State())
	assert.NoDirExists(t, folder.Root())
}

func TestActiveSession_WrongCredentials(t *testing.T) {
	folder := tempfs.NewTemporaryFolder(t.TempDir())
	repo := NewInMemoryContentRepository(folder)
	session := NewActiveSession(repo)
	require.NoError(t, session.SetCredentials(Credentials{UserID: "mallory"}))

	err := fixture.Apply(session, func(ctx context.Context) error { return nil }, fixture.Description{})(context.Background())
	assert.ErrorIs(t, err, fixture.ErrResourceAcquisition)
	assert.ErrorIs(t, err, ErrLoginFailed)
	assert.Equal(t, fixture.StateDestroyed, folder.State())
}

func TestLookupContentRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("registry is required", func(t *testing.T) {
		repo := NewLookupContentRepository()
		err := fixture.Setup(ctx, repo, fixture.ScopeInstance)
		assert.ErrorIs(t, err, fixture.ErrMissingRequiredConfiguration)
	})

	t.Run("nil registry is rejected", func(t *testing.T) {
		var typedNil *MapRegistry
		for _, r := range []Registry{nil, typedNil} {
			repo := NewLookupContentRepository()
			assert.Error(t, repo.SetRegistry(r))
			assert.Equal(t, fixture.StateUninitialized, repo.State())

			var err error
			assert.NotPanics(t, func() {
				err = fixture.Setup(ctx, repo, fixture.ScopeInstance)
			})
			assert.ErrorIs(t, err, fixture.ErrMissingRequiredConfiguration)
		}
	})

	t.Run("default lookup name", func(t *testing.T) {
		backing := newStore("bound", "memory", nil)
		registry := NewRegistry()
		registry.Bind(DefaultLookupName, backing)

		repo := NewLookupContentRepository()
		require.NoError(t, repo.SetRegistry(registry))
		assert.Equal(t, "jcr/local", repo.LookupName())

		fixture.Run(t, repo, func(ctx context.Context) error {
			assert.Equal(t, "bound", repo.Repository().Descriptor(DescriptorName))
			return nil
		})

		// The looked up repository is not shut down.
		_, err := backing.Login(ctx, AdminCredentials)
		assert.NoError(t, err)
	})

	t.Run("unbound name", func(t *testing.T) {
		repo := NewLookupContentRepository()
		require.NoError(t, repo.SetLookupName("jcr/other"))
		require.NoError(t, repo.SetRegistry(NewRegistry()))

		err := fixture.Apply(repo, func(ctx context.Context) error { return nil }, fixture.Description{})(ctx)
		assert.ErrorIs(t, err, ErrNameNotBound)
	})
}

func TestMockContentRepository(t *testing.T) {
	repo := NewMockContentRepository()
	sess := &MockSession{}
	sess.On("UserID").Return("admin")
	sess.On("Logout").Return()

	repo.Mock().On("Login", mock.Anything, AdminCredentials).Return(sess, nil)
	repo.Mock().On("Descriptor", DescriptorName).Return("mocked")

	session := NewActiveSession(repo)
	fixture.Run(t, session, func(ctx context.Context) error {
		assert.Equal(t, "mocked", repo.Repository().Descriptor(DescriptorName))
		assert.Equal(t, "admin", session.Session().UserID())
		return nil
	})

	repo.Mock().AssertExpectations(t)
	sess.AssertCalled(t, "Logout")
	repo.Mock().AssertNotCalled(t, "Shutdown")
}
