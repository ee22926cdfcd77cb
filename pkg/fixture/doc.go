// Package fixture is the lifecycle and composition engine behind every
// scribble fixture.
//
// A fixture embeds Base and implements Lifecycle. Base tracks the
// lifecycle state (Uninitialized, Configuring, Active, Destroyed), the
// optional outer resource the fixture lives in, the declared configuration
// properties and the sub-resources acquired during setup.
//
// Fixtures are nested through their outer resource:
//
//	folder := tempfs.NewTemporaryFolder("")
//	repo := contentrepo.NewInMemoryContentRepository(folder)
//	session := contentrepo.NewActiveSession(repo)
//
//	fixture.Run(t, session, func(ctx context.Context) error {
//		// folder, repo and session are active here
//		return nil
//	})
//
// Apply walks outwards to set up the outer resources first and tears them
// down in reverse order, whatever fails in between. Description.Suite
// selects between the instance hooks (Before/After) and the suite hooks
// (BeforeClass/AfterClass); RunMain uses the latter for TestMain.
//
// Builders (see Builder) construct a fixture exactly once and reject
// configuration after it was built.
package fixture
