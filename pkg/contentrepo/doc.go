// Package contentrepo provides content repository fixtures: a hierarchical
// node store with typed nodes, string properties and sessions whose
// changes become visible to others on Save.
//
// InMemoryContentRepository and StandaloneContentRepository live inside a
// tempfs.TemporaryFolder, MockContentRepository and
// LookupContentRepository stand alone. ActiveSession logs in to any of
// them for the duration of a test.
package contentrepo
