package fixture

import (
	"sync"
	"time"
)

// Observer is notified about every setup and teardown the engine runs.
// Implementations must be safe for concurrent use since parallel tests
// drive independent chains.
type Observer interface {
	SetupCompleted(resource string, scope Scope, duration time.Duration, err error)
	TeardownCompleted(resource string, scope Scope, err error)
}

type noopObserver struct{}

func (noopObserver) SetupCompleted(string, Scope, time.Duration, error) {}
func (noopObserver) TeardownCompleted(string, Scope, error)             {}

var (
	observerMu sync.RWMutex
	observer   Observer = noopObserver{}
)

// SetObserver installs o as the process wide observer. Passing nil
// restores the no-op observer.
func SetObserver(o Observer) {
	observerMu.Lock()
	defer observerMu.Unlock()
	if o == nil {
		o = noopObserver{}
	}
	observer = o
}

func currentObserver() Observer {
	observerMu.RLock()
	defer observerMu.RUnlock()
	return observer
}
