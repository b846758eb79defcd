package ddc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/AvengeMedia/ddcgo/internal/ddcregistry"
)

type fakeSource struct {
	polls  chan struct{}
	closed chan struct{}
	conns  []ddcregistry.Connector
}

func newFakeSource() *fakeSource {
	return &fakeSource{polls: make(chan struct{}, 8), closed: make(chan struct{})}
}

func (s *fakeSource) Poll() ([]ddcregistry.Connector, error) {
	select {
	case s.polls <- struct{}{}:
	default:
	}
	return s.conns, nil
}

func (s *fakeSource) Close() error {
	close(s.closed)
	return nil
}

func TestInitIsIdempotent(t *testing.T) {
	lib := New()
	require.Nil(t, lib.Init(Options{}))
	first := lib.registry
	require.Nil(t, lib.Init(Options{}), "second Init")
	require.Same(t, first, lib.registry, "second Init should have been a no-op, but replaced the registry")
}

func TestTeardownIsIdempotent(t *testing.T) {
	lib := New()
	require.Nil(t, lib.Init(Options{}))
	require.Nil(t, lib.Teardown(), "first Teardown")
	require.Nil(t, lib.Teardown(), "second Teardown")
	require.Nil(t, lib.Displays(), "expected no displays after teardown")
}

func TestInitRequiresSourceWhenWatchModeEnabled(t *testing.T) {
	lib := New()
	err := lib.Init(Options{WatchMode: true})
	require.NotNil(t, err, "expected an error when WatchMode is set without a Source")
}

func TestDisplaysStartsEmpty(t *testing.T) {
	lib := New()
	require.Nil(t, lib.Init(Options{}))
	defer lib.Teardown()
	require.Empty(t, lib.Displays())
}

func TestTeardownJoinsWatchLoopWithinTimeout(t *testing.T) {
	source := newFakeSource()
	lib := New()
	require.Nil(t, lib.Init(Options{WatchMode: true, Source: source, PollInterval: 10 * time.Millisecond}))

	select {
	case <-source.polls:
	case <-time.After(time.Second):
		t.Fatal("watch loop never polled the source")
	}

	done := make(chan struct{})
	go func() {
		lib.Teardown()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(watchJoinTimeout + time.Second):
		t.Fatal("Teardown did not return within the watch-join timeout budget")
	}

	select {
	case <-source.closed:
	default:
		t.Error("expected the source to be closed on teardown")
	}
}
