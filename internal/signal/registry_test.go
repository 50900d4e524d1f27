package signal

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T, buckets, groups, nodes int) *registry {
	t.Helper()
	r, err := newRegistry(buckets, groups, nodes)
	require.NoError(t, err)
	return r
}

func collect(t *testing.T, r *registry, sig SignalID) (blocking int, handlers []HandlerID) {
	t.Helper()
	err := r.walk(sig, func(b int) { blocking = b }, func(n *node) {
		handlers = append(handlers, n.handler)
	})
	require.NoError(t, err)
	return blocking, handlers
}

func TestNewRegistryRejectsNonPowerOfTwo(t *testing.T) {
	_, err := newRegistry(48, 4, 4)
	assert.Error(t, err)
	_, err = newRegistry(0, 4, 4)
	assert.Error(t, err)
}

func TestRegistryInsertWalkOrderAndDuplicates(t *testing.T) {
	r := newTestRegistry(t, 4, 4, 8)
	const sig SignalID = 1 << 32

	for h := HandlerID(1); h <= 3; h++ {
		require.NoError(t, r.insert(sig, node{handler: h, mode: ModeDirect}))
	}
	assert.ErrorIs(t, r.insert(sig, node{handler: 2}), ErrAlreadyConnected)
	assert.ErrorIs(t, r.insert(0, node{handler: 2}), ErrNullIdentity)
	assert.ErrorIs(t, r.insert(sig, node{}), ErrNullIdentity)

	_, handlers := collect(t, r, sig)
	assert.Equal(t, []HandlerID{3, 2, 1}, handlers, "insertion order reversed")
	assert.Equal(t, 3, r.count(sig))

	assert.ErrorIs(t, r.walk(SignalID(99), func(int) {}, func(*node) {}), ErrReceiverNotFound)
}

func TestRegistryBlockingCountTracksNodes(t *testing.T) {
	r := newTestRegistry(t, 4, 4, 8)
	const sig SignalID = 5

	require.NoError(t, r.insert(sig, node{receiverID: 1, handler: 1, mode: ModeBlockingQueue}))
	require.NoError(t, r.insert(sig, node{receiverID: 2, handler: 1, mode: ModeBlockingQueue}))
	require.NoError(t, r.insert(sig, node{receiverID: 3, handler: 1, mode: ModeThreadQueue}))
	blocking, _ := collect(t, r, sig)
	assert.Equal(t, 2, blocking)

	n, err := r.remove(sig, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	blocking, _ = collect(t, r, sig)
	assert.Equal(t, 1, blocking)

	n, err = r.removeReceiver(2, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	blocking, handlers := collect(t, r, sig)
	assert.Equal(t, 0, blocking)
	assert.Len(t, handlers, 1)
	assert.Equal(t, 1, r.stats().Nodes)
}

func TestRegistryEmptyGroupIsFreed(t *testing.T) {
	r := newTestRegistry(t, 4, 1, 4)
	require.NoError(t, r.insert(1, node{handler: 1}))

	n, err := r.remove(1, 0, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 0, r.groups.Stats().InUse)

	// The single group slot is available to another signal.
	require.NoError(t, r.insert(2, node{handler: 1}))
}

func TestRegistryGroupPoolExhaustion(t *testing.T) {
	r := newTestRegistry(t, 4, 1, 4)
	require.NoError(t, r.insert(1, node{handler: 1}))
	assert.ErrorIs(t, r.insert(2, node{handler: 1}), ErrOutOfMemory)
	assert.Equal(t, 1, r.stats().Groups)
}

func TestRegistryNodePoolExhaustionReleasesNewGroup(t *testing.T) {
	r := newTestRegistry(t, 4, 2, 1)
	require.NoError(t, r.insert(1, node{handler: 1}))
	assert.ErrorIs(t, r.insert(2, node{handler: 1}), ErrOutOfMemory)
	assert.Equal(t, 1, r.groups.Stats().InUse, "group created for the failed insert is released")
}

func TestRegistryCollisionsChainWithinBucket(t *testing.T) {
	r := newTestRegistry(t, 1, 8, 8)
	for sig := SignalID(1); sig <= 4; sig++ {
		require.NoError(t, r.insert(sig, node{handler: HandlerID(sig)}))
	}
	st := r.stats()
	assert.Equal(t, 4, st.LongestChain)
	assert.Equal(t, 1, st.UsedBuckets)

	n, err := r.removeGroup(2, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	for _, sig := range []SignalID{1, 3, 4} {
		_, handlers := collect(t, r, sig)
		assert.Equal(t, []HandlerID{HandlerID(sig)}, handlers)
	}
	assert.ErrorIs(t, r.walk(2, func(int) {}, func(*node) {}), ErrReceiverNotFound)
}

func TestRegistryRemoveReceiverAcrossSignals(t *testing.T) {
	r := newTestRegistry(t, 8, 8, 16)
	for sig := SignalID(1); sig <= 3; sig++ {
		require.NoError(t, r.insert(sig, node{receiverID: 42, handler: 1}))
		require.NoError(t, r.insert(sig, node{receiverID: 7, handler: 1}))
	}
	released := false
	n, err := r.removeReceiver(42, func() { released = true })
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.True(t, released)
	assert.Equal(t, 3, r.stats().Nodes)

	_, err = r.removeReceiver(0, nil)
	assert.ErrorIs(t, err, ErrNullIdentity)
}

func TestRegistryMutationInsideWalkIsRejected(t *testing.T) {
	r := newTestRegistry(t, 4, 4, 4)
	require.NoError(t, r.insert(1, node{handler: 1}))

	var insideErr error
	err := r.walk(1, func(int) {}, func(*node) {
		insideErr = r.insert(1, node{handler: 2})
	})
	require.NoError(t, err)
	assert.ErrorIs(t, insideErr, ErrReentrantMutation)
}

func TestRegistryMutationInsideReleaseIsRejected(t *testing.T) {
	r := newTestRegistry(t, 4, 4, 4)
	require.NoError(t, r.insert(1, node{handler: 1}))

	var insideErr error
	_, err := r.removeGroup(1, func() {
		insideErr = r.insert(2, node{handler: 1})
	})
	require.NoError(t, err)
	assert.ErrorIs(t, insideErr, ErrReentrantMutation)
	assert.Equal(t, 0, r.stats().Nodes)
}

func TestRegistryRejectsDeadIdentities(t *testing.T) {
	r := newTestRegistry(t, 4, 4, 4)
	r.signalLive = func(id SignalID) bool { return id != 9 }
	assert.ErrorIs(t, r.insert(9, node{handler: 1}), ErrObjectDestroyed)
}

func TestRegistryConcurrentWalkAndRemove(t *testing.T) {
	r := newTestRegistry(t, 4, 4, 64)
	for h := HandlerID(1); h <= 32; h++ {
		require.NoError(t, r.insert(1, node{handler: h}))
	}
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ctx.Err() == nil {
				_ = r.walk(1, func(int) {}, func(*node) {})
			}
		}()
	}
	for h := HandlerID(1); h <= 32; h++ {
		n, err := r.remove(1, 0, h)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	}
	cancel()
	wg.Wait()
	assert.Equal(t, RegistryStats{Buckets: 4}, r.stats())
}
