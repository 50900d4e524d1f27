package signal

import (
	"fmt"
	"math/bits"

	"github.com/mattjoyce/sigslot/internal/pool"
	"github.com/mattjoyce/sigslot/internal/rtos"
)

// group holds every connection of one signal.
type group struct {
	signal   SignalID
	head     pool.Handle // first node
	count    int
	blocking int
	next     pool.Handle // next group in the bucket
}

// node is one (receiver, handler, mode) connection.
type node struct {
	receiver   Receiver
	receiverID ReceiverID
	handler    HandlerID
	mode       Mode
	slot       any
	group      pool.Handle
	next       pool.Handle
}

// RegistryStats describes the shape of the hash index.
type RegistryStats struct {
	Buckets      int `json:"buckets"`
	UsedBuckets  int `json:"used_buckets"`
	Groups       int `json:"groups"`
	Nodes        int `json:"nodes"`
	Blocking     int `json:"blocking"`
	LongestChain int `json:"longest_chain"`
}

// registry maps signal identities to connection groups. A single RWLock
// guards the bucket array and every group and node; the arenas only
// synchronize slot bookkeeping.
type registry struct {
	lock    *rtos.RWLock
	buckets []pool.Handle
	mask    uint64
	groups  *pool.Arena[group]
	nodes   *pool.Arena[node]

	signalLive   func(SignalID) bool
	receiverLive func(ReceiverID) bool
}

func newRegistry(buckets, groups, nodes int) (*registry, error) {
	if buckets <= 0 || bits.OnesCount(uint(buckets)) != 1 {
		return nil, fmt.Errorf("bucket count must be a power of two (got %d)", buckets)
	}
	return &registry{
		lock:         rtos.NewRWLock(),
		buckets:      make([]pool.Handle, buckets),
		mask:         uint64(buckets - 1),
		groups:       pool.NewArena[group]("groups", groups),
		nodes:        pool.NewArena[node]("nodes", nodes),
		signalLive:   func(SignalID) bool { return true },
		receiverLive: func(ReceiverID) bool { return true },
	}, nil
}

// bucketOf mixes the identity with the 64-bit finalizer from MurmurHash3 so
// consecutive slot indices spread across buckets.
func (r *registry) bucketOf(sig SignalID) int {
	h := uint64(sig)
	h ^= h >> 33
	h *= 0xff51afd7ed558ccd
	h ^= h >> 33
	h *= 0xc4ceb9fe1a85ec53
	h ^= h >> 33
	return int(h & r.mask)
}

// lockWrite refuses to mutate from inside a walk or from a release hook,
// either of which would otherwise deadlock.
func (r *registry) lockWrite() error {
	if r.lock.HoldsRead() || r.lock.HoldsWrite() {
		return ErrReentrantMutation
	}
	r.lock.Lock()
	return nil
}

func (r *registry) findGroup(b int, sig SignalID) (pool.Handle, *group) {
	for h := r.buckets[b]; !h.IsZero(); {
		g, ok := r.groups.Get(h)
		if !ok {
			return 0, nil
		}
		if g.signal == sig {
			return h, g
		}
		h = g.next
	}
	return 0, nil
}

func (r *registry) hasNode(g *group, rid ReceiverID, handler HandlerID) bool {
	for h := g.head; !h.IsZero(); {
		n, ok := r.nodes.Get(h)
		if !ok {
			return false
		}
		if n.receiverID == rid && n.handler == handler {
			return true
		}
		h = n.next
	}
	return false
}

// insert links a new node at the head of the signal's group, creating the
// group on first use.
func (r *registry) insert(sig SignalID, nd node) error {
	if sig.IsZero() || nd.handler == 0 {
		return ErrNullIdentity
	}
	if err := r.lockWrite(); err != nil {
		return err
	}
	defer r.lock.Unlock()

	if !r.signalLive(sig) {
		return ErrObjectDestroyed
	}
	if nd.receiver != nil && (!nd.receiver.IsLive() || !r.receiverLive(nd.receiverID)) {
		return ErrObjectDestroyed
	}

	b := r.bucketOf(sig)
	gh, g := r.findGroup(b, sig)
	created := false
	if g == nil {
		h, ng, err := r.groups.Alloc()
		if err != nil {
			return fmt.Errorf("%w: %w", ErrOutOfMemory, err)
		}
		ng.signal = sig
		ng.next = r.buckets[b]
		r.buckets[b] = h
		gh, g, created = h, ng, true
	} else if r.hasNode(g, nd.receiverID, nd.handler) {
		return ErrAlreadyConnected
	}

	nh, nn, err := r.nodes.Alloc()
	if err != nil {
		if created {
			r.unlinkGroup(b, gh)
		}
		return fmt.Errorf("%w: %w", ErrOutOfMemory, err)
	}
	*nn = nd
	nn.group = gh
	nn.next = g.head
	g.head = nh
	g.count++
	if nd.mode == ModeBlockingQueue {
		g.blocking++
	}
	return nil
}

// walk visits every node of one signal's group under the read lock. prepare
// runs first with the group's blocking-mode node count.
func (r *registry) walk(sig SignalID, prepare func(blocking int), visit func(n *node)) error {
	r.lock.RLock()
	defer r.lock.RUnlock()

	_, g := r.findGroup(r.bucketOf(sig), sig)
	if g == nil {
		return ErrReceiverNotFound
	}
	prepare(g.blocking)
	for h := g.head; !h.IsZero(); {
		n, ok := r.nodes.Get(h)
		if !ok {
			break
		}
		next := n.next
		visit(n)
		h = next
	}
	return nil
}

// remove drops nodes of sig matching both identities and returns how many.
func (r *registry) remove(sig SignalID, rid ReceiverID, handler HandlerID) (int, error) {
	if sig.IsZero() || handler == 0 {
		return 0, ErrNullIdentity
	}
	if err := r.lockWrite(); err != nil {
		return 0, err
	}
	defer r.lock.Unlock()

	b := r.bucketOf(sig)
	gh, g := r.findGroup(b, sig)
	if g == nil {
		return 0, nil
	}
	n := r.removeNodesLocked(g, func(nd *node) bool {
		return nd.receiverID == rid && nd.handler == handler
	})
	if g.head.IsZero() {
		r.unlinkGroup(b, gh)
	}
	return n, nil
}

// removeGroup drops every connection of sig. release, if set, runs while the
// write lock is still held.
func (r *registry) removeGroup(sig SignalID, release func()) (int, error) {
	if err := r.lockWrite(); err != nil {
		return 0, err
	}
	defer r.lock.Unlock()

	n := 0
	b := r.bucketOf(sig)
	if gh, g := r.findGroup(b, sig); g != nil {
		n = r.removeNodesLocked(g, func(*node) bool { return true })
		r.unlinkGroup(b, gh)
	}
	if release != nil {
		release()
	}
	return n, nil
}

// removeReceiver drops every node that targets rid across the whole table.
func (r *registry) removeReceiver(rid ReceiverID, release func()) (int, error) {
	if rid.IsZero() {
		return 0, ErrNullIdentity
	}
	if err := r.lockWrite(); err != nil {
		return 0, err
	}
	defer r.lock.Unlock()

	total := 0
	for b := range r.buckets {
		for h := r.buckets[b]; !h.IsZero(); {
			g, ok := r.groups.Get(h)
			if !ok {
				break
			}
			next := g.next
			total += r.removeNodesLocked(g, func(nd *node) bool { return nd.receiverID == rid })
			if g.head.IsZero() {
				r.unlinkGroup(b, h)
			}
			h = next
		}
	}
	if release != nil {
		release()
	}
	return total, nil
}

func (r *registry) removeNodesLocked(g *group, match func(*node) bool) int {
	removed := 0
	var prev *node
	for h := g.head; !h.IsZero(); {
		n, ok := r.nodes.Get(h)
		if !ok {
			break
		}
		next := n.next
		if !match(n) {
			prev = n
			h = next
			continue
		}
		if prev == nil {
			g.head = next
		} else {
			prev.next = next
		}
		g.count--
		if n.mode == ModeBlockingQueue {
			g.blocking--
		}
		_ = r.nodes.Free(h)
		removed++
		h = next
	}
	return removed
}

func (r *registry) unlinkGroup(b int, target pool.Handle) {
	var prev *group
	for h := r.buckets[b]; !h.IsZero(); {
		g, ok := r.groups.Get(h)
		if !ok {
			return
		}
		if h == target {
			if prev == nil {
				r.buckets[b] = g.next
			} else {
				prev.next = g.next
			}
			_ = r.groups.Free(h)
			return
		}
		prev = g
		h = g.next
	}
}

// count returns the number of connections of sig.
func (r *registry) count(sig SignalID) int {
	r.lock.RLock()
	defer r.lock.RUnlock()
	if _, g := r.findGroup(r.bucketOf(sig), sig); g != nil {
		return g.count
	}
	return 0
}

func (r *registry) stats() RegistryStats {
	r.lock.RLock()
	defer r.lock.RUnlock()

	st := RegistryStats{Buckets: len(r.buckets)}
	for b := range r.buckets {
		chain := 0
		for h := r.buckets[b]; !h.IsZero(); {
			g, ok := r.groups.Get(h)
			if !ok {
				break
			}
			chain++
			st.Groups++
			st.Nodes += g.count
			st.Blocking += g.blocking
			h = g.next
		}
		if chain > 0 {
			st.UsedBuckets++
		}
		if chain > st.LongestChain {
			st.LongestChain = chain
		}
	}
	return st
}
