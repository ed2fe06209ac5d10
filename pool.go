package memcached

import (
	"context"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/memcachedbin/memcached/hash"
)

// Resolver turns a configured address string into the set of nodes a
// Pool should route across. Grounded on client_cluster.go's Resolver,
// kept interfaces-only plus one default so Pool ships usable out of
// the box, per spec.md §4.7.
type Resolver interface {
	Resolve(addr string) ([]*Addr, error)
}

// Picker chooses which Addr a key routes to, given the current node
// list. Grounded on client_cluster.go's Picker.
type Picker interface {
	Pick(addrs []*Addr, key []byte) (*Addr, error)
}

// Builder constructs a Picker once Pool knows its node list.
type Builder interface {
	Build(addrs []*Addr) Picker
}

// Addr identifies one memcached node. Priority breaks a tie between
// two nodes that score identically under a hash picker; by default it
// follows resolution order.
type Addr struct {
	Network  string
	Address  string
	Priority int
}

// NewAddr builds an Addr.
func NewAddr(network, address string, priority int) *Addr {
	return &Addr{Network: network, Address: address, Priority: priority}
}

func (a *Addr) shortcut() []byte {
	return []byte(a.Network + "|" + a.Address)
}

type defaultResolver struct{}

// Resolve splits a comma-separated address list ("host1:port,host2:port")
// into Addrs, defaulting to tcp. Grounded on client_cluster.go's
// defaultResolver.
func (defaultResolver) Resolve(addr string) ([]*Addr, error) {
	if strings.TrimSpace(addr) == "" {
		return nil, errors.Wrap(ErrInvalidAddress, "empty address")
	}

	parts := strings.Split(addr, ",")
	result := make([]*Addr, 0, len(parts))
	for i, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, err := net.ResolveTCPAddr("tcp", p); err != nil {
			return nil, errors.Wrapf(ErrInvalidAddress, "resolve %q: %s", p, err)
		}
		result = append(result, NewAddr("tcp", p, i))
	}

	if len(result) == 0 {
		return nil, errors.Wrap(ErrInvalidAddress, "no usable address")
	}
	return result, nil
}

// rendezvousPicker picks by highest random weight, wired to the hash
// package's Murmur3 digest. One node: always picks it. Losing a node
// only reshuffles the keys that scored highest on that node, per
// client_cluster.go's rendezvousHashPicker doc.
type rendezvousPicker struct {
	digest hash.Hasher
}

func (p *rendezvousPicker) Pick(addrs []*Addr, key []byte) (*Addr, error) {
	if len(addrs) == 0 {
		return nil, errors.Wrap(ErrInvalidAddress, "no usable address")
	}
	if len(addrs) == 1 {
		return addrs[0], nil
	}

	var winner *Addr
	var winnerScore uint64
	for _, a := range addrs {
		score := p.digest.Hash(append(a.shortcut(), key...))
		if winner == nil || score > winnerScore ||
			(score == winnerScore && a.Priority > winner.Priority) {
			winner, winnerScore = a, score
		}
	}
	return winner, nil
}

type rendezvousBuilder struct{ seed uint64 }

// NewRendezvousBuilder builds the default Picker: rendezvous/HRW hashing
// seeded for reproducible routing across process restarts.
func NewRendezvousBuilder(seed uint64) Builder {
	return rendezvousBuilder{seed: seed}
}

func (b rendezvousBuilder) Build([]*Addr) Picker {
	return &rendezvousPicker{digest: hash.NewMurmur3(b.seed)}
}

// PoolOption configures Pool at construction time.
type PoolOption func(*poolOptions)

type poolOptions struct {
	resolver       Resolver
	builder        Builder
	maxConnections int
	dialTimeout    time.Duration
	defaultTimeout time.Duration
}

func defaultPoolOptions() *poolOptions {
	return &poolOptions{
		resolver:       defaultResolver{},
		builder:        NewRendezvousBuilder(0),
		maxConnections: 4,
		dialTimeout:    2 * time.Second,
		defaultTimeout: defaultCommandTimeout,
	}
}

// WithResolver overrides how the address string is turned into nodes.
func WithResolver(r Resolver) PoolOption { return func(o *poolOptions) { o.resolver = r } }

// WithPickerBuilder overrides the key routing strategy.
func WithPickerBuilder(b Builder) PoolOption { return func(o *poolOptions) { o.builder = b } }

// WithMaxConnectionsPerNode caps how many sockets Pool opens to any
// one node.
func WithMaxConnectionsPerNode(n int) PoolOption {
	return func(o *poolOptions) { o.maxConnections = n }
}

// WithDialTimeout bounds how long dialing a new connection may take.
func WithDialTimeout(d time.Duration) PoolOption { return func(o *poolOptions) { o.dialTimeout = d } }

// WithDefaultCommandTimeout sets how long Close waits for each
// connection's quit reply. It is not applied to commands submitted on
// the Pool's connections; those use their own CommandTimeout or the
// package default.
func WithDefaultCommandTimeout(d time.Duration) PoolOption {
	return func(o *poolOptions) { o.defaultTimeout = d }
}

// Pool is the multi-connection, (optionally) multi-node façade over
// Connection, grounded on conn.go's connPool generalized from "one
// pool per single address" to "one Picker-routed node per key" via
// client_cluster.go's routing machinery, per spec.md §4.7.
type Pool struct {
	opts *poolOptions

	mu    sync.RWMutex
	addrs []*Addr
	nodes map[string]*nodePool
	picker Picker
}

// NewPool resolves addr (comma-separated for multiple nodes) and
// returns a ready Pool. It does not dial eagerly; connections open on
// first use.
func NewPool(addr string, opts ...PoolOption) (*Pool, error) {
	o := defaultPoolOptions()
	for _, fn := range opts {
		fn(o)
	}

	addrs, err := o.resolver.Resolve(addr)
	if err != nil {
		return nil, errors.Wrap(err, "resolve pool address")
	}

	p := &Pool{
		opts:  o,
		addrs: addrs,
		nodes: make(map[string]*nodePool, len(addrs)),
	}
	p.picker = o.builder.Build(addrs)
	for _, a := range addrs {
		p.nodes[a.Address] = newNodePool(a, o.maxConnections, o.dialTimeout)
	}
	return p, nil
}

// Call picks the connection for key and invokes op on it. Generic
// functions, not a generic method — Go does not support the latter,
// and op's Future type varies per call site exactly the way
// submitTyped's does in connection.go.
func Call[T any](ctx context.Context, p *Pool, key []byte, op func(*Connection) *Future[T]) *Future[T] {
	conn, err := p.pick(ctx, key)
	if err != nil {
		future, complete := newFuture[T]()
		var zero T
		complete(zero, err)
		return future
	}
	return op(conn)
}

func (p *Pool) pick(ctx context.Context, key []byte) (*Connection, error) {
	p.mu.RLock()
	addr, err := p.picker.Pick(p.addrs, key)
	p.mu.RUnlock()
	if err != nil {
		return nil, err
	}

	p.mu.RLock()
	np := p.nodes[addr.Address]
	p.mu.RUnlock()
	if np == nil {
		return nil, errors.Wrapf(ErrInvalidAddress, "no pool for node %s", addr.Address)
	}
	return np.get(ctx)
}

// Close sends quit to every live connection, waits up to the default
// command timeout for each, then closes the sockets, aggregating any
// errors with go-multierror per spec.md §4.7.
func (p *Pool) Close() error {
	p.mu.Lock()
	nodes := make([]*nodePool, 0, len(p.nodes))
	for _, np := range p.nodes {
		nodes = append(nodes, np)
	}
	p.mu.Unlock()

	var result *multierror.Error
	for _, np := range nodes {
		if err := np.closeAll(p.opts.defaultTimeout); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// nodePool round-robins up to max connections to one Addr, dialing
// lazily and dropping a connection the moment it observes a terminal
// error, per spec.md §4.7's replace-on-failure contract. Grounded on
// conn.go's connPool.get/put, simplified: no idle/lifetime eviction,
// since every Connection here is continuously read by its own
// goroutine rather than borrowed and returned.
type nodePool struct {
	addr        *Addr
	dialTimeout time.Duration
	max         int

	mu    sync.Mutex
	conns []*Connection
	next  int
}

func newNodePool(addr *Addr, max int, dialTimeout time.Duration) *nodePool {
	return &nodePool{addr: addr, max: max, dialTimeout: dialTimeout}
}

func (np *nodePool) get(ctx context.Context) (*Connection, error) {
	np.mu.Lock()
	defer np.mu.Unlock()

	alive := np.conns[:0]
	for _, c := range np.conns {
		if c.Err() == nil {
			alive = append(alive, c)
		}
	}
	np.conns = alive

	if len(np.conns) < np.max {
		c, err := Dial(ctx, np.addr.Network, np.addr.Address, np.dialTimeout)
		if err != nil {
			return nil, errors.Wrapf(err, "dial %s", np.addr.Address)
		}
		np.conns = append(np.conns, c)
		return c, nil
	}

	c := np.conns[np.next%len(np.conns)]
	np.next++
	return c, nil
}

func (np *nodePool) closeAll(timeout time.Duration) error {
	np.mu.Lock()
	conns := np.conns
	np.conns = nil
	np.mu.Unlock()

	var result *multierror.Error
	for _, c := range conns {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		_, _ = c.Quit().Await(ctx)
		cancel()
		if err := c.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}
