package registry

import (
	"sync"

	"go.uber.org/zap"

	"github.com/QuickFix-Capstone/quickfix-messaging/internal/realtime"
)

// Key identifies one logical connection: an endpoint plus the
// identity connecting to it.
type Key struct {
	Endpoint string
	Identity string
}

type entry struct {
	client *realtime.Client
	refs   int
}

// Registry deduplicates realtime connections across independent
// consumers that observe the same identity's stream. The first
// Acquire for a key dials; later ones share the instance. The
// connection is torn down only when the last consumer releases it,
// bounding live connections to one per identity no matter how many
// surfaces subscribe.
type Registry struct {
	mu        sync.Mutex
	entries   map[Key]*entry
	newClient func(endpoint, identity string) *realtime.Client
	logger    *zap.Logger
}

// New creates a registry. base supplies everything but endpoint and
// identity for the clients it constructs.
func New(base realtime.Options, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		entries: make(map[Key]*entry),
		newClient: func(endpoint, identity string) *realtime.Client {
			opts := base
			opts.Endpoint = endpoint
			opts.Identity = identity
			if opts.Logger == nil {
				opts.Logger = logger
			}
			return realtime.New(opts)
		},
		logger: logger,
	}
}

// Acquire returns the shared client for (endpoint, identity),
// creating and connecting it on first acquisition and bumping the
// reference count on every call.
func (r *Registry) Acquire(endpoint, identity string) *realtime.Client {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := Key{Endpoint: endpoint, Identity: identity}
	e, ok := r.entries[k]
	if !ok {
		e = &entry{client: r.newClient(endpoint, identity)}
		r.entries[k] = e
		e.client.Connect()
		r.logger.Info("realtime client created", zap.String("identity", identity))
	}
	e.refs++
	return e.client
}

// Release decrements the reference count for (endpoint, identity);
// the last release closes the client and removes it. Releasing an
// unknown key is a no-op: consumer mount/unmount ordering is not
// under this layer's control, so over-release must be harmless.
func (r *Registry) Release(endpoint, identity string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := Key{Endpoint: endpoint, Identity: identity}
	e, ok := r.entries[k]
	if !ok {
		return
	}
	e.refs--
	if e.refs > 0 {
		return
	}
	delete(r.entries, k)
	e.client.Close()
	r.logger.Info("realtime client closed", zap.String("identity", identity))
}

// CloseAll closes every client regardless of reference counts. Used
// on process shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, e := range r.entries {
		e.client.Close()
		delete(r.entries, k)
	}
}
