package conversation

import (
	"context"
	"sync"

	"github.com/reddiedev/tenext-app/internal/model"
)

// Seeder loads the persisted messages of a thread when its view is opened.
type Seeder func(ctx context.Context, threadID string) ([]model.ChatMessage, error)

// Registry keeps one State per open thread. Views are reference counted: the
// state is created on the first Open and closed when the last viewer releases
// it.
type Registry struct {
	mu    sync.Mutex
	views map[string]*view
	seed  Seeder
	opts  []Option
}

type view struct {
	state *State
	err   error
	refs  int
	ready chan struct{}
}

// NewRegistry creates a registry that seeds new views with seed.
func NewRegistry(seed Seeder, opts ...Option) *Registry {
	return &Registry{
		views: make(map[string]*view),
		seed:  seed,
		opts:  opts,
	}
}

// Open returns the state for threadID and a release func that must be called
// exactly when the caller stops viewing the thread.
func (r *Registry) Open(ctx context.Context, threadID string) (*State, func(), error) {
	r.mu.Lock()
	v, ok := r.views[threadID]
	if ok {
		v.refs++
		r.mu.Unlock()
	} else {
		v = &view{refs: 1, ready: make(chan struct{})}
		r.views[threadID] = v
		r.mu.Unlock()

		var seed []model.ChatMessage
		var err error
		if r.seed != nil {
			seed, err = r.seed(ctx, threadID)
		}
		if err != nil {
			v.err = err
		} else {
			v.state = New(threadID, seed, r.opts...)
		}
		close(v.ready)
	}

	var once sync.Once
	release := func() { once.Do(func() { r.release(threadID, v) }) }

	select {
	case <-v.ready:
	case <-ctx.Done():
		release()
		return nil, nil, ctx.Err()
	}

	if v.err != nil {
		release()
		return nil, nil, v.err
	}
	return v.state, release, nil
}

// Lookup returns the state of a thread that is currently open.
func (r *Registry) Lookup(threadID string) (*State, bool) {
	r.mu.Lock()
	v, ok := r.views[threadID]
	r.mu.Unlock()
	if !ok {
		return nil, false
	}

	select {
	case <-v.ready:
		return v.state, v.state != nil
	default:
		return nil, false
	}
}

// Len returns the number of open views.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.views)
}

func (r *Registry) release(threadID string, v *view) {
	r.mu.Lock()
	v.refs--
	last := v.refs == 0
	if last && r.views[threadID] == v {
		delete(r.views, threadID)
	}
	r.mu.Unlock()

	if !last {
		return
	}
	<-v.ready
	if v.state != nil {
		v.state.Close()
	}
}
