package homeconnect

import "sync"

// Registry maps appliance ids to their event subscribers. It is populated by
// the surrounding application; the router only looks up. Safe for concurrent
// use since registration may race with stream processing.
type Registry struct {
	mu   sync.RWMutex
	subs map[string]Subscriber
}

func NewRegistry() *Registry {
	return &Registry{
		subs: make(map[string]Subscriber),
	}
}

func (r *Registry) Register(haId string, sub Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs[haId] = sub
}

func (r *Registry) Unregister(haId string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.subs, haId)
}

// Lookup returns the subscriber for an appliance, or nil if none registered.
func (r *Registry) Lookup(haId string) Subscriber {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.subs[haId]
}

func (r *Registry) Ids() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.subs))
	for id := range r.subs {
		ids = append(ids, id)
	}
	return ids
}
