// Package topic tracks the client's active subscriptions and the set of
// topics the server currently advertises. Routing of inbound topic payloads
// is a lookup in this registry; control topics never reach it.
package topic

import (
	"sort"
	"sync"

	"github.com/gazebo-web/gzweb-sub000/schema"
)

// Callback receives decoded messages for a subscribed topic. Image-typed
// topics deliver raw bytes under the "data" key instead of a decoded message.
type Callback func(msg schema.Message)

// Subscription binds a topic name to its delivery callback. Teardown, when
// set, runs once on unsubscribe.
type Subscription struct {
	Name     string
	Callback Callback
	Teardown func()
}

// AdvertisedTopic pairs a topic name with the message type the server
// publishes on it.
type AdvertisedTopic struct {
	Name            string `json:"name"`
	MessageTypeName string `json:"msg_type"`
}

// Registry is the per-session bookkeeping of subscriptions and advertised
// topics. Both collections are cleared wholesale on disconnect.
type Registry struct {
	mu         sync.RWMutex
	subs       map[string]*Subscription
	advertised map[string]AdvertisedTopic
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		subs:       make(map[string]*Subscription),
		advertised: make(map[string]AdvertisedTopic),
	}
}

// Register adds a subscription keyed by name. A previous registration for
// the same name is overwritten; the last writer wins.
func (r *Registry) Register(sub *Subscription) {
	r.mu.Lock()
	r.subs[sub.Name] = sub
	r.mu.Unlock()
}

// Remove deletes the subscription for name, invoking its teardown hook if it
// has one. It reports whether a subscription existed.
func (r *Registry) Remove(name string) bool {
	r.mu.Lock()
	sub, ok := r.subs[name]
	if ok {
		delete(r.subs, name)
	}
	r.mu.Unlock()

	if ok && sub.Teardown != nil {
		sub.Teardown()
	}
	return ok
}

// Dispatch delivers a decoded message to the subscription registered for
// name. A payload for a name with no registered callback is dropped: the
// server may still be flushing frames from a recent unsubscribe.
func (r *Registry) Dispatch(name string, msg schema.Message) bool {
	r.mu.RLock()
	sub, ok := r.subs[name]
	r.mu.RUnlock()

	if !ok || sub.Callback == nil {
		return false
	}
	sub.Callback(msg)
	return true
}

// Subscribed reports whether a subscription is registered for name.
func (r *Registry) Subscribed(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.subs[name]
	return ok
}

// Names returns the sorted names of all registered subscriptions.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.subs))
	for name := range r.subs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered subscriptions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}

// SetAdvertised replaces the advertised-topic set wholesale, as each
// topics-types response supersedes the previous one.
func (r *Registry) SetAdvertised(topics []AdvertisedTopic) {
	advertised := make(map[string]AdvertisedTopic, len(topics))
	for _, t := range topics {
		advertised[t.Name] = t
	}

	r.mu.Lock()
	r.advertised = advertised
	r.mu.Unlock()
}

// Advertised returns the advertised topics sorted by name.
func (r *Registry) Advertised() []AdvertisedTopic {
	r.mu.RLock()
	topics := make([]AdvertisedTopic, 0, len(r.advertised))
	for _, t := range r.advertised {
		topics = append(topics, t)
	}
	r.mu.RUnlock()

	sort.Slice(topics, func(i, j int) bool { return topics[i].Name < topics[j].Name })
	return topics
}

// TypeOf returns the advertised message type for a topic name.
func (r *Registry) TypeOf(name string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.advertised[name]
	if !ok {
		return "", false
	}
	return t.MessageTypeName, true
}

// Clear empties both the subscription and advertised-topic collections.
// Teardown hooks are not invoked: clearing happens on disconnect, when the
// server-side subscriptions are already gone.
func (r *Registry) Clear() {
	r.mu.Lock()
	r.subs = make(map[string]*Subscription)
	r.advertised = make(map[string]AdvertisedTopic)
	r.mu.Unlock()
}
