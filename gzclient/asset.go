package gzclient

import (
	"sync"
)

// AssetCallback receives the raw bytes of an asset response, or the error
// that prevented its delivery.
type AssetCallback func(uri string, data []byte, err error)

// pendingAsset is one registered request. Its pointer identity doubles as
// the cancellation token, so a caller can only withdraw its own
// registration and never a later one for the same URI.
type pendingAsset struct {
	cb AssetCallback
}

// assetChannel tracks outstanding asset requests keyed by URI. The server
// echoes the URI back in the response frame's topic field, which is the only
// correlation the protocol provides. Registration is last caller wins: a
// second request for a URI before the first response arrives silently
// replaces the earlier callback. Callers that need at-most-one-fetch
// semantics should route requests through a resolver.Resolver.
type assetChannel struct {
	mu      sync.Mutex
	pending map[string]*pendingAsset
}

func newAssetChannel() *assetChannel {
	return &assetChannel{
		pending: make(map[string]*pendingAsset),
	}
}

// register records the callback for uri, replacing any earlier registration,
// and returns the token identifying this registration.
func (a *assetChannel) register(uri string, cb AssetCallback) *pendingAsset {
	p := &pendingAsset{cb: cb}
	a.mu.Lock()
	a.pending[uri] = p
	a.mu.Unlock()
	return p
}

// cancel withdraws a registration, but only while it is still the current
// one for uri. A registration already replaced by a later caller stays put.
func (a *assetChannel) cancel(uri string, token *pendingAsset) {
	a.mu.Lock()
	if a.pending[uri] == token {
		delete(a.pending, uri)
	}
	a.mu.Unlock()
}

// take removes and returns the callback registered for uri.
func (a *assetChannel) take(uri string) (AssetCallback, bool) {
	a.mu.Lock()
	p, ok := a.pending[uri]
	if ok {
		delete(a.pending, uri)
	}
	a.mu.Unlock()
	if !ok {
		return nil, false
	}
	return p.cb, true
}

// failAll delivers err to every outstanding callback and empties the map.
// Called on disconnect, when no response can arrive anymore.
func (a *assetChannel) failAll(err error) {
	a.mu.Lock()
	pending := a.pending
	a.pending = make(map[string]*pendingAsset)
	a.mu.Unlock()

	for uri, p := range pending {
		if p.cb != nil {
			p.cb(uri, nil, err)
		}
	}
}

// outstanding returns the number of requests awaiting a response.
func (a *assetChannel) outstanding() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pending)
}
