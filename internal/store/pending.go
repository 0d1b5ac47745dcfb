// Package store holds in-flight collaboration requests. The store is purely
// in-memory: losing pending requests on restart is a named trade-off of this
// system, not a defect.
package store

import (
	"sync"
	"sync/atomic"
	"time"

	"collabd/internal/model"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// ExpireFunc is invoked when a pending request outlives the store TTL without
// reaching a terminal state. It runs on the store's expiry goroutine.
type ExpireFunc func(*model.CollaborationRequest)

type entry struct {
	req  *model.CollaborationRequest
	done atomic.Bool
}

// Pending is the keyed store of non-terminal requests, keyed by channel ID,
// with a secondary index enforcing at most one live request per unordered
// (requester, target) pair. Entries expire after the configured TTL, which
// bounds how long a request can sit PENDING.
type Pending struct {
	lru      *expirable.LRU[string, *entry]
	onExpire ExpireFunc

	pairMu sync.Mutex
	pairs  map[string]string // pair key -> channel ID
}

func NewPending(maxSize int, ttl time.Duration, onExpire ExpireFunc) *Pending {
	p := &Pending{
		onExpire: onExpire,
		pairs:    make(map[string]string),
	}
	p.lru = expirable.NewLRU[string, *entry](maxSize, p.evicted, ttl)
	return p
}

// pairKey is order-insensitive so A→B and B→A collide.
func pairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + ":" + b
}

// Put records a new pending request. model.ErrDuplicateRequest when the pair
// already has a live request.
func (p *Pending) Put(req *model.CollaborationRequest) error {
	key := pairKey(req.RequesterID, req.TargetID)

	p.pairMu.Lock()
	if _, exists := p.pairs[key]; exists {
		p.pairMu.Unlock()
		return model.ErrDuplicateRequest
	}
	p.pairs[key] = req.ChannelID
	p.pairMu.Unlock()

	p.lru.Add(req.ChannelID, &entry{req: req})
	return nil
}

// Get returns the live request for a channel, if any.
func (p *Pending) Get(channelID string) (*model.CollaborationRequest, bool) {
	e, ok := p.lru.Get(channelID)
	if !ok || e.done.Load() {
		return nil, false
	}
	return e.req, true
}

// HasPair reports whether the unordered pair has a live request.
func (p *Pending) HasPair(requesterID, targetID string) bool {
	p.pairMu.Lock()
	defer p.pairMu.Unlock()
	_, ok := p.pairs[pairKey(requesterID, targetID)]
	return ok
}

// Has reports whether a channel holds a live request. Used by the reaper to
// spare freshly provisioned channels still awaiting a decision.
func (p *Pending) Has(channelID string) bool {
	_, ok := p.Get(channelID)
	return ok
}

// Complete atomically moves the request for a channel to a terminal status
// and removes it from the store. The second return is false when no live
// request exists, which makes repeated accept/reject presses no-ops.
func (p *Pending) Complete(channelID string, status model.Status) (*model.CollaborationRequest, bool) {
	e, ok := p.lru.Get(channelID)
	if !ok {
		return nil, false
	}
	if !e.done.CompareAndSwap(false, true) {
		return nil, false
	}
	e.req.Status = status

	p.pairMu.Lock()
	delete(p.pairs, pairKey(e.req.RequesterID, e.req.TargetID))
	p.pairMu.Unlock()

	p.lru.Remove(channelID)
	return e.req, true
}

// Len returns the number of live requests.
func (p *Pending) Len() int {
	return p.lru.Len()
}

// evicted runs for both explicit removal and TTL expiry; only the latter is a
// lifetime event. Completed entries were already handled by Complete.
func (p *Pending) evicted(channelID string, e *entry) {
	if !e.done.CompareAndSwap(false, true) {
		return
	}
	e.req.Status = model.StatusExpired

	p.pairMu.Lock()
	delete(p.pairs, pairKey(e.req.RequesterID, e.req.TargetID))
	p.pairMu.Unlock()

	if p.onExpire != nil {
		p.onExpire(e.req)
	}
}
