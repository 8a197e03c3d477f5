package devicelink

import (
	"context"
	"sort"
	"sync"
)

// Factory constructs a new, not-yet-connected link for addr.
type Factory[L Link] func(addr Address) L

// Pool maps device IDs to links of one protocol family.
//
// Links are created lazily by Get and reused for every later command to the
// same device. Connection is deferred to the link's first command.
type Pool[L Link] struct {
	factory Factory[L]
	logger  Logger

	mu    sync.Mutex
	links map[string]*poolEntry[L]
}

type poolEntry[L Link] struct {
	addr Address
	link L
}

// NewPool creates an empty pool.
func NewPool[L Link](factory Factory[L], logger Logger) *Pool[L] {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Pool[L]{
		factory: factory,
		logger:  logger,
		links:   make(map[string]*poolEntry[L]),
	}
}

// Get returns the link registered for addr.DeviceID, creating one if needed.
//
// If a link exists but was built for a different host or port, it is torn
// down and replaced so that a device never has two live sockets.
func (p *Pool[L]) Get(addr Address) L {
	p.mu.Lock()
	entry, ok := p.links[addr.DeviceID]
	if ok && entry.addr == addr {
		p.mu.Unlock()
		return entry.link
	}
	if ok {
		delete(p.links, addr.DeviceID)
	}
	link := p.factory(addr)
	p.links[addr.DeviceID] = &poolEntry[L]{addr: addr, link: link}
	p.mu.Unlock()

	if ok {
		p.logger.Info("device address changed, replacing link",
			"device_id", addr.DeviceID,
			"old_address", entry.addr.HostPort(),
			"new_address", addr.HostPort(),
		)
		entry.link.Disconnect() //nolint:errcheck // Disconnect never fails
	}
	return link
}

// Lookup returns the link for deviceID without creating one.
func (p *Pool[L]) Lookup(deviceID string) (L, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	entry, ok := p.links[deviceID]
	if !ok {
		var zero L
		return zero, false
	}
	return entry.link, true
}

// TestConnection forces a connect attempt on the link for addr and reports
// the outcome without sending a command.
func (p *Pool[L]) TestConnection(ctx context.Context, addr Address) Result {
	link := p.Get(addr)
	if link.IsConnected() {
		return Result{Success: true, Message: "Connected to " + addr.HostPort()}
	}
	if err := link.Connect(ctx); err != nil {
		return Failure("", err.Error())
	}
	return Result{Success: true, Message: "Connected to " + addr.HostPort()}
}

// Status reports whether deviceID has a connected link. It never dials.
func (p *Pool[L]) Status(deviceID string) bool {
	link, ok := p.Lookup(deviceID)
	if !ok {
		return false
	}
	return link.IsConnected()
}

// Disconnect tears down and evicts the link for deviceID, if any.
func (p *Pool[L]) Disconnect(deviceID string) {
	p.mu.Lock()
	entry, ok := p.links[deviceID]
	delete(p.links, deviceID)
	p.mu.Unlock()

	if !ok {
		return
	}
	entry.link.Disconnect() //nolint:errcheck // Disconnect never fails
	p.logger.Debug("device link evicted", "device_id", deviceID)
}

// DisconnectAll tears down and evicts every link.
func (p *Pool[L]) DisconnectAll() {
	p.mu.Lock()
	entries := p.links
	p.links = make(map[string]*poolEntry[L])
	p.mu.Unlock()

	var wg sync.WaitGroup
	for _, entry := range entries {
		wg.Add(1)
		go func(l L) {
			defer wg.Done()
			l.Disconnect() //nolint:errcheck // Disconnect never fails
		}(entry.link)
	}
	wg.Wait()

	if len(entries) > 0 {
		p.logger.Info("device links closed", "count", len(entries))
	}
}

// DeviceIDs returns the IDs of all registered links, sorted.
func (p *Pool[L]) DeviceIDs() []string {
	p.mu.Lock()
	ids := make([]string, 0, len(p.links))
	for id := range p.links {
		ids = append(ids, id)
	}
	p.mu.Unlock()

	sort.Strings(ids)
	return ids
}

// Stats returns per-device statistics for every registered link.
func (p *Pool[L]) Stats() map[string]Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make(map[string]Stats, len(p.links))
	for id, entry := range p.links {
		out[id] = entry.link.Stats()
	}
	return out
}

// Len returns the number of registered links.
func (p *Pool[L]) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.links)
}
