// Package s2s implements the TS6-like server-to-server link manager:
// ServerNode bookkeeping, SID/UID identifiers, burst synchronization, and
// spanning-tree message relay, grounded on the burst/Bursting flow of a
// classic linking-layer LocalServer design.
package s2s

import (
	"sync"
	"time"
)

// ServerNode is one node in the network's spanning tree, local or remote.
type ServerNode struct {
	SID         string // 3-character server ID
	Name        string
	Description string
	HopCount    int
	Uplink      *ServerNode // nil for this server
	Introduced  time.Time

	mu        sync.RWMutex
	bursting  bool
	lastPing  time.Time
}

// NewServerNode constructs a ServerNode. uplink is nil for the local server.
func NewServerNode(sid, name, description string, uplink *ServerNode) *ServerNode {
	node := &ServerNode{
		SID:         sid,
		Name:        name,
		Description: description,
		Uplink:      uplink,
		Introduced:  time.Now(),
	}
	if uplink != nil {
		node.HopCount = uplink.HopCount + 1
	}
	return node
}

// SetBursting marks whether this link is still exchanging its initial burst.
func (n *ServerNode) SetBursting(bursting bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.bursting = bursting
}

// Bursting reports whether this link is still exchanging its initial burst.
func (n *ServerNode) Bursting() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.bursting
}

// Touch records a received PING/PONG keepalive from this link.
func (n *ServerNode) Touch() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.lastPing = time.Now()
}
