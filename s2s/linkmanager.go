package s2s

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// UserRecord is the minimal remote-user bookkeeping the link manager needs
// to route and resolve UIDs without depending on the core package (which
// imports s2s), keeping the dependency direction one-way.
type UserRecord struct {
	UID  string
	SID  string
	Nick string
}

// Peer is the write side of one active server link, satisfied by the
// connection type that owns the socket for that link.
type Peer interface {
	SendRaw(line string) error
	RemoteSID() string
}

// LinkManager tracks the network's spanning tree and routes traffic to the
// correct directly-connected peer(s).
type LinkManager struct {
	mu dispatcherMutex

	self  *ServerNode
	nodes map[string]*ServerNode // keyed by SID
	peers map[string]Peer        // keyed by the peer's SID, direct links only
	users map[string]*UserRecord // keyed by UID

	localConnID map[string]string // connection.remAddr -> assigned local ID, for pre-UID bookkeeping
}

type dispatcherMutex = sync.RWMutex

// NewLinkManager builds an empty link manager. Call SetSelf once the local
// server's SID/name are known from configuration.
func NewLinkManager() *LinkManager {
	return &LinkManager{
		nodes:       make(map[string]*ServerNode),
		peers:       make(map[string]Peer),
		users:       make(map[string]*UserRecord),
		localConnID: make(map[string]string),
	}
}

// SetSelf registers the local server's own node.
func (lm *LinkManager) SetSelf(self *ServerNode) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	lm.self = self
	lm.nodes[self.SID] = self
}

// Self returns the local server's node, or nil if SetSelf was never called.
func (lm *LinkManager) Self() *ServerNode {
	lm.mu.RLock()
	defer lm.mu.RUnlock()
	return lm.self
}

// AddLink registers a newly-established direct peer link and its ServerNode.
func (lm *LinkManager) AddLink(node *ServerNode, peer Peer) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	lm.nodes[node.SID] = node
	lm.peers[node.SID] = peer
}

// RemoveLink unlinks a direct peer (SQUIT) and cascades removal of every
// node whose path ran through it, returning the SIDs that were dropped.
func (lm *LinkManager) RemoveLink(sid string) []string {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	delete(lm.peers, sid)

	dropped := []string{sid}
	if _, ok := lm.nodes[sid]; !ok {
		return dropped
	}
	delete(lm.nodes, sid)

	changed := true
	for changed {
		changed = false
		for candidateSID, node := range lm.nodes {
			if node.Uplink == nil {
				continue
			}
			for _, d := range dropped {
				if node.Uplink.SID == d {
					delete(lm.nodes, candidateSID)
					dropped = append(dropped, candidateSID)
					changed = true
					break
				}
			}
		}
	}

	for uid, user := range lm.users {
		for _, d := range dropped {
			if user.SID == d {
				delete(lm.users, uid)
				break
			}
		}
	}

	return dropped
}

// Node looks up a known server node by SID.
func (lm *LinkManager) Node(sid string) (*ServerNode, bool) {
	lm.mu.RLock()
	defer lm.mu.RUnlock()
	node, ok := lm.nodes[sid]
	return node, ok
}

// RegisterUser records a (possibly remote) user's UID->SID/nick mapping,
// established during EUID burst or a live NICK/UID introduction.
func (lm *LinkManager) RegisterUser(rec *UserRecord) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	lm.users[rec.UID] = rec
}

// UnregisterUser drops a UID mapping on QUIT.
func (lm *LinkManager) UnregisterUser(uid string) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	delete(lm.users, uid)
}

// ResolveUID looks up the user record for a UID.
func (lm *LinkManager) ResolveUID(uid string) (*UserRecord, bool) {
	lm.mu.RLock()
	defer lm.mu.RUnlock()
	rec, ok := lm.users[uid]
	return rec, ok
}

// NewConnectionID allocates a collision-resistant local identifier for a
// not-yet-registered inbound connection, distinct from the fixed-width
// wire-format UID assigned once a user session exists on this server.
func (lm *LinkManager) NewConnectionID() string {
	return uuid.NewString()
}

// Broadcast relays a raw protocol line to every direct peer except the one
// whose SID is excludeSID (typically the line's origin, to avoid echo).
func (lm *LinkManager) Broadcast(line string, excludeSID string) {
	lm.mu.RLock()
	defer lm.mu.RUnlock()

	for sid, peer := range lm.peers {
		if sid == excludeSID {
			continue
		}
		_ = peer.SendRaw(line)
	}
}

// RouteToSID sends a raw protocol line toward a specific server, following
// the spanning tree one hop at a time: if sid is a direct peer, it is sent
// directly; otherwise it is forwarded via that node's uplink chain toward
// the next hop.
func (lm *LinkManager) RouteToSID(sid, line string) error {
	lm.mu.RLock()
	defer lm.mu.RUnlock()

	if peer, ok := lm.peers[sid]; ok {
		return peer.SendRaw(line)
	}

	node, ok := lm.nodes[sid]
	if !ok {
		return fmt.Errorf("s2s: unknown server SID %q", sid)
	}

	for hop := node; hop != nil; hop = hop.Uplink {
		if peer, ok := lm.peers[hop.SID]; ok {
			return peer.SendRaw(line)
		}
	}

	return fmt.Errorf("s2s: no route to server SID %q", sid)
}
