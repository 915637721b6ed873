/*
   Copyright (c) 2023, btnmasher
   All rights reserved.
   Use of this source code is governed by a BSD-style
   license that can be found in the LICENSE file.
*/

package corvid

import (
	"sync"

	"golang.org/x/time/rate"
)

// Limiters holds the server-wide and per-connection token buckets backing
// the flood-protection policy: a global accept-rate limiter plus one
// command/message bucket allocated per connection on demand.
type Limiters struct {
	Enabled bool

	connectionsPerMinute rate.Limit
	messagesPerSecond    rate.Limit
	commandsPerSecond    rate.Limit

	accept *rate.Limiter

	mu    sync.Mutex
	conns map[*Conn]*connLimiter
}

type connLimiter struct {
	messages *rate.Limiter
	commands *rate.Limiter
}

// NewLimiters builds the flood-protection limiter set from configured
// per-second/per-minute rates. Passing enabled=false makes every Allow*
// call a no-op that always permits the action.
func NewLimiters(enabled bool, messagesPerSecond, commandsPerSecond, connectionsPerMinute float64) *Limiters {
	return &Limiters{
		Enabled:              enabled,
		messagesPerSecond:    rate.Limit(messagesPerSecond),
		commandsPerSecond:    rate.Limit(commandsPerSecond),
		connectionsPerMinute: rate.Limit(connectionsPerMinute / 60),
		accept:               rate.NewLimiter(rate.Limit(connectionsPerMinute/60), int(connectionsPerMinute)+1),
		conns:                make(map[*Conn]*connLimiter),
	}
}

// AllowAccept reports whether a newly-accepted connection should be let
// through the global connections-per-minute bucket.
func (l *Limiters) AllowAccept() bool {
	if !l.Enabled {
		return true
	}
	return l.accept.Allow()
}

// Register allocates per-connection buckets for a newly-registered
// connection. Must be paired with Unregister on disconnect.
func (l *Limiters) Register(conn *Conn) {
	if !l.Enabled {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.conns[conn] = &connLimiter{
		messages: rate.NewLimiter(l.messagesPerSecond, int(l.messagesPerSecond)+1),
		commands: rate.NewLimiter(l.commandsPerSecond, int(l.commandsPerSecond)+1),
	}
}

// Unregister releases a connection's buckets.
func (l *Limiters) Unregister(conn *Conn) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.conns, conn)
}

// AllowMessage reports whether conn may send another PRIVMSG/NOTICE this
// instant.
func (l *Limiters) AllowMessage(conn *Conn) bool {
	return l.allow(conn, func(cl *connLimiter) *rate.Limiter { return cl.messages })
}

// AllowCommand reports whether conn may issue another command this instant.
func (l *Limiters) AllowCommand(conn *Conn) bool {
	return l.allow(conn, func(cl *connLimiter) *rate.Limiter { return cl.commands })
}

func (l *Limiters) allow(conn *Conn, pick func(*connLimiter) *rate.Limiter) bool {
	if !l.Enabled {
		return true
	}

	l.mu.Lock()
	cl, ok := l.conns[conn]
	l.mu.Unlock()

	if !ok {
		return true
	}
	return pick(cl).Allow()
}
