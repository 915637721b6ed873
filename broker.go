/*
   Copyright (c) 2023, btnmasher
   All rights reserved.
   Use of this source code is governed by a BSD-style
   license that can be found in the LICENSE file.
*/

package corvid

import (
	"bytes"

	"github.com/corvid-irc/corvid/caps"
)

// Broker fans out already-built Messages to local connections, trimming
// IRCv3 message tags down to whatever each recipient's negotiated
// capabilities allow before handing the render off to Conn.Write, which
// itself disconnects any recipient whose write queue can't keep up.
type Broker struct {
	server *Server
}

// NewBroker returns a Broker bound to server.
func NewBroker(server *Server) *Broker {
	return &Broker{server: server}
}

// tagsFor trims msg.Tags down to what conn negotiated: the whole set is
// dropped if the connection never requested message-tags, and individual
// tags gated behind their own capability (server-time, account-tag) are
// dropped if that capability wasn't separately negotiated.
func tagsFor(conn *Conn, msg *Message) map[string]string {
	if len(msg.Tags) == 0 {
		return nil
	}

	if !conn.caps.Enabled(caps.MessageTags) {
		return nil
	}

	filtered := make(map[string]string, len(msg.Tags))
	for key, value := range msg.Tags {
		switch key {
		case "time":
			if !conn.caps.Enabled(caps.ServerTime) {
				continue
			}
		case "account":
			if !conn.caps.Enabled(caps.AccountTag) {
				continue
			}
		}
		filtered[key] = value
	}

	if len(filtered) == 0 {
		return nil
	}

	return filtered
}

// renderFor renders msg for a specific recipient, substituting its tag set
// for the duration of the render so the shared Message isn't mutated for
// other recipients.
func renderFor(conn *Conn, msg *Message) *bytes.Buffer {
	original := msg.Tags
	msg.Tags = tagsFor(conn, msg)
	buf := msg.RenderBuffer()
	msg.Tags = original
	return buf
}

// SendToConnection delivers msg to a single local connection.
func (b *Broker) SendToConnection(conn *Conn, msg *Message) {
	conn.Write(renderFor(conn, msg))
}

// SendToChannel delivers msg to every member of channel except the nick
// named by exclude (typically the originating sender, for echo-message
// handling by the caller).
func (b *Broker) SendToChannel(channel *Channel, msg *Message, exclude string) {
	channel.Nicks.ForEach(func(user *User) {
		if user.Nick() == exclude {
			return
		}
		b.SendToConnection(user.conn, msg)
	})
}

// SendToChannels delivers msg to every member of every given channel,
// without delivering twice to a user joined to more than one.
func (b *Broker) SendToChannels(channels []*Channel, msg *Message, exclude string) {
	seen := make(map[string]bool)

	for _, channel := range channels {
		channel.Nicks.ForEach(func(user *User) {
			nick := user.Nick()
			if nick == exclude || seen[nick] {
				return
			}
			seen[nick] = true
			b.SendToConnection(user.conn, msg)
		})
	}
}

// SendToOperators delivers msg (typically a WALLOPS) to every local,
// registered network operator.
func (b *Broker) SendToOperators(msg *Message) {
	b.server.Nicks.ForEach(func(user *User) {
		if user.Perm() >= UPermNetOp && user.conn != nil {
			b.SendToConnection(user.conn, msg)
		}
	})
}
