/*
   Copyright (c) 2023, btnmasher
   All rights reserved.
   Use of this source code is governed by a BSD-style
   license that can be found in the LICENSE file.
*/

package corvid

import (
	"net"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/corvid-irc/corvid/caps"
)

// registerExtensionHandlers wires commands contributed by IRCv3/ircd
// extensions outside the core RFC2812 command set: WEBIRC, SETNAME and
// CHGHOST.
func registerExtensionHandlers(router *Router) {
	router.HandleSpec(CmdWebirc, CommandSpec{MinParams: 4}, handleWebirc)
	router.HandleSpec(CmdSetname, CommandSpec{MinParams: 1, RequiresRegistration: true}, handleSetname)
	router.HandleSpec(CmdChghost, CommandSpec{MinParams: 3, RequiresRegistration: true, RequiresOperator: true}, handleChghost)
}

// handleWebirc processes a WEBIRC command from a trusted gateway, spoofing
// the connecting client's apparent hostname before registration completes.
//
//    Command: WEBIRC
//    Parameters: <password> <gateway> <hostname> <ip>
func handleWebirc(ctx *MessageContext) {
	conn, msg := ctx.Conn, ctx.Msg
	if conn.registered {
		return
	}

	password, hostname, ip := msg.Params[0], msg.Params[2], msg.Params[3]

	peer, _, err := net.SplitHostPort(conn.remAddr)
	if err != nil {
		peer = conn.remAddr
	}

	for _, gw := range conn.server.Webirc {
		if gw.TrustedSource != peer {
			continue
		}
		if bcrypt.CompareHashAndPassword([]byte(gw.PasswordHash), []byte(password)) == nil {
			conn.user.SetHostname(hostname)
			conn.remAddr = ip
			return
		}
	}
}

// handleSetname processes a SETNAME command, updating the client's realname
// and informing channel peers who negotiated the setname capability.
//
//    Command: SETNAME
//    Parameters: <realname>
func handleSetname(ctx *MessageContext) {
	conn, msg := ctx.Conn, ctx.Msg
	conn.user.SetRealname(msg.Text)

	announce := conn.newMessage()
	defer msgpool.Recycle(announce)
	announce.Sender = conn.user.Hostmask()
	announce.Command = CmdSetname
	announce.Text = msg.Text

	conn.channels.ForEach(func(channel *Channel) {
		channel.Nicks.ForEach(func(member *User) {
			if member.conn != nil && member.conn.caps.Enabled(caps.Setname) {
				conn.server.Broker.SendToConnection(member.conn, announce)
			}
		})
	})
}

// handleChghost processes a CHGHOST command, issued by a network operator
// or service to change a client's displayed username/host and inform
// channel peers who negotiated the chghost capability.
//
//    Command: CHGHOST
//    Parameters: <nickname> <new-username> <new-host>
func handleChghost(ctx *MessageContext) {
	conn, msg := ctx.Conn, ctx.Msg
	target, err := conn.server.Nicks.Get(strings.ToLower(msg.Params[0]))
	if err != nil {
		conn.ReplyNoSuchNick(msg.Params[0])
		return
	}

	target.SetName(msg.Params[1])
	target.SetHostname(msg.Params[2])

	announce := conn.newMessage()
	defer msgpool.Recycle(announce)
	announce.Sender = target.Hostmask()
	announce.Command = CmdChghost
	announce.Params = []string{msg.Params[1], msg.Params[2]}

	if target.conn != nil {
		target.conn.channels.ForEach(func(channel *Channel) {
			channel.Nicks.ForEach(func(member *User) {
				if member.conn != nil && member.conn.caps.Enabled(caps.ChgHost) {
					conn.server.Broker.SendToConnection(member.conn, announce)
				}
			})
		})
	}
}
