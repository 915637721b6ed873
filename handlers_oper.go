/*
   Copyright (c) 2023, btnmasher
   All rights reserved.
   Use of this source code is governed by a BSD-style
   license that can be found in the LICENSE file.
*/

package corvid

import (
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/corvid-irc/corvid/ban"
	"github.com/corvid-irc/corvid/config"
)

// registerOperatorHandlers wires the commands that require network operator
// privileges: OPER, KLINE, UNKLINE, GLINE, REHASH, SQUIT and CONNECT.
func registerOperatorHandlers(router *Router) {
	router.HandleSpec(CmdOper, CommandSpec{MinParams: 2}, handleOper)
	router.HandleSpec(CmdKline, CommandSpec{MinParams: 1, RequiresRegistration: true, RequiresOperator: true}, handleKline)
	router.HandleSpec(CmdUnkline, CommandSpec{MinParams: 1, RequiresRegistration: true, RequiresOperator: true}, handleUnkline)
	router.HandleSpec(CmdGline, CommandSpec{MinParams: 1, RequiresRegistration: true, RequiresOperator: true}, handleGline)
	router.HandleSpec(CmdRehash, CommandSpec{RequiresRegistration: true, RequiresOperator: true}, handleRehash)
	router.HandleSpec(CmdSquit, CommandSpec{MinParams: 1, RequiresRegistration: true, RequiresOperator: true}, handleSquit)
	router.HandleSpec(CmdConnect, CommandSpec{MinParams: 1, RequiresRegistration: true, RequiresOperator: true}, handleConnect)
}

// handleOper processes an OPER command.
//
//    Command: OPER
//    Parameters: <name> <password>
func handleOper(ctx *MessageContext) {
	conn, msg := ctx.Conn, ctx.Msg
	name, password := msg.Params[0], msg.Params[1]

	hash, known := conn.server.Opers[name]
	if !known || bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		reply := conn.newMessage()
		defer msgpool.Recycle(reply)
		reply.Code = ReplyPasswordMistmatch
		reply.Params = []string{conn.user.Nick()}
		reply.Text = "Password incorrect"
		conn.Write(reply.RenderBuffer())
		return
	}

	conn.user.SetPerm(UPermNetOp)

	reply := conn.newMessage()
	defer msgpool.Recycle(reply)
	reply.Code = ReplyYoureOper
	reply.Params = []string{conn.user.Nick()}
	reply.Text = "You are now a network operator"
	conn.Write(reply.RenderBuffer())
}

// handleKline processes a KLINE command, installing a local ban enforced
// only by this server.
//
//    Command: KLINE
//    Parameters: <mask> [:<reason>]
func handleKline(ctx *MessageContext) {
	conn, msg := ctx.Conn, ctx.Msg
	addBan(conn, ban.KindKLine, msg)
}

// handleUnkline processes an UNKLINE command.
//
//    Command: UNKLINE
//    Parameters: <mask>
func handleUnkline(ctx *MessageContext) {
	conn, msg := ctx.Conn, ctx.Msg
	removeBan(conn, ban.KindKLine, msg.Params[0])
}

// handleGline processes a GLINE command, installing a ban that a full
// deployment propagates network-wide over server links.
//
//    Command: GLINE
//    Parameters: <mask> [:<reason>]
func handleGline(ctx *MessageContext) {
	conn, msg := ctx.Conn, ctx.Msg
	addBan(conn, ban.KindGLine, msg)
}

func addBan(conn *Conn, kind ban.Kind, msg *Message) {
	reason := msg.Text
	if reason == "" {
		reason = "No reason given"
	}

	conn.server.Bans.Add(ban.Entry{
		Kind:   kind,
		Mask:   msg.Params[0],
		Reason: reason,
		SetBy:  conn.user.Nick(),
		SetAt:  time.Now(),
	})

	notice := conn.newMessage()
	defer msgpool.Recycle(notice)
	notice.Sender = conn.server.Hostname()
	notice.Command = CmdNotice
	notice.Params = []string{conn.user.Nick()}
	notice.Text = "Added ban for " + msg.Params[0]
	conn.Write(notice.RenderBuffer())
}

func removeBan(conn *Conn, kind ban.Kind, mask string) {
	removed := conn.server.Bans.Remove(kind, mask)

	notice := conn.newMessage()
	defer msgpool.Recycle(notice)
	notice.Sender = conn.server.Hostname()
	notice.Command = CmdNotice
	notice.Params = []string{conn.user.Nick()}
	if removed {
		notice.Text = "Removed ban for " + mask
	} else {
		notice.Text = "No such ban: " + mask
	}
	conn.Write(notice.RenderBuffer())
}

// handleRehash processes a REHASH command. Live configuration reload is not
// supported; this acknowledges the request without reloading anything.
//
//    Command: REHASH
func handleRehash(ctx *MessageContext) {
	conn := ctx.Conn
	reply := conn.newMessage()
	defer msgpool.Recycle(reply)
	reply.Code = ReplyRehashing
	reply.Params = []string{conn.user.Nick()}
	reply.Text = "Rehashing"
	conn.Write(reply.RenderBuffer())
}

// handleSquit processes a SQUIT command, tearing down a server link if one
// by the given name or SID is currently established.
//
//    Command: SQUIT
//    Parameters: <server> [:<comment>]
func handleSquit(ctx *MessageContext) {
	conn, msg := ctx.Conn, ctx.Msg
	target := msg.Params[0]

	node, ok := conn.server.Links.Node(target)
	if !ok {
		conn.ReplyNoSuchServer(target)
		return
	}

	// Closing the socket unblocks readLink's Scan, whose deferred cleanup
	// removes the link from both the LinkManager and the peer registry.
	conn.server.linkPeersMu.Lock()
	peer, linked := conn.server.linkPeers[node.SID]
	conn.server.linkPeersMu.Unlock()

	if linked {
		peer.sock.Close()
	} else {
		conn.server.Links.RemoveLink(node.SID)
	}

	notice := conn.newMessage()
	defer msgpool.Recycle(notice)
	notice.Sender = conn.server.Hostname()
	notice.Command = CmdNotice
	notice.Params = []string{conn.user.Nick()}
	notice.Text = "Link to " + target + " closed"
	conn.Write(notice.RenderBuffer())
}

// handleConnect processes a CONNECT command, dialing a configured link by
// name and completing its PASS/SERVER handshake.
//
//    Command: CONNECT
//    Parameters: <server> [port] [remote]
func handleConnect(ctx *MessageContext) {
	conn, msg := ctx.Conn, ctx.Msg

	var link *config.LinkBlock
	for i := range conn.server.LinkConfigs {
		if strings.EqualFold(conn.server.LinkConfigs[i].Name, msg.Params[0]) {
			link = &conn.server.LinkConfigs[i]
			break
		}
	}

	notice := conn.newMessage()
	defer msgpool.Recycle(notice)
	notice.Sender = conn.server.Hostname()
	notice.Command = CmdNotice
	notice.Params = []string{conn.user.Nick()}

	if link == nil {
		notice.Text = "No such configured link: " + msg.Params[0]
		conn.Write(notice.RenderBuffer())
		return
	}

	if err := conn.server.ConnectLink(*link); err != nil {
		log.Errorf("irc: CONNECT %s failed: %s", link.Name, err)
		notice.Text = "Could not connect to " + link.Name + ": " + err.Error()
		conn.Write(notice.RenderBuffer())
		return
	}

	notice.Text = "Connection to " + link.Name + " established"
	conn.Write(notice.RenderBuffer())
}
