/*
   Copyright (c) 2023, btnmasher
   All rights reserved.
   Use of this source code is governed by a BSD-style
   license that can be found in the LICENSE file.
*/

package corvid

import (
	"strconv"
	"strings"
)

// registerQueryHandlers wires the informational query commands that do not
// mutate any state: WHO, WHOIS, WHOWAS, LIST, NAMES, MOTD, LUSERS, VERSION,
// ISON and MONITOR.
func registerQueryHandlers(router *Router) {
	router.HandleSpec(CmdWho, CommandSpec{RequiresRegistration: true}, handleWho)
	router.HandleSpec(CmdWhois, CommandSpec{MinParams: 1, RequiresRegistration: true}, handleWhois)
	router.HandleSpec(CmdWhowas, CommandSpec{MinParams: 1, RequiresRegistration: true}, handleWhowas)
	router.HandleSpec(CmdList, CommandSpec{RequiresRegistration: true}, handleList)
	router.HandleSpec(CmdNames, CommandSpec{RequiresRegistration: true}, handleNames)
	router.HandleSpec(CmdMotd, CommandSpec{}, handleMotd)
	router.HandleSpec(CmdLusers, CommandSpec{}, handleLusers)
	router.HandleSpec(CmdVersion, CommandSpec{}, handleVersion)
	router.HandleSpec(CmdIson, CommandSpec{MinParams: 1, RequiresRegistration: true}, handleIson)
	router.HandleSpec(CmdMonitor, CommandSpec{MinParams: 1, RequiresRegistration: true}, handleMonitor)
}

// handleWho processes a WHO command.
//
//    Command: WHO
//    Parameters: [<mask>]
func handleWho(ctx *MessageContext) {
	conn := ctx.Conn
	mask := ""
	if len(ctx.Msg.Params) > 0 {
		mask = strings.ToLower(ctx.Msg.Params[0])
	}

	emit := func(user *User) {
		reply := conn.newMessage()
		defer msgpool.Recycle(reply)
		reply.Code = ReplyWho
		reply.Params = []string{
			conn.user.Nick(),
			"*",
			user.Name(),
			user.Host(),
			conn.server.Hostname(),
			user.Nick(),
			"H",
		}
		reply.Text = "0 " + user.Realname()
		conn.Write(reply.RenderBuffer())
	}

	if channel, err := conn.server.Channels.Get(mask); err == nil {
		channel.Nicks.ForEach(emit)
	} else {
		conn.server.Nicks.ForEach(func(user *User) {
			if mask == "" || strings.Contains(strings.ToLower(user.Nick()), mask) {
				emit(user)
			}
		})
	}

	end := conn.newMessage()
	defer msgpool.Recycle(end)
	end.Code = ReplyEndOfWho
	end.Params = []string{conn.user.Nick(), mask}
	end.Text = "End of /WHO list."
	conn.Write(end.RenderBuffer())
}

// handleWhois processes a WHOIS command.
//
//    Command: WHOIS
//    Parameters: <nickname>
func handleWhois(ctx *MessageContext) {
	conn, msg := ctx.Conn, ctx.Msg
	target, err := conn.server.Nicks.Get(strings.ToLower(msg.Params[0]))
	if err != nil {
		conn.ReplyNoSuchNick(msg.Params[0])
		return
	}

	user := conn.newMessage()
	defer msgpool.Recycle(user)
	user.Code = ReplyWhoisUser
	user.Params = []string{conn.user.Nick(), target.Nick(), target.Name(), target.Host(), "*"}
	user.Text = target.Realname()
	conn.Write(user.RenderBuffer())

	server := conn.newMessage()
	defer msgpool.Recycle(server)
	server.Code = ReplyWhoisServer
	server.Params = []string{conn.user.Nick(), target.Nick(), conn.server.Hostname()}
	server.Text = conn.server.Network()
	conn.Write(server.RenderBuffer())

	if target.IsIdentified() {
		loggedIn := conn.newMessage()
		defer msgpool.Recycle(loggedIn)
		loggedIn.Code = ReplyWhoisUser
		loggedIn.Params = []string{conn.user.Nick(), target.Nick(), target.Account()}
		loggedIn.Text = "is logged in as"
		conn.Write(loggedIn.RenderBuffer())
	}

	if target.Perm() >= UPermNetOp {
		oper := conn.newMessage()
		defer msgpool.Recycle(oper)
		oper.Code = ReplyWhoisOperator
		oper.Params = []string{conn.user.Nick(), target.Nick()}
		oper.Text = "is a network operator"
		conn.Write(oper.RenderBuffer())
	}

	end := conn.newMessage()
	defer msgpool.Recycle(end)
	end.Code = ReplyEndOfWhois
	end.Params = []string{conn.user.Nick(), target.Nick()}
	end.Text = "End of /WHOIS list."
	conn.Write(end.RenderBuffer())
}

// handleWhowas processes a WHOWAS command.
//
//    Command: WHOWAS
//    Parameters: <nickname>
func handleWhowas(ctx *MessageContext) {
	conn, msg := ctx.Conn, ctx.Msg
	entries := conn.server.WhoWas.Get(msg.Params[0])

	if len(entries) == 0 {
		reply := conn.newMessage()
		defer msgpool.Recycle(reply)
		reply.Code = ReplyWasNoSuchNick
		reply.Params = []string{conn.user.Nick(), msg.Params[0]}
		reply.Text = "There was no such nickname"
		conn.Write(reply.RenderBuffer())
	}

	for i := len(entries) - 1; i >= 0; i-- {
		entry := entries[i]
		reply := conn.newMessage()
		reply.Code = ReplyWhoWasUser
		reply.Params = []string{conn.user.Nick(), entry.Nick, entry.Name, entry.Host, "*"}
		reply.Text = entry.Real
		conn.Write(reply.RenderBuffer())
		msgpool.Recycle(reply)
	}

	end := conn.newMessage()
	defer msgpool.Recycle(end)
	end.Code = ReplyEndOfWhoWas
	end.Params = []string{conn.user.Nick(), msg.Params[0]}
	end.Text = "End of WHOWAS"
	conn.Write(end.RenderBuffer())
}

// handleList processes a LIST command.
//
//    Command: LIST
//    Parameters: [<channel>{,<channel>}]
func handleList(ctx *MessageContext) {
	conn := ctx.Conn

	start := conn.newMessage()
	start.Code = ReplyListStart
	start.Params = []string{conn.user.Nick()}
	start.Text = "Channel :Users  Name"
	conn.Write(start.RenderBuffer())
	msgpool.Recycle(start)

	conn.server.Channels.ForEach(func(channel *Channel) {
		reply := conn.newMessage()
		reply.Code = ReplyList
		reply.Params = []string{conn.user.Nick(), channel.Name(), strconv.Itoa(channel.Nicks.Length())}
		reply.Text = channel.Topic()
		conn.Write(reply.RenderBuffer())
		msgpool.Recycle(reply)
	})

	end := conn.newMessage()
	defer msgpool.Recycle(end)
	end.Code = ReplyEndOfList
	end.Params = []string{conn.user.Nick()}
	end.Text = "End of /LIST"
	conn.Write(end.RenderBuffer())
}

// handleNames processes a NAMES command.
//
//    Command: NAMES
//    Parameters: [<channel>{,<channel>}]
func handleNames(ctx *MessageContext) {
	conn, msg := ctx.Conn, ctx.Msg

	if len(msg.Params) < 1 {
		conn.server.Channels.ForEach(func(channel *Channel) {
			conn.ReplyChannelNames(channel)
		})
		return
	}

	channel, err := conn.server.Channels.Get(strings.ToLower(msg.Params[0]))
	if err != nil {
		conn.ReplyNoSuchChan(msg.Params[0])
		return
	}

	conn.ReplyChannelNames(channel)
}

// handleMotd processes a MOTD command.
//
//    Command: MOTD
func handleMotd(ctx *MessageContext) {
	conn := ctx.Conn
	motd := conn.server.MOTD()

	if motd == "" {
		reply := conn.newMessage()
		defer msgpool.Recycle(reply)
		reply.Code = ReplyNoMOTD
		reply.Params = []string{conn.nickOrStar()}
		reply.Text = "MOTD File is missing"
		conn.Write(reply.RenderBuffer())
		return
	}

	start := conn.newMessage()
	start.Code = ReplyMOTDStart
	start.Params = []string{conn.nickOrStar()}
	start.Text = "- " + conn.server.Hostname() + " Message of the day -"
	conn.Write(start.RenderBuffer())
	msgpool.Recycle(start)

	for _, line := range strings.Split(motd, "\n") {
		reply := conn.newMessage()
		reply.Code = ReplyMOTD
		reply.Params = []string{conn.nickOrStar()}
		reply.Text = "- " + line
		conn.Write(reply.RenderBuffer())
		msgpool.Recycle(reply)
	}

	end := conn.newMessage()
	defer msgpool.Recycle(end)
	end.Code = ReplyEndOFMOTD
	end.Params = []string{conn.nickOrStar()}
	end.Text = "End of /MOTD command."
	conn.Write(end.RenderBuffer())
}

// handleLusers processes a LUSERS command.
//
//    Command: LUSERS
func handleLusers(ctx *MessageContext) {
	conn := ctx.Conn

	client := conn.newMessage()
	client.Code = ReplyUsersOnlineGlobal
	client.Params = []string{conn.nickOrStar()}
	client.Text = strconv.Itoa(conn.server.Users.Length()) + " users and 0 services on 1 server"
	conn.Write(client.RenderBuffer())
	msgpool.Recycle(client)

	channels := conn.newMessage()
	channels.Code = ReplyChannelCount
	channels.Params = []string{conn.nickOrStar(), strconv.Itoa(conn.server.Channels.Length())}
	channels.Text = "channels formed"
	conn.Write(channels.RenderBuffer())
	msgpool.Recycle(channels)

	me := conn.newMessage()
	defer msgpool.Recycle(me)
	me.Code = ReplyUsersOnlineLocal
	me.Params = []string{conn.nickOrStar()}
	me.Text = "I have " + strconv.Itoa(conn.server.Conns.Length()) + " clients and 1 server"
	conn.Write(me.RenderBuffer())
}

// handleVersion processes a VERSION command.
//
//    Command: VERSION
func handleVersion(ctx *MessageContext) {
	conn := ctx.Conn
	reply := conn.newMessage()
	defer msgpool.Recycle(reply)
	reply.Code = ReplyVersion
	reply.Params = []string{conn.nickOrStar(), ServerVersion, conn.server.Hostname()}
	reply.Text = "corvid IRC daemon"
	conn.Write(reply.RenderBuffer())
}

// handleIson processes an ISON command.
//
//    Command: ISON
//    Parameters: <nickname>{ <nickname>}
func handleIson(ctx *MessageContext) {
	conn, msg := ctx.Conn, ctx.Msg

	var online []string
	for _, nick := range msg.Params {
		if conn.server.Nicks.Exists(strings.ToLower(nick)) {
			online = append(online, nick)
		}
	}

	reply := conn.newMessage()
	defer msgpool.Recycle(reply)
	reply.Code = ReplyIsOn
	reply.Params = []string{conn.user.Nick()}
	reply.Text = strings.Join(online, " ")
	conn.Write(reply.RenderBuffer())
}

// handleMonitor processes a MONITOR command. No monitor list is kept: the
// +, - and C subcommands are accepted and ignored, and L and S always report
// an empty list.
func handleMonitor(ctx *MessageContext) {
	conn, msg := ctx.Conn, ctx.Msg
	sub := strings.ToUpper(msg.Params[0])

	switch sub {
	case "+", "-", "C":
		// No subscription state is tracked; nothing is sent in reply.
	case "L", "S":
		reply := conn.newMessage()
		defer msgpool.Recycle(reply)
		reply.Command = CmdMonitor
		reply.Text = "Monitor list is empty"
		conn.Write(reply.RenderBuffer())
	}
}
