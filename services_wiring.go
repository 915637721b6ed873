/*
   Copyright (c) 2023, btnmasher
   All rights reserved.
   Use of this source code is governed by a BSD-style
   license that can be found in the LICENSE file.
*/

package corvid

import (
	"strings"

	"github.com/corvid-irc/corvid/ban"
	"github.com/corvid-irc/corvid/services"
)

// registerServices builds and attaches the standard pseudo-user service
// roster (NickServ, ChanServ, MemoServ, HostServ, BotServ, OperServ) to the
// server's service dispatcher, each addressed over PRIVMSG by its reserved
// nickname.
func (server *Server) registerServices() {
	server.Services.Add(services.NewNickServ("00SNICKSERV", server.Accounts))
	server.Services.Add(services.NewChanServ("00SCHANSERV", services.NewChannelStore()))
	server.Services.Add(services.NewMemoServ("00SMEMOSERV", services.NewMemoStore()))
	server.Services.Add(services.NewHostServ("00SHOSTSERV", services.NewVHostStore()))
	server.Services.Add(services.NewBotServ("00SBOTSERV", services.NewBotStore()))
	server.Services.Add(services.NewOperServ("00SOPERSERV", server.onAkill, server.onGlobal))
}

// onAkill is invoked by OperServ's AKILL command to install a network-wide
// ban in the server's ban engine.
func (server *Server) onAkill(args []string) string {
	if len(args) < 1 {
		return "AKILL <mask> [reason]"
	}

	reason := "No reason given"
	if len(args) > 1 {
		reason = strings.Join(args[1:], " ")
	}

	server.Bans.Add(ban.Entry{
		Kind:   ban.KindGLine,
		Mask:   args[0],
		Reason: reason,
		SetBy:  "OperServ",
	})

	return "Added network-wide ban for " + args[0]
}

// onGlobal is invoked by OperServ's GLOBAL command to broadcast a notice to
// every currently-connected client.
func (server *Server) onGlobal(args []string) string {
	text := strings.Join(args, " ")

	server.Conns.ForEach(func(conn *Conn) {
		conn.SendNotice(server.Hostname(), text)
	})

	return "Message broadcast to all users."
}
