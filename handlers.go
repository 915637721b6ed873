/*
   Copyright (c) 2020, btnmasher
   All rights reserved.

   Redistribution and use in source and binary forms, with or without modification, are permitted provided that
   the following conditions are met:

   1. Redistributions of source code must retain the above copyright notice, this list of conditions and the
      following disclaimer.

   2. Redistributions in binary form must reproduce the above copyright notice, this list of conditions and
      the following disclaimer in the documentation and/or other materials provided with the distribution.

   3. Neither the name of the copyright holder nor the names of its contributors may be used to endorse or
      promote products derived from this software without specific prior written permission.

   THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND CONTRIBUTORS "AS IS" AND ANY EXPRESS OR IMPLIED
   WARRANTIES, INCLUDING, BUT NOT LIMITED TO, THE IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS FOR A
   PARTICULAR PURPOSE ARE DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR CONTRIBUTORS BE LIABLE FOR
   ANY DIRECT, INDIRECT, INCIDENTAL, SPECIAL, EXEMPLARY, OR CONSEQUENTIAL DAMAGES (INCLUDING, BUT NOT LIMITED
   TO, PROCUREMENT OF SUBSTITUTE GOODS OR SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS INTERRUPTION)
   HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY, WHETHER IN CONTRACT, STRICT LIABILITY, OR TORT (INCLUDING
   NEGLIGENCE OR OTHERWISE) ARISING IN ANY WAY OUT OF THE USE OF THIS SOFTWARE, EVEN IF ADVISED OF THE
   POSSIBILITY OF SUCH DAMAGE.
*/

package corvid

import (
	"bytes"
	"strings"

	"github.com/corvid-irc/corvid/ban"
	"github.com/corvid-irc/corvid/caps"
	"github.com/corvid-irc/corvid/sasl"
)

// All of command handler functions do not return an error. Instead it
// must process all error conditions relating to the command and reply
// to the user in the correct way specified by RFC2812.

// handleQuit processes a QUIT command.
//
//    Command: QUIT
//    Parameters: :<reason>
func handleQuit(ctx *MessageContext) {
	ctx.Conn.doQuit(ctx.Msg.Text)
}

// handleNick processes a NICK command.
//
//    Command: NICK
//    Parameters: <nickname>
func handleNick(ctx *MessageContext) {
	conn, msg := ctx.Conn, ctx.Msg
	ok := true

	if !enoughParams(msg, 1) {
		conn.ReplyNoNicknameGiven()
		return
	}

	reply := conn.newMessage()
	defer msgpool.Recycle(reply)

	reply.Code = ReplyNicknameInUse

	if conn.user.Nick() == msg.Params[0] {
		reply.Text = ErrNickAlreadySet.String()
		ok = false
	}

	if ok && conn.server.Nicks.Exists(strings.ToLower(msg.Params[0])) {
		reply.Text = ErrNickInUse.String()
		ok = false
	}

	if ok {
		if _, banned := conn.server.Bans.Match(ban.KindZLine, msg.Params[0]+"!"+conn.user.Name()+"@"+conn.remAddr); banned {
			reply.Text = ErrNickRestricted.String()
			ok = false
		}
	}

	old := conn.user.Nick()

	if ok {
		conn.user.SetNick(msg.Params[0])
		reply.Code = ReplyNone
		reply.Command = CmdNick
		reply.Text = ""

		if conn.registered {
			conn.server.Nicks.Del(strings.ToLower(old))
			conn.server.Nicks.Add(strings.ToLower(conn.user.Nick()), conn.user)

			announce := conn.newMessage()
			defer msgpool.Recycle(announce)
			announce.Sender = old + strings.TrimPrefix(conn.user.Hostmask(), conn.user.Nick())
			announce.Command = CmdNick
			announce.Params = []string{conn.user.Nick()}

			conn.channels.ForEach(func(channel *Channel) {
				channel.Send(announce, "")
			})
		}
	}

	reply.Params = []string{conn.user.Nick()}

	conn.Write(reply.RenderBuffer())
}

// handleUser processes a USER command.
//
//    Command: USER
//    Parameters: <username> <modemask> -0(unused)- :[realname]
func handleUser(ctx *MessageContext) {
	conn, msg := ctx.Conn, ctx.Msg

	if !enoughParams(msg, 3) {
		conn.ReplyNeedMoreParams(msg.Command)
		return
	}

	if len(conn.user.Nick()) < 1 {
		conn.ReplyNoNicknameGiven()
		return
	}

	reply := conn.newMessage()
	defer msgpool.Recycle(reply)

	reply.Params = []string{conn.user.Nick()}
	reply.Code = ReplyAlreadyRegistered

	if len(conn.user.Name()) > 0 {
		reply.Text = ErrUserAreadySet.String()
		conn.Write(reply.RenderBuffer())
		return
	}

	if conn.server.Users.Exists(strings.ToLower(msg.Params[0])) {
		reply.Text = ErrUserInUse.String()
		conn.Write(reply.RenderBuffer())
		return
	}

	conn.user.SetName(msg.Params[0])
	conn.user.SetRealname(msg.Text)
	conn.user.SetHostname(conn.remAddr)
	conn.user.SetPerm(UPermUser)
	conn.registerUser()

	if !conn.capRequested || conn.capNegotiated {
		conn.ReplyWelcome()
		conn.ReplyISupport()
	}
}

// handleCap processes the CAP command and subcommands for negotiating
// capabilities per IRCv3.2, backed by the caps package's registry/set pair.
//
//    Command: CAP
//    Parameters: <subcommand> [param] :[capability] [capability]
func handleCap(ctx *MessageContext) {
	conn, msg := ctx.Conn, ctx.Msg

	if !enoughParams(msg, 1) {
		conn.ReplyInvalidCapCommand(msg.Command)
		return
	}

	conn.capRequested = true
	sub := strings.ToUpper(msg.Params[0])

	switch sub {
	case "LS", "LIST":
		reply := conn.newMessage()
		defer msgpool.Recycle(reply)
		reply.Command = CmdCap
		reply.Params = []string{conn.nickOrStar(), sub}
		if sub == "LS" {
			reply.Text = strings.Join(conn.server.Caps.List(), " ")
		} else {
			reply.Text = strings.Join(conn.caps.List(), " ")
		}
		conn.Write(reply.RenderBuffer())

	case "REQ":
		if len(msg.Text) < 1 {
			conn.ReplyNeedMoreParams(msg.Command)
			return
		}
		tokens := strings.Fields(msg.Text)
		acked, ok := conn.server.Caps.Req(conn.caps, tokens)

		reply := conn.newMessage()
		defer msgpool.Recycle(reply)
		reply.Command = CmdCap
		if ok {
			reply.Params = []string{conn.nickOrStar(), "ACK"}
		} else {
			reply.Params = []string{conn.nickOrStar(), "NAK"}
		}
		reply.Text = strings.Join(acked, " ")
		conn.Write(reply.RenderBuffer())

	case "END":
		conn.capNegotiated = true
		if conn.registered {
			conn.ReplyWelcome()
			conn.ReplyISupport()
		}

	default:
		conn.ReplyInvalidCapCommand(msg.Command)
	}
}

// handleAuthenticate processes the SASL AUTHENTICATE command, threading
// base64 chunks through a sasl.Session until the exchange completes.
//
//    Command: AUTHENTICATE
//    Parameters: <mechanism-or-chunk>
func handleAuthenticate(ctx *MessageContext) {
	conn, msg := ctx.Conn, ctx.Msg

	if !enoughParams(msg, 1) {
		conn.ReplyNeedMoreParams(msg.Command)
		return
	}

	chunk := msg.Params[0]

	if conn.saslSession == nil {
		session, ok := sasl.NewSession(conn.server.SASL, chunk)
		if !ok {
			conn.replySASL(ReplySASLFail, "SASL mechanism not available")
			return
		}
		conn.saslSession = session
		conn.Write(conn.simpleMessage(CmdAuth, "+"))
		return
	}

	result, done, err := conn.saslSession.Feed(chunk, conn.tlsVerified)
	if !done {
		conn.Write(conn.simpleMessage(CmdAuth, "+"))
		return
	}

	conn.saslSession = nil

	if err != nil {
		switch err {
		case sasl.ErrAborted:
			conn.replySASL(ReplySASLAborted, "SASL authentication aborted")
		case sasl.ErrPayloadTooLarge:
			conn.replySASL(ReplySASLTooLong, "SASL message too long")
		default:
			conn.replySASL(ReplySASLFail, "SASL authentication failed")
		}
		return
	}

	conn.user.SetAccount(result.Account)
	conn.replySASL(ReplyLoggedIn, "You are now logged in as "+result.Account)
	conn.replySASL(ReplySASLSuccess, "SASL authentication successful")
}

func (conn *Conn) replySASL(code uint16, text string) {
	msg := conn.newMessage()
	defer msgpool.Recycle(msg)
	msg.Code = code
	msg.Params = []string{conn.nickOrStar()}
	msg.Text = text
	conn.Write(msg.RenderBuffer())
}

func (conn *Conn) simpleMessage(command, text string) *bytes.Buffer {
	msg := conn.newMessage()
	defer msgpool.Recycle(msg)
	msg.Sender = ""
	msg.Command = command
	msg.Text = text
	return msg.RenderBuffer()
}

func (conn *Conn) nickOrStar() string {
	if nick := conn.user.Nick(); len(nick) > 0 {
		return nick
	}
	return "*"
}

// handlePrivmsg processes a PRIVMSG command.
//
//    Command: PRIVMSG
//    Parameters: <target> :<text>
func handlePrivmsg(ctx *MessageContext) {
	doChatMessage(ctx.Conn, ctx.Msg)
}

// handleNotice processes a NOTICE command.
//
//    Command: NOTICE
//    Parameters: <target> :<text>
func handleNotice(ctx *MessageContext) {
	doChatMessage(ctx.Conn, ctx.Msg)
}

func doChatMessage(conn *Conn, msg *Message) {
	if !enoughParams(msg, 1) || len(msg.Text) < 1 {
		conn.ReplyNeedMoreParams(msg.Command)
		return
	}

	if conn.server.Limiter != nil && !conn.server.Limiter.AllowMessage(conn) {
		return
	}

	target := msg.Params[0]

	if svc, ok := conn.server.Services.Resolve(target); ok {
		replies := svc.Dispatch(conn, msg.Text)
		for _, r := range replies {
			conn.SendNotice(svc.Name, string(r))
		}
		return
	}

	targetuser, uerr := conn.server.Nicks.Get(strings.ToLower(target))
	targetchan, cerr := conn.server.Channels.Get(strings.ToLower(target))

	if uerr != nil && cerr != nil {
		log.Debug("irc: Chat Message: did not find target")
		conn.ReplyNoSuchNick(target)
		return
	}

	msg.Params = msg.Params[0:1] // Strip erroneous parameters.
	msg.Sender = conn.user.Hostmask()

	if targetchan != nil {
		if blocked, reason := checkChanMessageAllowed(conn, targetchan); blocked {
			if msg.Command != CmdNotice {
				conn.ReplyCannotSendToChan(targetchan.Name(), reason.Error())
			}
			return
		}

		conn.server.Broker.SendToChannel(targetchan, msg, conn.user.Nick())

		if conn.caps.Enabled(caps.EchoMessage) {
			conn.server.Broker.SendToConnection(conn, msg)
		}
		return
	}

	if _, banned := conn.server.Bans.Match(ban.KindZLine, targetuser.RealHostmask()); banned {
		conn.ReplyNoSuchNick(target)
		return
	}

	conn.server.Broker.SendToConnection(targetuser.conn, msg)

	if conn.caps.Enabled(caps.EchoMessage) {
		conn.server.Broker.SendToConnection(conn, msg)
	}

	if msg.Command != CmdNotice && targetuser.IsAway() {
		conn.ReplyAway(targetuser.Nick(), targetuser.AwayMessage())
	}
}

// checkChanMessageAllowed applies the channel-message access checks a
// server is expected to enforce before relaying a PRIVMSG/NOTICE to a
// channel: no-external-messages, ban, moderated, and registered-only.
func checkChanMessageAllowed(conn *Conn, channel *Channel) (bool, Error) {
	joined := channel.Nicks.Exists(conn.user.Nick())

	if channel.ModeIsSet(ChanModeNoExternal) && !joined {
		return true, ErrNoExternalMessages
	}

	if channel.banned(conn.user.RealHostmask()) {
		return true, ErrBannedFromChan
	}

	if channel.ModeIsSet(ChanModeModerated) {
		voiced := channel.Voiced.Exists(conn.user.Nick()) ||
			channel.HalfOps.Exists(conn.user.Nick()) ||
			channel.Ops.Exists(conn.user.Nick()) ||
			conn.user.Perm() >= UPermNetOp
		if !voiced {
			return true, ErrNeedVoice
		}
	}

	if channel.ModeIsSet(ChanModeRegisteredOnly) && !conn.user.IsIdentified() {
		return true, ErrNeedRegisteredNick
	}

	return false, ""
}

// handleJoin processes a JOIN command.
//
//    Command: JOIN
//    Parameters: <channel> [key]
func handleJoin(ctx *MessageContext) {
	conn, msg := ctx.Conn, ctx.Msg

	if !enoughParams(msg, 1) {
		conn.ReplyNeedMoreParams(msg.Command)
		return
	}

	if _, banned := conn.server.Bans.Match(ban.KindZLine, conn.user.RealHostmask()); banned {
		return
	}

	var key string
	if len(msg.Params) > 1 {
		key = msg.Params[1]
	}

	name := strings.ToLower(msg.Params[0])
	channel, err := conn.server.Channels.Get(name)

	created := false
	if err != nil {
		channel = NewChannel(msg.Params[0], conn.user)
		conn.server.Channels.Add(name, channel)
		created = true
	}

	if !created {
		if joinErr := channel.CheckJoin(conn.user, key); joinErr != nil {
			switch joinErr {
			case ErrBannedFromChan:
				conn.ReplyBannedFromChan(channel.Name())
			case ErrInviteOnlyChan:
				conn.ReplyInviteOnlyChan(channel.Name())
			case ErrBadChannelKey:
				conn.ReplyBadChannelPass(channel.Name())
			case ErrChannelIsFull:
				conn.ReplyChannelIsFull(channel.Name())
			case ErrNeedRegisteredNick:
				conn.ReplyNoChanModes(channel.Name())
			default:
				conn.ReplyNoSuchChan(msg.Params[0])
			}
			return
		}
	}

	msg.Sender = conn.user.Hostmask()
	msg.Params = []string{channel.Name()}

	channel.Join(conn.user, msg)
	conn.channels.Add(channel.Name(), channel)
	conn.ReplyChannelTopic(channel)
	conn.ReplyChannelNames(channel)
}

// handlePart processes a PART command.
//
//    Command: PART
//    Parameters: <channel> [:reason]
func handlePart(ctx *MessageContext) {
	conn, msg := ctx.Conn, ctx.Msg

	if !enoughParams(msg, 1) {
		conn.ReplyNeedMoreParams(msg.Command)
		return
	}

	name := strings.ToLower(msg.Params[0])
	channel, err := conn.server.Channels.Get(name)
	if err != nil {
		conn.ReplyNoSuchChan(msg.Params[0])
		return
	}

	msg.Sender = conn.user.Hostmask()
	msg.Params = []string{channel.Name()}

	channel.Part(conn.user, msg)
	conn.channels.Del(channel.Name())
}

// handleTopic processes a TOPIC command.
//
//    Command: TOPIC
//    Parameters: <channel> [:new topic]
func handleTopic(ctx *MessageContext) {
	conn, msg := ctx.Conn, ctx.Msg

	if !enoughParams(msg, 1) {
		conn.ReplyNeedMoreParams(msg.Command)
		return
	}

	channel, err := conn.server.Channels.Get(strings.ToLower(msg.Params[0]))
	if err != nil {
		conn.ReplyNoSuchChan(msg.Params[0])
		return
	}

	if len(msg.Text) == 0 && len(msg.Params) < 2 {
		conn.ReplyChannelTopic(channel)
		return
	}

	channel.SetTopic(msg.Text)

	announce := conn.newMessage()
	defer msgpool.Recycle(announce)
	announce.Sender = conn.user.Hostmask()
	announce.Command = CmdTopic
	announce.Params = []string{channel.Name()}
	announce.Text = msg.Text

	channel.Send(announce, "")
}

// handleKick processes a KICK command.
//
//    Command: KICK
//    Parameters: <channel> <nick> [:reason]
func handleKick(ctx *MessageContext) {
	conn, msg := ctx.Conn, ctx.Msg

	if !enoughParams(msg, 2) {
		conn.ReplyNeedMoreParams(msg.Command)
		return
	}

	channel, err := conn.server.Channels.Get(strings.ToLower(msg.Params[0]))
	if err != nil {
		conn.ReplyNoSuchChan(msg.Params[0])
		return
	}

	if !channel.Ops.Exists(conn.user.Nick()) && conn.user.Perm() < UPermNetOp {
		return
	}

	target, err := channel.Nicks.Get(msg.Params[1])
	if err != nil {
		conn.ReplyNoSuchNick(msg.Params[1])
		return
	}

	reason := msg.Text
	if len(reason) == 0 {
		reason = conn.user.Nick()
	}

	announce := conn.newMessage()
	defer msgpool.Recycle(announce)
	announce.Sender = conn.user.Hostmask()
	announce.Command = CmdKick
	announce.Params = []string{channel.Name(), target.Nick()}
	announce.Text = reason

	channel.Send(announce, "")
	channel.Nicks.Del(target.Nick())
	channel.Ops.Del(target.Nick())
	channel.Voiced.Del(target.Nick())
	target.conn.channels.Del(channel.Name())
}

// handleInvite processes an INVITE command, granting the named nick a
// one-shot bypass of MODE +i.
//
//    Command: INVITE
//    Parameters: <nickname> <channel>
func handleInvite(ctx *MessageContext) {
	conn, msg := ctx.Conn, ctx.Msg

	if !enoughParams(msg, 2) {
		conn.ReplyNeedMoreParams(msg.Command)
		return
	}

	channel, err := conn.server.Channels.Get(strings.ToLower(msg.Params[1]))
	if err != nil {
		conn.ReplyNoSuchChan(msg.Params[1])
		return
	}

	if !channel.Nicks.Exists(conn.user.Nick()) {
		conn.ReplyNotOnChannel(channel.Name())
		return
	}

	if channel.ModeIsSet(ChanModeInviteOnly) && !channel.Ops.Exists(conn.user.Nick()) && conn.user.Perm() < UPermNetOp {
		conn.ReplyChanOpPrivsNeeded(channel.Name())
		return
	}

	target, err := conn.server.Nicks.Get(strings.ToLower(msg.Params[0]))
	if err != nil {
		conn.ReplyNoSuchNick(msg.Params[0])
		return
	}

	if channel.Nicks.Exists(target.Nick()) {
		conn.ReplyUserOnChannel(target.Nick(), channel.Name())
		return
	}

	channel.Invite(target.Nick(), conn.user.Nick())

	conn.ReplyInviting(target.Nick(), channel.Name())

	invite := conn.newMessage()
	defer msgpool.Recycle(invite)
	invite.Sender = conn.user.Hostmask()
	invite.Command = CmdInvite
	invite.Params = []string{target.Nick(), channel.Name()}
	conn.server.Broker.SendToConnection(target.conn, invite)
}

// handleAway processes an AWAY command.
//
//    Command: AWAY
//    Parameters: [:message]
func handleAway(ctx *MessageContext) {
	conn, msg := ctx.Conn, ctx.Msg

	if len(msg.Text) == 0 {
		conn.user.ClearAway()
		conn.ReplyUnAway()
		return
	}

	conn.user.SetAway(msg.Text)
	conn.ReplyNowAway()
}

// handleUserhost processes a USERHOST command originated from the client.
//
//    Command: USERHOST
//    Parameters: <nickname1> [nickname2] [nickname3] [nickname4] [nickname5]
func handleUserhost(ctx *MessageContext) {
	conn, msg := ctx.Conn, ctx.Msg

	hosts := []string{}

	var buffer bytes.Buffer

	for _, nick := range msg.Params {
		host, err := conn.server.Nicks.Get(strings.ToLower(nick))
		if err != nil {
			conn.ReplyNoSuchNick(nick)
			return
		}

		buffer.WriteString(nick)
		buffer.WriteString("=+")
		buffer.WriteString(host.Hostmask())
		hosts = append(hosts, buffer.String())
		buffer.Reset()
	}

	msg.Sender = conn.server.Hostname()
	msg.Command = ""
	msg.Code = ReplyUserHost
	msg.Params = []string{conn.user.Nick()}
	msg.Text = strings.Join(hosts, " ")

	conn.Write(msg.RenderBuffer())
}

// handlePing processes a PING command originated from the client.
//
//    Command: PING
//    Parameters: :<token>
func handlePing(ctx *MessageContext) {
	conn, msg := ctx.Conn, ctx.Msg

	msg.Sender = conn.server.Hostname()
	msg.Command = CmdPong

	conn.Write(msg.RenderBuffer())
}

// handlePong processes a PONG command in reply to a server sent PING command.
//
//    Command: PONG
//    Parameters: :<token>
func handlePong(ctx *MessageContext) {
	conn, msg := ctx.Conn, ctx.Msg

	if len(msg.Text) < 1 {
		conn.ReplyNeedMoreParams(msg.Command)
		return
	}

	conn.Lock()
	defer conn.Unlock()
	conn.lastPingRecv = msg.Text
}

// registerHandlers wires every command handler into router with its
// dispatch contract (minimum parameters, registration/operator
// requirements).
func registerHandlers(router *Router) {
	router.HandleSpec(CmdQuit, CommandSpec{}, handleQuit)
	router.HandleSpec(CmdNick, CommandSpec{}, handleNick)
	router.HandleSpec(CmdUser, CommandSpec{MinParams: 3}, handleUser)
	router.HandleSpec(CmdCap, CommandSpec{MinParams: 1}, handleCap)
	router.HandleSpec(CmdAuth, CommandSpec{MinParams: 1}, handleAuthenticate)
	router.HandleSpec(CmdPing, CommandSpec{}, handlePing)
	router.HandleSpec(CmdPong, CommandSpec{}, handlePong)
	router.HandleSpec(CmdJoin, CommandSpec{MinParams: 1, RequiresRegistration: true}, handleJoin)
	router.HandleSpec(CmdPart, CommandSpec{MinParams: 1, RequiresRegistration: true}, handlePart)
	router.HandleSpec(CmdTopic, CommandSpec{MinParams: 1, RequiresRegistration: true}, handleTopic)
	router.HandleSpec(CmdKick, CommandSpec{MinParams: 2, RequiresRegistration: true}, handleKick)
	router.HandleSpec(CmdInvite, CommandSpec{MinParams: 2, RequiresRegistration: true}, handleInvite)
	router.HandleSpec(CmdAway, CommandSpec{RequiresRegistration: true}, handleAway)
	router.HandleSpec(CmdPrivMsg, CommandSpec{MinParams: 1, RequiresRegistration: true}, handlePrivmsg)
	router.HandleSpec(CmdNotice, CommandSpec{MinParams: 1, RequiresRegistration: true}, handleNotice)
	router.HandleSpec(CmdUserhost, CommandSpec{RequiresRegistration: true}, handleUserhost)
	router.HandleSpec(CmdMode, CommandSpec{MinParams: 1, RequiresRegistration: true}, handleMode)

	registerQueryHandlers(router)
	registerOperatorHandlers(router)
	registerExtensionHandlers(router)
}
