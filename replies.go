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
	"github.com/btnmasher/util"
)

// ReplyWelcome returns the configured welcome message to
// the user. This is sent when a client first connects
// and registers successfully.
func (conn *Conn) ReplyWelcome() {
	msg := conn.newMessage()
	defer msgpool.Recycle(msg)

	msg.Code = ReplyWelcome
	msg.Params = []string{conn.user.Nick()}
	msg.Text = conn.server.Welcome()

	conn.Write(msg.RenderBuffer())
}

// ReplyInvalidCapCommand returns an error message to the user
// in the event that a CAP command issued by the user is not
// a valid subcommand per the IRCv3 CAP specifications.
func (conn *Conn) ReplyInvalidCapCommand(cmd string) {
	msg := conn.newMessage()
	defer msgpool.Recycle(msg)

	nick := conn.user.Nick()

	if len(nick) < 1 {
		nick = "*"
	}

	params := []string{nick}

	if cmd != "" {
		params = append(params, cmd)
	}

	msg.Code = ReplyInvalidCapCmd
	msg.Params = params
	msg.Text = ErrInvalidCapCmd.Error()

	conn.Write(msg.RenderBuffer())
}

// ReplyNeedMoreParams returns an error message to the user
// in the event that a command issued by the user that does
// not satisfy the minimum number of parameters expected of
// the particualar command.
func (conn *Conn) ReplyNeedMoreParams(cmd string) {
	msg := conn.newMessage()
	defer msgpool.Recycle(msg)

	nick := conn.user.Nick()

	if len(nick) < 1 {
		nick = "*"
	}

	params := []string{nick}

	if cmd != "" {
		params = append(params, cmd)
	}

	msg.Code = ReplyNeedMoreParams
	msg.Params = params
	msg.Text = ErrMissingParams.Error()

	conn.Write(msg.RenderBuffer())
}

// ReplyNoNicknameGiven returns an error message to the user
// in the event that a command issued by the user that does
// not satisfy the requirement of specifying a nickname.
func (conn *Conn) ReplyNoNicknameGiven() {
	msg := conn.newMessage()
	defer msgpool.Recycle(msg)

	nick := conn.user.Nick()

	if len(nick) < 1 {
		nick = "*"
	}

	msg.Params = []string{nick}
	msg.Code = ReplyNoNicknameGiven
	msg.Text = ErrNoNickGiven.Error()

	conn.Write(msg.RenderBuffer())
}

// ReplyNoSuchNick returns an error message to the user
// in the event that a command issued by the user with
// a target nickname cannot find the target or is unable
// to know of the targets existence due to permissions.
func (conn *Conn) ReplyNoSuchNick(nick string) {
	msg := conn.newMessage()
	defer msgpool.Recycle(msg)

	msg.Params = []string{conn.user.Nick(), nick}
	msg.Code = ReplyNoSuchNick
	msg.Text = ErrNoSuchNick.Error()

	conn.Write(msg.RenderBuffer())
}

// ReplyNoSuchChan returns an error message to the user
// in the event that a command issued by the user with
// a target channel cannot find the target or is unable
// to know of the targets existence due to permissions.
func (conn *Conn) ReplyNoSuchChan(channel string) {
	msg := conn.newMessage()
	defer msgpool.Recycle(msg)

	msg.Params = []string{conn.user.Nick(), channel}
	msg.Code = ReplyNoSuchChannel
	msg.Text = ErrNoSuchChan.Error()

	conn.Write(msg.RenderBuffer())
}

// ReplyCannotSendToChan returns an error message to the user in the event a
// PRIVMSG/NOTICE to a channel is rejected by +n, +m, or a ban with no
// matching exception.
func (conn *Conn) ReplyCannotSendToChan(channel, reason string) {
	msg := conn.newMessage()
	defer msgpool.Recycle(msg)

	msg.Params = []string{conn.user.Nick(), channel}
	msg.Code = ReplyCannotSendToChan
	msg.Text = reason

	conn.Write(msg.RenderBuffer())
}

// ReplyChannelIsFull returns ERR_CHANNELISFULL (471) when a JOIN is
// rejected by a channel's +l user limit.
func (conn *Conn) ReplyChannelIsFull(channel string) {
	msg := conn.newMessage()
	defer msgpool.Recycle(msg)

	msg.Params = []string{conn.user.Nick(), channel}
	msg.Code = ReplyChannelIsFull
	msg.Text = ErrChannelIsFull.Error()

	conn.Write(msg.RenderBuffer())
}

// ReplyInviteOnlyChan returns ERR_INVITEONLYCHAN (473) when a JOIN is
// rejected by a channel's +i mode.
func (conn *Conn) ReplyInviteOnlyChan(channel string) {
	msg := conn.newMessage()
	defer msgpool.Recycle(msg)

	msg.Params = []string{conn.user.Nick(), channel}
	msg.Code = ReplyInviteOnlyChan
	msg.Text = ErrInviteOnlyChan.Error()

	conn.Write(msg.RenderBuffer())
}

// ReplyBannedFromChan returns ERR_BANNEDFROMCHAN (474) when a JOIN is
// rejected by a matching +b ban with no +e exception.
func (conn *Conn) ReplyBannedFromChan(channel string) {
	msg := conn.newMessage()
	defer msgpool.Recycle(msg)

	msg.Params = []string{conn.user.Nick(), channel}
	msg.Code = ReplyBannedFromChan
	msg.Text = ErrBannedFromChan.Error()

	conn.Write(msg.RenderBuffer())
}

// ReplyBadChannelPass returns ERR_BADCHANNELKEY (475) when a JOIN is
// rejected by a channel key mismatch.
func (conn *Conn) ReplyBadChannelPass(channel string) {
	msg := conn.newMessage()
	defer msgpool.Recycle(msg)

	msg.Params = []string{conn.user.Nick(), channel}
	msg.Code = ReplyBadChannelPass
	msg.Text = ErrBadChannelKey.Error()

	conn.Write(msg.RenderBuffer())
}

// ReplyNoChanModes returns ERR_NEEDREGGEDNICK (477) when a JOIN is
// rejected because the channel requires a registered nick.
func (conn *Conn) ReplyNoChanModes(channel string) {
	msg := conn.newMessage()
	defer msgpool.Recycle(msg)

	msg.Params = []string{conn.user.Nick(), channel}
	msg.Code = ReplyNoChanModes
	msg.Text = ErrNeedRegisteredNick.Error()

	conn.Write(msg.RenderBuffer())
}

// ReplyAway returns RPL_AWAY (301) with the target's away message.
func (conn *Conn) ReplyAway(nick, message string) {
	msg := conn.newMessage()
	defer msgpool.Recycle(msg)

	msg.Params = []string{conn.user.Nick(), nick}
	msg.Code = ReplyAway
	msg.Text = message

	conn.Write(msg.RenderBuffer())
}

// ReplyNotOnChannel returns ERR_NOTONCHANNEL (442) when a command requires
// the user to be a member of the named channel.
func (conn *Conn) ReplyNotOnChannel(channel string) {
	msg := conn.newMessage()
	defer msgpool.Recycle(msg)

	msg.Params = []string{conn.user.Nick(), channel}
	msg.Code = ReplyNotOnChannel
	msg.Text = "You're not on that channel"

	conn.Write(msg.RenderBuffer())
}

// ReplyUserOnChannel returns ERR_USERONCHANNEL (443) when an INVITE targets
// a nick already joined to the channel.
func (conn *Conn) ReplyUserOnChannel(nick, channel string) {
	msg := conn.newMessage()
	defer msgpool.Recycle(msg)

	msg.Params = []string{conn.user.Nick(), nick, channel}
	msg.Code = ReplyUserOnChannel
	msg.Text = "is already on channel"

	conn.Write(msg.RenderBuffer())
}

// ReplyChanOpPrivsNeeded returns ERR_CHANOPRIVSNEEDED (482) when a command
// requires channel operator status the user does not hold.
func (conn *Conn) ReplyChanOpPrivsNeeded(channel string) {
	msg := conn.newMessage()
	defer msgpool.Recycle(msg)

	msg.Params = []string{conn.user.Nick(), channel}
	msg.Code = ReplyChanOpPrivsNeeded
	msg.Text = "You're not a channel operator"

	conn.Write(msg.RenderBuffer())
}

// ReplyInviting returns RPL_INVITING (341), confirming an INVITE was sent.
func (conn *Conn) ReplyInviting(nick, channel string) {
	msg := conn.newMessage()
	defer msgpool.Recycle(msg)

	msg.Params = []string{conn.user.Nick(), nick, channel}
	msg.Code = ReplyInviting

	conn.Write(msg.RenderBuffer())
}

// ReplyUnAway returns RPL_UNAWAY (305), confirming an AWAY status was
// cleared.
func (conn *Conn) ReplyUnAway() {
	msg := conn.newMessage()
	defer msgpool.Recycle(msg)

	msg.Params = []string{conn.user.Nick()}
	msg.Code = ReplyUnAway
	msg.Text = "You are no longer marked as being away"

	conn.Write(msg.RenderBuffer())
}

// ReplyNowAway returns RPL_NOWAWAY (306), confirming an AWAY status was set.
func (conn *Conn) ReplyNowAway() {
	msg := conn.newMessage()
	defer msgpool.Recycle(msg)

	msg.Params = []string{conn.user.Nick()}
	msg.Code = ReplyNowAway
	msg.Text = "You have been marked as being away"

	conn.Write(msg.RenderBuffer())
}

// ReplyNoSuchServer returns an error message to the user in the event a
// command issued by the user names a server that is not currently linked.
func (conn *Conn) ReplyNoSuchServer(server string) {
	msg := conn.newMessage()
	defer msgpool.Recycle(msg)

	msg.Params = []string{conn.user.Nick(), server}
	msg.Code = ReplyNoSuchServer
	msg.Text = "No such server"

	conn.Write(msg.RenderBuffer())
}

// ReplyNotImplemented returns an error message to the user
// in the event the given command is not apart of the handlers
// found in RouteCommand()
func (conn *Conn) ReplyNotImplemented(cmd string) {
	msg := conn.newMessage()
	defer msgpool.Recycle(msg)

	msg.Code = ReplyUnknownCommand
	msg.Params = []string{conn.user.Nick(), cmd}
	msg.Text = ErrNotImplemented.Error()

	log.Infof("irc: Command not implemented encountered for: %s", cmd)

	conn.Write(msg.RenderBuffer())
}

// ReplyNotRegistered returns ERR_NOTREGISTERED (451) to the user
// in the event a command is refused by RouteCommand() because the
// connection has not completed registration (or, for operator-only
// commands, lacks operator permission).
func (conn *Conn) ReplyNotRegistered() {
	msg := conn.newMessage()
	defer msgpool.Recycle(msg)

	nick := conn.user.Nick()

	if len(nick) < 1 {
		nick = "*"
	}

	msg.Code = ReplyNotRegistered
	msg.Params = []string{nick}
	msg.Text = ErrNotRegistered.Error()

	conn.Write(msg.RenderBuffer())
}

// ReplyChannelTopic returns the topic reply to the user for
// the given channel.
func (conn *Conn) ReplyChannelTopic(channel *Channel) {
	msg := conn.newMessage()
	defer msgpool.Recycle(msg)

	msg.Code = ReplyChanTopic
	msg.Params = []string{conn.user.Nick(), channel.Name()}
	msg.Text = channel.Topic()
	conn.Write(msg.RenderBuffer())
}

// ReplyChannelNames returns the NAMES list (353, then 366) to the
// user for the given channel.
func (conn *Conn) ReplyChannelNames(channel *Channel) {

	nicklist := channel.GetNicks()
	unick := conn.user.Nick()
	cname := channel.Name()
	params := []string{unick, "=", cname}

	temp := conn.newMessage()
	temp.Code = ReplyNames
	temp.Params = params

	joined := util.ChunkJoinStrings(nicklist, MaxMsgLength-len(temp.String()), SPACE)
	msgpool.Recycle(temp)

	msgs := []*Message{}

	for _, line := range joined {
		msg := conn.newMessage()
		defer msgpool.Recycle(msg)

		msgs = append(msgs, msg)

		msg.Code = ReplyNames
		msg.Params = params
		msg.Text = line
	}

	end := conn.newMessage()
	end.Code = ReplyEndOfNames
	end.Params = []string{unick, cname}
	end.Text = "End of NAMES list."
	msgs = append(msgs, end)

	for _, m := range msgs {
		conn.Write(m.RenderBuffer())
	}
}

// ReplyISupport returns the server's ISUPPORT tokens (005) to the
// user, split across as many lines as needed.
func (conn *Conn) ReplyISupport() {

	support := conn.server.ISupport()
	params := []string{conn.user.Nick()}

	temp := conn.newMessage()
	temp.Code = ReplyISupport
	temp.Params = params

	joined := util.ChunkJoinStrings(support, MaxMsgLength-len(temp.String()), SPACE)
	msgpool.Recycle(temp)

	msgs := []*Message{}

	for _, line := range joined {
		msg := conn.newMessage()
		defer msgpool.Recycle(msg)

		msg.Code = ReplyISupport
		msg.Params = append(params, line)

		msgs = append(msgs, msg)
	}

	for _, m := range msgs {
		conn.Write(m.RenderBuffer())
	}
}
