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

	"github.com/corvid-irc/corvid/modes"
)

// channelModeTable classifies every supported channel mode letter into its
// ISUPPORT CHANMODES=A,B,C,D parameter class.
var channelModeTable = modes.Table{
	'b': {Letter: 'b', Class: modes.ClassA},
	'e': {Letter: 'e', Class: modes.ClassA},
	'I': {Letter: 'I', Class: modes.ClassA},
	'o': {Letter: 'o', Class: modes.ClassB, IsPrefix: true},
	'h': {Letter: 'h', Class: modes.ClassB, IsPrefix: true},
	'v': {Letter: 'v', Class: modes.ClassB, IsPrefix: true},
	'k': {Letter: 'k', Class: modes.ClassB},
	'l': {Letter: 'l', Class: modes.ClassC},
	'm': {Letter: 'm', Class: modes.ClassD},
	'n': {Letter: 'n', Class: modes.ClassD},
	'p': {Letter: 'p', Class: modes.ClassD},
	's': {Letter: 's', Class: modes.ClassD},
	't': {Letter: 't', Class: modes.ClassD},
	'i': {Letter: 'i', Class: modes.ClassD},
	'R': {Letter: 'R', Class: modes.ClassD},
}

// userModeLetters maps a user MODE letter to its usermode.go bitmask flag.
var userModeLetters = map[byte]uint64{
	'i': UModeInvisible,
	'w': UModeWatch,
	'd': UModeDeaf,
	'b': UModeBot,
	'h': UModeHidden,
	'x': UModeHiddenHost,
	'o': UModeNetOp,
}

// handleMode processes a MODE command for both channel and user targets.
//
//    Command: MODE
//    Parameters: <target> [modestring] [mode parameters]
func handleMode(ctx *MessageContext) {
	conn, msg := ctx.Conn, ctx.Msg
	target := msg.Params[0]

	if strings.HasPrefix(target, "#") || strings.HasPrefix(target, "!") {
		handleChannelMode(conn, msg, target)
		return
	}

	handleUserMode(conn, msg, target)
}

func handleChannelMode(conn *Conn, msg *Message, target string) {
	channel, err := conn.server.Channels.Get(strings.ToLower(target))
	if err != nil {
		conn.ReplyNoSuchChan(target)
		return
	}

	if len(msg.Params) < 2 {
		conn.replyChannelModeIs(channel)
		return
	}

	isOp := channel.Ops.Exists(conn.user.Nick()) || conn.user.Perm() >= UPermNetOp

	changes, err := modes.Parse(channelModeTable, msg.Params[1], msg.Params[2:])
	if err != nil {
		conn.ReplyNeedMoreParams(msg.Command)
		return
	}

	if !isOp && len(changes) > 0 {
		return
	}

	applied := make([]modes.Change, 0, len(changes))
	for _, change := range changes {
		if applyChannelModeChange(conn, channel, change) {
			applied = append(applied, change)
		}
	}

	if len(applied) == 0 {
		return
	}

	announce := conn.newMessage()
	defer msgpool.Recycle(announce)
	announce.Sender = conn.user.Hostmask()
	announce.Command = CmdMode
	announce.Params = append([]string{channel.Name()}, renderModeChanges(applied)...)
	channel.Send(announce, "")
}

func applyChannelModeChange(conn *Conn, channel *Channel, change modes.Change) bool {
	switch change.Letter {
	case 'o':
		target, err := channel.Nicks.Get(change.Param)
		if err != nil {
			return false
		}
		if change.Set {
			channel.Ops.Add(target.Nick(), target)
		} else {
			channel.Ops.Del(target.Nick())
		}
		return true

	case 'h':
		target, err := channel.Nicks.Get(change.Param)
		if err != nil {
			return false
		}
		if change.Set {
			channel.HalfOps.Add(target.Nick(), target)
		} else {
			channel.HalfOps.Del(target.Nick())
		}
		return true

	case 'v':
		target, err := channel.Nicks.Get(change.Param)
		if err != nil {
			return false
		}
		if change.Set {
			channel.Voiced.Add(target.Nick(), target)
		} else {
			channel.Voiced.Del(target.Nick())
		}
		return true

	case 'b':
		if change.Set {
			channel.BanList.Add(change.Param, conn.user.Nick())
		} else {
			channel.BanList.Del(change.Param)
		}
		return true

	case 'e':
		if change.Set {
			channel.ExceptList.Add(change.Param, conn.user.Nick())
		} else {
			channel.ExceptList.Del(change.Param)
		}
		return true

	case 'I':
		if change.Set {
			channel.InviteList.Add(change.Param, conn.user.Nick())
		} else {
			channel.InviteList.Del(change.Param)
		}
		return true

	case 'k':
		if change.Set {
			if change.Param == "" {
				return false
			}
			channel.SetKey(change.Param)
		} else {
			channel.SetKey("")
		}
		return true

	case 'l':
		if change.Set {
			limit, err := strconv.Atoi(change.Param)
			if err != nil || limit < 1 {
				return false
			}
			channel.SetLimit(limit)
		} else {
			channel.SetLimit(0)
		}
		return true

	default:
		cmode, ok := channelModeLetters[change.Letter]
		if !ok {
			return false
		}
		if change.Set {
			channel.AddMode(cmode)
		} else {
			channel.DelMode(cmode)
		}
		return true
	}
}

func renderModeChanges(changes []modes.Change) []string {
	var sb strings.Builder
	var params []string

	lastSet := changes[0].Set
	sb.WriteByte(signChar(lastSet))

	for _, c := range changes {
		if c.Set != lastSet {
			sb.WriteByte(signChar(c.Set))
			lastSet = c.Set
		}
		sb.WriteByte(c.Letter)
		if c.Param != "" {
			params = append(params, c.Param)
		}
	}

	return append([]string{sb.String()}, params...)
}

func signChar(set bool) byte {
	if set {
		return '+'
	}
	return '-'
}

func (conn *Conn) replyChannelModeIs(channel *Channel) {
	letters, params := channel.ModeString()

	msg := conn.newMessage()
	defer msgpool.Recycle(msg)
	msg.Code = ReplyChannelModeIs
	msg.Params = append([]string{conn.user.Nick(), channel.Name(), letters}, params...)
	conn.Write(msg.RenderBuffer())
}

func handleUserMode(conn *Conn, msg *Message, target string) {
	if !strings.EqualFold(target, conn.user.Nick()) {
		conn.ReplyNoSuchNick(target)
		return
	}

	if len(msg.Params) < 2 {
		replyUserModeIs(conn)
		return
	}

	set := true
	for i := 0; i < len(msg.Params[1]); i++ {
		c := msg.Params[1][i]
		switch c {
		case '+':
			set = true
			continue
		case '-':
			set = false
			continue
		}

		umode, ok := userModeLetters[c]
		if !ok {
			continue
		}

		if set {
			SetUserMode(umode, conn.user, conn.user)
		} else {
			UnsetUserMode(umode, conn.user, conn.user)
		}
	}

	replyUserModeIs(conn)
}

func replyUserModeIs(conn *Conn) {
	var sb strings.Builder
	sb.WriteByte('+')
	for letter, umode := range userModeLetters {
		if conn.user.ModeIsSet(umode) {
			sb.WriteByte(letter)
		}
	}

	msg := conn.newMessage()
	defer msgpool.Recycle(msg)
	msg.Code = ReplyUserModeIs
	msg.Params = []string{conn.user.Nick(), sb.String()}
	conn.Write(msg.RenderBuffer())
}
