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
	"strconv"
	"sync"

	"github.com/btnmasher/util"

	"github.com/corvid-irc/corvid/ban"
)

// Channel boolean mode flags, set via MODE +/-<letter> with no parameter.
// Mirrors the UMode* bitmask pattern in usermode.go.
const (
	ChanModeModerated uint64 = 1 << iota
	ChanModeNoExternal
	ChanModePrivate
	ChanModeSecret
	ChanModeTopicLock
	ChanModeInviteOnly
	ChanModeRegisteredOnly
)

// channelModeLetters maps the boolean (Class D) MODE letters to their
// bitmask flag, consumed by applyChannelModeChange and ModeString.
var channelModeLetters = map[byte]uint64{
	'm': ChanModeModerated,
	'n': ChanModeNoExternal,
	'p': ChanModePrivate,
	's': ChanModeSecret,
	't': ChanModeTopicLock,
	'i': ChanModeInviteOnly,
	'R': ChanModeRegisteredOnly,
}

// channelModeOrder fixes the rendering order for ModeString, independent of
// Go's unordered map iteration.
var channelModeOrder = []byte{'i', 'm', 'n', 'p', 's', 't', 'R'}

// Channel represents an IRC channel
type Channel struct {
	sync.RWMutex

	name  string
	topic string

	modes uint64
	key   string
	limit int

	owner      *User
	savedOwner string // Owner username

	// Active Lists
	Nicks   *UserMap
	Ops     *UserMap
	HalfOps *UserMap
	Voiced  *UserMap

	// Persisted Lists
	// map[hostpattern]setter
	OpList     *util.ConcurrentMapString
	HalfOpList *util.ConcurrentMapString
	VoiceList  *util.ConcurrentMapString
	BanList    *util.ConcurrentMapString
	ExceptList *util.ConcurrentMapString
	InviteList *util.ConcurrentMapString

	// Invited tracks one-shot INVITE grants keyed by the invited user's
	// nick as returned by User.Nick(), consumed the first time the invited
	// nick successfully JOINs.
	Invited *util.ConcurrentMapString
}

// NewChannel initializes a Channel with the given name and owner.
func NewChannel(cname string, creator *User) *Channel {
	channel := &Channel{
		name:       cname,
		owner:      creator,
		Nicks:      NewUserMap(),
		Ops:        NewUserMap(),
		HalfOps:    NewUserMap(),
		Voiced:     NewUserMap(),
		OpList:     util.NewConcurrentMapString(),
		HalfOpList: util.NewConcurrentMapString(),
		VoiceList:  util.NewConcurrentMapString(),
		BanList:    util.NewConcurrentMapString(),
		ExceptList: util.NewConcurrentMapString(),
		InviteList: util.NewConcurrentMapString(),
		Invited:    util.NewConcurrentMapString(),
	}

	return channel
}

// Name returns the name of the channel in a currency safe manner.
func (channel *Channel) Name() string {
	channel.RLock()
	defer channel.RUnlock()

	return channel.name
}

// SetName sets the name of the channel in a currency safe manner.
func (channel *Channel) SetName(new string) {
	channel.Lock()
	defer channel.Unlock()

	channel.name = new
}

// Topic returns the topic of the channel in a currency safe manner.
func (channel *Channel) Topic() string {
	channel.RLock()
	defer channel.RUnlock()

	return channel.topic
}

// SetTopic sets the topic of the channel in a currency safe manner.
func (channel *Channel) SetTopic(new string) {
	channel.Lock()
	defer channel.Unlock()

	channel.topic = new
}

// Owner returns the owner of the channel in a currency safe manner.
func (channel *Channel) Owner() *User {
	channel.RLock()
	defer channel.RUnlock()

	return channel.owner
}

// SetOwner sets the owner of the channel in a currency safe manner.
func (channel *Channel) SetOwner(new *User) {
	channel.Lock()
	defer channel.Unlock()

	channel.owner = new
	channel.savedOwner = new.Name()
}

// Mode returns the channel's boolean mode bitmask in a concurrency-safe
// manner.
func (channel *Channel) Mode() uint64 {
	channel.RLock()
	defer channel.RUnlock()
	return channel.modes
}

// AddMode sets the given boolean mode flag in a concurrency-safe manner.
func (channel *Channel) AddMode(cmode uint64) {
	channel.Lock()
	defer channel.Unlock()
	channel.modes |= cmode
}

// DelMode clears the given boolean mode flag in a concurrency-safe manner.
func (channel *Channel) DelMode(cmode uint64) {
	channel.Lock()
	defer channel.Unlock()
	channel.modes &^= cmode
}

// ModeIsSet reports whether the given boolean mode flag is currently set.
func (channel *Channel) ModeIsSet(cmode uint64) bool {
	channel.RLock()
	defer channel.RUnlock()
	return channel.modes&cmode == cmode
}

// Key returns the channel key set by MODE +k, or empty if none is set.
func (channel *Channel) Key() string {
	channel.RLock()
	defer channel.RUnlock()
	return channel.key
}

// SetKey sets the channel key in a concurrency-safe manner.
func (channel *Channel) SetKey(new string) {
	channel.Lock()
	defer channel.Unlock()
	channel.key = new
}

// Limit returns the channel's join limit set by MODE +l, or 0 if unlimited.
func (channel *Channel) Limit() int {
	channel.RLock()
	defer channel.RUnlock()
	return channel.limit
}

// SetLimit sets the channel's join limit in a concurrency-safe manner.
func (channel *Channel) SetLimit(new int) {
	channel.Lock()
	defer channel.Unlock()
	channel.limit = new
}

// ModeString renders the channel's current boolean modes and any
// value-carrying modes (k, l) as an ISUPPORT-style "+modes param..." string,
// suitable for RPL_CHANNELMODEIS.
func (channel *Channel) ModeString() (string, []string) {
	channel.RLock()
	defer channel.RUnlock()

	var letters bytes.Buffer
	var params []string

	letters.WriteRune('+')

	for _, letter := range channelModeOrder {
		if channel.modes&channelModeLetters[letter] == channelModeLetters[letter] {
			letters.WriteByte(letter)
		}
	}

	if channel.key != "" {
		letters.WriteRune('k')
		params = append(params, channel.key)
	}

	if channel.limit > 0 {
		letters.WriteRune('l')
		params = append(params, strconv.Itoa(channel.limit))
	}

	return letters.String(), params
}

// banned reports whether hostmask matches a ban on BanList that is not
// overridden by a matching entry on ExceptList.
func (channel *Channel) banned(hostmask string) bool {
	matched := false

	channel.BanList.ForEach(func(mask, setter string) {
		if !matched && ban.MatchMask(mask, hostmask) {
			matched = true
		}
	})

	if !matched {
		return false
	}

	channel.ExceptList.ForEach(func(mask, setter string) {
		if matched && ban.MatchMask(mask, hostmask) {
			matched = false
		}
	})

	return matched
}

// inviteExempt reports whether hostmask matches a persistent invite-only
// bypass mask set via MODE +I.
func (channel *Channel) inviteExempt(hostmask string) bool {
	exempt := false

	channel.InviteList.ForEach(func(mask, setter string) {
		if !exempt && ban.MatchMask(mask, hostmask) {
			exempt = true
		}
	})

	return exempt
}

// Invite grants nick a one-shot bypass of MODE +i, consumed the next time
// that nick successfully joins.
func (channel *Channel) Invite(nick, setter string) {
	if channel.Invited.Exists(nick) {
		channel.Invited.Set(nick, setter)
		return
	}
	channel.Invited.Add(nick, setter)
}

// consumeInvite reports whether nick holds a one-shot invite grant, removing
// it if so.
func (channel *Channel) consumeInvite(nick string) bool {
	if !channel.Invited.Exists(nick) {
		return false
	}
	channel.Invited.Del(nick)
	return true
}

// CheckJoin validates whether user may join this channel, applying the
// channel's access controls in the order a server is expected to check
// them: ban, invite-only, key, user limit, then registered-only.
func (channel *Channel) CheckJoin(user *User, key string) error {
	hostmask := user.RealHostmask()

	if channel.banned(hostmask) {
		return ErrBannedFromChan
	}

	if channel.ModeIsSet(ChanModeInviteOnly) {
		nick := user.Nick()
		if !channel.inviteExempt(hostmask) && !channel.consumeInvite(nick) {
			return ErrInviteOnlyChan
		}
	}

	if chanKey := channel.Key(); chanKey != "" && chanKey != key {
		return ErrBadChannelKey
	}

	if limit := channel.Limit(); limit > 0 && channel.Nicks.Length() >= limit {
		return ErrChannelIsFull
	}

	if channel.ModeIsSet(ChanModeRegisteredOnly) && !user.IsIdentified() {
		return ErrNeedRegisteredNick
	}

	return nil
}

// Send takes a message, then iterates the list of Users joined
// to the channel stored in the Nicks map, and sends the message
// to each of the User's underlying connection.
func (channel *Channel) Send(msg *Message, exclude string) {
	buf := msg.RenderBuffer()

	channel.Nicks.ForEach(func(user *User) {
		if user.Nick() != exclude {
			user.conn.Write(buf)
		}
	})
}

// Join adds the user to the channel and alerts all channel members of the
// event. Callers are expected to have already validated the join via
// CheckJoin.
func (channel *Channel) Join(user *User, msg *Message) {
	channel.Nicks.Add(user.Nick(), user)
	channel.Send(msg, "")
}

// Part removes the user from the channel and alerts all channel
// members of the event.
func (channel *Channel) Part(user *User, msg *Message) {
	channel.Send(msg, "")
	channel.Nicks.Del(user.Nick())
}

// GetNicks returns an array of the current nicknames of the users
// in the chanel.
func (channel *Channel) GetNicks() []string {
	channel.RLock()
	defer channel.RUnlock()

	var buffer bytes.Buffer
	nicks := make([]string, channel.Nicks.Length())
	i := 0

	channel.Nicks.ForEach(func(user *User) {
		nick := user.Nick()

		switch {
		case channel.owner.Nick() == nick:
			buffer.WriteRune('~')
		case channel.Ops.Exists(nick):
			buffer.WriteRune('@')
		case channel.HalfOps.Exists(nick):
			buffer.WriteRune('%')
		case channel.Voiced.Exists(nick):
			buffer.WriteRune('+')
		}

		buffer.WriteString(nick)

		nicks[i] = buffer.String()
		buffer.Reset()
		i++

	})

	return nicks
}
