package services

import (
	"fmt"
	"strings"
	"sync"
)

// VHostRepository is the storage contract for vanity host assignments.
type VHostRepository interface {
	Get(account string) (string, bool)
	Set(account, vhost string)
	Clear(account string)
}

// VHostStore is an in-memory VHostRepository reference implementation.
type VHostStore struct {
	mu    sync.RWMutex
	hosts map[string]string
}

// NewVHostStore builds an empty in-memory vhost store.
func NewVHostStore() *VHostStore {
	return &VHostStore{hosts: make(map[string]string)}
}

// Get implements VHostRepository.
func (s *VHostStore) Get(account string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.hosts[strings.ToLower(account)]
	return h, ok
}

// Set implements VHostRepository.
func (s *VHostStore) Set(account, vhost string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hosts[strings.ToLower(account)] = vhost
}

// Clear implements VHostRepository.
func (s *VHostStore) Clear(account string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.hosts, strings.ToLower(account))
}

// NewHostServ builds the HostServ service backed by store. ON and OFF only
// answer with a "VHOST:<host>" or "VHOST:" reply line; the core package
// relays service replies to the caller as notices and does not change the
// connection's displayed host.
func NewHostServ(uid string, store *VHostStore) *Service {
	svc := NewService("HostServ", uid)

	svc.Register(Command{
		Name:      "REQUEST",
		MinParams: 1,
		Help:      "REQUEST <vhost>",
		Handler: func(sender Sender, args []string) []Reply {
			store.Set(sender.Account(), args[0])
			return []Reply{Reply(fmt.Sprintf("Your vhost request for %s has been recorded.", args[0]))}
		},
	})

	svc.Register(Command{
		Name:      "ON",
		MinParams: 0,
		Help:      "ON",
		Handler: func(sender Sender, args []string) []Reply {
			vhost, ok := store.Get(sender.Account())
			if !ok {
				return []Reply{Reply("You have no vhost assigned.")}
			}
			return []Reply{Reply("VHOST:" + vhost)}
		},
	})

	svc.Register(Command{
		Name:      "OFF",
		MinParams: 0,
		Help:      "OFF",
		Handler: func(sender Sender, args []string) []Reply {
			return []Reply{Reply("VHOST:")}
		},
	})

	return svc
}

// Bot is one BotServ-managed channel bot assignment.
type Bot struct {
	Name    string
	Channel string
}

// BotRepository is the storage contract for BotServ bot definitions.
type BotRepository interface {
	Assign(bot Bot)
	Unassign(channel string)
	AssignedTo(channel string) (Bot, bool)
}

// BotStore is an in-memory BotRepository reference implementation.
type BotStore struct {
	mu   sync.RWMutex
	bots map[string]Bot
}

// NewBotStore builds an empty in-memory bot-assignment store.
func NewBotStore() *BotStore {
	return &BotStore{bots: make(map[string]Bot)}
}

// Assign implements BotRepository.
func (s *BotStore) Assign(bot Bot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bots[strings.ToLower(bot.Channel)] = bot
}

// Unassign implements BotRepository.
func (s *BotStore) Unassign(channel string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.bots, strings.ToLower(channel))
}

// AssignedTo implements BotRepository.
func (s *BotStore) AssignedTo(channel string) (Bot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	bot, ok := s.bots[strings.ToLower(channel)]
	return bot, ok
}

// NewBotServ builds the BotServ service backed by store.
func NewBotServ(uid string, store *BotStore) *Service {
	svc := NewService("BotServ", uid)

	svc.Register(Command{
		Name:      "ASSIGN",
		MinParams: 2,
		Help:      "ASSIGN <#channel> <bot>",
		Handler: func(sender Sender, args []string) []Reply {
			store.Assign(Bot{Name: args[1], Channel: args[0]})
			return []Reply{Reply(fmt.Sprintf("%s has been assigned to %s.", args[1], args[0]))}
		},
	})

	svc.Register(Command{
		Name:      "UNASSIGN",
		MinParams: 1,
		Help:      "UNASSIGN <#channel>",
		Handler: func(sender Sender, args []string) []Reply {
			store.Unassign(args[0])
			return []Reply{Reply(fmt.Sprintf("Bot removed from %s.", args[0]))}
		},
	})

	return svc
}

// NewOperServ builds the OperServ service. Handlers here only format
// replies; the AKILL and GLOBAL effects are carried out by the onAkill and
// onGlobal callbacks the core package passes in at startup, keeping this
// package free of a dependency on the core connection state.
func NewOperServ(uid string, onAkill, onGlobal func(args []string) string) *Service {
	svc := NewService("OperServ", uid)

	svc.Register(Command{
		Name:      "AKILL",
		MinParams: 2,
		Help:      "AKILL <mask> <reason...>",
		Handler: func(sender Sender, args []string) []Reply {
			return []Reply{Reply(onAkill(args))}
		},
	})

	svc.Register(Command{
		Name:      "GLOBAL",
		MinParams: 1,
		Help:      "GLOBAL <message...>",
		Handler: func(sender Sender, args []string) []Reply {
			return []Reply{Reply(onGlobal(args))}
		},
	})

	return svc
}
