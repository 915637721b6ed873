package services

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// RegisteredChannel is a ChanServ-owned channel registration record.
type RegisteredChannel struct {
	Name         string
	Founder      string
	Topic        string
	RegisteredAt time.Time
	Successors   []string
}

// ChannelRepository is the storage contract for registered channels.
type ChannelRepository interface {
	Get(name string) (RegisteredChannel, bool)
	Put(ch RegisteredChannel)
	Delete(name string)
}

// ChannelStore is an in-memory ChannelRepository reference implementation.
type ChannelStore struct {
	mu       sync.RWMutex
	channels map[string]RegisteredChannel
}

// NewChannelStore builds an empty in-memory channel registration store.
func NewChannelStore() *ChannelStore {
	return &ChannelStore{channels: make(map[string]RegisteredChannel)}
}

func chanKey(name string) string { return strings.ToLower(name) }

// Get implements ChannelRepository.
func (s *ChannelStore) Get(name string) (RegisteredChannel, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ch, ok := s.channels[chanKey(name)]
	return ch, ok
}

// Put implements ChannelRepository.
func (s *ChannelStore) Put(ch RegisteredChannel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channels[chanKey(ch.Name)] = ch
}

// Delete implements ChannelRepository.
func (s *ChannelStore) Delete(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.channels, chanKey(name))
}

// NewChanServ builds the ChanServ service backed by store.
func NewChanServ(uid string, store *ChannelStore) *Service {
	svc := NewService("ChanServ", uid)

	svc.Register(Command{
		Name:      "REGISTER",
		MinParams: 1,
		Help:      "REGISTER <#channel>",
		Handler: func(sender Sender, args []string) []Reply {
			name := args[0]
			if _, exists := store.Get(name); exists {
				return []Reply{Reply(fmt.Sprintf("%s is already registered.", name))}
			}
			store.Put(RegisteredChannel{Name: name, Founder: sender.Account(), RegisteredAt: time.Now()})
			return []Reply{Reply(fmt.Sprintf("%s is now registered to %s.", name, sender.Nick()))}
		},
	})

	svc.Register(Command{
		Name:      "DROP",
		MinParams: 1,
		Help:      "DROP <#channel>",
		Handler: func(sender Sender, args []string) []Reply {
			name := args[0]
			ch, exists := store.Get(name)
			if !exists {
				return []Reply{Reply(fmt.Sprintf("%s is not registered.", name))}
			}
			if !strings.EqualFold(ch.Founder, sender.Account()) {
				return []Reply{Reply("You are not the founder of that channel.")}
			}
			store.Delete(name)
			return []Reply{Reply(fmt.Sprintf("%s has been dropped.", name))}
		},
	})

	svc.Register(Command{
		Name:      "INFO",
		MinParams: 1,
		Help:      "INFO <#channel>",
		Handler: func(sender Sender, args []string) []Reply {
			ch, exists := store.Get(args[0])
			if !exists {
				return []Reply{Reply(fmt.Sprintf("%s is not registered.", args[0]))}
			}
			return []Reply{Reply(fmt.Sprintf("%s: founder %s, registered %s", ch.Name, ch.Founder, ch.RegisteredAt.Format("2006-01-02")))}
		},
	})

	return svc
}
