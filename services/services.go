// Package services implements the in-process pseudo-user services
// (NickServ, ChanServ, MemoServ, HostServ, BotServ, OperServ), dispatched by
// PRIVMSG to a service's reserved nickname, in the tagged-variant-plus-
// command-table style of a classic IRC-bot command executor.
package services

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Reply is a single line of text a service sends back to the caller.
type Reply string

// Sender is the context a command handler needs to talk back to the caller
// and to identify who issued the command; it is supplied by the core
// package so this package stays free of a dependency on the connection
// type.
type Sender interface {
	Nick() string
	Account() string
	IsIdentified() bool
	SendNotice(from, text string)
}

// CommandFunc implements one service subcommand.
type CommandFunc func(sender Sender, args []string) []Reply

// Command describes one subcommand's dispatch metadata.
type Command struct {
	Name      string
	MinParams int
	Handler   CommandFunc
	Help      string
}

// Service is one pseudo-user service identity with its own command table.
type Service struct {
	Name     string // displayed nickname, e.g. "NickServ"
	UID      string // synthetic UID this service is addressed by over S2S
	commands map[string]Command
	order    []string
}

// NewService creates an empty service with the given nickname/UID.
func NewService(name, uid string) *Service {
	return &Service{Name: name, UID: uid, commands: make(map[string]Command)}
}

// Register adds a subcommand to the service's table.
func (s *Service) Register(cmd Command) {
	key := strings.ToUpper(cmd.Name)
	if _, exists := s.commands[key]; !exists {
		s.order = append(s.order, key)
	}
	s.commands[key] = cmd
}

// Dispatch routes one PRIVMSG body ("REGISTER password email") to the
// matching subcommand, returning the command list for an empty body or
// HELP, or replies from the handler on success. Unknown verbs and
// under-supplied arguments never panic; they degrade to a one-line reply
// pointing at HELP or giving the command's usage.
func (s *Service) Dispatch(sender Sender, body string) []Reply {
	fields := strings.Fields(body)
	if len(fields) == 0 {
		return s.help()
	}

	verb := strings.ToUpper(fields[0])
	if verb == "HELP" {
		return s.help()
	}
	cmd, ok := s.commands[verb]
	if !ok {
		return []Reply{Reply(fmt.Sprintf("Unknown command %q. /msg %s HELP for a command list.", fields[0], s.Name))}
	}

	args := fields[1:]
	if len(args) < cmd.MinParams {
		return []Reply{Reply(fmt.Sprintf("Insufficient parameters for %s. %s", cmd.Name, cmd.Help))}
	}

	return cmd.Handler(sender, args)
}

func (s *Service) help() []Reply {
	names := append([]string(nil), s.order...)
	sort.Strings(names)

	replies := []Reply{Reply(fmt.Sprintf("%s commands:", s.Name))}
	for _, name := range names {
		cmd := s.commands[name]
		replies = append(replies, Reply(fmt.Sprintf("  %-10s %s", cmd.Name, cmd.Help)))
	}
	return replies
}

// Dispatcher is the server-wide registry of active services, addressed by
// nickname for client PRIVMSG routing and by UID for S2S routing.
type Dispatcher struct {
	mu       sync.RWMutex
	byName   map[string]*Service
	byUID    map[string]*Service
}

// NewDispatcher builds an empty service dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		byName: make(map[string]*Service),
		byUID:  make(map[string]*Service),
	}
}

// Add registers a service so it can be resolved by nickname or UID.
func (d *Dispatcher) Add(svc *Service) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.byName[strings.ToLower(svc.Name)] = svc
	d.byUID[svc.UID] = svc
}

// Resolve looks up a service by the case-insensitive nickname a client
// addressed a PRIVMSG to.
func (d *Dispatcher) Resolve(nick string) (*Service, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	svc, ok := d.byName[strings.ToLower(nick)]
	return svc, ok
}

// ResolveUID looks up a service by its synthetic S2S UID.
func (d *Dispatcher) ResolveUID(uid string) (*Service, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	svc, ok := d.byUID[uid]
	return svc, ok
}

// Names returns every registered service nickname, for ISON/WHOIS-adjacent
// lookups that need to recognize service pseudo-users.
func (d *Dispatcher) Names() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	names := make([]string, 0, len(d.byName))
	for _, svc := range d.byName {
		names = append(names, svc.Name)
	}
	sort.Strings(names)
	return names
}
