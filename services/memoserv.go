package services

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Memo is one MemoServ offline message.
type Memo struct {
	From string
	To   string
	Text string
	Sent time.Time
	Read bool
}

// MemoRepository is the storage contract for memos.
type MemoRepository interface {
	Send(memo Memo)
	Inbox(account string) []Memo
	MarkRead(account string, index int) bool
}

// MemoStore is an in-memory MemoRepository reference implementation.
type MemoStore struct {
	mu    sync.RWMutex
	boxes map[string][]Memo
}

// NewMemoStore builds an empty in-memory memo store.
func NewMemoStore() *MemoStore {
	return &MemoStore{boxes: make(map[string][]Memo)}
}

func memoKey(account string) string { return strings.ToLower(account) }

// Send implements MemoRepository.
func (s *MemoStore) Send(memo Memo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := memoKey(memo.To)
	s.boxes[key] = append(s.boxes[key], memo)
}

// Inbox implements MemoRepository.
func (s *MemoStore) Inbox(account string) []Memo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Memo(nil), s.boxes[memoKey(account)]...)
}

// MarkRead implements MemoRepository.
func (s *MemoStore) MarkRead(account string, index int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := memoKey(account)
	if index < 0 || index >= len(s.boxes[key]) {
		return false
	}
	s.boxes[key][index].Read = true
	return true
}

// NewMemoServ builds the MemoServ service backed by store.
func NewMemoServ(uid string, store *MemoStore) *Service {
	svc := NewService("MemoServ", uid)

	svc.Register(Command{
		Name:      "SEND",
		MinParams: 2,
		Help:      "SEND <nickname> <text...>",
		Handler: func(sender Sender, args []string) []Reply {
			store.Send(Memo{From: sender.Account(), To: args[0], Text: strings.Join(args[1:], " "), Sent: time.Now()})
			return []Reply{Reply(fmt.Sprintf("Memo sent to %s.", args[0]))}
		},
	})

	svc.Register(Command{
		Name:      "LIST",
		MinParams: 0,
		Help:      "LIST",
		Handler: func(sender Sender, args []string) []Reply {
			memos := store.Inbox(sender.Account())
			if len(memos) == 0 {
				return []Reply{Reply("You have no memos.")}
			}
			replies := make([]Reply, 0, len(memos)+1)
			replies = append(replies, Reply(fmt.Sprintf("You have %d memo(s):", len(memos))))
			for i, m := range memos {
				status := "unread"
				if m.Read {
					status = "read"
				}
				replies = append(replies, Reply(fmt.Sprintf("  [%d] from %s (%s): %s", i, m.From, status, m.Text)))
			}
			return replies
		},
	})

	svc.Register(Command{
		Name:      "READ",
		MinParams: 1,
		Help:      "READ <index>",
		Handler: func(sender Sender, args []string) []Reply {
			var idx int
			fmt.Sscanf(args[0], "%d", &idx)
			memos := store.Inbox(sender.Account())
			if idx < 0 || idx >= len(memos) {
				return []Reply{Reply("No such memo.")}
			}
			store.MarkRead(sender.Account(), idx)
			return []Reply{Reply(fmt.Sprintf("From %s: %s", memos[idx].From, memos[idx].Text))}
		},
	})

	return svc
}
