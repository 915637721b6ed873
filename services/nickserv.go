package services

import (
	"fmt"

	"github.com/corvid-irc/corvid/accounts"
)

// accountSetter is satisfied by the core package's connection type, letting
// REGISTER/IDENTIFY bind the caller's session to the account without this
// package importing the core package.
type accountSetter interface {
	SetAccount(name string)
}

func bindAccount(sender Sender, name string) {
	if setter, ok := sender.(accountSetter); ok {
		setter.SetAccount(name)
	}
}

// NewNickServ builds the NickServ service, backed by store for account
// registration/authentication. Per the recorded decision on concurrent
// nickname collisions, REGISTER always creates the account and binds it to
// the caller's current nickname; it never blocks on another session
// holding that nickname, leaving collision resolution to ordinary
// nick-ownership enforcement.
func NewNickServ(uid string, store *accounts.Store) *Service {
	svc := NewService("NickServ", uid)

	svc.Register(Command{
		Name:      "REGISTER",
		MinParams: 2,
		Help:      "REGISTER <password> <email>",
		Handler: func(sender Sender, args []string) []Reply {
			nick := sender.Nick()
			_, err := store.Register(nick, args[0], args[1])
			if err != nil {
				if err == accounts.ErrAlreadyRegistered {
					return []Reply{Reply(fmt.Sprintf("The nickname %s is already registered.", nick))}
				}
				return []Reply{Reply("Registration failed: " + err.Error())}
			}
			bindAccount(sender, nick)
			return []Reply{Reply(fmt.Sprintf("%s is now registered to your account.", nick))}
		},
	})

	svc.Register(Command{
		Name:      "IDENTIFY",
		MinParams: 1,
		Help:      "IDENTIFY <password>",
		Handler: func(sender Sender, args []string) []Reply {
			nick := sender.Nick()
			if _, err := store.Authenticate(nick, args[0]); err != nil {
				return []Reply{Reply("Invalid password.")}
			}
			bindAccount(sender, nick)
			return []Reply{Reply(fmt.Sprintf("You are now identified for %s.", nick))}
		},
	})

	svc.Register(Command{
		Name:      "DROP",
		MinParams: 1,
		Help:      "DROP <password>",
		Handler: func(sender Sender, args []string) []Reply {
			nick := sender.Nick()
			if _, err := store.Authenticate(nick, args[0]); err != nil {
				return []Reply{Reply("Invalid password.")}
			}
			store.Delete(nick)
			return []Reply{Reply(fmt.Sprintf("%s has been dropped.", nick))}
		},
	})

	svc.Register(Command{
		Name:      "INFO",
		MinParams: 0,
		Help:      "INFO [nickname]",
		Handler: func(sender Sender, args []string) []Reply {
			name := sender.Nick()
			if len(args) > 0 {
				name = args[0]
			}
			acct, err := store.Get(name)
			if err != nil {
				return []Reply{Reply(fmt.Sprintf("%s is not registered.", name))}
			}
			return []Reply{Reply(fmt.Sprintf("%s was registered on %s.", acct.Name, acct.RegisteredAt.Format("2006-01-02")))}
		},
	})

	return svc
}
