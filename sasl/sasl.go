// Package sasl implements the SASL authentication engine used during
// connection registration: a mechanism registry, chunked AUTHENTICATE
// buffering per the 400-byte-chunk/8192-byte-cap IRCv3 SASL contract, and
// the PLAIN and EXTERNAL mechanisms.
package sasl

import (
	"encoding/base64"
	"errors"
	"strings"

	"github.com/corvid-irc/corvid/accounts"
)

// ChunkSize is the maximum length of one AUTHENTICATE base64 chunk before
// the client must continue with another line.
const ChunkSize = 400

// MaxPayload is the maximum total decoded SASL payload size accepted
// across all chunks of one exchange.
const MaxPayload = 8192

// ErrPayloadTooLarge is returned when the accumulated chunks would exceed
// MaxPayload.
var ErrPayloadTooLarge = errors.New("sasl: payload exceeds maximum size")

// ErrAborted is returned when the client sends "AUTHENTICATE *".
var ErrAborted = errors.New("sasl: authentication aborted")

// Result carries the outcome of a completed mechanism exchange.
type Result struct {
	Account string
}

// Mechanism implements one SASL authentication method.
type Mechanism interface {
	// Name is the wire mechanism name, e.g. "PLAIN".
	Name() string
	// Authenticate consumes the full decoded client payload (after all
	// chunks have been reassembled) and returns the authenticated account
	// name, or an error.
	Authenticate(payload []byte, peerVerifiedTLS bool) (Result, error)
}

// Registry holds the mechanisms advertised and accepted during SASL.
type Registry struct {
	mechanisms map[string]Mechanism
	order      []string
}

// NewRegistry builds an empty mechanism registry.
func NewRegistry() *Registry {
	return &Registry{mechanisms: make(map[string]Mechanism)}
}

// Register adds a mechanism, keyed by its uppercase wire name.
func (r *Registry) Register(m Mechanism) {
	name := strings.ToUpper(m.Name())
	if _, exists := r.mechanisms[name]; !exists {
		r.order = append(r.order, name)
	}
	r.mechanisms[name] = m
}

// Names returns the advertised mechanism list, in registration order, for
// the CAP LS sasl=... value.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Get resolves a mechanism by wire name.
func (r *Registry) Get(name string) (Mechanism, bool) {
	m, ok := r.mechanisms[strings.ToUpper(name)]
	return m, ok
}

// Session tracks one in-progress AUTHENTICATE exchange across chunks.
type Session struct {
	registry  *Registry
	mechanism Mechanism
	buffer    []byte
}

// NewSession starts a session for the named mechanism, or returns false if
// the mechanism is not registered.
func NewSession(registry *Registry, mechanismName string) (*Session, bool) {
	mech, ok := registry.Get(mechanismName)
	if !ok {
		return nil, false
	}
	return &Session{registry: registry, mechanism: mech}, true
}

// Feed appends one AUTHENTICATE chunk. A chunk is "+" to mean "empty
// payload" per the IRCv3 spec. When chunk is shorter than ChunkSize
// (including the terminal empty chunk required after an exact multiple),
// the payload is complete and Feed returns the mechanism's Result.
func (s *Session) Feed(chunk string, peerVerifiedTLS bool) (result Result, done bool, err error) {
	if chunk == "*" {
		return Result{}, true, ErrAborted
	}

	var decoded []byte
	if chunk != "+" {
		decoded, err = base64.StdEncoding.DecodeString(chunk)
		if err != nil {
			return Result{}, true, err
		}
	}

	s.buffer = append(s.buffer, decoded...)
	if len(s.buffer) > MaxPayload {
		return Result{}, true, ErrPayloadTooLarge
	}

	if len(chunk) == ChunkSize {
		// More chunks expected.
		return Result{}, false, nil
	}

	result, err = s.mechanism.Authenticate(s.buffer, peerVerifiedTLS)
	return result, true, err
}

// PlainMechanism implements SASL PLAIN: authzid\0authcid\0password, checked
// against the account store's bcrypt-hashed password.
type PlainMechanism struct {
	Store *accounts.Store
}

// Name implements Mechanism.
func (PlainMechanism) Name() string { return "PLAIN" }

// Authenticate implements Mechanism.
func (m PlainMechanism) Authenticate(payload []byte, _ bool) (Result, error) {
	parts := strings.SplitN(string(payload), "\x00", 3)
	if len(parts) != 3 {
		return Result{}, errors.New("sasl: malformed PLAIN payload")
	}

	authcid, password := parts[1], parts[2]
	if _, err := m.Store.Authenticate(authcid, password); err != nil {
		return Result{}, err
	}

	return Result{Account: authcid}, nil
}

// ExternalMechanism implements SASL EXTERNAL: the client is authenticated
// purely by their already-verified TLS client certificate, mapped to an
// account name supplied out of band (typically the certificate's stored
// fingerprint association).
type ExternalMechanism struct {
	// Resolve maps a verified connection to the account it authenticates
	// as. It is called with the trailing authzid (often empty) from the
	// EXTERNAL payload.
	Resolve func(authzid string) (string, bool)
}

// Name implements Mechanism.
func (ExternalMechanism) Name() string { return "EXTERNAL" }

// Authenticate implements Mechanism.
func (m ExternalMechanism) Authenticate(payload []byte, peerVerifiedTLS bool) (Result, error) {
	if !peerVerifiedTLS {
		return Result{}, errors.New("sasl: EXTERNAL requires a verified TLS client certificate")
	}

	account, ok := m.Resolve(string(payload))
	if !ok {
		return Result{}, errors.New("sasl: no account associated with this certificate")
	}

	return Result{Account: account}, nil
}
