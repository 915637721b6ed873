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
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/btnmasher/util"
	"github.com/sirupsen/logrus"

	"github.com/corvid-irc/corvid/accounts"
	"github.com/corvid-irc/corvid/ban"
	"github.com/corvid-irc/corvid/caps"
	"github.com/corvid-irc/corvid/config"
	"github.com/corvid-irc/corvid/s2s"
	"github.com/corvid-irc/corvid/sasl"
	"github.com/corvid-irc/corvid/services"
	"github.com/corvid-irc/corvid/shared/logfmt"
)

// ErrServerClosed is returned by Server.Serve/ListenAndServe/ListenAndServeTLS
// after a call to Shutdown.
var ErrServerClosed = errors.New("irc: Server closed")

// KeepAliveTimeout sets the connection timeout duration on the client IRC connections.
const KeepAliveTimeout time.Duration = 2 * time.Minute

// WriteTimeout sets the write timeout duration on the client IRC connections.
const WriteTimeout time.Duration = 5 * time.Second

// PingTimeout sets the PING/PONG timeout duration on the client IRC connections.
const PingTimeout time.Duration = 30 * time.Second

// MessagePoolMax sets the message pool buffer length
const MessagePoolMax = 1000

// BufferPoolMax sets the bytes.Buffer pool length
const BufferPoolMax = 1000

// WriteQueueLength sets the length of each connections write queue channel.
const WriteQueueLength = 10

// msgpool holds a reference to the global Message object pool.
var msgpool = NewMessagePool(MessagePoolMax)

// bufpool holds a reference to the global bytes.Buffer object pool.
var bufpool = util.NewBufferPool(BufferPoolMax)

var log *logrus.Logger

// Server holds the state of an IRC server instance.
type Server struct {
	sync.RWMutex

	// Configuration related stuff
	listenAddr string
	hostname   string
	motd       string
	welcome    string
	support    *util.ConcurrentMapString

	// Active State
	Users     *UserMap
	Nicks     *UserMap
	Conns     *ConnMap
	Channels  *ChanMap
	TLSConfig *tls.Config

	Bans     *ban.Engine
	Links    *s2s.LinkManager
	Services *services.Dispatcher
	Accounts *accounts.Store
	Caps     *caps.Registry
	SASL     *sasl.Registry
	Limiter  *Limiters
	Broker   *Broker

	// Opers maps an operator login name to its bcrypt password hash, as
	// configured by the config package's OperBlock list.
	Opers map[string]string

	// Webirc lists the trusted gateway blocks allowed to spoof a client's
	// origin via the WEBIRC command, as configured by the config package.
	Webirc []config.WebircBlock

	// LinkConfigs lists the configured S2S peers available to the CONNECT
	// operator command, looked up by LinkBlock.Name.
	LinkConfigs []config.LinkBlock

	// linkPeers tracks the transport side of each established S2S link by
	// SID, so SQUIT can close the underlying socket rather than only
	// forgetting the LinkManager's bookkeeping.
	linkPeers   map[string]*serverPeer
	linkPeersMu sync.Mutex

	WhoWas *WhoWasStore

	listener net.Listener

	shutdownCtx context.Context
	closing     bool
	closeMu     sync.Mutex
}

// Option configures a Server at construction time.
type Option func(*Server) error

// WithHostname sets the server's advertised hostname.
func WithHostname(host string) Option {
	return func(server *Server) error {
		server.SetHostname(host)
		return nil
	}
}

// WithNetwork sets the server's advertised network name.
func WithNetwork(network string) Option {
	return func(server *Server) error {
		server.SetNetwork(network)
		return nil
	}
}

// WithLogger assigns the logrus.Logger used by the entire irc package.
func WithLogger(logger *logrus.Logger) Option {
	return func(server *Server) error {
		log = logger
		return nil
	}
}

// WithLogLevel sets the logging verbosity of the assigned logger.
func WithLogLevel(level logrus.Level) Option {
	return func(server *Server) error {
		if log == nil {
			return errors.New("irc: WithLogLevel requires WithLogger to run first")
		}
		log.SetLevel(level)
		return nil
	}
}

// WithDefaultLogFormatter installs the package's colorized log formatter.
func WithDefaultLogFormatter() Option {
	return func(server *Server) error {
		if log == nil {
			return errors.New("irc: WithDefaultLogFormatter requires WithLogger to run first")
		}
		log.SetFormatter(logfmt.New())
		return nil
	}
}

// WithGracefulShutdown arranges for Serve to return ErrServerClosed once ctx
// is cancelled: the listener is closed and every active connection gets a
// write deadline of timeout from that moment. Nothing waits for connections
// to finish, and none is closed by force.
func WithGracefulShutdown(ctx context.Context, timeout time.Duration) Option {
	return func(server *Server) error {
		server.shutdownCtx = ctx
		go server.awaitShutdown(ctx, timeout)
		return nil
	}
}

// WithOpers registers the network operator logins available to the OPER
// command from a config.Config's Opers block.
func WithOpers(opers []config.OperBlock) Option {
	return func(server *Server) error {
		for _, o := range opers {
			server.Opers[o.Name] = o.PasswordHash
		}
		return nil
	}
}

// WithWebirc registers the trusted WEBIRC gateway blocks allowed to spoof a
// connecting client's origin.
func WithWebirc(gateways []config.WebircBlock) Option {
	return func(server *Server) error {
		server.Webirc = append(server.Webirc, gateways...)
		return nil
	}
}

// WithTLSConfig assigns a *tls.Config used by ListenAndServeTLS.
func WithTLSConfig(cfg *tls.Config) Option {
	return func(server *Server) error {
		server.TLSConfig = cfg
		return nil
	}
}

// WithConfig applies a loaded config.Config document: network identity,
// MOTD/welcome text, operator and WEBIRC gateway blocks, the account
// registration policy, and the flood-protection limiter buckets.
func WithConfig(cfg *config.Config) Option {
	return func(server *Server) error {
		server.SetHostname(cfg.Server.Name)
		server.SetNetwork(cfg.Server.Network)
		server.SetWelcome(cfg.Server.Welcome)
		if len(cfg.Server.Listen) > 0 {
			server.SetAddress(cfg.Server.Listen[0])
		}

		if cfg.Server.MOTD != "" {
			motd, err := os.ReadFile(cfg.Server.MOTD)
			if err != nil {
				return fmt.Errorf("irc: reading motd file: %w", err)
			}
			server.SetMOTD(string(motd))
		}

		for _, o := range cfg.Opers {
			server.Opers[o.Name] = o.PasswordHash
		}
		server.Webirc = append(server.Webirc, cfg.Webirc...)
		server.LinkConfigs = append(server.LinkConfigs, cfg.Links...)

		if cfg.Server.SID != "" {
			server.Links.SetSelf(s2s.NewServerNode(cfg.Server.SID, cfg.Server.Name, cfg.Server.Network, nil))
		}

		server.Limiter = NewLimiters(
			cfg.Limits.EnableFloodProtection,
			cfg.Limits.MessagesPerSecond,
			cfg.Limits.CommandsPerSecond,
			cfg.Limits.ConnectionsPerMinute,
		)

		return nil
	}
}

func (server *Server) awaitShutdown(ctx context.Context, timeout time.Duration) {
	<-ctx.Done()

	server.closeMu.Lock()
	server.closing = true
	listener := server.listener
	server.closeMu.Unlock()

	if listener != nil {
		listener.Close()
	}

	deadline := time.Now().Add(timeout)
	server.Conns.ForEach(func(conn *Conn) {
		conn.sock.SetWriteDeadline(deadline)
	})
}

// Warmup initializes the irc library for use.
func Warmup(logger *logrus.Logger) {
	log = logger
	log.Info("irc: Registering message handlers")
	router := NewRouter(log.WithField("component", "irc"))
	registerHandlers(router)
	router.PrintHandlers()
	defaultRouter = router

	log.Info("irc: Warming up message pool")
	msgpool.Warmup(MessagePoolMax)
}

// NewServer initializes and returns a new instance of a Server, applying
// the given Options in order. If no logger has been configured yet, a
// default logrus.Logger is installed before the options are applied.
func NewServer(opts ...Option) (*Server, error) {
	server := &Server{
		Users:     NewUserMap(),
		Nicks:     NewUserMap(),
		Conns:     NewConnMap(),
		Channels:  NewChanMap(),
		support:   util.NewConcurrentMapString(),
		Bans:      ban.NewEngine(),
		Links:     s2s.NewLinkManager(),
		Services:  services.NewDispatcher(),
		Accounts:  accounts.NewStore(0),
		Caps:      caps.NewRegistry(),
		SASL:      sasl.NewRegistry(),
		Limiter:   NewLimiters(true, 5, 10, 20),
		Opers:     make(map[string]string),
		WhoWas:    NewWhoWasStore(),
		linkPeers: make(map[string]*serverPeer),
	}
	server.Broker = NewBroker(server)

	server.Caps.Advertise(caps.CapNotify, nil)
	server.Caps.Advertise(caps.MessageTags, nil)
	server.Caps.Advertise(caps.ServerTime, nil)
	server.Caps.Advertise(caps.AccountNotify, nil)
	server.Caps.Advertise(caps.AwayNotify, nil)
	server.Caps.Advertise(caps.ExtendedJoin, nil)
	server.Caps.Advertise(caps.MultiPrefix, nil)
	server.Caps.Advertise(caps.EchoMessage, nil)
	server.Caps.Advertise(caps.UserhostInNames, nil)

	server.SASL.Register(sasl.PlainMechanism{Store: server.Accounts})
	server.Caps.Advertise(caps.SASL, func() string {
		return strings.Join(server.SASL.Names(), ",")
	})
	server.setISupport()
	server.registerServices()

	if log == nil {
		log = logrus.New()
	}

	for _, opt := range opts {
		if err := opt(server); err != nil {
			return nil, err
		}
	}

	Warmup(log)

	return server, nil
}

// Network returns the configured network name of the server in a
// concurrency safe manner.
func (server *Server) Network() string {
	val, err := server.support.Get("network")
	if err != nil {
		return server.Hostname()
	}
	return val
}

// SetNetwork sets the configured network name of the server in a
// concurrency safe manner.
func (server *Server) SetNetwork(new string) {
	if server.support.Set("network", new) != nil {
		log.Error("irc: Could not set server parameter: network")
	}
}

// Address returns the configured address of the server in a
// concurrency safe manner.
func (server *Server) Address() string {
	server.RLock()
	defer server.RUnlock()

	if len(server.listenAddr) < 1 {
		if server.listener != nil {
			return server.listener.Addr().String()
		}
		return ""
	}
	return server.listenAddr
}

// SetAddress sets the configured address of the server in a
// concurrency safe manner.
func (server *Server) SetAddress(addr string) {
	server.Lock()
	defer server.Unlock()

	server.listenAddr = addr
}

// Hostname returns the configured hostname of the server in a
// concurrency safe manner.
func (server *Server) Hostname() string {
	server.RLock()
	defer server.RUnlock()

	if len(server.hostname) < 1 {
		return server.listener.Addr().String()
	}
	return server.hostname
}

// SetHostname sets the configured hostname of the server in a
// concurrency safe manner.
func (server *Server) SetHostname(host string) {
	server.Lock()
	defer server.Unlock()

	server.hostname = host
}

// MOTD returns the configured MOTD of the server in a
// concurrency safe manner.
func (server *Server) MOTD() string {
	server.RLock()
	defer server.RUnlock()

	if len(server.motd) < 1 {
		return "Server has no MOTD message set."
	}
	return server.motd
}

// SetMOTD sets the configured MOTD of the server in a
// concurrency safe manner.
func (server *Server) SetMOTD(motd string) {
	server.Lock()
	defer server.Unlock()

	server.motd = motd
}

// Welcome returns the configured welcome message of the server in a
// concurrency safe manner.
func (server *Server) Welcome() string {
	server.RLock()
	defer server.RUnlock()

	if len(server.welcome) < 1 {
		return "Server has no welcome message set."
	}
	return server.welcome
}

// SetWelcome sets the configured welcome message of the server in a
// concurrency safe manner.
func (server *Server) SetWelcome(msg string) {
	server.Lock()
	defer server.Unlock()

	server.welcome = msg
}

// ISupport returns a slice of formatted ISupport key=value pairs.
func (server *Server) ISupport() []string {
	support := make([]string, server.support.Length())
	index := 0
	var buffer bytes.Buffer

	server.support.ForEach(func(config, setting string) {
		buffer.WriteString(strings.ToUpper(config))

		if len(setting) > 0 {
			buffer.WriteString("=")
			buffer.WriteString(setting)
		}

		support[index] = buffer.String()
		buffer.Reset()
		index++
	})

	return support
}

func (server *Server) setISupport() {
	server.support.Add("chanmodes", "bhoOv,p,LMT,AacEeFHIimNnPqRrstV")
	server.support.Add("prefix", "(Oohv)~@%+")
	server.support.Add("maxpara", fmt.Sprint(MaxMsgParams))
	server.support.Add("modes", fmt.Sprint(MaxModeChange))
	server.support.Add("chanlimit", fmt.Sprintf("#!:%v", MaxJoinedChans))
	server.support.Add("nicklen", fmt.Sprint(MaxNickLength))
	server.support.Add("maxlist", fmt.Sprintf("bhov:%v,O:1", MaxListItems))
	server.support.Add("casemapping", "ascii")
	server.support.Add("topiclen", fmt.Sprint(MaxTopicLength))
	server.support.Add("kicklen", fmt.Sprint(MaxKickLength))
	server.support.Add("chanlen", fmt.Sprint(MaxChanLength))
	server.support.Add("awaylen", fmt.Sprint(MaxAwayLength))
}

// ListenAndServe listens on the server's configured TCP address (Address)
// and then calls Serve to handle the irc.Conn sessions.
// Accepted connections are configured to enable TCP keep-alives.
//
// If the configured address is blank, ":6667" is used.
//
// ListenAndServe always returns a non-nil error.
func (server *Server) ListenAndServe() error {
	addr := server.Address()
	if addr == "" {
		addr = ":6667"
	}

	listen, err := net.Listen("tcp4", addr)

	if err != nil {
		return err
	}

	return server.Serve(tcpKeepAliveListener{listen.(*net.TCPListener)})
}

// ListenAndServeTLS listens on the server's configured TCP address (Address) and
// then calls Serve to handle the irc.Conn sessions on a TLS connection.
// Accepted connections are configured to enable TCP keep-alives.
//
// Filenames containing a certificate and matching private key for the
// server must be provided if neither the Server's TLSConfig.Certificates
// nor TLSConfig.GetCertificate are populated. If the certificate is
// signed by a certificate authority, the certFile should be the
// concatenation of the server's certificate, any intermediates, and
// the CA's certificate.
//
// If the configured address is blank, ":6697" is used.
//
// ListenAndServeTLS always returns a non-nil error.
func (server *Server) ListenAndServeTLS(certFile, keyFile string) error {
	addr := server.Address()
	if addr == "" {
		addr = ":6697"
	}

	config := cloneTLSConfig(server.TLSConfig)

	configHasCert := len(config.Certificates) > 0 || config.GetCertificate != nil
	if !configHasCert || certFile != "" || keyFile != "" {
		var err error
		config.Certificates = make([]tls.Certificate, 1)
		config.Certificates[0], err = tls.LoadX509KeyPair(certFile, keyFile)
		if err != nil {
			return err
		}
	}

	listen, err := net.Listen("tcp4", addr)
	if err != nil {
		return err
	}

	tlsListener := tls.NewListener(tcpKeepAliveListener{listen.(*net.TCPListener)}, config)
	return server.Serve(tlsListener)
}

// Serve starts an IRC server which listens for connections on the given
// net.Listener, accepts them when they arrive, then assigns them to a new
// instance of irc.Conn
func (server *Server) Serve(listen net.Listener) error {
	defer listen.Close()

	server.closeMu.Lock()
	server.listener = listen
	server.closeMu.Unlock()

	log.Printf("irc: Starting IRC server listener at local address [%s]", listen.Addr())

	var tempDelay time.Duration // how long to sleep on accept failure

	for {
		log.Debug("irc: Listening for connection...")
		sock, err := listen.Accept()
		log.Debug("irc: Accepting connection...")

		if err != nil {
			server.closeMu.Lock()
			closing := server.closing
			server.closeMu.Unlock()
			if closing {
				return ErrServerClosed
			}

			if neterr, ok := err.(net.Error); ok && neterr.Temporary() {
				if tempDelay == 0 {
					tempDelay = 5 * time.Millisecond
				} else {
					tempDelay *= 2
				}

				if max := 1 * time.Second; tempDelay > max {
					tempDelay = max
				}

				log.Errorf("irc: Error accepting connection: %v; retrying in %vms", err, tempDelay.Nanoseconds()/int64(time.Millisecond))
				time.Sleep(tempDelay)
				continue
			}

			return err
		}

		log.Debug("irc: Accepted connection.")

		tempDelay = 0
		conn := NewConn(server, sock)
		go serve(conn)
	}
}

// cloneTLSConfig returns a shallow clone of the exported
// fields of cfg, ignoring the unexported sync.Once, which
// contains a mutex and must not be copied.
//
// The cfg must not be in active use by tls.Server, or else
// there can still be a race with tls.Server updating SessionTicketKey
// and our copying it, and also a race with the server setting
// SessionTicketsDisabled=false on failure to set the random
// ticket key.
//
// If cfg is nil, a new zero tls.Config is returned.
func cloneTLSConfig(cfg *tls.Config) *tls.Config {
	if cfg == nil {
		return &tls.Config{}
	}
	return &tls.Config{
		Rand:                     cfg.Rand,
		Time:                     cfg.Time,
		Certificates:             cfg.Certificates,
		NameToCertificate:        cfg.NameToCertificate,
		GetCertificate:           cfg.GetCertificate,
		RootCAs:                  cfg.RootCAs,
		NextProtos:               cfg.NextProtos,
		ServerName:               cfg.ServerName,
		ClientAuth:               cfg.ClientAuth,
		ClientCAs:                cfg.ClientCAs,
		InsecureSkipVerify:       cfg.InsecureSkipVerify,
		CipherSuites:             cfg.CipherSuites,
		PreferServerCipherSuites: cfg.PreferServerCipherSuites,
		SessionTicketsDisabled:   cfg.SessionTicketsDisabled,
		SessionTicketKey:         cfg.SessionTicketKey,
		ClientSessionCache:       cfg.ClientSessionCache,
		MinVersion:               cfg.MinVersion,
		MaxVersion:               cfg.MaxVersion,
		CurvePreferences:         cfg.CurvePreferences,
	}
}

// debugServerConnections controls whether all server connections are wrapped
// with a verbose logging wrapper.
// const debugServerConnections = false

// tcpKeepAliveListener sets TCP keep-alive timeouts on accepted
// connections. It's used by ListenAndServe and ListenAndServeTLS so
// dead TCP connections (e.g. closing laptop mid-download) eventually
// go away.
type tcpKeepAliveListener struct {
	*net.TCPListener
}

func (listen tcpKeepAliveListener) Accept() (net.Conn, error) {
	conn, err := listen.AcceptTCP()
	if err != nil {
		return nil, err
	}
	conn.SetKeepAlive(true)
	conn.SetKeepAlivePeriod(KeepAliveTimeout)
	return conn, nil
}
