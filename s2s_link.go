/*
   Copyright (c) 2023, btnmasher
   All rights reserved.
   Use of this source code is governed by a BSD-style
   license that can be found in the LICENSE file.
*/

package corvid

import (
	"bufio"
	"crypto/tls"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/corvid-irc/corvid/config"
	"github.com/corvid-irc/corvid/s2s"
)

// LinkPingInterval sets how often an established server link is checked for
// a dead peer.
const LinkPingInterval = 90 * time.Second

// serverPeer is the transport side of one outbound or inbound server link,
// satisfying s2s.Peer so the LinkManager can address it without depending on
// net.Conn directly.
type serverPeer struct {
	sid  string
	sock net.Conn
	out  *bufio.Writer

	mu sync.Mutex
}

// SendRaw writes a single protocol line to the peer, appending CRLF if the
// caller didn't already.
func (peer *serverPeer) SendRaw(line string) error {
	peer.mu.Lock()
	defer peer.mu.Unlock()

	if !strings.HasSuffix(line, "\r\n") {
		line += "\r\n"
	}

	if _, err := peer.out.WriteString(line); err != nil {
		return err
	}

	return peer.out.Flush()
}

// RemoteSID reports the SID this peer was linked under.
func (peer *serverPeer) RemoteSID() string {
	return peer.sid
}

// ConnectLink dials a configured S2S peer, completes the PASS/SERVER
// handshake, and registers the resulting link with the server's
// LinkManager. It blocks until the handshake completes or fails; once
// linked, inbound traffic is read and relayed by a background goroutine.
func (server *Server) ConnectLink(link config.LinkBlock) error {
	self := server.Links.Self()
	if self == nil {
		return fmt.Errorf("irc: cannot connect link %q: local SID is not configured", link.Name)
	}

	var sock net.Conn
	var err error

	if link.TLS {
		sock, err = tls.Dial("tcp", link.Address, &tls.Config{})
	} else {
		sock, err = net.Dial("tcp", link.Address)
	}
	if err != nil {
		return fmt.Errorf("irc: dialing link %q at %s: %w", link.Name, link.Address, err)
	}

	peer := &serverPeer{
		sid:  link.SID,
		sock: sock,
		out:  bufio.NewWriter(sock),
	}

	if err := peer.SendRaw(fmt.Sprintf("PASS %s TS 6 :%s", link.PasswordHash, self.SID)); err != nil {
		sock.Close()
		return fmt.Errorf("irc: sending PASS to link %q: %w", link.Name, err)
	}

	if err := peer.SendRaw(fmt.Sprintf("SERVER %s 1 :%s", self.Name, server.Network())); err != nil {
		sock.Close()
		return fmt.Errorf("irc: sending SERVER to link %q: %w", link.Name, err)
	}

	reader := bufio.NewScanner(sock)
	sock.SetReadDeadline(time.Now().Add(LinkPingInterval))
	if !reader.Scan() {
		sock.Close()
		return fmt.Errorf("irc: link %q closed before completing handshake", link.Name)
	}

	greeting := reader.Text()
	if !strings.Contains(greeting, "SERVER") {
		sock.Close()
		return fmt.Errorf("irc: link %q sent unexpected handshake reply: %s", link.Name, greeting)
	}

	node := s2s.NewServerNode(link.SID, link.Name, greeting, self)
	node.SetBursting(true)
	server.Links.AddLink(node, peer)

	server.linkPeersMu.Lock()
	server.linkPeers[link.SID] = peer
	server.linkPeersMu.Unlock()

	log.Infof("irc: S2S link established to %s (%s) at %s", link.Name, link.SID, link.Address)

	go server.readLink(node, peer, reader)

	return nil
}

// readLink processes inbound protocol lines from an established server
// link: it answers keepalive PINGs, relays SJOIN, EUID, TMODE and ENCAP
// lines to every other direct peer, and closes the link on SQUIT or EOF,
// after which the LinkManager drops the peer and every node behind it.
// Any other line is only logged at debug level.
func (server *Server) readLink(node *s2s.ServerNode, peer *serverPeer, reader *bufio.Scanner) {
	defer func() {
		peer.sock.Close()
		server.Links.RemoveLink(node.SID)
		server.linkPeersMu.Lock()
		delete(server.linkPeers, node.SID)
		server.linkPeersMu.Unlock()
		log.Infof("irc: S2S link to %s (%s) closed", node.Name, node.SID)
	}()

	for {
		peer.sock.SetReadDeadline(time.Now().Add(LinkPingInterval))

		if !reader.Scan() {
			return
		}

		line := reader.Text()
		log.Debugf("irc: [%s]->[SERVER]: %s", node.Name, line)

		fields := strings.Fields(line)
		command := ""
		for _, field := range fields {
			if !strings.HasPrefix(field, ":") {
				command = strings.ToUpper(field)
				break
			}
		}

		node.Touch()

		switch command {
		case "PING":
			peer.SendRaw(fmt.Sprintf(":%s PONG", server.Links.Self().SID))
		case "SQUIT":
			return
		case "SJOIN", "EUID", "TMODE", "ENCAP":
			server.Links.Broadcast(line, node.SID)
		}
	}
}
