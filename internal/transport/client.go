/*************************************************************************
 * Copyright 2026 tzapid Contributors. All rights reserved.
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package transport is the client abstraction and listener: a
// uniform send/close/peer surface over TCP and UDP, and
// the accept/datagram loops that feed the dispatcher. Grounded on the
// teacher's ingesters/SimpleRelay/simple.go accept-loop shape
// (acceptor/acceptorUDP, addConn/delConn bookkeeping) adapted from a
// line-oriented ingest reader to this project's one-request framing.
package transport

import (
	"net"

	"github.com/Restitutor/DiscordTZ/internal/transform"
	"github.com/Restitutor/DiscordTZ/internal/wire"
)

// Client is the uniform send/close/peer surface required over both
// transports.
type Client interface {
	// Send applies the egress transform pipeline using the client's
	// stored ingress flags and AEAD key, then writes the result,
	// returning the number of on-wire bytes written.
	Send(requestType byte, jsonBody []byte) (int, error)
	Close() error
	Peer() net.Addr
	Flags() wire.Flags
}

type baseClient struct {
	flags wire.Flags
	key   []byte
}

func (b baseClient) buildEgress(requestType byte, jsonBody []byte) ([]byte, error) {
	return transform.Egress(requestType, b.flags, b.key, jsonBody)
}

// TCPClient owns a duplex stream and closes it after its single
// response, matching the one-request-per-connection model.
type TCPClient struct {
	baseClient
	conn net.Conn
}

// NewTCPClient wraps conn, remembering the ingress flags and AEAD key
// so Send can reapply them on egress.
func NewTCPClient(conn net.Conn, flags wire.Flags, key []byte) *TCPClient {
	return &TCPClient{baseClient: baseClient{flags: flags, key: key}, conn: conn}
}

func (c *TCPClient) Send(requestType byte, jsonBody []byte) (int, error) {
	out, err := c.buildEgress(requestType, jsonBody)
	if err != nil {
		return 0, err
	}
	return c.conn.Write(out)
}

func (c *TCPClient) Close() error      { return c.conn.Close() }
func (c *TCPClient) Peer() net.Addr    { return c.conn.RemoteAddr() }
func (c *TCPClient) Flags() wire.Flags { return c.flags }

// UDPClient owns the shared UDP socket and a peer address; Close is a
// no-op since the socket outlives any single request.
type UDPClient struct {
	baseClient
	conn *net.UDPConn
	addr *net.UDPAddr
}

// NewUDPClient binds a response path to addr over the shared socket
// conn.
func NewUDPClient(conn *net.UDPConn, addr *net.UDPAddr, flags wire.Flags, key []byte) *UDPClient {
	return &UDPClient{baseClient: baseClient{flags: flags, key: key}, conn: conn, addr: addr}
}

func (c *UDPClient) Send(requestType byte, jsonBody []byte) (int, error) {
	out, err := c.buildEgress(requestType, jsonBody)
	if err != nil {
		return 0, err
	}
	return c.conn.WriteToUDP(out, c.addr)
}

func (c *UDPClient) Close() error      { return nil }
func (c *UDPClient) Peer() net.Addr    { return c.addr }
func (c *UDPClient) Flags() wire.Flags { return c.flags }

var (
	_ Client = (*TCPClient)(nil)
	_ Client = (*UDPClient)(nil)
)
