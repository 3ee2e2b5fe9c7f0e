/*************************************************************************
 * Copyright 2026 tzapid Contributors. All rights reserved.
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package transport

import (
	"context"
	"net"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Restitutor/DiscordTZ/internal/events"
	"github.com/Restitutor/DiscordTZ/internal/transform"
	"github.com/Restitutor/DiscordTZ/internal/wire"
)

// readTimeout bounds each read step of the TCP accept loop.
const readTimeout = 5 * time.Second

// maxDrain bounds how much of a non-magic-prefixed TCP stream gets
// drained before giving up.
const maxDrain = 64 * 1024

// shutdownGrace is how long in-flight requests get to finish after the
// listening sockets close.
const shutdownGrace = 3 * time.Second

// HandleFunc is invoked once per successfully framed-and-decoded
// request, already past the transform pipeline: bytes -> framing
// codec -> transform pipeline -> JSON -> dispatcher. The listener itself has no notion of handlers or dispatch
// tables; cmd/tzapid wires HandleFunc to internal/dispatch. receivedBytes
// is the full on-wire size (header + body) of the packet as received.
type HandleFunc func(client Client, requestType byte, jsonBody []byte, receivedBytes int, protocol events.Protocol)

// OnTransformError is invoked when the transform pipeline rejects an
// otherwise well-framed packet; every pipeline failure kind maps to
// the same {400, "Bad Request"} response. receivedBytes is the full
// on-wire size (header + body) of the rejected packet.
type OnTransformError func(client Client, requestType byte, receivedBytes int, err error)

// Listener runs the TCP accept loop and UDP datagram loop on the same
// port, grounded on SimpleRelay's accept-loop shape (simple.go's
// acceptor/acceptorUDP) adapted from a per-connection line reader to
// this project's one-request framing.
type Listener struct {
	Addr    string // host:port shared by TCP and UDP
	AEADKey []byte

	OnRequest        HandleFunc
	OnTransformError OnTransformError
	OnError          func(error)
}

// Run blocks serving TCP and UDP until ctx is cancelled. It then closes
// both sockets and gives in-flight requests shutdownGrace to finish
// before returning; requests still running past that point are simply
// abandoned (their response, if any, is never sent).
func (l *Listener) Run(ctx context.Context) error {
	tcpLn, err := net.Listen("tcp", l.Addr)
	if err != nil {
		return err
	}
	udpAddr, err := net.ResolveUDPAddr("udp", l.Addr)
	if err != nil {
		tcpLn.Close()
		return err
	}
	udpConn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		tcpLn.Close()
		return err
	}

	var inFlight sync.WaitGroup

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		tcpLn.Close()
		udpConn.Close()
		return nil
	})
	g.Go(func() error {
		l.acceptTCP(gctx, tcpLn, &inFlight)
		return nil
	})
	g.Go(func() error {
		l.serveUDP(gctx, udpConn, &inFlight)
		return nil
	})
	err = g.Wait()

	drained := make(chan struct{})
	go func() {
		inFlight.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(shutdownGrace):
	}
	return err
}

func (l *Listener) acceptTCP(ctx context.Context, ln net.Listener, inFlight *sync.WaitGroup) {
	var failCount int
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			failCount++
			if l.OnError != nil {
				l.OnError(err)
			}
			if failCount > 3 {
				return
			}
			continue
		}
		failCount = 0
		inFlight.Add(1)
		go func() {
			defer inFlight.Done()
			l.handleTCPConn(conn)
		}()
	}
}

func (l *Listener) handleTCPConn(conn net.Conn) {
	defer conn.Close()

	header := make([]byte, wire.HeaderLen)
	if err := l.readFull(conn, header[:2]); err != nil {
		return
	}
	if header[0] != 't' || header[1] != 'z' {
		l.drain(conn)
		return
	}
	if err := l.readFull(conn, header[2:3]); err != nil {
		return
	}
	if header[2] != wire.HeaderLen {
		return
	}
	if err := l.readFull(conn, header[3:7]); err != nil {
		return
	}

	contentLen := int(header[5])<<8 | int(header[6])
	body := make([]byte, contentLen)
	if contentLen > 0 {
		if err := l.readFull(conn, body); err != nil {
			return
		}
	}

	full := make([]byte, 0, wire.HeaderLen+contentLen)
	full = append(full, header...)
	full = append(full, body...)
	packet, err := wire.Parse(full)
	if err != nil {
		return
	}

	client := NewTCPClient(conn, packet.Flags, l.AEADKey)
	l.process(client, packet, events.TCP)
}

func (l *Listener) readFull(conn net.Conn, buf []byte) error {
	conn.SetReadDeadline(time.Now().Add(readTimeout))
	_, err := readAtLeast(conn, buf)
	return err
}

func readAtLeast(conn net.Conn, buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		m, err := conn.Read(buf[n:])
		n += m
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

func (l *Listener) drain(conn net.Conn) {
	conn.SetReadDeadline(time.Now().Add(readTimeout))
	buf := make([]byte, 4096)
	total := 0
	for total < maxDrain {
		n, err := conn.Read(buf)
		total += n
		if err != nil {
			return
		}
	}
}

func (l *Listener) serveUDP(ctx context.Context, conn *net.UDPConn, inFlight *sync.WaitGroup) {
	buf := make([]byte, 65535)
	for {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			continue
		}
		if n < 2 || buf[0] != 't' || buf[1] != 'z' {
			continue // drop silently to avoid becoming a reflection amplifier
		}
		raw := make([]byte, n)
		copy(raw, buf[:n])
		inFlight.Add(1)
		go func() {
			defer inFlight.Done()
			l.handleUDPDatagram(conn, addr, raw)
		}()
	}
}

func (l *Listener) handleUDPDatagram(conn *net.UDPConn, addr *net.UDPAddr, raw []byte) {
	packet, err := wire.Parse(raw)
	if err != nil {
		return
	}
	client := NewUDPClient(conn, addr, packet.Flags, l.AEADKey)
	l.process(client, packet, events.UDP)
}

func (l *Listener) process(client Client, packet wire.Packet, protocol events.Protocol) {
	header := packet.Header()
	receivedBytes := wire.HeaderLen + len(packet.Body)
	jsonBody, err := transform.Ingress(packet.Flags, l.AEADKey, packet.Body, header[:])
	if err != nil {
		if l.OnTransformError != nil {
			l.OnTransformError(client, packet.RequestType, receivedBytes, err)
		}
		return
	}
	if l.OnRequest != nil {
		l.OnRequest(client, packet.RequestType, jsonBody, receivedBytes, protocol)
	}
}
