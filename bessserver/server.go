// Copyright 2025 R5 Labs
// This file is part of the R5 Core library.
//
// This software is provided "as is", without warranty of any kind,
// express or implied, including but not limited to the warranties
// of merchantability, fitness for a particular purpose and
// noninfringement. In no event shall the authors or copyright
// holders be liable for any claim, damages, or other liability,
// whether in an action of contract, tort or otherwise, arising
// from, out of or in connection with the software or the use or
// other dealings in the software.

// Package bessserver implements the BESS Server: a per-BESS
// listener that accepts TCP connections, drives the per-connection ETP
// message FSM, enforces per-message deadlines by post-facto
// measurement, and emits lifecycle events to the Event Bus.
package bessserver

import (
	"context"
	"errors"
	"io"
	"net"
	"strconv"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/voltmesh/etp-core/bess"
	"github.com/voltmesh/etp-core/etp"
	"github.com/voltmesh/etp-core/eventbus"
	"github.com/voltmesh/etp-core/log"
	"github.com/voltmesh/etp-core/mclock"
	"github.com/voltmesh/etp-core/transport"
)

// defaultMaxConcurrentHandlers bounds how many connection handlers can
// be actively dispatching a message at once, protecting the single
// shared Inventory's lock from unbounded goroutine pile-up under a
// connection flood.
const defaultMaxConcurrentHandlers = 256

// Server is one BESS's TCP listener. All accepted connections share the
// same Inventory.
type Server struct {
	addr string
	inv  *bess.Inventory
	bus  *eventbus.Bus
	log  log.Logger
	clk  mclock.Clock

	natEnabled bool
	sem        *semaphore.Weighted

	mu       sync.Mutex
	listener net.Listener
	running  atomic.Bool
	wg       sync.WaitGroup
}

// Option configures optional Server behavior.
type Option func(*Server)

// WithClock overrides the monotonic clock used for deadline enforcement
// (tests inject mclock.Simulated).
func WithClock(c mclock.Clock) Option { return func(s *Server) { s.clk = c } }

// WithNAT enables a best-effort NAT-PMP/UPnP port mapping attempt when
// the server starts.
func WithNAT(enabled bool) Option { return func(s *Server) { s.natEnabled = enabled } }

// WithMaxConcurrentHandlers overrides defaultMaxConcurrentHandlers.
func WithMaxConcurrentHandlers(n int64) Option {
	return func(s *Server) { s.sem = semaphore.NewWeighted(n) }
}

// New constructs a Server for the given Inventory, publishing lifecycle
// events to bus.
func New(addr string, inv *bess.Inventory, bus *eventbus.Bus, logger log.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = log.Root()
	}
	s := &Server{
		addr: addr,
		inv:  inv,
		bus:  bus,
		log:  logger.New("component", "bessserver", "device_id", inv.DeviceID),
		clk:  mclock.System{},
		sem:  semaphore.NewWeighted(defaultMaxConcurrentHandlers),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start binds the listener and runs the accept loop in a background
// goroutine, returning once the bind has succeeded (or failed).
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return &etp.Error{Kind: etp.KindConfiguration, Err: err}
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	s.running.Store(true)

	if s.natEnabled {
		if _, portStr, err := net.SplitHostPort(ln.Addr().String()); err == nil {
			if port, err := strconv.Atoi(portStr); err == nil {
				go mapPort(port, s.log)
			}
		}
	}

	s.wg.Add(1)
	go s.acceptLoop(ln)
	s.log.Info("bess server listening", "addr", ln.Addr().String())
	return nil
}

// Addr returns the bound listener address; valid only after Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop sets the running flag and closes the listener; the accept loop
// observes the flag and exits, and in-flight handlers finish their
// current message before closing.
func (s *Server) Stop() {
	if !s.running.CompareAndSwap(true, false) {
		return
	}
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()
	if ln != nil {
		ln.Close()
	}
	s.wg.Wait()
}

func (s *Server) acceptLoop(ln net.Listener) {
	defer s.wg.Done()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if !s.running.Load() {
				return // Stop() closed the listener; clean shutdown.
			}
			s.log.Error("accept failed", "err", err)
			continue
		}
		s.wg.Add(1)
		go s.handleConn(transport.New(conn))
	}
}

// handleConn runs one connection's FSM: Open -> Reading -> Responding ->
// Reading ... -> Closed. A second request is never read until the first
// response has been sent.
func (s *Server) handleConn(conn *transport.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	ctx := context.Background()
	for {
		if err := s.sem.Acquire(ctx, 1); err != nil {
			return
		}
		closed := s.serveOneMessage(conn)
		s.sem.Release(1)
		if closed {
			return
		}
		if !s.running.Load() {
			return
		}
	}
}

// serveOneMessage receives, dispatches, and (if applicable) responds to
// exactly one inbound message, enforcing its deadline. It returns true
// if the connection should be closed.
func (s *Server) serveOneMessage(conn *transport.Conn) bool {
	in, err := conn.Receive()
	if err != nil {
		s.logReceiveOutcome(err)
		return true
	}
	start := s.clk.Now()

	resp := s.dispatch(in)

	if resp != nil {
		if err := conn.Send(resp); err != nil {
			s.log.Error("send failed", "type", resp.MessageType, "err", err)
			return true
		}
	}

	elapsed := s.clk.Now().Sub(start)
	if elapsed > etp.MaxDelay(in) {
		s.log.Warn("deadline exceeded, closing connection",
			"type", in.MessageType, "elapsed", elapsed, "max_delay", etp.MaxDelay(in))
		return true
	}
	return in.MessageType == etp.Terminate
}

func (s *Server) logReceiveOutcome(err error) {
	if errors.Is(err, io.EOF) {
		s.log.Debug("connection closed by peer")
		return
	}
	s.log.Warn("receive failed, closing connection", "err", err)
}
