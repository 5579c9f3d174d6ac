// Package lspsrv wires the reactor, framer, dispatcher, and document
// collection into a runnable LSP server loop, and registers the small set
// of lifecycle and text-synchronization handlers the core itself owns.
// Everything else is left to the application's own handler registrations.
package lspsrv

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"sync/atomic"

	"github.com/gopherlsp/lspcore/document"
	"github.com/gopherlsp/lspcore/framer"
	"github.com/gopherlsp/lspcore/internal/version"
	"github.com/gopherlsp/lspcore/jsonrpc"
	"github.com/gopherlsp/lspcore/reactor"
	"github.com/prometheus/client_golang/prometheus"
)

// Config configures a Session. In must be backed by a real file descriptor
// (e.g. os.Stdin) since the Reactor multiplexes on fds, not io.Readers.
type Config struct {
	Debug bool // enable debug logging

	In  *os.File  // input stream, normally os.Stdin
	Out io.Writer // output stream, normally os.Stdout
	Err io.Writer // destination for human-readable logging and final stats

	FramerCapacity         int  // Framer buffer size; defaults to 1<<20
	IdleTimeoutMs          int  // Reactor idle tick; defaults to 250ms
	CaseInsensitiveHeaders bool // relax Content-Length header matching
	Unit                   document.Unit

	// Name advertised in initialize's serverInfo; defaults to "lspcored".
	Name string

	Metrics *prometheus.CounterVec // optional; nil disables metrics
}

func (c Config) serverName() string {
	if c.Name == "" {
		return "lspcored"
	}
	return c.Name
}

func (c Config) version() string { return version.Version() }

type state int

const (
	uninitialized state = iota
	initialized
	shuttingDown
)

// Session owns one stdio connection to an editor: the reactor driving its
// event loop, the framer/dispatcher pair turning bytes into handler calls,
// and the document collection the core's own text-sync handlers mutate.
type Session struct {
	cfg Config

	reactor    *reactor.Reactor
	framer     *framer.Framer
	dispatcher *jsonrpc.Dispatcher
	documents  *document.Collection
	out        *jsonrpc.Writer

	logger *slog.Logger
	state  state

	shutdownRequested atomic.Bool
	runErr            error
}

// New builds a Session and registers the core's own lifecycle and
// text-synchronization handlers. Application code registers its own
// handlers on the returned Session's Dispatcher and Reactor afterward.
func New(cfg Config) (*Session, error) {
	if cfg.FramerCapacity == 0 {
		cfg.FramerCapacity = 1 << 20
	}
	if cfg.IdleTimeoutMs == 0 {
		cfg.IdleTimeoutMs = 250
	}
	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cfg.Err, &slog.HandlerOptions{Level: level}))

	s := &Session{
		cfg:       cfg,
		reactor:   reactor.New(),
		framer:    framer.New(cfg.FramerCapacity),
		documents: document.NewCollection(),
		logger:    logger,
		out:       jsonrpc.NewWriter(cfg.Out),
	}

	var opts []jsonrpc.Option
	if cfg.Metrics != nil {
		opts = append(opts, jsonrpc.WithMetrics(cfg.Metrics))
	}
	s.dispatcher = jsonrpc.New(s.out.Write, opts...)
	s.framer.CaseInsensitiveHeaders = cfg.CaseInsensitiveHeaders
	s.framer.SetProcessor(s.processMessage)

	s.registerCoreHandlers()

	if err := s.reactor.OnReadable(int(cfg.In.Fd()), s.readStdin); err != nil {
		return nil, err
	}
	s.reactor.OnIdle(s.watchShutdown)

	return s, nil
}

// Dispatcher exposes the session's dispatcher so application code can
// register its own request and notification handlers.
func (s *Session) Dispatcher() *jsonrpc.Dispatcher { return s.dispatcher }

// Reactor exposes the session's reactor so application code can register
// additional fds or idle callbacks (e.g. a file watcher).
func (s *Session) Reactor() *reactor.Reactor { return s.reactor }

// Documents exposes the document collection so idle diagnostics callbacks
// can scan it via MapChangedSince.
func (s *Session) Documents() *document.Collection { return s.documents }

// RequestShutdown marks the session for termination. It is safe to call
// from the signal-watching goroutine as well as from the core's own
// shutdown/exit handlers; it only ever sets a flag, observed by the stdin
// reader callback and by an idle callback so a shutdown requested while
// the stream is quiescent still takes effect.
func (s *Session) RequestShutdown() {
	s.shutdownRequested.Store(true)
}

// Run drives the reactor until the stdin fd deregisters itself, logging
// final dispatcher statistics to cfg.Err on the way out. It returns the
// fatal framer error, if any, that caused the stdin callback to
// deregister; a clean EOF or a requested shutdown both return nil.
func (s *Session) Run() error {
	s.reactor.Run(s.cfg.IdleTimeoutMs)
	s.logStats()
	return s.runErr
}

func (s *Session) logStats() {
	for _, stat := range s.dispatcher.Stats() {
		s.logger.Info("dispatch stat", "method", stat.Name, "count", stat.Count)
	}
}

func (s *Session) readStdin(fd int) bool {
	if s.shutdownRequested.Load() {
		return false
	}
	err := s.framer.Pull(framer.ReadFunc(s.cfg.In.Read))
	if err == nil {
		return true
	}
	if err == framer.ErrUnavailable {
		s.logger.Debug("stdin closed")
		return false
	}
	s.logger.Error("framer error, terminating session", "error", err)
	s.runErr = err
	return false
}

func (s *Session) watchShutdown() bool {
	if s.shutdownRequested.Load() {
		s.reactor.RemoveReadable(int(s.cfg.In.Fd()))
	}
	return true
}

func (s *Session) processMessage(header, body []byte) {
	s.logger.Debug("received message", "body", string(body))
	if err := s.dispatcher.Dispatch(body); err != nil {
		s.logger.Error("dispatch failed", "error", err)
	}
}

// guardRequest enforces the initialize/shutdown state machine ahead of
// routing, independent of which handlers (core or application) are
// registered for a given method.
func (s *Session) guardRequest(method string) error {
	switch s.state {
	case uninitialized:
		if method == "initialize" {
			return nil
		}
		return &jsonrpc.Error{Code: jsonrpc.ServerNotInitialized, Message: "server not initialized"}
	case shuttingDown:
		if method == "shutdown" {
			return nil
		}
		return &jsonrpc.Error{Code: jsonrpc.InvalidRequest, Message: "server is shutting down"}
	default: // initialized
		if method == "initialize" {
			return &jsonrpc.Error{Code: jsonrpc.InvalidRequest, Message: "server already initialized"}
		}
		return nil
	}
}

func (s *Session) registerCoreHandlers() {
	d := s.dispatcher

	d.SetGuard(s.guardRequest)

	d.AddRequestHandler("initialize", func(params json.RawMessage) (any, error) {
		s.state = initialized
		return s.initializeResult(), nil
	})
	d.AddNotificationHandler("initialized", func(params json.RawMessage) error {
		return nil
	})
	d.AddRequestHandler("shutdown", func(params json.RawMessage) (any, error) {
		s.state = shuttingDown
		return nil, nil
	})
	d.AddNotificationHandler("exit", func(params json.RawMessage) error {
		s.RequestShutdown()
		return nil
	})

	d.AddNotificationHandler("textDocument/didOpen", func(params json.RawMessage) error {
		var p didOpenParams
		if err := json.Unmarshal(params, &p); err != nil {
			return err
		}
		return s.documents.Open(p.TextDocument.URI, p.TextDocument.Text)
	})
	d.AddNotificationHandler("textDocument/didChange", func(params json.RawMessage) error {
		var p didChangeParams
		if err := json.Unmarshal(params, &p); err != nil {
			return err
		}
		changes := make([]document.Change, 0, len(p.ContentChanges))
		for _, cc := range p.ContentChanges {
			changes = append(changes, cc.toChange(s.cfg.Unit))
		}
		s.documents.Change(p.TextDocument.URI, changes)
		return nil
	})
	d.AddNotificationHandler("textDocument/didClose", func(params json.RawMessage) error {
		var p didCloseParams
		if err := json.Unmarshal(params, &p); err != nil {
			return err
		}
		s.documents.Close(p.TextDocument.URI)
		return nil
	})
	d.AddNotificationHandler("textDocument/didSave", func(params json.RawMessage) error {
		var p didSaveParams
		if err := json.Unmarshal(params, &p); err != nil {
			return err
		}
		s.documents.Save(p.TextDocument.URI)
		return nil
	})
}
