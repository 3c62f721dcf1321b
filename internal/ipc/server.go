package ipc

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/pavelc4/auriya/internal/config"
	"github.com/pavelc4/auriya/internal/daemon"
	"github.com/pavelc4/auriya/internal/errors"
	"github.com/pavelc4/auriya/internal/logger"
	"github.com/pavelc4/auriya/internal/profile"
	"github.com/pavelc4/auriya/internal/telemetry"
)

const (
	greeting     = "OK AURIYA IPC\n"
	readBuffer   = 4096
	writeTimeout = 5 * time.Second
)

// ProfileSetter applies a profile outside the tick cadence
type ProfileSetter interface {
	SetProfile(ctx context.Context, p profile.Profile) error
}

// Config holds the paths the server needs
type Config struct {
	SocketPath    string
	LogFile       string
	ServiceScript string
}

// Server is the admin protocol front-end. Every connection gets its own
// goroutine; handlers touch each shared resource independently.
type Server struct {
	cfg      Config
	shared   *daemon.Shared
	profiles ProfileSetter
	packages telemetry.PackageLister
	restart  func(logFile, script string) error
	shutdown func()
	reloads  chan<- config.ReloadEvent
	log      logger.Logger

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	wg       sync.WaitGroup
}

type Option func(*Server)

// WithShutdown is called after a successful RESTART spawn
func WithShutdown(fn func()) Option {
	return func(s *Server) {
		s.shutdown = fn
	}
}

// WithRestarter replaces the detached service script spawn
func WithRestarter(fn func(logFile, script string) error) Option {
	return func(s *Server) {
		s.restart = fn
	}
}

// WithReloadNotify receives a SettingsChanged event after a successful
// RELOAD. Sends never block.
func WithReloadNotify(ch chan<- config.ReloadEvent) Option {
	return func(s *Server) {
		s.reloads = ch
	}
}

func NewServer(cfg Config, sh *daemon.Shared, profiles ProfileSetter, packages telemetry.PackageLister, opts ...Option) *Server {
	s := &Server{
		cfg:      cfg,
		shared:   sh,
		profiles: profiles,
		packages: packages,
		restart:  spawnRestart,
		shutdown: func() {},
		log:      logger.With("ipc"),
		conns:    make(map[net.Conn]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Listen binds the socket, replacing a stale one, and opens it to every
// local user.
func (s *Server) Listen() error {
	errFactory := errors.New()

	if err := os.RemoveAll(s.cfg.SocketPath); err != nil {
		return errFactory.Wrap(errors.ErrListenSocket, err)
	}

	ln, err := net.Listen("unix", s.cfg.SocketPath)
	if err != nil {
		return errFactory.Wrap(errors.ErrListenSocket, err)
	}

	if err := os.Chmod(s.cfg.SocketPath, 0o666); err != nil {
		ln.Close()
		return errFactory.Wrap(errors.ErrListenSocket, err)
	}

	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	s.log.Info().Str("socket", s.cfg.SocketPath).Msg("IPC listening")

	return nil
}

// Serve accepts connections until ctx is cancelled, then closes every open
// connection and waits for their handlers.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()
	if ln == nil {
		return errors.New().WithMessage(errors.ErrListenSocket, "Serve called before Listen")
	}

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
		case <-stop:
		}
		s.closeAll()
	}()

	defer func() {
		s.closeAll()
		s.wg.Wait()
		_ = os.Remove(s.cfg.SocketPath)
		s.log.Info().Msg("IPC stopped")
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.log.Warn().Err(err).Msg("Accept failed")
			continue
		}

		if !s.track(conn) {
			conn.Close()
			return nil
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.untrack(conn)
			s.serveConn(ctx, conn)
		}()
	}
}

// Run is Listen followed by Serve
func (s *Server) Run(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}

	return s.Serve(ctx)
}

func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conns == nil {
		return false
	}
	s.conns[conn] = struct{}{}

	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conns != nil {
		delete(s.conns, conn)
	}
}

func (s *Server) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		s.listener.Close()
	}
	for c := range s.conns {
		c.Close()
	}
	s.conns = nil
}

// serveConn runs one session. A panic or I/O error ends only this
// connection.
func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Msg("IPC handler panicked")
		}
	}()

	s.log.Debug().Msg("Client connected")

	if err := s.write(conn, greeting); err != nil {
		s.log.Debug().Err(err).Msg("Greeting failed")
		return
	}

	r := bufio.NewReaderSize(conn, readBuffer)
	for {
		line, tooLong, err := readLine(r)
		if err != nil {
			if err != io.EOF && ctx.Err() == nil && !errors.Is(err, net.ErrClosed) {
				s.log.Warn().Err(err).Msg("Client read failed")
			}
			return
		}

		var resp string
		quit := false
		if tooLong || len(line) > MaxLineLength {
			resp = "ERR input too long\n"
		} else {
			resp, quit = s.dispatch(ctx, line)
		}

		if resp != "" {
			if err := s.write(conn, resp); err != nil {
				s.log.Warn().Err(err).Msg("Client write failed")
				return
			}
		}
		if quit {
			return
		}
	}
}

func (s *Server) dispatch(ctx context.Context, line string) (string, bool) {
	cmd, err := Parse(line)
	if err != nil {
		return errLine(err), false
	}

	s.log.Debug().Str("command", fmt.Sprintf("%T", cmd)).Msg("IPC command")

	return s.handle(ctx, cmd)
}

func (s *Server) write(conn net.Conn, resp string) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	_, err := io.WriteString(conn, resp)

	return err
}

// readLine returns one line without its terminator. A line longer than
// the read buffer is drained and reported as too long.
func readLine(r *bufio.Reader) (string, bool, error) {
	line, isPrefix, err := r.ReadLine()
	if err != nil {
		return "", false, err
	}
	if !isPrefix {
		return string(line), false, nil
	}

	for isPrefix {
		if _, isPrefix, err = r.ReadLine(); err != nil {
			return "", true, err
		}
	}

	return "", true, nil
}

// errLine renders err as a single ERR line
func errLine(err error) string {
	return "ERR " + strings.ReplaceAll(err.Error(), "\n", " ") + "\n"
}
