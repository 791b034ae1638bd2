package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/daralet-ac/ACE-sub005/internal/config"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	idleTimeout = 15 * time.Minute
	maxLineLen  = 4096

	minAcceptDelay = 5 * time.Millisecond
	maxAcceptDelay = time.Second
)

// Executor runs one operator command line.
type Executor interface {
	Execute(ctx context.Context, line string) []string
}

// Server is the operator console: a line-oriented TCP service. The first
// lines of a connection are password attempts; after that every line is a
// command. Each connection runs on its own goroutine, concurrently with the
// landblock ticks.
type Server struct {
	listener    net.Listener
	exec        Executor
	hash        []byte
	maxAttempts int
	nextID      atomic.Uint64
	log         *zap.Logger

	closeCh chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	conns   map[uint64]net.Conn
}

func NewServer(cfg config.ConsoleConfig, exec Executor, log *zap.Logger) (*Server, error) {
	if cfg.PasswordHash == "" {
		return nil, errors.New("console password hash is empty")
	}
	if _, err := bcrypt.Cost([]byte(cfg.PasswordHash)); err != nil {
		return nil, fmt.Errorf("console password hash: %w", err)
	}
	ln, err := net.Listen("tcp", cfg.BindAddress)
	if err != nil {
		return nil, fmt.Errorf("console listen %s: %w", cfg.BindAddress, err)
	}
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return &Server{
		listener:    ln,
		exec:        exec,
		hash:        []byte(cfg.PasswordHash),
		maxAttempts: attempts,
		log:         log,
		closeCh:     make(chan struct{}),
		conns:       make(map[uint64]net.Conn),
	}, nil
}

// AcceptLoop runs in its own goroutine until Shutdown. Repeated accept
// failures back off from 5ms up to 1s.
func (s *Server) AcceptLoop(ctx context.Context) {
	var delay time.Duration
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.closeCh:
				return // server shutting down
			default:
			}
			if delay == 0 {
				delay = minAcceptDelay
			} else {
				delay *= 2
			}
			if delay > maxAcceptDelay {
				delay = maxAcceptDelay
			}
			s.log.Error("console accept failed", zap.Error(err), zap.Duration("retry_in", delay))
			select {
			case <-s.closeCh:
				return
			case <-time.After(delay):
			}
			continue
		}
		delay = 0

		id := s.nextID.Add(1)
		s.mu.Lock()
		s.conns[id] = conn
		s.mu.Unlock()

		s.log.Info("console connection", zap.Uint64("conn", id), zap.String("ip", conn.RemoteAddr().String()))
		s.wg.Add(1)
		go s.serve(ctx, id, conn)
	}
}

// Shutdown stops accepting, drops open connections and waits for them.
func (s *Server) Shutdown() {
	close(s.closeCh)
	s.listener.Close()
	s.mu.Lock()
	for _, c := range s.conns {
		c.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// Addr returns the listener's address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

type lineConn struct {
	conn net.Conn
	in   *bufio.Scanner
	out  *bufio.Writer
}

func (c *lineConn) readLine() (string, bool) {
	c.conn.SetReadDeadline(time.Now().Add(idleTimeout))
	if !c.in.Scan() {
		return "", false
	}
	return strings.TrimRight(c.in.Text(), "\r"), true
}

func (c *lineConn) write(lines ...string) error {
	for _, l := range lines {
		c.out.WriteString(l)
		c.out.WriteByte('\n')
	}
	return c.out.Flush()
}

func (s *Server) serve(ctx context.Context, id uint64, conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		conn.Close()
		s.mu.Lock()
		delete(s.conns, id)
		s.mu.Unlock()
		s.log.Info("console disconnected", zap.Uint64("conn", id))
	}()

	in := bufio.NewScanner(conn)
	in.Buffer(make([]byte, 0, 256), maxLineLen)
	c := &lineConn{conn: conn, in: in, out: bufio.NewWriter(conn)}

	if !s.authenticate(id, c) {
		return
	}

	for {
		line, ok := c.readLine()
		if !ok {
			return
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "":
			continue
		case "quit", "exit":
			c.write("Bye.")
			return
		}
		if err := c.write(s.exec.Execute(ctx, line)...); err != nil {
			return
		}
	}
}

func (s *Server) authenticate(id uint64, c *lineConn) bool {
	for attempt := 1; ; attempt++ {
		if err := c.write("Password:"); err != nil {
			return false
		}
		pw, ok := c.readLine()
		if !ok {
			return false
		}
		if bcrypt.CompareHashAndPassword(s.hash, []byte(pw)) == nil {
			s.log.Info("console login", zap.Uint64("conn", id))
			c.write("Welcome. Type help for a list of commands.")
			return true
		}
		s.log.Warn("console login failed", zap.Uint64("conn", id), zap.Int("attempt", attempt))
		if attempt >= s.maxAttempts {
			c.write("Too many failed attempts.")
			return false
		}
		c.write("Invalid password.")
	}
}
