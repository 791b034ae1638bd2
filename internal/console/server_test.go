package console

import (
	"bufio"
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/daralet-ac/ACE-sub005/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type recorder struct {
	mu    sync.Mutex
	lines []string
}

func (r *recorder) Execute(_ context.Context, line string) []string {
	r.mu.Lock()
	r.lines = append(r.lines, line)
	r.mu.Unlock()
	return []string{"ran " + line}
}

func startServer(t *testing.T, exec Executor, attempts int) *Server {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.MinCost)
	require.NoError(t, err)

	s, err := NewServer(config.ConsoleConfig{
		Enabled:      true,
		BindAddress:  "127.0.0.1:0",
		PasswordHash: string(hash),
		MaxAttempts:  attempts,
	}, exec, zap.NewNop())
	require.NoError(t, err)

	go s.AcceptLoop(context.Background())
	t.Cleanup(s.Shutdown)
	return s
}

type client struct {
	t    *testing.T
	conn net.Conn
	r    *bufio.Reader
}

func dial(t *testing.T, s *Server) *client {
	t.Helper()
	conn, err := net.Dial("tcp", s.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	conn.SetDeadline(time.Now().Add(5 * time.Second))
	return &client{t: t, conn: conn, r: bufio.NewReader(conn)}
}

func (c *client) expect(want string) {
	c.t.Helper()
	line, err := c.r.ReadString('\n')
	require.NoError(c.t, err)
	assert.Equal(c.t, want+"\n", line)
}

func (c *client) send(line string) {
	c.t.Helper()
	_, err := c.conn.Write([]byte(line + "\r\n"))
	require.NoError(c.t, err)
}

func TestConsole_LoginAndCommands(t *testing.T) {
	rec := &recorder{}
	c := dial(t, startServer(t, rec, 3))

	c.expect("Password:")
	c.send("guess")
	c.expect("Invalid password.")
	c.expect("Password:")
	c.send("secret")
	c.expect("Welcome. Type help for a list of commands.")

	c.send("knownobjs 0x50000001")
	c.expect("ran knownobjs 0x50000001")
	c.send("")
	c.send("stats")
	c.expect("ran stats")
	c.send("quit")
	c.expect("Bye.")

	_, err := c.r.ReadString('\n')
	assert.Error(t, err)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, []string{"knownobjs 0x50000001", "stats"}, rec.lines)
}

func TestConsole_TooManyAttempts(t *testing.T) {
	rec := &recorder{}
	c := dial(t, startServer(t, rec, 2))

	c.expect("Password:")
	c.send("a")
	c.expect("Invalid password.")
	c.expect("Password:")
	c.send("b")
	c.expect("Too many failed attempts.")

	_, err := c.r.ReadString('\n')
	assert.Error(t, err)
	assert.Empty(t, rec.lines)
}

func TestNewServer_RejectsBadHash(t *testing.T) {
	_, err := NewServer(config.ConsoleConfig{BindAddress: "127.0.0.1:0"}, &recorder{}, zap.NewNop())
	assert.Error(t, err)

	_, err = NewServer(config.ConsoleConfig{BindAddress: "127.0.0.1:0", PasswordHash: "plaintext"}, &recorder{}, zap.NewNop())
	assert.Error(t, err)
}

// failingListener fails every Accept until closed.
type failingListener struct {
	calls  atomic.Int32
	closed chan struct{}
}

func (l *failingListener) Accept() (net.Conn, error) {
	l.calls.Add(1)
	select {
	case <-l.closed:
		return nil, net.ErrClosed
	default:
		return nil, errors.New("accept: too many open files")
	}
}

func (l *failingListener) Close() error {
	close(l.closed)
	return nil
}

func (l *failingListener) Addr() net.Addr { return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1)} }

func TestAcceptLoop_BacksOffOnErrors(t *testing.T) {
	ln := &failingListener{closed: make(chan struct{})}
	s := &Server{
		listener: ln,
		log:      zap.NewNop(),
		closeCh:  make(chan struct{}),
		conns:    make(map[uint64]net.Conn),
	}

	done := make(chan struct{})
	go func() {
		s.AcceptLoop(context.Background())
		close(done)
	}()

	time.Sleep(100 * time.Millisecond)
	// 5+10+20+40 ms of backoff fit in the window; a busy loop would spin
	// thousands of times
	assert.Less(t, ln.calls.Load(), int32(10))
	assert.GreaterOrEqual(t, ln.calls.Load(), int32(2))

	s.Shutdown()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("accept loop did not stop")
	}
}
