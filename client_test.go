package fusionbridge

import (
	"bufio"
	"net"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// scriptedServer accepts connections and hands each one to serve,
// counting accepts so tests can assert on retry behavior.
type scriptedServer struct {
	ln      net.Listener
	accepts atomic.Int64
}

func newScriptedServer(t *testing.T, serve func(n int64, conn net.Conn)) *scriptedServer {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	t.Cleanup(func() { _ = ln.Close() })

	s := &scriptedServer{ln: ln}

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}

			n := s.accepts.Add(1)

			go serve(n, conn)
		}
	}()

	return s
}

func (s *scriptedServer) port() int {
	return s.ln.Addr().(*net.TCPAddr).Port
}

// answerPing replies to each request line with a success envelope.
func answerPing(conn net.Conn) {
	defer conn.Close()

	r := bufio.NewReader(conn)

	for {
		if _, err := r.ReadBytes('\n'); err != nil {
			return
		}

		if _, err := conn.Write([]byte(`{"success":true,"data":{"status":"ok"}}` + "\n")); err != nil {
			return
		}
	}
}

func TestClient_LazyConnect(t *testing.T) {
	s := newScriptedServer(t, func(_ int64, conn net.Conn) { answerPing(conn) })

	c := NewClient(WithPort(s.port()), WithDialTimeout(time.Second))
	defer c.Close()

	// No connection until the first Send.
	require.Zero(t, s.accepts.Load())

	env, err := c.Ping()
	require.NoError(t, err)
	require.True(t, env.Success)
	require.EqualValues(t, 1, s.accepts.Load())

	// The connection persists across sends.
	_, err = c.Ping()
	require.NoError(t, err)
	require.EqualValues(t, 1, s.accepts.Load())
}

func TestClient_ReconnectOnce(t *testing.T) {
	// The server drops the first connection as soon as a request
	// arrives, then behaves normally.
	s := newScriptedServer(t, func(n int64, conn net.Conn) {
		if n == 1 {
			r := bufio.NewReader(conn)
			_, _ = r.ReadBytes('\n')
			_ = conn.Close()

			return
		}

		answerPing(conn)
	})

	c := NewClient(WithPort(s.port()), WithDialTimeout(time.Second))
	defer c.Close()

	env, err := c.Ping()
	require.NoError(t, err)
	require.True(t, env.Success)
	require.EqualValues(t, 2, s.accepts.Load(), "exactly one reconnect")
}

func TestClient_SecondTransportFailureSurfaces(t *testing.T) {
	// Every connection is dropped on first request: the single retry is
	// spent, and the failure surfaces as a connectivity error.
	s := newScriptedServer(t, func(_ int64, conn net.Conn) {
		r := bufio.NewReader(conn)
		_, _ = r.ReadBytes('\n')
		_ = conn.Close()
	})

	c := NewClient(WithPort(s.port()), WithDialTimeout(time.Second))
	defer c.Close()

	_, err := c.Ping()
	require.Error(t, err)

	var connErr *ConnectionError
	require.ErrorAs(t, err, &connErr)
	require.EqualValues(t, 2, s.accepts.Load(), "no third attempt")
}

func TestClient_ConnectionRefused(t *testing.T) {
	// Grab a free port and release it so nothing listens there.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	c := NewClient(WithPort(port), WithDialTimeout(time.Second))
	defer c.Close()

	_, err = c.Ping()
	require.Error(t, err)

	var connErr *ConnectionError
	require.ErrorAs(t, err, &connErr)
	require.Equal(t, "127.0.0.1", connErr.Host)
	require.Equal(t, port, connErr.Port)
	require.Contains(t, err.Error(), "make sure the host application is running")
}

func TestClient_ProtocolErrorNotRetried(t *testing.T) {
	s := newScriptedServer(t, func(_ int64, conn net.Conn) {
		defer conn.Close()

		r := bufio.NewReader(conn)

		if _, err := r.ReadBytes('\n'); err != nil {
			return
		}

		_, _ = conn.Write([]byte("<html>this is not json</html>\n"))
	})

	c := NewClient(WithPort(s.port()), WithDialTimeout(time.Second))
	defer c.Close()

	_, err := c.Ping()
	require.Error(t, err)

	var protoErr *ProtocolError
	require.ErrorAs(t, err, &protoErr)
	require.Contains(t, protoErr.RawData, "not json")
	require.EqualValues(t, 1, s.accepts.Load(), "protocol errors are not retried")
}

func TestClient_ResponseSplitAcrossReads(t *testing.T) {
	s := newScriptedServer(t, func(_ int64, conn net.Conn) {
		defer conn.Close()

		r := bufio.NewReader(conn)

		if _, err := r.ReadBytes('\n'); err != nil {
			return
		}

		// Dribble the response out in fragments.
		for _, part := range []string{`{"success":true,`, `"data":"slow`, ` wire"}`, "\n"} {
			_, _ = conn.Write([]byte(part))

			time.Sleep(10 * time.Millisecond)
		}
	})

	c := NewClient(WithPort(s.port()), WithDialTimeout(2*time.Second))
	defer c.Close()

	env, err := c.Ping()
	require.NoError(t, err)
	require.True(t, env.Success)
	require.Equal(t, "slow wire", env.Data)
}

func TestClient_ClosedClientRejectsSend(t *testing.T) {
	c := NewClient(WithPort(1))
	require.NoError(t, c.Close())

	_, err := c.Ping()
	require.ErrorIs(t, err, ErrClientClosed)
}

func TestClient_PortFromEnvironment(t *testing.T) {
	s := newScriptedServer(t, func(_ int64, conn net.Conn) { answerPing(conn) })

	t.Setenv("FUSION_CAM_MCP_PORT", strconv.Itoa(s.port()))

	c := NewClient(WithDialTimeout(time.Second))
	defer c.Close()

	env, err := c.Ping()
	require.NoError(t, err)
	require.True(t, env.Success)
}
