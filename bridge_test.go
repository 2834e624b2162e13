package fusionbridge

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func startBridge(t *testing.T, opts ...Option) *Bridge {
	t.Helper()

	opts = append([]Option{WithPort(0)}, opts...)

	b := New(opts...)
	require.NoError(t, b.Start(context.Background()))

	t.Cleanup(func() { _ = b.Close() })

	return b
}

func bridgeClient(t *testing.T, b *Bridge, opts ...Option) *Client {
	t.Helper()

	opts = append([]Option{WithPort(b.Port()), WithDialTimeout(5 * time.Second)}, opts...)

	c := NewClient(opts...)
	t.Cleanup(func() { _ = c.Close() })

	return c
}

func TestBridge_PingEndToEnd(t *testing.T) {
	b := startBridge(t)
	c := bridgeClient(t, b)

	env, err := c.Ping()
	require.NoError(t, err)
	require.True(t, env.Success)

	data, ok := env.Data.(map[string]any)
	require.True(t, ok)
	require.Equal(t, "ok", data["status"])
}

func TestBridge_ExecuteScriptEndToEnd(t *testing.T) {
	b := startBridge(t)
	c := bridgeClient(t, b)

	env, err := c.Execute(`
		function run(params)
			return { doubled = params.n * 2 }
		end
	`, map[string]any{"n": 21.0})

	require.NoError(t, err)
	require.True(t, env.Success)
	require.Equal(t, map[string]any{"doubled": 42.0}, env.Data)
}

func TestBridge_ExecuteHandlerEndToEnd(t *testing.T) {
	b := startBridge(t, WithHandler(Handler{
		Name: "get_document_info",
		Fn: func(_ context.Context, _ map[string]any) (any, error) {
			return map[string]any{"name": "bracket_v3", "units": "mm"}, nil
		},
	}))
	c := bridgeClient(t, b)

	env, err := c.Execute("get_document_info", nil)
	require.NoError(t, err)
	require.True(t, env.Success)
	require.Equal(t, map[string]any{"name": "bracket_v3", "units": "mm"}, env.Data)
}

func TestBridge_EnvelopeRoundTripsByteForByte(t *testing.T) {
	b := startBridge(t)
	c := bridgeClient(t, b)

	env, err := c.Execute(`function run(params) return params end`, map[string]any{
		"depth":    -3.175,
		"passes":   []any{1.0, 2.0, 3.0},
		"coolant":  true,
		"strategy": "adaptive",
	})
	require.NoError(t, err)
	require.True(t, env.Success)

	got, err := json.Marshal(env.Data)
	require.NoError(t, err)
	require.JSONEq(t,
		`{"depth":-3.175,"passes":[1,2,3],"coolant":true,"strategy":"adaptive"}`,
		string(got))
}

func TestBridge_NoDoubleWrapEndToEnd(t *testing.T) {
	b := startBridge(t)
	c := bridgeClient(t, b)

	env, err := c.Execute(`result = { success = false, error = "X" }`, nil)
	require.NoError(t, err)

	raw, jsonErr := json.Marshal(env)
	require.NoError(t, jsonErr)
	require.JSONEq(t, `{"success":false,"error":"X"}`, string(raw))
}

func TestBridge_PingWhileSlowExecute(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})

	b := startBridge(t, WithHandler(Handler{
		Name: "generate_toolpaths",
		Fn: func(_ context.Context, _ map[string]any) (any, error) {
			close(entered)
			<-release

			return "done", nil
		},
	}), WithCallTimeout(time.Minute))

	slow := bridgeClient(t, b)
	fast := bridgeClient(t, b)

	slowDone := make(chan error, 1)

	go func() {
		_, err := slow.Execute("generate_toolpaths", nil)
		slowDone <- err
	}()

	select {
	case <-entered:
	case <-time.After(5 * time.Second):
		t.Fatal("slow call never started")
	}

	start := time.Now()

	env, err := fast.Ping()
	require.NoError(t, err)
	require.True(t, env.Success)
	require.Less(t, time.Since(start), 2*time.Second,
		"ping must not queue behind the slow call")

	close(release)
	require.NoError(t, <-slowDone)
}

func TestBridge_MalformedLineThenValid(t *testing.T) {
	b := startBridge(t)

	conn, err := net.DialTimeout("tcp", b.Addr(), time.Second)
	require.NoError(t, err)

	defer conn.Close()

	r := bufio.NewReader(conn)

	_, err = conn.Write([]byte("garbage that is not json\n{\"action\":\"ping\"}\n"))
	require.NoError(t, err)

	var env Envelope

	line, err := r.ReadBytes('\n')
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(line, &env))
	require.False(t, env.Success)
	require.Contains(t, env.Error, "Invalid JSON")

	line, err = r.ReadBytes('\n')
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(line, &env))
	require.True(t, env.Success)
}

func TestBridge_StartTwice(t *testing.T) {
	b := startBridge(t)

	require.ErrorIs(t, b.Start(context.Background()), ErrAlreadyStarted)
}

func TestBridge_CloseIdempotentAndFinal(t *testing.T) {
	b := New(WithPort(0))
	require.NoError(t, b.Start(context.Background()))

	require.NoError(t, b.Close())
	require.NoError(t, b.Close())

	require.ErrorIs(t, b.Start(context.Background()), ErrBridgeClosed)
}

func TestBridge_PortAlreadyBound(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	defer ln.Close()

	port := ln.Addr().(*net.TCPAddr).Port

	b := New(WithPort(port))
	err = b.Start(context.Background())
	require.Error(t, err)

	var listenErr *ListenError
	require.ErrorAs(t, err, &listenErr)
}

func TestBridge_ExternalMarshaler(t *testing.T) {
	loop := NewMainLoop(NopLogger())
	defer loop.Close()

	b := startBridge(t, WithMarshaler(loop))
	c := bridgeClient(t, b)

	env, err := c.Execute(`result = "via external loop"`, nil)
	require.NoError(t, err)
	require.True(t, env.Success)
	require.Equal(t, "via external loop", env.Data)
}
