package session_test

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alpacahq/aesdsocket/cmd/connect/session"
	"github.com/alpacahq/aesdsocket/frontend"
	"github.com/alpacahq/aesdsocket/registry"
	"github.com/alpacahq/aesdsocket/utils/test"
)

func startServer(t *testing.T) string {
	t.Helper()
	lf := test.OpenLogFile(t)
	srv := frontend.NewServer(lf, registry.New(), nil, 0)
	ln, err := frontend.Listen("127.0.0.1:0")
	require.Nil(t, err)
	go func() { _ = srv.Serve(ln) }()

	t.Cleanup(func() {
		srv.StopAccepting()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Drain(ctx, 0)
	})
	return ln.Addr().String()
}

func TestRemoteAPIClient_Send(t *testing.T) {
	t.Parallel()
	// --- given ---
	addr := startServer(t)
	rc, err := session.Dial(addr, 3)
	require.Nil(t, err)
	defer rc.Close()

	// --- when ---
	first, err := rc.Send("abc")
	require.Nil(t, err)
	second, err := rc.Send("def\n")
	require.Nil(t, err)

	// --- then ---
	assert.Equal(t, "abc\n", string(first))
	assert.Equal(t, "abc\ndef\n", string(second))
}

func TestRemoteAPIClient_ServerHangsUp(t *testing.T) {
	t.Parallel()
	// --- given ---
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.Nil(t, err)
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		buf := make([]byte, 16)
		_, _ = conn.Read(buf)
		_ = conn.Close()
	}()

	rc, err := session.Dial(ln.Addr().String(), 1)
	require.Nil(t, err)
	defer rc.Close()

	// --- when ---
	data, err := rc.Send("anyone there")

	// --- then ---
	assert.Empty(t, data)
	assert.ErrorIs(t, err, io.EOF)
}

func TestDial_GivesUp(t *testing.T) {
	t.Parallel()
	// --- given ---
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.Nil(t, err)
	addr := ln.Addr().String()
	require.Nil(t, ln.Close())

	// --- when ---
	_, err = session.Dial(addr, 2)

	// --- then ---
	assert.NotNil(t, err)
}
