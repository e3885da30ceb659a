package frontend

import (
	"bytes"
	"context"
	"io"
	"net"
	"os"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alpacahq/aesdsocket/bgworker"
	"github.com/alpacahq/aesdsocket/logfile"
	"github.com/alpacahq/aesdsocket/registry"
	"github.com/alpacahq/aesdsocket/timestamp"
	"github.com/alpacahq/aesdsocket/utils/test"
)

type harness struct {
	server *Server
	log    *logfile.File
	reg    *registry.Registry
	coord  *Coordinator
	addr   string
	bgCtx  context.Context
	bg     *bgworker.Group
	served chan error
}

type options struct {
	grace     time.Duration
	publisher Publisher
}

func start(t *testing.T, opts options) *harness {
	t.Helper()
	lf := test.OpenLogFile(t)
	reg := registry.New()
	srv := NewServer(lf, reg, opts.publisher, 0)

	ln, err := Listen("127.0.0.1:0")
	require.Nil(t, err)

	bgCtx, cancel := context.WithCancel(context.Background())
	bg := &bgworker.Group{}
	bg.Go(bgCtx, "reaper", registry.NewReaper(reg, 5*time.Millisecond))

	h := &harness{
		server: srv,
		log:    lf,
		reg:    reg,
		coord:  NewCoordinator(srv, lf, bg, cancel, nil, opts.grace),
		addr:   ln.Addr().String(),
		bgCtx:  bgCtx,
		bg:     bg,
		served: make(chan error, 1),
	}
	go func() { h.served <- srv.Serve(ln) }()
	t.Cleanup(func() { h.shutdown(t) })
	return h
}

func (h *harness) shutdown(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.Nil(t, h.coord.Shutdown(ctx))
	select {
	case err := <-h.served:
		assert.Nil(t, err)
	case <-time.After(time.Second):
	}
}

func (h *harness) contents(t *testing.T) string {
	t.Helper()
	var buf bytes.Buffer
	_, err := h.log.ReadAll(&buf)
	require.Nil(t, err)
	return buf.String()
}

func dial(t *testing.T, addr string) *net.TCPConn {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	require.Nil(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn.(*net.TCPConn)
}

func sendAndExpect(t *testing.T, conn net.Conn, send, expected string) {
	t.Helper()
	_, err := conn.Write([]byte(send))
	require.Nil(t, err)

	require.Nil(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	got := make([]byte, len(expected))
	_, err = io.ReadFull(conn, got)
	require.Nil(t, err)
	assert.Equal(t, expected, string(got))
}

func TestServer_ResponseIsWholeLog(t *testing.T) {
	t.Parallel()
	// --- given ---
	h := start(t, options{})
	conn := dial(t, h.addr)

	// --- when/then ---
	sendAndExpect(t, conn, "abc\n", "abc\n")
	sendAndExpect(t, conn, "def\n", "abc\ndef\n")
}

func TestServer_ResponseSpansConnections(t *testing.T) {
	t.Parallel()
	h := start(t, options{})

	sendAndExpect(t, dial(t, h.addr), "hello\n", "hello\n")
	sendAndExpect(t, dial(t, h.addr), "world\n", "hello\nworld\n")

	assert.Equal(t, "hello\nworld\n", h.contents(t))
}

func TestServer_PacketSplitAcrossWrites(t *testing.T) {
	t.Parallel()
	h := start(t, options{})
	conn := dial(t, h.addr)

	_, err := conn.Write([]byte("split "))
	require.Nil(t, err)
	time.Sleep(10 * time.Millisecond)
	sendAndExpect(t, conn, "packet\n", "split packet\n")
}

func TestServer_PartialPacketIsNotAppended(t *testing.T) {
	t.Parallel()
	// --- given ---
	h := start(t, options{})
	conn := dial(t, h.addr)

	// --- when ---
	_, err := conn.Write([]byte("no newline here"))
	require.Nil(t, err)
	require.Nil(t, conn.CloseWrite())

	// --- then ---
	require.Nil(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	resp, err := io.ReadAll(conn)
	require.Nil(t, err)
	assert.Empty(t, resp)
	assert.Equal(t, "", h.contents(t))
	assert.Eventually(t, func() bool { return h.reg.Len() == 0 }, time.Second, 5*time.Millisecond)
}

func TestServer_ConcurrentPacketsAreAppendedWhole(t *testing.T) {
	t.Parallel()
	// --- given ---
	h := start(t, options{})
	const clients = 8
	const size = 100 * 1024

	// --- when ---
	var wg sync.WaitGroup
	for i := 0; i < clients; i++ {
		payload := strings.Repeat(string(rune('a'+i)), size) + "\n"
		conn := dial(t, h.addr)
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := conn.Write([]byte(payload))
			assert.Nil(t, err)
			assert.Nil(t, conn.CloseWrite())
			assert.Nil(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
			resp, err := io.ReadAll(conn)
			assert.Nil(t, err)
			// the response holds this client's own packet, intact
			assert.Contains(t, string(resp), payload)
		}()
	}
	wg.Wait()

	// --- then ---
	lines := strings.Split(strings.TrimSuffix(h.contents(t), "\n"), "\n")
	require.Len(t, lines, clients)
	seen := map[byte]bool{}
	for _, line := range lines {
		require.Len(t, line, size)
		assert.Equal(t, strings.Repeat(line[:1], size), line)
		seen[line[0]] = true
	}
	assert.Len(t, seen, clients)
}

func TestServer_TimestampsAreNeverSpliced(t *testing.T) {
	t.Parallel()
	// --- given ---
	h := start(t, options{})
	h.bg.Go(h.bgCtx, "timestamp", timestamp.NewEmitter(h.log, nil, 2*time.Millisecond))
	conn := dial(t, h.addr)
	payload := strings.Repeat("z", 10*1024) + "\n"

	// --- when ---
	for i := 0; i < 20; i++ {
		_, err := conn.Write([]byte(payload))
		require.Nil(t, err)
		time.Sleep(time.Millisecond)
	}
	require.Nil(t, conn.CloseWrite())
	require.Nil(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, err := io.Copy(io.Discard, conn)
	require.Nil(t, err)

	// --- then ---
	stamp := regexp.MustCompile(`^timestamp:[A-Z][a-z]{2} [A-Z][a-z]{2} \d{2} \d{2}:\d{2}:\d{2} \d{4}$`)
	packets, stamps := 0, 0
	for _, line := range strings.Split(strings.TrimSuffix(h.contents(t), "\n"), "\n") {
		switch {
		case stamp.MatchString(line):
			stamps++
		case line+"\n" == payload:
			packets++
		default:
			t.Fatalf("spliced line of %d bytes", len(line))
		}
	}
	assert.Equal(t, 20, packets)
	assert.Greater(t, stamps, 0)
}

type recordingPublisher struct {
	mu      sync.Mutex
	sources []string
	data    []string
}

func (p *recordingPublisher) Push(source string, data []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sources = append(p.sources, source)
	p.data = append(p.data, string(data))
}

func TestServer_PublishesAppendedPackets(t *testing.T) {
	t.Parallel()
	pub := &recordingPublisher{}
	h := start(t, options{publisher: pub})
	conn := dial(t, h.addr)

	sendAndExpect(t, conn, "abc\n", "abc\n")

	pub.mu.Lock()
	defer pub.mu.Unlock()
	assert.Equal(t, []string{"tcp/" + conn.LocalAddr().String()}, pub.sources)
	assert.Equal(t, []string{"abc\n"}, pub.data)
}

func TestCoordinator_ShutdownWithPacketInFlight(t *testing.T) {
	t.Parallel()
	// --- given ---
	h := start(t, options{})
	conn := dial(t, h.addr)
	sendAndExpect(t, conn, "kept\n", "kept\n")
	_, err := conn.Write([]byte("mid-packet without newline"))
	require.Nil(t, err)
	require.Eventually(t, func() bool { return h.reg.Running() == 1 }, time.Second, time.Millisecond)

	// --- when ---
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.Nil(t, h.coord.Shutdown(ctx))

	// --- then ---
	_, err = os.Stat(h.log.Path())
	assert.True(t, os.IsNotExist(err))
	assert.Equal(t, 0, h.reg.Len())
	assert.False(t, h.server.Accepting())

	// the peer sees either a clean close or a reset, never more data
	require.Nil(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	rest, _ := io.ReadAll(conn)
	assert.Empty(t, rest)

	_, err = net.DialTimeout("tcp", h.addr, 100*time.Millisecond)
	assert.NotNil(t, err)
}

func TestCoordinator_GracePeriodLetsPacketFinish(t *testing.T) {
	t.Parallel()
	// --- given ---
	h := start(t, options{grace: 2 * time.Second})
	conn := dial(t, h.addr)
	_, err := conn.Write([]byte("almost"))
	require.Nil(t, err)
	require.Eventually(t, func() bool { return h.reg.Running() == 1 }, time.Second, time.Millisecond)

	// --- when ---
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	shutdown := make(chan error, 1)
	go func() { shutdown <- h.coord.Shutdown(ctx) }()
	require.Eventually(t, func() bool { return !h.server.Accepting() }, time.Second, time.Millisecond)

	// --- then ---
	// the current operation completes, then the server hangs up
	sendAndExpect(t, conn, " done\n", "almost done\n")
	require.Nil(t, <-shutdown)
	rest, err := io.ReadAll(conn)
	assert.Nil(t, err)
	assert.Empty(t, rest)
}

func TestCoordinator_ShutdownWithStalledResponse(t *testing.T) {
	t.Parallel()
	// --- given ---
	pub := &recordingPublisher{}
	h := start(t, options{publisher: pub})
	big := bytes.Repeat([]byte{'a'}, 32<<20)
	require.Nil(t, h.log.Append(append(big, '\n')))

	// the peer sends a packet and never reads the reply
	conn := dial(t, h.addr)
	_, err := conn.Write([]byte("x\n"))
	require.Nil(t, err)
	require.Eventually(t, func() bool {
		pub.mu.Lock()
		defer pub.mu.Unlock()
		return len(pub.data) == 1
	}, time.Second, time.Millisecond)
	// give the response time to fill the socket buffers
	time.Sleep(100 * time.Millisecond)
	require.Equal(t, 1, h.reg.Running())

	// --- when ---
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = h.coord.Shutdown(ctx)

	// --- then ---
	require.Nil(t, err)
	_, err = os.Stat(h.log.Path())
	assert.True(t, os.IsNotExist(err))
	assert.Equal(t, 0, h.reg.Running())
}
