package session

import (
	"bytes"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/matryer/try.v1"
)

const (
	defaultDialAttempts    = 5
	defaultDialTimeout     = 3 * time.Second
	defaultIdleTimeout     = 200 * time.Millisecond
	defaultResponseTimeout = 10 * time.Second
	retryDelay             = 200 * time.Millisecond
	readChunk              = 4096
)

// RemoteAPIClient holds one TCP connection to an aesdsocket server. Every
// line sent is one packet; the reply is the server's whole log.
type RemoteAPIClient struct {
	url  string
	conn net.Conn
	// IdleTimeout ends a reply once no byte arrived for this long and the
	// data read so far ends on a record boundary.
	IdleTimeout time.Duration
	// ResponseTimeout bounds the wait for a complete reply.
	ResponseTimeout time.Duration
}

// NewRemoteAPIClient wraps an established connection.
func NewRemoteAPIClient(url string, conn net.Conn) *RemoteAPIClient {
	return &RemoteAPIClient{
		url:             url,
		conn:            conn,
		IdleTimeout:     defaultIdleTimeout,
		ResponseTimeout: defaultResponseTimeout,
	}
}

// Dial connects to url, retrying up to attempts times.
func Dial(url string, attempts int) (*RemoteAPIClient, error) {
	if attempts <= 0 {
		attempts = defaultDialAttempts
	}

	var conn net.Conn
	err := try.Do(func(attempt int) (bool, error) {
		var err error
		conn, err = net.DialTimeout("tcp", url, defaultDialTimeout)
		if err != nil && attempt < attempts {
			time.Sleep(retryDelay)
		}
		return attempt < attempts, err
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to connect to %s", url)
	}
	return NewRemoteAPIClient(url, conn), nil
}

func (rc *RemoteAPIClient) PrintConnectInfo() {
	fmt.Fprintf(os.Stderr, "Connected to remote instance at: %v\n", rc.url)
}

// Send writes line as one packet and returns the reply. A trailing newline
// is added when missing; embedded newlines split the line into several
// packets, and the reply then covers all of them.
func (rc *RemoteAPIClient) Send(line string) ([]byte, error) {
	if !strings.HasSuffix(line, "\n") {
		line += "\n"
	}
	if _, err := io.WriteString(rc.conn, line); err != nil {
		return nil, errors.Wrap(err, "send")
	}
	return rc.readReply()
}

func (rc *RemoteAPIClient) readReply() ([]byte, error) {
	var (
		out      bytes.Buffer
		buf      = make([]byte, readChunk)
		deadline = time.Now().Add(rc.ResponseTimeout)
	)
	for {
		wait := time.Now().Add(rc.IdleTimeout)
		if out.Len() == 0 || wait.After(deadline) {
			wait = deadline
		}
		if err := rc.conn.SetReadDeadline(wait); err != nil {
			return nil, err
		}

		n, err := rc.conn.Read(buf)
		out.Write(buf[:n])
		if err == nil {
			continue
		}

		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			if complete(out.Bytes()) {
				return out.Bytes(), nil
			}
			if time.Now().Before(deadline) {
				continue
			}
			return out.Bytes(), errors.Wrap(err, "incomplete reply")
		}
		if errors.Is(err, io.EOF) {
			return out.Bytes(), io.EOF
		}
		return out.Bytes(), errors.Wrap(err, "receive")
	}
}

func complete(p []byte) bool {
	return len(p) > 0 && p[len(p)-1] == '\n'
}

func (rc *RemoteAPIClient) Close() error {
	return rc.conn.Close()
}
