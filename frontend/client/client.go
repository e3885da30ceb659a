// Package client follows an aesdsocket server's tail stream.
package client

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack"
	"gopkg.in/matryer/try.v1"

	"github.com/alpacahq/aesdsocket/frontend/stream"
	"github.com/alpacahq/aesdsocket/utils/log"
)

const (
	subscribeTimeout = 10 * time.Second
	dialAttempts     = 3
	retryDelay       = 500 * time.Millisecond
)

type Client struct {
	BaseURL string
}

// NewClient takes "host:port" or an http(s) URL of the utility server.
func NewClient(baseurl string) (cl *Client, err error) {
	if !strings.Contains(baseurl, "://") {
		baseurl = "http://" + baseurl
	}
	if _, err = url.Parse(baseurl); err != nil {
		return nil, errors.Wrapf(err, "invalid url %s", baseurl)
	}
	return &Client{BaseURL: strings.TrimSuffix(baseurl, "/")}, nil
}

type subscribeReply struct {
	Streams []string `msgpack:"streams"`
	Error   string   `msgpack:"error"`
}

// Subscribe to the tail stream with a message handler, a set of stream
// globs and a cancel channel. done is closed once the stream has ended.
func (cl *Client) Subscribe(
	handler func(pl stream.Payload) error,
	cancel <-chan struct{},
	streams ...string) (done <-chan struct{}, err error) {
	u, err := url.Parse(cl.BaseURL + "/ws")
	if err != nil {
		return nil, err
	}
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}

	var conn *websocket.Conn
	err = try.Do(func(attempt int) (bool, error) {
		var derr error
		conn, _, derr = websocket.DefaultDialer.Dial(u.String(), nil)
		if derr != nil && attempt < dialAttempts {
			time.Sleep(retryDelay)
		}
		return attempt < dialAttempts, derr
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to dial %s", u)
	}

	buf, err := msgpack.Marshal(stream.SubscribeMessage{Streams: streams})
	if err != nil {
		conn.Close()
		return nil, err
	}

	if err := conn.WriteMessage(websocket.BinaryMessage, buf); err != nil {
		conn.Close()
		return nil, err
	}

	select {
	case buf, ok := <-read(conn, 1):
		// make sure subscription succeeded
		reply := &subscribeReply{}
		if !ok {
			conn.Close()
			return nil, fmt.Errorf("stream subscribe failed (connection closed)")
		}
		if err = msgpack.Unmarshal(buf, reply); err != nil {
			conn.Close()
			return nil, fmt.Errorf("stream subscribe failed (%s)", err)
		}
		if reply.Error != "" {
			conn.Close()
			return nil, fmt.Errorf("stream subscribe failed (%s)", reply.Error)
		}
		if !streamsEqual(streams, reply.Streams) {
			conn.Close()
			return nil, fmt.Errorf("stream subscribe failed")
		}
	case <-time.After(subscribeTimeout):
		conn.Close()
		return nil, fmt.Errorf("stream subscribe timed out")
	}

	return streamConn(conn, handler, cancel), nil
}

func streamConn(
	c *websocket.Conn,
	handler func(pl stream.Payload) error,
	cancel <-chan struct{}) <-chan struct{} {
	done := make(chan struct{})

	go func() {
		defer close(done)
		defer c.Close()
		bufC := read(c, -1)

		for {
			select {
			case buf, ok := <-bufC:
				if !ok {
					return
				}
				pl := stream.Payload{}

				// convert to payload
				if err := msgpack.Unmarshal(buf, &pl); err != nil {
					log.Error("error unmarshaling stream message (%v)", err)
					continue
				}

				// handle payload
				if err := handler(pl); err != nil {
					log.Error("error handling stream message (%v)", err)
					continue
				}
			case <-cancel:
				_ = c.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(time.Second))
				return
			}
		}
	}()

	return done
}

// read delivers up to count data messages (unbounded when count <= 0) and
// closes the channel when the connection ends.
func read(c *websocket.Conn, count int) chan []byte {
	bufC := make(chan []byte, 1)
	msgsRead := 0
	go func() {
		defer close(bufC)
		for {
			msgType, buf, err := c.ReadMessage()
			if err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					log.Debug("websocket closed (%v)", err)
				}
				return
			}

			switch msgType {
			case websocket.TextMessage, websocket.BinaryMessage:
				bufC <- buf
				msgsRead++
			}

			if count > 0 && msgsRead >= count {
				return
			}
		}
	}()

	return bufC
}

func streamsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i, v := range a {
		if !strings.EqualFold(v, b[i]) {
			return false
		}
	}
	return true
}
