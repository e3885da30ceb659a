// Package stream fans appended log records out to websocket subscribers.
package stream

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/eapache/channels"
	"github.com/gobwas/glob"
	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack"

	"github.com/alpacahq/aesdsocket/utils/log"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Catalog maintains the set of active subscribers
type Catalog struct {
	sync.RWMutex
	subs map[*Subscriber]struct{}
}

// NewCatalog initializes the stream catalog
func NewCatalog() *Catalog {
	return &Catalog{
		subs: map[*Subscriber]struct{}{},
	}
}

// Add a new subscriber to the catalog
func (sc *Catalog) Add(sub *Subscriber) {
	sc.Lock()
	defer sc.Unlock()

	sc.subs[sub] = struct{}{}
}

// Remove a subscriber from the catalog
func (sc *Catalog) Remove(sub *Subscriber) {
	sc.Lock()
	defer sc.Unlock()

	delete(sc.subs, sub)
}

// Len returns the number of subscribers.
func (sc *Catalog) Len() int {
	sc.RLock()
	defer sc.RUnlock()
	return len(sc.subs)
}

// Subscriber includes the connection, and streams to
// manage a given stream client
type Subscriber struct {
	sync.RWMutex
	c       *websocket.Conn
	done    chan struct{}
	streams map[string]glob.Glob
}

// Subscribed matches the subscriber's subscribed streams
// with the record source.
func (s *Subscriber) Subscribed(source string) bool {
	s.RLock()
	defer s.RUnlock()
	for _, g := range s.streams {
		if g.Match(source) {
			return true
		}
	}
	return false
}

// SubscribeMessage is an inbound message for the client
// to subscribe to streams. Streams are glob patterns over record
// sources, e.g. "tcp/*" or "timestamp".
type SubscribeMessage struct {
	Streams []string `msgpack:"streams"`
}

// ErrorMessage is used to report errors when a client
// subscribes to invalid streams
type ErrorMessage struct {
	Error string `msgpack:"error"`
}

// Payload is one appended record sent over the websocket
type Payload struct {
	Source string `msgpack:"source"`
	Data   []byte `msgpack:"data"`
	Time   int64  `msgpack:"time"`
}

func (s *Subscriber) handleOutbound(buf []byte) error {
	// prevents concurrent write to the websocket connection
	s.Lock()
	defer s.Unlock()
	if err := s.c.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return s.c.WriteMessage(websocket.BinaryMessage, buf)
}

func (s *Subscriber) handleInbound(msg SubscribeMessage) error {
	if len(msg.Streams) == 0 {
		return nil
	}

	// validate each stream before modifying the subscriber's stream map
	m := map[string]glob.Glob{}
	for _, stream := range msg.Streams {
		g, err := glob.Compile(stream, '/')
		if err != nil {
			return fmt.Errorf("%s is an invalid stream", stream)
		}
		m[stream] = g
	}

	// prevents concurrent read/write of stream map
	s.Lock()
	defer s.Unlock()
	s.streams = m
	return nil
}

// Hub owns the subscriber catalog and the outbound queue.
type Hub struct {
	catalog  *Catalog
	upgrader websocket.Upgrader

	mu     sync.RWMutex
	send   *channels.InfiniteChannel
	closed bool
}

// NewHub builds the send channel and an empty catalog. Records pushed
// before Run is called are queued.
func NewHub() *Hub {
	return &Hub{
		catalog: NewCatalog(),
		send:    channels.NewInfiniteChannel(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// Subscribers returns the number of connected subscribers.
func (h *Hub) Subscribers() int {
	return h.catalog.Len()
}

// Push queues a record for every subscriber matching source. It never
// blocks and is a no-op once the hub is closed.
func (h *Hub) Push(source string, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return
	}
	h.send.In() <- Payload{Source: source, Data: data, Time: time.Now().UnixNano()}
}

// Close stops accepting records. Queued records are still delivered by Run.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	h.send.Close()
}

// Run delivers queued records until ctx is done, then closes the hub and
// every subscriber connection.
func (h *Hub) Run(ctx context.Context) {
	go func() {
		<-ctx.Done()
		h.Close()
	}()

	for v := range h.send.Out() {
		payload, ok := v.(Payload)
		if !ok {
			continue
		}
		h.broadcast(payload)
	}

	if n := h.Subscribers(); n > 0 {
		log.Info("closing %d stream subscriber(s)", n)
	}
	h.catalog.RLock()
	for s := range h.catalog.subs {
		_ = s.c.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		_ = s.c.Close()
	}
	h.catalog.RUnlock()
}

func (h *Hub) broadcast(payload Payload) {
	buf, err := msgpack.Marshal(payload)
	if err != nil {
		log.Error("failed to marshal outbound stream payload (%v)", err)
		return
	}

	h.catalog.RLock()
	defer h.catalog.RUnlock()

	for s := range h.catalog.subs {
		if s.Subscribed(payload.Source) {
			if err := s.handleOutbound(buf); err != nil {
				log.Error("failed to stream outbound (%s)", err)
			}
		}
	}
}

// Handler hooks into the HTTP interface and handles the incoming
// streaming requests, and upgrades the connection
func (h *Hub) Handler(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error("failed to upgrade stream socket (%s)", err)
		return
	}

	s := &Subscriber{
		c:       ws,
		done:    make(chan struct{}),
		streams: map[string]glob.Glob{},
	}

	log.Info("new stream listener: %v", ws.RemoteAddr().String())

	h.catalog.Add(s)

	go h.consume(s)
	go s.produce()
}

func (h *Hub) consume(s *Subscriber) {
	defer func() {
		h.catalog.Remove(s)
		close(s.done)
		_ = s.c.Close()
	}()

	_ = s.c.SetReadDeadline(time.Now().Add(pongWait))
	s.c.SetPongHandler(func(string) error {
		return s.c.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		msgType, buf, err := s.c.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug("websocket closed (%v)", err)
			}
			return
		}

		switch msgType {
		case websocket.TextMessage, websocket.BinaryMessage:
			m := SubscribeMessage{}

			if err = msgpack.Unmarshal(buf, &m); err != nil {
				log.Error("failed to unmarshal inbound stream message (%v)", err)
				continue
			}
			if err := s.handleInbound(m); err != nil {
				buf, _ = msgpack.Marshal(ErrorMessage{Error: err.Error()})
			}
			if err := s.handleOutbound(buf); err != nil {
				log.Error("failed to send stream message (%v)", err)
			}
		}
	}
}

func (s *Subscriber) produce() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.Lock()
			_ = s.c.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(writeWait))
			s.Unlock()
		case <-s.done:
			return
		}
	}
}
