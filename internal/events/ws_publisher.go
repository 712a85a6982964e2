package events

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const wsWriteTimeout = 5 * time.Second

// WSPublisher pushes event envelopes to connected WebSocket clients. A
// client that cannot keep up is disconnected rather than ever back-pressuring
// the bus.
type WSPublisher struct {
	log      *logrus.Entry
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

// NewWSPublisher creates a publisher ready to serve upgrades.
func NewWSPublisher(log *logrus.Logger) *WSPublisher {
	return &WSPublisher{
		log: log.WithField("component", "events_ws"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		conns: make(map[*websocket.Conn]struct{}),
	}
}

// ServeHTTP upgrades the request and registers the client.
func (p *WSPublisher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := p.upgrader.Upgrade(w, r, nil)
	if err != nil {
		p.log.WithError(err).Debug("websocket upgrade failed")
		return
	}

	p.mu.Lock()
	p.conns[conn] = struct{}{}
	n := len(p.conns)
	p.mu.Unlock()
	p.log.WithField("clients", n).Info("notification client connected")

	// Reader goroutine: discard inbound frames, notice disconnects.
	go func() {
		defer p.drop(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// Run consumes the subscription until ctx ends, broadcasting each event.
func (p *WSPublisher) Run(ctx context.Context, sub <-chan Event) {
	for {
		select {
		case <-ctx.Done():
			p.closeAll()
			return
		case e, ok := <-sub:
			if !ok {
				p.closeAll()
				return
			}
			p.broadcast(e)
		}
	}
}

func (p *WSPublisher) broadcast(e Event) {
	p.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(p.conns))
	for c := range p.conns {
		conns = append(conns, c)
	}
	p.mu.Unlock()

	for _, c := range conns {
		c.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := c.WriteJSON(e); err != nil {
			p.log.WithError(err).Debug("dropping slow notification client")
			p.drop(c)
		}
	}
}

func (p *WSPublisher) drop(conn *websocket.Conn) {
	p.mu.Lock()
	if _, ok := p.conns[conn]; ok {
		delete(p.conns, conn)
		conn.Close()
	}
	p.mu.Unlock()
}

func (p *WSPublisher) closeAll() {
	p.mu.Lock()
	for c := range p.conns {
		c.Close()
	}
	p.conns = make(map[*websocket.Conn]struct{})
	p.mu.Unlock()
}
