package httpapi

import (
	"context"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"devspace/internal/domain"
)

const (
	eventBuffer       = 64
	eventWriteTimeout = 5 * time.Second
)

// eventClient is one websocket subscriber of the event stream.
type eventClient struct {
	ws        *websocket.Conn
	types     []domain.EventType // empty = every type
	sendCh    chan domain.Event
	done      chan struct{}
	closeOnce sync.Once
}

func (c *eventClient) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *eventClient) wants(ev domain.Event) bool {
	return len(c.types) == 0 || slices.Contains(c.types, ev.Type)
}

// handleEvents streams bus events over a websocket. ?agent_id= (ID or name)
// limits the stream to one agent and ?types= to a comma-separated list of
// event types.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		writeErrorCode(w, http.StatusNotFound, "event stream is disabled", domain.CodeNotFound)
		return
	}

	agentID := ""
	if ref := r.URL.Query().Get("agent_id"); ref != "" {
		a, err := s.sup.Get(ref)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		agentID = a.ID()
	}

	ec := &eventClient{
		sendCh: make(chan domain.Event, eventBuffer),
		done:   make(chan struct{}),
	}
	if raw := r.URL.Query().Get("types"); raw != "" {
		for _, t := range strings.Split(raw, ",") {
			if t = strings.TrimSpace(t); t != "" {
				ec.types = append(ec.types, domain.EventType(t))
			}
		}
	}

	// Subscribe before the handshake completes so a client that is connected
	// sees every event published afterwards.
	unsub := s.events.SubscribeAgent(agentID, func(_ context.Context, ev domain.Event) {
		if !ec.wants(ev) {
			return
		}
		select {
		case ec.sendCh <- ev:
		case <-ec.done:
		default:
			s.logger.Warn("event stream: dropped event for slow client", "event", string(ev.Type))
		}
	})
	defer unsub()

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.originPatterns(),
	})
	if err != nil {
		s.logger.Warn("websocket accept failed", "error", err)
		return
	}
	ec.ws = ws

	connID := s.nextID.Add(1)
	s.clients.Store(connID, ec)
	s.logger.With(requestAttrs(r)...).Info("event stream connected", "conn_id", connID, "agent_id", agentID)

	go s.writeLoop(ec)

	// The stream is one-way; CloseRead discards client frames and cancels
	// readCtx once the peer goes away.
	readCtx := ws.CloseRead(r.Context())
	select {
	case <-readCtx.Done():
	case <-ec.done:
	}

	ec.close()
	s.clients.Delete(connID)
	ws.Close(websocket.StatusNormalClosure, "")
	s.logger.Info("event stream disconnected", "conn_id", connID)
}

func (s *Server) writeLoop(ec *eventClient) {
	for {
		select {
		case <-ec.done:
			return
		case ev := <-ec.sendCh:
			ctx, cancel := context.WithTimeout(context.Background(), eventWriteTimeout)
			err := wsjson.Write(ctx, ec.ws, ev)
			cancel()
			if err != nil {
				ec.close()
				return
			}
		}
	}
}

// originPatterns derives websocket origin patterns from the CORS origins,
// plus the loopback hosts.
func (s *Server) originPatterns() []string {
	patterns := []string{"localhost", "localhost:*", "127.0.0.1", "127.0.0.1:*", "[::1]", "[::1]:*"}
	for _, o := range s.cfg.API.CORSOrigins {
		o = strings.TrimPrefix(strings.TrimPrefix(o, "https://"), "http://")
		if o != "" && !slices.Contains(patterns, o) {
			patterns = append(patterns, o)
		}
	}
	return patterns
}
