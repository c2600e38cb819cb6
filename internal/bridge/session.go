package bridge

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/FocuswithJustin/JuniperReader/core/annotation"
	"github.com/FocuswithJustin/JuniperReader/core/errors"
	"github.com/FocuswithJustin/JuniperReader/core/reader"
	"github.com/FocuswithJustin/JuniperReader/internal/logging"
	"github.com/FocuswithJustin/JuniperReader/internal/store"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	sendBuffer = 256
)

// ErrSlowConsumer is returned when a session's outgoing queue is full.
var ErrSlowConsumer = errors.New("session send queue full")

// Session is one browser connection showing one book.
type Session struct {
	id          string
	fingerprint string
	hub         *Hub
	conn        *websocket.Conn
	store       *store.Store
	bucket      *messageRateBucket

	send   chan []byte
	events chan reader.Event
	done   chan struct{}
	once   sync.Once

	surface *Surface
	reader  *reader.Reader
}

func newSession(id, fingerprint string, hub *Hub, conn *websocket.Conn, st *store.Store, rate int) *Session {
	return &Session{
		id:          id,
		fingerprint: fingerprint,
		hub:         hub,
		conn:        conn,
		store:       st,
		bucket:      newMessageRateBucket(rate),
		send:        make(chan []byte, sendBuffer),
		events:      make(chan reader.Event, sendBuffer),
		done:        make(chan struct{}),
	}
}

// ID returns the session's identifier.
func (s *Session) ID() string { return s.id }

func (s *Session) enqueue(msg Outbound) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrapf(err, "marshal %s frame", msg.Type)
	}
	return s.enqueueRaw(data)
}

func (s *Session) enqueueRaw(data []byte) error {
	select {
	case <-s.done:
		return ErrClosed
	default:
	}
	select {
	case s.send <- data:
		return nil
	case <-s.done:
		return ErrClosed
	default:
		return ErrSlowConsumer
	}
}

func (s *Session) fail(err error) {
	if err := s.enqueue(Outbound{Type: TypeError, Data: map[string]string{"message": err.Error()}}); err != nil {
		logging.Debug("error frame dropped", "session", s.id, "error", err)
	}
}

// run serves the connection until it closes or ctx is done.
func (s *Session) run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.hub.join(s)
	defer s.hub.leave(s)

	go s.writePump()
	go func() {
		if err := s.reader.Run(ctx, s.events); err != nil && err != context.Canceled {
			logging.Warn("reader stopped", "session", s.id, "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		s.close()
	}()

	s.readPump(ctx)
}

func (s *Session) close() {
	s.once.Do(func() {
		close(s.done)
		s.surface.close()
		s.conn.Close()
	})
}

// readPump reads frames until the connection fails.
func (s *Session) readPump(ctx context.Context) {
	defer s.close()

	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logging.Warn("websocket unexpected close", "session", s.id, "error", err)
			}
			return
		}
		if !s.bucket.allow() {
			logging.Warn("message rate limit exceeded", "session", s.id)
			s.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "rate limit exceeded"),
				time.Now().Add(writeWait))
			return
		}

		var in Inbound
		if err := json.Unmarshal(message, &in); err != nil {
			s.fail(errors.Wrap(errors.ErrInvalidInput, "malformed frame"))
			continue
		}
		s.handle(ctx, in)
	}
}

// handle processes one inbound frame. It never waits on the browser, so
// replies to requests made elsewhere keep flowing.
func (s *Session) handle(ctx context.Context, in Inbound) {
	switch in.Type {
	case TypeReply:
		if !s.surface.resolve(in) {
			logging.Debug("reply for unknown request", "session", s.id, "id", in.ID)
		}
	case TypeViewport:
		s.surface.setViewport(in.Width, in.Height)
	case TypeEvent:
		ev, err := decodeEvent(in, s.draw)
		if err != nil {
			s.fail(err)
			return
		}
		select {
		case s.events <- ev:
		default:
			logging.Warn("event queue full, event dropped", "session", s.id, "kind", reader.EventKind(ev))
		}
	case TypeNavigate:
		if err := s.navigate(in); err != nil {
			s.fail(err)
		}
	case TypeAnnotate:
		if err := s.annotate(ctx, in.Annotation); err != nil {
			s.fail(err)
		}
	case TypeUnannotate:
		if err := s.unannotate(ctx, in.Value); err != nil {
			s.fail(err)
		}
	case TypeStyle:
		if in.Style == nil {
			s.fail(errors.Wrap(errors.ErrInvalidInput, "style frame without style"))
			return
		}
		s.reader.SetStyle(*in.Style)
	case TypeScroll:
		s.reader.SetScroll(in.Scroll)
	default:
		s.fail(errors.Wrapf(errors.ErrInvalidInput, "unknown frame type %q", in.Type))
	}
}

func (s *Session) navigate(in Inbound) error {
	switch in.Op {
	case "next":
		return s.reader.Next()
	case "prev":
		return s.reader.Prev()
	case "goto":
		return s.reader.GoTo(in.Href)
	case "fraction":
		return s.reader.GoToFraction(in.Fraction)
	default:
		return errors.Wrapf(errors.ErrInvalidInput, "unknown navigation %q", in.Op)
	}
}

func (s *Session) annotate(ctx context.Context, a *annotation.Annotation) error {
	if a == nil {
		return errors.Wrap(errors.ErrInvalidInput, "annotate frame without annotation")
	}
	saved, err := s.store.Save(ctx, s.fingerprint, *a)
	if err != nil {
		return err
	}
	if err := s.reader.AddAnnotation(saved); err != nil {
		return err
	}
	return s.enqueue(Outbound{Type: TypeAnnotated, Data: saved})
}

func (s *Session) unannotate(ctx context.Context, value string) error {
	if _, err := s.store.Delete(ctx, s.fingerprint, value); err != nil {
		return err
	}
	if s.reader.RemoveAnnotation(value) {
		if err := s.surface.RemoveAnnotation(value); err != nil {
			return err
		}
	}
	return s.enqueue(Outbound{Type: TypeRemoved, Data: map[string]string{"value": value}})
}

func (s *Session) draw(a annotation.Annotation, d annotation.DrawInstruction) {
	if err := s.enqueue(Outbound{Type: TypeDraw, Data: DrawPayload{Value: a.Value, Draw: d}}); err != nil {
		logging.Warn("draw frame dropped", "session", s.id, "error", err)
	}
}

func (s *Session) onRelocate(info reader.CurrentInfo) {
	if info.CFI != "" {
		if err := s.store.SetLastLocation(context.Background(), s.fingerprint, info.CFI); err != nil {
			logging.Warn("position not saved", "session", s.id, "error", err)
		}
	}
	if err := s.enqueue(Outbound{Type: TypeRelocated, Data: info}); err != nil {
		logging.Debug("relocated frame dropped", "session", s.id, "error", err)
	}
}

func (s *Session) onSelection(report reader.SelectionReport) {
	if err := s.enqueue(Outbound{Type: TypeSelection, Data: report}); err != nil {
		logging.Debug("selection frame dropped", "session", s.id, "error", err)
	}
}

func (s *Session) onShowAnnotation(a annotation.Annotation, ok bool) {
	p := ShowPayload{Found: ok}
	if ok {
		p.Annotation = &a
	}
	if err := s.enqueue(Outbound{Type: TypeAnnotation, Data: p}); err != nil {
		logging.Debug("annotation frame dropped", "session", s.id, "error", err)
	}
}

// writePump writes queued frames and keeps the connection alive.
func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case <-s.done:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			s.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case message := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// messageRateBucket implements a token bucket for message rate limiting.
type messageRateBucket struct {
	tokens         float64
	capacity       float64
	refillRate     float64 // tokens per second
	lastRefillTime time.Time
	mu             sync.Mutex
}

// newMessageRateBucket allows bursts of twice the per-second rate.
func newMessageRateBucket(messagesPerSecond int) *messageRateBucket {
	capacity := float64(messagesPerSecond) * 2.0
	return &messageRateBucket{
		tokens:         capacity,
		capacity:       capacity,
		refillRate:     float64(messagesPerSecond),
		lastRefillTime: time.Now(),
	}
}

// allow takes a token if one is available.
func (mb *messageRateBucket) allow() bool {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(mb.lastRefillTime).Seconds()
	mb.tokens = min(mb.capacity, mb.tokens+elapsed*mb.refillRate)
	mb.lastRefillTime = now

	if mb.tokens >= 1.0 {
		mb.tokens--
		return true
	}
	return false
}
