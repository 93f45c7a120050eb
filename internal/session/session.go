// Package session implements the per-WebSocket-connection state
// machine (spec §4.6): a read pump that decodes and dispatches
// commands, and a write pump that drains the subscription's event
// mailbox onto the socket. Two goroutines per connection, exactly as
// the teacher's websocket handling splits read/write concerns onto
// their own pumps.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/tourneyforge/livebracket/internal/auth"
	"github.com/tourneyforge/livebracket/internal/live"
	"github.com/tourneyforge/livebracket/internal/wire"
)

// State is the session's authorization state (spec §4.6).
type State uint8

const (
	Unauthenticated State = 0
	Authenticated   State = 1
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// Config bundles the per-connection tunables sourced from deployment
// configuration (spec §4.8 session.*).
type Config struct {
	FrameRateLimit float64
	FrameRateBurst int
}

// Session owns one upgraded WebSocket connection for the lifetime of
// one (tournament_id, bracket_id) subscription.
type Session struct {
	conn *websocket.Conn
	b    *live.LiveBracket
	auth *auth.Auth
	log  *zap.Logger
	cfg  Config

	state   State
	limiter *rate.Limiter

	subID live.SubscriberID
	sub   subscriberReader
}

// subscriberReader is the narrow slice of *live.LiveBracket's
// subscriber mailbox the write pump needs; declared here so tests can
// fake it without constructing a full LiveBracket.
type subscriberReader interface {
	Pop(ctx context.Context) (wire.Event, error)
}

// New wraps an already-upgraded connection and an already-acquired
// LiveBracket into a Session. It neither subscribes nor starts the
// pumps; Run does both and unsubscribes before returning. Releasing
// the registry handle is left to the caller.
func New(conn *websocket.Conn, b *live.LiveBracket, a *auth.Auth, cfg Config, log *zap.Logger) *Session {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(zap.String("conn_id", uuid.NewString()))
	var limiter *rate.Limiter
	if cfg.FrameRateLimit > 0 {
		burst := cfg.FrameRateBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.FrameRateLimit), burst)
	}
	return &Session{conn: conn, b: b, auth: a, log: log, cfg: cfg, limiter: limiter}
}

// Run subscribes to b, then drives the read and write pumps until
// either terminates, and always unsubscribes before returning (spec
// §4.6: "On close (any cause), release the subscription").
func (s *Session) Run(ctx context.Context) {
	id, sub, snap, err := s.b.Subscribe(ctx)
	if err != nil {
		s.log.Warn("subscribe rejected", zap.Error(err))
		s.writeEvent(wire.ErrorEvent{Kind: wire.ErrKindInternal})
		return
	}
	s.subID = id
	s.sub = sub
	s.log.Debug("session started", zap.Uint64("subscriber_id", uint64(id)))
	defer func() {
		s.b.Unsubscribe(s.subID)
		s.log.Debug("session ended")
	}()

	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	s.writeEvent(snap)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.writePump(ctx)
	}()

	s.readPump(ctx)
	cancel()
	<-done
}

// readPump decodes and dispatches inbound frames until the connection
// closes or a fatal error occurs (spec §4.6 responsibility (a)).
func (s *Session) readPump(ctx context.Context) {
	for {
		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				return
			}
		}
		_, payload, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		cmd, err := wire.DecodeCommand(payload)
		if err != nil {
			s.writeEvent(wire.ErrorEvent{Kind: wire.KindOf(err)})
			continue // recoverable codec error: do not close (spec §4.6)
		}
		if fatal := s.dispatch(ctx, cmd); fatal {
			return
		}
	}
}

// dispatch applies one decoded command, returning true if the
// connection should close as a result.
func (s *Session) dispatch(ctx context.Context, cmd wire.Command) (fatal bool) {
	switch c := cmd.(type) {
	case wire.AuthorizeCmd:
		claims, err := s.auth.Verify(c.Token, auth.KindAuth, time.Now())
		if err != nil {
			s.writeEvent(wire.ErrorEvent{Kind: wire.ErrKindUnauthorized})
			return false
		}
		_ = claims
		s.state = Authenticated
		return false

	case wire.SyncStateCmd:
		s.writeEvent(s.b.SyncState())
		return false

	case wire.UpdateMatchCmd:
		if s.state != Authenticated {
			s.writeEvent(wire.ErrorEvent{Kind: wire.ErrKindUnauthorized})
			return false
		}
		if err := s.b.UpdateMatch(c.Index, c.Nodes); err != nil {
			s.writeEvent(wire.ErrorEvent{Kind: errKind(err)})
		}
		return false

	case wire.ResetMatchCmd:
		if s.state != Authenticated {
			s.writeEvent(wire.ErrorEvent{Kind: wire.ErrKindUnauthorized})
			return false
		}
		if err := s.b.ResetMatch(c.Index); err != nil {
			s.writeEvent(wire.ErrorEvent{Kind: errKind(err)})
		}
		return false

	default:
		s.writeEvent(wire.ErrorEvent{Kind: wire.ErrKindProto})
		return false
	}
}

// errKind maps a bracket.State mutation failure onto the wire error
// kind it is always a Proto-family violation of (out-of-range index,
// malformed winner pair): see internal/bracket/state.go.
func errKind(err error) wire.ErrorKind {
	if err == nil {
		return wire.ErrKindInternal
	}
	return wire.ErrKindProto
}

// writePump drains the subscription's mailbox onto the socket, and
// keeps the connection alive with periodic pings, until ctx is
// cancelled (spec §4.6 responsibility (b)).
func (s *Session) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		default:
		}

		popCtx, cancel := context.WithTimeout(ctx, pingPeriod)
		evt, err := s.sub.Pop(popCtx)
		cancel()
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				continue // loop back around to the ticker/ping check
			}
			return // ctx cancelled: connection is closing
		}
		if !s.writeEvent(evt) {
			return
		}
		if errEvt, ok := evt.(wire.ErrorEvent); ok && errEvt.Kind == wire.ErrKindInternal {
			// Internal is unrecoverable for this connection (spec §4.2):
			// the event has been relayed, now force the socket closed so
			// readPump's blocking ReadMessage unblocks immediately rather
			// than riding out the rest of the read deadline.
			s.conn.Close()
			return
		}
	}
}

func (s *Session) writeEvent(evt wire.Event) bool {
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := s.conn.WriteMessage(websocket.BinaryMessage, wire.EncodeEvent(evt)); err != nil {
		return false
	}
	return true
}
