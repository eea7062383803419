package signal

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"peerlink/internal/core/domain"
	"peerlink/internal/core/session"
	"peerlink/pkg/retry"
	"peerlink/pkg/tracing"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// TrackPatcher applies server-issued track patches. The pion track registry
// implements it.
type TrackPatcher interface {
	ApplyPatch(patch domain.TrackPatch) error
}

// Config carries the dependencies of the signalling client.
type Config struct {
	URL     string
	Session *session.Session
	Patcher TrackPatcher
	Tokens  *TokenMinter
	Retry   retry.Config
	Logger  *zap.SugaredLogger

	PingInterval time.Duration
	WriteTimeout time.Duration
}

// Client maintains the websocket to the signalling server: it decodes
// inbound command envelopes into session calls and publishes every outbound
// peer event as a JSON envelope. Lost connections are redialed with
// exponential backoff.
type Client struct {
	url     string
	session *session.Session
	patcher TrackPatcher
	tokens  *TokenMinter
	retry   retry.Config
	log     *zap.SugaredLogger

	pingInterval time.Duration
	writeTimeout time.Duration

	// writeMu serializes frames from the event pump and the ping loop.
	writeMu sync.Mutex
	conn    *websocket.Conn
}

func NewClient(cfg Config) *Client {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	pingInterval := cfg.PingInterval
	if pingInterval == 0 {
		pingInterval = 30 * time.Second
	}
	writeTimeout := cfg.WriteTimeout
	if writeTimeout == 0 {
		writeTimeout = 10 * time.Second
	}
	return &Client{
		url:          cfg.URL,
		session:      cfg.Session,
		patcher:      cfg.Patcher,
		tokens:       cfg.Tokens,
		retry:        cfg.Retry,
		log:          log,
		pingInterval: pingInterval,
		writeTimeout: writeTimeout,
	}
}

// Run connects and serves until the context is cancelled or the session's
// event stream ends. Each lost connection is redialed from scratch.
func (c *Client) Run(ctx context.Context) error {
	pumpDone := make(chan struct{})
	go c.pumpEvents(pumpDone)

	for {
		conn, err := retry.RetryWithResult(ctx, c.retry, func() (*websocket.Conn, error) {
			return c.dial(ctx)
		})
		if err != nil {
			return fmt.Errorf("failed to connect to signalling server: %w", err)
		}
		c.setConn(conn)
		c.log.Infow("connected to signalling server", "url", c.url)

		err = c.serve(ctx, conn)
		c.setConn(nil)
		conn.Close()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-pumpDone:
			// Session closed; nothing left to signal.
			return nil
		default:
		}
		c.log.Warnw("signalling connection lost, reconnecting", "error", err)
	}
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	if c.tokens != nil {
		token, err := c.tokens.Mint()
		if err != nil {
			return nil, fmt.Errorf("failed to mint auth token: %w", err)
		}
		header.Set("Authorization", "Bearer "+token)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, header)
	if err != nil {
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	return conn, nil
}

func (c *Client) setConn(conn *websocket.Conn) {
	c.writeMu.Lock()
	c.conn = conn
	c.writeMu.Unlock()
}

// pumpEvents forwards the session's outbound events for the client's whole
// lifetime; events arriving while disconnected are dropped with a log line.
func (c *Client) pumpEvents(done chan<- struct{}) {
	defer close(done)
	for {
		ev, ok := c.session.NextEvent()
		if !ok {
			return
		}
		envelope, err := EncodeEvent(ev)
		if err != nil {
			c.log.Errorw("failed to encode peer event", "error", err)
			continue
		}
		if err := c.write(envelope); err != nil {
			c.log.Warnw("failed to publish peer event",
				"type", envelope.Type,
				"error", err,
			)
		}
	}
}

func (c *Client) write(envelope Envelope) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.conn == nil {
		return fmt.Errorf("not connected")
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return c.conn.WriteJSON(envelope)
}

func (c *Client) ping(conn *websocket.Conn) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.conn != conn {
		return fmt.Errorf("connection replaced")
	}
	deadline := time.Now().Add(c.writeTimeout)
	return conn.WriteControl(websocket.PingMessage, nil, deadline)
}

// serve reads envelopes until the connection breaks or the context ends.
func (c *Client) serve(ctx context.Context, conn *websocket.Conn) error {
	stopPing := make(chan struct{})
	defer close(stopPing)
	go func() {
		ticker := time.NewTicker(c.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stopPing:
				return
			case <-ticker.C:
				if err := c.ping(conn); err != nil {
					return
				}
			}
		}
	}()

	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stopPing:
		}
	}()

	for {
		var envelope Envelope
		if err := conn.ReadJSON(&envelope); err != nil {
			return err
		}
		if err := c.dispatch(ctx, envelope); err != nil {
			c.log.Errorw("signalling command failed",
				"type", envelope.Type,
				"error", err,
			)
		}
	}
}

func (c *Client) dispatch(ctx context.Context, envelope Envelope) error {
	ctx, span := tracing.TraceSignalMessage(ctx, envelope.Type, string(envelope.PeerID))
	defer span.End()

	err := c.handle(ctx, envelope)
	if err != nil {
		tracing.RecordError(ctx, err)
	}
	return err
}

func (c *Client) handle(ctx context.Context, envelope Envelope) error {
	switch envelope.Type {
	case MsgRemoteOffer:
		payload, err := decodePayload[DescriptionPayload](envelope)
		if err != nil {
			return err
		}
		if err := c.session.SetRemoteOffer(ctx, payload.SDP); err != nil {
			return err
		}
		_, err = c.session.CreateAndSetAnswer(ctx)
		return err

	case MsgRemoteAnswer:
		payload, err := decodePayload[DescriptionPayload](envelope)
		if err != nil {
			return err
		}
		return c.session.SetRemoteAnswer(ctx, payload.SDP)

	case MsgIceCandidate:
		candidate, err := decodePayload[domain.IceCandidate](envelope)
		if err != nil {
			return err
		}
		return c.session.AddICECandidate(ctx, candidate)

	case MsgMakeOffer:
		if _, err := c.session.UpdateLocalStream(ctx, domain.AllCriteria()); err != nil {
			return err
		}
		_, err := c.session.CreateAndSetOffer(ctx)
		return err

	case MsgPatchTracks:
		payload, err := decodePayload[PatchTracksPayload](envelope)
		if err != nil {
			return err
		}
		if c.patcher == nil {
			return fmt.Errorf("no track patcher configured")
		}
		var firstErr error
		for _, patch := range payload.Patches {
			if err := c.patcher.ApplyPatch(patch); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return firstErr

	case MsgGetStats:
		c.session.ScrapeAndSendStats(ctx)
		return nil

	case MsgRestartIce:
		c.session.RestartICE()
		_, err := c.session.CreateAndSetOffer(ctx)
		return err

	default:
		return fmt.Errorf("unknown signalling message type %q", envelope.Type)
	}
}
