package wsclient

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/vrsandeep/tunedl/internal/events"
)

const writeWait = 10 * time.Second

// ErrExhausted is returned by Run when every reconnect attempt failed.
var ErrExhausted = errors.New("gave up reconnecting")

type Options struct {
	Token        string
	PingInterval time.Duration
	BaseDelay    time.Duration
	MaxAttempts  int
	// OnState observes reconnect transitions.
	OnState func(State)
}

// Client follows the event stream of one user.
type Client struct {
	url    string
	opts   Options
	dialer *websocket.Dialer
	fsm    *Reconnector
	log    *zap.Logger
}

func New(url string, opts Options, log *zap.Logger) *Client {
	if opts.PingInterval <= 0 {
		opts.PingInterval = 30 * time.Second
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 5
	}
	return &Client{
		url:    url,
		opts:   opts,
		dialer: websocket.DefaultDialer,
		fsm:    NewReconnector(opts.BaseDelay, opts.MaxAttempts, opts.OnState),
		log:    log,
	}
}

func (c *Client) State() State { return c.fsm.State() }

// Run connects and calls handle for every event until ctx is cancelled or
// reconnecting is exhausted. After a reconnect callers should refetch state;
// nothing sent while disconnected is replayed.
func (c *Client) Run(ctx context.Context, handle func(events.Event)) error {
	c.fsm.Reset()
	if err := c.fsm.Start(); err != nil {
		return err
	}
	header := http.Header{}
	if c.opts.Token != "" {
		header.Set("Authorization", "Bearer "+c.opts.Token)
	}

	for {
		conn, _, err := c.dialer.DialContext(ctx, c.url, header)
		if err == nil {
			c.fsm.Succeeded()
			c.log.Info("connected", zap.String("url", c.url))
			err = c.session(ctx, conn, handle)
		}
		if ctx.Err() != nil {
			c.fsm.Reset()
			return ctx.Err()
		}

		delay, ok := c.fsm.Failed()
		if !ok {
			c.log.Error("giving up", zap.Error(err))
			return ErrExhausted
		}
		c.log.Warn("connection lost, retrying",
			zap.Error(err),
			zap.Int("attempt", c.fsm.Attempt()),
			zap.Duration("delay", delay))

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			c.fsm.Reset()
			return ctx.Err()
		case <-timer.C:
		}
		c.fsm.Retry()
	}
}

// readTimeout is how long the connection may stay silent. The server answers
// every keep-alive with a pong, so two missed intervals mean it is gone.
func (c *Client) readTimeout() time.Duration {
	return 2 * c.opts.PingInterval
}

// session pumps one connection until it fails.
func (c *Client) session(ctx context.Context, conn *websocket.Conn, handle func(events.Event)) error {
	defer conn.Close()

	conn.SetPingHandler(func(appData string) error {
		conn.SetReadDeadline(time.Now().Add(c.readTimeout()))
		err := conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeWait))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(c.opts.PingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
				conn.Close()
				return
			case <-done:
				return
			case <-ticker.C:
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.TextMessage, []byte("ping")); err != nil {
					c.log.Debug("keep-alive failed", zap.Error(err))
					conn.Close()
					return
				}
			}
		}
	}()

	for {
		conn.SetReadDeadline(time.Now().Add(c.readTimeout()))
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		ev, err := events.Decode(data)
		if err != nil {
			c.log.Warn("skipping undecodable message", zap.Error(err))
			continue
		}
		handle(ev)
	}
}
