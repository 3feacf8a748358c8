package realtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/dthanhvu03/threadsauto-sub000/internal/logging"
)

const (
	writeTimeout      = 5 * time.Second
	serverQueueSize   = 64
	maxReconnectDelay = 30 * time.Second
)

// WSOptions configures a WSChannel.
type WSOptions struct {
	// Token is sent as a bearer token on the upgrade request.
	Token  string
	Logger logging.Logger
}

// WSChannel subscribes to rooms over websocket. Each subscription owns one
// connection to <url>?room=<room> and reconnects with exponential backoff
// until closed.
type WSChannel struct {
	url       *url.URL
	header    http.Header
	validator *envelopeValidator
	log       logging.Logger
}

// NewWSChannel parses rawURL and prepares the envelope validator.
func NewWSChannel(rawURL string, opts WSOptions) (*WSChannel, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse websocket url: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss", "http", "https":
	default:
		return nil, fmt.Errorf("unsupported websocket scheme %q", u.Scheme)
	}
	validator, err := newEnvelopeValidator()
	if err != nil {
		return nil, err
	}
	header := http.Header{}
	if opts.Token != "" {
		header.Set("Authorization", "Bearer "+opts.Token)
	}
	log := opts.Logger
	if log == nil {
		log = logging.Nop()
	}
	return &WSChannel{
		url:       u,
		header:    header,
		validator: validator,
		log:       log.With("component", "ws"),
	}, nil
}

func (c *WSChannel) roomURL(room string) string {
	u := *c.url
	q := u.Query()
	q.Set("room", room)
	u.RawQuery = q.Encode()
	return u.String()
}

// Subscribe dials the room. The first dial error is returned; later
// disconnects are retried in the background.
func (c *WSChannel) Subscribe(ctx context.Context, room string) (Subscription, error) {
	conn, err := c.dial(ctx, room)
	if err != nil {
		return nil, err
	}
	subCtx, cancel := context.WithCancel(context.Background())
	sub := &wsSubscription{
		channel: c,
		room:    room,
		ctx:     subCtx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go sub.loop(conn)
	return sub, nil
}

func (c *WSChannel) dial(ctx context.Context, room string) (*websocket.Conn, error) {
	conn, resp, err := websocket.Dial(ctx, c.roomURL(room), &websocket.DialOptions{HTTPHeader: c.header.Clone()})
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial room %s: %w", room, err)
	}
	return conn, nil
}

type wsSubscription struct {
	channel  *WSChannel
	room     string
	handlers handlers
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	once     sync.Once
}

func (s *wsSubscription) On(event string, cb func(Event)) {
	s.handlers.on(event, cb)
}

func (s *wsSubscription) Close() error {
	s.once.Do(s.cancel)
	<-s.done
	return nil
}

func (s *wsSubscription) loop(conn *websocket.Conn) {
	defer close(s.done)
	log := s.channel.log.With("room", s.room)

	for {
		err := s.read(conn)
		if s.ctx.Err() != nil {
			_ = conn.Close(websocket.StatusNormalClosure, "unsubscribed")
			return
		}
		log.Warn("push connection lost", "error", err)
		_ = conn.Close(websocket.StatusGoingAway, "reconnecting")

		conn, err = backoff.Retry(s.ctx, func() (*websocket.Conn, error) {
			return s.channel.dial(s.ctx, s.room)
		},
			backoff.WithBackOff(reconnectBackOff()),
			backoff.WithMaxElapsedTime(0),
			backoff.WithNotify(func(err error, next time.Duration) {
				log.Debug("reconnect failed", "error", err, "next", next)
			}),
		)
		if err != nil {
			return
		}
		log.Info("push connection restored")
	}
}

func reconnectBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.MaxInterval = maxReconnectDelay
	return b
}

// read dispatches frames until the connection fails or the subscription
// is closed.
func (s *wsSubscription) read(conn *websocket.Conn) error {
	for {
		_, data, err := conn.Read(s.ctx)
		if err != nil {
			return err
		}
		ev, err := s.channel.validator.decode(data)
		if err != nil {
			s.channel.log.Warn("dropping push frame", "room", s.room, "error", err)
			continue
		}
		if ev.Room != s.room {
			continue
		}
		s.handlers.dispatch(ev)
	}
}

// NewWSHandler serves websocket subscribers of hub. The room is taken from
// the room query parameter. Slow clients lose events rather than block
// publishers.
func NewWSHandler(hub *Hub, log logging.Logger) http.Handler {
	if log == nil {
		log = logging.Nop()
	}
	log = log.With("component", "ws")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		room := r.URL.Query().Get("room")
		if room == "" {
			http.Error(w, "room is required", http.StatusBadRequest)
			return
		}
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			log.Warn("websocket accept failed", "error", err)
			return
		}
		ctx := conn.CloseRead(r.Context())

		queue := make(chan Event, serverQueueSize)
		sub, err := hub.Subscribe(ctx, room)
		if err != nil {
			_ = conn.Close(websocket.StatusInternalError, "subscribe failed")
			return
		}
		defer sub.Close()
		sub.On(AnyEvent, func(ev Event) {
			select {
			case queue <- ev:
			default:
				log.Warn("dropping event for slow subscriber", "room", room, "event", ev.Name)
			}
		})

		for {
			select {
			case <-ctx.Done():
				_ = conn.Close(websocket.StatusNormalClosure, "")
				return
			case ev := <-queue:
				writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
				err := wsjson.Write(writeCtx, conn, ev)
				cancel()
				if err != nil {
					if !errors.Is(err, context.Canceled) {
						log.Debug("websocket write failed", "room", room, "error", err)
					}
					return
				}
			}
		}
	})
}
