package hermes

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// DefaultName identifies the dashboard's connection on the NATS server.
const DefaultName = "rosa"

// Options configure the NATS connection.
type Options struct {
	URL   string
	Token string
	// Name is reported to the server as the client name; several dashboards
	// sharing a broker set distinct names.
	Name string
}

// Client publishes dashboard events and listens for ingest requests.
type Client struct {
	conn   *nats.Conn
	subs   []*nats.Subscription
	logger *slog.Logger
}

func NewClient(ctx context.Context, o Options, logger *slog.Logger) (*Client, error) {
	if o.Name == "" {
		o.Name = DefaultName
	}
	logger = logger.With("nats_client", o.Name)

	opts := []nats.Option{
		nats.Name(o.Name),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(60),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	}
	if o.Token != "" {
		opts = append(opts, nats.Token(o.Token))
	}

	nc, err := nats.Connect(o.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect %s: %w", o.URL, err)
	}

	return &Client{conn: nc, logger: logger}, nil
}

// Publish sends data as JSON on subject.
func (c *Client) Publish(subject string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", subject, err)
	}
	return c.conn.Publish(subject, payload)
}

// SubscribeIngestRequests calls handler for every message on
// SubjectIngestRequested. Undecodable payloads still trigger the handler
// with an empty request, since the message itself is the signal.
func (c *Client) SubscribeIngestRequests(handler func(IngestRequest)) error {
	return c.subscribe(SubjectIngestRequested, func(msg *nats.Msg) {
		req, err := DecodeIngestRequest(msg.Data)
		if err != nil {
			c.logger.Warn("invalid ingest request", "subject", msg.Subject, "error", err)
		}
		handler(req)
	})
}

func (c *Client) subscribe(subject string, handler nats.MsgHandler) error {
	sub, err := c.conn.Subscribe(subject, handler)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", subject, err)
	}
	c.subs = append(c.subs, sub)
	c.logger.Info("subscribed", "subject", subject)
	return nil
}

// Close drains subscriptions so queued ingest requests are still handed
// over, then closes the connection.
func (c *Client) Close() {
	if err := c.conn.Drain(); err != nil {
		c.logger.Warn("nats drain failed", "error", err)
		c.conn.Close()
	}
}
