package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Baaaki/scooter-fleet/pkg/logger"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const DefaultNATSSubject = "fleetchat.events"

// NATSBroker implements Broker over a NATS subject
type NATSBroker struct {
	conn    *nats.Conn
	subject string
}

// NewNATSBroker connects to url and publishes on subject, DefaultNATSSubject when empty.
func NewNATSBroker(url, subject string) (*NATSBroker, error) {
	if subject == "" {
		subject = DefaultNATSSubject
	}

	log := logger.Named("nats")
	nc, err := nats.Connect(url,
		nats.Name("fleet-chat"),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	return &NATSBroker{conn: nc, subject: subject}, nil
}

func (n *NATSBroker) Publish(_ context.Context, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return n.conn.Publish(n.subject, data)
}

func (n *NATSBroker) Subscribe(ctx context.Context) (<-chan Envelope, error) {
	raw := make(chan *nats.Msg, localBufferSize)
	sub, err := n.conn.ChanSubscribe(n.subject, raw)
	if err != nil {
		return nil, fmt.Errorf("nats subscribe %s: %w", n.subject, err)
	}
	if err := n.conn.Flush(); err != nil {
		_ = sub.Unsubscribe()
		return nil, fmt.Errorf("nats flush: %w", err)
	}

	out := make(chan Envelope, localBufferSize)

	go func() {
		defer close(out)
		defer sub.Unsubscribe()

		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-raw:
				var env Envelope
				if err := json.Unmarshal(msg.Data, &env); err != nil {
					logger.Log.Warn("Dropping malformed broker payload", zap.Error(err))
					continue
				}
				select {
				case out <- env:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// Close closes the NATS connection, ending every subscription.
func (n *NATSBroker) Close() error {
	n.conn.Close()
	return nil
}
