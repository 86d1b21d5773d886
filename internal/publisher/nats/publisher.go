// Package nats publishes brief completion events to NATS subjects.
package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/seo-brief-automator/internal/brief"
)

// Publisher sends JSON messages on a NATS connection.
type Publisher struct {
	nc     *nats.Conn
	logger *zap.Logger
}

var _ brief.Publisher = (*Publisher)(nil)

// Connect dials url with unlimited reconnects.
func Connect(url string, logger *zap.Logger) (*Publisher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	nc, err := nats.Connect(url,
		nats.Name("seo-brief-automator"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", zap.Error(err))
			}
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Publisher{nc: nc, logger: logger}, nil
}

// Publish sends payload on subject and flushes so delivery errors surface.
// The returned ID is carried in the Nats-Msg-Id header.
func (p *Publisher) Publish(ctx context.Context, subject string, payload any) (string, error) {
	msg, err := encode(subject, payload)
	if err != nil {
		return "", err
	}
	if err := p.nc.PublishMsg(msg); err != nil {
		return "", fmt.Errorf("publish %s: %w", subject, err)
	}
	if err := p.nc.FlushWithContext(ctx); err != nil {
		return "", fmt.Errorf("flush %s: %w", subject, err)
	}
	id := msg.Header.Get(nats.MsgIdHdr)
	p.logger.Debug("published", zap.String("subject", subject), zap.String("message_id", id))
	return id, nil
}

// Close drains the connection.
func (p *Publisher) Close() error {
	if p.nc == nil {
		return nil
	}
	if err := p.nc.Drain(); err != nil {
		return fmt.Errorf("drain nats: %w", err)
	}
	return nil
}

func encode(subject string, payload any) (*nats.Msg, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	msg := nats.NewMsg(subject)
	msg.Data = data
	msg.Header.Set(nats.MsgIdHdr, nuid.Next())
	msg.Header.Set("Content-Type", "application/json")
	return msg, nil
}
