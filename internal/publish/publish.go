// Package publish streams extraction results to NATS.
//
// For an extraction with id X on subject S, each record is published to
// S.X.record in order, then a summary with the stats to S.X.done. Every
// message carries the extraction id in the Extraction-Id header.
package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/browserlog/internal/extract"
)

// HeaderExtractionID names the header carrying the extraction id.
const HeaderExtractionID = "Extraction-Id"

// Config holds connection settings.
type Config struct {
	URL     string
	Subject string
	Token   string
	Timeout time.Duration
}

// Publisher publishes extraction results.
type Publisher struct {
	nc      *nats.Conn
	subject string
	timeout time.Duration
	logger  *zap.Logger
}

// Summary is the payload of the done message.
type Summary struct {
	ID      string        `json:"id"`
	Records int           `json:"records"`
	Stats   extract.Stats `json:"stats"`
	Error   string        `json:"error,omitempty"`
}

// Connect dials the NATS server in cfg.
func Connect(cfg Config, logger *zap.Logger) (*Publisher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Subject == "" {
		return nil, errors.New("subject is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}

	opts := []nats.Option{
		nats.Name("browserlog"),
		nats.Timeout(cfg.Timeout),
		nats.MaxReconnects(5),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", zap.Error(err))
			}
		}),
	}
	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", cfg.URL, err)
	}
	logger.Info("connected to NATS", zap.String("url", nc.ConnectedUrlRedacted()))

	return &Publisher{nc: nc, subject: cfg.Subject, timeout: cfg.Timeout, logger: logger}, nil
}

// Publish sends result's records and summary, then waits for the server to
// acknowledge them. collectErr is the error Extract returned with a partial
// result, if any.
func (p *Publisher) Publish(ctx context.Context, result *extract.Result, collectErr error) error {
	if result == nil {
		return errors.New("nil result")
	}
	prefix := p.subject + "." + result.ID

	for i, rec := range result.Records {
		if err := p.publish(prefix+".record", result.ID, strconv.Itoa(i), rec); err != nil {
			return err
		}
	}

	summary := Summary{ID: result.ID, Records: len(result.Records), Stats: result.Stats}
	if collectErr != nil {
		summary.Error = collectErr.Error()
	}
	if err := p.publish(prefix+".done", result.ID, "done", summary); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	if err := p.nc.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("flush: %w", err)
	}

	p.logger.Debug("published extraction",
		zap.String("subject", prefix),
		zap.Int("records", len(result.Records)),
	)
	return nil
}

func (p *Publisher) publish(subject, id, seq string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", subject, err)
	}
	msg := nats.NewMsg(subject)
	msg.Data = data
	msg.Header.Set(HeaderExtractionID, id)
	msg.Header.Set(nats.MsgIdHdr, id+"-"+seq)
	if err := p.nc.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// Close drains pending messages and closes the connection.
func (p *Publisher) Close() error {
	if p == nil || p.nc == nil {
		return nil
	}
	return p.nc.Drain()
}
