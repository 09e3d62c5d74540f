package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/bascanada/logexplorer/pkg/backend"
	"github.com/bascanada/logexplorer/pkg/log"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// notifier is the part of *pgx.Conn a tail uses.
type notifier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	WaitForNotification(ctx context.Context) (*pgconn.Notification, error)
	Close(ctx context.Context) error
}

func dialPGX(ctx context.Context, dsn string) (notifier, error) {
	return pgx.Connect(ctx, dsn)
}

// OpenStream implements backend.StreamOpener with LISTEN on the stream name.
func (b *Backend) OpenStream(ctx context.Context, stream string) (backend.Feed, error) {
	if stream == "" {
		return nil, backend.ErrUnknownStream
	}
	conn, err := b.dial(ctx, b.dsn)
	if err != nil {
		return nil, fmt.Errorf("listen connection: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{stream}.Sanitize()); err != nil {
		_ = conn.Close(context.Background())
		return nil, fmt.Errorf("listen %s: %w", stream, err)
	}

	feed := backend.NewChanFeed(ctx, 64)
	go func() {
		defer conn.Close(context.Background())
		feed.Fail(pump(feed, conn))
	}()
	return feed, nil
}

// pump forwards notifications until the feed is cancelled.
func pump(feed *backend.ChanFeed, conn notifier) error {
	ctx := feed.Context()
	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		row, err := decodePayload(n.Payload)
		if err != nil {
			log.Warn("postgres tail %s: skipping payload: %v", n.Channel, err)
			continue
		}
		if !feed.Send(row) {
			return nil
		}
	}
}

func decodePayload(payload string) (backend.Row, error) {
	var row backend.Row
	if err := json.UnmarshalFromString(payload, &row); err != nil {
		return nil, err
	}
	if row == nil {
		return nil, errors.New("payload is not an object")
	}
	return row, nil
}
