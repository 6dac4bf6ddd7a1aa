package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/psicoapp/psicoapp/internal/platform/db"
)

// Sink delivers a rendered notification.
type Sink interface {
	Deliver(ctx context.Context, n *Notification) error
}

// PGSink stores notifications in the notification table read by the
// display surface.
type PGSink struct {
	pool *pgxpool.Pool
}

func NewPGSink(pool *pgxpool.Pool) *PGSink {
	return &PGSink{pool: pool}
}

func (s *PGSink) Deliver(ctx context.Context, n *Notification) error {
	data := n.Data
	if data == nil {
		data = map[string]string{}
	}
	var institution interface{}
	if n.InstitutionID != uuid.Nil {
		institution = n.InstitutionID
	}
	_, err := db.Conn(ctx, s.pool).Exec(ctx, `
		INSERT INTO notification (id, user_id, institution_id, type, title, message, data, read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, false, $8)`,
		n.ID, n.UserID, institution, string(n.Type), n.Title, n.Message, data, n.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// ChannelPrefix followed by the recipient id names a user's pub/sub channel.
const ChannelPrefix = "notifications:"

// ChannelFor is the pub/sub channel a user's live clients subscribe to.
func ChannelFor(n *Notification) string {
	return ChannelPrefix + n.UserID.String()
}

// RedisSink publishes notifications for connected clients.
type RedisSink struct {
	client *redis.Client
}

func NewRedisSink(client *redis.Client) *RedisSink {
	return &RedisSink{client: client}
}

func (s *RedisSink) Deliver(ctx context.Context, n *Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	if err := s.client.Publish(ctx, ChannelFor(n), payload).Err(); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}

// MultiSink delivers to every sink and joins their errors.
type MultiSink []Sink

func (m MultiSink) Deliver(ctx context.Context, n *Notification) error {
	var errs []error
	for _, s := range m {
		if err := s.Deliver(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
