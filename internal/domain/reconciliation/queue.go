package reconciliation

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const queueKey = "reconciliation:discrepancies"

// Queue is the operator-facing discrepancy queue. Resolve claims the entry:
// it removes it from the queue and hands it to exactly one caller, so
// concurrent resolves of the same discrepancy cannot both act on it.
type Queue interface {
	Push(ctx context.Context, d Discrepancy) error
	List(ctx context.Context, limit int64) ([]Discrepancy, error)
	Resolve(ctx context.Context, id uuid.UUID) (*Discrepancy, error)
}

// NewQueue creates a Redis-backed queue. With a nil client (Redis not
// configured) discrepancies are surfaced through the log only.
func NewQueue(client *redis.Client) Queue {
	if client == nil {
		return &logQueue{}
	}
	return &redisQueue{client: client}
}

type redisQueue struct {
	client *redis.Client
}

func (q *redisQueue) Push(ctx context.Context, d Discrepancy) error {
	payload, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("failed to encode discrepancy: %w", err)
	}
	if err := q.client.LPush(ctx, queueKey, payload).Err(); err != nil {
		return fmt.Errorf("failed to enqueue discrepancy: %w", err)
	}
	return nil
}

func (q *redisQueue) List(ctx context.Context, limit int64) ([]Discrepancy, error) {
	if limit <= 0 {
		limit = 100
	}
	raw, err := q.client.LRange(ctx, queueKey, 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read discrepancy queue: %w", err)
	}

	out := make([]Discrepancy, 0, len(raw))
	for _, entry := range raw {
		var d Discrepancy
		if err := json.Unmarshal([]byte(entry), &d); err != nil {
			log.Warn().Str("entry", entry).Msg("skipping malformed discrepancy entry")
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

func (q *redisQueue) Resolve(ctx context.Context, id uuid.UUID) (*Discrepancy, error) {
	raw, err := q.client.LRange(ctx, queueKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read discrepancy queue: %w", err)
	}

	for _, entry := range raw {
		var d Discrepancy
		if err := json.Unmarshal([]byte(entry), &d); err != nil {
			continue
		}
		if d.ID == id {
			removed, err := q.client.LRem(ctx, queueKey, 1, entry).Result()
			if err != nil {
				return nil, fmt.Errorf("failed to remove discrepancy: %w", err)
			}
			// LRem of an entry another resolver already removed reports
			// count 0, not an error. That caller lost the claim.
			if removed == 0 {
				return nil, ErrDiscrepancyNotFound
			}
			return &d, nil
		}
	}
	return nil, ErrDiscrepancyNotFound
}

// logQueue surfaces discrepancies in the log when Redis is unavailable.
// They still reach operators through log-based alerting, just without the
// list/resolve workflow.
type logQueue struct{}

func (q *logQueue) Push(ctx context.Context, d Discrepancy) error {
	log.Error().
		Str("transaction_id", d.TransactionID.String()).
		Str("owner_id", d.OwnerID.String()).
		Int64("amount", d.Amount).
		Str("reason", d.Reason).
		Msg("reconciliation discrepancy (queue unavailable)")
	return nil
}

func (q *logQueue) List(ctx context.Context, limit int64) ([]Discrepancy, error) {
	return nil, nil
}

func (q *logQueue) Resolve(ctx context.Context, id uuid.UUID) (*Discrepancy, error) {
	return nil, ErrDiscrepancyNotFound
}
