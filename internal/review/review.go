// File: internal/review/review.go
// Description: Postgres-backed review queue and feedback collector. Healed
// test cases land here for optional human approval; reviewers can accept the
// healed steps as-is or submit corrected ones.

package review

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/voidwalkr/restitch/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DBPool abstracts the pgx pool so tests can substitute pgxmock.
type DBPool interface {
	Ping(ctx context.Context) error
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store implements schemas.ReviewQueue and schemas.FeedbackCollector on
// PostgreSQL.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

// New verifies the connection and returns a review store.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Store{pool: pool, log: logger.Named("review")}, nil
}

// Queue submits a healed test case for review and returns its queue ID.
func (s *Store) Queue(ctx context.Context, tc schemas.TestCase, stats schemas.HealingStats) (string, error) {
	payload, err := json.Marshal(tc)
	if err != nil {
		return "", fmt.Errorf("failed to marshal test case: %w", err)
	}

	id := uuid.NewString()
	_, err = s.pool.Exec(ctx, `
        INSERT INTO review_items (id, test_case, healed_count, failed_count, status, submitted_at)
        VALUES ($1, $2, $3, $4, $5, $6);`,
		id, payload, stats.Healed, stats.Failed, string(schemas.ReviewPending), time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("failed to queue test case for review: %w", err)
	}

	s.log.Info("Test case queued for review",
		zap.String("review_id", id),
		zap.String("test_id", tc.ID),
		zap.Int("healed", stats.Healed),
		zap.Int("failed", stats.Failed))
	return id, nil
}

// ListPending returns all items still awaiting review, oldest first.
func (s *Store) ListPending(ctx context.Context) ([]schemas.ReviewItem, error) {
	rows, err := s.pool.Query(ctx, `
        SELECT id, test_case, healed_count, failed_count, status, submitted_at
        FROM review_items
        WHERE status = $1
        ORDER BY submitted_at ASC;`,
		string(schemas.ReviewPending))
	if err != nil {
		return nil, fmt.Errorf("failed to query pending reviews: %w", err)
	}
	defer rows.Close()

	var items []schemas.ReviewItem
	for rows.Next() {
		var (
			item    schemas.ReviewItem
			payload []byte
			status  string
		)
		if err := rows.Scan(&item.ID, &payload, &item.Stats.Healed, &item.Stats.Failed, &status, &item.SubmittedAt); err != nil {
			return nil, fmt.Errorf("failed to scan review row: %w", err)
		}
		if err := json.Unmarshal(payload, &item.TestCase); err != nil {
			return nil, fmt.Errorf("failed to decode test case for review %s: %w", item.ID, err)
		}
		item.Status = schemas.ReviewStatus(status)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return items, nil
}

// SubmitReview records the reviewer's verdict. When changes are provided they
// replace the healed steps wholesale; the updated test case is returned and
// persisted with the review.
func (s *Store) SubmitReview(ctx context.Context, id string, approved bool, changes []string) (schemas.TestCase, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx,
		`SELECT test_case FROM review_items WHERE id = $1;`, id).Scan(&payload)
	if err != nil {
		return schemas.TestCase{}, fmt.Errorf("failed to load review item %s: %w", id, err)
	}

	var tc schemas.TestCase
	if err := json.Unmarshal(payload, &tc); err != nil {
		return schemas.TestCase{}, fmt.Errorf("failed to decode test case for review %s: %w", id, err)
	}

	if len(changes) > 0 {
		tc.Steps = append([]string(nil), changes...)
	}

	status := schemas.ReviewApproved
	if !approved {
		status = schemas.ReviewRejected
	}

	updated, err := json.Marshal(tc)
	if err != nil {
		return schemas.TestCase{}, fmt.Errorf("failed to marshal reviewed test case: %w", err)
	}

	tag, err := s.pool.Exec(ctx, `
        UPDATE review_items
        SET test_case = $1, status = $2, reviewed_at = $3
        WHERE id = $4;`,
		updated, string(status), time.Now().UTC(), id)
	if err != nil {
		return schemas.TestCase{}, fmt.Errorf("failed to update review item %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return schemas.TestCase{}, fmt.Errorf("review item %s not found", id)
	}

	s.log.Info("Review submitted",
		zap.String("review_id", id),
		zap.Bool("approved", approved),
		zap.Int("changed_steps", len(changes)))
	return tc, nil
}

// SubmitFeedback records a feedback tuple for a test.
func (s *Store) SubmitFeedback(ctx context.Context, fb schemas.Feedback) error {
	if fb.Rating < 1 || fb.Rating > 5 {
		return fmt.Errorf("feedback rating must be between 1 and 5, got %d", fb.Rating)
	}
	_, err := s.pool.Exec(ctx, `
        INSERT INTO feedback (id, test_id, type, rating, comment, created_at)
        VALUES ($1, $2, $3, $4, $5, $6);`,
		uuid.NewString(), fb.TestID, fb.Type, fb.Rating, fb.Comment, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to record feedback: %w", err)
	}
	return nil
}
