package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"quiz-intake-service/internal/domain"
)

// SubmissionRepository stores submissions as rows with a JSONB answer list.
type SubmissionRepository struct {
	pool *pgxpool.Pool
}

func NewSubmissionRepository(pool *pgxpool.Pool) *SubmissionRepository {
	return &SubmissionRepository{pool: pool}
}

const summaryColumns = `id, name, email, contact, hometown, gender, campus, branch, created_at`

func (r *SubmissionRepository) Insert(ctx context.Context, sub domain.Submission) (domain.Submission, error) {
	sub.ID = uuid.NewString()
	if sub.Answers == nil {
		sub.Answers = []domain.Answer{}
	}
	answers, err := json.Marshal(sub.Answers)
	if err != nil {
		return domain.Submission{}, fmt.Errorf("marshal answers: %w", err)
	}
	_, err = r.pool.Exec(ctx,
		`INSERT INTO submissions (id, name, email, contact, hometown, gender, campus, branch, answers, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		sub.ID, sub.Name, sub.Email, sub.Contact, sub.Hometown, sub.Gender, sub.Campus, sub.Branch, answers, sub.CreatedAt,
	)
	if err != nil {
		return domain.Submission{}, classify("insert submission", err)
	}
	return sub, nil
}

func (r *SubmissionRepository) List(ctx context.Context, filter domain.ListFilter) ([]domain.SubmissionSummary, error) {
	query, args := listQuery(summaryColumns, filter)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, classify("list submissions", err)
	}
	defer rows.Close()

	out := make([]domain.SubmissionSummary, 0)
	for rows.Next() {
		var s domain.SubmissionSummary
		if err := rows.Scan(&s.ID, &s.Name, &s.Email, &s.Contact, &s.Hometown, &s.Gender, &s.Campus, &s.Branch, &s.CreatedAt); err != nil {
			return nil, classify("scan submission", err)
		}
		s.CreatedAt = s.CreatedAt.UTC()
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("list submissions", err)
	}
	return out, nil
}

func (r *SubmissionRepository) ListFull(ctx context.Context, filter domain.ListFilter) ([]domain.Submission, error) {
	query, args := listQuery(summaryColumns+", answers", filter)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, classify("list submissions", err)
	}
	defer rows.Close()

	out := make([]domain.Submission, 0)
	for rows.Next() {
		s, err := scanFull(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("list submissions", err)
	}
	return out, nil
}

func (r *SubmissionRepository) FindByID(ctx context.Context, id string) (domain.Submission, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+summaryColumns+`, answers FROM submissions WHERE id=$1`, id)
	return scanFull(row)
}

func listQuery(columns string, filter domain.ListFilter) (string, []any) {
	if filter.Campus != "" {
		return `SELECT ` + columns + ` FROM submissions WHERE campus=$1 ORDER BY created_at DESC, seq DESC`, []any{filter.Campus}
	}
	return `SELECT ` + columns + ` FROM submissions ORDER BY created_at DESC, seq DESC`, nil
}

func scanFull(row pgx.Row) (domain.Submission, error) {
	var (
		s   domain.Submission
		raw []byte
	)
	if err := row.Scan(&s.ID, &s.Name, &s.Email, &s.Contact, &s.Hometown, &s.Gender, &s.Campus, &s.Branch, &s.CreatedAt, &raw); err != nil {
		return domain.Submission{}, classify("load submission", err)
	}
	s.CreatedAt = s.CreatedAt.UTC()
	s.Answers = []domain.Answer{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &s.Answers); err != nil {
			return domain.Submission{}, fmt.Errorf("unmarshal answers: %w", err)
		}
	}
	return s, nil
}

// classify maps driver errors onto the domain taxonomy.
func classify(op string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrSubmissionNotFound
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err) || errors.As(err, &netErr) {
		return fmt.Errorf("%s: %w: %w", op, domain.ErrConnection, err)
	}
	return fmt.Errorf("%s: %w: %w", op, domain.ErrPersistence, err)
}

// Ping verifies connectivity within timeout.
func Ping(ctx context.Context, pool *pgxpool.Pool, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := pool.Ping(ctx); err != nil {
		return classify("ping", err)
	}
	return nil
}
