package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"quiz-intake-service/internal/domain"
)

// SubmissionRepository is an in-memory implementation of app.SubmissionRepository.
// It backs tests and single-process demos; records do not survive a restart.
type SubmissionRepository struct {
	mu      sync.RWMutex
	records map[string]storedSubmission
	seq     int64
}

type storedSubmission struct {
	sub domain.Submission
	seq int64
}

func NewSubmissionRepository() *SubmissionRepository {
	return &SubmissionRepository{records: make(map[string]storedSubmission)}
}

func (r *SubmissionRepository) Insert(_ context.Context, sub domain.Submission) (domain.Submission, error) {
	sub.ID = uuid.NewString()
	sub.Answers = cloneAnswers(sub.Answers)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	r.records[sub.ID] = storedSubmission{sub: sub, seq: r.seq}
	return sub, nil
}

func (r *SubmissionRepository) List(ctx context.Context, filter domain.ListFilter) ([]domain.SubmissionSummary, error) {
	full, err := r.ListFull(ctx, filter)
	if err != nil {
		return nil, err
	}
	out := make([]domain.SubmissionSummary, 0, len(full))
	for _, s := range full {
		out = append(out, s.Summary())
	}
	return out, nil
}

func (r *SubmissionRepository) ListFull(_ context.Context, filter domain.ListFilter) ([]domain.Submission, error) {
	r.mu.RLock()
	stored := make([]storedSubmission, 0, len(r.records))
	for _, rec := range r.records {
		if filter.Campus != "" && rec.sub.Campus != filter.Campus {
			continue
		}
		stored = append(stored, rec)
	}
	r.mu.RUnlock()

	// Newest first; insertion order breaks timestamp ties.
	sort.Slice(stored, func(i, j int) bool {
		a, b := stored[i], stored[j]
		if !a.sub.CreatedAt.Equal(b.sub.CreatedAt) {
			return a.sub.CreatedAt.After(b.sub.CreatedAt)
		}
		return a.seq > b.seq
	})

	out := make([]domain.Submission, 0, len(stored))
	for _, rec := range stored {
		sub := rec.sub
		sub.Answers = cloneAnswers(sub.Answers)
		out = append(out, sub)
	}
	return out, nil
}

func (r *SubmissionRepository) FindByID(_ context.Context, id string) (domain.Submission, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[id]
	if !ok {
		return domain.Submission{}, domain.ErrSubmissionNotFound
	}
	sub := rec.sub
	sub.Answers = cloneAnswers(sub.Answers)
	return sub, nil
}

func cloneAnswers(in []domain.Answer) []domain.Answer {
	if in == nil {
		return []domain.Answer{}
	}
	out := make([]domain.Answer, len(in))
	copy(out, in)
	return out
}
