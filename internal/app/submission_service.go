package app

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
	"quiz-intake-service/internal/domain"
)

// SubmissionRepository abstracts the durable store (memory, Postgres, MongoDB).
// Insert assigns the identifier; everything else is taken from the argument.
type SubmissionRepository interface {
	Insert(ctx context.Context, sub domain.Submission) (domain.Submission, error)
	List(ctx context.Context, filter domain.ListFilter) ([]domain.SubmissionSummary, error)
	ListFull(ctx context.Context, filter domain.ListFilter) ([]domain.Submission, error)
	FindByID(ctx context.Context, id string) (domain.Submission, error)
}

// StatsRepository serves per-question statistics, usually from a cache.
type StatsRepository interface {
	GetStats(ctx context.Context, filter domain.ListFilter) ([]domain.QuestionStats, error)
	Invalidate(ctx context.Context) error
}

// EventPublisher announces newly created submissions to live subscribers.
type EventPublisher interface {
	PublishSubmission(ctx context.Context, summary domain.SubmissionSummary) error
}

// SubmissionService contains the intake and reporting use cases.
type SubmissionService struct {
	repo      SubmissionRepository
	stats     StatsRepository
	publisher EventPublisher
	logger    *zap.Logger
	now       func() time.Time
}

type ServiceOption func(*SubmissionService)

func WithStats(stats StatsRepository) ServiceOption {
	return func(s *SubmissionService) { s.stats = stats }
}

func WithPublisher(p EventPublisher) ServiceOption {
	return func(s *SubmissionService) { s.publisher = p }
}

func WithLogger(l *zap.Logger) ServiceOption {
	return func(s *SubmissionService) { s.logger = l }
}

// WithClock is for deterministic timestamps in tests.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *SubmissionService) { s.now = now }
}

func NewSubmissionService(repo SubmissionRepository, opts ...ServiceOption) *SubmissionService {
	s := &SubmissionService{
		repo:   repo,
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create validates the payload and persists exactly one record for it.
// Retried payloads are not deduplicated.
func (s *SubmissionService) Create(ctx context.Context, in domain.NewSubmission) (domain.Submission, error) {
	var missing []string
	if strings.TrimSpace(in.Name) == "" {
		missing = append(missing, "name")
	}
	if strings.TrimSpace(in.Email) == "" {
		missing = append(missing, "email")
	}
	if len(missing) > 0 {
		return domain.Submission{}, &domain.ValidationError{Fields: missing}
	}

	answers := in.Answers
	if answers == nil {
		answers = []domain.Answer{}
	}
	saved, err := s.repo.Insert(ctx, domain.Submission{
		Name:      in.Name,
		Email:     in.Email,
		Contact:   in.Contact,
		Hometown:  in.Hometown,
		Gender:    in.Gender,
		Campus:    in.Campus,
		Branch:    in.Branch,
		Answers:   answers,
		CreatedAt: s.now().UTC().Truncate(time.Millisecond),
	})
	if err != nil {
		return domain.Submission{}, err
	}

	// The record is durable at this point; the follow-ups are best-effort.
	if s.stats != nil {
		if err := s.stats.Invalidate(ctx); err != nil {
			s.logger.Warn("stats invalidation failed", zap.Error(err))
		}
	}
	if s.publisher != nil {
		if err := s.publisher.PublishSubmission(ctx, saved.Summary()); err != nil {
			s.logger.Warn("publish submission failed", zap.String("id", saved.ID), zap.Error(err))
		}
	}
	return saved, nil
}

// List returns summaries newest first.
func (s *SubmissionService) List(ctx context.Context, filter domain.ListFilter) ([]domain.SubmissionSummary, error) {
	return s.repo.List(ctx, filter)
}

// Get returns the full record with answers in submitted order.
func (s *SubmissionService) Get(ctx context.Context, id string) (domain.Submission, error) {
	return s.repo.FindByID(ctx, id)
}

// Stats returns per-question counts; without a stats repository it is a no-op.
func (s *SubmissionService) Stats(ctx context.Context, filter domain.ListFilter) ([]domain.QuestionStats, error) {
	if s.stats == nil {
		return []domain.QuestionStats{}, nil
	}
	return s.stats.GetStats(ctx, filter)
}
