package app

import (
	"context"

	"quiz-intake-service/internal/domain"
)

// StatsLoader computes statistics from the backing store on a cache miss.
type StatsLoader interface {
	LoadStats(ctx context.Context, filter domain.ListFilter) ([]domain.QuestionStats, error)
}

// StatsCalculator aggregates full submissions against the question catalog.
type StatsCalculator struct {
	repo      SubmissionRepository
	questions []domain.Question
}

func NewStatsCalculator(repo SubmissionRepository, questions []domain.Question) *StatsCalculator {
	return &StatsCalculator{repo: repo, questions: questions}
}

func (c *StatsCalculator) LoadStats(ctx context.Context, filter domain.ListFilter) ([]domain.QuestionStats, error) {
	subs, err := c.repo.ListFull(ctx, filter)
	if err != nil {
		return nil, err
	}
	return ComputeQuestionStats(c.questions, subs), nil
}

// ComputeQuestionStats counts every option of every question. A missing, null
// or empty answer is unanswered; text matching no option counts as Other.
func ComputeQuestionStats(questions []domain.Question, subs []domain.Submission) []domain.QuestionStats {
	stats := make([]domain.QuestionStats, 0, len(questions))
	for _, q := range questions {
		counts := make(map[string]int, len(q.Options)+1)
		for _, opt := range q.Options {
			counts[opt] = 0
		}
		unanswered := 0
		for _, sub := range subs {
			value := answerFor(sub.Answers, q.ID)
			if value == "" {
				unanswered++
				continue
			}
			if _, ok := counts[value]; ok {
				counts[value]++
			} else {
				counts[domain.OtherOption]++
			}
		}
		stats = append(stats, domain.QuestionStats{
			ID:         q.ID,
			Category:   q.Category,
			Text:       q.Text,
			Options:    q.Options,
			Counts:     counts,
			Unanswered: unanswered,
		})
	}
	return stats
}

func answerFor(answers []domain.Answer, questionID string) string {
	for _, a := range answers {
		if a.QuestionID == questionID {
			if a.Answer == nil {
				return ""
			}
			return *a.Answer
		}
	}
	return ""
}
