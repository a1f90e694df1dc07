package domain

import "time"

// Answer is one entry of a submission's answer list.
type Answer struct {
	QuestionID    string  `json:"questionId" bson:"questionId"`
	Category      string  `json:"category" bson:"category"`
	QuestionIndex int     `json:"questionIndex" bson:"questionIndex"` // 1-based
	Answer        *string `json:"answer" bson:"answer"`
}

// Profile holds the demographic fields collected before the quiz.
type Profile struct {
	Name     string `json:"name" yaml:"name"`
	Email    string `json:"email" yaml:"email"`
	Contact  string `json:"contact,omitempty" yaml:"contact"`
	Hometown string `json:"hometown,omitempty" yaml:"hometown"`
	Gender   string `json:"gender,omitempty" yaml:"gender"`
	Campus   string `json:"campus,omitempty" yaml:"campus"`
	Branch   string `json:"branch,omitempty" yaml:"branch"`
}

// NewSubmission is the client payload for POST /api/students.
type NewSubmission struct {
	Profile
	Answers []Answer `json:"answers,omitempty"`
}

// Submission is the durable record owned by the submission store.
type Submission struct {
	ID        string    `json:"_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Contact   string    `json:"contact,omitempty"`
	Hometown  string    `json:"hometown,omitempty"`
	Gender    string    `json:"gender,omitempty"`
	Campus    string    `json:"campus,omitempty"`
	Branch    string    `json:"branch,omitempty"`
	Answers   []Answer  `json:"answers"`
	CreatedAt time.Time `json:"createdAt"`
}

// SubmissionSummary is the list projection; it never carries answers.
type SubmissionSummary struct {
	ID        string    `json:"_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Contact   string    `json:"contact,omitempty"`
	Hometown  string    `json:"hometown,omitempty"`
	Gender    string    `json:"gender,omitempty"`
	Campus    string    `json:"campus,omitempty"`
	Branch    string    `json:"branch,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Summary projects the record without its answers.
func (s Submission) Summary() SubmissionSummary {
	return SubmissionSummary{
		ID:        s.ID,
		Name:      s.Name,
		Email:     s.Email,
		Contact:   s.Contact,
		Hometown:  s.Hometown,
		Gender:    s.Gender,
		Campus:    s.Campus,
		Branch:    s.Branch,
		CreatedAt: s.CreatedAt,
	}
}

// ListFilter narrows the summary list. Zero value means everything.
type ListFilter struct {
	Campus string
}

// Question is one entry of the canonical question catalog.
type Question struct {
	ID       string   `json:"id" yaml:"id"`
	Category string   `json:"category" yaml:"category"`
	Text     string   `json:"text" yaml:"text"`
	Options  []string `json:"options" yaml:"options"`
}

// OtherOption collects answers that match none of a question's options.
const OtherOption = "Other"

// QuestionStats aggregates the answers given to one question.
type QuestionStats struct {
	ID         string         `json:"id"`
	Category   string         `json:"category"`
	Text       string         `json:"text"`
	Options    []string       `json:"options"`
	Counts     map[string]int `json:"counts"`
	Unanswered int            `json:"unanswered"`
}
