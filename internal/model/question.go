package model

import (
	"time"

	"github.com/google/uuid"
)

// Question is a pool question. The pool itself is owned by the authoring
// collaborator; this service only reads it.
type Question struct {
	ID            uuid.UUID `json:"id"`
	Content       string    `json:"content"`
	Options       []string  `json:"options"`
	CorrectAnswer string    `json:"-"`
	Explanation   string    `json:"explanation,omitempty"`
	Difficulty    int       `json:"difficulty"`
	Tags          []string  `json:"tags"`
	CreatedAt     time.Time `json:"created_at"`
}

// QuestionForStudent is a question without the correct answer, sent to students.
type QuestionForStudent struct {
	ID         uuid.UUID `json:"id"`
	Content    string    `json:"content"`
	Options    []string  `json:"options"`
	Difficulty int       `json:"difficulty"`
	Tags       []string  `json:"tags,omitempty"`
}

// ForStudent strips the answer key.
func (q *Question) ForStudent() QuestionForStudent {
	opts := make([]string, len(q.Options))
	copy(opts, q.Options)
	return QuestionForStudent{
		ID:         q.ID,
		Content:    q.Content,
		Options:    opts,
		Difficulty: q.Difficulty,
		Tags:       q.Tags,
	}
}
