package models

import (
	"time"

	"github.com/google/uuid"
)

// OptionLetters are the answer keys in display order.
var OptionLetters = [4]string{"A", "B", "C", "D"}

// Question is static quiz content. Immutable once published.
type Question struct {
	ID             uuid.UUID `json:"id"`
	QuestionSetID  uuid.UUID `json:"question_set_id"`
	OrderIndex     int       `json:"order_index"`
	Text           string    `json:"text"`
	Options        [4]string `json:"options"`
	CorrectOption  string    `json:"correct_option"`
	VerseReference *string   `json:"verse_reference,omitempty"`
	VerseContent   *string   `json:"verse_content,omitempty"`
}

// OptionText returns the option text for a letter, or "" for an unknown letter.
func (q *Question) OptionText(letter string) string {
	for i, l := range OptionLetters {
		if l == letter {
			return q.Options[i]
		}
	}
	return ""
}

// IsValidOption reports whether letter is one of A-D.
func IsValidOption(letter string) bool {
	for _, l := range OptionLetters {
		if l == letter {
			return true
		}
	}
	return false
}

// QuestionSet groups ordered questions.
type QuestionSet struct {
	ID        uuid.UUID `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}
