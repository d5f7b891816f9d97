package domain

import "time"

// Category enumerates question types. Each category carries its own
// per-attempt quota and score weight.
type Category string

const (
	// CategoryRadio is a single-choice question.
	CategoryRadio Category = "radio"
	// CategoryBinary is a true/false question.
	CategoryBinary Category = "binary"
)

// Categories lists every known category.
var Categories = []Category{CategoryRadio, CategoryBinary}

// KnownCategory reports whether c is one of the defined categories.
func KnownCategory(c Category) bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// Choice is one possible answer to a question.
type Choice struct {
	ID      int64  `json:"id"`
	Content string `json:"content"`
	Correct bool   `json:"correct"`
}

// Question is an immutable multiple-choice question owned by the content store.
type Question struct {
	ID       int64    `json:"id"`
	Content  string   `json:"content"`
	Category Category `json:"category"`
	Choices  []Choice `json:"choices"`
}

// Choice returns the choice with the given id, if it belongs to this question.
func (q Question) Choice(id int64) (Choice, bool) {
	for _, c := range q.Choices {
		if c.ID == id {
			return c, true
		}
	}
	return Choice{}, false
}

// CorrectChoice returns the question's correct choice, if one is marked.
func (q Question) CorrectChoice() (Choice, bool) {
	for _, c := range q.Choices {
		if c.Correct {
			return c, true
		}
	}
	return Choice{}, false
}

// DraftAnswer pairs a question with the currently chosen choice, if any.
type DraftAnswer struct {
	QuestionID int64
	ChoiceID   *int64
}

// DraftSession is the mutable, time-bounded working state of one attempt.
// A student owns at most one at a time; the question set is fixed at creation.
type DraftSession struct {
	StudentID string
	Deadline  time.Time
	Answers   []DraftAnswer
}

// Expired reports whether the deadline has passed at the given instant.
func (d DraftSession) Expired(now time.Time) bool {
	return now.After(d.Deadline)
}

// HasQuestion reports whether the question is part of this draft's fixed set.
func (d DraftSession) HasQuestion(questionID int64) bool {
	for _, a := range d.Answers {
		if a.QuestionID == questionID {
			return true
		}
	}
	return false
}

// Answer is an immutable (question, choice-or-none) pair in a finalized response.
type Answer struct {
	QuestionID int64
	ChoiceID   *int64
}

// Response is an immutable finalized submission. Produced only by
// finalization, never updated or deleted afterwards.
type Response struct {
	ID          int64
	StudentID   string
	SubmittedAt time.Time
	Answers     []Answer
}
