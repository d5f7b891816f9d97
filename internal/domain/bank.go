package domain

// Bank is an indexed, read-only snapshot of the question pool.
type Bank struct {
	byID       map[int64]Question
	byCategory map[Category][]Question
}

// NewBank indexes the given questions by id and category.
func NewBank(questions []Question) Bank {
	b := Bank{
		byID:       make(map[int64]Question, len(questions)),
		byCategory: make(map[Category][]Question),
	}
	for _, q := range questions {
		b.byID[q.ID] = q
		b.byCategory[q.Category] = append(b.byCategory[q.Category], q)
	}
	return b
}

// Question looks up a question by id.
func (b Bank) Question(id int64) (Question, bool) {
	q, ok := b.byID[id]
	return q, ok
}

// Category returns all questions of one category.
func (b Bank) Category(c Category) []Question {
	return b.byCategory[c]
}

// Size returns the total number of questions in the bank.
func (b Bank) Size() int {
	return len(b.byID)
}
