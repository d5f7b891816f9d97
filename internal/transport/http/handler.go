package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"contest-service/internal/app"
	"contest-service/internal/domain"
)

// studentHeader carries the opaque identity resolved by the upstream
// authentication layer. An empty value means an anonymous caller.
const studentHeader = "X-Student-ID"

// Handler exposes the contest operations as a JSON API.
type Handler struct {
	service *app.ContestService
}

func NewHandler(service *app.ContestService) *Handler {
	return &Handler{service: service}
}

// Register mounts all contest routes on the mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/home", h.home)
	mux.HandleFunc("GET /api/info", h.info)
	mux.HandleFunc("GET /api/contest", h.contest)
	mux.HandleFunc("POST /api/contest/answers", h.updateAnswer)
	mux.HandleFunc("POST /api/contest/submit", h.submit)
	mux.HandleFunc("GET /api/contest/reviews/{index}", h.review)
}

type choiceView struct {
	ID      int64  `json:"id"`
	Content string `json:"content"`
}

type questionView struct {
	ID             int64        `json:"id"`
	Content        string       `json:"content"`
	Category       string       `json:"category"`
	Choices        []choiceView `json:"choices"`
	ChosenChoiceID *int64       `json:"chosenChoiceId"`
}

type draftPayload struct {
	Deadline  time.Time      `json:"deadline"`
	Questions []questionView `json:"questions"`
}

type infoPayload struct {
	BestScore    float64 `json:"bestScore"`
	MaxScore     float64 `json:"maxScore"`
	AttemptsUsed int     `json:"attemptsUsed"`
	AttemptsLeft int     `json:"attemptsLeft"`
}

type updateRequest struct {
	QuestionID string `json:"questionId"`
	ChoiceID   string `json:"choiceId"`
}

type submitPayload struct {
	SubmittedAt time.Time `json:"submittedAt"`
}

type reviewAnswerView struct {
	QuestionID      int64  `json:"questionId"`
	Question        string `json:"question"`
	Category        string `json:"category"`
	ChosenChoiceID  *int64 `json:"chosenChoiceId"`
	Correct         bool   `json:"correct"`
	CorrectChoiceID *int64 `json:"correctChoiceId"`
}

type reviewPayload struct {
	SubmittedAt time.Time          `json:"submittedAt"`
	Score       float64            `json:"score"`
	Answers     []reviewAnswerView `json:"answers"`
}

func (h *Handler) home(w http.ResponseWriter, r *http.Request) {
	status, err := h.service.Home(r.Context(), r.Header.Get(studentHeader))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(status)})
}

func (h *Handler) info(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.Info(r.Context(), r.Header.Get(studentHeader))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, infoPayload{
		BestScore:    summary.BestScore,
		MaxScore:     summary.MaxScore,
		AttemptsUsed: summary.AttemptsUsed,
		AttemptsLeft: summary.AttemptsLeft,
	})
}

func (h *Handler) contest(w http.ResponseWriter, r *http.Request) {
	detail, err := h.service.StartOrGet(r.Context(), r.Header.Get(studentHeader))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, draftView(detail))
}

func (h *Handler) updateAnswer(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.ErrMalformedInput)
		return
	}
	questionID, err := strconv.ParseInt(req.QuestionID, 10, 64)
	if err != nil {
		writeError(w, domain.ErrMalformedInput)
		return
	}
	var choiceID *int64
	if req.ChoiceID != "" {
		id, err := strconv.ParseInt(req.ChoiceID, 10, 64)
		if err != nil {
			writeError(w, domain.ErrMalformedInput)
			return
		}
		choiceID = &id
	}
	if err := h.service.UpdateAnswer(r.Context(), r.Header.Get(studentHeader), questionID, choiceID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "saved"})
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	resp, err := h.service.Submit(r.Context(), r.Header.Get(studentHeader))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, submitPayload{SubmittedAt: resp.SubmittedAt})
}

func (h *Handler) review(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		writeError(w, domain.ErrMalformedInput)
		return
	}
	detail, err := h.service.Review(r.Context(), r.Header.Get(studentHeader), index)
	if err != nil {
		writeError(w, err)
		return
	}
	answers := make([]reviewAnswerView, 0, len(detail.Answers))
	for _, a := range detail.Answers {
		view := reviewAnswerView{
			QuestionID:     a.Question.ID,
			Question:       a.Question.Content,
			Category:       string(a.Question.Category),
			ChosenChoiceID: a.ChoiceID,
			Correct:        a.Correct,
		}
		if correct, ok := a.Question.CorrectChoice(); ok {
			id := correct.ID
			view.CorrectChoiceID = &id
		}
		answers = append(answers, view)
	}
	writeJSON(w, http.StatusOK, reviewPayload{
		SubmittedAt: detail.SubmittedAt,
		Score:       detail.Score,
		Answers:     answers,
	})
}

// draftView strips correctness flags; they never leave the server while an
// attempt is live.
func draftView(detail app.DraftDetail) draftPayload {
	questions := make([]questionView, 0, len(detail.Questions))
	for _, q := range detail.Questions {
		choices := make([]choiceView, 0, len(q.Question.Choices))
		for _, c := range q.Question.Choices {
			choices = append(choices, choiceView{ID: c.ID, Content: c.Content})
		}
		questions = append(questions, questionView{
			ID:             q.Question.ID,
			Content:        q.Question.Content,
			Category:       string(q.Question.Category),
			Choices:        choices,
			ChosenChoiceID: q.ChoiceID,
		})
	}
	return draftPayload{Deadline: detail.Deadline, Questions: questions}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write response: %v", err)
	}
}

// writeError maps the domain error taxonomy to response codes. Only the
// classification is exposed, never internal state.
func writeError(w http.ResponseWriter, err error) {
	var (
		status  int
		message string
	)
	switch {
	case errors.Is(err, domain.ErrMalformedInput):
		status, message = http.StatusBadRequest, "malformed input"
	case errors.Is(err, domain.ErrQuestionNotFound):
		status, message = http.StatusNotFound, "question not found"
	case errors.Is(err, domain.ErrChoiceNotFound):
		status, message = http.StatusNotFound, "choice not found"
	case errors.Is(err, domain.ErrResponseNotFound):
		status, message = http.StatusNotFound, "response not found"
	case errors.Is(err, domain.ErrDraftNotFound):
		status, message = http.StatusForbidden, "no active draft"
	case errors.Is(err, domain.ErrDraftExpired):
		status, message = http.StatusForbidden, "draft deadline passed"
	case errors.Is(err, domain.ErrTryLimitExceeded):
		status, message = http.StatusForbidden, "try limit exceeded"
	case errors.Is(err, domain.ErrContestClosed):
		status, message = http.StatusForbidden, "contest not open"
	case errors.Is(err, domain.ErrNotStudent):
		status, message = http.StatusForbidden, "not a student"
	default:
		log.Printf("contest operation failed: %v", err)
		status, message = http.StatusInternalServerError, "internal error"
	}
	writeJSON(w, status, map[string]string{"error": message})
}
