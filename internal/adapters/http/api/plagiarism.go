package api

import (
	"context"
	"net/http"

	"github.com/okian/textguard/internal/domain/similarity"
	"github.com/okian/textguard/pkg/logger"
)

// PlagiarismDependencies defines the interface for plagiarism screening.
type PlagiarismDependencies interface {
	ComparePair(ctx context.Context, a, b string) (similarity.Result, error)
	CompareFiles(ctx context.Context, a, b []byte) (similarity.Result, error)
}

// pairRequest is the body of POST /check-plagiarism.
type pairRequest struct {
	Text1 string `json:"text1" validate:"required"`
	Text2 string `json:"text2" validate:"required"`
}

// PlagiarismHandler handles text-pair comparisons.
type PlagiarismHandler struct {
	deps   PlagiarismDependencies
	logger logger.Logger
}

// NewPlagiarismHandler creates a new plagiarism handler.
func NewPlagiarismHandler(deps PlagiarismDependencies, l logger.Logger) *PlagiarismHandler {
	return &PlagiarismHandler{deps: deps, logger: l}
}

// HandleCheck handles POST /check-plagiarism requests.
func (h *PlagiarismHandler) HandleCheck(w http.ResponseWriter, r *http.Request) {
	const op = "api.check_plagiarism"
	var req pairRequest
	if err := decodeJSON(w, r, op, &req); err != nil {
		fail(w, r, h.logger, err)
		return
	}
	res, err := h.deps.ComparePair(r.Context(), req.Text1, req.Text2)
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
