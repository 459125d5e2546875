package api

import (
	"context"
	"net/http"

	"github.com/okian/textguard/internal/domain/detect"
	"github.com/okian/textguard/pkg/logger"
)

// DetectDependencies defines the interface for AI-text detection.
type DetectDependencies interface {
	Detect(ctx context.Context, text string) (detect.Label, error)
	Score(ctx context.Context, text string) (detect.Result, error)
}

// textRequest is the body of POST /detect-ai-text and POST /score-ai-text.
type textRequest struct {
	Text string `json:"text" validate:"required"`
}

type detectResponse struct {
	Result detect.Label `json:"result"`
}

// DetectHandler handles detection requests.
type DetectHandler struct {
	deps   DetectDependencies
	logger logger.Logger
}

// NewDetectHandler creates a new detection handler.
func NewDetectHandler(deps DetectDependencies, l logger.Logger) *DetectHandler {
	return &DetectHandler{deps: deps, logger: l}
}

// HandleDetect handles POST /detect-ai-text requests.
func (h *DetectHandler) HandleDetect(w http.ResponseWriter, r *http.Request) {
	const op = "api.detect_ai_text"
	var req textRequest
	if err := decodeJSON(w, r, op, &req); err != nil {
		fail(w, r, h.logger, err)
		return
	}
	label, err := h.deps.Detect(r.Context(), req.Text)
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, detectResponse{Result: label})
}

// HandleScore handles POST /score-ai-text requests and returns every metric
// behind the label.
func (h *DetectHandler) HandleScore(w http.ResponseWriter, r *http.Request) {
	const op = "api.score_ai_text"
	var req textRequest
	if err := decodeJSON(w, r, op, &req); err != nil {
		fail(w, r, h.logger, err)
		return
	}
	res, err := h.deps.Score(r.Context(), req.Text)
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
