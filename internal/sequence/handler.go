package sequence

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/tradeflow/internal/platform/httpx"
	"github.com/odyssey-erp/tradeflow/internal/shared"
)

// Handler exposes standalone number issuance.
type Handler struct {
	logger    *slog.Logger
	generator *Generator
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, generator *Generator) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, generator: generator}
}

// MountRoutes registers sequence routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/sequences/{kind}", h.issue)
}

type issueResponse struct {
	Number string `json:"number"`
	Kind   Kind   `json:"kind"`
	Bucket string `json:"bucket"`
	Value  int64  `json:"value"`
}

func (h *Handler) issue(w http.ResponseWriter, r *http.Request) {
	p, err := httpx.Principal(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	kind, err := ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", shared.ErrValidation, err))
		return
	}
	n, err := h.generator.Issue(r.Context(), p.CompanyID, kind)
	if err != nil {
		if !errors.Is(err, shared.ErrValidation) {
			h.logger.Error("issue sequence", slog.String("kind", string(kind)), slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, issueResponse{Number: n.Formatted, Kind: kind, Bucket: n.Key.Bucket, Value: n.Value})
}
