package consolidation_summary

import (
	"errors"
	"net/http"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/worktrack/worktrack/internal/rest"
	"github.com/worktrack/worktrack/pkg/consolidation"
	"github.com/worktrack/worktrack/pkg/enhancement"
)

type EnhancementSummaryDTO struct {
	EnhancementId   int             `json:"enhancementId"`
	EnhancementName string          `json:"enhancementName"`
	ServiceAreaId   int             `json:"serviceAreaId"`
	Count           int             `json:"count"`
	BillableHours   decimal.Decimal `json:"billableHours"`
	SourceHours     decimal.Decimal `json:"sourceHours"`
}

type ServiceAreaSummaryDTO struct {
	ServiceAreaId   int             `json:"serviceAreaId"`
	ServiceAreaName string          `json:"serviceAreaName"`
	Count           int             `json:"count"`
	BillableHours   decimal.Decimal `json:"billableHours"`
	SourceHours     decimal.Decimal `json:"sourceHours"`
}

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service}
}

// SummaryByEnhancement godoc
// @Summary Consolidated hours per enhancement
// @Tags ConsolidationSummary
// @Produce json
// @Param serviceAreaId query int false "Service area"
// @Param from query string false "Window start (YYYY-MM-DD)"
// @Param to query string false "Window end (YYYY-MM-DD)"
// @Success 200 {array} EnhancementSummaryDTO
// @Failure 400 {object} rest.ErrorResponse
// @Router /api/consolidation/summary/enhancement [get]
func (h *Handler) SummaryByEnhancement(w http.ResponseWriter, r *http.Request) {
	log.Debug("Summarizing consolidations by enhancement")
	serviceAreaId, err := rest.OptionalInt(r, "serviceAreaId")
	if err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid serviceAreaId", err.Error())
		return
	}
	from, err := rest.OptionalDate(r, "from")
	if err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid from", err.Error())
		return
	}
	to, err := rest.OptionalDate(r, "to")
	if err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid to", err.Error())
		return
	}

	summaries, err := h.service.SummaryByEnhancement(r.Context(), serviceAreaId, from, to)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	result := make([]EnhancementSummaryDTO, 0, len(summaries))
	for _, s := range summaries {
		result = append(result, EnhancementSummaryDTO(s))
	}
	rest.WriteJSON(w, http.StatusOK, result)
}

// SummaryByServiceArea godoc
// @Summary Consolidated hours per service area
// @Tags ConsolidationSummary
// @Produce json
// @Param from query string false "Window start (YYYY-MM-DD)"
// @Param to query string false "Window end (YYYY-MM-DD)"
// @Success 200 {array} ServiceAreaSummaryDTO
// @Failure 400 {object} rest.ErrorResponse
// @Router /api/consolidation/summary/servicearea [get]
func (h *Handler) SummaryByServiceArea(w http.ResponseWriter, r *http.Request) {
	log.Debug("Summarizing consolidations by service area")
	from, err := rest.OptionalDate(r, "from")
	if err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid from", err.Error())
		return
	}
	to, err := rest.OptionalDate(r, "to")
	if err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid to", err.Error())
		return
	}

	summaries, err := h.service.SummaryByServiceArea(r.Context(), from, to)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	result := make([]ServiceAreaSummaryDTO, 0, len(summaries))
	for _, s := range summaries {
		result = append(result, ServiceAreaSummaryDTO(s))
	}
	rest.WriteJSON(w, http.StatusOK, result)
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, consolidation.ErrValidation):
		rest.WriteError(w, http.StatusBadRequest, "Validation failed", err.Error())
	case errors.Is(err, enhancement.ErrServiceAreaNotFound), errors.Is(err, enhancement.ErrEnhancementNotFound):
		rest.WriteError(w, http.StatusNotFound, "Not found", err.Error())
	default:
		log.Errorf("summary request failed: %v", err)
		rest.WriteError(w, http.StatusInternalServerError, "Internal error", "")
	}
}
