package time_entry

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/worktrack/worktrack/internal/rest"
	"github.com/worktrack/worktrack/internal/utils"
	"github.com/worktrack/worktrack/pkg/enhancement"
	"github.com/worktrack/worktrack/pkg/user"
)

type TimeEntryDTO struct {
	Id               int             `json:"id"`
	EnhancementId    int             `json:"enhancementId"`
	ResourceId       int             `json:"resourceId"`
	WorkPhaseId      int             `json:"workPhaseId"`
	StartDate        string          `json:"startDate"`
	EndDate          string          `json:"endDate"`
	Hours            decimal.Decimal `json:"hours"`
	ContributedHours decimal.Decimal `json:"contributedHours"`
	TotalPulledHours decimal.Decimal `json:"totalPulledHours"`
	RemainingHours   decimal.Decimal `json:"remainingHours"`
	Notes            string          `json:"notes,omitempty"`
	ChargeCode       string          `json:"chargeCode,omitempty"`
	CreatedBy        string          `json:"createdBy"`
	CreatedAt        time.Time       `json:"createdAt"`
	ModifiedBy       string          `json:"modifiedBy"`
	ModifiedAt       time.Time       `json:"modifiedAt"`
	Allocations      []AllocationDTO `json:"allocations,omitempty"`
}

type AllocationDTO struct {
	SourceId            int             `json:"sourceId"`
	ConsolidationId     int             `json:"consolidationId"`
	ConsolidationStatus string          `json:"consolidationStatus"`
	PulledHours         decimal.Decimal `json:"pulledHours"`
}

type NewTimeEntryDTO struct {
	EnhancementId    int              `json:"enhancementId"`
	ResourceId       int              `json:"resourceId"`
	WorkPhaseId      int              `json:"workPhaseId"`
	StartDate        string           `json:"startDate"`
	EndDate          string           `json:"endDate"`
	Hours            decimal.Decimal  `json:"hours"`
	ContributedHours *decimal.Decimal `json:"contributedHours"`
	Notes            string           `json:"notes"`
	ChargeCode       string           `json:"chargeCode"`
}

type TimeEntryUpdateDTO struct {
	WorkPhaseId      int             `json:"workPhaseId"`
	StartDate        string          `json:"startDate"`
	EndDate          string          `json:"endDate"`
	Hours            decimal.Decimal `json:"hours"`
	ContributedHours decimal.Decimal `json:"contributedHours"`
	Notes            string          `json:"notes"`
	ChargeCode       string          `json:"chargeCode"`
}

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service}
}

// Find godoc
// @Summary List time entries
// @Tags TimeEntry
// @Produce json
// @Param serviceAreaId query int false "Service area"
// @Param enhancementId query int false "Enhancement"
// @Param resourceId query int false "Resource"
// @Param from query string false "Window start (YYYY-MM-DD)"
// @Param to query string false "Window end (YYYY-MM-DD)"
// @Success 200 {array} TimeEntryDTO
// @Failure 400 {object} rest.ErrorResponse
// @Router /api/timeentry [get]
func (h *Handler) Find(w http.ResponseWriter, r *http.Request) {
	log.Debug("Listing time entries")
	var filter Filter
	var err error
	if filter.ServiceAreaId, err = rest.OptionalInt(r, "serviceAreaId"); err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid serviceAreaId", err.Error())
		return
	}
	if filter.EnhancementId, err = rest.OptionalInt(r, "enhancementId"); err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid enhancementId", err.Error())
		return
	}
	if filter.ResourceId, err = rest.OptionalInt(r, "resourceId"); err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid resourceId", err.Error())
		return
	}
	if filter.From, err = rest.OptionalDate(r, "from"); err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid from", err.Error())
		return
	}
	if filter.To, err = rest.OptionalDate(r, "to"); err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid to", err.Error())
		return
	}

	entries, err := h.service.Find(r.Context(), filter)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	result := make([]TimeEntryDTO, 0, len(entries))
	for _, e := range entries {
		result = append(result, toDTO(e))
	}
	rest.WriteJSON(w, http.StatusOK, result)
}

// Get godoc
// @Summary Get a time entry with its consolidation allocations
// @Tags TimeEntry
// @Produce json
// @Param id path int true "Time entry ID"
// @Success 200 {object} TimeEntryDTO
// @Failure 404 {object} rest.ErrorResponse
// @Router /api/timeentry/{id} [get]
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathId(w, r)
	if !ok {
		return
	}
	entry, err := h.service.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusOK, toDTO(entry))
}

// Create godoc
// @Summary Record a time entry
// @Tags TimeEntry
// @Accept json
// @Produce json
// @Param entry body NewTimeEntryDTO true "Time entry"
// @Success 201 {object} TimeEntryDTO
// @Failure 400 {object} rest.ErrorResponse
// @Failure 401 {object} rest.ErrorResponse
// @Failure 404 {object} rest.ErrorResponse
// @Router /api/timeentry [post]
// @Security XUserId
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	log.Debug("Creating time entry")
	var body NewTimeEntryDTO
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	start, end, ok := parsePeriod(w, body.StartDate, body.EndDate)
	if !ok {
		return
	}

	entry, err := h.service.Create(r.Context(), NewTimeEntry{
		EnhancementId:    body.EnhancementId,
		ResourceId:       body.ResourceId,
		WorkPhaseId:      body.WorkPhaseId,
		StartDate:        start,
		EndDate:          end,
		Hours:            body.Hours,
		ContributedHours: body.ContributedHours,
		Notes:            body.Notes,
		ChargeCode:       body.ChargeCode,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusCreated, toDTO(entry))
}

// Update godoc
// @Summary Update a time entry
// @Description Once hours of the entry are consolidated only the notes may change
// @Tags TimeEntry
// @Accept json
// @Produce json
// @Param id path int true "Time entry ID"
// @Param entry body TimeEntryUpdateDTO true "Time entry"
// @Success 200 {object} TimeEntryDTO
// @Failure 400 {object} rest.ErrorResponse
// @Failure 401 {object} rest.ErrorResponse
// @Failure 404 {object} rest.ErrorResponse
// @Failure 409 {object} rest.ErrorResponse
// @Router /api/timeentry/{id} [put]
// @Security XUserId
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathId(w, r)
	if !ok {
		return
	}
	log.Debugf("Updating time entry %d", id)
	var body TimeEntryUpdateDTO
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	start, end, ok := parsePeriod(w, body.StartDate, body.EndDate)
	if !ok {
		return
	}

	entry, err := h.service.Update(r.Context(), id, TimeEntryUpdate{
		WorkPhaseId:      body.WorkPhaseId,
		StartDate:        start,
		EndDate:          end,
		Hours:            body.Hours,
		ContributedHours: body.ContributedHours,
		Notes:            body.Notes,
		ChargeCode:       body.ChargeCode,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusOK, toDTO(entry))
}

// Delete godoc
// @Summary Delete a time entry that has no consolidated hours
// @Tags TimeEntry
// @Param id path int true "Time entry ID"
// @Success 204 "No Content"
// @Failure 404 {object} rest.ErrorResponse
// @Failure 409 {object} rest.ErrorResponse
// @Router /api/timeentry/{id} [delete]
// @Security XUserId
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathId(w, r)
	if !ok {
		return
	}
	log.Debugf("Deleting time entry %d", id)
	if err := h.service.Delete(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func pathId(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid time entry id", err.Error())
		return 0, false
	}
	return id, true
}

func parsePeriod(w http.ResponseWriter, startString, endString string) (time.Time, time.Time, bool) {
	start, err := utils.ParseDate(startString)
	if err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid startDate format", "startDate must be in YYYY-MM-DD format")
		return time.Time{}, time.Time{}, false
	}
	end, err := utils.ParseDate(endString)
	if err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid endDate format", "endDate must be in YYYY-MM-DD format")
		return time.Time{}, time.Time{}, false
	}
	return start, end, true
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, user.ErrNoUser):
		rest.WriteError(w, http.StatusUnauthorized, "Missing actor", "X-User-Id header is required")
	case errors.Is(err, ErrTimeEntryNotFound),
		errors.Is(err, enhancement.ErrEnhancementNotFound),
		errors.Is(err, enhancement.ErrServiceAreaNotFound),
		errors.Is(err, enhancement.ErrWorkPhaseNotFound):
		rest.WriteError(w, http.StatusNotFound, "Not found", err.Error())
	case errors.Is(err, ErrInvalidTimeEntry):
		rest.WriteError(w, http.StatusBadRequest, "Invalid time entry", err.Error())
	case errors.Is(err, ErrTimeEntryConsolidated):
		rest.WriteError(w, http.StatusConflict, "Time entry is consolidated", err.Error())
	default:
		log.Errorf("time entry request failed: %v", err)
		rest.WriteError(w, http.StatusInternalServerError, "Internal error", "")
	}
}

func toDTO(e TimeEntry) TimeEntryDTO {
	dto := TimeEntryDTO{
		Id:               e.Id,
		EnhancementId:    e.EnhancementId,
		ResourceId:       e.ResourceId,
		WorkPhaseId:      e.WorkPhaseId,
		StartDate:        e.StartDate.Format(time.DateOnly),
		EndDate:          e.EndDate.Format(time.DateOnly),
		Hours:            e.Hours,
		ContributedHours: e.ContributedHours,
		TotalPulledHours: e.TotalPulledHours,
		RemainingHours:   e.RemainingHours(),
		Notes:            e.Notes,
		ChargeCode:       e.ChargeCode,
		CreatedBy:        e.CreatedBy,
		CreatedAt:        e.CreatedAt,
		ModifiedBy:       e.ModifiedBy,
		ModifiedAt:       e.ModifiedAt,
	}
	for _, a := range e.Allocations {
		dto.Allocations = append(dto.Allocations, AllocationDTO{
			SourceId:            a.SourceId,
			ConsolidationId:     a.ConsolidationId,
			ConsolidationStatus: a.ConsolidationStatus.String(),
			PulledHours:         a.PulledHours,
		})
	}
	return dto
}
