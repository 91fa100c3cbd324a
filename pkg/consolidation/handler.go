package consolidation

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
	"github.com/worktrack/worktrack/pkg/time_entry"
	"github.com/worktrack/worktrack/pkg/user"
)

type ConsolidationDTO struct {
	Id               int             `json:"id"`
	EnhancementId    int             `json:"enhancementId"`
	ServiceAreaId    int             `json:"serviceAreaId"`
	StartDate        string          `json:"startDate"`
	EndDate          string          `json:"endDate"`
	BillableHours    decimal.Decimal `json:"billableHours"`
	SourceHours      decimal.Decimal `json:"sourceHours"`
	Status           string          `json:"status"`
	Notes            string          `json:"notes,omitempty"`
	InvoiceReference string          `json:"invoiceReference,omitempty"`
	CreatedBy        string          `json:"createdBy"`
	CreatedAt        time.Time       `json:"createdAt"`
	ModifiedBy       string          `json:"modifiedBy"`
	ModifiedAt       time.Time       `json:"modifiedAt"`
	Sources          []SourceDTO     `json:"sources,omitempty"`
}

type SourceDTO struct {
	Id          int                 `json:"id"`
	TimeEntryId int                 `json:"timeEntryId"`
	PulledHours decimal.Decimal     `json:"pulledHours"`
	TimeEntry   *SourceTimeEntryDTO `json:"timeEntry,omitempty"`
}

type SourceTimeEntryDTO struct {
	ResourceId       int             `json:"resourceId"`
	WorkPhaseId      int             `json:"workPhaseId"`
	StartDate        string          `json:"startDate"`
	EndDate          string          `json:"endDate"`
	Hours            decimal.Decimal `json:"hours"`
	ContributedHours decimal.Decimal `json:"contributedHours"`
	TotalPulledHours decimal.Decimal `json:"totalPulledHours"`
	RemainingHours   decimal.Decimal `json:"remainingHours"`
	Notes            string          `json:"notes,omitempty"`
}

type SourceInputDTO struct {
	TimeEntryId int             `json:"timeEntryId"`
	PulledHours decimal.Decimal `json:"pulledHours"`
}

type CreateConsolidationDTO struct {
	EnhancementId int              `json:"enhancementId"`
	StartDate     string           `json:"startDate"`
	EndDate       string           `json:"endDate"`
	Sources       []SourceInputDTO `json:"sources"`
	BillableHours decimal.Decimal  `json:"billableHours"`
	Notes         string           `json:"notes"`
}

type ManualConsolidationDTO struct {
	EnhancementId int             `json:"enhancementId"`
	StartDate     string          `json:"startDate"`
	EndDate       string          `json:"endDate"`
	BillableHours decimal.Decimal `json:"billableHours"`
	Notes         string          `json:"notes"`
}

// UpdateConsolidationDTO leaves sources or notes untouched when they are omitted.
type UpdateConsolidationDTO struct {
	Sources       *[]SourceInputDTO `json:"sources"`
	BillableHours decimal.Decimal   `json:"billableHours"`
	Notes         *string           `json:"notes"`
}

type StatusChangeDTO struct {
	Status           string `json:"status"`
	InvoiceReference string `json:"invoiceReference,omitempty"`
}

type AvailableEntryDTO struct {
	TimeEntryId      int             `json:"timeEntryId"`
	ResourceId       int             `json:"resourceId"`
	WorkPhaseId      int             `json:"workPhaseId"`
	WorkPhaseName    string          `json:"workPhaseName"`
	StartDate        string          `json:"startDate"`
	EndDate          string          `json:"endDate"`
	Hours            decimal.Decimal `json:"hours"`
	ContributedHours decimal.Decimal `json:"contributedHours"`
	TotalPulledHours decimal.Decimal `json:"totalPulledHours"`
	RemainingHours   decimal.Decimal `json:"remainingHours"`
	Notes            string          `json:"notes,omitempty"`
}

type EnhancementEntriesDTO struct {
	EnhancementId         int             `json:"enhancementId"`
	EnhancementName       string          `json:"enhancementName"`
	ServiceAreaId         int             `json:"serviceAreaId"`
	EntryCount            int             `json:"entryCount"`
	TotalHours            decimal.Decimal `json:"totalHours"`
	TotalContributedHours decimal.Decimal `json:"totalContributedHours"`
}

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service}
}

// List godoc
// @Summary List consolidations
// @Description List consolidations overlapping an optional date window
// @Tags Consolidation
// @Produce json
// @Param serviceAreaId query int false "Service area"
// @Param enhancementId query int false "Enhancement"
// @Param from query string false "Window start (YYYY-MM-DD)"
// @Param to query string false "Window end (YYYY-MM-DD)"
// @Param status query string false "draft, finalized or invoiced"
// @Success 200 {array} ConsolidationDTO
// @Failure 400 {object} rest.ErrorResponse
// @Router /api/consolidation [get]
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	log.Debug("Listing consolidations")
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
	if filter.From, err = rest.OptionalDate(r, "from"); err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid from", err.Error())
		return
	}
	if filter.To, err = rest.OptionalDate(r, "to"); err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid to", err.Error())
		return
	}
	if statusString := r.URL.Query().Get("status"); statusString != "" {
		status, err := ParseStatus(statusString)
		if err != nil {
			rest.WriteError(w, http.StatusBadRequest, "Invalid status", err.Error())
			return
		}
		filter.Status = &status
	}

	consolidations, err := h.service.List(r.Context(), filter)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	result := make([]ConsolidationDTO, 0, len(consolidations))
	for _, c := range consolidations {
		result = append(result, toDTO(c))
	}
	rest.WriteJSON(w, http.StatusOK, result)
}

// Get godoc
// @Summary Get a consolidation
// @Description Get a consolidation with its sources and their time entries
// @Tags Consolidation
// @Produce json
// @Param id path int true "Consolidation ID"
// @Success 200 {object} ConsolidationDTO
// @Failure 404 {object} rest.ErrorResponse
// @Router /api/consolidation/{id} [get]
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathId(w, r)
	if !ok {
		return
	}
	log.Debugf("Getting consolidation %d", id)
	c, err := h.service.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusOK, toDTO(c))
}

// CreateFromSources godoc
// @Summary Create a consolidation from time entries
// @Tags Consolidation
// @Accept json
// @Produce json
// @Param consolidation body CreateConsolidationDTO true "Consolidation"
// @Success 201 {object} ConsolidationDTO
// @Failure 400 {object} rest.ErrorResponse
// @Failure 401 {object} rest.ErrorResponse
// @Failure 404 {object} rest.ErrorResponse
// @Failure 409 {object} rest.ErrorResponse
// @Router /api/consolidation [post]
// @Security XUserId
func (h *Handler) CreateFromSources(w http.ResponseWriter, r *http.Request) {
	log.Debug("Creating consolidation from sources")
	var body CreateConsolidationDTO
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	start, end, ok := parsePeriod(w, body.StartDate, body.EndDate)
	if !ok {
		return
	}

	c, err := h.service.CreateFromSources(r.Context(), CreateFromSourcesRequest{
		EnhancementId: body.EnhancementId,
		StartDate:     start,
		EndDate:       end,
		Sources:       fromSourceInputDTOs(body.Sources),
		BillableHours: body.BillableHours,
		Notes:         body.Notes,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusCreated, toDTO(c))
}

// CreateManual godoc
// @Summary Create a consolidation without time entry sources
// @Tags Consolidation
// @Accept json
// @Produce json
// @Param consolidation body ManualConsolidationDTO true "Consolidation"
// @Success 201 {object} ConsolidationDTO
// @Failure 400 {object} rest.ErrorResponse
// @Failure 401 {object} rest.ErrorResponse
// @Failure 404 {object} rest.ErrorResponse
// @Router /api/consolidation/manual [post]
// @Security XUserId
func (h *Handler) CreateManual(w http.ResponseWriter, r *http.Request) {
	log.Debug("Creating manual consolidation")
	var body ManualConsolidationDTO
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	start, end, ok := parsePeriod(w, body.StartDate, body.EndDate)
	if !ok {
		return
	}

	c, err := h.service.CreateManual(r.Context(), CreateManualRequest{
		EnhancementId: body.EnhancementId,
		StartDate:     start,
		EndDate:       end,
		BillableHours: body.BillableHours,
		Notes:         body.Notes,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusCreated, toDTO(c))
}

// Update godoc
// @Summary Update a draft consolidation
// @Tags Consolidation
// @Accept json
// @Produce json
// @Param id path int true "Consolidation ID"
// @Param consolidation body UpdateConsolidationDTO true "Changes"
// @Success 200 {object} ConsolidationDTO
// @Failure 400 {object} rest.ErrorResponse
// @Failure 401 {object} rest.ErrorResponse
// @Failure 404 {object} rest.ErrorResponse
// @Failure 409 {object} rest.ErrorResponse
// @Router /api/consolidation/{id} [put]
// @Security XUserId
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathId(w, r)
	if !ok {
		return
	}
	log.Debugf("Updating consolidation %d", id)
	var body UpdateConsolidationDTO
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	req := UpdateRequest{BillableHours: body.BillableHours, Notes: body.Notes}
	if body.Sources != nil {
		sources := fromSourceInputDTOs(*body.Sources)
		req.Sources = &sources
	}
	c, err := h.service.Update(r.Context(), id, req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusOK, toDTO(c))
}

// Delete godoc
// @Summary Delete a draft consolidation
// @Tags Consolidation
// @Param id path int true "Consolidation ID"
// @Success 204 "No Content"
// @Failure 401 {object} rest.ErrorResponse
// @Failure 404 {object} rest.ErrorResponse
// @Failure 409 {object} rest.ErrorResponse
// @Router /api/consolidation/{id} [delete]
// @Security XUserId
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathId(w, r)
	if !ok {
		return
	}
	log.Debugf("Deleting consolidation %d", id)
	if err := h.service.Delete(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ChangeStatus godoc
// @Summary Move a consolidation to another status
// @Tags Consolidation
// @Accept json
// @Produce json
// @Param id path int true "Consolidation ID"
// @Param status body StatusChangeDTO true "Target status"
// @Success 200 {object} ConsolidationDTO
// @Failure 400 {object} rest.ErrorResponse
// @Failure 401 {object} rest.ErrorResponse
// @Failure 404 {object} rest.ErrorResponse
// @Failure 409 {object} rest.ErrorResponse
// @Router /api/consolidation/{id}/status [patch]
// @Security XUserId
func (h *Handler) ChangeStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathId(w, r)
	if !ok {
		return
	}
	var body StatusChangeDTO
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	status, err := ParseStatus(body.Status)
	if err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid status", err.Error())
		return
	}
	log.Debugf("Changing status of consolidation %d to %s", id, status)

	c, err := h.service.ChangeStatus(r.Context(), id, StatusChange{Status: status, InvoiceReference: body.InvoiceReference})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusOK, toDTO(c))
}

// GetAvailableEntries godoc
// @Summary List time entries that can be pulled into a consolidation
// @Tags Consolidation
// @Produce json
// @Param enhancementId query int true "Enhancement"
// @Param start query string true "Window start (YYYY-MM-DD)"
// @Param end query string true "Window end (YYYY-MM-DD)"
// @Success 200 {array} AvailableEntryDTO
// @Failure 400 {object} rest.ErrorResponse
// @Failure 404 {object} rest.ErrorResponse
// @Router /api/consolidation/available-entries [get]
func (h *Handler) GetAvailableEntries(w http.ResponseWriter, r *http.Request) {
	enhancementId, err := rest.RequiredInt(r, "enhancementId")
	if err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid enhancementId", err.Error())
		return
	}
	start, end, ok := windowParams(w, r)
	if !ok {
		return
	}
	log.Debugf("Listing available entries of enhancement %d", enhancementId)

	entries, err := h.service.GetAvailableEntries(r.Context(), enhancementId, start, end)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	result := make([]AvailableEntryDTO, 0, len(entries))
	for _, e := range entries {
		result = append(result, AvailableEntryDTO{
			TimeEntryId:      e.TimeEntryId,
			ResourceId:       e.ResourceId,
			WorkPhaseId:      e.WorkPhaseId,
			WorkPhaseName:    e.WorkPhaseName,
			StartDate:        e.StartDate.Format(time.DateOnly),
			EndDate:          e.EndDate.Format(time.DateOnly),
			Hours:            e.Hours,
			ContributedHours: e.ContributedHours,
			TotalPulledHours: e.TotalPulledHours,
			RemainingHours:   e.RemainingHours,
			Notes:            e.Notes,
		})
	}
	rest.WriteJSON(w, http.StatusOK, result)
}

// GetEnhancementsWithEntries godoc
// @Summary List enhancements having consolidation-eligible time entries
// @Tags Consolidation
// @Produce json
// @Param serviceAreaId query int false "Service area"
// @Param start query string true "Window start (YYYY-MM-DD)"
// @Param end query string true "Window end (YYYY-MM-DD)"
// @Success 200 {array} EnhancementEntriesDTO
// @Failure 400 {object} rest.ErrorResponse
// @Failure 404 {object} rest.ErrorResponse
// @Router /api/consolidation/enhancements [get]
func (h *Handler) GetEnhancementsWithEntries(w http.ResponseWriter, r *http.Request) {
	serviceAreaId, err := rest.OptionalInt(r, "serviceAreaId")
	if err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid serviceAreaId", err.Error())
		return
	}
	start, end, ok := windowParams(w, r)
	if !ok {
		return
	}
	log.Debug("Listing enhancements with entries")

	summaries, err := h.service.GetEnhancementsWithEntries(r.Context(), serviceAreaId, start, end)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	result := make([]EnhancementEntriesDTO, 0, len(summaries))
	for _, s := range summaries {
		result = append(result, EnhancementEntriesDTO(s))
	}
	rest.WriteJSON(w, http.StatusOK, result)
}

func pathId(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid consolidation id", err.Error())
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

func windowParams(w http.ResponseWriter, r *http.Request) (time.Time, time.Time, bool) {
	start, err := rest.RequiredDate(r, "start")
	if err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid start", err.Error())
		return time.Time{}, time.Time{}, false
	}
	end, err := rest.RequiredDate(r, "end")
	if err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid end", err.Error())
		return time.Time{}, time.Time{}, false
	}
	return start, end, true
}

// writeServiceError maps service errors to HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, user.ErrNoUser):
		rest.WriteError(w, http.StatusUnauthorized, "Missing actor", "X-User-Id header is required")
	case errors.Is(err, ErrConsolidationNotFound),
		errors.Is(err, time_entry.ErrTimeEntryNotFound),
		errors.Is(err, enhancement.ErrEnhancementNotFound),
		errors.Is(err, enhancement.ErrServiceAreaNotFound),
		errors.Is(err, enhancement.ErrWorkPhaseNotFound):
		rest.WriteError(w, http.StatusNotFound, "Not found", err.Error())
	case errors.Is(err, ErrValidation):
		rest.WriteError(w, http.StatusBadRequest, "Validation failed", err.Error())
	case errors.Is(err, ErrIllegalTransition):
		rest.WriteError(w, http.StatusConflict, "Illegal state transition", err.Error())
	case errors.Is(err, ErrConservationViolation):
		rest.WriteError(w, http.StatusConflict, "Conservation violation", err.Error())
	default:
		log.Errorf("consolidation request failed: %v", err)
		rest.WriteError(w, http.StatusInternalServerError, "Internal error", "")
	}
}

func fromSourceInputDTOs(dtos []SourceInputDTO) []SourceInput {
	sources := make([]SourceInput, 0, len(dtos))
	for _, dto := range dtos {
		sources = append(sources, SourceInput(dto))
	}
	return sources
}

func toDTO(c Consolidation) ConsolidationDTO {
	dto := ConsolidationDTO{
		Id:               c.Id,
		EnhancementId:    c.EnhancementId,
		ServiceAreaId:    c.ServiceAreaId,
		StartDate:        c.StartDate.Format(time.DateOnly),
		EndDate:          c.EndDate.Format(time.DateOnly),
		BillableHours:    c.BillableHours,
		SourceHours:      c.SourceHours,
		Status:           c.Status.String(),
		Notes:            c.Notes,
		InvoiceReference: c.InvoiceReference,
		CreatedBy:        c.CreatedBy,
		CreatedAt:        c.CreatedAt,
		ModifiedBy:       c.ModifiedBy,
		ModifiedAt:       c.ModifiedAt,
	}
	for _, s := range c.Sources {
		te := s.TimeEntry
		dto.Sources = append(dto.Sources, SourceDTO{
			Id:          s.Id,
			TimeEntryId: s.TimeEntryId,
			PulledHours: s.PulledHours,
			TimeEntry: &SourceTimeEntryDTO{
				ResourceId:       te.ResourceId,
				WorkPhaseId:      te.WorkPhaseId,
				StartDate:        te.StartDate.Format(time.DateOnly),
				EndDate:          te.EndDate.Format(time.DateOnly),
				Hours:            te.Hours,
				ContributedHours: te.ContributedHours,
				TotalPulledHours: te.TotalPulledHours,
				RemainingHours:   te.RemainingHours(),
				Notes:            te.Notes,
			},
		})
	}
	return dto
}
