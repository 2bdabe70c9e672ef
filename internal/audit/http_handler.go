package audit

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hangxigood/ERP-MES-sub000/internal/auth"
	"github.com/hangxigood/ERP-MES-sub000/internal/domain"
	fieldvalidator "github.com/hangxigood/ERP-MES-sub000/pkg/validator"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

const maxRecordBodyBytes = 1 << 20

// Handler exposes the audit service over HTTP.
type Handler struct {
	service  *Service
	validate *validator.Validate
	fields   *fieldvalidator.FieldShapeValidator
	logger   *slog.Logger
}

func NewHTTPHandler(service *Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		service:  service,
		validate: validator.New(),
		fields:   fieldvalidator.NewFieldShapeValidator(),
		logger:   logger,
	}
}

// RegisterHTTP mounts the audit endpoints on r. Callers are expected to
// install auth.RequireActor in front of them.
func (h *Handler) RegisterHTTP(r chi.Router) {
	r.Route("/sections/{sectionRef}", func(r chi.Router) {
		r.Post("/versions", h.handleRecordVersion)
		r.Delete("/versions", h.handlePurgeSection)
		r.Get("/versions/{version}", h.handleSectionVersion)
		r.Get("/history", h.handleSectionHistory)
		r.Get("/diff", h.handleCompareVersions)
	})
	r.Get("/audit-logs", h.handleQueryAuditLog)
	r.Get("/audit-logs/export", h.handleExportAuditLog)
	r.Get("/audit-logs/{id}", h.handleGetAuditEntry)
}

type recordVersionPayload struct {
	SectionName string          `json:"sectionName" validate:"required,max=200"`
	Fields      json.RawMessage `json:"fields" validate:"required"`
	ClientInfo  map[string]any  `json:"clientInfo"`
}

type auditLogParams struct {
	Page   string `validate:"omitempty,numeric"`
	Limit  string `validate:"omitempty,numeric"`
	UserID string `validate:"omitempty,uuid"`
	Role   string `validate:"omitempty,max=64"`
	Format string `validate:"omitempty,oneof=xlsx csv"`
	From   string
	To     string
}

func (h *Handler) handleRecordVersion(w http.ResponseWriter, r *http.Request) {
	sectionRef, ok := h.sectionRef(w, r)
	if !ok {
		return
	}
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "caller identity required")
		return
	}

	var payload recordVersionPayload
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRecordBodyBytes))
	if err := dec.Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if err := h.validate.Struct(payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result := h.fields.ValidateFieldsJSON(payload.Fields)
	if !result.IsValid {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":      domain.ErrInvalidFieldShape.Error(),
			"validation": result,
		})
		return
	}
	var fields []domain.Field
	if err := json.Unmarshal(payload.Fields, &fields); err != nil {
		h.writeServiceError(w, r, fmt.Errorf("%w: %v", domain.ErrInvalidFieldShape, err))
		return
	}

	clientInfo := payload.ClientInfo
	if clientInfo == nil {
		clientInfo = map[string]any{
			"userAgent":  r.UserAgent(),
			"remoteAddr": r.RemoteAddr,
		}
	}

	snapshot, err := h.service.RecordVersion(r.Context(), RecordVersionRequest{
		SectionRef:  sectionRef,
		SectionName: payload.SectionName,
		Fields:      fields,
		Actor:       actor,
		ClientInfo:  clientInfo,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	if len(result.Warnings) > 0 {
		h.logger.DebugContext(r.Context(), "field values do not match declared types",
			"section_ref", sectionRef, "warnings", len(result.Warnings))
	}
	writeJSON(w, http.StatusCreated, snapshot)
}

func (h *Handler) handlePurgeSection(w http.ResponseWriter, r *http.Request) {
	sectionRef, ok := h.sectionRef(w, r)
	if !ok {
		return
	}
	removed, err := h.service.PurgeSection(r.Context(), sectionRef)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"removed": removed})
}

func (h *Handler) handleSectionHistory(w http.ResponseWriter, r *http.Request) {
	sectionRef, ok := h.sectionRef(w, r)
	if !ok {
		return
	}
	hideEmpty, err := parseBoolParam(r.URL.Query().Get("hideEmpty"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "hideEmpty must be a boolean")
		return
	}

	entries, err := h.service.SectionHistory(r.Context(), sectionRef)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if hideEmpty {
		kept := entries[:0]
		for _, entry := range entries {
			if len(entry.Changes) > 0 {
				kept = append(kept, entry)
			}
		}
		entries = kept
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *Handler) handleSectionVersion(w http.ResponseWriter, r *http.Request) {
	sectionRef, ok := h.sectionRef(w, r)
	if !ok {
		return
	}
	version, err := strconv.ParseInt(chi.URLParam(r, "version"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "version must be an integer")
		return
	}

	snapshot, err := h.service.SectionVersion(r.Context(), sectionRef, version)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func (h *Handler) handleCompareVersions(w http.ResponseWriter, r *http.Request) {
	sectionRef, ok := h.sectionRef(w, r)
	if !ok {
		return
	}
	query := r.URL.Query()
	base, err := strconv.ParseInt(query.Get("base"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "base must be an integer")
		return
	}
	target, err := strconv.ParseInt(query.Get("target"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "target must be an integer")
		return
	}

	comparison, err := h.service.CompareVersions(r.Context(), sectionRef, base, target)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, comparison)
}

func (h *Handler) handleQueryAuditLog(w http.ResponseWriter, r *http.Request) {
	params := readAuditLogParams(r)
	query, err := h.auditQuery(params)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	page, err := h.service.QueryAuditLog(r.Context(), query)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *Handler) handleGetAuditEntry(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid audit entry id")
		return
	}

	entry, err := h.service.GetAuditEntry(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (h *Handler) handleExportAuditLog(w http.ResponseWriter, r *http.Request) {
	params := readAuditLogParams(r)
	query, err := h.auditQuery(params)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	format, err := ParseExportFormat(params.Format)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	var buf bytes.Buffer
	if _, err := h.service.ExportAuditLog(r.Context(), query.Filter, format, &buf); err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	fileName := fmt.Sprintf("audit-log-%s.%s", h.service.clock.Now().In(h.service.Location()).Format("20060102-150405"), format)
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fileName))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func readAuditLogParams(r *http.Request) auditLogParams {
	q := r.URL.Query()
	return auditLogParams{
		Page:   strings.TrimSpace(q.Get("page")),
		Limit:  strings.TrimSpace(q.Get("limit")),
		UserID: strings.TrimSpace(q.Get("userId")),
		Role:   strings.TrimSpace(q.Get("role")),
		Format: strings.ToLower(strings.TrimSpace(q.Get("format"))),
		From:   strings.TrimSpace(q.Get("from")),
		To:     strings.TrimSpace(q.Get("to")),
	}
}

func (h *Handler) auditQuery(params auditLogParams) (domain.AuditQuery, error) {
	if err := h.validate.Struct(params); err != nil {
		return domain.AuditQuery{}, fmt.Errorf("%w: %v", domain.ErrInvalidQuery, err)
	}

	var query domain.AuditQuery
	if params.Page != "" {
		page, err := strconv.Atoi(params.Page)
		if err != nil {
			return domain.AuditQuery{}, fmt.Errorf("%w: page must be an integer", domain.ErrInvalidQuery)
		}
		if page < 1 {
			return domain.AuditQuery{}, fmt.Errorf("%w: page must be at least 1", domain.ErrInvalidQuery)
		}
		query.Page = page
	}
	if params.Limit != "" {
		limit, err := strconv.Atoi(params.Limit)
		if err != nil {
			return domain.AuditQuery{}, fmt.Errorf("%w: limit must be an integer", domain.ErrInvalidQuery)
		}
		if limit < 1 {
			return domain.AuditQuery{}, fmt.Errorf("%w: limit must be at least 1", domain.ErrInvalidQuery)
		}
		query.Limit = limit
	}
	if params.UserID != "" {
		id, err := uuid.Parse(params.UserID)
		if err != nil {
			return domain.AuditQuery{}, fmt.Errorf("%w: invalid userId", domain.ErrInvalidQuery)
		}
		query.Filter.UserID = &id
	}
	query.Filter.Role = params.Role

	loc := h.service.Location()
	if params.From != "" {
		from, err := parseTimeParam(params.From, loc, false)
		if err != nil {
			return domain.AuditQuery{}, err
		}
		query.Filter.From = &from
	}
	if params.To != "" {
		to, err := parseTimeParam(params.To, loc, true)
		if err != nil {
			return domain.AuditQuery{}, err
		}
		query.Filter.To = &to
	}
	return query, nil
}

// parseTimeParam accepts RFC3339 timestamps or calendar dates. A date used as
// an upper bound covers the whole day.
func parseTimeParam(value string, loc *time.Location, endOfDay bool) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	day, err := time.ParseInLocation("2006-01-02", value, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid date %q", domain.ErrInvalidQuery, value)
	}
	if endOfDay {
		return day.AddDate(0, 0, 1).Add(-time.Nanosecond), nil
	}
	return day, nil
}

func parseBoolParam(value string) (bool, error) {
	if value == "" {
		return false, nil
	}
	return strconv.ParseBool(value)
}

func (h *Handler) sectionRef(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "sectionRef"))
	if err != nil || id == uuid.Nil {
		writeError(w, http.StatusBadRequest, "invalid section reference")
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "audit request failed", "path", r.URL.Path, "error", err)
		writeError(w, status, "internal error")
		return
	}
	writeError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrConcurrentVersionConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidFieldShape), errors.Is(err, domain.ErrInvalidQuery):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}
