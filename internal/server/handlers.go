package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/vanshika/reddrop/backend/internal/domain"
	"github.com/vanshika/reddrop/backend/internal/matching"
	"github.com/vanshika/reddrop/backend/internal/repository"
	"github.com/vanshika/reddrop/backend/internal/service"
)

// APIHandlers exposes HTTP handlers for the REST API.
type APIHandlers struct {
	logger  *slog.Logger
	service *service.MatchingService
}

// NewAPIHandlers constructs an APIHandlers instance.
func NewAPIHandlers(logger *slog.Logger, svc *service.MatchingService) *APIHandlers {
	return &APIHandlers{
		logger:  logger,
		service: svc,
	}
}

func (h *APIHandlers) handleDonors(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var payload donorRequest
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request payload: "+err.Error())
		return
	}
	input, err := payload.toServiceInput()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	donor, err := h.service.UpsertDonor(r.Context(), input)
	if err != nil {
		h.writeServiceError(w, err, "failed to upsert donor", "donorId", input.ID)
		return
	}
	respondJSON(w, http.StatusCreated, toDonorResponse(donor))
}

// handleDonor serves /donors/{id} and /donors/{id}/availability.
func (h *APIHandlers) handleDonor(w http.ResponseWriter, r *http.Request) {
	donorID, action := splitResourcePath(r.URL.Path, "/donors/")
	if donorID == "" {
		writeError(w, http.StatusBadRequest, "donor ID is required")
		return
	}

	switch action {
	case "":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, http.MethodGet)
			return
		}
		donor, err := h.service.GetDonor(r.Context(), donorID)
		if err != nil {
			h.writeServiceError(w, err, "failed to fetch donor", "donorId", donorID)
			return
		}
		respondJSON(w, http.StatusOK, toDonorResponse(donor))
	case "availability":
		if r.Method != http.MethodPatch && r.Method != http.MethodPut {
			methodNotAllowed(w, http.MethodPatch, http.MethodPut)
			return
		}
		var payload availabilityRequest
		if err := decodeJSON(r, &payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request payload: "+err.Error())
			return
		}
		if payload.Available == nil {
			writeError(w, http.StatusBadRequest, "available is required")
			return
		}
		if err := h.service.SetDonorAvailability(r.Context(), donorID, *payload.Available); err != nil {
			h.writeServiceError(w, err, "failed to update donor availability", "donorId", donorID)
			return
		}
		respondJSON(w, http.StatusOK, statusResponse{Status: "ok", ID: donorID})
	default:
		writeError(w, http.StatusNotFound, "unknown donor resource")
	}
}

func (h *APIHandlers) handleBloodBanks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var payload bloodBankRequest
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request payload: "+err.Error())
		return
	}
	input, err := payload.toServiceInput()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	bank, err := h.service.UpsertBloodBank(r.Context(), input)
	if err != nil {
		h.writeServiceError(w, err, "failed to upsert blood bank", "bankId", input.ID)
		return
	}
	respondJSON(w, http.StatusCreated, statusResponse{Status: "ok", ID: bank.ID})
}

func (h *APIHandlers) handleRequests(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.createRequest(w, r)
	case http.MethodGet:
		h.listOpenRequests(w, r)
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPost)
	}
}

func (h *APIHandlers) createRequest(w http.ResponseWriter, r *http.Request) {
	var payload bloodRequestPayload
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request payload: "+err.Error())
		return
	}
	input, err := payload.toServiceInput()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req, err := h.service.CreateRequest(r.Context(), input)
	if err != nil {
		h.writeServiceError(w, err, "failed to create request", "requestId", input.ID)
		return
	}
	respondJSON(w, http.StatusCreated, toRequestResponse(req))
}

func (h *APIHandlers) listOpenRequests(w http.ResponseWriter, r *http.Request) {
	requests, err := h.service.ListOpenRequests(r.Context())
	if err != nil {
		h.writeServiceError(w, err, "failed to list requests")
		return
	}
	limit := parseInt(r.URL.Query().Get("limit"), 0)
	if limit > 0 && limit < len(requests) {
		requests = requests[:limit]
	}
	response := requestListResponse{Items: make([]requestResponse, 0, len(requests))}
	for _, req := range requests {
		response.Items = append(response.Items, toRequestResponse(req))
	}
	respondJSON(w, http.StatusOK, response)
}

// handleRequest serves /requests/{id} and its match, matches, responses,
// cancel and fulfill actions.
func (h *APIHandlers) handleRequest(w http.ResponseWriter, r *http.Request) {
	requestID, action := splitResourcePath(r.URL.Path, "/requests/")
	if requestID == "" {
		writeError(w, http.StatusBadRequest, "request ID is required")
		return
	}

	switch action {
	case "":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, http.MethodGet)
			return
		}
		req, err := h.service.GetRequest(r.Context(), requestID)
		if err != nil {
			h.writeServiceError(w, err, "failed to fetch request", "requestId", requestID)
			return
		}
		respondJSON(w, http.StatusOK, toRequestResponse(req))
	case "match":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, http.MethodPost)
			return
		}
		h.matchRequest(w, r, requestID)
	case "matches":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, http.MethodGet)
			return
		}
		h.listMatches(w, r, requestID)
	case "responses":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, http.MethodPost)
			return
		}
		h.respondToMatch(w, r, requestID)
	case "cancel", "fulfill":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, http.MethodPost)
			return
		}
		var (
			req domain.BloodRequest
			err error
		)
		if action == "cancel" {
			req, err = h.service.CancelRequest(r.Context(), requestID)
		} else {
			req, err = h.service.FulfillRequest(r.Context(), requestID)
		}
		if err != nil {
			h.writeServiceError(w, err, "failed to "+action+" request", "requestId", requestID)
			return
		}
		respondJSON(w, http.StatusOK, toRequestResponse(req))
	default:
		writeError(w, http.StatusNotFound, "unknown request resource")
	}
}

func (h *APIHandlers) matchRequest(w http.ResponseWriter, r *http.Request, requestID string) {
	params, err := parseMatchParams(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	outcome, err := h.service.MatchRequest(r.Context(), requestID, params)
	if err != nil {
		h.writeServiceError(w, err, "failed to match request", "requestId", requestID)
		return
	}
	respondJSON(w, http.StatusOK, toMatchResponse(outcome))
}

func (h *APIHandlers) listMatches(w http.ResponseWriter, r *http.Request, requestID string) {
	if _, err := h.service.GetRequest(r.Context(), requestID); err != nil {
		h.writeServiceError(w, err, "failed to fetch request", "requestId", requestID)
		return
	}
	records, err := h.service.ListMatches(r.Context(), requestID)
	if err != nil {
		h.writeServiceError(w, err, "failed to list matches", "requestId", requestID)
		return
	}
	response := make([]matchRecordResponse, 0, len(records))
	for _, rec := range records {
		response = append(response, toMatchRecordResponse(rec))
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"requestId": requestID,
		"matches":   response,
	})
}

func (h *APIHandlers) respondToMatch(w http.ResponseWriter, r *http.Request, requestID string) {
	var payload donorResponsePayload
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request payload: "+err.Error())
		return
	}
	record, err := h.service.RespondToMatch(r.Context(), requestID, payload.DonorID, payload.Response)
	if err != nil {
		h.writeServiceError(w, err, "failed to record donor response", "requestId", requestID, "donorId", payload.DonorID)
		return
	}
	respondJSON(w, http.StatusOK, toMatchRecordResponse(record))
}

// handleSearch serves /search/donors and /search/blood-banks.
func (h *APIHandlers) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	target := strings.Trim(strings.TrimPrefix(r.URL.Path, "/search/"), "/")
	if target != "donors" && target != "blood-banks" {
		writeError(w, http.StatusNotFound, "unknown search resource")
		return
	}
	params, err := parseSearchParams(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if target == "donors" {
		res, err := h.service.SearchDonors(r.Context(), params)
		if err != nil {
			h.writeServiceError(w, err, "failed to search donors", "bloodType", params.BloodType)
			return
		}
		respondJSON(w, http.StatusOK, toDonorSearchResponse(res))
		return
	}
	res, err := h.service.SearchInventory(r.Context(), params)
	if err != nil {
		h.writeServiceError(w, err, "failed to search blood banks", "bloodType", params.BloodType)
		return
	}
	respondJSON(w, http.StatusOK, toInventorySearchResponse(res))
}

func (h *APIHandlers) handleDispatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	params, err := parseMatchParams(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	outcomes, err := h.service.DispatchOpenRequests(r.Context(), params)

	response := dispatchResponse{
		Matched: make([]matchResponse, 0, len(outcomes)),
		Errors:  []string{},
	}
	for _, outcome := range outcomes {
		response.Matched = append(response.Matched, toMatchResponse(outcome))
	}
	if err != nil {
		var taskErr *service.TaskError
		if !errors.As(err, &taskErr) {
			h.writeServiceError(w, err, "failed to dispatch open requests")
			return
		}
		h.logger.Warn("dispatch completed with failures", "error", err)
		for _, e := range taskErr.Errors {
			response.Errors = append(response.Errors, e.Error())
		}
	}
	respondJSON(w, http.StatusOK, response)
}

func (h *APIHandlers) handleCompatibility(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	raw := strings.Trim(strings.TrimPrefix(r.URL.Path, "/compatibility/"), "/")
	if decoded, err := url.PathUnescape(raw); err == nil {
		raw = decoded
	}
	if raw == "" {
		writeError(w, http.StatusBadRequest, "blood type is required")
		return
	}

	donors, err := h.service.CompatibleDonorsFor(raw)
	if err != nil {
		h.writeServiceError(w, err, "failed to resolve compatibility", "bloodType", raw)
		return
	}
	recipients, err := h.service.CompatibleRecipientsFor(raw)
	if err != nil {
		h.writeServiceError(w, err, "failed to resolve compatibility", "bloodType", raw)
		return
	}
	bt, _ := domain.ParseBloodType(raw)
	respondJSON(w, http.StatusOK, compatibilityResponse{
		BloodType:  bt.String(),
		Donors:     bloodTypeStrings(donors),
		Recipients: bloodTypeStrings(recipients),
	})
}

// writeServiceError maps service and storage errors onto HTTP statuses.
// Unmapped errors are logged and reported as 500 with msg.
func (h *APIHandlers) writeServiceError(w http.ResponseWriter, err error, msg string, attrs ...any) {
	var (
		bloodType  *domain.InvalidBloodTypeError
		validation *service.ValidationError
		location   *matching.MissingLocationError
	)
	switch {
	case errors.As(err, &bloodType), errors.As(err, &validation), errors.Is(err, matching.ErrInvalidRadius):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &location):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrInvalidTransition),
		errors.Is(err, service.ErrRequestExpired),
		errors.Is(err, service.ErrReservationLost),
		errors.Is(err, repository.ErrStatusConflict),
		errors.Is(err, repository.ErrAlreadyExists):
		writeError(w, http.StatusConflict, err.Error())
	default:
		h.logger.Error(msg, append([]any{"error", err}, attrs...)...)
		writeError(w, http.StatusInternalServerError, msg)
	}
}

// splitResourcePath turns "/prefix/{id}/{action}" into its id and action.
func splitResourcePath(path, prefix string) (string, string) {
	rest := strings.Trim(strings.TrimPrefix(path, prefix), "/")
	id, action, _ := strings.Cut(rest, "/")
	return id, action
}

func parseMatchParams(query url.Values) (service.MatchParams, error) {
	var params service.MatchParams
	if raw := query.Get("maxDistanceKm"); raw != "" {
		radius, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return params, fmtError("maxDistanceKm must be a number")
		}
		params.MaxDistanceKm = &radius
	}
	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return params, fmtError("limit must be a non-negative integer")
		}
		params.Limit = limit
	}
	return params, nil
}

// parseSearchParams reads bloodType, lat, lng, radiusKm and limit. The
// coordinates are required.
func parseSearchParams(query url.Values) (service.SearchParams, error) {
	params := service.SearchParams{BloodType: query.Get("bloodType")}
	if params.BloodType == "" {
		return params, fmtError("bloodType is required")
	}
	rawLat, rawLng := query.Get("lat"), query.Get("lng")
	if rawLat == "" || rawLng == "" {
		return params, fmtError("lat and lng are required")
	}
	lat, errLat := strconv.ParseFloat(rawLat, 64)
	lng, errLng := strconv.ParseFloat(rawLng, 64)
	if errLat != nil || errLng != nil {
		return params, fmtError("lat and lng must be numbers")
	}
	params.Location = &service.LocationInput{Latitude: lat, Longitude: lng}
	if raw := query.Get("radiusKm"); raw != "" {
		radius, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return params, fmtError("radiusKm must be a number")
		}
		params.RadiusKm = &radius
	}
	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return params, fmtError("limit must be a non-negative integer")
		}
		params.Limit = limit
	}
	return params, nil
}

func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return errors.New("request body is required")
	}
	defer r.Body.Close()

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return err
	}
	return nil
}

func parseInt(value string, fallback int) int {
	if value == "" {
		return fallback
	}
	if v, err := strconv.Atoi(value); err == nil {
		return v
	}
	return fallback
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(ts *time.Time) string {
	if ts == nil || ts.IsZero() {
		return ""
	}
	return ts.UTC().Format(time.RFC3339)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{
		"error": msg,
	})
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func fmtError(msg string) error {
	return errors.New(msg)
}
