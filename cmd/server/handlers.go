package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"trade-journal-go/internal/importer"
	"trade-journal-go/internal/journal"
	"trade-journal-go/internal/stats"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// APIHandler holds dependencies for the API endpoints.
//
// Authentication lives outside this service: the authenticated principal
// arrives as an explicit user_id parameter on every request, and coach
// delegation is checked against the journal, never assumed.
type APIHandler struct {
	log           *zap.Logger
	service       *journal.Service
	importer      *importer.Importer
	stats         *stats.Engine
	importLimiter *rate.Limiter
}

// NewAPIHandler creates a new APIHandler.
func NewAPIHandler(log *zap.Logger, service *journal.Service, imp *importer.Importer, engine *stats.Engine, importLimiter *rate.Limiter) *APIHandler {
	return &APIHandler{
		log:           log,
		service:       service,
		importer:      imp,
		stats:         engine,
		importLimiter: importLimiter,
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *APIHandler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error("Failed to encode response", zap.Error(err))
	}
}

func (h *APIHandler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, errorResponse{Error: msg})
}

// uintParam reads a required unsigned integer query or form parameter.
func uintParam(r *http.Request, name string) (uint, error) {
	raw := r.FormValue(name)
	if raw == "" {
		return 0, errors.New("missing parameter " + name)
	}
	v, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, errors.New("invalid parameter " + name)
	}
	return uint(v), nil
}

// optionalUintParam reads an optional unsigned integer parameter.
func optionalUintParam(r *http.Request, name string) (*uint, error) {
	if r.FormValue(name) == "" {
		return nil, nil
	}
	v, err := uintParam(r, name)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// optionalDateParam reads an optional YYYY-MM-DD parameter.
func optionalDateParam(r *http.Request, name string) (*time.Time, error) {
	raw := r.FormValue(name)
	if raw == "" {
		return nil, nil
	}
	d, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, errors.New("invalid date parameter " + name + " (expected YYYY-MM-DD)")
	}
	return &d, nil
}

// TradesHandler lists the owner's trades (GET), creates one (POST) or
// updates one (PUT).
func (h *APIHandler) TradesHandler(w http.ResponseWriter, r *http.Request) {
	ownerID, err := uintParam(r, "user_id")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	switch r.Method {
	case http.MethodGet:
		start, err := optionalDateParam(r, "start_date")
		if err != nil {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		end, err := optionalDateParam(r, "end_date")
		if err != nil {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		trades, err := h.service.ListTrades(ownerID, start, end)
		if err != nil {
			h.log.Error("Failed to list trades", zap.Error(err))
			h.writeError(w, http.StatusInternalServerError, "failed to list trades")
			return
		}
		h.writeJSON(w, http.StatusOK, trades)

	case http.MethodPost:
		var input journal.TradeInput
		if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		trade, err := h.service.CreateTrade(ownerID, input)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.writeJSON(w, http.StatusCreated, trade)

	case http.MethodPut:
		tradeID, err := uintParam(r, "trade_id")
		if err != nil {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		var input journal.TradeInput
		if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		trade, err := h.service.UpdateTrade(ownerID, tradeID, input)
		switch {
		case errors.Is(err, journal.ErrNotFound):
			h.writeError(w, http.StatusNotFound, err.Error())
		case err != nil:
			h.writeError(w, http.StatusBadRequest, err.Error())
		default:
			h.writeJSON(w, http.StatusOK, trade)
		}

	default:
		h.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// TradeStrategyHandler moves a trade under another of the owner's
// strategies, or detaches it when strategy_id is absent.
func (h *APIHandler) TradeStrategyHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	ownerID, err := uintParam(r, "user_id")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	tradeID, err := uintParam(r, "trade_id")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	strategyID, err := optionalUintParam(r, "strategy_id")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	trade, err := h.service.AssignTradeStrategy(ownerID, tradeID, strategyID)
	switch {
	case errors.Is(err, journal.ErrNotFound):
		h.writeError(w, http.StatusNotFound, err.Error())
	case err != nil:
		h.log.Error("Failed to reassign trade", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "failed to reassign trade")
	default:
		h.writeJSON(w, http.StatusOK, trade)
	}
}

// TradeNoteHandler adds the note on a trade. A trade keeps one note.
func (h *APIHandler) TradeNoteHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	ownerID, err := uintParam(r, "user_id")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	tradeID, err := uintParam(r, "trade_id")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	switch err := h.service.UpdateTradeNote(ownerID, tradeID, r.FormValue("note")); {
	case errors.Is(err, journal.ErrNotFound):
		h.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, journal.ErrNoteExists):
		h.writeError(w, http.StatusConflict, err.Error())
	case err != nil:
		h.log.Error("Failed to update note", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "failed to update note")
	default:
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// ImportHandler ingests an uploaded CSV/TSV file of trades.
// Responds with {rows_inserted, rows_rejected}; row-level problems never
// fail the request.
func (h *APIHandler) ImportHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if !h.importLimiter.Allow() {
		h.writeError(w, http.StatusTooManyRequests, "too many import requests")
		return
	}

	ownerID, err := uintParam(r, "user_id")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	strategyID, err := optionalUintParam(r, "strategy_id")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strategyID != nil {
		if _, err := h.service.GetStrategy(ownerID, *strategyID); err != nil {
			h.writeError(w, http.StatusBadRequest, "strategy does not belong to this user")
			return
		}
	}
	startDate, err := optionalDateParam(r, "start_date")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	endDate, err := optionalDateParam(r, "end_date")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "missing file upload")
		return
	}
	defer file.Close()

	summary, err := h.importer.Import(r.Context(), file, header.Size, importer.Options{
		OwnerID:    ownerID,
		StrategyID: strategyID,
		StartDate:  startDate,
		EndDate:    endDate,
	})

	var missingHeaders *importer.MissingHeadersError
	switch {
	case errors.Is(err, importer.ErrFileTooLarge):
		h.writeError(w, http.StatusRequestEntityTooLarge, err.Error())
	case errors.As(err, &missingHeaders):
		h.writeError(w, http.StatusBadRequest, missingHeaders.Error())
	case err != nil:
		h.log.Error("CSV import failed", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "import failed")
	default:
		h.writeJSON(w, http.StatusOK, summary)
	}
}

// StrategiesHandler lists (GET), creates (POST), updates (PUT) or
// deletes (DELETE) the owner's strategies.
func (h *APIHandler) StrategiesHandler(w http.ResponseWriter, r *http.Request) {
	ownerID, err := uintParam(r, "user_id")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	switch r.Method {
	case http.MethodGet:
		strategies, err := h.service.ListStrategies(ownerID)
		if err != nil {
			h.log.Error("Failed to list strategies", zap.Error(err))
			h.writeError(w, http.StatusInternalServerError, "failed to list strategies")
			return
		}
		h.writeJSON(w, http.StatusOK, strategies)

	case http.MethodPost:
		var input struct {
			Name        string `json:"name"`
			Description string `json:"description"`
		}
		if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		strategy, err := h.service.CreateStrategy(ownerID, input.Name, input.Description)
		if errors.Is(err, journal.ErrStrategyNameTaken) {
			h.writeError(w, http.StatusConflict, err.Error())
			return
		}
		if err != nil {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.writeJSON(w, http.StatusCreated, strategy)

	case http.MethodPut:
		strategyID, err := uintParam(r, "id")
		if err != nil {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		var input struct {
			Name        string `json:"name"`
			Description string `json:"description"`
		}
		if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		strategy, err := h.service.UpdateStrategy(ownerID, strategyID, input.Name, input.Description)
		switch {
		case errors.Is(err, journal.ErrNotFound):
			h.writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, journal.ErrStrategyNameTaken):
			h.writeError(w, http.StatusConflict, err.Error())
		case err != nil:
			h.log.Error("Failed to update strategy", zap.Error(err))
			h.writeError(w, http.StatusInternalServerError, "failed to update strategy")
		default:
			h.writeJSON(w, http.StatusOK, strategy)
		}

	case http.MethodDelete:
		strategyID, err := uintParam(r, "id")
		if err != nil {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		switch err := h.service.DeleteStrategy(ownerID, strategyID); {
		case errors.Is(err, journal.ErrNotFound):
			h.writeError(w, http.StatusNotFound, err.Error())
		case err != nil:
			h.log.Error("Failed to delete strategy", zap.Error(err))
			h.writeError(w, http.StatusInternalServerError, "failed to delete strategy")
		default:
			h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		}

	default:
		h.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// StatsHandler computes per-strategy statistics for the acting user, or,
// when student_id is present and the viewer is that student's coach, for
// the student. chart_data is null when no strategy is selected.
func (h *APIHandler) StatsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	viewerID, err := uintParam(r, "user_id")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ownerID := viewerID
	if studentID, err := optionalUintParam(r, "student_id"); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	} else if studentID != nil {
		if !h.service.CanViewStudent(viewerID, *studentID) {
			h.writeError(w, http.StatusForbidden, "not the coach of this student")
			return
		}
		ownerID = *studentID
	}

	strategyID, err := optionalUintParam(r, "strategy_id")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strategyID == nil {
		// No strategy selected: zeroed metrics, no chart.
		h.writeJSON(w, http.StatusOK, &stats.Result{})
		return
	}

	result, err := h.stats.StrategyStats(ownerID, *strategyID)
	if errors.Is(err, stats.ErrStrategyNotFound) {
		h.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		h.log.Error("Failed to compute statistics", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "failed to compute statistics")
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// CommentsHandler records a coach's comment on a student's trade.
func (h *APIHandler) CommentsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	coachID, err := uintParam(r, "user_id")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	tradeID, err := uintParam(r, "trade_id")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	content := r.FormValue("content")
	if content == "" {
		h.writeError(w, http.StatusBadRequest, "missing parameter content")
		return
	}

	comment, err := h.service.AddComment(coachID, tradeID, content)
	switch {
	case errors.Is(err, journal.ErrNotFound):
		h.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, journal.ErrNotAllowed):
		h.writeError(w, http.StatusForbidden, err.Error())
	case err != nil:
		h.log.Error("Failed to add comment", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "failed to add comment")
	default:
		h.writeJSON(w, http.StatusCreated, comment)
	}
}

// CoachRequestsHandler files a pairing request (POST) or answers one (PUT).
func (h *APIHandler) CoachRequestsHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := uintParam(r, "user_id")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	switch r.Method {
	case http.MethodPost:
		coachID, err := uintParam(r, "coach_id")
		if err != nil {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		req, err := h.service.RequestCoach(userID, coachID)
		switch {
		case errors.Is(err, journal.ErrNotFound),
			errors.Is(err, journal.ErrNotACoach),
			errors.Is(err, journal.ErrAlreadyCoached),
			errors.Is(err, journal.ErrRequestPending):
			h.writeError(w, http.StatusBadRequest, err.Error())
		case err != nil:
			h.log.Error("Failed to create coach request", zap.Error(err))
			h.writeError(w, http.StatusInternalServerError, "failed to create coach request")
		default:
			h.writeJSON(w, http.StatusCreated, req)
		}

	case http.MethodPut:
		requestID, err := uintParam(r, "request_id")
		if err != nil {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		accept := r.FormValue("accept") == "true"
		switch err := h.service.RespondCoachRequest(userID, requestID, accept); {
		case errors.Is(err, journal.ErrNotFound):
			h.writeError(w, http.StatusNotFound, err.Error())
		case err != nil:
			h.log.Error("Failed to respond to coach request", zap.Error(err))
			h.writeError(w, http.StatusInternalServerError, "failed to respond to coach request")
		default:
			h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		}

	default:
		h.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}
