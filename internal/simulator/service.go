package simulator

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/atmx/margin-engine/internal/coverage"
	"github.com/atmx/margin-engine/internal/model"
	"github.com/atmx/margin-engine/internal/risk"
	"github.com/atmx/margin-engine/internal/scenario"
	"github.com/atmx/margin-engine/internal/store"
)

// Service exposes the engine over HTTP.
type Service struct {
	engine *Engine
	store  store.CoverageStore
	hub    *WSHub // optional
	log    zerolog.Logger
}

// NewService creates the HTTP service. Pass nil for hub if WebSocket
// broadcasting is not needed.
func NewService(engine *Engine, st store.CoverageStore, hub *WSHub, log zerolog.Logger) *Service {
	return &Service{
		engine: engine,
		store:  st,
		hub:    hub,
		log:    log.With().Str("component", "simulator").Logger(),
	}
}

// Mount registers the API routes on r.
func (s *Service) Mount(r chi.Router) {
	r.Post("/margin", s.ComputeMargin)
	r.Post("/scenarios", s.RunScenarios)
	r.Post("/risk", s.ClassifyRisk)
	r.Post("/confidence", s.ConfidenceBand)

	r.Get("/commodities", s.ListCommodities)
	r.Get("/commodities/{code}", s.GetCommodity)

	r.Post("/evaluate", s.Evaluate)
	r.Post("/evaluate/export", s.ExportEvaluation)

	if s.hub != nil {
		r.Get("/ws", s.hub.HandleWS)
	}
}

// --- Request/Response types ---

// MarginResponse is the single-scenario breakdown plus a display margin
// that is zero when the margin is undefined.
type MarginResponse struct {
	model.ScenarioResult
	DisplayMarginPct decimal.Decimal `json:"display_margin_pct"`
}

// ScenariosRequest is the JSON body for POST /scenarios.
type ScenariosRequest struct {
	ImportValue decimal.Decimal `json:"import_value"`
	Revenue     decimal.Decimal `json:"revenue"`
	Steps       int             `json:"steps,omitempty"`
}

type ScenariosResponse struct {
	Steps int             `json:"steps"`
	Rows  []model.GridRow `json:"rows"`
}

// RiskRequest is the JSON body for POST /risk. A null or missing margin is
// undefined; an unrecognised coverage class is treated as unknown.
type RiskRequest struct {
	MarginPct     decimal.NullDecimal `json:"margin_pct"`
	CoverageClass coverage.Class      `json:"coverage_class"`
}

type RiskResponse struct {
	MarginPct     decimal.NullDecimal `json:"margin_pct"`
	CoverageClass coverage.Class      `json:"coverage_class"`
	BaseRisk      risk.Tier           `json:"base_risk"`
	AdjustedRisk  risk.Tier           `json:"adjusted_risk"`
	Escalated     bool                `json:"escalated"`
}

// ConfidenceRequest is the JSON body for POST /confidence.
type ConfidenceRequest struct {
	Profit        decimal.Decimal `json:"profit"`
	CoverageClass coverage.Class  `json:"coverage_class"`
}

type ConfidenceResponse struct {
	CoverageClass coverage.Class  `json:"coverage_class"`
	Multiplier    decimal.Decimal `json:"multiplier"`
	Lower         decimal.Decimal `json:"lower"`
	Upper         decimal.Decimal `json:"upper"`
}

// CommodityInfo is a coverage record plus whether it came from the lookup
// or the no-coverage default.
type CommodityInfo struct {
	coverage.Record
	Found bool `json:"found"`
}

// --- HTTP Handlers ---

// ComputeMargin handles POST /api/v1/margin
func (s *Service) ComputeMargin(w http.ResponseWriter, r *http.Request) {
	var in model.ScenarioInput
	if !decodeJSON(w, r, &in) {
		return
	}
	if err := validateInput(in); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	res := s.engine.Compute(in)
	writeJSON(w, http.StatusOK, MarginResponse{ScenarioResult: res, DisplayMarginPct: res.DisplayMarginPct()})
}

// RunScenarios handles POST /api/v1/scenarios
func (s *Service) RunScenarios(w http.ResponseWriter, r *http.Request) {
	var req ScenariosRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ImportValue.IsNegative() {
		writeError(w, "import_value must not be negative", http.StatusBadRequest)
		return
	}

	rows, err := s.engine.Grid(r.Context(), req.ImportValue, req.Revenue, req.Steps)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ScenariosResponse{Steps: s.engine.GridConfig(req.Steps).Steps, Rows: rows})
}

// ClassifyRisk handles POST /api/v1/risk
func (s *Service) ClassifyRisk(w http.ResponseWriter, r *http.Request) {
	var req RiskRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if req.MarginPct.Valid {
		if err := checkAmount("margin_pct", req.MarginPct.Decimal); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	base, adjusted := s.engine.Risk(req.MarginPct, req.CoverageClass)
	writeJSON(w, http.StatusOK, RiskResponse{
		MarginPct:     req.MarginPct,
		CoverageClass: req.CoverageClass,
		BaseRisk:      base,
		AdjustedRisk:  adjusted,
		Escalated:     risk.Escalated(base, adjusted),
	})
}

// ConfidenceBand handles POST /api/v1/confidence
func (s *Service) ConfidenceBand(w http.ResponseWriter, r *http.Request) {
	var req ConfidenceRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := checkAmount("profit", req.Profit); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	mult, lower, upper := s.engine.Band(req.Profit, req.CoverageClass)
	writeJSON(w, http.StatusOK, ConfidenceResponse{
		CoverageClass: req.CoverageClass,
		Multiplier:    mult,
		Lower:         lower,
		Upper:         upper,
	})
}

// ListCommodities handles GET /api/v1/commodities
func (s *Service) ListCommodities(w http.ResponseWriter, r *http.Request) {
	records, err := s.store.ListCoverage(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("list coverage failed")
		writeError(w, "failed to list commodities", http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []coverage.Record{}
	}
	writeJSON(w, http.StatusOK, records)
}

// GetCommodity handles GET /api/v1/commodities/{code}
// Unknown commodities return the no-coverage default with found=false.
func (s *Service) GetCommodity(w http.ResponseWriter, r *http.Request) {
	code, err := coverage.ParseCommodity(chi.URLParam(r, "code"))
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	rec, err := s.store.GetCoverage(r.Context(), code)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, CommodityInfo{Record: *rec, Found: true})
	case errors.Is(err, store.ErrNotFound):
		writeJSON(w, http.StatusOK, CommodityInfo{Record: coverage.Default(code)})
	default:
		s.log.Error().Err(err).Int("commodity", code).Msg("get coverage failed")
		writeError(w, "failed to load commodity", http.StatusInternalServerError)
	}
}

// Evaluate handles POST /api/v1/evaluate
func (s *Service) Evaluate(w http.ResponseWriter, r *http.Request) {
	ev, ok := s.evaluate(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

// ExportEvaluation handles POST /api/v1/evaluate/export
// Returns the banded scenario grid as a CSV download.
func (s *Service) ExportEvaluation(w http.ResponseWriter, r *http.Request) {
	ev, ok := s.evaluate(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="`+ExportFilename(ev.Commodity.Commodity)+`"`)
	if err := WriteGridCSV(w, ev.Grid); err != nil {
		s.log.Error().Err(err).Str("id", ev.ID).Msg("write export failed")
	}
}

func (s *Service) evaluate(w http.ResponseWriter, r *http.Request) (*Evaluation, bool) {
	var req Request
	if !decodeJSON(w, r, &req) {
		return nil, false
	}

	ev, err := s.engine.Evaluate(r.Context(), req)
	if err != nil {
		s.writeEngineError(w, err)
		return nil, false
	}

	s.log.Info().
		Str("id", ev.ID).
		Int("commodity", req.Commodity).
		Str("coverage", ev.Commodity.Class.String()).
		Str("profit", ev.Result.Profit.String()).
		Str("risk", ev.AdjustedRisk.String()).
		Bool("escalated", ev.Escalated).
		Msg("evaluation completed")

	if s.hub != nil {
		s.hub.Broadcast(evaluationEvent(ev))
	}
	return ev, true
}

func (s *Service) writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, scenario.ErrInvalidSteps),
		errors.Is(err, scenario.ErrTooManySteps):
		writeError(w, err.Error(), http.StatusBadRequest)
	default:
		s.log.Error().Err(err).Msg("evaluation failed")
		writeError(w, "internal error", http.StatusInternalServerError)
	}
}

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 64 << 10

// decodeJSON decodes the request body into v, writing a 400 (or 413 for an
// oversized body) and returning false on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
	if err == nil {
		return true
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeError(w, "request body too large", http.StatusRequestEntityTooLarge)
		return false
	}
	writeError(w, "invalid request body", http.StatusBadRequest)
	return false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
