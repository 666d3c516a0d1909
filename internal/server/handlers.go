package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/signalsfoundry/impact-simulator/core"
	"github.com/signalsfoundry/impact-simulator/internal/logging"
	"github.com/signalsfoundry/impact-simulator/internal/overlay"
	"github.com/signalsfoundry/impact-simulator/model"
)

const maxBodyBytes = 1 << 20

// impactorRequest names an impactor either by catalog ID or by its numbers.
type impactorRequest struct {
	AsteroidID       string  `json:"asteroidId,omitempty"`
	DiameterMeters   float64 `json:"diameterMeters,omitempty"`
	VelocityKmPerSec float64 `json:"velocityKmPerSec,omitempty"`
	DensityKgPerM3   float64 `json:"densityKgPerM3,omitempty"`
}

type impactRequest struct {
	impactorRequest
	Location *model.GeoCoordinate `json:"location,omitempty"`
}

type startRunRequest struct {
	impactorRequest
	Target *model.GeoCoordinate `json:"target"`
}

type asteroidView struct {
	model.NEORecord
	Profile model.ImpactorProfile `json:"profile"`
}

type asteroidPage struct {
	Page     int            `json:"page"`
	HasNext  bool           `json:"hasNext"`
	Fallback bool           `json:"fallback"`
	Total    int            `json:"total"`
	Objects  []asteroidView `json:"objects"`
}

type asteroidDetail struct {
	asteroidView
	Result       model.ImpactResult `json:"result"`
	Consequences model.Consequences `json:"consequences"`
}

type impactEstimate struct {
	Impactor     model.ImpactorProfile `json:"impactor"`
	Result       model.ImpactResult    `json:"result"`
	Consequences model.Consequences    `json:"consequences"`
	Region       string                `json:"region,omitempty"`
}

type currentRun struct {
	State  model.RunState       `json:"state"`
	Run    *model.SimulationRun `json:"run,omitempty"`
	Tick   *core.TickResult     `json:"tick,omitempty"`
	Report *model.ImpactReport  `json:"report,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, "ok\n")
}

func (s *Server) handleListAsteroids(w http.ResponseWriter, r *http.Request) {
	page, err := intQuery(r, "page", 0)
	if err != nil || page < 0 {
		writeError(w, r, fmt.Errorf("%w: page must be a non-negative integer", ErrBadRequest))
		return
	}

	out := asteroidPage{Page: page}
	if s.loader != nil {
		res := s.loader.Load(r.Context(), page)
		s.collector.CatalogLoaded(res.Fallback, res.Total)
		out.HasNext = res.HasNext
		out.Fallback = res.Fallback
	}
	records := s.catalog.ListObjects()
	out.Total = len(records)
	out.Objects = make([]asteroidView, 0, len(records))
	for _, rec := range records {
		out.Objects = append(out.Objects, asteroidView{NEORecord: rec, Profile: rec.Profile()})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetAsteroid(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	rec, ok := s.catalog.GetObject(id)
	if !ok {
		writeError(w, r, fmt.Errorf("%w: asteroid %q", ErrNotFound, id))
		return
	}
	profile := rec.Profile()
	result, err := s.ctrl.Compute(r.Context(), profile)
	if err != nil {
		recordSpanError(r, err)
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, asteroidDetail{
		asteroidView: asteroidView{NEORecord: rec, Profile: profile},
		Result:       result,
		Consequences: core.EstimateConsequences(profile, result, s.populationDensity),
	})
}

func (s *Server) handleImpact(w http.ResponseWriter, r *http.Request) {
	var req impactRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	profile, err := s.resolveImpactor(req.impactorRequest)
	if err != nil {
		writeError(w, r, err)
		return
	}
	result, err := s.ctrl.Compute(r.Context(), profile)
	if err != nil {
		recordSpanError(r, err)
		writeError(w, r, err)
		return
	}

	out := impactEstimate{
		Impactor:     profile,
		Result:       result,
		Consequences: core.EstimateConsequences(profile, result, s.populationDensity),
	}
	if req.Location != nil {
		if err := core.ValidateGeoCoordinate(*req.Location); err != nil {
			writeError(w, r, err)
			return
		}
		out.Region = core.DescribeRegion(*req.Location)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	var req startRunRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Target == nil {
		writeError(w, r, core.ErrNoTarget)
		return
	}
	profile, err := s.resolveImpactor(req.impactorRequest)
	if err != nil {
		writeError(w, r, err)
		return
	}

	run, err := s.runner.begin(r.Context(), profile, *req.Target, s.LaunchOffset())
	if err != nil {
		recordSpanError(r, err)
		s.requestLogger(r).Debug(r.Context(), "run start rejected", logging.Err(err))
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, run)
}

func (s *Server) handleCurrentRun(w http.ResponseWriter, _ *http.Request) {
	out := currentRun{State: model.RunIdle}
	if run, tick, ok := s.ctrl.Current(); ok {
		out.State = run.State
		out.Run = &run
		out.Tick = &tick
	}
	if report, ok := s.ctrl.Report(); ok {
		out.Report = &report
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAbortRun(w http.ResponseWriter, r *http.Request) {
	if err := s.runner.abort(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleResetRun(w http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.Reset(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := intQuery(r, "limit", 0)
	if err != nil || limit < 0 {
		writeError(w, r, fmt.Errorf("%w: limit must be a non-negative integer", ErrBadRequest))
		return
	}
	reports := []model.ImpactReport{}
	if s.history != nil {
		reports, err = s.history.History(r.Context(), limit)
		if err != nil {
			recordSpanError(r, err)
			s.requestLogger(r).Error(r.Context(), "load impact history failed", logging.Err(err))
			writeError(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, reports)
}

type historySummary struct {
	Total    int64                       `json:"total"`
	ByDanger map[model.DangerLevel]int64 `json:"byDanger"`
}

func (s *Server) handleHistorySummary(w http.ResponseWriter, r *http.Request) {
	summary := historySummary{ByDanger: map[model.DangerLevel]int64{}}
	if s.history != nil {
		counts, err := s.history.CountByDanger(r.Context())
		if err != nil {
			recordSpanError(r, err)
			s.requestLogger(r).Error(r.Context(), "count impact history failed", logging.Err(err))
			writeError(w, r, err)
			return
		}
		for level, n := range counts {
			summary.ByDanger[level] = n
			summary.Total += n
		}
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleZones(w http.ResponseWriter, r *http.Request) {
	var (
		center  model.GeoCoordinate
		profile model.ImpactorProfile
		err     error
	)
	for _, p := range []struct {
		name string
		dst  *float64
	}{
		{"lat", &center.Lat},
		{"lng", &center.Lng},
		{"diameter", &profile.DiameterMeters},
		{"velocity", &profile.VelocityKmPerSec},
	} {
		if *p.dst, err = floatQuery(r, p.name); err != nil {
			writeError(w, r, err)
			return
		}
	}
	segments, err := intQuery(r, "segments", s.segments)
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: segments must be an integer", ErrBadRequest))
		return
	}

	result, err := s.ctrl.Compute(r.Context(), profile)
	if err != nil {
		writeError(w, r, err)
		return
	}
	fc, err := overlay.DamageZones(center, result, segments)
	if err != nil {
		writeError(w, r, err)
		return
	}
	body, err := json.Marshal(fc)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	_, _ = w.Write(body)
}

// resolveImpactor looks the asteroid up in the catalog when an ID is given
// and otherwise builds the profile from the request numbers.
func (s *Server) resolveImpactor(req impactorRequest) (model.ImpactorProfile, error) {
	if req.AsteroidID != "" {
		rec, ok := s.catalog.GetObject(req.AsteroidID)
		if !ok {
			return model.ImpactorProfile{}, fmt.Errorf("%w: asteroid %q", ErrNotFound, req.AsteroidID)
		}
		return rec.Profile(), nil
	}
	p := model.ImpactorProfile{
		Name:             "custom",
		DiameterMeters:   req.DiameterMeters,
		VelocityKmPerSec: req.VelocityKmPerSec,
		DensityKgPerM3:   req.DensityKgPerM3,
	}
	if err := core.ValidateImpactor(p); err != nil {
		return model.ImpactorProfile{}, err
	}
	return p, nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	return nil
}

func intQuery(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

func floatQuery(r *http.Request, name string) (float64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, fmt.Errorf("%w: missing %s", ErrBadRequest, name)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrBadRequest, name, err)
	}
	return v, nil
}
