package http

import (
	"net/http"
	"strconv"

	"github.com/couchcryptid/flood-risk-service/internal/domain"
	"github.com/go-chi/chi/v5"
)

func (s *Server) handleRiskAt(w http.ResponseWriter, r *http.Request) {
	lat, err := floatQuery(r, "lat")
	if err != nil {
		writeError(w, s.logger, r, err)
		return
	}
	lon, err := floatQuery(r, "lon")
	if err != nil {
		writeError(w, s.logger, r, err)
		return
	}

	report, err := s.api.GetRiskAt(r.Context(), lat, lon)
	if err != nil {
		writeError(w, s.logger, r, err)
		return
	}
	writeData(w, http.StatusOK, report)
}

func (s *Server) handleFamilyRisk(w http.ResponseWriter, r *http.Request) {
	snapshots, err := s.api.GetFamilyRisk(r.Context(), chi.URLParam(r, "subjectID"))
	if err != nil {
		writeError(w, s.logger, r, err)
		return
	}
	writeData(w, http.StatusOK, snapshots)
}

func (s *Server) handleListMembers(w http.ResponseWriter, r *http.Request) {
	members, err := s.api.ListMembers(r.Context(), chi.URLParam(r, "subjectID"))
	if err != nil {
		writeError(w, s.logger, r, err)
		return
	}
	writeData(w, http.StatusOK, members)
}

func (s *Server) handleAddMember(w http.ResponseWriter, r *http.Request) {
	var member domain.FamilyMember
	if err := decodeJSON(w, r, &member); err != nil {
		writeError(w, s.logger, r, err)
		return
	}
	added, err := s.api.AddMember(r.Context(), chi.URLParam(r, "subjectID"), member)
	if err != nil {
		writeError(w, s.logger, r, err)
		return
	}
	writeData(w, http.StatusCreated, added)
}

func (s *Server) handleUpdateMember(w http.ResponseWriter, r *http.Request) {
	var patch domain.MemberPatch
	if err := decodeJSON(w, r, &patch); err != nil {
		writeError(w, s.logger, r, err)
		return
	}
	updated, err := s.api.UpdateMember(r.Context(), chi.URLParam(r, "subjectID"), chi.URLParam(r, "memberID"), patch)
	if err != nil {
		writeError(w, s.logger, r, err)
		return
	}
	writeData(w, http.StatusOK, updated)
}

func (s *Server) handleRemoveMember(w http.ResponseWriter, r *http.Request) {
	if err := s.api.RemoveMember(r.Context(), chi.URLParam(r, "subjectID"), chi.URLParam(r, "memberID")); err != nil {
		writeError(w, s.logger, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := s.api.GetAlerts(r.Context(), chi.URLParam(r, "subjectID"))
	if err != nil {
		writeError(w, s.logger, r, err)
		return
	}
	writeData(w, http.StatusOK, alerts)
}

func (s *Server) handleDispatchAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := s.api.DispatchAlerts(r.Context(), chi.URLParam(r, "subjectID"))
	if err != nil {
		writeError(w, s.logger, r, err)
		return
	}
	writeData(w, http.StatusAccepted, alerts)
}

func (s *Server) handleRecordLocation(w http.ResponseWriter, r *http.Request) {
	var update domain.LocationUpdate
	if err := decodeJSON(w, r, &update); err != nil {
		writeError(w, s.logger, r, err)
		return
	}
	rec, err := s.api.RecordLocation(r.Context(), update)
	if err != nil {
		writeError(w, s.logger, r, err)
		return
	}
	writeData(w, http.StatusCreated, rec)
}

func (s *Server) handleLatestLocation(w http.ResponseWriter, r *http.Request) {
	rec, err := s.api.LatestLocation(r.Context(), chi.URLParam(r, "memberID"))
	if err != nil {
		writeError(w, s.logger, r, err)
		return
	}
	writeData(w, http.StatusOK, rec)
}

func (s *Server) handleLocationHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := limitQuery(r)
	if err != nil {
		writeError(w, s.logger, r, err)
		return
	}
	recs, err := s.api.LocationHistory(r.Context(), chi.URLParam(r, "memberID"), limit)
	if err != nil {
		writeError(w, s.logger, r, err)
		return
	}
	writeData(w, http.StatusOK, recs)
}

func (s *Server) handleGetPreferences(w http.ResponseWriter, r *http.Request) {
	pref, err := s.api.GetTrackingPreferences(r.Context(), chi.URLParam(r, "subjectID"))
	if err != nil {
		writeError(w, s.logger, r, err)
		return
	}
	writeData(w, http.StatusOK, pref)
}

func (s *Server) handleSetPreferences(w http.ResponseWriter, r *http.Request) {
	var patch domain.PreferencePatch
	if err := decodeJSON(w, r, &patch); err != nil {
		writeError(w, s.logger, r, err)
		return
	}
	pref, err := s.api.SetTrackingPreferences(r.Context(), chi.URLParam(r, "subjectID"), patch)
	if err != nil {
		writeError(w, s.logger, r, err)
		return
	}
	writeData(w, http.StatusOK, pref)
}

func (s *Server) handleSOS(w http.ResponseWriter, r *http.Request) {
	var req domain.SOSRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, s.logger, r, err)
		return
	}
	alert, err := s.api.TriggerSOS(r.Context(), req)
	if err != nil {
		writeError(w, s.logger, r, err)
		return
	}
	writeData(w, http.StatusCreated, alert)
}

func (s *Server) handleRecentSOS(w http.ResponseWriter, r *http.Request) {
	limit, err := limitQuery(r)
	if err != nil {
		writeError(w, s.logger, r, err)
		return
	}
	alerts, err := s.api.RecentSOS(r.Context(), chi.URLParam(r, "subjectID"), limit)
	if err != nil {
		writeError(w, s.logger, r, err)
		return
	}
	writeData(w, http.StatusOK, alerts)
}

func (s *Server) handleMarkSafe(w http.ResponseWriter, r *http.Request) {
	var req domain.CheckInRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, s.logger, r, err)
		return
	}
	checkIn, err := s.api.MarkSafe(r.Context(), req)
	if err != nil {
		writeError(w, s.logger, r, err)
		return
	}
	writeData(w, http.StatusCreated, checkIn)
}

func (s *Server) handleRecentCheckIns(w http.ResponseWriter, r *http.Request) {
	limit, err := limitQuery(r)
	if err != nil {
		writeError(w, s.logger, r, err)
		return
	}
	checkIns, err := s.api.RecentCheckIns(r.Context(), chi.URLParam(r, "subjectID"), limit)
	if err != nil {
		writeError(w, s.logger, r, err)
		return
	}
	writeData(w, http.StatusOK, checkIns)
}

// limitQuery parses the optional limit parameter; zero means the default.
func limitQuery(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, domain.NewError(domain.CodeValidation, "limit must be an integer", err)
	}
	return n, nil
}

// floatQuery parses a required float query parameter.
func floatQuery(r *http.Request, name string) (float64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, domain.NewError(domain.CodeValidation, name+" is required", nil)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, domain.NewError(domain.CodeValidation, name+" must be a number", err)
	}
	return v, nil
}
