package admin

import (
	"fmt"
	"net/http"
	"strconv"
)

func (s *Server) handleRobots(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Mon.Robots())
}

func (s *Server) handleRobot(w http.ResponseWriter, r *http.Request) {
	robot, err := s.Mon.GetRobot(r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, robot)
}

func (s *Server) handleFleetStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Mon.FleetStats())
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	includeDismissed, err := parseBool(q.Get("include_dismissed"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	list, err := s.Mon.ListAlerts(q.Get("type"), q.Get("severity"), includeDismissed)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleAlertStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Mon.AlertStats())
}

func (s *Server) handleAlert(w http.ResponseWriter, r *http.Request) {
	a, err := s.Mon.GetAlert(r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleDismiss(w http.ResponseWriter, r *http.Request) {
	if err := s.Mon.DismissAlert(r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// parseBool treats an empty value as false.
func parseBool(v string) (bool, error) {
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%w: %q is not a boolean", errBadRequest, v)
	}
	return b, nil
}

func parseFloat(name, v string) (float64, error) {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q", errBadRequest, name, v)
	}
	return f, nil
}
