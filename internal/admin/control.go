package admin

import (
	"fmt"
	"net/http"

	"robotops/internal/geometry"
	"robotops/internal/overlay"
	"robotops/internal/stream"
	"robotops/internal/teleop"
)

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	v, err := s.Mon.Feed(r.PathValue("id"), r.PathValue("viewer"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v.Session().Snapshot())
}

func (s *Server) handleFeedAction(w http.ResponseWriter, r *http.Request) {
	robotID, viewerID, action := r.PathValue("id"), r.PathValue("viewer"), r.PathValue("action")
	switch action {
	case "open":
		v, err := s.Mon.OpenFeed(r.Context(), robotID, viewerID)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, v.Session().Snapshot())
		return
	case "close":
		if err := s.Mon.CloseFeed(robotID, viewerID); err != nil {
			s.writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}

	v, err := s.Mon.Feed(robotID, viewerID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	sess := v.Session()
	switch action {
	case "pause":
		err = sess.Pause()
	case "resume":
		err = sess.Resume()
	case "retry":
		err = sess.Retry()
	default:
		err = fmt.Errorf("%w: unknown feed action %q", errBadRequest, action)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) handleFrame(w http.ResponseWriter, r *http.Request) {
	v, err := s.Mon.Feed(r.PathValue("id"), r.PathValue("viewer"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	q := r.URL.Query()
	width, err := parseFloat("width", q.Get("width"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	height, err := parseFloat("height", q.Get("height"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	vp := geometry.Viewport{Width: width, Height: height}
	if err := vp.Validate(); err != nil {
		s.writeError(w, r, err)
		return
	}
	boxes := overlay.Collect(v.Frame(r.Context(), vp))
	if boxes == nil {
		boxes = []overlay.Box{}
	}
	writeJSON(w, http.StatusOK, struct {
		State stream.State  `json:"state"`
		Boxes []overlay.Box `json:"boxes"`
	}{v.Session().State(), boxes})
}

type teleopStatus struct {
	RobotID    string           `json:"robot_id"`
	Controller string           `json:"controller,omitempty"`
	Active     teleop.Direction `json:"active,omitempty"`
}

func (s *Server) handleTeleopStatus(w http.ResponseWriter, r *http.Request) {
	robotID := r.PathValue("id")
	ch, err := s.Mon.Teleop(robotID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, teleopStatus{RobotID: robotID, Controller: s.Mon.Controller(robotID), Active: ch.Active()})
}

func (s *Server) handleTeleopRelease(w http.ResponseWriter, r *http.Request) {
	viewer := r.URL.Query().Get("viewer")
	if viewer == "" {
		s.writeError(w, r, fmt.Errorf("%w: viewer is required", errBadRequest))
		return
	}
	if err := s.Mon.ReleaseTeleop(r.PathValue("id"), viewer); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleTeleopAction acquires control for the requesting viewer, then applies
// press, release, home or patrol.
func (s *Server) handleTeleopAction(w http.ResponseWriter, r *http.Request) {
	robotID, action := r.PathValue("id"), r.PathValue("action")
	q := r.URL.Query()
	viewer := q.Get("viewer")
	if viewer == "" {
		s.writeError(w, r, fmt.Errorf("%w: viewer is required", errBadRequest))
		return
	}
	ch, err := s.Mon.AcquireTeleop(robotID, viewer)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	switch action {
	case "press":
		var d teleop.Direction
		if d, err = teleop.ParseDirection(q.Get("direction")); err == nil {
			err = ch.PressDirection(d)
		}
	case "release":
		err = ch.Release()
	case "home":
		err = ch.ReturnHome(r.Context())
	case "patrol":
		var enabled bool
		if enabled, err = parseBool(q.Get("enabled")); err == nil {
			err = ch.SetPatrol(r.Context(), enabled)
		}
	default:
		err = fmt.Errorf("%w: unknown teleop action %q", errBadRequest, action)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, teleopStatus{RobotID: robotID, Controller: viewer, Active: ch.Active()})
}
