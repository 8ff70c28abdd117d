// Package kujo serves switches over HTTP, and switch and train events over SSE.
package kujo

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/r3labs/sse/v2"
	"go.uber.org/zap"
	"nyiyui.ca/hato/kirikae/tal"
)

const (
	StreamSwitches = "switches"
	StreamTrains   = "trains"
)

type Server struct {
	b   *tal.Board
	sim *tal.Simulator
	s   *sse.Server
	mux *http.ServeMux
}

// NewServer serves b. sim may be nil, in which case the trains stream stays empty.
func NewServer(b *tal.Board, sim *tal.Simulator) *Server {
	s := &Server{
		b:   b,
		sim: sim,
		s:   sse.New(),
		mux: http.NewServeMux(),
	}
	s.s.AutoReplay = false
	s.s.CreateStream(StreamSwitches)
	s.s.CreateStream(StreamTrains)
	forward[tal.SwitchEvent](s.s, StreamSwitches, b.Events())
	if sim != nil {
		forward[tal.TrainEvent](s.s, StreamTrains, sim.Events())
	}
	s.mux.HandleFunc("/switches", s.handleSwitches)
	s.mux.HandleFunc("/switches/", s.handleSwitch)
	s.mux.Handle("/events", s.s)
	return s
}

type subscribable[E any] interface {
	Subscribe(comment string, c chan E)
	Unsubscribe(c chan E)
}

// forward subscribes to m before returning, so no event sent afterwards is missed.
func forward[E any](s *sse.Server, stream string, m subscribable[E]) {
	ch := make(chan E)
	m.Subscribe("kujo "+stream, ch)
	go func() {
		defer m.Unsubscribe(ch)
		for e := range ch {
			data, err := json.Marshal(e)
			if err != nil {
				zap.S().Errorw("marshal event", "stream", stream, "err", err)
				continue
			}
			s.TryPublish(stream, &sse.Event{
				Data: data,
			})
		}
	}()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) handleSwitches(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.b.List())
}

// handleSwitch serves /switches/{id}, /switches/{id}/cycle, and /switches/{id}/lock.
func (s *Server) handleSwitch(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/switches/"), "/")
	id, err := uuid.Parse(parts[0])
	if err != nil {
		http.Error(w, fmt.Sprintf("parse id: %s", err), http.StatusBadRequest)
		return
	}
	action := ""
	if len(parts) == 2 {
		action = parts[1]
	} else if len(parts) > 2 {
		http.NotFound(w, r)
		return
	}
	switch action {
	case "":
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		info, err := s.b.Info(id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, info)
	case "cycle":
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		trigger := tal.TriggerManual
		if raw := r.URL.Query().Get("trigger"); raw != "" {
			trigger, err = tal.ParseTrigger(raw)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
		}
		state, changed, err := s.b.RequestCycle(id, trigger)
		if err != nil {
			writeError(w, err)
			return
		}
		zap.S().Infow("cycle requested", "switch", id, "trigger", trigger, "state", state, "changed", changed)
		writeJSON(w, http.StatusOK, struct {
			State   tal.SwitchState `json:"state"`
			Changed bool            `json:"changed"`
		}{state, changed})
	case "lock":
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		locked, err := strconv.ParseBool(r.URL.Query().Get("locked"))
		if err != nil {
			http.Error(w, fmt.Sprintf("parse locked: %s", err), http.StatusBadRequest)
			return
		}
		if err := s.b.SetLocked(id, locked); err != nil {
			writeError(w, err)
			return
		}
		info, err := s.b.Info(id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, info)
	default:
		http.NotFound(w, r)
	}
}

func writeError(w http.ResponseWriter, err error) {
	var nea *tal.NoExitAvailableError
	var sre *tal.StaleReferenceError
	switch {
	case errors.Is(err, tal.ErrUnknownSwitch):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.As(err, &nea), errors.As(err, &sre):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		zap.S().Errorw("marshal response", "err", err)
		http.Error(w, "marshal response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}
