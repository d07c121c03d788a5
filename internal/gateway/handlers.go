package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/oklog/ulid/v2"

	"github.com/openafpm/cadstream/internal/build"
	"github.com/openafpm/cadstream/internal/cache"
)

// assemblies is the bounded enumeration {assembly} must belong to — the
// two assemblies the openafpm CAD tool ships.
var assemblies = map[string]bool{
	"low-speed-wind-turbine":  true,
	"high-speed-wind-turbine": true,
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	key, active := s.cache.CurrentKey()
	resp := HealthResponse{Status: "ok", BuildActive: active}
	if active {
		resp.BuildKey = key
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleVisualize(w http.ResponseWriter, r *http.Request) {
	assembly := r.PathValue("assembly")
	s.stream(w, r, "visualize", assembly, build.Visualize)
}

func (s *Server) handleCNCOverview(w http.ResponseWriter, r *http.Request) {
	s.stream(w, r, "cncOverview", "", build.CNCOverview)
}

func (s *Server) handleDimensionTables(w http.ResponseWriter, r *http.Request) {
	s.stream(w, r, "dimensionTables", "", build.DimensionTables)
}

// stream is the shared observer lifecycle for all three endpoints: parse
// and canonicalize, submit with a progress listener that feeds a bounded
// queue, and drain the queue on runStream's single writer goroutine until
// a terminal outcome arrives or the client disconnects. op identifies which
// of the three endpoints this is, so two different operations (or the same
// operation against two different assemblies) never share a cache entry.
func (s *Server) stream(w http.ResponseWriter, r *http.Request, op, assembly string, makeWorker func(build.Params) cache.Worker) {
	if assembly != "" && !assemblies[assembly] {
		writeError(w, http.StatusBadRequest, "unknown assembly "+assembly)
		return
	}

	params, err := ParseParams(r.URL.Query(), s.cfg.AllowedGroups)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	obsID := ulid.Make().String()
	fp := Fingerprint(op, assembly, params)
	worker := makeWorker(build.Params{
		Assembly: assembly,
		Magnafpm: params["magnafpm"],
		Furling:  params["furling"],
		User:     params["user"],
	})

	q := newProgressQueue(s.cfg.ProgressQueueCapacity)
	reqDone := r.Context().Done()

	writeSSEHeaders(w, flusher)

	outcome := make(chan streamOutcome, 1)
	go func() {
		result, err := s.cache.Submit(fp, worker, func(message string, percent int) {
			select {
			case <-reqDone:
				// Dropping the subscription via the broadcaster's own
				// listener-isolation contract: a panicking listener is
				// evicted without affecting other observers or the worker.
				panic("observer disconnected")
			default:
			}
			q.push(progressEvent{message: message, percent: percent})
		})
		outcome <- streamOutcome{result: result, err: err}
	}()

	s.logger.Printf("observer %s streaming op=%s assembly=%q key=%x", obsID, op, assembly, fp)
	runStream(w, flusher, obsID, q, outcome, reqDone, s.cfg.PingInterval())
	s.logger.Printf("observer %s done", obsID)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}
