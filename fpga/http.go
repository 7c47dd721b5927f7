package fpga

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi"

	"github.com/atomoptics/fpgaclock/dac"
	"github.com/atomoptics/fpgaclock/server"
	"github.com/atomoptics/fpgaclock/shot"
)

// HTTPWrapper exposes a Worker over HTTP.
type HTTPWrapper struct {
	// W is the underlying worker
	W *Worker

	// RouteTable maps URLs to functions
	RouteTable server.RouteTable
}

// NewHTTPWrapper returns a new HTTP wrapper around an existing worker.
func NewHTTPWrapper(w *Worker) HTTPWrapper {
	h := HTTPWrapper{W: w}
	rt := server.RouteTable{
		server.MethodPath{Method: http.MethodGet, Path: "/output/{conn}/value"}:      h.GetValue,
		server.MethodPath{Method: http.MethodPost, Path: "/output/{conn}/value"}:     h.SetValue,
		server.MethodPath{Method: http.MethodPost, Path: "/output/{conn}/range"}:     h.SetRange,
		server.MethodPath{Method: http.MethodPost, Path: "/output/{conn}/parameter"}: h.SetParameter,
		server.MethodPath{Method: http.MethodPost, Path: "/manual"}:                  h.ProgramManual,
		server.MethodPath{Method: http.MethodPost, Path: "/program"}:                 h.Program,
		server.MethodPath{Method: http.MethodPost, Path: "/trigger"}:                 server.Trigger(w.Start),
		server.MethodPath{Method: http.MethodPost, Path: "/manual-mode"}:             h.ManualMode,
		server.MethodPath{Method: http.MethodPost, Path: "/abort"}:                   server.Trigger(w.Abort),
		server.MethodPath{Method: http.MethodPost, Path: "/reset"}:                   server.Trigger(w.Reset),
		server.MethodPath{Method: http.MethodGet, Path: "/busy"}: server.GetBool(func() (bool, error) {
			return w.Busy(), nil
		}),
	}
	h.RouteTable = rt
	return h
}

// RT satisfies the route table convention used by device servers.
func (h HTTPWrapper) RT() server.RouteTable {
	return h.RouteTable
}

// GetValue returns a channel's last known manual-mode value as {"f64": v}.
func (h HTTPWrapper) GetValue(w http.ResponseWriter, r *http.Request) {
	conn := chi.URLParam(r, "conn")
	v, ok := h.W.LastValue(conn)
	if !ok {
		http.Error(w, fmt.Sprintf("no known value for %s", conn), http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(server.FloatT{F64: v})
}

// SetValue programs one channel from a {"f64": v} body and returns the
// coerced value actually sent, which may differ from the request.
func (h HTTPWrapper) SetValue(w http.ResponseWriter, r *http.Request) {
	conn := chi.URLParam(r, "conn")
	f := server.FloatT{}
	err := json.NewDecoder(r.Body).Decode(&f)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	modified, err := h.W.ProgramManual(map[string]float64{conn: f.F64})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	actual, ok := modified[conn]
	if !ok {
		// value matched the cache; echo what the board already holds
		actual, _ = h.W.LastValue(conn)
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(server.FloatT{F64: actual})
}

// SetRange selects a channel's DAC span from a {"str": "min,max"} body.
func (h HTTPWrapper) SetRange(w http.ResponseWriter, r *http.Request) {
	conn := chi.URLParam(r, "conn")
	s := server.StrT{}
	err := json.NewDecoder(r.Body).Decode(&s)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	rng, err := dac.Parse(s.Str)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.W.SetOutputRange(conn, rng); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// SetParameter writes a firmware parameter byte to one channel from an
// {"int": v} body.
func (h HTTPWrapper) SetParameter(w http.ResponseWriter, r *http.Request) {
	conn := chi.URLParam(r, "conn")
	i := server.IntT{}
	err := json.NewDecoder(r.Body).Decode(&i)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if i.Int < 0 || i.Int > 255 {
		http.Error(w, fmt.Sprintf("parameter %d out of range [0,255]", i.Int), http.StatusBadRequest)
		return
	}
	if err := h.W.SetParameter(conn, uint8(i.Int)); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// ProgramManual programs several channels at once from a {"token": value}
// body and returns the coerced values of those actually sent.
func (h HTTPWrapper) ProgramManual(w http.ResponseWriter, r *http.Request) {
	values := map[string]float64{}
	err := json.NewDecoder(r.Body).Decode(&values)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	modified, err := h.W.ProgramManual(values)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(modified)
}

// Program loads a shot document and programs the board for buffered
// execution.  The body names the file, the device section, and whether to
// bypass the smart cache.  The response maps each channel to its value at
// the end of the shot.
func (h HTTPWrapper) Program(w http.ResponseWriter, r *http.Request) {
	type msg struct {
		Path   string `json:"path"`
		Device string `json:"device"`
		Fresh  bool   `json:"fresh"`
	}
	var input msg
	err := json.NewDecoder(r.Body).Decode(&input)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	doc, err := shot.Load(input.Path)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	dev, err := doc.Device(input.Device)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	finals, err := h.W.TransitionToBuffered(dev, input.Fresh)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(finals)
}

// ManualMode returns the board to manual mode after a shot and reports the
// final front-panel values.
func (h HTTPWrapper) ManualMode(w http.ResponseWriter, r *http.Request) {
	finals, err := h.W.TransitionToManual()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(finals)
}
