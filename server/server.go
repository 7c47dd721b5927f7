// Package server contains the HTTP plumbing shared by device wrappers:
// a method-aware route table and the typed JSON payloads used for simple
// get/set endpoints.
package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi"
)

// MethodPath is one HTTP route: a method and a URL path.
type MethodPath struct {
	Method string
	Path   string
}

// RouteTable maps routes to their handlers.
type RouteTable map[MethodPath]http.HandlerFunc

// ListEndpoints lists the routes in a RouteTable (the keys).
func (rt RouteTable) ListEndpoints() []MethodPath {
	routes := make([]MethodPath, 0, len(rt))
	for k := range rt {
		routes = append(routes, k)
	}
	return routes
}

// Bind attaches every route in the table to a chi router, plus an
// endpoint listing the routes themselves.
func (rt RouteTable) Bind(r chi.Router) {
	for mp, handler := range rt {
		r.MethodFunc(mp.Method, mp.Path, handler)
	}
	r.Get("/endpoints", func(w http.ResponseWriter, req *http.Request) {
		type route struct {
			Method string `json:"method"`
			Path   string `json:"path"`
		}
		list := make([]route, 0, len(rt))
		for mp := range rt {
			list = append(list, route{Method: mp.Method, Path: mp.Path})
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(list); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
}

// FloatT is a float wrapped in a JSON object, {"f64": value}
type FloatT struct {
	F64 float64 `json:"f64"`
}

// IntT is an int wrapped in a JSON object, {"int": value}
type IntT struct {
	Int int `json:"int"`
}

// BoolT is a bool wrapped in a JSON object, {"bool": value}
type BoolT struct {
	Bool bool `json:"bool"`
}

// StrT is a string wrapped in a JSON object, {"str": value}
type StrT struct {
	Str string `json:"str"`
}

// GetFloat calls a float-getting function and returns the response as
// json {"f64": value}
func GetFloat(fcn func() (float64, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, err := fcn()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(FloatT{F64: f})
	}
}

// SetFloat parses a JSON input of {"f64": value} and calls fcn with it
func SetFloat(fcn func(float64) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f := FloatT{}
		err := json.NewDecoder(r.Body).Decode(&f)
		defer r.Body.Close()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := fcn(f.F64); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

// GetBool calls a bool-getting function and returns the response as
// json {"bool": value}
func GetBool(fcn func() (bool, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b, err := fcn()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(BoolT{Bool: b})
	}
}

// SetString parses a JSON input of {"str": value} and calls fcn with it
func SetString(fcn func(string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s := StrT{}
		err := json.NewDecoder(r.Body).Decode(&s)
		defer r.Body.Close()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := fcn(s.Str); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

// Trigger calls an argument-less function, e.g. a device action
func Trigger(fcn func() error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := fcn(); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}
