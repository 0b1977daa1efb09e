// Package dhtapi serves the DHT key-value HTTP contract over a kvstore.Store:
//
//	POST /api/v1/put/                   body {"key": "...", "value": "..."}
//	GET  /api/v1/getMany/?prefix=<p>    -> [{"key": "...", "value": "..."}, ...]
//	GET  /metrics                       prometheus exposition
//
// Paths are accepted with and without the trailing slash.
package dhtapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/danmuck/dht_transport/src/kvstore"
	logs "github.com/danmuck/smplog"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	PutPath     = "/api/v1/put/"
	GetManyPath = "/api/v1/getMany/"

	maxBodyBytes = 1 << 20
)

// NewHandler routes the DHT API onto store.
func NewHandler(store kvstore.Store) http.Handler {
	mux := http.NewServeMux()
	for _, method := range []string{http.MethodPost, http.MethodPut} {
		mux.HandleFunc(method+" "+PutPath+"{$}", handlePut(store))
		mux.HandleFunc(method+" "+PutPath[:len(PutPath)-1], handlePut(store))
	}
	mux.HandleFunc("GET "+GetManyPath+"{$}", handleGetMany(store))
	mux.HandleFunc("GET "+GetManyPath[:len(GetManyPath)-1], handleGetMany(store))
	mux.Handle("GET "+MetricsPath, promhttp.Handler())
	return instrument(mux)
}

// NewServer wraps NewHandler in an http.Server with bounded timeouts.
func NewServer(addr string, store kvstore.Store) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           NewHandler(store),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
	}
}

func handlePut(store kvstore.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		dec.DisallowUnknownFields()

		var item kvstore.Item
		if err := dec.Decode(&item); err != nil {
			http.Error(w, fmt.Sprintf("invalid body: %v", err), http.StatusBadRequest)
			return
		}
		if item.Key == "" {
			http.Error(w, "missing key", http.StatusBadRequest)
			return
		}

		err := store.Put(r.Context(), item.Key, item.Value)
		switch {
		case errors.Is(err, kvstore.ErrKeyExists):
			putsRejected.Inc()
			http.Error(w, fmt.Sprintf("already exists: %s", item.Key), http.StatusForbidden)
			return
		case err != nil:
			logs.Warnf("put %q failed: %v", item.Key, err)
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}
}

func handleGetMany(store kvstore.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		if !query.Has("prefix") {
			http.Error(w, "missing prefix", http.StatusBadRequest)
			return
		}
		prefix := query.Get("prefix")

		items, err := store.GetMany(r.Context(), prefix)
		if err != nil {
			logs.Warnf("getMany %q failed: %v", prefix, err)
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if items == nil {
			items = []kvstore.Item{}
		}
		getManyItems.Observe(float64(len(items)))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(items)
	}
}
