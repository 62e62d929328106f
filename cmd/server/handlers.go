package main

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"quoteengine/internal/engine"
)

// resolver is the slice of the engine the handlers need. Tests swap in a fake.
type resolver interface {
	GetQuote(ctx context.Context, symbol string) engine.QuoteSettled
	GetHistory(ctx context.Context, symbol, rng, interval string) []engine.PricePointSettled
	GetHistoryBatch(ctx context.Context, items []engine.BatchItem, rng, interval string) map[string][]engine.PricePointSettled
}

const maxBatchItems = 200

type historyResponse struct {
	Symbol  string                     `json:"symbol"`
	Range   string                     `json:"range"`
	History []engine.PricePointSettled `json:"history"`
}

type batchRequest struct {
	Items    []engine.BatchItem `json:"items"`
	Range    string             `json:"range"`
	Interval string             `json:"interval"`
}

type batchResponse struct {
	Series map[string][]engine.PricePointSettled `json:"series"`
}

func handleQuote(w http.ResponseWriter, r *http.Request, eng resolver) {
	sym := strings.TrimSpace(r.URL.Query().Get("symbol"))
	if sym == "" {
		http.Error(w, "missing symbol query param", http.StatusBadRequest)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()
	writeJSON(w, eng.GetQuote(ctx, sym))
}

func handleHistory(w http.ResponseWriter, r *http.Request, eng resolver) {
	q := r.URL.Query()
	sym := strings.TrimSpace(q.Get("symbol"))
	if sym == "" {
		http.Error(w, "missing symbol query param", http.StatusBadRequest)
		return
	}
	rng := q.Get("range")
	if rng == "" {
		rng = "1y"
	}
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()
	series := eng.GetHistory(ctx, sym, rng, q.Get("interval"))
	writeJSON(w, historyResponse{Symbol: sym, Range: rng, History: series})
}

func handleHistoryBatch(w http.ResponseWriter, r *http.Request, eng resolver) {
	var req batchRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if len(req.Items) == 0 {
		http.Error(w, "items cannot be empty", http.StatusBadRequest)
		return
	}
	if len(req.Items) > maxBatchItems {
		http.Error(w, "too many items (max 200)", http.StatusBadRequest)
		return
	}
	if req.Range == "" {
		req.Range = "1y"
	}
	ctx, cancel := context.WithTimeout(r.Context(), 60*time.Second)
	defer cancel()
	series := eng.GetHistoryBatch(ctx, req.Items, req.Range, req.Interval)
	writeJSON(w, batchResponse{Series: series})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.WriteHeader(http.StatusOK)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
