package rpc

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/hashgraph-online/flora-price-oracle/proof"
	"github.com/hashgraph-online/flora-price-oracle/shared/params"
)

// jsonError is the machine readable error body. Field names the proof
// field a rejection was raised for.
type jsonError struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
	Code  int    `json:"code"`
}

type acceptedResponse struct {
	Status string `json:"status"`
}

type historyResponse struct {
	Total  int                     `json:"total"`
	Offset int                     `json:"offset"`
	Limit  int                     `json:"limit"`
	Items  []*proof.ConsensusEntry `json:"items"`
}

type healthResponse struct {
	Status string `json:"status"`
}

func (s *Service) submitProof(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, params.FloraConfig().MaxBodyBytes))
	if err != nil {
		if _, tooLarge := err.(*http.MaxBytesError); tooLarge {
			writeError(w, http.StatusRequestEntityTooLarge, "request body exceeds the submission limit", "")
			return
		}
		writeError(w, http.StatusBadRequest, "could not read request body", "")
		return
	}
	if err := s.cfg.Intake.Submit(r.Context(), body); err != nil {
		field := ""
		if re, ok := err.(*proof.RejectError); ok {
			field = re.Field
		}
		writeError(w, http.StatusBadRequest, err.Error(), field)
		return
	}
	writeJSON(w, &acceptedResponse{Status: "accepted"})
}

func (s *Service) latestPrice(w http.ResponseWriter, _ *http.Request) {
	entry := s.cfg.Aggregator.LatestEntry()
	if entry == nil {
		writeError(w, http.StatusNotFound, "no consensus price yet", "")
		return
	}
	writeJSON(w, s.withPointer(entry))
}

func (s *Service) priceHistory(w http.ResponseWriter, r *http.Request) {
	cfg := params.FloraConfig()
	query := r.URL.Query()

	offset := 0
	if raw := query.Get("offset"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			writeError(w, http.StatusBadRequest, "offset must be a non-negative integer", "")
			return
		}
		offset = v
	}
	limit := cfg.HistoryDefaultLimit
	if raw := query.Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "limit must be an integer", "")
			return
		}
		limit = v
	}
	if limit < 1 {
		limit = 1
	}
	if limit > cfg.HistoryMaxLimit {
		limit = cfg.HistoryMaxLimit
	}

	total, items := s.cfg.Aggregator.HistoryPage(offset, limit)
	for i, e := range items {
		items[i] = s.withPointer(e)
	}
	writeJSON(w, &historyResponse{Total: total, Offset: offset, Limit: limit, Items: items})
}

func (s *Service) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, &healthResponse{Status: "ok"})
}

// withPointer fills the canonical log pointer on entries the tailer has not
// backfilled yet. Inputs are already caller-owned copies.
func (s *Service) withPointer(e *proof.ConsensusEntry) *proof.ConsensusEntry {
	if e.HCSMessage == "" {
		e.HCSMessage = "hcs://17/" + s.cfg.Bootstrap.StateTopicID()
	}
	return e
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Error("Could not encode response")
	}
}

func writeError(w http.ResponseWriter, code int, message, field string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(&jsonError{Error: message, Field: field, Code: code}); err != nil {
		log.WithError(err).Error("Could not encode error response")
	}
}
