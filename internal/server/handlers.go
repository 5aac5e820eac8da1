package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/Harshalzarikar/Beaver-agent/internal/pipeline"
	"github.com/Harshalzarikar/Beaver-agent/internal/requestctx"
)

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError emits the typed error envelope. trace_id lets the caller
// correlate with logs; the message never carries raw email content.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, map[string]string{
		"error":    code,
		"message":  message,
		"trace_id": requestctx.TraceID(r.Context()),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(s.startTime).String(),
	})
}

type processEmailRequest struct {
	RawText       string `json:"raw_text"`
	SenderAddress string `json:"sender_address"`
}

func (s *Server) handleProcessEmail(w http.ResponseWriter, r *http.Request) {
	ctx := requestctx.SetTraceID(r.Context(), uuid.NewString())
	r = r.WithContext(ctx)

	var req processEmailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "invalid JSON: "+err.Error())
		return
	}
	if req.SenderAddress == "" {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "sender_address is required")
		return
	}

	result, err := s.orchestrator.Process(ctx, req.RawText, req.SenderAddress)
	if err != nil {
		status, code := mapProcessError(err)
		log.Warn().Err(err).Str("trace_id", requestctx.TraceID(ctx)).Str("code", code).Msg("process_email_failed")
		writeError(w, r, status, code, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// mapProcessError translates the pipeline taxonomy to HTTP. Exhausted
// verification is not an error at this layer: the result ships with its
// unverified flag.
func mapProcessError(err error) (int, string) {
	switch {
	case errors.Is(err, pipeline.ErrEmptyInput):
		return http.StatusBadRequest, "empty_input"
	case errors.Is(err, pipeline.ErrInputTooLarge):
		return http.StatusBadRequest, "input_too_large"
	case errors.Is(err, pipeline.ErrProcessingTimeout):
		return http.StatusGatewayTimeout, "processing_timeout"
	case errors.Is(err, pipeline.ErrDetectionFailure):
		return http.StatusBadGateway, "detection_unavailable"
	case errors.Is(err, pipeline.ErrClassificationFailure):
		return http.StatusBadGateway, "classification_unavailable"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func (s *Server) handleLeadsList(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, r, http.StatusNotFound, "not_found", "lead persistence is disabled")
		return
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, r, http.StatusBadRequest, "invalid_request", "limit must be a positive integer")
			return
		}
		limit = n
	}
	all, err := s.store.List(r.Context(), limit)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal", "listing leads failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"leads": all, "count": len(all)})
}
