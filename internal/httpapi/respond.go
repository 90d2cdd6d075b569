package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mediagate/mediagate/internal/orchestrator"
	"github.com/mediagate/mediagate/internal/types"
)

// Stable machine-readable error codes.
const (
	codeInvalidURL       = "INVALID_URL"
	codeInvalidFormat    = "INVALID_FORMAT"
	codeMissingParams    = "MISSING_PARAMS"
	codeRateLimited      = "RATE_LIMITED"
	codeExtractionFailed = "EXTRACTION_FAILED"
	codeResolveFailed    = "RESOLVE_FAILED"
	codeProcessingError  = "PROCESSING_ERROR"
	codeServerBusy       = "SERVER_BUSY"
)

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: message, Code: code})
}

// writeExtractionError maps an orchestration failure onto the error
// taxonomy. A chain where some backend produced unparseable output is a
// gateway-side processing error; everything else is an extraction failure.
func (s *Server) writeExtractionError(w http.ResponseWriter, err error, resolveOp bool) {
	if errors.Is(err, context.Canceled) {
		// The client is gone; there is nobody to answer.
		return
	}

	switch {
	case errors.Is(err, types.ErrInvalidFormat):
		writeError(w, http.StatusBadRequest, codeInvalidFormat, "unsupported format selector")
		return
	}

	var all *orchestrator.AllBackendsFailedError
	if errors.As(err, &all) {
		if all.HasParseFailure() {
			writeError(w, http.StatusInternalServerError, codeProcessingError,
				"extraction backend produced unusable output")
			return
		}
		code := codeExtractionFailed
		if resolveOp {
			code = codeResolveFailed
		}
		writeError(w, http.StatusInternalServerError, code, "all extraction backends failed")
		return
	}

	s.log.WithField("error", err.Error()).Error("unclassified extraction error")
	writeError(w, http.StatusInternalServerError, codeProcessingError, "internal processing error")
}
