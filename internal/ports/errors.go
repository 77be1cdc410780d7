package ports

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/mvrik/lantern/internal/reporting"
)

type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func writeErrorResponse(ctx context.Context, w http.ResponseWriter, statusCode int, message string, details string) {
	response, err := json.Marshal(errorResponse{
		Error:   message,
		Details: details,
	})
	if err != nil {
		reporting.Report(ctx, fmt.Errorf("failed to marshal error response: %w", err))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"Server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	w.Write(response)
}
