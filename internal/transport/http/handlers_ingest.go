package httptransport

import (
	"log/slog"
	"net/http"

	"sentra/internal/ingest"
)

// IngestHandler serves the synchronous internal ingest endpoint used by
// co-located modules that cannot publish to Kafka.
type IngestHandler struct {
	ingestor *ingest.Ingestor
	verifier *ingest.SecretVerifier
	logger   *slog.Logger
}

func NewIngestHandler(ingestor *ingest.Ingestor, verifier *ingest.SecretVerifier, logger *slog.Logger) *IngestHandler {
	return &IngestHandler{ingestor: ingestor, verifier: verifier, logger: logger}
}

func (h *IngestHandler) handleIngest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if !h.verifier.Verify(r.Header.Get("X-Internal-Secret")) {
		h.logger.WarnContext(ctx, "ingest request with bad shared secret",
			"remote", r.RemoteAddr)
		writeUnauthorized(w)
		return
	}

	var payload ingest.Payload
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, err)
		return
	}

	event, err := h.ingestor.Ingest(ctx, payload)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"event_id": event.ID.String(),
	})
}
