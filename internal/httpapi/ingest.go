package httpapi

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ent0n29/lingocast/internal/ingest"
	"github.com/ent0n29/lingocast/internal/protocol"
)

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	raw, err := readBody(r, maxIngestBody)
	if err != nil {
		s.ingestFailed(w, fmt.Errorf("%w: %v", protocol.ErrMalformed, err))
		return
	}
	req, err := protocol.ParseIngestRequest(raw)
	if err != nil {
		s.ingestFailed(w, err)
		return
	}

	var receipt ingest.Receipt
	if req.IsAudio() {
		receipt, err = s.deps.Ingest.IngestAudio(r.Context(), req.Code, req.Data, req.ContentType)
	} else {
		receipt, err = s.deps.Ingest.IngestText(r.Context(), req.Code, req.Text)
	}
	if err != nil {
		s.ingestFailed(w, err)
		return
	}
	respondJSON(w, http.StatusOK, protocol.IngestResponse{OK: true, Seq: receipt.Seq, T: receipt.T})
}

// handleIngestAudio accepts a raw audio body; the session code travels in the
// query string and the body's Content-Type is stored with the entry.
func (s *Server) handleIngestAudio(w http.ResponseWriter, r *http.Request) {
	data, err := readBody(r, maxIngestBody)
	if err != nil {
		s.ingestFailed(w, fmt.Errorf("%w: %v", protocol.ErrMalformed, err))
		return
	}
	contentType := strings.TrimSpace(r.Header.Get("Content-Type"))
	receipt, err := s.deps.Ingest.IngestAudio(r.Context(), r.URL.Query().Get("code"), data, contentType)
	if err != nil {
		s.ingestFailed(w, err)
		return
	}
	respondJSON(w, http.StatusOK, protocol.IngestResponse{OK: true, Seq: receipt.Seq, T: receipt.T})
}

func (s *Server) ingestFailed(w http.ResponseWriter, err error) {
	status, errCode := classifyError(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("ingest failed", "code", errCode, "err", err)
	}
	respondJSON(w, status, protocol.IngestFailure{OK: false, Error: errCode, Message: err.Error()})
}

var errBodyTooLarge = errors.New("request body too large")

func readBody(r *http.Request, limit int64) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	defer r.Body.Close()
	data, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	return data, nil
}
