package websocket

import (
	"encoding/binary"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/harunnryd/voxrelay/pkg/pipeline"
)

const maxUploadBytes = 32 << 20

type errorBody struct {
	Error string `json:"error"`
}

// handleAgentChat answers one uploaded recording (multipart field "file",
// 16kHz mono PCM16, raw or WAV). Keys come from the same query parameters as
// the streaming endpoint and fall back to the process defaults.
func (s *Server) handleAgentChat(w http.ResponseWriter, r *http.Request) {
	if s.draining.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	s.conns.Add(1)
	defer s.conns.Done()

	sessionID := r.PathValue("session_id")
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, _, err := r.FormFile("file")
	if err != nil {
		writeStatusJSON(w, http.StatusBadRequest, errorBody{Error: "file upload is required"})
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		writeStatusJSON(w, http.StatusBadRequest, errorBody{Error: "could not read upload"})
		return
	}

	res, err := s.converser.Converse(r.Context(), sessionID, pcmPayload(data), queryCredentials(r))
	switch {
	case err == nil:
		writeJSON(w, res)
	case errors.Is(err, pipeline.ErrFallback):
		writeStatusJSON(w, http.StatusServiceUnavailable, res)
	case errors.Is(err, pipeline.ErrDraining):
		w.WriteHeader(http.StatusServiceUnavailable)
	default:
		if _, ok := pipeline.MissingService(err); ok {
			writeStatusJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
			return
		}
		s.log.Error("agent_chat_failed", slog.String("session_id", sessionID), slog.String("error", err.Error()))
		writeStatusJSON(w, http.StatusInternalServerError, errorBody{Error: "A critical internal error occurred."})
	}
}

// pcmPayload returns the samples of a RIFF/WAVE upload, or data unchanged
// when it is not one.
func pcmPayload(data []byte) []byte {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return data
	}
	for off := 12; off+8 <= len(data); {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		body := off + 8
		if id == "data" {
			return data[body:min(body+size, len(data))]
		}
		off = body + size + size%2
	}
	return data
}
