package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/openhearth/hearth-core/internal/backend"
	"github.com/openhearth/hearth-core/internal/device"
)

// handleListDevices returns every known device, ordered by backend kind
// and then name.
func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	devices := s.registry.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"devices": devices,
		"count":   len(devices),
	})
}

// handleDeviceStats returns registry statistics.
func (s *Server) handleDeviceStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.GetStats())
}

// handleGetDevice returns a single device record.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeBadRequest(w, "device id is required")
		return
	}

	rec, err := s.registry.Get(id)
	if err != nil {
		if errors.Is(err, device.ErrNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		writeInternalError(w)
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

// handleCommand executes a control command against one device and
// returns the updated record.
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeBadRequest(w, "device id is required")
		return
	}

	var cmd device.Command
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	if !device.ValidKind(cmd.Kind) {
		writeBadRequest(w, "unknown command kind")
		return
	}

	updated, err := s.dispatcher.Execute(r.Context(), id, cmd)
	if err != nil {
		if !errors.Is(err, device.ErrNotFound) &&
			!errors.Is(err, backend.ErrInvalidValue) &&
			!errors.Is(err, backend.ErrUnsupported) &&
			!errors.Is(err, backend.ErrUnreachable) {
			s.logger.Error("command execution failed",
				"device_id", id,
				"kind", cmd.Kind,
				"error", err,
			)
		}
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

// handleRefresh triggers an immediate discovery round.
//
// The refresh is asynchronous: 202 means the request was queued, not
// that the round has completed. A refresh arriving while one is already
// pending coalesces with it.
func (s *Server) handleRefresh(w http.ResponseWriter, _ *http.Request) {
	if s.refresher == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeBackendFailed,
			"discovery is not running")
		return
	}

	queued := s.refresher.TriggerRefresh()
	writeJSON(w, http.StatusAccepted, map[string]any{
		"status": "accepted",
		"queued": queued,
	})
}
