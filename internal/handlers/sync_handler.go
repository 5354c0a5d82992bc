package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prudhvinik1/fieldsync/internal/models"
	"github.com/prudhvinik1/fieldsync/internal/repositories"
	"github.com/prudhvinik1/fieldsync/internal/services"
)

// PullRequest is the body of POST /mobile/pull. Keys of LastSync are entity
// type names; an absent key means full initial sync for that type.
type PullRequest struct {
	LastSync map[models.Entity]*time.Time `json:"lastSync"`
}

// PushRequest is the body of POST /mobile/push.
type PushRequest struct {
	Actions []models.OfflineAction `json:"actions"`
}

// SyncHandler serves the mobile pull/push endpoints.
type SyncHandler struct {
	delta     *services.DeltaFetcher
	processor *services.OfflineActionProcessor
	cursors   repositories.CursorRepository
	devices   repositories.DeviceRepository
	logger    *slog.Logger
}

func NewSyncHandler(
	delta *services.DeltaFetcher,
	processor *services.OfflineActionProcessor,
	cursors repositories.CursorRepository,
	devices repositories.DeviceRepository,
	logger *slog.Logger,
) *SyncHandler {
	return &SyncHandler{
		delta:     delta,
		processor: processor,
		cursors:   cursors,
		devices:   devices,
		logger:    logger,
	}
}

// HandlePull serves POST /mobile/pull: records changed since the client's
// cursors, plus the advanced cursors. All tracked cursors are present in the
// response even when their result array is empty.
func (h *SyncHandler) HandlePull(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID, ok := TenantID(ctx)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	deviceID, _ := DeviceID(ctx)

	var req PullRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("failed to decode pull request", "error", err)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	result, err := h.delta.FetchDeltas(ctx, tenantID, req.LastSync)
	if err != nil {
		h.logger.Error("failed to fetch deltas", "tenant_id", tenantID, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	h.checkpoint(r, tenantID, deviceID.String(), result.Cursors)
	if err := h.devices.TouchLastSeen(ctx, deviceID); err != nil {
		h.logger.Warn("failed to touch device", "device_id", deviceID, "error", err)
	}

	response := make(map[string]interface{}, len(result.Records)+1)
	for entity, records := range result.Records {
		response[entity] = records
	}
	response["cursors"] = result.Cursors

	writeJSON(w, h.logger, response)

	h.logger.Info("pull completed", "tenant_id", tenantID, "device_id", deviceID)
}

// HandlePush serves POST /mobile/push: replays the client's queued offline
// actions. Store-level failures abort the whole batch (no partial-commit
// semantics).
func (h *SyncHandler) HandlePush(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID, ok := TenantID(ctx)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	userID, _ := UserID(ctx)
	deviceID, _ := DeviceID(ctx)

	var req PushRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("failed to decode push request", "error", err)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	// Identity comes from the token, never from the client payload.
	for i := range req.Actions {
		req.Actions[i].TenantID = tenantID
		req.Actions[i].UserID = userID.String()
		if req.Actions[i].ClientID == "" {
			req.Actions[i].ClientID = deviceID.String()
		}
	}

	result, err := h.processor.Apply(ctx, req.Actions)
	if err != nil {
		if errors.Is(err, repositories.ErrDuplicateID) {
			h.logger.Warn("push rejected on duplicate create", "tenant_id", tenantID, "error", err)
			http.Error(w, "Conflict: duplicate id", http.StatusConflict)
			return
		}
		h.logger.Error("failed to apply offline actions", "tenant_id", tenantID, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	if err := h.devices.TouchLastSeen(ctx, deviceID); err != nil {
		h.logger.Warn("failed to touch device", "device_id", deviceID, "error", err)
	}

	writeJSON(w, h.logger, result)

	h.logger.Info("push completed",
		"tenant_id", tenantID,
		"device_id", deviceID,
		"actions", len(req.Actions),
		"processed", len(result.Processed),
		"conflicts", len(result.Conflicts))
}

// HandleCursors serves GET /mobile/cursors: the cursors checkpointed for the
// calling device on its last pull, so a reinstalled client can resume.
func (h *SyncHandler) HandleCursors(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID, ok := TenantID(ctx)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	deviceID, _ := DeviceID(ctx)

	cursors, err := h.cursors.GetCursors(ctx, tenantID, deviceID.String())
	if err != nil {
		h.logger.Error("failed to get cursors", "tenant_id", tenantID, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, h.logger, map[string]interface{}{"cursors": cursors})
}

// checkpoint saves the served cursors best-effort; a failed checkpoint never
// fails the pull.
func (h *SyncHandler) checkpoint(r *http.Request, tenantID, deviceID string, cursors map[models.Entity]*time.Time) {
	toSave := make(map[models.Entity]time.Time, len(cursors))
	for entity, cursor := range cursors {
		if cursor != nil {
			toSave[entity] = *cursor
		}
	}
	if err := h.cursors.SaveCursors(r.Context(), tenantID, deviceID, toSave); err != nil {
		h.logger.Warn("failed to checkpoint cursors", "tenant_id", tenantID, "device_id", deviceID, "error", err)
	}
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error("failed to encode response", "error", err)
	}
}
