package services

import (
	"sort"
	"time"

	"github.com/prudhvinik1/fieldsync/internal/models"
)

// serverToken is the server's identity in the deterministic tie-break. The
// comparison against it is arbitrary but stable; changing it would silently
// flip conflict outcomes for existing data, so it stays as-is.
const serverToken = "server"

// pickWinner decides the surviving side for one record (or one field, or one
// checklist item). Precedence:
//  1. Both timestamps present and different: later timestamp wins.
//  2. Only one timestamp present: that side wins (no timestamp reads as
//     older/unknown, never as "now").
//  3. Vector-clock dominance: the strictly-ahead clock wins.
//  4. Equal or concurrent clocks: lexicographic tie-break of clientID against
//     the "server" token, smaller wins. Same inputs always produce the same
//     winner, so retried pushes resolve identically.
func pickWinner(serverTs, clientTs *time.Time, serverVec, clientVec models.VectorClock, clientID string) models.Winner {
	if serverTs != nil && clientTs != nil && !serverTs.Equal(*clientTs) {
		if clientTs.After(*serverTs) {
			return models.WinnerClient
		}
		return models.WinnerServer
	}
	if serverTs != nil && clientTs == nil {
		return models.WinnerServer
	}
	if clientTs != nil && serverTs == nil {
		return models.WinnerClient
	}

	switch clientVec.Compare(serverVec) {
	case models.ClockAfter:
		return models.WinnerClient
	case models.ClockBefore:
		return models.WinnerServer
	}

	if clientID < serverToken {
		return models.WinnerClient
	}
	return models.WinnerServer
}

// ResolveInput carries both sides of a detected conflict into the resolver.
type ResolveInput struct {
	Existing        *models.EntityRecord
	Incoming        map[string]interface{}
	EntityType      models.Entity
	EntityID        string
	ClientTimestamp *time.Time
	ClientVector    models.VectorClock
	ClientID        string
	FieldTimestamps map[string]time.Time
}

// Resolution is the resolver's verdict for one record.
type Resolution struct {
	// RecordWinner is the record-level outcome before field overrides.
	RecordWinner models.Winner
	// Merged is the full merged document.
	Merged map[string]interface{}
	// Patch holds only the fields the store should write ($set semantics),
	// including the merged vector clock. Empty when nothing changes.
	Patch map[string]interface{}
	// ApplyChange is false only in the pure "server wins, nothing applied"
	// case; the processor then logs the resolution and skips the write.
	ApplyChange bool
	Metadata    models.ResolutionMetadata
}

// ResolveConflict merges a client payload into the current server record.
// Pure function of its inputs: no clock reads, no randomness, no I/O. Given
// well-formed inputs it cannot fail; every conflict resolves to a winner.
func ResolveConflict(in ResolveInput) Resolution {
	serverTs := &in.Existing.UpdatedAt
	serverVec := in.Existing.SyncVector()

	recordWinner := pickWinner(serverTs, in.ClientTimestamp, serverVec, in.ClientVector, in.ClientID)

	merged := make(map[string]interface{}, len(in.Existing.Doc)+len(in.Incoming))
	for k, v := range in.Existing.Doc {
		merged[k] = v
	}

	meta := models.ResolutionMetadata{
		EntityType:       in.EntityType,
		EntityID:         in.EntityID,
		ServerTimestamp:  serverTs,
		ClientTimestamp:  in.ClientTimestamp,
		ServerVector:     serverVec,
		ClientVector:     in.ClientVector,
		ClientID:         in.ClientID,
		AppliedFields:    []string{},
		DiscardedFields:  []string{},
		FieldResolutions: map[string]models.Winner{},
	}
	patch := make(map[string]interface{})

	mergeable := make(map[string]bool)
	for _, f := range models.MergeableFields[in.EntityType] {
		mergeable[f] = true
	}

	// Deterministic field order keeps metadata reproducible across retries.
	fields := make([]string, 0, len(in.Incoming))
	for f := range in.Incoming {
		if f == "checklist" || f == models.DocFieldSyncVector {
			continue
		}
		fields = append(fields, f)
	}
	sort.Strings(fields)

	for _, f := range fields {
		winner := recordWinner
		if mergeable[f] {
			// Allow-listed fields resolve independently of the record outcome,
			// using the per-field client timestamp when the client sent one.
			fieldTs := in.ClientTimestamp
			if ts, ok := in.FieldTimestamps[f]; ok {
				ts := ts
				fieldTs = &ts
			}
			winner = pickWinner(serverTs, fieldTs, serverVec, in.ClientVector, in.ClientID)
			meta.FieldResolutions[f] = winner
		}
		if winner == models.WinnerClient {
			merged[f] = in.Incoming[f]
			patch[f] = in.Incoming[f]
			meta.AppliedFields = append(meta.AppliedFields, f)
		} else {
			meta.DiscardedFields = append(meta.DiscardedFields, f)
		}
	}

	// Checklists never resolve wholesale; each item is merged by key.
	serverItems := checklistItems(in.Existing.Doc["checklist"])
	clientItems := checklistItems(in.Incoming["checklist"])
	if serverItems != nil || clientItems != nil {
		out := mergeChecklist(serverItems, clientItems, checklistMergeOpts{
			ServerTimestamp: serverTs,
			ClientTimestamp: in.ClientTimestamp,
			ServerVector:    serverVec,
			ClientVector:    in.ClientVector,
			ClientID:        in.ClientID,
		})
		merged["checklist"] = out.Merged
		meta.ChecklistResolutions = out.Resolutions
		for _, id := range out.AppliedIDs {
			meta.AppliedFields = append(meta.AppliedFields, "checklist."+id)
		}
		for _, id := range out.DiscardedIDs {
			meta.DiscardedFields = append(meta.DiscardedFields, "checklist."+id)
		}
		if len(out.AppliedIDs) > 0 {
			patch["checklist"] = out.Merged
			if out.ServerContributed {
				meta.FieldResolutions["checklist"] = models.WinnerMixed
			} else {
				meta.FieldResolutions["checklist"] = models.WinnerClient
			}
		} else if len(out.Resolutions) > 0 {
			meta.FieldResolutions["checklist"] = models.WinnerServer
		}
	}

	switch {
	case len(meta.AppliedFields) == 0:
		meta.ResolvedWith = models.WinnerServer
	case recordWinner == models.WinnerClient && len(meta.DiscardedFields) == 0:
		meta.ResolvedWith = models.WinnerClient
	default:
		meta.ResolvedWith = models.WinnerMixed
	}

	applyChange := !(recordWinner == models.WinnerServer && len(meta.AppliedFields) == 0)
	if applyChange {
		mergedVec := serverVec.Merge(in.ClientVector)
		if len(mergedVec) > 0 {
			merged[models.DocFieldSyncVector] = mergedVec
			patch[models.DocFieldSyncVector] = mergedVec
		}
	}

	return Resolution{
		RecordWinner: recordWinner,
		Merged:       merged,
		Patch:        patch,
		ApplyChange:  applyChange,
		Metadata:     meta,
	}
}
