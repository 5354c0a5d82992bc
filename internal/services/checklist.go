package services

import (
	"fmt"
	"sort"
	"time"

	"github.com/prudhvinik1/fieldsync/internal/models"
)

type checklistMergeOpts struct {
	ServerTimestamp *time.Time
	ClientTimestamp *time.Time
	ServerVector    models.VectorClock
	ClientVector    models.VectorClock
	ClientID        string
}

// checklistMergeResult is the outcome of merging one checklist field.
type checklistMergeResult struct {
	Merged      []map[string]interface{}
	Resolutions []models.ChecklistResolution
	// AppliedIDs are item keys where the client's version prevailed (added,
	// updated or deleted an item); DiscardedIDs are keys where the client
	// proposed a change and the server's copy was retained.
	AppliedIDs   []string
	DiscardedIDs []string
	// ServerContributed reports whether any merged item came from the server
	// side, so the caller can mark the field resolution as mixed.
	ServerContributed bool
}

// mergeChecklist performs a keyed merge of two checklist item collections.
// Items are keyed by id, then _id, then text content, and the key union is
// iterated in sorted order, so the output is reproducible regardless of the
// input array ordering. Every key in either input appears exactly once in the
// merged output or is explicitly recorded as deleted.
func mergeChecklist(existing, incoming []map[string]interface{}, opts checklistMergeOpts) checklistMergeResult {
	serverByKey := keyItems(existing)
	clientByKey := keyItems(incoming)

	keys := make([]string, 0, len(serverByKey)+len(clientByKey))
	seen := make(map[string]bool, len(serverByKey)+len(clientByKey))
	for k := range serverByKey {
		keys = append(keys, k)
		seen[k] = true
	}
	for k := range clientByKey {
		if !seen[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var res checklistMergeResult
	res.Resolutions = []models.ChecklistResolution{}

	for _, key := range keys {
		serverItem, onServer := serverByKey[key]
		clientItem, onClient := clientByKey[key]

		switch {
		case onServer && !onClient:
			res.Merged = append(res.Merged, serverItem)
			res.ServerContributed = true
			res.Resolutions = append(res.Resolutions, models.ChecklistResolution{
				ItemID: key, ResolvedWith: models.WinnerServer, Change: models.ChecklistUnchanged,
			})

		case onClient && !onServer:
			winner := pickWinner(opts.ServerTimestamp, itemTimestamp(clientItem, opts.ClientTimestamp),
				opts.ServerVector, opts.ClientVector, opts.ClientID)
			if winner == models.WinnerClient {
				res.Merged = append(res.Merged, clientItem)
				res.AppliedIDs = append(res.AppliedIDs, key)
				res.Resolutions = append(res.Resolutions, models.ChecklistResolution{
					ItemID: key, ResolvedWith: models.WinnerClient, Change: models.ChecklistAdded,
				})
			} else {
				// The server's state (absence of the item) is retained.
				res.DiscardedIDs = append(res.DiscardedIDs, key)
				res.Resolutions = append(res.Resolutions, models.ChecklistResolution{
					ItemID: key, ResolvedWith: models.WinnerServer, Change: models.ChecklistUnchanged,
				})
			}

		default:
			winner := pickWinner(itemTimestamp(serverItem, opts.ServerTimestamp),
				itemTimestamp(clientItem, opts.ClientTimestamp),
				opts.ServerVector, opts.ClientVector, opts.ClientID)
			if winner != models.WinnerClient {
				res.Merged = append(res.Merged, serverItem)
				res.ServerContributed = true
				res.DiscardedIDs = append(res.DiscardedIDs, key)
				res.Resolutions = append(res.Resolutions, models.ChecklistResolution{
					ItemID: key, ResolvedWith: models.WinnerServer, Change: models.ChecklistUnchanged,
				})
				continue
			}
			if deleted, _ := clientItem["deleted"].(bool); deleted {
				res.AppliedIDs = append(res.AppliedIDs, key)
				res.Resolutions = append(res.Resolutions, models.ChecklistResolution{
					ItemID: key, ResolvedWith: models.WinnerClient, Change: models.ChecklistDeleted,
				})
				continue
			}
			mergedItem := make(map[string]interface{}, len(serverItem)+len(clientItem))
			for k, v := range serverItem {
				mergedItem[k] = v
			}
			for k, v := range clientItem {
				mergedItem[k] = v
			}
			res.Merged = append(res.Merged, mergedItem)
			res.AppliedIDs = append(res.AppliedIDs, key)
			res.Resolutions = append(res.Resolutions, models.ChecklistResolution{
				ItemID: key, ResolvedWith: models.WinnerClient, Change: models.ChecklistUpdated,
			})
		}
	}

	if res.Merged == nil {
		res.Merged = []map[string]interface{}{}
	}
	return res
}

// checklistItems coerces a document value into checklist items. Returns nil
// when the field is absent or not an array, a non-nil slice otherwise.
func checklistItems(v interface{}) []map[string]interface{} {
	switch arr := v.(type) {
	case []map[string]interface{}:
		return arr
	case []interface{}:
		items := make([]map[string]interface{}, 0, len(arr))
		for _, raw := range arr {
			if item, ok := raw.(map[string]interface{}); ok {
				items = append(items, item)
			}
		}
		return items
	default:
		return nil
	}
}

// keyItems indexes items by stable key: id, then _id, then text content. The
// text fallback keeps identity intact for items created on clients that never
// assigned an id. Later duplicates of a key win within one side.
func keyItems(items []map[string]interface{}) map[string]map[string]interface{} {
	byKey := make(map[string]map[string]interface{}, len(items))
	for _, item := range items {
		byKey[itemKey(item)] = item
	}
	return byKey
}

func itemKey(item map[string]interface{}) string {
	for _, k := range []string{"id", "_id", "text"} {
		switch v := item[k].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return fmt.Sprintf("%v", v)
		}
	}
	return ""
}

// itemTimestamp returns the item's own updatedAt when present, else the
// record-level fallback.
func itemTimestamp(item map[string]interface{}, fallback *time.Time) *time.Time {
	switch v := item["updatedAt"].(type) {
	case time.Time:
		return &v
	case string:
		if ts, err := time.Parse(time.RFC3339, v); err == nil {
			return &ts
		}
	}
	return fallback
}
