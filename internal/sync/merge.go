package sync

import (
	"sort"

	"github.com/QuickFix-Capstone/quickfix-messaging/internal/model"
)

// mergeMessages unions incoming into existing, keyed by message id,
// and returns the result sorted by timestamp ascending (id as
// tiebreaker). Incoming copies of known messages win, so a server
// copy refines a provisional or stale one. The merge is commutative
// and idempotent: replaying either channel's frames cannot duplicate
// or reorder anything. changed is false when the result is
// element-for-element identical, letting callers skip a publish.
func mergeMessages(existing, incoming []model.Message) (merged []model.Message, changed bool) {
	if len(incoming) == 0 {
		return existing, false
	}
	index := make(map[string]int, len(existing))
	for i, m := range existing {
		index[m.ID] = i
	}
	merged = make([]model.Message, len(existing), len(existing)+len(incoming))
	copy(merged, existing)
	for _, m := range incoming {
		if i, ok := index[m.ID]; ok {
			if merged[i] != m {
				merged[i] = m
				changed = true
			}
			continue
		}
		index[m.ID] = len(merged)
		merged = append(merged, m)
		changed = true
	}
	if !changed {
		return existing, false
	}
	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].Timestamp != merged[j].Timestamp {
			return merged[i].Timestamp < merged[j].Timestamp
		}
		return merged[i].ID < merged[j].ID
	})
	return merged, true
}

// replaceMessage swaps a provisional message for the server-assigned
// copy. If the server copy already arrived on the push channel the
// provisional entry is simply dropped.
func replaceMessage(msgs []model.Message, provisionalID string, final model.Message) []model.Message {
	out := msgs[:0]
	finalSeen := false
	for _, m := range msgs {
		switch m.ID {
		case provisionalID:
			continue
		case final.ID:
			finalSeen = true
			out = append(out, final)
		default:
			out = append(out, m)
		}
	}
	if !finalSeen {
		out, _ = mergeMessages(out, []model.Message{final})
	}
	return out
}
