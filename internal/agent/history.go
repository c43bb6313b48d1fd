package agent

import "github.com/sharow/sharow/internal/domain"

// pinnedTurns are the seed turns that carry the bill context.
const pinnedTurns = 2

// TrimHistory drops the oldest turns after the seed until the history fits in
// budget tokens. The seed turns are always kept and the kept tail never starts
// with a model turn. A budget of zero or less leaves only the seed turns; callers
// that want no trimming skip the call.
func TrimHistory(history []domain.Turn, budget int, count func(domain.Turn) int) []domain.Turn {
	if len(history) <= pinnedTurns {
		return history
	}
	if budget <= 0 {
		return append([]domain.Turn(nil), history[:pinnedTurns]...)
	}
	total := 0
	for _, t := range history {
		total += count(t)
	}
	if total <= budget {
		return history
	}

	start := pinnedTurns
	for start < len(history) && total > budget {
		total -= count(history[start])
		start++
	}
	for start < len(history) && history[start].Role == domain.RoleModel {
		start++
	}

	out := make([]domain.Turn, 0, pinnedTurns+len(history)-start)
	out = append(out, history[:pinnedTurns]...)
	return append(out, history[start:]...)
}
