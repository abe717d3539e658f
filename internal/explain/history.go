package explain

import "github.com/nhle/codeinsight/internal/model"

// DefaultHistoryLimit caps the number of transcript messages sent per chat
// request.
const DefaultHistoryLimit = 20

// windowHistory drops system messages and, when more than limit remain,
// trims from the middle while keeping the first message, which carries the
// source under discussion.
func windowHistory(history []model.Message, limit int) []model.Message {
	msgs := make([]model.Message, 0, len(history))
	for _, m := range history {
		if m.Role == model.RoleSystem || m.Content == "" {
			continue
		}
		msgs = append(msgs, m)
	}

	if limit <= 0 || len(msgs) <= limit {
		return msgs
	}

	trimmed := make([]model.Message, 0, limit)
	trimmed = append(trimmed, msgs[0])
	excess := len(msgs) - limit
	trimmed = append(trimmed, msgs[1+excess:]...)
	return trimmed
}
