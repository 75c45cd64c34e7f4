package conversations

import (
	"sort"

	"go.uber.org/zap"

	"github.com/tesipedia/tesipedia-api/models"
)

// FallbackName is used when neither a profile name nor a snapshot name is available
const FallbackName = "Usuario"

// NameResolver looks up the display name for a persistent user id. It returns
// the empty string when the user is unknown.
type NameResolver func(userID string) string

// Aggregate folds a flat, already viewer-filtered message list into one
// summary per conversation, sorted by most recent activity descending. The
// input is not assumed to be in any particular order.
func Aggregate(viewer models.Party, msgs []models.Message, resolveName NameResolver) []models.Conversation {
	groups := map[string]*models.Conversation{}
	var order []string

	for _, m := range msgs {
		key := m.ConversationID
		if key == "" {
			k, ok := fallbackKey(m)
			if !ok {
				zap.S().Warnw("skipping message without derivable conversation id",
					"messageId", m.ID.Hex())
				continue
			}
			key = k
		}

		c, seen := groups[key]
		if !seen {
			c = &models.Conversation{
				ConversationID: key,
				Counterpart:    counterpartOf(viewer, m, resolveName),
				IsPublic:       m.IsPublic,
			}
			groups[key] = c
			order = append(order, key)
		}

		c.Messages = append(c.Messages, m)
		if m.CreatedAt >= c.LastMessageDate {
			c.LastMessage = m.Text
			c.LastMessageDate = m.CreatedAt
		}
		if m.ReceiverParty().Equal(viewer) && !m.IsRead && !m.SenderParty().Equal(viewer) {
			c.UnreadCount++
		}
	}

	out := make([]models.Conversation, 0, len(order))
	for _, k := range order {
		out = append(out, *groups[k])
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].LastMessageDate > out[j].LastMessageDate
	})
	return out
}

// counterpartOf picks the identity that is not the viewer. A conversation with
// no resolvable counterpart still gets a summary, just with an empty id.
func counterpartOf(viewer models.Party, m models.Message, resolveName NameResolver) models.Counterpart {
	other := m.SenderParty()
	if other.Equal(viewer) {
		other = m.ReceiverParty()
	}

	name := ""
	if !other.IsAnonymous() && other.ID != "" && resolveName != nil {
		name = resolveName(other.ID)
	}
	if name == "" {
		name = m.SenderName
	}
	if name == "" {
		name = FallbackName
	}
	return models.Counterpart{ID: other.ID, Name: name}
}
