package conversations_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/tesipedia/tesipedia-api/api/handlers/conversations"
	"github.com/tesipedia/tesipedia-api/models"
)

func at(sec int) primitive.DateTime {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return primitive.NewDateTimeFromTime(base.Add(time.Duration(sec) * time.Second))
}

func msg(sender, receiver, convID, text string, createdAt primitive.DateTime) models.Message {
	return models.Message{
		ID:             primitive.NewObjectID(),
		Sender:         sender,
		Receiver:       receiver,
		ConversationID: convID,
		Text:           text,
		CreatedAt:      createdAt,
	}
}

func TestAggregate_GroupsAndSortsByRecency(t *testing.T) {
	viewer := models.UserParty(testAdminID)
	other := "5fc51f58c72ff10004dca390"
	msgs := []models.Message{
		msg(testWriterID, testAdminID, "conv-a", "old a", at(0)),
		msg(other, testAdminID, "conv-b", "only b", at(5)),
		msg(testAdminID, testWriterID, "conv-a", "new a", at(10)),
	}

	out := conversations.Aggregate(viewer, msgs, nil)

	assert.Len(t, out, 2)
	assert.Equal(t, "conv-a", out[0].ConversationID)
	assert.Equal(t, "new a", out[0].LastMessage)
	assert.Equal(t, at(10), out[0].LastMessageDate)
	assert.Len(t, out[0].Messages, 2)
	assert.Equal(t, "conv-b", out[1].ConversationID)
}

func TestAggregate_UnreadCountsOnlyInboundUnread(t *testing.T) {
	viewer := models.UserParty(testAdminID)
	msgs := []models.Message{
		msg(testWriterID, testAdminID, "conv-a", "unread in", at(0)),
		msg(testWriterID, testAdminID, "conv-a", "unread in 2", at(1)),
		msg(testAdminID, testWriterID, "conv-a", "my own unread", at(2)),
	}
	read := msg(testWriterID, testAdminID, "conv-a", "read in", at(3))
	read.IsRead = true
	msgs = append(msgs, read)

	out := conversations.Aggregate(viewer, msgs, nil)

	assert.Len(t, out, 1)
	assert.Equal(t, 2, out[0].UnreadCount)
}

func TestAggregate_FallbackKeyForLegacyRows(t *testing.T) {
	viewer := models.UserParty(testAdminID)

	public := msg(testPublicID, testAdminID, "", "hola", at(0))
	public.IsPublic = true
	direct := msg(testWriterID, testAdminID, "", "direct", at(1))
	underivable := msg("", "", "", "orphan", at(2))

	out := conversations.Aggregate(viewer, []models.Message{public, direct, underivable}, nil)

	assert.Len(t, out, 2)
	keys := []string{out[0].ConversationID, out[1].ConversationID}
	assert.Contains(t, keys, testPublicID)
	assert.Contains(t, keys, conversations.PairKey(testWriterID, testAdminID))
}

func TestAggregate_CounterpartNameFallbackChain(t *testing.T) {
	viewer := models.UserParty(testAdminID)

	resolved := msg(testWriterID, testAdminID, "conv-a", "hi", at(0))
	resolved.SenderName = "snapshot"
	snapshotOnly := msg("5fc51f58c72ff10004dca391", testAdminID, "conv-b", "hi", at(1))
	snapshotOnly.SenderName = "snapshot"
	bare := msg("5fc51f58c72ff10004dca392", testAdminID, "conv-c", "hi", at(2))

	resolve := func(userID string) string {
		if userID == testWriterID {
			return "Profile Name"
		}
		return ""
	}

	out := conversations.Aggregate(viewer, []models.Message{resolved, snapshotOnly, bare}, resolve)

	byKey := map[string]models.Conversation{}
	for _, c := range out {
		byKey[c.ConversationID] = c
	}
	assert.Equal(t, "Profile Name", byKey["conv-a"].Counterpart.Name)
	assert.Equal(t, "snapshot", byKey["conv-b"].Counterpart.Name)
	assert.Equal(t, conversations.FallbackName, byKey["conv-c"].Counterpart.Name)
}

func TestAggregate_AnonymousCounterpartNeverResolved(t *testing.T) {
	viewer := models.UserParty(testAdminID)
	m := msg(testPublicID, testAdminID, testPublicID, "hola", at(0))
	m.IsPublic = true
	m.SenderName = "Visitante"

	resolve := func(userID string) string {
		t.Fatalf("resolver called for anonymous id %s", userID)
		return ""
	}

	out := conversations.Aggregate(viewer, []models.Message{m}, resolve)

	assert.Len(t, out, 1)
	assert.Equal(t, testPublicID, out[0].Counterpart.ID)
	assert.Equal(t, "Visitante", out[0].Counterpart.Name)
	assert.True(t, out[0].IsPublic)
}

func TestAggregate_EmptyInput(t *testing.T) {
	out := conversations.Aggregate(models.UserParty(testAdminID), nil, nil)
	assert.Empty(t, out)
}
