package handlers_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tesipedia/tesipedia-api/api/handlers"
	"github.com/tesipedia/tesipedia-api/models"
)

func TestPersonalRoom_SplitsByPartyKind(t *testing.T) {
	userRoom := handlers.PersonalRoom(models.UserParty(writerID))
	assert.Equal(t, handlers.RoomUser, userRoom.Kind)
	assert.Equal(t, writerID, userRoom.ID)

	publicRoom := handlers.PersonalRoom(models.AnonymousParty(visitorID))
	assert.Equal(t, handlers.RoomPublic, publicRoom.Kind)
	assert.Equal(t, visitorID, publicRoom.ID)

	// same id under different kinds is two distinct rooms
	assert.NotEqual(t, handlers.NewRoom(handlers.RoomUser, "x"), handlers.NewRoom(handlers.RoomPublic, "x"))
}

func TestRoomString(t *testing.T) {
	assert.Equal(t, "order:abc", handlers.NewRoom(handlers.RoomOrder, "abc").String())
	assert.Equal(t, "notifications:"+writerID, handlers.NotificationRoom(writerID).String())
}
