package handlers

import (
	"fmt"

	"github.com/tesipedia/tesipedia-api/models"
)

// RoomKind enumerates the room namespaces used by the realtime gateway. Both
// the chat and notification streams share this one naming scheme.
type RoomKind string

// Room namespaces
const (
	RoomUser          RoomKind = "user"
	RoomPublic        RoomKind = "public"
	RoomOrder         RoomKind = "order"
	RoomNotifications RoomKind = "notifications"
)

// Room identifies a broadcast target in the gateway
type Room struct {
	Kind RoomKind
	ID   string
}

// NewRoom is the single constructor for room names so the chat and
// notification paths cannot drift apart.
func NewRoom(kind RoomKind, id string) Room {
	return Room{Kind: kind, ID: id}
}

// PersonalRoom returns the direct-delivery room of a party
func PersonalRoom(p models.Party) Room {
	if p.IsAnonymous() {
		return NewRoom(RoomPublic, p.ID)
	}
	return NewRoom(RoomUser, p.ID)
}

// NotificationRoom returns the notification stream room of a persistent user
func NotificationRoom(userID string) Room {
	return NewRoom(RoomNotifications, userID)
}

func (r Room) String() string {
	return fmt.Sprintf("%s:%s", r.Kind, r.ID)
}
