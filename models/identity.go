package models

import (
	"regexp"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// PartyKind discriminates the two identity schemes used in chat
type PartyKind string

// The two kinds of chat participants
const (
	PartyUser      PartyKind = "user"
	PartyAnonymous PartyKind = "anonymous"
)

var publicIDPattern = regexp.MustCompile(`^[a-f0-9]{32}$`)

// Party identifies one side of a conversation: either a persistent user
// (mongo ObjectID hex) or an anonymous visitor (32-char public id)
type Party struct {
	Kind PartyKind `json:"kind"`
	ID   string    `json:"id"`
}

// UserParty builds a Party for a persistent user id
func UserParty(id string) Party {
	return Party{Kind: PartyUser, ID: id}
}

// AnonymousParty builds a Party for an anonymous visitor public id
func AnonymousParty(publicID string) Party {
	return Party{Kind: PartyAnonymous, ID: publicID}
}

// IsAnonymous reports whether the party is an anonymous visitor
func (p Party) IsAnonymous() bool {
	return p.Kind == PartyAnonymous
}

// Equal is the canonical identity comparison used everywhere after resolution
func (p Party) Equal(o Party) bool {
	return p.Kind == o.Kind && p.ID == o.ID
}

// IsZero reports whether the party is unset
func (p Party) IsZero() bool {
	return p.ID == ""
}

func (p Party) String() string {
	return p.ID
}

// IsPublicID reports whether s looks like an anonymous visitor public id
func IsPublicID(s string) bool {
	return publicIDPattern.MatchString(s)
}

// IsUserID reports whether s is a valid persistent user id
func IsUserID(s string) bool {
	_, err := primitive.ObjectIDFromHex(s)
	return err == nil
}

// ResolvedIdentity is the output of identity resolution for an inbound message
type ResolvedIdentity struct {
	Sender     Party
	SenderName string
	IsPublic   bool
	Receiver   Party
}
