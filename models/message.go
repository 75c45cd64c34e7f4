package models

import "go.mongodb.org/mongo-driver/bson/primitive"

// Message holds the structure for the messages collection in mongo
type Message struct {
	ID             primitive.ObjectID `json:"_id" bson:"_id"`
	Sender         string             `json:"sender" bson:"sender"`
	Receiver       string             `json:"receiver" bson:"receiver"`
	OrderID        string             `json:"orderId,omitempty" bson:"orderId,omitempty"`
	Text           string             `json:"text,omitempty" bson:"text,omitempty"`
	Attachment     *Attachment        `json:"attachment,omitempty" bson:"attachment,omitempty"`
	IsPublic       bool               `json:"isPublic" bson:"isPublic"`
	SenderName     string             `json:"senderName" bson:"senderName"`
	SenderIP       string             `json:"senderIP,omitempty" bson:"senderIP,omitempty"`
	GeoLocation    *GeoLocation       `json:"geoLocation,omitempty" bson:"geoLocation,omitempty"`
	ConversationID string             `json:"conversationId" bson:"conversationId"`
	IsRead         bool               `json:"isRead" bson:"isRead"`
	CreatedAt      primitive.DateTime `json:"createdAt" bson:"createdAt"`
}

// Attachment is an optional file reference attached to a message. The URL is
// pre-resolved by the uploader collaborator before the message is stored.
type Attachment struct {
	URL      string `json:"url" bson:"url"`
	FileName string `json:"fileName" bson:"fileName"`
}

// GeoLocation is best-effort request metadata captured at send time
type GeoLocation struct {
	Country string  `json:"country,omitempty" bson:"country,omitempty"`
	Region  string  `json:"region,omitempty" bson:"region,omitempty"`
	City    string  `json:"city,omitempty" bson:"city,omitempty"`
	Lat     float64 `json:"lat,omitempty" bson:"lat,omitempty"`
	Lon     float64 `json:"lon,omitempty" bson:"lon,omitempty"`
}

// SenderParty returns the sender as a resolved Party
func (m Message) SenderParty() Party {
	if m.IsPublic && IsPublicID(m.Sender) {
		return AnonymousParty(m.Sender)
	}
	return UserParty(m.Sender)
}

// ReceiverParty returns the receiver as a resolved Party
func (m Message) ReceiverParty() Party {
	if m.IsPublic && IsPublicID(m.Receiver) {
		return AnonymousParty(m.Receiver)
	}
	return UserParty(m.Receiver)
}
