package models

import "go.mongodb.org/mongo-driver/bson/primitive"

// NotificationTypeMessage is the notification type emitted for chat messages
const NotificationTypeMessage = "mensaje"

// Notification holds the structure for the notifications collection in mongo
type Notification struct {
	ID        primitive.ObjectID `json:"_id" bson:"_id"`
	User      string             `json:"user" bson:"user"`
	Type      string             `json:"type" bson:"type"`
	Message   string             `json:"message" bson:"message"`
	Data      NotificationData   `json:"data" bson:"data"`
	IsRead    bool               `json:"isRead" bson:"isRead"`
	CreatedAt primitive.DateTime `json:"createdAt" bson:"createdAt"`
}

// NotificationData carries the chat context a notification points back to
type NotificationData struct {
	OrderID  string `json:"orderId,omitempty" bson:"orderId,omitempty"`
	Sender   string `json:"sender" bson:"sender"`
	IsPublic bool   `json:"isPublic" bson:"isPublic"`
}
