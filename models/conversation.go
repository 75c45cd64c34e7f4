package models

import "go.mongodb.org/mongo-driver/bson/primitive"

// Counterpart is the other party of a conversation relative to the viewer
type Counterpart struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Conversation is the derived per-thread summary returned by the conversation
// listing endpoints. It is rebuilt from the messages collection on every query
// and never persisted.
type Conversation struct {
	ConversationID  string             `json:"conversationId"`
	Counterpart     Counterpart        `json:"counterpart"`
	IsPublic        bool               `json:"isPublic"`
	LastMessage     string             `json:"lastMessage"`
	LastMessageDate primitive.DateTime `json:"lastMessageDate"`
	UnreadCount     int                `json:"unreadCount"`
	Messages        []Message          `json:"messages"`
}
