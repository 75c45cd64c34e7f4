package models

import "go.mongodb.org/mongo-driver/bson/primitive"

// User roles recognized by the chat subsystem
const (
	RoleAdmin  = "admin"
	RoleWriter = "writer"
	RoleClient = "client"
)

// User holds the structure for the users collection in mongo
type User struct {
	ID        primitive.ObjectID `json:"_id" bson:"_id"`
	Name      string             `json:"name" bson:"name"`
	Email     string             `json:"email" bson:"email"`
	Password  string             `json:"-" bson:"password"`
	Role      string             `json:"role" bson:"role"`
	CreatedAt primitive.DateTime `json:"createdAt" bson:"createdAt"`
}

// IsAdmin reports whether the user holds the administrator role
func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
