package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/tesipedia/tesipedia-api/api"
	"github.com/tesipedia/tesipedia-api/config"
	"github.com/tesipedia/tesipedia-api/databases"
	"github.com/tesipedia/tesipedia-api/models"
)

// Notification push event names
const (
	EventNewNotification      = "newNotification"
	EventNotificationRead     = "notificationRead"
	EventAllNotificationsRead = "allNotificationsRead"
	EventNotificationDeleted  = "notificationDeleted"
)

// Notifier is the side-channel that records a notification for each accepted
// message. Dispatch is queued and best-effort: a failed notification never
// rolls back or fails the message send.
type Notifier struct {
	NDB databases.NotificationDatabase
	Hub *Hub

	queue chan models.Notification
}

// NewNotifier creates a notifier and starts its dispatch worker
func NewNotifier(ndb databases.NotificationDatabase, hub *Hub) *Notifier {
	n := &Notifier{
		NDB:   ndb,
		Hub:   hub,
		queue: make(chan models.Notification, 256),
	}
	go n.run()
	return n
}

// NotifyNewMessage enqueues a notification for the receiver of a stored
// message. Anonymous receivers are skipped; a full queue drops the
// notification rather than blocking the send path.
func (n *Notifier) NotifyNewMessage(msg models.Message, ident models.ResolvedIdentity) {
	if ident.Receiver.IsAnonymous() {
		return
	}
	notification := models.Notification{
		ID:      primitive.NewObjectID(),
		User:    ident.Receiver.ID,
		Type:    models.NotificationTypeMessage,
		Message: "New message from " + msg.SenderName,
		Data: models.NotificationData{
			OrderID:  msg.OrderID,
			Sender:   msg.Sender,
			IsPublic: msg.IsPublic,
		},
		CreatedAt: primitive.NewDateTimeFromTime(time.Now()),
	}
	select {
	case n.queue <- notification:
	default:
		zap.S().Warnw("notification queue full, dropping notification", "user", notification.User)
	}
}

func (n *Notifier) run() {
	for notification := range n.queue {
		ctx, cancel := api.WithQueryTimeout(context.Background())
		_, err := n.NDB.InsertOne(ctx, notification)
		cancel()
		if err != nil {
			zap.S().Warnw("failed to persist notification", "user", notification.User, "error", err)
			continue
		}
		if n.Hub != nil {
			n.Hub.Emit(NotificationRoom(notification.User), EventNewNotification, notification)
		}
	}
}

// Notification exported for testing purposes
type Notification struct {
	DB  databases.NotificationDatabase
	Hub *Hub
}

// GetNotificationsHandler returns the caller's notifications, newest first
func (n Notification) GetNotificationsHandler(w http.ResponseWriter, r *http.Request) {
	viewerID := api.UserIDFromRequest(r)
	opts := options.Find().SetSort(bson.M{"createdAt": -1})
	dbResp, err := n.DB.Find(r.Context(), bson.M{"user": viewerID}, opts)
	if err != nil {
		config.ErrorStatus("failed to get notifications", http.StatusNotFound, w, err)
		return
	}
	if len(dbResp) == 0 {
		dbResp = []models.Notification{}
	}
	b, err := json.Marshal(dbResp)
	if err != nil {
		config.ErrorStatus("failed to marshal response", http.StatusInternalServerError, w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write(b)
}

// MarkNotificationReadHandler marks one notification as read
func (n Notification) MarkNotificationReadHandler(w http.ResponseWriter, r *http.Request) {
	viewerID := api.UserIDFromRequest(r)
	oid, err := primitive.ObjectIDFromHex(mux.Vars(r)["id"])
	if err != nil {
		config.ErrorStatus("failed to get objectID from Hex", http.StatusBadRequest, w, err)
		return
	}

	res, err := n.DB.UpdateOne(r.Context(),
		bson.M{"_id": oid, "user": viewerID},
		bson.M{"$set": bson.M{"isRead": true}})
	if err != nil {
		config.ErrorStatus("failed to mark notification as read", http.StatusInternalServerError, w, err)
		return
	}
	if res.MatchedCount == 0 {
		config.ErrorStatus("notification not found", http.StatusNotFound, w, errNotFound("notification not found"))
		return
	}

	if n.Hub != nil {
		n.Hub.Emit(NotificationRoom(viewerID), EventNotificationRead, map[string]string{"notificationId": oid.Hex()})
	}

	b, _ := json.Marshal(map[string]string{"message": "Notification marked as read"})
	w.WriteHeader(http.StatusOK)
	w.Write(b)
}

// MarkAllNotificationsReadHandler marks every unread notification of the caller
func (n Notification) MarkAllNotificationsReadHandler(w http.ResponseWriter, r *http.Request) {
	viewerID := api.UserIDFromRequest(r)

	res, err := n.DB.UpdateMany(r.Context(),
		bson.M{"user": viewerID, "isRead": false},
		bson.M{"$set": bson.M{"isRead": true}})
	if err != nil {
		config.ErrorStatus("failed to mark notifications as read", http.StatusInternalServerError, w, err)
		return
	}

	if n.Hub != nil {
		n.Hub.Emit(NotificationRoom(viewerID), EventAllNotificationsRead, map[string]int64{"updated": res.ModifiedCount})
	}

	b, _ := json.Marshal(map[string]int64{"updated": res.ModifiedCount})
	w.WriteHeader(http.StatusOK)
	w.Write(b)
}

// DeleteNotificationHandler deletes one of the caller's notifications
func (n Notification) DeleteNotificationHandler(w http.ResponseWriter, r *http.Request) {
	viewerID := api.UserIDFromRequest(r)
	oid, err := primitive.ObjectIDFromHex(mux.Vars(r)["id"])
	if err != nil {
		config.ErrorStatus("failed to get objectID from Hex", http.StatusBadRequest, w, err)
		return
	}

	deleted, err := n.DB.DeleteOne(r.Context(), bson.M{"_id": oid, "user": viewerID})
	if err != nil {
		config.ErrorStatus("failed to delete notification", http.StatusInternalServerError, w, err)
		return
	}
	if deleted == 0 {
		config.ErrorStatus("notification not found", http.StatusNotFound, w, errNotFound("notification not found"))
		return
	}

	if n.Hub != nil {
		n.Hub.Emit(NotificationRoom(viewerID), EventNotificationDeleted, map[string]string{"notificationId": oid.Hex()})
	}

	b, _ := json.Marshal(map[string]string{"message": "Notification deleted successfully"})
	w.WriteHeader(http.StatusOK)
	w.Write(b)
}
