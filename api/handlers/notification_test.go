package handlers_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/tesipedia/tesipedia-api/api"
	"github.com/tesipedia/tesipedia-api/api/handlers"
	"github.com/tesipedia/tesipedia-api/databases"
	mocksdb "github.com/tesipedia/tesipedia-api/databases/mocks"
	"github.com/tesipedia/tesipedia-api/models"
)

func TestNotification_GetNotificationsHandler(t *testing.T) {
	stored := []models.Notification{
		{ID: primitive.NewObjectID(), User: defaultAdminID, Type: models.NotificationTypeMessage, Message: "New message from Redactor"},
	}

	db := &mocksdb.DatabaseHelper{}
	conn := &mocksdb.CollectionHelper{}
	cursor := &mocksdb.CursorHelper{}
	cursor.On("All", mock.Anything, mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		arg := args.Get(1).(*[]models.Notification)
		*arg = stored
	})
	cursor.On("Close", mock.Anything).Return(nil)
	conn.On("Find", mock.Anything, mock.Anything, mock.Anything).Return(cursor, nil)
	db.On("Collection", "notifications").Return(conn)

	n := handlers.Notification{DB: databases.NewNotificationDatabase(db)}

	req, err := http.NewRequest("GET", "/api/v1/notifications", nil)
	if err != nil {
		t.Fatal(err)
	}
	req = req.WithContext(api.WithUserID(req.Context(), defaultAdminID))

	rr := httptest.NewRecorder()
	http.HandlerFunc(n.GetNotificationsHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)

	var got []models.Notification
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	assert.Len(t, got, 1)
	assert.Equal(t, "New message from Redactor", got[0].Message)
}

func TestNotification_MarkNotificationReadHandler_ScopedToCaller(t *testing.T) {
	notifID := primitive.NewObjectID()

	db := &mocksdb.DatabaseHelper{}
	conn := &mocksdb.CollectionHelper{}
	// filter includes the caller id, so another user's notification matches nothing
	conn.On("UpdateOne", mock.Anything, mock.Anything, mock.Anything).
		Return(&mongo.UpdateResult{MatchedCount: 0}, nil)
	db.On("Collection", "notifications").Return(conn)

	n := handlers.Notification{DB: databases.NewNotificationDatabase(db)}

	req, err := http.NewRequest("PUT", "/api/v1/notifications/"+notifID.Hex()+"/read", nil)
	if err != nil {
		t.Fatal(err)
	}
	req = mux.SetURLVars(req, map[string]string{"id": notifID.Hex()})
	req = req.WithContext(api.WithUserID(req.Context(), writerID))

	rr := httptest.NewRecorder()
	http.HandlerFunc(n.MarkNotificationReadHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestNotification_MarkAllNotificationsReadHandler(t *testing.T) {
	db := &mocksdb.DatabaseHelper{}
	conn := &mocksdb.CollectionHelper{}
	conn.On("UpdateMany", mock.Anything, mock.Anything, mock.Anything).
		Return(&mongo.UpdateResult{MatchedCount: 3, ModifiedCount: 3}, nil)
	db.On("Collection", "notifications").Return(conn)

	n := handlers.Notification{DB: databases.NewNotificationDatabase(db)}

	req, err := http.NewRequest("PUT", "/api/v1/notifications/mark-all-read", nil)
	if err != nil {
		t.Fatal(err)
	}
	req = req.WithContext(api.WithUserID(req.Context(), writerID))

	rr := httptest.NewRecorder()
	http.HandlerFunc(n.MarkAllNotificationsReadHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"updated": 3}`, rr.Body.String())
}

func TestNotification_DeleteNotificationHandler_BadHex(t *testing.T) {
	req, err := http.NewRequest("DELETE", "/api/v1/notifications/1234", nil)
	if err != nil {
		t.Fatal(err)
	}
	req = mux.SetURLVars(req, map[string]string{"id": "1234"})

	n := handlers.Notification{}

	rr := httptest.NewRecorder()
	http.HandlerFunc(n.DeleteNotificationHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestNotifier_SkipsAnonymousReceivers(t *testing.T) {
	// no NDB expectations: an anonymous receiver must never reach the store
	db := &mocksdb.DatabaseHelper{}
	notifier := handlers.NewNotifier(databases.NewNotificationDatabase(db), nil)

	msg := models.Message{
		ID:         primitive.NewObjectID(),
		Sender:     defaultAdminID,
		Receiver:   visitorID,
		IsPublic:   true,
		SenderName: "Soporte",
	}
	ident := models.ResolvedIdentity{
		Sender:   models.UserParty(defaultAdminID),
		IsPublic: true,
		Receiver: models.AnonymousParty(visitorID),
	}

	notifier.NotifyNewMessage(msg, ident)

	db.AssertNotCalled(t, "Collection", "notifications")
}
