package handlers_test

import (
	"bytes"
	"context"
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

type fakeAttachments struct {
	destroyed []string
}

func (f *fakeAttachments) Destroy(_ context.Context, url string) error {
	f.destroyed = append(f.destroyed, url)
	return nil
}

func TestChat_SendMessageHandler_AnonymousVisitor(t *testing.T) {
	body, _ := json.Marshal(handlers.SendMessageRequest{
		Text:     "hola, necesito una cotización",
		PublicID: visitorID,
	})
	req, err := http.NewRequest("POST", "/api/v1/chat/send", bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")

	db := &mocksdb.DatabaseHelper{}
	conn := &mocksdb.CollectionHelper{}
	conn.On("InsertOne", mock.Anything, mock.Anything).Return(nil, nil)
	db.On("Collection", "messages").Return(conn)

	c := handlers.Chat{
		MDB:            databases.NewMessageDatabase(db),
		Resolver:       handlers.IdentityResolver{DefaultAdminID: defaultAdminID},
		DefaultAdminID: defaultAdminID,
	}

	rr := httptest.NewRecorder()
	http.HandlerFunc(c.SendMessageHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusCreated, rr.Code)

	var got models.Message
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, visitorID, got.Sender)
	assert.Equal(t, defaultAdminID, got.Receiver)
	assert.Equal(t, visitorID, got.ConversationID)
	assert.True(t, got.IsPublic)
	assert.Equal(t, handlers.AnonymousName, got.SenderName)
	assert.False(t, got.IsRead)
}

func TestChat_SendMessageHandler_RequiresTextOrAttachment(t *testing.T) {
	body, _ := json.Marshal(handlers.SendMessageRequest{PublicID: visitorID, Text: "   "})
	req, err := http.NewRequest("POST", "/api/v1/chat/send", bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")

	c := handlers.Chat{Resolver: handlers.IdentityResolver{DefaultAdminID: defaultAdminID}}

	rr := httptest.NewRecorder()
	http.HandlerFunc(c.SendMessageHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)

	expected := models.ErrorMessageResponse{Response: models.MessageError{Message: "text or attachment is required", Error: "text or attachment is required"}}
	b, _ := json.Marshal(expected)
	assert.Equal(t, string(b), rr.Body.String())
}

func TestChat_MarkMessageReadHandler_ReceiverOnly(t *testing.T) {
	msgID := primitive.NewObjectID()
	stored := models.Message{
		ID:       msgID,
		Sender:   writerID,
		Receiver: clientID,
		Text:     "para otro usuario",
	}

	db := &mocksdb.DatabaseHelper{}
	conn := &mocksdb.CollectionHelper{}
	srh := &mocksdb.SingleResultHelper{}
	srh.On("Decode", mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		arg := args.Get(0).(**models.Message)
		**arg = stored
	})
	conn.On("FindOne", mock.Anything, mock.Anything).Return(srh)
	db.On("Collection", "messages").Return(conn)

	c := handlers.Chat{MDB: databases.NewMessageDatabase(db)}

	req, err := http.NewRequest("POST", "/api/v1/chat/"+msgID.Hex()+"/read", nil)
	if err != nil {
		t.Fatal(err)
	}
	req = mux.SetURLVars(req, map[string]string{"id": msgID.Hex()})
	req = req.WithContext(api.WithUserID(req.Context(), defaultAdminID))

	rr := httptest.NewRecorder()
	http.HandlerFunc(c.MarkMessageReadHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestChat_MarkMessageReadHandler_FlipsFlag(t *testing.T) {
	msgID := primitive.NewObjectID()
	stored := models.Message{
		ID:       msgID,
		Sender:   writerID,
		Receiver: defaultAdminID,
		Text:     "sin leer",
	}

	db := &mocksdb.DatabaseHelper{}
	conn := &mocksdb.CollectionHelper{}
	srh := &mocksdb.SingleResultHelper{}
	srh.On("Decode", mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		arg := args.Get(0).(**models.Message)
		**arg = stored
	})
	conn.On("FindOne", mock.Anything, mock.Anything).Return(srh)
	conn.On("UpdateOne", mock.Anything, mock.Anything, mock.Anything).
		Return(&mongo.UpdateResult{MatchedCount: 1, ModifiedCount: 1}, nil)
	db.On("Collection", "messages").Return(conn)

	c := handlers.Chat{MDB: databases.NewMessageDatabase(db)}

	req, err := http.NewRequest("POST", "/api/v1/chat/"+msgID.Hex()+"/read", nil)
	if err != nil {
		t.Fatal(err)
	}
	req = mux.SetURLVars(req, map[string]string{"id": msgID.Hex()})
	req = req.WithContext(api.WithUserID(req.Context(), defaultAdminID))

	rr := httptest.NewRecorder()
	http.HandlerFunc(c.MarkMessageReadHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)

	var got models.Message
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	assert.True(t, got.IsRead)
	conn.AssertCalled(t, "UpdateOne", mock.Anything, mock.Anything, mock.Anything)
}

func TestChat_MarkMessageReadHandler_AlreadyReadIsNoOp(t *testing.T) {
	msgID := primitive.NewObjectID()
	stored := models.Message{
		ID:       msgID,
		Sender:   writerID,
		Receiver: defaultAdminID,
		Text:     "ya leído",
		IsRead:   true,
	}

	db := &mocksdb.DatabaseHelper{}
	conn := &mocksdb.CollectionHelper{}
	srh := &mocksdb.SingleResultHelper{}
	srh.On("Decode", mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		arg := args.Get(0).(**models.Message)
		**arg = stored
	})
	conn.On("FindOne", mock.Anything, mock.Anything).Return(srh)
	// no UpdateOne expectation: a second acknowledge must not touch the store
	db.On("Collection", "messages").Return(conn)

	c := handlers.Chat{MDB: databases.NewMessageDatabase(db)}

	req, err := http.NewRequest("POST", "/api/v1/chat/"+msgID.Hex()+"/read", nil)
	if err != nil {
		t.Fatal(err)
	}
	req = mux.SetURLVars(req, map[string]string{"id": msgID.Hex()})
	req = req.WithContext(api.WithUserID(req.Context(), defaultAdminID))

	rr := httptest.NewRecorder()
	http.HandlerFunc(c.MarkMessageReadHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	conn.AssertNotCalled(t, "UpdateOne", mock.Anything, mock.Anything, mock.Anything)
}

func TestChat_PublicConversationHandler_InvalidPublicID(t *testing.T) {
	req, err := http.NewRequest("GET", "/api/v1/chat/public/conversation/1234", nil)
	if err != nil {
		t.Fatal(err)
	}
	req = mux.SetURLVars(req, map[string]string{"publicId": "1234"})

	c := handlers.Chat{}

	rr := httptest.NewRecorder()
	http.HandlerFunc(c.PublicConversationHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestChat_OrderMessagesHandler_ChronologicalBody(t *testing.T) {
	stored := []models.Message{
		{ID: primitive.NewObjectID(), Sender: writerID, Receiver: clientID, OrderID: orderID, Text: "primero"},
		{ID: primitive.NewObjectID(), Sender: clientID, Receiver: writerID, OrderID: orderID, Text: "segundo"},
	}

	db := &mocksdb.DatabaseHelper{}
	conn := &mocksdb.CollectionHelper{}
	cursor := &mocksdb.CursorHelper{}
	cursor.On("All", mock.Anything, mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		arg := args.Get(1).(*[]models.Message)
		*arg = stored
	})
	cursor.On("Close", mock.Anything).Return(nil)
	conn.On("Find", mock.Anything, mock.Anything, mock.Anything).Return(cursor, nil)
	db.On("Collection", "messages").Return(conn)

	c := handlers.Chat{MDB: databases.NewMessageDatabase(db)}

	req, err := http.NewRequest("GET", "/api/v1/chat/order/"+orderID, nil)
	if err != nil {
		t.Fatal(err)
	}
	req = mux.SetURLVars(req, map[string]string{"orderId": orderID})

	rr := httptest.NewRecorder()
	http.HandlerFunc(c.OrderMessagesHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)

	var got []models.Message
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	assert.Len(t, got, 2)
	assert.Equal(t, "primero", got[0].Text)
}

func TestChat_OrderMessagesHandler_EmptyResultIsEmptyArray(t *testing.T) {
	db := &mocksdb.DatabaseHelper{}
	conn := &mocksdb.CollectionHelper{}
	cursor := &mocksdb.CursorHelper{}
	cursor.On("All", mock.Anything, mock.Anything).Return(nil)
	cursor.On("Close", mock.Anything).Return(nil)
	conn.On("Find", mock.Anything, mock.Anything, mock.Anything).Return(cursor, nil)
	db.On("Collection", "messages").Return(conn)

	c := handlers.Chat{MDB: databases.NewMessageDatabase(db)}

	req, err := http.NewRequest("GET", "/api/v1/chat/order/"+orderID, nil)
	if err != nil {
		t.Fatal(err)
	}
	req = mux.SetURLVars(req, map[string]string{"orderId": orderID})

	rr := httptest.NewRecorder()
	http.HandlerFunc(c.OrderMessagesHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "[]", rr.Body.String())
}

func TestChat_ConversationsHandler_AdminSeesPublicThreads(t *testing.T) {
	admin := models.User{ID: mustObjectID(t, defaultAdminID), Name: "Soporte", Role: models.RoleAdmin}
	stored := []models.Message{
		{ID: primitive.NewObjectID(), Sender: visitorID, Receiver: defaultAdminID, IsPublic: true,
			SenderName: "Visitante", ConversationID: visitorID, CreatedAt: 2},
		{ID: primitive.NewObjectID(), Sender: writerID, Receiver: defaultAdminID,
			ConversationID: defaultAdminID + "_" + writerID, CreatedAt: 1},
	}

	db := &mocksdb.DatabaseHelper{}
	userConn := &mocksdb.CollectionHelper{}
	msgConn := &mocksdb.CollectionHelper{}
	srh := &mocksdb.SingleResultHelper{}
	cursor := &mocksdb.CursorHelper{}

	srh.On("Decode", mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		arg := args.Get(0).(**models.User)
		**arg = admin
	})
	userConn.On("FindOne", mock.Anything, mock.Anything).Return(srh)
	cursor.On("All", mock.Anything, mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		arg := args.Get(1).(*[]models.Message)
		*arg = stored
	})
	cursor.On("Close", mock.Anything).Return(nil)
	msgConn.On("Find", mock.Anything, mock.Anything).Return(cursor, nil)
	db.On("Collection", "users").Return(userConn)
	db.On("Collection", "messages").Return(msgConn)

	c := handlers.Chat{
		MDB:      databases.NewMessageDatabase(db),
		UDB:      databases.NewUserDatabase(db),
		Resolver: handlers.IdentityResolver{UDB: databases.NewUserDatabase(db), DefaultAdminID: defaultAdminID},
	}

	req, err := http.NewRequest("GET", "/api/v1/chat/conversations", nil)
	if err != nil {
		t.Fatal(err)
	}
	req = req.WithContext(api.WithUserID(req.Context(), defaultAdminID))

	rr := httptest.NewRecorder()
	http.HandlerFunc(c.ConversationsHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)

	var got []models.Conversation
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	assert.Len(t, got, 2)
	// most recent activity first
	assert.Equal(t, visitorID, got[0].ConversationID)
	assert.True(t, got[0].IsPublic)
	assert.Equal(t, 1, got[0].UnreadCount)
}

func TestChat_SearchMessagesHandler_RequiresQuery(t *testing.T) {
	req, err := http.NewRequest("GET", "/api/v1/chat/search", nil)
	if err != nil {
		t.Fatal(err)
	}

	c := handlers.Chat{}

	rr := httptest.NewRecorder()
	http.HandlerFunc(c.SearchMessagesHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestChat_MessageByIDHandler_BadHex(t *testing.T) {
	req, err := http.NewRequest("GET", "/api/v1/chat/1234", nil)
	if err != nil {
		t.Fatal(err)
	}
	req = mux.SetURLVars(req, map[string]string{"id": "1234"})

	c := handlers.Chat{}

	rr := httptest.NewRecorder()
	http.HandlerFunc(c.MessageByIDHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)

	expected := models.ErrorMessageResponse{Response: models.MessageError{Message: "failed to get objectID from Hex", Error: "the provided hex string is not a valid ObjectID"}}
	b, _ := json.Marshal(expected)
	assert.Equal(t, string(b), rr.Body.String())
}

func TestChat_UpdateMessageHandler_NotFound(t *testing.T) {
	msgID := primitive.NewObjectID()

	db := &mocksdb.DatabaseHelper{}
	conn := &mocksdb.CollectionHelper{}
	conn.On("UpdateOne", mock.Anything, mock.Anything, mock.Anything).
		Return(&mongo.UpdateResult{MatchedCount: 0}, nil)
	db.On("Collection", "messages").Return(conn)

	c := handlers.Chat{MDB: databases.NewMessageDatabase(db)}

	body := bytes.NewReader([]byte(`{"text":"editado"}`))
	req, err := http.NewRequest("PUT", "/api/v1/chat/"+msgID.Hex(), body)
	if err != nil {
		t.Fatal(err)
	}
	req = mux.SetURLVars(req, map[string]string{"id": msgID.Hex()})

	rr := httptest.NewRecorder()
	http.HandlerFunc(c.UpdateMessageHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestChat_DeleteMessageHandler_DestroysAttachment(t *testing.T) {
	msgID := primitive.NewObjectID()
	stored := models.Message{
		ID:         msgID,
		Sender:     writerID,
		Receiver:   defaultAdminID,
		Attachment: &models.Attachment{URL: "https://cdn.example.com/borrador.pdf", FileName: "borrador.pdf"},
	}

	db := &mocksdb.DatabaseHelper{}
	conn := &mocksdb.CollectionHelper{}
	srh := &mocksdb.SingleResultHelper{}
	srh.On("Decode", mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		arg := args.Get(0).(**models.Message)
		**arg = stored
	})
	conn.On("FindOne", mock.Anything, mock.Anything).Return(srh)
	conn.On("DeleteOne", mock.Anything, mock.Anything).Return(int64(1), nil)
	db.On("Collection", "messages").Return(conn)

	attachments := &fakeAttachments{}
	c := handlers.Chat{MDB: databases.NewMessageDatabase(db), Attachments: attachments}

	req, err := http.NewRequest("DELETE", "/api/v1/chat/"+msgID.Hex(), nil)
	if err != nil {
		t.Fatal(err)
	}
	req = mux.SetURLVars(req, map[string]string{"id": msgID.Hex()})

	rr := httptest.NewRecorder()
	http.HandlerFunc(c.DeleteMessageHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []string{"https://cdn.example.com/borrador.pdf"}, attachments.destroyed)
}
