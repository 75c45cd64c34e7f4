package handlers

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/tesipedia/tesipedia-api/api"
	"github.com/tesipedia/tesipedia-api/api/handlers/conversations"
	"github.com/tesipedia/tesipedia-api/config"
	"github.com/tesipedia/tesipedia-api/databases"
	"github.com/tesipedia/tesipedia-api/models"
)

// Chat exported for testing purposes
type Chat struct {
	MDB         databases.MessageDatabase
	UDB         databases.UserDatabase
	Resolver    IdentityResolver
	Notifier    *Notifier
	Hub         *Hub
	Geo         GeoLocator
	Attachments AttachmentStore
	Limiter     api.RateLimiter

	DefaultAdminID string
}

// SendMessageRequest is the inbound payload shared by the REST send endpoint
// and the sendMessage socket event
type SendMessageRequest struct {
	Text           string             `json:"text"`
	Receiver       string             `json:"receiver"`
	OrderID        string             `json:"orderId"`
	PublicID       string             `json:"publicId"`
	Name           string             `json:"name"`
	ConversationID string             `json:"conversationId"`
	Attachment     *models.Attachment `json:"attachment"`
}

// CreatePublicIDHandler issues an opaque 32-hex id for an anonymous visitor
func (c Chat) CreatePublicIDHandler(w http.ResponseWriter, r *http.Request) {
	if c.Limiter != nil && !c.Limiter.Allow("public-id:"+clientIP(r)) {
		writeError(w, &apiError{status: http.StatusTooManyRequests, message: "too many requests"})
		return
	}
	publicID := strings.ReplaceAll(uuid.New().String(), "-", "")
	b, err := json.Marshal(map[string]string{"publicId": publicID})
	if err != nil {
		config.ErrorStatus("failed to marshal response", http.StatusInternalServerError, w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write(b)
}

// SendMessageHandler stores a new message and fans it out to the notification
// side-channel and the socket rooms. Works authenticated or with a public id.
func (c Chat) SendMessageHandler(w http.ResponseWriter, r *http.Request) {
	req, err := parseSendRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}

	viewerID := api.UserIDFromRequest(r)
	if viewerID == "" && c.Limiter != nil && !c.Limiter.Allow("public-send:"+req.PublicID) {
		writeError(w, &apiError{status: http.StatusTooManyRequests, message: "too many requests"})
		return
	}

	msg, err := c.send(r.Context(), viewerID, req, clientIP(r))
	if err != nil {
		writeError(w, err)
		return
	}

	b, err := json.Marshal(msg)
	if err != nil {
		config.ErrorStatus("failed to marshal response", http.StatusInternalServerError, w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
	w.Write(b)
}

// send is the write path shared by REST and the socket gateway: resolve
// identities, derive the conversation key, persist, then notify and broadcast.
// Notification and broadcast are best-effort side effects; only the store
// write can fail the send.
func (c *Chat) send(ctx context.Context, viewerID string, req SendMessageRequest, ip string) (*models.Message, error) {
	if strings.TrimSpace(req.Text) == "" && req.Attachment == nil {
		return nil, errBadRequest("text or attachment is required")
	}

	ident, err := c.Resolver.Resolve(ctx, ResolveInput{
		ViewerID: viewerID,
		PublicID: req.PublicID,
		Receiver: req.Receiver,
		OrderID:  req.OrderID,
		Name:     req.Name,
	})
	if err != nil {
		return nil, err
	}

	msg := models.Message{
		ID:             primitive.NewObjectID(),
		Sender:         ident.Sender.ID,
		Receiver:       ident.Receiver.ID,
		OrderID:        req.OrderID,
		Text:           strings.TrimSpace(req.Text),
		Attachment:     req.Attachment,
		IsPublic:       ident.IsPublic,
		SenderName:     ident.SenderName,
		SenderIP:       ip,
		ConversationID: conversations.Derive(req.ConversationID, ident),
		CreatedAt:      primitive.NewDateTimeFromTime(time.Now()),
	}
	if c.Geo != nil && ip != "" {
		// lookup failures are non-fatal and leave the field null
		msg.GeoLocation = c.Geo.Locate(ctx, ip)
	}

	if _, err := c.MDB.InsertOne(ctx, msg); err != nil {
		return nil, err
	}

	if c.Notifier != nil {
		c.Notifier.NotifyNewMessage(msg, ident)
	}
	c.broadcastNewMessage(msg)
	return &msg, nil
}

func (c *Chat) broadcastNewMessage(msg models.Message) {
	if c.Hub == nil {
		return
	}
	if msg.OrderID != "" {
		c.Hub.Emit(NewRoom(RoomOrder, msg.OrderID), EventNewMessage, msg)
		return
	}
	c.Hub.Emit(PersonalRoom(msg.SenderParty()), EventNewMessage, msg)
	c.Hub.Emit(PersonalRoom(msg.ReceiverParty()), EventNewMessage, msg)
}

// markMessageRead flips the read flag after checking that the caller is the
// stored receiver, and relays the read receipt to the sender's room. Marking
// an already-read message again is a no-op, not an error.
func (c *Chat) markMessageRead(ctx context.Context, viewer models.Party, messageID string) (*models.Message, error) {
	oid, err := primitive.ObjectIDFromHex(messageID)
	if err != nil {
		return nil, errBadRequest("malformed message id")
	}
	msg, err := c.MDB.FindOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return nil, errNotFound("message not found")
	}
	if !msg.ReceiverParty().Equal(viewer) {
		return nil, errForbidden("only the receiver may mark a message as read")
	}
	if !msg.IsRead {
		if _, err := c.MDB.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{"$set": bson.M{"isRead": true}}); err != nil {
			return nil, err
		}
		msg.IsRead = true
	}
	if c.Hub != nil {
		c.Hub.Emit(PersonalRoom(msg.SenderParty()), EventMessageRead, map[string]interface{}{
			"messageId": msg.ID.Hex(),
			"reader":    viewer.ID,
		})
	}
	return msg, nil
}

// MarkMessageReadHandler acknowledges a single message
func (c Chat) MarkMessageReadHandler(w http.ResponseWriter, r *http.Request) {
	viewerID := api.UserIDFromRequest(r)
	msg, err := c.markMessageRead(r.Context(), models.UserParty(viewerID), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	b, err := json.Marshal(msg)
	if err != nil {
		config.ErrorStatus("failed to marshal response", http.StatusInternalServerError, w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write(b)
}

// MarkOrderReadHandler acknowledges every unread message addressed to the
// caller within one order
func (c Chat) MarkOrderReadHandler(w http.ResponseWriter, r *http.Request) {
	orderID := mux.Vars(r)["orderId"]
	viewerID := api.UserIDFromRequest(r)

	res, err := c.MDB.UpdateMany(r.Context(),
		bson.M{"orderId": orderID, "receiver": viewerID, "isRead": false},
		bson.M{"$set": bson.M{"isRead": true}})
	if err != nil {
		config.ErrorStatus("failed to mark order messages as read", http.StatusInternalServerError, w, err)
		return
	}

	if c.Hub != nil {
		c.Hub.Emit(NewRoom(RoomOrder, orderID), EventMessageRead, map[string]interface{}{
			"orderId": orderID,
			"reader":  viewerID,
		})
	}

	b, err := json.Marshal(map[string]int64{"updated": res.ModifiedCount})
	if err != nil {
		config.ErrorStatus("failed to marshal response", http.StatusInternalServerError, w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write(b)
}

// PublicConversationHandler returns a public visitor's thread
func (c Chat) PublicConversationHandler(w http.ResponseWriter, r *http.Request) {
	publicID := mux.Vars(r)["publicId"]
	if !models.IsPublicID(publicID) {
		config.ErrorStatus("invalid public id", http.StatusBadRequest, w, errBadRequest("invalid public id"))
		return
	}
	c.writeMessages(w, r, bson.M{
		"isPublic": true,
		"$or": []bson.M{
			{"conversationId": publicID},
			{"sender": publicID},
			{"receiver": publicID},
		},
	})
}

// PublicOrderMessagesHandler returns the public messages of an order
func (c Chat) PublicOrderMessagesHandler(w http.ResponseWriter, r *http.Request) {
	orderID := mux.Vars(r)["orderId"]
	c.writeMessages(w, r, bson.M{"isPublic": true, "orderId": orderID})
}

// OrderMessagesHandler returns the messages of an order. When the path
// segment is actually a public id the public thread is returned instead,
// mirroring how order links are shared with guests.
func (c Chat) OrderMessagesHandler(w http.ResponseWriter, r *http.Request) {
	segment := mux.Vars(r)["orderId"]
	if models.IsPublicID(segment) {
		c.writeMessages(w, r, bson.M{
			"isPublic": true,
			"$or": []bson.M{
				{"conversationId": segment},
				{"sender": segment},
				{"receiver": segment},
			},
		})
		return
	}
	c.writeMessages(w, r, bson.M{"orderId": segment})
}

func (c Chat) writeMessages(w http.ResponseWriter, r *http.Request, filter bson.M) {
	opts := options.Find().SetSort(bson.M{"createdAt": 1})
	dbResp, err := c.MDB.Find(r.Context(), filter, opts)
	if err != nil {
		config.ErrorStatus("failed to get messages", http.StatusNotFound, w, err)
		return
	}
	// Because the frontend requires that the data elements exist, if
	// len == 0 then we will just return an empty data object
	if len(dbResp) == 0 {
		dbResp = []models.Message{}
	}
	b, err := json.Marshal(dbResp)
	if err != nil {
		config.ErrorStatus("failed to marshal response", http.StatusInternalServerError, w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write(b)
}

// ConversationsHandler lists the caller's conversations, most recent first.
// Admins additionally see every public thread because they operate the public
// channel.
func (c Chat) ConversationsHandler(w http.ResponseWriter, r *http.Request) {
	viewerID := api.UserIDFromRequest(r)
	viewer, err := c.Resolver.lookupUser(r.Context(), viewerID)
	if err != nil {
		writeError(w, err)
		return
	}

	involves := []bson.M{{"sender": viewerID}, {"receiver": viewerID}}
	filter := bson.M{"$or": involves}
	if viewer.IsAdmin() {
		filter = bson.M{"$or": append(involves, bson.M{"isPublic": true})}
	}
	c.writeConversations(w, r, models.UserParty(viewerID), filter)
}

// AuthenticatedConversationsHandler lists only user-to-user conversations
func (c Chat) AuthenticatedConversationsHandler(w http.ResponseWriter, r *http.Request) {
	viewerID := api.UserIDFromRequest(r)
	filter := bson.M{
		"isPublic": false,
		"$or":      []bson.M{{"sender": viewerID}, {"receiver": viewerID}},
	}
	c.writeConversations(w, r, models.UserParty(viewerID), filter)
}

// PublicConversationsHandler lists public visitor threads. Admins see all of
// them, other users only the ones they took part in.
func (c Chat) PublicConversationsHandler(w http.ResponseWriter, r *http.Request) {
	viewerID := api.UserIDFromRequest(r)
	viewer, err := c.Resolver.lookupUser(r.Context(), viewerID)
	if err != nil {
		writeError(w, err)
		return
	}

	filter := bson.M{"isPublic": true}
	if !viewer.IsAdmin() {
		filter["$or"] = []bson.M{{"sender": viewerID}, {"receiver": viewerID}}
	}
	c.writeConversations(w, r, models.UserParty(viewerID), filter)
}

func (c Chat) writeConversations(w http.ResponseWriter, r *http.Request, viewer models.Party, filter bson.M) {
	msgs, err := c.MDB.Find(r.Context(), filter)
	if err != nil {
		config.ErrorStatus("failed to get messages", http.StatusNotFound, w, err)
		return
	}

	summaries := conversations.Aggregate(viewer, msgs, c.nameResolver(r.Context()))
	if len(summaries) == 0 {
		summaries = []models.Conversation{}
	}
	b, err := json.Marshal(summaries)
	if err != nil {
		config.ErrorStatus("failed to marshal response", http.StatusInternalServerError, w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write(b)
}

// nameResolver memoizes user display name lookups for one aggregation pass
func (c Chat) nameResolver(ctx context.Context) conversations.NameResolver {
	cache := map[string]string{}
	return func(userID string) string {
		if name, ok := cache[userID]; ok {
			return name
		}
		name := ""
		if oid, err := primitive.ObjectIDFromHex(userID); err == nil {
			if user, err := c.UDB.FindOne(ctx, bson.M{"_id": oid}); err == nil {
				name = user.Name
			}
		}
		cache[userID] = name
		return name
	}
}

// MessagesHandler returns all messages, paginated (admin only)
func (c Chat) MessagesHandler(w http.ResponseWriter, r *http.Request) {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		limit = 50
		zap.S().Warnf("limit not set, using default of %v", limit)
	}
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}

	dbResp, err := c.MDB.FindPaginated(r.Context(), bson.M{}, limit, page)
	if err != nil {
		config.ErrorStatus("failed to get messages", http.StatusNotFound, w, err)
		return
	}
	if len(dbResp) == 0 {
		dbResp = []models.Message{}
	}
	b, err := json.Marshal(dbResp)
	if err != nil {
		config.ErrorStatus("failed to marshal response", http.StatusInternalServerError, w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write(b)
}

// SearchMessagesHandler free-text searches message text and attachment file
// names (admin only)
func (c Chat) SearchMessagesHandler(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("query")
	if query == "" {
		config.ErrorStatus("query is required", http.StatusBadRequest, w, errBadRequest("query is required"))
		return
	}

	regex := bson.M{"$regex": query, "$options": "i"}
	c.writeMessages(w, r, bson.M{"$or": []bson.M{
		{"text": regex},
		{"attachment.fileName": regex},
	}})
}

// MessageByIDHandler returns a message by ID (admin only)
func (c Chat) MessageByIDHandler(w http.ResponseWriter, r *http.Request) {
	msgID := mux.Vars(r)["id"]

	zap.S().Debugf("message id: %v", msgID)

	oid, err := primitive.ObjectIDFromHex(msgID)
	if err != nil {
		config.ErrorStatus("failed to get objectID from Hex", http.StatusBadRequest, w, err)
		return
	}
	dbResp, err := c.MDB.FindOne(r.Context(), bson.M{"_id": oid})
	if err != nil {
		config.ErrorStatus("failed to get message by ID", http.StatusNotFound, w, err)
		return
	}
	b, err := json.Marshal(dbResp)
	if err != nil {
		config.ErrorStatus("failed to marshal response", http.StatusInternalServerError, w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write(b)
}

// UpdateMessageHandler edits a message's text (admin only)
func (c Chat) UpdateMessageHandler(w http.ResponseWriter, r *http.Request) {
	msgID := mux.Vars(r)["id"]
	oid, err := primitive.ObjectIDFromHex(msgID)
	if err != nil {
		config.ErrorStatus("failed to get objectID from Hex", http.StatusBadRequest, w, err)
		return
	}

	var body struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		config.ErrorStatus("failed to decode request body", http.StatusBadRequest, w, err)
		return
	}

	res, err := c.MDB.UpdateOne(r.Context(), bson.M{"_id": oid}, bson.M{"$set": bson.M{"text": body.Text}})
	if err != nil {
		config.ErrorStatus("failed to update message", http.StatusInternalServerError, w, err)
		return
	}
	if res.MatchedCount == 0 {
		config.ErrorStatus("message not found", http.StatusNotFound, w, errNotFound("message not found"))
		return
	}

	b, _ := json.Marshal(map[string]string{"message": "Message updated successfully"})
	w.WriteHeader(http.StatusOK)
	w.Write(b)
}

// DeleteMessageHandler deletes a message and asks the uploader collaborator
// to clean up its attachment (admin only)
func (c Chat) DeleteMessageHandler(w http.ResponseWriter, r *http.Request) {
	msgID := mux.Vars(r)["id"]
	oid, err := primitive.ObjectIDFromHex(msgID)
	if err != nil {
		config.ErrorStatus("failed to get objectID from Hex", http.StatusBadRequest, w, err)
		return
	}

	msg, err := c.MDB.FindOne(r.Context(), bson.M{"_id": oid})
	if err != nil {
		config.ErrorStatus("failed to get message by ID", http.StatusNotFound, w, err)
		return
	}

	if _, err := c.MDB.DeleteOne(r.Context(), bson.M{"_id": oid}); err != nil {
		config.ErrorStatus("failed to delete message", http.StatusInternalServerError, w, err)
		return
	}

	if msg.Attachment != nil && c.Attachments != nil {
		if err := c.Attachments.Destroy(r.Context(), msg.Attachment.URL); err != nil {
			zap.S().Warnw("failed to destroy attachment", "url", msg.Attachment.URL, "error", err)
		}
	}

	b, _ := json.Marshal(map[string]string{"message": "Message deleted successfully"})
	w.WriteHeader(http.StatusOK)
	w.Write(b)
}

func parseSendRequest(r *http.Request) (SendMessageRequest, error) {
	var req SendMessageRequest
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			return req, errBadRequest("failed to parse multipart form")
		}
		req = SendMessageRequest{
			Text:           r.FormValue("text"),
			Receiver:       r.FormValue("receiver"),
			OrderID:        r.FormValue("orderId"),
			PublicID:       r.FormValue("publicId"),
			Name:           r.FormValue("name"),
			ConversationID: r.FormValue("conversationId"),
		}
		if url := r.FormValue("attachmentUrl"); url != "" {
			req.Attachment = &models.Attachment{URL: url, FileName: r.FormValue("attachmentName")}
		}
		return req, nil
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return req, errBadRequest("failed to decode request body")
	}
	return req, nil
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		parts := strings.Split(fwd, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
