package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/tesipedia/tesipedia-api/api"
	"github.com/tesipedia/tesipedia-api/api/scheduler"
	"github.com/tesipedia/tesipedia-api/config"
	"github.com/tesipedia/tesipedia-api/databases"
	"github.com/tesipedia/tesipedia-api/models"
)

// App stores the router and db connection, so it can be reused
type App struct {
	Router    *mux.Router
	Config    config.Config
	Scheduler *scheduler.Scheduler
	dbHelper  databases.DatabaseHelper
}

// New creates a new mux router and all the routes
func (a *App) New() *mux.Router {
	// setup go-guardian for middleware
	m := api.MiddlewareDB{DB: databases.NewUserDatabase(a.dbHelper)}
	m.SetupGoGuardian()

	r := mux.NewRouter()

	mdb := databases.NewMessageDatabase(a.dbHelper)
	udb := databases.NewUserDatabase(a.dbHelper)
	odb := databases.NewOrderDatabase(a.dbHelper)
	ndb := databases.NewNotificationDatabase(a.dbHelper)

	hub := NewHub()
	notifier := NewNotifier(ndb, hub)

	attachments, err := NewCloudinaryHandler()
	if err != nil {
		// attachment destroy becomes a no-op, everything else still works
		zap.S().Warnw("cloudinary disabled", "error", err)
	}

	chat := Chat{
		MDB:      mdb,
		UDB:      udb,
		Resolver: IdentityResolver{UDB: udb, ODB: odb, DefaultAdminID: a.Config.DefaultAdminID},
		Notifier: notifier,
		Hub:      hub,
		Geo:      NewGeoLocator(),
		Limiter:  api.NewSlidingWindowLimiter(20, time.Hour),

		DefaultAdminID: a.Config.DefaultAdminID,
	}
	if attachments != nil {
		chat.Attachments = attachments
	}
	notification := Notification{DB: ndb, Hub: hub}
	authHandler := Auth{UDB: udb}
	gateway := &Gateway{Hub: hub, Chat: &chat, Authenticate: api.AuthenticateSocket}

	// healthchex
	r.HandleFunc("/health", healthCheckHandler)

	apiCreate := r.PathPrefix("/api/v1").Subrouter()
	apiCreate.Use(api.TimeoutMiddleware(30 * time.Second))

	apiCreate.Handle("/auth/token", http.HandlerFunc(m.CreateToken)).Methods("POST")
	apiCreate.Handle("/auth/logout", api.Middleware(http.HandlerFunc(api.RevokeToken))).Methods("DELETE")
	apiCreate.Handle("/auth/admin/login", http.HandlerFunc(authHandler.AdminLoginHandler)).Methods("POST")

	apiCreate.Handle("/chat/public-id", http.HandlerFunc(chat.CreatePublicIDHandler)).Methods("POST")
	apiCreate.Handle("/chat/send", api.OptionalMiddleware(http.HandlerFunc(chat.SendMessageHandler))).Methods("POST")

	apiCreate.Handle("/chat/conversations", api.Middleware(http.HandlerFunc(chat.ConversationsHandler))).Methods("GET")
	apiCreate.Handle("/chat/authenticated-conversations", api.Middleware(http.HandlerFunc(chat.AuthenticatedConversationsHandler))).Methods("GET")
	apiCreate.Handle("/chat/public-conversations", api.Middleware(http.HandlerFunc(chat.PublicConversationsHandler))).Methods("GET")
	apiCreate.Handle("/chat/public/conversation/{publicId}", http.HandlerFunc(chat.PublicConversationHandler)).Methods("GET")
	apiCreate.Handle("/chat/public/{orderId}", http.HandlerFunc(chat.PublicOrderMessagesHandler)).Methods("GET")
	apiCreate.Handle("/chat/order/{orderId}", api.Middleware(http.HandlerFunc(chat.OrderMessagesHandler))).Methods("GET")
	apiCreate.Handle("/chat/order/{orderId}/mark-read", api.Middleware(http.HandlerFunc(chat.MarkOrderReadHandler))).Methods("POST")
	apiCreate.Handle("/chat/{id}/read", api.Middleware(http.HandlerFunc(chat.MarkMessageReadHandler))).Methods("POST")

	apiCreate.Handle("/chat", api.AdminMiddleware(http.HandlerFunc(chat.MessagesHandler))).Methods("GET")
	apiCreate.Handle("/chat/search", api.AdminMiddleware(http.HandlerFunc(chat.SearchMessagesHandler))).Methods("GET")
	apiCreate.Handle("/chat/{id}", api.AdminMiddleware(http.HandlerFunc(chat.MessageByIDHandler))).Methods("GET")
	apiCreate.Handle("/chat/{id}", api.AdminMiddleware(http.HandlerFunc(chat.UpdateMessageHandler))).Methods("PUT")
	apiCreate.Handle("/chat/{id}", api.AdminMiddleware(http.HandlerFunc(chat.DeleteMessageHandler))).Methods("DELETE")

	apiCreate.Handle("/notifications", api.Middleware(http.HandlerFunc(notification.GetNotificationsHandler))).Methods("GET")
	apiCreate.Handle("/notifications/mark-all-read", api.Middleware(http.HandlerFunc(notification.MarkAllNotificationsReadHandler))).Methods("PUT")
	apiCreate.Handle("/notifications/{id}/read", api.Middleware(http.HandlerFunc(notification.MarkNotificationReadHandler))).Methods("PUT")
	apiCreate.Handle("/notifications/{id}", api.Middleware(http.HandlerFunc(notification.DeleteNotificationHandler))).Methods("DELETE")

	if attachments != nil {
		apiCreate.Handle("/generate-signature", api.Middleware(http.HandlerFunc(attachments.GenerateSignature))).Methods("POST")
	}

	r.HandleFunc("/ws", gateway.ServeWS)

	// swagger docs hosted at "/"
	r.PathPrefix("/").Handler(http.StripPrefix("/", http.FileServer(http.Dir("./docs/"))))
	return r
}

// Initialize is invoked by main to connect with the database and create a router
func (a *App) Initialize() error {

	client, err := databases.NewClient(&a.Config)
	if err != nil {
		// if we fail to create a new database client, then kill the pod
		zap.S().With(err).Error("failed to create new client")
		return err
	}

	a.dbHelper = databases.NewDatabase(&a.Config, client)
	err = client.Connect()
	if err != nil {
		// if we fail to connect to the database, then kill the pod
		zap.S().With(err).Error("failed to connect to database")
		return err
	}
	zap.S().Info("tesipedia-api has connected to the database")

	a.Scheduler = scheduler.NewScheduler(databases.NewNotificationDatabase(a.dbHelper))
	a.Scheduler.Start()

	// initialize api router
	a.initializeRoutes()
	return nil

}

func (a *App) initializeRoutes() {
	a.Router = a.New()
}

func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	b, _ := json.Marshal(models.HealthCheckResponse{
		Alive: true,
	})
	_, _ = io.WriteString(w, string(b))
}
