package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/tilly/internal/billing"
	"github.com/dukerupert/tilly/internal/chat"
	"github.com/dukerupert/tilly/internal/handler"
	"github.com/dukerupert/tilly/internal/middleware"
	"github.com/dukerupert/tilly/internal/notify"
	"github.com/dukerupert/tilly/internal/push"
	"github.com/dukerupert/tilly/internal/retention"
	"github.com/dukerupert/tilly/internal/store"
	"github.com/dukerupert/tilly/internal/usage"
	ws "github.com/dukerupert/tilly/internal/websocket"
)

type Config struct {
	Push           push.Config
	Usage          usage.Config
	Billing        billing.Config
	OpenAIAPIKey   string
	OpenAIModel    string
	CronSecret     string
	PaywallEnabled bool
}

type Server struct {
	db           *sql.DB
	hub          *ws.Hub
	personH      *handler.PersonHandler
	reminderH    *handler.ReminderHandler
	noteH        *handler.NoteHandler
	settingsH    *handler.SettingsHandler
	chatH        *handler.ChatHandler
	cronH        *handler.CronHandler
	billingH     *handler.BillingHandler
	sessionStore *store.SessionStore
	rateLimiter  *middleware.RateLimiter
	sweeper      *retention.Sweeper
	runner       *notify.Runner
	cronSecret   string
	logger       *slog.Logger
}

func New(db *sql.DB, cfg Config, logger *slog.Logger) *Server {
	hub := ws.NewHub(logger.With("component", "websocket"))

	userStore := store.NewUserStore(db)
	sessionStore := store.NewSessionStore(db)
	personStore := store.NewPersonStore(db)
	reminderStore := store.NewReminderStore(db)
	noteStore := store.NewNoteStore(db)
	settingsStore := store.NewSettingsStore(db)
	deviceStore := store.NewDeviceStore(db)
	registryStore := store.NewRegistryStore(db)
	usageStore := store.NewUsageStore(db)
	subscriptionStore := store.NewSubscriptionStore(db)

	pushSvc := push.NewService(cfg.Push)
	runner := notify.NewRunner(
		registryStore, settingsStore, personStore, deviceStore, pushSvc,
		logger.With("component", "notify"),
	)

	meter := usage.NewMeter(usageStore, cfg.Usage, logger.With("component", "usage"))
	completer := chat.NewOpenAI(cfg.OpenAIAPIKey, cfg.OpenAIModel)
	billingClient := billing.NewClient(cfg.Billing)

	sweeper := retention.NewSweeper(logger.With("component", "retention"), map[string]retention.Sweepable{
		"people":    personStore,
		"reminders": reminderStore,
		"notes":     noteStore,
	})

	return &Server{
		db:           db,
		hub:          hub,
		personH:      handler.NewPersonHandler(personStore, hub, logger.With("component", "person")),
		reminderH:    handler.NewReminderHandler(reminderStore, personStore, hub, logger.With("component", "reminder")),
		noteH:        handler.NewNoteHandler(noteStore, personStore, hub, logger.With("component", "note")),
		settingsH:    handler.NewSettingsHandler(settingsStore, deviceStore, registryStore, pushSvc, logger.With("component", "settings")),
		chatH:        handler.NewChatHandler(completer, meter, subscriptionStore, cfg.PaywallEnabled, logger.With("component", "chat")),
		cronH:        handler.NewCronHandler(runner, logger.With("component", "cron")),
		billingH:     handler.NewBillingHandler(billingClient, userStore, subscriptionStore, logger.With("component", "billing")),
		sessionStore: sessionStore,
		rateLimiter:  middleware.NewRateLimiter(30, time.Minute),
		sweeper:      sweeper,
		runner:       runner,
		cronSecret:   cfg.CronSecret,
		logger:       logger,
	}
}

// SessionStore returns the session store for cleanup tasks.
func (s *Server) SessionStore() *store.SessionStore {
	return s.sessionStore
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

// Sweeper returns the retention sweeper so main can manage its lifecycle.
func (s *Server) Sweeper() *retention.Sweeper {
	return s.sweeper
}

func (s *Server) Router() http.Handler {
	outerMux := http.NewServeMux()

	outerMux.HandleFunc("GET /health", s.healthHandler)
	outerMux.Handle("POST /api/billing/webhook", http.HandlerFunc(s.billingH.Webhook))

	cronAuth := middleware.RequireCronSecret(s.cronSecret)
	outerMux.Handle("GET /api/cron/deliver-notifications", cronAuth(http.HandlerFunc(s.cronH.DeliverNotifications)))

	protectedMux := http.NewServeMux()
	s.registerProtectedRoutes(protectedMux)

	sessionAuth := middleware.RequireSession(s.sessionStore)
	outerMux.Handle("/api/", sessionAuth(protectedMux))
	outerMux.Handle("GET /ws", sessionAuth(ws.Handler(s.hub, s.logger.With("component", "websocket"))))

	return middleware.RequestLogger(s.logger.With("component", "http"))(outerMux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) registerProtectedRoutes(mux *http.ServeMux) {
	// People
	mux.HandleFunc("POST /api/people", s.personH.Create)
	mux.HandleFunc("GET /api/people", s.personH.List)
	mux.HandleFunc("GET /api/people/deleted", s.personH.ListDeleted)
	mux.HandleFunc("GET /api/people/{id}", s.personH.Get)
	mux.HandleFunc("PUT /api/people/{id}", s.personH.Update)
	mux.HandleFunc("DELETE /api/people/{id}", s.personH.Delete)
	mux.HandleFunc("POST /api/people/{id}/restore", s.personH.Restore)

	// Reminders
	mux.HandleFunc("POST /api/people/{id}/reminders", s.reminderH.Create)
	mux.HandleFunc("GET /api/people/{id}/reminders", s.reminderH.ListByPerson)
	mux.HandleFunc("PATCH /api/reminders/{id}", s.reminderH.Update)
	mux.HandleFunc("DELETE /api/reminders/{id}", s.reminderH.Delete)
	mux.HandleFunc("POST /api/reminders/{id}/restore", s.reminderH.Restore)

	// Notes
	mux.HandleFunc("POST /api/people/{id}/notes", s.noteH.Create)
	mux.HandleFunc("GET /api/people/{id}/notes", s.noteH.ListByPerson)
	mux.HandleFunc("PUT /api/notes/{id}", s.noteH.Update)
	mux.HandleFunc("DELETE /api/notes/{id}", s.noteH.Delete)
	mux.HandleFunc("POST /api/notes/{id}/restore", s.noteH.Restore)

	// Notification settings + push devices
	mux.HandleFunc("GET /api/settings/notifications", s.settingsH.Get)
	mux.HandleFunc("PUT /api/settings/notifications", s.settingsH.Update)
	mux.HandleFunc("POST /api/push/subscribe", s.settingsH.Subscribe)
	mux.HandleFunc("GET /api/push/devices", s.settingsH.ListDevices)
	mux.HandleFunc("PATCH /api/push/devices/{id}", s.settingsH.ToggleDevice)
	mux.HandleFunc("DELETE /api/push/devices/{id}", s.settingsH.DeleteDevice)
	mux.HandleFunc("GET /api/push/vapid-key", s.settingsH.VAPIDKey)
	mux.HandleFunc("POST /api/push/test", s.settingsH.TestNotification)

	// Chat assistant
	mux.Handle("POST /api/chat", s.rateLimiter.Limit(http.HandlerFunc(s.chatH.Complete)))
	mux.HandleFunc("GET /api/chat/usage", s.chatH.Usage)

	// Billing
	mux.HandleFunc("GET /api/billing/subscription", s.billingH.Status)
	mux.HandleFunc("POST /api/billing/checkout", s.billingH.Checkout)
	mux.HandleFunc("POST /api/billing/portal", s.billingH.Portal)
}
