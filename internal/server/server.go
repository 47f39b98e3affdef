package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/cors"
	"golang.org/x/time/rate"

	"github.com/dukerupert/togetherplan/internal/config"
	"github.com/dukerupert/togetherplan/internal/digest"
	"github.com/dukerupert/togetherplan/internal/email"
	"github.com/dukerupert/togetherplan/internal/handler"
	"github.com/dukerupert/togetherplan/internal/middleware"
	"github.com/dukerupert/togetherplan/internal/notify"
	"github.com/dukerupert/togetherplan/internal/participant"
	"github.com/dukerupert/togetherplan/internal/push"
	"github.com/dukerupert/togetherplan/internal/scheduling"
	"github.com/dukerupert/togetherplan/internal/store"
	"github.com/dukerupert/togetherplan/internal/tally"
	"github.com/dukerupert/togetherplan/internal/visibility"
	ws "github.com/dukerupert/togetherplan/internal/websocket"
)

type Server struct {
	db            *sql.DB
	hub           *ws.Hub
	eventH        *handler.EventHandler
	participantH  *handler.ParticipantHandler
	voteH         *handler.VoteHandler
	notificationH *handler.NotificationHandler
	pushH         *handler.PushHandler
	sessionStore  *store.SessionStore
	rateLimiter   *middleware.RateLimiter
	queue         *notify.Queue
	digest        *digest.Runner
	wsOrigins     []string
	corsOrigins   []string
	logger        *slog.Logger
}

func New(db *sql.DB, cfg *config.Config, emailClient *email.Client, logger *slog.Logger) (*Server, error) {
	hub := ws.NewHub(logger.With("component", "websocket"))

	userStore := store.NewUserStore(db)
	groupStore := store.NewGroupStore(db)
	eventStore := store.NewEventStore(db)
	participantStore := store.NewParticipantStore(db)
	voteStore := store.NewVoteStore(db)
	notificationStore := store.NewNotificationStore(db)
	sessionStore := store.NewSessionStore(db)

	notifyLogger := logger.With("component", "notify")
	inbox := notify.NewInbox(notificationStore, notifyLogger)
	sinks := notify.Fanout{
		inbox,
		notify.NewMailer(userStore, emailClient, notifyLogger),
		notify.NewBroadcaster(hub),
	}

	// Web Push is optional; routes and the sink exist only with VAPID keys.
	var pushH *handler.PushHandler
	pushSvc := push.NewService(cfg.VAPIDPublicKey, cfg.VAPIDPrivateKey, cfg.VAPIDSubject)
	if pushSvc.Configured() {
		pushStore := store.NewPushStore(db)
		sinks = append(sinks, notify.NewPusher(pushStore, pushSvc, cfg.BaseURL, logger.With("component", "push")))
		pushH = handler.NewPushHandler(pushStore, pushSvc, logger.With("component", "push_handler"))
	}
	queue := notify.NewQueue(notify.Logged(sinks, notifyLogger), cfg.NotifyQueueSize, notifyLogger)

	policy, err := visibility.NewPolicy(participantStore, visibility.Mode(cfg.PrivateViewerStatus))
	if err != nil {
		return nil, fmt.Errorf("visibility policy: %w", err)
	}
	lifecycle := participant.NewLifecycle(participantStore, queue, logger.With("component", "participant"))
	engine := tally.NewEngine(voteStore, eventStore, queue, logger.With("component", "tally"))

	svc := scheduling.NewService(scheduling.Stores{
		Users:        userStore,
		Groups:       groupStore,
		Events:       eventStore,
		Participants: participantStore,
		Votes:        voteStore,
	}, policy, lifecycle, engine, logger.With("component", "scheduling"))

	calHost := "togetherplan"
	if u, err := url.Parse(cfg.BaseURL); err == nil && u.Hostname() != "" {
		calHost = u.Hostname()
	}

	return &Server{
		db:            db,
		hub:           hub,
		eventH:        handler.NewEventHandler(svc, calHost, logger.With("component", "event")),
		participantH:  handler.NewParticipantHandler(svc, logger.With("component", "participant_handler")),
		voteH:         handler.NewVoteHandler(svc, logger.With("component", "vote")),
		notificationH: handler.NewNotificationHandler(inbox, logger.With("component", "notification")),
		pushH:         pushH,
		sessionStore:  sessionStore,
		rateLimiter:   middleware.NewRateLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst),
		queue:         queue,
		digest:        digest.NewRunner(eventStore, userStore, store.NewDigestStore(db), emailClient, logger.With("component", "digest")),
		wsOrigins:     cfg.WSOrigins,
		corsOrigins:   cfg.CORSOrigins,
		logger:        logger,
	}, nil
}

// SessionStore returns the session store for cleanup tasks.
func (s *Server) SessionStore() *store.SessionStore {
	return s.sessionStore
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

// Queue returns the notification queue. It must be started before requests
// are served or notifications accumulate until the buffer fills.
func (s *Server) Queue() *notify.Queue {
	return s.queue
}

// Digest returns the best-date digest runner.
func (s *Server) Digest() *digest.Runner {
	return s.digest
}

func (s *Server) Router() http.Handler {
	outerMux := http.NewServeMux()

	// Public routes
	outerMux.HandleFunc("GET /health", s.healthHandler)

	protectedMux := http.NewServeMux()
	s.registerProtectedRoutes(protectedMux)

	authMiddleware := middleware.RequireAuth(s.sessionStore, s.logger.With("component", "auth"))
	outerMux.Handle("/", authMiddleware(protectedMux))

	var h http.Handler = outerMux
	if len(s.corsOrigins) > 0 {
		// Preflight requests are answered here, before session auth.
		h = cors.New(cors.Options{
			AllowedOrigins:   s.corsOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Content-Type", "Authorization"},
			AllowCredentials: true,
		}).Handler(h)
	}
	return middleware.RequestLogger(s.logger.With("component", "http"))(h)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	w.Header().Set("Content-Type", "application/json")
	if err := s.db.PingContext(ctx); err != nil {
		s.logger.Error("health check failed", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{"status": "unavailable"})
		return
	}
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) rateLimitedHandler(h http.HandlerFunc) http.HandlerFunc {
	rl := middleware.RateLimit(s.rateLimiter, middleware.RealIP)
	return func(w http.ResponseWriter, r *http.Request) {
		rl(h).ServeHTTP(w, r)
	}
}

func (s *Server) registerProtectedRoutes(mux *http.ServeMux) {
	// Events
	mux.HandleFunc("GET /api/events", s.eventH.List)
	mux.HandleFunc("POST /api/events", s.rateLimitedHandler(s.eventH.Create))
	mux.HandleFunc("GET /api/events/{id}", s.eventH.Get)
	mux.HandleFunc("PUT /api/events/{id}", s.rateLimitedHandler(s.eventH.Update))
	mux.HandleFunc("DELETE /api/events/{id}", s.rateLimitedHandler(s.eventH.Delete))
	mux.HandleFunc("POST /api/events/{id}/date-options", s.rateLimitedHandler(s.eventH.AddDateOption))
	mux.HandleFunc("POST /api/events/{id}/date-options/series", s.rateLimitedHandler(s.eventH.AddDateSeries))
	mux.HandleFunc("GET /api/events/{id}/best-date", s.eventH.BestDate)
	mux.HandleFunc("GET /api/events/{id}/calendar.ics", s.eventH.Calendar)

	// Participants
	mux.HandleFunc("POST /api/events/{id}/invite", s.rateLimitedHandler(s.participantH.Invite))
	mux.HandleFunc("POST /api/events/{id}/respond", s.rateLimitedHandler(s.participantH.Respond))
	mux.HandleFunc("GET /api/events/{id}/participants", s.participantH.List)

	// Votes
	mux.HandleFunc("POST /api/votes", s.rateLimitedHandler(s.voteH.Cast))

	// Notifications
	mux.HandleFunc("GET /api/notifications", s.notificationH.List)
	mux.HandleFunc("PATCH /api/notifications/{id}/read", s.notificationH.MarkRead)

	// Push subscriptions
	if s.pushH != nil {
		mux.HandleFunc("GET /api/push/vapid-key", s.pushH.GetVAPIDKey)
		mux.HandleFunc("GET /api/push/subscriptions", s.pushH.ListSubscriptions)
		mux.HandleFunc("POST /api/push/subscriptions", s.rateLimitedHandler(s.pushH.Subscribe))
		mux.HandleFunc("DELETE /api/push/subscriptions/{id}", s.pushH.Unsubscribe)
	}

	mux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub, s.wsOrigins, s.logger.With("component", "websocket")))
}
