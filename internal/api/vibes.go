package api

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/gorilla/handlers"
	"github.com/npezzotti/go-vibes/internal/config"
	"github.com/npezzotti/go-vibes/internal/database"
	"github.com/npezzotti/go-vibes/internal/email"
	"github.com/npezzotti/go-vibes/internal/server"
	"github.com/teris-io/shortid"
)

type ResetTokenStore interface {
	Issue(ctx context.Context, accountId int) (string, error)
	Consume(ctx context.Context, token string) (int, error)
}

type RoomCleaner interface {
	SweepRoom(ctx context.Context, roomId int, retention string) (int, error)
}

// Services are the collaborators the HTTP handlers use besides the
// repository and the chat server.
type Services struct {
	Resets  ResetTokenStore
	Mailer  email.Mailer
	Cleaner RoomCleaner
}

type VibesApp struct {
	log             *log.Logger
	db              database.VibeRepository
	mux             *http.Server
	cs              *server.ChatServer
	resets          ResetTokenStore
	mailer          email.Mailer
	cleaner         RoomCleaner
	signingKey      []byte
	allowedOrigins  []string
	publicURL       string
	generateShortId func() (string, error)
}

func NewVibesApp(mux *http.ServeMux, logger *log.Logger, cs *server.ChatServer, db database.VibeRepository, svc Services, cfg *config.Config) *VibesApp {
	s := &VibesApp{
		log:             logger,
		db:              db,
		cs:              cs,
		resets:          svc.Resets,
		mailer:          svc.Mailer,
		cleaner:         svc.Cleaner,
		signingKey:      cfg.SigningKey,
		allowedOrigins:  cfg.AllowedOrigins,
		publicURL:       strings.TrimRight(cfg.PublicURL, "/"),
		generateShortId: shortid.Generate,
	}

	mux.HandleFunc("GET /healthz", s.healthCheck)

	mux.HandleFunc("POST /api/auth/register", s.createAccount)
	mux.HandleFunc("POST /api/auth/login", s.login)
	mux.HandleFunc("GET /api/auth/session", s.authMiddleware(s.session))
	mux.HandleFunc("GET /api/auth/logout", s.authMiddleware(s.logout))
	mux.HandleFunc("POST /api/auth/password-reset", s.requestPasswordReset)
	mux.HandleFunc("POST /api/auth/password-reset/confirm", s.confirmPasswordReset)

	mux.HandleFunc("GET /api/account", s.authMiddleware(s.getAccount))
	mux.HandleFunc("PUT /api/account", s.authMiddleware(s.updateAccount))
	mux.HandleFunc("PUT /api/account/settings", s.authMiddleware(s.updateSettings))
	mux.HandleFunc("DELETE /api/account", s.authMiddleware(s.deleteAccount))

	mux.HandleFunc("POST /api/rooms", s.authMiddleware(s.createRoom))
	mux.HandleFunc("GET /api/rooms", s.authMiddleware(s.listRooms))
	mux.HandleFunc("GET /api/rooms/{id}", s.authMiddleware(s.getRoom))
	mux.HandleFunc("DELETE /api/rooms/{id}", s.authMiddleware(s.deleteRoom))
	mux.HandleFunc("POST /api/rooms/{id}/members", s.authMiddleware(s.joinRoom))
	mux.HandleFunc("DELETE /api/rooms/{id}/members/{userId}", s.authMiddleware(s.removeMember))
	mux.HandleFunc("PUT /api/rooms/{id}/retention", s.authMiddleware(s.updateRetention))
	mux.HandleFunc("GET /api/rooms/{id}/messages", s.authMiddleware(s.getMessages))
	mux.HandleFunc("GET /api/rooms/{id}/vibes", s.authMiddleware(s.getVibes))
	mux.HandleFunc("POST /api/rooms/{id}/cleanup", s.authMiddleware(s.cleanupRoom))

	mux.HandleFunc("GET /api/notifications", s.authMiddleware(s.listNotifications))
	mux.HandleFunc("DELETE /api/notifications", s.authMiddleware(s.clearReadNotifications))
	mux.HandleFunc("PUT /api/notifications/{id}/read", s.authMiddleware(s.markNotificationRead))
	mux.HandleFunc("DELETE /api/notifications/{id}", s.authMiddleware(s.deleteNotification))

	mux.HandleFunc("GET /api/admin/users", s.authMiddleware(s.adminMiddleware(s.listAllUsers)))
	mux.HandleFunc("GET /api/admin/rooms", s.authMiddleware(s.adminMiddleware(s.listAllRooms)))
	mux.HandleFunc("GET /api/admin/stats", s.authMiddleware(s.adminMiddleware(s.adminStats)))

	mux.HandleFunc("GET /ws", s.authMiddleware(s.serveWs))

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept"}),
		handlers.AllowCredentials(),
	)(mux)

	h = s.errorHandler(h)

	s.mux = &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	return s
}

func (s *VibesApp) Start() error {
	s.log.Printf("starting server on %s\n", s.mux.Addr)
	return s.mux.ListenAndServe()
}

func (s *VibesApp) Shutdown(ctx context.Context) error {
	s.log.Println("shutting down HTTP server...")
	if err := s.mux.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
