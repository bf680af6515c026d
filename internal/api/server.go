package api

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/bryanchriswhite/osk/internal/keyboard"
	"github.com/bryanchriswhite/osk/internal/logger"
	"github.com/bryanchriswhite/osk/internal/message"
	"github.com/bryanchriswhite/osk/internal/version"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

// TokenParam is the query parameter carrying the per-run button channel token
const TokenParam = "token"

// Server serves the built-in keyboard page and a websocket message channel
// for layouts opened outside the keyboard surface
type Server struct {
	router   *mux.Router
	upgrader websocket.Upgrader
	messages chan message.Message
	http     *http.Server
	listener net.Listener
	token    string
}

// NewServer creates a new page server with a fresh random token. Only
// clients presenting the token may open the button channel.
func NewServer() *Server {
	s := &Server{
		router:   mux.NewRouter(),
		messages: make(chan message.Message, 64),
		token:    newToken(),
	}
	s.upgrader = websocket.Upgrader{CheckOrigin: s.checkOrigin}

	s.setupRoutes()
	return s
}

func newToken() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("crypto/rand failed: %v", err))
	}
	return hex.EncodeToString(b)
}

// Token returns the button channel token
func (s *Server) Token() string {
	return s.token
}

func (s *Server) validToken(r *http.Request) bool {
	got := r.URL.Query().Get(TokenParam)
	return got != "" && subtle.ConstantTimeCompare([]byte(got), []byte(s.token)) == 1
}

// sameOrigin reports whether origin names this server as seen by the client
func sameOrigin(origin string, r *http.Request) bool {
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host == r.Host
}

// checkOrigin allows the page server's own pages and file:// layouts, which
// send a "null" origin. The token is checked before the upgrade starts.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	switch origin {
	case "":
		return true
	case "null":
		return s.validToken(r)
	}
	return sameOrigin(origin, r)
}

// setupRoutes configures the routes
func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", s.handleHealth).Methods("GET")
	api.HandleFunc("/"+message.Channel, s.handleButton)

	s.router.HandleFunc("/bridge.js", s.handleBridge).Methods("GET")
	s.router.HandleFunc("/", s.handleIndex).Methods("GET")
}

// Handler returns the HTTP handler with CORS applied
func (s *Server) Handler() http.Handler {
	return s.enableCORS(s.router)
}

// Messages delivers taps received over the websocket
func (s *Server) Messages() <-chan message.Message {
	return s.messages
}

// Start listens on addr and serves in the background.
// It returns the page URL, which carries the real port when addr uses port 0
// and the button channel token.
func (s *Server) Start(addr string) (string, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = ln
	s.http = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	base := fmt.Sprintf("http://%s/", ln.Addr().String())
	log := logger.WithComponent("api")
	log.Info().Str("url", base).Msg("Page server listening")

	go func() {
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Page server stopped")
		}
	}()
	return base + "?" + url.Values{TokenParam: {s.token}}.Encode(), nil
}

// Shutdown stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

// enableCORS adds CORS headers for the server's own origin only
func (s *Server) enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); origin != "" && sameOrigin(origin, r) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// HTTP Handlers

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(keyboard.Page())
}

func (s *Server) handleBridge(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/javascript")
	w.Write([]byte(keyboard.Bridge()))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "healthy",
		"version": version.String(),
	})
}

// handleButton reads text frames and forwards each one as a tap payload
func (s *Server) handleButton(w http.ResponseWriter, r *http.Request) {
	log := logger.WithComponent("api")

	if !s.validToken(r) {
		log.Warn().Str("remote", r.RemoteAddr).Str("origin", r.Header.Get("Origin")).Msg("Button channel rejected: bad token")
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("WebSocket upgrade error")
		return
	}
	defer conn.Close()

	log.Debug().Str("remote", r.RemoteAddr).Msg("Button channel connected")
	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug().Err(err).Msg("Button channel closed")
			}
			return
		}
		if kind != websocket.TextMessage {
			continue
		}

		select {
		case s.messages <- message.Message{
			Channel: message.Channel,
			Payload: string(data),
			Source:  message.SourceWebsocket,
		}:
		case <-r.Context().Done():
			return
		}
	}
}
