package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gatekeeper-core/internal/auth"
)

const (
	// ticketTTL is how long a WebSocket ticket is valid.
	ticketTTL = 60 * time.Second

	ticketCleanInterval = time.Minute
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresIn   int       `json:"expires_in"`
	ExpiresAt   time.Time `json:"expires_at"`
	Role        auth.Role `json:"role"`
}

// handleLogin authenticates a configured operator and returns a JWT.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !s.secCfg.JWT.Enabled {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "authentication is disabled")
		return
	}

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Username == "" || req.Password == "" {
		writeBadRequest(w, "username and password are required")
		return
	}

	op, err := s.operators.Authenticate(req.Username, req.Password)
	if err != nil {
		if !errors.Is(err, auth.ErrInvalidCredentials) {
			s.logger.Error("operator authentication failed", "error", err)
		}
		s.logger.Warn("login rejected", "username", req.Username, "remote", r.RemoteAddr)
		writeUnauthorized(w, "invalid credentials")
		return
	}

	ttl := time.Duration(s.secCfg.JWT.AccessTokenTTL) * time.Minute
	if ttl <= 0 {
		ttl = auth.DefaultTokenTTL
	}
	token, expiresAt, err := auth.IssueToken(op, s.secCfg.JWT.Secret, ttl)
	if err != nil {
		s.logger.Error("issuing access token", "operator", op.Name, "error", err)
		writeInternalError(w, "failed to generate token")
		return
	}

	s.logger.Info("operator logged in", "operator", op.Name, "role", op.Role)
	writeSuccess(w, http.StatusOK, envelope{
		"token": loginResponse{
			AccessToken: token,
			TokenType:   "Bearer",
			ExpiresIn:   int(ttl.Seconds()),
			ExpiresAt:   expiresAt,
			Role:        op.Role,
		},
	})
}

// handleMe returns the authenticated operator and what they may do.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	op, ok := operatorFromContext(r.Context())
	if !ok {
		writeSuccess(w, http.StatusOK, envelope{"authenticated": false})
		return
	}
	writeSuccess(w, http.StatusOK, envelope{
		"authenticated": true,
		"operator":      op,
		"permissions":   auth.PermissionsForRole(op.Role),
	})
}

// handleWSTicket issues a single-use ticket for opening the WebSocket
// without putting the JWT in the URL.
func (s *Server) handleWSTicket(w http.ResponseWriter, r *http.Request) {
	op, _ := operatorFromContext(r.Context())
	ticket := s.tickets.issue(op)
	writeSuccess(w, http.StatusOK, envelope{
		"ticket":     ticket,
		"expires_in": int(ticketTTL.Seconds()),
	})
}

// ticketStore holds pending WebSocket tickets. Tickets are single-use and
// expire after ticketTTL.
type ticketStore struct {
	mu      sync.Mutex
	tickets map[string]ticketEntry
	now     func() time.Time
}

type ticketEntry struct {
	operator  auth.Operator
	expiresAt time.Time
}

func newTicketStore() *ticketStore {
	return &ticketStore{
		tickets: make(map[string]ticketEntry),
		now:     time.Now,
	}
}

func (t *ticketStore) issue(op auth.Operator) string {
	ticket := uuid.NewString()
	t.mu.Lock()
	t.tickets[ticket] = ticketEntry{operator: op, expiresAt: t.now().Add(ticketTTL)}
	t.mu.Unlock()
	return ticket
}

// redeem consumes a ticket, reporting whether it was valid.
func (t *ticketStore) redeem(ticket string) (auth.Operator, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.tickets[ticket]
	if !ok {
		return auth.Operator{}, false
	}
	delete(t.tickets, ticket)
	if t.now().After(entry.expiresAt) {
		return auth.Operator{}, false
	}
	return entry.operator, true
}

func (t *ticketStore) cleanExpired() {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	for k, v := range t.tickets {
		if now.After(v.expiresAt) {
			delete(t.tickets, k)
		}
	}
}

func (t *ticketStore) cleanLoop(ctx context.Context) {
	ticker := time.NewTicker(ticketCleanInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			t.cleanExpired()
		case <-ctx.Done():
			return
		}
	}
}

func (t *ticketStore) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.tickets)
}
