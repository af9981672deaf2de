package auth

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"

	"github.com/bsamson01/gamesnight/go/clients/gamesnight_client"
	"github.com/bsamson01/gamesnight/go/internal/auth/tokenstore"
	"github.com/bsamson01/gamesnight/go/internal/models"
)

// API is what the auth service needs from the REST client.
type API interface {
	Login(ctx context.Context, req gamesnight_client.LoginRequest) (*gamesnight_client.AuthResponse, error)
	Register(ctx context.Context, req gamesnight_client.RegisterRequest) (*gamesnight_client.AuthResponse, error)
	Refresh(ctx context.Context) (*gamesnight_client.AuthResponse, error)
	Logout(ctx context.Context) error
	VerifyPayment(ctx context.Context, req gamesnight_client.VerifyPaymentRequest) (*models.Payment, error)
}

// Channel is what the auth service needs from the realtime connection:
// every successful login/registration connects it, every logout
// disconnects it.
type Channel interface {
	Connect(ctx context.Context, token string) error
	Disconnect()
}

type refreshFlight struct {
	done  chan struct{}
	token string
	err   error
}

// Service owns the credential/token lifecycle. It implements
// clients.TokenSource so the REST layer can transparently refresh after a
// 401; concurrent refresh triggers share a single in-flight attempt.
type Service struct {
	api     API
	store   tokenstore.Store
	channel Channel

	mu       sync.Mutex
	session  models.Session
	lastErr  string
	inflight *refreshFlight
	subs     []func(models.Session)
}

func NewService(api API, store tokenstore.Store, channel Channel) *Service {
	return &Service{
		api:     api,
		store:   store,
		channel: channel,
	}
}

// LoadSession reads the persisted token, if any. The session is not marked
// authenticated until a refresh validates the token (see CheckAuth).
func (s *Service) LoadSession(ctx context.Context) error {
	token, err := s.store.Load(ctx)
	if errors.Is(err, tokenstore.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.session.Token = token
	userID, expiresAt := tokenClaims(token)
	s.session.TokenExpiresAt = expiresAt
	s.mu.Unlock()

	log.Debug().Int64("user_id", userID).Msg("restored persisted token")
	return nil
}

// Login exchanges credentials for a token+user pair, persists the token,
// and connects the channel.
func (s *Service) Login(ctx context.Context, email, password string) (models.Session, error) {
	resp, err := s.api.Login(ctx, gamesnight_client.LoginRequest{Email: email, Password: password})
	if err != nil {
		return models.Session{}, s.fail("Login failed", err)
	}
	return s.adopt(ctx, resp, true), nil
}

// Register creates an account; identical contract to Login.
func (s *Service) Register(ctx context.Context, email, password string) (models.Session, error) {
	resp, err := s.api.Register(ctx, gamesnight_client.RegisterRequest{Email: email, Password: password})
	if err != nil {
		return models.Session{}, s.fail("Registration failed", err)
	}
	return s.adopt(ctx, resp, true), nil
}

// RefreshToken exchanges the current token for a fresh token+user pair.
// Concurrent callers share one in-flight refresh and its result. On
// failure the session is logged out and the original error propagates.
func (s *Service) RefreshToken(ctx context.Context) (string, error) {
	s.mu.Lock()
	if s.inflight != nil {
		fl := s.inflight
		s.mu.Unlock()
		<-fl.done
		return fl.token, fl.err
	}
	fl := &refreshFlight{done: make(chan struct{})}
	s.inflight = fl
	s.mu.Unlock()

	fl.token, fl.err = s.doRefresh(ctx)

	s.mu.Lock()
	s.inflight = nil
	s.mu.Unlock()
	close(fl.done)

	return fl.token, fl.err
}

func (s *Service) doRefresh(ctx context.Context) (string, error) {
	resp, err := s.api.Refresh(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("token refresh failed, logging out")
		s.Logout(ctx)
		return "", s.fail("Session expired", err)
	}

	session := s.adopt(ctx, resp, false)
	return session.Token, nil
}

// Token implements clients.TokenSource.
func (s *Service) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session.Token
}

// Refresh implements clients.TokenSource.
func (s *Service) Refresh(ctx context.Context) (string, error) {
	return s.RefreshToken(ctx)
}

// Logout notifies the server best-effort, then unconditionally clears the
// session, erases the persisted token, and disconnects the channel.
func (s *Service) Logout(ctx context.Context) {
	if err := s.api.Logout(ctx); err != nil {
		log.Warn().Err(err).Msg("server logout failed")
	}

	s.mu.Lock()
	s.session = models.Session{}
	s.mu.Unlock()

	if err := s.store.Clear(ctx); err != nil {
		log.Warn().Err(err).Msg("failed to clear persisted token")
	}
	s.channel.Disconnect()
	s.notify()
}

// CheckAuth attempts a refresh if a token is present and reports whether
// it succeeded. The underlying error is swallowed into the boolean.
func (s *Service) CheckAuth(ctx context.Context) bool {
	if s.Token() == "" {
		return false
	}
	_, err := s.RefreshToken(ctx)
	return err == nil
}

// UpdateUserPaymentStatus applies a verified payment to the local user.
// This is the only place paid/role fields are computed client-side.
func (s *Service) UpdateUserPaymentStatus(isPaid bool, paidUntil *time.Time) {
	s.mu.Lock()
	if s.session.User != nil {
		s.session.User.IsPaid = isPaid
		s.session.User.PaidUntil = paidUntil
		if isPaid {
			s.session.User.Role = models.UserRolePaid
		} else {
			s.session.User.Role = models.UserRoleFree
		}
	}
	s.mu.Unlock()
	s.notify()
}

// VerifyPayment asks the server to verify a completed order and applies
// the resulting paid status to the local user.
func (s *Service) VerifyPayment(ctx context.Context, orderID, paymentType string) (*models.Payment, error) {
	payment, err := s.api.VerifyPayment(ctx, gamesnight_client.VerifyPaymentRequest{
		OrderID:     orderID,
		PaymentType: paymentType,
	})
	if err != nil {
		return nil, s.fail("Payment verification failed", err)
	}

	s.UpdateUserPaymentStatus(payment.Status == "completed", payment.ExpiresAt)
	return payment, nil
}

// Session returns a copy of the current session.
func (s *Service) Session() models.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Service) IsAuthenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session.IsAuthenticated
}

func (s *Service) IsPaidUser() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session.User != nil && s.session.User.IsPaid
}

func (s *Service) UserRole() models.UserRole {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session.User == nil {
		return models.UserRoleFree
	}
	return s.session.User.Role
}

// LastError returns the latest surfaced error message, overwritten by each
// subsequent operation.
func (s *Service) LastError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Subscribe registers fn to run after every session change.
func (s *Service) Subscribe(fn func(models.Session)) {
	s.mu.Lock()
	s.subs = append(s.subs, fn)
	s.mu.Unlock()
}

func (s *Service) adopt(ctx context.Context, resp *gamesnight_client.AuthResponse, connect bool) models.Session {
	user := resp.User

	s.mu.Lock()
	s.session.Token = resp.AccessToken
	s.session.User = &user
	s.session.IsAuthenticated = true
	_, expiresAt := tokenClaims(resp.AccessToken)
	s.session.TokenExpiresAt = expiresAt
	s.lastErr = ""
	session := s.snapshotLocked()
	s.mu.Unlock()

	if err := s.store.Save(ctx, resp.AccessToken); err != nil {
		log.Warn().Err(err).Msg("failed to persist token")
	}
	s.notify()

	if connect {
		if err := s.channel.Connect(ctx, resp.AccessToken); err != nil {
			log.Warn().Err(err).Msg("channel connect after login failed")
		}
	}
	return session
}

func (s *Service) fail(fallback string, err error) error {
	authErr := newAuthError(fallback, err)
	s.mu.Lock()
	s.lastErr = authErr.Message
	s.mu.Unlock()
	return authErr
}

func (s *Service) notify() {
	s.mu.Lock()
	subs := make([]func(models.Session), len(s.subs))
	copy(subs, s.subs)
	session := s.snapshotLocked()
	s.mu.Unlock()

	for _, fn := range subs {
		fn(session)
	}
}

// snapshotLocked copies the session, including the user, so callers never
// share the internal pointer. Caller holds s.mu.
func (s *Service) snapshotLocked() models.Session {
	session := s.session
	if s.session.User != nil {
		user := *s.session.User
		session.User = &user
	}
	return session
}

// tokenClaims decodes the subject and expiry from the access token without
// verifying the signature; the server is the only verifier.
func tokenClaims(token string) (int64, *time.Time) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return 0, nil
	}

	var userID int64
	if sub, err := claims.GetSubject(); err == nil {
		userID, _ = strconv.ParseInt(sub, 10, 64)
	}

	var expiresAt *time.Time
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		t := exp.Time
		expiresAt = &t
	}
	return userID, expiresAt
}
