package auth

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/bsamson01/gamesnight/go/clients"
	"github.com/bsamson01/gamesnight/go/clients/gamesnight_client"
	"github.com/bsamson01/gamesnight/go/internal/auth/tokenstore"
	"github.com/bsamson01/gamesnight/go/internal/models"
)

type fakeAPI struct {
	mu sync.Mutex

	loginResp *gamesnight_client.AuthResponse
	loginErr  error

	registerResp *gamesnight_client.AuthResponse
	registerErr  error

	refreshResp    *gamesnight_client.AuthResponse
	refreshErr     error
	refreshCalls   int32
	refreshStarted chan struct{}
	refreshRelease chan struct{}

	logoutErr   error
	logoutCalls int

	verifyResp *models.Payment
	verifyErr  error
}

func (f *fakeAPI) Login(context.Context, gamesnight_client.LoginRequest) (*gamesnight_client.AuthResponse, error) {
	return f.loginResp, f.loginErr
}

func (f *fakeAPI) Register(context.Context, gamesnight_client.RegisterRequest) (*gamesnight_client.AuthResponse, error) {
	return f.registerResp, f.registerErr
}

func (f *fakeAPI) Refresh(context.Context) (*gamesnight_client.AuthResponse, error) {
	atomic.AddInt32(&f.refreshCalls, 1)
	if f.refreshStarted != nil {
		f.refreshStarted <- struct{}{}
	}
	if f.refreshRelease != nil {
		<-f.refreshRelease
	}
	return f.refreshResp, f.refreshErr
}

func (f *fakeAPI) Logout(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logoutCalls++
	return f.logoutErr
}

func (f *fakeAPI) VerifyPayment(context.Context, gamesnight_client.VerifyPaymentRequest) (*models.Payment, error) {
	return f.verifyResp, f.verifyErr
}

type fakeChannel struct {
	mu          sync.Mutex
	connects    []string
	disconnects int
}

func (f *fakeChannel) Connect(_ context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects = append(f.connects, token)
	return nil
}

func (f *fakeChannel) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects++
}

func (f *fakeChannel) connectTokens() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.connects...)
}

type AuthServiceTestSuite struct {
	suite.Suite
	api     *fakeAPI
	store   *tokenstore.MemoryStore
	channel *fakeChannel
	service *Service
	ctx     context.Context
}

func (s *AuthServiceTestSuite) SetupTest() {
	s.api = &fakeAPI{}
	s.store = tokenstore.NewMemoryStore()
	s.channel = &fakeChannel{}
	s.service = NewService(s.api, s.store, s.channel)
	s.ctx = context.Background()
}

func (s *AuthServiceTestSuite) authResponse(token string) *gamesnight_client.AuthResponse {
	return &gamesnight_client.AuthResponse{
		AccessToken: token,
		User: models.User{
			ID:   1,
			Role: models.UserRoleFree,
		},
	}
}

func (s *AuthServiceTestSuite) TestLoginSuccess() {
	s.api.loginResp = s.authResponse("abc")

	session, err := s.service.Login(s.ctx, "a@b.c", "secret")
	s.Require().NoError(err)

	s.Equal("abc", session.Token)
	s.True(session.IsAuthenticated)
	s.Require().NotNil(session.User)
	s.Equal(int64(1), session.User.ID)

	stored, err := s.store.Load(s.ctx)
	s.Require().NoError(err)
	s.Equal("abc", stored)

	s.Equal([]string{"abc"}, s.channel.connectTokens())
}

func (s *AuthServiceTestSuite) TestLoginFailureUsesServerDetail() {
	s.api.loginErr = &clients.APIError{StatusCode: http.StatusUnauthorized, Detail: "Invalid credentials"}

	_, err := s.service.Login(s.ctx, "a@b.c", "wrong")
	s.Require().Error(err)

	var authErr *AuthError
	s.Require().ErrorAs(err, &authErr)
	s.Equal("Invalid credentials", authErr.Message)
	s.Equal("Invalid credentials", s.service.LastError())
	s.False(s.service.IsAuthenticated())
	s.Empty(s.channel.connectTokens())
}

func (s *AuthServiceTestSuite) TestLoginFailureFallbackMessage() {
	s.api.loginErr = &clients.APIError{StatusCode: http.StatusBadGateway}

	_, err := s.service.Login(s.ctx, "a@b.c", "secret")
	s.Require().Error(err)

	var authErr *AuthError
	s.Require().ErrorAs(err, &authErr)
	s.Equal("Login failed", authErr.Message)
}

func (s *AuthServiceTestSuite) TestRegisterConnectsChannel() {
	s.api.registerResp = s.authResponse("fresh")

	session, err := s.service.Register(s.ctx, "a@b.c", "secret")
	s.Require().NoError(err)
	s.True(session.IsAuthenticated)
	s.Equal([]string{"fresh"}, s.channel.connectTokens())
}

func (s *AuthServiceTestSuite) TestRefreshDoesNotReconnectChannel() {
	s.api.loginResp = s.authResponse("abc")
	_, err := s.service.Login(s.ctx, "a@b.c", "secret")
	s.Require().NoError(err)

	s.api.refreshResp = s.authResponse("def")
	token, err := s.service.RefreshToken(s.ctx)
	s.Require().NoError(err)
	s.Equal("def", token)
	s.Equal("def", s.service.Token())

	// Only the login connected the channel.
	s.Equal([]string{"abc"}, s.channel.connectTokens())
}

func (s *AuthServiceTestSuite) TestRefreshFailureLogsOutAndPropagates() {
	s.api.loginResp = s.authResponse("abc")
	_, err := s.service.Login(s.ctx, "a@b.c", "secret")
	s.Require().NoError(err)

	s.api.refreshErr = &clients.APIError{StatusCode: http.StatusUnauthorized, Detail: "Token expired"}

	_, err = s.service.RefreshToken(s.ctx)
	s.Require().Error(err)

	var authErr *AuthError
	s.Require().ErrorAs(err, &authErr)
	s.Equal("Token expired", authErr.Message)

	s.False(s.service.IsAuthenticated())
	s.Empty(s.service.Token())
	_, loadErr := s.store.Load(s.ctx)
	s.ErrorIs(loadErr, tokenstore.ErrNotFound)
	s.Equal(1, s.channel.disconnects)
}

func (s *AuthServiceTestSuite) TestSingleFlightRefresh() {
	s.api.loginResp = s.authResponse("abc")
	_, err := s.service.Login(s.ctx, "a@b.c", "secret")
	s.Require().NoError(err)

	s.api.refreshResp = s.authResponse("def")
	s.api.refreshStarted = make(chan struct{}, 1)
	s.api.refreshRelease = make(chan struct{})

	const waiters = 4
	tokens := make(chan string, waiters)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		token, err := s.service.RefreshToken(s.ctx)
		s.NoError(err)
		tokens <- token
	}()

	// The first caller is inside the API call; everyone after must wait
	// on the same in-flight refresh.
	<-s.api.refreshStarted
	for i := 1; i < waiters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			token, err := s.service.RefreshToken(s.ctx)
			s.NoError(err)
			tokens <- token
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(s.api.refreshRelease)
	wg.Wait()

	s.Equal(int32(1), atomic.LoadInt32(&s.api.refreshCalls))
	close(tokens)
	for token := range tokens {
		s.Equal("def", token)
	}
}

func (s *AuthServiceTestSuite) TestCheckAuthWithoutToken() {
	s.False(s.service.CheckAuth(s.ctx))
	s.Equal(int32(0), atomic.LoadInt32(&s.api.refreshCalls))
}

func (s *AuthServiceTestSuite) TestCheckAuthRefreshesExistingToken() {
	s.Require().NoError(s.store.Save(s.ctx, "persisted"))
	s.Require().NoError(s.service.LoadSession(s.ctx))
	s.Equal("persisted", s.service.Token())
	s.False(s.service.IsAuthenticated())

	s.api.refreshResp = s.authResponse("renewed")
	s.True(s.service.CheckAuth(s.ctx))
	s.True(s.service.IsAuthenticated())
	s.Equal("renewed", s.service.Token())
}

func (s *AuthServiceTestSuite) TestCheckAuthSwallowsRefreshError() {
	s.Require().NoError(s.store.Save(s.ctx, "persisted"))
	s.Require().NoError(s.service.LoadSession(s.ctx))

	s.api.refreshErr = &clients.APIError{StatusCode: http.StatusUnauthorized}
	s.False(s.service.CheckAuth(s.ctx))
	s.False(s.service.IsAuthenticated())
}

func (s *AuthServiceTestSuite) TestLogoutIsBestEffort() {
	s.api.loginResp = s.authResponse("abc")
	_, err := s.service.Login(s.ctx, "a@b.c", "secret")
	s.Require().NoError(err)

	s.api.logoutErr = &clients.APIError{StatusCode: http.StatusInternalServerError}
	s.service.Logout(s.ctx)

	s.False(s.service.IsAuthenticated())
	s.Empty(s.service.Token())
	_, loadErr := s.store.Load(s.ctx)
	s.ErrorIs(loadErr, tokenstore.ErrNotFound)
	s.Equal(1, s.channel.disconnects)
}

func (s *AuthServiceTestSuite) TestUpdateUserPaymentStatus() {
	s.api.loginResp = s.authResponse("abc")
	_, err := s.service.Login(s.ctx, "a@b.c", "secret")
	s.Require().NoError(err)
	s.False(s.service.IsPaidUser())
	s.Equal(models.UserRoleFree, s.service.UserRole())

	until := time.Now().Add(30 * 24 * time.Hour)
	s.service.UpdateUserPaymentStatus(true, &until)

	s.True(s.service.IsPaidUser())
	s.Equal(models.UserRolePaid, s.service.UserRole())
	session := s.service.Session()
	s.Require().NotNil(session.User)
	s.Require().NotNil(session.User.PaidUntil)
	s.True(session.User.PaidUntil.Equal(until))
}

func (s *AuthServiceTestSuite) TestVerifyPaymentUnlocksPaidTier() {
	s.api.loginResp = s.authResponse("abc")
	_, err := s.service.Login(s.ctx, "a@b.c", "secret")
	s.Require().NoError(err)

	expires := time.Now().Add(30 * 24 * time.Hour)
	s.api.verifyResp = &models.Payment{ID: 1, OrderID: "ORDER-1", Status: "completed", ExpiresAt: &expires}

	payment, err := s.service.VerifyPayment(s.ctx, "ORDER-1", "monthly")
	s.Require().NoError(err)
	s.Equal("completed", payment.Status)
	s.True(s.service.IsPaidUser())
	s.Equal(models.UserRolePaid, s.service.UserRole())
}

func (s *AuthServiceTestSuite) TestVerifyPaymentFailureLeavesUserFree() {
	s.api.loginResp = s.authResponse("abc")
	_, err := s.service.Login(s.ctx, "a@b.c", "secret")
	s.Require().NoError(err)

	s.api.verifyErr = &clients.APIError{StatusCode: http.StatusBadRequest, Detail: "Order not captured"}

	_, err = s.service.VerifyPayment(s.ctx, "ORDER-1", "monthly")
	s.Require().Error(err)
	s.Equal("Order not captured", s.service.LastError())
	s.False(s.service.IsPaidUser())
}

func (s *AuthServiceTestSuite) TestSubscribeNotifiedOnChanges() {
	var mu sync.Mutex
	notifications := 0
	s.service.Subscribe(func(models.Session) {
		mu.Lock()
		notifications++
		mu.Unlock()
	})

	s.api.loginResp = s.authResponse("abc")
	_, err := s.service.Login(s.ctx, "a@b.c", "secret")
	s.Require().NoError(err)

	mu.Lock()
	defer mu.Unlock()
	s.Equal(1, notifications)
}

func TestAuthServiceSuite(t *testing.T) {
	suite.Run(t, new(AuthServiceTestSuite))
}
