package authserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hmabdullah7770/sessionkit/pkg/session"
	"github.com/hmabdullah7770/sessionkit/pkg/vault"
	"go.uber.org/zap/zaptest"
)

const (
	testIdentifier = "amina@example.com"
	testPassword   = "correct-horse-battery"
)

type testClock struct {
	mutex sync.Mutex
	now   time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)}
}

func (clock *testClock) Now() time.Time {
	clock.mutex.Lock()
	defer clock.mutex.Unlock()
	return clock.now
}

func (clock *testClock) Advance(step time.Duration) {
	clock.mutex.Lock()
	defer clock.mutex.Unlock()
	clock.now = clock.now.Add(step)
}

type staticGoogleValidator struct {
	identity GoogleIdentity
	reject   bool
}

func (validator *staticGoogleValidator) Validate(ctx context.Context, googleIDToken string) (GoogleIdentity, error) {
	if validator.reject {
		return GoogleIdentity{}, ErrGoogleTokenRejected
	}
	return validator.identity, nil
}

type serverFixture struct {
	httpServer *httptest.Server
	clock      *testClock
	users      *InMemoryUsers
	refresh    RefreshTokenStore
}

func newServerFixture(test *testing.T, googleValidator GoogleTokenValidator) *serverFixture {
	test.Helper()
	gin.SetMode(gin.TestMode)

	clock := newTestClock()
	users := NewInMemoryUsers()
	if _, createErr := users.CreatePasswordUser(context.Background(), testIdentifier, testPassword, "Amina", []string{"user"}); createErr != nil {
		test.Fatalf("seeding user failed: %v", createErr)
	}
	refreshStore := NewMemoryRefreshTokenStore(clock)
	server, newErr := New(ServerConfig{
		SigningKey: []byte("integration-test-signing-secret"),
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 60 * 24 * time.Hour,
	}, users, refreshStore, googleValidator, clock, zaptest.NewLogger(test))
	if newErr != nil {
		test.Fatalf("building server failed: %v", newErr)
	}
	httpServer := httptest.NewServer(server.Router())
	test.Cleanup(httpServer.Close)
	return &serverFixture{httpServer: httpServer, clock: clock, users: users, refresh: refreshStore}
}

func (fixture *serverFixture) postJSON(test *testing.T, path string, payload any, bearer string) (*http.Response, map[string]any) {
	test.Helper()
	body, marshalErr := json.Marshal(payload)
	if marshalErr != nil {
		test.Fatalf("encoding payload failed: %v", marshalErr)
	}
	request, buildErr := http.NewRequest(http.MethodPost, fixture.httpServer.URL+path, bytes.NewReader(body))
	if buildErr != nil {
		test.Fatalf("building request failed: %v", buildErr)
	}
	request.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		request.Header.Set("Authorization", "Bearer "+bearer)
	}
	response, sendErr := fixture.httpServer.Client().Do(request)
	if sendErr != nil {
		test.Fatalf("request failed: %v", sendErr)
	}
	defer func() { _ = response.Body.Close() }()
	decoded := map[string]any{}
	_ = json.NewDecoder(response.Body).Decode(&decoded)
	return response, decoded
}

func (fixture *serverFixture) getProfile(test *testing.T, bearer string) (*http.Response, map[string]any) {
	test.Helper()
	request, buildErr := http.NewRequest(http.MethodGet, fixture.httpServer.URL+"/api/profile", nil)
	if buildErr != nil {
		test.Fatalf("building request failed: %v", buildErr)
	}
	if bearer != "" {
		request.Header.Set("Authorization", "Bearer "+bearer)
	}
	response, sendErr := fixture.httpServer.Client().Do(request)
	if sendErr != nil {
		test.Fatalf("request failed: %v", sendErr)
	}
	defer func() { _ = response.Body.Close() }()
	decoded := map[string]any{}
	_ = json.NewDecoder(response.Body).Decode(&decoded)
	return response, decoded
}

func (fixture *serverFixture) login(test *testing.T) (string, string) {
	test.Helper()
	response, body := fixture.postJSON(test, "/auth/login", map[string]string{
		"identifier": testIdentifier,
		"password":   testPassword,
	}, "")
	if response.StatusCode != http.StatusOK {
		test.Fatalf("login answered %d", response.StatusCode)
	}
	accessToken, _ := body["access_token"].(string)
	refreshToken, _ := body["refresh_token"].(string)
	if accessToken == "" || refreshToken == "" {
		test.Fatalf("login returned an incomplete pair: %v", body)
	}
	return accessToken, refreshToken
}

func TestNewRejectsInvalidConfiguration(test *testing.T) {
	users := NewInMemoryUsers()
	refreshStore := NewMemoryRefreshTokenStore(nil)

	if _, newErr := New(ServerConfig{AccessTTL: time.Minute, RefreshTTL: time.Hour}, users, refreshStore, nil, nil, nil); !errors.Is(newErr, ErrMissingSigningKey) {
		test.Fatalf("expected ErrMissingSigningKey, got %v", newErr)
	}
	if _, newErr := New(ServerConfig{SigningKey: []byte("k"), RefreshTTL: time.Hour}, users, refreshStore, nil, nil, nil); !errors.Is(newErr, ErrInvalidAccessTTL) {
		test.Fatalf("expected ErrInvalidAccessTTL, got %v", newErr)
	}
	if _, newErr := New(ServerConfig{SigningKey: []byte("k"), AccessTTL: time.Minute}, users, refreshStore, nil, nil, nil); !errors.Is(newErr, ErrInvalidRefreshTTL) {
		test.Fatalf("expected ErrInvalidRefreshTTL, got %v", newErr)
	}
}

func TestLoginRejectsBadPassword(test *testing.T) {
	fixture := newServerFixture(test, nil)
	response, body := fixture.postJSON(test, "/auth/login", map[string]string{
		"identifier": testIdentifier,
		"password":   "wrong",
	}, "")
	if response.StatusCode != http.StatusUnauthorized {
		test.Fatalf("expected 401, got %d", response.StatusCode)
	}
	if body["error"] != "invalid_credentials" {
		test.Fatalf("expected invalid_credentials, got %v", body["error"])
	}
}

func TestRefreshRotatesAndRejectsReplay(test *testing.T) {
	fixture := newServerFixture(test, nil)
	_, refreshToken := fixture.login(test)

	response, body := fixture.postJSON(test, "/auth/refresh", map[string]string{"refresh_token": refreshToken}, "")
	if response.StatusCode != http.StatusOK {
		test.Fatalf("refresh answered %d", response.StatusCode)
	}
	rotatedRefresh, _ := body["refresh_token"].(string)
	if rotatedRefresh == "" || rotatedRefresh == refreshToken {
		test.Fatal("expected a rotated refresh token")
	}

	// The consumed token must never work again.
	replayResponse, replayBody := fixture.postJSON(test, "/auth/refresh", map[string]string{"refresh_token": refreshToken}, "")
	if replayResponse.StatusCode != http.StatusUnauthorized {
		test.Fatalf("expected 401 on replay, got %d", replayResponse.StatusCode)
	}
	if replayBody["error"] != "refresh_invalid" {
		test.Fatalf("expected refresh_invalid, got %v", replayBody["error"])
	}

	// The rotated token still works.
	rotatedResponse, _ := fixture.postJSON(test, "/auth/refresh", map[string]string{"refresh_token": rotatedRefresh}, "")
	if rotatedResponse.StatusCode != http.StatusOK {
		test.Fatalf("rotated refresh answered %d", rotatedResponse.StatusCode)
	}
}

func TestRefreshRejectsUnknownToken(test *testing.T) {
	fixture := newServerFixture(test, nil)
	response, body := fixture.postJSON(test, "/auth/refresh", map[string]string{"refresh_token": "no-such-token"}, "")
	if response.StatusCode != http.StatusUnauthorized {
		test.Fatalf("expected 401, got %d", response.StatusCode)
	}
	if body["error"] != "refresh_invalid" {
		test.Fatalf("expected refresh_invalid, got %v", body["error"])
	}
}

func TestExpiredAccessTokenAnswersTokenExpired(test *testing.T) {
	fixture := newServerFixture(test, nil)
	accessToken, refreshToken := fixture.login(test)

	profileResponse, profileBody := fixture.getProfile(test, accessToken)
	if profileResponse.StatusCode != http.StatusOK {
		test.Fatalf("profile answered %d", profileResponse.StatusCode)
	}
	if profileBody["user_email"] != testIdentifier {
		test.Fatalf("expected %s, got %v", testIdentifier, profileBody["user_email"])
	}

	fixture.clock.Advance(16 * time.Minute)
	expiredResponse, expiredBody := fixture.getProfile(test, accessToken)
	if expiredResponse.StatusCode != http.StatusUnauthorized {
		test.Fatalf("expected 401, got %d", expiredResponse.StatusCode)
	}
	if expiredBody["error"] != "token_expired" {
		test.Fatalf("expected token_expired, got %v", expiredBody["error"])
	}

	// The refresh token outlives the access token.
	refreshResponse, _ := fixture.postJSON(test, "/auth/refresh", map[string]string{"refresh_token": refreshToken}, "")
	if refreshResponse.StatusCode != http.StatusOK {
		test.Fatalf("refresh answered %d", refreshResponse.StatusCode)
	}
}

func TestMalformedBearerAnswersTokenInvalid(test *testing.T) {
	fixture := newServerFixture(test, nil)
	response, body := fixture.getProfile(test, "not-a-jwt")
	if response.StatusCode != http.StatusUnauthorized {
		test.Fatalf("expected 401, got %d", response.StatusCode)
	}
	if body["error"] != "token_invalid" {
		test.Fatalf("expected token_invalid, got %v", body["error"])
	}
}

func TestLogoutRevokesEveryRefreshToken(test *testing.T) {
	fixture := newServerFixture(test, nil)
	accessToken, refreshToken := fixture.login(test)

	logoutResponse, logoutBody := fixture.postJSON(test, "/auth/logout", nil, accessToken)
	if logoutResponse.StatusCode != http.StatusOK {
		test.Fatalf("logout answered %d", logoutResponse.StatusCode)
	}
	if logoutBody["status"] != "logged_out" {
		test.Fatalf("expected logged_out, got %v", logoutBody["status"])
	}

	refreshResponse, refreshBody := fixture.postJSON(test, "/auth/refresh", map[string]string{"refresh_token": refreshToken}, "")
	if refreshResponse.StatusCode != http.StatusUnauthorized {
		test.Fatalf("expected 401 after logout, got %d", refreshResponse.StatusCode)
	}
	if refreshBody["error"] != "refresh_invalid" {
		test.Fatalf("expected refresh_invalid, got %v", refreshBody["error"])
	}
}

func TestGoogleSignInCreatesUser(test *testing.T) {
	fixture := newServerFixture(test, &staticGoogleValidator{identity: GoogleIdentity{
		Subject:     "google-sub-7",
		Email:       "omar@example.com",
		DisplayName: "Omar",
	}})

	response, body := fixture.postJSON(test, "/auth/google", map[string]string{"google_id_token": "opaque-google-token"}, "")
	if response.StatusCode != http.StatusOK {
		test.Fatalf("google sign-in answered %d", response.StatusCode)
	}
	accessToken, _ := body["access_token"].(string)
	if accessToken == "" {
		test.Fatal("expected an access token")
	}
	userPayload, _ := body["user"].(map[string]any)
	if userPayload["user_email"] != "omar@example.com" {
		test.Fatalf("expected omar@example.com, got %v", userPayload["user_email"])
	}

	// A second sign-in with the same subject resolves to the same user.
	secondResponse, secondBody := fixture.postJSON(test, "/auth/google", map[string]string{"google_id_token": "opaque-google-token"}, "")
	if secondResponse.StatusCode != http.StatusOK {
		test.Fatalf("second google sign-in answered %d", secondResponse.StatusCode)
	}
	firstUser, _ := userPayload["user_id"].(string)
	secondUser, _ := secondBody["user"].(map[string]any)["user_id"].(string)
	if firstUser == "" || firstUser != secondUser {
		test.Fatalf("expected a stable user id, got %q and %q", firstUser, secondUser)
	}
}

func TestGoogleSignInRejectsBadToken(test *testing.T) {
	fixture := newServerFixture(test, &staticGoogleValidator{reject: true})
	response, body := fixture.postJSON(test, "/auth/google", map[string]string{"google_id_token": "bad-token"}, "")
	if response.StatusCode != http.StatusUnauthorized {
		test.Fatalf("expected 401, got %d", response.StatusCode)
	}
	if body["error"] != "invalid_google_token" {
		test.Fatalf("expected invalid_google_token, got %v", body["error"])
	}
}

// Full client/server cycle: login, silent refresh after expiry, logout,
// clean re-login.
func TestSessionClientEndToEnd(test *testing.T) {
	fixture := newServerFixture(test, nil)
	credentialVault, vaultErr := vault.NewMemoryVault("storeapp")
	if vaultErr != nil {
		test.Fatalf("building vault failed: %v", vaultErr)
	}
	client, newErr := session.New(session.Config{
		BaseURL: fixture.httpServer.URL,
		Vault:   credentialVault,
		Clock:   fixture.clock,
		Logger:  zaptest.NewLogger(test),
	})
	if newErr != nil {
		test.Fatalf("building client failed: %v", newErr)
	}

	snapshot, loginErr := client.Login(context.Background(), session.Credentials{
		Identifier: testIdentifier,
		Password:   testPassword,
	})
	if loginErr != nil {
		test.Fatalf("login failed: %v", loginErr)
	}
	if snapshot.User.GetUserEmail() != testIdentifier {
		test.Fatalf("expected %s, got %q", testIdentifier, snapshot.User.GetUserEmail())
	}

	// Expire the access token; the client must refresh silently.
	fixture.clock.Advance(16 * time.Minute)
	response, doErr := client.Do(context.Background(), http.MethodGet, "/api/profile", nil)
	if doErr != nil {
		test.Fatalf("profile request failed: %v", doErr)
	}
	var profile map[string]any
	if decodeErr := json.NewDecoder(response.Body).Decode(&profile); decodeErr != nil {
		test.Fatalf("decoding profile failed: %v", decodeErr)
	}
	_ = response.Body.Close()
	if response.StatusCode != http.StatusOK {
		test.Fatalf("profile answered %d", response.StatusCode)
	}
	if profile["user_email"] != testIdentifier {
		test.Fatalf("expected %s, got %v", testIdentifier, profile["user_email"])
	}

	status, logoutErr := client.Logout(context.Background())
	if logoutErr != nil {
		test.Fatalf("logout failed: %v", logoutErr)
	}
	if status != session.StatusLoggedOut {
		test.Fatalf("expected %q, got %q", session.StatusLoggedOut, status)
	}
	if client.IsAuthenticated() {
		test.Fatal("expected no session after logout")
	}

	if _, reloginErr := client.Login(context.Background(), session.Credentials{
		Identifier: testIdentifier,
		Password:   testPassword,
	}); reloginErr != nil {
		test.Fatalf("re-login failed: %v", reloginErr)
	}
}

func TestRevokeAllForUserLeavesOtherUsersAlone(test *testing.T) {
	clock := newTestClock()
	store := NewMemoryRefreshTokenStore(clock)
	expiresUnix := clock.Now().Add(time.Hour).Unix()

	_, aminaOpaque, issueErr := store.Issue(context.Background(), "user-amina", expiresUnix, "")
	if issueErr != nil {
		test.Fatalf("issuing token failed: %v", issueErr)
	}
	_, omarOpaque, issueErr := store.Issue(context.Background(), "user-omar", expiresUnix, "")
	if issueErr != nil {
		test.Fatalf("issuing token failed: %v", issueErr)
	}

	if revokeErr := store.RevokeAllForUser(context.Background(), "user-amina"); revokeErr != nil {
		test.Fatalf("revoking failed: %v", revokeErr)
	}
	if _, _, _, validateErr := store.Validate(context.Background(), aminaOpaque); !errors.Is(validateErr, ErrRefreshTokenRevoked) {
		test.Fatalf("expected ErrRefreshTokenRevoked, got %v", validateErr)
	}
	if _, _, _, validateErr := store.Validate(context.Background(), omarOpaque); validateErr != nil {
		test.Fatalf("other user's token must survive: %v", validateErr)
	}
}

func TestRefreshTokenExpiryHonorsClock(test *testing.T) {
	clock := newTestClock()
	store := NewMemoryRefreshTokenStore(clock)
	_, opaque, issueErr := store.Issue(context.Background(), "user-amina", clock.Now().Add(time.Hour).Unix(), "")
	if issueErr != nil {
		test.Fatalf("issuing token failed: %v", issueErr)
	}

	clock.Advance(2 * time.Hour)
	if _, _, _, validateErr := store.Validate(context.Background(), opaque); !errors.Is(validateErr, ErrRefreshTokenExpired) {
		test.Fatalf("expected ErrRefreshTokenExpired, got %v", validateErr)
	}
}

func TestVerifyPasswordRejectsUnknownIdentifier(test *testing.T) {
	users := NewInMemoryUsers()
	if _, verifyErr := users.VerifyPassword(context.Background(), "nobody@example.com", "whatever"); !errors.Is(verifyErr, ErrInvalidCredentials) {
		test.Fatalf("expected ErrInvalidCredentials, got %v", verifyErr)
	}
}

func TestCreatePasswordUserRejectsDuplicates(test *testing.T) {
	users := NewInMemoryUsers()
	if _, createErr := users.CreatePasswordUser(context.Background(), testIdentifier, testPassword, "Amina", nil); createErr != nil {
		test.Fatalf("creating user failed: %v", createErr)
	}
	if _, createErr := users.CreatePasswordUser(context.Background(), testIdentifier, "other-password", "Amina Again", nil); !errors.Is(createErr, ErrIdentifierTaken) {
		test.Fatalf("expected ErrIdentifierTaken, got %v", createErr)
	}
	userID, createErr := users.CreatePasswordUser(context.Background(), "omar@example.com", "another-pass", "Omar", []string{"user"})
	if createErr != nil || userID == "" {
		test.Fatalf("creating second user failed: %v", createErr)
	}
}
