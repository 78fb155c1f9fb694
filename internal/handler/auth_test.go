package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/vidtube/backend/internal/config"
	"github.com/vidtube/backend/internal/model"
	"github.com/vidtube/backend/internal/service"
)

type fakeUserStore struct {
	users map[int64]*model.User
}

func (f *fakeUserStore) CreateUser(ctx context.Context, username, email, fullName, passwordHash string) (*model.User, error) {
	user := &model.User{
		ID:           int64(len(f.users) + 1),
		Username:     username,
		Email:        email,
		FullName:     fullName,
		PasswordHash: passwordHash,
	}
	f.users[user.ID] = user
	return user, nil
}

func (f *fakeUserStore) GetUserByLogin(ctx context.Context, login string) (*model.User, error) {
	for _, u := range f.users {
		if u.Username == login || u.Email == login {
			copied := *u
			return &copied, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (f *fakeUserStore) GetUserByID(ctx context.Context, userID int64) (*model.User, error) {
	u, ok := f.users[userID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *u
	return &copied, nil
}

func (f *fakeUserStore) SetRefreshToken(ctx context.Context, userID int64, token string) error {
	if u, ok := f.users[userID]; ok {
		u.RefreshToken = token
	}
	return nil
}

func (f *fakeUserStore) ClearRefreshToken(ctx context.Context, userID int64) error {
	if u, ok := f.users[userID]; ok {
		u.RefreshToken = ""
	}
	return nil
}

func (f *fakeUserStore) SwapRefreshToken(ctx context.Context, userID int64, oldToken, newToken string) (bool, error) {
	u, ok := f.users[userID]
	if !ok || u.RefreshToken != oldToken {
		return false, nil
	}
	u.RefreshToken = newToken
	return true, nil
}

func (f *fakeUserStore) UpdatePasswordHash(ctx context.Context, userID int64, passwordHash string) error {
	if u, ok := f.users[userID]; ok {
		u.PasswordHash = passwordHash
	}
	return nil
}

func newTestRouter(t *testing.T) (*gin.Engine, *fakeUserStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	hash, err := bcrypt.GenerateFromPassword([]byte("correct horse"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt error: %v", err)
	}
	store := &fakeUserStore{users: map[int64]*model.User{
		1: {ID: 1, Username: "u1", Email: "u1@example.com", FullName: "Test User", PasswordHash: string(hash)},
	}}

	svc, err := service.NewSessionService(store, config.AuthConfig{
		AccessTokenSecret:  "access-secret",
		RefreshTokenSecret: "refresh-secret",
		AccessTokenTTL:     "15m",
		RefreshTokenTTL:    "168h",
	})
	if err != nil {
		t.Fatalf("NewSessionService error: %v", err)
	}

	h := NewAuthHandler(svc)
	r := gin.New()
	r.POST("/api/v1/auth/register", h.Register)
	r.POST("/api/v1/auth/login", h.Login)
	r.POST("/api/v1/auth/refresh", h.Refresh)

	protected := r.Group("/api/v1/auth")
	protected.Use(AuthMiddleware(svc))
	protected.POST("/logout", h.Logout)
	protected.GET("/me", h.Me)
	protected.POST("/change-password", h.ChangePassword)

	return r, store
}

func doJSON(r *gin.Engine, method, path, body string, mutate func(*http.Request)) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if mutate != nil {
		mutate(req)
	}
	r.ServeHTTP(w, req)
	return w
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var envelope map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("invalid JSON response: %v", err)
	}
	return envelope
}

func TestLoginHandlerValidation(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doJSON(r, http.MethodPost, "/api/v1/auth/login", `{`, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	envelope := decodeEnvelope(t, w)
	if envelope["success"] != false {
		t.Fatalf("error envelope must carry success=false: %v", envelope)
	}
}

func TestLoginHandlerSetsCookies(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doJSON(r, http.MethodPost, "/api/v1/auth/login", `{"login":"u1","password":"correct horse"}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	envelope := decodeEnvelope(t, w)
	if envelope["success"] != true || envelope["statusCode"] != float64(http.StatusOK) {
		t.Fatalf("unexpected envelope: %v", envelope)
	}
	data, ok := envelope["data"].(map[string]interface{})
	if !ok || data["accessToken"] == "" || data["refreshToken"] == "" {
		t.Fatalf("envelope data must carry both tokens: %v", envelope)
	}
	if user, ok := data["user"].(map[string]interface{}); !ok || user["username"] != "u1" {
		t.Fatalf("envelope data must carry the public user: %v", envelope)
	}

	cookies := w.Result().Cookies()
	var access, refresh *http.Cookie
	for _, c := range cookies {
		switch c.Name {
		case "accessToken":
			access = c
		case "refreshToken":
			refresh = c
		}
	}
	if access == nil || refresh == nil {
		t.Fatalf("expected both auth cookies, got %v", cookies)
	}
	for _, c := range []*http.Cookie{access, refresh} {
		if !c.HttpOnly || !c.Secure {
			t.Fatalf("auth cookies must be HttpOnly and Secure: %v", c)
		}
		if c.Value == "" {
			t.Fatalf("auth cookie value must not be empty")
		}
	}
}

func TestLoginHandlerWrongPassword(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doJSON(r, http.MethodPost, "/api/v1/auth/login", `{"login":"u1","password":"nope nope"}`, nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	if strings.Contains(w.Body.String(), "bcrypt") {
		t.Fatalf("error response must not leak internals: %s", w.Body.String())
	}
}

func TestLoginHandlerUnknownUser(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doJSON(r, http.MethodPost, "/api/v1/auth/login", `{"login":"ghost","password":"whatever!"}`, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestRefreshHandlerWithoutToken(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doJSON(r, http.MethodPost, "/api/v1/auth/refresh", `{}`, nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestRefreshHandlerFromCookie(t *testing.T) {
	r, store := newTestRouter(t)

	login := doJSON(r, http.MethodPost, "/api/v1/auth/login", `{"login":"u1","password":"correct horse"}`, nil)
	var refreshCookie *http.Cookie
	for _, c := range login.Result().Cookies() {
		if c.Name == "refreshToken" {
			refreshCookie = c
		}
	}
	if refreshCookie == nil {
		t.Fatalf("login did not set a refresh cookie")
	}

	w := doJSON(r, http.MethodPost, "/api/v1/auth/refresh", ``, func(req *http.Request) {
		req.AddCookie(refreshCookie)
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	envelope := decodeEnvelope(t, w)
	data, _ := envelope["data"].(map[string]interface{})
	rotated, _ := data["refreshToken"].(string)
	if rotated == "" || rotated == refreshCookie.Value {
		t.Fatalf("refresh must return a rotated token")
	}
	if store.users[1].RefreshToken != rotated {
		t.Fatalf("store must hold the rotated token")
	}

	// Replaying the pre-rotation cookie is rejected.
	again := doJSON(r, http.MethodPost, "/api/v1/auth/refresh", ``, func(req *http.Request) {
		req.AddCookie(refreshCookie)
	})
	if again.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for replayed token, got %d", again.Code)
	}
}

func TestRefreshHandlerFromBody(t *testing.T) {
	r, store := newTestRouter(t)

	login := doJSON(r, http.MethodPost, "/api/v1/auth/login", `{"login":"u1","password":"correct horse"}`, nil)
	envelope := decodeEnvelope(t, login)
	data, _ := envelope["data"].(map[string]interface{})
	token, _ := data["refreshToken"].(string)
	if token == "" {
		t.Fatalf("login did not return a refresh token")
	}

	body, _ := json.Marshal(model.RefreshRequest{RefreshToken: token})
	w := doJSON(r, http.MethodPost, "/api/v1/auth/refresh", string(body), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for body-borne refresh token, got %d: %s", w.Code, w.Body.String())
	}
	if store.users[1].RefreshToken == token {
		t.Fatalf("refresh from body must still rotate the stored token")
	}
}

func TestLogoutHandlerClearsCookies(t *testing.T) {
	r, store := newTestRouter(t)

	login := doJSON(r, http.MethodPost, "/api/v1/auth/login", `{"login":"u1","password":"correct horse"}`, nil)
	envelope := decodeEnvelope(t, login)
	data, _ := envelope["data"].(map[string]interface{})
	access, _ := data["accessToken"].(string)

	w := doJSON(r, http.MethodPost, "/api/v1/auth/logout", ``, func(req *http.Request) {
		req.Header.Set("Authorization", "Bearer "+access)
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	if store.users[1].RefreshToken != "" {
		t.Fatalf("logout must clear the stored refresh token")
	}

	cleared := 0
	for _, c := range w.Result().Cookies() {
		if (c.Name == "accessToken" || c.Name == "refreshToken") && c.Value == "" && c.MaxAge < 0 {
			cleared++
		}
	}
	if cleared != 2 {
		t.Fatalf("logout must clear both cookies, cleared %d", cleared)
	}
}

func TestMeHandler(t *testing.T) {
	r, _ := newTestRouter(t)

	// Without credentials.
	w := doJSON(r, http.MethodGet, "/api/v1/auth/me", ``, nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}

	login := doJSON(r, http.MethodPost, "/api/v1/auth/login", `{"login":"u1","password":"correct horse"}`, nil)
	envelope := decodeEnvelope(t, login)
	data, _ := envelope["data"].(map[string]interface{})
	access, _ := data["accessToken"].(string)

	w = doJSON(r, http.MethodGet, "/api/v1/auth/me", ``, func(req *http.Request) {
		req.Header.Set("Authorization", "Bearer "+access)
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if strings.Contains(w.Body.String(), "passwordHash") {
		t.Fatalf("public user view must not expose the password hash")
	}

	// The access cookie works as an alternative to the Bearer header.
	var accessCookie *http.Cookie
	for _, c := range login.Result().Cookies() {
		if c.Name == "accessToken" {
			accessCookie = c
		}
	}
	w = doJSON(r, http.MethodGet, "/api/v1/auth/me", ``, func(req *http.Request) {
		req.AddCookie(accessCookie)
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 via cookie, got %d", w.Code)
	}
}

func TestRegisterHandler(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doJSON(r, http.MethodPost, "/api/v1/auth/register",
		`{"fullName":"New User","username":"u2","email":"u2@example.com","password":"long enough"}`, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	w = doJSON(r, http.MethodPost, "/api/v1/auth/register",
		`{"fullName":"","username":"","email":"","password":""}`, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty fields, got %d", w.Code)
	}
}
