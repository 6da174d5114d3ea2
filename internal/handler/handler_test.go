package handler_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/SergeiKhy/shortlink/internal/auth"
	"github.com/SergeiKhy/shortlink/internal/handler"
	"github.com/SergeiKhy/shortlink/internal/metrics"
	"github.com/SergeiKhy/shortlink/internal/models"
	"github.com/SergeiKhy/shortlink/internal/sequence"
	"github.com/SergeiKhy/shortlink/internal/service"
	"github.com/SergeiKhy/shortlink/internal/service/mocks"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

type downSequence struct{}

func (downSequence) Next(context.Context) (*big.Int, error) {
	return nil, sequence.ErrUnavailable
}

type testEnv struct {
	router    *gin.Engine
	tokens    auth.TokenService
	linkRepo  *mocks.MockLinkRepository
	clickRepo *mocks.MockClickRepository
}

type envOptions struct {
	seq            sequence.Sequence
	baseURL        string
	redirectStatus int
	health         map[string]handler.Pinger
	metrics        http.Handler
}

func setupEnv(t *testing.T, opts envOptions) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	if opts.seq == nil {
		opts.seq = sequence.NewMemory(big.NewInt(sequence.DefaultStart))
	}
	if opts.health == nil {
		opts.health = map[string]handler.Pinger{"postgres": stubPinger{}, "redis": stubPinger{}}
	}

	tokens, err := auth.NewHS256Service("secret", "url-shortener", time.Hour)
	require.NoError(t, err)

	linkRepo := mocks.NewMockLinkRepository()
	clickRepo := mocks.NewMockClickRepository()

	linkService := service.NewLinkService(linkRepo, mocks.NewMockCacheRepository(), opts.seq, nil)
	authService := service.NewAuthService(mocks.NewMockUserRepository(), tokens, auth.NewPasswordHasher(bcrypt.MinCost), nil)
	clickProc := service.NewClickProcessor(clickRepo, linkRepo, nil)
	clickProc.Start()
	t.Cleanup(clickProc.Stop)

	router := handler.NewRouter(handler.RouterDeps{
		LinkService:    linkService,
		AuthService:    authService,
		ClickProcessor: clickProc,
		Tokens:         tokens,
		Health:         opts.health,
		AllowedOrigins: []string{"http://localhost:5173"},
		BaseURL:        opts.baseURL,
		RedirectStatus: opts.redirectStatus,
		MetricsHandler: opts.metrics,
	})

	return &testEnv{router: router, tokens: tokens, linkRepo: linkRepo, clickRepo: clickRepo}
}

func (e *testEnv) do(method, path string, body any, token string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, _ := http.NewRequest(method, path, reader)
	req.Host = "example.com"
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) token(t *testing.T, userID int64) string {
	t.Helper()
	token, err := e.tokens.Sign(userID, "user"+strconv.FormatInt(userID, 10))
	require.NoError(t, err)
	return token
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}

func encodePassword(p string) string {
	return base64.StdEncoding.EncodeToString([]byte(p))
}

func TestCreateLink(t *testing.T) {
	env := setupEnv(t, envOptions{})
	token := env.token(t, 1)

	w := env.do("POST", "/api/v1/links", gin.H{"longUrl": "https://example.com/a"}, token)
	require.Equal(t, http.StatusCreated, w.Code)

	resp := decode[handler.CreateLinkResponse](t, w)
	assert.Equal(t, "success", resp.Status)
	assert.Equal(t, "G8", resp.ShortCode)
	assert.Equal(t, "G8", resp.ShortID)
	assert.Equal(t, "http://example.com/G8", resp.ShortURL)
	assert.Equal(t, "https://example.com/a", resp.LongURL)

	// псевдоним для веб-клиента выдаёт следующий код
	w = env.do("POST", "/api/v1/make_link_short", gin.H{"longUrl": "https://example.com/b"}, token)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "G9", decode[handler.CreateLinkResponse](t, w).ShortCode)
}

func TestCreateLink_BaseURL(t *testing.T) {
	env := setupEnv(t, envOptions{baseURL: "https://sho.rt"})

	w := env.do("POST", "/api/v1/links", gin.H{"longUrl": "https://example.com"}, env.token(t, 1))
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "https://sho.rt/G8", decode[handler.CreateLinkResponse](t, w).ShortURL)
}

func TestCreateLink_Errors(t *testing.T) {
	env := setupEnv(t, envOptions{})
	token := env.token(t, 1)

	tests := []struct {
		name   string
		body   any
		token  string
		status int
		code   string
	}{
		{"без токена", gin.H{"longUrl": "https://example.com"}, "", http.StatusUnauthorized, "missing_token"},
		{"невалидный токен", gin.H{"longUrl": "https://example.com"}, "garbage", http.StatusForbidden, "invalid_token"},
		{"нет longUrl", gin.H{}, token, http.StatusBadRequest, "invalid_request"},
		{"невалидный URL", gin.H{"longUrl": "not-a-url"}, token, http.StatusBadRequest, "invalid_url"},
		{"спам домен", gin.H{"longUrl": "https://malware.com/bad"}, token, http.StatusBadRequest, "spam_domain"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do("POST", "/api/v1/links", tt.body, tt.token)
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.code, decode[handler.ErrorResponse](t, w).Error)
		})
	}
}

func TestCreateLink_SequenceUnavailable(t *testing.T) {
	env := setupEnv(t, envOptions{seq: downSequence{}})

	w := env.do("POST", "/api/v1/links", gin.H{"longUrl": "https://example.com"}, env.token(t, 1))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "sequence_unavailable", decode[handler.ErrorResponse](t, w).Error)
}

func TestCreateLink_Collision(t *testing.T) {
	env := setupEnv(t, envOptions{})
	env.linkRepo.Put(&models.Link{ShortCode: "G8", LongURL: "https://taken.example"})

	w := env.do("POST", "/api/v1/links", gin.H{"longUrl": "https://example.com"}, env.token(t, 1))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestRedirect(t *testing.T) {
	env := setupEnv(t, envOptions{})
	w := env.do("POST", "/api/v1/links", gin.H{"longUrl": "https://example.com/target"}, env.token(t, 1))
	require.Equal(t, http.StatusCreated, w.Code)

	w = env.do("GET", "/G8", nil, "")
	assert.Equal(t, http.StatusMovedPermanently, w.Code)
	assert.Equal(t, "https://example.com/target", w.Header().Get("Location"))

	assert.Eventually(t, func() bool { return env.clickRepo.Count() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestRedirect_ConfiguredStatus(t *testing.T) {
	env := setupEnv(t, envOptions{redirectStatus: http.StatusFound})
	env.linkRepo.Put(&models.Link{ShortCode: "abc", LongURL: "https://example.com"})

	w := env.do("GET", "/abc", nil, "")
	assert.Equal(t, http.StatusFound, w.Code)
}

func TestRedirect_Errors(t *testing.T) {
	env := setupEnv(t, envOptions{})
	past := time.Now().Add(-time.Hour)
	env.linkRepo.Put(&models.Link{ShortCode: "old", LongURL: "https://example.com", ExpiresAt: &past})

	tests := []struct {
		name   string
		path   string
		status int
		code   string
	}{
		{"неизвестный код", "/zzzz", http.StatusNotFound, "not_found"},
		{"истёкшая ссылка", "/old", http.StatusNotFound, "not_found"},
		{"недопустимый символ", "/abc-def", http.StatusBadRequest, "invalid_code"},
		{"точка в коде", "/favicon.ico", http.StatusBadRequest, "invalid_code"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do("GET", tt.path, nil, "")
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.code, decode[handler.ErrorResponse](t, w).Error)
		})
	}
}

func TestUserLinksAndDelete(t *testing.T) {
	env := setupEnv(t, envOptions{})
	owner := env.token(t, 1)
	stranger := env.token(t, 2)

	for _, u := range []string{"https://example.com/1", "https://example.com/2"} {
		w := env.do("POST", "/api/v1/links", gin.H{"longUrl": u}, owner)
		require.Equal(t, http.StatusCreated, w.Code)
	}

	w := env.do("GET", "/api/v1/user_links", nil, owner)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[handler.UserLinksResponse](t, w)
	require.Equal(t, 2, list.Count)
	require.Len(t, list.Links, 2)

	w = env.do("GET", "/api/v1/user_links", nil, stranger)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, decode[handler.UserLinksResponse](t, w).Count)

	id := strconv.FormatInt(list.Links[0].ID, 10)

	w = env.do("DELETE", "/api/v1/links/"+id, nil, stranger)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do("DELETE", "/api/v1/links/"+id, nil, owner)
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do("DELETE", "/api/v1/links/"+id, nil, owner)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do("DELETE", "/api/v1/links/abc", nil, owner)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do("GET", "/"+list.Links[0].ShortCode, nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStats(t *testing.T) {
	env := setupEnv(t, envOptions{})
	token := env.token(t, 1)
	env.linkRepo.Put(&models.Link{ShortCode: "abc", LongURL: "https://example.com", UserID: 1})

	for i := 0; i < 3; i++ {
		req, _ := http.NewRequest("GET", "/abc", nil)
		req.RemoteAddr = "10.0.0." + strconv.Itoa(i%2+1) + ":1234"
		env.router.ServeHTTP(httptest.NewRecorder(), req)
	}
	require.Eventually(t, func() bool { return env.clickRepo.Count() == 3 }, 2*time.Second, 10*time.Millisecond)

	w := env.do("GET", "/api/v1/links/abc/stats", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	stats := decode[models.ClickStats](t, w)
	assert.Equal(t, int64(3), stats.TotalClicks)
	assert.Equal(t, int64(2), stats.UniqueClicks)

	w = env.do("GET", "/api/v1/links/abc/stats/daily?days=500", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	daily := decode[[]models.DailyClickStats](t, w)
	require.Len(t, daily, 1)
	assert.Equal(t, int64(3), daily[0].Clicks)

	w = env.do("GET", "/api/v1/links/a-b/stats", nil, token)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do("GET", "/api/v1/links/abc/stats", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRegisterAndLogin(t *testing.T) {
	env := setupEnv(t, envOptions{})

	w := env.do("POST", "/api/v1/auth/register", gin.H{"username": "alice", "password": encodePassword("password123")}, "")
	require.Equal(t, http.StatusCreated, w.Code)
	registered := decode[handler.AuthResponse](t, w)
	assert.NotEmpty(t, registered.Token)
	assert.NotZero(t, registered.UserID)

	w = env.do("POST", "/api/v1/auth/register", gin.H{"username": "alice", "password": encodePassword("password123")}, "")
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.do("POST", "/api/v1/auth/login", gin.H{"username": "alice", "password": encodePassword("password123")}, "")
	require.Equal(t, http.StatusOK, w.Code)
	loggedIn := decode[handler.AuthResponse](t, w)
	assert.Equal(t, registered.UserID, loggedIn.UserID)

	// выданный токен открывает защищённые маршруты
	w = env.do("GET", "/api/v1/user_links", nil, loggedIn.Token)
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do("POST", "/api/v1/auth/login", gin.H{"username": "alice", "password": encodePassword("wrongpassword")}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do("POST", "/api/v1/auth/login", gin.H{"username": "alice", "password": encodePassword("short")}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRegister_Validation(t *testing.T) {
	env := setupEnv(t, envOptions{})

	tests := []struct {
		name     string
		username string
		password string
		code     string
	}{
		{"пароль не base64", "alice", "plain text!", "invalid_password_format"},
		{"короткий пароль", "alice", encodePassword("short"), "password_too_short"},
		{"длинный пароль", "alice", encodePassword(string(bytes.Repeat([]byte("a"), 73))), "password_too_long"},
		{"короткое имя", "al", encodePassword("password123"), "invalid_username"},
		{"нет полей", "", "", "invalid_request"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do("POST", "/api/v1/auth/register", gin.H{"username": tt.username, "password": tt.password}, "")
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, tt.code, decode[handler.ErrorResponse](t, w).Error)
		})
	}
}

func TestHealth(t *testing.T) {
	env := setupEnv(t, envOptions{})

	w := env.do("GET", "/api/v1/health", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[map[string]any](t, w)
	assert.Equal(t, "ok", resp["status"])
	assert.Equal(t, "url-shortener", resp["service"])

	down := setupEnv(t, envOptions{health: map[string]handler.Pinger{
		"postgres": stubPinger{},
		"redis":    stubPinger{err: errors.New("connection refused")},
	}})
	w = down.do("GET", "/api/v1/health", nil, "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "redis")
}

func TestCORS(t *testing.T) {
	env := setupEnv(t, envOptions{})

	req, _ := http.NewRequest("OPTIONS", "/api/v1/links", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", "POST")
	req.Header.Set("Access-Control-Request-Headers", "Authorization, Content-Type")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestMetricsEndpoint(t *testing.T) {
	metrics.Init()
	env := setupEnv(t, envOptions{metrics: promhttp.Handler()})

	w := env.do("POST", "/api/v1/links", gin.H{"longUrl": "https://example.com"}, env.token(t, 1))
	require.Equal(t, http.StatusCreated, w.Code)
	env.do("GET", "/G8", nil, "")

	w = env.do("GET", "/metrics", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "shortlink_links_issued_total")
	// маршрут записывается шаблоном, а не реальным кодом
	assert.Contains(t, body, `route="/:code"`)
	assert.NotContains(t, body, `route="/G8"`)

	// без обработчика маршрут /metrics не регистрируется и уходит в редирект
	plain := setupEnv(t, envOptions{})
	w = plain.do("GET", "/metrics", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
