package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/d60-Lab/anonrelay/internal/api/handler"
	"github.com/d60-Lab/anonrelay/internal/api/middleware"
	"github.com/d60-Lab/anonrelay/internal/messenger"
	"github.com/d60-Lab/anonrelay/internal/repository"
	"github.com/d60-Lab/anonrelay/internal/reputation"
	"github.com/d60-Lab/anonrelay/internal/service"
	"github.com/d60-Lab/anonrelay/internal/telegram"
)

const (
	testAdmin    = int64(100)
	testPassword = "s3cret"
	testSecret   = "hook-secret"

	testJWTSecret = "0123456789abcdef0123456789abcdef"
)

type apiEnv struct {
	router    *gin.Engine
	reg       *repository.Registry
	transport *messenger.Fake
	token     string
	updates   chan telegram.Update
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, repository.AutoMigrate(db))

	tiers := reputation.MustNew([]reputation.Level{{Threshold: 0, Label: "novice"}, {Threshold: 5, Label: "active"}}, "max")
	reg := repository.NewRegistry(db, tiers)
	transport := messenger.NewFake()

	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	require.NoError(t, err)

	dispatcher := service.NewDispatcher(16, time.Second)
	stop := dispatcher.Start(1)
	t.Cleanup(func() { _ = stop(context.Background()) })

	updates := make(chan telegram.Update, 4)
	issuer, err := middleware.NewTokenIssuer(testJWTSecret, time.Hour)
	require.NoError(t, err)
	h := handler.New(handler.Options{
		Relay:        service.NewRelay(reg, transport, 0),
		Moderation:   service.NewModeration(reg, service.NewNotifier(messenger.NewFake(), 0), []int64{testAdmin}, "reported"),
		Admin:        service.NewAdmin(reg, "manual"),
		Account:      service.NewAccount(reg, "relay_bot"),
		Issuer:       issuer,
		Admins:       []int64{testAdmin},
		PasswordHash: string(hash),
		Dispatcher:   dispatcher,
		Webhooks: map[string]telegram.UpdateHandler{
			"main": func(ctx context.Context, u telegram.Update) error {
				updates <- u
				return nil
			},
		},
		WebhookSecret: testSecret,
	})
	env := &apiEnv{router: NewRouter(RouterConfig{}, h, issuer), reg: reg, transport: transport, updates: updates}
	env.token = env.login(t)
	return env
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (e *apiEnv) do(t *testing.T, method, path string, body interface{}, headers map[string]string) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	var env envelope
	if w.Body.Len() > 0 && w.Header().Get("Content-Type") != "" {
		_ = json.Unmarshal(w.Body.Bytes(), &env)
	}
	return w.Code, env
}

func (e *apiEnv) authed(t *testing.T, method, path string, body interface{}) (int, envelope) {
	t.Helper()
	return e.do(t, method, path, body, map[string]string{"Authorization": "Bearer " + e.token})
}

func (e *apiEnv) login(t *testing.T) string {
	t.Helper()
	code, resp := e.do(t, http.MethodPost, "/api/v1/auth/login", gin.H{"admin_id": testAdmin, "password": testPassword}, nil)
	require.Equal(t, http.StatusOK, code)
	var out struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &out))
	require.NotEmpty(t, out.Token)
	return out.Token
}

func TestLoginAndAuth(t *testing.T) {
	env := newAPIEnv(t)

	code, _ := env.do(t, http.MethodPost, "/api/v1/auth/login", gin.H{"admin_id": testAdmin, "password": "wrong"}, nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	code, _ = env.do(t, http.MethodPost, "/api/v1/auth/login", gin.H{"admin_id": 5, "password": testPassword}, nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = env.do(t, http.MethodGet, "/api/v1/stats", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	code, _ = env.do(t, http.MethodGet, "/api/v1/stats", nil, map[string]string{"Authorization": "Bearer nope"})
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = env.authed(t, http.MethodGet, "/api/v1/stats", nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestForgedTokenRejected(t *testing.T) {
	env := newAPIEnv(t)
	ctx := context.Background()
	require.NoError(t, env.reg.Ban(ctx, 7, testAdmin, "spam"))

	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   itoa(testAdmin),
		Issuer:    "anonrelay",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	}
	for _, key := range []string{"", "test-secret", testJWTSecret + "x"} {
		forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
		require.NoError(t, err)
		code, _ := env.do(t, http.MethodDelete, "/api/v1/bans", nil, map[string]string{"Authorization": "Bearer " + forged})
		assert.Equal(t, http.StatusUnauthorized, code, "key %q", key)
	}

	banned, err := env.reg.IsBanned(ctx, 7)
	require.NoError(t, err)
	assert.True(t, banned)
}

func TestSendReportBanFlow(t *testing.T) {
	env := newAPIEnv(t)

	code, resp := env.authed(t, http.MethodPost, "/api/v1/messages", gin.H{"receiver_id": 2, "sender_id": 1, "text": "hello"})
	require.Equal(t, http.StatusCreated, code)
	var sent service.SendResult
	require.NoError(t, json.Unmarshal(resp.Data, &sent))
	assert.True(t, sent.Delivered)

	code, _ = env.authed(t, http.MethodPost, "/api/v1/reports", gin.H{"reporter_id": 2, "transport_message_id": 424242})
	assert.Equal(t, http.StatusUnprocessableEntity, code)

	code, resp = env.authed(t, http.MethodPost, "/api/v1/reports", gin.H{"reporter_id": 2, "transport_message_id": sent.TransportMessageID})
	require.Equal(t, http.StatusCreated, code)
	var filed struct {
		Report struct {
			ID int64 `json:"id"`
		} `json:"report"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &filed))

	code, resp = env.authed(t, http.MethodGet, "/api/v1/reports/pending", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(resp.Data), "hello")

	code, resp = env.authed(t, http.MethodPost, "/api/v1/reports/"+itoa(filed.Report.ID)+"/ban", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(resp.Data), `"outcome":"banned"`)

	code, resp = env.authed(t, http.MethodPost, "/api/v1/reports/"+itoa(filed.Report.ID)+"/dismiss", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(resp.Data), `"outcome":"already_handled"`)

	code, _ = env.authed(t, http.MethodPost, "/api/v1/reports/999/ban", nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = env.authed(t, http.MethodPost, "/api/v1/messages", gin.H{"receiver_id": 2, "sender_id": 1, "text": "again"})
	assert.Equal(t, http.StatusForbidden, code)
}

func TestSendMessageErrors(t *testing.T) {
	env := newAPIEnv(t)

	code, _ := env.authed(t, http.MethodPost, "/api/v1/messages", gin.H{"receiver_id": 2, "text": "   "})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = env.authed(t, http.MethodPost, "/api/v1/messages", gin.H{"text": "x"})
	assert.Equal(t, http.StatusBadRequest, code)

	env.transport.Fail(3)
	code, resp := env.authed(t, http.MethodPost, "/api/v1/messages", gin.H{"receiver_id": 3, "text": "lost"})
	assert.Equal(t, http.StatusBadGateway, code)
	var res service.SendResult
	require.NoError(t, json.Unmarshal(resp.Data, &res))
	assert.NotZero(t, res.MessageID)
	assert.False(t, res.Delivered)
}

func TestBansEndpoints(t *testing.T) {
	env := newAPIEnv(t)

	code, _ := env.authed(t, http.MethodPost, "/api/v1/bans", gin.H{"user_id": 7, "reason": "spam"})
	assert.Equal(t, http.StatusCreated, code)
	code, _ = env.authed(t, http.MethodPost, "/api/v1/bans", gin.H{"user_id": 7})
	assert.Equal(t, http.StatusConflict, code)

	code, resp := env.authed(t, http.MethodGet, "/api/v1/bans", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(resp.Data), `"reason":"spam"`)
	assert.Contains(t, string(resp.Data), `"banned_by":100`)

	code, _ = env.authed(t, http.MethodDelete, "/api/v1/bans/7", nil)
	assert.Equal(t, http.StatusOK, code)
	code, _ = env.authed(t, http.MethodDelete, "/api/v1/bans/7", nil)
	assert.Equal(t, http.StatusConflict, code)
	code, _ = env.authed(t, http.MethodDelete, "/api/v1/bans/abc", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	require.NoError(t, env.reg.Ban(context.Background(), 8, testAdmin, "x"))
	code, resp = env.authed(t, http.MethodDelete, "/api/v1/bans", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(resp.Data), `"unbanned":1`)
}

func TestUserEndpoints(t *testing.T) {
	env := newAPIEnv(t)

	code, _ := env.authed(t, http.MethodGet, "/api/v1/users/2/stats", nil)
	assert.Equal(t, http.StatusNotFound, code)

	for i := 0; i < 5; i++ {
		code, _ = env.authed(t, http.MethodPost, "/api/v1/messages", gin.H{"receiver_id": 2, "text": "m"})
		require.Equal(t, http.StatusCreated, code)
	}
	code, resp := env.authed(t, http.MethodGet, "/api/v1/users/2/stats", nil)
	require.Equal(t, http.StatusOK, code)
	var st service.UserStats
	require.NoError(t, json.Unmarshal(resp.Data, &st))
	assert.Equal(t, int64(5), st.MessageCount)
	assert.Equal(t, "active", st.Tier)
	assert.True(t, st.MaxTier)

	code, _ = env.authed(t, http.MethodPost, "/api/v1/users/2/recount", nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestOpsEndpoints(t *testing.T) {
	env := newAPIEnv(t)

	code, _ := env.do(t, http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, code)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestTelegramWebhook(t *testing.T) {
	env := newAPIEnv(t)
	update := gin.H{"update_id": 42, "message": gin.H{"message_id": 1, "chat": gin.H{"id": 2}, "text": "/start"}}

	code, _ := env.do(t, http.MethodPost, "/telegram/main", update, map[string]string{"X-Telegram-Bot-Api-Secret-Token": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = env.do(t, http.MethodPost, "/telegram/other", update, map[string]string{"X-Telegram-Bot-Api-Secret-Token": testSecret})
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = env.do(t, http.MethodPost, "/telegram/main", update, map[string]string{"X-Telegram-Bot-Api-Secret-Token": testSecret})
	require.Equal(t, http.StatusOK, code)
	select {
	case u := <-env.updates:
		assert.Equal(t, int64(42), u.UpdateID)
	case <-time.After(2 * time.Second):
		t.Fatal("update not dispatched")
	}
}

func TestSwaggerDoc(t *testing.T) {
	env := newAPIEnv(t)

	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/swagger/doc.json", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var doc struct {
		Swagger string                     `json:"swagger"`
		Paths   map[string]json.RawMessage `json:"paths"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
	assert.Equal(t, "2.0", doc.Swagger)
	for _, path := range []string{"/api/v1/auth/login", "/api/v1/messages", "/api/v1/reports/{id}/ban", "/api/v1/bans/{user_id}", "/api/v1/stats"} {
		assert.Contains(t, doc.Paths, path)
	}
}

func itoa(n int64) string { return strconv.FormatInt(n, 10) }
