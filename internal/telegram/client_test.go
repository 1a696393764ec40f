package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/anonrelay/internal/messenger"
)

type recorded struct {
	method string
	body   map[string]interface{}
}

type recorder struct {
	mu    sync.Mutex
	calls []recorded
}

func (r *recorder) all() []recorded {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]recorded(nil), r.calls...)
}

func newTestServer(t *testing.T, handler func(method string, body map[string]interface{}) (int, string)) (*Client, *recorder) {
	t.Helper()
	rec := &recorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		const prefix = "/botTOKEN/"
		assert.Equal(t, http.MethodPost, r.Method)
		assert.True(t, strings.HasPrefix(r.URL.Path, prefix), r.URL.Path)
		method := strings.TrimPrefix(r.URL.Path, prefix)
		var body map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		rec.mu.Lock()
		rec.calls = append(rec.calls, recorded{method: method, body: body})
		rec.mu.Unlock()
		status, resp := handler(method, body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(resp))
	}))
	t.Cleanup(srv.Close)
	c := NewClient(Config{APIBase: srv.URL, Token: "TOKEN", Timeout: 5 * time.Second, RetryMax: 2, RateLimit: 1000})
	c.http.RetryWaitMin = time.Millisecond
	c.http.RetryWaitMax = 5 * time.Millisecond
	return c, rec
}

func TestClient_Deliver(t *testing.T) {
	c, calls := newTestServer(t, func(method string, body map[string]interface{}) (int, string) {
		return 200, `{"ok":true,"result":{"message_id":555,"chat":{"id":2},"text":"x"}}`
	})
	id, err := c.Deliver(context.Background(), 2, "hello")
	require.NoError(t, err)
	assert.Equal(t, int64(555), id)

	require.Len(t, calls.all(), 1)
	got := calls.all()[0]
	assert.Equal(t, "sendMessage", got.method)
	assert.Equal(t, float64(2), got.body["chat_id"])
	assert.Equal(t, "hello", got.body["text"])
	assert.NotContains(t, got.body, "reply_markup")
}

func TestClient_NotifyRendersActions(t *testing.T) {
	c, calls := newTestServer(t, func(method string, body map[string]interface{}) (int, string) {
		return 200, `{"ok":true,"result":{"message_id":1,"chat":{"id":100}}}`
	})
	require.NoError(t, c.Notify(context.Background(), 100, "report", messenger.ReportActions(9)))

	require.Len(t, calls.all(), 1)
	markup, ok := calls.all()[0].body["reply_markup"].(map[string]interface{})
	require.True(t, ok)
	rows := markup["inline_keyboard"].([]interface{})
	require.Len(t, rows, 1)
	buttons := rows[0].([]interface{})
	require.Len(t, buttons, 2)
	assert.Equal(t, "ban:9", buttons[0].(map[string]interface{})["callback_data"])
	assert.Equal(t, "dismiss:9", buttons[1].(map[string]interface{})["callback_data"])
}

func TestClient_APIError(t *testing.T) {
	c, _ := newTestServer(t, func(method string, body map[string]interface{}) (int, string) {
		return 403, `{"ok":false,"error_code":403,"description":"Forbidden: bot was blocked by the user"}`
	})
	_, err := c.Deliver(context.Background(), 2, "hello")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 403, apiErr.Code)
	assert.Equal(t, "sendMessage", apiErr.Method)
	assert.NotContains(t, err.Error(), "TOKEN")
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var n int32
	c, calls := newTestServer(t, func(method string, body map[string]interface{}) (int, string) {
		if atomic.AddInt32(&n, 1) < 3 {
			return 502, `{"ok":false,"error_code":502,"description":"Bad Gateway"}`
		}
		return 200, `{"ok":true,"result":{"message_id":7,"chat":{"id":2}}}`
	})
	id, err := c.Deliver(context.Background(), 2, "hello")
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)
	assert.Len(t, calls.all(), 3)
}

func TestClient_GetUpdates(t *testing.T) {
	c, calls := newTestServer(t, func(method string, body map[string]interface{}) (int, string) {
		return 200, `{"ok":true,"result":[
			{"update_id":10,"message":{"message_id":1,"from":{"id":2,"is_bot":false,"first_name":"Bob"},"chat":{"id":2},"text":"/start user_1"}},
			{"update_id":11,"callback_query":{"id":"cb1","from":{"id":100,"is_bot":false,"first_name":"Admin"},"data":"ban:3"}}
		]}`
	})
	updates, err := c.GetUpdates(context.Background(), 10, 25)
	require.NoError(t, err)
	require.Len(t, updates, 2)
	assert.Equal(t, "/start user_1", updates[0].Message.Text)
	assert.Equal(t, "Bob", updates[0].Message.From.DisplayName())
	assert.Equal(t, "ban:3", updates[1].CallbackQuery.Data)

	assert.Equal(t, float64(10), calls.all()[0].body["offset"])
	assert.Equal(t, float64(25), calls.all()[0].body["timeout"])
}

func TestUserDisplayName(t *testing.T) {
	var nilUser *User
	assert.Equal(t, "", nilUser.DisplayName())
	assert.Equal(t, "bob", (&User{Username: "bob", FirstName: "Bob"}).DisplayName())
	assert.Equal(t, "Bob Smith", (&User{FirstName: "Bob", LastName: "Smith"}).DisplayName())
}
