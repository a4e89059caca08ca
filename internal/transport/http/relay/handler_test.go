package relay_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Additional-Code/relay/internal/testenv"
	transport "github.com/Additional-Code/relay/internal/transport/http/relay"
)

type envelope struct {
	Success bool `json:"success"`
	Data    struct {
		Reply string `json:"reply"`
	} `json:"data"`
	Error struct {
		Kind    string `json:"kind"`
		Message string `json:"message"`
	} `json:"error"`
}

func newServer(t *testing.T) (*echo.Echo, *testenv.Env) {
	t.Helper()
	env := testenv.New(t)
	env.Seller(t, "Ecostore", 500, "12 Baker St")
	env.Order(t, 1, "Ana", "12 Baker St")
	env.Notifier.Reset()

	e := echo.New()
	transport.Register(e, transport.NewHandler(env.Router, env.Service))
	return e, env
}

func post(t *testing.T, e *echo.Echo, path, body string) (int, envelope) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec.Code, env
}

func TestMessageRoundTrip(t *testing.T) {
	e, env := newServer(t)

	code, body := post(t, e, "/relay/messages", `{"senderId": 1, "text": "ready soon?"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "✅ Message sent to the seller.", body.Data.Reply)

	code, body = post(t, e, "/relay/messages", `{"senderId": 500, "text": "#E1 in ten minutes"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body.Data.Reply, "order E1")
	require.Len(t, env.Notifier.To(1), 1)
	assert.Contains(t, env.Notifier.To(1)[0].Text, "in ten minutes")

	code, body = post(t, e, "/relay/messages", `{"senderId": 500, "text": "#Z9 hello"}`)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "Order Z9 not found.", body.Error.Message)
}

func TestCompleteAction(t *testing.T) {
	e, env := newServer(t)

	code, body := post(t, e, "/relay/actions/complete", `{"senderId": 500, "orderNumber": "E1", "messageRef": "m-1"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "✅ Order E1 completed.", body.Data.Reply)
	assert.Len(t, env.Notifier.To(1), 1)

	code, body = post(t, e, "/relay/actions/complete", `{"senderId": 500, "orderNumber": "E1"}`)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "conflict", body.Error.Kind)
	assert.Len(t, env.Notifier.To(1), 1)

	code, _ = post(t, e, "/relay/actions/complete", `{"senderId": 1, "orderNumber": "E1"}`)
	assert.Equal(t, http.StatusForbidden, code)
}
