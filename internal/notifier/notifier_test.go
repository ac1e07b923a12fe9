package notifier

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestWeComNotifier_Send(t *testing.T) {
	var got wecomPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		w.Write([]byte(`{"errcode":0,"errmsg":"ok"}`))
	}))
	defer srv.Close()

	n := NewWeComNotifier(srv.URL, 1, 0)
	require.NoError(t, n.Send("hello"))
	assert.Equal(t, "text", got.MsgType)
	assert.Equal(t, "hello", got.Text.Content)
}

func TestWeComNotifier_SendErrcode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"errcode":93000,"errmsg":"invalid webhook url"}`))
	}))
	defer srv.Close()

	n := NewWeComNotifier(srv.URL, 1, 0)
	err := n.Send("hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "93000")
}

func TestWeComNotifier_SendWithRetry(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"errcode":0}`))
	}))
	defer srv.Close()

	n := NewWeComNotifier(srv.URL, 3, 0)
	require.NoError(t, n.SendWithRetry("hello"))
	assert.Equal(t, 3, calls)
}

type stubSink struct {
	sent []string
	err  error
}

func (s *stubSink) Send(msg string) error          { s.sent = append(s.sent, msg); return s.err }
func (s *stubSink) SendWithRetry(msg string) error { return s.Send(msg) }

func TestMulti_ContinuesPastFailures(t *testing.T) {
	bad := &stubSink{err: assert.AnError}
	good := &stubSink{}
	m := NewMulti(testLogger(), bad, good)

	err := m.Send("msg")
	assert.Error(t, err)
	assert.Equal(t, []string{"msg"}, bad.sent)
	assert.Equal(t, []string{"msg"}, good.sent)
}

func TestTpSlMessage(t *testing.T) {
	msg := TpSlMessage("dual-ema", "BTC-USDT-SWAP", "take-profit", "long", 100, 120, 2, 60)
	assert.Contains(t, msg, "Take-Profit Triggered")
	assert.Contains(t, msg, "Profit: 60.00%")
	assert.Contains(t, msg, "BTC-USDT-SWAP")
}

func TestErrorMessage_DefaultType(t *testing.T) {
	msg := ErrorMessage("", "boom")
	assert.Contains(t, msg, "System Error")
	assert.Contains(t, msg, "boom")
}
