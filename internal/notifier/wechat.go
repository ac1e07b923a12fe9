package notifier

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// WeComNotifier posts messages to a WeChat Work group robot webhook.
type WeComNotifier struct {
	WebhookURL string
	Retries    int
	RetryDelay time.Duration

	client *http.Client
}

func NewWeComNotifier(webhookURL string, retries int, retryDelay time.Duration) *WeComNotifier {
	return &WeComNotifier{
		WebhookURL: webhookURL,
		Retries:    retries,
		RetryDelay: retryDelay,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

type wecomPayload struct {
	MsgType string       `json:"msgtype"`
	Text    wecomContent `json:"text"`
}

type wecomContent struct {
	Content string `json:"content"`
}

type wecomResponse struct {
	ErrCode int    `json:"errcode"`
	ErrMsg  string `json:"errmsg"`
}

func (w *WeComNotifier) Send(message string) error {
	body, err := json.Marshal(wecomPayload{MsgType: "text", Text: wecomContent{Content: message}})
	if err != nil {
		return err
	}
	resp, err := w.client.Post(w.WebhookURL, "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		return fmt.Errorf("wecom send failed: %s", resp.Status)
	}
	var wr wecomResponse
	if err := json.NewDecoder(resp.Body).Decode(&wr); err != nil {
		return fmt.Errorf("wecom decode response: %w", err)
	}
	if wr.ErrCode != 0 {
		return fmt.Errorf("wecom send failed: errcode=%d errmsg=%s", wr.ErrCode, wr.ErrMsg)
	}
	return nil
}

func (w *WeComNotifier) SendWithRetry(message string) error {
	return retrySend(w.Send, message, w.Retries, w.RetryDelay)
}
