package notifier

import (
	"fmt"
	"net/http"
	"net/url"
	"time"
)

type TelegramNotifier struct {
	Token      string
	ChatID     string
	Retries    int
	RetryDelay time.Duration

	client *http.Client
}

func NewTelegramNotifier(token, chatID string, retries int, retryDelay time.Duration) *TelegramNotifier {
	return &TelegramNotifier{
		Token:      token,
		ChatID:     chatID,
		Retries:    retries,
		RetryDelay: retryDelay,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

func (t *TelegramNotifier) Send(message string) error {
	apiURL := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", t.Token)
	resp, err := t.client.PostForm(apiURL, url.Values{
		"chat_id": {t.ChatID},
		"text":    {message},
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		return fmt.Errorf("telegram send failed: %s", resp.Status)
	}
	return nil
}

func (t *TelegramNotifier) SendWithRetry(message string) error {
	return retrySend(t.Send, message, t.Retries, t.RetryDelay)
}
