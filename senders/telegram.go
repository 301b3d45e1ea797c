package senders

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"seatwatch/lib/models"
)

// telegramSender delivers alerts through the Telegram Bot API. The
// subscriber's platform identifier is their chat id.
type telegramSender struct {
	base
}

func (t *telegramSender) SendAlert(ctx context.Context, subscriber *models.Subscriber, alert Alert) (string, error) {
	chatID, err := strconv.ParseInt(subscriber.PlatformIdentifier, 10, 64)
	if err != nil {
		return "", fmt.Errorf("telegram: bad chat id %q: %w", subscriber.PlatformIdentifier, err)
	}

	text := fmt.Sprintf(
		"Vacancy alert!\nCourse: %s\nIndex: %s\nVacancies: %d\nWaitlist: %d",
		alert.CourseCode, alert.IndexNumber, alert.Vacancies, alert.Waitlist,
	)

	body := map[string]any{
		"chat_id": chatID,
		"text":    text,
	}
	if registerURL := t.cfg.Telegram.RegisterURL; registerURL != "" {
		body["reply_markup"] = map[string]any{
			"inline_keyboard": [][]map[string]string{
				{{"text": "Register now", "url": registerURL}},
			},
		}
	}

	b, err := json.Marshal(body)
	if err != nil {
		return "", err
	}

	endpoint := t.cfg.Telegram.APIBaseURL + "/bot" + t.cfg.Telegram.BotToken + "/sendMessage"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Transport: t.transport}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", errors.New("telegram: unexpected status " + resp.Status)
	}

	var wrapper struct {
		OK     bool `json:"ok"`
		Result struct {
			MessageID int `json:"message_id"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&wrapper); err != nil {
		return "", err
	}
	if !wrapper.OK {
		return "", errors.New("telegram: api responded with not ok")
	}

	return strconv.Itoa(wrapper.Result.MessageID), nil
}
