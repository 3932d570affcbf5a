package messenger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const telegramAPIBase = "https://api.telegram.org"

// TelegramProvider implements Provider against the Telegram Bot API's HTTP
// interface, grounded on linear-fuse's internal/api.Client: a bounded
// rate.Limiter guarding a plain http.Client, JSON in and out.
type TelegramProvider struct {
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
	apiBase    string
}

// NewTelegramProvider returns a provider sending at most 1 request/second
// with a burst of 3, matching Telegram's documented per-chat throughput
// (spec.md §4.7's own 1s after-send pacing is a second, coarser layer on
// top of this).
func NewTelegramProvider(token string) *TelegramProvider {
	return &TelegramProvider{
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(1), 3),
		apiBase:    telegramAPIBase,
	}
}

type telegramResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	ErrorCode   int             `json:"error_code"`
	Description string          `json:"description"`
	Parameters  struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
}

type telegramMessage struct {
	MessageID int64 `json:"message_id"`
}

func classifyError(resp *telegramResponse) error {
	if resp.ErrorCode == http.StatusTooManyRequests || resp.Parameters.RetryAfter > 0 {
		return &RateLimitedError{RetryAfter: time.Duration(resp.Parameters.RetryAfter) * time.Second}
	}
	desc := strings.ToLower(resp.Description)
	if strings.Contains(desc, "message to edit not found") || strings.Contains(desc, "message can't be edited") ||
		strings.Contains(desc, "message is not modified") {
		return ErrMessageNotEditable
	}
	return fmt.Errorf("telegram: %s (code %d)", resp.Description, resp.ErrorCode)
}

func (p *TelegramProvider) call(ctx context.Context, method string, form url.Values) (*telegramResponse, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("telegram rate limiter: %w", err)
	}
	endpoint := fmt.Sprintf("%s/bot%s/%s", p.apiBase, p.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return p.doAndDecode(req)
}

func (p *TelegramProvider) callMultipart(ctx context.Context, method string, fields map[string]string, fileField, filename string, file []byte) (*telegramResponse, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("telegram rate limiter: %w", err)
	}
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("write multipart field %s: %w", k, err)
		}
	}
	part, err := w.CreateFormFile(fileField, filename)
	if err != nil {
		return nil, fmt.Errorf("create multipart file field: %w", err)
	}
	if _, err := part.Write(file); err != nil {
		return nil, fmt.Errorf("write multipart file: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	endpoint := fmt.Sprintf("%s/bot%s/%s", p.apiBase, p.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("build telegram request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	return p.doAndDecode(req)
}

func (p *TelegramProvider) doAndDecode(req *http.Request) (*telegramResponse, error) {
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("telegram request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read telegram response: %w", err)
	}
	var tr telegramResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, fmt.Errorf("decode telegram response: %w", err)
	}
	if !tr.OK {
		return nil, classifyError(&tr)
	}
	return &tr, nil
}

func (p *TelegramProvider) SendText(ctx context.Context, channelID, text string) (string, error) {
	form := url.Values{"chat_id": {channelID}, "text": {text}, "parse_mode": {"MarkdownV2"}}
	tr, err := p.call(ctx, "sendMessage", form)
	if err != nil {
		return "", err
	}
	return decodeMessageID(tr)
}

func (p *TelegramProvider) SendPhoto(ctx context.Context, channelID string, photo []byte, caption string) (string, error) {
	fields := map[string]string{"chat_id": channelID, "caption": caption, "parse_mode": "MarkdownV2"}
	tr, err := p.callMultipart(ctx, "sendPhoto", fields, "photo", "rendition.webp", photo)
	if err != nil {
		return "", err
	}
	return decodeMessageID(tr)
}

func (p *TelegramProvider) EditText(ctx context.Context, channelID, messageID, text string) error {
	form := url.Values{"chat_id": {channelID}, "message_id": {messageID}, "text": {text}, "parse_mode": {"MarkdownV2"}}
	_, err := p.call(ctx, "editMessageText", form)
	return err
}

func (p *TelegramProvider) EditPhotoCaption(ctx context.Context, channelID, messageID, caption string) error {
	form := url.Values{"chat_id": {channelID}, "message_id": {messageID}, "caption": {caption}, "parse_mode": {"MarkdownV2"}}
	_, err := p.call(ctx, "editMessageCaption", form)
	return err
}

func decodeMessageID(tr *telegramResponse) (string, error) {
	var msg telegramMessage
	if err := json.Unmarshal(tr.Result, &msg); err != nil {
		return "", fmt.Errorf("decode telegram message: %w", err)
	}
	return strconv.FormatInt(msg.MessageID, 10), nil
}
