package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"camrelay/internal/config"
	"camrelay/internal/services"
)

const (
	defaultBaseURL  = "https://api.telegram.org"
	defaultTimeout  = 300 * time.Second
	maxCaptionRunes = 1024
	maxErrorExcerpt = 512
	userAgent       = "camrelay/0.1.0"
)

// ErrRejected reports a request the Bot API refused.
var ErrRejected = errors.New("telegram rejected request")

// Client uploads finished videos to one chat.
type Client struct {
	baseURL string
	token   string
	chatID  string
	http    *http.Client
	limiter *rate.Limiter
}

// Options configures a Client.
type Options struct {
	BaseURL       string
	Token         string
	ChatID        string
	Timeout       time.Duration
	RatePerMinute int
	HTTPClient    *http.Client
}

// OptionsFromConfig maps the telegram config section.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		BaseURL:       cfg.Telegram.APIBaseURL,
		Token:         cfg.Telegram.BotToken,
		ChatID:        cfg.Telegram.ChatID,
		Timeout:       time.Duration(cfg.Telegram.RequestTimeout) * time.Second,
		RatePerMinute: cfg.Telegram.RatePerMinute,
	}
}

// New returns a client. A non-positive RatePerMinute disables pacing.
func New(opts Options) *Client {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		base = defaultBaseURL
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	var limiter *rate.Limiter
	if opts.RatePerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.RatePerMinute)), 1)
	}
	return &Client{
		baseURL: base,
		token:   strings.TrimSpace(opts.Token),
		chatID:  strings.TrimSpace(opts.ChatID),
		http:    httpClient,
		limiter: limiter,
	}
}

// Method returns the Bot API method and form field used for path:
// sendVideo/video for .mp4 files, sendDocument/document otherwise.
func Method(path string) (method, field string) {
	if strings.EqualFold(filepath.Ext(path), ".mp4") {
		return "sendVideo", "video"
	}
	return "sendDocument", "document"
}

// Send uploads path with an optional caption.
func (c *Client) Send(ctx context.Context, path, caption string) error {
	if c.token == "" || c.chatID == "" {
		return services.Wrap(services.ErrConfiguration, "deliver", "send", "telegram bot token or chat id missing", nil)
	}
	file, err := os.Open(path)
	if err != nil {
		return services.Wrap(services.ErrNotFound, "deliver", "send", "open "+path, err)
	}
	defer file.Close()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	method, field := Method(path)
	fields := map[string]string{"chat_id": c.chatID}
	if caption = truncateCaption(caption); caption != "" {
		fields["caption"] = caption
	}
	if method == "sendVideo" {
		fields["supports_streaming"] = "true"
	}

	body, contentType := streamMultipart(fields, field, filepath.Base(path), file)
	defer body.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(method), body)
	if err != nil {
		return fmt.Errorf("build telegram request: %w", c.redact(err))
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("User-Agent", userAgent)

	return c.do(req, method, nil)
}

// Ping calls getMe and returns the bot username.
func (c *Client) Ping(ctx context.Context) (string, error) {
	if c.token == "" {
		return "", services.Wrap(services.ErrConfiguration, "deliver", "ping", "telegram bot token missing", nil)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("getMe"), nil)
	if err != nil {
		return "", fmt.Errorf("build telegram request: %w", c.redact(err))
	}
	req.Header.Set("User-Agent", userAgent)
	var me struct {
		Username string `json:"username"`
	}
	if err := c.do(req, "getMe", &me); err != nil {
		return "", err
	}
	return me.Username, nil
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Description string          `json:"description"`
	Result      json.RawMessage `json:"result"`
	Parameters  struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
}

func (c *Client) do(req *http.Request, method string, result any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		redacted := c.redact(err)
		if errors.Is(err, context.DeadlineExceeded) {
			return services.Wrap(services.ErrTimeout, "deliver", method, "request timed out", redacted)
		}
		return services.Wrap(services.ErrTransient, "deliver", method, "request failed", redacted)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return services.Wrap(services.ErrTransient, "deliver", method, "read response", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		marker := services.ErrTransient
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			marker = services.ErrValidation
		}
		return services.Wrap(marker, "deliver", method,
			fmt.Sprintf("HTTP %d: %s", resp.StatusCode, excerpt(raw)), ErrRejected)
	}

	var decoded apiResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return services.Wrap(services.ErrTransient, "deliver", method, "decode response: "+excerpt(raw), err)
	}
	if !decoded.OK {
		return services.Wrap(services.ErrValidation, "deliver", method, decoded.Description, ErrRejected)
	}
	if result != nil && len(decoded.Result) > 0 {
		if err := json.Unmarshal(decoded.Result, result); err != nil {
			return services.Wrap(services.ErrTransient, "deliver", method, "decode result", err)
		}
	}
	return nil
}

func (c *Client) endpoint(method string) string {
	return c.baseURL + "/bot" + c.token + "/" + method
}

// redact strips the bot token from transport errors, which embed the URL.
func (c *Client) redact(err error) error {
	if c.token == "" {
		return err
	}
	msg := strings.ReplaceAll(err.Error(), c.token, "<redacted>")
	return errors.New(msg)
}

// streamMultipart encodes the form on a pipe so large videos are not buffered.
func streamMultipart(fields map[string]string, fileField, fileName string, file io.Reader) (io.ReadCloser, string) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		err := writeForm(mw, fields, fileField, fileName, file)
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()
	return pr, mw.FormDataContentType()
}

func writeForm(mw *multipart.Writer, fields map[string]string, fileField, fileName string, file io.Reader) error {
	for _, key := range []string{"chat_id", "caption", "supports_streaming"} {
		if value, ok := fields[key]; ok {
			if err := mw.WriteField(key, value); err != nil {
				return err
			}
		}
	}
	part, err := mw.CreateFormFile(fileField, fileName)
	if err != nil {
		return err
	}
	_, err = io.Copy(part, file)
	return err
}

func truncateCaption(caption string) string {
	caption = strings.TrimSpace(caption)
	runes := []rune(caption)
	if len(runes) <= maxCaptionRunes {
		return caption
	}
	return string(runes[:maxCaptionRunes-1]) + "…"
}

func excerpt(raw []byte) string {
	text := strings.TrimSpace(string(raw))
	if len(text) > maxErrorExcerpt {
		text = text[:maxErrorExcerpt] + "..."
	}
	return text
}
