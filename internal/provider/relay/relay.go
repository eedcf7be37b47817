// Package relay binds the reasoning service through a server-side proxy
// (the /api/analyze + /api/chat relay) instead of a local API key. The
// relay holds the credential; this client only classifies its failures.
package relay

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/haneul/mindsketch/internal/provider"
	"github.com/haneul/mindsketch/internal/security"
	"github.com/haneul/mindsketch/pkg/models"
)

const defaultTimeout = 120 * time.Second

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func New(cfg *provider.Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("relay base URL is required")
	}
	if err := security.ValidateRelayURL(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid relay URL: %w", err)
	}

	timeout := defaultTimeout
	if cfg.TimeoutSec > 0 {
		timeout = time.Duration(cfg.TimeoutSec) * time.Second
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

type analyzeRequest struct {
	House  string `json:"house"`
	Tree   string `json:"tree"`
	Person string `json:"person"`
}

type chatRequest struct {
	Message       string                 `json:"message"`
	ContextResult *models.AnalysisResult `json:"contextResult"`
}

type chatResponse struct {
	Text string `json:"text"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (c *Client) Analyze(ctx context.Context, drawings *models.DrawingSet) (*models.AnalysisResult, error) {
	if !drawings.Complete() {
		return nil, fmt.Errorf("%w: have %d of 3", provider.ErrMissingInput, drawings.Count())
	}

	req := &analyzeRequest{
		House:  base64.StdEncoding.EncodeToString(drawings.House.PNG),
		Tree:   base64.StdEncoding.EncodeToString(drawings.Tree.PNG),
		Person: base64.StdEncoding.EncodeToString(drawings.Person.PNG),
	}

	body, err := c.post(ctx, "/api/analyze", req)
	if err != nil {
		return nil, err
	}

	result, err := provider.ParseAnalysis(body)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	result.ID = strconv.FormatInt(now.UnixMilli(), 10)
	result.Date = now
	return result, nil
}

// Counsel sends one chat exchange through the relay. The relay replies with
// a single complete payload, delivered to onChunk as one chunk.
func (c *Client) Counsel(ctx context.Context, result *models.AnalysisResult, history []models.ChatTurn, onChunk func(string)) (string, error) {
	if result == nil {
		return "", fmt.Errorf("%w: chat requires a completed analysis", provider.ErrMissingInput)
	}

	message := lastUserText(history)
	if message == "" {
		return "", fmt.Errorf("chat history has no user turn")
	}

	body, err := c.post(ctx, "/api/chat", &chatRequest{Message: message, ContextResult: result})
	if err != nil {
		return "", err
	}

	var chatResp chatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return "", fmt.Errorf("%w: %v", provider.ErrSchema, err)
	}
	if chatResp.Text == "" {
		return "", fmt.Errorf("%w: relay reply has no text", provider.ErrSchema)
	}

	if onChunk != nil {
		onChunk(chatResp.Text)
	}
	return chatResp.Text, nil
}

func (c *Client) post(ctx context.Context, path string, payload any) ([]byte, error) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", provider.ErrUpstream, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %v", provider.ErrUpstream, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, classify(resp.StatusCode, body)
	}
	return body, nil
}

// classify maps relay failures onto the shared taxonomy. The relay folds
// upstream detail into an {"error": message} body, so quota and credential
// failures are recognized by status code first and message sniffing second.
func classify(statusCode int, body []byte) error {
	var errResp errorResponse
	_ = json.Unmarshal(body, &errResp)
	message := errResp.Error

	lower := strings.ToLower(message)
	switch {
	case statusCode == http.StatusUnauthorized,
		statusCode == http.StatusForbidden,
		strings.Contains(lower, "api key"),
		strings.Contains(lower, "api 키"):
		return fmt.Errorf("%w: %s", provider.ErrCredential, detail(statusCode, message))
	case statusCode == http.StatusTooManyRequests,
		strings.Contains(lower, "quota"),
		strings.Contains(lower, "429"),
		// The relay rewrites quota failures into its user-facing Korean
		// message before answering 500, so sniff that message too.
		strings.Contains(message, "다른 내담자와 대화 중"):
		return fmt.Errorf("%w: %s", provider.ErrQuota, detail(statusCode, message))
	default:
		return fmt.Errorf("%w: %s", provider.ErrUpstream, detail(statusCode, message))
	}
}

func detail(statusCode int, message string) string {
	if message == "" {
		return fmt.Sprintf("status %d", statusCode)
	}
	return fmt.Sprintf("status %d: %s", statusCode, message)
}

func lastUserText(history []models.ChatTurn) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == models.RoleUser {
			return history[i].Text
		}
	}
	return ""
}
