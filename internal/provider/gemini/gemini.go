package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/haneul/mindsketch/internal/provider"
	"github.com/haneul/mindsketch/pkg/models"
)

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com"
	defaultTimeout = 120 * time.Second

	defaultAnalysisModel = "gemini-3-pro-preview"
	defaultChatModel     = "gemini-3-flash-preview"
)

const analysisPrompt = `당신은 전문 미술 치료사입니다. 제공된 3장의 HTP(House-Tree-Person) 그림을 분석하여 심리 분석 결과를 한국어로 제공하세요.
내담자의 그림에서 나타나는 특징적인 요소(선의 세기, 위치, 문이나 창문의 유무, 나무의 모양 등)를 포착하여 무의식적인 심리 상태를 심층적으로 분석해 주세요.
따뜻하고 공감적인 말투를 사용하되, 전문적인 통찰력을 잃지 마세요.`

const counselorSystemTemplate = `당신은 내담자의 HTP 분석 결과(요약: %s, 조언: %s)를 알고 있는 전문 심리상담사입니다. 따뜻하고 공감적인 미술 치료 전문가로서 대화하세요.`

// Client talks to the Gemini REST API directly with a local API key.
type Client struct {
	apiKey        string
	baseURL       string
	httpClient    *http.Client
	analysisModel string
	chatModel     string
	verbose       bool
}

func New(cfg *provider.Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: no API key configured", provider.ErrCredential)
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	timeout := defaultTimeout
	if cfg.TimeoutSec > 0 {
		timeout = time.Duration(cfg.TimeoutSec) * time.Second
	}

	return &Client{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		analysisModel: defaultAnalysisModel,
		chatModel:     defaultChatModel,
		verbose:       cfg.Verbose,
	}, nil
}

type generateRequest struct {
	Contents          []content         `json:"contents"`
	SystemInstruction *content          `json:"systemInstruction,omitempty"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

type generationConfig struct {
	ResponseMIMEType string         `json:"responseMimeType,omitempty"`
	ResponseSchema   map[string]any `json:"responseSchema,omitempty"`
}

type generateResponse struct {
	Candidates []candidate `json:"candidates"`
}

type candidate struct {
	Content      content `json:"content"`
	FinishReason string  `json:"finishReason,omitempty"`
}

type apiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// analysisSchema constrains the response to the AnalysisResult shape so the
// service cannot reply free-form.
func analysisSchema() map[string]any {
	return map[string]any{
		"type": "OBJECT",
		"properties": map[string]any{
			"summary": map[string]any{"type": "STRING"},
			"personalityTraits": map[string]any{
				"type": "ARRAY",
				"items": map[string]any{
					"type": "OBJECT",
					"properties": map[string]any{
						"trait":       map[string]any{"type": "STRING"},
						"score":       map[string]any{"type": "NUMBER"},
						"description": map[string]any{"type": "STRING"},
					},
					"required": []string{"trait", "score", "description"},
				},
			},
			"emotionalState": map[string]any{"type": "STRING"},
			"advice":         map[string]any{"type": "STRING"},
			"keyInsights": map[string]any{
				"type":  "ARRAY",
				"items": map[string]any{"type": "STRING"},
			},
		},
		"required": []string{"summary", "personalityTraits", "emotionalState", "advice", "keyInsights"},
	}
}

// Analyze submits the three drawings in one generateContent call and
// validates the structured response. ID and Date are assigned here, never
// taken from upstream.
func (c *Client) Analyze(ctx context.Context, drawings *models.DrawingSet) (*models.AnalysisResult, error) {
	if !drawings.Complete() {
		return nil, fmt.Errorf("%w: have %d of 3", provider.ErrMissingInput, drawings.Count())
	}

	parts := []part{{Text: analysisPrompt}}
	for _, stage := range models.Stages() {
		img := drawings.Get(stage)
		parts = append(parts, part{InlineData: &inlineData{
			MIMEType: "image/png",
			Data:     base64.StdEncoding.EncodeToString(img.PNG),
		}})
	}

	req := &generateRequest{
		Contents: []content{{Parts: parts}},
		GenerationConfig: &generationConfig{
			ResponseMIMEType: "application/json",
			ResponseSchema:   analysisSchema(),
		},
	}

	body, err := c.post(ctx, c.endpoint(c.analysisModel, "generateContent"), req)
	if err != nil {
		return nil, err
	}

	text, err := responseText(body)
	if err != nil {
		return nil, err
	}

	result, err := provider.ParseAnalysis([]byte(text))
	if err != nil {
		return nil, err
	}

	now := time.Now()
	result.ID = strconv.FormatInt(now.UnixMilli(), 10)
	result.Date = now
	return result, nil
}

func (c *Client) endpoint(model, method string) string {
	return fmt.Sprintf("%s/v1beta/models/%s:%s", c.baseURL, model, method)
}

func (c *Client) post(ctx context.Context, url string, req *generateRequest) ([]byte, error) {
	jsonData, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.apiKey)

	c.logRequest(http.MethodPost, url, httpReq.Header, jsonData)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", provider.ErrUpstream, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %v", provider.ErrUpstream, err)
	}

	c.logResponse(resp.StatusCode, body)

	if resp.StatusCode != http.StatusOK {
		return nil, classify(resp.StatusCode, body)
	}
	return body, nil
}

// responseText extracts the first candidate's concatenated text parts.
func responseText(body []byte) (string, error) {
	var genResp generateResponse
	if err := json.Unmarshal(body, &genResp); err != nil {
		return "", fmt.Errorf("%w: %v", provider.ErrSchema, err)
	}
	if len(genResp.Candidates) == 0 {
		return "", fmt.Errorf("%w: response has no candidates", provider.ErrSchema)
	}

	var sb strings.Builder
	for _, p := range genResp.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("%w: response has no text content", provider.ErrSchema)
	}
	return sb.String(), nil
}

// classify maps an upstream failure onto the error taxonomy. Credential and
// quota failures must stay distinguishable from generic upstream errors
// because the caller surfaces different guidance for each.
func classify(statusCode int, body []byte) error {
	var apiErr apiError
	_ = json.Unmarshal(body, &apiErr)
	message := apiErr.Error.Message
	status := apiErr.Error.Status

	switch {
	case statusCode == http.StatusUnauthorized,
		statusCode == http.StatusForbidden,
		status == "UNAUTHENTICATED",
		status == "PERMISSION_DENIED",
		strings.Contains(message, "API key"):
		return fmt.Errorf("%w: %s", provider.ErrCredential, errDetail(statusCode, message))
	case statusCode == http.StatusTooManyRequests, status == "RESOURCE_EXHAUSTED":
		return fmt.Errorf("%w: %s", provider.ErrQuota, errDetail(statusCode, message))
	default:
		return fmt.Errorf("%w: %s", provider.ErrUpstream, errDetail(statusCode, message))
	}
}

func errDetail(statusCode int, message string) string {
	if message == "" {
		return fmt.Sprintf("status %d", statusCode)
	}
	return fmt.Sprintf("status %d: %s", statusCode, message)
}

func (c *Client) logRequest(method, url string, headers http.Header, body []byte) {
	if !c.verbose {
		return
	}

	fmt.Fprintln(os.Stderr, "--- REQUEST ---")
	fmt.Fprintf(os.Stderr, "%s %s\n", method, url)
	fmt.Fprintln(os.Stderr, "Headers:")
	for key, values := range headers {
		for _, value := range values {
			if strings.EqualFold(key, "x-goog-api-key") {
				value = "[REDACTED]"
			}
			fmt.Fprintf(os.Stderr, "  %s: %s\n", key, value)
		}
	}
	if len(body) > 0 {
		fmt.Fprintf(os.Stderr, "Body: [%d bytes]\n", len(body))
	}
	fmt.Fprintln(os.Stderr, "---------------")
}

func (c *Client) logResponse(statusCode int, body []byte) {
	if !c.verbose {
		return
	}

	fmt.Fprintln(os.Stderr, "--- RESPONSE ---")
	fmt.Fprintf(os.Stderr, "Status: %d\n", statusCode)
	if len(body) > 0 {
		fmt.Fprintf(os.Stderr, "Body: %s\n", truncate(string(body), 2000))
	}
	fmt.Fprintln(os.Stderr, "----------------")
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "... [truncated]"
}
