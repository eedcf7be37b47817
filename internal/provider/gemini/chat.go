package gemini

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/haneul/mindsketch/internal/provider"
	"github.com/haneul/mindsketch/pkg/models"
)

// sseDataPrefix precedes each JSON chunk in a streamGenerateContent reply.
const sseDataPrefix = "data: "

// Counsel produces one streamed counselor turn. The system framing is
// rebuilt from the bound result on every call; the full prior turn history
// travels with each request.
func (c *Client) Counsel(ctx context.Context, result *models.AnalysisResult, history []models.ChatTurn, onChunk func(string)) (string, error) {
	if result == nil {
		return "", fmt.Errorf("%w: chat requires a completed analysis", provider.ErrMissingInput)
	}

	req := &generateRequest{
		Contents: turnsToContents(history),
		SystemInstruction: &content{
			Parts: []part{{Text: fmt.Sprintf(counselorSystemTemplate, result.Summary, result.Advice)}},
		},
	}

	jsonData, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	url := c.endpoint(c.chatModel, "streamGenerateContent") + "?alt=sse"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.apiKey)

	c.logRequest(http.MethodPost, url, httpReq.Header, jsonData)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%w: %v", provider.ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		c.logResponse(resp.StatusCode, body)
		return "", classify(resp.StatusCode, body)
	}

	return c.consumeStream(resp.Body, onChunk)
}

// consumeStream reads SSE chunks until the stream ends, forwarding each text
// delta to onChunk. A read or decode failure mid-stream surfaces as
// ErrStreamInterrupted along with whatever text already arrived.
func (c *Client) consumeStream(body io.Reader, onChunk func(string)) (string, error) {
	var sb strings.Builder

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, sseDataPrefix) {
			continue
		}
		payload := strings.TrimPrefix(line, sseDataPrefix)
		if payload == "" || payload == "[DONE]" {
			continue
		}

		var chunk generateResponse
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			return sb.String(), fmt.Errorf("%w: malformed chunk: %v", provider.ErrStreamInterrupted, err)
		}
		if len(chunk.Candidates) == 0 {
			continue
		}
		for _, p := range chunk.Candidates[0].Content.Parts {
			if p.Text == "" {
				continue
			}
			sb.WriteString(p.Text)
			if onChunk != nil {
				onChunk(p.Text)
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return sb.String(), fmt.Errorf("%w: %v", provider.ErrStreamInterrupted, err)
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("%w: stream ended with no content", provider.ErrStreamInterrupted)
	}
	return sb.String(), nil
}

func turnsToContents(history []models.ChatTurn) []content {
	contents := make([]content, 0, len(history))
	for _, turn := range history {
		contents = append(contents, content{
			Role:  string(turn.Role),
			Parts: []part{{Text: turn.Text}},
		})
	}
	return contents
}
