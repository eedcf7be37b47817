package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/haneul/mindsketch/internal/provider"
	"github.com/haneul/mindsketch/pkg/models"
)

const analysisJSON = `{
	"summary": "안정적인 구도입니다.",
	"personalityTraits": [{"trait": "안정성", "score": 75, "description": "차분한 선"}],
	"emotionalState": "평온",
	"advice": "지금처럼 지내세요.",
	"keyInsights": ["큰 문", "풍성한 수관"]
}`

func testDrawings() *models.DrawingSet {
	img := func() *models.CapturedImage {
		return &models.CapturedImage{
			PNG:        []byte("png-bytes"),
			Width:      10,
			Height:     10,
			Modality:   models.ModalityFreehand,
			CapturedAt: time.Now(),
		}
	}
	return &models.DrawingSet{House: img(), Tree: img(), Person: img()}
}

func candidateBody(text string) string {
	resp := map[string]any{
		"candidates": []map[string]any{
			{"content": map[string]any{"parts": []map[string]any{{"text": text}}}},
		},
	}
	data, _ := json.Marshal(resp)
	return string(data)
}

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	c, err := New(&provider.Config{APIKey: "test-key", BaseURL: baseURL})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *provider.Config
		wantErr error
	}{
		{"valid config", &provider.Config{APIKey: "k"}, nil},
		{"missing key", &provider.Config{}, provider.ErrCredential},
		{"custom base URL", &provider.Config{APIKey: "k", BaseURL: "https://proxy.example.com"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(tt.cfg)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("New() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("New() error = %v, want nil", err)
			}
			if c == nil {
				t.Fatal("New() returned nil client")
			}
		})
	}
}

func TestClient_Analyze(t *testing.T) {
	var gotPath string
	var gotReq generateRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if key := r.Header.Get("x-goog-api-key"); key != "test-key" {
			t.Errorf("x-goog-api-key = %q, want test-key", key)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		fmt.Fprint(w, candidateBody(analysisJSON))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)
	before := time.Now()
	result, err := c.Analyze(context.Background(), testDrawings())
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}

	if want := "/v1beta/models/" + defaultAnalysisModel + ":generateContent"; gotPath != want {
		t.Errorf("request path = %q, want %q", gotPath, want)
	}
	if len(gotReq.Contents) != 1 {
		t.Fatalf("request contents = %d, want 1", len(gotReq.Contents))
	}
	// One instruction part plus three inline images, house-tree-person order.
	parts := gotReq.Contents[0].Parts
	if len(parts) != 4 {
		t.Fatalf("request parts = %d, want 4", len(parts))
	}
	if parts[0].Text == "" || parts[0].InlineData != nil {
		t.Error("first part should be the instruction text")
	}
	for i := 1; i < 4; i++ {
		if parts[i].InlineData == nil || parts[i].InlineData.MIMEType != "image/png" {
			t.Errorf("part %d = %+v, want inline image/png", i, parts[i])
		}
	}
	if gotReq.GenerationConfig == nil || gotReq.GenerationConfig.ResponseMIMEType != "application/json" {
		t.Error("request must constrain the response to application/json")
	}
	if gotReq.GenerationConfig.ResponseSchema == nil {
		t.Error("request must carry the response schema")
	}

	if result.Summary != "안정적인 구도입니다." {
		t.Errorf("Summary = %q", result.Summary)
	}
	if result.EmotionalState != "평온" || result.Advice != "지금처럼 지내세요." {
		t.Errorf("EmotionalState/Advice = %q / %q", result.EmotionalState, result.Advice)
	}
	if len(result.PersonalityTraits) != 1 || result.PersonalityTraits[0].Trait != "안정성" {
		t.Errorf("PersonalityTraits = %+v", result.PersonalityTraits)
	}
	if len(result.KeyInsights) != 2 {
		t.Errorf("KeyInsights = %v", result.KeyInsights)
	}
	if result.ID == "" {
		t.Error("ID not assigned")
	}
	if result.Date.Before(before) {
		t.Errorf("Date = %v, want >= %v", result.Date, before)
	}
}

func TestClient_AnalyzeMissingInput(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)
	drawings := testDrawings()
	drawings.Person = nil

	_, err := c.Analyze(context.Background(), drawings)
	if !errors.Is(err, provider.ErrMissingInput) {
		t.Errorf("Analyze() error = %v, want ErrMissingInput", err)
	}
	if calls != 0 {
		t.Errorf("outbound calls = %d, want 0 for incomplete input", calls)
	}
}

func TestClient_AnalyzeErrorClassification(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		body       string
		wantErr    error
	}{
		{
			"quota exceeded",
			http.StatusTooManyRequests,
			`{"error": {"code": 429, "message": "Resource has been exhausted", "status": "RESOURCE_EXHAUSTED"}}`,
			provider.ErrQuota,
		},
		{
			"invalid key",
			http.StatusBadRequest,
			`{"error": {"code": 400, "message": "API key not valid. Please pass a valid API key.", "status": "INVALID_ARGUMENT"}}`,
			provider.ErrCredential,
		},
		{
			"unauthorized",
			http.StatusUnauthorized,
			`{"error": {"code": 401, "message": "Request had invalid authentication credentials", "status": "UNAUTHENTICATED"}}`,
			provider.ErrCredential,
		},
		{
			"forbidden",
			http.StatusForbidden,
			`{"error": {"code": 403, "message": "Permission denied", "status": "PERMISSION_DENIED"}}`,
			provider.ErrCredential,
		},
		{
			"server error",
			http.StatusInternalServerError,
			`{"error": {"code": 500, "message": "Internal error", "status": "INTERNAL"}}`,
			provider.ErrUpstream,
		},
		{
			"opaque failure",
			http.StatusBadGateway,
			"bad gateway",
			provider.ErrUpstream,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.statusCode)
				fmt.Fprint(w, tt.body)
			}))
			defer server.Close()

			c := newTestClient(t, server.URL)
			_, err := c.Analyze(context.Background(), testDrawings())
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Analyze() error = %v, want %v", err, tt.wantErr)
			}
			// Quota and credential failures must not degrade to the
			// generic upstream class.
			if tt.wantErr != provider.ErrUpstream && errors.Is(err, provider.ErrUpstream) {
				t.Errorf("Analyze() error %v also matches ErrUpstream", err)
			}
		})
	}
}

func TestClient_AnalyzeSchemaViolations(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing keyInsights", candidateBody(`{"summary":"s","personalityTraits":[],"emotionalState":"e","advice":"a"}`)},
		{"not json text", candidateBody("마음이 따뜻해 보이네요")},
		{"no candidates", `{"candidates": []}`},
		{"empty parts", `{"candidates": [{"content": {"parts": []}}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, tt.body)
			}))
			defer server.Close()

			c := newTestClient(t, server.URL)
			_, err := c.Analyze(context.Background(), testDrawings())
			if !errors.Is(err, provider.ErrSchema) {
				t.Errorf("Analyze() error = %v, want ErrSchema", err)
			}
		})
	}
}

func sseBody(texts ...string) string {
	var sb strings.Builder
	for _, text := range texts {
		data, _ := json.Marshal(map[string]any{
			"candidates": []map[string]any{
				{"content": map[string]any{"parts": []map[string]any{{"text": text}}}},
			},
		})
		sb.WriteString("data: ")
		sb.Write(data)
		sb.WriteString("\n\n")
	}
	return sb.String()
}

func testResult() *models.AnalysisResult {
	return &models.AnalysisResult{
		ID:             "1700000000000",
		Date:           time.Now(),
		Summary:        "안정적인 구도입니다.",
		EmotionalState: "평온",
		Advice:         "지금처럼 지내세요.",
	}
}

func TestClient_Counsel(t *testing.T) {
	var gotReq generateRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got, want := r.URL.Path, "/v1beta/models/"+defaultChatModel+":streamGenerateContent"; got != want {
			t.Errorf("path = %q, want %q", got, want)
		}
		if got := r.URL.Query().Get("alt"); got != "sse" {
			t.Errorf("alt = %q, want sse", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, sseBody("안", "녕"))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)
	history := []models.ChatTurn{
		{Role: models.RoleModel, Text: "안녕하세요!"},
		{Role: models.RoleUser, Text: "질문"},
	}

	var chunks []string
	final, err := c.Counsel(context.Background(), testResult(), history, func(delta string) {
		chunks = append(chunks, delta)
	})
	if err != nil {
		t.Fatalf("Counsel() error = %v", err)
	}

	if final != "안녕" {
		t.Errorf("final text = %q, want 안녕", final)
	}
	if len(chunks) != 2 || chunks[0] != "안" || chunks[1] != "녕" {
		t.Errorf("chunks = %v, want [안 녕]", chunks)
	}

	if gotReq.SystemInstruction == nil {
		t.Fatal("request missing system instruction")
	}
	framing := gotReq.SystemInstruction.Parts[0].Text
	if !strings.Contains(framing, "안정적인 구도입니다.") || !strings.Contains(framing, "지금처럼 지내세요.") {
		t.Errorf("system framing %q missing summary/advice grounding", framing)
	}
	if len(gotReq.Contents) != 2 {
		t.Fatalf("request contents = %d, want full history of 2", len(gotReq.Contents))
	}
	if gotReq.Contents[0].Role != "model" || gotReq.Contents[1].Role != "user" {
		t.Errorf("roles = %q, %q, want model, user", gotReq.Contents[0].Role, gotReq.Contents[1].Role)
	}
}

func TestClient_CounselWithoutResult(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)
	_, err := c.Counsel(context.Background(), nil, []models.ChatTurn{{Role: models.RoleUser, Text: "hi"}}, nil)
	if err == nil {
		t.Fatal("Counsel() error = nil, want error for unbound result")
	}
	if calls != 0 {
		t.Errorf("outbound calls = %d, want 0", calls)
	}
}

func TestClient_CounselMalformedChunk(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, sseBody("부분"))
		fmt.Fprint(w, "data: {broken\n\n")
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)
	partial, err := c.Counsel(context.Background(), testResult(),
		[]models.ChatTurn{{Role: models.RoleUser, Text: "질문"}}, nil)

	if !errors.Is(err, provider.ErrStreamInterrupted) {
		t.Errorf("Counsel() error = %v, want ErrStreamInterrupted", err)
	}
	if partial != "부분" {
		t.Errorf("partial text = %q, want 부분", partial)
	}
}

func TestClient_CounselEmptyStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)
	_, err := c.Counsel(context.Background(), testResult(),
		[]models.ChatTurn{{Role: models.RoleUser, Text: "질문"}}, nil)
	if !errors.Is(err, provider.ErrStreamInterrupted) {
		t.Errorf("Counsel() error = %v, want ErrStreamInterrupted", err)
	}
}

func TestClient_CounselQuota(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error": {"code": 429, "status": "RESOURCE_EXHAUSTED", "message": "quota"}}`)
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)
	_, err := c.Counsel(context.Background(), testResult(),
		[]models.ChatTurn{{Role: models.RoleUser, Text: "질문"}}, nil)
	if !errors.Is(err, provider.ErrQuota) {
		t.Errorf("Counsel() error = %v, want ErrQuota", err)
	}
}
