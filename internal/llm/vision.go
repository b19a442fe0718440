package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/hunterwarburton/medsage/internal/core"
	"github.com/hunterwarburton/medsage/internal/imageutils"
	"github.com/hunterwarburton/medsage/internal/logger"
)

// OllamaVisionService implements VisionService against an Ollama-compatible
// /api/chat endpoint.
type OllamaVisionService struct {
	endpoint        string
	model           string
	jpegQuality     int
	httpClient      *http.Client
	promptGenerator *PromptGenerator
	extractors      []Extractor
}

// Message represents a chat message.
type Message struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

// ChatRequest represents a request to the chat API.
type ChatRequest struct {
	Model    string    `json:"model"`
	Stream   bool      `json:"stream"`
	Format   string    `json:"format"`
	Messages []Message `json:"messages"`
}

// NewOllamaVisionService creates a new instance of OllamaVisionService.
func NewOllamaVisionService(endpoint, model string, timeout time.Duration, jpegQuality int) *OllamaVisionService {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &OllamaVisionService{
		endpoint:    strings.TrimRight(endpoint, "/"),
		model:       model,
		jpegQuality: jpegQuality,
		httpClient: &http.Client{
			Timeout: timeout, // vision models are slow on first load
		},
		promptGenerator: NewPromptGenerator(),
		extractors:      DefaultExtractors,
	}
}

// BuildRequest assembles the chat request for one image.
func (s *OllamaVisionService) BuildRequest(req VisionRequest) ChatRequest {
	model := req.Model
	if model == "" {
		model = s.model
	}
	img := imageutils.NormalizeForVision(req.Image, s.jpegQuality)
	return ChatRequest{
		Model:  model,
		Stream: false,
		Format: "json",
		Messages: []Message{
			{Role: "system", Content: s.promptGenerator.SystemPrompt()},
			{
				Role:    "user",
				Content: s.promptGenerator.UserPrompt(req.Modality),
				Images:  []string{base64.StdEncoding.EncodeToString(img)},
			},
		},
	}
}

// Analyze sends a single blocking request with no retry. Transport failures
// and non-200 replies wrap core.ErrTransientNetwork; an unparsable reply is
// not an error and yields a degraded report.
func (s *OllamaVisionService) Analyze(ctx context.Context, req VisionRequest) (*VisionReport, error) {
	if len(req.Image) == 0 {
		return nil, fmt.Errorf("vision request has no image")
	}

	reqBody := s.BuildRequest(req)
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	logger.VisionInfo("Sending %s image (%d bytes) to vision model '%s'", req.Modality, len(req.Image), reqBody.Model)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint+"/api/chat", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	started := time.Now()
	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		logger.VisionError("Vision request failed: %v", err)
		return nil, fmt.Errorf("%w: vision request: %v", core.ErrTransientNetwork, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading vision response: %v", core.ErrTransientNetwork, err)
	}

	// Check for an error envelope regardless of status code
	if msg := gjson.GetBytes(body, "error").String(); msg != "" {
		logger.VisionError("Vision API error (status %d): %s", resp.StatusCode, msg)
		return nil, fmt.Errorf("%w: vision API error: %s", core.ErrTransientNetwork, msg)
	}
	if resp.StatusCode != http.StatusOK {
		logger.VisionError("Vision API HTTP error (status %d): %s", resp.StatusCode, string(body))
		return nil, fmt.Errorf("%w: vision API HTTP status %d", core.ErrTransientNetwork, resp.StatusCode)
	}

	content := gjson.GetBytes(body, "message.content").String()
	logger.VisionDebug("Vision reply after %s: %d chars", time.Since(started).Round(time.Millisecond), len(content))

	report := s.parse(content)
	if !report.Parsed {
		logger.VisionWarn("Could not extract JSON from vision reply (%v); returning degraded report", core.ErrMalformedModelOutput)
	}
	return report, nil
}

func (s *OllamaVisionService) parse(content string) *VisionReport {
	obj, via, ok := ExtractJSON(content, s.extractors)
	if !ok {
		return ParseVisionReply(content)
	}
	logger.VisionDebug("Parsed vision reply via %s extractor", via)
	return reportFromObject(obj)
}
