// Package transcribe talks to the Gemini REST API: it uploads an audio
// artifact to the provider's file store and asks the model for a transcript.
package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/dharsanguruparan/ClipScribe/internal/model"
)

const transcriptPrompt = "Generate a transcript of the speech. Return only the spoken text."

// Options configures the Gemini client.
type Options struct {
	APIKey     string
	BaseURL    string
	Model      string
	HTTPClient *http.Client
}

// Client is a lightweight facade over the Gemini file-upload and
// generateContent endpoints. Every provider failure is normalized to
// ErrTranscriptionFailure so the worker's retry policy stays uniform.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewClient constructs a Client with sane defaults.
func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 120 * time.Second}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com"
	}
	geminiModel := opts.Model
	if geminiModel == "" {
		geminiModel = "gemini-2.0-flash"
	}
	return &Client{
		apiKey:     strings.TrimSpace(opts.APIKey),
		baseURL:    baseURL,
		model:      geminiModel,
		httpClient: httpClient,
	}
}

type geminiFile struct {
	File struct {
		Name     string `json:"name"`
		URI      string `json:"uri"`
		MimeType string `json:"mimeType"`
	} `json:"file"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts,omitempty"`
}

type geminiPart struct {
	Text     string          `json:"text,omitempty"`
	FileData *geminiFileData `json:"fileData,omitempty"`
}

type geminiFileData struct {
	MimeType string `json:"mimeType,omitempty"`
	FileURI  string `json:"fileUri,omitempty"`
}

type generateContentRequest struct {
	Contents []geminiContent `json:"contents"`
}

type generateContentResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

type geminiErrorResponse struct {
	Error struct {
		Code    int    `json:"code,omitempty"`
		Message string `json:"message,omitempty"`
	} `json:"error"`
}

// Transcribe uploads the audio file and returns the model's transcript text.
func (c *Client) Transcribe(ctx context.Context, audioPath string) (string, error) {
	fileURI, mimeType, err := c.uploadFile(ctx, audioPath, "audio/mpeg")
	if err != nil {
		return "", fmt.Errorf("upload audio: %v: %w", err, model.ErrTranscriptionFailure)
	}
	text, err := c.generateTranscript(ctx, fileURI, mimeType)
	if err != nil {
		return "", fmt.Errorf("generate transcript: %v: %w", err, model.ErrTranscriptionFailure)
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("empty transcript: %w", model.ErrTranscriptionFailure)
	}
	return strings.TrimSpace(text), nil
}

// uploadFile pushes raw bytes to the provider's media endpoint and returns
// the file reference used in generateContent calls.
func (c *Client) uploadFile(ctx context.Context, path, mimeType string) (string, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", "", fmt.Errorf("read audio: %w", err)
	}
	endpoint := fmt.Sprintf("%s/upload/v1beta/files", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return "", "", fmt.Errorf("create upload request: %w", err)
	}
	c.authorize(req)
	req.Header.Set("Content-Type", mimeType)
	req.Header.Set("X-Goog-Upload-Protocol", "raw")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("upload file: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return "", "", c.apiError(resp)
	}
	var out geminiFile
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", "", fmt.Errorf("decode upload response: %w", err)
	}
	if out.File.URI == "" {
		return "", "", fmt.Errorf("upload response missing file uri")
	}
	if out.File.MimeType == "" {
		out.File.MimeType = mimeType
	}
	return out.File.URI, out.File.MimeType, nil
}

func (c *Client) generateTranscript(ctx context.Context, fileURI, mimeType string) (string, error) {
	payload := generateContentRequest{
		Contents: []geminiContent{{
			Role: "user",
			Parts: []geminiPart{
				{Text: transcriptPrompt},
				{FileData: &geminiFileData{MimeType: mimeType, FileURI: fileURI}},
			},
		}},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}
	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.baseURL, url.PathEscape(c.model))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	c.authorize(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("invoke gemini: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return "", c.apiError(resp)
	}
	var out generateContentResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode gemini response: %w", err)
	}
	var b strings.Builder
	for _, candidate := range out.Candidates {
		for _, part := range candidate.Content.Parts {
			b.WriteString(part.Text)
		}
	}
	return b.String(), nil
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey == "" {
		return
	}
	q := req.URL.Query()
	q.Set("key", c.apiKey)
	req.URL.RawQuery = q.Encode()
}

func (c *Client) apiError(resp *http.Response) error {
	var apiErr geminiErrorResponse
	data, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(data, &apiErr); err == nil && apiErr.Error.Message != "" {
		return fmt.Errorf("gemini status %d: %s", resp.StatusCode, apiErr.Error.Message)
	}
	if len(data) > 0 {
		return fmt.Errorf("gemini status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return fmt.Errorf("gemini status %d", resp.StatusCode)
}
