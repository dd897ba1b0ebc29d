package focus

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"net/http"
	"net/url"
	"reflect"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/ollama/ollama/api"
	"github.com/sirupsen/logrus"

	"github.com/menta2k/crop-studio/pkg/processing"
	"github.com/menta2k/crop-studio/pkg/types"
)

// DefaultPrompt asks the model for the dominant subject's bounding box
const DefaultPrompt = `You are an image subject locator.

Return JSON only:
{
  "primary": {
    "label": "string",
    "confidence": 0.0,
    "box": {"x": 0.0, "y": 0.0, "w": 0.0, "h": 0.0},
    "cx": 0.0,
    "cy": 0.0
  },
  "description": "short neutral sentence (≤ 20 words)",
  "tags": ["tag1", "tag2", "tag3"]
}

HARD RULES
- All coordinates are normalized to [0,1] (NOT pixels).
- The box should tightly include the visually dominant subject (prefer people/vehicles/animals; else the most central salient object).
- If no subject is found, return:
  {"primary":{"label":"none","confidence":0.0,"box":{"x":0.25,"y":0.25,"w":0.50,"h":0.50},"cx":0.5,"cy":0.5},"description":"centered generic scene","tags":["generic"]}
- JSON only. No markdown, no code fences, no comments, no trailing commas.`

var (
	reBlock    = regexp.MustCompile(`(?s)/\*.*?\*/`)
	reLine     = regexp.MustCompile(`(?m)^\s*//.*$`)
	reInline   = regexp.MustCompile(`(?m)//.*$`)
	reTrailing = regexp.MustCompile(`,(\s*[}\]])`)
)

// Chatter is the part of the Ollama client the finder needs. LlamaCppClient
// provides the same call for OpenAI-compatible servers.
type Chatter interface {
	Chat(ctx context.Context, req *api.ChatRequest, fn api.ChatResponseFunc) error
}

// VisionConfig controls what is sent to the model
type VisionConfig struct {
	Model    string
	SendSize int // max long side in px, 0 = original
	SendQ    int // JPEG quality 1-100
	Timeout  time.Duration
}

// VisionFinder asks an Ollama vision model where the subject is. The answer
// for the last image is kept, so framing several targets of one image costs a
// single model call.
type VisionFinder struct {
	client    Chatter
	config    VisionConfig
	processor *processing.Processor
	log       logrus.FieldLogger

	mu     sync.Mutex
	last   image.Image
	lastFx float64
	lastFy float64
}

// NewVisionFinder connects to the Ollama server at serverURL. Any path on the
// URL (e.g. /api/chat) is ignored.
func NewVisionFinder(serverURL string, config VisionConfig, log logrus.FieldLogger) (*VisionFinder, error) {
	parsedURL, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return nil, fmt.Errorf("unsupported URL scheme: %q", parsedURL.Scheme)
	}

	baseURL := &url.URL{
		Scheme: parsedURL.Scheme,
		Host:   parsedURL.Host,
	}

	return NewVisionFinderWithClient(api.NewClient(baseURL, http.DefaultClient), config, log), nil
}

// NewVisionFinderWithClient uses an existing chat client
func NewVisionFinderWithClient(client Chatter, config VisionConfig, log logrus.FieldLogger) *VisionFinder {
	if config.SendQ <= 0 {
		config.SendQ = 85
	}
	if config.Timeout <= 0 {
		config.Timeout = 5 * time.Minute
	}
	return &VisionFinder{
		client:    client,
		config:    config,
		processor: processing.NewProcessor(),
		log:       log,
	}
}

// FindFocus returns the point of the detected subject box nearest the image
// center. The ratio is not used; the subject does not depend on framing.
func (f *VisionFinder) FindFocus(ctx context.Context, img image.Image, _ float64) (float64, float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if sameImage(f.last, img) {
		return f.lastFx, f.lastFy, nil
	}

	result, err := f.Analyze(ctx, img)
	if err != nil {
		return 0, 0, err
	}

	cx, cy := nearestPointToCenter(result.Primary.Box)

	f.log.WithFields(logrus.Fields{
		"label":      result.Primary.Label,
		"confidence": result.Primary.Confidence,
		"box":        result.Primary.Box,
		"tags":       result.Tags,
	}).Debug("subject detected")

	f.last, f.lastFx, f.lastFy = img, cx, cy
	return cx, cy, nil
}

// sameImage compares by identity; only pointer images can be told apart
func sameImage(a, b image.Image) bool {
	if a == nil || b == nil {
		return false
	}
	if reflect.ValueOf(a).Kind() != reflect.Pointer || reflect.ValueOf(b).Kind() != reflect.Pointer {
		return false
	}
	return a == b
}

// Analyze sends img to the model and parses the subject it reports
func (f *VisionFinder) Analyze(ctx context.Context, img image.Image) (*types.AnalysisResult, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.config.Timeout)
		defer cancel()
	}

	imgB64, err := f.processor.PrepareImageForModel(img, "jpg", f.config.SendSize, f.config.SendQ)
	if err != nil {
		return nil, fmt.Errorf("preparing image for model: %w", err)
	}
	imgBytes, err := base64.StdEncoding.DecodeString(imgB64)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64 image: %w", err)
	}

	streamFalse := false
	req := &api.ChatRequest{
		Model: f.config.Model,
		Messages: []api.Message{
			{
				Role:    "user",
				Content: DefaultPrompt,
				Images:  []api.ImageData{api.ImageData(imgBytes)},
			},
		},
		Stream: &streamFalse,
	}

	var responseContent string
	err = f.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		responseContent += resp.Message.Content
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("vision chat error: %w", err)
	}

	if responseContent == "" {
		return nil, fmt.Errorf("empty response from %s", f.config.Model)
	}

	result := parseAnalysisResult(responseContent)
	result.Primary.Box = normalizeBox(result.Primary.Box)
	return result, nil
}

// parseAnalysisResult parses the model output, falling back to a centered
// box when nothing usable comes back.
func parseAnalysisResult(raw string) *types.AnalysisResult {
	raw = sanitizeModelJSON(raw)

	var result types.AnalysisResult
	if strings.HasPrefix(raw, "{") && json.Unmarshal([]byte(raw), &result) == nil {
		return &result
	}

	return &types.AnalysisResult{
		Primary: types.Primary{
			Label:      "none",
			Confidence: 0,
			Box:        types.Box{X: 0.25, Y: 0.25, W: 0.5, H: 0.5},
			Cx:         0.5,
			Cy:         0.5,
		},
		Description: "model returned no usable JSON",
		Tags:        []string{"fallback"},
	}
}

// sanitizeModelJSON removes code fences, comments, and trailing commas from JSON response
func sanitizeModelJSON(raw string) string {
	raw = strings.TrimSpace(raw)

	// Strip triple-backtick fences if present
	if strings.HasPrefix(raw, "```") {
		if i := strings.Index(raw, "\n"); i >= 0 {
			raw = raw[i+1:]
		}
		if j := strings.LastIndex(raw, "```"); j >= 0 {
			raw = raw[:j]
		}
	}
	raw = strings.Trim(strings.TrimSpace(raw), "`")

	raw = reBlock.ReplaceAllString(raw, "")
	raw = reLine.ReplaceAllString(raw, "")
	raw = reInline.ReplaceAllString(raw, "")
	raw = reTrailing.ReplaceAllString(raw, "$1")

	// Keep only the outermost {...}
	if start := strings.Index(raw, "{"); start >= 0 {
		if end := strings.LastIndex(raw, "}"); end > start {
			raw = raw[start : end+1]
		}
	}
	return strings.TrimSpace(raw)
}

// normalizeBox clamps the box into the unit square
func normalizeBox(b types.Box) types.Box {
	b.X = clamp(b.X, 0, 1)
	b.Y = clamp(b.Y, 0, 1)
	b.W = clamp(b.W, 0, 1-b.X)
	b.H = clamp(b.H, 0, 1-b.Y)
	return b
}

// nearestPointToCenter finds the point in box closest to the image center
func nearestPointToCenter(box types.Box) (float64, float64) {
	return clamp(0.5, box.X, box.X+box.W), clamp(0.5, box.Y, box.Y+box.H)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
