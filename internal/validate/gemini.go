package validate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"tablechain/internal/logging"
	"tablechain/internal/usage"
)

// The prompt anchors specificity with a negative example: headers that
// share a general topic ("child accidents") but name different
// phenomena must be answered NO. Conflating such series is the primary
// failure mode this validator exists to prevent.
const systemPrompt = `You compare two statistical table headers from annual reports and decide whether they describe the SAME SPECIFIC statistical series tracked across years.

Answer YES only when both headers name the same specific measured phenomenon, broken down the same way. Sharing a general topic is NOT enough: "children hospitalized for poisoning" and "children injured in traffic accidents" are both about child accidents, but they are DIFFERENT series, so the answer is NO.

Ignore differences in year numbers, table serial numbers, and trivial wording changes.

Reply with a single line starting with YES or NO, followed by a brief reason.`

// GeminiConfig configures the HTTP validator client.
type GeminiConfig struct {
	APIKey        string
	BaseURL       string
	Model         string
	Timeout       time.Duration
	MaxRetries    int
	CostPerCall   float64
	MaxConcurrent int64
}

// Gemini calls the generateContent endpoint to confirm escalated
// matches and merge candidates. In-flight calls are capped by a
// weighted semaphore to respect the service's rate limits; retries use
// bounded exponential backoff; exhausted retries degrade to
// VerdictDegraded instead of failing the run.
type Gemini struct {
	apiKey      string
	baseURL     string
	model       string
	maxRetries  int
	costPerCall float64
	httpClient  *http.Client
	sem         *semaphore.Weighted
	tracker     *usage.Tracker
}

// NewGemini builds the validator client. tracker may be nil when cost
// accounting is not wanted (tests).
func NewGemini(cfg GeminiConfig, tracker *usage.Tracker) *Gemini {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 2
	}
	return &Gemini{
		apiKey:      cfg.APIKey,
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		model:       cfg.Model,
		maxRetries:  cfg.MaxRetries,
		costPerCall: cfg.CostPerCall,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		sem:         semaphore.NewWeighted(cfg.MaxConcurrent),
		tracker:     tracker,
	}
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type geminiRequest struct {
	Contents          []geminiContent        `json:"contents"`
	SystemInstruction *geminiContent         `json:"systemInstruction,omitempty"`
	GenerationConfig  geminiGenerationConfig `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// SameSeries asks the model whether the two headers name the same
// specific series. A nil error with VerdictDegraded means the service
// was unreachable; the caller decides conservatively.
func (g *Gemini) SameSeries(ctx context.Context, headerA, headerB, decisionType string) (Result, error) {
	log := logging.Get(logging.CategoryValidator)

	if g.apiKey == "" {
		log.Warn("no API key configured, degrading verdict for %q vs %q", headerA, headerB)
		return Result{Verdict: VerdictDegraded, Rationale: "validator not configured"}, nil
	}

	if err := g.sem.Acquire(ctx, 1); err != nil {
		return Result{}, err
	}
	defer g.sem.Release(1)

	prompt := fmt.Sprintf("Header A: %s\nHeader B: %s", headerA, headerB)
	reqBody := geminiRequest{
		Contents: []geminiContent{
			{Role: "user", Parts: []geminiPart{{Text: prompt}}},
		},
		SystemInstruction: &geminiContent{Parts: []geminiPart{{Text: systemPrompt}}},
		GenerationConfig: geminiGenerationConfig{
			Temperature:     0,
			MaxOutputTokens: 256,
		},
	}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return Result{}, fmt.Errorf("marshal validator request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", g.baseURL, g.model, g.apiKey)

	timer := logging.StartTimer(logging.CategoryValidator, "validate "+decisionType)
	defer timer.Stop()

	var lastErr error
	for attempt := 1; attempt <= g.maxRetries; attempt++ {
		if attempt > 1 {
			backoff := time.Duration(1<<uint(attempt-2)) * time.Second
			log.Debug("retry %d/%d after %v: %v", attempt, g.maxRetries, backoff, lastErr)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return Result{}, ctx.Err()
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
		if err != nil {
			return Result{}, fmt.Errorf("create validator request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := g.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return Result{}, ctx.Err()
			}
			lastErr = err
			continue
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read validator response: %w", err)
			continue
		}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("validator returned status %d", resp.StatusCode)
			continue
		}
		if resp.StatusCode != http.StatusOK {
			// 4xx other than rate limiting will not improve on retry.
			log.Error("validator rejected request (%d): %s", resp.StatusCode, body)
			return Result{Verdict: VerdictDegraded, Rationale: fmt.Sprintf("status %d", resp.StatusCode)}, nil
		}

		var parsed geminiResponse
		if err := json.Unmarshal(body, &parsed); err != nil {
			lastErr = fmt.Errorf("parse validator response: %w", err)
			continue
		}
		if parsed.Error != nil {
			lastErr = fmt.Errorf("validator API error: %s", parsed.Error.Message)
			continue
		}
		if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
			lastErr = fmt.Errorf("validator returned no candidates")
			continue
		}

		var text strings.Builder
		for _, part := range parsed.Candidates[0].Content.Parts {
			text.WriteString(part.Text)
		}
		g.recordUsage(decisionType)
		res := parseVerdict(text.String())
		log.Info("%s verdict=%s for %q vs %q", decisionType, res.Verdict, headerA, headerB)
		return res, nil
	}

	g.recordUsage(decisionType)
	log.Warn("all %d attempts failed, degrading verdict: %v", g.maxRetries, lastErr)
	return Result{Verdict: VerdictDegraded, Rationale: fmt.Sprintf("retries exhausted: %v", lastErr)}, nil
}

func (g *Gemini) recordUsage(decisionType string) {
	if g.tracker != nil {
		g.tracker.Record(decisionType, g.costPerCall)
	}
}

// parseVerdict reads the leading YES/NO of the model's reply. Anything
// unrecognizable counts as negative: an unparseable confirmation must
// not commit a match.
func parseVerdict(text string) Result {
	trimmed := strings.TrimSpace(text)
	upper := strings.ToUpper(trimmed)
	rationale := trimmed
	if i := strings.IndexAny(trimmed, ".\n"); i >= 0 && i+1 < len(trimmed) {
		rationale = strings.TrimSpace(trimmed[i+1:])
	}

	switch {
	case strings.HasPrefix(upper, "YES"):
		return Result{Verdict: VerdictPositive, Rationale: rationale}
	case strings.HasPrefix(upper, "NO"):
		return Result{Verdict: VerdictNegative, Rationale: rationale}
	default:
		return Result{Verdict: VerdictNegative, Rationale: "unparseable reply: " + trimmed}
	}
}
