package llm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"os"
	"text/template"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/siherrmann/biograph/helper"
	"github.com/siherrmann/biograph/model"
)

const (
	defaultModel     = "claude-3-5-haiku-20241022"
	defaultMaxTokens = 4096
	initialBackoff   = 1 * time.Second
)

// ErrAPIKeyRequired is returned when an API key is needed but not provided.
var ErrAPIKeyRequired = errors.New("API key required")

// CallError reports a collaborator call that failed for good, after all
// transport retries or repair retries were used up.
type CallError struct {
	Op       string
	Attempts int
	Err      error
}

// Error implements the error interface
func (e *CallError) Error() string {
	return fmt.Sprintf("llm %v failed after %v attempts: %v", e.Op, e.Attempts, e.Err)
}

// Unwrap returns the underlying error
func (e *CallError) Unwrap() error {
	return e.Err
}

// Unreachable reports whether the failure looks like the model service being
// down rather than a problem with this particular request.
func (e *CallError) Unreachable() bool {
	var netErr net.Error
	if errors.As(e.Err, &netErr) {
		return true
	}
	var apiErr *anthropic.Error
	if errors.As(e.Err, &apiErr) {
		return apiErr.StatusCode >= 500
	}
	return false
}

// Client wraps the Anthropic API for the extraction, classification and
// structuring calls of the pipeline.
type Client struct {
	client            anthropic.Client
	model             anthropic.Model
	extractTemplate   *template.Template
	classifyTemplate  *template.Template
	structureTemplate *template.Template
	repairTemplate    *template.Template
	maxRetries        int
	repairRetries     int
	initialBackoff    time.Duration
	callTimeout       time.Duration
	// complete runs one prompt through the model, set to callWithRetry
	complete func(ctx context.Context, prompt string) (string, error)
}

// NewClient creates a new Anthropic collaborator client. Env var
// ANTHROPIC_API_KEY takes precedence over the explicit apiKey. Retries bounds
// transport retries per call, repairRetries bounds re-prompts for malformed
// responses and callTimeout limits every single attempt.
func NewClient(apiKey string, retries int, repairRetries int, callTimeout time.Duration) (*Client, error) {
	envKey := os.Getenv("ANTHROPIC_API_KEY")
	if envKey != "" {
		apiKey = envKey
	}
	if apiKey == "" {
		return nil, fmt.Errorf("%w: set ANTHROPIC_API_KEY environment variable or provide via config", ErrAPIKeyRequired)
	}

	extractTmpl, err := template.New("extract").Parse(extractPromptTemplate)
	if err != nil {
		return nil, helper.NewError("parse extract template", err)
	}
	classifyTmpl, err := template.New("classify").Parse(classifyPromptTemplate)
	if err != nil {
		return nil, helper.NewError("parse classify template", err)
	}
	structureTmpl, err := template.New("structure").Parse(structurePromptTemplate)
	if err != nil {
		return nil, helper.NewError("parse structure template", err)
	}
	repairTmpl, err := template.New("repair").Parse(repairPromptTemplate)
	if err != nil {
		return nil, helper.NewError("parse repair template", err)
	}

	client := &Client{
		client:            anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:             defaultModel,
		extractTemplate:   extractTmpl,
		classifyTemplate:  classifyTmpl,
		structureTemplate: structureTmpl,
		repairTemplate:    repairTmpl,
		maxRetries:        retries,
		repairRetries:     repairRetries,
		initialBackoff:    initialBackoff,
		callTimeout:       callTimeout,
	}
	client.complete = client.callWithRetry

	return client, nil
}

// SetModel overrides the default model
func (c *Client) SetModel(name string) {
	c.model = anthropic.Model(name)
}

// ExtractCandidates asks the model for every person mentioned in the document.
// Mentions without a name are dropped, confidences are clamped to [0, 1].
func (c *Client) ExtractCandidates(ctx context.Context, doc *model.Document) ([]*model.Candidate, error) {
	prompt, err := c.renderExtractPrompt(doc)
	if err != nil {
		return nil, helper.NewError("render extract prompt", err)
	}

	var candidates []*model.Candidate
	err = c.completeJSON(ctx, "extract", prompt, func(payload string) error {
		parsed, parseErr := parseExtraction(payload, doc)
		if parseErr != nil {
			return parseErr
		}
		candidates = parsed
		return nil
	})
	if err != nil {
		return nil, err
	}

	return candidates, nil
}

// ClassifyCandidate asks the model whether the candidate is a real human
// being. It returns the label and the classification confidence.
func (c *Client) ClassifyCandidate(ctx context.Context, candidate *model.Candidate) (model.CandidateLabel, float64, error) {
	prompt, err := c.renderClassifyPrompt(candidate)
	if err != nil {
		return model.LabelUnclassified, 0, helper.NewError("render classify prompt", err)
	}

	var label model.CandidateLabel
	var confidence float64
	err = c.completeJSON(ctx, "classify", prompt, func(payload string) error {
		parsedLabel, parsedConfidence, parseErr := parseClassification(payload)
		if parseErr != nil {
			return parseErr
		}
		label = parsedLabel
		confidence = parsedConfidence
		return nil
	})
	if err != nil {
		return model.LabelUnclassified, 0, err
	}

	return label, confidence, nil
}

// StructureCandidate asks the model to normalize the candidate's raw
// attribute fragments into structured fields.
func (c *Client) StructureCandidate(ctx context.Context, candidate *model.Candidate) (*model.StructuredAttributes, error) {
	prompt, err := c.renderStructurePrompt(candidate)
	if err != nil {
		return nil, helper.NewError("render structure prompt", err)
	}

	var attributes *model.StructuredAttributes
	err = c.completeJSON(ctx, "structure", prompt, func(payload string) error {
		parsed, parseErr := parseStructure(payload)
		if parseErr != nil {
			return parseErr
		}
		attributes = parsed
		return nil
	})
	if err != nil {
		return nil, err
	}

	return attributes, nil
}

// completeJSON runs prompt through the model and hands the JSON payload to
// parse. Malformed payloads are sent back to the model for repair up to
// repairRetries times before the call fails.
func (c *Client) completeJSON(ctx context.Context, op string, prompt string, parse func(payload string) error) error {
	response, err := c.complete(ctx, prompt)
	if err != nil {
		return &CallError{Op: op, Attempts: c.maxRetries + 1, Err: err}
	}

	parseErr := tryParse(response, parse)
	for attempt := 0; parseErr != nil && attempt < c.repairRetries; attempt++ {
		repairPrompt, renderErr := c.renderRepairPrompt(prompt, response, parseErr)
		if renderErr != nil {
			return helper.NewError("render repair prompt", renderErr)
		}

		response, err = c.complete(ctx, repairPrompt)
		if err != nil {
			return &CallError{Op: op, Attempts: c.maxRetries + 1, Err: err}
		}
		parseErr = tryParse(response, parse)
	}
	if parseErr != nil {
		return &CallError{Op: op, Attempts: c.repairRetries + 1, Err: parseErr}
	}

	return nil
}

func tryParse(response string, parse func(payload string) error) error {
	payload, err := extractJSON(response)
	if err != nil {
		return err
	}
	return parse(payload)
}

func (c *Client) callWithRetry(ctx context.Context, prompt string) (string, error) {
	var lastErr error
	params := anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: defaultMaxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := c.initialBackoff * time.Duration(math.Pow(2, float64(attempt-1)))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		attemptCtx := ctx
		cancel := func() {}
		if c.callTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, c.callTimeout)
		}
		message, err := c.client.Messages.New(attemptCtx, params)
		cancel()

		if err == nil {
			if len(message.Content) > 0 {
				content := message.Content[0]
				if content.Type == "text" {
					return content.Text, nil
				}
				return "", fmt.Errorf("unexpected response format: not a text block (type=%s)", content.Type)
			}
			return "", fmt.Errorf("unexpected response format: no content blocks")
		}

		lastErr = err

		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		if !isRetryable(err) {
			return "", err
		}
	}

	return "", fmt.Errorf("failed after %d attempts: %w", c.maxRetries+1, lastErr)
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) {
		return false
	}

	// A deadline here is the per attempt timeout, the parent context is
	// checked by the caller.
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		statusCode := apiErr.StatusCode
		if statusCode == 429 || statusCode >= 500 {
			return true
		}
		return false
	}

	return false
}
