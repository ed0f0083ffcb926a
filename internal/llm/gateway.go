// Package llm is the sole path for model interactions. Every agent invokes
// the Gateway rather than talking to a model provider directly, so retry
// policy, JSON recovery, circuit breaking, and telemetry stay in one place.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	openai "github.com/sashabaranov/go-openai"
	"github.com/sony/gobreaker"

	"briefloom/internal/logging"
)

// Message is a single chat turn.
type Message struct {
	Role    string // "system", "user", or "assistant"
	Content string
}

// Usage reports token accounting for one call.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Recorder is the subset of internal/telemetry.Recorder the gateway needs.
// Defined here, not imported from internal/telemetry, so the gateway never
// depends on the telemetry package's on-disk layout. The gateway logs a
// failed Append as a warning and otherwise ignores it; it never fails the
// call being recorded.
type Recorder interface {
	Append(rec CallRecord) error
}

// CallRecord mirrors telemetry.AICallRecord's shape so the gateway can hand
// records to any Recorder implementation without a direct dependency.
type CallRecord struct {
	CallID      string
	Timestamp   time.Time
	CallType    string
	Model       string
	AgentName   string
	SessionID   string
	Messages    []Message
	Response    string
	PromptTok   int
	CompleteTok int
	TotalTok    int
	DurationMS  int64
	RetryCount  int
	Error       string
}

// callContextKey carries ambient agent/session attribution set by the
// orchestrator before invoking an agent, read back here so telemetry can
// attribute the call without every agent threading it through explicitly.
type callContextKey struct{}

// CallContext is the ambient attribution read by the gateway from ctx.
type CallContext struct {
	AgentName string
	SessionID string
}

// WithCallContext attaches agent/session attribution to ctx.
func WithCallContext(ctx context.Context, cc CallContext) context.Context {
	return context.WithValue(ctx, callContextKey{}, cc)
}

func callContextFrom(ctx context.Context) CallContext {
	if cc, ok := ctx.Value(callContextKey{}).(CallContext); ok {
		return cc
	}
	return CallContext{}
}

// Config configures a Gateway.
type Config struct {
	BaseURL    string
	APIKey     string
	Model      string
	Timeout    time.Duration
	RetryCount int // default 3
	MaxBackoff time.Duration // default 30s
	ContentCap int           // default 10000 chars, truncation marker threshold

	Recorder Recorder
	Logger   *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.RetryCount <= 0 {
		c.RetryCount = 3
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 30 * time.Second
	}
	if c.ContentCap <= 0 {
		c.ContentCap = 10000
	}
	if c.Timeout <= 0 {
		c.Timeout = 60 * time.Second
	}
	return c
}

// Gateway is the sole path for chat completions against the configured model.
type Gateway struct {
	cfg      Config
	client   *openai.Client
	breaker  *gobreaker.CircuitBreaker
	logger   *slog.Logger
	now      func() time.Time
	newCallID func() string

	// chatOnceFn defaults to the Gateway's own chatOnce; tests override it
	// to exercise retry/backoff/telemetry without a live model endpoint.
	chatOnceFn func(ctx context.Context, messages []Message, opts ChatOptions) (string, Usage, error)
}

// New creates a Gateway.
func New(cfg Config) *Gateway {
	cfg = cfg.withDefaults()
	logger := logging.Default(cfg.Logger).With("component", "llm_gateway")

	oaiCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oaiCfg.BaseURL = cfg.BaseURL
	}

	cbSettings := gobreaker.Settings{
		Name:    "llm_gateway",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change", "from", from, "to", to)
		},
	}

	g := &Gateway{
		cfg:       cfg,
		client:    openai.NewClientWithConfig(oaiCfg),
		breaker:   gobreaker.NewCircuitBreaker(cbSettings),
		logger:    logger,
		now:       time.Now,
		newCallID: func() string { return uuid.NewString() },
	}
	g.chatOnceFn = g.chatOnce
	return g
}

// BuildMessages assembles a system/user message pair, optionally followed by
// few-shot example turns (alternating user/assistant).
func BuildMessages(system, user string, examples ...Message) []Message {
	msgs := make([]Message, 0, 2+len(examples))
	if system != "" {
		msgs = append(msgs, Message{Role: "system", Content: system})
	}
	msgs = append(msgs, examples...)
	msgs = append(msgs, Message{Role: "user", Content: user})
	return msgs
}

// ChatOptions configures a single Chat/ChatJSON call.
type ChatOptions struct {
	MaxTokens   int
	Temperature float32
	JSONHint    bool // hints the provider to constrain output to JSON when supported
}

// Chat sends messages to the model and returns the raw response text.
// On terminal failure (after RetryCount attempts), it returns an error; the
// failed attempt is still recorded to Recorder with Error set and zero
// token usage, per the gateway's telemetry contract.
func (g *Gateway) Chat(ctx context.Context, messages []Message, opts ChatOptions) (string, Usage, error) {
	return g.call(ctx, "chat", messages, opts)
}

// ChatJSON sends messages and recovers a JSON object from the response,
// trying direct parse, then a fenced code block, then the longest brace span.
// A response that cannot be recovered as JSON after retries returns a nil
// map and the underlying error; the call itself is still recorded.
func (g *Gateway) ChatJSON(ctx context.Context, messages []Message, opts ChatOptions) (map[string]any, Usage, error) {
	opts.JSONHint = true
	text, usage, err := g.call(ctx, "chat_json", messages, opts)
	if err != nil {
		return nil, usage, err
	}
	parsed, ok := ParseJSON(text)
	if !ok {
		return nil, usage, fmt.Errorf("llm: could not recover a JSON object from the response")
	}
	return parsed, usage, nil
}

// ParseJSON recovers a JSON object from text using the three-strategy
// ordered recovery scheme: direct parse, fenced code block, longest brace span.
func ParseJSON(text string) (map[string]any, bool) {
	if obj, ok := tryUnmarshalObject(text); ok {
		return obj, true
	}
	if block, ok := extractFencedBlock(text); ok {
		if obj, ok := tryUnmarshalObject(block); ok {
			return obj, true
		}
	}
	if span, ok := extractBraceSpan(text); ok {
		if obj, ok := tryUnmarshalObject(span); ok {
			return obj, true
		}
	}
	return nil, false
}

func tryUnmarshalObject(s string) (map[string]any, bool) {
	s = strings.TrimSpace(s)
	var obj map[string]any
	if err := json.Unmarshal([]byte(s), &obj); err != nil {
		return nil, false
	}
	return obj, true
}

// extractFencedBlock returns the contents of the first ```json ... ``` or
// plain ``` ... ``` fenced block, if any.
func extractFencedBlock(text string) (string, bool) {
	const fence = "```"
	start := strings.Index(text, fence)
	if start == -1 {
		return "", false
	}
	rest := text[start+len(fence):]
	rest = strings.TrimPrefix(rest, "json")
	rest = strings.TrimPrefix(rest, "JSON")
	end := strings.Index(rest, fence)
	if end == -1 {
		return "", false
	}
	return rest[:end], true
}

// extractBraceSpan returns the longest substring delimited by the first '{'
// and last '}' in text.
func extractBraceSpan(text string) (string, bool) {
	first := strings.Index(text, "{")
	last := strings.LastIndex(text, "}")
	if first == -1 || last == -1 || last < first {
		return "", false
	}
	return text[first : last+1], true
}

// truncate caps content at the configured length, appending a marker with
// the pre-truncation length when it does.
func truncate(s string, cap int) string {
	if len(s) <= cap {
		return s
	}
	return s[:cap] + fmt.Sprintf("\n[truncated, total %d chars]", len(s))
}

// call implements the shared retry/backoff/telemetry path for Chat and ChatJSON.
func (g *Gateway) call(ctx context.Context, callType string, messages []Message, opts ChatOptions) (string, Usage, error) {
	callID := g.newCallID()
	start := g.now()
	cc := callContextFrom(ctx)

	truncated := make([]Message, len(messages))
	for i, m := range messages {
		truncated[i] = Message{Role: m.Role, Content: truncate(m.Content, g.cfg.ContentCap)}
	}

	var (
		text    string
		usage   Usage
		lastErr error
	)
	attempts := 0
	for attempt := 0; attempt < g.cfg.RetryCount; attempt++ {
		attempts = attempt + 1
		text, usage, lastErr = g.chatOnceFn(ctx, truncated, opts)
		if lastErr == nil {
			break
		}
		g.logger.Warn("llm call attempt failed", "call_type", callType, "attempt", attempts, "error", lastErr)
		if attempt == g.cfg.RetryCount-1 {
			break
		}
		backoff := backoffFor(attempt, g.cfg.MaxBackoff)
		select {
		case <-ctx.Done():
			lastErr = ctx.Err()
			attempts = attempt + 1
			goto recordAndReturn
		case <-time.After(backoff):
		}
	}

recordAndReturn:
	duration := g.now().Sub(start)
	rec := CallRecord{
		CallID:     callID,
		Timestamp:  start,
		CallType:   callType,
		Model:      g.cfg.Model,
		AgentName:  cc.AgentName,
		SessionID:  cc.SessionID,
		Messages:   truncated,
		Response:   truncate(text, g.cfg.ContentCap),
		DurationMS: duration.Milliseconds(),
		RetryCount: attempts,
	}
	if lastErr != nil {
		rec.Error = lastErr.Error()
	} else {
		rec.PromptTok = usage.PromptTokens
		rec.CompleteTok = usage.CompletionTokens
		rec.TotalTok = usage.TotalTokens
	}
	g.record(rec)

	return text, usage, lastErr
}

// record writes rec to the configured Recorder, swallowing any failure.
func (g *Gateway) record(rec CallRecord) {
	if g.cfg.Recorder == nil {
		return
	}
	if err := g.cfg.Recorder.Append(rec); err != nil {
		g.logger.Warn("telemetry append failed", "error", err)
	}
}

// chatOnce performs a single completion attempt through the circuit breaker.
func (g *Gateway) chatOnce(ctx context.Context, messages []Message, opts ChatOptions) (string, Usage, error) {
	result, err := g.breaker.Execute(func() (any, error) {
		req := openai.ChatCompletionRequest{
			Model:       g.cfg.Model,
			Messages:    toOpenAIMessages(messages),
			MaxTokens:   opts.MaxTokens,
			Temperature: opts.Temperature,
		}
		if opts.JSONHint {
			req.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
		}
		resp, err := g.client.CreateChatCompletion(ctx, req)
		if err != nil {
			return nil, err
		}
		if len(resp.Choices) == 0 {
			return nil, errors.New("llm: empty choices in response")
		}
		return chatResult{
			text: resp.Choices[0].Message.Content,
			usage: Usage{
				PromptTokens:     resp.Usage.PromptTokens,
				CompletionTokens: resp.Usage.CompletionTokens,
				TotalTokens:      resp.Usage.TotalTokens,
			},
		}, nil
	})
	if err != nil {
		return "", Usage{}, err
	}
	cr := result.(chatResult)
	return cr.text, cr.usage, nil
}

type chatResult struct {
	text  string
	usage Usage
}

func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		out[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}
	return out
}

// backoffFor returns min(2^attempt, maxBackoff) seconds, matching the
// reconnect-backoff idiom used elsewhere in this codebase for outbound I/O.
func backoffFor(attempt int, maxBackoff time.Duration) time.Duration {
	d := time.Second
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= maxBackoff {
			return maxBackoff
		}
	}
	return min(d, maxBackoff)
}
