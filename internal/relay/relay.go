package relay

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"concierge/internal/budget"
	"concierge/internal/chunker"
	"concierge/internal/corpus"
	"concierge/internal/llm"
	"concierge/internal/store"
)

// maxQuestionRunes bounds visitor input; anything longer is rejected before
// it touches the budget.
const maxQuestionRunes = 800

// contextTokensPerChunk is the reservation allowance for each context block
// that retrieval may attach. Chunk bodies are capped near 900 characters, so
// 256 tokens covers body plus the tag framing.
const contextTokensPerChunk = 256

// Fallback reason codes not owned by the budget package.
const ReasonUpstreamUnavailable = "upstream_unavailable"

// InvalidRequestError marks input the relay refuses to process. It is the
// only relay failure the HTTP layer maps to a non-2xx status.
type InvalidRequestError struct {
	Detail string
}

func (e *InvalidRequestError) Error() string {
	return "invalid request: " + e.Detail
}

// Result is one resolved question. Either Answer is set, or Fallback is true
// and Reason names why the relay answered without the upstream model.
type Result struct {
	Answer     string
	ContextIDs []string
	Grounded   bool
	Model      string
	Cost       float64

	Fallback bool
	Reason   string
}

// questionEmbedder is the slice of the embedding client the relay needs.
type questionEmbedder interface {
	EmbedSingle(ctx context.Context, text string) ([]float32, error)
}

// retriever is the slice of the retrieval engine the relay needs.
type retriever interface {
	Retrieve(ctx context.Context, embedding []float32, k int) ([]store.SearchResult, error)
}

// Relay runs a question end to end: admission, budget reservation, retrieval,
// the upstream call, and cost reconciliation. Every reservation it takes is
// resolved exactly once, even when the upstream call fails or the caller's
// context is cancelled mid-flight.
type Relay struct {
	ledger   *budget.Ledger
	ips      *budget.IPLimiter
	embedder questionEmbedder
	engine   retriever
	provider llm.Provider
	costs    CostModel

	system       string
	systemTokens int
	topK         int
	timeout      time.Duration
	logger       *zap.Logger
}

// New wires a relay. The system prompt is rendered once from the profile; the
// corpus does not change while the process runs.
func New(
	ledger *budget.Ledger,
	ips *budget.IPLimiter,
	emb questionEmbedder,
	engine retriever,
	provider llm.Provider,
	costs CostModel,
	profile corpus.Profile,
	topK int,
	timeout time.Duration,
	logger *zap.Logger,
) *Relay {
	system := SystemPrompt(profile)
	return &Relay{
		ledger:       ledger,
		ips:          ips,
		embedder:     emb,
		engine:       engine,
		provider:     provider,
		costs:        costs,
		system:       system,
		systemTokens: chunker.EstimateTokens(system),
		topK:         topK,
		timeout:      timeout,
		logger:       logger,
	}
}

// Answer resolves one visitor question. Budget and rate-limit rejections and
// upstream failures come back as graceful fallback Results, not errors; only
// malformed input returns an error.
func (r *Relay) Answer(ctx context.Context, ip, question string) (*Result, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, &InvalidRequestError{Detail: "question is empty"}
	}
	if n := len([]rune(question)); n > maxQuestionRunes {
		return nil, &InvalidRequestError{Detail: fmt.Sprintf("question is %d characters, limit is %d", n, maxQuestionRunes)}
	}

	if err := r.ips.Allow(ip); err != nil {
		limited := err.(*budget.LimitedError)
		r.logger.Info("request rate limited",
			zap.String("ip", ip),
			zap.String("reason", limited.Reason()),
		)
		return &Result{Fallback: true, Reason: limited.Reason()}, nil
	}

	inputTokens := r.systemTokens + chunker.EstimateTokens(question) + r.topK*contextTokensPerChunk
	estimated := r.costs.Estimate(inputTokens)

	reservation, err := r.ledger.Reserve(estimated)
	if err != nil {
		exceeded := err.(*budget.ExceededError)
		r.logger.Warn("budget exhausted, serving fallback",
			zap.String("ip", ip),
			zap.String("reason", exceeded.Reason()),
			zap.Float64("estimated_eur", estimated),
			zap.Any("windows", r.ledger.Snapshot()),
		)
		return &Result{Fallback: true, Reason: exceeded.Reason()}, nil
	}
	// Release is a no-op once the reservation is committed, so the defer only
	// fires on the failure paths below.
	defer r.ledger.Release(reservation)

	chunks := r.retrieve(ctx, question)

	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	answer, err := r.provider.Ask(callCtx, r.system, UserPrompt(question, chunks))
	if err != nil {
		r.logger.Error("upstream call failed, reservation released",
			zap.String("ip", ip),
			zap.Error(err),
		)
		return &Result{Fallback: true, Reason: ReasonUpstreamUnavailable}, nil
	}

	actual := r.costs.Actual(answer.PromptTokens, answer.CompletionTokens)
	r.ledger.Commit(reservation, actual)

	ids := make([]string, len(chunks))
	for i, c := range chunks {
		ids[i] = c.Chunk.ID
	}
	r.logger.Info("question answered",
		zap.String("ip", ip),
		zap.Bool("grounded", len(ids) > 0),
		zap.Strings("context_chunks", ids),
		zap.Int("prompt_tokens", answer.PromptTokens),
		zap.Int("completion_tokens", answer.CompletionTokens),
		zap.Float64("actual_eur", actual),
	)

	return &Result{
		Answer:     answer.Text,
		ContextIDs: ids,
		Grounded:   len(ids) > 0,
		Model:      answer.Model,
		Cost:       actual,
	}, nil
}

// retrieve embeds the question and fetches context. Both steps are
// best-effort: any failure downgrades the answer to ungrounded rather than
// failing the request.
func (r *Relay) retrieve(ctx context.Context, question string) []store.SearchResult {
	embedding, err := r.embedder.EmbedSingle(ctx, question)
	if err != nil {
		r.logger.Warn("question embedding failed, answering ungrounded", zap.Error(err))
		return nil
	}
	chunks, err := r.engine.Retrieve(ctx, embedding, r.topK)
	if err != nil {
		r.logger.Warn("retrieval failed, answering ungrounded", zap.Error(err))
		return nil
	}
	return chunks
}
