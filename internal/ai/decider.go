package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"trading-orchestrator/config"
	"trading-orchestrator/internal/market"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// PositionState is the open-position view included in prompts
type PositionState struct {
	Coin          string
	Side          string
	Quantity      decimal.Decimal
	AvgEntryPrice decimal.Decimal
	CurrentPrice  decimal.Decimal
}

// TradeState is the recent-trade view included in prompts
type TradeState struct {
	Coin        string
	Side        string
	Quantity    decimal.Decimal
	Price       decimal.Decimal
	RealizedPnL decimal.Decimal
	Timestamp   time.Time
}

// PortfolioState is the portfolio view the decider reasons over
type PortfolioState struct {
	Cash         decimal.Decimal
	TotalValue   decimal.Decimal
	Positions    []PositionState
	RecentTrades []TradeState
}

// Request is one decision request for one model's cycle
type Request struct {
	Provider    Provider
	Model       string
	Temperature float64
	Coins       []string
	Basket      *market.Basket
	Portfolio   *PortfolioState
}

// Decider returns one decision per coin for a model's cycle. Implementations
// are stateless with respect to the orchestrator.
type Decider interface {
	Decide(ctx context.Context, req *Request) (map[string]Decision, error)
}

// LLMDecider asks an LLM provider for decisions. API keys are shared across
// models; provider, model identifier and temperature are per-request.
type LLMDecider struct {
	cfg    config.AIConfig
	logger zerolog.Logger
}

var _ Decider = (*LLMDecider)(nil)

// NewLLMDecider creates the LLM-backed decider
func NewLLMDecider(cfg config.AIConfig, logger zerolog.Logger) *LLMDecider {
	return &LLMDecider{cfg: cfg, logger: logger}
}

// Decide builds the prompt, calls the provider, and parses the decision map.
// Coins the response omits are treated as hold.
func (d *LLMDecider) Decide(ctx context.Context, req *Request) (map[string]Decision, error) {
	apiKey, err := d.apiKeyFor(req.Provider)
	if err != nil {
		return nil, err
	}

	client := NewClient(ClientConfig{
		Provider:    req.Provider,
		APIKey:      apiKey,
		Model:       req.Model,
		MaxTokens:   d.cfg.MaxTokens,
		Temperature: req.Temperature,
		Timeout:     d.cfg.Timeout,
	})

	raw, err := client.Complete(ctx, systemPrompt, buildUserPrompt(req))
	if err != nil {
		return nil, fmt.Errorf("llm request failed: %w", err)
	}

	decisions, err := parseDecisions(raw, req.Coins)
	if err != nil {
		d.logger.Warn().Err(err).Str("provider", string(req.Provider)).Msg("unparseable llm response")
		return nil, err
	}
	return decisions, nil
}

func (d *LLMDecider) apiKeyFor(provider Provider) (string, error) {
	switch provider {
	case ProviderClaude:
		if d.cfg.ClaudeAPIKey != "" {
			return d.cfg.ClaudeAPIKey, nil
		}
	case ProviderOpenAI:
		if d.cfg.OpenAIAPIKey != "" {
			return d.cfg.OpenAIAPIKey, nil
		}
	case ProviderDeepSeek:
		if d.cfg.DeepSeekAPIKey != "" {
			return d.cfg.DeepSeekAPIKey, nil
		}
	default:
		return "", fmt.Errorf("unsupported provider: %s", provider)
	}
	return "", fmt.Errorf("no API key configured for provider %s", provider)
}

var codeBlockRegex = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")

// stripMarkdownCodeBlock extracts JSON from a fenced code block if the model
// wrapped its response in one
func stripMarkdownCodeBlock(s string) string {
	if matches := codeBlockRegex.FindStringSubmatch(s); len(matches) > 1 {
		return matches[1]
	}
	return strings.TrimSpace(s)
}

// parseDecisions parses the provider response into per-coin decisions,
// validating each and dropping coins outside the basket
func parseDecisions(raw string, coins []string) (map[string]Decision, error) {
	cleaned := stripMarkdownCodeBlock(raw)

	var parsed map[string]Decision
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		return nil, fmt.Errorf("invalid decision JSON: %w", err)
	}

	allowed := make(map[string]bool, len(coins))
	for _, c := range coins {
		allowed[c] = true
	}

	decisions := make(map[string]Decision, len(parsed))
	for coin, decision := range parsed {
		coin = strings.ToUpper(coin)
		if !allowed[coin] {
			continue
		}
		decision.Coin = coin
		if err := decision.Validate(); err != nil {
			return nil, fmt.Errorf("decision for %s: %w", coin, err)
		}
		decisions[coin] = decision
	}
	return decisions, nil
}

// SortedCoins returns the decision keys in deterministic order
func SortedCoins(decisions map[string]Decision) []string {
	coins := make([]string, 0, len(decisions))
	for coin := range decisions {
		coins = append(coins, coin)
	}
	sort.Strings(coins)
	return coins
}
