package insight

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/soenlit/health-buddy/internal/aggregator"
)

// InsufficientDataMessage returned instead of calling the model when the window is empty
const InsufficientDataMessage = "还没攒够数据，再运动两天吧。"

// Outcome how the insight text was produced
type Outcome string

const (
	OutcomeGenerated        Outcome = "generated"
	OutcomeInsufficientData Outcome = "insufficient_data"
	OutcomeFallback         Outcome = "fallback"
)

// Result insight text plus how it came about. Text is never empty.
type Result struct {
	Text    string
	Outcome Outcome
	Err     error
}

// Generator 健康洞察生成器
type Generator struct {
	model  TextModel
	logger *zap.Logger
}

// NewGenerator creates a generator
func NewGenerator(model TextModel, logger *zap.Logger) *Generator {
	return &Generator{model: model, logger: logger}
}

// Generate turns stats into insight text. It never fails: model errors become
// fallback text carrying the error detail.
func (g *Generator) Generate(ctx context.Context, st *aggregator.Stats) Result {
	if st.Empty() {
		g.logger.Warn("Insufficient data for insight")
		return Result{Text: InsufficientDataMessage, Outcome: OutcomeInsufficientData}
	}

	prompt, err := RenderPrompt(st)
	if err != nil {
		return g.fallback(err)
	}

	text, err := g.model.GenerateText(ctx, prompt)
	if err != nil {
		return g.fallback(err)
	}

	return Result{Text: text, Outcome: OutcomeGenerated}
}

func (g *Generator) fallback(err error) Result {
	g.logger.Error("Insight generation failed", zap.Error(err))
	return Result{
		Text:    FallbackText(err),
		Outcome: OutcomeFallback,
		Err:     err,
	}
}

// FallbackText message delivered when the model could not answer
func FallbackText(err error) string {
	return fmt.Sprintf("AI 离家出走了: %v", err)
}
