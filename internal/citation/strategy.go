package citation

import (
	"fmt"
	"strings"

	"github.com/xxxsen/datachat/internal/model"
)

const (
	VariantDisplay = "display"
	VariantCard    = "card"
)

// Result is the variant-neutral output of a Strategy. Exactly one of
// Citations (display) or Actions (card) is populated.
type Result struct {
	Text      string                 `json:"text"`
	Citations []model.Citation       `json:"citations,omitempty"`
	Actions   []model.RenderedAction `json:"actions,omitempty"`
}

// Strategy is one de-duplication policy for inline references.
type Strategy interface {
	Name() string
	Normalize(answer string, citations []model.Citation) Result
}

type displayStrategy struct{}

func (displayStrategy) Name() string { return VariantDisplay }

func (displayStrategy) Normalize(answer string, citations []model.Citation) Result {
	out := NormalizeForDisplay(model.Answer{Answer: answer, Citations: citations})
	return Result{Text: out.MarkdownFormatText, Citations: out.Citations}
}

type cardStrategy struct{}

func (cardStrategy) Name() string { return VariantCard }

func (cardStrategy) Normalize(answer string, citations []model.Citation) Result {
	out := NormalizeForCard(citations, answer)
	return Result{Text: out.RewrittenText, Actions: out.Actions}
}

var (
	DisplayStrategy Strategy = displayStrategy{}
	CardStrategy    Strategy = cardStrategy{}
)

// StrategyFor resolves a variant name; an empty name means display.
func StrategyFor(variant string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(variant)) {
	case "", VariantDisplay:
		return DisplayStrategy, nil
	case VariantCard:
		return CardStrategy, nil
	default:
		return nil, fmt.Errorf("unsupported citation variant: %s", variant)
	}
}
