package scripting

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func linearFormula(c ScoreInputs) float64 {
	return float64(c.UrgencyRank)*1000 - c.CampaignFitT - c.RiskPenalty
}

func TestCompileAndScoreValidScript(t *testing.T) {
	script := `
func Score(c ScoreInputs) float64 {
	return float64(c.UrgencyRank)*1000 - c.CampaignFitT
}
`
	scorer, err := Compile(script)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	v, err := scorer.Score(ctx, ScoreInputs{UrgencyRank: 2, CampaignFitT: 50})
	require.NoError(t, err)
	require.Equal(t, float64(1950), v)
}

func TestCompileRejectsForbiddenImport(t *testing.T) {
	script := `
import (
	"os"
)
func Score(c ScoreInputs) float64 {
	os.Exit(1)
	return 0
}
`
	_, err := Compile(script)
	require.Error(t, err)
}

func TestEvalWithFallbackUsesLinearOnBadScript(t *testing.T) {
	in := ScoreInputs{UrgencyRank: 1, CampaignFitT: 10}
	v := EvalWithFallback("not valid go code {{{", in, linearFormula)
	require.Equal(t, linearFormula(in), v)
}

func TestEvalWithFallbackUsesLinearOnEmptyScript(t *testing.T) {
	in := ScoreInputs{UrgencyRank: 3, CampaignFitT: 5}
	v := EvalWithFallback("", in, linearFormula)
	require.Equal(t, linearFormula(in), v)
}
