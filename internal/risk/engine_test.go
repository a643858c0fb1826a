package risk

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEngine_DecidesOnlyAtFullCoverage(t *testing.T) {
	e := NewEngine("eval-1")

	// Report every category but the last, twice and in reverse order.
	for round := 0; round < 2; round++ {
		for i := len(registry) - 2; i >= 0; i-- {
			_, decided, err := e.Record(Finding{Category: registry[i], Severity: SeverityGreen})
			require.NoError(t, err)
			require.False(t, decided)
			require.Equal(t, StateCollecting, e.State())
		}
	}
	require.Equal(t, len(registry)-1, e.Reported())

	_, ok := e.Outcome()
	require.False(t, ok)

	outcome, decided, err := e.Record(Finding{Category: registry[len(registry)-1], Severity: SeverityGreen})
	require.NoError(t, err)
	require.True(t, decided)
	require.Equal(t, StateDecided, e.State())
	require.Equal(t, DecisionGo, outcome.Decision)
	require.Equal(t, "eval-1", outcome.EvaluationID)
	require.Len(t, outcome.Findings, len(registry))
}

func TestEngine_LaterFindingReplacesEarlier(t *testing.T) {
	e := NewEngine("eval-2")

	_, _, err := e.Record(Finding{Category: CategoryWeather, Severity: SeverityRed, Detail: "gusts"})
	require.NoError(t, err)
	_, _, err = e.Record(Finding{Category: CategoryWeather, Severity: SeverityGreen, Detail: "calm"})
	require.NoError(t, err)

	var outcome Outcome
	for _, c := range registry[1:] {
		var decided bool
		outcome, decided, err = e.Record(Finding{Category: c, Severity: SeverityGreen})
		require.NoError(t, err)
		if c == registry[len(registry)-1] {
			require.True(t, decided)
		}
	}

	require.Len(t, outcome.Findings, len(registry))
	require.Equal(t, "calm", outcome.Findings[0].Detail)
	require.Equal(t, DecisionGo, outcome.Decision)
}

func TestEngine_FiresOnceAndIgnoresLateFindings(t *testing.T) {
	e := NewEngine("eval-3")
	for _, c := range registry {
		_, _, err := e.Record(Finding{Category: c, Severity: SeverityAmber})
		require.NoError(t, err)
	}

	outcome, decided, err := e.Record(Finding{Category: CategoryNOTAMs, Severity: SeverityRed})
	require.NoError(t, err)
	require.False(t, decided)
	require.Equal(t, DecisionCaution, outcome.Decision)
}

func TestEngine_RejectsUnknownCategory(t *testing.T) {
	e := NewEngine("eval-4")
	_, _, err := e.Record(Finding{Category: "tides", Severity: SeverityGreen})
	require.ErrorIs(t, err, ErrUnknownCategory)
	require.Equal(t, 0, e.Reported())
}

func TestEngine_InvalidSeverityBecomesUnknown(t *testing.T) {
	e := NewEngine("eval-5")
	var outcome Outcome
	for _, c := range registry {
		sev := SeverityGreen
		if c == CategorySolarActivity {
			sev = "purple"
		}
		outcome, _, _ = e.Record(Finding{Category: c, Severity: sev})
	}
	require.Equal(t, SeverityUnknown, outcome.Findings[2].Severity)
	require.Equal(t, DecisionGo, outcome.Decision)
}
