package types

import (
	"encoding/json"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeverityOrdering(t *testing.T) {
	assert.True(t, SeverityLow < SeverityMedium)
	assert.True(t, SeverityMedium < SeverityHigh)
	assert.True(t, SeverityHigh < SeverityCritical)
}

func TestSeverityWeights(t *testing.T) {
	assert.Equal(t, 1, SeverityLow.Weight())
	assert.Equal(t, 3, SeverityMedium.Weight())
	assert.Equal(t, 5, SeverityHigh.Weight())
	assert.Equal(t, 10, SeverityCritical.Weight())
}

func TestSeverityJSONRoundTrip(t *testing.T) {
	for _, sev := range []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical} {
		data, err := json.Marshal(sev)
		require.NoError(t, err)

		var back Severity
		require.NoError(t, json.Unmarshal(data, &back))
		assert.Equal(t, sev, back)
	}

	var bad Severity
	assert.Error(t, json.Unmarshal([]byte(`"apocalyptic"`), &bad))
}

func TestMaxSeverityEmptySet(t *testing.T) {
	assert.Equal(t, SeverityLow, MaxSeverity(nil))
	assert.Equal(t, SeverityLow, MaxSeverity([]RiskViolation{}))
}

func TestMaxSeverityRandomizedSets(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 200; i++ {
		n := rng.Intn(8) + 1
		violations := make([]RiskViolation, n)
		want := SeverityLow
		for j := range violations {
			sev := Severity(rng.Intn(4))
			violations[j] = RiskViolation{Severity: sev}
			if sev > want {
				want = sev
			}
		}
		assert.Equal(t, want, MaxSeverity(violations))
	}
}

func TestRuleParamsFloat(t *testing.T) {
	params := RuleParams{
		"f":   1.5,
		"i":   int(2),
		"i64": int64(3),
		"n":   json.Number("4.5"),
		"s":   "not a number",
	}

	assert.Equal(t, 1.5, params.Float("f", 0))
	assert.Equal(t, 2.0, params.Float("i", 0))
	assert.Equal(t, 3.0, params.Float("i64", 0))
	assert.Equal(t, 4.5, params.Float("n", 0))
	assert.Equal(t, 9.9, params.Float("s", 9.9))
	assert.Equal(t, 9.9, params.Float("missing", 9.9))
}

func TestRuleParamsBool(t *testing.T) {
	params := RuleParams{"on": true, "num": 1.0}

	assert.True(t, params.Bool("on", false))
	assert.False(t, params.Bool("num", false))
	assert.True(t, params.Bool("missing", true))
}
