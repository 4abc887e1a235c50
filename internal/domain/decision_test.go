package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDecision(t *testing.T) {
	tests := []struct {
		name             string
		raw              string
		expectError      bool
		expectedErrorMsg string
		expectedAction   Action
		expectedRisk     RiskLevel
	}{
		{
			name:           "valid buy decision",
			raw:            `{"decision":"buy","confidence":0.88,"reason":"higher low above the 50-day MA","risk_level":"low"}`,
			expectedAction: ActionBuy,
			expectedRisk:   RiskLow,
		},
		{
			name:           "valid hold decision without risk level",
			raw:            `{"decision":"hold","confidence":0.76,"reason":"consolidating in a narrow range"}`,
			expectedAction: ActionHold,
			expectedRisk:   RiskNone,
		},
		{
			name:           "markdown fenced payload",
			raw:            "```json\n{\"decision\":\"sell\",\"confidence\":0.91,\"reason\":\"double top, bearish divergence\",\"risk_level\":\"medium\"}\n```",
			expectedAction: ActionSell,
			expectedRisk:   RiskMedium,
		},
		{
			name:             "invalid JSON",
			raw:              `{"decision":"buy",`,
			expectError:      true,
			expectedErrorMsg: "invalid JSON structure",
		},
		{
			name:             "unknown action",
			raw:              `{"decision":"short","confidence":0.5,"reason":"x"}`,
			expectError:      true,
			expectedErrorMsg: "invalid decision",
		},
		{
			name:             "missing reason",
			raw:              `{"decision":"buy","confidence":0.5}`,
			expectError:      true,
			expectedErrorMsg: "reason field is required",
		},
		{
			name:             "confidence out of range",
			raw:              `{"decision":"buy","confidence":1.5,"reason":"x"}`,
			expectError:      true,
			expectedErrorMsg: "invalid confidence",
		},
		{
			name:             "unknown risk level",
			raw:              `{"decision":"buy","confidence":0.5,"reason":"x","risk_level":"extreme"}`,
			expectError:      true,
			expectedErrorMsg: "invalid risk_level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decision, err := ParseDecision(tt.raw)

			if tt.expectError {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.expectedErrorMsg)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.expectedAction, decision.TradeAction())
			assert.Equal(t, tt.expectedRisk, decision.Risk())
			assert.NotEmpty(t, decision.Reason)
		})
	}
}

func TestNarrative(t *testing.T) {
	n := NewNarrative()
	assert.Empty(t, n.Lines())
	assert.Equal(t, "", n.String())

	n.Add("oracle recommended buy")
	n.Addf("available funds %s below minimum order value %d", "4500", 5000)

	require.Len(t, n.Lines(), 2)
	assert.Equal(t, "oracle recommended buy", n.Lines()[0])
	assert.Equal(t, "oracle recommended buy\navailable funds 4500 below minimum order value 5000", n.String())
}

func TestTradeStatus(t *testing.T) {
	for _, s := range []TradeStatus{StatusPending, StatusSuccess, StatusPartialSuccess, StatusFailed, StatusNoAction} {
		assert.True(t, s.Valid(), s)
	}
	assert.False(t, TradeStatus("cancelled").Valid())

	assert.False(t, StatusPending.Terminal())
	assert.True(t, StatusSuccess.Terminal())
	assert.True(t, StatusFailed.Terminal())
	assert.True(t, StatusNoAction.Terminal())
}
