package profile

import (
	"trading-orchestrator/internal/database"

	"github.com/shopspring/decimal"
)

// Built-in preset names
const (
	PresetUltraSafe    = "Ultra-Safe"
	PresetConservative = "Conservative"
	PresetBalanced     = "Balanced"
	PresetAggressive   = "Aggressive"
	PresetScalper      = "Scalper"
)

// Presets returns the five immutable system profiles. Balanced matches the
// default ModelSettings a new model is created with.
func Presets() []*database.RiskProfile {
	return []*database.RiskProfile{
		{
			Name:               PresetUltraSafe,
			Icon:               "🛡️",
			Description:        "Capital preservation first. Tiny positions, deep cash reserve.",
			IsSystem:           true,
			MaxPositionSizePct: decimal.NewFromInt(5),
			MaxDailyLossPct:    decimal.NewFromInt(1),
			MaxDailyTrades:     5,
			MaxOpenPositions:   2,
			MinCashReservePct:  decimal.NewFromInt(40),
			MaxDrawdownPct:     decimal.NewFromInt(8),
		},
		{
			Name:               PresetConservative,
			Icon:               "🐢",
			Description:        "Slow and steady. Small positions with a wide safety margin.",
			IsSystem:           true,
			MaxPositionSizePct: decimal.NewFromInt(8),
			MaxDailyLossPct:    decimal.NewFromInt(2),
			MaxDailyTrades:     10,
			MaxOpenPositions:   3,
			MinCashReservePct:  decimal.NewFromInt(30),
			MaxDrawdownPct:     decimal.NewFromInt(10),
		},
		{
			Name:               PresetBalanced,
			Icon:               "⚖️",
			Description:        "The default. Moderate sizing and limits for steady growth.",
			IsSystem:           true,
			MaxPositionSizePct: decimal.NewFromInt(10),
			MaxDailyLossPct:    decimal.NewFromInt(3),
			MaxDailyTrades:     20,
			MaxOpenPositions:   5,
			MinCashReservePct:  decimal.NewFromInt(20),
			MaxDrawdownPct:     decimal.NewFromInt(15),
		},
		{
			Name:               PresetAggressive,
			Icon:               "🚀",
			Description:        "Larger positions and looser limits for trending markets.",
			IsSystem:           true,
			MaxPositionSizePct: decimal.NewFromInt(15),
			MaxDailyLossPct:    decimal.NewFromInt(5),
			MaxDailyTrades:     40,
			MaxOpenPositions:   7,
			MinCashReservePct:  decimal.NewFromInt(10),
			MaxDrawdownPct:     decimal.NewFromInt(20),
		},
		{
			Name:               PresetScalper,
			Icon:               "⚡",
			Description:        "High trade count, small moves. For quiet, liquid markets.",
			IsSystem:           true,
			MaxPositionSizePct: decimal.NewFromInt(12),
			MaxDailyLossPct:    decimal.NewFromInt(4),
			MaxDailyTrades:     100,
			MaxOpenPositions:   8,
			MinCashReservePct:  decimal.NewFromInt(15),
			MaxDrawdownPct:     decimal.NewFromInt(18),
		},
	}
}
