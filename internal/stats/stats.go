package stats

import (
	"errors"
	"fmt"
	"sort"

	"trade-journal-go/internal/journal"
	"trade-journal-go/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrStrategyNotFound is returned when the requested strategy does not
// exist or does not belong to the acting owner.
var ErrStrategyNotFound = errors.New("strategy not found for this user")

// ChartData is the equity curve: per-exit-day cumulative P&L as a
// parallel pair of sequences suitable for plotting.
type ChartData struct {
	X []string  `json:"x"`
	Y []float64 `json:"y"`
}

// Result holds the aggregate performance metrics of one strategy.
type Result struct {
	NbTrades           int        `json:"nb_trades"`
	WinRate            float64    `json:"win_rate"`
	TotalProfit        float64    `json:"total_profit"`
	AverageProfit      float64    `json:"average_profit"`
	AverageGainPercent float64    `json:"average_gain_percent"`
	TotalInvestment    float64    `json:"total_investment"`
	ROI                float64    `json:"roi"`
	ChartData          *ChartData `json:"chart_data"`
}

// Engine computes performance statistics over the trade ledger.
type Engine struct {
	db  *gorm.DB
	log *zap.Logger
}

// New creates a statistics engine.
func New(db *gorm.DB, log *zap.Logger) *Engine {
	return &Engine{db: db, log: log}
}

var hundred = decimal.NewFromInt(100)

// StrategyStats aggregates the closed trades of one strategy.
//
// ownerID is the explicit "acting on behalf of" principal: the strategy
// must belong to it, and delegate (coach) access is the caller's problem,
// checked before invoking the engine. Per-trade P&L is recomputed from
// prices here rather than read from the stored column, so the aggregates
// stay consistent even if a stored value is stale.
func (e *Engine) StrategyStats(ownerID, strategyID uint) (*Result, error) {
	var strategy models.Strategy
	err := e.db.Where("id = ? AND user_id = ?", strategyID, ownerID).First(&strategy).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrStrategyNotFound
	}
	if err != nil {
		return nil, err
	}

	var trades []models.Trade
	err = e.db.
		Where("user_id = ? AND strategy_id = ? AND exit_date_time IS NOT NULL", ownerID, strategy.ID).
		Find(&trades).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load trades for statistics: %w", err)
	}

	result := &Result{NbTrades: len(trades)}

	wins := 0
	totalProfit := decimal.Zero
	totalInvestment := decimal.Zero
	pctSum := decimal.Zero
	daily := make(map[string]decimal.Decimal)

	for _, t := range trades {
		dir := journal.Direction(t.TradeType)
		pnl := journal.PnL(t.EntryPrice, t.ExitPrice, t.Quantity, dir, t.Commission)

		// A flat exit (exit == entry) is not a win in either direction.
		switch dir {
		case journal.Long:
			if t.ExitPrice.GreaterThan(t.EntryPrice) {
				wins++
			}
		case journal.Short:
			if t.ExitPrice.LessThan(t.EntryPrice) {
				wins++
			}
		}

		totalProfit = totalProfit.Add(pnl)
		totalInvestment = totalInvestment.Add(t.EntryPrice.Mul(t.Quantity))

		// Raw price change percentage, deliberately not sign-adjusted
		// for SHORT trades. A zero entry price contributes nothing.
		if !t.EntryPrice.IsZero() {
			pctSum = pctSum.Add(t.ExitPrice.Sub(t.EntryPrice).Mul(hundred).Div(t.EntryPrice))
		}

		day := t.ExitDateTime.Format("2006-01-02")
		daily[day] = daily[day].Add(pnl)
	}

	result.TotalProfit = totalProfit.InexactFloat64()
	result.TotalInvestment = totalInvestment.InexactFloat64()

	if result.NbTrades > 0 {
		n := decimal.NewFromInt(int64(result.NbTrades))
		result.WinRate = float64(wins) / float64(result.NbTrades) * 100
		result.AverageProfit = totalProfit.Div(n).InexactFloat64()
		result.AverageGainPercent = pctSum.Div(n).InexactFloat64()
	}
	if !totalInvestment.IsZero() {
		result.ROI = totalProfit.Div(totalInvestment).Mul(hundred).InexactFloat64()
	}

	result.ChartData = equityCurve(daily)

	e.log.Debug("Computed strategy statistics",
		zap.Uint("owner_id", ownerID),
		zap.Uint("strategy_id", strategy.ID),
		zap.Int("nb_trades", result.NbTrades))
	return result, nil
}

// equityCurve turns per-day P&L sums into a cumulative series ordered by
// day ascending. One pass over the day-grouped sums, never per trade.
func equityCurve(daily map[string]decimal.Decimal) *ChartData {
	days := make([]string, 0, len(daily))
	for day := range daily {
		days = append(days, day)
	}
	sort.Strings(days)

	curve := &ChartData{
		X: make([]string, 0, len(days)),
		Y: make([]float64, 0, len(days)),
	}
	cum := decimal.Zero
	for _, day := range days {
		cum = cum.Add(daily[day])
		curve.X = append(curve.X, day)
		curve.Y = append(curve.Y, cum.InexactFloat64())
	}
	return curve
}
