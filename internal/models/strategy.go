package models

// SizingPolicy: кусочно-линейная политика риска. MinPct/MaxPct, доли (0.02 = 2%).
type SizingPolicy struct {
	MinScore    float64 `yaml:"min_score"`
	GoldenScore float64 `yaml:"golden_score"`
	MinPct      float64 `yaml:"min_pct"`
	MaxPct      float64 `yaml:"max_pct"`
	MinLeverage int     `yaml:"min_leverage"`
	MaxLeverage int     `yaml:"max_leverage"`
}

// StrategyConfig: настройки одного бота. Проценты лестницы и выходов в процентах (3 = 3%).
type StrategyConfig struct {
	BotID     string   `yaml:"bot_id"`
	Scorer    string   `yaml:"scorer"`
	Timeframe string   `yaml:"timeframe"`
	Watchlist []string `yaml:"watchlist"`

	Sizing SizingPolicy `yaml:"sizing"`

	TakeProfitPcts []float64 `yaml:"take_profit_pcts"`
	RunnerPct      float64   `yaml:"runner_pct"`
	StopLossPct    float64   `yaml:"stop_loss_pct"`

	TrailingStopPct float64 `yaml:"trailing_stop_pct"`
	TakeProfitPct   float64 `yaml:"take_profit_pct"`

	// индикаторы для встроенного trend-скорера
	EMAFast       int     `yaml:"ema_fast"`
	EMASlow       int     `yaml:"ema_slow"`
	RSIPeriod     int     `yaml:"rsi_period"`
	RSIOverbought float64 `yaml:"rsi_overbought"`
	RSIOversold   float64 `yaml:"rsi_oversold"`
}

// Analysis: срез индикаторов по активу на текущий цикл.
type Analysis struct {
	Asset      string
	Price      float64
	History    []float64
	EMAFast    float64
	EMASlow    float64
	RSI        float64
	MACD       float64
	MACDSignal float64
	BollUpper  float64
	BollMid    float64
	BollLower  float64
}

type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
)

type ScoredSignal struct {
	Action   Action
	Strength float64
}
