package config

import (
	"fmt"
	"os"
	"sort"

	"perp_bot/internal/models"
	"perp_bot/pkg/logger"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

type strategiesFile struct {
	Strategies []models.StrategyConfig `yaml:"strategies"`
}

// StrategyBook: настройки ботов по bot id.
type StrategyBook struct {
	byBot map[string]models.StrategyConfig
}

func NewStrategyBook(list ...models.StrategyConfig) *StrategyBook {
	b := &StrategyBook{byBot: make(map[string]models.StrategyConfig, len(list))}
	for _, s := range list {
		b.byBot[s.BotID] = s
	}
	return b
}

func (b *StrategyBook) Lookup(botID string) (models.StrategyConfig, bool) {
	s, ok := b.byBot[botID]
	return s, ok
}

func (b *StrategyBook) BotIDs() []string {
	ids := make([]string, 0, len(b.byBot))
	for id := range b.byBot {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// LoadStrategies читает YAML со списком стратегий и проставляет дефолты.
func LoadStrategies(path string) (*StrategyBook, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read strategies %s", path)
	}

	var f strategiesFile
	if err := yaml.UnmarshalStrict(raw, &f); err != nil {
		return nil, errors.Wrapf(err, "decode strategies %s", path)
	}

	book := NewStrategyBook()
	for i := range f.Strategies {
		s := withDefaults(f.Strategies[i])
		if err := validateStrategy(s); err != nil {
			return nil, err
		}
		if _, dup := book.byBot[s.BotID]; dup {
			return nil, fmt.Errorf("strategy %s declared twice", s.BotID)
		}
		book.byBot[s.BotID] = s
	}
	return book, nil
}

func withDefaults(s models.StrategyConfig) models.StrategyConfig {
	if s.Scorer == "" {
		s.Scorer = "trend"
	}
	if s.Timeframe == "" {
		s.Timeframe = "15m"
	}
	if s.Sizing.MinLeverage <= 0 {
		s.Sizing.MinLeverage = 1
	}
	if s.Sizing.MaxLeverage < s.Sizing.MinLeverage {
		s.Sizing.MaxLeverage = s.Sizing.MinLeverage
	}
	if s.EMAFast <= 0 {
		s.EMAFast = 9
	}
	if s.EMASlow <= 0 {
		s.EMASlow = 21
	}
	if s.RSIPeriod <= 0 {
		s.RSIPeriod = 14
	}
	if s.RSIOverbought == 0 {
		s.RSIOverbought = 70
	}
	if s.RSIOversold == 0 {
		s.RSIOversold = 30
	}
	return s
}

func validateStrategy(s models.StrategyConfig) error {
	switch {
	case s.BotID == "":
		return errors.New("strategy without bot_id")
	case s.Sizing.GoldenScore <= 0:
		return fmt.Errorf("strategy %s: golden_score must be > 0", s.BotID)
	case s.Sizing.MinPct < 0 || s.Sizing.MaxPct < s.Sizing.MinPct:
		return fmt.Errorf("strategy %s: need 0 <= min_pct <= max_pct", s.BotID)
	case len(s.TakeProfitPcts) == 0:
		return fmt.Errorf("strategy %s: take_profit_pcts is empty", s.BotID)
	case s.StopLossPct <= 0:
		return fmt.Errorf("strategy %s: stop_loss_pct must be > 0", s.BotID)
	case s.EMAFast >= s.EMASlow:
		return fmt.Errorf("strategy %s: ema_fast must be < ema_slow", s.BotID)
	case s.RSIOversold >= 50 || s.RSIOverbought <= 50:
		return fmt.Errorf("strategy %s: need rsi_oversold < 50 < rsi_overbought", s.BotID)
	}
	return nil
}

// ProvideStrategyBook отдаёт пустую книгу, если файла нет. Сигналы таких ботов будут пропущены.
func ProvideStrategyBook(cfg *Config) (*StrategyBook, error) {
	if _, err := os.Stat(cfg.StrategiesFile); err != nil {
		logger.Warn("strategies file %s not available: %v", cfg.StrategiesFile, err)
		return NewStrategyBook(), nil
	}
	return LoadStrategies(cfg.StrategiesFile)
}
