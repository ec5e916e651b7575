package producer

import (
	"context"
	"fmt"
	"time"

	"perp_bot/internal/metrics"
	"perp_bot/internal/models"
	"perp_bot/internal/modules/config"
	"perp_bot/internal/store"
	"perp_bot/pkg/logger"
	"perp_bot/pkg/tracing"

	"golang.org/x/sync/errgroup"
)

const warmupConcurrency = 4

type Candles interface {
	GetCandles(ctx context.Context, instID, timeframe string, limit int) ([]models.CandleTick, error)
	StreamCandles(ctx context.Context, instIDs []string, timeframe string) <-chan models.CandleTick
}

// CycleStats: итог одного цикла оценки.
type CycleStats struct {
	Assets  int
	NoData  int
	Held    int
	Weak    int
	Pushed  int
	Errored int
}

func (s CycleStats) String() string {
	return fmt.Sprintf("assets=%d pushed=%d held=%d weak=%d nodata=%d errors=%d",
		s.Assets, s.Pushed, s.Held, s.Weak, s.NoData, s.Errored)
}

// Producer ведёт одну стратегию: держит историю цен по watchlist,
// раз в цикл оценивает активы и кладёт сигналы и маркер завершения в общую очередь.
type Producer struct {
	strategy models.StrategyConfig
	candles  Candles
	scorer   Scorer
	history  *History
	store    *store.Lifecycle
	cfg      config.ProducerConfig
	now      func() time.Time
}

func NewProducer(strategy models.StrategyConfig, candles Candles, scorer Scorer, st *store.Lifecycle, cfg config.ProducerConfig) *Producer {
	return &Producer{
		strategy: strategy,
		candles:  candles,
		scorer:   scorer,
		history:  NewHistory(cfg.HistorySize),
		store:    st,
		cfg:      cfg,
		now:      time.Now,
	}
}

func (p *Producer) Component() string { return "producer:" + p.strategy.BotID }

// Warmup заполняет историю по REST. Ошибка по одному активу не мешает остальным.
func (p *Producer) Warmup(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(warmupConcurrency)

	for _, asset := range p.strategy.Watchlist {
		g.Go(func() error {
			candles, err := p.candles.GetCandles(gctx, asset, p.strategy.Timeframe, p.cfg.HistorySize)
			if err != nil {
				logger.Warn("[%s] warmup %s: %v", p.strategy.BotID, asset, err)
				return nil
			}
			p.history.Seed(asset, candles)
			logger.Debug("[%s] warmup %s: %d candles", p.strategy.BotID, asset, len(candles))
			return nil
		})
	}
	return g.Wait()
}

// Follow дописывает закрытые свечи из потока до отмены ctx.
func (p *Producer) Follow(ctx context.Context) {
	for c := range p.candles.StreamCandles(ctx, p.strategy.Watchlist, p.strategy.Timeframe) {
		p.history.Append(c)
	}
}

// Cycle оценивает watchlist и публикует сигналы. Маркер завершения
// уходит всегда, даже если часть активов не оценилась: иначе контроллер будет ждать вечно.
func (p *Producer) Cycle(ctx context.Context) (stats CycleStats, err error) {
	ctx, finish := tracing.Start(ctx, "producer.cycle", map[string]any{"bot": p.strategy.BotID})
	defer func() { finish(err) }()

	if !p.cfg.Stream {
		if err := p.Warmup(ctx); err != nil {
			return stats, err
		}
	}

	for _, asset := range p.strategy.Watchlist {
		stats.Assets++
		p.scoreAsset(ctx, asset, &stats)
	}

	raw, err := models.EncodeDone(models.ProducerDoneMarker{BotID: p.strategy.BotID, Done: true, Timestamp: p.now().UnixMilli()})
	if err != nil {
		return stats, err
	}
	if err := p.store.PushEntry(ctx, raw); err != nil {
		return stats, fmt.Errorf("push done marker: %w", err)
	}

	logger.Info("[%s] cycle: %s", p.strategy.BotID, stats)
	if err := p.store.SetStatus(ctx, store.ComponentStatus{
		Component: p.Component(),
		State:     "running",
		Detail:    stats.String(),
	}); err != nil {
		logger.Warn("[%s] status: %v", p.strategy.BotID, err)
	}
	return stats, nil
}

func (p *Producer) scoreAsset(ctx context.Context, asset string, stats *CycleStats) {
	a, ok := Analyze(asset, p.history.Closes(asset), p.strategy)
	if !ok {
		stats.NoData++
		return
	}

	scored := p.scorer.Score(a)
	metrics.ProducerScores.WithLabelValues(p.strategy.BotID, string(scored.Action)).Inc()

	var side models.Side
	switch scored.Action {
	case models.ActionBuy:
		side = models.SideLong
	case models.ActionSell:
		side = models.SideShort
	default:
		stats.Held++
		return
	}
	if scored.Strength < p.strategy.Sizing.MinScore {
		stats.Weak++
		logger.Debug("[%s] %s %s weak: %.2f < %.2f", p.strategy.BotID, asset, side, scored.Strength, p.strategy.Sizing.MinScore)
		return
	}

	raw, err := models.EncodeSignal(models.TradeSignal{
		BotID:     p.strategy.BotID,
		Asset:     asset,
		Side:      side,
		Strength:  scored.Strength,
		Price:     a.Price,
		Timestamp: p.now().UnixMilli(),
	})
	if err == nil {
		err = p.store.PushEntry(ctx, raw)
	}
	if err != nil {
		stats.Errored++
		logger.Error("[%s] push %s: %v", p.strategy.BotID, asset, err)
		return
	}
	stats.Pushed++
	logger.Info("[%s] signal %s %s strength=%.2f price=%v", p.strategy.BotID, asset, side, scored.Strength, a.Price)
}
