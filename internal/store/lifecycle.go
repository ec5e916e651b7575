package store

import (
	"context"
	"strconv"
	"strings"
	"time"

	"perp_bot/internal/models"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"
)

// записи о сделках держим неделю, дальше они живут в журнале
const tradeTTL = 7 * 24 * time.Hour

// Lifecycle: типизированный доступ к ключам состояния поверх KV.
type Lifecycle struct {
	kv KV
}

func New(kv KV) *Lifecycle {
	return &Lifecycle{kv: kv}
}

func (s *Lifecycle) KV() KV { return s.kv }

func (s *Lifecycle) getJSON(ctx context.Context, key string, dst any) error {
	b, err := s.kv.Get(ctx, key)
	if err != nil {
		return err
	}
	return errors.Wrapf(sonic.Unmarshal(b, dst), "decode %s", key)
}

func (s *Lifecycle) setJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	b, err := sonic.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "encode %s", key)
	}
	return s.kv.Set(ctx, key, b, ttl)
}

func (s *Lifecycle) scanSuffixes(ctx context.Context, prefix string) ([]string, error) {
	keys, err := s.kv.Scan(ctx, prefix)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, strings.TrimPrefix(k, prefix))
	}
	return out, nil
}

// --- positions ---

func (s *Lifecycle) GetPosition(ctx context.Context, asset string) (models.Position, error) {
	var p models.Position
	err := s.getJSON(ctx, PositionKey(asset), &p)
	return p, err
}

func (s *Lifecycle) SavePosition(ctx context.Context, p models.Position) error {
	return s.setJSON(ctx, PositionKey(p.Asset), p, 0)
}

func (s *Lifecycle) DeletePosition(ctx context.Context, asset string) error {
	return s.kv.Del(ctx, PositionKey(asset))
}

func (s *Lifecycle) HasPosition(ctx context.Context, asset string) (bool, error) {
	_, err := s.kv.Get(ctx, PositionKey(asset))
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// ListPositions читает все position:*; битые записи пропускаются.
func (s *Lifecycle) ListPositions(ctx context.Context) ([]models.Position, error) {
	assets, err := s.scanSuffixes(ctx, keyPosition)
	if err != nil {
		return nil, err
	}
	out := make([]models.Position, 0, len(assets))
	for _, a := range assets {
		p, err := s.GetPosition(ctx, a)
		if err != nil {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// --- exit ladders ---

func (s *Lifecycle) GetLadder(ctx context.Context, asset string) (models.PendingExitLadder, error) {
	var l models.PendingExitLadder
	err := s.getJSON(ctx, LadderKey(asset), &l)
	return l, err
}

// SaveLadder пишет всю лестницу одной записью.
func (s *Lifecycle) SaveLadder(ctx context.Context, l models.PendingExitLadder) error {
	return s.setJSON(ctx, LadderKey(l.Asset), l, 0)
}

func (s *Lifecycle) DeleteLadder(ctx context.Context, asset string) error {
	return s.kv.Del(ctx, LadderKey(asset))
}

func (s *Lifecycle) LadderAssets(ctx context.Context) ([]string, error) {
	return s.scanSuffixes(ctx, keyLadder)
}

// ClearAsset удаляет позицию и лестницу по активу.
func (s *Lifecycle) ClearAsset(ctx context.Context, asset string) error {
	return s.kv.Del(ctx, PositionKey(asset), LadderKey(asset))
}

// --- trades ---

func (s *Lifecycle) SaveTrade(ctx context.Context, t models.TradeRecord) error {
	return s.setJSON(ctx, TradeKey(t.ID), t, tradeTTL)
}

func (s *Lifecycle) GetTrade(ctx context.Context, id string) (models.TradeRecord, error) {
	var t models.TradeRecord
	err := s.getJSON(ctx, TradeKey(id), &t)
	return t, err
}

// UpdateTrade: read-modify-write записи сделки. fn может вернуть ErrStatusRegression.
func (s *Lifecycle) UpdateTrade(ctx context.Context, id string, fn func(t *models.TradeRecord) error) (models.TradeRecord, error) {
	t, err := s.GetTrade(ctx, id)
	if err != nil {
		return t, err
	}
	if err := fn(&t); err != nil {
		return t, err
	}
	return t, s.SaveTrade(ctx, t)
}

func (s *Lifecycle) ListTrades(ctx context.Context) ([]models.TradeRecord, error) {
	ids, err := s.scanSuffixes(ctx, keyTrade)
	if err != nil {
		return nil, err
	}
	out := make([]models.TradeRecord, 0, len(ids))
	for _, id := range ids {
		t, err := s.GetTrade(ctx, id)
		if err != nil {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

// --- cooldowns ---

func (s *Lifecycle) SetCooldown(ctx context.Context, asset string, until time.Time) error {
	ttl := time.Until(until)
	if ttl <= 0 {
		return nil
	}
	val := []byte(strconv.FormatInt(until.UnixMilli(), 10))
	return s.kv.Set(ctx, CooldownKey(asset), val, ttl)
}

// CooldownUntil: нулевое время значит кулдауна нет.
func (s *Lifecycle) CooldownUntil(ctx context.Context, asset string) (time.Time, error) {
	b, err := s.kv.Get(ctx, CooldownKey(asset))
	if errors.Is(err, ErrNotFound) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	ms, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "cooldown %s", asset)
	}
	return time.UnixMilli(ms), nil
}

func (s *Lifecycle) InCooldown(ctx context.Context, asset string, now time.Time) (bool, error) {
	until, err := s.CooldownUntil(ctx, asset)
	if err != nil {
		return false, err
	}
	return now.Before(until), nil
}

// --- daily loss ---

func (s *Lifecycle) DailyLoss(ctx context.Context) (float64, error) {
	b, err := s.kv.Get(ctx, keyDailyLoss)
	if errors.Is(err, ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(string(b), 64)
	return v, errors.Wrap(err, "daily loss")
}

// ApplyRealizedPnL: убыток увеличивает счётчик, прибыль уменьшает.
func (s *Lifecycle) ApplyRealizedPnL(ctx context.Context, pnl float64) (float64, error) {
	return s.kv.IncrByFloat(ctx, keyDailyLoss, -pnl)
}

func (s *Lifecycle) ResetDailyLoss(ctx context.Context) error {
	return s.kv.Set(ctx, keyDailyLoss, []byte("0"), 0)
}

// --- shared signal queue ---

func (s *Lifecycle) PushEntry(ctx context.Context, raw []byte) error {
	return s.kv.RPush(ctx, QueueKey, raw)
}

func (s *Lifecycle) QueueSnapshot(ctx context.Context) ([][]byte, error) {
	return s.kv.LRange(ctx, QueueKey)
}

// TrimQueue снимает с головы очереди n прочитанных записей. То, что продюсеры
// успели дописать после снимка, остаётся до следующего цикла.
func (s *Lifecycle) TrimQueue(ctx context.Context, n int) error {
	return s.kv.LTrimHead(ctx, QueueKey, n)
}

// --- component status ---

type ComponentStatus struct {
	Component string    `json:"component"`
	State     string    `json:"state"`
	Detail    string    `json:"detail,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (s *Lifecycle) SetStatus(ctx context.Context, st ComponentStatus) error {
	if st.UpdatedAt.IsZero() {
		st.UpdatedAt = time.Now().UTC()
	}
	return s.setJSON(ctx, StatusKey(st.Component), st, 0)
}

func (s *Lifecycle) GetStatus(ctx context.Context, component string) (ComponentStatus, error) {
	var st ComponentStatus
	err := s.getJSON(ctx, StatusKey(component), &st)
	return st, err
}
