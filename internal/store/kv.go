// Package store: доступ к общему состоянию жизненного цикла сделок.
//
// Все процессы (продюсеры, admission, reconciler, exit-loop) синхронизируются
// только через этот слой. Запись last-write-wins на уровне ключа.
package store

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("store: key not found")

// KV: минимальный контракт key-value хранилища.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	// Set с ttl == 0 пишет без срока жизни.
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	Scan(ctx context.Context, prefix string) ([]string, error)
	IncrByFloat(ctx context.Context, key string, delta float64) (float64, error)
	RPush(ctx context.Context, key string, val []byte) error
	LRange(ctx context.Context, key string) ([][]byte, error)
	// LTrimHead удаляет первые n элементов списка, хвост остаётся.
	LTrimHead(ctx context.Context, key string, n int) error
}

const (
	keyPosition  = "position:"
	keyLadder    = "pendingExitOrders:"
	keyTrade     = "trade:"
	keyStatus    = "status:"
	keyCooldown  = "cooldown:"
	keyDailyLoss = "daily_loss"

	QueueKey = "trade_signals"
)

func PositionKey(asset string) string { return keyPosition + asset }
func LadderKey(asset string) string { return keyLadder + asset }
func TradeKey(id string) string { return keyTrade + id }
func StatusKey(component string) string { return keyStatus + component }
func CooldownKey(asset string) string { return keyCooldown + asset }
