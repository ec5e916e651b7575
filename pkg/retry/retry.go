// Package retry: единый комбинатор повторов с экспоненциальной задержкой.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

type Policy struct {
	Attempts  int
	BaseDelay time.Duration
	Factor    float64
}

// Result: итог серии попыток. Err == nil означает успех.
type Result struct {
	Attempts int
	Err      error
}

func (r Result) OK() bool { return r.Err == nil }

// Permanent помечает ошибку как неповторяемую: Do вернёт её сразу.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Do выполняет op не более p.Attempts раз. Между попытками ждёт BaseDelay*Factor^n.
// Отмена ctx прерывает ожидание.
func Do(ctx context.Context, p Policy, op func(ctx context.Context) error) Result {
	if p.Attempts <= 0 {
		p.Attempts = 1
	}
	if p.Factor < 1 {
		p.Factor = 1
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.BaseDelay
	exp.Multiplier = p.Factor
	exp.RandomizationFactor = 0
	exp.MaxInterval = p.BaseDelay * time.Duration(1<<uint(p.Attempts))
	exp.MaxElapsedTime = 0

	var b backoff.BackOff = backoff.WithMaxRetries(exp, uint64(p.Attempts-1))
	b = backoff.WithContext(b, ctx)

	res := Result{}
	res.Err = backoff.Retry(func() error {
		res.Attempts++
		return op(ctx)
	}, b)

	return res
}
