// Package metrics: Prometheus-метрики оркестратора.
//
//   - perpbot_signals_total{result}           admitted | skipped
//   - perpbot_skips_total{reason}             причина пропуска сигнала
//   - perpbot_orders_total{outcome,purpose}   filled | resting | failed; entry | exit
//   - perpbot_ladder_legs_total{kind,result}  placed | failed | invalid
//   - perpbot_exits_total{reason}             trailing-stop | take-profit | target
//   - perpbot_daily_loss_usd                  текущее значение счётчика дневного убытка
//   - perpbot_producer_scores_total{bot,action} BUY | SELL | HOLD по итогам оценки
//
// Регистрируются в init() и отдаются health-сервером на /metrics.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	Signals = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "perpbot_signals_total",
			Help: "Signals seen by admission",
		},
		[]string{"result"},
	)

	Skips = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "perpbot_skips_total",
			Help: "Skipped signals by reason",
		},
		[]string{"reason"},
	)

	Orders = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "perpbot_orders_total",
			Help: "Order placement outcomes",
		},
		[]string{"outcome", "purpose"},
	)

	LadderLegs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "perpbot_ladder_legs_total",
			Help: "Exit ladder leg submissions",
		},
		[]string{"kind", "result"},
	)

	Exits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "perpbot_exits_total",
			Help: "Exit intents executed",
		},
		[]string{"reason"},
	)

	ProducerScores = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "perpbot_producer_scores_total",
			Help: "Scorer results per bot",
		},
		[]string{"bot", "action"},
	)

	DailyLoss = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "perpbot_daily_loss_usd",
			Help: "Daily realized loss counter",
		},
	)
)

func init() {
	prometheus.MustRegister(Signals, Skips, Orders, LadderLegs, Exits, ProducerScores, DailyLoss)
}
