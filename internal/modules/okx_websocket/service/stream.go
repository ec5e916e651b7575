package service

import (
	"context"
	"time"

	"perp_bot/internal/models"
	"perp_bot/pkg/logger"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
)

type subArg struct {
	Channel string `json:"channel"`
	InstID  string `json:"instId"`
}

type candleFrame struct {
	Event string     `json:"event"`
	Arg   subArg     `json:"arg"`
	Data  [][]string `json:"data"`
}

// StreamCandles: один WebSocket на таймфрейм с пачкой инструментов в args.
// Отдаёт только закрытые свечи. Канал закрывается после отмены ctx.
func (f *Feed) StreamCandles(ctx context.Context, instIDs []string, timeframe string) <-chan models.CandleTick {
	ch := make(chan models.CandleTick)

	go func() {
		defer close(ch)
		if len(instIDs) == 0 {
			return
		}

		bar, err := okxBar(timeframe)
		if err != nil {
			logger.Error("[WS] %v", err)
			return
		}
		channel := "candle" + bar

		args := make([]subArg, 0, len(instIDs))
		for _, id := range instIDs {
			args = append(args, subArg{Channel: channel, InstID: id})
		}

		for {
			if err := f.session(ctx, channel, bar, args, ch); err != nil && ctx.Err() == nil {
				logger.Warn("[WS] %s: %v, reconnect in %s", channel, err, reconnectDelay)
			}
			f.connected(false)

			select {
			case <-ctx.Done():
				return
			case <-time.After(reconnectDelay):
			}
		}
	}()

	return ch
}

// session живёт до первой ошибки чтения или отмены ctx.
func (f *Feed) session(ctx context.Context, channel, bar string, args []subArg, out chan<- models.CandleTick) error {
	logger.Info("[WS] connect %s, %d symbols", channel, len(args))
	conn, _, err := f.wsDialer.DialContext(ctx, f.wsURL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	sub, _ := sonic.Marshal(map[string]any{"op": "subscribe", "args": args})
	if err := conn.WriteMessage(websocket.TextMessage, sub); err != nil {
		return err
	}
	f.connected(true)

	// keepalive: без ping OKX рвёт соединение через 30s тишины
	done := make(chan struct{})
	defer close(done)
	go func() {
		t := time.NewTicker(pingEvery)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				_ = conn.Close()
				return
			case <-t.C:
				_ = conn.WriteMessage(websocket.TextMessage, []byte("ping"))
			}
		}
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if string(msg) == "pong" {
			continue
		}

		var frame candleFrame
		if err := sonic.Unmarshal(msg, &frame); err != nil {
			continue
		}
		if frame.Event == "error" {
			logger.Error("[WS] %s: %s", channel, string(msg))
			continue
		}
		if frame.Arg.Channel != channel || len(frame.Data) == 0 {
			continue
		}

		for _, row := range frame.Data {
			if !confirmed(row) {
				continue
			}
			tick, ok := parseRow(frame.Arg.InstID, bar, row)
			if !ok {
				continue
			}
			select {
			case out <- tick:
			case <-ctx.Done():
				return nil
			}
		}
	}
}
