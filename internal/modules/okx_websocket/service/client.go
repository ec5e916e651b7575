package service

import (
	"net/http"
	"strings"
	"time"

	"perp_bot/internal/modules/config"

	"github.com/gorilla/websocket"
)

const (
	defaultBaseURL = "https://www.okx.com"
	defaultWSURL   = "wss://ws.okx.com:8443/ws/v5/business"

	pingEvery      = 20 * time.Second
	reconnectDelay = time.Second
)

// Feed отдаёт публичные свечи OKX: история по REST и закрытые свечи по WebSocket.
type Feed struct {
	http     *http.Client
	wsDialer *websocket.Dialer
	baseURL  string
	wsURL    string

	// onConn сообщает о смене состояния WS-соединения, может быть nil
	onConn func(bool)
}

func NewFeed(cfg *config.Config) *Feed {
	return newFeed(cfg.OKX, &http.Client{Timeout: 10 * time.Second}, websocket.DefaultDialer)
}

func newFeed(cfg config.OKXConfig, hc *http.Client, d *websocket.Dialer) *Feed {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}
	ws := cfg.WSURL
	if ws == "" {
		ws = defaultWSURL
	}
	return &Feed{
		http:     hc,
		wsDialer: d,
		baseURL:  base,
		wsURL:    ws,
	}
}

// OnConnChange вешает наблюдателя за WS-соединением (health).
func (f *Feed) OnConnChange(fn func(connected bool)) {
	f.onConn = fn
}

func (f *Feed) connected(v bool) {
	if f.onConn != nil {
		f.onConn(v)
	}
}
