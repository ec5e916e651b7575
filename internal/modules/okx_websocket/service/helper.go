package service

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"perp_bot/internal/models"
)

func timeframeToDuration(tf string) time.Duration {
	switch tf {
	case "1m":
		return time.Minute
	case "3m":
		return 3 * time.Minute
	case "5m":
		return 5 * time.Minute
	case "15m":
		return 15 * time.Minute
	case "30m":
		return 30 * time.Minute
	case "1H", "1h":
		return time.Hour
	case "2H", "2h":
		return 2 * time.Hour
	case "4H", "4h":
		return 4 * time.Hour
	case "1D", "1d":
		return 24 * time.Hour
	default:
		return 0
	}
}

// okxBar приводит таймфрейм к написанию OKX: "1h" -> "1H".
func okxBar(tf string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(tf)) {
	case "1m", "3m", "5m", "15m", "30m":
		return strings.ToLower(strings.TrimSpace(tf)), nil
	case "60m", "1h":
		return "1H", nil
	case "2h":
		return "2H", nil
	case "4h":
		return "4H", nil
	case "1d":
		return "1D", nil
	}
	return "", fmt.Errorf("unsupported timeframe for OKX bar: %q", tf)
}

// parseRow разбирает строку свечи [ts, o, h, l, c, vol, volCcy, volCcyQuote, confirm].
func parseRow(instID, bar string, row []string) (models.CandleTick, bool) {
	if len(row) < 5 {
		return models.CandleTick{}, false
	}
	tsMs, err := strconv.ParseInt(row[0], 10, 64)
	if err != nil {
		return models.CandleTick{}, false
	}

	open, err1 := strconv.ParseFloat(row[1], 64)
	high, err2 := strconv.ParseFloat(row[2], 64)
	low, err3 := strconv.ParseFloat(row[3], 64)
	closep, err4 := strconv.ParseFloat(row[4], 64)
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil || closep <= 0 {
		return models.CandleTick{}, false
	}

	var vol, volQuote float64
	if len(row) >= 6 {
		vol, _ = strconv.ParseFloat(row[5], 64)
	}
	if len(row) >= 8 {
		volQuote, _ = strconv.ParseFloat(row[7], 64)
	}

	start := time.UnixMilli(tsMs).UTC()
	return models.CandleTick{
		InstID:       instID,
		Open:         open,
		High:         high,
		Low:          low,
		Close:        closep,
		Volume:       vol,
		QuoteVolume:  volQuote,
		Start:        start,
		End:          start.Add(timeframeToDuration(bar)),
		TimeframeRaw: bar,
	}, true
}

// confirmed: OKX кладёт флаг закрытия свечи последним элементом.
func confirmed(row []string) bool {
	return len(row) >= 9 && row[len(row)-1] == "1"
}
