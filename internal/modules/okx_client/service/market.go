package service

import (
	"context"
	"fmt"
	"net/url"

	"perp_bot/internal/models"
)

type rawBook struct {
	Asks [][]string `json:"asks"`
	Bids [][]string `json:"bids"`
	Ts   string     `json:"ts"`
}

// Book: лучший bid/ask.
func (c *Client) Book(ctx context.Context, asset string) (models.Book, error) {
	rows, err := call[rawBook](ctx, c, "GET", "/api/v5/market/books?sz=1&instId="+url.QueryEscape(asset), nil, false)
	if err != nil {
		return models.Book{}, err
	}
	if len(rows) == 0 || len(rows[0].Asks) == 0 || len(rows[0].Bids) == 0 {
		return models.Book{}, fmt.Errorf("book %s: empty", asset)
	}

	b := models.Book{
		Asset:   asset,
		BestAsk: parseF(rows[0].Asks[0][0]),
		BestBid: parseF(rows[0].Bids[0][0]),
		At:      c.now(),
	}
	if !b.Valid() {
		return models.Book{}, fmt.Errorf("book %s: invalid bid=%v ask=%v", asset, b.BestBid, b.BestAsk)
	}
	return b, nil
}
