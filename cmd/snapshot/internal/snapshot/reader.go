package snapshot

import (
	"context"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"

	"github.com/mohammed-hamdan-alom/high-performance-streaming-pipeline/pkg/models"
)

const (
	scanCount = 100
	mgetChunk = 500
)

// Quote is the latest cached price of one ticker, as stored.
type Quote struct {
	Ticker string
	Price  string
}

// RedisClient is the subset of go-redis the snapshot needs
type RedisClient interface {
	Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd
	MGet(ctx context.Context, keys ...string) *redis.SliceCmd
}

// HistoryStore serves persisted rows
type HistoryStore interface {
	Recent(ctx context.Context, ticker string, n int) ([]models.Row, error)
}

type PriceReader struct {
	client RedisClient
}

func NewPriceReader(client RedisClient) *PriceReader {
	return &PriceReader{client: client}
}

// Quotes returns every cached price sorted by ticker. Keys that vanish or
// hold a non-string value between SCAN and MGET are skipped.
func (r *PriceReader) Quotes(ctx context.Context) ([]Quote, error) {
	var keys []string
	var cursor uint64
	for {
		page, next, err := r.client.Scan(ctx, cursor, "*", scanCount).Result()
		if err != nil {
			return nil, fmt.Errorf("scan keys: %w", err)
		}
		keys = append(keys, page...)
		if next == 0 {
			break
		}
		cursor = next
	}

	// SCAN may return a key more than once
	sort.Strings(keys)
	keys = dedup(keys)

	quotes := make([]Quote, 0, len(keys))
	for start := 0; start < len(keys); start += mgetChunk {
		end := min(start+mgetChunk, len(keys))
		chunk := keys[start:end]

		vals, err := r.client.MGet(ctx, chunk...).Result()
		if err != nil {
			return nil, fmt.Errorf("mget: %w", err)
		}
		for i, val := range vals {
			if price, ok := val.(string); ok {
				quotes = append(quotes, Quote{Ticker: chunk[i], Price: price})
			}
		}
	}
	return quotes, nil
}

// History fetches the newest n rows of every ticker in quotes.
func History(ctx context.Context, store HistoryStore, quotes []Quote, n int) (map[string][]models.Row, error) {
	out := make(map[string][]models.Row, len(quotes))
	for _, q := range quotes {
		rows, err := store.Recent(ctx, q.Ticker, n)
		if err != nil {
			return nil, err
		}
		out[q.Ticker] = rows
	}
	return out, nil
}

func dedup(sorted []string) []string {
	if len(sorted) == 0 {
		return sorted
	}
	out := sorted[:1]
	for _, k := range sorted[1:] {
		if k != out[len(out)-1] {
			out = append(out, k)
		}
	}
	return out
}
