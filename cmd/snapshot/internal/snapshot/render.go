package snapshot

import (
	"fmt"
	"io"
	"time"

	"github.com/mohammed-hamdan-alom/high-performance-streaming-pipeline/pkg/models"
)

const rule = "---------------------------"

func RenderQuotes(w io.Writer, quotes []Quote) {
	fmt.Fprintf(w, "%10s | %10s\n", "TICKER", "PRICE")
	fmt.Fprintln(w, rule)
	for _, q := range quotes {
		fmt.Fprintf(w, "%10s | %10s\n", q.Ticker, q.Price)
	}
}

// RenderHistory prints rows per ticker in the order of quotes.
func RenderHistory(w io.Writer, quotes []Quote, history map[string][]models.Row) {
	for _, q := range quotes {
		rows := history[q.Ticker]
		fmt.Fprintf(w, "\n%s (%d rows)\n", q.Ticker, len(rows))
		fmt.Fprintf(w, "%30s | %10s | %8s | %10s\n", "TIME", "PRICE", "VOLUME", "LATENCY_MS")
		for _, r := range rows {
			fmt.Fprintf(w, "%30s | %10.4f | %8d | %10.3f\n", r.Time.UTC().Format(time.RFC3339Nano), r.Price, r.Volume, r.LatencyMs)
		}
	}
}
