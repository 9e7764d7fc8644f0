package cache

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

// RedisClient abstracts the cache connection
type RedisClient interface {
	Ping(ctx context.Context) *redis.StatusCmd
	Pipeline() redis.Pipeliner
	Close() error
}

// Ack is the outcome of draining the pipeline.
//
// Failed counts commands that did not succeed, whatever the reason. Err is
// set only for connection-level failures, where the cache itself could not
// be reached; a command the server rejected is counted in Failed and leaves
// Err nil.
type Ack struct {
	Sent   int
	Failed int
	Err    error
}

// PriceCache keeps the latest price per ticker as "SET <ticker> <price>".
// Commands are buffered and only sent, and their replies read, on Flush.
// A PriceCache is not safe for concurrent use; the consumer goroutine owns it.
type PriceCache struct {
	client RedisClient
	pipe   redis.Pipeliner
}

func NewPriceCache(client RedisClient) *PriceCache {
	return &PriceCache{client: client, pipe: client.Pipeline()}
}

// Set queues a SET for ticker without waiting for the reply. No expiry is
// set: the value lives until it is overwritten.
func (c *PriceCache) Set(ctx context.Context, ticker string, price float64) {
	c.pipe.Set(ctx, ticker, price, 0)
}

// Pending is the number of queued, unacknowledged commands.
func (c *PriceCache) Pending() int {
	return c.pipe.Len()
}

// Flush sends the queued commands and drains every reply.
func (c *PriceCache) Flush(ctx context.Context) Ack {
	n := c.pipe.Len()
	if n == 0 {
		return Ack{}
	}

	cmds, err := c.pipe.Exec(ctx)
	ack := Ack{Sent: n}
	for _, cmd := range cmds {
		cerr := cmd.Err()
		if cerr == nil {
			continue
		}
		ack.Failed++
		if !isCommandError(cerr) && ack.Err == nil {
			ack.Err = cerr
		}
	}
	// Exec can fail before any reply is attached to a command
	if err != nil && ack.Failed == 0 {
		ack.Failed = n
		ack.Err = err
	}
	return ack
}

func (c *PriceCache) Close() error {
	return c.client.Close()
}

// isCommandError reports whether err is a reply from the server rather than
// a transport failure.
func isCommandError(err error) bool {
	var rerr redis.Error
	return errors.As(err, &rerr)
}
