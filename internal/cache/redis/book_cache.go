package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tradematcher/deskclient/internal/domain"
)

// BookCache mirrors the reconstructed book view into Redis so external
// tooling can read current market state without speaking the engine's feed
// protocol. The session controller is the single writer; the mirror is
// replaced wholesale on every update because the reconciler always holds a
// complete view.
//
// Key schema:
//
//	desk:book:bids     - sorted set of bid price keys (score = price)
//	desk:book:asks     - sorted set of ask price keys (score = price)
//	desk:book:bid:qty  - hash mapping price key -> quantity for bids
//	desk:book:ask:qty  - hash mapping price key -> quantity for asks
//	desk:book:bbo      - hash with fields "bid" and "ask" (best prices)
//	desk:book:meta     - hash with "ts" field (mirror timestamp)
type BookCache struct {
	rdb *redis.Client
}

// NewBookCache creates a BookCache backed by the given Client.
func NewBookCache(c *Client) *BookCache {
	return &BookCache{rdb: c.Underlying()}
}

const (
	bookBidsKey   = "desk:book:bids"
	bookAsksKey   = "desk:book:asks"
	bookBidQtyKey = "desk:book:bid:qty"
	bookAskQtyKey = "desk:book:ask:qty"
	bookBBOKey    = "desk:book:bbo"
	bookMetaKey   = "desk:book:meta"
)

// SetView atomically replaces the mirrored book with the given view. An
// empty view clears the mirror, which is exactly what an engine reset
// should look like to external readers.
func (bc *BookCache) SetView(ctx context.Context, view domain.BookView) error {
	pipe := bc.rdb.TxPipeline()

	pipe.Del(ctx, bookBidsKey, bookAsksKey, bookBidQtyKey, bookAskQtyKey, bookBBOKey, bookMetaKey)

	for _, lvl := range view.Bids {
		pipe.ZAdd(ctx, bookBidsKey, redis.Z{Score: lvl.Price, Member: lvl.Key})
		pipe.HSet(ctx, bookBidQtyKey, lvl.Key, strconv.FormatInt(lvl.Quantity, 10))
	}
	for _, lvl := range view.Asks {
		pipe.ZAdd(ctx, bookAsksKey, redis.Z{Score: lvl.Price, Member: lvl.Key})
		pipe.HSet(ctx, bookAskQtyKey, lvl.Key, strconv.FormatInt(lvl.Quantity, 10))
	}

	if bid := view.BestBid(); bid != nil {
		pipe.HSet(ctx, bookBBOKey, "bid", strconv.FormatFloat(*bid, 'f', -1, 64))
	}
	if ask := view.BestAsk(); ask != nil {
		pipe.HSet(ctx, bookBBOKey, "ask", strconv.FormatFloat(*ask, 'f', -1, 64))
	}
	pipe.HSet(ctx, bookMetaKey, "ts", strconv.FormatInt(time.Now().UnixNano(), 10))

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set book view: %w", err)
	}
	return nil
}

// GetView reconstructs the mirrored book view. It returns domain.ErrNotFound
// when no mirror has been written yet.
func (bc *BookCache) GetView(ctx context.Context) (domain.BookView, error) {
	pipe := bc.rdb.Pipeline()

	bidsCmd := pipe.ZRevRangeWithScores(ctx, bookBidsKey, 0, -1)
	asksCmd := pipe.ZRangeWithScores(ctx, bookAsksKey, 0, -1)
	bidQtyCmd := pipe.HGetAll(ctx, bookBidQtyKey)
	askQtyCmd := pipe.HGetAll(ctx, bookAskQtyKey)
	metaCmd := pipe.HGetAll(ctx, bookMetaKey)

	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return domain.BookView{}, fmt.Errorf("redis: get book view: %w", err)
	}

	metaVals, _ := metaCmd.Result()
	if len(metaVals) == 0 {
		return domain.BookView{}, domain.ErrNotFound
	}

	bidQty, _ := bidQtyCmd.Result()
	askQty, _ := askQtyCmd.Result()

	var view domain.BookView
	view.Bids = levelsFromZ(bidsCmd, bidQty)
	view.Asks = levelsFromZ(asksCmd, askQty)
	return view, nil
}

func levelsFromZ(cmd *redis.ZSliceCmd, quantities map[string]string) []domain.PriceLevel {
	zs, _ := cmd.Result()
	levels := make([]domain.PriceLevel, 0, len(zs))
	for _, z := range zs {
		key, ok := z.Member.(string)
		if !ok {
			continue
		}
		var qty int64
		if qtyStr, exists := quantities[key]; exists {
			qty, _ = strconv.ParseInt(qtyStr, 10, 64)
		}
		levels = append(levels, domain.PriceLevel{
			Key:      key,
			Price:    z.Score,
			Quantity: qty,
		})
	}
	return levels
}
