package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const deadlineKey = "auction:deadlines"

// DeadlineIndex keeps the next clock-driven transition of every open auction
// in a Redis sorted set scored by unix time, so deadlines survive restarts.
type DeadlineIndex struct {
	client *redis.Client
	logger zerolog.Logger
}

type DeadlineIndexParams struct {
	RedisClient *redis.Client
	Logger      zerolog.Logger
}

// NewDeadlineIndex creates the durable deadline index
func NewDeadlineIndex(params DeadlineIndexParams) *DeadlineIndex {
	return &DeadlineIndex{
		client: params.RedisClient,
		logger: params.Logger.With().Str("component", "deadline_index").Logger(),
	}
}

// Schedule records the next transition deadline for an auction, replacing
// any previous one
func (d *DeadlineIndex) Schedule(ctx context.Context, auctionID uuid.UUID, at time.Time) error {
	err := d.client.ZAdd(ctx, deadlineKey, redis.Z{
		Score:  float64(at.Unix()),
		Member: auctionID.String(),
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to index deadline: %w", err)
	}

	d.logger.Debug().
		Str("auction_id", auctionID.String()).
		Time("deadline", at).
		Msg("Deadline indexed")
	return nil
}

// Remove drops an auction from the index
func (d *DeadlineIndex) Remove(ctx context.Context, auctionID uuid.UUID) error {
	if err := d.client.ZRem(ctx, deadlineKey, auctionID.String()).Err(); err != nil {
		return fmt.Errorf("failed to remove deadline: %w", err)
	}
	return nil
}

// Due returns auctions whose deadline is at or before now
func (d *DeadlineIndex) Due(ctx context.Context, now time.Time, limit int64) ([]uuid.UUID, error) {
	members, err := d.client.ZRangeByScore(ctx, deadlineKey, &redis.ZRangeBy{
		Min:   "0",
		Max:   strconv.FormatInt(now.Unix(), 10),
		Count: limit,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read due deadlines: %w", err)
	}

	due := make([]uuid.UUID, 0, len(members))
	for _, member := range members {
		id, err := uuid.Parse(member)
		if err != nil {
			d.logger.Error().Err(err).Str("member", member).Msg("Invalid auction ID in deadline index")
			continue
		}
		due = append(due, id)
	}

	return due, nil
}
