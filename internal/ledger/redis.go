package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/Shivanand-hulikatti/venue-ticketing/internal/principal"
)

// RedisBalancesKey is the hash holding one field per account.
const RedisBalancesKey = "ledger:balances"

// transferScript debits ARGV[1] and credits ARGV[2] by ARGV[3] in one
// atomic step. It returns 1 on success and -1 when the sender is short.
const transferScript = `
local balance = tonumber(redis.call("HGET", KEYS[1], ARGV[1]) or "0")
local amount = tonumber(ARGV[3])
if balance < amount then
	return -1
end
if ARGV[1] ~= ARGV[2] then
	redis.call("HINCRBY", KEYS[1], ARGV[1], -amount)
	redis.call("HINCRBY", KEYS[1], ARGV[2], amount)
end
return 1
`

// Redis is a ledger that keeps balances in a Redis hash.
type Redis struct {
	client *redis.Client
}

// NewRedis constructs a Redis ledger.
func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

// Fund deposits amount into id.
func (r *Redis) Fund(ctx context.Context, id principal.ID, amount int64) error {
	if amount < 0 {
		return ErrInvalidAmount
	}
	if err := r.client.HIncrBy(ctx, RedisBalancesKey, string(id), amount).Err(); err != nil {
		return fmt.Errorf("fund account: %w", err)
	}
	return nil
}

// Balance returns the balance of id, or zero for an unknown account.
func (r *Redis) Balance(ctx context.Context, id principal.ID) (int64, error) {
	val, err := r.client.HGet(ctx, RedisBalancesKey, string(id)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get balance: %w", err)
	}
	return val, nil
}

// Transfer moves amount from one account to another.
func (r *Redis) Transfer(ctx context.Context, from, to principal.ID, amount int64) error {
	if amount < 0 {
		return ErrInvalidAmount
	}
	res, err := r.client.Eval(ctx, transferScript,
		[]string{RedisBalancesKey},
		string(from), string(to), amount,
	).Int()
	if err != nil {
		return fmt.Errorf("transfer: %w", err)
	}
	if res == -1 {
		return ErrInsufficientFunds
	}
	return nil
}
