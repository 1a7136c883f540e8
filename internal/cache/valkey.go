package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type Config struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

type ValkeyClient struct {
	client *redis.Client
	owner  string
}

// releaseScript deletes the lease only if this process still holds it
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

func NewValkeyClient(cfg Config) (*ValkeyClient, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		DialTimeout:  5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Valkey: %w", err)
	}

	return NewValkeyFromClient(rdb), nil
}

func NewValkeyFromClient(rdb *redis.Client) *ValkeyClient {
	return &ValkeyClient{client: rdb, owner: uuid.New().String()}
}

// AcquireLease takes key for ttl. It returns false when another holder has it.
func (v *ValkeyClient) AcquireLease(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := v.client.SetNX(ctx, key, v.owner, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("lease acquire error: %w", err)
	}
	return ok, nil
}

// ReleaseLease drops key if it is still ours; an expired lease is not an error
func (v *ValkeyClient) ReleaseLease(ctx context.Context, key string) error {
	err := releaseScript.Run(ctx, v.client, []string{key}, v.owner).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("lease release error: %w", err)
	}
	return nil
}

func (v *ValkeyClient) Ping(ctx context.Context) error {
	return v.client.Ping(ctx).Err()
}

func (v *ValkeyClient) Close() error {
	return v.client.Close()
}
