package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"

	"sql-fanout/configs"
)

// Cache keeps completed job reports in Redis so a presentation layer can still
// poll them after the in-process registry is gone. Optional; the engine runs
// without it.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewCache(conf *configs.Config) (*Cache, error) {
	rdb := redis.NewClient(&redis.Options{Addr: conf.RedisConfig.Addr})

	ctx := context.Background()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return &Cache{
		client: rdb,
		ttl:    time.Duration(conf.RedisConfig.ReportTTLMs) * time.Millisecond,
	}, nil
}

func reportKey(jobID string) string {
	return "report:" + jobID
}

func (c *Cache) StoreReport(ctx context.Context, jobID string, report any) error {
	data, err := json.Marshal(report)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, reportKey(jobID), data, c.ttl).Err()
}

// Report loads a cached report into dst. The second return is false when the
// job is not cached.
func (c *Cache) Report(ctx context.Context, jobID string, dst any) (bool, error) {
	data, err := c.client.Get(ctx, reportKey(jobID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, err
	}
	return true, nil
}
