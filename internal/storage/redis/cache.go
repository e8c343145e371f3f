package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/reqlens/reqlens/internal/reconciler"
)

const latestReportKey = "reqlens-latest-report"

// Cache keeps the most recent reconciliation report in redis so the API
// layer can serve hot reads without touching postgres.
type Cache struct {
	client *redis.Client
	wt     time.Duration
	rt     time.Duration
	ttl    time.Duration
}

func NewCache(c *redis.Client, wt time.Duration, rt time.Duration, ttl time.Duration) *Cache {
	return &Cache{
		client: c,
		wt:     wt,
		rt:     rt,
		ttl:    ttl,
	}
}

func (c *Cache) SetLatestReport(report *reconciler.Report) error {
	data, err := json.Marshal(report)
	if err != nil {
		return err
	}

	ctxTimeout, cancel := context.WithTimeout(context.Background(), c.wt)
	defer cancel()

	return c.client.Set(ctxTimeout, latestReportKey, data, c.ttl).Err()
}

func (c *Cache) GetLatestReport() (*reconciler.Report, error) {
	ctxTimeout, cancel := context.WithTimeout(context.Background(), c.rt)
	defer cancel()

	result := c.client.Get(ctxTimeout, latestReportKey)
	if err := result.Err(); err != nil {
		if err == redis.Nil {
			return nil, nil
		}

		return nil, err
	}

	data, err := result.Bytes()
	if err != nil {
		return nil, err
	}

	report := &reconciler.Report{}
	if err := json.Unmarshal(data, report); err != nil {
		return nil, err
	}

	return report, nil
}
