// Package cache keeps live presence in redis. Stored user documents carry a
// last_seen written at materialization only; the volatile signal lives here.
package cache

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

type Client struct {
	Cli    *redis.Client
	prefix string
}

func New(addr, password string, db int, prefix string) (*Client, error) {
	r := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := r.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return &Client{Cli: r, prefix: prefix}, nil
}

func (c *Client) Close() error {
	return c.Cli.Close()
}

func (c *Client) presenceKey(userID string) string { return c.prefix + ":presence:" + userID }
func (c *Client) lastSeenKey(userID string) string { return c.prefix + ":last_seen:" + userID }

func (c *Client) SetPresence(ctx context.Context, userID string, online bool) error {
	val := "0"
	if online {
		val = "1"
	}
	if err := c.Cli.Set(ctx, c.presenceKey(userID), val, 0).Err(); err != nil {
		return err
	}
	return c.TouchLastSeen(ctx, userID)
}

func (c *Client) GetPresence(ctx context.Context, userID string) (bool, error) {
	s, err := c.Cli.Get(ctx, c.presenceKey(userID)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return s == "1", nil
}

func (c *Client) TouchLastSeen(ctx context.Context, userID string) error {
	now := strconv.FormatInt(time.Now().Unix(), 10)
	return c.Cli.Set(ctx, c.lastSeenKey(userID), now, 0).Err()
}

func (c *Client) LastSeen(ctx context.Context, userID string) (time.Time, error) {
	s, err := c.Cli.Get(ctx, c.lastSeenKey(userID)).Result()
	if err == redis.Nil {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	sec, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(sec, 0).UTC(), nil
}
