package store

import (
    "context"
    "errors"
    "image"
    "time"

    redis "github.com/redis/go-redis/v9"
    "github.com/rs/zerolog/log"

    "github.com/local/pdfsnip/internal/imagerender"
    "github.com/local/pdfsnip/internal/metrics"
)

const thumbPrefix = "pdfsnip:thumb:"

// ThumbCache keeps finished thumbnails in Redis as PNG blobs. A nil
// *ThumbCache is a valid cache that never hits.
type ThumbCache struct {
    client *redis.Client
    ttl    time.Duration
}

// NewThumbCache connects to redisURL and verifies the connection.
func NewThumbCache(redisURL string, ttl time.Duration) (*ThumbCache, error) {
    opt, err := redis.ParseURL(redisURL)
    if err != nil { return nil, err }
    c := redis.NewClient(opt)
    ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
    defer cancel()
    if err := c.Ping(ctx).Err(); err != nil {
        _ = c.Close()
        return nil, err
    }
    return &ThumbCache{client: c, ttl: ttl}, nil
}

// NewThumbCacheFromClient wraps an existing client.
func NewThumbCacheFromClient(c *redis.Client, ttl time.Duration) *ThumbCache {
    return &ThumbCache{client: c, ttl: ttl}
}

func (s *ThumbCache) Close() error {
    if s == nil || s.client == nil { return nil }
    return s.client.Close()
}

// Ping satisfies statuscheck.RedisPinger.
func (s *ThumbCache) Ping(ctx context.Context) error {
    if s == nil || s.client == nil { return errors.New("client unavailable") }
    return s.client.Ping(ctx).Err()
}

func (s *ThumbCache) key(k string) string { return thumbPrefix + k }

// Get returns the cached thumbnail. Misses and errors both report false.
func (s *ThumbCache) Get(ctx context.Context, key string) (image.Image, bool) {
    if s == nil || s.client == nil { return nil, false }
    data, err := s.client.Get(ctx, s.key(key)).Bytes()
    if err == redis.Nil { return nil, false }
    if err != nil {
        metrics.IncCache("error")
        log.Debug().Err(err).Str("key", key).Msg("thumbnail cache get failed")
        return nil, false
    }
    img, err := imagerender.DecodePNG(data)
    if err != nil {
        metrics.IncCache("error")
        log.Warn().Err(err).Str("key", key).Msg("corrupt cached thumbnail, discarding")
        _ = s.client.Del(ctx, s.key(key)).Err()
        return nil, false
    }
    return img, true
}

// Put stores img under key with the configured TTL. Failures are logged only.
func (s *ThumbCache) Put(ctx context.Context, key string, img image.Image) {
    if s == nil || s.client == nil || img == nil { return }
    data, err := imagerender.EncodePNG(img)
    if err != nil {
        log.Warn().Err(err).Str("key", key).Msg("thumbnail encode failed")
        return
    }
    if err := s.client.Set(ctx, s.key(key), data, s.ttl).Err(); err != nil {
        metrics.IncCache("error")
        log.Debug().Err(err).Str("key", key).Msg("thumbnail cache put failed")
    }
}
