package config

// This file defines the Redis client constructor.  Redis backs the purchase
// rate limiter, the listing response cache and, when PRESENCE_BACKEND=redis,
// the shared viewer presence tracker.  If the server cannot be reached at
// startup the caller receives the error and degrades gracefully: rate limiting
// and caching turn into pass-through middleware and presence stays in memory.

import (
    "context"
    "crypto/tls"
    "os"
    "strconv"
    "strings"
    "time"

    "github.com/redis/go-redis/v9"
)

// NewRedisClient instantiates a Redis client using environment variables.
// Supported variables are:
//   REDIS_URL – full redis:// or rediss:// URL (takes precedence over the rest)
//   REDIS_HOST and REDIS_PORT – hostname and port of the Redis server
//   REDIS_ADDR – host:port shorthand
//   REDIS_PASSWORD – optional password
//   REDIS_DB – database number (default 0)
//   REDIS_TLS – enable TLS when "true" or "1"
// REDIS_DISABLED=true skips Redis entirely and returns (nil, nil).
func NewRedisClient() (*redis.Client, error) {
    if envBool("REDIS_DISABLED", false) {
        return nil, nil
    }
    opts, err := redisOptions()
    if err != nil {
        return nil, err
    }
    client := redis.NewClient(opts)
    // Ping the server with a short timeout.
    ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
    defer cancel()
    if err := client.Ping(ctx).Err(); err != nil {
        _ = client.Close()
        return nil, err
    }
    return client, nil
}

func redisOptions() (*redis.Options, error) {
    if url := os.Getenv("REDIS_URL"); url != "" {
        return redis.ParseURL(url)
    }
    host := os.Getenv("REDIS_HOST")
    port := os.Getenv("REDIS_PORT")
    addr := os.Getenv("REDIS_ADDR")
    if host != "" && port != "" {
        addr = host + ":" + port
    }
    if addr == "" {
        addr = "localhost:6379"
    }
    dbNum := 0
    if dbStr := os.Getenv("REDIS_DB"); dbStr != "" {
        if n, err := strconv.Atoi(dbStr); err == nil {
            dbNum = n
        }
    }
    var tlsConf *tls.Config
    if tlsEnv := os.Getenv("REDIS_TLS"); strings.EqualFold(tlsEnv, "true") || tlsEnv == "1" {
        tlsConf = &tls.Config{InsecureSkipVerify: true}
    }
    return &redis.Options{
        Addr:      addr,
        Password:  os.Getenv("REDIS_PASSWORD"),
        DB:        dbNum,
        TLSConfig: tlsConf,
    }, nil
}
