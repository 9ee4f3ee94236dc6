package config

import (
    "time"

    "github.com/shopspring/decimal"
)

// AuctionConfig controls the live auction engine: stream tick rates,
// presence housekeeping, the lifecycle sweep and purchase fees.
type AuctionConfig struct {
    PlatformFeePercent   decimal.Decimal
    TickInterval         time.Duration
    ChatTickInterval     time.Duration
    HeartbeatInterval    time.Duration
    PresenceStaleTimeout time.Duration
    PresenceBackend      string // memory or redis
    PresenceCleanup      string // cron spec with seconds
    SweepSchedule        string // cron spec with seconds
    MediaRetention       time.Duration
    ChatBatchSize        int
}

// LoadAuctionConfig reads the AUCTION_* and related variables.  Invalid or
// non-positive values fall back to the defaults.
func LoadAuctionConfig() AuctionConfig {
    fee, err := decimal.NewFromString(envStr("PLATFORM_FEE_PERCENT", "2.5"))
    if err != nil || fee.IsNegative() || fee.GreaterThan(decimal.NewFromInt(100)) {
        fee = decimal.RequireFromString("2.5")
    }
    cfg := AuctionConfig{
        PlatformFeePercent:   fee,
        TickInterval:         envDur("AUCTION_TICK_INTERVAL", time.Second),
        ChatTickInterval:     envDur("CHAT_TICK_INTERVAL", 500*time.Millisecond),
        HeartbeatInterval:    envDur("HEARTBEAT_INTERVAL", 30*time.Second),
        PresenceStaleTimeout: envDur("PRESENCE_STALE_TIMEOUT", 2*time.Minute),
        PresenceBackend:      envStr("PRESENCE_BACKEND", "memory"),
        PresenceCleanup:      envStr("PRESENCE_CLEANUP_SCHEDULE", "*/30 * * * * *"),
        SweepSchedule:        envStr("SWEEP_SCHEDULE", "*/5 * * * * *"),
        MediaRetention:       envDur("MEDIA_RETENTION", 30*24*time.Hour),
        ChatBatchSize:        envInt("CHAT_BATCH_SIZE", 100),
    }
    if cfg.TickInterval <= 0 { cfg.TickInterval = time.Second }
    if cfg.ChatTickInterval <= 0 { cfg.ChatTickInterval = 500 * time.Millisecond }
    if cfg.HeartbeatInterval <= 0 { cfg.HeartbeatInterval = 30 * time.Second }
    if cfg.PresenceStaleTimeout <= 0 { cfg.PresenceStaleTimeout = 2 * time.Minute }
    if cfg.ChatBatchSize < 1 { cfg.ChatBatchSize = 100 }
    return cfg
}

// FeePercent satisfies the purchase coordinator's fee source.
func (c AuctionConfig) FeePercent() decimal.Decimal { return c.PlatformFeePercent }
