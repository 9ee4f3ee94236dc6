package config

import (
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
)

func TestLoadAuctionConfigDefaults(t *testing.T) {
    cfg := LoadAuctionConfig()
    assert.Equal(t, "2.5", cfg.PlatformFeePercent.String())
    assert.Equal(t, time.Second, cfg.TickInterval)
    assert.Equal(t, 500*time.Millisecond, cfg.ChatTickInterval)
    assert.Equal(t, 30*time.Second, cfg.HeartbeatInterval)
    assert.Equal(t, "memory", cfg.PresenceBackend)
}

func TestLoadAuctionConfigOverrides(t *testing.T) {
    t.Setenv("PLATFORM_FEE_PERCENT", "5")
    t.Setenv("AUCTION_TICK_INTERVAL", "250ms")
    t.Setenv("CHAT_TICK_INTERVAL", "-1s")
    cfg := LoadAuctionConfig()
    assert.Equal(t, "5", cfg.FeePercent().String())
    assert.Equal(t, 250*time.Millisecond, cfg.TickInterval)
    assert.Equal(t, 500*time.Millisecond, cfg.ChatTickInterval)
}

func TestLoadAuctionConfigRejectsBadFee(t *testing.T) {
    t.Setenv("PLATFORM_FEE_PERCENT", "250")
    assert.Equal(t, "2.5", LoadAuctionConfig().PlatformFeePercent.String())
}

func TestEnvBool(t *testing.T) {
    t.Setenv("X_FLAG", "yes")
    assert.True(t, envBool("X_FLAG", false))
    t.Setenv("X_FLAG", "garbage")
    assert.True(t, envBool("X_FLAG", true))
}
