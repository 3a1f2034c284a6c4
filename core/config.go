package core

import (
	"fmt"
	"strings"
	"time"
)

type NudgeConfig struct {
	Limit  int           `koanf:"limit" mapstructure:"limit"`
	Window time.Duration `koanf:"window" mapstructure:"window"`
}

type RetentionConfig struct {
	Period        time.Duration `koanf:"period" mapstructure:"period"`
	SweepInterval time.Duration `koanf:"sweep_interval" mapstructure:"sweep_interval"`
	AuditTTL      time.Duration `koanf:"audit_ttl" mapstructure:"audit_ttl"`
	AuditRowCap   int           `koanf:"audit_row_cap" mapstructure:"audit_row_cap"`
}

type ReconcilerConfig struct {
	MaxAttempts int           `koanf:"max_attempts" mapstructure:"max_attempts"`
	CallTimeout time.Duration `koanf:"call_timeout" mapstructure:"call_timeout"`
}

type ActorConfig struct {
	MailboxDepth  int `koanf:"mailbox_depth" mapstructure:"mailbox_depth"`
	DedupCapacity int `koanf:"dedup_capacity" mapstructure:"dedup_capacity"`
}

type Config struct {
	ServiceName string           `koanf:"service_name" mapstructure:"service_name"`
	Nudge       NudgeConfig      `koanf:"nudge" mapstructure:"nudge"`
	Retention   RetentionConfig  `koanf:"retention" mapstructure:"retention"`
	Reconciler  ReconcilerConfig `koanf:"reconciler" mapstructure:"reconciler"`
	Actor       ActorConfig      `koanf:"actor" mapstructure:"actor"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "review",
		Nudge: NudgeConfig{
			Limit:  3,
			Window: 15 * time.Minute,
		},
		Retention: RetentionConfig{
			Period:        30 * 24 * time.Hour,
			SweepInterval: time.Hour,
			AuditTTL:      90 * 24 * time.Hour,
			AuditRowCap:   0,
		},
		Reconciler: ReconcilerConfig{
			MaxAttempts: 3,
			CallTimeout: 10 * time.Second,
		},
		Actor: ActorConfig{
			MailboxDepth:  64,
			DedupCapacity: 512,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if c.Nudge.Limit < 1 {
		return fmt.Errorf("core: nudge.limit must be >= 1")
	}
	if c.Nudge.Window <= 0 {
		return fmt.Errorf("core: nudge.window must be positive")
	}
	if c.Retention.Period <= 0 {
		return fmt.Errorf("core: retention.period must be positive")
	}
	if c.Reconciler.MaxAttempts < 1 {
		return fmt.Errorf("core: reconciler.max_attempts must be >= 1")
	}
	if c.Reconciler.CallTimeout <= 0 {
		return fmt.Errorf("core: reconciler.call_timeout must be positive")
	}
	if c.Actor.MailboxDepth < 1 {
		return fmt.Errorf("core: actor.mailbox_depth must be >= 1")
	}
	if c.Actor.DedupCapacity < 1 {
		return fmt.Errorf("core: actor.dedup_capacity must be >= 1")
	}
	return nil
}
