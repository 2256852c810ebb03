package scheduler_config

import (
	"time"

	"github.com/nomii-dev-lst/monitor-health-sub000/internal/obs"
	kafkaRepo "github.com/nomii-dev-lst/monitor-health-sub000/internal/repository/kafka"
	pginfra "github.com/nomii-dev-lst/monitor-health-sub000/internal/repository/postgres"
	"github.com/nomii-dev-lst/monitor-health-sub000/internal/services/notifier"
	"github.com/nomii-dev-lst/monitor-health-sub000/internal/services/probe"
	"github.com/nomii-dev-lst/monitor-health-sub000/internal/services/scheduler"
)

const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

type KafkaCfg struct {
	Enable bool `mapstructure:"enable"`
	// Relay consumes peer engines' check events into the local hub.
	Relay                    bool   `mapstructure:"relay"`
	InstanceID               string `mapstructure:"instance_id"`
	kafkaRepo.ProducerConfig `mapstructure:",squash"`
}

type SchedCfg struct {
	Tick             time.Duration `mapstructure:"tick"`
	BatchLimit       int           `mapstructure:"batch_limit"`
	Concurrency      int           `mapstructure:"concurrency"`
	ActiveOwnersOnly bool          `mapstructure:"active_owners_only"`
	ErrorBackoff     bool          `mapstructure:"error_backoff"`
	MaxBackoff       time.Duration `mapstructure:"max_backoff"`
	TaskTimeout      time.Duration `mapstructure:"task_timeout"`
	RestartPolicy    string        `mapstructure:"restart_policy"`
	AutoStart        bool          `mapstructure:"auto_start"`
}

type AlertsCfg struct {
	DefaultEmail    string `mapstructure:"default_email"`
	RecoveryEnabled bool   `mapstructure:"recovery_enabled"`
	Product         string `mapstructure:"product"`
}

type RealtimeCfg struct {
	PresenceTTL  time.Duration `mapstructure:"presence_ttl"`
	PresenceSize int           `mapstructure:"presence_size"`
}

type LogCfg struct {
	Level  string            `mapstructure:"level"`
	Pretty bool              `mapstructure:"pretty"`
	Env    string            `mapstructure:"env"`
	File   obs.LogFileConfig `mapstructure:"file"`
}

type OTELCfg struct {
	Enable       bool    `mapstructure:"enable"`
	ServiceName  string  `mapstructure:"service_name"`
	SampleRatio  float64 `mapstructure:"sample_ratio"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
}

type Config struct {
	Storage  string                  `mapstructure:"storage"`
	DB       pginfra.Config          `mapstructure:"db"`
	Kafka    KafkaCfg                `mapstructure:"kafka"`
	Sched    SchedCfg                `mapstructure:"sched"`
	Probe    probe.Config            `mapstructure:"probe"`
	Alerts   AlertsCfg               `mapstructure:"alerts"`
	SMTP     notifier.SMTPConfig     `mapstructure:"smtp"`
	Slack    notifier.SlackConfig    `mapstructure:"slack"`
	Telegram notifier.TelegramConfig `mapstructure:"telegram"`
	HTTP     obs.HTTPConfig          `mapstructure:"http"`
	Realtime RealtimeCfg             `mapstructure:"realtime"`
	Log      LogCfg                  `mapstructure:"log"`
	OTEL     OTELCfg                 `mapstructure:"otel"`
	Version  string                  `mapstructure:"version"`
}

func (c *Config) AsPolicy() scheduler.Policy {
	return scheduler.Policy{
		Concurrency:      c.Sched.Concurrency,
		BatchLimit:       c.Sched.BatchLimit,
		ActiveOwnersOnly: c.Sched.ActiveOwnersOnly,
		ErrorBackoff:     c.Sched.ErrorBackoff,
		MaxBackoff:       c.Sched.MaxBackoff,
		TaskTimeout:      c.Sched.TaskTimeout,
		RestartPolicy:    scheduler.RestartPolicy(c.Sched.RestartPolicy),
	}
}

func (c *Config) AsRunnerConfig() scheduler.RunnerConfig {
	return scheduler.RunnerConfig{Tick: c.Sched.Tick, InitOnStart: true}
}

func (c *Config) AsLoggerConfig() obs.LogConfig {
	return obs.LogConfig{
		Level:  c.Log.Level,
		Pretty: c.Log.Pretty,
		App:    c.OTEL.ServiceName,
		Env:    c.Log.Env,
		Ver:    c.Version,
		File:   c.Log.File,
	}
}

func (c *Config) AsOTELConfig() *obs.OTELConfig {
	return &obs.OTELConfig{
		Enable:      c.OTEL.Enable,
		Endpoint:    c.OTEL.OTLPEndpoint,
		ServiceName: c.OTEL.ServiceName,
		SampleRatio: c.OTEL.SampleRatio,
		Env:         c.Log.Env,
		Version:     c.Version,
	}
}
