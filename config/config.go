package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"l3v3l_server/models"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type TablesConfig struct {
	PIIRequests, PIIRequestGuards, PIIAccessGrants string
	NotificationQueue, NotificationLog             string
	UserLists, UserProfiles                        string
	NotificationPreferences                        string
}

type SMTPConfig struct {
	Host, User, Password, From string
	Port                       int
}

type TwilioConfig struct {
	AccountSID, AuthToken, From string
}

type Config struct {
	Port        string
	LogLevel    string
	StoreDriver string // "dynamodb" or "memory"

	AWSRegion   string
	S3Bucket    string
	PhotoURLTTL time.Duration

	JWTSecret string

	RedisAddr          string
	RateLimitPerMinute int

	AMQPURL   string
	AMQPQueue string

	QueueStatsInterval time.Duration
	DispatchInterval   time.Duration
	ProcessingTimeout  time.Duration
	WorkerPrefetch     int
	DeliveryTimeout    time.Duration

	SMTP   SMTPConfig
	Twilio TwilioConfig
	Tables TablesConfig
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("log_level", "info")
	v.SetDefault("store.driver", "dynamodb")
	v.SetDefault("aws.region", "us-east-1")
	v.SetDefault("s3.photo_url_ttl", "15m")
	v.SetDefault("ratelimit.per_minute", 20)
	v.SetDefault("amqp.queue", "notification_jobs")
	v.SetDefault("queue.stats_interval", "10s")
	v.SetDefault("queue.dispatch_interval", "30s")
	v.SetDefault("queue.processing_timeout", "10m")
	v.SetDefault("worker.prefetch", 8)
	v.SetDefault("worker.delivery_timeout", "1m")
	v.SetDefault("smtp.port", 587)

	v.SetDefault("tables.pii_requests", models.PIIRequestsTable)
	v.SetDefault("tables.pii_request_guards", models.PIIRequestGuardsTable)
	v.SetDefault("tables.pii_access_grants", models.PIIAccessGrantsTable)
	v.SetDefault("tables.notification_queue", models.NotificationQueueTable)
	v.SetDefault("tables.notification_log", models.NotificationLogTable)
	v.SetDefault("tables.user_lists", models.UserListsTable)
	v.SetDefault("tables.user_profiles", models.UserProfilesTable)
	v.SetDefault("tables.notification_preferences", models.PreferencesTable)
}

// Load reads .env, an optional config.yaml and L3V3L_* environment overrides,
// in increasing order of precedence.
func Load(paths ...string) (Config, error) {
	_ = godotenv.Load() // .env is optional

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	v.SetEnvPrefix("L3V3L")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
	}

	c := Config{
		Port:        v.GetString("port"),
		LogLevel:    v.GetString("log_level"),
		StoreDriver: v.GetString("store.driver"),

		AWSRegion:   v.GetString("aws.region"),
		S3Bucket:    v.GetString("s3.bucket"),
		PhotoURLTTL: v.GetDuration("s3.photo_url_ttl"),

		JWTSecret: v.GetString("jwt.secret"),

		RedisAddr:          v.GetString("redis.addr"),
		RateLimitPerMinute: v.GetInt("ratelimit.per_minute"),

		AMQPURL:   v.GetString("amqp.url"),
		AMQPQueue: v.GetString("amqp.queue"),

		QueueStatsInterval: v.GetDuration("queue.stats_interval"),
		DispatchInterval:   v.GetDuration("queue.dispatch_interval"),
		ProcessingTimeout:  v.GetDuration("queue.processing_timeout"),
		WorkerPrefetch:     v.GetInt("worker.prefetch"),
		DeliveryTimeout:    v.GetDuration("worker.delivery_timeout"),

		SMTP: SMTPConfig{
			Host:     v.GetString("smtp.host"),
			Port:     v.GetInt("smtp.port"),
			User:     v.GetString("smtp.user"),
			Password: v.GetString("smtp.password"),
			From:     v.GetString("smtp.from"),
		},
		Twilio: TwilioConfig{
			AccountSID: v.GetString("twilio.account_sid"),
			AuthToken:  v.GetString("twilio.auth_token"),
			From:       v.GetString("twilio.from"),
		},
		Tables: TablesConfig{
			PIIRequests:       v.GetString("tables.pii_requests"),
			PIIRequestGuards:  v.GetString("tables.pii_request_guards"),
			PIIAccessGrants:   v.GetString("tables.pii_access_grants"),
			NotificationQueue: v.GetString("tables.notification_queue"),
			NotificationLog:   v.GetString("tables.notification_log"),
			UserLists:         v.GetString("tables.user_lists"),
			UserProfiles:      v.GetString("tables.user_profiles"),

			NotificationPreferences: v.GetString("tables.notification_preferences"),
		},
	}

	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c Config) Validate() error {
	switch c.StoreDriver {
	case "dynamodb", "memory":
	default:
		return fmt.Errorf("unknown store driver %q", c.StoreDriver)
	}
	if c.QueueStatsInterval <= 0 {
		return errors.New("queue.stats_interval must be positive")
	}
	if c.DeliveryTimeout <= 0 {
		return errors.New("worker.delivery_timeout must be positive")
	}
	// a stalled item is only reaped once no worker can still be sending it
	if c.ProcessingTimeout <= c.DeliveryTimeout {
		return errors.New("queue.processing_timeout must exceed worker.delivery_timeout")
	}
	return nil
}
