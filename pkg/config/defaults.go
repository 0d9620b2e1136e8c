package config

import "time"

const (
	DefaultMongoURI          = "mongodb://localhost:27017"
	DefaultMongoDatabaseName = "labreserve"
	DefaultMongoConnTimeout  = 10 * time.Second

	DefaultPort     = "8080"
	DefaultLogLevel = "info"

	DefaultRateLimitRequests = 30
	DefaultRateLimitWindow   = 1 * time.Minute

	DefaultRequestTimeout = 30 * time.Second
	DefaultIdempotencyTTL = 24 * time.Hour
	DefaultMaxRequestSize = 1 * 1024 * 1024 // 1MB

	DefaultReadTimeout     = 15 * time.Second
	DefaultWriteTimeout    = 15 * time.Second
	DefaultIdleTimeout     = 60 * time.Second
	DefaultShutdownTimeout = 30 * time.Second

	DefaultPaginationLimit = 100

	// Operating window and booking bounds.
	DefaultTimezone       = "Asia/Manila"
	DefaultDayStart       = "08:00"
	DefaultDayEnd         = "20:00"
	DefaultMinDurationMin = 1
	DefaultMaxDurationMin = 480
	DefaultSlotMinutes    = 60

	// Per-semester student quota.
	DefaultSemesterQuotaMin = 600

	DefaultLockTTL = 10 * time.Second

	DefaultKafkaEnabled     = false
	DefaultReservationTopic = "reservation-events"
	DefaultQuotaTopic       = "quota-events"
)
