package config

const (
	EnvMongoURI          = "MONGO_URI"
	EnvMongoDatabaseName = "MONGO_DATABASE_NAME"
	EnvMongoConnTimeout  = "MONGO_CONN_TIMEOUT"

	EnvPort     = "PORT"
	EnvLogLevel = "LOG_LEVEL"

	EnvRateLimitRequests = "RATE_LIMIT_REQUESTS"
	EnvRateLimitWindow   = "RATE_LIMIT_WINDOW"

	EnvRequestTimeout = "REQUEST_TIMEOUT"
	EnvIdempotencyTTL = "IDEMPOTENCY_TTL"
	EnvMaxRequestSize = "MAX_REQUEST_SIZE"

	EnvReadTimeout     = "READ_TIMEOUT"
	EnvWriteTimeout    = "WRITE_TIMEOUT"
	EnvIdleTimeout     = "IDLE_TIMEOUT"
	EnvShutdownTimeout = "SHUTDOWN_TIMEOUT"

	EnvTimezone         = "TIMEZONE"
	EnvDayStart         = "DAY_START"
	EnvDayEnd           = "DAY_END"
	EnvMinDurationMin   = "MIN_DURATION_MIN"
	EnvMaxDurationMin   = "MAX_DURATION_MIN"
	EnvSlotMinutes      = "SLOT_MINUTES"
	EnvSemesterQuotaMin = "SEMESTER_QUOTA_MIN"
	EnvLockTTL          = "LOCK_TTL"

	EnvKafkaEnabled     = "KAFKA_ENABLED"
	EnvReservationTopic = "KAFKA_RESERVATION_TOPIC"
	EnvQuotaTopic       = "KAFKA_QUOTA_TOPIC"
)
