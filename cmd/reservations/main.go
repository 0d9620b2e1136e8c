package main

import (
	classschedulehandler "labreserve/internal/classschedules/handler"
	classschedulerepo "labreserve/internal/classschedules/repository"
	classscheduleservice "labreserve/internal/classschedules/service"
	classschedulevalidator "labreserve/internal/classschedules/validator"
	quotahandler "labreserve/internal/quota/handler"
	quotarepo "labreserve/internal/quota/repository"
	quotaservice "labreserve/internal/quota/service"
	reservationhandler "labreserve/internal/reservations/handler"
	reservationrepo "labreserve/internal/reservations/repository"
	reservationservice "labreserve/internal/reservations/service"
	reservationvalidator "labreserve/internal/reservations/validator"
	resourcehandler "labreserve/internal/resources/handler"
	resourcerepo "labreserve/internal/resources/repository"
	resourceservice "labreserve/internal/resources/service"
	resourcevalidator "labreserve/internal/resources/validator"
	"labreserve/internal/timegrid"
	"labreserve/pkg/app"
	"labreserve/pkg/config"
	"labreserve/pkg/contracts"
	"labreserve/pkg/kafka"
	kafkaconfig "labreserve/pkg/kafka/config"
)

const ServiceName = "reservations"

func main() {
	cfg := config.Load(ServiceName)

	if err := cfg.Validate(); err != nil {
		cfg.Log.Fatal("Invalid configuration", "error", err)
	}
	cfg.LogConfiguration()

	cfg.SetMongo()

	cfg.Log.Info("Starting Reservations service")
	serverApp := app.NewApplication(cfg)
	serverApp.SetApp(initHandlers(cfg)...)
	serverApp.Run()
}

func initHandlers(cfg *config.Config) []contracts.Handler {
	grid := timegrid.New(cfg.Location)

	reservationEvents, quotaEvents := initPublishers(cfg)

	resourceRepo := resourcerepo.NewMongoResourceRepository(cfg)
	resourceService := resourceservice.NewResourceService(
		resourceRepo,
		resourcevalidator.NewResourceValidator(cfg.Log),
		cfg,
	)

	scheduleRepo := classschedulerepo.NewMongoClassScheduleRepository(cfg)
	scheduleService := classscheduleservice.NewClassScheduleService(
		scheduleRepo,
		resourceService,
		classschedulevalidator.NewClassScheduleValidator(cfg.Log),
		grid,
		cfg,
	)

	quotaRepo := quotarepo.NewMongoQuotaRepository(cfg)
	quotaService := quotaservice.NewQuotaService(quotaRepo, quotaEvents, cfg)

	reservationRepo := reservationrepo.NewMongoReservationRepository(cfg)
	detector := reservationservice.NewConflictDetector(reservationRepo, scheduleRepo, resourceService)
	availability := reservationservice.NewAvailabilityEngine(detector, resourceService, grid, cfg)
	reservationService := reservationservice.NewReservationService(
		reservationRepo,
		reservationrepo.NewReservationLockRepository(cfg),
		reservationvalidator.NewReservationValidator(cfg.Log, cfg.MinDurationMin, cfg.MaxDurationMin),
		detector,
		resourceService,
		quotaService,
		reservationEvents,
		grid,
		cfg,
	)

	cfg.Log.Info("Reservation services initialized", "database", cfg.MongoDatabaseName)

	return []contracts.Handler{
		resourcehandler.NewResourceHandler(resourceService, cfg.Log),
		classschedulehandler.NewClassScheduleHandler(scheduleService, cfg.Log),
		reservationhandler.NewReservationHandler(reservationService, availability, cfg.Log),
		quotahandler.NewQuotaHandler(quotaService, cfg.Log),
	}
}

func initPublishers(cfg *config.Config) (kafka.Publisher, kafka.Publisher) {
	if !cfg.KafkaEnabled {
		cfg.Log.Info("Kafka publishing disabled, events will be dropped")
		return kafka.NopPublisher{}, kafka.NopPublisher{}
	}

	kafkaCfg := kafkaconfig.Load()

	reservationProducer, err := kafka.NewProducer(kafkaCfg, cfg.ReservationTopic)
	if err != nil {
		cfg.Log.Fatal("Failed to create reservation event producer", "error", err)
	}
	quotaProducer, err := kafka.NewProducer(kafkaCfg, cfg.QuotaTopic)
	if err != nil {
		cfg.Log.Fatal("Failed to create quota event producer", "error", err)
	}

	cfg.Log.Info("Kafka publishing enabled",
		"brokers", kafkaCfg.Brokers,
		"reservation_topic", cfg.ReservationTopic,
		"quota_topic", cfg.QuotaTopic,
	)
	return reservationProducer, quotaProducer
}
