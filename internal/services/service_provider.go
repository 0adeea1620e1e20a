package services

import (
	"context"
	"fmt"
	"time"

	"github.com/smart-aqua/backend/internal/config"
	"github.com/smart-aqua/backend/internal/db"
	"github.com/smart-aqua/backend/internal/db/repository"
	"github.com/smart-aqua/backend/internal/kafka"
	"github.com/smart-aqua/backend/internal/mqtt"
	"github.com/smart-aqua/backend/internal/telegram"
	"github.com/smart-aqua/backend/internal/utils"
	"go.uber.org/zap"
)

// ServiceProvider manages all services for the application
type ServiceProvider struct {
	logger              *utils.Logger
	config              *config.Config
	database            *db.Database
	repos               *repository.RepositoryFactory
	statusStore         StatusStore
	redisStore          *RedisStatusStore
	kafkaManager        *kafka.Manager
	kafkaHandler        *KafkaHandler
	mqttClient          *mqtt.Client
	notificationService *NotificationService
	notifier            *MultiNotifier
	alertService        *AlertService
	ingestionService    *IngestionService
	predictionService   *PredictionService
	deviceService       *DeviceService
	commandService      *CommandService
	operatorService     *OperatorService
	cancel              context.CancelFunc
}

// NewServiceProvider creates a new service provider
func NewServiceProvider(
	logger *utils.Logger,
	config *config.Config,
	database *db.Database,
) *ServiceProvider {
	return &ServiceProvider{
		logger:   logger.Named("services"),
		config:   config,
		database: database,
	}
}

// Initialize builds every service and connects the transports that are enabled
func (sp *ServiceProvider) Initialize(ctx context.Context) error {
	ctx, sp.cancel = context.WithCancel(ctx)
	cfg := sp.config

	sp.repos = repository.NewRepositoryFactory(sp.database.DB)

	if cfg.Redis.Enabled {
		store, err := NewRedisStatusStore(ctx, &cfg.Redis)
		if err != nil {
			return fmt.Errorf("failed to create Redis status store: %w", err)
		}
		sp.redisStore = store
		sp.statusStore = store
		sp.logger.Info("Using Redis status store", zap.String("addr", cfg.Redis.Addr))
	} else {
		sp.statusStore = NewMemoryStatusStore()
		sp.logger.Info("Using in-memory status store")
	}

	sp.notificationService = NewNotificationService(sp.logger)
	sp.notifier = NewMultiNotifier(sp.notificationService)

	if cfg.Telegram.Configured() {
		sp.notifier.Add(telegram.NewClient(&cfg.Telegram, sp.logger))
		sp.logger.Info("Telegram notifications enabled")
	}

	var stream TelemetryPublisher
	if cfg.Kafka.Enabled {
		manager, err := kafka.NewManager(&cfg.Kafka, sp.logger)
		if err != nil {
			return fmt.Errorf("failed to create Kafka manager: %w", err)
		}
		sp.kafkaManager = manager
		sp.notifier.Add(manager)
		if cfg.Kafka.PublishTelemetry {
			stream = manager
		}
	}

	var publisher CommandPublisher
	if cfg.MQTT.Enabled {
		sp.mqttClient = mqtt.NewClient(&cfg.MQTT, sp.logger)
		publisher = sp.mqttClient
	}

	sp.commandService = NewCommandService(publisher, sp.notificationService, sp.logger)
	sp.alertService = NewAlertService(sp.repos.Alert(), sp.notifier, cfg.Analysis, sp.logger)
	sp.predictionService = NewPredictionService(sp.repos, cfg.Analysis, sp.logger)
	sp.deviceService = NewDeviceService(sp.repos, sp.statusStore, cfg.Analysis, sp.logger)
	sp.operatorService = NewOperatorService(sp.repos.Operator(), cfg.JWT, sp.logger)

	ingestion, err := NewIngestionService(IngestionDeps{
		Repos:       sp.repos,
		StatusStore: sp.statusStore,
		Analyzer:    NewConsumptionAnalyzer(sp.repos.Telemetry(), sp.logger),
		Detector:    NewDetector(sp.repos.Telemetry(), cfg.Analysis, sp.logger),
		Alerts:      sp.alertService,
		Pump:        sp.commandService,
		Feed:        sp.notificationService,
		Stream:      stream,
	}, cfg.Analysis, sp.logger)
	if err != nil {
		return fmt.Errorf("failed to create ingestion service: %w", err)
	}
	sp.ingestionService = ingestion

	if cfg.Auth.Enabled {
		if err := sp.operatorService.EnsureAdmin(ctx, cfg.Auth.AdminUsername, cfg.Auth.AdminPassword); err != nil {
			return fmt.Errorf("failed to ensure admin operator: %w", err)
		}
	}

	if sp.kafkaManager != nil {
		if cfg.Kafka.ConsumeIntake {
			sp.kafkaHandler = NewKafkaHandler(sp.logger, sp.kafkaManager, sp.ingestionService)
			if err := sp.kafkaHandler.Initialize(ctx); err != nil {
				return fmt.Errorf("failed to initialize Kafka handler: %w", err)
			}
		}
		if err := sp.kafkaManager.Start(); err != nil {
			return fmt.Errorf("failed to start Kafka manager: %w", err)
		}
	}

	if sp.mqttClient != nil {
		sp.mqttClient.Handle(mqtt.KindTelemetry, sp.ingestionService.HandleMessage)
		sp.mqttClient.Handle(mqtt.KindAlert, sp.alertService.HandleMessage)
		if err := sp.mqttClient.Connect(ctx); err != nil {
			return fmt.Errorf("failed to connect MQTT client: %w", err)
		}
	}

	sp.logger.Info("All services initialized successfully",
		zap.Int("notifiers", sp.notifier.Len()),
		zap.Bool("mqtt", sp.mqttClient != nil),
		zap.Bool("kafka", sp.kafkaManager != nil))
	return nil
}

// Shutdown performs a graceful shutdown of all services
func (sp *ServiceProvider) Shutdown() error {
	sp.logger.Info("Shutting down services")

	if sp.mqttClient != nil {
		sp.mqttClient.Disconnect()
	}

	if sp.cancel != nil {
		sp.cancel()
	}

	if sp.alertService != nil {
		sp.alertService.Wait()
	}

	if sp.kafkaManager != nil && sp.kafkaManager.IsRunning() {
		sp.logger.Info("Stopping Kafka manager")
		if err := sp.kafkaManager.Stop(); err != nil {
			sp.logger.Error("Failed to stop Kafka manager", zap.Error(err))
		}
	}

	if sp.notificationService != nil {
		sp.notificationService.Close()
	}

	if sp.redisStore != nil {
		if err := sp.redisStore.Close(); err != nil {
			sp.logger.Error("Failed to close Redis client", zap.Error(err))
		}
	}

	sp.logger.Info("Services shut down successfully")
	return nil
}

// ComponentHealth reports the state of each external dependency
func (sp *ServiceProvider) ComponentHealth(ctx context.Context) map[string]string {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	health := map[string]string{"database": "up"}
	if err := sp.database.VerifyConnection(); err != nil {
		health["database"] = "down"
	}

	if sp.mqttClient == nil {
		health["mqtt"] = "disabled"
	} else if sp.mqttClient.IsConnected() {
		health["mqtt"] = "up"
	} else {
		health["mqtt"] = "reconnecting"
	}

	if sp.redisStore == nil {
		health["status_store"] = "memory"
	} else if err := sp.redisStore.Ping(ctx); err != nil {
		health["status_store"] = "down"
	} else {
		health["status_store"] = "up"
	}

	if sp.kafkaManager == nil {
		health["kafka"] = "disabled"
	} else if sp.kafkaManager.IsRunning() {
		health["kafka"] = "up"
	} else {
		health["kafka"] = "down"
	}

	return health
}

// GetKafkaManager returns the Kafka manager, nil when disabled
func (sp *ServiceProvider) GetKafkaManager() *kafka.Manager {
	return sp.kafkaManager
}

// GetMQTTClient returns the MQTT client, nil when disabled
func (sp *ServiceProvider) GetMQTTClient() *mqtt.Client {
	return sp.mqttClient
}

// GetNotificationService returns the websocket hub
func (sp *ServiceProvider) GetNotificationService() *NotificationService {
	return sp.notificationService
}

// GetStatusStore returns the device status store
func (sp *ServiceProvider) GetStatusStore() StatusStore {
	return sp.statusStore
}

// GetIngestionService returns the ingestion service
func (sp *ServiceProvider) GetIngestionService() *IngestionService {
	return sp.ingestionService
}

// GetAlertService returns the alert service
func (sp *ServiceProvider) GetAlertService() *AlertService {
	return sp.alertService
}

// GetPredictionService returns the prediction service
func (sp *ServiceProvider) GetPredictionService() *PredictionService {
	return sp.predictionService
}

// GetDeviceService returns the device service
func (sp *ServiceProvider) GetDeviceService() *DeviceService {
	return sp.deviceService
}

// GetCommandService returns the command service
func (sp *ServiceProvider) GetCommandService() *CommandService {
	return sp.commandService
}

// GetOperatorService returns the operator service
func (sp *ServiceProvider) GetOperatorService() *OperatorService {
	return sp.operatorService
}
