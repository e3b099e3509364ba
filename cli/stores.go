package cli

import (
	"context"

	"l3v3l_server/config"
	"l3v3l_server/logger"
	"l3v3l_server/services"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"go.uber.org/zap"
)

// backend is the storage wiring shared by serve and worker.
type backend struct {
	PII         services.PIIStore
	Queue       services.QueueStore
	Preferences services.PreferencesStore
	Lists       services.ListStore
	Profiles    services.ProfileStore
	Signer      services.PhotoSigner
}

func openBackend(ctx context.Context, cfg config.Config) (backend, error) {
	if cfg.StoreDriver == "memory" {
		logger.Warn("⚠️ using in-memory store, data is lost on exit")
		m := services.NewMemoryStore()
		return backend{PII: m, Queue: m, Preferences: m, Lists: m, Profiles: m}, nil
	}

	logger.Info("Initializing DynamoDB client...", zap.String("region", cfg.AWSRegion))
	awsCfg, err := services.LoadAWSConfig(ctx, cfg.AWSRegion)
	if err != nil {
		return backend{}, err
	}
	dynamo := &services.DynamoService{Client: dynamodb.NewFromConfig(awsCfg)}
	b := backend{
		PII:         services.NewDynamoPIIStore(dynamo, cfg.Tables),
		Queue:       services.NewDynamoQueueStore(dynamo, cfg.Tables),
		Preferences: services.NewDynamoPreferencesStore(dynamo, cfg.Tables),
		Lists:       services.NewDynamoListStore(dynamo, cfg.Tables),
		Profiles:    services.NewDynamoProfileStore(dynamo, cfg.Tables),
	}
	if cfg.S3Bucket != "" {
		b.Signer = services.NewS3Service(awsCfg, cfg.S3Bucket, cfg.PhotoURLTTL)
	}
	logger.Info("✅ DynamoDB client initialized")
	return b, nil
}
