package cli

import (
	"context"
	"errors"
	"os/signal"
	"sync"
	"syscall"

	"l3v3l_server/config"
	"l3v3l_server/logger"
	"l3v3l_server/models"
	"l3v3l_server/services"
	"l3v3l_server/worker"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func NewWorkerCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Consume delivery jobs and send notifications",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runWorker(ctx, rootOpts.Config)
		},
	}
}

// senders builds a sender for every channel whose credentials are configured.
func senders(cfg config.Config) map[models.Channel]worker.Sender {
	out := map[models.Channel]worker.Sender{}
	if cfg.SMTP.Host != "" {
		out[models.ChannelEmail] = worker.NewEmailSender(cfg.SMTP)
	}
	if cfg.Twilio.AccountSID != "" {
		out[models.ChannelSMS] = worker.NewSMSSender(cfg.Twilio)
	}
	return out
}

func runWorker(ctx context.Context, cfg config.Config) error {
	if cfg.AMQPURL == "" {
		return errors.New("amqp.url is required to run the worker")
	}
	b, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	broker, err := services.DialAMQP(cfg.AMQPURL, cfg.AMQPQueue)
	if err != nil {
		return err
	}
	defer broker.Close()

	deliveries, err := broker.Consume(cfg.WorkerPrefetch)
	if err != nil {
		return err
	}

	queue := services.NewQueueService(b.Queue, broker, nil)
	queue.ProcessingTimeout = cfg.ProcessingTimeout
	w := worker.New(queue, b.Profiles, senders(cfg))
	w.Timeout = cfg.DeliveryTimeout

	logger.Info("👷 worker started", zap.String("queue", cfg.AMQPQueue), zap.Int("prefetch", cfg.WorkerPrefetch))
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.RunDispatcher(ctx, cfg.DispatchInterval)
	}()
	w.Run(ctx, deliveries)
	wg.Wait()
	logger.Info("👷 worker stopped")
	return nil
}
