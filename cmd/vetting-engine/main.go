// cmd/vetting-engine/main.go
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"vetting-engine/internal/common/aws"
	"vetting-engine/internal/common/camunda"
	"vetting-engine/internal/common/config"
	"vetting-engine/internal/common/database"
	"vetting-engine/internal/common/lock"
	"vetting-engine/internal/common/logger"
	"vetting-engine/internal/common/observability"
	"vetting-engine/internal/common/pii"
	"vetting-engine/internal/common/validation"
	"vetting-engine/internal/vetting/application"
	"vetting-engine/internal/vetting/audit"
	"vetting-engine/internal/vetting/bulk"
	"vetting-engine/internal/vetting/clock"
	"vetting-engine/internal/vetting/decision"
	"vetting-engine/internal/vetting/notification"
	"vetting-engine/internal/vetting/reference"
	"vetting-engine/internal/vetting/reviewer"
	"vetting-engine/internal/vetting/store/postgres"
	"vetting-engine/pkg/registry"

	aa "vetting-engine/internal/workers/vetting/archive-application"
	ar "vetting-engine/internal/workers/vetting/assign-reviewer"
	cbo "vetting-engine/internal/workers/vetting/cancel-bulk-operation"
	gbo "vetting-engine/internal/workers/vetting/get-bulk-operation"
	mmc "vetting-engine/internal/workers/vetting/mark-manual-contact"
	rd "vetting-engine/internal/workers/vetting/record-decision"
	rrr "vetting-engine/internal/workers/vetting/record-reference-response"
	rr "vetting-engine/internal/workers/vetting/register-reviewer"
	rbo "vetting-engine/internal/workers/vetting/run-bulk-operation"
	sra "vetting-engine/internal/workers/vetting/set-reviewer-availability"
	sa "vetting-engine/internal/workers/vetting/submit-application"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog, err := logger.Build(logger.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting vetting engine...",
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment),
	)

	obs := observability.New(cfg.App.Name, zapLog)
	defer obs.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	st := postgres.New(pg)
	if err := st.Migrate(ctx); err != nil {
		zapLog.Fatal("schema migration failed", zap.Error(err))
	}

	// --- Init Redis with retry ---
	var rdb *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		rdb, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return rdb.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")
	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer rdb.Close()
	zapLog.Info("Redis connected successfully")

	// --- Audit ---
	sinks := []audit.Sink{audit.NewStoreSink(st)}
	if cfg.Audit.ElasticsearchEnabled {
		var esClient *database.ElasticsearchClient
		err = retryWithBackoff(func() error {
			var err error
			esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
			if err != nil {
				return err
			}
			return esClient.Ping(ctx)
		}, 15, 2*time.Second, zapLog, "Elasticsearch connection")
		if err != nil {
			zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
		}
		sinks = append(sinks, audit.NewElasticsearchSink(esClient, cfg.Audit.ElasticsearchIndex))
		zapLog.Info("Elasticsearch connected successfully")
	}
	auditor := audit.NewAuditor(cfg.Audit.BufferSize, log, sinks...)
	defer auditor.Close()

	// --- Notifications ---
	cipher, err := pii.NewCipher(cfg.Security.EncryptionKey)
	if err != nil {
		zapLog.Fatal("encryption key invalid", zap.Error(err))
	}

	var (
		transport notification.MailTransport
		alerter   notification.Alerter
	)
	if cfg.Notifications.Email.Enabled {
		sender, err := aws.NewNotificationSender(ctx, cfg.Notifications.AWS.Region)
		if err != nil {
			zapLog.Fatal("notification sender init failed", zap.Error(err))
		}
		transport = notification.NewSESTransport(sender, cipher, cfg.Notifications.Email.FromEmail)
	}
	if cfg.Notifications.Alerts.Enabled {
		topic, err := aws.NewAlertTopic(ctx, cfg.Notifications.AWS.Region, cfg.Notifications.Alerts.TopicARN)
		if err != nil {
			zapLog.Fatal("alert topic init failed", zap.Error(err))
		}
		alerter = notification.NewSNSAlerter(topic, cfg.Notifications.Alerts.TopicARN)
	}

	clk := clock.SystemClock{}
	dispatcher := notification.NewDispatcher(st, transport, alerter, auditor, clk, notification.Config{
		MaxRetries:   cfg.Notifications.MaxRetries,
		BaseBackoff:  config.GetDuration(cfg.Notifications.BaseBackoff),
		MaxBackoff:   config.GetDuration(cfg.Notifications.MaxBackoff),
		BatchSize:    cfg.Notifications.BatchSize,
		ContactEmail: cfg.Notifications.ContactEmail,
	}, log)

	// --- Zeebe ---
	var zeebe *camunda.Client
	if cfg.Camunda.Enabled {
		err = retryWithBackoff(func() error {
			var err error
			zeebe, err = camunda.NewClient(cfg.Camunda.BrokerAddress, config.GetDuration(cfg.Camunda.RequestTimeout))
			return err
		}, 10, 2*time.Second, zapLog, "Zeebe client initialization")
		if err != nil {
			zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
		}
		zapLog.Info("Zeebe client connected successfully")
	}

	// --- Engine ---
	locker := lock.NewRedisLocker(rdb.Client)
	pool := reviewer.NewPool(st, auditor, clk, log)

	appOpts := []application.Option{application.WithLocker(locker), application.WithAuditor(auditor)}
	if path := cfg.Vetting.AnswersSchemaPath; path != "" {
		schema, err := validation.CompileSchemaFile(path)
		if err != nil {
			zapLog.Fatal("answers schema invalid", zap.String("path", path), zap.Error(err))
		}
		appOpts = append(appOpts, application.WithAnswersSchema(schema))
	}
	apps := application.NewService(st, pool, dispatcher, clk, application.Config{
		ExpiryWindow:       config.Days(cfg.Vetting.ApplicationExpiryDays),
		MinReferences:      cfg.Vetting.MinReferences,
		MaxReferences:      cfg.Vetting.MaxReferences,
		AssignmentAttempts: cfg.Vetting.AssignmentAttempts,
		LockTTL:            config.GetDuration(cfg.Vetting.LockTimeout),
		BatchSize:          cfg.Vetting.SchedulerBatchSize,
	}, log, appOpts...)

	var refOpts []reference.Option
	if zeebe != nil {
		refOpts = append(refOpts, reference.WithPublisher(zeebe))
	}
	refs := reference.NewWorkflow(st, dispatcher, apps, auditor, clk, reference.Config{
		Policy:          reference.PolicyFromDays(cfg.Vetting.ReminderDays, cfg.Vetting.ReferenceResponseDays),
		AutoContact:     cfg.Vetting.AutoContactReferences,
		BatchSize:       cfg.Vetting.SchedulerBatchSize,
		ResponseBaseURL: cfg.Notifications.ResponseBaseURL,
	}, log, refOpts...)

	recorder := decision.NewRecorder(st, apps, refs, auditor, clk, log)

	orchestrator := bulk.NewOrchestrator(st, bulk.NewActions(apps, recorder, refs), clk, bulk.Config{
		MaxWorkers:  cfg.Bulk.MaxWorkers,
		ItemTimeout: config.GetDuration(cfg.Bulk.ItemTimeout),
		RetryDelay:  config.GetDuration(cfg.Bulk.RetryDelay),
		MaxAttempts: cfg.Bulk.MaxAttempts,
		BatchSize:   cfg.Vetting.SchedulerBatchSize,
	}, log,
		bulk.WithCancelSignal(bulk.NewRedisCancelSignal(rdb.Client, 24*time.Hour)),
		bulk.WithInstrumenter(obs),
		bulk.WithAuditor(auditor),
	)

	// --- Scheduler ---
	schedOpts := []clock.Option{clock.WithInstrumenter(obs)}
	if cfg.Scheduler.LeaderLock {
		schedOpts = append(schedOpts, clock.WithLeaderLock(locker))
	}
	scheduler := clock.NewScheduler(clk, config.GetDuration(cfg.Scheduler.TickInterval), log, schedOpts...)
	scheduler.Register(apps.ExpireJob())
	scheduler.Register(refs.ContactJob())
	scheduler.Register(refs.ReminderJob())
	scheduler.Register(orchestrator.RetryJob())
	if transport != nil {
		scheduler.Register(dispatcher.Job())
	} else {
		zapLog.Warn("email transport disabled, notifications stay queued")
	}
	scheduler.Start(ctx)

	// --- Zeebe workers ---
	var workers []*camunda.CamundaWorker
	if zeebe != nil {
		reg, err := registry.Load()
		if err != nil {
			zapLog.Fatal("activity registry invalid", zap.Error(err))
		}
		handlers, err := buildHandlers(cfg, reg, apps, refs, pool, recorder, orchestrator, cipher, log)
		if err != nil {
			zapLog.Fatal("worker init failed", zap.Error(err))
		}
		for taskType, handler := range handlers {
			wc := config.GetWorkerConfig(cfg, taskType)
			if !wc.Enabled {
				zapLog.Info("worker disabled", zap.String("taskType", taskType))
				continue
			}
			workers = append(workers, camunda.NewWorker(
				zeebe.GetClient(), taskType, wc.MaxJobsActive, config.GetDuration(wc.Timeout), handler, zapLog,
			))
		}
		zapLog.Info("workers registered", zap.Int("count", len(workers)))
	}

	// --- Health & Metrics Server ---
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, http.StatusOK, "healthy", nil)
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		checkCtx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		checks := map[string]string{}
		status := http.StatusOK
		if err := pg.Ping(checkCtx); err != nil {
			checks["postgres"] = err.Error()
			status = http.StatusServiceUnavailable
		}
		if err := rdb.Ping(checkCtx); err != nil {
			checks["redis"] = err.Error()
			status = http.StatusServiceUnavailable
		}
		if zeebe != nil {
			if err := zeebe.HealthCheck(checkCtx); err != nil {
				checks["zeebe"] = err.Error()
				status = http.StatusServiceUnavailable
			}
		}
		label := "ready"
		if status != http.StatusOK {
			label = "degraded"
		}
		writeStatus(w, status, label, checks)
	})
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{Addr: cfg.Server.Address, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		zapLog.Info("Health/Metrics server listening", zap.String("address", cfg.Server.Address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLog.Error("Health/Metrics server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	<-ctx.Done()
	zapLog.Info("Shutdown signal received, stopping...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, w := range workers {
		w.Stop()
	}
	scheduler.Stop()
	if err := server.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error stopping health server", zap.Error(err))
	}
	if zeebe != nil {
		if err := zeebe.Close(); err != nil {
			zapLog.Error("Error closing Zeebe client", zap.Error(err))
		}
	}

	zapLog.Info("Vetting engine stopped gracefully")
}

func buildHandlers(
	cfg *config.Config,
	reg *registry.ActivityRegistry,
	apps *application.Service,
	refs *reference.Workflow,
	pool *reviewer.Pool,
	recorder *decision.Recorder,
	orchestrator *bulk.Orchestrator,
	cipher *pii.Cipher,
	log logger.Logger,
) (map[string]camunda.JobHandler, error) {
	handlers := map[string]camunda.JobHandler{}
	add := func(taskType string, h camunda.JobHandler, err error) error {
		if err != nil {
			return err
		}
		handlers[taskType] = h
		return nil
	}
	wc := func(taskType string) config.WorkerConfig { return config.GetWorkerConfig(cfg, taskType) }

	submit, err := sa.NewHandler(sa.NewConfig(wc(sa.TaskType)), apps, cipher, reg, log)
	if err := add(sa.TaskType, submit, err); err != nil {
		return nil, err
	}
	assign, err := ar.NewHandler(ar.NewConfig(wc(ar.TaskType)), apps, reg, log)
	if err := add(ar.TaskType, assign, err); err != nil {
		return nil, err
	}
	archive, err := aa.NewHandler(aa.NewConfig(wc(aa.TaskType)), apps, reg, log)
	if err := add(aa.TaskType, archive, err); err != nil {
		return nil, err
	}
	decide, err := rd.NewHandler(rd.NewConfig(wc(rd.TaskType)), recorder, reg, log)
	if err := add(rd.TaskType, decide, err); err != nil {
		return nil, err
	}
	respond, err := rrr.NewHandler(rrr.NewConfig(wc(rrr.TaskType)), refs, cipher, reg, log)
	if err := add(rrr.TaskType, respond, err); err != nil {
		return nil, err
	}
	manual, err := mmc.NewHandler(mmc.NewConfig(wc(mmc.TaskType)), refs, reg, log)
	if err := add(mmc.TaskType, manual, err); err != nil {
		return nil, err
	}
	register, err := rr.NewHandler(rr.NewConfig(wc(rr.TaskType)), pool, reg, log)
	if err := add(rr.TaskType, register, err); err != nil {
		return nil, err
	}
	avail, err := sra.NewHandler(sra.NewConfig(wc(sra.TaskType)), pool, reg, log)
	if err := add(sra.TaskType, avail, err); err != nil {
		return nil, err
	}
	run, err := rbo.NewHandler(rbo.NewConfig(wc(rbo.TaskType)), orchestrator, reg, log)
	if err := add(rbo.TaskType, run, err); err != nil {
		return nil, err
	}
	cancel, err := cbo.NewHandler(cbo.NewConfig(wc(cbo.TaskType)), orchestrator, reg, log)
	if err := add(cbo.TaskType, cancel, err); err != nil {
		return nil, err
	}
	get, err := gbo.NewHandler(gbo.NewConfig(wc(gbo.TaskType)), orchestrator, reg, log)
	if err := add(gbo.TaskType, get, err); err != nil {
		return nil, err
	}
	return handlers, nil
}

func writeStatus(w http.ResponseWriter, code int, status string, checks map[string]string) {
	body := map[string]interface{}{
		"status": status,
		"time":   time.Now().Format(time.RFC3339),
	}
	if len(checks) > 0 {
		body["checks"] = checks
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
