package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"quicktexts/engine/internal/auth"
	"quicktexts/engine/internal/config"
	"quicktexts/engine/internal/models"
)

// TaskType defines the type of a background task.
const (
	TypeShareNotify = "sharing:notify"
)

// --- Task Client (Enqueuing tasks) ---

func NewClient(rdb *redis.Client) *asynq.Client {
	clientOpt := asynq.RedisClientOpt{
		Addr:     rdb.Options().Addr,
		Password: rdb.Options().Password,
		DB:       rdb.Options().DB,
	}
	return asynq.NewClient(clientOpt)
}

// Notifier enqueues share notifications for background delivery. It
// implements services.Notifier.
type Notifier struct {
	client *asynq.Client
}

func NewNotifier(client *asynq.Client) *Notifier {
	return &Notifier{client: client}
}

func (n *Notifier) NotifyShared(ctx context.Context, notification *models.ShareNotification) error {
	payload, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("failed to encode share notification: %w", err)
	}
	task := asynq.NewTask(TypeShareNotify, payload)
	if _, err := n.client.EnqueueContext(ctx, task, asynq.Queue("default"), asynq.MaxRetry(5)); err != nil {
		return fmt.Errorf("failed to enqueue share notification: %w", err)
	}
	return nil
}

// --- Task Server (Processing tasks) ---

// TaskProcessor handles the processing of tasks.
// It holds dependencies needed by task handlers.
type TaskProcessor struct {
	cfg      *config.Config
	identity auth.Identity
	http     *resty.Client
}

func NewTaskProcessor(cfg *config.Config, identity auth.Identity) *TaskProcessor {
	client := resty.New().
		SetTimeout(15 * time.Second).
		SetRetryCount(2)
	return &TaskProcessor{
		cfg:      cfg,
		identity: identity,
		http:     client,
	}
}

// HandleShareNotifyTask delivers one share notification to the notification
// endpoint. The request is authenticated with the current ID token; a
// missing endpoint drops the task rather than retrying forever.
func (p *TaskProcessor) HandleShareNotifyTask(ctx context.Context, task *asynq.Task) error {
	if p.cfg.NotifyURL == "" {
		log.Printf("Dropping share notification: no notification endpoint configured")
		return nil
	}

	var notification models.ShareNotification
	if err := json.Unmarshal(task.Payload(), &notification); err != nil {
		return fmt.Errorf("failed to decode share notification: %v: %w", err, asynq.SkipRetry)
	}

	token, err := p.identity.IDToken(ctx)
	if err != nil {
		return fmt.Errorf("failed to get ID token: %w", err)
	}

	resp, err := p.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetHeader("Content-Type", "application/json").
		SetBody(&notification).
		Post(p.cfg.NotifyURL)
	if err != nil {
		return fmt.Errorf("failed to post share notification: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("notification endpoint returned %s", resp.Status())
	}

	log.Printf("Delivered share notification to %d users", len(notification.Users))
	return nil
}

// SetupServer configures and returns an Asynq server instance.
func SetupServer(rdb *redis.Client, processor *TaskProcessor) *asynq.Server {
	serverOpt := asynq.RedisClientOpt{
		Addr:     rdb.Options().Addr,
		Password: rdb.Options().Password,
		DB:       rdb.Options().DB,
	}

	srv := asynq.NewServer(
		serverOpt,
		asynq.Config{
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				log.Printf("[Asynq Error] Task Type: %s, Payload: %s, Error: %v", task.Type(), string(task.Payload()), err)
			}),
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeShareNotify, processor.HandleShareNotifyTask)

	go func() {
		if err := srv.Run(mux); err != nil {
			log.Fatalf("Could not run task server: %v", err)
		}
	}()

	return srv
}
