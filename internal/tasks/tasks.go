// Package tasks runs late fee work on asynq. A sweep task finds candidate
// charges and fans out one apply task per charge.
package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/segyhp/rental-ledger/internal/config"
	"github.com/segyhp/rental-ledger/internal/domain"
	customError "github.com/segyhp/rental-ledger/pkg/errors"
	"github.com/segyhp/rental-ledger/pkg/utils"
)

const (
	TypeLateFeeSweep = "ledger:late_fee:sweep"
	TypeLateFeeApply = "ledger:late_fee:apply"
)

const (
	QueueCritical = "critical"
	QueueDefault  = "default"
)

// LateFeeLedger is the part of the ledger service the tasks drive.
type LateFeeLedger interface {
	Today() time.Time
	ListLateFeeCandidates(ctx context.Context, asOf time.Time, after *domain.ChargeCursor, limit int) ([]*domain.Charge, error)
	ApplyLateFee(ctx context.Context, chargeID, actorID string) (*domain.Charge, error)
}

// Enqueuer is satisfied by *asynq.Client.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

type LateFeeApplyPayload struct {
	ChargeID string `json:"charge_id"`
	AsOf     string `json:"as_of"`
}

type LateFeeSweepPayload struct {
	Limit int `json:"limit,omitempty"`
}

func NewLateFeeSweepTask(limit int) (*asynq.Task, error) {
	payload, err := json.Marshal(LateFeeSweepPayload{Limit: limit})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeLateFeeSweep, payload, asynq.Queue(QueueCritical), asynq.MaxRetry(3)), nil
}

// NewLateFeeApplyTask builds the task for one charge. The task id is unique per
// charge and day so a repeated sweep does not queue the same work twice.
func NewLateFeeApplyTask(chargeID string, asOf time.Time) (*asynq.Task, error) {
	day := utils.FormatDate(asOf)
	payload, err := json.Marshal(LateFeeApplyPayload{ChargeID: chargeID, AsOf: day})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeLateFeeApply, payload,
		asynq.Queue(QueueDefault),
		asynq.MaxRetry(5),
		asynq.TaskID(fmt.Sprintf("late-fee:%s:%s", chargeID, day)),
		asynq.Retention(24*time.Hour),
	), nil
}

func RedisOpt(cfg config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
}

// TaskProcessor handles the processing of tasks.
type TaskProcessor struct {
	ledger     LateFeeLedger
	enqueuer   Enqueuer
	actorID    string
	batchLimit int
	logger     *zap.Logger
}

func NewTaskProcessor(ledger LateFeeLedger, enqueuer Enqueuer, actorID string, batchLimit int, logger *zap.Logger) *TaskProcessor {
	if logger == nil {
		logger = zap.L()
	}
	return &TaskProcessor{
		ledger:     ledger,
		enqueuer:   enqueuer,
		actorID:    actorID,
		batchLimit: batchLimit,
		logger:     logger,
	}
}

// HandleLateFeeSweepTask queues an apply task for every current candidate,
// reading them in pages of the batch limit.
func (p *TaskProcessor) HandleLateFeeSweepTask(ctx context.Context, t *asynq.Task) error {
	var payload LateFeeSweepPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal sweep payload: %v: %w", err, asynq.SkipRetry)
	}
	limit := payload.Limit
	if limit <= 0 {
		limit = p.batchLimit
	}

	asOf := p.ledger.Today()
	var after *domain.ChargeCursor
	candidates, queued, pages := 0, 0, 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		page, err := p.ledger.ListLateFeeCandidates(ctx, asOf, after, limit)
		if err != nil {
			return fmt.Errorf("list late fee candidates: %w", err)
		}
		pages++
		candidates += len(page)

		for _, c := range page {
			task, err := NewLateFeeApplyTask(c.ID, asOf)
			if err != nil {
				return err
			}
			_, err = p.enqueuer.EnqueueContext(ctx, task)
			if errors.Is(err, asynq.ErrTaskIDConflict) {
				continue
			}
			if err != nil {
				return fmt.Errorf("enqueue late fee for %s: %w", c.ID, err)
			}
			queued++
		}

		if len(page) < limit {
			break
		}
		after = domain.CursorOf(page[len(page)-1])
	}

	p.logger.Info("late fee sweep finished",
		zap.String("as_of", utils.FormatDate(asOf)),
		zap.Int("pages", pages),
		zap.Int("candidates", candidates),
		zap.Int("queued", queued),
	)
	return nil
}

// HandleLateFeeApplyTask applies the late fee of one charge. Business outcomes
// such as ALREADY_APPLIED are final and never retried.
func (p *TaskProcessor) HandleLateFeeApplyTask(ctx context.Context, t *asynq.Task) error {
	var payload LateFeeApplyPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal late fee payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.ChargeID == "" {
		return fmt.Errorf("late fee payload has no charge id: %w", asynq.SkipRetry)
	}

	fee, err := p.ledger.ApplyLateFee(ctx, payload.ChargeID, p.actorID)
	if customError.IsBusiness(err) {
		p.logger.Info("late fee not applied",
			zap.String("charge_id", payload.ChargeID),
			zap.String("code", customError.Code(err)),
		)
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	if err != nil {
		return err
	}

	p.logger.Info("late fee applied by sweep",
		zap.String("charge_id", payload.ChargeID),
		zap.String("late_fee_charge_id", fee.ID),
	)
	return nil
}

func NewServeMux(p *TaskProcessor) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeLateFeeSweep, p.HandleLateFeeSweepTask)
	mux.HandleFunc(TypeLateFeeApply, p.HandleLateFeeApplyTask)
	return mux
}

// NewServer configures an asynq server for the late fee queues.
func NewServer(opt asynq.RedisClientOpt, concurrency int, logger *zap.Logger) *asynq.Server {
	return asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			QueueCritical: 6,
			QueueDefault:  3,
		},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			fields := []zap.Field{
				zap.String("type", task.Type()),
				zap.ByteString("payload", task.Payload()),
				zap.Error(err),
			}
			if errors.Is(err, asynq.SkipRetry) {
				logger.Info("task dropped", fields...)
				return
			}
			logger.Error("task failed", fields...)
		}),
	})
}
