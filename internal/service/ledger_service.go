package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/segyhp/rental-ledger/internal/events"
	"github.com/segyhp/rental-ledger/internal/idempotency"
	"github.com/segyhp/rental-ledger/internal/repository"
	customError "github.com/segyhp/rental-ledger/pkg/errors"
	"github.com/segyhp/rental-ledger/pkg/utils"
)

// LedgerService owns every charge and payment mutation of a lease.
type LedgerService struct {
	store     repository.Store
	publisher events.Publisher
	keys      idempotency.Store
	clock     func() time.Time
	location  *time.Location
	logger    *zap.Logger
}

type Option func(*LedgerService)

// WithClock replaces time.Now. "Today" is always derived from it.
func WithClock(clock func() time.Time) Option {
	return func(s *LedgerService) { s.clock = clock }
}

// WithLocation sets the time zone calendar dates are taken in.
func WithLocation(loc *time.Location) Option {
	return func(s *LedgerService) { s.location = loc }
}

func WithPublisher(p events.Publisher) Option {
	return func(s *LedgerService) { s.publisher = p }
}

func WithIdempotency(keys idempotency.Store) Option {
	return func(s *LedgerService) { s.keys = keys }
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *LedgerService) { s.logger = logger }
}

func NewLedgerService(store repository.Store, opts ...Option) *LedgerService {
	s := &LedgerService{
		store:     store,
		publisher: events.NopPublisher{},
		clock:     time.Now,
		location:  time.UTC,
		logger:    zap.L(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *LedgerService) now() time.Time {
	return s.clock().UTC()
}

func (s *LedgerService) today() time.Time {
	return utils.Today(s.clock(), s.location)
}

// publish runs after commit. A failed publish is logged and swallowed.
func (s *LedgerService) publish(ctx context.Context, event events.LedgerEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = s.now()
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Error("publish ledger event",
			zap.String("type", event.Type),
			zap.String("lease_id", event.LeaseID),
			zap.Error(err),
		)
	}
}

// dbErr passes business errors through and wraps everything else.
func dbErr(err error) error {
	if err == nil {
		return nil
	}
	var be *customError.BusinessError
	if errors.As(err, &be) {
		return err
	}
	return customError.WrapDatabaseError(err)
}

func notFound(err error, kind, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return customError.WrapNotFound(kind, id)
	}
	return err
}
