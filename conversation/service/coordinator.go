package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"discussion-facilitator/backend/ai"
	"discussion-facilitator/backend/conversation/models"
	"discussion-facilitator/backend/conversation/repository"
	"discussion-facilitator/backend/pkg/logger"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Outcome is the result of one evaluation
type Outcome string

const (
	OutcomeNotDue    Outcome = "not_due"
	OutcomeDisabled  Outcome = "disabled"
	OutcomeClaimLost Outcome = "claim_lost"
	OutcomeResolved  Outcome = "resolved"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeFailed    Outcome = "failed"
)

// Result describes what an evaluation did. Warning is set only for the
// caller whose facilitator call failed.
type Result struct {
	Outcome  Outcome         `json:"outcome"`
	Crossing int             `json:"crossing,omitempty"`
	Message  *models.Message `json:"message,omitempty"`
	Warning  string          `json:"warning,omitempty"`
	Err      error           `json:"-"`
}

// CoordinatorConfig holds the trigger parameters
type CoordinatorConfig struct {
	FacilitatorID  string
	Threshold      int
	Topic          string
	InvokeTimeout  time.Duration
	ClaimTTL       time.Duration
	ReleaseTimeout time.Duration
}

// Coordinator decides when the facilitator speaks and makes sure it speaks
// at most once per crossing, however many callers evaluate concurrently.
// All coordination goes through the repository; the coordinator itself
// holds no shared state.
type Coordinator struct {
	repo        repository.MessageRepository
	facilitator ai.Facilitator
	cfg         CoordinatorConfig
	log         *logger.Logger

	now      func() time.Time
	newOwner func() string
	tracer   trace.Tracer
	meter    metric.Meter

	evaluations metric.Int64Counter
}

// CoordinatorOption customizes a Coordinator
type CoordinatorOption func(*Coordinator)

// WithClock replaces the wall clock used for claim leases
func WithClock(now func() time.Time) CoordinatorOption {
	return func(c *Coordinator) { c.now = now }
}

// WithOwnerFunc replaces the claim token generator
func WithOwnerFunc(fn func() string) CoordinatorOption {
	return func(c *Coordinator) { c.newOwner = fn }
}

func WithMeter(m metric.Meter) CoordinatorOption {
	return func(c *Coordinator) { c.meter = m }
}

func WithTracer(t trace.Tracer) CoordinatorOption {
	return func(c *Coordinator) { c.tracer = t }
}

// NewCoordinator creates a coordinator. A nil facilitator disables it.
func NewCoordinator(repo repository.MessageRepository, facilitator ai.Facilitator, cfg CoordinatorConfig, log *logger.Logger, opts ...CoordinatorOption) (*Coordinator, error) {
	if cfg.Threshold <= 0 {
		return nil, fmt.Errorf("threshold must be positive, got %d", cfg.Threshold)
	}
	if cfg.InvokeTimeout <= 0 {
		cfg.InvokeTimeout = 45 * time.Second
	}
	if cfg.ClaimTTL <= cfg.InvokeTimeout {
		cfg.ClaimTTL = 2 * cfg.InvokeTimeout
	}
	if cfg.ReleaseTimeout <= 0 {
		cfg.ReleaseTimeout = 5 * time.Second
	}

	c := &Coordinator{
		repo:        repo,
		facilitator: facilitator,
		cfg:         cfg,
		log:         log.Named("coordinator"),
		now:         time.Now,
		newOwner:    func() string { return uuid.New().String() },
		tracer:      otel.Tracer("discussion-facilitator/coordinator"),
		meter:       otel.Meter("discussion-facilitator/coordinator"),
	}
	for _, opt := range opts {
		opt(c)
	}

	counter, err := c.meter.Int64Counter("facilitator_evaluations",
		metric.WithDescription("Facilitator trigger evaluations by outcome"))
	if err != nil {
		return nil, fmt.Errorf("create evaluations counter: %w", err)
	}
	c.evaluations = counter

	return c, nil
}

// Enabled reports whether a facilitator is configured
func (c *Coordinator) Enabled() bool {
	return c.facilitator != nil
}

// Threshold returns the configured crossing interval
func (c *Coordinator) Threshold() int {
	return c.cfg.Threshold
}

// Evaluate checks the live log and, if a crossing is due and this caller
// wins its claim, runs the facilitator. Losing a claim is a normal outcome,
// not an error. Errors are store failures only.
func (c *Coordinator) Evaluate(ctx context.Context) (Result, error) {
	ctx, span := c.tracer.Start(ctx, "facilitator.evaluate")
	defer span.End()

	res, err := c.evaluate(ctx)

	label := string(res.Outcome)
	if err != nil {
		label = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(
		attribute.String("facilitator.outcome", label),
		attribute.Int("facilitator.crossing", res.Crossing),
	)
	c.evaluations.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", label)))

	return res, err
}

func (c *Coordinator) evaluate(ctx context.Context) (Result, error) {
	if c.facilitator == nil {
		return Result{Outcome: OutcomeDisabled}, nil
	}

	messages, err := c.repo.ReadAll(ctx)
	if err != nil {
		return Result{}, err
	}
	snap := Count(messages, c.cfg.FacilitatorID)

	crossing, due, err := c.candidate(ctx, snap)
	if err != nil {
		return Result{}, err
	}
	if !due {
		return Result{Outcome: OutcomeNotDue}, nil
	}

	owner := c.newOwner()
	won, err := c.repo.ClaimCrossing(ctx, models.Claim{
		HumanCount: crossing,
		Owner:      owner,
		Threshold:  c.cfg.Threshold,
		Lease:      c.cfg.ClaimTTL,
		Now:        c.now(),
	})
	if err != nil {
		return Result{Crossing: crossing}, err
	}
	if !won {
		c.log.Debug("Crossing claimed elsewhere", "crossing", crossing)
		return Result{Outcome: OutcomeClaimLost, Crossing: crossing}, nil
	}

	c.log.Info("Claimed crossing", "crossing", crossing, "owner", owner, "human_count", snap.HumanCount)
	return c.run(ctx, crossing, owner)
}

// candidate picks the crossing this evaluation should try to claim: the
// current count when it just became a multiple of the threshold, or the last
// crossing if an earlier attempt released it or died holding it.
func (c *Coordinator) candidate(ctx context.Context, snap models.Snapshot) (int, bool, error) {
	if snap.HumanCount == 0 || (snap.HasLast && IsFacilitator(snap.LastAuthor, c.cfg.FacilitatorID)) {
		return 0, false, nil
	}

	crossing := (snap.HumanCount / c.cfg.Threshold) * c.cfg.Threshold
	if crossing == 0 {
		return 0, false, nil
	}

	row, err := c.repo.GetCrossing(ctx, crossing)
	if err != nil {
		return 0, false, err
	}
	if row == nil {
		return crossing, crossing == snap.HumanCount, nil
	}
	return crossing, row.Claimable(c.now().UnixMilli()), nil
}

// run invokes the facilitator for a claimed crossing and records the result.
// No transaction is held while the facilitator runs.
func (c *Coordinator) run(ctx context.Context, crossing int, owner string) (Result, error) {
	base := Result{Crossing: crossing}

	// finishing a claim must not be skipped because the caller went away
	finishCtx, cancelFinish := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.ReleaseTimeout)
	defer cancelFinish()

	messages, err := c.repo.ReadAll(ctx)
	if err != nil {
		c.release(finishCtx, crossing, owner)
		return base, err
	}
	snap := Count(messages, c.cfg.FacilitatorID)

	reply, err := c.invoke(ctx, ai.Request{
		History:       messages,
		ActiveMembers: snap.ActiveMembers,
		Topic:         c.cfg.Topic,
	})
	if err != nil {
		remote := ai.NewRemoteError("invoke", err)
		c.log.Warn("Facilitator failed, releasing crossing",
			"crossing", crossing,
			"error", remote.Error(),
		)
		c.release(finishCtx, crossing, owner)
		base.Outcome = OutcomeFailed
		base.Warning = remote.Error()
		base.Err = remote
		return base, nil
	}

	if reply.NoResponse {
		if err := c.repo.SkipCrossing(finishCtx, crossing, owner); err != nil {
			if errors.Is(err, repository.ErrClaimLost) {
				base.Outcome = OutcomeClaimLost
				return base, nil
			}
			return base, err
		}
		c.log.Info("Facilitator chose not to respond", "crossing", crossing)
		base.Outcome = OutcomeSkipped
		return base, nil
	}

	message, err := c.repo.ResolveCrossing(finishCtx, crossing, owner, reply.Text)
	switch {
	case errors.Is(err, repository.ErrClaimLost):
		c.log.Warn("Crossing lost before the facilitator reply was stored", "crossing", crossing)
		base.Outcome = OutcomeClaimLost
		return base, nil
	case err != nil:
		c.release(finishCtx, crossing, owner)
		return base, err
	}

	c.log.Info("Facilitator responded", "crossing", crossing, "message_id", message.ID)
	base.Outcome = OutcomeResolved
	base.Message = message
	return base, nil
}

func (c *Coordinator) invoke(ctx context.Context, req ai.Request) (ai.Reply, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.InvokeTimeout)
	defer cancel()

	ctx, span := c.tracer.Start(ctx, "facilitator.invoke",
		trace.WithAttributes(attribute.Int("facilitator.history", len(req.History))))
	defer span.End()

	reply, err := c.facilitator.Invoke(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return reply, err
}

// release frees a claim. If it fails the lease expires on its own.
func (c *Coordinator) release(ctx context.Context, crossing int, owner string) {
	err := c.repo.ReleaseCrossing(ctx, crossing, owner)
	if err != nil && !errors.Is(err, repository.ErrClaimLost) {
		c.log.LogError(err, "Failed to release crossing; it will be retried after lease expiry",
			"crossing", crossing)
	}
}
