package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/DanaFrie/POC-Joystie-sub000/internal/challenge"
)

// Store is the slice of the record-store adapter the dispatcher needs.
// challenge.Repository satisfies it.
type Store interface {
	ListActiveChallenges(ctx context.Context) ([]*challenge.Challenge, error)
	GetChallenge(ctx context.Context, id string) (*challenge.Challenge, error)
	GetParent(ctx context.Context, id string) (*challenge.Parent, error)
	GetChild(ctx context.Context, id string) (*challenge.Child, error)
	ListUploads(ctx context.Context, challengeID string) ([]*challenge.DailyUpload, error)
	CountPendingApprovals(ctx context.Context, challengeID string) (int, error)
	TryClaimNotification(ctx context.Context, challengeID, key string) (bool, error)
	ReleaseNotificationClaim(ctx context.Context, challengeID, key string) error
}

// ChallengeError records a per-challenge failure collected during a batch run.
type ChallengeError struct {
	ChallengeID string
	Err         error
}

func (e ChallengeError) Error() string {
	return fmt.Sprintf("challenge %s: %v", e.ChallengeID, e.Err)
}

// TickReport summarizes one scheduler tick: how many challenges were
// processed, how many sends happened, and which challenges failed. A tick
// never hard-fails on business errors.
type TickReport struct {
	Processed int
	Sent      int
	Errors    []ChallengeError
}

// Config tunes the dispatcher.
type Config struct {
	// Tolerance widens each rule's target minute into a window so a delayed
	// tick still fires the day's notification.
	Tolerance time.Duration
	// Strategy picks the first-upload semantic for the event rules.
	Strategy FirstUploadStrategy
	// Location is the time zone challenge days and target times are
	// evaluated in.
	Location *time.Location
}

// Dispatcher evaluates notification rules and performs idempotent sends.
// All idempotency state lives in the record store; the dispatcher itself is
// stateless between invocations.
type Dispatcher struct {
	store     Store
	mailer    Mailer
	urls      UploadURLGenerator
	logger    *slog.Logger
	tolerance time.Duration
	strategy  FirstUploadStrategy
	loc       *time.Location
}

// NewDispatcher wires the dispatch coordinator.
func NewDispatcher(store Store, mailer Mailer, urls UploadURLGenerator, logger *slog.Logger, cfg Config) *Dispatcher {
	tolerance := cfg.Tolerance
	if tolerance <= 0 {
		tolerance = 5 * time.Minute
	}
	strategy := cfg.Strategy
	if strategy == "" {
		strategy = FirstUploadFlagGated
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	return &Dispatcher{
		store:     store,
		mailer:    mailer,
		urls:      urls,
		logger:    logger,
		tolerance: tolerance,
		strategy:  strategy,
		loc:       loc,
	}
}

// ProcessTick runs the three time-triggered rules over every active
// challenge. One bad record never aborts the batch: each challenge is
// processed in isolation and its error collected into the report.
func (d *Dispatcher) ProcessTick(ctx context.Context, now time.Time) (TickReport, error) {
	report := TickReport{}

	challenges, err := d.store.ListActiveChallenges(ctx)
	if err != nil {
		// Store-level failure aborts the whole batch; the platform retries.
		return report, fmt.Errorf("list active challenges: %w", err)
	}

	for _, ch := range challenges {
		sent, err := d.processChallenge(ctx, ch, now)
		report.Processed++
		report.Sent += sent
		if err != nil {
			report.Errors = append(report.Errors, ChallengeError{ChallengeID: ch.ID, Err: err})
			d.logger.Error("challenge tick failed", "challengeId", ch.ID, "error", err)
		}
	}

	d.logger.Info("tick complete", "processed", report.Processed, "sent", report.Sent, "errors", len(report.Errors))
	return report, nil
}

func (d *Dispatcher) processChallenge(ctx context.Context, ch *challenge.Challenge, now time.Time) (sent int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	if ch.StartDate.IsZero() {
		return 0, fmt.Errorf("challenge has no usable start date")
	}

	localNow := now.In(d.loc)
	today := challenge.TruncateToDay(localNow)

	uploads, err := d.store.ListUploads(ctx, ch.ID)
	if err != nil {
		return 0, fmt.Errorf("list uploads: %w", err)
	}
	pending, err := d.store.CountPendingApprovals(ctx, ch.ID)
	if err != nil {
		return 0, fmt.Errorf("count pending approvals: %w", err)
	}

	in := RuleInput{
		Challenge:        ch,
		Uploads:          uploads,
		PendingApprovals: pending,
		Today:            today,
		Now:              localNow,
		Tolerance:        d.tolerance,
	}

	decisions := []Decision{
		EvaluateFirstDay(in),
		EvaluateMissingUpload(in),
		EvaluateTwoPending(in),
	}

	var errs []error
	for _, decision := range decisions {
		ok, err := d.dispatch(ctx, ch, decision)
		if err != nil {
			// One failed rule must not mask the others for this challenge.
			errs = append(errs, err)
			continue
		}
		if ok {
			sent++
		}
	}
	return sent, errors.Join(errs...)
}

// HandleUploadCreated runs the two event-triggered rules for a newly created
// upload. Business errors are logged and swallowed so the store's own
// retry-on-failure semantics are not retriggered; only context-level errors
// propagate.
func (d *Dispatcher) HandleUploadCreated(ctx context.Context, upload *challenge.DailyUpload) error {
	ch, err := d.store.GetChallenge(ctx, upload.ChallengeID)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		d.logger.Error("upload event: challenge lookup failed", "challengeId", upload.ChallengeID, "error", err)
		return nil
	}
	if !ch.IsActive {
		return nil
	}

	uploads, err := d.store.ListUploads(ctx, ch.ID)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		d.logger.Error("upload event: list uploads failed", "challengeId", ch.ID, "error", err)
		return nil
	}

	in := RuleInput{
		Challenge: ch,
		Uploads:   uploads,
		Today:     challenge.TruncateToDay(upload.UploadedAt.In(d.loc)),
		Now:       upload.UploadedAt.In(d.loc),
		Tolerance: d.tolerance,
	}

	decision := EvaluateFirstUpload(in, upload, d.strategy)
	if _, err := d.dispatch(ctx, ch, decision); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		d.logger.Error("upload event: dispatch failed", "challengeId", ch.ID, "type", decision.Type, "error", err)
	}
	return nil
}

// dispatch wraps one eligible decision with the idempotency ledger. The
// recipient and message are resolved before the claim, so a dangling parent
// or child reference never burns a flag without a send. Then claim (so
// overlapping invocations cannot double-send), then send. If the send fails,
// recurring claims are released so a later tick retries; one-shot claims stay
// set and the send is lost. There is no retry within the same tick, and
// event-triggered sends have no retry at all - "retry on next upload" never
// happens because there is only one first upload.
func (d *Dispatcher) dispatch(ctx context.Context, ch *challenge.Challenge, decision Decision) (bool, error) {
	if !decision.Send {
		return false, nil
	}

	to, msg, err := d.compose(ctx, ch, decision)
	if err != nil {
		return false, err
	}

	claimed, err := d.store.TryClaimNotification(ctx, ch.ID, decision.LedgerKey)
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", decision.LedgerKey, err)
	}
	if !claimed {
		return false, nil
	}

	if err := d.mailer.Send(ctx, to, msg.Subject, msg.HTMLBody, msg.TextBody); err != nil {
		if decision.Recurring {
			if releaseErr := d.store.ReleaseNotificationClaim(ctx, ch.ID, decision.LedgerKey); releaseErr != nil {
				d.logger.Error("release claim failed", "challengeId", ch.ID, "key", decision.LedgerKey, "error", releaseErr)
			}
		} else {
			d.logger.Error("one-shot send lost", "challengeId", ch.ID, "type", decision.Type, "error", err)
		}
		return false, fmt.Errorf("send %s: %w", decision.Type, err)
	}

	d.logger.Info("notification sent", "challengeId", ch.ID, "type", decision.Type, "variant", decision.VariantKey)
	return true, nil
}

// compose resolves the recipient and renders the decision's message variant.
func (d *Dispatcher) compose(ctx context.Context, ch *challenge.Challenge, decision Decision) (string, Message, error) {
	parent, err := d.store.GetParent(ctx, ch.ParentID)
	if err != nil {
		return "", Message{}, fmt.Errorf("parent %s: %w", ch.ParentID, err)
	}
	child, err := d.store.GetChild(ctx, ch.ChildID)
	if err != nil {
		return "", Message{}, fmt.Errorf("child %s: %w", ch.ChildID, err)
	}

	url := ""
	if d.urls != nil {
		url, err = d.urls.GenerateUploadURL(ch.ParentID, ch.ChildID, ch.ID)
		if err != nil {
			return "", Message{}, fmt.Errorf("generate upload url: %w", err)
		}
	}

	msg, err := BuildMessage(decision.VariantKey, parent, child, url)
	if err != nil {
		return "", Message{}, err
	}
	return parent.Email, msg, nil
}
