package challenge

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// Service implements the challenge and upload operations around the
// day-status engine and earnings calculator.
type Service struct {
	repo   Repository
	clock  Clock
	ids    IDGenerator
	loc    *time.Location
	events UploadEventHandler
	logger *slog.Logger
}

// NewService wires the challenge service. loc is the time zone challenge
// days are evaluated in; pass nil for UTC.
func NewService(repo Repository, clock Clock, ids IDGenerator, loc *time.Location, logger *slog.Logger) (*Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("repository is required")
	}
	if clock == nil {
		clock = NewSystemClock()
	}
	if ids == nil {
		ids = NewUUIDGenerator()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Service{repo: repo, clock: clock, ids: ids, loc: loc, logger: logger}, nil
}

// SetUploadEventHandler injects the upload-created hook. Optional; without it
// event-triggered notifications simply never fire.
func (s *Service) SetUploadEventHandler(h UploadEventHandler) {
	s.events = h
}

func (s *Service) today() time.Time {
	return TruncateToDay(s.clock.Now().In(s.loc))
}

// CreateChallenge sets up a new challenge, enforcing at most one active
// challenge per parent/child pair.
func (s *Service) CreateChallenge(ctx context.Context, input CreateChallengeInput) (*Challenge, error) {
	if input.ParentID == "" || input.ChildID == "" {
		return nil, fmt.Errorf("%w: parent and child ids are required", ErrInvalidInput)
	}
	if input.DailyBudget <= 0 {
		return nil, fmt.Errorf("%w: daily budget must be positive", ErrInvalidInput)
	}
	if input.StartDate.IsZero() {
		return nil, fmt.Errorf("%w: start date is required", ErrInvalidInput)
	}

	existing, err := s.repo.GetActiveChallenge(ctx, input.ParentID, input.ChildID)
	if err != nil && err != ErrNotFound {
		return nil, fmt.Errorf("check active challenge: %w", err)
	}
	if existing != nil {
		return nil, ErrActiveChallengeExists
	}

	now := s.clock.Now().UTC()
	ch := &Challenge{
		ID:                  s.ids.NewID(),
		ParentID:            input.ParentID,
		ChildID:             input.ChildID,
		StartDate:           TruncateToDay(input.StartDate.In(s.loc)),
		DailyBudget:         input.DailyBudget,
		DailyScreenTimeGoal: input.DailyScreenTimeGoal,
		IsActive:            true,
		NotificationsSent:   map[string]bool{},
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	if err := s.repo.CreateChallenge(ctx, ch); err != nil {
		return nil, fmt.Errorf("create challenge: %w", err)
	}
	return ch, nil
}

// GetChallenge returns the stored challenge document.
func (s *Service) GetChallenge(ctx context.Context, id string) (*Challenge, error) {
	return s.repo.GetChallenge(ctx, id)
}

// GetUpload returns a single stored upload.
func (s *Service) GetUpload(ctx context.Context, id string) (*DailyUpload, error) {
	return s.repo.GetUpload(ctx, id)
}

// GetWeekView recomputes the 7-day projection from the challenge and its uploads.
func (s *Service) GetWeekView(ctx context.Context, challengeID string) (*WeekView, error) {
	var (
		ch      *Challenge
		uploads []*DailyUpload
	)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		c, err := s.repo.GetChallenge(ctx, challengeID)
		if err != nil {
			return err
		}
		ch = c
		return nil
	})

	g.Go(func() error {
		u, err := s.repo.ListUploads(ctx, challengeID)
		if err != nil {
			return err
		}
		uploads = u
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	view := BuildWeek(ch, uploads, s.today())
	return &view, nil
}

// CreateUpload records a child's daily report, computes its earnings, and
// fires the upload-created notification rules.
func (s *Service) CreateUpload(ctx context.Context, input CreateUploadInput) (*DailyUpload, error) {
	ch, err := s.repo.GetChallenge(ctx, input.ChallengeID)
	if err != nil {
		return nil, err
	}
	if !ch.IsActive {
		return nil, ErrChallengeInactive
	}

	date := TruncateToDay(input.Date.In(s.loc))
	start := TruncateToDay(ch.StartDate)
	if date.Before(start) || date.After(ch.RedemptionDate()) {
		return nil, fmt.Errorf("%w: date %s is outside the challenge week", ErrInvalidInput, date.Format("2006-01-02"))
	}

	existing, err := s.repo.ListUploads(ctx, input.ChallengeID)
	if err != nil {
		return nil, fmt.Errorf("list uploads: %w", err)
	}
	if firstUploadForDate(existing, date) != nil {
		return nil, ErrConflict
	}

	usedHours := MinutesToHours(input.ScreenTimeMinutes)
	coins, success, err := ComputeEarnings(usedHours, ch.DailyScreenTimeGoal, ch.DailyBudget)
	if err == ErrGoalNotConfigured {
		// Misconfigured goal: record the upload, earn nothing.
		coins, success = 0, false
	} else if err != nil {
		return nil, err
	}

	upload := &DailyUpload{
		ID:                s.ids.NewID(),
		ChallengeID:       ch.ID,
		ParentID:          ch.ParentID,
		ChildID:           ch.ChildID,
		Date:              date,
		UploadedAt:        s.clock.Now().UTC(),
		ScreenTimeUsed:    usedHours,
		ScreenTimeMinutes: input.ScreenTimeMinutes,
		ScreenTimeGoal:    ch.DailyScreenTimeGoal,
		CoinsEarned:       coins,
		CoinsMaxPossible:  ch.DailyBudget,
		Success:           success,
		RequiresApproval:  true,
		ParentAction:      ParentActionNone,
		Screenshot:        input.Screenshot,
	}

	if err := s.repo.CreateUpload(ctx, upload); err != nil {
		return nil, fmt.Errorf("create upload: %w", err)
	}

	if s.events != nil {
		// Business failures inside the notification path never fail the upload.
		if err := s.events.HandleUploadCreated(ctx, upload); err != nil && s.logger != nil {
			s.logger.Error("upload-created notifications failed", "uploadId", upload.ID, "error", err)
		}
	}

	return upload, nil
}

// ApproveDay marks a pending upload approved. The transition happens once.
func (s *Service) ApproveDay(ctx context.Context, uploadID string) (*DailyUpload, error) {
	return s.decide(ctx, uploadID, ParentActionApproved)
}

// RejectDay marks a pending upload rejected. Rejection is terminal.
func (s *Service) RejectDay(ctx context.Context, uploadID string) (*DailyUpload, error) {
	return s.decide(ctx, uploadID, ParentActionRejected)
}

func (s *Service) decide(ctx context.Context, uploadID string, action ParentAction) (*DailyUpload, error) {
	upload, err := s.repo.GetUpload(ctx, uploadID)
	if err != nil {
		return nil, err
	}
	if upload.ParentAction != ParentActionNone {
		return nil, ErrAlreadyDecided
	}

	if err := s.repo.SetParentAction(ctx, uploadID, action, s.clock.Now().UTC()); err != nil {
		return nil, fmt.Errorf("set parent action: %w", err)
	}

	upload.ParentAction = action
	upload.RequiresApproval = false
	return upload, nil
}

// OverrideUpload lets an operator correct the reported screen time before
// approval; earnings are recomputed from the challenge's goal and budget.
func (s *Service) OverrideUpload(ctx context.Context, uploadID string, input OverrideUploadInput) (*DailyUpload, error) {
	upload, err := s.repo.GetUpload(ctx, uploadID)
	if err != nil {
		return nil, err
	}
	if upload.ParentAction != ParentActionNone {
		return nil, ErrAlreadyDecided
	}
	if input.ScreenTimeMinutes < 0 {
		return nil, fmt.Errorf("%w: screen time minutes must not be negative", ErrInvalidInput)
	}

	hours := MinutesToHours(input.ScreenTimeMinutes)
	coins, success, err := ComputeEarnings(hours, upload.ScreenTimeGoal, upload.CoinsMaxPossible)
	if err == ErrGoalNotConfigured {
		coins, success = 0, false
	} else if err != nil {
		return nil, err
	}

	if err := s.repo.OverrideUpload(ctx, uploadID, input.ScreenTimeMinutes, hours, coins, success); err != nil {
		return nil, fmt.Errorf("override upload: %w", err)
	}

	upload.ScreenTimeMinutes = input.ScreenTimeMinutes
	upload.ScreenTimeUsed = hours
	upload.CoinsEarned = coins
	upload.Success = success
	return upload, nil
}

// RedeemChallenge deactivates the challenge on (or after) its redemption day.
// Deactivation is terminal: no further notifications are evaluated for it.
func (s *Service) RedeemChallenge(ctx context.Context, challengeID string) (*Challenge, error) {
	ch, err := s.repo.GetChallenge(ctx, challengeID)
	if err != nil {
		return nil, err
	}
	if !ch.IsActive {
		return nil, ErrChallengeInactive
	}
	if s.today().Before(ch.RedemptionDate()) {
		return nil, ErrNotRedemptionDay
	}

	if err := s.repo.DeactivateChallenge(ctx, challengeID, s.clock.Now().UTC()); err != nil {
		return nil, fmt.Errorf("deactivate challenge: %w", err)
	}

	ch.IsActive = false
	return ch, nil
}
