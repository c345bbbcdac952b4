package challenge

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

type fixedClock struct {
	now time.Time
}

func (c *fixedClock) Now() time.Time { return c.now }

type seqIDs struct {
	n int
}

func (g *seqIDs) NewID() string {
	g.n++
	return fmt.Sprintf("id-%d", g.n)
}

type captureEvents struct {
	uploads []*DailyUpload
	err     error
}

func (c *captureEvents) HandleUploadCreated(_ context.Context, upload *DailyUpload) error {
	c.uploads = append(c.uploads, upload)
	return c.err
}

func newTestService(t *testing.T, clock *fixedClock) (*Service, Repository) {
	t.Helper()
	repo := NewMemoryRepository()
	svc, err := NewService(repo, clock, &seqIDs{}, time.UTC, nil)
	if err != nil {
		t.Fatalf("NewService returned error: %v", err)
	}
	return svc, repo
}

func TestCreateChallenge_SingleActivePerPair(t *testing.T) {
	clock := &fixedClock{now: day(2024, 3, 1)}
	svc, _ := newTestService(t, clock)

	input := CreateChallengeInput{
		ParentID:            "parent-1",
		ChildID:             "child-1",
		StartDate:           day(2024, 3, 3),
		DailyBudget:         10,
		DailyScreenTimeGoal: 3,
	}

	ch, err := svc.CreateChallenge(context.Background(), input)
	if err != nil {
		t.Fatalf("CreateChallenge returned error: %v", err)
	}
	if !ch.IsActive {
		t.Fatalf("expected new challenge to be active")
	}

	if _, err := svc.CreateChallenge(context.Background(), input); !errors.Is(err, ErrActiveChallengeExists) {
		t.Fatalf("expected ErrActiveChallengeExists, got %v", err)
	}
}

func TestCreateChallenge_RejectsBadInput(t *testing.T) {
	clock := &fixedClock{now: day(2024, 3, 1)}
	svc, _ := newTestService(t, clock)

	cases := []CreateChallengeInput{
		{ChildID: "child-1", StartDate: day(2024, 3, 3), DailyBudget: 10},
		{ParentID: "parent-1", ChildID: "child-1", StartDate: day(2024, 3, 3), DailyBudget: 0},
		{ParentID: "parent-1", ChildID: "child-1", DailyBudget: 10},
	}
	for i, input := range cases {
		if _, err := svc.CreateChallenge(context.Background(), input); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("case %d: expected ErrInvalidInput, got %v", i, err)
		}
	}
}

func TestCreateUpload_ComputesEarningsAndFiresEvent(t *testing.T) {
	clock := &fixedClock{now: day(2024, 3, 3).Add(19 * time.Hour)}
	svc, _ := newTestService(t, clock)
	events := &captureEvents{}
	svc.SetUploadEventHandler(events)

	ch, err := svc.CreateChallenge(context.Background(), CreateChallengeInput{
		ParentID:            "parent-1",
		ChildID:             "child-1",
		StartDate:           day(2024, 3, 3),
		DailyBudget:         12.9,
		DailyScreenTimeGoal: 3,
	})
	if err != nil {
		t.Fatalf("CreateChallenge returned error: %v", err)
	}

	upload, err := svc.CreateUpload(context.Background(), CreateUploadInput{
		ChallengeID:       ch.ID,
		Date:              day(2024, 3, 3),
		ScreenTimeMinutes: 240,
	})
	if err != nil {
		t.Fatalf("CreateUpload returned error: %v", err)
	}

	if upload.ScreenTimeUsed != 4 {
		t.Fatalf("expected 4h used, got %v", upload.ScreenTimeUsed)
	}
	if upload.CoinsEarned != 8.6 || upload.Success {
		t.Fatalf("expected 8.6 coins without success, got %v success=%v", upload.CoinsEarned, upload.Success)
	}
	if !upload.RequiresApproval {
		t.Fatalf("expected the upload to require approval")
	}
	if len(events.uploads) != 1 || events.uploads[0].ID != upload.ID {
		t.Fatalf("expected the upload-created event to fire once")
	}
}

func TestCreateUpload_DuplicateDateConflicts(t *testing.T) {
	clock := &fixedClock{now: day(2024, 3, 3).Add(19 * time.Hour)}
	svc, _ := newTestService(t, clock)

	ch, err := svc.CreateChallenge(context.Background(), CreateChallengeInput{
		ParentID: "parent-1", ChildID: "child-1",
		StartDate: day(2024, 3, 3), DailyBudget: 10, DailyScreenTimeGoal: 3,
	})
	if err != nil {
		t.Fatalf("CreateChallenge returned error: %v", err)
	}

	input := CreateUploadInput{ChallengeID: ch.ID, Date: day(2024, 3, 3), ScreenTimeMinutes: 60}
	if _, err := svc.CreateUpload(context.Background(), input); err != nil {
		t.Fatalf("first upload returned error: %v", err)
	}
	if _, err := svc.CreateUpload(context.Background(), input); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict for duplicate date, got %v", err)
	}
}

func TestCreateUpload_DateOutsideWeek(t *testing.T) {
	clock := &fixedClock{now: day(2024, 3, 3)}
	svc, _ := newTestService(t, clock)

	ch, err := svc.CreateChallenge(context.Background(), CreateChallengeInput{
		ParentID: "parent-1", ChildID: "child-1",
		StartDate: day(2024, 3, 3), DailyBudget: 10, DailyScreenTimeGoal: 3,
	})
	if err != nil {
		t.Fatalf("CreateChallenge returned error: %v", err)
	}

	for _, date := range []time.Time{day(2024, 3, 2), day(2024, 3, 10)} {
		_, err := svc.CreateUpload(context.Background(), CreateUploadInput{
			ChallengeID: ch.ID, Date: date, ScreenTimeMinutes: 60,
		})
		if !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("expected ErrInvalidInput for %s, got %v", date.Format("2006-01-02"), err)
		}
	}
}

func TestCreateUpload_ZeroGoalEarnsNothing(t *testing.T) {
	clock := &fixedClock{now: day(2024, 3, 3)}
	svc, _ := newTestService(t, clock)

	ch, err := svc.CreateChallenge(context.Background(), CreateChallengeInput{
		ParentID: "parent-1", ChildID: "child-1",
		StartDate: day(2024, 3, 3), DailyBudget: 10, DailyScreenTimeGoal: 0,
	})
	if err != nil {
		t.Fatalf("CreateChallenge returned error: %v", err)
	}

	upload, err := svc.CreateUpload(context.Background(), CreateUploadInput{
		ChallengeID: ch.ID, Date: day(2024, 3, 3), ScreenTimeMinutes: 30,
	})
	if err != nil {
		t.Fatalf("CreateUpload returned error: %v", err)
	}
	if upload.CoinsEarned != 0 || upload.Success {
		t.Fatalf("expected zero coins without success, got %v success=%v", upload.CoinsEarned, upload.Success)
	}
}

func TestApproveAndReject_TransitionHappensOnce(t *testing.T) {
	clock := &fixedClock{now: day(2024, 3, 3)}
	svc, _ := newTestService(t, clock)

	ch, err := svc.CreateChallenge(context.Background(), CreateChallengeInput{
		ParentID: "parent-1", ChildID: "child-1",
		StartDate: day(2024, 3, 3), DailyBudget: 10, DailyScreenTimeGoal: 3,
	})
	if err != nil {
		t.Fatalf("CreateChallenge returned error: %v", err)
	}
	upload, err := svc.CreateUpload(context.Background(), CreateUploadInput{
		ChallengeID: ch.ID, Date: day(2024, 3, 3), ScreenTimeMinutes: 60,
	})
	if err != nil {
		t.Fatalf("CreateUpload returned error: %v", err)
	}

	approved, err := svc.ApproveDay(context.Background(), upload.ID)
	if err != nil {
		t.Fatalf("ApproveDay returned error: %v", err)
	}
	if approved.ParentAction != ParentActionApproved || approved.RequiresApproval {
		t.Fatalf("expected approved upload, got %+v", approved)
	}

	if _, err := svc.RejectDay(context.Background(), upload.ID); !errors.Is(err, ErrAlreadyDecided) {
		t.Fatalf("expected ErrAlreadyDecided, got %v", err)
	}
	if _, err := svc.ApproveDay(context.Background(), upload.ID); !errors.Is(err, ErrAlreadyDecided) {
		t.Fatalf("expected ErrAlreadyDecided on re-approve, got %v", err)
	}
}

func TestOverrideUpload_RecomputesBeforeDecision(t *testing.T) {
	clock := &fixedClock{now: day(2024, 3, 3)}
	svc, _ := newTestService(t, clock)

	ch, err := svc.CreateChallenge(context.Background(), CreateChallengeInput{
		ParentID: "parent-1", ChildID: "child-1",
		StartDate: day(2024, 3, 3), DailyBudget: 12.9, DailyScreenTimeGoal: 3,
	})
	if err != nil {
		t.Fatalf("CreateChallenge returned error: %v", err)
	}
	upload, err := svc.CreateUpload(context.Background(), CreateUploadInput{
		ChallengeID: ch.ID, Date: day(2024, 3, 3), ScreenTimeMinutes: 240,
	})
	if err != nil {
		t.Fatalf("CreateUpload returned error: %v", err)
	}

	fixed, err := svc.OverrideUpload(context.Background(), upload.ID, OverrideUploadInput{ScreenTimeMinutes: 120})
	if err != nil {
		t.Fatalf("OverrideUpload returned error: %v", err)
	}
	if fixed.ScreenTimeMinutes != 120 || fixed.ScreenTimeUsed != 2 {
		t.Fatalf("expected corrected screen time, got %+v", fixed)
	}
	if fixed.CoinsEarned != 12.9 || !fixed.Success {
		t.Fatalf("expected full budget after correction, got %v success=%v", fixed.CoinsEarned, fixed.Success)
	}

	if _, err := svc.ApproveDay(context.Background(), upload.ID); err != nil {
		t.Fatalf("ApproveDay returned error: %v", err)
	}
	if _, err := svc.OverrideUpload(context.Background(), upload.ID, OverrideUploadInput{ScreenTimeMinutes: 30}); !errors.Is(err, ErrAlreadyDecided) {
		t.Fatalf("expected ErrAlreadyDecided after approval, got %v", err)
	}
}

func TestRedeemChallenge_OnlyOnRedemptionDay(t *testing.T) {
	clock := &fixedClock{now: day(2024, 3, 4)}
	svc, _ := newTestService(t, clock)

	ch, err := svc.CreateChallenge(context.Background(), CreateChallengeInput{
		ParentID: "parent-1", ChildID: "child-1",
		StartDate: day(2024, 3, 3), DailyBudget: 10, DailyScreenTimeGoal: 3,
	})
	if err != nil {
		t.Fatalf("CreateChallenge returned error: %v", err)
	}

	if _, err := svc.RedeemChallenge(context.Background(), ch.ID); !errors.Is(err, ErrNotRedemptionDay) {
		t.Fatalf("expected ErrNotRedemptionDay, got %v", err)
	}

	clock.now = day(2024, 3, 9)
	redeemed, err := svc.RedeemChallenge(context.Background(), ch.ID)
	if err != nil {
		t.Fatalf("RedeemChallenge returned error: %v", err)
	}
	if redeemed.IsActive {
		t.Fatalf("expected challenge to be deactivated after redemption")
	}

	if _, err := svc.RedeemChallenge(context.Background(), ch.ID); !errors.Is(err, ErrChallengeInactive) {
		t.Fatalf("expected ErrChallengeInactive on second redeem, got %v", err)
	}
}

func TestGetWeekView_ProjectsChallenge(t *testing.T) {
	clock := &fixedClock{now: day(2024, 3, 5)}
	svc, _ := newTestService(t, clock)

	ch, err := svc.CreateChallenge(context.Background(), CreateChallengeInput{
		ParentID: "parent-1", ChildID: "child-1",
		StartDate: day(2024, 3, 3), DailyBudget: 10, DailyScreenTimeGoal: 3,
	})
	if err != nil {
		t.Fatalf("CreateChallenge returned error: %v", err)
	}
	if _, err := svc.CreateUpload(context.Background(), CreateUploadInput{
		ChallengeID: ch.ID, Date: day(2024, 3, 3), ScreenTimeMinutes: 120,
	}); err != nil {
		t.Fatalf("CreateUpload returned error: %v", err)
	}

	view, err := svc.GetWeekView(context.Background(), ch.ID)
	if err != nil {
		t.Fatalf("GetWeekView returned error: %v", err)
	}
	if view.ChallengeID != ch.ID || len(view.Days) != WeekLength {
		t.Fatalf("unexpected week view: %+v", view)
	}
	if view.Days[0].Status != StatusAwaitingApproval {
		t.Fatalf("expected day 1 awaiting approval, got %s", view.Days[0].Status)
	}
	if view.Days[2].Status != StatusMissing {
		t.Fatalf("expected day 3 missing, got %s", view.Days[2].Status)
	}

	if _, err := svc.GetWeekView(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
