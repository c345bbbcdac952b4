package notify

import (
	"testing"
	"time"

	"github.com/DanaFrie/POC-Joystie-sub000/internal/challenge"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func at(base time.Time, hour, minute int) time.Time {
	return time.Date(base.Year(), base.Month(), base.Day(), hour, minute, 0, 0, base.Location())
}

func testChallenge(start time.Time) *challenge.Challenge {
	return &challenge.Challenge{
		ID:                "ch-1",
		ParentID:          "parent-1",
		ChildID:           "child-1",
		StartDate:         start,
		DailyBudget:       10,
		IsActive:          true,
		NotificationsSent: map[string]bool{},
	}
}

func TestTargetTimeInWindow(t *testing.T) {
	target := TargetTime{Hour: 7, Minute: 8}
	base := day(2024, 3, 3)
	tolerance := 5 * time.Minute

	cases := []struct {
		hour, minute int
		want         bool
	}{
		{7, 7, false},
		{7, 8, true},
		{7, 10, true},
		{7, 13, true},
		{7, 14, false},
		{19, 8, false},
	}
	for _, tc := range cases {
		now := at(base, tc.hour, tc.minute)
		if got := target.InWindow(now, tolerance); got != tc.want {
			t.Fatalf("InWindow(%02d:%02d) = %v, want %v", tc.hour, tc.minute, got, tc.want)
		}
	}
}

func TestEvaluateFirstDay(t *testing.T) {
	start := day(2024, 3, 3)
	ch := testChallenge(start)

	in := RuleInput{
		Challenge: ch,
		Today:     start,
		Now:       at(start, 7, 8),
		Tolerance: 5 * time.Minute,
	}
	decision := EvaluateFirstDay(in)
	if !decision.Send {
		t.Fatalf("expected first_day to fire on the start morning")
	}
	if decision.LedgerKey != "first_day" || decision.Recurring {
		t.Fatalf("unexpected decision: %+v", decision)
	}

	// Late tick inside the window still fires.
	in.Now = at(start, 7, 12)
	if !EvaluateFirstDay(in).Send {
		t.Fatalf("expected a late tick within tolerance to fire")
	}

	// Wrong time of day.
	in.Now = at(start, 9, 0)
	if EvaluateFirstDay(in).Send {
		t.Fatalf("expected no send outside the window")
	}

	// Wrong day.
	in.Today = start.AddDate(0, 0, 1)
	in.Now = at(in.Today, 7, 8)
	if EvaluateFirstDay(in).Send {
		t.Fatalf("expected no send after the first day")
	}
}

func TestEvaluateMissingUpload_PerDayVariants(t *testing.T) {
	start := day(2024, 3, 3)
	ch := testChallenge(start)

	wantByDay := map[int]string{
		3: "missing_upload_day_3",
		4: "missing_upload_day_4",
		6: "missing_upload_day_6",
		7: "missing_upload_day_7",
	}

	for dayNum := 1; dayNum <= 7; dayNum++ {
		today := start.AddDate(0, 0, dayNum-1)
		in := RuleInput{
			Challenge: ch,
			Today:     today,
			Now:       at(today, 7, 7),
			Tolerance: 5 * time.Minute,
		}
		decision := EvaluateMissingUpload(in)

		want, shouldFire := wantByDay[dayNum]
		if decision.Send != shouldFire {
			t.Fatalf("day %d: Send = %v, want %v", dayNum, decision.Send, shouldFire)
		}
		if shouldFire {
			if decision.LedgerKey != want || decision.VariantKey != want {
				t.Fatalf("day %d: expected variant %s, got %+v", dayNum, want, decision)
			}
			if !decision.Recurring {
				t.Fatalf("day %d: missing_upload must be recurring", dayNum)
			}
		}
	}
}

func TestEvaluateMissingUpload_SilencedConditions(t *testing.T) {
	start := day(2024, 3, 3)
	today := start.AddDate(0, 0, 2) // day 3
	base := RuleInput{
		Challenge: testChallenge(start),
		Today:     today,
		Now:       at(today, 7, 7),
		Tolerance: 5 * time.Minute,
	}

	// Any upload silences the nudge.
	in := base
	in.Uploads = []*challenge.DailyUpload{{ID: "u-1"}}
	if EvaluateMissingUpload(in).Send {
		t.Fatalf("expected no nudge once an upload exists")
	}

	// A recorded first-upload notification silences it too.
	in = base
	in.Challenge = testChallenge(start)
	in.Challenge.NotificationsSent["first_upload_success"] = true
	if EvaluateMissingUpload(in).Send {
		t.Fatalf("expected no nudge after first_upload_success was sent")
	}

	// Outside the morning window.
	in = base
	in.Now = at(today, 12, 0)
	if EvaluateMissingUpload(in).Send {
		t.Fatalf("expected no nudge outside the window")
	}
}

func TestEvaluateTwoPending(t *testing.T) {
	start := day(2024, 3, 3)
	today := start.AddDate(0, 0, 2)
	in := RuleInput{
		Challenge:        testChallenge(start),
		PendingApprovals: 2,
		Today:            today,
		Now:              at(today, 20, 48),
		Tolerance:        5 * time.Minute,
	}

	decision := EvaluateTwoPending(in)
	if !decision.Send || decision.LedgerKey != "two_pending" {
		t.Fatalf("expected two_pending to fire, got %+v", decision)
	}

	in.PendingApprovals = 1
	if EvaluateTwoPending(in).Send {
		t.Fatalf("expected no send with a single pending approval")
	}

	in.PendingApprovals = 3
	in.Now = at(today, 20, 54)
	if EvaluateTwoPending(in).Send {
		t.Fatalf("expected no send outside the window")
	}
}

func TestEvaluateFirstUpload_TypeFollowsOutcome(t *testing.T) {
	start := day(2024, 3, 3)
	ch := testChallenge(start)
	upload := &challenge.DailyUpload{ID: "u-1", ChallengeID: ch.ID, Success: true}
	in := RuleInput{Challenge: ch, Uploads: []*challenge.DailyUpload{upload}, Today: start}

	decision := EvaluateFirstUpload(in, upload, FirstUploadFlagGated)
	if !decision.Send || decision.Type != TypeFirstUploadSuccess {
		t.Fatalf("expected first_upload_success, got %+v", decision)
	}

	upload.Success = false
	decision = EvaluateFirstUpload(in, upload, FirstUploadFlagGated)
	if !decision.Send || decision.Type != TypeFirstUploadFailure {
		t.Fatalf("expected first_upload_failure, got %+v", decision)
	}
}

func TestEvaluateFirstUpload_FlagGatedSkipsWhenAlreadySent(t *testing.T) {
	start := day(2024, 3, 3)
	ch := testChallenge(start)
	ch.NotificationsSent["first_upload_failure"] = true
	upload := &challenge.DailyUpload{ID: "u-2", ChallengeID: ch.ID}
	in := RuleInput{Challenge: ch, Uploads: []*challenge.DailyUpload{upload}, Today: start}

	if EvaluateFirstUpload(in, upload, FirstUploadFlagGated).Send {
		t.Fatalf("expected no send once the flag is set")
	}

	// The success flag does not block a failure notification.
	ch = testChallenge(start)
	ch.NotificationsSent["first_upload_success"] = true
	in.Challenge = ch
	if !EvaluateFirstUpload(in, upload, FirstUploadFlagGated).Send {
		t.Fatalf("expected the failure variant to send independently")
	}
}

func TestEvaluateFirstUpload_PositionalRequiresFirstPosition(t *testing.T) {
	start := day(2024, 3, 3)
	ch := testChallenge(start)
	second := &challenge.DailyUpload{ID: "u-2", ChallengeID: ch.ID}
	in := RuleInput{
		Challenge: ch,
		Uploads:   []*challenge.DailyUpload{{ID: "u-1"}, second},
		Today:     start,
	}

	if EvaluateFirstUpload(in, second, FirstUploadPositional).Send {
		t.Fatalf("expected positional strategy to skip a non-first upload")
	}

	in.Uploads = []*challenge.DailyUpload{second}
	if !EvaluateFirstUpload(in, second, FirstUploadPositional).Send {
		t.Fatalf("expected positional strategy to fire for the only upload")
	}
}
