package notify

import (
	"time"

	"github.com/DanaFrie/POC-Joystie-sub000/internal/challenge"
)

// Type names the five notification rules. The names double as idempotency
// ledger keys on the challenge document.
type Type string

const (
	TypeFirstDay           Type = "first_day"
	TypeMissingUpload      Type = "missing_upload"
	TypeTwoPending         Type = "two_pending"
	TypeFirstUploadSuccess Type = "first_upload_success"
	TypeFirstUploadFailure Type = "first_upload_failure"
)

// FirstUploadStrategy resolves the open product decision on what "first
// upload" means for the event-triggered rules. Positional requires the new
// upload to be the only one for the challenge; FlagGated relies solely on the
// sent flag, so a rejected-then-reuploaded day can still count as first.
type FirstUploadStrategy string

const (
	FirstUploadFlagGated  FirstUploadStrategy = "flag_gated"
	FirstUploadPositional FirstUploadStrategy = "positional"
)

// TargetTime is a minute-of-day the scheduler aims for. Ticks are coarse
// (every 5 minutes), so rules match a window [target, target+tolerance]
// instead of the exact minute; a late tick still fires.
type TargetTime struct {
	Hour   int
	Minute int
}

// InWindow reports whether now (in the challenge's time zone) falls within
// the target window.
func (t TargetTime) InWindow(now time.Time, tolerance time.Duration) bool {
	minuteOfDay := now.Hour()*60 + now.Minute()
	target := t.Hour*60 + t.Minute
	return minuteOfDay >= target && minuteOfDay <= target+int(tolerance/time.Minute)
}

var (
	targetFirstDay      = TargetTime{Hour: 7, Minute: 8}
	targetMissingUpload = TargetTime{Hour: 7, Minute: 7}
	targetTwoPending    = TargetTime{Hour: 20, Minute: 48}
)

// missingUploadDays are the challenge days on which the missing-upload nudge
// is sent, each with its own message variant.
var missingUploadDays = map[int]bool{3: true, 4: true, 6: true, 7: true}

// RuleInput carries everything a rule evaluator may inspect. Today and Now
// are already converted to the challenge's time zone.
type RuleInput struct {
	Challenge        *challenge.Challenge
	Uploads          []*challenge.DailyUpload
	PendingApprovals int
	Today            time.Time
	Now              time.Time
	Tolerance        time.Duration
}

// Decision is a send-or-skip verdict plus the keys the coordinator needs:
// LedgerKey gates idempotency, VariantKey selects the message.
type Decision struct {
	Send       bool
	Type       Type
	LedgerKey  string
	VariantKey string
	// Recurring marks rules whose claim may be released after a transport
	// failure so the next qualifying tick retries.
	Recurring bool
}

func skip(t Type) Decision {
	return Decision{Type: t}
}

// EvaluateFirstDay fires once, on the morning the challenge starts.
func EvaluateFirstDay(in RuleInput) Decision {
	if !targetFirstDay.InWindow(in.Now, in.Tolerance) {
		return skip(TypeFirstDay)
	}
	if !challenge.SameDay(in.Challenge.StartDate, in.Today) {
		return skip(TypeFirstDay)
	}
	return Decision{
		Send:       true,
		Type:       TypeFirstDay,
		LedgerKey:  string(TypeFirstDay),
		VariantKey: string(TypeFirstDay),
	}
}

// EvaluateMissingUpload nudges the parent while the challenge has no uploads
// at all. It is re-evaluated daily (days 3, 4, 6 and 7) until the first
// upload exists, with a per-day message variant and a per-day ledger key.
func EvaluateMissingUpload(in RuleInput) Decision {
	if !targetMissingUpload.InWindow(in.Now, in.Tolerance) {
		return skip(TypeMissingUpload)
	}
	if len(in.Uploads) > 0 {
		return skip(TypeMissingUpload)
	}
	if in.Challenge.NotificationSent(string(TypeFirstUploadSuccess)) ||
		in.Challenge.NotificationSent(string(TypeFirstUploadFailure)) {
		return skip(TypeMissingUpload)
	}

	day := in.Challenge.Day(in.Today)
	if !missingUploadDays[day] {
		return skip(TypeMissingUpload)
	}

	key := missingUploadVariant(day)
	return Decision{
		Send:       true,
		Type:       TypeMissingUpload,
		LedgerKey:  key,
		VariantKey: key,
		Recurring:  true,
	}
}

// EvaluateTwoPending fires once per challenge, in the evening, when at least
// two uploads are waiting for the parent's approval.
func EvaluateTwoPending(in RuleInput) Decision {
	if !targetTwoPending.InWindow(in.Now, in.Tolerance) {
		return skip(TypeTwoPending)
	}
	if in.PendingApprovals < 2 {
		return skip(TypeTwoPending)
	}
	return Decision{
		Send:       true,
		Type:       TypeTwoPending,
		LedgerKey:  string(TypeTwoPending),
		VariantKey: string(TypeTwoPending),
	}
}

// EvaluateFirstUpload handles the two event-triggered rules for a newly
// created upload. in.Uploads must include the new upload itself.
func EvaluateFirstUpload(in RuleInput, upload *challenge.DailyUpload, strategy FirstUploadStrategy) Decision {
	t := TypeFirstUploadFailure
	if upload.Success {
		t = TypeFirstUploadSuccess
	}

	if strategy == FirstUploadPositional && len(in.Uploads) > 1 {
		return skip(t)
	}
	if in.Challenge.NotificationSent(string(t)) {
		return skip(t)
	}

	return Decision{
		Send:       true,
		Type:       t,
		LedgerKey:  string(t),
		VariantKey: string(t),
	}
}

func missingUploadVariant(day int) string {
	switch day {
	case 3:
		return "missing_upload_day_3"
	case 4:
		return "missing_upload_day_4"
	case 6:
		return "missing_upload_day_6"
	default:
		return "missing_upload_day_7"
	}
}
