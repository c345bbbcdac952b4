package challenge

import (
	"context"
	"time"
)

// WeekLength is the number of calendar days in a challenge window. The last
// day is the redemption day where accumulated coins are claimed.
const WeekLength = 7

// Status is the derived state of one calendar day within a challenge week.
type Status string

const (
	StatusFuture           Status = "future"
	StatusMissing          Status = "missing"
	StatusPending          Status = "pending"
	StatusAwaitingApproval Status = "awaiting_approval"
	StatusSuccess          Status = "success"
	StatusWarning          Status = "warning"
	StatusRejected         Status = "rejected"
	StatusRedemption       Status = "redemption"
)

// ParentAction records the single approval transition a parent may perform on an upload.
type ParentAction string

const (
	ParentActionNone     ParentAction = ""
	ParentActionApproved ParentAction = "approved"
	ParentActionRejected ParentAction = "rejected"
)

// Challenge is the persisted agreement between a parent and child: a daily
// screen-time goal, a daily budget, and a week of uploads to earn it.
type Challenge struct {
	ID                  string          `json:"id" firestore:"id"`
	ParentID            string          `json:"parent_id" firestore:"parent_id"`
	ChildID             string          `json:"child_id" firestore:"child_id"`
	StartDate           time.Time       `json:"start_date" firestore:"start_date"`
	DailyBudget         float64         `json:"daily_budget" firestore:"daily_budget"`
	DailyScreenTimeGoal float64         `json:"daily_screen_time_goal" firestore:"daily_screen_time_goal"`
	IsActive            bool            `json:"is_active" firestore:"is_active"`
	NotificationsSent   map[string]bool `json:"notifications_sent" firestore:"notifications_sent"`
	CreatedAt           time.Time       `json:"created_at" firestore:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at" firestore:"updated_at"`
}

// Day returns the 1-indexed challenge day for the given calendar day.
// Day 1 is the start date itself. Returns 0 when the challenge has not
// started or the start date is unusable. Days are counted on the calendar,
// so a DST transition inside the week does not shift the count.
func (c *Challenge) Day(today time.Time) int {
	if c.StartDate.IsZero() {
		return 0
	}
	sy, sm, sd := c.StartDate.Date()
	ty, tm, td := today.Date()
	start := time.Date(sy, sm, sd, 0, 0, 0, 0, time.UTC)
	day := time.Date(ty, tm, td, 0, 0, 0, 0, time.UTC)
	if day.Before(start) {
		return 0
	}
	return int(day.Sub(start).Hours()/24) + 1
}

// RedemptionDate is the final calendar day of the challenge week.
func (c *Challenge) RedemptionDate() time.Time {
	return TruncateToDay(c.StartDate).AddDate(0, 0, WeekLength-1)
}

// NotificationSent reports whether the idempotency flag for the given key is set.
func (c *Challenge) NotificationSent(key string) bool {
	if c.NotificationsSent == nil {
		return false
	}
	return c.NotificationsSent[key]
}

// Screenshot references the stored screen-time screenshot backing an upload.
type Screenshot struct {
	OriginalPath string `json:"original_path" firestore:"original_path"`
	OriginalURL  string `json:"original_url" firestore:"original_url"`
}

// DailyUpload is one child report of screen time against the daily goal.
// Date is the calendar day being reported, distinct from UploadedAt.
type DailyUpload struct {
	ID                string       `json:"id" firestore:"id"`
	ChallengeID       string       `json:"challenge_id" firestore:"challenge_id"`
	ParentID          string       `json:"parent_id" firestore:"parent_id"`
	ChildID           string       `json:"child_id" firestore:"child_id"`
	Date              time.Time    `json:"date" firestore:"date"`
	UploadedAt        time.Time    `json:"uploaded_at" firestore:"uploaded_at"`
	ScreenTimeUsed    float64      `json:"screen_time_used" firestore:"screen_time_used"`
	ScreenTimeMinutes int          `json:"screen_time_minutes" firestore:"screen_time_minutes"`
	ScreenTimeGoal    float64      `json:"screen_time_goal" firestore:"screen_time_goal"`
	CoinsEarned       float64      `json:"coins_earned" firestore:"coins_earned"`
	CoinsMaxPossible  float64      `json:"coins_max_possible" firestore:"coins_max_possible"`
	Success           bool         `json:"success" firestore:"success"`
	RequiresApproval  bool         `json:"requires_approval" firestore:"requires_approval"`
	ParentAction      ParentAction `json:"parent_action" firestore:"parent_action"`
	Screenshot        *Screenshot  `json:"screenshot,omitempty" firestore:"screenshot"`
}

// Parent is the account that approves uploads and receives notifications.
type Parent struct {
	ID        string `json:"id" firestore:"id"`
	Email     string `json:"email" firestore:"email"`
	FirstName string `json:"first_name" firestore:"first_name"`
	Gender    string `json:"gender" firestore:"gender"`
	Timezone  string `json:"timezone" firestore:"timezone"`
}

// Child is the account reporting screen time.
type Child struct {
	ID        string `json:"id" firestore:"id"`
	FirstName string `json:"first_name" firestore:"first_name"`
	Gender    string `json:"gender" firestore:"gender"`
}

// WeekDay is the read-only projection of one calendar day of the challenge
// week. It is recomputed on every read and never persisted.
type WeekDay struct {
	Date             time.Time    `json:"date"`
	DayNumber        int          `json:"day_number"`
	Status           Status       `json:"status"`
	CoinsEarned      float64      `json:"coins_earned"`
	ScreenTimeUsed   float64      `json:"screen_time_used"`
	ScreenTimeGoal   float64      `json:"screen_time_goal"`
	IsRedemptionDay  bool         `json:"is_redemption_day"`
	RequiresApproval bool         `json:"requires_approval"`
	ParentAction     ParentAction `json:"parent_action"`
	UploadID         string       `json:"upload_id,omitempty"`
}

// WeekView is the full 7-day projection returned to dashboards.
type WeekView struct {
	ChallengeID      string    `json:"challenge_id"`
	StartDate        time.Time `json:"start_date"`
	IsActive         bool      `json:"is_active"`
	Days             []WeekDay `json:"days"`
	TotalCoinsEarned float64   `json:"total_coins_earned"`
	MaxPossibleCoins float64   `json:"max_possible_coins"`
}

// CreateChallengeInput describes the fields accepted at challenge setup.
type CreateChallengeInput struct {
	ParentID            string
	ChildID             string
	StartDate           time.Time
	DailyBudget         float64
	DailyScreenTimeGoal float64
}

// CreateUploadInput describes a new daily report from the upload flow.
type CreateUploadInput struct {
	ChallengeID       string
	Date              time.Time
	ScreenTimeMinutes int
	Screenshot        *Screenshot
}

// OverrideUploadInput is the operator path to correct an upload before approval.
type OverrideUploadInput struct {
	ScreenTimeMinutes int
}

// Repository is the record-store adapter consumed by the service and the
// notification engine. Implementations exist for Firestore and in-memory.
type Repository interface {
	CreateChallenge(ctx context.Context, ch *Challenge) error
	GetChallenge(ctx context.Context, id string) (*Challenge, error)
	GetActiveChallenge(ctx context.Context, parentID, childID string) (*Challenge, error)
	ListActiveChallenges(ctx context.Context) ([]*Challenge, error)
	DeactivateChallenge(ctx context.Context, id string, at time.Time) error

	GetParent(ctx context.Context, id string) (*Parent, error)
	GetChild(ctx context.Context, id string) (*Child, error)

	CreateUpload(ctx context.Context, upload *DailyUpload) error
	GetUpload(ctx context.Context, id string) (*DailyUpload, error)
	ListUploads(ctx context.Context, challengeID string) ([]*DailyUpload, error)
	CountPendingApprovals(ctx context.Context, challengeID string) (int, error)
	SetParentAction(ctx context.Context, uploadID string, action ParentAction, at time.Time) error
	OverrideUpload(ctx context.Context, uploadID string, minutes int, hours, coins float64, success bool) error

	// TryClaimNotification conditionally sets notifications_sent.<key> on the
	// challenge document. Returns true only for the invocation that flipped
	// the flag from unset to true; the write is transactional so concurrent
	// ticks cannot both claim it.
	TryClaimNotification(ctx context.Context, challengeID, key string) (bool, error)

	// ReleaseNotificationClaim clears a claimed flag so a later tick can
	// reattempt the send. Used only for recurring rules after a transport
	// failure; one-shot flags are never released.
	ReleaseNotificationClaim(ctx context.Context, challengeID, key string) error
}

// Clock delivers the current time; extracted for deterministic testing.
type Clock interface {
	Now() time.Time
}

// IDGenerator produces unique identifiers for new documents.
type IDGenerator interface {
	NewID() string
}

// UploadEventHandler receives newly created uploads. The notification
// dispatcher implements it; the service stays unaware of notify internals.
type UploadEventHandler interface {
	HandleUploadCreated(ctx context.Context, upload *DailyUpload) error
}

// TruncateToDay normalizes a timestamp to midnight in its own location.
func TruncateToDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// SameDay reports whether two timestamps fall on the same calendar day.
func SameDay(a, b time.Time) bool {
	return TruncateToDay(a).Equal(TruncateToDay(b))
}
