package challenge

import "time"

// DayStatus maps one calendar day's upload (or its absence) to exactly one
// status. Precedence: redemption, future, missing, awaiting approval,
// rejected, then the approved outcome (success/warning).
func DayStatus(upload *DailyUpload, isFuture, isRedemptionDay bool) Status {
	if isRedemptionDay {
		// The redemption day is never individually approvable.
		return StatusRedemption
	}
	if isFuture {
		return StatusFuture
	}
	if upload == nil {
		return StatusMissing
	}
	if upload.RequiresApproval && upload.ParentAction == ParentActionNone {
		return StatusAwaitingApproval
	}
	if upload.ParentAction == ParentActionRejected {
		// Terminal: there is no re-submission path for a rejected day.
		return StatusRejected
	}
	if upload.Success {
		return StatusSuccess
	}
	return StatusWarning
}

// BuildWeek projects the challenge's 7-day window against its uploads.
// When the start date is still in the future every day resolves to future
// regardless of upload state. When multiple uploads exist for one calendar
// day (a data-integrity anomaly) the first by upload time wins.
func BuildWeek(ch *Challenge, uploads []*DailyUpload, today time.Time) WeekView {
	start := TruncateToDay(ch.StartDate)
	day := TruncateToDay(today)
	notStarted := start.After(day)

	view := WeekView{
		ChallengeID: ch.ID,
		StartDate:   start,
		IsActive:    ch.IsActive,
		Days:        make([]WeekDay, 0, WeekLength),
	}

	for i := 0; i < WeekLength; i++ {
		date := start.AddDate(0, 0, i)
		isRedemption := i == WeekLength-1
		isFuture := notStarted || date.After(day)

		upload := firstUploadForDate(uploads, date)
		status := DayStatus(upload, isFuture, isRedemption)
		if notStarted {
			status = StatusFuture
		}

		wd := WeekDay{
			Date:            date,
			DayNumber:       i + 1,
			Status:          status,
			ScreenTimeGoal:  ch.DailyScreenTimeGoal,
			IsRedemptionDay: isRedemption,
		}
		if upload != nil {
			wd.CoinsEarned = upload.CoinsEarned
			wd.ScreenTimeUsed = upload.ScreenTimeUsed
			wd.ScreenTimeGoal = upload.ScreenTimeGoal
			wd.RequiresApproval = upload.RequiresApproval
			wd.ParentAction = upload.ParentAction
			wd.UploadID = upload.ID

			if upload.ParentAction == ParentActionApproved ||
				(upload.ParentAction == ParentActionNone && !upload.RequiresApproval) {
				view.TotalCoinsEarned += upload.CoinsEarned
			}
		}
		if !isRedemption {
			view.MaxPossibleCoins += ch.DailyBudget
		}
		view.Days = append(view.Days, wd)
	}

	return view
}

func firstUploadForDate(uploads []*DailyUpload, date time.Time) *DailyUpload {
	var match *DailyUpload
	for _, u := range uploads {
		if !SameDay(u.Date, date) {
			continue
		}
		if match == nil || u.UploadedAt.Before(match.UploadedAt) {
			match = u
		}
	}
	return match
}
