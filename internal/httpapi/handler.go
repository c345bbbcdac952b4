package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/DanaFrie/POC-Joystie-sub000/internal/challenge"
	"github.com/DanaFrie/POC-Joystie-sub000/internal/notify"
	"github.com/DanaFrie/POC-Joystie-sub000/internal/storage"
)

const (
	serviceTimeout        = 10 * time.Second
	maxUploadPayloadBytes = 8 << 20
	screenshotURLTTL      = 24 * time.Hour
)

var (
	validate = validator.New()

	allowedImageExtensions = map[string]struct{}{
		".jpg":  {},
		".jpeg": {},
		".png":  {},
		".webp": {},
	}
)

// TickRunner is the manual entrypoint into the notification batch, exposed
// for platform cron fallbacks and operator use. *notify.Dispatcher satisfies it.
type TickRunner interface {
	ProcessTick(ctx context.Context, now time.Time) (notify.TickReport, error)
}

type handler struct {
	service *challenge.Service
	storage *storage.Service
	urls    notify.UploadURLGenerator
	ticker  TickRunner
}

type createChallengeRequest struct {
	ChildID             string  `json:"child_id" validate:"required"`
	StartDate           string  `json:"start_date" validate:"required"`
	DailyBudget         float64 `json:"daily_budget" validate:"gt=0"`
	DailyScreenTimeGoal float64 `json:"daily_screen_time_goal" validate:"gte=0"`
}

type createUploadRequest struct {
	ChallengeID       string `json:"challenge_id" validate:"required"`
	Date              string `json:"date" validate:"required"`
	ScreenTimeMinutes int    `json:"screen_time_minutes" validate:"gte=0"`
}

type overrideUploadRequest struct {
	ScreenTimeMinutes int `json:"screen_time_minutes" validate:"gte=0"`
}

// RegisterRoutes mounts the challenge API onto the router. storageSvc, urls
// and ticker may be nil when the corresponding feature is not configured.
func RegisterRoutes(r chi.Router, svc *challenge.Service, storageSvc *storage.Service, urls notify.UploadURLGenerator, ticker TickRunner) {
	h := &handler{service: svc, storage: storageSvc, urls: urls, ticker: ticker}

	r.Route("/v1/challenges", func(r chi.Router) {
		r.Post("/", h.createChallenge)
		r.Get("/{id}/week", h.getWeekView)
		r.Post("/{id}/redeem", h.redeemChallenge)
		r.Get("/{id}/upload-url", h.getUploadURL)
	})
	r.Route("/v1/uploads", func(r chi.Router) {
		r.Post("/", h.createUpload)
		r.Get("/{id}/screenshot", h.getScreenshotURL)
		r.Post("/{id}/approve", h.approveUpload)
		r.Post("/{id}/reject", h.rejectUpload)
		r.Post("/{id}/override", h.overrideUpload)
	})
	r.Post("/internal/tick", h.runTick)
}

func (h *handler) createChallenge(w http.ResponseWriter, r *http.Request) {
	parentID := headerUserID(r)
	if parentID == "" {
		writeError(w, http.StatusUnauthorized, "missing user ID")
		return
	}

	var req createChallengeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}
	startDate, err := parseDate(req.StartDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "start_date must be YYYY-MM-DD or RFC3339")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), serviceTimeout)
	defer cancel()

	ch, err := h.service.CreateChallenge(ctx, challenge.CreateChallengeInput{
		ParentID:            parentID,
		ChildID:             req.ChildID,
		StartDate:           startDate,
		DailyBudget:         req.DailyBudget,
		DailyScreenTimeGoal: req.DailyScreenTimeGoal,
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ch)
}

func (h *handler) getWeekView(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "challenge ID required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), serviceTimeout)
	defer cancel()

	week, err := h.service.GetWeekView(ctx, id)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, week)
}

func (h *handler) redeemChallenge(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "challenge ID required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), serviceTimeout)
	defer cancel()

	ch, err := h.service.RedeemChallenge(ctx, id)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ch)
}

func (h *handler) getUploadURL(w http.ResponseWriter, r *http.Request) {
	if h.urls == nil {
		writeError(w, http.StatusInternalServerError, "upload links are not configured")
		return
	}
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "challenge ID required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), serviceTimeout)
	defer cancel()

	ch, err := h.service.GetChallenge(ctx, id)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	url, err := h.urls.GenerateUploadURL(ch.ParentID, ch.ChildID, ch.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to generate upload link")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"upload_url": url})
}

func (h *handler) createUpload(w http.ResponseWriter, r *http.Request) {
	req, screenshotFile, screenshotHeader, err := decodeUploadRequest(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if screenshotFile != nil {
		defer screenshotFile.Close()
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD or RFC3339")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), serviceTimeout)
	defer cancel()

	var screenshot *challenge.Screenshot
	if screenshotFile != nil {
		if h.storage == nil {
			writeError(w, http.StatusInternalServerError, "screenshot uploads are not configured")
			return
		}
		if err := validateScreenshotFile(screenshotHeader); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		ch, err := h.service.GetChallenge(ctx, req.ChallengeID)
		if err != nil {
			respondServiceError(w, err)
			return
		}
		result, uploadErr := h.storage.UploadScreenshot(ctx, ch.ChildID, screenshotFile, screenshotHeader.Filename)
		if uploadErr != nil {
			writeError(w, http.StatusInternalServerError, "failed to store screenshot")
			return
		}
		screenshot = &challenge.Screenshot{
			OriginalPath: result.ObjectPath,
			OriginalURL:  result.URL,
		}
	}

	upload, err := h.service.CreateUpload(ctx, challenge.CreateUploadInput{
		ChallengeID:       req.ChallengeID,
		Date:              date,
		ScreenTimeMinutes: req.ScreenTimeMinutes,
		Screenshot:        screenshot,
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, upload)
}

func (h *handler) getScreenshotURL(w http.ResponseWriter, r *http.Request) {
	if h.storage == nil {
		writeError(w, http.StatusInternalServerError, "screenshot uploads are not configured")
		return
	}
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "upload ID required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), serviceTimeout)
	defer cancel()

	upload, err := h.service.GetUpload(ctx, id)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if upload.Screenshot == nil || upload.Screenshot.OriginalPath == "" {
		writeError(w, http.StatusNotFound, "upload has no screenshot")
		return
	}

	url, err := h.storage.SignedReadURL(upload.Screenshot.OriginalPath, screenshotURLTTL)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to sign screenshot URL")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

func (h *handler) approveUpload(w http.ResponseWriter, r *http.Request) {
	h.decideUpload(w, r, h.service.ApproveDay)
}

func (h *handler) rejectUpload(w http.ResponseWriter, r *http.Request) {
	h.decideUpload(w, r, h.service.RejectDay)
}

func (h *handler) decideUpload(w http.ResponseWriter, r *http.Request, decide func(context.Context, string) (*challenge.DailyUpload, error)) {
	if headerUserID(r) == "" {
		writeError(w, http.StatusUnauthorized, "missing user ID")
		return
	}
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "upload ID required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), serviceTimeout)
	defer cancel()

	upload, err := decide(ctx, id)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, upload)
}

func (h *handler) overrideUpload(w http.ResponseWriter, r *http.Request) {
	if headerUserID(r) == "" {
		writeError(w, http.StatusUnauthorized, "missing user ID")
		return
	}
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "upload ID required")
		return
	}

	var req overrideUploadRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), serviceTimeout)
	defer cancel()

	upload, err := h.service.OverrideUpload(ctx, id, challenge.OverrideUploadInput{
		ScreenTimeMinutes: req.ScreenTimeMinutes,
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, upload)
}

func (h *handler) runTick(w http.ResponseWriter, r *http.Request) {
	if h.ticker == nil {
		writeError(w, http.StatusInternalServerError, "notifications are not configured")
		return
	}

	report, err := h.ticker.ProcessTick(r.Context(), time.Now())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "tick failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"processed": report.Processed,
		"sent":      report.Sent,
		"errors":    len(report.Errors),
	})
}

func respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, challenge.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, challenge.ErrActiveChallengeExists):
		writeError(w, http.StatusConflict, "an active challenge already exists for this child")
	case errors.Is(err, challenge.ErrConflict):
		writeError(w, http.StatusConflict, "an upload already exists for this date")
	case errors.Is(err, challenge.ErrAlreadyDecided):
		writeError(w, http.StatusConflict, "upload has already been decided")
	case errors.Is(err, challenge.ErrNotRedemptionDay):
		writeError(w, http.StatusConflict, "challenge can only be redeemed on or after the redemption day")
	case errors.Is(err, challenge.ErrChallengeInactive):
		writeError(w, http.StatusConflict, "challenge is not active")
	case errors.Is(err, challenge.ErrInvalidInput):
		msg := strings.TrimSpace(err.Error())
		if i := strings.Index(msg, ":"); i >= 0 {
			msg = strings.TrimSpace(msg[i+1:])
		}
		writeError(w, http.StatusBadRequest, msg)
	default:
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func headerUserID(r *http.Request) string {
	if v := r.Header.Get("X-User-ID"); v != "" {
		return v
	}
	return r.Header.Get("x-user-id")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxUploadPayloadBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return fmt.Errorf("invalid JSON payload")
	}
	return nil
}

func decodeUploadRequest(w http.ResponseWriter, r *http.Request) (createUploadRequest, multipart.File, *multipart.FileHeader, error) {
	ct := strings.ToLower(r.Header.Get("Content-Type"))
	if strings.HasPrefix(ct, "multipart/form-data") {
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadPayloadBytes)
		if err := r.ParseMultipartForm(maxUploadPayloadBytes); err != nil {
			return createUploadRequest{}, nil, nil, fmt.Errorf("invalid multipart payload")
		}
		req := createUploadRequest{
			ChallengeID: r.FormValue("challenge_id"),
			Date:        r.FormValue("date"),
		}
		if v := strings.TrimSpace(r.FormValue("screen_time_minutes")); v != "" {
			minutes, err := strconv.Atoi(v)
			if err != nil {
				return req, nil, nil, fmt.Errorf("screen_time_minutes must be an integer")
			}
			req.ScreenTimeMinutes = minutes
		}
		file, header, err := r.FormFile("screenshot")
		if err == http.ErrMissingFile {
			return req, nil, nil, nil
		}
		if err != nil {
			return req, nil, nil, fmt.Errorf("invalid screenshot upload: %w", err)
		}
		return req, file, header, nil
	}

	var req createUploadRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return createUploadRequest{}, nil, nil, err
	}
	return req, nil, nil, nil
}

func validateScreenshotFile(header *multipart.FileHeader) error {
	if header == nil {
		return fmt.Errorf("invalid screenshot upload")
	}
	ext := strings.ToLower(filepath.Ext(header.Filename))
	if _, ok := allowedImageExtensions[ext]; !ok {
		return fmt.Errorf("unsupported screenshot type; allowed formats: jpg, jpeg, png, webp")
	}
	return nil
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		f := verrs[0]
		return fmt.Sprintf("invalid field %s (%s)", strings.ToLower(f.Field()), f.Tag())
	}
	return "invalid request"
}

func parseDate(value string) (time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if t, err := time.Parse("2006-01-02", trimmed); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, trimmed)
	if err != nil {
		return time.Time{}, err
	}
	return t, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
