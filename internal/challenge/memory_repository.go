package challenge

import (
	"context"
	"sort"
	"sync"
	"time"
)

type memoryRepository struct {
	mu         sync.RWMutex
	challenges map[string]*Challenge
	uploads    map[string]*DailyUpload
	parents    map[string]*Parent
	children   map[string]*Child
}

// NewMemoryRepository returns an in-memory repository intended for local development and tests.
func NewMemoryRepository() Repository {
	return &memoryRepository{
		challenges: make(map[string]*Challenge),
		uploads:    make(map[string]*DailyUpload),
		parents:    make(map[string]*Parent),
		children:   make(map[string]*Child),
	}
}

// SeedParent and SeedChild exist for tests and local development.
func (r *memoryRepository) SeedParent(p *Parent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *p
	r.parents[p.ID] = &cp
}

func (r *memoryRepository) SeedChild(c *Child) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *c
	r.children[c.ID] = &cp
}

func (r *memoryRepository) CreateChallenge(_ context.Context, ch *Challenge) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.challenges[ch.ID]; exists {
		return ErrConflict
	}
	cp := *ch
	if cp.NotificationsSent == nil {
		cp.NotificationsSent = map[string]bool{}
	} else {
		flags := make(map[string]bool, len(cp.NotificationsSent))
		for k, v := range cp.NotificationsSent {
			flags[k] = v
		}
		cp.NotificationsSent = flags
	}
	r.challenges[ch.ID] = &cp
	return nil
}

func (r *memoryRepository) GetChallenge(_ context.Context, id string) (*Challenge, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ch, ok := r.challenges[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := cloneChallenge(ch)
	return cp, nil
}

func (r *memoryRepository) GetActiveChallenge(_ context.Context, parentID, childID string) (*Challenge, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, ch := range r.challenges {
		if ch.ParentID == parentID && ch.ChildID == childID && ch.IsActive {
			return cloneChallenge(ch), nil
		}
	}
	return nil, ErrNotFound
}

func (r *memoryRepository) ListActiveChallenges(_ context.Context) ([]*Challenge, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Challenge, 0)
	for _, ch := range r.challenges {
		if ch.IsActive {
			out = append(out, cloneChallenge(ch))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memoryRepository) DeactivateChallenge(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ch, ok := r.challenges[id]
	if !ok {
		return ErrNotFound
	}
	ch.IsActive = false
	ch.UpdatedAt = at
	return nil
}

func (r *memoryRepository) GetParent(_ context.Context, id string) (*Parent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.parents[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *memoryRepository) GetChild(_ context.Context, id string) (*Child, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.children[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *memoryRepository) CreateUpload(_ context.Context, upload *DailyUpload) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.uploads[upload.ID]; exists {
		return ErrConflict
	}
	cp := *upload
	r.uploads[upload.ID] = &cp
	return nil
}

func (r *memoryRepository) GetUpload(_ context.Context, id string) (*DailyUpload, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.uploads[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *memoryRepository) ListUploads(_ context.Context, challengeID string) ([]*DailyUpload, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*DailyUpload, 0)
	for _, u := range r.uploads {
		if u.ChallengeID == challengeID {
			cp := *u
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UploadedAt.Before(out[j].UploadedAt) })
	return out, nil
}

func (r *memoryRepository) CountPendingApprovals(_ context.Context, challengeID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, u := range r.uploads {
		if u.ChallengeID == challengeID && u.RequiresApproval && u.ParentAction == ParentActionNone {
			count++
		}
	}
	return count, nil
}

func (r *memoryRepository) SetParentAction(_ context.Context, uploadID string, action ParentAction, _ time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.uploads[uploadID]
	if !ok {
		return ErrNotFound
	}
	u.ParentAction = action
	u.RequiresApproval = false
	return nil
}

func (r *memoryRepository) OverrideUpload(_ context.Context, uploadID string, minutes int, hours, coins float64, success bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.uploads[uploadID]
	if !ok {
		return ErrNotFound
	}
	u.ScreenTimeMinutes = minutes
	u.ScreenTimeUsed = hours
	u.CoinsEarned = coins
	u.Success = success
	return nil
}

func (r *memoryRepository) TryClaimNotification(_ context.Context, challengeID, key string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ch, ok := r.challenges[challengeID]
	if !ok {
		return false, ErrNotFound
	}
	if ch.NotificationsSent == nil {
		ch.NotificationsSent = map[string]bool{}
	}
	if ch.NotificationsSent[key] {
		return false, nil
	}
	ch.NotificationsSent[key] = true
	return true, nil
}

func (r *memoryRepository) ReleaseNotificationClaim(_ context.Context, challengeID, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ch, ok := r.challenges[challengeID]
	if !ok {
		return ErrNotFound
	}
	delete(ch.NotificationsSent, key)
	return nil
}

func cloneChallenge(ch *Challenge) *Challenge {
	cp := *ch
	flags := make(map[string]bool, len(ch.NotificationsSent))
	for k, v := range ch.NotificationsSent {
		flags[k] = v
	}
	cp.NotificationsSent = flags
	return &cp
}
