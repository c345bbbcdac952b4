package challenge

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	challengesCollection = "challenges"
	uploadsCollection    = "daily_uploads"
	parentsCollection    = "parents"
	childrenCollection   = "children"
)

type firestoreRepository struct {
	client *firestore.Client
}

// NewFirestoreRepository instantiates a Firestore-backed repository.
func NewFirestoreRepository(client *firestore.Client) Repository {
	return &firestoreRepository{client: client}
}

func (r *firestoreRepository) CreateChallenge(ctx context.Context, ch *Challenge) error {
	_, err := r.client.Collection(challengesCollection).Doc(ch.ID).Create(ctx, ch)
	if status.Code(err) == codes.AlreadyExists {
		return ErrConflict
	}
	return err
}

func (r *firestoreRepository) GetChallenge(ctx context.Context, id string) (*Challenge, error) {
	doc, err := r.client.Collection(challengesCollection).Doc(id).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var ch Challenge
	if err := doc.DataTo(&ch); err != nil {
		return nil, fmt.Errorf("unmarshal challenge: %w", err)
	}
	ch.ID = doc.Ref.ID
	return &ch, nil
}

func (r *firestoreRepository) GetActiveChallenge(ctx context.Context, parentID, childID string) (*Challenge, error) {
	iter := r.client.Collection(challengesCollection).
		Where("parent_id", "==", parentID).
		Where("child_id", "==", childID).
		Where("is_active", "==", true).
		Limit(1).
		Documents(ctx)
	defer iter.Stop()

	doc, err := iter.Next()
	if err == iterator.Done {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var ch Challenge
	if err := doc.DataTo(&ch); err != nil {
		return nil, fmt.Errorf("unmarshal challenge: %w", err)
	}
	ch.ID = doc.Ref.ID
	return &ch, nil
}

func (r *firestoreRepository) ListActiveChallenges(ctx context.Context) ([]*Challenge, error) {
	iter := r.client.Collection(challengesCollection).
		Where("is_active", "==", true).
		Documents(ctx)
	defer iter.Stop()

	challenges := make([]*Challenge, 0)
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}

		var ch Challenge
		if err := doc.DataTo(&ch); err != nil {
			return nil, fmt.Errorf("unmarshal challenge %s: %w", doc.Ref.ID, err)
		}
		ch.ID = doc.Ref.ID
		challenges = append(challenges, &ch)
	}
	return challenges, nil
}

func (r *firestoreRepository) DeactivateChallenge(ctx context.Context, id string, at time.Time) error {
	_, err := r.client.Collection(challengesCollection).Doc(id).Update(ctx, []firestore.Update{
		{Path: "is_active", Value: false},
		{Path: "updated_at", Value: at},
	})
	if status.Code(err) == codes.NotFound {
		return ErrNotFound
	}
	return err
}

func (r *firestoreRepository) GetParent(ctx context.Context, id string) (*Parent, error) {
	doc, err := r.client.Collection(parentsCollection).Doc(id).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var p Parent
	if err := doc.DataTo(&p); err != nil {
		return nil, fmt.Errorf("unmarshal parent: %w", err)
	}
	p.ID = doc.Ref.ID
	return &p, nil
}

func (r *firestoreRepository) GetChild(ctx context.Context, id string) (*Child, error) {
	doc, err := r.client.Collection(childrenCollection).Doc(id).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var c Child
	if err := doc.DataTo(&c); err != nil {
		return nil, fmt.Errorf("unmarshal child: %w", err)
	}
	c.ID = doc.Ref.ID
	return &c, nil
}

func (r *firestoreRepository) CreateUpload(ctx context.Context, upload *DailyUpload) error {
	_, err := r.client.Collection(uploadsCollection).Doc(upload.ID).Create(ctx, upload)
	if status.Code(err) == codes.AlreadyExists {
		return ErrConflict
	}
	return err
}

func (r *firestoreRepository) GetUpload(ctx context.Context, id string) (*DailyUpload, error) {
	doc, err := r.client.Collection(uploadsCollection).Doc(id).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var upload DailyUpload
	if err := doc.DataTo(&upload); err != nil {
		return nil, fmt.Errorf("unmarshal upload: %w", err)
	}
	upload.ID = doc.Ref.ID
	return &upload, nil
}

func (r *firestoreRepository) ListUploads(ctx context.Context, challengeID string) ([]*DailyUpload, error) {
	iter := r.client.Collection(uploadsCollection).
		Where("challenge_id", "==", challengeID).
		OrderBy("uploaded_at", firestore.Asc).
		Documents(ctx)
	defer iter.Stop()

	uploads := make([]*DailyUpload, 0)
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}

		var upload DailyUpload
		if err := doc.DataTo(&upload); err != nil {
			return nil, fmt.Errorf("unmarshal upload %s: %w", doc.Ref.ID, err)
		}
		upload.ID = doc.Ref.ID
		uploads = append(uploads, &upload)
	}
	return uploads, nil
}

func (r *firestoreRepository) CountPendingApprovals(ctx context.Context, challengeID string) (int, error) {
	iter := r.client.Collection(uploadsCollection).
		Where("challenge_id", "==", challengeID).
		Where("requires_approval", "==", true).
		Where("parent_action", "==", "").
		Documents(ctx)
	defer iter.Stop()

	count := 0
	for {
		_, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return 0, err
		}
		count++
	}
	return count, nil
}

func (r *firestoreRepository) SetParentAction(ctx context.Context, uploadID string, action ParentAction, at time.Time) error {
	_, err := r.client.Collection(uploadsCollection).Doc(uploadID).Update(ctx, []firestore.Update{
		{Path: "parent_action", Value: string(action)},
		{Path: "requires_approval", Value: false},
		{Path: "decided_at", Value: at},
	})
	if status.Code(err) == codes.NotFound {
		return ErrNotFound
	}
	return err
}

func (r *firestoreRepository) OverrideUpload(ctx context.Context, uploadID string, minutes int, hours, coins float64, success bool) error {
	_, err := r.client.Collection(uploadsCollection).Doc(uploadID).Update(ctx, []firestore.Update{
		{Path: "screen_time_minutes", Value: minutes},
		{Path: "screen_time_used", Value: hours},
		{Path: "coins_earned", Value: coins},
		{Path: "success", Value: success},
	})
	if status.Code(err) == codes.NotFound {
		return ErrNotFound
	}
	return err
}

// TryClaimNotification flips notifications_sent.<key> from unset to true
// inside a transaction so two overlapping ticks cannot both claim the same
// send. Only the nested key is written; sibling flags are untouched.
func (r *firestoreRepository) TryClaimNotification(ctx context.Context, challengeID, key string) (bool, error) {
	ref := r.client.Collection(challengesCollection).Doc(challengeID)
	claimed := false

	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(ref)
		if status.Code(err) == codes.NotFound {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		var ch Challenge
		if err := doc.DataTo(&ch); err != nil {
			return fmt.Errorf("unmarshal challenge: %w", err)
		}
		if ch.NotificationSent(key) {
			claimed = false
			return nil
		}

		if err := tx.Update(ref, []firestore.Update{
			{Path: "notifications_sent." + key, Value: true},
			{Path: "updated_at", Value: time.Now().UTC()},
		}); err != nil {
			return err
		}
		claimed = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return claimed, nil
}

func (r *firestoreRepository) ReleaseNotificationClaim(ctx context.Context, challengeID, key string) error {
	_, err := r.client.Collection(challengesCollection).Doc(challengeID).Update(ctx, []firestore.Update{
		{Path: "notifications_sent." + key, Value: firestore.Delete},
	})
	if status.Code(err) == codes.NotFound {
		return ErrNotFound
	}
	return err
}
