package activity

import (
	"context"
	"fmt"

	"github.com/SumanthNagolu/intime-v3-sub020/internal/domain"
	"github.com/SumanthNagolu/intime-v3-sub020/internal/events"
	"github.com/SumanthNagolu/intime-v3-sub020/internal/repo"
)

// Queue lists the unassigned, non-terminal activities routed to groupID,
// most urgent first, then by due date and creation.
func (s Service) Queue(ctx context.Context, orgID, groupID string, limit int) ([]domain.QueueItem, error) {
	list, err := s.Repo.ListActivities(ctx, domain.ActivityFilter{
		OrgID:         orgID,
		AssignedGroup: groupID,
		Unassigned:    true,
		Statuses:      []domain.Status{domain.StatusOpen, domain.StatusInProgress, domain.StatusDeferred},
		Sort:          domain.SortPriority,
		Limit:         limit,
	})
	if err != nil {
		return nil, err
	}
	items := make([]domain.QueueItem, 0, len(list))
	for _, a := range list {
		items = append(items, s.queueItem(a))
	}
	return items, nil
}

// Claim assigns an unassigned activity to userID. The claim is a conditional
// update so two callers cannot both win.
func (s Service) Claim(ctx context.Context, id, userID string) (domain.Activity, error) {
	if userID == "" {
		return domain.Activity{}, domain.ValidationError{Field: "user_id", Message: "required"}
	}
	var out domain.Activity
	err := s.inTx(ctx, func(tx repo.Repo, emit emitFunc) error {
		a, err := s.claim(ctx, tx, id, userID)
		if err != nil {
			return err
		}
		out = a
		return emit(events.ActivityClaimed, a, userID, events.Payload{"assigned_group": a.AssignedGroup})
	})
	return out, err
}

func (s Service) claim(ctx context.Context, tx repo.Repo, id, userID string) (domain.Activity, error) {
	cur, err := tx.GetActivity(ctx, id)
	if err != nil {
		return cur, fmt.Errorf("activity %s: %w", id, err)
	}
	ok, err := tx.ClaimActivity(ctx, id, userID, s.now())
	if err != nil {
		return cur, fmt.Errorf("claim activity %s: %w", id, err)
	}
	if !ok {
		if cur.Status.Terminal() {
			return cur, domain.TransitionError{From: cur.Status, To: cur.Status}
		}
		return cur, fmt.Errorf("activity %s held by %s: %w", id, cur.AssignedTo, domain.ErrAlreadyClaimed)
	}
	return tx.GetActivity(ctx, id)
}

// ClaimNext claims the head of the group queue. It returns ErrNotFound when
// the queue is empty.
func (s Service) ClaimNext(ctx context.Context, orgID, groupID, userID string) (domain.Activity, error) {
	if userID == "" {
		return domain.Activity{}, domain.ValidationError{Field: "user_id", Message: "required"}
	}
	var out domain.Activity
	err := s.inTx(ctx, func(tx repo.Repo, emit emitFunc) error {
		head, err := tx.ListActivities(ctx, domain.ActivityFilter{
			OrgID:         orgID,
			AssignedGroup: groupID,
			Unassigned:    true,
			Statuses:      []domain.Status{domain.StatusOpen, domain.StatusInProgress, domain.StatusDeferred},
			Sort:          domain.SortPriority,
			Limit:         1,
		})
		if err != nil {
			return err
		}
		if len(head) == 0 {
			return fmt.Errorf("queue %s is empty: %w", groupID, domain.ErrNotFound)
		}
		a, err := s.claim(ctx, tx, head[0].ID, userID)
		if err != nil {
			return err
		}
		out = a
		return emit(events.ActivityClaimed, a, userID, events.Payload{"assigned_group": a.AssignedGroup})
	})
	return out, err
}

// Release hands a claimed activity back to its group queue. In-progress work
// returns to open.
func (s Service) Release(ctx context.Context, id, userID string) (domain.Activity, error) {
	var out domain.Activity
	err := s.inTx(ctx, func(tx repo.Repo, emit emitFunc) error {
		cur, err := tx.GetActivity(ctx, id)
		if err != nil {
			return fmt.Errorf("activity %s: %w", id, err)
		}
		switch {
		case cur.Status.Terminal():
			return domain.TransitionError{From: cur.Status, To: domain.StatusOpen}
		case cur.AssignedGroup == "":
			return domain.ValidationError{Field: "assigned_group", Message: "activity is not routed through a queue"}
		case cur.AssignedTo != userID:
			return fmt.Errorf("activity %s: %w", id, domain.ErrNotClaimant)
		}
		ok, err := tx.ReleaseActivity(ctx, id, userID, s.now())
		if err != nil {
			return fmt.Errorf("release activity %s: %w", id, err)
		}
		if !ok {
			return fmt.Errorf("activity %s: %w", id, domain.ErrNotClaimant)
		}
		a, err := tx.GetActivity(ctx, id)
		if err != nil {
			return err
		}
		out = a
		return emit(events.ActivityReleased, a, userID, events.Payload{
			"released_by":     userID,
			"previous_status": string(cur.Status),
		})
	})
	return out, err
}
