package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/paul-bouzian/saycal/internal/api/validate"
	"github.com/paul-bouzian/saycal/internal/model"
	"github.com/paul-bouzian/saycal/internal/store"
)

// EventService is the manual (non-voice) event surface, scoped to the caller.
type EventService struct {
	store store.Store
	now   func() time.Time
}

func NewEventService(s store.Store) *EventService {
	return &EventService{store: s, now: time.Now}
}

type CreateEventInput struct {
	Title       string
	Description *string
	StartAt     time.Time
	EndAt       time.Time
	Color       *string
}

func invalid(err error) error { return fmt.Errorf("%w: %v", model.ErrValidation, err) }

func (s *EventService) ListEvents(ctx context.Context, userID string, from, to time.Time) ([]*model.Event, error) {
	if to.Before(from) {
		return nil, invalid(fmt.Errorf("start must not be after end"))
	}
	return s.store.Events().ListRange(ctx, userID, from, to)
}

func (s *EventService) GetEvent(ctx context.Context, userID, eventID string) (*model.Event, error) {
	return s.store.Events().Get(ctx, userID, eventID)
}

func (s *EventService) CreateEvent(ctx context.Context, userID string, in CreateEventInput) (*model.Event, error) {
	if err := validate.CreateEvent(in.Title, in.Description, in.StartAt, in.EndAt, in.Color); err != nil {
		return nil, invalid(err)
	}
	return s.store.Events().Create(ctx, &model.Event{
		UserID:      userID,
		Title:       strings.TrimSpace(in.Title),
		Description: in.Description,
		StartAt:     in.StartAt,
		EndAt:       in.EndAt,
		Color:       in.Color,
		CreatedVia:  model.CreatedViaManual,
	})
}

// UpdateEvent applies a partial update; the resulting range must stay valid.
func (s *EventService) UpdateEvent(ctx context.Context, userID, eventID string, p model.EventPatch) (*model.Event, error) {
	if p.Title != nil {
		if err := validate.Title(*p.Title); err != nil {
			return nil, invalid(err)
		}
		t := strings.TrimSpace(*p.Title)
		p.Title = &t
	}
	if err := validate.Color(p.Color); err != nil {
		return nil, invalid(err)
	}
	if err := validate.MaxLen("description", p.Description, 2000); err != nil {
		return nil, invalid(err)
	}
	if p.StartAt != nil || p.EndAt != nil {
		cur, err := s.store.Events().Get(ctx, userID, eventID)
		if err != nil {
			return nil, err
		}
		start, end := cur.StartAt, cur.EndAt
		if p.StartAt != nil {
			start = *p.StartAt
		}
		if p.EndAt != nil {
			end = *p.EndAt
		}
		if err := validate.TimeRange(start, end); err != nil {
			return nil, invalid(err)
		}
	}
	return s.store.Events().Update(ctx, userID, eventID, p, s.now())
}

func (s *EventService) DeleteEvent(ctx context.Context, userID, eventID string) error {
	return s.store.Events().Delete(ctx, userID, eventID)
}
