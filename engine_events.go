package goAccess

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vealkov/goAccess/store"
)

// EventView pairs an immutable event with the caller's read state.
type EventView struct {
	Event *Event
	State *EventUserState
}

// ListEvents returns events with the caller's per-event state, newest
// first. Requires the events.view permission.
func (e *Engine) ListEvents(ctx context.Context, actor *Identity, filter store.EventFilter) ([]*EventView, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	if actor == nil {
		return nil, ErrUnauthenticated
	}
	if !HasPermission(actor.Role, PermEventsView) {
		return nil, ErrForbidden
	}

	events, err := e.store.ListEvents(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	views := make([]*EventView, 0, len(events))
	for _, event := range events {
		state, err := e.store.EventStateFor(ctx, event.ID, actor.AccountID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		if state == nil {
			// No state row yet means untouched: unread, undismissed.
			state = &store.EventUserState{EventID: event.ID, AccountID: actor.AccountID}
		}
		views = append(views, &EventView{Event: event, State: state})
	}
	return views, nil
}

func (e *Engine) eventStateGuard(ctx context.Context, actor *Identity, eventID int64) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if actor == nil {
		return ErrUnauthenticated
	}
	if !HasPermission(actor.Role, PermEventsView) {
		return ErrForbidden
	}

	if _, err := e.store.EventByID(ctx, eventID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// MarkEventRead marks one event read for the caller. Idempotent.
func (e *Engine) MarkEventRead(ctx context.Context, actor *Identity, eventID int64) error {
	if err := e.eventStateGuard(ctx, actor, eventID); err != nil {
		return err
	}
	if err := e.store.MarkEventRead(ctx, eventID, actor.AccountID, time.Now().UTC()); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// MarkEventUnread explicitly undoes a read mark. Dismissed and handled
// flags survive; unread is a deliberate "look at this again" signal.
func (e *Engine) MarkEventUnread(ctx context.Context, actor *Identity, eventID int64) error {
	if err := e.eventStateGuard(ctx, actor, eventID); err != nil {
		return err
	}
	if err := e.store.MarkEventUnread(ctx, eventID, actor.AccountID, time.Now().UTC()); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// DismissEvent hides a notification-channel event for the caller.
// Dismissing implies reading.
func (e *Engine) DismissEvent(ctx context.Context, actor *Identity, eventID int64, dismissed bool) error {
	if err := e.eventStateGuard(ctx, actor, eventID); err != nil {
		return err
	}
	if err := e.store.SetEventDismissed(ctx, eventID, actor.AccountID, dismissed, time.Now().UTC()); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// HandleEvent marks an action-channel event as dealt with for the
// caller. Handling implies reading.
func (e *Engine) HandleEvent(ctx context.Context, actor *Identity, eventID int64, handled bool) error {
	if err := e.eventStateGuard(ctx, actor, eventID); err != nil {
		return err
	}
	if err := e.store.SetEventHandled(ctx, eventID, actor.AccountID, handled, time.Now().UTC()); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// EventCounts are the caller's badge numbers.
type EventCounts struct {
	// Unread counts notification-channel events without a read mark.
	Unread int64
	// Unhandled counts action-channel events neither handled nor dismissed.
	Unhandled int64
}

// CountEvents returns the caller's badge numbers for the event center.
func (e *Engine) CountEvents(ctx context.Context, actor *Identity) (*EventCounts, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	if actor == nil {
		return nil, ErrUnauthenticated
	}
	if !HasPermission(actor.Role, PermEventsView) {
		return nil, ErrForbidden
	}

	unread, err := e.store.UnreadEventCount(ctx, actor.AccountID, store.ChannelNotification)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	unhandled, err := e.store.UnhandledEventCount(ctx, actor.AccountID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return &EventCounts{Unread: unread, Unhandled: unhandled}, nil
}
