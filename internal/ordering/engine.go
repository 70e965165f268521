// Package ordering maintains the dense, zero-based position sequence shared by
// phases within a project and tasks within a phase. Every mutation that touches
// a position goes through an Engine so that, after it returns without error,
// the positions of the scope's members are exactly {0..n-1}.
package ordering

import (
	"context"
	"fmt"
)

// Item pairs an entity id with its position inside one scope.
type Item struct {
	ID       string
	Position int
}

// Scope is the slice of the store the engine operates on: all siblings sharing
// one parent. Implementations are expected to run inside a transaction so that
// a failed shift sequence rolls back as a unit.
type Scope interface {
	// List returns the scope's items ordered by position.
	List(ctx context.Context) ([]Item, error)
	// MaxPosition returns the highest occupied position, or -1 when empty.
	MaxPosition(ctx context.Context) (int, error)
	// OccupiedBy reports which item, if any, currently holds the position.
	OccupiedBy(ctx context.Context, position int) (string, bool, error)
	// ShiftFrom adds delta to every position >= from.
	ShiftFrom(ctx context.Context, from, delta int) error
	// ShiftRange adds delta to every position in [lo, hi], skipping excludeID.
	ShiftRange(ctx context.Context, lo, hi, delta int, excludeID string) error
	// SetPosition writes one item's position directly.
	SetPosition(ctx context.Context, id string, position int) error
}

// Engine computes and applies the position changes for one operation.
type Engine struct{}

// New returns an Engine. It carries no state; scopes are passed per call so a
// single engine serves every parent.
func New() *Engine {
	return &Engine{}
}

// PlaceNew determines the position for an entity being inserted into scope and
// opens a slot for it. A nil requested position appends. Returns the position
// the caller must persist the new entity with.
func (e *Engine) PlaceNew(ctx context.Context, scope Scope, requested *int) (int, error) {
	if requested == nil {
		max, err := scope.MaxPosition(ctx)
		if err != nil {
			return 0, fmt.Errorf("max position: %w", err)
		}
		return max + 1, nil
	}
	position := *requested
	if position < 0 {
		return 0, fmt.Errorf("position must not be negative")
	}
	_, occupied, err := scope.OccupiedBy(ctx, position)
	if err != nil {
		return 0, fmt.Errorf("check position %d: %w", position, err)
	}
	if occupied {
		if err := scope.ShiftFrom(ctx, position, +1); err != nil {
			return 0, fmt.Errorf("open slot at %d: %w", position, err)
		}
	}
	return position, nil
}

// CloseGap restores density after the entity at removedPosition has been
// deleted. The delete must already be flushed so the shift cannot collide with
// the removed row.
func (e *Engine) CloseGap(ctx context.Context, scope Scope, removedPosition int) error {
	if err := scope.ShiftFrom(ctx, removedPosition+1, -1); err != nil {
		return fmt.Errorf("close gap at %d: %w", removedPosition, err)
	}
	return nil
}

// Reposition moves the entity id from oldPosition to newPosition within scope,
// shifting the siblings in between. The entity's own position write happens
// last so the destination slot is free when it lands.
func (e *Engine) Reposition(ctx context.Context, scope Scope, id string, oldPosition, newPosition int) error {
	if newPosition < 0 {
		return fmt.Errorf("position must not be negative")
	}
	if newPosition == oldPosition {
		return nil
	}
	holder, occupied, err := scope.OccupiedBy(ctx, newPosition)
	if err != nil {
		return fmt.Errorf("check position %d: %w", newPosition, err)
	}
	if occupied && holder != id {
		if newPosition < oldPosition {
			// Moving earlier: [new, old-1] shift up.
			if err := scope.ShiftRange(ctx, newPosition, oldPosition-1, +1, id); err != nil {
				return fmt.Errorf("shift up [%d,%d]: %w", newPosition, oldPosition-1, err)
			}
		} else {
			// Moving later: (old, new] shift down.
			if err := scope.ShiftRange(ctx, oldPosition+1, newPosition, -1, id); err != nil {
				return fmt.Errorf("shift down [%d,%d]: %w", oldPosition+1, newPosition, err)
			}
		}
	}
	if err := scope.SetPosition(ctx, id, newPosition); err != nil {
		return fmt.Errorf("set position %d: %w", newPosition, err)
	}
	return nil
}

// Move relocates the entity id from source to destination scope. The source
// gap is closed and a destination slot opened before the caller rewrites the
// entity's parent reference and position, so the destination never holds a
// transient duplicate. Returns the destination position; a nil requested
// position appends.
func (e *Engine) Move(ctx context.Context, source, destination Scope, oldPosition int, requested *int) (int, error) {
	newPosition, err := e.resolveDestination(ctx, destination, requested)
	if err != nil {
		return 0, err
	}
	if err := e.CloseGap(ctx, source, oldPosition); err != nil {
		return 0, err
	}
	if err := destination.ShiftFrom(ctx, newPosition, +1); err != nil {
		return 0, fmt.Errorf("open destination slot at %d: %w", newPosition, err)
	}
	return newPosition, nil
}

func (e *Engine) resolveDestination(ctx context.Context, destination Scope, requested *int) (int, error) {
	if requested == nil {
		max, err := destination.MaxPosition(ctx)
		if err != nil {
			return 0, fmt.Errorf("destination max position: %w", err)
		}
		return max + 1, nil
	}
	if *requested < 0 {
		return 0, fmt.Errorf("position must not be negative")
	}
	return *requested, nil
}

// ErrUnknownItem is wrapped by Reorder when the submitted list references an
// id outside the scope.
var ErrUnknownItem = fmt.Errorf("item does not belong to scope")

// Reorder applies a caller-supplied {id, position} mapping. Every id must
// already belong to the scope; nothing is written otherwise. The submitted
// positions are applied verbatim: the caller is trusted to send a full dense
// permutation, matching the entry points that expose this operation.
func (e *Engine) Reorder(ctx context.Context, scope Scope, orders []Item) error {
	current, err := scope.List(ctx)
	if err != nil {
		return fmt.Errorf("list scope: %w", err)
	}
	known := make(map[string]struct{}, len(current))
	for _, item := range current {
		known[item.ID] = struct{}{}
	}
	for _, order := range orders {
		if _, ok := known[order.ID]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownItem, order.ID)
		}
		if order.Position < 0 {
			return fmt.Errorf("position must not be negative")
		}
	}
	for _, order := range orders {
		if err := scope.SetPosition(ctx, order.ID, order.Position); err != nil {
			return fmt.Errorf("set position of %s: %w", order.ID, err)
		}
	}
	return nil
}
