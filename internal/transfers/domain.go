package transfers

import (
	"fmt"
	"time"

	"github.com/tebahq/teba/internal/shared"
)

// Transfer lifecycle, shared by batches and their lines.
const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusCancelled = "cancelled"
)

// Batch groups transfer lines sharing one source/destination pair. The batch
// status only flips to confirmed when every line confirmed; a failing line
// rolls back the whole confirmation.
type Batch struct {
	ID             int64      `json:"id"`
	Reference      string     `json:"reference"`
	FromLocationID int64      `json:"from_location_id"`
	ToLocationID   int64      `json:"to_location_id"`
	Status         string     `json:"status"`
	Notes          string     `json:"notes,omitempty"`
	Lines          []Line     `json:"lines,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	ConfirmedBy    *int64     `json:"confirmed_by,omitempty"`
	ConfirmedAt    *time.Time `json:"confirmed_at,omitempty"`
}

// Line moves one product between the batch's locations.
type Line struct {
	ID        int64  `json:"id"`
	BatchID   int64  `json:"batch_id"`
	ProductID int64  `json:"product_id"`
	Quantity  int64  `json:"quantity"`
	Status    string `json:"status"`
}

// Confirm transitions a pending line. The caller moves the stock.
func (l Line) Confirm() (Line, error) {
	if l.Status != StatusPending {
		return Line{}, fmt.Errorf("%w: transfer line %d is %s, only pending can be confirmed",
			shared.ErrInvalidTransition, l.ID, l.Status)
	}
	l.Status = StatusConfirmed
	return l, nil
}

// Cancel transitions a pending line. No stock effect.
func (l Line) Cancel() (Line, error) {
	if l.Status != StatusPending {
		return Line{}, fmt.Errorf("%w: transfer line %d is %s, only pending can be cancelled",
			shared.ErrInvalidTransition, l.ID, l.Status)
	}
	l.Status = StatusCancelled
	return l, nil
}

// Confirm transitions a pending batch. Locations must both be set before any
// stock can move.
func (b Batch) Confirm(actorID int64, at time.Time) (Batch, error) {
	if b.Status != StatusPending {
		return Batch{}, fmt.Errorf("%w: batch %s is %s, only pending can be confirmed",
			shared.ErrInvalidTransition, b.Reference, b.Status)
	}
	if b.FromLocationID == 0 || b.ToLocationID == 0 {
		return Batch{}, fmt.Errorf("%w: batch %s is missing a source or destination location",
			shared.ErrInvalidInput, b.Reference)
	}
	b.Status = StatusConfirmed
	if actorID != 0 {
		b.ConfirmedBy = &actorID
	}
	b.ConfirmedAt = &at
	return b, nil
}

// Cancel transitions a pending batch. No stock effect.
func (b Batch) Cancel() (Batch, error) {
	if b.Status != StatusPending {
		return Batch{}, fmt.Errorf("%w: batch %s is %s, only pending can be cancelled",
			shared.ErrInvalidTransition, b.Reference, b.Status)
	}
	b.Status = StatusCancelled
	return b, nil
}
