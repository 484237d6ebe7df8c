// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package authstate

import (
	"context"
	"fmt"
)

// Publisher is the read-only view of a mount's State.
type Publisher struct {
	cell *Cell[State]
}

// NewPublisher returns a Publisher for the cell.
func NewPublisher(cell *Cell[State]) (*Publisher, error) {
	const op = "NewPublisher"
	if cell == nil {
		return nil, fmt.Errorf("%s: cell is nil: %w", op, ErrNilParameter)
	}
	return &Publisher{cell: cell}, nil
}

// Current returns the current State.
func (p *Publisher) Current() State {
	return p.cell.Load()
}

// Subscribe registers fn for every following State transition.  See
// Cell.Subscribe.
func (p *Publisher) Subscribe(fn func(State)) (unsubscribe func()) {
	return p.cell.Subscribe(fn)
}

// Wait returns the State once it's initialized.  It returns an error when
// ctx is done or the cell is closed first.
func (p *Publisher) Wait(ctx context.Context) (State, error) {
	const op = "Publisher.Wait"
	ready := make(chan State, 1)
	unsubscribe := p.cell.Subscribe(func(s State) {
		if !s.Initialized {
			return
		}
		select {
		case ready <- s:
		default:
		}
	})
	defer unsubscribe()

	// subscribed first, so a Store can't slip in between
	if s := p.cell.Load(); s.Initialized {
		return s, nil
	}
	select {
	case s := <-ready:
		return s, nil
	case <-p.cell.Done():
		// a Store may have been delivered right before Close
		if s := p.cell.Load(); s.Initialized {
			return s, nil
		}
		return State{}, fmt.Errorf("%s: %w", op, ErrClosed)
	case <-ctx.Done():
		return State{}, fmt.Errorf("%s: %w", op, ctx.Err())
	}
}
