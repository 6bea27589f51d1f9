// Package program holds the communication programs contacts opt in and out of.
package program

import (
	"time"

	dErrors "consentry/pkg/domain-errors"
)

type Status string

const (
	StatusOpen   Status = "open"
	StatusClosed Status = "closed"
)

// Program is one communication program (a campaign, newsletter, alert stream).
type Program struct {
	ID        string
	Name      string
	Status    Status
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CanAcceptOptIn enforces the closed-program guard. Opting in to a closed
// program is rejected regardless of caller scope.
func (p *Program) CanAcceptOptIn() error {
	if p.Status == StatusClosed {
		return dErrors.New(dErrors.CodeInvariantViolation, "program is closed")
	}
	return nil
}

// ApplyClose transitions the program to closed.
func (p *Program) ApplyClose(now time.Time) {
	p.Status = StatusClosed
	p.UpdatedAt = now
}

// ApplyReopen transitions the program back to open.
func (p *Program) ApplyReopen(now time.Time) {
	p.Status = StatusOpen
	p.UpdatedAt = now
}
