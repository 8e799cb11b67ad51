package services

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/vickym250/jnschool/internal/core"
	"github.com/vickym250/jnschool/internal/store"
)

// Registry hands out registration and roll numbers. With a Counter the
// reservation is atomic; the scanned maximum acts as its floor so numbers
// issued before the counter existed are never repeated. Without a Counter
// it falls back to read-max-plus-one and relies on the store's unique
// indexes to reject collisions.
type Registry struct {
	students store.StudentRepository
	counter  store.Counter
}

func NewRegistry(students store.StudentRepository, counter store.Counter) *Registry {
	return &Registry{students: students, counter: counter}
}

// PeekRegistrationNumber previews the next registration number without
// reserving it.
func (r *Registry) PeekRegistrationNumber(ctx context.Context) (string, error) {
	highest, found, err := r.students.MaxRegistrationNumber(ctx)
	if err != nil {
		return "", fmt.Errorf("scan registration numbers: %w", err)
	}
	return core.NextRegistrationNumber(highest, found), nil
}

func (r *Registry) NextRegistrationNumber(ctx context.Context) (string, error) {
	highest, found, err := r.students.MaxRegistrationNumber(ctx)
	if err != nil {
		return "", fmt.Errorf("scan registration numbers: %w", err)
	}
	if r.counter == nil {
		return core.NextRegistrationNumber(highest, found), nil
	}
	n, err := r.counter.Next(ctx, core.RegistrationCounterKey, core.RegistrationFloor(highest, found))
	if err != nil {
		return "", fmt.Errorf("reserve registration number: %w", err)
	}
	return strconv.FormatInt(n, 10), nil
}

// PeekRollNumber previews the next roll number of a class in a session.
func (r *Registry) PeekRollNumber(ctx context.Context, className, session string) (string, error) {
	rolls, err := r.rolls(ctx, className, session)
	if err != nil {
		return "", err
	}
	return core.NextRollNumber(rolls), nil
}

func (r *Registry) NextRollNumber(ctx context.Context, className, session string) (string, error) {
	rolls, err := r.rolls(ctx, className, session)
	if err != nil {
		return "", err
	}
	if r.counter == nil {
		return core.NextRollNumber(rolls), nil
	}
	highest, found := core.MaxNumeric(rolls)
	key := core.RollCounterKey(className, session)
	n, err := r.counter.Next(ctx, key, core.RollFloor(highest, found))
	if err != nil {
		return "", fmt.Errorf("reserve roll number: %w", err)
	}
	return strconv.FormatInt(n, 10), nil
}

// ReleaseRegistrationNumber gives back a reserved registration number that
// was never stored.
func (r *Registry) ReleaseRegistrationNumber(ctx context.Context, reg string) error {
	return r.release(ctx, core.RegistrationCounterKey, reg)
}

// ReleaseRollNumber gives back a reserved roll number that was never stored.
func (r *Registry) ReleaseRollNumber(ctx context.Context, className, session, roll string) error {
	return r.release(ctx, core.RollCounterKey(className, session), roll)
}

func (r *Registry) release(ctx context.Context, key, value string) error {
	if r.counter == nil {
		return nil
	}
	n, ok := core.ParseNumber(value)
	if !ok {
		return nil
	}
	if _, err := r.counter.Release(ctx, key, n); err != nil {
		return fmt.Errorf("release %s: %w", key, err)
	}
	return nil
}

func (r *Registry) rolls(ctx context.Context, className, session string) ([]string, error) {
	className, session = strings.TrimSpace(className), strings.TrimSpace(session)
	if className == "" {
		return nil, fmt.Errorf("%w: className", core.ErrMissingField)
	}
	if session == "" {
		return nil, fmt.Errorf("%w: session", core.ErrMissingField)
	}
	if _, err := core.ParseSession(session); err != nil {
		return nil, err
	}
	rolls, err := r.students.RollNumbers(ctx, className, session)
	if err != nil {
		return nil, fmt.Errorf("scan roll numbers: %w", err)
	}
	return rolls, nil
}
