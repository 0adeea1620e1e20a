package services

import (
	"context"
	"errors"

	"github.com/smart-aqua/backend/internal/db/models"
)

// Notifier delivers a stored alert to an outside party. Delivery is one-way
// and best effort; callers log failures and never retry.
type Notifier interface {
	Notify(ctx context.Context, alert *models.Alert) error
}

// NotifierFunc adapts a function to the Notifier interface
type NotifierFunc func(ctx context.Context, alert *models.Alert) error

// Notify calls f(ctx, alert)
func (f NotifierFunc) Notify(ctx context.Context, alert *models.Alert) error {
	return f(ctx, alert)
}

// MultiNotifier fans an alert out to every configured notifier
type MultiNotifier struct {
	notifiers []Notifier
}

// NewMultiNotifier creates a fan-out notifier, skipping nil entries
func NewMultiNotifier(notifiers ...Notifier) *MultiNotifier {
	m := &MultiNotifier{}
	for _, n := range notifiers {
		m.Add(n)
	}
	return m
}

// Add registers another notifier
func (m *MultiNotifier) Add(n Notifier) {
	if n != nil {
		m.notifiers = append(m.notifiers, n)
	}
}

// Len returns the number of registered notifiers
func (m *MultiNotifier) Len() int {
	return len(m.notifiers)
}

// Notify delivers to all notifiers and joins their errors
func (m *MultiNotifier) Notify(ctx context.Context, alert *models.Alert) error {
	var errs []error
	for _, n := range m.notifiers {
		if err := n.Notify(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
