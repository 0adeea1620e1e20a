package services

import (
	"context"
	"sync"

	"github.com/smart-aqua/backend/internal/db/models"
)

type pumpCall struct {
	DeviceID string
	Reason   string
}

type fakePump struct {
	mu    sync.Mutex
	calls []pumpCall
}

func (p *fakePump) StopPump(_ context.Context, deviceID, reason string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, pumpCall{DeviceID: deviceID, Reason: reason})
	return nil
}

func (p *fakePump) Calls() []pumpCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]pumpCall(nil), p.calls...)
}

type fakeStream struct {
	mu      sync.Mutex
	devices []string
}

func (s *fakeStream) ProduceTelemetry(deviceID string, _ interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.devices = append(s.devices, deviceID)
	return nil
}

type fakePublisher struct {
	mu       sync.Mutex
	err      error
	devices  []string
	payloads [][]byte
}

func (p *fakePublisher) PublishCommand(_ context.Context, deviceID string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.devices = append(p.devices, deviceID)
	p.payloads = append(p.payloads, payload)
	return nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	alerts []models.Alert
	err    error
}

func (n *recordingNotifier) Notify(_ context.Context, alert *models.Alert) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, *alert)
	return n.err
}

func (n *recordingNotifier) Alerts() []models.Alert {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]models.Alert(nil), n.alerts...)
}
