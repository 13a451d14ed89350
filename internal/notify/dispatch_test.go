package notify

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/dukerupert/tilly/internal/model"
	"github.com/dukerupert/tilly/internal/push"
)

// fakeSender fails for endpoints listed in errs and records every send.
type fakeSender struct {
	mu   sync.Mutex
	errs map[string]error
	sent []push.Payload
}

func (f *fakeSender) Send(device model.PushDevice, payload push.Payload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.errs[device.Endpoint]; ok {
		return err
	}
	f.sent = append(f.sent, payload)
	return nil
}

func (f *fakeSender) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func devices(endpoints ...string) []model.PushDevice {
	out := make([]model.PushDevice, len(endpoints))
	for i, e := range endpoints {
		out[i] = model.PushDevice{ID: int64(i + 1), UserID: "u1", Endpoint: e, Enabled: true}
	}
	return out
}

func TestDispatchAllSucceed(t *testing.T) {
	sender := &fakeSender{}
	res := Dispatch(devices("https://push/a", "https://push/b"), push.DigestPayload("u1", 3), sender, discardLogger())

	if !res.Delivered() {
		t.Error("expected delivered")
	}
	if res.Err() != nil {
		t.Errorf("unexpected error: %v", res.Err())
	}
	if sender.sentCount() != 2 {
		t.Errorf("sent = %d, want 2", sender.sentCount())
	}
}

func TestDispatchPartialFailureStillDelivered(t *testing.T) {
	sender := &fakeSender{errs: map[string]error{
		"https://push/b": errors.New("service unavailable"),
	}}
	res := Dispatch(devices("https://push/a", "https://push/b"), push.DigestPayload("u1", 1), sender, discardLogger())

	if !res.Delivered() {
		t.Error("one successful device should mark the digest delivered")
	}
	if res.Err() == nil {
		t.Error("expected the failed device's error to be reported")
	}
	if len(res.Devices) != 2 {
		t.Errorf("device results = %d, want 2", len(res.Devices))
	}
}

func TestDispatchAllFail(t *testing.T) {
	sender := &fakeSender{errs: map[string]error{
		"https://push/a": errors.New("boom"),
		"https://push/b": push.ErrExpired,
	}}
	res := Dispatch(devices("https://push/a", "https://push/b"), push.DigestPayload("u1", 1), sender, discardLogger())

	if res.Delivered() {
		t.Error("no successful device, should not be delivered")
	}
	if res.Err() == nil {
		t.Error("expected combined errors")
	}
}

func TestDispatchExpiredEndpointIsNotFatal(t *testing.T) {
	sender := &fakeSender{errs: map[string]error{
		"https://push/old": push.ErrExpired,
	}}
	res := Dispatch(devices("https://push/old", "https://push/new"), push.DigestPayload("u1", 2), sender, discardLogger())

	if !res.Delivered() {
		t.Error("expired endpoint should not block the healthy one")
	}
	if !errors.Is(res.Err(), push.ErrExpired) {
		t.Errorf("expected ErrExpired in combined error, got %v", res.Err())
	}
}

func TestDispatchNoDevices(t *testing.T) {
	res := Dispatch(nil, push.DigestPayload("u1", 1), &fakeSender{}, discardLogger())
	if res.Delivered() {
		t.Error("no devices means nothing was delivered")
	}
	if res.Err() != nil {
		t.Errorf("unexpected error: %v", res.Err())
	}
}

func TestEndpointSuffix(t *testing.T) {
	if got := endpointSuffix("short"); got != "short" {
		t.Errorf("endpointSuffix(short) = %q", got)
	}
	if got := endpointSuffix("https://push.example.com/subscription/abcdef123456"); got != "...cdef123456" {
		t.Errorf("endpointSuffix = %q", got)
	}
}
