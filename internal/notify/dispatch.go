package notify

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/dukerupert/tilly/internal/model"
	"github.com/dukerupert/tilly/internal/push"

	"go.uber.org/multierr"
)

// Sender delivers one payload to one device endpoint.
type Sender interface {
	Send(device model.PushDevice, payload push.Payload) error
}

// DeviceResult is the outcome of one device send.
type DeviceResult struct {
	Endpoint string
	Err      error
}

// DispatchResult aggregates the per-device outcomes of one user's fan-out.
type DispatchResult struct {
	Devices []DeviceResult
}

// Delivered reports whether at least one device received the payload.
// The digest is considered delivered for the user as soon as any device
// got it.
func (r DispatchResult) Delivered() bool {
	for _, d := range r.Devices {
		if d.Err == nil {
			return true
		}
	}
	return false
}

// Err returns all device failures combined, or nil when every send
// succeeded.
func (r DispatchResult) Err() error {
	var errs []error
	for _, d := range r.Devices {
		if d.Err != nil {
			errs = append(errs, d.Err)
		}
	}
	return multierr.Combine(errs...)
}

// Dispatch sends payload to every device concurrently. One device's
// failure never blocks or aborts the others, and failed devices are left
// registered: expired endpoints are logged so an operator can see them,
// but the pipeline does not remove devices. An empty device list is a
// successful no-op.
func Dispatch(devices []model.PushDevice, payload push.Payload, sender Sender, logger *slog.Logger) DispatchResult {
	results := make([]DeviceResult, len(devices))

	var wg sync.WaitGroup
	for i, device := range devices {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := sender.Send(device, payload)
			results[i] = DeviceResult{Endpoint: device.Endpoint, Err: err}

			switch {
			case err == nil:
				logger.Debug("sent push", "endpoint", endpointSuffix(device.Endpoint))
			case errors.Is(err, push.ErrExpired):
				logger.Warn("push endpoint expired", "endpoint", endpointSuffix(device.Endpoint))
			default:
				logger.Warn("push send failed", "endpoint", endpointSuffix(device.Endpoint), "error", err)
			}
		}()
	}
	wg.Wait()

	return DispatchResult{Devices: results}
}

// endpointSuffix returns the tail of a push endpoint URL, enough to tell
// devices apart in logs without recording the full capability URL.
func endpointSuffix(endpoint string) string {
	if len(endpoint) <= 10 {
		return endpoint
	}
	return "..." + endpoint[len(endpoint)-10:]
}
