package notify

import (
	"context"
	"iter"
	"log/slog"
	"sync"
	"time"

	"github.com/dukerupert/tilly/internal/model"
	"github.com/dukerupert/tilly/internal/push"

	"golang.org/x/sync/errgroup"
)

// DefaultMaxConcurrency bounds how many per-user pipelines run at once.
const DefaultMaxConcurrency = 50

// Registry enumerates users opted into background push processing.
type Registry interface {
	All() iter.Seq2[string, error]
}

// SettingsSource loads and marks a user's notification settings.
type SettingsSource interface {
	Get(userID string) (*model.NotificationSettings, error)
	MarkDelivered(userID string, at time.Time) error
}

// PeopleSource loads a user's person graph with reminders attached.
type PeopleSource interface {
	ListWithReminders(userID string) ([]model.Person, error)
}

// DeviceSource lists a user's enabled push devices.
type DeviceSource interface {
	ListEnabled(userID string) ([]model.PushDevice, error)
}

// Result is one user's delivery outcome, reported by the cron endpoint.
type Result struct {
	UserID            string `json:"userID"`
	NotificationCount int    `json:"notificationCount"`
	Success           bool   `json:"success"`
}

type outcomeKind int

const (
	outcomeCompleted outcomeKind = iota
	outcomeSkipped
	outcomeFailed
)

// outcome is the explicit terminal state of one user's pipeline. Every
// stage either continues with data or returns one of these; no stage
// signals control flow through panics or sentinel errors.
type outcome struct {
	kind   outcomeKind
	reason string
	result Result
}

func skipped(reason string) outcome {
	return outcome{kind: outcomeSkipped, reason: reason}
}

func failed(reason string) outcome {
	return outcome{kind: outcomeFailed, reason: reason}
}

// Runner drives the daily digest pipeline across the registry with a
// fixed in-flight cap. All collaborators are injected so tests run
// against in-memory fakes.
type Runner struct {
	registry Registry
	settings SettingsSource
	people   PeopleSource
	devices  DeviceSource
	sender   Sender
	logger   *slog.Logger

	maxConcurrency int
	now            func() time.Time
}

func NewRunner(registry Registry, settings SettingsSource, people PeopleSource, devices DeviceSource, sender Sender, logger *slog.Logger) *Runner {
	return &Runner{
		registry:       registry,
		settings:       settings,
		people:         people,
		devices:        devices,
		sender:         sender,
		logger:         logger,
		maxConcurrency: DefaultMaxConcurrency,
		now:            time.Now,
	}
}

// SetMaxConcurrency overrides the in-flight pipeline cap.
func (r *Runner) SetMaxConcurrency(n int) {
	if n > 0 {
		r.maxConcurrency = n
	}
}

// SetClock overrides the time source, for tests.
func (r *Runner) SetClock(now func() time.Time) {
	r.now = now
}

// RunAll processes every registered user and returns the outcome of each
// completed pipeline. Skips and failures are logged and never abort the
// batch; registry enumeration errors end enumeration but already-admitted
// pipelines still finish.
func (r *Runner) RunAll(ctx context.Context) []Result {
	var (
		mu      sync.Mutex
		results []Result
	)

	g := new(errgroup.Group)
	g.SetLimit(r.maxConcurrency)

	for userID, err := range r.registry.All() {
		if err != nil {
			r.logger.Error("registry enumeration failed", "error", err)
			break
		}
		if ctx.Err() != nil {
			r.logger.Warn("run cancelled", "error", ctx.Err())
			break
		}

		g.Go(func() error {
			out := r.processUser(userID)
			switch out.kind {
			case outcomeSkipped:
				r.logger.Info("skipped user", "user", userID, "reason", out.reason)
			case outcomeFailed:
				r.logger.Error("pipeline failed", "user", userID, "reason", out.reason)
			case outcomeCompleted:
				mu.Lock()
				results = append(results, out.result)
				mu.Unlock()
			}
			return nil
		})
	}

	g.Wait()
	return results
}

// processUser runs the five pipeline stages for one user. Stages are
// strictly sequential; the first terminal stage wins.
func (r *Runner) processUser(userID string) outcome {
	nowUTC := r.now().UTC()

	// Stage 1: load settings.
	settings, err := r.settings.Get(userID)
	if err != nil {
		return failed("load settings: " + err.Error())
	}

	// Stage 2: gate on schedule. Timezone errors fail closed: never
	// deliver on ambiguous time data.
	due, err := IsDue(settings, nowUTC)
	if err != nil {
		return failed("evaluate schedule: " + err.Error())
	}
	if !due {
		return skipped("not past notification time (configured " +
			settings.EffectiveNotificationTime() + " " + settings.EffectiveTimezone() + ")")
	}

	delivered, err := DeliveredToday(settings, nowUTC)
	if err != nil {
		return failed("evaluate delivery state: " + err.Error())
	}
	if delivered {
		return skipped("already delivered today")
	}

	// Stage 3: count due reminders.
	people, err := r.people.ListWithReminders(userID)
	if err != nil {
		return failed("load people: " + err.Error())
	}
	dueCount, err := CountDueReminders(people, settings, nowUTC)
	if err != nil {
		return failed("count due reminders: " + err.Error())
	}
	if dueCount == 0 {
		// Nothing to say today; marking delivered settles the day so the
		// hourly cron stops re-evaluating this user until tomorrow.
		if err := r.settings.MarkDelivered(userID, nowUTC); err != nil {
			return failed("mark delivered: " + err.Error())
		}
		return outcome{kind: outcomeCompleted, result: Result{UserID: userID, Success: true}}
	}

	// Stage 4: resolve devices.
	devices, err := r.devices.ListEnabled(userID)
	if err != nil {
		return failed("load devices: " + err.Error())
	}
	if len(devices) == 0 {
		if err := r.settings.MarkDelivered(userID, nowUTC); err != nil {
			return failed("mark delivered: " + err.Error())
		}
		return outcome{kind: outcomeCompleted, result: Result{UserID: userID, Success: true}}
	}

	// Stage 5: dispatch. Delivery is attempted at most once per local
	// day: the settings are marked regardless of the success mix, so a
	// partially failed fan-out is never retried into a notification storm.
	payload := push.DigestPayload(userID, dueCount)
	dispatch := Dispatch(devices, payload, r.sender, r.logger.With("user", userID))

	if err := r.settings.MarkDelivered(userID, nowUTC); err != nil {
		r.logger.Error("mark delivered after dispatch", "user", userID, "error", err)
	}

	return outcome{kind: outcomeCompleted, result: Result{
		UserID:            userID,
		NotificationCount: dueCount,
		Success:           dispatch.Delivered(),
	}}
}
