// Package usage meters assistant token spend against each user's rolling
// weekly budget. The meter is invoked synchronously inside the chat
// request path: Check before the model call, Update after it.
package usage

import (
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/dukerupert/tilly/internal/chat"
	"github.com/dukerupert/tilly/internal/model"
)

// Store is the persistence the meter needs. Reads and writes are not
// transactionally linked: two simultaneous chat requests from one user
// can each compute a cost from the same starting percent, losing one
// increment. This matches the upstream design and is an accepted risk at
// single-user request rates; the clamp itself is enforced in SQL.
type Store interface {
	Get(userID string) (*model.UsageTracking, error)
	Create(userID string, resetDate time.Time) (*model.UsageTracking, error)
	Reset(userID string, resetDate time.Time) error
	AddPercent(userID string, delta float64) (float64, error)
}

// Rates are model token prices in dollars per million tokens.
type Rates struct {
	InputPerMillion       float64
	CachedInputPerMillion float64
	OutputPerMillion      float64
}

type Config struct {
	Rates Rates
	// WeeklyBudget is the dollar allowance per 7-day period.
	WeeklyBudget float64
	// MaxRequestTokens caps the estimated size of one request.
	MaxRequestTokens int
}

// Limits is the pre-flight usage state for one user.
type Limits struct {
	Exceeded    bool      `json:"exceeded"`
	PercentUsed float64   `json:"percentUsed"`
	ResetDate   time.Time `json:"resetDate"`
}

type Meter struct {
	store  Store
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
}

func NewMeter(store Store, cfg Config, logger *slog.Logger) *Meter {
	return &Meter{store: store, cfg: cfg, logger: logger, now: time.Now}
}

// SetClock overrides the time source, for tests.
func (m *Meter) SetClock(now func() time.Time) {
	m.now = now
}

// CheckInputSize reports whether the estimated token count of the request
// fits under the configured ceiling. The estimate is a character-count
/// heuristic, not a tokenizer: cheap enough for every message, loose
// enough to never reject small requests.
func (m *Meter) CheckInputSize(userID string, messages []chat.Message) bool {
	estimated := EstimateTokens(messages)
	if estimated > m.cfg.MaxRequestTokens {
		m.logger.Warn("request too large",
			"user", userID,
			"estimated_tokens", estimated,
			"limit", m.cfg.MaxRequestTokens,
		)
		return false
	}
	return true
}

// Check loads (lazily creating) the user's tracking record, rolls an
// expired period forward, and reports whether the budget is spent.
func (m *Meter) Check(userID string) (Limits, error) {
	tracking, err := m.ensure(userID)
	if err != nil {
		return Limits{}, err
	}

	exceeded := tracking.WeeklyPercentUsed >= 100
	if exceeded {
		m.logger.Warn("usage limit exceeded",
			"user", userID,
			"percent_used", tracking.WeeklyPercentUsed,
			"reset", tracking.ResetDate,
		)
	}

	return Limits{
		Exceeded:    exceeded,
		PercentUsed: tracking.WeeklyPercentUsed,
		ResetDate:   tracking.ResetDate,
	}, nil
}

// Update converts the completion's token usage into a budget percentage
// and accumulates it, clamped at 100.
func (m *Meter) Update(userID string, u chat.Usage) error {
	if _, err := m.ensure(userID); err != nil {
		return err
	}

	cost := m.Cost(u)
	percentIncrease := cost / m.cfg.WeeklyBudget * 100

	percentUsed, err := m.store.AddPercent(userID, percentIncrease)
	if err != nil {
		return fmt.Errorf("update usage: %w", err)
	}

	m.logger.Info("usage updated",
		"user", userID,
		"input_tokens", u.InputTokens,
		"cached_tokens", u.CachedTokens,
		"output_tokens", u.OutputTokens,
		"cache_hit", u.CachedTokens > 0,
		"cost", fmt.Sprintf("$%.4f", cost),
		"percent_used", fmt.Sprintf("%.1f", percentUsed),
	)
	return nil
}

// Cost prices a completion: cached input tokens at the cached rate, the
// remaining input at the full rate, output at the output rate.
func (m *Meter) Cost(u chat.Usage) float64 {
	cached := float64(u.CachedTokens) / 1e6 * m.cfg.Rates.CachedInputPerMillion
	fresh := float64(u.InputTokens-u.CachedTokens) / 1e6 * m.cfg.Rates.InputPerMillion
	output := float64(u.OutputTokens) / 1e6 * m.cfg.Rates.OutputPerMillion
	return cached + fresh + output
}

// ensure returns the user's tracking record, creating it on first use and
// resetting it when the period has lapsed.
func (m *Meter) ensure(userID string) (*model.UsageTracking, error) {
	now := m.now().UTC()

	tracking, err := m.store.Get(userID)
	if err != nil {
		return nil, err
	}
	if tracking == nil {
		resetDate := now.AddDate(0, 0, 7)
		m.logger.Info("creating usage tracking",
			"user", userID,
			"weekly_budget", m.cfg.WeeklyBudget,
			"reset", resetDate,
		)
		tracking, err = m.store.Create(userID, resetDate)
		if err != nil {
			return nil, err
		}
		if tracking == nil {
			return nil, fmt.Errorf("usage tracking missing after create")
		}
		return tracking, nil
	}

	if !tracking.ResetDate.After(now) {
		next := AdvanceReset(tracking.ResetDate, now)
		m.logger.Info("resetting usage for new period", "user", userID, "next_reset", next)
		if err := m.store.Reset(userID, next); err != nil {
			return nil, err
		}
		tracking.WeeklyPercentUsed = 0
		tracking.ResetDate = next
	}

	return tracking, nil
}

// AdvanceReset rolls a lapsed reset date forward in fixed 7-day steps
// until it lands in the future, so a long-idle account gets one reset
// into the current period rather than a date still in the past.
func AdvanceReset(previous, now time.Time) time.Time {
	next := previous
	for !next.After(now) {
		next = next.AddDate(0, 0, 7)
	}
	return next
}

// EstimateTokens approximates the token count of a conversation as
// total characters divided by four, rounded up. Tool-call payloads count
// by their serialized length.
func EstimateTokens(messages []chat.Message) int {
	totalChars := 0
	for _, msg := range messages {
		totalChars += len(msg.Role) + len(msg.Content)
		for _, tc := range msg.ToolCalls {
			totalChars += len(tc.Name) + len(tc.Arguments) + len(tc.Output)
		}
	}
	return int(math.Ceil(float64(totalChars) / 4))
}
