// Package ledger accounts model token usage: it appends per-request records,
// maintains per-day per-model aggregates, and renders usage reports for the
// admin.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// UsageRecord is one completed request's accounting entry.
type UsageRecord struct {
	Timestamp    time.Time `db:"timestamp"`
	GroupID      int64     `db:"group_id"`
	Model        string    `db:"model"`
	PromptTokens int       `db:"prompt_tokens"`
	OutputTokens int       `db:"output_tokens"`
	CostUSD      float64   `db:"cost_usd"`
}

// DailyUsage is the aggregate for one (date, model) pair.
type DailyUsage struct {
	Date         string  `db:"date"`
	Model        string  `db:"model"`
	Requests     int64   `db:"requests"`
	PromptTokens int64   `db:"prompt_tokens"`
	OutputTokens int64   `db:"output_tokens"`
	CostUSD      float64 `db:"cost_usd"`
}

// Summary totals usage across a window of days.
type Summary struct {
	Days         int
	Requests     int64
	PromptTokens int64
	OutputTokens int64
	TotalTokens  int64
	CostUSD      float64
	ByModel      map[string]int64
}

// Store is the persistence the ledger writes through to. RecordUsage must
// apply the record insert and the daily aggregate update as one atomic
// operation so concurrent writers never lose counts.
type Store interface {
	RecordUsage(ctx context.Context, rec UsageRecord) error
	UsageSince(ctx context.Context, since string) ([]DailyUsage, error)
}

// Ledger is the token accounting front door.
type Ledger struct {
	store  Store
	logger *slog.Logger
}

// New creates a ledger over the given store.
func New(store Store, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{store: store, logger: logger.With("component", "ledger")}
}

// Record accounts one completed request against the group it served. The
// cost is derived from the model's price table; the daily aggregate for
// (today, model) is updated in the same storage operation.
func (l *Ledger) Record(ctx context.Context, groupID int64, model string, promptTokens, outputTokens int) error {
	rec := UsageRecord{
		Timestamp:    time.Now().UTC(),
		GroupID:      groupID,
		Model:        model,
		PromptTokens: promptTokens,
		OutputTokens: outputTokens,
		CostUSD:      Cost(model, promptTokens, outputTokens),
	}
	if err := l.store.RecordUsage(ctx, rec); err != nil {
		return fmt.Errorf("failed to record usage: %w", err)
	}
	return nil
}

// Summarize totals usage over the last days days, including today.
func (l *Ledger) Summarize(ctx context.Context, days int) (Summary, error) {
	if days <= 0 {
		days = 1
	}
	rows, err := l.usageWindow(ctx, days)
	if err != nil {
		return Summary{}, err
	}

	summary := Summary{Days: days, ByModel: make(map[string]int64)}
	for _, row := range rows {
		summary.Requests += row.Requests
		summary.PromptTokens += row.PromptTokens
		summary.OutputTokens += row.OutputTokens
		summary.CostUSD += row.CostUSD
		summary.ByModel[row.Model] += row.PromptTokens + row.OutputTokens
	}
	summary.TotalTokens = summary.PromptTokens + summary.OutputTokens
	return summary, nil
}

// Report renders a human-readable usage report over the last days days:
// one line per (date, model) aggregate, a per-model aggregate section, and
// window totals. Input and output tokens are reported separately.
func (l *Ledger) Report(ctx context.Context, days int) (string, error) {
	if days <= 0 {
		days = 1
	}
	rows, err := l.usageWindow(ctx, days)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "گزارش مصرف توکن (%d روز گذشته)\n", days)
	if len(rows) == 0 {
		b.WriteString("مصرفی ثبت نشده است.")
		return b.String(), nil
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Date != rows[j].Date {
			return rows[i].Date < rows[j].Date
		}
		return rows[i].Model < rows[j].Model
	})

	perModel := make(map[string]DailyUsage)
	var totalPrompt, totalOutput int64
	var totalCost float64

	b.WriteString("به تفکیک روز:\n")
	for _, row := range rows {
		totalPrompt += row.PromptTokens
		totalOutput += row.OutputTokens
		totalCost += row.CostUSD

		agg := perModel[row.Model]
		agg.Model = row.Model
		agg.Requests += row.Requests
		agg.PromptTokens += row.PromptTokens
		agg.OutputTokens += row.OutputTokens
		agg.CostUSD += row.CostUSD
		perModel[row.Model] = agg

		fmt.Fprintf(&b, "%s  %s  درخواست: %d  ورودی: %d  خروجی: %d  هزینه: $%.4f\n",
			row.Date, row.Model, row.Requests, row.PromptTokens, row.OutputTokens, row.CostUSD)
	}

	models := make([]string, 0, len(perModel))
	for m := range perModel {
		models = append(models, m)
	}
	sort.Strings(models)

	b.WriteString("به تفکیک مدل:\n")
	for _, m := range models {
		agg := perModel[m]
		fmt.Fprintf(&b, "%s  درخواست: %d  ورودی: %d  خروجی: %d  هزینه: $%.4f\n",
			agg.Model, agg.Requests, agg.PromptTokens, agg.OutputTokens, agg.CostUSD)
	}

	fmt.Fprintf(&b, "جمع کل: %d توکن (%d ورودی، %d خروجی)، $%.4f",
		totalPrompt+totalOutput, totalPrompt, totalOutput, totalCost)
	return b.String(), nil
}

func (l *Ledger) usageWindow(ctx context.Context, days int) ([]DailyUsage, error) {
	since := time.Now().UTC().AddDate(0, 0, -(days - 1)).Format(dateLayout)
	rows, err := l.store.UsageSince(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query usage: %w", err)
	}
	return rows, nil
}
