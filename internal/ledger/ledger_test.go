package ledger_test

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/firtigh/firtigh/internal/ledger"
)

// memStore aggregates usage records per (date, model) the same way the
// SQLite store does, behind a mutex so concurrent records stay exact.
type memStore struct {
	mu      sync.Mutex
	records []ledger.UsageRecord
	daily   map[string]*ledger.DailyUsage
	fail    error
}

func newMemStore() *memStore {
	return &memStore{daily: make(map[string]*ledger.DailyUsage)}
}

func (s *memStore) RecordUsage(_ context.Context, rec ledger.UsageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.records = append(s.records, rec)

	date := rec.Timestamp.Format("2006-01-02")
	key := date + "/" + rec.Model
	agg, ok := s.daily[key]
	if !ok {
		agg = &ledger.DailyUsage{Date: date, Model: rec.Model}
		s.daily[key] = agg
	}
	agg.Requests++
	agg.PromptTokens += int64(rec.PromptTokens)
	agg.OutputTokens += int64(rec.OutputTokens)
	agg.CostUSD += rec.CostUSD
	return nil
}

func (s *memStore) UsageSince(_ context.Context, since string) ([]ledger.DailyUsage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return nil, s.fail
	}
	var out []ledger.DailyUsage
	for _, agg := range s.daily {
		if agg.Date >= since {
			out = append(out, *agg)
		}
	}
	return out, nil
}

func TestSummarize_SameDayAggregation(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	l := ledger.New(store, nil)
	ctx := context.Background()

	if err := l.Record(ctx, -100, "A", 60, 40); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if err := l.Record(ctx, -100, "A", 90, 60); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	summary, err := l.Summarize(ctx, 1)
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	if summary.TotalTokens != 250 {
		t.Errorf("Summarize(1).TotalTokens = %d, want 250", summary.TotalTokens)
	}
	if summary.Requests != 2 {
		t.Errorf("Summarize(1).Requests = %d, want 2", summary.Requests)
	}
	if summary.ByModel["A"] != 250 {
		t.Errorf("Summarize(1).ByModel[A] = %d, want 250", summary.ByModel["A"])
	}

	// Both same-day records collapsed into one daily aggregate.
	if len(store.daily) != 1 {
		t.Errorf("daily aggregates = %d, want 1", len(store.daily))
	}
}

func TestRecord_GroupAttribution(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	l := ledger.New(store, nil)
	ctx := context.Background()

	if err := l.Record(ctx, -1001234, "A", 10, 5); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if err := l.Record(ctx, -1005678, "A", 20, 10); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	if len(store.records) != 2 {
		t.Fatalf("stored records = %d, want 2", len(store.records))
	}
	if store.records[0].GroupID != -1001234 {
		t.Errorf("records[0].GroupID = %d, want -1001234", store.records[0].GroupID)
	}
	if store.records[1].GroupID != -1005678 {
		t.Errorf("records[1].GroupID = %d, want -1005678", store.records[1].GroupID)
	}
}

func TestRecord_Concurrent(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	l := ledger.New(store, nil)
	ctx := context.Background()

	const writers = 50
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := l.Record(ctx, -100, "gemini-2.5-flash", 10, 5); err != nil {
				t.Errorf("Record() error = %v", err)
			}
		}()
	}
	wg.Wait()

	summary, err := l.Summarize(ctx, 1)
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	if want := int64(writers * 15); summary.TotalTokens != want {
		t.Errorf("Summarize(1).TotalTokens = %d, want %d", summary.TotalTokens, want)
	}
	if summary.Requests != writers {
		t.Errorf("Summarize(1).Requests = %d, want %d", summary.Requests, writers)
	}
}

func TestSummarize_Window(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	today := time.Now().UTC().Format("2006-01-02")
	lastWeek := time.Now().UTC().AddDate(0, 0, -7).Format("2006-01-02")
	store.daily[today+"/A"] = &ledger.DailyUsage{Date: today, Model: "A", Requests: 1, PromptTokens: 100}
	store.daily[lastWeek+"/A"] = &ledger.DailyUsage{Date: lastWeek, Model: "A", Requests: 1, PromptTokens: 900}

	l := ledger.New(store, nil)

	narrow, err := l.Summarize(context.Background(), 1)
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	if narrow.TotalTokens != 100 {
		t.Errorf("Summarize(1).TotalTokens = %d, want only today's 100", narrow.TotalTokens)
	}

	wide, err := l.Summarize(context.Background(), 30)
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	if wide.TotalTokens != 1000 {
		t.Errorf("Summarize(30).TotalTokens = %d, want 1000", wide.TotalTokens)
	}
}

func TestRecord_StoreFailure(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	store.fail = errors.New("database locked")
	l := ledger.New(store, nil)

	if err := l.Record(context.Background(), -100, "A", 1, 1); err == nil {
		t.Error("Record() error = nil, want the store failure surfaced")
	}
}

func TestReport(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	l := ledger.New(store, nil)
	ctx := context.Background()

	report, err := l.Report(ctx, 30)
	if err != nil {
		t.Fatalf("Report() error = %v", err)
	}
	if !strings.Contains(report, "مصرفی ثبت نشده است") {
		t.Errorf("empty report = %q, want the no-usage notice", report)
	}

	if err := l.Record(ctx, -100, "gemini-2.5-flash", 1000, 500); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if err := l.Record(ctx, -100, "gemini-2.0-flash", 200, 100); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	report, err = l.Report(ctx, 30)
	if err != nil {
		t.Fatalf("Report() error = %v", err)
	}

	// Daily rows and per-model aggregates each break tokens out by direction.
	for _, want := range []string{
		"به تفکیک روز:",
		"به تفکیک مدل:",
		"gemini-2.5-flash",
		"gemini-2.0-flash",
		"ورودی: 1000",
		"خروجی: 500",
		"ورودی: 200",
		"خروجی: 100",
		"جمع کل: 1800 توکن (1200 ورودی، 600 خروجی)",
	} {
		if !strings.Contains(report, want) {
			t.Errorf("report missing %q:\n%s", want, report)
		}
	}

	// Model aggregates come out in sorted order.
	if strings.Index(report, "gemini-2.0-flash") > strings.Index(report, "gemini-2.5-flash") {
		t.Errorf("report model rows out of order:\n%s", report)
	}
}

func TestCost(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		model  string
		prompt int
		output int
		want   float64
	}{
		{
			name:   "Known flash model",
			model:  "gemini-2.5-flash",
			prompt: 1000,
			output: 1000,
			want:   0.0003 + 0.0025,
		},
		{
			name:   "Versioned model matches by prefix",
			model:  "gemini-2.0-flash-001",
			prompt: 2000,
			output: 0,
			want:   0.0002,
		},
		{
			name:   "Unknown model uses the default price",
			model:  "some-future-model",
			prompt: 1000,
			output: 1000,
			want:   0.00125 + 0.01,
		},
		{
			name:  "Zero tokens cost nothing",
			model: "gemini-2.5-pro",
			want:  0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := ledger.Cost(tt.model, tt.prompt, tt.output)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Cost(%q, %d, %d) = %g, want %g", tt.model, tt.prompt, tt.output, got, tt.want)
			}
		})
	}
}
