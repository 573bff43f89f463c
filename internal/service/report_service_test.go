package service

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/expresso-itaporanga/tracking-api/internal/domain"
)

func TestResolveWindow(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 5, 18, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		period   string
		start    string
		end      string
		wantFrom time.Time
		wantTo   time.Time
		wantErr  error
	}{
		{
			name:     "month",
			period:   "month",
			wantFrom: time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC),
			wantTo:   time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC).Add(-time.Nanosecond),
		},
		{
			name:     "quarter",
			period:   "quarter",
			wantFrom: time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC),
			wantTo:   time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC).Add(-time.Nanosecond),
		},
		{
			name:     "year",
			period:   "YEAR",
			wantFrom: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
			wantTo:   time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).Add(-time.Nanosecond),
		},
		{
			name:     "empty period trails thirty days",
			wantFrom: now.Add(-30 * 24 * time.Hour),
			wantTo:   now,
		},
		{
			name:     "explicit bounds win over period",
			period:   "year",
			start:    "2025-02-01",
			end:      "2025-02-28",
			wantFrom: time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC),
			wantTo:   time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC),
		},
		{
			name:     "rfc3339 bounds",
			start:    "2025-02-01T06:00:00Z",
			end:      "2025-02-02T06:00:00Z",
			wantFrom: time.Date(2025, 2, 1, 6, 0, 0, 0, time.UTC),
			wantTo:   time.Date(2025, 2, 2, 6, 0, 0, 0, time.UTC),
		},
		{
			name:    "unknown period",
			period:  "fortnight",
			wantErr: domain.ErrInvalidDate,
		},
		{
			name:    "bad bound",
			start:   "02/01/2025",
			end:     "2025-02-28",
			wantErr: domain.ErrInvalidDate,
		},
		{
			name:    "missing end bound",
			start:   "2025-02-01",
			wantErr: domain.ErrInvalidDate,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			window, err := ResolveWindow(tc.period, tc.start, tc.end, now)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("error = %v, want %v", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ResolveWindow() error = %v", err)
			}
			if !window.From.Equal(tc.wantFrom) {
				t.Fatalf("from = %v, want %v", window.From, tc.wantFrom)
			}
			if !window.To.Equal(tc.wantTo) {
				t.Fatalf("to = %v, want %v", window.To, tc.wantTo)
			}
		})
	}
}

func TestPerformanceReportCounts(t *testing.T) {
	t.Parallel()

	expected := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	createdA := time.Date(2025, 3, 8, 0, 0, 0, 0, time.UTC)
	deliveredA := expected.AddDate(0, 0, -1)
	reason := "Traffic"

	deliveries := []domain.Delivery{
		{
			ID:                 "a",
			TrackingCode:       "EXP-A",
			Status:             domain.StatusDelivered,
			ExpectedDeliveryAt: &expected,
			CreatedAt:          createdA,
			UpdatedAt:          deliveredA,
		},
		{
			ID:           "b",
			TrackingCode: "EXP-B",
			Status:       domain.StatusDelayed,
			DelayReason:  &reason,
			CreatedAt:    createdA,
			UpdatedAt:    createdA,
		},
	}

	repo := &fakeDeliveryRepo{
		listWindowFn: func(ctx context.Context, from, to time.Time) ([]domain.Delivery, error) {
			return deliveries, nil
		},
		lastStatusAtFn: func(ctx context.Context, ids []string, status domain.Status) (map[string]time.Time, error) {
			if status != domain.StatusDelivered {
				t.Fatalf("status = %s, want DELIVERED", status)
			}
			return map[string]time.Time{"a": deliveredA}, nil
		},
	}

	svc, err := NewReportService(repo, nil)
	if err != nil {
		t.Fatalf("NewReportService() error = %v", err)
	}

	report, err := svc.Performance(context.Background(), Window{
		From: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("Performance() error = %v", err)
	}

	if report.Total != 2 {
		t.Fatalf("total = %d, want 2", report.Total)
	}
	if report.OnTime != 1 || report.Late != 0 || report.Pending != 1 || report.Returned != 0 {
		t.Fatalf("counts = onTime %d late %d pending %d returned %d", report.OnTime, report.Late, report.Pending, report.Returned)
	}
	if report.OnTimeRate != 50.0 {
		t.Fatalf("onTimeRate = %v, want 50.0", report.OnTimeRate)
	}
	if math.Abs(report.AverageDeliveryDays-1.0) > 1e-9 {
		t.Fatalf("averageDeliveryDays = %v, want 1.0", report.AverageDeliveryDays)
	}
	if report.StatusDistribution["DELIVERED"] != 1 || report.StatusDistribution["DELAYED"] != 1 {
		t.Fatalf("statusDistribution = %v", report.StatusDistribution)
	}
	if len(report.DeliveriesPerDay) != 1 || report.DeliveriesPerDay[0].Count != 2 {
		t.Fatalf("deliveriesPerDay = %v", report.DeliveriesPerDay)
	}
}

func TestPerformanceReportLateAndFinancials(t *testing.T) {
	t.Parallel()

	expected := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	created := time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC)
	late := expected.AddDate(0, 0, 2)
	km := 120.0
	weight := 4.5
	price := 60.0
	driver := "drv-1"

	deliveries := []domain.Delivery{
		{
			ID:                 "a",
			Status:             domain.StatusDelivered,
			ExpectedDeliveryAt: &expected,
			CreatedAt:          created,
			UpdatedAt:          late,
			DistanceKM:         &km,
			WeightKG:           &weight,
			Price:              &price,
			DriverID:           &driver,
		},
		{
			ID:        "b",
			Status:    domain.StatusReturned,
			CreatedAt: created,
			UpdatedAt: created,
			DriverID:  &driver,
		},
	}

	repo := &fakeDeliveryRepo{
		listWindowFn: func(ctx context.Context, from, to time.Time) ([]domain.Delivery, error) {
			return deliveries, nil
		},
		lastStatusAtFn: func(ctx context.Context, ids []string, status domain.Status) (map[string]time.Time, error) {
			return map[string]time.Time{"a": late}, nil
		},
	}

	svc, err := NewReportService(repo, nil)
	if err != nil {
		t.Fatalf("NewReportService() error = %v", err)
	}

	report, err := svc.Performance(context.Background(), Window{From: created, To: late})
	if err != nil {
		t.Fatalf("Performance() error = %v", err)
	}

	if report.Late != 1 || report.Returned != 1 {
		t.Fatalf("late = %d returned = %d", report.Late, report.Returned)
	}
	if report.TotalKm != 120.0 || report.TotalWeight != 4.5 || report.TotalRevenue != 60.0 {
		t.Fatalf("totals = km %v weight %v revenue %v", report.TotalKm, report.TotalWeight, report.TotalRevenue)
	}
	if report.RevenuePerKm != 0.5 {
		t.Fatalf("revenuePerKm = %v, want 0.5", report.RevenuePerKm)
	}
	if report.RevenuePerDelivery != 30.0 {
		t.Fatalf("revenuePerDelivery = %v, want 30.0", report.RevenuePerDelivery)
	}
	if len(report.Drivers) != 1 {
		t.Fatalf("drivers = %v", report.Drivers)
	}
	if report.Drivers[0].Total != 2 || report.Drivers[0].OnTime != 0 {
		t.Fatalf("driver perf = %+v", report.Drivers[0])
	}
}

func TestPerformanceReportEmptyWindow(t *testing.T) {
	t.Parallel()

	repo := &fakeDeliveryRepo{
		listWindowFn: func(ctx context.Context, from, to time.Time) ([]domain.Delivery, error) {
			return nil, nil
		},
	}

	svc, err := NewReportService(repo, nil)
	if err != nil {
		t.Fatalf("NewReportService() error = %v", err)
	}

	report, err := svc.Performance(context.Background(), Window{})
	if err != nil {
		t.Fatalf("Performance() error = %v", err)
	}

	if report.Total != 0 {
		t.Fatalf("total = %d, want 0", report.Total)
	}
	if report.OnTimeRate != 0 || report.LateRate != 0 || report.ReturnRate != 0 {
		t.Fatal("rates should be zero for an empty window")
	}
	if report.AverageDeliveryDays != 0 {
		t.Fatalf("averageDeliveryDays = %v, want 0", report.AverageDeliveryDays)
	}
}

func TestPerformanceReportRepoError(t *testing.T) {
	t.Parallel()

	repo := &fakeDeliveryRepo{
		listWindowFn: func(ctx context.Context, from, to time.Time) ([]domain.Delivery, error) {
			return nil, errors.New("connection refused")
		},
	}

	svc, err := NewReportService(repo, nil)
	if err != nil {
		t.Fatalf("NewReportService() error = %v", err)
	}

	_, err = svc.Performance(context.Background(), Window{})
	if !errors.Is(err, domain.ErrAggregation) {
		t.Fatalf("error = %v, want ErrAggregation", err)
	}
}

func TestQualityReport(t *testing.T) {
	t.Parallel()

	traffic := "Traffic"
	refused := "Recipient refused"

	deliveries := []domain.Delivery{
		{ID: "a", Status: domain.StatusDelayed, DelayReason: &traffic, Destination: "Rio de Janeiro, RJ"},
		{ID: "b", Status: domain.StatusDelayed, DelayReason: &traffic, Destination: "Niteroi, RJ"},
		{ID: "c", Status: domain.StatusReturned, ReturnReason: &refused, Destination: "Salvador, BA"},
		{ID: "d", Status: domain.StatusProblemInDelivery, Destination: "Recife"},
		{ID: "e", Status: domain.StatusInTransit, Destination: "Fortaleza, CE"},
	}

	repo := &fakeDeliveryRepo{
		listWindowFn: func(ctx context.Context, from, to time.Time) ([]domain.Delivery, error) {
			return deliveries, nil
		},
	}

	svc, err := NewReportService(repo, nil)
	if err != nil {
		t.Fatalf("NewReportService() error = %v", err)
	}

	report, err := svc.Quality(context.Background(), Window{})
	if err != nil {
		t.Fatalf("Quality() error = %v", err)
	}

	if report.TotalDelays != 2 || report.TotalReturns != 1 || report.TotalProblems != 1 {
		t.Fatalf("totals = delays %d returns %d problems %d", report.TotalDelays, report.TotalReturns, report.TotalProblems)
	}
	if report.DelayReasons["Traffic"] != 2 {
		t.Fatalf("delayReasons = %v", report.DelayReasons)
	}
	if report.ReturnReasons["Recipient refused"] != 1 {
		t.Fatalf("returnReasons = %v", report.ReturnReasons)
	}
	if report.ProblemsByRegion["RJ"] != 2 {
		t.Fatalf("problemsByRegion = %v, want RJ counted twice", report.ProblemsByRegion)
	}
	if report.ProblemsByRegion["Recife"] != 1 {
		t.Fatalf("problemsByRegion = %v, whole destination should be the region fallback", report.ProblemsByRegion)
	}
	if _, ok := report.ProblemsByRegion["CE"]; ok {
		t.Fatal("in-transit deliveries should not count as regional problems")
	}

	if len(report.ProblemReasons) != 2 {
		t.Fatalf("problemReasons = %v", report.ProblemReasons)
	}
	if report.ProblemReasons[0].Reason != "Delay: Traffic" || report.ProblemReasons[0].Count != 2 {
		t.Fatalf("top reason = %+v", report.ProblemReasons[0])
	}
	if report.ProblemReasons[1].Reason != "Return: Recipient refused" {
		t.Fatalf("second reason = %+v", report.ProblemReasons[1])
	}
}

func TestReportServiceWindowUsesClock(t *testing.T) {
	t.Parallel()

	svc, err := NewReportService(&fakeDeliveryRepo{}, nil)
	if err != nil {
		t.Fatalf("NewReportService() error = %v", err)
	}
	svc.now = func() time.Time { return time.Date(2025, 11, 2, 0, 0, 0, 0, time.UTC) }

	window, err := svc.Window("quarter", "", "")
	if err != nil {
		t.Fatalf("Window() error = %v", err)
	}

	wantFrom := time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC)
	if !window.From.Equal(wantFrom) {
		t.Fatalf("from = %v, want %v", window.From, wantFrom)
	}
}
