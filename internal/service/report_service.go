package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/expresso-itaporanga/tracking-api/internal/domain"
	"github.com/expresso-itaporanga/tracking-api/internal/observability"
	"go.uber.org/zap"
)

const hoursPerDay = 24.0

// DeliveryReader is the read-only slice of the delivery repository the
// aggregation engine needs.
type DeliveryReader interface {
	ListWindow(ctx context.Context, from, to time.Time) ([]domain.Delivery, error)
	LastStatusAt(ctx context.Context, deliveryIDs []string, status domain.Status) (map[string]time.Time, error)
}

type ReportService struct {
	deliveries DeliveryReader
	logger     *zap.Logger
	metrics    *observability.Metrics
	now        func() time.Time
}

func NewReportService(deliveries DeliveryReader, logger *zap.Logger) (*ReportService, error) {
	if deliveries == nil {
		return nil, fmt.Errorf("delivery reader is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &ReportService{
		deliveries: deliveries,
		logger:     logger,
		now:        time.Now,
	}, nil
}

func (s *ReportService) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

// Window resolves the report range relative to the service clock.
func (s *ReportService) Window(period, start, end string) (Window, error) {
	return ResolveWindow(period, start, end, s.now().UTC())
}

type DriverPerformance struct {
	DriverID   string
	Total      int
	OnTime     int
	OnTimeRate float64
}

type DayCount struct {
	Date  string
	Count int
}

type PerformanceReport struct {
	Window              Window
	Total               int
	OnTime              int
	Late                int
	Returned            int
	Pending             int
	OnTimeRate          float64
	LateRate            float64
	ReturnRate          float64
	AverageDeliveryDays float64
	TotalKm             float64
	TotalWeight         float64
	TotalRevenue        float64
	RevenuePerKm        float64
	RevenuePerDelivery  float64
	Drivers             []DriverPerformance
	DeliveriesPerDay    []DayCount
	StatusDistribution  map[string]int
}

type ReasonCount struct {
	Reason string
	Count  int
}

type QualityReport struct {
	Window           Window
	DelayReasons     map[string]int
	ReturnReasons    map[string]int
	ProblemsByRegion map[string]int
	TotalProblems    int
	TotalDelays      int
	TotalReturns     int
	ProblemReasons   []ReasonCount
}

// Performance computes the delivery KPI report over the window. It is a pure
// read: nothing is cached and nothing is mutated.
func (s *ReportService) Performance(ctx context.Context, window Window) (*PerformanceReport, error) {
	start := s.now()
	defer s.observeDuration("performance", start)

	deliveries, err := s.deliveries.ListWindow(ctx, window.From, window.To)
	if err != nil {
		return nil, fmt.Errorf("%w: listing window deliveries: %v", domain.ErrAggregation, err)
	}

	report := &PerformanceReport{
		Window:             window,
		Total:              len(deliveries),
		StatusDistribution: make(map[string]int),
	}

	deliveredIDs := make([]string, 0, len(deliveries))
	dayCounts := make(map[string]int)
	drivers := make(map[string]*DriverPerformance)

	for i := range deliveries {
		d := &deliveries[i]
		report.StatusDistribution[d.Status.String()]++
		dayCounts[d.CreatedAt.UTC().Format("2006-01-02")]++

		onTime := false
		switch {
		case d.Status == domain.StatusDelivered:
			deliveredIDs = append(deliveredIDs, d.ID)
			if d.ExpectedDeliveryAt == nil || !d.UpdatedAt.After(*d.ExpectedDeliveryAt) {
				report.OnTime++
				onTime = true
			} else {
				report.Late++
			}
		case d.Status == domain.StatusReturned:
			report.Returned++
		default:
			report.Pending++
		}

		if d.DistanceKM != nil {
			report.TotalKm += *d.DistanceKM
		}
		if d.WeightKG != nil {
			report.TotalWeight += *d.WeightKG
		}
		if d.Price != nil {
			report.TotalRevenue += *d.Price
		}

		if d.DriverID != nil {
			perf, ok := drivers[*d.DriverID]
			if !ok {
				perf = &DriverPerformance{DriverID: *d.DriverID}
				drivers[*d.DriverID] = perf
			}
			perf.Total++
			if onTime {
				perf.OnTime++
			}
		}
	}

	if report.Total > 0 {
		total := float64(report.Total)
		report.OnTimeRate = float64(report.OnTime) / total * 100
		report.LateRate = float64(report.Late) / total * 100
		report.ReturnRate = float64(report.Returned) / total * 100
		report.RevenuePerDelivery = report.TotalRevenue / total
	}
	if report.TotalKm > 0 {
		report.RevenuePerKm = report.TotalRevenue / report.TotalKm
	}

	avgDays, err := s.averageDeliveryDays(ctx, deliveries, deliveredIDs)
	if err != nil {
		return nil, err
	}
	report.AverageDeliveryDays = avgDays

	report.Drivers = make([]DriverPerformance, 0, len(drivers))
	for _, perf := range drivers {
		if perf.Total > 0 {
			perf.OnTimeRate = float64(perf.OnTime) / float64(perf.Total) * 100
		}
		report.Drivers = append(report.Drivers, *perf)
	}
	sort.Slice(report.Drivers, func(i, j int) bool {
		return report.Drivers[i].DriverID < report.Drivers[j].DriverID
	})

	report.DeliveriesPerDay = make([]DayCount, 0, len(dayCounts))
	for date, count := range dayCounts {
		report.DeliveriesPerDay = append(report.DeliveriesPerDay, DayCount{Date: date, Count: count})
	}
	sort.Slice(report.DeliveriesPerDay, func(i, j int) bool {
		return report.DeliveriesPerDay[i].Date < report.DeliveriesPerDay[j].Date
	})

	return report, nil
}

// averageDeliveryDays averages, over delivered deliveries that have a
// DELIVERED history entry, the fractional days between creation and that
// entry's timestamp. Deliveries without a matching entry are excluded.
func (s *ReportService) averageDeliveryDays(
	ctx context.Context,
	deliveries []domain.Delivery,
	deliveredIDs []string,
) (float64, error) {
	if len(deliveredIDs) == 0 {
		return 0, nil
	}

	deliveredAt, err := s.deliveries.LastStatusAt(ctx, deliveredIDs, domain.StatusDelivered)
	if err != nil {
		return 0, fmt.Errorf("%w: resolving delivered timestamps: %v", domain.ErrAggregation, err)
	}

	var sum float64
	var matched int
	for i := range deliveries {
		d := &deliveries[i]
		if d.Status != domain.StatusDelivered {
			continue
		}
		ts, ok := deliveredAt[d.ID]
		if !ok {
			continue
		}
		sum += ts.Sub(d.CreatedAt).Hours() / hoursPerDay
		matched++
	}

	if matched == 0 {
		return 0, nil
	}
	return sum / float64(matched), nil
}

// Quality computes the problem/reason report over the window.
func (s *ReportService) Quality(ctx context.Context, window Window) (*QualityReport, error) {
	start := s.now()
	defer s.observeDuration("quality", start)

	deliveries, err := s.deliveries.ListWindow(ctx, window.From, window.To)
	if err != nil {
		return nil, fmt.Errorf("%w: listing window deliveries: %v", domain.ErrAggregation, err)
	}

	report := &QualityReport{
		Window:           window,
		DelayReasons:     make(map[string]int),
		ReturnReasons:    make(map[string]int),
		ProblemsByRegion: make(map[string]int),
	}

	for i := range deliveries {
		d := &deliveries[i]

		if reason := trimmedReason(d.DelayReason); reason != "" {
			report.DelayReasons[reason]++
		}
		if reason := trimmedReason(d.ReturnReason); reason != "" {
			report.ReturnReasons[reason]++
		}

		switch d.Status {
		case domain.StatusProblemInDelivery:
			report.TotalProblems++
		case domain.StatusDelayed:
			report.TotalDelays++
		case domain.StatusReturned:
			report.TotalReturns++
		default:
			continue
		}
		report.ProblemsByRegion[d.Region()]++
	}

	report.ProblemReasons = combineReasons(report.DelayReasons, report.ReturnReasons)

	return report, nil
}

// combineReasons merges labeled delay and return reasons, most frequent
// first; equal counts order alphabetically so output is stable.
func combineReasons(delays, returns map[string]int) []ReasonCount {
	combined := make([]ReasonCount, 0, len(delays)+len(returns))
	for reason, count := range delays {
		combined = append(combined, ReasonCount{Reason: "Delay: " + reason, Count: count})
	}
	for reason, count := range returns {
		combined = append(combined, ReasonCount{Reason: "Return: " + reason, Count: count})
	}

	sort.Slice(combined, func(i, j int) bool {
		if combined[i].Count != combined[j].Count {
			return combined[i].Count > combined[j].Count
		}
		return combined[i].Reason < combined[j].Reason
	})

	return combined
}

func trimmedReason(v *string) string {
	if v == nil {
		return ""
	}
	return strings.TrimSpace(*v)
}

func (s *ReportService) observeDuration(report string, start time.Time) {
	if s.metrics == nil {
		return
	}
	s.metrics.ObserveReportDuration(report, s.now().Sub(start))
}
