package handler

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/expresso-itaporanga/tracking-api/internal/service"
)

type ReportService interface {
	Window(period, start, end string) (service.Window, error)
	Performance(ctx context.Context, window service.Window) (*service.PerformanceReport, error)
	Quality(ctx context.Context, window service.Window) (*service.QualityReport, error)
}

type ReportHandler struct {
	service ReportService
}

func NewReportHandler(service ReportService) (*ReportHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("report service is required")
	}
	return &ReportHandler{service: service}, nil
}

func RegisterReportRoutes(router fiber.Router, service ReportService) error {
	h, err := NewReportHandler(service)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Get("/reports/performance", h.PerformanceReport)
	v1.Get("/reports/quality", h.QualityReport)

	return nil
}

type reportWindow struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

type driverPerformanceItem struct {
	DriverID   string  `json:"driverId"`
	Total      int     `json:"total"`
	OnTime     int     `json:"onTime"`
	OnTimeRate float64 `json:"onTimeRate"`
}

type dayCountItem struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

type performanceReportResponse struct {
	Window              reportWindow            `json:"window"`
	TotalDeliveries     int                     `json:"totalDeliveries"`
	OnTime              int                     `json:"onTime"`
	Late                int                     `json:"late"`
	Returned            int                     `json:"returned"`
	Pending             int                     `json:"pending"`
	OnTimeRate          float64                 `json:"onTimeRate"`
	LateRate            float64                 `json:"lateRate"`
	ReturnRate          float64                 `json:"returnRate"`
	AverageDeliveryDays float64                 `json:"averageDeliveryDays"`
	TotalKm             float64                 `json:"totalKm"`
	TotalWeight         float64                 `json:"totalWeight"`
	TotalRevenue        float64                 `json:"totalRevenue"`
	RevenuePerKm        float64                 `json:"revenuePerKm"`
	RevenuePerDelivery  float64                 `json:"revenuePerDelivery"`
	Drivers             []driverPerformanceItem `json:"drivers"`
	DeliveriesPerDay    []dayCountItem          `json:"deliveriesPerDay"`
	StatusDistribution  map[string]int          `json:"statusDistribution"`
}

type reasonCountItem struct {
	Reason string `json:"reason"`
	Count  int    `json:"count"`
}

type qualityReportResponse struct {
	Window           reportWindow      `json:"window"`
	DelayReasons     map[string]int    `json:"delayReasons"`
	ReturnReasons    map[string]int    `json:"returnReasons"`
	ProblemsByRegion map[string]int    `json:"problemsByRegion"`
	TotalProblems    int               `json:"totalProblems"`
	TotalDelays      int               `json:"totalDelays"`
	TotalReturns     int               `json:"totalReturns"`
	ProblemReasons   []reasonCountItem `json:"problemReasons"`
}

func (h *ReportHandler) PerformanceReport(c *fiber.Ctx) error {
	window, err := h.service.Window(c.Query("period"), c.Query("start"), c.Query("end"))
	if err != nil {
		return toHTTPError(err)
	}

	report, err := h.service.Performance(c.Context(), window)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(toPerformanceResponse(report))
}

func (h *ReportHandler) QualityReport(c *fiber.Ctx) error {
	window, err := h.service.Window(c.Query("period"), c.Query("start"), c.Query("end"))
	if err != nil {
		return toHTTPError(err)
	}

	report, err := h.service.Quality(c.Context(), window)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(toQualityResponse(report))
}

func toPerformanceResponse(r *service.PerformanceReport) performanceReportResponse {
	drivers := make([]driverPerformanceItem, 0, len(r.Drivers))
	for _, d := range r.Drivers {
		drivers = append(drivers, driverPerformanceItem{
			DriverID:   d.DriverID,
			Total:      d.Total,
			OnTime:     d.OnTime,
			OnTimeRate: d.OnTimeRate,
		})
	}

	perDay := make([]dayCountItem, 0, len(r.DeliveriesPerDay))
	for _, d := range r.DeliveriesPerDay {
		perDay = append(perDay, dayCountItem{Date: d.Date, Count: d.Count})
	}

	return performanceReportResponse{
		Window:              reportWindow{From: r.Window.From, To: r.Window.To},
		TotalDeliveries:     r.Total,
		OnTime:              r.OnTime,
		Late:                r.Late,
		Returned:            r.Returned,
		Pending:             r.Pending,
		OnTimeRate:          r.OnTimeRate,
		LateRate:            r.LateRate,
		ReturnRate:          r.ReturnRate,
		AverageDeliveryDays: r.AverageDeliveryDays,
		TotalKm:             r.TotalKm,
		TotalWeight:         r.TotalWeight,
		TotalRevenue:        r.TotalRevenue,
		RevenuePerKm:        r.RevenuePerKm,
		RevenuePerDelivery:  r.RevenuePerDelivery,
		Drivers:             drivers,
		DeliveriesPerDay:    perDay,
		StatusDistribution:  r.StatusDistribution,
	}
}

func toQualityResponse(r *service.QualityReport) qualityReportResponse {
	reasons := make([]reasonCountItem, 0, len(r.ProblemReasons))
	for _, item := range r.ProblemReasons {
		reasons = append(reasons, reasonCountItem{Reason: item.Reason, Count: item.Count})
	}

	return qualityReportResponse{
		Window:           reportWindow{From: r.Window.From, To: r.Window.To},
		DelayReasons:     r.DelayReasons,
		ReturnReasons:    r.ReturnReasons,
		ProblemsByRegion: r.ProblemsByRegion,
		TotalProblems:    r.TotalProblems,
		TotalDelays:      r.TotalDelays,
		TotalReturns:     r.TotalReturns,
		ProblemReasons:   reasons,
	}
}
