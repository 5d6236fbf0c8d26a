package usecase

import (
	"context"
	"fmt"

	"github.com/atvirokodosprendimai/shopfloor/internal/core/aggregate"
	"github.com/atvirokodosprendimai/shopfloor/internal/core/domain"
	"github.com/atvirokodosprendimai/shopfloor/internal/core/query"
)

type RecordLister interface {
	List(ctx context.Context) ([]domain.Record, error)
}

// ReportRequest is everything a dashboard tile needs: which records, which
// field, which metric.
type ReportRequest struct {
	EntryType   string
	LegacyField string
	Filter      domain.DateFilter
	Field       string
	Metric      aggregate.Metric
}

// normalize validates the request and resolves metric aliases.
func (r ReportRequest) normalize() (ReportRequest, error) {
	if r.Field == "" {
		return r, fmt.Errorf("%w: field is required", domain.ErrInvalidFilter)
	}
	metric, err := aggregate.ParseMetric(string(r.Metric))
	if err != nil {
		return r, err
	}
	r.Metric = metric
	return r, r.Filter.Validate()
}

type Report struct {
	Value   float64
	Matched int
}

type SeriesRequest struct {
	ReportRequest
	Period query.Period
}

type SeriesPoint struct {
	Period  string
	Value   float64
	Matched int
}

type ReportService struct {
	records   RecordLister
	dateField string
}

func NewReportService(records RecordLister, dateField string) *ReportService {
	if dateField == "" {
		dateField = query.DefaultDateField
	}
	return &ReportService{records: records, dateField: dateField}
}

func (s *ReportService) Report(ctx context.Context, req ReportRequest) (Report, error) {
	req, err := req.normalize()
	if err != nil {
		return Report{}, err
	}
	subset, err := s.selectRecords(ctx, req)
	if err != nil {
		return Report{}, err
	}
	value, err := aggregate.Reduce(subset, req.Field, req.Metric)
	if err != nil {
		return Report{}, err
	}
	return Report{Value: value, Matched: len(subset)}, nil
}

func (s *ReportService) Series(ctx context.Context, req SeriesRequest) ([]SeriesPoint, error) {
	period, err := query.ParsePeriod(string(req.Period))
	if err != nil {
		return nil, err
	}
	base, err := req.ReportRequest.normalize()
	if err != nil {
		return nil, err
	}
	subset, err := s.selectRecords(ctx, base)
	if err != nil {
		return nil, err
	}

	groups := query.GroupByPeriod(subset, s.dateField, period)
	points := make([]SeriesPoint, 0, len(groups))
	for _, g := range groups {
		value, err := aggregate.Reduce(g.Records, base.Field, base.Metric)
		if err != nil {
			return nil, err
		}
		points = append(points, SeriesPoint{Period: g.Key, Value: value, Matched: len(g.Records)})
	}
	return points, nil
}

// Select applies the type and date filters without reducing.
func (s *ReportService) Select(ctx context.Context, sel query.TypeSelector, filter domain.DateFilter, sortByDate bool) ([]domain.Record, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	records, err := s.records.List(ctx)
	if err != nil {
		return nil, err
	}
	if sel.EntryType != "" {
		records = query.SelectByType(records, sel)
	}
	records = query.SelectByDate(records, s.dateField, filter)
	if sortByDate {
		records = query.SortByDate(records, s.dateField)
	}
	return records, nil
}

func (s *ReportService) selectRecords(ctx context.Context, req ReportRequest) ([]domain.Record, error) {
	return s.Select(ctx, query.TypeSelector{EntryType: req.EntryType, LegacyField: req.LegacyField}, req.Filter, false)
}
