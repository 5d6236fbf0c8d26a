package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/atvirokodosprendimai/shopfloor/internal/core/aggregate"
	"github.com/atvirokodosprendimai/shopfloor/internal/core/domain"
	"github.com/atvirokodosprendimai/shopfloor/internal/core/query"
	"github.com/stretchr/testify/require"
)

type staticLister struct {
	records []domain.Record
	err     error
}

func (l staticLister) List(context.Context) ([]domain.Record, error) {
	return l.records, l.err
}

func intp(v int) *int { return &v }

func productionFixture() []domain.Record {
	return []domain.Record{
		{"id": "2024-01-15T10:00:00.000000Z", "entryType": "productionData", "date": "2024-01-15", "units": "10"},
		{"id": "2024-01-16T10:00:00.000000Z", "entryType": "productionData", "date": "2024-01-20", "units": 5.0},
		{"id": "2024-02-01T10:00:00.000000Z", "entryType": "productionData", "date": "2024-02-03", "units": "7.5"},
		{"id": "2024-02-02T10:00:00.000000Z", "entryType": "qualityData", "date": "2024-02-03", "units": 100.0},
		{"id": "2024-02-03T10:00:00.000000Z", "isProductionData": true, "date": "2024-02-10", "units": ""},
		{"id": "2024-03-01T10:00:00.000000Z", "entryType": "productionData", "units": "n/a"},
	}
}

func TestReportCountSumAverage(t *testing.T) {
	svc := NewReportService(staticLister{records: []domain.Record{
		{"id": "a", "v": "3"}, {"id": "b", "v": 5.0}, {"id": "c", "v": "7"}, {"id": "d", "v": nil}, {"id": "e"},
	}}, "")
	ctx := context.Background()

	count, err := svc.Report(ctx, ReportRequest{Field: "v", Metric: aggregate.MetricCount})
	require.NoError(t, err)
	require.Equal(t, 3.0, count.Value)
	require.Equal(t, 5, count.Matched)

	sum, err := svc.Report(ctx, ReportRequest{Field: "v", Metric: aggregate.MetricSum})
	require.NoError(t, err)
	require.Equal(t, 15.0, sum.Value)

	avg, err := svc.Report(ctx, ReportRequest{Field: "v", Metric: "avg"})
	require.NoError(t, err)
	require.Equal(t, 5.0, avg.Value)
}

func TestReportAppliesTypeAndDateFilters(t *testing.T) {
	svc := NewReportService(staticLister{records: productionFixture()}, "date")
	ctx := context.Background()

	jan, err := svc.Report(ctx, ReportRequest{
		EntryType:   "productionData",
		LegacyField: "isProductionData",
		Filter:      domain.DateFilter{Year: intp(2024), Month: intp(0)},
		Field:       "units",
		Metric:      aggregate.MetricSum,
	})
	require.NoError(t, err)
	require.Equal(t, 15.0, jan.Value)
	require.Equal(t, 2, jan.Matched)

	feb, err := svc.Report(ctx, ReportRequest{
		EntryType:   "productionData",
		LegacyField: "isProductionData",
		Filter:      domain.DateFilter{Month: intp(1)},
		Field:       "units",
		Metric:      aggregate.MetricCount,
	})
	require.NoError(t, err)
	require.Equal(t, 2, feb.Matched, "legacy flagged record is included")
	require.Equal(t, 1.0, feb.Value, "empty string is not eligible")
}

func TestReportRejectsBadRequests(t *testing.T) {
	svc := NewReportService(staticLister{}, "")
	ctx := context.Background()

	_, err := svc.Report(ctx, ReportRequest{Metric: aggregate.MetricSum})
	require.ErrorIs(t, err, domain.ErrInvalidFilter)

	_, err = svc.Report(ctx, ReportRequest{Field: "v", Metric: "median"})
	require.ErrorIs(t, err, domain.ErrInvalidFilter)

	_, err = svc.Report(ctx, ReportRequest{Field: "v", Metric: aggregate.MetricSum, Filter: domain.DateFilter{Month: intp(12)}})
	require.ErrorIs(t, err, domain.ErrInvalidFilter)
}

func TestReportPropagatesListErrors(t *testing.T) {
	boom := domain.NewStorageError("list", errors.New("boom"))
	svc := NewReportService(staticLister{err: boom}, "")

	_, err := svc.Report(context.Background(), ReportRequest{Field: "v", Metric: aggregate.MetricSum})
	require.True(t, domain.IsStorageError(err))
}

func TestSeriesGroupsByMonth(t *testing.T) {
	svc := NewReportService(staticLister{records: productionFixture()}, "date")

	points, err := svc.Series(context.Background(), SeriesRequest{
		ReportRequest: ReportRequest{EntryType: "productionData", Field: "units", Metric: aggregate.MetricSum},
	})
	require.NoError(t, err)
	require.Equal(t, []SeriesPoint{
		{Period: "2024-01", Value: 15, Matched: 2},
		{Period: "2024-02", Value: 7.5, Matched: 1},
		{Period: "2024-03", Value: 0, Matched: 1},
	}, points)

	_, err = svc.Series(context.Background(), SeriesRequest{
		ReportRequest: ReportRequest{Field: "units", Metric: aggregate.MetricSum},
		Period:        "week",
	})
	require.ErrorIs(t, err, domain.ErrInvalidFilter)
}

func TestSelectSortsUndatedLast(t *testing.T) {
	svc := NewReportService(staticLister{records: []domain.Record{
		{"id": "not-a-date", "k": "undated"},
		{"id": "x", "date": "2024-05-02", "k": "late"},
		{"id": "y", "date": "2024-05-01", "k": "early"},
	}}, "")

	got, err := svc.Select(context.Background(), query.TypeSelector{}, domain.DateFilter{}, true)
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.Equal(t, "early", got[0]["k"])
	require.Equal(t, "late", got[1]["k"])
	require.Equal(t, "undated", got[2]["k"])
}
