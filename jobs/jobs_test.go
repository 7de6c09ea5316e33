package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/odyssey-erp/tradeflow/internal/jobs"
	"github.com/odyssey-erp/tradeflow/internal/ledger"
	"github.com/odyssey-erp/tradeflow/internal/outbox"
)

type stubRepairer struct {
	companies []int64
	report    ledger.RepairReport
	err       error
}

func (s *stubRepairer) Repair(ctx context.Context, companyID int64) (ledger.RepairReport, error) {
	s.companies = append(s.companies, companyID)
	return s.report, s.err
}

type stubDrainer struct {
	calls  int
	report outbox.Report
	err    error
}

func (s *stubDrainer) Drain(ctx context.Context) (outbox.Report, error) {
	s.calls++
	return s.report, s.err
}

func TestLedgerRepairJob(t *testing.T) {
	repairer := &stubRepairer{report: ledger.RepairReport{Companies: 1, Scanned: 3, Projected: 2, Failed: 1}}
	job := NewLedgerRepairJob(repairer, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))

	task, err := NewLedgerRepairTask(42)
	require.NoError(t, err)
	require.Equal(t, TaskLedgerRepair, task.Type())
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, []int64{42}, repairer.companies)

	repairer.err = errors.New("list companies")
	require.ErrorContains(t, job.Handle(context.Background(), task), "list companies")
}

func TestLedgerRepairJobRejectsBadPayload(t *testing.T) {
	job := NewLedgerRepairJob(&stubRepairer{}, nil, nil)
	err := job.Handle(context.Background(), asynq.NewTask(TaskLedgerRepair, []byte("not json")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestOutboxDispatchJob(t *testing.T) {
	drainer := &stubDrainer{report: outbox.Report{Processed: 2, Failed: 1}}
	job := NewOutboxDispatchJob(drainer, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))

	require.NoError(t, job.Handle(context.Background(), NewOutboxDispatchTask()))
	require.Equal(t, 1, drainer.calls)

	drainer.err = errors.New("store down")
	require.Error(t, job.Handle(context.Background(), NewOutboxDispatchTask()))

	var unconfigured *OutboxDispatchJob
	require.Error(t, unconfigured.Handle(context.Background(), NewOutboxDispatchTask()))
}

func TestNewTaskByName(t *testing.T) {
	task, err := NewTaskByName(TaskLedgerRepair, 7)
	require.NoError(t, err)
	var payload LedgerRepairPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	require.Equal(t, int64(7), payload.CompanyID)

	task, err = NewTaskByName(TaskOutboxDispatch, 0)
	require.NoError(t, err)
	require.Equal(t, TaskOutboxDispatch, task.Type())

	_, err = NewTaskByName("mail:send", 0)
	require.Error(t, err)
	require.Equal(t, []string{TaskLedgerRepair, TaskOutboxDispatch}, TaskNames())
}

type stubInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (s stubInspector) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	return s.info, s.err
}

func TestHealthHandler(t *testing.T) {
	serve := func(inspector QueueInspector) *httptest.ResponseRecorder {
		r := chi.NewRouter()
		NewHandler(inspector, nil).MountRoutes(r)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		return rec
	}

	rec := serve(nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"queue":"default","pending":0,"active":0,"retry":0}`, rec.Body.String())

	rec = serve(stubInspector{info: &asynq.QueueInfo{Queue: "default", Pending: 4, Retry: 1}})
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"queue":"default","pending":4,"active":0,"retry":1}`, rec.Body.String())

	rec = serve(stubInspector{err: errors.New("redis down")})
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
