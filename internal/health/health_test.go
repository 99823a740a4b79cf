package health

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shaiso/orderflow/internal/domain"
	"github.com/shaiso/orderflow/internal/repo"
)

// --- Probe ---

func TestProbe_Evaluate(t *testing.T) {
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		processed int
		errors    int
		at        time.Time
		want      Status
	}{
		{"fresh worker", 0, 0, base, StatusHealthy},
		{"mostly ok", 8, 2, base, StatusHealthy},
		{"high error rate below min samples", 2, 7, base, StatusHealthy},
		{"high error rate", 4, 6, base, StatusUnhealthy},
		{"exactly half", 5, 5, base, StatusHealthy},
		{"idle after processing", 3, 0, base.Add(61 * time.Minute), StatusDegraded},
		{"idle without processing", 0, 0, base.Add(2 * time.Hour), StatusHealthy},
		{"idle under an hour", 3, 0, base.Add(59 * time.Minute), StatusHealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newProbe(func() time.Time { return base })
			for i := 0; i < tt.processed; i++ {
				p.RecordProcessed()
			}
			for i := 0; i < tt.errors; i++ {
				p.RecordError()
			}

			got, _, _ := p.Evaluate(tt.at)
			if got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestProbe_SnapshotConcurrent(t *testing.T) {
	p := NewProbe()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() { defer wg.Done(); p.RecordProcessed() }()
		go func() { defer wg.Done(); p.RecordError() }()
	}
	wg.Wait()

	s := p.Snapshot()
	if s.TotalProcessed != 50 || s.TotalErrors != 50 {
		t.Fatalf("expected 50/50, got %d/%d", s.TotalProcessed, s.TotalErrors)
	}
	if s.ErrorRate != 0.5 {
		t.Errorf("expected error rate 0.5, got %f", s.ErrorRate)
	}
}

func TestWorst(t *testing.T) {
	if Worst(StatusHealthy, StatusDegraded) != StatusDegraded {
		t.Error("degraded must beat healthy")
	}
	if Worst(StatusUnhealthy, StatusDegraded) != StatusUnhealthy {
		t.Error("unhealthy must beat degraded")
	}
	if ParseStatus("garbage") != StatusUnhealthy {
		t.Error("unknown stored status must read as unhealthy")
	}
}

// --- RemoteWorkerCheck ---

type fakeReader struct {
	rows map[string]*domain.WorkerHealthStatus
	err  error
}

func (f *fakeReader) Get(_ context.Context, name string) (*domain.WorkerHealthStatus, error) {
	if f.err != nil {
		return nil, f.err
	}
	h, ok := f.rows[name]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return h, nil
}

func TestRemoteWorkerCheck(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		stored     string
		age        time.Duration
		missing    bool
		readErr    error
		wantStatus Status
	}{
		{name: "fresh healthy", stored: "Healthy", age: 5 * time.Second, wantStatus: StatusHealthy},
		{name: "fresh degraded", stored: "Degraded", age: 5 * time.Second, wantStatus: StatusDegraded},
		{name: "fresh unhealthy", stored: "Unhealthy", age: 5 * time.Second, wantStatus: StatusUnhealthy},
		{name: "stale overrides healthy", stored: "Healthy", age: 45 * time.Second, wantStatus: StatusUnhealthy},
		{name: "exactly at timeout", stored: "Healthy", age: 30 * time.Second, wantStatus: StatusHealthy},
		{name: "never reported", missing: true, wantStatus: StatusUnhealthy},
		{name: "store error", readErr: errors.New("connection refused"), wantStatus: StatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader := &fakeReader{rows: map[string]*domain.WorkerHealthStatus{}, err: tt.readErr}
			if !tt.missing {
				reader.rows["PaymentWorker"] = &domain.WorkerHealthStatus{
					WorkerName:    "PaymentWorker",
					Status:        tt.stored,
					LastCheckTime: now.Add(-tt.age),
				}
			}

			check := RemoteWorkerCheck{
				Reader:     reader,
				WorkerName: "PaymentWorker",
				Timeout:    30 * time.Second,
				Now:        func() time.Time { return now },
			}

			res := check.Check(context.Background())
			if res.Status != tt.wantStatus {
				t.Errorf("expected %s, got %s (%s)", tt.wantStatus, res.Status, res.Description)
			}
		})
	}
}

func TestRemoteWorkerCheck_NeverReportedDescription(t *testing.T) {
	check := RemoteWorkerCheck{Reader: &fakeReader{}, WorkerName: "EmailWorker"}

	res := check.Check(context.Background())
	if res.Description != "Worker EmailWorker has never reported status" {
		t.Errorf("unexpected description %q", res.Description)
	}
}

// --- Evaluator ---

func staticCheck(status Status) Check {
	return CheckFunc(func(context.Context) Result {
		return Result{Status: status, Description: string(status)}
	})
}

func TestEvaluator_Filters(t *testing.T) {
	e := NewEvaluator(time.Second)
	e.Register("database", staticCheck(StatusHealthy), "ready")
	e.Register("rabbitmq", staticCheck(StatusHealthy), "ready")
	e.Register("PaymentWorker", staticCheck(StatusUnhealthy))

	all := e.Run(context.Background(), All)
	if all.Status != StatusUnhealthy || len(all.Entries) != 3 {
		t.Errorf("expected 3 entries unhealthy, got %d %s", len(all.Entries), all.Status)
	}

	ready := e.Run(context.Background(), Tagged("ready"))
	if ready.Status != StatusHealthy || len(ready.Entries) != 2 {
		t.Errorf("expected 2 ready entries healthy, got %d %s", len(ready.Entries), ready.Status)
	}

	live := e.Run(context.Background(), None)
	if live.Status != StatusHealthy || len(live.Entries) != 0 {
		t.Errorf("expected empty healthy report, got %d %s", len(live.Entries), live.Status)
	}

	one := e.Run(context.Background(), Named("PaymentWorker"))
	if _, ok := one.Entries["PaymentWorker"]; !ok || len(one.Entries) != 1 {
		t.Errorf("expected only PaymentWorker, got %v", one.Entries)
	}
}

func TestEvaluator_TimeoutAndPanic(t *testing.T) {
	e := NewEvaluator(20 * time.Millisecond)
	e.Register("slow", CheckFunc(func(ctx context.Context) Result {
		<-ctx.Done()
		time.Sleep(50 * time.Millisecond)
		return Healthy("late", nil)
	}))
	e.Register("broken", CheckFunc(func(context.Context) Result {
		panic("boom")
	}))

	report := e.Run(context.Background(), All)
	if report.Entries["slow"].Status != StatusUnhealthy {
		t.Errorf("timed out check must be unhealthy, got %s", report.Entries["slow"].Status)
	}
	if report.Entries["broken"].Status != StatusUnhealthy {
		t.Errorf("panicking check must be unhealthy, got %s", report.Entries["broken"].Status)
	}
}

func TestReport_JSON(t *testing.T) {
	report := Report{
		Status:        StatusDegraded,
		TotalDuration: 1500 * time.Microsecond,
		Entries: map[string]Entry{
			"database": {Status: StatusDegraded, Description: "slow", Err: errors.New("timeout")},
		},
	}

	b, err := json.Marshal(report)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var got struct {
		Status        string  `json:"status"`
		TotalDuration float64 `json:"total_duration"`
		Entries       map[string]struct {
			Status string `json:"status"`
			Error  string `json:"error"`
		} `json:"entries"`
	}
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Status != "Degraded" || got.TotalDuration != 1.5 {
		t.Errorf("unexpected report %+v", got)
	}
	if got.Entries["database"].Error != "timeout" {
		t.Errorf("expected error text, got %+v", got.Entries["database"])
	}
}

// --- Reporter ---

type fakeWriter struct {
	mu   sync.Mutex
	rows []domain.WorkerHealthStatus
	err  error
}

func (f *fakeWriter) Upsert(_ context.Context, h *domain.WorkerHealthStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.rows = append(f.rows, *h)
	return nil
}

func (f *fakeWriter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows)
}

func TestReporter_PublishOnce(t *testing.T) {
	probe := NewProbe()
	for i := 0; i < 4; i++ {
		probe.RecordProcessed()
	}
	probe.RecordError()

	eval := NewEvaluator(time.Second)
	eval.Register("worker", ProbeCheck{Probe: probe})
	eval.Register("rabbitmq", staticCheck(StatusUnhealthy))

	writer := &fakeWriter{}
	r := NewReporter(ReporterConfig{
		WorkerName: "InventoryWorker",
		Probe:      probe,
		Evaluator:  eval,
		Writer:     writer,
	})

	if err := r.PublishOnce(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if writer.count() != 1 {
		t.Fatalf("expected 1 upsert, got %d", writer.count())
	}
	row := writer.rows[0]
	if row.WorkerName != "InventoryWorker" {
		t.Errorf("unexpected worker name %q", row.WorkerName)
	}
	// Статус строки — статус счётчиков, а не худший из всех проверок
	if row.Status != "Healthy" {
		t.Errorf("expected probe status Healthy, got %s", row.Status)
	}
	if row.TotalProcessed != 4 || row.TotalErrors != 1 || row.ErrorRate != 0.2 {
		t.Errorf("unexpected counters %+v", row)
	}

	var details struct {
		Entries map[string]json.RawMessage `json:"entries"`
	}
	if err := json.Unmarshal(row.Details, &details); err != nil {
		t.Fatalf("details must be JSON: %v", err)
	}
	if len(details.Entries) != 2 {
		t.Errorf("expected both local checks in details, got %d", len(details.Entries))
	}
}

func TestReporter_PublishOnceError(t *testing.T) {
	writer := &fakeWriter{err: errors.New("db down")}
	r := NewReporter(ReporterConfig{WorkerName: "EmailWorker", Probe: NewProbe(), Writer: writer})

	if err := r.PublishOnce(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestReporter_StartStop(t *testing.T) {
	writer := &fakeWriter{}
	r := NewReporter(ReporterConfig{
		WorkerName:   "PaymentWorker",
		Probe:        NewProbe(),
		Writer:       writer,
		InitialDelay: 10 * time.Millisecond,
		Period:       time.Hour,
	})

	r.Start(context.Background())

	deadline := time.Now().Add(2 * time.Second)
	for writer.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	r.Stop()

	if writer.count() != 1 {
		t.Fatalf("expected initial publish only, got %d", writer.count())
	}

	// Повторный Stop безопасен
	r.Stop()
}
