package inmemory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dvloznov/ledgersync/internal/jobs"
)

func TestStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	job, err := s.Create(ctx, 7)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if job.ID == "" || job.Status != jobs.JobStatusRunning || job.CompanyID != 7 {
		t.Fatalf("unexpected new job: %+v", job)
	}

	if err := s.SetCurrentSource(ctx, job.ID, 3, "ledger-api"); err != nil {
		t.Fatalf("SetCurrentSource failed: %v", err)
	}
	if err := s.Finish(ctx, job.ID, jobs.JobStatusCompleted, "Successfully processed 4 records from API sources"); err != nil {
		t.Fatalf("Finish failed: %v", err)
	}

	got, err := s.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != jobs.JobStatusCompleted || got.CompletedAt == nil {
		t.Errorf("job not completed: %+v", got)
	}
	if got.SourceID != 3 || got.SourceName != "ledger-api" {
		t.Errorf("current source = %d/%q, want 3/ledger-api", got.SourceID, got.SourceName)
	}

	if err := s.Finish(ctx, job.ID, jobs.JobStatusFailed, "late"); !errors.Is(err, jobs.ErrJobFinished) {
		t.Errorf("Finish on completed job: got %v, want ErrJobFinished", err)
	}
	if err := s.SetCurrentSource(ctx, job.ID, 4, "other"); !errors.Is(err, jobs.ErrJobFinished) {
		t.Errorf("SetCurrentSource on completed job: got %v, want ErrJobFinished", err)
	}
}

func TestStore_FinishRejectsRunning(t *testing.T) {
	s := NewStore()
	job, _ := s.Create(context.Background(), 1)

	if err := s.Finish(context.Background(), job.ID, jobs.JobStatusRunning, ""); err == nil {
		t.Error("Expected error finishing with a non-terminal status")
	}
}

func TestStore_NotFound(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, jobs.ErrJobNotFound) {
		t.Errorf("Get: got %v, want ErrJobNotFound", err)
	}
	if err := s.SetCurrentSource(ctx, "missing", 1, "x"); !errors.Is(err, jobs.ErrJobNotFound) {
		t.Errorf("SetCurrentSource: got %v, want ErrJobNotFound", err)
	}
}

func TestStore_Get_ReturnsCopy(t *testing.T) {
	s := NewStore()
	job, _ := s.Create(context.Background(), 1)

	got, _ := s.Get(context.Background(), job.ID)
	got.Status = jobs.JobStatusFailed

	again, _ := s.Get(context.Background(), job.ID)
	if again.Status != jobs.JobStatusRunning {
		t.Error("Expected stored job to be unaffected by caller mutation")
	}
}

func TestStore_List(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	s.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}

	a, _ := s.Create(ctx, 1)
	b, _ := s.Create(ctx, 1)
	c, _ := s.Create(ctx, 2)
	_ = s.SetCurrentSource(ctx, b.ID, 10, "flat")
	_ = s.Finish(ctx, a.ID, jobs.JobStatusFailed, "No configuration found for company 1")

	tests := []struct {
		name   string
		filter jobs.JobFilter
		want   []string
	}{
		{name: "all newest first", filter: jobs.JobFilter{}, want: []string{c.ID, b.ID, a.ID}},
		{name: "by company", filter: jobs.JobFilter{CompanyID: 1}, want: []string{b.ID, a.ID}},
		{name: "by source", filter: jobs.JobFilter{CompanyID: 1, SourceID: 10}, want: []string{b.ID}},
		{name: "by status", filter: jobs.JobFilter{Status: jobs.JobStatusFailed}, want: []string{a.ID}},
		{name: "limit", filter: jobs.JobFilter{Limit: 1}, want: []string{c.ID}},
		{name: "offset", filter: jobs.JobFilter{Offset: 2}, want: []string{a.ID}},
		{name: "offset past end", filter: jobs.JobFilter{Offset: 5}, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.List(ctx, tt.filter)
			if err != nil {
				t.Fatalf("List failed: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("List returned %d jobs, want %d", len(got), len(tt.want))
			}
			for i, id := range tt.want {
				if got[i].ID != id {
					t.Errorf("job %d = %s, want %s", i, got[i].ID, id)
				}
			}
		})
	}
}
