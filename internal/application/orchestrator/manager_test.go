package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/JonasDEMA/agentify-os/pkg/domain"
	"github.com/JonasDEMA/agentify-os/pkg/ports"
)

func TestSubmitPersistsAndEnqueues(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	jobID, err := env.manager.Submit(ctx, "deploy", []domain.TaskSpec{{ID: "a", Action: "work"}}, 2)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	job := env.storedJob(t, jobID)
	if job.Status != domain.JobPending {
		t.Errorf("status = %s, want pending", job.Status)
	}
	if job.MaxRetries != 2 {
		t.Errorf("max_retries = %d, want 2", job.MaxRetries)
	}

	dctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	claimed, err := env.queue.Dequeue(dctx)
	if err != nil {
		t.Fatalf("Dequeue: %v", err)
	}
	if claimed.ID != jobID {
		t.Errorf("queued %s, want %s", claimed.ID, jobID)
	}
}

func TestSubmitRejectsBadGraphs(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	cases := []struct {
		name   string
		intent string
		specs  []domain.TaskSpec
		want   error
	}{
		{
			name:   "cycle",
			intent: "cyclic",
			specs: []domain.TaskSpec{
				{ID: "a", Action: "work", DependsOn: []string{"b"}},
				{ID: "b", Action: "work", DependsOn: []string{"a"}},
			},
			want: domain.ErrCycleDetected,
		},
		{
			name:   "unknown dependency",
			intent: "dangling",
			specs:  []domain.TaskSpec{{ID: "a", Action: "work", DependsOn: []string{"ghost"}}},
			want:   domain.ErrInvalidDependency,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.manager.Submit(ctx, tc.intent, tc.specs, 0)
			if !errors.Is(err, tc.want) {
				t.Errorf("Submit err = %v, want %v", err, tc.want)
			}

			// A rejected job never enters the store or the queue.
			_, total, listErr := env.manager.List(ctx, ports.JobFilter{})
			if listErr != nil {
				t.Fatalf("List: %v", listErr)
			}
			if total != 0 {
				t.Errorf("store has %d jobs after rejection", total)
			}
		})
	}
}

func TestSubmitRejectsEmptyFields(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.manager.Submit(ctx, "", []domain.TaskSpec{{ID: "a", Action: "work"}}, 0); err == nil {
		t.Error("empty intent accepted")
	}
	if _, err := env.manager.Submit(ctx, "x", nil, 0); err == nil {
		t.Error("empty task set accepted")
	}
	if _, err := env.manager.Submit(ctx, "x", []domain.TaskSpec{{ID: "a"}}, 0); err == nil {
		t.Error("task without action accepted")
	}
}

func TestCancelPendingJob(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	jobID, err := env.manager.Submit(ctx, "cancel-me", []domain.TaskSpec{{ID: "a", Action: "work"}}, 0)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if err := env.manager.Cancel(ctx, jobID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	job := env.storedJob(t, jobID)
	if job.Status != domain.JobCancelled {
		t.Errorf("status = %s, want cancelled", job.Status)
	}
	if job.Error != "" {
		t.Errorf("cancelled job carries error %q", job.Error)
	}

	// Cancelling again is rejected: the job is terminal.
	if err := env.manager.Cancel(ctx, jobID); !errors.Is(err, domain.ErrJobTerminal) {
		t.Errorf("second Cancel err = %v, want ErrJobTerminal", err)
	}
}

func TestCancelMissingJob(t *testing.T) {
	env := newTestEnv(t)
	if err := env.manager.Cancel(context.Background(), "ghost"); !errors.Is(err, domain.ErrJobNotFound) {
		t.Errorf("err = %v, want ErrJobNotFound", err)
	}
}

func TestRetryExhaustedNeverReenqueues(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	jobID, err := env.manager.Submit(ctx, "dead-letter", []domain.TaskSpec{{ID: "a", Action: "work"}}, 1)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	job := env.storedJob(t, jobID)
	job.Status = domain.JobFailed
	job.RetryCount = job.MaxRetries
	if err := env.store.Save(ctx, job); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if err := env.manager.Retry(ctx, jobID); !errors.Is(err, domain.ErrRetriesExhausted) {
		t.Fatalf("Retry err = %v, want ErrRetriesExhausted", err)
	}

	// Still failed, still exhausted, nothing re-enqueued.
	stored := env.storedJob(t, jobID)
	if stored.Status != domain.JobFailed || stored.RetryCount != stored.MaxRetries {
		t.Errorf("job mutated by rejected retry: %+v", stored)
	}
}

func TestRetryFailedJobWithBudget(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	jobID, err := env.manager.Submit(ctx, "retry-me", []domain.TaskSpec{{ID: "a", Action: "work"}}, 2)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	job := env.storedJob(t, jobID)
	job.Status = domain.JobFailed
	job.Error = "transient"
	if err := env.store.Save(ctx, job); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if err := env.manager.Retry(ctx, jobID); err != nil {
		t.Fatalf("Retry: %v", err)
	}

	stored := env.storedJob(t, jobID)
	if stored.Status != domain.JobPending {
		t.Errorf("status = %s, want pending", stored.Status)
	}
	if stored.RetryCount != 1 {
		t.Errorf("retry_count = %d, want 1", stored.RetryCount)
	}
	if stored.Error != "" {
		t.Errorf("retried job still carries error %q", stored.Error)
	}
}

func TestRetryNonFailedJob(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	jobID, err := env.manager.Submit(ctx, "still-pending", []domain.TaskSpec{{ID: "a", Action: "work"}}, 1)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if err := env.manager.Retry(ctx, jobID); !errors.Is(err, domain.ErrJobNotFailed) {
		t.Errorf("Retry err = %v, want ErrJobNotFailed", err)
	}
}

func TestResultOnlyForDoneJobs(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	jobID, err := env.manager.Submit(ctx, "results", []domain.TaskSpec{{ID: "a", Action: "work"}}, 0)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if _, err := env.manager.Result(ctx, jobID); err == nil {
		t.Error("Result succeeded for a pending job")
	}

	job := env.storedJob(t, jobID)
	job.Status = domain.JobDone
	job.Tasks["a"].Status = domain.TaskDone
	job.Tasks["a"].Result = []byte(`{"out":42}`)
	if err := env.store.Save(ctx, job); err != nil {
		t.Fatalf("Save: %v", err)
	}

	results, err := env.manager.Result(ctx, jobID)
	if err != nil {
		t.Fatalf("Result: %v", err)
	}
	if string(results["a"]) != `{"out":42}` {
		t.Errorf("results = %v", results)
	}
}
