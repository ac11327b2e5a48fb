package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestValidateCron(t *testing.T) {
	tests := []struct {
		expr    string
		wantErr bool
	}{
		{"0 * * * *", false},
		{"*/10 * * * *", false},
		{"every hour", true},
		{"", true},
	}
	for _, tt := range tests {
		err := ValidateCron(tt.expr)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateCron(%q) error = %v, wantErr %v", tt.expr, err, tt.wantErr)
		}
	}
}

func newStarted(t *testing.T) *Scheduler {
	t.Helper()
	s, err := New(zerolog.Nop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Stop() })
	return s
}

func TestScheduler_RunNowAndState(t *testing.T) {
	s := newStarted(t)

	release := make(chan struct{})
	if err := s.RegisterTask(&TaskConfig{
		ID:   "b-task",
		Name: "Blocking",
		Cron: "0 0 1 1 *",
		Func: func(ctx context.Context) error {
			<-release
			return errors.New("boom")
		},
	}); err != nil {
		t.Fatal(err)
	}
	if err := s.RegisterTask(&TaskConfig{
		ID:   "a-task",
		Name: "Noop",
		Cron: "0 0 1 1 *",
		Func: func(context.Context) error { return nil },
	}); err != nil {
		t.Fatal(err)
	}

	if err := s.RegisterTask(&TaskConfig{ID: "a-task", Cron: "0 0 1 1 *"}); err == nil {
		t.Error("RegisterTask() accepted a duplicate id")
	}

	tasks := s.ListTasks()
	if len(tasks) != 2 {
		t.Fatalf("ListTasks() returned %d tasks, want 2", len(tasks))
	}
	if tasks[0].ID != "a-task" || tasks[0].NextRun == nil {
		t.Errorf("tasks[0] = %+v, want a-task with a next run", tasks[0])
	}

	if err := s.RunNow("b-task"); err != nil {
		t.Fatalf("RunNow() error = %v", err)
	}
	if err := s.RunNow("b-task"); !errors.Is(err, ErrTaskRunning) {
		t.Errorf("RunNow() while running error = %v, want ErrTaskRunning", err)
	}
	if err := s.RunNow("missing"); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("RunNow(missing) error = %v, want ErrTaskNotFound", err)
	}

	close(release)
	deadline := time.Now().Add(2 * time.Second)
	for {
		info, err := s.GetTask("b-task")
		if err == nil && !info.Running && info.LastRun != nil {
			if info.LastError != "boom" {
				t.Errorf("LastError = %q, want boom", info.LastError)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("task never finished")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if _, err := s.GetTask("missing"); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("GetTask(missing) error = %v, want ErrTaskNotFound", err)
	}
}

func TestScheduler_StopCancelsRunningTask(t *testing.T) {
	s, err := New(zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}

	started := make(chan struct{})
	if err := s.RegisterTask(&TaskConfig{
		ID:         "long",
		Name:       "Long",
		Cron:       "0 0 1 1 *",
		RunOnStart: true,
		Func: func(ctx context.Context) error {
			close(started)
			<-ctx.Done()
			return ctx.Err()
		},
	}); err != nil {
		t.Fatal(err)
	}
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("run-on-start task never ran")
	}

	if err := s.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if err := s.RunNow("long"); err == nil {
		t.Error("stopped scheduler accepted work")
	}
}
