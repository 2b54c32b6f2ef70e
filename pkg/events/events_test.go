package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/Sternrassler/connsync/pkg/records"
)

type recordingNotifier struct {
	added     []RecordAdded
	completed []RunCompleted
	err       error
}

func (r *recordingNotifier) RecordAdded(ctx context.Context, ev RecordAdded) error {
	r.added = append(r.added, ev)
	return r.err
}

func (r *recordingNotifier) RunComplete(ctx context.Context, ev RunCompleted) error {
	r.completed = append(r.completed, ev)
	return r.err
}

func sampleRecordAdded(t *testing.T) RecordAdded {
	t.Helper()
	data, err := json.Marshal(records.Record{FirstName: "Ada", LastName: "Lovelace", CreatedAt: "1700"})
	if err != nil {
		t.Fatal(err)
	}
	return RecordAdded{Tenant: "acme", Subject: "jdoe", Platform: "linkedin", Record: data, RunID: "run-1"}
}

func TestMulti(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")
	first := &recordingNotifier{err: boom}
	second := &recordingNotifier{}
	multi := Multi{first, second}

	err := multi.RecordAdded(ctx, sampleRecordAdded(t))
	if !errors.Is(err, boom) {
		t.Errorf("RecordAdded() error = %v, want boom", err)
	}
	if len(second.added) != 1 {
		t.Error("Later notifiers must still receive the event")
	}

	if err := (Multi{second}).RunComplete(ctx, RunCompleted{RunID: "run-1"}); err != nil {
		t.Errorf("RunComplete() error = %v", err)
	}
	if len(second.completed) != 1 {
		t.Error("RunComplete not delivered")
	}

	if err := (Multi{}).RecordAdded(ctx, RecordAdded{}); err != nil {
		t.Errorf("Empty Multi error = %v", err)
	}
}

func TestChanNotifier(t *testing.T) {
	ctx := context.Background()
	n := NewChanNotifier(2)

	ev := sampleRecordAdded(t)
	if err := n.RecordAdded(ctx, ev); err != nil {
		t.Fatalf("RecordAdded() error = %v", err)
	}
	if err := n.RunComplete(ctx, RunCompleted{RunID: "run-1", Platform: "linkedin"}); err != nil {
		t.Fatalf("RunComplete() error = %v", err)
	}

	env := <-n.Events()
	if env.Type != TypeRecordAdded || env.RecordAdded == nil || env.RecordAdded.RunID != "run-1" {
		t.Errorf("first envelope = %+v", env)
	}
	env = <-n.Events()
	if env.Type != TypeRunCompleted || env.RunCompleted == nil || env.RunCompleted.Platform != "linkedin" {
		t.Errorf("second envelope = %+v", env)
	}
}

func TestChanNotifier_FullBufferRespectsContext(t *testing.T) {
	n := NewChanNotifier(0)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := n.RecordAdded(ctx, RecordAdded{})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("RecordAdded() error = %v, want deadline exceeded", err)
	}
}

func TestDecodeEnvelope(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr bool
	}{
		{"record added", `{"type":"handle-update","record_added":{"run_id":"r"}}`, false},
		{"run completed", `{"type":"handle-update-complete","run_completed":{"run_id":"r"}}`, false},
		{"unknown type", `{"type":"other"}`, true},
		{"missing payload", `{"type":"handle-update"}`, true},
		{"not json", `nope`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeEnvelope([]byte(tt.data))
			if (err != nil) != tt.wantErr {
				t.Errorf("DecodeEnvelope() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestStoreNotifier(t *testing.T) {
	ctx := context.Background()
	store := records.NewFileStore(t.TempDir())
	n := NewStoreNotifier(store)

	ev := sampleRecordAdded(t)
	if err := n.RecordAdded(ctx, ev); err != nil {
		t.Fatalf("RecordAdded() error = %v", err)
	}
	if err := n.RunComplete(ctx, RunCompleted{RunID: "run-1"}); err != nil {
		t.Fatalf("RunComplete() error = %v", err)
	}

	scope := records.Scope{Tenant: "acme", Subject: "jdoe", Platform: "linkedin"}
	coll, err := store.Load(ctx, scope)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(coll.Content) != 1 || coll.Content[0].LastName != "Lovelace" {
		t.Errorf("Content = %+v", coll.Content)
	}

	bad := ev
	bad.Record = json.RawMessage(`[1,2]`)
	if err := n.RecordAdded(ctx, bad); err == nil {
		t.Error("Undecodable record must fail")
	}

	invalid := ev
	invalid.Tenant = ".."
	if err := n.RecordAdded(ctx, invalid); err == nil {
		t.Error("Invalid scope must fail")
	}
}

func TestStoreNotifier_SkipsStoredRecord(t *testing.T) {
	ctx := context.Background()
	store := records.NewFileStore(t.TempDir())
	n := NewStoreNotifier(store)

	ev := sampleRecordAdded(t)
	env := recordEnvelope(ev)
	for i := 0; i < 2; i++ {
		if err := Dispatch(ctx, n, env); err != nil {
			t.Fatalf("Dispatch() #%d error = %v", i+1, err)
		}
	}

	// A redelivery from another run carries the same identity.
	again := ev
	again.RunID = "run-2"
	if err := n.RecordAdded(ctx, again); err != nil {
		t.Fatalf("RecordAdded() error = %v", err)
	}

	coll, err := store.Load(ctx, records.Scope{Tenant: "acme", Subject: "jdoe", Platform: "linkedin"})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(coll.Content) != 1 {
		t.Errorf("len(Content) = %d, want 1", len(coll.Content))
	}
}

func TestNewStoreNotifier_Panic(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("NewStoreNotifier(nil) should panic")
		}
	}()
	NewStoreNotifier(nil)
}

func TestDispatch(t *testing.T) {
	ctx := context.Background()
	rec := &recordingNotifier{}

	added := Envelope{Type: TypeRecordAdded, RecordAdded: &RecordAdded{RunID: "r1"}}
	done := Envelope{Type: TypeRunCompleted, RunCompleted: &RunCompleted{RunID: "r1"}}

	if err := Dispatch(ctx, rec, added); err != nil {
		t.Fatalf("Dispatch(record) error = %v", err)
	}
	if err := Dispatch(ctx, rec, done); err != nil {
		t.Fatalf("Dispatch(completed) error = %v", err)
	}
	if len(rec.added) != 1 || len(rec.completed) != 1 {
		t.Errorf("got %d added, %d completed; want 1, 1", len(rec.added), len(rec.completed))
	}

	err := Dispatch(ctx, rec, Envelope{Type: "bogus"})
	if !errors.Is(err, ErrUnknownEvent) {
		t.Errorf("Dispatch(bogus) error = %v, want ErrUnknownEvent", err)
	}
}
