package cfbridge

import (
	"errors"
	"testing"
	"time"
)

func TestValidateAcknowledgerCoversRange(t *testing.T) {
	sub := newFakeSubsystem()
	a := NewValidateAcknowledger(sub, nil)

	cb := Callback{
		Type:   CallbackValidateData,
		Info:   CallbackInfo{Keys: Keys{ConnectionKey: 1, TransferKey: 2}},
		Params: CallbackParams{RequiredOffset: 4096, RequiredLength: 8192},
	}
	if err := a.Acknowledge(cb); err != nil {
		t.Fatalf("Acknowledge: %v", err)
	}
	got := sub.all()
	if len(got) != 1 {
		t.Fatalf("completions = %d, want 1", len(got))
	}
	c := got[0]
	if c.Kind != CompletionAckValidate || c.Offset != 4096 || c.Length != 8192 || c.Status != StatusOK {
		t.Errorf("completion = %+v", c)
	}
}

func TestValidateAcknowledgerSubmissionFailure(t *testing.T) {
	sub := newFakeSubsystem()
	sub.executeErr[CompletionAckValidate] = errors.New("device not ready")
	a := NewValidateAcknowledger(sub, nil)

	err := a.Acknowledge(Callback{Type: CallbackValidateData})
	if !errors.Is(err, ErrAPIFailed) {
		t.Errorf("Acknowledge = %v, want ErrAPIFailed", err)
	}
	if s := a.stats.Snapshot(); s.AcksFailed != 1 || s.AcksSent != 0 {
		t.Errorf("stats = %+v", s)
	}
}

func TestPlaceholderAcknowledgerDebounce(t *testing.T) {
	sub := newFakeSubsystem()
	a := NewPlaceholderAcknowledger(sub, 500*time.Millisecond, nil)

	now := time.Unix(1000, 0)
	a.now = func() time.Time { return now }

	steps := []struct {
		path      string
		advance   time.Duration
		debounced bool
	}{
		{`\root\a`, 0, false},
		{`\root\a`, 100 * time.Millisecond, true},
		{`\root\a`, 100 * time.Millisecond, true},
		{`\root\b`, 0, false},
		{`\root\a`, 0, false},
		{`\root\a`, 600 * time.Millisecond, false},
	}

	var wantDebounced int64
	for i, s := range steps {
		now = now.Add(s.advance)
		before := a.stats.PlaceholdersDebounced.Load()
		cb := Callback{Type: CallbackFetchPlaceholders, Info: CallbackInfo{NormalizedPath: s.path}}
		if err := a.Acknowledge(cb); err != nil {
			t.Fatalf("step %d: Acknowledge: %v", i, err)
		}
		got := a.stats.PlaceholdersDebounced.Load() - before
		if (got == 1) != s.debounced {
			t.Errorf("step %d (%s): debounced = %v, want %v", i, s.path, got == 1, s.debounced)
		}
		if s.debounced {
			wantDebounced++
		}
	}

	acks := sub.ofKind(CompletionAckPlaceholders)
	if len(acks) != len(steps) {
		t.Fatalf("acks = %d, want %d (one per request)", len(acks), len(steps))
	}
	for i, c := range acks {
		if c.Flags != 0 || c.Status != StatusOK || c.Length != 0 {
			t.Errorf("ack %d = %+v, want empty population with flags 0", i, c)
		}
	}
	if a.stats.PlaceholdersDebounced.Load() != wantDebounced {
		t.Errorf("debounced = %d, want %d", a.stats.PlaceholdersDebounced.Load(), wantDebounced)
	}
}

func TestPlaceholderAcknowledgerSubmissionFailure(t *testing.T) {
	sub := newFakeSubsystem()
	sub.executeErr[CompletionAckPlaceholders] = &APIError{Op: "CfExecute", Status: StatusFail}
	a := NewPlaceholderAcknowledger(sub, -1, nil)

	if err := a.Acknowledge(Callback{Type: CallbackFetchPlaceholders}); !errors.Is(err, ErrAPIFailed) {
		t.Errorf("Acknowledge = %v, want ErrAPIFailed", err)
	}
	if len(sub.all()) != 1 {
		t.Errorf("completions = %d, want 1", len(sub.all()))
	}
}

func TestPlaceholderAcknowledgerInterval(t *testing.T) {
	if a := NewPlaceholderAcknowledger(newFakeSubsystem(), 0, nil); a.interval != DefaultDebounceInterval {
		t.Errorf("zero interval = %v, want %v", a.interval, DefaultDebounceInterval)
	}

	sub := newFakeSubsystem()
	a := NewPlaceholderAcknowledger(sub, -1, nil)
	cb := Callback{Type: CallbackFetchPlaceholders, Info: CallbackInfo{NormalizedPath: `\Users\dev\Cloud\dir`}}
	for i := 0; i < 3; i++ {
		_ = a.Acknowledge(cb)
	}
	if n := a.stats.PlaceholdersDebounced.Load(); n != 0 {
		t.Errorf("debounced = %d with debouncing disabled, want 0", n)
	}
	if n := len(sub.ofKind(CompletionAckPlaceholders)); n != 3 {
		t.Errorf("acks = %d, want 3", n)
	}
}
