package session

import (
	"sync"
	"testing"
	"time"
)

func TestSetStep_PushesPrevious(t *testing.T) {
	s := &Session{Step: StepChoosingMethod}
	s.SetStep(StepAISubject)
	s.SetStep(StepAIContent)

	if s.Step != StepAIContent {
		t.Fatalf("Step = %q, want %q", s.Step, StepAIContent)
	}
	want := []Step{StepChoosingMethod, StepAISubject}
	if len(s.History) != len(want) {
		t.Fatalf("History = %v, want %v", s.History, want)
	}
	for i := range want {
		if s.History[i] != want[i] {
			t.Errorf("History[%d] = %q, want %q", i, s.History[i], want[i])
		}
	}
}

func TestSetStep_SameStepIsNoop(t *testing.T) {
	s := &Session{Step: StepWaitingAttachment, History: []Step{StepEmailReady}}
	gen := s.Generation()
	s.SetStep(StepWaitingAttachment)
	if len(s.History) != 1 {
		t.Errorf("History = %v, want unchanged", s.History)
	}
	if s.Generation() != gen {
		t.Error("generation changed on no-op SetStep")
	}
}

func TestSetStep_IdleNotPushed(t *testing.T) {
	s := &Session{Step: StepIdle}
	s.SetStep(StepChoosingMethod)
	if len(s.History) != 0 {
		t.Errorf("History = %v, want empty", s.History)
	}
}

func TestBack(t *testing.T) {
	s := &Session{Step: StepChoosingMethod}
	s.SetStep(StepAISubject)
	s.SetStep(StepAIContent)
	s.SetStep(StepAITone)

	prev, ok := s.Back()
	if !ok || prev != StepAIContent {
		t.Fatalf("Back() = %q, %v; want %q, true", prev, ok, StepAIContent)
	}
	if s.Step != StepAIContent {
		t.Errorf("Step = %q, want %q", s.Step, StepAIContent)
	}

	s.Back()
	s.Back()
	if s.Step != StepChoosingMethod {
		t.Errorf("Step = %q, want %q", s.Step, StepChoosingMethod)
	}
	if _, ok := s.Back(); ok {
		t.Error("Back() on empty history returned ok")
	}
	if s.Step != StepChoosingMethod {
		t.Errorf("Step changed on empty Back: %q", s.Step)
	}
}

func TestBack_KeepsDraft(t *testing.T) {
	s := &Session{Step: StepAIContent}
	s.Draft.Tone = "formal"
	s.SetStep(StepAITone)
	s.Back()
	if s.Draft.Tone != "formal" {
		t.Errorf("Tone = %q, want draft untouched", s.Draft.Tone)
	}
}

// History must never have the current step on top, whatever the sequence.
func TestHistoryTopNeverCurrent(t *testing.T) {
	steps := []Step{
		StepChoosingMethod, StepAISubject, StepAIContent, StepAITone, StepEmailReady,
		StepWaitingAttachment, StepChoosingRecipients, StepWaitingExcel,
	}
	s := &Session{Step: StepIdle}
	seed := uint32(7)
	for i := 0; i < 2000; i++ {
		seed = seed*1664525 + 1013904223
		switch seed % 4 {
		case 0:
			s.Back()
		case 1:
			s.Reset(StepChoosingMethod)
		default:
			s.SetStep(steps[int(seed>>8)%len(steps)])
		}
		if top, ok := s.Previous(); ok && top == s.Step {
			t.Fatalf("iteration %d: history top %q equals current step", i, top)
		}
	}
}

func TestReset(t *testing.T) {
	s := &Session{Step: StepReadyToSend, CardID: "42", History: []Step{StepEmailReady}}
	s.Draft.Subject = "x"
	s.Reset(StepChoosingMethod)
	if s.Step != StepChoosingMethod || len(s.History) != 0 || s.Draft.Subject != "" {
		t.Errorf("Reset left state: step=%q history=%v draft=%+v", s.Step, s.History, s.Draft)
	}
	if s.CardID != "42" {
		t.Errorf("CardID = %q, want kept", s.CardID)
	}
}

func TestStore_AcquireCreatesOnce(t *testing.T) {
	st := NewStore()
	s1, release := st.Acquire("u1", "c1")
	s1.Draft.Subject = "hello"
	release()

	s2, release := st.Acquire("u1", "")
	defer release()
	if s1 != s2 {
		t.Fatal("Acquire returned a different session for the same user")
	}
	if s2.ChatID != "c1" {
		t.Errorf("ChatID = %q, want %q", s2.ChatID, "c1")
	}
	if st.Len() != 1 {
		t.Errorf("Len = %d, want 1", st.Len())
	}
}

func TestStore_LookupDoesNotCreate(t *testing.T) {
	st := NewStore()
	if _, ok := st.Lookup("ghost"); ok {
		t.Fatal("Lookup found a session that was never created")
	}
	if _, _, ok := st.AcquireExisting("ghost"); ok {
		t.Fatal("AcquireExisting found a session that was never created")
	}
	if st.Len() != 0 {
		t.Errorf("Len = %d, want 0", st.Len())
	}
}

func TestStore_Clear(t *testing.T) {
	st := NewStore()
	_, release := st.Acquire("u1", "c1")
	release()
	st.Clear("u1")
	if _, ok := st.Lookup("u1"); ok {
		t.Error("session still present after Clear")
	}
}

func TestStore_AcquireSerializes(t *testing.T) {
	st := NewStore()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, release := st.Acquire("u1", "c1")
			s.Draft.Recipients = append(s.Draft.Recipients, "x")
			release()
		}()
	}
	wg.Wait()
	s, _ := st.Lookup("u1")
	if len(s.Draft.Recipients) != 50 {
		t.Errorf("len(Recipients) = %d, want 50", len(s.Draft.Recipients))
	}
}

func TestStore_Sweep(t *testing.T) {
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	current := base
	now = func() time.Time { return current }
	defer func() { now = time.Now }()

	st := NewStore()
	_, release := st.Acquire("old", "c")
	release()

	current = base.Add(50 * time.Minute)
	_, release = st.Acquire("fresh", "c")
	release()

	// A busy session is never swept.
	busy, releaseBusy := st.Acquire("busy", "c")
	busy.UpdatedAt = base

	current = base.Add(70 * time.Minute)
	if n := st.Sweep(time.Hour); n != 1 {
		t.Errorf("Sweep removed %d, want 1", n)
	}
	releaseBusy()

	if _, ok := st.Lookup("old"); ok {
		t.Error("old session not swept")
	}
	if _, ok := st.Lookup("fresh"); !ok {
		t.Error("fresh session swept")
	}
	if _, ok := st.Lookup("busy"); !ok {
		t.Error("locked session swept")
	}
}

func TestChannelString(t *testing.T) {
	tests := map[Channel]string{ChannelNone: "none", ChannelTyped: "typed", ChannelButton: "button"}
	for c, want := range tests {
		if got := c.String(); got != want {
			t.Errorf("Channel(%d).String() = %q, want %q", c, got, want)
		}
	}
}
