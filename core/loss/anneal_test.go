package loss

import "testing"

func TestAnnealLinearRamp(t *testing.T) {
	a, err := NewAnneal("linear", 10, 1.0, 2.5)
	if err != nil {
		t.Fatalf("new anneal: %v", err)
	}
	if got := a.At(0); got != 1.0 {
		t.Fatalf("expected floor at step 0, got %v", got)
	}
	prev := a.At(0)
	for step := 1; step <= 20; step++ {
		v := a.At(step)
		if v < prev {
			t.Fatalf("ramp decreased at step %d: %v < %v", step, v, prev)
		}
		prev = v
	}
	for step := 10; step <= 15; step++ {
		if got := a.At(step); got != 2.5 {
			t.Fatalf("expected ceiling beyond duration, got %v at %d", got, step)
		}
	}
}

func TestAnnealSigmoidRamp(t *testing.T) {
	a, err := NewAnneal("sigmoid", 8, 0, 2.5)
	if err != nil {
		t.Fatalf("new anneal: %v", err)
	}
	if got := a.At(0); got != 0 {
		t.Fatalf("expected floor at step 0, got %v", got)
	}
	prev := -1.0
	for step := 0; step <= 16; step++ {
		v := a.At(step)
		if v < prev {
			t.Fatalf("sigmoid ramp decreased at step %d", step)
		}
		if v < 0 || v > 2.5 {
			t.Fatalf("value %v outside [floor, ceiling]", v)
		}
		prev = v
	}
	if got := a.At(8); got != 2.5 {
		t.Fatalf("expected ceiling at duration, got %v", got)
	}
}

func TestAnnealRejectsBadConfig(t *testing.T) {
	if _, err := NewAnneal("cubic", 10, 0, 1); err == nil {
		t.Fatalf("expected error for unknown method")
	}
	if _, err := NewAnneal("linear", 10, 2, 1); err == nil {
		t.Fatalf("expected error for floor above ceiling")
	}
}

func TestAnnealPopAdvances(t *testing.T) {
	a, _ := NewAnneal("linear", 4, 0, 1)
	vals := []float64{a.Pop(), a.Pop(), a.Pop(), a.Pop(), a.Pop()}
	want := []float64{0, 0.25, 0.5, 0.75, 1}
	for i := range want {
		if vals[i] != want[i] {
			t.Fatalf("pop %d = %v want %v", i, vals[i], want[i])
		}
	}
	if a.Step() != 5 {
		t.Fatalf("expected 5 steps, got %d", a.Step())
	}
}

func TestSchedulerPopAndDiagnostic(t *testing.T) {
	s, err := NewScheduler(100, nil)
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	// before any pop, diagnostic has nothing to reuse
	if w := s.Diagnostic(); len(w) != 0 {
		t.Fatalf("expected empty diagnostic weights, got %v", w)
	}
	first := s.Pop()
	if len(first) != len(annealTerms) {
		t.Fatalf("expected %d weights, got %d", len(annealTerms), len(first))
	}
	diag1 := s.Diagnostic()
	diag2 := s.Diagnostic()
	if diag1[TermMain] != first[TermMain] || diag1[TermPressure] != first[TermPressure] {
		t.Fatalf("diagnostic weights diverge from last pop: %v vs %v", diag1, first)
	}
	if diag1[TermMain] != diag2[TermMain] || diag1[TermPressure] != diag2[TermPressure] {
		t.Fatalf("repeated diagnostic passes differ: %v vs %v", diag1, diag2)
	}
	if _, ok := diag1[TermMedian]; ok {
		t.Fatalf("diagnostic must only expose main/pressure, got %v", diag1)
	}
	steps := s.Steps()
	for term, step := range steps {
		if step != 1 {
			t.Fatalf("diagnostic advanced %s to %d", term, step)
		}
	}
}

func TestSchedulerDisabledTerm(t *testing.T) {
	specs := DefaultAnnealSpecs()
	specs[TermDual] = AnnealSpec{}
	s, err := NewScheduler(10, specs)
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	w := s.Pop()
	if _, ok := w[TermDual]; ok {
		t.Fatalf("disabled term must be absent, got %v", w)
	}
	if _, ok := w[TermMain]; !ok {
		t.Fatalf("enabled terms must be present, got %v", w)
	}
}

func TestSchedulerRestore(t *testing.T) {
	s, _ := NewScheduler(40, nil)
	for i := 0; i < 7; i++ {
		s.Pop()
	}
	snapshot := s.Steps()

	fresh, _ := NewScheduler(40, nil)
	fresh.Restore(snapshot)
	want := s.Pop()
	got := fresh.Pop()
	for _, term := range annealTerms {
		if got[term] != want[term] {
			t.Fatalf("restored scheduler diverges on %s: %v vs %v", term, got[term], want[term])
		}
	}
}
