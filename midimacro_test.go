package moduleplayer

import (
	"math"
	"testing"
)

func TestNewMIDIMacroStateStartsWithFilterDisabled(t *testing.T) {
	m := newMIDIMacroState()
	if m.cutoff != 127 || m.resonance != 0 {
		t.Fatalf("fresh state = cutoff=%d resonance=%d, want 127/0", m.cutoff, m.resonance)
	}
	if m.FilterActive() {
		t.Error("cutoff=127, resonance=0 should report FilterActive=false")
	}
}

func TestApplyZxxSetsCutoff(t *testing.T) {
	m := newMIDIMacroState()
	m.ApplyZxx(0x40)
	if m.cutoff != 0x40 {
		t.Errorf("cutoff = %d, want 0x40", m.cutoff)
	}
	if !m.FilterActive() {
		t.Error("cutoff < 127 should report FilterActive=true")
	}
}

func TestApplyZxxSelectsMacroSlot(t *testing.T) {
	m := newMIDIMacroState()
	m.ApplyZxx(0x85)
	if m.activeMacro != 5 {
		t.Errorf("SFx 0x85 should select macro slot 5, got %d", m.activeMacro)
	}
	m.ApplyZxx(0x90)
	if m.activeMacro != 0 {
		t.Errorf("SFx 0x90 wraps mod 16, should select macro slot 0, got %d", m.activeMacro)
	}
}

func TestSetResonanceClamps(t *testing.T) {
	m := newMIDIMacroState()
	m.SetResonance(200)
	if m.resonance != 127 {
		t.Errorf("resonance = %d, want clamped to 127", m.resonance)
	}
	m.SetResonance(-5)
	if m.resonance != 0 {
		t.Errorf("resonance = %d, want clamped to 0", m.resonance)
	}
	m.SetResonance(10)
	if m.resonance != 10 {
		t.Errorf("resonance = %d, want 10", m.resonance)
	}
	if !m.FilterActive() {
		t.Error("nonzero resonance alone should report FilterActive=true even at cutoff=127")
	}
}

func TestResonantLowPassConvergesOnConstantInput(t *testing.T) {
	f := newResonantLowPass(64, 32, 44100)
	var y float64
	for i := 0; i < 2000; i++ {
		y = f.Process(1.0)
	}
	if math.Abs(y-1.0) > 1e-6 {
		t.Errorf("steady-state output for a constant 1.0 input = %v, want ~1.0", y)
	}
}

func TestResonantLowPassFeedbackScalesWithResonance(t *testing.T) {
	low := newResonantLowPass(64, 0, 44100)
	high := newResonantLowPass(64, 127, 44100)
	if !(low.fb < high.fb) {
		t.Errorf("fb should grow with resonance: resonance=0 fb=%v, resonance=127 fb=%v", low.fb, high.fb)
	}
	if low.fb != 1.0 {
		t.Errorf("resonance=0 should give fb=1.0 (q baseline), got %v", low.fb)
	}
	if high.fb != 9.0 {
		t.Errorf("resonance=127 should give fb=9.0 (1 + 127/127*8), got %v", high.fb)
	}
}

func TestPow2ApproxKnownPoints(t *testing.T) {
	cases := []struct {
		x, want float64
	}{
		{0, 1},
		{1, 2},
		{-1, 0.5},
	}
	for _, c := range cases {
		got := pow2Approx(c.x)
		if math.Abs(got-c.want) > 0.05 {
			t.Errorf("pow2Approx(%v) = %v, want ~%v", c.x, got, c.want)
		}
	}
}
