package moduleplayer

import "testing"

func TestPlayerNoteString(t *testing.T) {
	cases := []struct {
		note playerNote
		want string
	}{
		{noNote, "..."},
		{noteKeyOff, "==="},
		{0, "C-0"},
		{12, "C-1"},
		{60, "C-5"},
		{61, "C#5"},
		{71, "B-5"},
	}
	for _, c := range cases {
		if got := c.note.String(); got != c.want {
			t.Errorf("playerNote(%d).String() = %q, want %q", c.note, got, c.want)
		}
	}
}

func TestNewPatternDefaults(t *testing.T) {
	p := NewPattern(4, 2)
	if p.Rows != 4 || p.Channels != 2 || len(p.Cells) != 8 {
		t.Fatalf("unexpected pattern shape: rows=%d channels=%d cells=%d", p.Rows, p.Channels, len(p.Cells))
	}
	for i, c := range p.Cells {
		if c.Pitch != noNote || c.Volume != noNoteVolume {
			t.Fatalf("cell %d not defaulted empty: %+v", i, c)
		}
	}
}

func TestPatternCellAddressing(t *testing.T) {
	p := NewPattern(3, 4)
	p.Cell(1, 2).Pitch = 60
	for row := 0; row < 3; row++ {
		for ch := 0; ch < 4; ch++ {
			want := noNote
			if row == 1 && ch == 2 {
				want = 60
			}
			if got := p.Cell(row, ch).Pitch; got != want {
				t.Errorf("Cell(%d,%d).Pitch = %d, want %d", row, ch, got, want)
			}
		}
	}
}

func TestSongPatternAt(t *testing.T) {
	s := &Song{
		Orders:   []byte{0, OrderSkip, 1, OrderEnd},
		Patterns: []*Pattern{NewPattern(2, 1), NewPattern(3, 1)},
	}

	if s.PatternAt(0) != s.Patterns[0] {
		t.Error("order 0 should resolve to pattern 0")
	}
	if s.PatternAt(1) != nil {
		t.Error("OrderSkip should resolve to nil")
	}
	if s.PatternAt(2) != s.Patterns[1] {
		t.Error("order 2 should resolve to pattern 1")
	}
	if s.PatternAt(3) != nil {
		t.Error("OrderEnd should resolve to nil")
	}
	if s.PatternAt(-1) != nil || s.PatternAt(99) != nil {
		t.Error("out-of-range order indices should resolve to nil")
	}
}

func TestSongUsesInstruments(t *testing.T) {
	cases := []struct {
		name string
		song Song
		want bool
	}{
		{"MOD", Song{Type: SongTypeMOD}, false},
		{"S3M", Song{Type: SongTypeS3M}, false},
		{"XM", Song{Type: SongTypeXM}, true},
		{"IT without instruments", Song{Type: SongTypeIT, InstrumentMode: false}, false},
		{"IT with instruments", Song{Type: SongTypeIT, InstrumentMode: true}, true},
	}
	for _, c := range cases {
		if got := c.song.UsesInstruments(); got != c.want {
			t.Errorf("%s: UsesInstruments() = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestSongTypeString(t *testing.T) {
	cases := map[SongType]string{
		SongTypeMOD: "MOD",
		SongTypeS3M: "S3M",
		SongTypeXM:  "XM",
		SongTypeIT:  "IT",
		SongType(99): "unknown",
	}
	for typ, want := range cases {
		if got := typ.String(); got != want {
			t.Errorf("SongType(%d).String() = %q, want %q", typ, got, want)
		}
	}
}
