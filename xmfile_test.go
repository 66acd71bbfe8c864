package moduleplayer

import (
	"encoding/binary"
	"testing"
)

// buildXMBytes assembles a minimal synthetic XM file: a 2-row, 2-channel
// pattern and one instrument with one 8-bit sample, enough to exercise
// loadXMFile's header/pattern/instrument/sample parsing end to end.
// Offsets are laid out sequentially exactly as loadXMFile consumes them;
// each size field (header size, sample header size) is chosen so the
// seeks it drives land exactly where the next field actually starts.
func buildXMBytes() []byte {
	const (
		hdrSizeFieldOff = 60
		restOff         = 64
		orderOff        = 80
		patternOff      = 81
		instrumentOff   = 96
	)

	buf := make([]byte, 0, 400)
	buf = append(buf, []byte("Extended Module: ")...) // "Extended Module: " is 17 chars; loader only checks prefix + seeks to 17
	for len(buf) < 17 {
		buf = append(buf, 0)
	}
	title := make([]byte, 20)
	copy(title, "xmtest")
	buf = append(buf, title...)
	buf = append(buf, 0x1A)
	trackerName := make([]byte, 20)
	copy(trackerName, "teststooge")
	buf = append(buf, trackerName...)
	buf = append(buf, 0, 0) // version

	if len(buf) != hdrSizeFieldOff {
		panic("xm test fixture offset drift before header size field")
	}

	hdrSize := make([]byte, 4)
	binary.LittleEndian.PutUint32(hdrSize, 4+16+1) // covers rest(16) + 1 order byte
	buf = append(buf, hdrSize...)

	if len(buf) != restOff {
		panic("xm test fixture offset drift before rest fields")
	}

	rest := make([]byte, 16)
	binary.LittleEndian.PutUint16(rest[0:], 1)   // numOrders
	binary.LittleEndian.PutUint16(rest[2:], 0)   // restart pos
	binary.LittleEndian.PutUint16(rest[4:], 2)   // numChannels
	binary.LittleEndian.PutUint16(rest[6:], 1)   // numPatterns
	binary.LittleEndian.PutUint16(rest[8:], 1)   // numInstruments
	binary.LittleEndian.PutUint16(rest[10:], 1)  // flags: linear slides
	binary.LittleEndian.PutUint16(rest[12:], 6)  // default speed
	binary.LittleEndian.PutUint16(rest[14:], 125) // default tempo
	buf = append(buf, rest...)

	if len(buf) != orderOff {
		panic("xm test fixture offset drift before order table")
	}
	buf = append(buf, 0) // single order, pattern 0

	if len(buf) != patternOff {
		panic("xm test fixture offset drift before pattern data")
	}

	packed := []byte{
		0x83, 61, 1, // row0 ch0: note C-5 (n=61 -> pitch 60), sample 1
		0x80, // row0 ch1: empty
		0x80, // row1 ch0: empty
		0x80, // row1 ch1: empty
	}
	patHdrLen := make([]byte, 4)
	binary.LittleEndian.PutUint32(patHdrLen, 9) // standard 9-byte pattern header
	buf = append(buf, patHdrLen...)
	buf = append(buf, 0) // packing type
	rows := make([]byte, 2)
	binary.LittleEndian.PutUint16(rows, 2)
	buf = append(buf, rows...)
	dataSize := make([]byte, 2)
	binary.LittleEndian.PutUint16(dataSize, uint16(len(packed)))
	buf = append(buf, dataSize...)
	buf = append(buf, packed...)

	if len(buf) != instrumentOff {
		panic("xm test fixture offset drift before instrument data")
	}

	const fixedInsHeaderLen = 4 + 22 + 1 + 2 + 4 + 96 + 48 + 48 + 12 + 4 + 2 // up to and incl. fadeout
	insHdrSize := make([]byte, 4)
	binary.LittleEndian.PutUint32(insHdrSize, uint32(fixedInsHeaderLen))
	buf = append(buf, insHdrSize...)

	insName := make([]byte, 22)
	copy(insName, "xminstrument")
	buf = append(buf, insName...)
	buf = append(buf, 0) // instrument type

	numSamples := make([]byte, 2)
	binary.LittleEndian.PutUint16(numSamples, 1)
	buf = append(buf, numSamples...)

	sampHdrSize := make([]byte, 4)
	binary.LittleEndian.PutUint32(sampHdrSize, 40)
	buf = append(buf, sampHdrSize...)

	buf = append(buf, make([]byte, 96)...) // notemap: all sample 0 (unused since single sample)
	buf = append(buf, make([]byte, 48)...) // vol envelope raw points, numVolPoints=0 below
	buf = append(buf, make([]byte, 48)...) // pan envelope raw points

	counts := make([]byte, 12)
	// numVolPoints=0, numPanPoints=0, rest left zero
	buf = append(buf, counts...)

	buf = append(buf, 0, 0, 0, 0) // vibrato type/sweep/depth/rate
	fadeout := make([]byte, 2)
	binary.LittleEndian.PutUint16(fadeout, 0)
	buf = append(buf, fadeout...)

	sampHdr := make([]byte, 40)
	binary.LittleEndian.PutUint32(sampHdr[0:], 4) // length
	sampHdr[12] = 64                              // volume
	sampHdr[14] = 0                               // flags: 8-bit, unlooped
	sampHdr[15] = 128                             // panning
	copy(sampHdr[18:40], "xmsample")
	buf = append(buf, sampHdr...)

	buf = append(buf, []byte{5, 5, 5, 5}...) // delta-coded 8-bit PCM

	return buf
}

func TestLoadXMFileHeader(t *testing.T) {
	song, err := loadXMFile(buildXMBytes())
	if err != nil {
		t.Fatalf("loadXMFile: %v", err)
	}
	if song.Type != SongTypeXM {
		t.Errorf("Type = %v, want SongTypeXM", song.Type)
	}
	if song.Title != "xmtest" {
		t.Errorf("Title = %q", song.Title)
	}
	if song.Channels != 2 {
		t.Errorf("Channels = %d, want 2", song.Channels)
	}
	if !song.LinearSlides {
		t.Error("LinearSlides should be set from flags bit 0")
	}
	if song.InitialSpeed != 6 || song.InitialTempo != 125 {
		t.Errorf("speed/tempo = %d/%d, want 6/125", song.InitialSpeed, song.InitialTempo)
	}
	if len(song.Orders) != 1 || song.Orders[0] != 0 {
		t.Errorf("Orders = %v, want [0]", song.Orders)
	}
}

func TestLoadXMFileBadMagic(t *testing.T) {
	buf := buildXMBytes()
	buf[0] = 'X'
	if _, err := loadXMFile(buf); err == nil {
		t.Fatal("expected an error for a missing XM signature")
	}
}

func TestLoadXMFilePattern(t *testing.T) {
	song, err := loadXMFile(buildXMBytes())
	if err != nil {
		t.Fatalf("loadXMFile: %v", err)
	}
	if len(song.Patterns) != 1 {
		t.Fatalf("Patterns len = %d, want 1", len(song.Patterns))
	}
	pat := song.Patterns[0]
	if pat.Rows != 2 || pat.Channels != 2 {
		t.Fatalf("pattern shape = %dx%d, want 2x2", pat.Rows, pat.Channels)
	}
	cell := pat.Cell(0, 0)
	if cell.Pitch != 60 {
		t.Errorf("Cell(0,0).Pitch = %d, want 60", cell.Pitch)
	}
	if cell.Sample != 1 {
		t.Errorf("Cell(0,0).Sample = %d, want 1", cell.Sample)
	}
	if blank := pat.Cell(0, 1); blank.Pitch != noNote {
		t.Errorf("Cell(0,1).Pitch = %d, want noNote", blank.Pitch)
	}
}

func TestLoadXMFileInstrumentAndSample(t *testing.T) {
	song, err := loadXMFile(buildXMBytes())
	if err != nil {
		t.Fatalf("loadXMFile: %v", err)
	}
	if len(song.Instruments) != 1 {
		t.Fatalf("Instruments len = %d, want 1", len(song.Instruments))
	}
	if song.Instruments[0].Name != "xminstrument" {
		t.Errorf("Instrument name = %q", song.Instruments[0].Name)
	}
	if len(song.Samples) != 1 {
		t.Fatalf("Samples len = %d, want 1", len(song.Samples))
	}
	s := song.Samples[0]
	if s.Name != "xmsample" {
		t.Errorf("Sample name = %q", s.Name)
	}
	if s.Length != 4 {
		t.Fatalf("Sample Length = %d, want 4", s.Length)
	}
	// Delta-coded PCM accumulates: [5,5,5,5] -> running sums 5,10,15,20.
	want := []int16{5 << 8, 10 << 8, 15 << 8, 20 << 8}
	for i, w := range want {
		if s.Data[i] != w {
			t.Errorf("Data[%d] = %d, want %d", i, s.Data[i], w)
		}
	}
}

func TestXMEffectNumberMapping(t *testing.T) {
	if got := xmEffectNumber(0); got != 0 {
		t.Errorf("xmEffectNumber(0) = %d, want 0", got)
	}
	if got := xmEffectNumber(16); got != effectXMSetGlobalVolume {
		t.Errorf("xmEffectNumber(16) = %#02x, want effectXMSetGlobalVolume", got)
	}
	if got := xmEffectNumber(200); got != effectNone {
		t.Errorf("xmEffectNumber(200) = %#02x, want effectNone", got)
	}
}
