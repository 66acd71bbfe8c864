package moduleplayer

import (
	"encoding/binary"
	"testing"
)

// buildITBytes assembles a minimal synthetic IT file: two channels, one
// sample, one two-row pattern, no instruments (so InstrumentMode is off
// and instruments get synthesized from the sample table). Sample and
// pattern blocks sit at fixed absolute offsets referenced by parapointers,
// matching how loadITFile actually dereferences them.
func buildITBytes() []byte {
	const (
		smpOffset = 256
		patOffset = 336
		fileLen   = 350
	)

	buf := make([]byte, fileLen)
	copy(buf[0:4], "IMPM")
	copy(buf[4:30], "ittest")

	binary.LittleEndian.PutUint16(buf[32:], 1) // numOrders
	binary.LittleEndian.PutUint16(buf[34:], 0) // numInstruments
	binary.LittleEndian.PutUint16(buf[36:], 1) // numSamples
	binary.LittleEndian.PutUint16(buf[38:], 1) // numPatterns

	binary.LittleEndian.PutUint16(buf[44:], 0) // flags: sample mode, no linear slides

	buf[48] = 64  // global volume (song.GlobalVolume = this * 2)
	buf[49] = 48  // mixing volume
	buf[50] = 6   // initial speed
	buf[51] = 125 // initial tempo

	for ch := 0; ch < 64; ch++ {
		buf[68+ch] = 0xA0 // unused channel sentinel
	}
	buf[68+0] = 0x20 // channel 0 pan
	buf[68+1] = 0x20 // channel 1 pan
	for ch := 0; ch < 64; ch++ {
		buf[132+ch] = 64 // channel volume
	}

	buf[196] = 0 // single order: pattern 0

	binary.LittleEndian.PutUint32(buf[197:], smpOffset)
	binary.LittleEndian.PutUint32(buf[201:], patOffset)

	buf[smpOffset+13] = itSampFlagHeader // flags: uncompressed 8-bit mono
	buf[smpOffset+14] = 64               // volume
	buf[smpOffset+15] = 64               // global volume
	copy(buf[smpOffset+16:smpOffset+16+26], "itsample")
	buf[smpOffset+42] = itSampConvSigned // cvt: signed PCM
	binary.LittleEndian.PutUint32(buf[smpOffset+44:], 4)              // length
	binary.LittleEndian.PutUint32(buf[smpOffset+56:], 8363)           // c5 speed
	binary.LittleEndian.PutUint32(buf[smpOffset+68:], smpOffset+76)   // data offset, right after the 76-byte header
	copy(buf[smpOffset+76:smpOffset+80], []byte{10, 20, 30, 40})

	binary.LittleEndian.PutUint16(buf[patOffset:], 6) // packed length
	binary.LittleEndian.PutUint16(buf[patOffset+2:], 2) // numRows

	packed := []byte{0x81, 0x07, 60, 1, 32, 0x00}
	copy(buf[patOffset+8:patOffset+8+len(packed)], packed)

	return buf
}

func TestLoadITFileHeader(t *testing.T) {
	song, err := loadITFile(buildITBytes())
	if err != nil {
		t.Fatalf("loadITFile: %v", err)
	}
	if song.Type != SongTypeIT {
		t.Errorf("Type = %v, want SongTypeIT", song.Type)
	}
	if song.Title != "ittest" {
		t.Errorf("Title = %q", song.Title)
	}
	if song.Channels != 2 {
		t.Errorf("Channels = %d, want 2", song.Channels)
	}
	if song.GlobalVolume != 128 {
		t.Errorf("GlobalVolume = %d, want 128", song.GlobalVolume)
	}
	if song.InitialSpeed != 6 || song.InitialTempo != 125 {
		t.Errorf("speed/tempo = %d/%d, want 6/125", song.InitialSpeed, song.InitialTempo)
	}
	if song.InstrumentMode {
		t.Error("InstrumentMode should be false when the flags bit is clear")
	}
}

func TestLoadITFileSample(t *testing.T) {
	song, err := loadITFile(buildITBytes())
	if err != nil {
		t.Fatalf("loadITFile: %v", err)
	}
	if len(song.Samples) != 1 {
		t.Fatalf("Samples len = %d, want 1", len(song.Samples))
	}
	s := song.Samples[0]
	if s.Name != "itsample" {
		t.Errorf("Name = %q", s.Name)
	}
	if s.Length != 4 {
		t.Fatalf("Length = %d, want 4", s.Length)
	}
	want := []int16{int16(10) << 8, int16(20) << 8, int16(30) << 8, int16(40) << 8}
	for i, w := range want {
		if s.Data[i] != w {
			t.Errorf("Data[%d] = %d, want %d", i, s.Data[i], w)
		}
	}
}

func TestLoadITFileInstrumentsSynthesized(t *testing.T) {
	song, err := loadITFile(buildITBytes())
	if err != nil {
		t.Fatalf("loadITFile: %v", err)
	}
	if len(song.Instruments) != 1 {
		t.Fatalf("Instruments len = %d, want 1 (synthesized from the sample table)", len(song.Instruments))
	}
}

func TestLoadITFilePattern(t *testing.T) {
	song, err := loadITFile(buildITBytes())
	if err != nil {
		t.Fatalf("loadITFile: %v", err)
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
	if cell.Volume != 32 {
		t.Errorf("Cell(0,0).Volume = %d, want 32", cell.Volume)
	}
	if blank := pat.Cell(1, 0); blank.Pitch != noNote {
		t.Errorf("Cell(1,0).Pitch = %d, want noNote", blank.Pitch)
	}
}

func TestLoadITFileBadMagic(t *testing.T) {
	buf := buildITBytes()
	copy(buf[0:4], "XXXX")
	if _, err := loadITFile(buf); err == nil {
		t.Fatal("expected an error for a missing IMPM tag")
	}
}

func TestITTranslateVolume(t *testing.T) {
	cases := []struct {
		v        int
		wantCmd  byte
		wantParm byte
	}{
		{32, volCmdVolume, 32},
		{70, volCmdFineVolUp, 5},
		{150, volCmdPanning, 22},
		{999, volCmdNone, 0},
	}
	for _, c := range cases {
		cmd, param := itTranslateVolume(c.v)
		if cmd != c.wantCmd || param != c.wantParm {
			t.Errorf("itTranslateVolume(%d) = (%d,%d), want (%d,%d)", c.v, cmd, param, c.wantCmd, c.wantParm)
		}
	}
}

func TestItMaskByteCount(t *testing.T) {
	if got := itMaskByteCount(itPmaskNote | itPmaskIns | itPmaskVol); got != 3 {
		t.Errorf("itMaskByteCount(note|ins|vol) = %d, want 3", got)
	}
	if got := itMaskByteCount(itPmaskEffect); got != 2 {
		t.Errorf("itMaskByteCount(effect) = %d, want 2", got)
	}
}
