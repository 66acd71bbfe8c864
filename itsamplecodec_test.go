package moduleplayer

import (
	"errors"
	"testing"
)

func TestITBitstreamReadLSBFirst(t *testing.T) {
	br := newITBitstream([]byte{0xB4, 0x01}) // 1011_0100, 0000_0001

	if v, err := br.read(4); err != nil || v != 0x4 {
		t.Fatalf("read(4) = %d, %v, want 4, nil", v, err)
	}
	if v, err := br.read(4); err != nil || v != 0xB {
		t.Fatalf("read(4) = %d, %v, want 11, nil", v, err)
	}
	if v, err := br.read(8); err != nil || v != 0x01 {
		t.Fatalf("read(8) = %d, %v, want 1, nil", v, err)
	}
}

func TestITBitstreamUnderrun(t *testing.T) {
	br := newITBitstream([]byte{0xFF})
	if _, err := br.read(16); !errors.Is(err, ErrTruncated) {
		t.Fatalf("read past the end of the stream error = %v, want ErrTruncated", err)
	}
}

func TestSignExtend(t *testing.T) {
	cases := []struct {
		v     uint32
		width int
		want  int32
	}{
		{0xF, 4, -1},
		{0x8, 4, -8},
		{0x7, 4, 7},
		{0x1FF, 9, -1},
		{0x100, 9, -256},
	}
	for _, c := range cases {
		if got := signExtend(c.v, c.width); got != c.want {
			t.Errorf("signExtend(%#x, %d) = %d, want %d", c.v, c.width, got, c.want)
		}
	}
}

func TestApplyWidthDelta(t *testing.T) {
	params := itCodecParams8()
	cases := []struct {
		width, fetch, want int
	}{
		{9, 0, 1},
		{9, 3, 4},
		{9, 7, 9}, // fetch=7 -> newWidth 8 >= defWidth(8) bumps to 9, clamped
	}
	for _, c := range cases {
		if got := applyWidthDelta(c.width, c.fetch, params); got != c.want {
			t.Errorf("applyWidthDelta(%d, %d) = %d, want %d", c.width, c.fetch, got, c.want)
		}
	}
}

func TestItCodecParams(t *testing.T) {
	p8 := itCodecParams8()
	if p8.defWidth != 8 || p8.fetchBits != 3 || p8.mask != 0xFF {
		t.Errorf("itCodecParams8() = %+v", p8)
	}
	p16 := itCodecParams16()
	if p16.defWidth != 16 || p16.fetchBits != 4 || p16.mask != 0xFFFF {
		t.Errorf("itCodecParams16() = %+v", p16)
	}
}
