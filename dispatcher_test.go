package moduleplayer

import "testing"

func TestTestFromDataSignatures(t *testing.T) {
	mod := buildMODBytes()
	s3m := buildS3MBytes()
	xm := buildXMBytes()
	it := buildITBytes()

	cases := []struct {
		name string
		buf  []byte
		want Format
	}{
		{"MOD", mod, FormatXMMOD},
		{"S3M", s3m, FormatITS3M},
		{"XM", xm, FormatXMMOD},
		{"IT", it, FormatITS3M},
		{"garbage", []byte("not a tracker file at all"), FormatUnknown},
		{"empty", nil, FormatUnknown},
	}
	for _, c := range cases {
		if got := TestFromData(c.buf); got != c.want {
			t.Errorf("%s: TestFromData = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestContextLoadRoundTrip(t *testing.T) {
	ctx := NewContext()
	if err := ctx.Load(buildITBytes()); err != nil {
		t.Fatalf("Load(IT): %v", err)
	}
	if ctx.Song() == nil {
		t.Fatal("Song() is nil after a successful Load")
	}
	if ctx.Song().Type != SongTypeIT {
		t.Errorf("Song().Type = %v, want SongTypeIT", ctx.Song().Type)
	}
}

func TestContextLoadBadData(t *testing.T) {
	ctx := NewContext()
	if err := ctx.Load([]byte("garbage")); err == nil {
		t.Fatal("expected an error loading unrecognized data")
	}
	if ctx.Song() != nil {
		t.Fatal("a failed Load must not install a song")
	}
}

func TestContextLoadPreservesPreviousSongOnFailure(t *testing.T) {
	ctx := NewContext()
	if err := ctx.Load(buildMODBytes()); err != nil {
		t.Fatalf("Load(MOD): %v", err)
	}
	first := ctx.Song()

	if err := ctx.Load([]byte("garbage")); err == nil {
		t.Fatal("expected an error loading unrecognized data")
	}
	if ctx.Song() != first {
		t.Fatal("a failed Load must leave the previously loaded song in place")
	}
}

func TestLoadFromDataBool(t *testing.T) {
	ctx := NewContext()
	if !ctx.LoadFromData(buildXMBytes()) {
		t.Fatal("LoadFromData(XM) should report true")
	}
	if ctx.LoadFromData([]byte("garbage")) {
		t.Fatal("LoadFromData(garbage) should report false")
	}
}

func TestPlaySongLifecycle(t *testing.T) {
	ctx := NewContext()
	if err := ctx.PlaySong(44100); err == nil {
		t.Fatal("PlaySong before any Load should fail")
	}

	if err := ctx.Load(buildITBytes()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := ctx.PlaySong(44100); err != nil {
		t.Fatalf("PlaySong: %v", err)
	}
	if !ctx.IsPlaying() {
		t.Fatal("IsPlaying should be true right after PlaySong")
	}

	ctx.Stop()
	if ctx.IsPlaying() {
		t.Fatal("IsPlaying should be false after Stop")
	}

	ctx.FreeSong()
	if ctx.Song() != nil {
		t.Fatal("Song() should be nil after FreeSong")
	}
}

func TestSeekToOrderClamps(t *testing.T) {
	ctx := NewContext()
	if err := ctx.Load(buildITBytes()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := ctx.PlaySong(44100); err != nil {
		t.Fatalf("PlaySong: %v", err)
	}

	ctx.SeekToOrder(0)
	if st := ctx.State(); st.Order != 0 {
		t.Errorf("State().Order = %d, want 0", st.Order)
	}

	ctx.SeekToOrder(99) // only one order in the synthetic IT fixture
	if st := ctx.State(); st.Order != 0 {
		t.Errorf("State().Order = %d, want clamped to 0", st.Order)
	}

	ctx.SeekToOrder(-5)
	if st := ctx.State(); st.Order != 0 {
		t.Errorf("State().Order = %d, want clamped to 0", st.Order)
	}
}

func TestChannelMuteToggle(t *testing.T) {
	ctx := NewContext()
	if err := ctx.Load(buildITBytes()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := ctx.PlaySong(44100); err != nil {
		t.Fatalf("PlaySong: %v", err)
	}

	if ctx.ChannelMuted(0) {
		t.Fatal("channel 0 should start unmuted")
	}
	ctx.SetChannelMuted(0, true)
	if !ctx.ChannelMuted(0) {
		t.Fatal("SetChannelMuted(0, true) should mute channel 0")
	}
	ctx.SetChannelMuted(0, false)
	if ctx.ChannelMuted(0) {
		t.Fatal("SetChannelMuted(0, false) should unmute channel 0")
	}

	// Out-of-range channel indices are no-ops, not panics.
	ctx.SetChannelMuted(-1, true)
	ctx.SetChannelMuted(999, true)
	if ctx.ChannelMuted(-1) || ctx.ChannelMuted(999) {
		t.Fatal("out-of-range ChannelMuted should report false")
	}
}
