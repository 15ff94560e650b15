package wire

import "testing"

func TestVersionWideBoundary(t *testing.T) {
	t.Parallel()
	tests := []struct {
		v    Version
		want bool
	}{
		{Version{2, 11}, false},
		{Version{2, 12}, true},
		{Version{2, 30}, true},
		{Version{1, 99}, false},
		{Version{3, 0}, true},
		{Version{0, 0}, false},
	}
	for _, tc := range tests {
		if got := tc.v.Wide(); got != tc.want {
			t.Errorf("Version(%s).Wide() = %v, want %v", tc.v, got, tc.want)
		}
		if got := EncodingFor(tc.v).IsWide(); got != tc.want {
			t.Errorf("EncodingFor(%s).IsWide() = %v, want %v", tc.v, got, tc.want)
		}
	}
}

func TestPutSourceNarrow(t *testing.T) {
	t.Parallel()
	b := make([]byte, 4)
	if !Narrow.PutSource(b, 1, 9) {
		t.Fatal("PutSource(9) rejected")
	}
	if b[1] != 9 || b[2] != 0 || b[3] != 0 {
		t.Errorf("payload = % X, want 00 09 00 00", b)
	}
	if Narrow.PutSource(b, 1, 256) {
		t.Error("narrow PutSource(256) should not fit")
	}
}

func TestPutSourceWide(t *testing.T) {
	t.Parallel()
	b := make([]byte, 4)
	if !Wide.PutSource(b, 1, 0x0109) {
		t.Fatal("PutSource rejected")
	}
	if b[1] != 0 || b[2] != 0x01 || b[3] != 0x09 {
		t.Errorf("payload = % X, want 00 00 01 09", b)
	}
}

func TestSourceRead(t *testing.T) {
	t.Parallel()
	var s Scratch
	s.Reset([]byte{0x00, 0x05, 0x00, 0x07})
	s.Fill(ScratchSize)
	if got := Narrow.Source(&s, 1); got != 5 {
		t.Errorf("narrow source = %d, want 5", got)
	}
	if got := Wide.Source(&s, 1); got != 7 {
		t.Errorf("wide source = %d, want 7", got)
	}
}

func TestParseTag(t *testing.T) {
	t.Parallel()
	tag, err := ParseTag("PrgI")
	if err != nil {
		t.Fatal(err)
	}
	if tag.String() != "PrgI" {
		t.Errorf("tag = %q, want PrgI", tag)
	}
	if _, err := ParseTag("Prg"); err == nil {
		t.Error("expected error for short tag")
	}
}
