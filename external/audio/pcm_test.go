package audio

import (
	"bytes"
	"testing"
)

func TestEncodePCM_LittleEndian(t *testing.T) {
	got := encodePCM([]int16{1, -1, 256})
	want := []byte{0x01, 0x00, 0xff, 0xff, 0x00, 0x01}
	if !bytes.Equal(got, want) {
		t.Fatalf("unexpected pcm bytes: %v", got)
	}
}

func TestEncodePCM_Empty(t *testing.T) {
	if got := encodePCM(nil); len(got) != 0 {
		t.Fatalf("expected empty output, got %v", got)
	}
}
