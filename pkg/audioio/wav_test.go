package audioio

import (
	"encoding/binary"
	"testing"
)

func TestEncodeWAV(t *testing.T) {
	samples := []int16{1, 2, 3, 4}
	wav := EncodeWAV(samples, 16000, 1)

	if len(wav) != 44+len(samples)*2 {
		t.Fatalf("wav length = %d, want %d", len(wav), 44+len(samples)*2)
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		t.Error("missing RIFF/WAVE markers")
	}
	if rate := binary.LittleEndian.Uint32(wav[24:28]); rate != 16000 {
		t.Errorf("sample rate = %d, want 16000", rate)
	}
	if dataLen := binary.LittleEndian.Uint32(wav[40:44]); dataLen != uint32(len(samples)*2) {
		t.Errorf("data length = %d, want %d", dataLen, len(samples)*2)
	}
	// First sample survives encoding.
	if s := int16(binary.LittleEndian.Uint16(wav[44:46])); s != 1 {
		t.Errorf("first sample = %d, want 1", s)
	}
}
