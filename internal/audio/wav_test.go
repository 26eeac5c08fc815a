package audio

import (
	"bytes"
	"encoding/binary"
	"testing"
	"time"
)

func TestEncodeWAVPCM16LEHeader(t *testing.T) {
	pcm := []byte{1, 0, 2, 0, 3, 0}
	wav, err := EncodeWAVPCM16LE(pcm, 24000)
	if err != nil {
		t.Fatalf("EncodeWAVPCM16LE() error = %v", err)
	}
	if len(wav) != 44+len(pcm) {
		t.Fatalf("len = %d, want %d", len(wav), 44+len(pcm))
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" || string(wav[36:40]) != "data" {
		t.Fatalf("unexpected chunk ids: %q", wav[:40])
	}
	if got := binary.LittleEndian.Uint32(wav[24:28]); got != 24000 {
		t.Fatalf("sample rate = %d, want 24000", got)
	}
	if got := binary.LittleEndian.Uint32(wav[40:44]); got != uint32(len(pcm)) {
		t.Fatalf("data size = %d, want %d", got, len(pcm))
	}
	if !bytes.Equal(wav[44:], pcm) {
		t.Fatalf("payload = %v, want %v", wav[44:], pcm)
	}
}

func TestEncodeWAVDefaultsSampleRate(t *testing.T) {
	wav, err := EncodeWAVPCM16LE(nil, 0)
	if err != nil {
		t.Fatalf("EncodeWAVPCM16LE() error = %v", err)
	}
	if got := binary.LittleEndian.Uint32(wav[24:28]); got != DefaultSampleRate {
		t.Fatalf("sample rate = %d, want %d", got, DefaultSampleRate)
	}
}

func TestPCMDurationRoundTrip(t *testing.T) {
	n := PCMBytes(500*time.Millisecond, 16000)
	if n != 16000 {
		t.Fatalf("PCMBytes() = %d, want 16000", n)
	}
	if d := PCMDuration(n, 16000); d != 500*time.Millisecond {
		t.Fatalf("PCMDuration() = %v, want 500ms", d)
	}
}

func TestPCMSampleRate(t *testing.T) {
	cases := []struct {
		format string
		rate   int
		ok     bool
	}{
		{"pcm_22050", 22050, true},
		{"PCM_44100", 44100, true},
		{"pcm_", DefaultSampleRate, true},
		{"mp3_44100_128", 0, false},
	}
	for _, tc := range cases {
		rate, ok := PCMSampleRate(tc.format)
		if rate != tc.rate || ok != tc.ok {
			t.Fatalf("PCMSampleRate(%q) = %d,%v, want %d,%v", tc.format, rate, ok, tc.rate, tc.ok)
		}
	}
}

func TestContentTypeForFormat(t *testing.T) {
	if got := ContentTypeForFormat("mp3_44100_128"); got != "audio/mpeg" {
		t.Fatalf("mp3 content type = %q", got)
	}
	if got := ContentTypeForFormat("pcm_16000"); got != ContentTypeWAV {
		t.Fatalf("pcm content type = %q", got)
	}
	if got := ContentTypeForFormat("weird"); got != "application/octet-stream" {
		t.Fatalf("fallback content type = %q", got)
	}
}
