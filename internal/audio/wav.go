package audio

import (
	"bytes"
	"encoding/binary"
	"io"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultSampleRate = 16000
	bytesPerSample    = 2
	ContentTypeWAV    = "audio/wav"
)

// wavHeader is the canonical 44-byte RIFF header for mono PCM16LE.
type wavHeader struct {
	RIFF          [4]byte
	ChunkSize     uint32
	WAVE          [4]byte
	Fmt           [4]byte
	FmtSize       uint32
	AudioFormat   uint16
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	Data          [4]byte
	DataSize      uint32
}

// EncodeWAVPCM16LE wraps raw PCM16LE mono audio bytes in a WAV container.
func EncodeWAVPCM16LE(pcm []byte, sampleRate int) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(44 + len(pcm))
	if err := WriteWAVPCM16LETo(&buf, pcm, sampleRate); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteWAVPCM16LETo writes raw PCM16LE mono audio bytes to out as one
// self-contained WAV stream.
func WriteWAVPCM16LETo(out io.Writer, pcm []byte, sampleRate int) error {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	dataSize := uint32(len(pcm))
	h := wavHeader{
		RIFF:          [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     36 + dataSize,
		WAVE:          [4]byte{'W', 'A', 'V', 'E'},
		Fmt:           [4]byte{'f', 'm', 't', ' '},
		FmtSize:       16,
		AudioFormat:   1,
		NumChannels:   1,
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate * bytesPerSample),
		BlockAlign:    bytesPerSample,
		BitsPerSample: 8 * bytesPerSample,
		Data:          [4]byte{'d', 'a', 't', 'a'},
		DataSize:      dataSize,
	}
	if err := binary.Write(out, binary.LittleEndian, h); err != nil {
		return err
	}
	_, err := out.Write(pcm)
	return err
}

// PCMDuration returns the play time of n bytes of mono PCM16 at sampleRate.
func PCMDuration(n, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	samples := n / bytesPerSample
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}

// PCMBytes returns the byte length of d of mono PCM16 at sampleRate.
func PCMBytes(d time.Duration, sampleRate int) int {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	return int(d*time.Duration(sampleRate)/time.Second) * bytesPerSample
}

// PCMSampleRate extracts the sample rate from an output format name such as
// "pcm_22050". ok is false when the format is not raw PCM.
func PCMSampleRate(format string) (int, bool) {
	f := strings.ToLower(strings.TrimSpace(format))
	idx := strings.Index(f, "pcm_")
	if idx < 0 {
		return 0, false
	}
	rest := f[idx+len("pcm_"):]
	n := 0
	for n < len(rest) && rest[n] >= '0' && rest[n] <= '9' {
		n++
	}
	sr, err := strconv.Atoi(rest[:n])
	if err != nil || sr <= 0 {
		return DefaultSampleRate, true
	}
	return sr, true
}

// ContentTypeForFormat maps a provider output format to a MIME type.
func ContentTypeForFormat(format string) string {
	f := strings.ToLower(strings.TrimSpace(format))
	switch {
	case strings.Contains(f, "wav"), strings.HasPrefix(f, "pcm_"):
		return ContentTypeWAV
	case strings.Contains(f, "mp3"):
		return "audio/mpeg"
	case strings.Contains(f, "ogg"), strings.Contains(f, "opus"):
		return "audio/ogg"
	case strings.Contains(f, "ulaw"):
		return "audio/basic"
	default:
		return "application/octet-stream"
	}
}
