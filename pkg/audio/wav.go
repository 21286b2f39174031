package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ErrEmptyUtterance is returned by [EncodeWAV] when the utterance contains
// no samples. Callers guard against this before encoding; hitting it means
// the "never transmit an empty utterance" invariant was about to be broken.
var ErrEmptyUtterance = errors.New("utterance contains no samples")

// wavHeaderSize is the fixed byte length of the RIFF/WAVE/fmt/data header
// emitted by [EncodeWAV].
const wavHeaderSize = 44

// wavHeader mirrors the canonical 44-byte PCM WAV header, field for field,
// in wire order. binary.Write with little-endian byte order lays it out
// exactly as decoders expect.
type wavHeader struct {
	ChunkID       [4]byte // "RIFF"
	ChunkSize     uint32  // file size minus 8
	Format        [4]byte // "WAVE"
	Subchunk1ID   [4]byte // "fmt "
	Subchunk1Size uint32  // 16 for PCM
	AudioFormat   uint16  // 1 = integer PCM
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32 // SampleRate * NumChannels * 2
	BlockAlign    uint16 // NumChannels * 2
	BitsPerSample uint16 // 16
	Subchunk2ID   [4]byte // "data"
	Subchunk2Size uint32  // payload bytes
}

// EncodeWAV serializes an utterance into a self-describing mono 16-bit PCM
// WAV container. The output is deterministic: identical input always yields
// byte-identical output.
//
// Each sample is clamped to [-1, 1] and quantized with a separate scale per
// sign (32767 for non-negative, 32768 for negative) so the clamp stays
// symmetric without overflowing at either extreme.
func EncodeWAV(u Utterance, sampleRate int) ([]byte, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("encode wav: sample rate must be positive, got %d", sampleRate)
	}
	total := u.SampleCount()
	if total == 0 {
		return nil, fmt.Errorf("encode wav: %w", ErrEmptyUtterance)
	}

	dataBytes := uint32(total * 2)
	header := wavHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     36 + dataBytes,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1,
		NumChannels:   1,
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate) * 2,
		BlockAlign:    2,
		BitsPerSample: 16,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataBytes,
	}

	buf := bytes.NewBuffer(make([]byte, 0, wavHeaderSize+total*2))
	if err := binary.Write(buf, binary.LittleEndian, header); err != nil {
		return nil, fmt.Errorf("encode wav: write header: %w", err)
	}

	var sample [2]byte
	for _, frame := range u {
		for _, s := range frame.Samples {
			binary.LittleEndian.PutUint16(sample[:], uint16(quantizeSample(s)))
			buf.Write(sample[:])
		}
	}
	return buf.Bytes(), nil
}

// DecodeWAV parses a mono 16-bit PCM WAV container back into normalized
// samples. It validates the magic chunks, the PCM format code, the bit
// depth, and the channel count, and tolerates trailing bytes beyond the
// declared data length.
func DecodeWAV(data []byte) (samples []float32, sampleRate int, err error) {
	if len(data) < wavHeaderSize {
		return nil, 0, fmt.Errorf("decode wav: need at least %d bytes, got %d", wavHeaderSize, len(data))
	}

	var header wavHeader
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, &header); err != nil {
		return nil, 0, fmt.Errorf("decode wav: read header: %w", err)
	}

	switch {
	case string(header.ChunkID[:]) != "RIFF":
		return nil, 0, errors.New("decode wav: missing RIFF chunk")
	case string(header.Format[:]) != "WAVE":
		return nil, 0, errors.New("decode wav: missing WAVE marker")
	case string(header.Subchunk1ID[:]) != "fmt ":
		return nil, 0, errors.New("decode wav: missing fmt chunk")
	case string(header.Subchunk2ID[:]) != "data":
		return nil, 0, errors.New("decode wav: missing data chunk")
	case header.AudioFormat != 1:
		return nil, 0, fmt.Errorf("decode wav: unsupported audio format %d, want PCM", header.AudioFormat)
	case header.BitsPerSample != 16:
		return nil, 0, fmt.Errorf("decode wav: unsupported bit depth %d, want 16", header.BitsPerSample)
	case header.NumChannels != 1:
		return nil, 0, fmt.Errorf("decode wav: unsupported channel count %d, want mono", header.NumChannels)
	}

	payload := data[wavHeaderSize:]
	if int(header.Subchunk2Size) < len(payload) {
		payload = payload[:header.Subchunk2Size]
	}

	samples = make([]float32, len(payload)/2)
	for i := range samples {
		v := int16(binary.LittleEndian.Uint16(payload[i*2:]))
		samples[i] = dequantizeSample(v)
	}
	return samples, int(header.SampleRate), nil
}

// quantizeSample clamps s to [-1, 1] and maps it onto the signed 16-bit
// range, scaling by 32767 for non-negative values and 32768 for negative
// ones.
func quantizeSample(s float32) int16 {
	if s > 1 {
		s = 1
	} else if s < -1 {
		s = -1
	}
	if s >= 0 {
		return int16(math.Round(float64(s) * 32767))
	}
	return int16(math.Round(float64(s) * 32768))
}

// dequantizeSample inverts [quantizeSample]'s per-sign scaling.
func dequantizeSample(v int16) float32 {
	if v >= 0 {
		return float32(v) / 32767
	}
	return float32(v) / 32768
}
