// Package wavutil handles the canonical WAV shape used across the audio
// pipeline: 44-byte RIFF header, 16-bit mono PCM. Duration math in the cache
// and the knowledge-bowl manager assumes exactly this layout; audio in any
// other encoding will produce wrong estimates.
package wavutil

import (
	"encoding/binary"
	"fmt"
	"os"
)

const (
	HeaderSize     = 44
	BytesPerSample = 2 // 16-bit
	NumChannels    = 1 // mono
)

// EstimateDuration returns the playback length in seconds of a WAV byte slice,
// assuming the standard 44-byte header and 16-bit mono PCM at sampleRate.
func EstimateDuration(sizeBytes int, sampleRate int) float64 {
	if sampleRate <= 0 {
		return 0
	}
	dataBytes := sizeBytes - HeaderSize
	if dataBytes <= 0 {
		return 0
	}
	return float64(dataBytes) / float64(sampleRate*BytesPerSample*NumChannels)
}

// EstimateFileDuration stats the file and estimates its duration.
func EstimateFileDuration(path string, sampleRate int) (float64, int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, 0, fmt.Errorf("stat wav file: %w", err)
	}
	return EstimateDuration(int(info.Size()), sampleRate), info.Size(), nil
}

// WrapPCM prepends a RIFF header to raw 16-bit mono PCM samples.
func WrapPCM(pcm []byte, sampleRate int) []byte {
	wav := make([]byte, HeaderSize+len(pcm))

	byteRate := sampleRate * NumChannels * BytesPerSample

	copy(wav[0:4], "RIFF")
	binary.LittleEndian.PutUint32(wav[4:8], uint32(HeaderSize+len(pcm)-8))
	copy(wav[8:12], "WAVE")
	copy(wav[12:16], "fmt ")
	binary.LittleEndian.PutUint32(wav[16:20], 16) // PCM chunk size
	binary.LittleEndian.PutUint16(wav[20:22], 1)  // PCM format
	binary.LittleEndian.PutUint16(wav[22:24], NumChannels)
	binary.LittleEndian.PutUint32(wav[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(wav[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(wav[32:34], NumChannels*BytesPerSample) // block align
	binary.LittleEndian.PutUint16(wav[34:36], 16)                         // bits per sample
	copy(wav[36:40], "data")
	binary.LittleEndian.PutUint32(wav[40:44], uint32(len(pcm)))

	copy(wav[HeaderSize:], pcm)
	return wav
}
