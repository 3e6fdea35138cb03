package audioio

import (
	"fmt"

	"gopkg.in/hraban/opus.v2"
)

// opusFrameMs is the Opus frame size used for utterance encoding.
// 20ms is the codec's sweet spot for voice.
const opusFrameMs = 20

// EncodeOpus compresses PCM16 samples into a sequence of length-prefixed
// Opus frames. Use this when uploading utterances over constrained links;
// WAV is the default.
//
// Each frame is emitted as a 2-byte big-endian length followed by the frame
// payload, so the stream can be re-split without a container.
func EncodeOpus(samples []int16, sampleRate, channels int) ([]byte, error) {
	enc, err := opus.NewEncoder(sampleRate, channels, opus.AppVoIP)
	if err != nil {
		return nil, fmt.Errorf("audioio: create opus encoder: %w", err)
	}

	frameLen := sampleRate * channels * opusFrameMs / 1000
	out := make([]byte, 0, len(samples)/4)
	packet := make([]byte, 4000)

	for off := 0; off < len(samples); off += frameLen {
		end := off + frameLen
		frame := make([]int16, frameLen)
		if end > len(samples) {
			// Pad the trailing partial frame with silence.
			copy(frame, samples[off:])
		} else {
			copy(frame, samples[off:end])
		}

		n, err := enc.Encode(frame, packet)
		if err != nil {
			return nil, fmt.Errorf("audioio: opus encode: %w", err)
		}
		out = append(out, byte(n>>8), byte(n))
		out = append(out, packet[:n]...)
	}

	return out, nil
}
