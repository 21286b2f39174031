package audio

// CaptureBuffer accumulates the frames of the utterance in progress.
// The zero value is ready to use.
//
// CaptureBuffer is NOT safe for concurrent use: the session coordinator
// serializes every Append and Flush onto its single event loop, so the
// buffer deliberately carries no lock.
type CaptureBuffer struct {
	frames  Utterance
	samples int
}

// Append adds frame to the ordered sequence for the active utterance.
func (b *CaptureBuffer) Append(frame AudioFrame) {
	b.frames = append(b.frames, frame)
	b.samples += len(frame.Samples)
}

// Flush atomically returns the accumulated utterance and clears the buffer.
// Flushing an empty buffer yields a zero-length utterance, which callers
// must treat as "nothing to send".
func (b *CaptureBuffer) Flush() Utterance {
	u := b.frames
	b.frames = nil
	b.samples = 0
	return u
}

// Len returns the number of buffered frames.
func (b *CaptureBuffer) Len() int { return len(b.frames) }

// SampleCount returns the total number of buffered samples.
func (b *CaptureBuffer) SampleCount() int { return b.samples }

// IsEmpty reports whether no frames are buffered.
func (b *CaptureBuffer) IsEmpty() bool { return len(b.frames) == 0 }
