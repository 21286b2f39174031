package audio

// Drain reads from ch until the channel is closed, discarding all values.
// Use this to prevent goroutine leaks when a streaming channel must be
// consumed to completion (e.g., the capture channel after a mid-utterance
// stop).
func Drain[T any](ch <-chan T) {
	for range ch {
	}
}
