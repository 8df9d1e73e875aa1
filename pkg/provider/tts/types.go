package tts

// Result is the terminal outcome of one synthesis.
type Result struct {
	// Stopped is true when the synthesis was cut short by Stop rather than
	// running to completion.
	Stopped bool

	// Err is non-nil when synthesis failed. Audio already emitted before the
	// failure may still have been played.
	Err error
}
