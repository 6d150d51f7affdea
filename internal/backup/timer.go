package backup

// Timer counts down the seconds until a source folder's next copy.
// Remaining always stays within [0, frequency].
type Timer struct {
	frequency int
	remaining int
}

// NewTimer returns a timer that is due after frequency ticks.
func NewTimer(frequency int) *Timer {
	if frequency < 1 {
		frequency = 1
	}
	return &Timer{frequency: frequency, remaining: frequency}
}

// Tick advances the countdown by one second, stopping at zero.
func (t *Timer) Tick() {
	if t.remaining > 0 {
		t.remaining--
	}
}

// Due reports whether the countdown reached zero.
func (t *Timer) Due() bool {
	return t.remaining == 0
}

// Reset restarts the countdown from the configured frequency.
func (t *Timer) Reset() {
	t.remaining = t.frequency
}

func (t *Timer) Remaining() int {
	return t.remaining
}

func (t *Timer) Frequency() int {
	return t.frequency
}
