package audio

// MaxSampleMagnitude is the divisor used to normalize int16 samples into [-1.0, 1.0).
const MaxSampleMagnitude = 32768.0

// Ring holds raw int16 samples for one sliding analysis window of frameSize
// samples plus the not yet consumed tail. The backing store starts at
// 2*frameSize-1 and grows when a single pull delivers a burst. A float view of
// the current window is kept alongside so the transform never allocates.
type Ring struct {
	frameSize int
	buf       []int16
	window    []float64
	overruns  uint64
}

// NewRing creates a ring for the given frame size.
func NewRing(frameSize int) (*Ring, error) {
	if frameSize < 2 {
		return nil, ErrInvalidFrameSize
	}
	return &Ring{
		frameSize: frameSize,
		buf:       make([]int16, 0, 2*frameSize-1),
		window:    make([]float64, frameSize),
	}, nil
}

// FrameSize returns the analysis window length.
func (r *Ring) FrameSize() int {
	return r.frameSize
}

// Len returns the number of buffered samples.
func (r *Ring) Len() int {
	return len(r.buf)
}

// Index returns the write cursor. Samples are stored contiguously from zero,
// so the cursor equals Len; after Compact it is always below frameSize.
func (r *Ring) Index() int {
	return len(r.buf)
}

// Overruns returns how many times a backlog of two or more frames was discarded.
func (r *Ring) Overruns() uint64 {
	return r.overruns
}

// Compact prepares the ring for the next frame. A backlog of 2*frameSize or
// more is dropped entirely; otherwise a full frame is shifted out of the
// front. Returns true when the backlog was dropped.
//
// It runs at the start of a pull, so a burst drained by one pull is counted
// as an overrun by the next one. The kept tail only advances the write
// cursor: windows are always the newest frameSize samples, which the next
// pull refills completely, so no kept sample reappears in a later window.
func (r *Ring) Compact() bool {
	n := len(r.buf)
	switch {
	case n >= 2*r.frameSize:
		r.overruns++
		r.buf = r.buf[:0]
		return true
	case n >= r.frameSize:
		kept := copy(r.buf, r.buf[r.frameSize:])
		r.buf = r.buf[:kept]
	}
	return false
}

// Write appends samples at the write cursor, growing the backing store if needed.
func (r *Ring) Write(samples []int16) {
	r.buf = append(r.buf, samples...)
}

// Ready reports whether a full window is buffered.
func (r *Ring) Ready() bool {
	return len(r.buf) >= r.frameSize
}

// Samples returns the most recent frameSize raw samples, oldest first.
// The slice aliases the ring and is only valid until the next Compact/Write.
// Returns nil when fewer than frameSize samples are buffered.
func (r *Ring) Samples() []int16 {
	if !r.Ready() {
		return nil
	}
	return r.buf[len(r.buf)-r.frameSize:]
}

// Window normalizes the most recent frameSize samples into the float view and
// returns it. The slice is reused between calls.
func (r *Ring) Window() []float64 {
	raw := r.Samples()
	if raw == nil {
		return nil
	}
	for i, s := range raw {
		r.window[i] = float64(s) / MaxSampleMagnitude
	}
	return r.window
}

// Reset discards all buffered samples without counting an overrun.
func (r *Ring) Reset() {
	r.buf = r.buf[:0]
}
