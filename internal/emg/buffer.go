package emg

// SampleRing is a bounded, append-only ring of raw amplitude samples.
// The newest capacity samples are retained; older ones are evicted in
// arrival order. It is owned by a single SideEngine and accessed from the
// processing loop only; ingestion hands batches over through a channel, so
// no locking is needed here.
type SampleRing struct {
	buf  []int16
	head int // next write position
	size int
}

// NewSampleRing returns a ring holding at most capacity samples.
func NewSampleRing(capacity int) *SampleRing {
	if capacity <= 0 {
		capacity = 1
	}
	return &SampleRing{buf: make([]int16, capacity)}
}

// Append adds a batch of samples, evicting the oldest on overflow.
func (r *SampleRing) Append(batch []int16) {
	for _, s := range batch {
		r.buf[r.head] = s
		r.head = (r.head + 1) % len(r.buf)
		if r.size < len(r.buf) {
			r.size++
		}
	}
}

// Len returns the number of buffered samples.
func (r *SampleRing) Len() int { return r.size }

// Latest copies the most recent n samples, oldest first. It returns false
// when fewer than n samples are buffered.
func (r *SampleRing) Latest(n int) ([]int16, bool) {
	if n <= 0 || n > r.size {
		return nil, false
	}
	out := make([]int16, n)
	start := (r.head - n + len(r.buf)) % len(r.buf)
	for i := 0; i < n; i++ {
		out[i] = r.buf[(start+i)%len(r.buf)]
	}
	return out, true
}
