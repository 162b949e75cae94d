package catalog

// Barrier joins a fixed set of named sources. Its callbacks fire once, the
// first time every source has arrived, and never again for this instance.
type Barrier struct {
	arrived   map[string]bool
	fired     bool
	callbacks []func()
}

func NewBarrier(sources ...string) *Barrier {
	arrived := make(map[string]bool, len(sources))
	for _, s := range sources {
		arrived[s] = false
	}
	return &Barrier{arrived: arrived}
}

// Arrive marks source as ready. Unknown sources are ignored.
func (b *Barrier) Arrive(source string) {
	if _, ok := b.arrived[source]; !ok {
		return
	}
	b.arrived[source] = true
	b.fire()
}

func (b *Barrier) Arrived(source string) bool {
	return b.arrived[source]
}

// Complete reports whether every source has arrived at least once.
func (b *Barrier) Complete() bool {
	for _, ok := range b.arrived {
		if !ok {
			return false
		}
	}
	return true
}

// OnComplete registers fn. If the barrier already completed, fn runs now.
func (b *Barrier) OnComplete(fn func()) {
	if b.fired {
		fn()
		return
	}
	b.callbacks = append(b.callbacks, fn)
	b.fire()
}

func (b *Barrier) fire() {
	if b.fired || !b.Complete() {
		return
	}
	b.fired = true
	callbacks := b.callbacks
	b.callbacks = nil
	for _, fn := range callbacks {
		fn()
	}
}
