package live

import "sync"

// Derived is a read-only cell whose value is recomputed from upstream sources.
type Derived[T any] struct {
	cell *Cell[T]

	mu     sync.Mutex
	stops  []func()
	closed bool
}

var _ Source[int] = (*Derived[int])(nil)

func newDerived[T any]() *Derived[T] {
	var zero T
	return &Derived[T]{cell: NewCell(zero)}
}

// Get returns the latest computed value.
func (d *Derived[T]) Get() T {
	return d.cell.Get()
}

// Subscribe registers fn and replays the latest computed value.
func (d *Derived[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	return d.cell.Subscribe(fn)
}

// Close detaches from every upstream source. The last value stays readable.
func (d *Derived[T]) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	for _, stop := range d.stops {
		stop()
	}
	d.stops = nil
}

func (d *Derived[T]) attach(stop func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stops = append(d.stops, stop)
}

func (d *Derived[T]) isClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// Map recomputes fn on every value pushed by src.
func Map[A, R any](src Source[A], fn func(A) R) *Derived[R] {
	d := newDerived[R]()
	d.attach(src.Subscribe(func(v A) {
		if d.isClosed() {
			return
		}
		d.cell.Set(fn(v))
	}))
	return d
}

// Combine recomputes fn whenever either source pushes, using the latest value
// of the other. Nothing is computed until both sources have produced a value;
// with replaying sources that happens before Combine returns.
func Combine[A, B, R any](a Source[A], b Source[B], fn func(A, B) R) *Derived[R] {
	d := newDerived[R]()

	var (
		mu           sync.Mutex
		latestA      A
		latestB      B
		haveA, haveB bool
	)
	recompute := func() {
		if !haveA || !haveB || d.isClosed() {
			return
		}
		d.cell.Set(fn(latestA, latestB))
	}

	d.attach(a.Subscribe(func(v A) {
		mu.Lock()
		defer mu.Unlock()
		latestA, haveA = v, true
		recompute()
	}))
	d.attach(b.Subscribe(func(v B) {
		mu.Lock()
		defer mu.Unlock()
		latestB, haveB = v, true
		recompute()
	}))
	return d
}
