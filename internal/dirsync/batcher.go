package dirsync

// batcher accumulates records and flushes them in groups of at most size.
type batcher[T any] struct {
	size  int
	buf   []T
	write func([]T) error
}

func newBatcher[T any](size int, write func([]T) error) *batcher[T] {
	return &batcher[T]{size: size, buf: make([]T, 0, size), write: write}
}

func (b *batcher[T]) add(v T) error {
	b.buf = append(b.buf, v)
	if len(b.buf) >= b.size {
		return b.flush()
	}
	return nil
}

// flush writes the pending records. The written slice is never reused.
func (b *batcher[T]) flush() error {
	if len(b.buf) == 0 {
		return nil
	}
	batch := b.buf
	b.buf = make([]T, 0, b.size)
	return b.write(batch)
}
