package journal

import "context"

// Iterator walks the records of a journal until its tail, stepping over reset
// boundaries.
type Iterator[T any] struct {
	reader *Reader
	dec    Decoder[T]
	value  T
	err    error
	done   bool
	resets int
	// OnReset, when set, is called every time a reset boundary is crossed.
	// Callers drop any state derived from records of the abandoned segment.
	OnReset func(at Checkpoint)
}

func NewIterator[T any](r *Reader, dec Decoder[T]) *Iterator[T] {
	return &Iterator[T]{reader: r, dec: dec}
}

// Next advances to the next record. It returns false at the tail or on error.
func (it *Iterator[T]) Next(ctx context.Context) bool {
	if it.err != nil || it.done {
		return false
	}
	for {
		res, err := Deserialize(ctx, it.reader, it.dec)
		if err != nil {
			it.err = err
			return false
		}
		switch res.Kind {
		case KindRecord:
			it.value = res.Value
			return true
		case KindReset:
			it.resets++
			if it.OnReset != nil {
				it.OnReset(it.reader.Checkpoint())
			}
		default:
			it.done = true
			return false
		}
	}
}

func (it *Iterator[T]) Value() T {
	return it.value
}

func (it *Iterator[T]) Err() error {
	return it.err
}

// Resets returns how many reset boundaries were crossed so far.
func (it *Iterator[T]) Resets() int {
	return it.resets
}

// Checkpoint returns the position right after the current record.
func (it *Iterator[T]) Checkpoint() Checkpoint {
	return it.reader.Checkpoint()
}
