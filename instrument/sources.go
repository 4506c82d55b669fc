package instrument

import (
	"io"
	"iter"
)

// Iterator is the Next/Current/Err/Close stream shape used by the OpenAI
// and Anthropic SDKs.
type Iterator[T any] interface {
	Next() bool
	Current() T
	Err() error
	Close() error
}

// FromIterator adapts an Iterator to a Source.
func FromIterator[T any](it Iterator[T]) Source[T] {
	return &iteratorSource[T]{it: it}
}

type iteratorSource[T any] struct {
	it Iterator[T]
}

func (s *iteratorSource[T]) Recv() (T, error) {
	if s.it.Next() {
		return s.it.Current(), nil
	}
	var zero T
	if err := s.it.Err(); err != nil {
		return zero, err
	}
	return zero, io.EOF
}

func (s *iteratorSource[T]) Close() error {
	return s.it.Close()
}

// FromSeq2 adapts a push iterator, as returned by the genai SDK, to a
// Source. Close stops the underlying iterator.
func FromSeq2[T any](seq iter.Seq2[T, error]) Source[T] {
	next, stop := iter.Pull2(seq)
	return &seqSource[T]{next: next, stop: stop}
}

type seqSource[T any] struct {
	next func() (T, error, bool)
	stop func()
	err  error
}

func (s *seqSource[T]) Recv() (T, error) {
	var zero T
	if s.err != nil {
		return zero, s.err
	}
	value, err, ok := s.next()
	if !ok {
		s.err = io.EOF
		return zero, io.EOF
	}
	if err != nil {
		// A push iterator ends after yielding an error.
		s.err = io.EOF
		s.stop()
		return value, err
	}
	return value, nil
}

func (s *seqSource[T]) Close() error {
	s.stop()
	return nil
}

// FromSlice returns a Source that yields items in order.
func FromSlice[T any](items []T) Source[T] {
	return &sliceSource[T]{items: items}
}

type sliceSource[T any] struct {
	items []T
	pos   int
}

func (s *sliceSource[T]) Recv() (T, error) {
	if s.pos >= len(s.items) {
		var zero T
		return zero, io.EOF
	}
	item := s.items[s.pos]
	s.pos++
	return item, nil
}

func (s *sliceSource[T]) Close() error {
	s.pos = len(s.items)
	return nil
}
