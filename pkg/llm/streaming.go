package llm

import (
	"context"
	"iter"
	"strings"
)

// Collect drains a fragment stream, calling onFragment for every non-empty
// fragment in order, and returns the concatenated text.
func Collect(ctx context.Context, stream iter.Seq2[string, error], onFragment func(string) error) (string, error) {
	var b strings.Builder
	for frag, err := range stream {
		if err != nil {
			return b.String(), err
		}
		if ctx.Err() != nil {
			return b.String(), ctx.Err()
		}
		if frag == "" {
			continue
		}
		b.WriteString(frag)
		if onFragment != nil {
			if err := onFragment(frag); err != nil {
				return b.String(), err
			}
		}
	}
	return b.String(), nil
}

// Fragments returns a stream yielding the given fragments and then err, if any.
func Fragments(err error, fragments ...string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for _, f := range fragments {
			if !yield(f, nil) {
				return
			}
		}
		if err != nil {
			yield("", err)
		}
	}
}
