package v1

import (
	"io"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

// fakeTokenStream replays chunks, then terminates with finalErr (io.EOF
// when nil).
type fakeTokenStream struct {
	chunks   []string
	finalErr error
	pos      int
	closed   bool
}

func (f *fakeTokenStream) Recv() (string, error) {
	if f.pos < len(f.chunks) {
		chunk := f.chunks[f.pos]
		f.pos++
		return chunk, nil
	}
	if f.finalErr != nil {
		return "", f.finalErr
	}
	return "", io.EOF
}

func (f *fakeTokenStream) Close() error {
	f.closed = true
	return nil
}

func TestRunStreamTee(t *testing.T) {
	t.Run("clean stream delivers every chunk in order and returns the full reply", func(t *testing.T) {
		stream := &fakeTokenStream{chunks: []string{"Hel", "lo ", "there"}}

		var delivered []string
		reply, err := runStreamTee(stream, func(chunk string) error {
			delivered = append(delivered, chunk)
			return nil
		})

		require.NoError(t, err)
		require.Equal(t, "Hello there", reply)
		require.Equal(t, []string{"Hel", "lo ", "there"}, delivered)
		require.True(t, stream.closed)
	})

	t.Run("sink failure stops reading within one chunk", func(t *testing.T) {
		stream := &fakeTokenStream{chunks: []string{"a", "b", "c", "d"}}

		sinkCalls := 0
		reply, err := runStreamTee(stream, func(string) error {
			sinkCalls++
			if sinkCalls == 2 {
				return errors.New("broken pipe")
			}
			return nil
		})

		require.Error(t, err)
		require.True(t, isClientGone(err))
		// The failing chunk was buffered before the sink saw it.
		require.Equal(t, "ab", reply)
		// No further reads after the sink failed.
		require.Equal(t, 2, stream.pos)
		require.True(t, stream.closed)
	})

	t.Run("upstream error is not a client-gone condition", func(t *testing.T) {
		stream := &fakeTokenStream{
			chunks:   []string{"partial "},
			finalErr: errors.New("connection reset"),
		}

		reply, err := runStreamTee(stream, func(string) error { return nil })

		require.Error(t, err)
		require.False(t, isClientGone(err))
		require.Equal(t, "partial ", reply)
		require.True(t, stream.closed)
	})

	t.Run("empty stream yields empty reply", func(t *testing.T) {
		stream := &fakeTokenStream{}

		reply, err := runStreamTee(stream, func(string) error {
			t.Fatal("sink should not be called")
			return nil
		})

		require.NoError(t, err)
		require.Empty(t, reply)
		require.True(t, stream.closed)
	})
}
