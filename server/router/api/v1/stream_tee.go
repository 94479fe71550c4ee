package v1

import (
	"io"
	"strings"

	"github.com/pkg/errors"

	"github.com/personakit/personakit/plugin/llm"
)

// ErrClientGone marks a stream that ended because the client sink failed
// (typically a disconnect). It is an expected condition, not a server
// error, and suppresses persistence of the partial reply.
var ErrClientGone = errors.New("client gone")

// tokenSink delivers one chunk to the live client. A returned error means
// the client can no longer receive data.
type tokenSink func(chunk string) error

func isClientGone(err error) bool {
	return errors.Is(err, ErrClientGone)
}

// runStreamTee is the single reader of a generation stream. For every
// chunk it appends to the in-memory reply buffer first, then offers the
// chunk to the client sink, so the buffer is always a prefix-consistent
// copy of what the client has been offered. The stream is never read from
// more than one goroutine and never read twice.
//
// The accumulated text is returned in all cases; the error reports the
// terminal disposition:
//   - nil: upstream ended cleanly, the reply is complete.
//   - ErrClientGone (wrapped): the sink failed; reading stops within one
//     cycle so generation nobody receives is not paid for.
//   - anything else: the upstream read failed mid-stream.
func runStreamTee(stream llm.TokenStream, sink tokenSink) (string, error) {
	defer stream.Close()

	var reply strings.Builder
	for {
		chunk, err := stream.Recv()
		if err == io.EOF {
			return reply.String(), nil
		}
		if err != nil {
			return reply.String(), errors.Wrap(err, "read generation stream")
		}

		reply.WriteString(chunk)
		if err := sink(chunk); err != nil {
			return reply.String(), errors.Wrap(ErrClientGone, err.Error())
		}
	}
}
