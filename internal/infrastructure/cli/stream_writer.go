package cli

import (
	"fmt"
	"io"

	"github.com/MustafaMerchant21/Nova/internal/domain"
)

// streamWriter prints automation events as they arrive.
type streamWriter struct {
	out    io.Writer
	errOut io.Writer
}

// newStreamWriter builds a streamWriter; stderr chunks go to errOut.
func newStreamWriter(out, errOut io.Writer) *streamWriter {
	if errOut == nil {
		errOut = out
	}
	return &streamWriter{out: out, errOut: errOut}
}

// Consume drains events until the channel is closed.
func (s *streamWriter) Consume(events <-chan domain.ExecutionEvent) {
	for ev := range events {
		switch ev.Kind {
		case domain.EventStepStarted:
			fmt.Fprintf(s.out, "==> [%d/%d]\n", ev.Step+1, ev.Total)
		case domain.EventOutput:
			if ev.Output == nil {
				continue
			}
			if ev.Output.Stream == domain.StreamStderr {
				s.WriteChunk(s.errOut, ev.Output.Chunk)
			} else {
				s.WriteChunk(s.out, ev.Output.Chunk)
			}
		case domain.EventStepResult:
			if ev.Result != nil {
				fmt.Fprintf(s.out, "<== [%d/%d] %s\n", ev.Step+1, ev.Total, resultLine(*ev.Result))
			}
		}
	}
}

func (s *streamWriter) WriteChunk(w io.Writer, text string) {
	if text == "" {
		return
	}
	fmt.Fprint(w, text)
}
