// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package monitor

import (
	"context"
	"encoding/xml"
	"io"

	"go.chromium.org/vogar/errors"
)

// Handler receives events parsed from a monitor stream.
type Handler interface {
	// OutcomeStarted is called when an outcome opens. o.Output and o.Result
	// are still empty.
	OutcomeStarted(o *Outcome)
	// Output is called for each text fragment of the open outcome, after it
	// has been appended to o.Output.
	Output(o *Outcome, text string)
	// OutcomeFinished is called when an outcome closes with its result.
	OutcomeFinished(o *Outcome)
}

// Read parses a monitor stream from r, reporting events to h as they arrive.
// It returns nil once the document is complete, and an error matching
// ErrAborted if the stream ends early or is malformed.
func Read(r io.Reader, h Handler) error {
	dec := xml.NewDecoder(r)
	var (
		inRoot  bool
		current *Outcome
	)
	for {
		tok, err := dec.Token()
		if err != nil {
			if err == io.EOF {
				return errors.Wrap(ErrAborted, "stream ended before the document was complete")
			}
			return errors.Wrap(ErrAborted, err.Error())
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch {
			case !inRoot && t.Name.Local == rootElem:
				inRoot = true
			case inRoot && current == nil && t.Name.Local == outcomeElem:
				current = &Outcome{
					Name:   attr(t, nameAttr),
					Action: attr(t, actionAttr),
					Runner: attr(t, runnerAttr),
				}
				h.OutcomeStarted(current)
			case current != nil && t.Name.Local == resultElem:
				current.Result = Result(attr(t, valueAttr))
			default:
				return errors.Wrapf(ErrAborted, "unexpected element <%s>", t.Name.Local)
			}
		case xml.EndElement:
			switch t.Name.Local {
			case rootElem:
				return nil
			case outcomeElem:
				if current.Result == "" {
					return errors.Wrapf(ErrAborted, "outcome %q closed without a result", current.Name)
				}
				h.OutcomeFinished(current)
				current = nil
			}
		case xml.CharData:
			if current == nil || current.Result != "" {
				continue
			}
			text := string(t)
			current.Output = append(current.Output, text)
			h.Output(current, text)
		}
	}
}

// Watch is like Read but also closes rc when ctx is done, in which case it
// returns ctx.Err().
func Watch(ctx context.Context, rc io.ReadCloser, h Handler) error {
	stop := context.AfterFunc(ctx, func() { rc.Close() })
	defer stop()
	err := Read(rc, h)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// Collector is a Handler that keeps every finished outcome.
type Collector struct {
	Outcomes []*Outcome
}

// OutcomeStarted implements Handler.
func (c *Collector) OutcomeStarted(o *Outcome) {}

// Output implements Handler.
func (c *Collector) Output(o *Outcome, text string) {}

// OutcomeFinished implements Handler.
func (c *Collector) OutcomeFinished(o *Outcome) {
	c.Outcomes = append(c.Outcomes, o)
}

func attr(e xml.StartElement, name string) string {
	for _, a := range e.Attr {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}
