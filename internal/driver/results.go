// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package driver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.chromium.org/vogar/errors"
	"go.chromium.org/vogar/internal/logging"
	"go.chromium.org/vogar/internal/mode"
	"go.chromium.org/vogar/internal/monitor"
)

const (
	// These paths are relative to the results directory.
	resultsFilename         = "results.json"           // file containing JSON array of Result objects
	streamedResultsFilename = "streamed_results.jsonl" // file containing stream of newline-separated JSON Result objects
)

// Result contains the outcomes of a single action.
// Fields are exported so they can be marshaled by the json package.
type Result struct {
	// Action is the name of the action.
	Action string `json:"action"`
	// Outcomes contains the outcomes reported for the action. An action that
	// could not report through a monitor has a single outcome named after
	// the action.
	Outcomes []*monitor.Outcome `json:"outcomes"`
	// Start is the time at which the action started.
	Start time.Time `json:"start"`
	// End is the time at which the action completed.
	End time.Time `json:"end"`
}

func (r *Result) add(o *monitor.Outcome) {
	r.Outcomes = append(r.Outcomes, o)
}

// Failed reports whether any outcome of the action did not succeed.
func (r *Result) Failed() bool {
	for _, o := range r.Outcomes {
		if o.Result != monitor.Success {
			return true
		}
	}
	return len(r.Outcomes) == 0
}

// recorder is a monitor.Handler keeping outcomes of one action.
type recorder struct {
	ctx    context.Context
	stream io.Writer

	current  *monitor.Outcome
	finished []*monitor.Outcome
}

func (r *recorder) OutcomeStarted(o *monitor.Outcome) {
	r.current = o
	logging.Debugf(r.ctx, "Started %s", o.Name)
}

func (r *recorder) Output(o *monitor.Outcome, text string) {
	if r.stream != nil {
		io.WriteString(r.stream, text)
	}
}

func (r *recorder) OutcomeFinished(o *monitor.Outcome) {
	r.current = nil
	r.finished = append(r.finished, o)
	logging.Infof(r.ctx, "%s %s", o.Name, o.Result)
}

// abort finishes the open outcome, or a new outcome named after action if
// none is open, with result. msg and the target's captured output are
// appended to its output.
func (r *recorder) abort(action *mode.Action, result monitor.Result, msg, output string) {
	o := r.current
	if o == nil {
		o = &monitor.Outcome{Name: action.Name, Action: action.Name}
	}
	o.Result = result
	o.Output = append(o.Output, msg+"\n")
	if output != "" {
		o.Output = append(o.Output, output)
	}
	r.current = nil
	r.finished = append(r.finished, o)
	logging.Infof(r.ctx, "%s %s: %s", o.Name, o.Result, msg)
}

// resultsWriter writes results to the results directory. It does nothing if
// the directory is empty.
type resultsWriter struct {
	dir    string
	stream *os.File
}

func newResultsWriter(dir string) (*resultsWriter, error) {
	if dir == "" {
		return &resultsWriter{}, nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrap(err, "failed to create results dir")
	}
	f, err := os.Create(filepath.Join(dir, streamedResultsFilename))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create streamed results")
	}
	return &resultsWriter{dir: dir, stream: f}, nil
}

// Add appends res to the streamed results file.
func (w *resultsWriter) Add(res *Result) error {
	if w.stream == nil {
		return nil
	}
	b, err := json.Marshal(res)
	if err != nil {
		return err
	}
	if _, err := w.stream.Write(append(b, '\n')); err != nil {
		return errors.Wrap(err, "failed to write streamed results")
	}
	return nil
}

// Finish writes all results to the results file.
func (w *resultsWriter) Finish(results []*Result) error {
	if w.dir == "" {
		return nil
	}
	f, err := os.Create(filepath.Join(w.dir, resultsFilename))
	if err != nil {
		return err
	}
	defer f.Close()

	if results == nil {
		results = []*Result{}
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(results); err != nil {
		return errors.Wrap(err, "failed to write results")
	}
	return nil
}

// Close closes the streamed results file.
func (w *resultsWriter) Close() error {
	if w.stream == nil {
		return nil
	}
	return w.stream.Close()
}

// logSummary logs the result of every outcome.
func logSummary(ctx context.Context, results []*Result) {
	ml := 0
	for _, res := range results {
		for _, o := range res.Outcomes {
			if len(o.Name) > ml {
				ml = len(o.Name)
			}
		}
	}

	sep := strings.Repeat("-", 80)
	logging.Info(ctx, sep)

	var failed int
	for _, res := range results {
		for _, o := range res.Outcomes {
			pn := fmt.Sprintf("%-"+strconv.Itoa(ml)+"s", o.Name)
			logging.Info(ctx, pn+"  "+string(o.Result))
			if o.Result != monitor.Success {
				failed++
			}
		}
	}

	logging.Info(ctx, sep)
	if failed > 0 {
		logging.Infof(ctx, "%d outcome(s) did not succeed", failed)
	}
}
