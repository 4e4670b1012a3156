package docker

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// streamEvent is one JSON line of an engine pull or build stream.
type streamEvent struct {
	Stream      string `json:"stream"`
	Status      string `json:"status"`
	Error       string `json:"error"`
	ErrorDetail *struct {
		Message string `json:"message"`
	} `json:"errorDetail"`
}

// buildResult is the outcome of following a build stream to its end.
type buildResult struct {
	// Built is set once the engine reports "Successfully built".
	Built bool
	// Tagged is set once the engine reports "Successfully tagged". Its
	// absence is a warning, not a failure.
	Tagged bool
	// Err carries the first error event seen; the stream is still drained.
	Err string
}

// followBuildStream consumes every event of a build stream and classifies
// the outcome. An error event wins over a later success marker; a stream
// that ends without either is a failure for the caller to report.
func followBuildStream(r io.Reader) buildResult {
	var res buildResult

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var ev streamEvent
		if err := json.Unmarshal(line, &ev); err != nil {
			// Non-JSON noise in the stream is ignored.
			continue
		}

		if ev.Error != "" || ev.ErrorDetail != nil {
			if res.Err == "" {
				res.Err = ev.Error
				if res.Err == "" && ev.ErrorDetail != nil {
					res.Err = ev.ErrorDetail.Message
				}
			}
			continue
		}

		if strings.Contains(ev.Stream, "Successfully built") {
			res.Built = true
		}
		if strings.Contains(ev.Stream, "Successfully tagged") {
			res.Tagged = true
		}
	}

	if err := scanner.Err(); err != nil && res.Err == "" {
		res.Err = fmt.Sprintf("reading build stream: %v", err)
	}
	return res
}

// drainPullStream consumes a pull progress stream to completion, returning
// the first error event encountered.
func drainPullStream(r io.Reader) error {
	dec := json.NewDecoder(r)
	for {
		var ev streamEvent
		if err := dec.Decode(&ev); err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("reading pull stream: %w", err)
		}
		if ev.Error != "" {
			return fmt.Errorf("%s", ev.Error)
		}
		if ev.ErrorDetail != nil && ev.ErrorDetail.Message != "" {
			return fmt.Errorf("%s", ev.ErrorDetail.Message)
		}
	}
}
