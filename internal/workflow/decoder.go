// Package workflow talks to the remote translation workflow over its
// streaming run endpoint.
package workflow

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/JakeFAU/workflow-translator/internal/metrics"
	"github.com/JakeFAU/workflow-translator/internal/translate"
)

const (
	terminalEvent = "workflow_finished"
	readBlockSize = 32 * 1024

	// DefaultMaxFrameBytes caps a single buffered frame.
	DefaultMaxFrameBytes = 8 << 20
)

var (
	frameDelimiter = []byte("\n\n")
	dataPrefix     = []byte("data: ")

	// ErrFrameTooLarge is returned when a frame grows past the configured limit
	// without a delimiter.
	ErrFrameTooLarge = errors.New("event frame exceeds size limit")
)

// Decoder accumulates event-stream bytes and extracts the outputs of the
// terminal event. Frames may be split across any number of Feed calls.
type Decoder struct {
	buf      []byte
	maxFrame int
	logger   *zap.Logger
}

// NewDecoder returns a Decoder. maxFrameBytes <= 0 disables the frame limit.
func NewDecoder(maxFrameBytes int, logger *zap.Logger) *Decoder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Decoder{maxFrame: maxFrameBytes, logger: logger}
}

// Feed appends p and processes every complete frame. done is true once the
// terminal event has been seen; later bytes are not examined.
func (d *Decoder) Feed(p []byte) (outputs map[string]any, done bool, err error) {
	d.buf = append(d.buf, p...)
	consumed := 0
	for {
		idx := bytes.Index(d.buf[consumed:], frameDelimiter)
		if idx < 0 {
			break
		}
		frame := d.buf[consumed : consumed+idx]
		consumed += idx + len(frameDelimiter)

		outputs, done, err = d.handleFrame(frame)
		if err != nil || done {
			d.buf = d.buf[:0]
			return outputs, done, err
		}
	}
	n := copy(d.buf, d.buf[consumed:])
	d.buf = d.buf[:n]
	if d.maxFrame > 0 && len(d.buf) > d.maxFrame {
		return nil, false, fmt.Errorf("%w: %d bytes buffered", ErrFrameTooLarge, len(d.buf))
	}
	return nil, false, nil
}

// Decode reads r until the terminal event and returns its outputs. A stream
// that ends without one yields translate.ErrNoTerminalEvent.
func (d *Decoder) Decode(r io.Reader) (map[string]any, error) {
	block := make([]byte, readBlockSize)
	for {
		n, readErr := r.Read(block)
		if n > 0 {
			metrics.AddStreamBytes(n)
			outputs, done, err := d.Feed(block[:n])
			if err != nil {
				return nil, err
			}
			if done {
				return outputs, nil
			}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				return nil, translate.ErrNoTerminalEvent
			}
			return nil, fmt.Errorf("read event stream: %w", readErr)
		}
	}
}

func (d *Decoder) handleFrame(frame []byte) (map[string]any, bool, error) {
	if !bytes.HasPrefix(frame, dataPrefix) {
		metrics.ObserveStreamFrame(metrics.FrameIgnored)
		return nil, false, nil
	}
	payload := bytes.TrimSpace(frame[len(dataPrefix):])
	d.logger.Debug("received event data", zap.ByteString("data", payload))

	var doc any
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, false, fmt.Errorf("decode event data: %w", err)
	}
	metrics.ObserveStreamFrame(metrics.FrameData)

	event, ok := doc.(map[string]any)
	if !ok || event["event"] != terminalEvent {
		return nil, false, nil
	}
	data, ok := event["data"].(map[string]any)
	if !ok {
		return nil, false, nil
	}
	outputs, ok := data["outputs"].(map[string]any)
	if !ok {
		d.logger.Debug("terminal event without outputs object ignored")
		return nil, false, nil
	}
	metrics.ObserveStreamFrame(metrics.FrameTerminal)
	return outputs, true, nil
}
