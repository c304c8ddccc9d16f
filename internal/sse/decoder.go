// Package sse decodes the server-sent-event stream produced by the card
// generation backend into typed events.
package sse

import (
	"bytes"
)

const (
	dataPrefix = "data:"
	doneMarker = "[DONE]"
)

var blockSep = []byte("\n\n")

// Frame is the payload of one complete event block.
type Frame []byte

// Decoder incrementally splits a byte stream into event payloads. Chunks may
// end anywhere, including inside a line or inside a multi-byte rune; the
// unterminated tail is kept until the next Feed.
type Decoder struct {
	buf []byte
}

// NewDecoder returns an empty decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Feed appends chunk to the buffer and returns the payloads of every block
// completed by it, in wire order.
func (d *Decoder) Feed(chunk []byte) []Frame {
	for _, b := range chunk {
		// CR is dropped so CRLF framing splits exactly like LF framing no
		// matter where the chunk boundary falls.
		if b != '\r' {
			d.buf = append(d.buf, b)
		}
	}

	var frames []Frame
	for {
		idx := bytes.Index(d.buf, blockSep)
		if idx < 0 {
			break
		}
		block := d.buf[:idx]
		if f, ok := payload(block); ok {
			frames = append(frames, f)
		}
		d.buf = d.buf[idx+len(blockSep):]
	}

	if len(d.buf) == 0 {
		d.buf = nil
	}
	return frames
}

// Pending reports how many bytes of an unterminated block are buffered.
func (d *Decoder) Pending() int {
	return len(d.buf)
}

// Reset drops any buffered partial block.
func (d *Decoder) Reset() {
	d.buf = nil
}

// payload extracts the JSON text of the first data line of a block. Blocks
// without a data line, with an empty payload or with the [DONE] sentinel
// yield nothing. Later data lines of the same block are ignored; the backend
// writes exactly one per event.
func payload(block []byte) (Frame, bool) {
	block = bytes.TrimSpace(block)
	if len(block) == 0 {
		return nil, false
	}
	for _, line := range bytes.Split(block, []byte("\n")) {
		if !bytes.HasPrefix(line, []byte(dataPrefix)) {
			continue
		}
		data := bytes.TrimLeft(line[len(dataPrefix):], " \t")
		if len(data) == 0 || string(bytes.TrimRight(data, " \t")) == doneMarker {
			return nil, false
		}
		return Frame(append([]byte(nil), data...)), true
	}
	return nil, false
}
