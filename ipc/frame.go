// Package ipc implements length-prefixed msgpack framing for streaming
// fetched pages between processes.
//
// Each frame is a 4-byte big-endian payload length followed by a msgpack
// map carrying a "type" discriminant. A stream is zero or more page
// frames followed by exactly one summary frame.
package ipc

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/justapithecus/maxreport/types"
)

// Frame size constants.
const (
	// MaxFrameSize is the maximum frame size (16 MiB), including length prefix.
	MaxFrameSize = 16 * 1024 * 1024
	// MaxPayloadSize is the maximum payload size (MaxFrameSize - 4 bytes).
	MaxPayloadSize = MaxFrameSize - LengthPrefixSize
	// LengthPrefixSize is the size of the length prefix in bytes.
	LengthPrefixSize = 4
)

// Frame type discriminants.
const (
	PageType    = "page"
	SummaryType = "summary"
)

// PageFrame carries one page of rows. Inline report numbers travel as
// their decimal text.
type PageFrame struct {
	Type    string      `msgpack:"type"`
	FetchID string      `msgpack:"fetch_id"`
	Offset  int         `msgpack:"offset"`
	Size    int         `msgpack:"size"`
	Columns []string    `msgpack:"columns"`
	Rows    []types.Row `msgpack:"rows"`
}

// Page converts the frame back to a page.
func (f *PageFrame) Page() *types.Page {
	return &types.Page{
		Table:  &types.Table{Columns: f.Columns, Rows: f.Rows},
		Offset: f.Offset,
		Size:   f.Size,
	}
}

// SummaryFrame terminates a stream.
type SummaryFrame struct {
	Type    string `msgpack:"type"`
	FetchID string `msgpack:"fetch_id"`
	Report  string `msgpack:"report"`
	Outcome string `msgpack:"outcome"`
	Error   string `msgpack:"error,omitempty"`
	Pages   int64  `msgpack:"pages"`
	Rows    int64  `msgpack:"rows"`
}

// FrameErrorKind classifies frame decoding errors.
type FrameErrorKind int

const (
	// FrameErrorPartial indicates a truncated or incomplete frame.
	FrameErrorPartial FrameErrorKind = iota
	// FrameErrorTooLarge indicates a frame exceeding MaxFrameSize.
	FrameErrorTooLarge
	// FrameErrorDecode indicates a msgpack decoding error.
	FrameErrorDecode
)

// FrameError represents a frame decoding error.
type FrameError struct {
	Kind FrameErrorKind
	Msg  string
	Err  error
}

func (e *FrameError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *FrameError) Unwrap() error {
	return e.Err
}

// IsFatal reports whether the stream cannot continue after this error.
// Partial and oversized frames desynchronize the stream.
func (e *FrameError) IsFatal() bool {
	return e.Kind == FrameErrorPartial || e.Kind == FrameErrorTooLarge
}

// IsFatalFrameError returns true if the error is a fatal frame error.
func IsFatalFrameError(err error) bool {
	var frameErr *FrameError
	if errors.As(err, &frameErr) {
		return frameErr.IsFatal()
	}
	return false
}

// FrameEncoder writes length-prefixed msgpack frames. Safe for
// concurrent use; frames are never interleaved.
type FrameEncoder struct {
	mu     sync.Mutex
	writer io.Writer
}

// NewFrameEncoder creates a new frame encoder.
func NewFrameEncoder(w io.Writer) *FrameEncoder {
	return &FrameEncoder{writer: w}
}

// WritePage writes a page frame.
func (e *FrameEncoder) WritePage(fetchID string, p *types.Page) error {
	f := &PageFrame{Type: PageType, FetchID: fetchID, Offset: p.Offset, Size: p.Size}
	if p.Table != nil {
		f.Columns = p.Table.Columns
		f.Rows = p.Table.Rows
	}
	return e.write(f)
}

// WriteSummary writes the terminating summary frame.
func (e *FrameEncoder) WriteSummary(s SummaryFrame) error {
	s.Type = SummaryType
	return e.write(&s)
}

func (e *FrameEncoder) write(v any) error {
	payload, err := msgpack.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	if len(payload) > MaxPayloadSize {
		return &FrameError{
			Kind: FrameErrorTooLarge,
			Msg:  fmt.Sprintf("payload size %d exceeds maximum %d", len(payload), MaxPayloadSize),
		}
	}

	buf := make([]byte, LengthPrefixSize+len(payload))
	binary.BigEndian.PutUint32(buf[:LengthPrefixSize], uint32(len(payload)))
	copy(buf[LengthPrefixSize:], payload)

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, err := e.writer.Write(buf); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// FrameDecoder decodes length-prefixed msgpack frames from a stream.
type FrameDecoder struct {
	reader io.Reader
}

// NewFrameDecoder creates a new frame decoder.
func NewFrameDecoder(r io.Reader) *FrameDecoder {
	return &FrameDecoder{reader: r}
}

// ReadFrame reads a single frame from the stream.
// Returns the raw payload bytes (msgpack-encoded).
//
// Errors:
//   - io.EOF: stream ended cleanly (no more frames)
//   - *FrameError with Kind=FrameErrorPartial: incomplete frame (fatal)
//   - *FrameError with Kind=FrameErrorTooLarge: frame exceeds limit (fatal)
func (d *FrameDecoder) ReadFrame() ([]byte, error) {
	var lengthBuf [LengthPrefixSize]byte
	if _, err := io.ReadFull(d.reader, lengthBuf[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, &FrameError{
			Kind: FrameErrorPartial,
			Msg:  "failed to read length prefix",
			Err:  err,
		}
	}

	payloadSize := binary.BigEndian.Uint32(lengthBuf[:])
	if payloadSize > MaxPayloadSize {
		return nil, &FrameError{
			Kind: FrameErrorTooLarge,
			Msg:  fmt.Sprintf("payload size %d exceeds maximum %d", payloadSize, MaxPayloadSize),
		}
	}

	payload := make([]byte, payloadSize)
	if _, err := io.ReadFull(d.reader, payload); err != nil {
		return nil, &FrameError{
			Kind: FrameErrorPartial,
			Msg:  "failed to read payload",
			Err:  err,
		}
	}

	return payload, nil
}

// frameTypeProbe is used to peek at the type field without full decode.
type frameTypeProbe struct {
	Type string `msgpack:"type"`
}

// DecodeFrame decodes a payload into a *PageFrame or *SummaryFrame.
func DecodeFrame(payload []byte) (any, error) {
	var probe frameTypeProbe
	if err := msgpack.Unmarshal(payload, &probe); err != nil {
		return nil, &FrameError{
			Kind: FrameErrorDecode,
			Msg:  "failed to decode frame type",
			Err:  err,
		}
	}

	switch probe.Type {
	case PageType:
		var f PageFrame
		if err := msgpack.Unmarshal(payload, &f); err != nil {
			return nil, &FrameError{Kind: FrameErrorDecode, Msg: "failed to decode page", Err: err}
		}
		return &f, nil
	case SummaryType:
		var f SummaryFrame
		if err := msgpack.Unmarshal(payload, &f); err != nil {
			return nil, &FrameError{Kind: FrameErrorDecode, Msg: "failed to decode summary", Err: err}
		}
		return &f, nil
	default:
		return nil, &FrameError{
			Kind: FrameErrorDecode,
			Msg:  fmt.Sprintf("unknown frame type %q", probe.Type),
		}
	}
}

// ReadStream decodes frames until the summary frame and returns the
// pages in stream order. A stream that ends without a summary is
// partial.
func ReadStream(r io.Reader) ([]*types.Page, *SummaryFrame, error) {
	dec := NewFrameDecoder(r)
	var pages []*types.Page
	for {
		payload, err := dec.ReadFrame()
		if err == io.EOF {
			return pages, nil, &FrameError{Kind: FrameErrorPartial, Msg: "stream ended without summary"}
		}
		if err != nil {
			return pages, nil, err
		}

		frame, err := DecodeFrame(payload)
		if err != nil {
			return pages, nil, err
		}
		switch f := frame.(type) {
		case *PageFrame:
			pages = append(pages, f.Page())
		case *SummaryFrame:
			return pages, f, nil
		}
	}
}
