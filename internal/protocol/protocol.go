/*
 * Package protocol implements the one-shot frame/verdict exchange spoken between
 * a sender and a receiver over a raw TCP stream.
 *
 * Frame (sender -> receiver):
 *
 *	uint16 BE  name length   | name bytes
 *	uint64 BE  payload length
 *	uint16 BE  action length | action bytes ("COPY" or "MOVE")
 *	payload bytes (exactly payload length)
 *
 * Verdict (receiver -> sender):
 *
 *	1 byte     success (0 or 1)
 *	uint16 BE  message length | message bytes
 *
 * Text fields use the same layout as java.io.DataOutput.writeUTF so either end
 * can talk to Java peers built on DataInputStream. There is no checksum.
 */
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// MaxTextLength is the largest text field the 16-bit length prefix can carry
const MaxTextLength = math.MaxUint16

var (
	// ErrUnknownAction is returned when the action tag is not COPY or MOVE
	ErrUnknownAction = errors.New("unknown action tag")
	// ErrFieldTooLong is returned when a text field does not fit its length prefix
	ErrFieldTooLong = errors.New("text field too long")
	// ErrLengthOverflow is returned for payload lengths that do not fit an int64
	ErrLengthOverflow = errors.New("payload length overflows int64")
	// ErrShortPayload is returned when the payload source ends before the declared length
	ErrShortPayload = errors.New("payload shorter than declared length")
)

// Action is the post-transfer policy carried on the wire
type Action uint8

const (
	ActionCopy Action = iota + 1
	ActionMove
)

const (
	tagCopy = "COPY"
	tagMove = "MOVE"
)

// String returns the wire tag
func (a Action) String() string {
	switch a {
	case ActionCopy:
		return tagCopy
	case ActionMove:
		return tagMove
	default:
		return fmt.Sprintf("Action(%d)", uint8(a))
	}
}

// ParseAction maps a wire tag to an Action. Tags are case-sensitive.
func ParseAction(tag string) (Action, error) {
	switch tag {
	case tagCopy:
		return ActionCopy, nil
	case tagMove:
		return ActionMove, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownAction, tag)
	}
}

// FrameHeader is the metadata that precedes the payload
type FrameHeader struct {
	Name   string
	Length uint64
	Action Action
}

// Verdict is the receiver's single response to a frame
type Verdict struct {
	Success bool
	Message string
}

// WriteString writes a length-prefixed text field
func WriteString(w io.Writer, s string) error {
	if len(s) > MaxTextLength {
		return fmt.Errorf("%w: %d bytes", ErrFieldTooLong, len(s))
	}
	buf := make([]byte, 2+len(s))
	binary.BigEndian.PutUint16(buf, uint16(len(s)))
	copy(buf[2:], s)
	_, err := w.Write(buf)
	return err
}

// ReadString reads a length-prefixed text field
func ReadString(r io.Reader) (string, error) {
	var hdr [2]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return "", err
	}
	buf := make([]byte, binary.BigEndian.Uint16(hdr[:]))
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", unexpected(err)
	}
	return string(buf), nil
}

// WriteHeader encodes the frame metadata
func WriteHeader(w io.Writer, h FrameHeader) error {
	if h.Action != ActionCopy && h.Action != ActionMove {
		return fmt.Errorf("%w: %s", ErrUnknownAction, h.Action)
	}
	if err := WriteString(w, h.Name); err != nil {
		return fmt.Errorf("failed to write file name: %w", err)
	}
	var length [8]byte
	binary.BigEndian.PutUint64(length[:], h.Length)
	if _, err := w.Write(length[:]); err != nil {
		return fmt.Errorf("failed to write file length: %w", err)
	}
	if err := WriteString(w, h.Action.String()); err != nil {
		return fmt.Errorf("failed to write action: %w", err)
	}
	return nil
}

// ReadHeader decodes the frame metadata. On ErrUnknownAction the returned header
// still carries the name and length that were read.
func ReadHeader(r io.Reader) (FrameHeader, error) {
	var h FrameHeader

	name, err := ReadString(r)
	if err != nil {
		return h, fmt.Errorf("failed to read file name: %w", err)
	}
	h.Name = name

	var length [8]byte
	if _, err := io.ReadFull(r, length[:]); err != nil {
		return h, fmt.Errorf("failed to read file length: %w", unexpected(err))
	}
	h.Length = binary.BigEndian.Uint64(length[:])

	tag, err := ReadString(r)
	if err != nil {
		return h, fmt.Errorf("failed to read action: %w", unexpected(err))
	}
	action, err := ParseAction(tag)
	if err != nil {
		return h, err
	}
	h.Action = action

	if h.Length > math.MaxInt64 {
		return h, fmt.Errorf("%w: %d", ErrLengthOverflow, h.Length)
	}
	return h, nil
}

// WriteFrame writes the header followed by exactly h.Length bytes from payload,
// copying through buf. It fails with ErrShortPayload if payload ends early.
func WriteFrame(w io.Writer, h FrameHeader, payload io.Reader, buf []byte) (int64, error) {
	if h.Length > math.MaxInt64 {
		return 0, fmt.Errorf("%w: %d", ErrLengthOverflow, h.Length)
	}
	if err := WriteHeader(w, h); err != nil {
		return 0, err
	}
	want := int64(h.Length)
	n, err := io.CopyBuffer(w, io.LimitReader(payload, want), buf)
	if err != nil {
		return n, fmt.Errorf("failed to write payload: %w", err)
	}
	if n != want {
		return n, fmt.Errorf("%w: sent %d of %d bytes", ErrShortPayload, n, want)
	}
	return n, nil
}

// PayloadReader limits r to the payload that follows h
func PayloadReader(r io.Reader, h FrameHeader) io.Reader {
	return io.LimitReader(r, int64(h.Length))
}

// WriteVerdict encodes a verdict
func WriteVerdict(w io.Writer, v Verdict) error {
	flag := []byte{0}
	if v.Success {
		flag[0] = 1
	}
	if _, err := w.Write(flag); err != nil {
		return fmt.Errorf("failed to write verdict flag: %w", err)
	}
	msg := v.Message
	if len(msg) > MaxTextLength {
		msg = msg[:MaxTextLength]
	}
	if err := WriteString(w, msg); err != nil {
		return fmt.Errorf("failed to write verdict message: %w", err)
	}
	return nil
}

// ReadVerdict decodes a verdict. Any non-zero flag byte means success.
func ReadVerdict(r io.Reader) (Verdict, error) {
	var flag [1]byte
	if _, err := io.ReadFull(r, flag[:]); err != nil {
		return Verdict{}, fmt.Errorf("failed to read verdict flag: %w", err)
	}
	msg, err := ReadString(r)
	if err != nil {
		return Verdict{}, fmt.Errorf("failed to read verdict message: %w", unexpected(err))
	}
	return Verdict{Success: flag[0] != 0, Message: msg}, nil
}

// unexpected turns a clean EOF in the middle of a message into io.ErrUnexpectedEOF
func unexpected(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}
