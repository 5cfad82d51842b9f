package websocket

import (
	"bufio"
	"crypto/sha1" //nolint: gosec // RFC 6455 requires the use of SHA-1 for WebSocket
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const websocketGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

const (
	opContinuation byte = 0x0
	opText         byte = 0x1
	opBinary       byte = 0x2
	opClose        byte = 0x8
	opPing         byte = 0x9
	opPong         byte = 0xA
)

const (
	maxControlPayload = 125
	maxMessageSize    = 64 << 10
)

var (
	errFrameTooLarge          = errors.New("frame exceeds the message size limit")
	errFragmentedControl      = errors.New("control frame must not be fragmented")
	errControlTooLarge        = errors.New("control frame payload exceeds 125 bytes")
	errUnmaskedFrame          = errors.New("client frame must be masked")
	errUnexpectedContinuation = errors.New("continuation frame without a started message")
	errInterleavedMessage     = errors.New("new message started before the previous one finished")
)

// GenerateAcceptKey - computes the Sec-WebSocket-Accept value for a client key.
func GenerateAcceptKey(key string) string {
	h := sha1.New() //nolint: gosec // RFC 6455 requires the use of SHA-1 for WebSocket

	h.Write([]byte(key + websocketGUID))

	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

func newTextFrame(payload []byte) frame {
	return frame{isFin: true, opCode: opText, length: uint64(len(payload)), payload: payload}
}

func newControlFrame(opCode byte, payload []byte) frame {
	if len(payload) > maxControlPayload {
		payload = payload[:maxControlPayload]
	}

	return frame{isFin: true, opCode: opCode, length: uint64(len(payload)), payload: payload}
}

func writeFrame(writer *bufio.Writer, frameData frame) error {
	header := make([]byte, 2, 14)
	header[0] = frameData.opCode

	if frameData.isFin {
		header[0] |= 0x80
	}

	switch {
	case frameData.length < 126:
		header[1] = byte(frameData.length)
	case frameData.length < 1<<16:
		header[1] = 126
		header = binary.BigEndian.AppendUint16(header, uint16(frameData.length))
	default:
		header[1] = 127
		header = binary.BigEndian.AppendUint64(header, frameData.length)
	}

	payload := frameData.payload
	if frameData.mask != nil {
		header[1] |= 0x80
		header = append(header, frameData.mask...)
		payload = applyMask(append([]byte(nil), payload...), frameData.mask)
	}

	if _, err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write frame header: %w", err)
	}

	if _, err := writer.Write(payload); err != nil {
		return fmt.Errorf("failed to write frame payload: %w", err)
	}

	if err := writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush buffer: %w", err)
	}

	return nil
}

func readFrame(reader *bufio.Reader) (frame, error) {
	header := make([]byte, 2)
	if _, err := io.ReadFull(reader, header); err != nil {
		return frame{}, fmt.Errorf("failed to read header: %w", err)
	}

	result := frame{
		isFin:  header[0]&0x80 != 0,
		opCode: header[0] & 0x0f,
	}
	masked := header[1]&0x80 != 0

	size, err := readPayloadLength(reader, header[1]&0x7f)
	if err != nil {
		return frame{}, err
	}

	if result.isControl() && !result.isFin {
		return frame{}, errFragmentedControl
	}

	if result.isControl() && size > maxControlPayload {
		return frame{}, errControlTooLarge
	}

	if size > maxMessageSize {
		return frame{}, errFrameTooLarge
	}

	if masked {
		result.mask = make([]byte, 4)
		if _, err = io.ReadFull(reader, result.mask); err != nil {
			return frame{}, fmt.Errorf("failed to read mask: %w", err)
		}
	}

	result.length = size
	result.payload = make([]byte, size)
	if _, err = io.ReadFull(reader, result.payload); err != nil {
		return frame{}, fmt.Errorf("failed to read payload: %w", err)
	}

	if masked {
		applyMask(result.payload, result.mask)
	}

	return result, nil
}

func readPayloadLength(reader *bufio.Reader, payloadLen byte) (uint64, error) {
	switch payloadLen {
	case 126:
		length := make([]byte, 2)
		if _, err := io.ReadFull(reader, length); err != nil {
			return 0, fmt.Errorf("failed to read payload length: %w", err)
		}

		return uint64(binary.BigEndian.Uint16(length)), nil
	case 127:
		length := make([]byte, 8)
		if _, err := io.ReadFull(reader, length); err != nil {
			return 0, fmt.Errorf("failed to read payload length: %w", err)
		}

		return binary.BigEndian.Uint64(length), nil
	default:
		return uint64(payloadLen), nil
	}
}

func applyMask(payload, mask []byte) []byte {
	for i := range payload {
		payload[i] ^= mask[i%4]
	}

	return payload
}

// isProtocolError reports whether err means the peer broke the framing rules, as opposed to the
// connection failing.
func isProtocolError(err error) bool {
	for _, target := range []error{
		errFrameTooLarge, errFragmentedControl, errControlTooLarge,
		errUnmaskedFrame, errUnexpectedContinuation, errInterleavedMessage,
	} {
		if errors.Is(err, target) {
			return true
		}
	}

	return false
}

// frameReader joins fragmented data frames. Control frames may arrive between fragments and are
// returned as they come. A server side reader requires every frame to be masked.
type frameReader struct {
	reader      *bufio.Reader
	requireMask bool

	started bool
	opCode  byte
	message []byte
}

func newFrameReader(reader *bufio.Reader, requireMask bool) *frameReader {
	return &frameReader{reader: reader, requireMask: requireMask}
}

func (that *frameReader) next() (frame, error) {
	for {
		current, err := readFrame(that.reader)
		if err != nil {
			return frame{}, err
		}

		if that.requireMask && current.mask == nil {
			return frame{}, errUnmaskedFrame
		}

		switch {
		case current.isControl():
			return current, nil
		case current.opCode == opContinuation:
			if !that.started {
				return frame{}, errUnexpectedContinuation
			}

			if len(that.message)+len(current.payload) > maxMessageSize {
				return frame{}, errFrameTooLarge
			}

			that.message = append(that.message, current.payload...)
			if !current.isFin {
				continue
			}

			message := frame{isFin: true, opCode: that.opCode, length: uint64(len(that.message)), payload: that.message}
			that.started, that.opCode, that.message = false, 0, nil

			return message, nil
		case that.started:
			return frame{}, errInterleavedMessage
		case !current.isFin:
			that.started, that.opCode, that.message = true, current.opCode, current.payload
		default:
			return current, nil
		}
	}
}
