// Package wire implements the framed wire protocol spoken by the simulation
// server: an ASCII header of three comma-separated fields followed by an
// arbitrary binary payload.
package wire

import (
	"bytes"
	"fmt"

	"github.com/gazebo-web/gzweb-sub000/errors"
)

// Operation tags recognized by the protocol.
const (
	OpAuth        = "auth"
	OpProtos      = "protos"
	OpTopicsTypes = "topics-types"
	OpTopics      = "topics"
	OpWorlds      = "worlds"
	OpScene       = "scene"
	OpSub         = "sub"
	OpUnsub       = "unsub"
	OpImage       = "image"
	OpThrottle    = "throttle"
	OpAdvertise   = "adv"
	OpPublishIn   = "pub_in"
	OpRequest     = "req"
	OpAsset       = "asset"
	OpPublish     = "pub"
)

// Operations lists every operation tag in the protocol vocabulary.
var Operations = []string{
	OpAuth, OpProtos, OpTopicsTypes, OpTopics, OpWorlds, OpScene,
	OpSub, OpUnsub, OpImage, OpThrottle, OpAdvertise, OpPublishIn,
	OpRequest, OpAsset, OpPublish,
}

// Frame is one wire-protocol unit. Operation, Topic and TypeName are
// restricted to 7-bit ASCII with no embedded comma; Payload carries
// arbitrary bytes (typed message bytes or raw image data).
type Frame struct {
	Operation string
	Topic     string
	TypeName  string
	Payload   []byte
}

const headerSeparators = 3

// ValidateHeaderField reports whether s is usable as a frame header field:
// pure 7-bit ASCII and comma-free.
func ValidateHeaderField(s string) error {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 0x80 {
			return errors.WrapInvalid(errors.ErrHeaderNotASCII,
				"wire", "ValidateHeaderField", fmt.Sprintf("byte 0x%02x at offset %d", c, i))
		}
		if c == ',' {
			return errors.WrapInvalid(errors.ErrMalformedFrame,
				"wire", "ValidateHeaderField", fmt.Sprintf("embedded comma at offset %d", i))
		}
	}
	return nil
}

// Encode serializes a frame as "operation,topic,typeName,payload". Header
// fields are validated; the payload is appended verbatim.
func Encode(f Frame) ([]byte, error) {
	for _, field := range []string{f.Operation, f.Topic, f.TypeName} {
		if err := ValidateHeaderField(field); err != nil {
			return nil, err
		}
	}

	buf := make([]byte, 0, len(f.Operation)+len(f.Topic)+len(f.TypeName)+headerSeparators+len(f.Payload))
	buf = append(buf, f.Operation...)
	buf = append(buf, ',')
	buf = append(buf, f.Topic...)
	buf = append(buf, ',')
	buf = append(buf, f.TypeName...)
	buf = append(buf, ',')
	buf = append(buf, f.Payload...)
	return buf, nil
}

// Decode parses a raw inbound buffer into a Frame. The header is scanned
// byte-wise up to the third comma; the remainder of the buffer is the
// payload verbatim. The payload is never routed through text decoding, so
// embedded comma bytes and invalid UTF-8 survive intact.
func Decode(raw []byte) (Frame, error) {
	var fields [headerSeparators]string
	offset := 0
	for i := 0; i < headerSeparators; i++ {
		idx := bytes.IndexByte(raw[offset:], ',')
		if idx < 0 {
			return Frame{}, errors.WrapInvalid(errors.ErrMalformedFrame,
				"wire", "Decode", fmt.Sprintf("missing separator %d of %d", i+1, headerSeparators))
		}
		field := string(raw[offset : offset+idx])
		if err := ValidateHeaderField(field); err != nil {
			return Frame{}, err
		}
		fields[i] = field
		offset += idx + 1
	}

	// Slice the payload from the raw buffer at the computed byte offset.
	payload := raw[offset:]

	return Frame{
		Operation: fields[0],
		Topic:     fields[1],
		TypeName:  fields[2],
		Payload:   payload,
	}, nil
}
