package schema

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/gazebo-web/gzweb-sub000/errors"
)

// Message is a decoded typed payload: field name to decoded value. Values
// are bool, int64, uint64, float64, string, []byte, nested Message, or
// []any for repeated fields.
type Message = map[string]any

// Decode interprets payload bytes against the descriptor registered under
// typeName. An unknown typeName is a hard error; so is a payload field the
// descriptor does not declare. Raw-flagged (image) types must bypass the
// interpreter and are rejected here.
func (r *Registry) Decode(typeName string, payload []byte) (Message, error) {
	if !r.Loaded() {
		return nil, errors.WrapFatal(errors.ErrSchemaMissing, "Registry", "Decode", "decode before handshake")
	}
	td, ok := r.Lookup(typeName)
	if !ok {
		return nil, errors.WrapInvalid(errors.ErrUnknownType,
			"Registry", "Decode", fmt.Sprintf("type %s", typeName))
	}
	if td.Raw || isImageName(typeName) {
		return nil, errors.WrapInvalid(errors.ErrDecodeFailed,
			"Registry", "Decode", fmt.Sprintf("type %s carries raw image bytes", typeName))
	}

	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return nil, errors.WrapInvalid(err, "Registry", "Decode",
			fmt.Sprintf("parse %s payload", typeName))
	}

	return r.decodeFields(td, fields)
}

func (r *Registry) decodeFields(td *TypeDescriptor, fields map[string]any) (Message, error) {
	byName := make(map[string]FieldDescriptor, len(td.Fields))
	for _, f := range td.Fields {
		byName[f.Name] = f
	}

	msg := make(Message, len(fields))
	for name, raw := range fields {
		fd, ok := byName[name]
		if !ok {
			return nil, errors.WrapInvalid(errors.ErrDecodeFailed,
				"Registry", "Decode", fmt.Sprintf("type %s has no field %s", td.Name, name))
		}

		if fd.Repeated {
			items, ok := raw.([]any)
			if !ok {
				return nil, fieldError(td.Name, name, "expected array")
			}
			decoded := make([]any, 0, len(items))
			for _, item := range items {
				v, err := r.decodeValue(td.Name, fd, item)
				if err != nil {
					return nil, err
				}
				decoded = append(decoded, v)
			}
			msg[name] = decoded
			continue
		}

		v, err := r.decodeValue(td.Name, fd, raw)
		if err != nil {
			return nil, err
		}
		msg[name] = v
	}
	return msg, nil
}

func (r *Registry) decodeValue(typeName string, fd FieldDescriptor, raw any) (any, error) {
	switch fd.Type {
	case TypeBool:
		v, ok := raw.(bool)
		if !ok {
			return nil, fieldError(typeName, fd.Name, "expected bool")
		}
		return v, nil

	case TypeInt32, TypeInt64:
		num, ok := raw.(json.Number)
		if !ok {
			return nil, fieldError(typeName, fd.Name, "expected integer")
		}
		v, err := num.Int64()
		if err != nil {
			return nil, fieldError(typeName, fd.Name, "expected integer")
		}
		if fd.Type == TypeInt32 && (v < math.MinInt32 || v > math.MaxInt32) {
			return nil, fieldError(typeName, fd.Name, "int32 out of range")
		}
		return v, nil

	case TypeUint32, TypeUint64:
		num, ok := raw.(json.Number)
		if !ok {
			return nil, fieldError(typeName, fd.Name, "expected unsigned integer")
		}
		v, err := strconv.ParseUint(num.String(), 10, 64)
		if err != nil {
			return nil, fieldError(typeName, fd.Name, "expected unsigned integer")
		}
		if fd.Type == TypeUint32 && v > math.MaxUint32 {
			return nil, fieldError(typeName, fd.Name, "uint32 out of range")
		}
		return v, nil

	case TypeFloat, TypeDouble:
		num, ok := raw.(json.Number)
		if !ok {
			return nil, fieldError(typeName, fd.Name, "expected number")
		}
		v, err := num.Float64()
		if err != nil {
			return nil, fieldError(typeName, fd.Name, "expected number")
		}
		return v, nil

	case TypeString:
		v, ok := raw.(string)
		if !ok {
			return nil, fieldError(typeName, fd.Name, "expected string")
		}
		return v, nil

	case TypeBytes:
		s, ok := raw.(string)
		if !ok {
			return nil, fieldError(typeName, fd.Name, "expected base64 string")
		}
		v, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, fieldError(typeName, fd.Name, "expected base64 string")
		}
		return v, nil

	default:
		nested, ok := r.Lookup(fd.Type)
		if !ok {
			return nil, errors.WrapInvalid(errors.ErrUnknownType,
				"Registry", "Decode", fmt.Sprintf("type %s field %s: %s", typeName, fd.Name, fd.Type))
		}
		obj, ok := raw.(map[string]any)
		if !ok {
			return nil, fieldError(typeName, fd.Name, "expected object")
		}
		return r.decodeFields(nested, obj)
	}
}

// Encode serializes a Message as payload bytes for the descriptor registered
// under typeName. All fields present in the message must be declared by the
// descriptor.
func (r *Registry) Encode(typeName string, msg Message) ([]byte, error) {
	if !r.Loaded() {
		return nil, errors.WrapFatal(errors.ErrSchemaMissing, "Registry", "Encode", "encode before handshake")
	}
	td, ok := r.Lookup(typeName)
	if !ok {
		return nil, errors.WrapInvalid(errors.ErrUnknownType,
			"Registry", "Encode", fmt.Sprintf("type %s", typeName))
	}
	if td.Raw || isImageName(typeName) {
		return nil, errors.WrapInvalid(errors.ErrDecodeFailed,
			"Registry", "Encode", fmt.Sprintf("type %s carries raw image bytes", typeName))
	}

	fields, err := r.encodeFields(td, msg)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(fields)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Registry", "Encode",
			fmt.Sprintf("marshal %s payload", typeName))
	}
	return payload, nil
}

func (r *Registry) encodeFields(td *TypeDescriptor, msg Message) (map[string]any, error) {
	byName := make(map[string]FieldDescriptor, len(td.Fields))
	for _, f := range td.Fields {
		byName[f.Name] = f
	}

	out := make(map[string]any, len(msg))
	for name, value := range msg {
		fd, ok := byName[name]
		if !ok {
			return nil, errors.WrapInvalid(errors.ErrDecodeFailed,
				"Registry", "Encode", fmt.Sprintf("type %s has no field %s", td.Name, name))
		}

		if fd.Repeated {
			items, ok := value.([]any)
			if !ok {
				return nil, fieldError(td.Name, name, "expected slice for repeated field")
			}
			encoded := make([]any, 0, len(items))
			for _, item := range items {
				v, err := r.encodeValue(td.Name, fd, item)
				if err != nil {
					return nil, err
				}
				encoded = append(encoded, v)
			}
			out[name] = encoded
			continue
		}

		v, err := r.encodeValue(td.Name, fd, value)
		if err != nil {
			return nil, err
		}
		out[name] = v
	}
	return out, nil
}

func (r *Registry) encodeValue(typeName string, fd FieldDescriptor, value any) (any, error) {
	switch fd.Type {
	case TypeBool:
		if v, ok := value.(bool); ok {
			return v, nil
		}
		return nil, fieldError(typeName, fd.Name, "expected bool")

	case TypeInt32, TypeInt64, TypeUint32, TypeUint64:
		switch v := value.(type) {
		case int:
			return int64(v), nil
		case int32:
			return int64(v), nil
		case int64:
			return v, nil
		case uint32:
			return uint64(v), nil
		case uint64:
			return v, nil
		case json.Number:
			return v, nil
		default:
			return nil, fieldError(typeName, fd.Name, "expected integer")
		}

	case TypeFloat, TypeDouble:
		switch v := value.(type) {
		case float32:
			return float64(v), nil
		case float64:
			return v, nil
		case int:
			return float64(v), nil
		case int64:
			return float64(v), nil
		case json.Number:
			return v, nil
		default:
			return nil, fieldError(typeName, fd.Name, "expected number")
		}

	case TypeString:
		if v, ok := value.(string); ok {
			return v, nil
		}
		return nil, fieldError(typeName, fd.Name, "expected string")

	case TypeBytes:
		if v, ok := value.([]byte); ok {
			// encoding/json renders []byte as base64, matching the wire form
			return v, nil
		}
		return nil, fieldError(typeName, fd.Name, "expected []byte")

	default:
		nested, ok := r.Lookup(fd.Type)
		if !ok {
			return nil, errors.WrapInvalid(errors.ErrUnknownType,
				"Registry", "Encode", fmt.Sprintf("type %s field %s: %s", typeName, fd.Name, fd.Type))
		}
		obj, ok := value.(Message)
		if !ok {
			return nil, fieldError(typeName, fd.Name, "expected nested message")
		}
		return r.encodeFields(nested, obj)
	}
}

func fieldError(typeName, fieldName, detail string) error {
	return errors.WrapInvalid(errors.ErrDecodeFailed,
		"Registry", "codec", fmt.Sprintf("type %s field %s: %s", typeName, fieldName, detail))
}
