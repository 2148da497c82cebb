package osc

import (
	"fmt"
	"strconv"

	goosc "github.com/hypebeast/go-osc/osc"

	"github.com/nerrad567/webmixer/internal/mixer"
)

// Encode packs msg into one OSC datagram. JSON numbers arrive as float64
// and go out as float32; Go ints go out as int32, the widths the desk
// understands.
func Encode(msg mixer.Message) ([]byte, error) {
	out := goosc.NewMessage(msg.Address)
	for i, arg := range msg.Args {
		v, err := toWire(arg)
		if err != nil {
			return nil, fmt.Errorf("%s arg %d: %w", msg.Address, i, err)
		}
		out.Append(v)
	}
	data, err := out.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncode, err)
	}
	return data, nil
}

// Decode parses one datagram. Bundles are flattened into their messages in
// order, nested bundles included.
func Decode(data []byte) ([]mixer.Message, error) {
	packet, err := goosc.ParsePacket(string(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	var out []mixer.Message
	flatten(packet, &out)
	return out, nil
}

func flatten(p goosc.Packet, out *[]mixer.Message) {
	switch v := p.(type) {
	case *goosc.Message:
		*out = append(*out, fromWire(v))
	case *goosc.Bundle:
		for _, m := range v.Messages {
			*out = append(*out, fromWire(m))
		}
		for _, b := range v.Bundles {
			flatten(b, out)
		}
	}
}

func fromWire(m *goosc.Message) mixer.Message {
	args := make([]any, 0, len(m.Arguments))
	for _, a := range m.Arguments {
		args = append(args, fromWireArg(a))
	}
	return mixer.Message{Address: m.Address, Args: args}
}

func fromWireArg(a any) any {
	switch v := a.(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case float32:
		// Shortest decimal that round-trips the float32, so 0.1 stays 0.1
		// for clients and for duplicate checks.
		f, err := strconv.ParseFloat(strconv.FormatFloat(float64(v), 'g', -1, 32), 64)
		if err != nil {
			return float64(v)
		}
		return f
	case []byte:
		return string(v)
	default:
		return v
	}
}

func toWire(a any) (any, error) {
	switch v := a.(type) {
	case float64:
		return float32(v), nil
	case float32:
		return v, nil
	case int:
		return int32(v), nil
	case int32:
		return v, nil
	case int64:
		return int32(v), nil
	case string:
		return v, nil
	case bool:
		return v, nil
	case nil:
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedArg, a)
	}
}
