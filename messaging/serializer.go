package messaging

import (
	"encoding/json"
	"reflect"

	"github.com/reactivedomain/reactivedomain/rderrors"
)

// Serializer converts between a concrete Message value and its wire bytes
// plus the CommonMetadata header identifying its type. Grounded on the
// header-carrying wire shape retrieved from plaenen-eventstore's JSON event
// store writer, generalized so the bridge package (§8) and the stream store
// backends (§6) share one implementation instead of each hand-rolling JSON
// envelopes.
type Serializer interface {
	// Serialize returns the event body bytes and the CommonMetadata to store
	// alongside them.
	Serialize(m Message) (data []byte, meta CommonMetadata, err error)
	// Deserialize reconstructs a Message of the type named by meta, writing
	// into a newly allocated value and returning it.
	Deserialize(data []byte, meta CommonMetadata) (Message, error)
}

// JSONSerializer is the default Serializer: encoding/json bodies, with type
// identity carried by a Registry lookup keyed on CommonMetadata's type
// names. AssemblyOverride lets a host remap the qualified name written into
// EventClrQualifiedType, mirroring config.ConfiguredConnection's
// AssemblyOverride option (§11) for readers consuming streams produced by a
// differently-packaged writer.
type JSONSerializer struct {
	Registry         *Registry
	AssemblyOverride string
}

// NewJSONSerializer returns a JSONSerializer backed by reg.
func NewJSONSerializer(reg *Registry) *JSONSerializer {
	return &JSONSerializer{Registry: reg}
}

func (s *JSONSerializer) Serialize(m Message) ([]byte, CommonMetadata, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, CommonMetadata{}, rderrors.DeserializationFailure("JSONSerializer.Serialize", err)
	}
	t := elemType(reflect.TypeOf(m))
	qualified := fullName(t)
	if s.AssemblyOverride != "" {
		qualified = s.AssemblyOverride + "." + t.Name()
	}
	meta := CommonMetadata{
		EventName:             t.Name(),
		EventClrType:          t.Name(),
		EventClrQualifiedType: qualified,
	}
	return data, meta, nil
}

func (s *JSONSerializer) Deserialize(data []byte, meta CommonMetadata) (Message, error) {
	t, ok := s.Registry.GetByFullName(meta.EventClrQualifiedType)
	if !ok {
		candidates := s.Registry.GetByName(meta.EventClrType)
		if len(candidates) == 0 {
			return nil, rderrors.UnknownMessageType("JSONSerializer.Deserialize: " + meta.EventClrQualifiedType)
		}
		t = candidates[0]
	}
	ptr := reflect.New(t)
	if err := json.Unmarshal(data, ptr.Interface()); err != nil {
		return nil, rderrors.DeserializationFailure("JSONSerializer.Deserialize", err)
	}
	msg, ok := ptr.Interface().(Message)
	if !ok {
		msg, ok = ptr.Elem().Interface().(Message)
		if !ok {
			return nil, rderrors.UnknownMessageType("JSONSerializer.Deserialize: " + t.Name() + " does not implement Message")
		}
	}
	return msg, nil
}
