package bridge

import (
	"encoding/json"
	"reflect"

	"github.com/reactivedomain/reactivedomain/messaging"
	"github.com/reactivedomain/reactivedomain/rderrors"
)

// SerializerRegistry picks the messaging.Serializer for a message type,
// falling back to Default (a messaging.JSONSerializer by construction) for
// any type without an explicit override. This lets a host swap in a
// different wire format for one message type (a binary codec for a
// high-volume event, say) without touching the rest of the bridge.
type SerializerRegistry struct {
	Default   messaging.Serializer
	overrides map[reflect.Type]messaging.Serializer
	registry  *messaging.Registry
}

// NewSerializerRegistry returns a SerializerRegistry defaulting to a
// messaging.JSONSerializer backed by reg, the same registry a repository or
// readmodel listener shares for this process's message types.
func NewSerializerRegistry(reg *messaging.Registry) *SerializerRegistry {
	return &SerializerRegistry{
		Default:   messaging.NewJSONSerializer(reg),
		overrides: make(map[reflect.Type]messaging.Serializer),
		registry:  reg,
	}
}

// Override installs a non-default serializer for messages of type T.
func Override[T messaging.Message](r *SerializerRegistry, s messaging.Serializer) {
	var zero T
	t := reflect.TypeOf(zero)
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	r.overrides[t] = s
}

func (r *SerializerRegistry) serializerFor(t reflect.Type) messaging.Serializer {
	if s, ok := r.overrides[t]; ok {
		return s
	}
	return r.Default
}

// Encode serializes msg into one frame payload: a JSON Envelope naming the
// registered message type plus its serialized body.
func (r *SerializerRegistry) Encode(msg messaging.Message) ([]byte, error) {
	t := reflect.TypeOf(msg)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	data, common, err := r.serializerFor(t).Serialize(msg)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: common.EventClrType, Body: data})
}

// Decode parses one frame payload back into a registered Message.
func (r *SerializerRegistry) Decode(payload []byte) (messaging.Message, error) {
	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, rderrors.DeserializationFailure("bridge.SerializerRegistry.Decode: envelope", err)
	}
	candidates := r.registry.GetByName(env.Type)
	if len(candidates) == 0 {
		return nil, rderrors.UnknownMessageType("bridge.SerializerRegistry.Decode: " + env.Type)
	}
	common := messaging.CommonMetadata{EventClrType: env.Type}
	return r.serializerFor(candidates[0]).Deserialize(env.Body, common)
}
