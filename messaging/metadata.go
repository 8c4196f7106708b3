package messaging

import (
	"encoding/json"
	"time"
)

// Standard metadata entry keys, matching §3/§6 of the spec: every persisted
// event carries CommonMetadata and (when a policy user initiated it) an
// AuditRecord, plus whatever the caller adds.
const (
	CommonMetadataKey = "CommonMetadata"
	AuditRecordKey    = "AuditRecord"
)

// CommonMetadata names the event for wire/header purposes. EventClrType is
// the short type name; EventClrQualifiedType is the fully-qualified one,
// kept under its source name since readers must stay compatible with
// metadata written by the original .NET runtime's dual-name headers (§6).
type CommonMetadata struct {
	EventName             string `json:"eventName"`
	EventClrType          string `json:"eventClrType"`
	EventClrQualifiedType string `json:"eventClrQualifiedType"`
}

// AuditRecord captures who caused the event and when, for compliance trails.
type AuditRecord struct {
	PolicyUserId MsgId     `json:"policyUserId"`
	EventDateUTC time.Time `json:"eventDateUtc"`
}

// Metadata is an ordered bag of named, independently (de)serializable
// entries attached to an event before persistence.
type Metadata struct {
	order   []string
	entries map[string]json.RawMessage
}

// NewMetadata returns an empty metadata bag.
func NewMetadata() Metadata {
	return Metadata{entries: make(map[string]json.RawMessage)}
}

// Set stores value under key, marshaling it to JSON. Re-setting an existing
// key replaces its value without disturbing insertion order.
func (m *Metadata) Set(key string, value any) error {
	if m.entries == nil {
		m.entries = make(map[string]json.RawMessage)
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if _, exists := m.entries[key]; !exists {
		m.order = append(m.order, key)
	}
	m.entries[key] = raw
	return nil
}

// Get unmarshals the entry stored under key into out. Returns false if key
// is absent.
func (m Metadata) Get(key string, out any) (bool, error) {
	raw, ok := m.entries[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, out)
}

// Merge copies every entry from other into m in other's insertion order,
// skipping keys m already has.
func (m *Metadata) Merge(other Metadata) {
	for _, k := range other.order {
		if _, exists := m.entries[k]; exists {
			continue
		}
		if m.entries == nil {
			m.entries = make(map[string]json.RawMessage)
		}
		m.entries[k] = other.entries[k]
		m.order = append(m.order, k)
	}
}

// Has reports whether key is present.
func (m Metadata) Has(key string) bool {
	_, ok := m.entries[key]
	return ok
}

// Keys returns the entry keys in insertion order.
func (m Metadata) Keys() []string {
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out
}

// MarshalJSON serializes the bag as a plain JSON object, used as the
// "Metadata" half of a persisted event record (§6: "Metadata is stored as a
// separate JSON object").
func (m Metadata) MarshalJSON() ([]byte, error) {
	obj := make(map[string]json.RawMessage, len(m.entries))
	for k, v := range m.entries {
		obj[k] = v
	}
	return json.Marshal(obj)
}

// UnmarshalJSON restores a bag from a JSON object, reconstructing insertion
// order as object key order isn't guaranteed by encoding/json — callers that
// depend on order should not rely on a round trip through this method.
func (m *Metadata) UnmarshalJSON(data []byte) error {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	m.entries = obj
	m.order = m.order[:0]
	for k := range obj {
		m.order = append(m.order, k)
	}
	return nil
}
