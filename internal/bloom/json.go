package bloom

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Snapshotter is anything that can expose its completed configuration and a
// serialized bit array, such as the plain filter and the counting filter.
type Snapshotter interface {
	Config() *FilterBuilder
	SnapshotBits() []byte
}

type filterEnvelope struct {
	Size       int    `json:"size"`
	Hashes     int    `json:"hashes"`
	HashMethod string `json:"HashMethod"`
	Bits       string `json:"bits"`
}

// ToJSON serializes a filter to the interchange envelope. Counters of a
// counting filter are discarded; only the bit array survives.
func ToJSON(source Snapshotter) ([]byte, error) {
	config := source.Config()
	envelope := filterEnvelope{
		Size:       config.Size,
		Hashes:     config.Hashes,
		HashMethod: string(config.Method),
		Bits:       base64.StdEncoding.EncodeToString(source.SnapshotBits()),
	}
	return json.Marshal(envelope)
}

// FromJSON reconstructs a non-counting filter from its envelope form.
func FromJSON(data []byte) (*Filter, error) {
	var envelope filterEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("decoding filter envelope: %w", err)
	}
	bits, err := base64.StdEncoding.DecodeString(envelope.Bits)
	if err != nil {
		return nil, fmt.Errorf("decoding filter bits: %w", err)
	}

	builder := &FilterBuilder{
		Size:   envelope.Size,
		Hashes: envelope.Hashes,
		Method: HashMethod(envelope.HashMethod),
	}
	filter, err := NewFilter(builder)
	if err != nil {
		return nil, err
	}
	filter.OverwriteBits(bits)
	return filter, nil
}
