package serializer

import "github.com/ValentinKolb/dSync/rpc/common"

// IRPCSerializer is the interface for all Envelope Serializers
type IRPCSerializer interface {
	// Serialize serializes an Envelope into a byte array
	// It returns the serialized byte array and an error if any
	Serialize(env common.Envelope) ([]byte, error)
	// Deserialize deserializes a byte array into an Envelope
	// It takes a byte array and a pointer to an Envelope as parameters
	// It returns an error if any
	Deserialize(b []byte, env *common.Envelope) error
}

// New returns the serializer registered under name (binary, json, gob)
func New(name string) (IRPCSerializer, error) {
	factory, ok := serializers[name]
	if !ok {
		return nil, &UnknownSerializerError{Name: name}
	}
	return factory(), nil
}

var serializers = map[string]func() IRPCSerializer{
	"binary": NewBinarySerializer,
	"json":   NewJSONSerializer,
	"gob":    NewGOBSerializer,
}

// UnknownSerializerError is returned by New for unknown names
type UnknownSerializerError struct {
	Name string
}

func (e *UnknownSerializerError) Error() string {
	return "invalid serializer " + e.Name + " (expected one of: binary, json, gob)"
}
