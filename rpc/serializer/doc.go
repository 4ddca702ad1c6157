// Package serializer converts envelopes to bytes and back. Every frame a
// session writes to a transport is one serialized envelope.
//
// Key Components:
//
//   - IRPCSerializer: Core interface that all serializer implementations must satisfy.
//
//   - binarySerializerImpl: Custom binary format built on the bincodec primitives.
//     A flag word records which envelope fields are present, so only those are written.
//
//   - jsonSerializerImpl: JSON encoding, useful for debugging. Envelope and error
//     types are written by name.
//
//   - gobSerializerImpl: Go's gob encoding, kept for comparison in benchmarks.
//
// Arguments, results and object streams travel inside the envelope as opaque
// byte slices in the structured text format, so the serializer never needs
// to know the schema.
//
// All serializer implementations are stateless and safe for concurrent use.
//
// Usage:
//
//	ser, err := serializer.New("binary")
//	data, err := ser.Serialize(*common.NewCall(1, "add", args))
//	// ... send data ...
//	var env common.Envelope
//	err = ser.Deserialize(received, &env)
package serializer
