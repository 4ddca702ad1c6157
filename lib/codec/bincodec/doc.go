// Package bincodec provides a compact binary encoding for registered types.
//
// The layout is not self describing: the consumer must know the registered
// type and its field order in advance (MarshalTagged prefixes the type name
// for tools that do not). Integers use fixed widths in little endian order,
// floats their IEEE bits, strings and containers a uint32 length prefix.
//
// A truncated buffer fails with a *BufferUnderflowError naming the type and
// field being read. Values that do not fit into the declared width fail at
// encode time with a *schema.RangeError.
package bincodec
