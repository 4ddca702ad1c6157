package serializer

import (
	"bytes"
	"fmt"

	"github.com/ValentinKolb/dSync/lib/codec/bincodec"
	"github.com/ValentinKolb/dSync/rpc/common"
)

// NewBinarySerializer creates a new serializer using a custom binary format
// optimized for speed and efficiency
func NewBinarySerializer() IRPCSerializer {
	return &binarySerializerImpl{}
}

// binarySerializerImpl implements IRPCSerializer using a custom binary format.
// The layout is a header (envelope type, uint16 flags) followed by the
// present fields in flag order, written with the bincodec primitives.
type binarySerializerImpl struct {
}

// Bit flags to indicate which optional fields are present
const (
	hasID      uint16 = 1 << 0
	hasMethod  uint16 = 1 << 1
	hasArgs    uint16 = 1 << 2
	hasPayload uint16 = 1 << 3
	hasObject  uint16 = 1 << 4
	hasPeer    uint16 = 1 << 5
	hasProps   uint16 = 1 << 6
	hasCode    uint16 = 1 << 7
	hasErr     uint16 = 1 << 8
)

// headerSize is the size of the envelope type byte and the flags
const headerSize = 3

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IRPCSerializer)
// --------------------------------------------------------------------------

func (b binarySerializerImpl) Serialize(env common.Envelope) ([]byte, error) {
	e := bincodec.NewEncoder(b.sizeBytes(env))

	// Header: type + flags placeholder
	e.PutUint8(uint8(env.EnvType))
	e.PutUint16(0)

	var flags uint16

	if env.ID != 0 {
		flags |= hasID
		e.PutUint64(env.ID)
	}
	if env.Method != "" {
		flags |= hasMethod
		e.PutString(env.Method)
	}
	if env.Args != nil {
		flags |= hasArgs
		e.PutUint32(uint32(len(env.Args)))
		for _, arg := range env.Args {
			e.PutBytes(arg)
		}
	}
	if env.Payload != nil {
		flags |= hasPayload
		e.PutBytes(env.Payload)
	}
	if env.Object != "" {
		flags |= hasObject
		e.PutString(env.Object)
	}
	if env.Peer != "" {
		flags |= hasPeer
		e.PutString(env.Peer)
	}
	if env.Props != nil {
		flags |= hasProps
		e.PutUint32(uint32(len(env.Props)))
		for k, v := range env.Props {
			e.PutString(k)
			e.PutString(v)
		}
	}
	if env.Code != common.CodeNone {
		flags |= hasCode
		e.PutUint8(uint8(env.Code))
	}
	if env.Err != "" {
		flags |= hasErr
		e.PutString(env.Err)
	}

	// Set flags after knowing which fields are present
	result := e.Bytes()
	result[1] = byte(flags)
	result[2] = byte(flags >> 8)

	return result, nil
}

func (b binarySerializerImpl) Deserialize(data []byte, env *common.Envelope) error {
	// Check minimum size (EnvType + flags)
	if len(data) < headerSize {
		return fmt.Errorf("data too short for envelope header")
	}

	d := bincodec.NewDecoder(data)
	envType, _ := d.Uint8()
	flags, _ := d.Uint16()

	*env = common.Envelope{EnvType: common.EnvelopeType(envType)}

	var err error
	if flags&hasID != 0 {
		if env.ID, err = d.Uint64(); err != nil {
			return fmt.Errorf("data too short for id: %w", err)
		}
	}
	if flags&hasMethod != 0 {
		if env.Method, err = d.Text(); err != nil {
			return fmt.Errorf("data too short for method: %w", err)
		}
	}
	if flags&hasArgs != 0 {
		n, err := d.Uint32()
		if err != nil {
			return fmt.Errorf("data too short for argument count: %w", err)
		}
		// every argument carries at least its length prefix
		if uint64(n)*4 > uint64(d.Remaining()) {
			return fmt.Errorf("data too short for %d arguments", n)
		}
		env.Args = make([][]byte, n)
		for i := range env.Args {
			arg, err := d.Bytes()
			if err != nil {
				return fmt.Errorf("data too short for argument %d: %w", i, err)
			}
			env.Args[i] = bytes.Clone(arg)
		}
	}
	if flags&hasPayload != 0 {
		payload, err := d.Bytes()
		if err != nil {
			return fmt.Errorf("data too short for payload: %w", err)
		}
		env.Payload = bytes.Clone(payload)
	}
	if flags&hasObject != 0 {
		if env.Object, err = d.Text(); err != nil {
			return fmt.Errorf("data too short for object: %w", err)
		}
	}
	if flags&hasPeer != 0 {
		if env.Peer, err = d.Text(); err != nil {
			return fmt.Errorf("data too short for peer: %w", err)
		}
	}
	if flags&hasProps != 0 {
		n, err := d.Uint32()
		if err != nil {
			return fmt.Errorf("data too short for property count: %w", err)
		}
		if uint64(n)*8 > uint64(d.Remaining()) {
			return fmt.Errorf("data too short for %d properties", n)
		}
		env.Props = make(map[string]string, n)
		for i := uint32(0); i < n; i++ {
			k, err := d.Text()
			if err != nil {
				return fmt.Errorf("data too short for property key: %w", err)
			}
			v, err := d.Text()
			if err != nil {
				return fmt.Errorf("data too short for property %q: %w", k, err)
			}
			env.Props[k] = v
		}
	}
	if flags&hasCode != 0 {
		code, err := d.Uint8()
		if err != nil {
			return fmt.Errorf("data too short for error code: %w", err)
		}
		env.Code = common.ErrorCode(code)
	}
	if flags&hasErr != 0 {
		if env.Err, err = d.Text(); err != nil {
			return fmt.Errorf("data too short for error: %w", err)
		}
	}

	if d.Remaining() > 0 {
		return fmt.Errorf("%d bytes of trailing data after envelope", d.Remaining())
	}
	return nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// sizeBytes calculates the total size needed for serialization
func (b binarySerializerImpl) sizeBytes(env common.Envelope) int {
	size := headerSize

	if env.ID != 0 {
		size += 8
	}
	if env.Method != "" {
		size += 4 + len(env.Method)
	}
	if env.Args != nil {
		size += 4
		for _, arg := range env.Args {
			size += 4 + len(arg)
		}
	}
	if env.Payload != nil {
		size += 4 + len(env.Payload)
	}
	if env.Object != "" {
		size += 4 + len(env.Object)
	}
	if env.Peer != "" {
		size += 4 + len(env.Peer)
	}
	if env.Props != nil {
		size += 4
		for k, v := range env.Props {
			size += 8 + len(k) + len(v)
		}
	}
	if env.Code != common.CodeNone {
		size++
	}
	if env.Err != "" {
		size += 4 + len(env.Err)
	}

	return size
}
