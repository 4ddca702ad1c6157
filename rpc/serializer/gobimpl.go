package serializer

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/ValentinKolb/dSync/rpc/common"
)

// NewGOBSerializer creates a new serializer using Go's binary gob format.
// Every envelope is a self-contained gob stream including the type
// description, which makes the frames considerably larger than binary ones.
func NewGOBSerializer() IRPCSerializer {
	return &gobSerializerImpl{}
}

// gobSerializerImpl implements the IRPCSerializer interface using gob encoding
type gobSerializerImpl struct {
}

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IRPCSerializer)
// --------------------------------------------------------------------------

func (g gobSerializerImpl) Serialize(env common.Envelope) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(env); err != nil {
		return nil, fmt.Errorf("failed to encode %s envelope: %w", env.EnvType, err)
	}
	return buf.Bytes(), nil
}

func (g gobSerializerImpl) Deserialize(b []byte, env *common.Envelope) error {
	var decoded common.Envelope
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&decoded); err != nil {
		return fmt.Errorf("invalid gob envelope: %w", err)
	}
	*env = decoded
	return nil
}
