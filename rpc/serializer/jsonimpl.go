package serializer

import (
	"encoding/json"
	"fmt"

	"github.com/ValentinKolb/dSync/rpc/common"
)

// NewJSONSerializer creates a new serializer using json encoding. Byte
// slices (arguments, payloads) are written as base64 strings.
func NewJSONSerializer() IRPCSerializer {
	return &jsonSerializerImpl{}
}

// jsonSerializerImpl implements the IRPCSerializer interface using json encoding
type jsonSerializerImpl struct {
}

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IRPCSerializer)
// --------------------------------------------------------------------------

func (j jsonSerializerImpl) Serialize(env common.Envelope) ([]byte, error) {
	return json.Marshal(env)
}

// Deserialize replaces env, json.Unmarshal alone would merge into the fields
// left over from the previous envelope
func (j jsonSerializerImpl) Deserialize(b []byte, env *common.Envelope) error {
	var decoded common.Envelope
	if err := json.Unmarshal(b, &decoded); err != nil {
		return fmt.Errorf("invalid json envelope: %w", err)
	}
	if decoded.EnvType == common.EnvInvalid {
		return fmt.Errorf("invalid json envelope: missing env_type")
	}
	*env = decoded
	return nil
}
