package serializer

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/ekaya-inc/resource-engine/pkg/models"
)

// Msgpack renders the same envelope as JSON in MessagePack.
type Msgpack struct{}

func (Msgpack) Format() string      { return FormatMsgpack }
func (Msgpack) ContentType() string { return "application/msgpack" }

func (Msgpack) Serialize(res *models.Resource, records []map[string]any) ([]byte, error) {
	data, err := msgpack.Marshal(document(res, records))
	if err != nil {
		return nil, fmt.Errorf("failed to encode MessagePack document: %w", err)
	}
	return data, nil
}
