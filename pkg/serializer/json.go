package serializer

import (
	"encoding/json"
	"fmt"

	"github.com/ekaya-inc/resource-engine/pkg/models"
)

// JSON renders {"<plural parent alias>": [records...]}.
type JSON struct{}

func (JSON) Format() string      { return FormatJSON }
func (JSON) ContentType() string { return "application/json" }

func (JSON) Serialize(res *models.Resource, records []map[string]any) ([]byte, error) {
	data, err := json.Marshal(document(res, records))
	if err != nil {
		return nil, fmt.Errorf("failed to encode json document: %w", err)
	}
	return data, nil
}
