// Package serializer renders read results as documents.
package serializer

import (
	"fmt"
	"strings"
	"time"

	"github.com/jinzhu/inflection"

	"github.com/ekaya-inc/resource-engine/pkg/models"
)

// Supported document formats.
const (
	FormatXML     = "xml"
	FormatJSON    = "json"
	FormatMsgpack = "msgpack"
)

// Serializer turns the records of a read into a document. Records are in the
// shape the engine produces: flat, or parents carrying their child records
// under the resource's child list key.
type Serializer interface {
	Format() string
	ContentType() string
	Serialize(res *models.Resource, records []map[string]any) ([]byte, error)
}

// ForFormat returns the serializer for a format name.
func ForFormat(format string) (Serializer, error) {
	switch strings.ToLower(format) {
	case FormatXML, "":
		return XML{}, nil
	case FormatJSON:
		return JSON{}, nil
	case FormatMsgpack:
		return Msgpack{}, nil
	default:
		return nil, fmt.Errorf("unsupported document format %q", format)
	}
}

// collectionKey names the top-level collection: the pluralized parent alias.
func collectionKey(res *models.Resource) string {
	return inflection.Plural(res.ParentTable().TableAlias)
}

// document builds the envelope shared by the map-based formats.
func document(res *models.Resource, records []map[string]any) map[string]any {
	if records == nil {
		records = []map[string]any{}
	}
	return map[string]any{collectionKey(res): records}
}

func formatValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case []byte:
		return string(val)
	case time.Time:
		return val.Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(val)
	}
}
