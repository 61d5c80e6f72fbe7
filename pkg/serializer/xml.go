package serializer

import (
	"bytes"
	"encoding/xml"
	"fmt"

	"github.com/ekaya-inc/resource-engine/pkg/models"
)

// XML renders a readResponse document. Each record becomes an element named
// after its table alias with one attribute per non-null column; child records
// nest inside their parent element.
//
//	<readResponse>
//	  <language language_id="1" lang_name="English">
//	    <film film_id="1" title="ACADEMY DINOSAUR"/>
//	  </language>
//	</readResponse>
type XML struct{}

func (XML) Format() string      { return FormatXML }
func (XML) ContentType() string { return "application/xml" }

func (XML) Serialize(res *models.Resource, records []map[string]any) ([]byte, error) {
	meta := res.MetaData()
	var buf bytes.Buffer
	buf.WriteString(xml.Header)

	enc := xml.NewEncoder(&buf)
	root := xml.StartElement{Name: xml.Name{Local: "readResponse"}}
	if err := enc.EncodeToken(root); err != nil {
		return nil, err
	}

	parentCols := models.OutputColumns(meta.ParentReadColumns)
	childCols := models.OutputColumns(meta.ChildReadColumns)
	childKey := meta.ChildListKey()

	for _, rec := range records {
		start := element(meta.Parent.TableAlias, parentCols, rec)
		if err := enc.EncodeToken(start); err != nil {
			return nil, err
		}
		if childKey != "" {
			children, ok := rec[childKey].([]map[string]any)
			if !ok && rec[childKey] != nil {
				return nil, fmt.Errorf("record %s is %T, expected child records", childKey, rec[childKey])
			}
			for _, child := range children {
				cs := element(meta.Child.TableAlias, childCols, child)
				if err := enc.EncodeToken(cs); err != nil {
					return nil, err
				}
				if err := enc.EncodeToken(cs.End()); err != nil {
					return nil, err
				}
			}
		}
		if err := enc.EncodeToken(start.End()); err != nil {
			return nil, err
		}
	}

	if err := enc.EncodeToken(root.End()); err != nil {
		return nil, err
	}
	if err := enc.Flush(); err != nil {
		return nil, fmt.Errorf("failed to write xml document: %w", err)
	}
	return buf.Bytes(), nil
}

func element(name string, cols []*models.ColumnMetaData, rec map[string]any) xml.StartElement {
	start := xml.StartElement{Name: xml.Name{Local: name}}
	for _, c := range cols {
		v, ok := rec[c.ColumnLabel]
		if !ok || v == nil {
			continue
		}
		start.Attr = append(start.Attr, xml.Attr{Name: xml.Name{Local: c.ColumnLabel}, Value: formatValue(v)})
	}
	return start
}
