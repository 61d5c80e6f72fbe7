package definitions

import (
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/ekaya-inc/resource-engine/pkg/models"
	"github.com/ekaya-inc/resource-engine/pkg/sql"
)

// Parser turns a definition source into a Definition.
type Parser interface {
	Parse(r io.Reader) (*models.Definition, error)
}

// XMLParser reads the sqlResource document format:
//
//	<sqlResource>
//	  <query>SELECT ...</query>
//	  <metadata>
//	    <database default="sakila"/>
//	    <table name="film" alias="f" role="Parent">
//	      <column name="film_id" primaryKey="true"/>
//	      <column name="release_year" label="year"/>
//	    </table>
//	  </metadata>
//	</sqlResource>
//
// Columns are read unless read="false".
type XMLParser struct{}

var _ Parser = XMLParser{}

type xmlResource struct {
	XMLName  xml.Name    `xml:"sqlResource"`
	Query    string      `xml:"query"`
	Metadata xmlMetadata `xml:"metadata"`
}

type xmlMetadata struct {
	Database struct {
		Default string `xml:"default,attr"`
	} `xml:"database"`
	Tables []xmlTable `xml:"table"`
}

type xmlTable struct {
	Name    string      `xml:"name,attr"`
	Schema  string      `xml:"schema,attr"`
	Alias   string      `xml:"alias,attr"`
	Role    string      `xml:"role,attr"`
	Columns []xmlColumn `xml:"column"`
}

type xmlColumn struct {
	Name                 string `xml:"name,attr"`
	Label                string `xml:"label,attr"`
	PrimaryKey           string `xml:"primaryKey,attr"`
	NonqueriedForeignKey string `xml:"nonqueriedForeignKey,attr"`
	Read                 string `xml:"read,attr"`
}

func (XMLParser) Parse(r io.Reader) (*models.Definition, error) {
	var doc xmlResource
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode definition: %w", err)
	}

	result := sql.ValidateAndNormalize(doc.Query)
	if result.Error != nil {
		return nil, fmt.Errorf("invalid query: %w", result.Error)
	}

	def := &models.Definition{
		Query:           result.NormalizedSQL,
		DefaultDatabase: strings.TrimSpace(doc.Metadata.Database.Default),
	}
	for _, t := range doc.Metadata.Tables {
		role := models.ParseTableRole(t.Role)
		if role == models.TableRoleUnknown {
			return nil, fmt.Errorf("table %s: unknown role %q", t.Name, t.Role)
		}
		table := models.TableDefinition{
			Name:   t.Name,
			Schema: t.Schema,
			Alias:  t.Alias,
			Role:   role,
		}
		for _, c := range t.Columns {
			pk, err := boolAttr(c.PrimaryKey, false)
			if err != nil {
				return nil, fmt.Errorf("table %s column %s: primaryKey: %w", t.Name, c.Name, err)
			}
			fk, err := boolAttr(c.NonqueriedForeignKey, false)
			if err != nil {
				return nil, fmt.Errorf("table %s column %s: nonqueriedForeignKey: %w", t.Name, c.Name, err)
			}
			read, err := boolAttr(c.Read, true)
			if err != nil {
				return nil, fmt.Errorf("table %s column %s: read: %w", t.Name, c.Name, err)
			}
			table.Columns = append(table.Columns, models.ColumnDefinition{
				Name:                 c.Name,
				Label:                c.Label,
				PrimaryKey:           pk,
				NonqueriedForeignKey: fk,
				Read:                 read,
			})
		}
		def.Tables = append(def.Tables, table)
	}
	return def, nil
}

func boolAttr(s string, def bool) (bool, error) {
	if s == "" {
		return def, nil
	}
	return strconv.ParseBool(s)
}
