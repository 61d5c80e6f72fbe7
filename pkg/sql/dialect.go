package sql

import (
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Dialect captures the syntax differences between supported databases.
type Dialect struct {
	name         string
	trueLiteral  string
	falseLiteral string
	// stringPrefix marks string literals, N for SQL Server's Unicode literals.
	stringPrefix string
	timeLayout   string
	bytesLiteral func(b []byte) string
	paginate     func(query string, limit, offset int) string
}

// Postgres is the PostgreSQL dialect.
var Postgres = &Dialect{
	name:         "postgres",
	trueLiteral:  "TRUE",
	falseLiteral: "FALSE",
	timeLayout:   "2006-01-02 15:04:05.999999999-07:00",
	bytesLiteral: func(b []byte) string {
		return `'\x` + hex.EncodeToString(b) + `'`
	},
	paginate: func(query string, limit, offset int) string {
		if limit > 0 {
			query += " LIMIT " + strconv.Itoa(limit)
		}
		if offset > 0 {
			query += " OFFSET " + strconv.Itoa(offset)
		}
		return query
	},
}

// SQLServer is the Microsoft SQL Server dialect. Paging requires the query to
// carry an ORDER BY clause. Strings render as Unicode literals.
var SQLServer = &Dialect{
	name:         "mssql",
	trueLiteral:  "1",
	falseLiteral: "0",
	stringPrefix: "N",
	timeLayout:   "2006-01-02T15:04:05.9999999", // datetime2 keeps seven fractional digits
	bytesLiteral: func(b []byte) string {
		return "0x" + strings.ToUpper(hex.EncodeToString(b))
	},
	paginate: func(query string, limit, offset int) string {
		if limit <= 0 && offset <= 0 {
			return query
		}
		query += " OFFSET " + strconv.Itoa(offset) + " ROWS"
		if limit > 0 {
			query += " FETCH NEXT " + strconv.Itoa(limit) + " ROWS ONLY"
		}
		return query
	},
}

// DialectFor returns the dialect for a datasource type, defaulting to Postgres.
func DialectFor(dsType string) *Dialect {
	switch strings.ToLower(dsType) {
	case "mssql", "sqlserver", "azuresql":
		return SQLServer
	default:
		return Postgres
	}
}

// Name returns the datasource type the dialect serves.
func (d *Dialect) Name() string {
	return d.name
}

// Paginate appends limit/offset syntax. Non-positive values are ignored.
func (d *Dialect) Paginate(query string, limit, offset int) string {
	return d.paginate(query, limit, offset)
}

// FormatLiteral renders a Go value as a SQL literal.
func (d *Dialect) FormatLiteral(v any) (string, error) {
	switch val := v.(type) {
	case nil:
		return "NULL", nil
	case string:
		return d.quote(val), nil
	case []byte:
		return d.bytesLiteral(val), nil
	case bool:
		if val {
			return d.trueLiteral, nil
		}
		return d.falseLiteral, nil
	case int:
		return strconv.FormatInt(int64(val), 10), nil
	case int8:
		return strconv.FormatInt(int64(val), 10), nil
	case int16:
		return strconv.FormatInt(int64(val), 10), nil
	case int32:
		return strconv.FormatInt(int64(val), 10), nil
	case int64:
		return strconv.FormatInt(val, 10), nil
	case uint:
		return strconv.FormatUint(uint64(val), 10), nil
	case uint8:
		return strconv.FormatUint(uint64(val), 10), nil
	case uint16:
		return strconv.FormatUint(uint64(val), 10), nil
	case uint32:
		return strconv.FormatUint(uint64(val), 10), nil
	case uint64:
		return strconv.FormatUint(val, 10), nil
	case float32:
		return formatFloat(float64(val), 32)
	case float64:
		return formatFloat(val, 64)
	case time.Time:
		return d.quote(val.Format(d.timeLayout)), nil
	case fmt.Stringer:
		return d.quote(val.String()), nil
	default:
		return "", fmt.Errorf("unsupported literal type %T", v)
	}
}

func formatFloat(f float64, bitSize int) (string, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "", fmt.Errorf("unsupported float literal %v", f)
	}
	return strconv.FormatFloat(f, 'f', -1, bitSize), nil
}

func (d *Dialect) quote(s string) string {
	return d.stringPrefix + "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
