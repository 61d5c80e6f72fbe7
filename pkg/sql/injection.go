package sql

import (
	"fmt"

	libinjection "github.com/corazawaf/libinjection-go"

	"github.com/ekaya-inc/resource-engine/pkg/models"
)

// InjectionCheckResult contains the result of an injection check on a parameter value.
type InjectionCheckResult struct {
	IsSQLi      bool   // True if SQL injection pattern detected
	Fingerprint string // libinjection fingerprint of the detected pattern
	ParamName   string // Name of the parameter that failed the check
	ParamValue  any    // The value that was checked
}

// CheckParameterForInjection uses libinjection to detect SQL injection patterns
// in a parameter value.
//
// Only string values are checked; numbers, booleans, and other types cannot
// carry an injection payload once rendered as literals.
//
// Example:
//
//	result := CheckParameterForInjection("title", "'; DROP TABLE film--")
//	// result.IsSQLi == true
func CheckParameterForInjection(paramName string, value any) *InjectionCheckResult {
	strValue, ok := value.(string)
	if !ok {
		return nil
	}

	isSQLi, fingerprint := libinjection.IsSQLi(strValue)
	if isSQLi {
		return &InjectionCheckResult{
			IsSQLi:      true,
			Fingerprint: string(fingerprint),
			ParamName:   paramName,
			ParamValue:  value,
		}
	}

	return nil
}

// CheckAllParameters screens every value, including the elements of IN lists.
// Returns one result per offending parameter, or nil when all are clean.
func CheckAllParameters(params []models.NameValuePair) []*InjectionCheckResult {
	var results []*InjectionCheckResult
	for _, p := range params {
		if values, ok := p.Value.([]any); ok {
			for _, v := range values {
				if result := CheckParameterForInjection(p.Name, v); result != nil {
					results = append(results, result)
					break
				}
			}
			continue
		}
		if result := CheckParameterForInjection(p.Name, p.Value); result != nil {
			results = append(results, result)
		}
	}
	return results
}

// InjectionError is returned by the builder when a parameter value looks like
// an injection attempt.
type InjectionError struct {
	Results []*InjectionCheckResult
}

func (e *InjectionError) Error() string {
	first := e.Results[0]
	return fmt.Sprintf("parameter %q rejected: SQL injection pattern detected (fingerprint %s)", first.ParamName, first.Fingerprint)
}
