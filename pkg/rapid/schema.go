package rapid

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// ReportSchema is the JSON schema of a Report rendered with FormatJSON.
//
//go:embed report.schema.json
var ReportSchema []byte

// ErrInvalidReport is returned when a JSON report violates ReportSchema.
var ErrInvalidReport = errors.New("rapid: report does not match schema")

// ValidateReportJSON checks data against ReportSchema. Schema violations are
// listed one per line in the wrapped ErrInvalidReport.
func ValidateReportJSON(data []byte) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(ReportSchema),
		gojsonschema.NewBytesLoader(data),
	)
	if err != nil {
		return fmt.Errorf("validate report: %w", err)
	}

	if result.Valid() {
		return nil
	}

	violations := make([]string, 0, len(result.Errors()))
	for _, verr := range result.Errors() {
		violations = append(violations, verr.Field()+": "+verr.Description())
	}

	return fmt.Errorf("%w:\n  %s", ErrInvalidReport, strings.Join(violations, "\n  "))
}
