package commands

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/tidwall/gjson"

	"github.com/merchantd/merchantd/internal/build"
	serverErrors "github.com/merchantd/merchantd/pkg/server/errors"
	"github.com/merchantd/merchantd/pkg/storage"
)

var bulkAppliedRecordsCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: build.ProjectName,
	Name:      "bulk_applied_records_count",
	Help:      "The total number of records applied by bulk mutations.",
}, []string{"entity"})

// BulkUpdateResponse reports a bulk mutation back to the client.
type BulkUpdateResponse struct {
	AppliedCount  int      `json:"applied_count"`
	UnresolvedIDs []string `json:"unresolved_ids"`
	Message       string   `json:"message,omitempty"`
}

// parseBulkBody checks the shape of a bulk payload without decoding every
// record: the body must be a JSON object whose records field is an array of
// at most maxRecords objects, each carrying a string id. The record array
// and the requested batch size come back for the full decode.
func parseBulkBody(body []byte, maxRecords int) (gjson.Result, int, error) {
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, 0, serverErrors.NewValidationError("request body is not valid JSON")
	}

	records := gjson.GetBytes(body, "records")
	if !records.IsArray() {
		return gjson.Result{}, 0, serverErrors.NewValidationError("records must be an array")
	}

	count := int(records.Get("#").Int())
	if count == 0 {
		return gjson.Result{}, 0, fmt.Errorf("no records in bulk update: %w", storage.ErrInvalidWriteInput)
	}
	if count > maxRecords {
		return gjson.Result{}, 0, storage.ExceededBulkLimitError(maxRecords, count)
	}

	var shapeErr error
	records.ForEach(func(_, record gjson.Result) bool {
		if !record.IsObject() {
			shapeErr = serverErrors.NewValidationError("records must be objects")
			return false
		}
		if id := record.Get("id"); id.Type != gjson.String || id.Str == "" {
			shapeErr = fmt.Errorf("record with empty id: %w", storage.ErrInvalidWriteInput)
			return false
		}
		return true
	})
	if shapeErr != nil {
		return gjson.Result{}, 0, shapeErr
	}

	return records, int(gjson.GetBytes(body, "batch_size").Int()), nil
}

func bulkMessage(applied, unresolved int) string {
	if unresolved == 0 {
		return fmt.Sprintf("applied %d records", applied)
	}

	return fmt.Sprintf("applied %d records, %d ids matched no record", applied, unresolved)
}
