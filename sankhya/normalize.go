package sankhya

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/mmdatafocus/recon_backend/config"
)

const (
	serviceExecuteQuery = "DbExplorerSP.executeQuery"
	serviceLoadView     = "CRUDServiceProvider.loadView"
	serviceLoadRecords  = "CRUDServiceProvider.loadRecords"
	serviceDatasetSave  = "DatasetSP.save"
)

// Record is one normalized result row. Column names are always lower-cased
// regardless of which service produced them.
type Record = map[string]any

// ServiceResponse is the envelope every gateway service returns. Status is
// a string code; "0" and "1" are accepted outcomes.
type ServiceResponse struct {
	ServiceName   string          `json:"serviceName"`
	Status        string          `json:"status"`
	StatusMessage string          `json:"statusMessage"`
	ResponseBody  json.RawMessage `json:"responseBody"`
}

// FormatResponse flattens the gateway's three response shapes into a
// uniform []Record. DbExplorerSP.executeQuery returns tabular metadata plus
// rows, CRUDServiceProvider.loadView returns record units with "$"-wrapped
// values, and everything else is treated as an entity query with positional
// f0..fN keys. Rows that do not match the expected shape are logged and
// skipped rather than failing the whole response.
func FormatResponse(res *ServiceResponse) []Record {
	if res == nil || len(res.ResponseBody) == 0 {
		return []Record{}
	}

	var body map[string]any
	if err := json.Unmarshal(res.ResponseBody, &body); err != nil {
		config.LogError(config.GetLogger(), "sankhya", "FormatResponse", "decoding response body", string(res.ResponseBody), err)
		return []Record{}
	}

	switch res.ServiceName {
	case serviceExecuteQuery:
		return formatTabular(body)
	case serviceLoadView:
		return formatRecordUnits(body)
	default:
		return formatEntities(body)
	}
}

func formatTabular(body map[string]any) []Record {
	meta, _ := body["fieldsMetadata"].([]any)
	rows, _ := body["rows"].([]any)

	names := make([]string, 0, len(meta))
	for _, f := range meta {
		fm, ok := f.(map[string]any)
		if !ok {
			continue
		}
		name, _ := fm["name"].(string)
		names = append(names, strings.ToLower(name))
	}

	out := make([]Record, 0, len(rows))
	for _, r := range rows {
		cells, ok := r.([]any)
		if !ok {
			warnMalformed("formatTabular", r)
			continue
		}
		rec := Record{}
		for i, name := range names {
			if i < len(cells) {
				rec[name] = cells[i]
			}
		}
		out = append(out, rec)
	}
	return out
}

func formatRecordUnits(body map[string]any) []Record {
	out := []Record{}

	records, ok := body["records"].(map[string]any)
	if !ok || len(records) == 0 {
		return out
	}

	switch rec := records["record"].(type) {
	case []any:
		for _, item := range rec {
			unit, ok := item.(map[string]any)
			if !ok {
				warnMalformed("formatRecordUnits", item)
				continue
			}
			if r, ok := unwrapRecordUnit(unit); ok {
				out = append(out, r)
			}
		}
	case map[string]any:
		if r, ok := unwrapRecordUnit(rec); ok {
			out = append(out, r)
		}
	}
	return out
}

// unwrapRecordUnit lowers the keys and strips the "$" value wrappers of a
// loadView record unit.
func unwrapRecordUnit(unit map[string]any) (Record, bool) {
	rec := Record{}
	for key, value := range unit {
		wrapper, ok := value.(map[string]any)
		if !ok {
			warnMalformed("unwrapRecordUnit", unit)
			return nil, false
		}
		rec[strings.ToLower(key)] = wrapper["$"]
	}
	return rec, true
}

func formatEntities(body map[string]any) []Record {
	entities, ok := body["entities"].(map[string]any)
	if !ok {
		return []Record{}
	}

	total, _ := entities["total"].(string)
	if total == "0" {
		return []Record{}
	}

	columns, columnsWereList := entityColumns(entities)
	if len(columns) == 0 {
		return []Record{}
	}

	if total == "1" {
		row, ok := entities["entity"].(map[string]any)
		if !ok {
			warnMalformed("formatEntities", entities["entity"])
			return []Record{}
		}
		rec, ok := entityRecord(columns, row)
		if !ok {
			return []Record{}
		}
		return []Record{rec}
	}

	rows, ok := entities["entity"].([]any)
	if !ok {
		warnMalformed("formatEntities", entities["entity"])
		return []Record{}
	}

	if columnsWereList {
		out := make([]Record, 0, len(rows))
		for _, r := range rows {
			row, ok := r.(map[string]any)
			if !ok {
				warnMalformed("formatEntities", r)
				continue
			}
			rec, ok := entityRecord(columns, row)
			if !ok {
				continue
			}
			out = append(out, rec)
		}
		return out
	}

	// Single-column multi-row result: collapse the column into one record
	// holding the list of values.
	values := make([]any, 0, len(rows))
	for _, r := range rows {
		row, ok := r.(map[string]any)
		if !ok {
			warnMalformed("formatEntities", r)
			return []Record{}
		}
		wrapper, ok := row["f0"].(map[string]any)
		if !ok {
			warnMalformed("formatEntities", row)
			return []Record{}
		}
		values = append(values, wrapper["$"])
	}
	return []Record{{strings.ToLower(columns[0]): values}}
}

// entityColumns extracts the ordered column names of an entity response.
// The gateway emits a bare object instead of a one-element array when there
// is a single column; the second return reports which form was seen.
func entityColumns(entities map[string]any) ([]string, bool) {
	metadata, ok := entities["metadata"].(map[string]any)
	if !ok {
		return nil, false
	}
	fields, ok := metadata["fields"].(map[string]any)
	if !ok {
		return nil, false
	}

	switch field := fields["field"].(type) {
	case []any:
		names := make([]string, 0, len(field))
		for _, f := range field {
			fm, ok := f.(map[string]any)
			if !ok {
				continue
			}
			name, _ := fm["name"].(string)
			names = append(names, name)
		}
		return names, true
	case map[string]any:
		name, _ := field["name"].(string)
		return []string{name}, false
	}
	return nil, false
}

// entityRecord maps the positional f0..fN keys of one entity row onto the
// lower-cased column names.
func entityRecord(columns []string, row map[string]any) (Record, bool) {
	rec := Record{}
	for i, column := range columns {
		wrapper, ok := row["f"+strconv.Itoa(i)].(map[string]any)
		if !ok {
			warnMalformed("entityRecord", row)
			return nil, false
		}
		rec[strings.ToLower(column)] = wrapper["$"]
	}
	return rec, true
}

func warnMalformed(funcName string, data any) {
	config.GetLogger().WithFields(logrus.Fields{
		"module":   "sankhya",
		"funcName": funcName,
		"data":     data,
	}).Warn("skipping malformed record in gateway response")
}
