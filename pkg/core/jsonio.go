package core

import (
	"encoding/json"
	"io"
)

// MarshalReport pretty-prints a report as JSON for humans or pipelines.
func MarshalReport(w io.Writer, r TrustReport) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// UnmarshalReport decodes report JSON, useful for ingestion tests.
func UnmarshalReport(r io.Reader) (TrustReport, error) {
	var tr TrustReport
	if err := json.NewDecoder(r).Decode(&tr); err != nil {
		return TrustReport{}, err
	}
	return tr, nil
}
