package statesync

import "encoding/json"

// RestoreReport records what a restore found and applied for each watched
// path.
type RestoreReport struct {
	Namespace   string           `json:"namespace"`
	RecordFound bool             `json:"record_found"`
	Corrupt     bool             `json:"corrupt,omitempty"`
	Merged      bool             `json:"merged,omitempty"`
	Applied     int              `json:"applied"`
	Paths       []PathProvenance `json:"paths,omitempty"`
}

// PathProvenance details how one watched path resolved in the persisted record.
type PathProvenance struct {
	Path  string `json:"path"`
	Found bool   `json:"found"`
	Value any    `json:"value,omitempty"`
}

// Restored reports whether any persisted value reached host state.
func (r RestoreReport) Restored() bool {
	return r.Applied > 0
}

// FoundPaths lists the watched paths present in the persisted record.
func (r RestoreReport) FoundPaths() []string {
	var out []string
	for _, p := range r.Paths {
		if p.Found {
			out = append(out, p.Path)
		}
	}
	return out
}

// ToJSON serialises the report for logging or transport helpers.
func (r RestoreReport) ToJSON() ([]byte, error) {
	type alias RestoreReport
	return json.Marshal(alias(r))
}
