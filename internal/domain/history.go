package domain

import "time"

// HistoryEntry is one version of a section together with the changes it introduced.
type HistoryEntry struct {
	Version   int64         `json:"version"`
	Timestamp time.Time     `json:"timestamp"`
	Actor     Actor         `json:"actor"`
	User      *UserIdentity `json:"user"`
	Changes   []FieldChange `json:"changes"`
}

// VersionComparison is the diff between two arbitrary versions of a section.
type VersionComparison struct {
	Base    FieldSnapshot `json:"base"`
	Target  FieldSnapshot `json:"target"`
	Changes []FieldChange `json:"changes"`
}
