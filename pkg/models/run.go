package models

// RunSummary describes a stored clustering run.
type RunSummary struct {
	Threshold      *float64 `json:"threshold,omitempty"`
	ClusterCount   *int     `json:"cluster_count,omitempty"`
	ID             string   `json:"id"`
	Fingerprint    string   `json:"fingerprint"`
	Source         string   `json:"source"`
	Linkage        string   `json:"linkage"`
	Selector       string   `json:"selector"`
	CreatedAt      string   `json:"created_at"`
	Procedures     int      `json:"procedures"`
	Clusters       int      `json:"clusters"`
	CreatedAtEpoch int64    `json:"created_at_epoch"`
}
