package api

import "datahandler/internal/extent"

// SubmitJobRequest is the JSON body accepted by the daemon's job endpoint.
type SubmitJobRequest struct {
	Site     string              `json:"site"`
	Variable string              `json:"variable"`
	Spatial  extent.SpatialSpec  `json:"spatial"`
	Temporal extent.TemporalSpec `json:"temporal"`
}

// JobRequest converts the wire request.
func (r SubmitJobRequest) JobRequest() JobRequest {
	return JobRequest{Site: r.Site, Variable: r.Variable, Spatial: r.Spatial, Temporal: r.Temporal}
}

// JobResponse wraps a single job.
type JobResponse struct {
	Job JobView `json:"job"`
}

// JobListResponse wraps a job listing.
type JobListResponse struct {
	Jobs []JobView `json:"jobs"`
}

// JobStatusResponse is JobStatus for one id.
type JobStatusResponse struct {
	ID int64 `json:"id"`
	JobStatusResult
}

// CycleView summarizes one scheduling cycle.
type CycleView struct {
	CycleID         string         `json:"cycleId"`
	StartedAt       string         `json:"startedAt"`
	DurationMillis  int64          `json:"durationMillis"`
	QueryBatches    int            `json:"queryBatches"`
	FetchBatches    map[string]int `json:"fetchBatches"`
	ProcessBatches  int            `json:"processBatches"`
	AggregateChunks int            `json:"aggregateChunks"`
	JobsStarted     int            `json:"jobsStarted"`
	JobsCompleted   int            `json:"jobsCompleted"`
	JobsFailed      int            `json:"jobsFailed"`
	Error           string         `json:"error,omitempty"`
}

// DaemonStatus is the daemon's runtime snapshot.
type DaemonStatus struct {
	Running      bool           `json:"running"`
	PID          int            `json:"pid"`
	LockFilePath string         `json:"lockFilePath"`
	StoreBackend string         `json:"storeBackend"`
	QueueBackend string         `json:"queueBackend"`
	Drivers      []string       `json:"drivers"`
	Cycles       int            `json:"cycles"`
	LastCycle    *CycleView     `json:"lastCycle,omitempty"`
	Jobs         map[string]int `json:"jobs"`
}
