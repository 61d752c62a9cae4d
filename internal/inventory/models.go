package inventory

import (
	"fmt"
	"strings"
	"time"
)

// JobStatus represents the lifecycle of a Job.
type JobStatus string

const (
	JobRequested      JobStatus = "requested"
	JobInitializing   JobStatus = "initializing"
	JobInProgress     JobStatus = "in-progress"
	JobPostProcessing JobStatus = "post-processing"
	JobComplete       JobStatus = "complete"
	JobFailed         JobStatus = "failed"
)

var allJobStatuses = []JobStatus{
	JobRequested,
	JobInitializing,
	JobInProgress,
	JobPostProcessing,
	JobComplete,
	JobFailed,
}

// AllJobStatuses returns the ordered list of job statuses.
func AllJobStatuses() []JobStatus {
	out := make([]JobStatus, len(allJobStatuses))
	copy(out, allJobStatuses)
	return out
}

// ParseJobStatus converts a string into a JobStatus.
func ParseJobStatus(value string) (JobStatus, bool) {
	normalized := JobStatus(strings.ToLower(strings.TrimSpace(value)))
	_, ok := jobTransitions[normalized]
	return normalized, ok
}

// WorkStatus is the shared lifecycle of Assets, Products, and PostProcessJob
// chunks.
type WorkStatus string

const (
	StatusRequested  WorkStatus = "requested"
	StatusScheduled  WorkStatus = "scheduled"
	StatusInProgress WorkStatus = "in-progress"
	StatusRetry      WorkStatus = "retry"
	StatusComplete   WorkStatus = "complete"
	StatusFailed     WorkStatus = "failed"
)

var allWorkStatuses = []WorkStatus{
	StatusRequested,
	StatusScheduled,
	StatusInProgress,
	StatusRetry,
	StatusComplete,
	StatusFailed,
}

// AllWorkStatuses returns the ordered list of work statuses.
func AllWorkStatuses() []WorkStatus {
	out := make([]WorkStatus, len(allWorkStatuses))
	copy(out, allWorkStatuses)
	return out
}

// ParseWorkStatus converts a string into a WorkStatus.
func ParseWorkStatus(value string) (WorkStatus, bool) {
	normalized := WorkStatus(strings.ToLower(strings.TrimSpace(value)))
	_, ok := workTransitions[normalized]
	return normalized, ok
}

// ActiveStatuses are the statuses under which a row carries a sched-id.
var ActiveStatuses = []WorkStatus{StatusScheduled, StatusInProgress, StatusRetry}

// PendingStatuses are the statuses counted as outstanding work when deciding
// whether a job is ready to aggregate.
var PendingStatuses = []WorkStatus{StatusRequested, StatusScheduled, StatusInProgress, StatusRetry}

// IsActive reports whether the status carries a sched-id.
func (s WorkStatus) IsActive() bool {
	switch s {
	case StatusScheduled, StatusInProgress, StatusRetry:
		return true
	}
	return false
}

// jobTransitions maps each target job status to the statuses it may be entered from.
var jobTransitions = map[JobStatus][]JobStatus{
	JobRequested:      {JobInitializing},
	JobInitializing:   {JobRequested},
	JobInProgress:     {JobInitializing},
	JobPostProcessing: {JobInProgress},
	JobComplete:       {JobPostProcessing},
	JobFailed:         {JobInitializing, JobInProgress, JobPostProcessing},
}

// workTransitions maps each target asset/product status to its legal sources.
// Re-requesting is legal from any status; the override rule is enforced by callers.
var workTransitions = map[WorkStatus][]WorkStatus{
	StatusRequested:  {StatusRequested, StatusScheduled, StatusInProgress, StatusRetry, StatusComplete, StatusFailed},
	StatusScheduled:  {StatusRequested},
	StatusInProgress: {StatusScheduled, StatusRetry},
	StatusRetry:      {StatusScheduled, StatusInProgress},
	StatusComplete:   {StatusScheduled, StatusInProgress},
	StatusFailed:     {StatusScheduled, StatusInProgress, StatusRetry},
}

// chunkTransitions is the PostProcessJob lifecycle; chunks never retry.
var chunkTransitions = map[WorkStatus][]WorkStatus{
	StatusScheduled:  {StatusRequested},
	StatusInProgress: {StatusScheduled},
	StatusComplete:   {StatusScheduled, StatusInProgress},
	StatusFailed:     {StatusScheduled, StatusInProgress},
}

// JobTransitionSources returns the statuses a job may move to target from.
func JobTransitionSources(target JobStatus) []JobStatus {
	return append([]JobStatus(nil), jobTransitions[target]...)
}

// WorkTransitionSources returns the statuses an asset or product may move to target from.
func WorkTransitionSources(target WorkStatus) []WorkStatus {
	return append([]WorkStatus(nil), workTransitions[target]...)
}

// CanTransitionJob reports whether a job may move from one status to another.
func CanTransitionJob(from, to JobStatus) bool {
	for _, s := range jobTransitions[to] {
		if s == from {
			return true
		}
	}
	return false
}

// CanTransitionWork reports whether an asset or product may move between statuses.
func CanTransitionWork(from, to WorkStatus) bool {
	for _, s := range workTransitions[to] {
		if s == from {
			return true
		}
	}
	return false
}

// CanTransitionChunk reports whether a post-process chunk may move between statuses.
func CanTransitionChunk(from, to WorkStatus) bool {
	for _, s := range chunkTransitions[to] {
		if s == from {
			return true
		}
	}
	return false
}

// Job is one end-user request spanning all four phases.
type Job struct {
	ID        int64
	Site      string
	Variable  string
	Driver    string
	Product   string
	Spatial   string
	Temporal  string
	Status    JobStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewJob describes a job to insert.
type NewJob struct {
	Site     string
	Variable string
	Driver   string
	Product  string
	Spatial  string
	Temporal string
}

// Asset is one fetchable remote input file.
type Asset struct {
	ID         int64
	Driver     string
	AssetType  string
	Tile       string
	Date       time.Time
	Sensor     string
	Name       string
	Status     WorkStatus
	SchedID    string
	RetryCount int
	UpdatedAt  time.Time
}

// AssetKey is the natural key of an Asset.
type AssetKey struct {
	Driver    string
	AssetType string
	Tile      string
	Date      time.Time
}

func (k AssetKey) String() string {
	return fmt.Sprintf("%s/%s/%s/%s", k.Driver, k.AssetType, k.Tile, FormatDate(k.Date))
}

// Product is one derived output computed from one or more Assets.
type Product struct {
	ID        int64
	Driver    string
	Product   string
	Tile      string
	Date      time.Time
	Sensor    string
	Name      string
	Status    WorkStatus
	SchedID   string
	UpdatedAt time.Time
}

// ProductKey is the natural key of a Product.
type ProductKey struct {
	Driver  string
	Product string
	Tile    string
	Date    time.Time
}

func (k ProductKey) String() string {
	return fmt.Sprintf("%s/%s/%s/%s", k.Driver, k.Product, k.Tile, FormatDate(k.Date))
}

// ChunkArgs identifies one spatial chunk of a job: [job, start, end).
type ChunkArgs [3]int64

// Start returns the first extent index covered by the chunk.
func (a ChunkArgs) Start() int64 { return a[1] }

// End returns the exclusive upper extent index covered by the chunk.
func (a ChunkArgs) End() int64 { return a[2] }

// PostProcessJob is one chunk of a job's export-and-aggregate step.
type PostProcessJob struct {
	ID        int64
	JobID     int64
	Args      ChunkArgs
	Status    WorkStatus
	SchedID   string
	UpdatedAt time.Time
}

// Registration records the outcome of an idempotent upsert.
type Registration struct {
	ID        int64
	Created   bool
	Requested bool
}

// ProductFilter selects products for status aggregation.
type ProductFilter struct {
	Driver   string
	Products []string
	Tiles    []string
	From     time.Time
	To       time.Time
	DayFrom  int
	DayTo    int
}

// StatusCounts is a per-status tally where every known status key is present.
type StatusCounts map[WorkStatus]int

// NewStatusCounts returns a tally with every work status set to zero.
func NewStatusCounts() StatusCounts {
	counts := make(StatusCounts, len(allWorkStatuses))
	for _, s := range allWorkStatuses {
		counts[s] = 0
	}
	return counts
}

// Outstanding sums the counts of work that has not reached a terminal status.
func (c StatusCounts) Outstanding() int {
	total := 0
	for _, s := range PendingStatuses {
		total += c[s]
	}
	return total
}

// Total sums every count.
func (c StatusCounts) Total() int {
	total := 0
	for _, n := range c {
		total += n
	}
	return total
}

const dateLayout = "2006-01-02"

// FormatDate renders a date the way it is stored.
func FormatDate(t time.Time) string {
	return t.UTC().Format(dateLayout)
}

// ParseDate parses a stored date.
func ParseDate(value string) (time.Time, error) {
	return time.Parse(dateLayout, strings.TrimSpace(value))
}
