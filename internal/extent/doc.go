// Package extent parses and resolves the spatial and temporal parameters of a
// job.
//
// Parameters are stored as typed JSON, never evaluated. A SpatialSpec lists
// tiles directly or as named features that each cover a set of tiles; every
// tile or feature is one spatial extent of the job. A TemporalSpec holds an
// inclusive date range and an optional inclusive day-of-year window.
package extent
