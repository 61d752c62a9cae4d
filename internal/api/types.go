package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// StatusDoesNotExist is the JobStatus reported for an unknown job id.
const StatusDoesNotExist = "does not exist"

// JobStatusResult is the answer to JobStatus.
type JobStatusResult struct {
	Status string         `json:"status"`
	Detail map[string]int `json:"detail"`
}

// JobView describes a job row.
type JobView struct {
	ID        int64  `json:"id"`
	Site      string `json:"site"`
	Variable  string `json:"variable"`
	Driver    string `json:"driver"`
	Product   string `json:"product"`
	Spatial   string `json:"spatial"`
	Temporal  string `json:"temporal"`
	Status    string `json:"status"`
	CreatedAt string `json:"createdAt,omitempty"`
	UpdatedAt string `json:"updatedAt,omitempty"`
}

// AssetView describes an asset row.
type AssetView struct {
	ID         int64  `json:"id"`
	Driver     string `json:"driver"`
	AssetType  string `json:"assetType"`
	Tile       string `json:"tile"`
	Date       string `json:"date"`
	Sensor     string `json:"sensor,omitempty"`
	Name       string `json:"name,omitempty"`
	Status     string `json:"status"`
	SchedID    string `json:"schedId,omitempty"`
	RetryCount int    `json:"retryCount"`
	UpdatedAt  string `json:"updatedAt,omitempty"`
}

// ProductView describes a product row.
type ProductView struct {
	ID        int64  `json:"id"`
	Driver    string `json:"driver"`
	Product   string `json:"product"`
	Tile      string `json:"tile"`
	Date      string `json:"date"`
	Sensor    string `json:"sensor,omitempty"`
	Name      string `json:"name,omitempty"`
	Status    string `json:"status"`
	SchedID   string `json:"schedId,omitempty"`
	UpdatedAt string `json:"updatedAt,omitempty"`
}

// ChunkView describes a post-process chunk row.
type ChunkView struct {
	ID        int64    `json:"id"`
	JobID     int64    `json:"jobId"`
	Args      [3]int64 `json:"args"`
	Status    string   `json:"status"`
	SchedID   string   `json:"schedId,omitempty"`
	UpdatedAt string   `json:"updatedAt,omitempty"`
}

// QueryItem is one (product, tile, date) reported by a driver with its assets.
type QueryItem struct {
	Product string       `json:"product"`
	Tile    string       `json:"tile"`
	Date    string       `json:"date"`
	Sensor  string       `json:"sensor,omitempty"`
	Assets  []QueryAsset `json:"assets"`
}

// QueryAsset is one remote asset descriptor.
type QueryAsset struct {
	AssetType string `json:"assetType"`
	Tile      string `json:"tile"`
	Date      string `json:"date"`
	Sensor    string `json:"sensor,omitempty"`
	Name      string `json:"name,omitempty"`
}
