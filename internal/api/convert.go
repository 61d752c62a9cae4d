package api

import (
	"time"

	"datahandler/internal/drivers"
	"datahandler/internal/inventory"
)

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}

// FromJob converts a job row to its API representation.
func FromJob(job *inventory.Job) JobView {
	if job == nil {
		return JobView{}
	}
	return JobView{
		ID:        job.ID,
		Site:      job.Site,
		Variable:  job.Variable,
		Driver:    job.Driver,
		Product:   job.Product,
		Spatial:   job.Spatial,
		Temporal:  job.Temporal,
		Status:    string(job.Status),
		CreatedAt: formatTime(job.CreatedAt),
		UpdatedAt: formatTime(job.UpdatedAt),
	}
}

// FromJobs converts a slice of jobs.
func FromJobs(jobs []*inventory.Job) []JobView {
	out := make([]JobView, 0, len(jobs))
	for _, job := range jobs {
		if job == nil {
			continue
		}
		out = append(out, FromJob(job))
	}
	return out
}

// FromAsset converts an asset row.
func FromAsset(asset *inventory.Asset) AssetView {
	if asset == nil {
		return AssetView{}
	}
	return AssetView{
		ID:         asset.ID,
		Driver:     asset.Driver,
		AssetType:  asset.AssetType,
		Tile:       asset.Tile,
		Date:       inventory.FormatDate(asset.Date),
		Sensor:     asset.Sensor,
		Name:       asset.Name,
		Status:     string(asset.Status),
		SchedID:    asset.SchedID,
		RetryCount: asset.RetryCount,
		UpdatedAt:  formatTime(asset.UpdatedAt),
	}
}

// FromAssets converts a slice of assets.
func FromAssets(assets []*inventory.Asset) []AssetView {
	out := make([]AssetView, 0, len(assets))
	for _, asset := range assets {
		if asset == nil {
			continue
		}
		out = append(out, FromAsset(asset))
	}
	return out
}

// FromProduct converts a product row.
func FromProduct(product *inventory.Product) ProductView {
	if product == nil {
		return ProductView{}
	}
	return ProductView{
		ID:        product.ID,
		Driver:    product.Driver,
		Product:   product.Product,
		Tile:      product.Tile,
		Date:      inventory.FormatDate(product.Date),
		Sensor:    product.Sensor,
		Name:      product.Name,
		Status:    string(product.Status),
		SchedID:   product.SchedID,
		UpdatedAt: formatTime(product.UpdatedAt),
	}
}

// FromProducts converts a slice of products.
func FromProducts(products []*inventory.Product) []ProductView {
	out := make([]ProductView, 0, len(products))
	for _, product := range products {
		if product == nil {
			continue
		}
		out = append(out, FromProduct(product))
	}
	return out
}

// FromChunk converts a post-process chunk row.
func FromChunk(chunk *inventory.PostProcessJob) ChunkView {
	if chunk == nil {
		return ChunkView{}
	}
	return ChunkView{
		ID:        chunk.ID,
		JobID:     chunk.JobID,
		Args:      [3]int64(chunk.Args),
		Status:    string(chunk.Status),
		SchedID:   chunk.SchedID,
		UpdatedAt: formatTime(chunk.UpdatedAt),
	}
}

// FromChunks converts a slice of chunks.
func FromChunks(chunks []*inventory.PostProcessJob) []ChunkView {
	out := make([]ChunkView, 0, len(chunks))
	for _, chunk := range chunks {
		if chunk == nil {
			continue
		}
		out = append(out, FromChunk(chunk))
	}
	return out
}

// FromQueryResults converts driver query results.
func FromQueryResults(results []drivers.QueryResult) []QueryItem {
	out := make([]QueryItem, 0, len(results))
	for _, r := range results {
		item := QueryItem{
			Product: r.Product,
			Tile:    r.Tile,
			Date:    inventory.FormatDate(r.Date),
			Sensor:  r.Sensor,
			Assets:  make([]QueryAsset, 0, len(r.Assets)),
		}
		for _, a := range r.Assets {
			item.Assets = append(item.Assets, QueryAsset{
				AssetType: a.AssetType,
				Tile:      a.Tile,
				Date:      inventory.FormatDate(a.Date),
				Sensor:    a.Sensor,
				Name:      a.Name,
			})
		}
		out = append(out, item)
	}
	return out
}

// CountsMap renders status counts with string keys, every status present.
func CountsMap(counts inventory.StatusCounts) map[string]int {
	out := make(map[string]int, len(inventory.AllWorkStatuses()))
	for _, status := range inventory.AllWorkStatuses() {
		out[string(status)] = counts[status]
	}
	return out
}
