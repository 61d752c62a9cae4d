package scheduler_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"datahandler/internal/api"
	"datahandler/internal/batchqueue"
	"datahandler/internal/config"
	"datahandler/internal/drivers"
	"datahandler/internal/extent"
	"datahandler/internal/inventory"
	"datahandler/internal/logging"
	"datahandler/internal/scheduler"
	"datahandler/internal/testsupport"
)

type submission struct {
	kind      batchqueue.Kind
	args      [][]int64
	chunkSize int
	chain     bool
}

// fakeQueue records submissions; every batch stays alive until killed.
type fakeQueue struct {
	mu          sync.Mutex
	submissions []submission
	alive       map[string]bool
	next        int
	err         error
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{alive: make(map[string]bool)}
}

func (q *fakeQueue) Submit(_ context.Context, kind batchqueue.Kind, args [][]int64, chunkSize int, chain bool) ([]batchqueue.Outcome, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return nil, q.err
	}
	q.submissions = append(q.submissions, submission{kind: kind, args: args, chunkSize: chunkSize, chain: chain})
	var outcomes []batchqueue.Outcome
	for _, group := range batchqueue.Partition(args, chunkSize) {
		q.next++
		outcome := batchqueue.Outcome{BatchID: fmt.Sprintf("batch-%d", q.next)}
		for i, a := range group {
			outcome.Tasks = append(outcome.Tasks, batchqueue.TaskRef{ID: fmt.Sprintf("%s-%d", outcome.BatchID, i), Args: a})
		}
		q.alive[outcome.BatchID] = true
		outcomes = append(outcomes, outcome)
	}
	return outcomes, nil
}

func (q *fakeQueue) IsAlive(_ context.Context, batchID string) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.alive[batchID], nil
}

func (q *fakeQueue) killAll() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for id := range q.alive {
		q.alive[id] = false
	}
}

func (q *fakeQueue) count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.submissions)
}

type harness struct {
	cfg   *config.Config
	store *inventory.Store
	svc   *api.Service
	queue *fakeQueue
	sched *scheduler.Scheduler
}

func newHarness(t *testing.T, opts ...testsupport.ConfigOption) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	store := testsupport.MustOpenStore(t, cfg)
	registry, err := drivers.NewRegistry(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	svc := api.NewService(cfg, store, registry, logging.NewNop())
	queue := newFakeQueue()
	return &harness{
		cfg:   cfg,
		store: store,
		svc:   svc,
		queue: queue,
		sched: scheduler.New(cfg, svc, queue, logging.NewNop()),
	}
}

func (h *harness) registerAssets(t *testing.T, n int) []int64 {
	t.Helper()
	ids := make([]int64, 0, n)
	for i := range n {
		ids = append(ids, testsupport.MustRegisterAsset(t, h.store, "modis", "MOD09Q1", fmt.Sprintf("T%03d", i), "2020-01-01"))
	}
	return ids
}

func (h *harness) assetStatus(t *testing.T, id int64) *inventory.Asset {
	t.Helper()
	asset, err := h.store.GetAsset(context.Background(), id)
	if err != nil || asset == nil {
		t.Fatalf("GetAsset(%d): %v %v", id, asset, err)
	}
	return asset
}

func TestScheduleQueryClaimsRequestedJobs(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	var ids []int64
	for range 3 {
		job, err := h.svc.SubmitJob(ctx, api.JobRequest{Site: "S", Variable: "ndvi", Spatial: extent.Tiles("T1"), Temporal: extent.TemporalSpec{Dates: "2020"}})
		if err != nil {
			t.Fatalf("SubmitJob: %v", err)
		}
		ids = append(ids, job.ID)
	}

	outcomes, err := h.sched.ScheduleQuery(ctx)
	if err != nil {
		t.Fatalf("ScheduleQuery: %v", err)
	}
	if len(outcomes) != 3 {
		t.Fatalf("expected one batch per job, got %d", len(outcomes))
	}
	for _, outcome := range outcomes {
		if len(outcome.Tasks) != 1 {
			t.Fatalf("expected batch size 1, got %d", len(outcome.Tasks))
		}
	}
	for _, id := range ids {
		job, _ := h.store.GetJob(ctx, id)
		if job.Status != inventory.JobInitializing {
			t.Fatalf("job %d: expected initializing, got %s", id, job.Status)
		}
	}

	again, err := h.sched.ScheduleQuery(ctx)
	if err != nil {
		t.Fatalf("ScheduleQuery repeat: %v", err)
	}
	if len(again) != 0 || h.queue.count() != 1 {
		t.Fatalf("expected no further submissions, got %d (total %d)", len(again), h.queue.count())
	}
}

func TestScheduleQuerySubmissionFailureLeavesJobsRequested(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	job, err := h.svc.SubmitJob(ctx, api.JobRequest{Site: "S", Variable: "ndvi", Spatial: extent.Tiles("T1"), Temporal: extent.TemporalSpec{Dates: "2020"}})
	if err != nil {
		t.Fatalf("SubmitJob: %v", err)
	}
	h.queue.err = errors.New("queue down")
	if _, err := h.sched.ScheduleQuery(ctx); err == nil {
		t.Fatal("expected submission error")
	}
	got, _ := h.store.GetJob(ctx, job.ID)
	if got.Status != inventory.JobRequested {
		t.Fatalf("expected job to stay requested, got %s", got.Status)
	}
}

func TestScheduleFetchBoundsClaimAndSingleFlight(t *testing.T) {
	h := newHarness(t, testsupport.WithScheduler(func(s *config.Scheduler) {
		s.FetchBatches = 2
		s.FetchBatchSize = 3
	}))
	ctx := context.Background()
	ids := h.registerAssets(t, 10)

	result, err := h.sched.ScheduleFetch(ctx, "modis")
	if err != nil {
		t.Fatalf("ScheduleFetch: %v", err)
	}
	if result.Claimed() != 6 || len(result.Outcomes) != 2 {
		t.Fatalf("expected 6 assets in 2 batches, got %d in %d", result.Claimed(), len(result.Outcomes))
	}
	if !h.queue.submissions[0].chain || h.queue.submissions[0].kind != batchqueue.KindFetch {
		t.Fatalf("expected chained fetch submission, got %+v", h.queue.submissions[0])
	}
	for i, id := range ids {
		asset := h.assetStatus(t, id)
		if i < 6 {
			if asset.Status != inventory.StatusScheduled || asset.SchedID == "" {
				t.Fatalf("asset %d: expected scheduled with sched id, got %s %q", id, asset.Status, asset.SchedID)
			}
		} else if asset.Status != inventory.StatusRequested {
			t.Fatalf("asset %d: expected requested, got %s", id, asset.Status)
		}
	}
	if h.assetStatus(t, ids[0]).SchedID == h.assetStatus(t, ids[3]).SchedID {
		t.Fatal("expected assets in different batches to carry different sched ids")
	}

	second, err := h.sched.ScheduleFetch(ctx, "modis")
	if err != nil {
		t.Fatalf("ScheduleFetch repeat: %v", err)
	}
	if !second.Busy || second.Claimed() != 0 {
		t.Fatalf("expected busy driver to claim nothing, got %+v", second)
	}
	if h.queue.count() != 1 {
		t.Fatalf("expected a single submission, got %d", h.queue.count())
	}
}

func TestScheduleFetchIsPerDriver(t *testing.T) {
	h := newHarness(t, testsupport.WithDriver("landsat", map[string][]string{"ndvi": {"LC08"}}))
	ctx := context.Background()
	h.registerAssets(t, 2)
	landsat := testsupport.MustRegisterAsset(t, h.store, "landsat", "LC08", "T1", "2020-01-01")

	if _, err := h.sched.ScheduleFetch(ctx, "modis"); err != nil {
		t.Fatalf("ScheduleFetch modis: %v", err)
	}
	result, err := h.sched.ScheduleFetch(ctx, "landsat")
	if err != nil {
		t.Fatalf("ScheduleFetch landsat: %v", err)
	}
	if result.Busy || result.Claimed() != 1 {
		t.Fatalf("expected landsat to be claimed independently, got %+v", result)
	}
	if h.assetStatus(t, landsat).Status != inventory.StatusScheduled {
		t.Fatal("expected landsat asset scheduled")
	}
}

func TestScheduleFetchRetriesThenGivesUp(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.registerAssets(t, 1)[0]

	for attempt := 1; attempt <= 3; attempt++ {
		if _, err := h.sched.ScheduleFetch(ctx, "modis"); err != nil {
			t.Fatalf("ScheduleFetch: %v", err)
		}
		h.queue.killAll()
		result, err := h.sched.ScheduleFetch(ctx, "modis")
		if err != nil {
			t.Fatalf("ScheduleFetch cleanup: %v", err)
		}
		if len(result.Retried) != 1 || result.Retried[0] != id {
			t.Fatalf("attempt %d: expected asset retried, got %+v", attempt, result)
		}
		asset := h.assetStatus(t, id)
		if asset.RetryCount != attempt || asset.Status != inventory.StatusScheduled {
			t.Fatalf("attempt %d: expected rescheduled with %d retries, got %s/%d", attempt, attempt, asset.Status, asset.RetryCount)
		}
	}

	h.queue.killAll()
	result, err := h.sched.ScheduleFetch(ctx, "modis")
	if err != nil {
		t.Fatalf("ScheduleFetch give up: %v", err)
	}
	if len(result.GaveUp) != 1 || result.Claimed() != 0 {
		t.Fatalf("expected give-up with nothing claimed, got %+v", result)
	}
	asset := h.assetStatus(t, id)
	if asset.Status != inventory.StatusFailed || asset.SchedID != "" {
		t.Fatalf("expected failed without sched id, got %s %q", asset.Status, asset.SchedID)
	}

	submissions := h.queue.count()
	result, err = h.sched.ScheduleFetch(ctx, "modis")
	if err != nil {
		t.Fatalf("ScheduleFetch after give up: %v", err)
	}
	if len(result.Retried)+len(result.GaveUp)+result.Claimed() != 0 || h.queue.count() != submissions {
		t.Fatalf("expected failed asset to be ignored, got %+v", result)
	}
}

func TestScheduleFetchPlainRerequestKeepsSpentBudget(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.registerAssets(t, 1)[0]

	for range 4 {
		if _, err := h.sched.ScheduleFetch(ctx, "modis"); err != nil {
			t.Fatalf("ScheduleFetch: %v", err)
		}
		h.queue.killAll()
	}
	if _, err := h.sched.ScheduleFetch(ctx, "modis"); err != nil {
		t.Fatalf("ScheduleFetch: %v", err)
	}
	asset := h.assetStatus(t, id)
	if asset.Status != inventory.StatusFailed {
		t.Fatalf("expected asset given up, got %s/%d", asset.Status, asset.RetryCount)
	}

	key := inventory.Asset{Driver: "modis", AssetType: "MOD09Q1", Tile: asset.Tile, Date: asset.Date}
	if _, err := h.store.RegisterAsset(ctx, key, false); err != nil {
		t.Fatalf("RegisterAsset: %v", err)
	}
	if _, err := h.sched.ScheduleFetch(ctx, "modis"); err != nil {
		t.Fatalf("ScheduleFetch after re-request: %v", err)
	}
	h.queue.killAll()
	result, err := h.sched.ScheduleFetch(ctx, "modis")
	if err != nil {
		t.Fatalf("ScheduleFetch cleanup: %v", err)
	}
	if len(result.GaveUp) != 1 || len(result.Retried) != 0 {
		t.Fatalf("expected immediate give-up on a spent budget, got %+v", result)
	}

	if _, err := h.store.RegisterAsset(ctx, key, true); err != nil {
		t.Fatalf("forced RegisterAsset: %v", err)
	}
	if _, err := h.sched.ScheduleFetch(ctx, "modis"); err != nil {
		t.Fatalf("ScheduleFetch after force: %v", err)
	}
	h.queue.killAll()
	result, err = h.sched.ScheduleFetch(ctx, "modis")
	if err != nil {
		t.Fatalf("ScheduleFetch cleanup after force: %v", err)
	}
	if len(result.Retried) != 1 {
		t.Fatalf("expected forced request to restore the retry budget, got %+v", result)
	}
}

func TestScheduleProcessRequiresCompleteDependencies(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	done := testsupport.MustRegisterAsset(t, h.store, "modis", "MOD09Q1", "T1", "2020-01-01")
	running := testsupport.MustRegisterAsset(t, h.store, "modis", "MOD09Q1", "T1", "2020-01-02")
	testsupport.MustSetAssetStatus(t, h.store, done, "b-1", inventory.StatusComplete)
	testsupport.MustSetAssetStatus(t, h.store, running, "b-2", inventory.StatusInProgress)

	ready := testsupport.MustRegisterProduct(t, h.store, "modis", "ndvi", "T1", "2020-01-01", done)
	blocked := testsupport.MustRegisterProduct(t, h.store, "modis", "ndvi", "T1", "2020-01-02", done, running)
	free := testsupport.MustRegisterProduct(t, h.store, "modis", "ndvi", "T1", "2020-01-03")

	outcomes, err := h.sched.ScheduleProcess(ctx)
	if err != nil {
		t.Fatalf("ScheduleProcess: %v", err)
	}
	claimed := map[int64]bool{}
	for _, o := range outcomes {
		for _, task := range o.Tasks {
			claimed[task.Args[0]] = true
		}
	}
	if !claimed[ready] || !claimed[free] || claimed[blocked] {
		t.Fatalf("unexpected claim set %v", claimed)
	}
	if last := h.queue.submissions[len(h.queue.submissions)-1]; last.chain || last.chunkSize != 5 {
		t.Fatalf("expected unchained batches of 5, got %+v", last)
	}
	product, _ := h.store.GetProduct(ctx, blocked)
	if product.Status != inventory.StatusRequested {
		t.Fatalf("expected blocked product to stay requested, got %s", product.Status)
	}

	again, err := h.sched.ScheduleProcess(ctx)
	if err != nil {
		t.Fatalf("ScheduleProcess repeat: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("expected no further claims, got %d", len(again))
	}
}

func TestScheduleProcessBatchesOfFive(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	for day := 1; day <= 12; day++ {
		testsupport.MustRegisterProduct(t, h.store, "modis", "ndvi", "T1", fmt.Sprintf("2020-01-%02d", day))
	}
	outcomes, err := h.sched.ScheduleProcess(ctx)
	if err != nil {
		t.Fatalf("ScheduleProcess: %v", err)
	}
	if len(outcomes) != 3 || len(outcomes[0].Tasks) != 5 || len(outcomes[2].Tasks) != 2 {
		t.Fatalf("unexpected batching: %d batches", len(outcomes))
	}
}

func TestChunkArgs(t *testing.T) {
	cases := []struct {
		n      int
		chunks int
		last   inventory.ChunkArgs
	}{
		{n: 20, chunks: 2, last: inventory.ChunkArgs{7, 10, 20}},
		{n: 12, chunks: 1, last: inventory.ChunkArgs{7, 0, 12}},
		{n: 15, chunks: 1, last: inventory.ChunkArgs{7, 0, 15}},
		{n: 16, chunks: 2, last: inventory.ChunkArgs{7, 10, 16}},
		{n: 1, chunks: 1, last: inventory.ChunkArgs{7, 0, 1}},
		{n: 0, chunks: 0},
	}
	for _, tc := range cases {
		chunks := scheduler.ChunkArgs(7, tc.n, 10, 15)
		if len(chunks) != tc.chunks {
			t.Fatalf("n=%d: expected %d chunks, got %d", tc.n, tc.chunks, len(chunks))
		}
		if tc.chunks > 0 && chunks[len(chunks)-1] != tc.last {
			t.Fatalf("n=%d: expected last chunk %v, got %v", tc.n, tc.last, chunks[len(chunks)-1])
		}
	}
}

// inProgressJob submits a job over n tile extents and advances it to in-progress.
func (h *harness) inProgressJob(t *testing.T, n int) *inventory.Job {
	t.Helper()
	ctx := context.Background()
	tiles := make([]string, n)
	for i := range tiles {
		tiles[i] = fmt.Sprintf("h%02dv%02d", i, i)
	}
	job, err := h.svc.SubmitJob(ctx, api.JobRequest{Site: "S", Variable: "ndvi", Spatial: extent.Tiles(tiles...), Temporal: extent.TemporalSpec{Dates: "2020-01-01"}})
	if err != nil {
		t.Fatalf("SubmitJob: %v", err)
	}
	for _, to := range []inventory.JobStatus{inventory.JobInitializing, inventory.JobInProgress} {
		if err := h.store.SetJobStatus(ctx, job.ID, to); err != nil {
			t.Fatalf("SetJobStatus(%s): %v", to, err)
		}
	}
	return job
}

func TestAggregateChunksByExtentCount(t *testing.T) {
	for _, tc := range []struct{ n, chunks int }{{20, 2}, {12, 1}} {
		t.Run(fmt.Sprintf("n=%d", tc.n), func(t *testing.T) {
			h := newHarness(t)
			ctx := context.Background()
			job := h.inProgressJob(t, tc.n)

			result, err := h.sched.ScheduleExportAndAggregate(ctx)
			if err != nil {
				t.Fatalf("ScheduleExportAndAggregate: %v", err)
			}
			if len(result.Outcomes) != tc.chunks || len(result.Started) != 1 {
				t.Fatalf("expected %d chunk batches, got %+v", tc.chunks, result)
			}
			chunks, err := h.store.ListChunks(ctx, job.ID)
			if err != nil {
				t.Fatalf("ListChunks: %v", err)
			}
			if len(chunks) != tc.chunks {
				t.Fatalf("expected %d chunks, got %d", tc.chunks, len(chunks))
			}
			for _, chunk := range chunks {
				if chunk.Status != inventory.StatusScheduled || chunk.SchedID == "" {
					t.Fatalf("expected scheduled chunk with sched id, got %+v", chunk)
				}
			}
			got, _ := h.store.GetJob(ctx, job.ID)
			if got.Status != inventory.JobPostProcessing {
				t.Fatalf("expected post-processing, got %s", got.Status)
			}

			again, err := h.sched.ScheduleExportAndAggregate(ctx)
			if err != nil {
				t.Fatalf("repeat: %v", err)
			}
			if len(again.Outcomes)+len(again.Completed)+len(again.Failed) != 0 {
				t.Fatalf("expected repeat to do nothing while chunks run, got %+v", again)
			}
		})
	}
}

func TestAggregateWaitsForOutstandingProducts(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	job := h.inProgressJob(t, 1)
	testsupport.MustRegisterProduct(t, h.store, "modis", "ndvi", "h00v00", "2020-01-01")

	result, err := h.sched.ScheduleExportAndAggregate(ctx)
	if err != nil {
		t.Fatalf("ScheduleExportAndAggregate: %v", err)
	}
	if len(result.Started) != 0 {
		t.Fatalf("expected job with requested products to wait, got %+v", result)
	}
	got, _ := h.store.GetJob(ctx, job.ID)
	if got.Status != inventory.JobInProgress {
		t.Fatalf("expected in-progress, got %s", got.Status)
	}
}

func TestAggregateCompletionFollowsChunks(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	job := h.inProgressJob(t, 20)
	if _, err := h.sched.ScheduleExportAndAggregate(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	chunks, _ := h.store.ListChunks(ctx, job.ID)

	if err := h.store.SetChunkStatus(ctx, chunks[0].ID, inventory.StatusComplete); err != nil {
		t.Fatalf("SetChunkStatus: %v", err)
	}
	result, err := h.sched.ScheduleExportAndAggregate(ctx)
	if err != nil {
		t.Fatalf("partial: %v", err)
	}
	if len(result.Completed) != 0 {
		t.Fatalf("expected job to wait for remaining chunk, got %+v", result)
	}

	if err := h.store.SetChunkStatus(ctx, chunks[1].ID, inventory.StatusComplete); err != nil {
		t.Fatalf("SetChunkStatus: %v", err)
	}
	result, err = h.sched.ScheduleExportAndAggregate(ctx)
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	if len(result.Completed) != 1 || result.Completed[0] != job.ID {
		t.Fatalf("expected job complete, got %+v", result)
	}
	got, _ := h.store.GetJob(ctx, job.ID)
	if got.Status != inventory.JobComplete {
		t.Fatalf("expected complete, got %s", got.Status)
	}
}

func TestAggregateDeadChunkFailsJob(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	job := h.inProgressJob(t, 20)
	if _, err := h.sched.ScheduleExportAndAggregate(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	h.queue.killAll()

	result, err := h.sched.ScheduleExportAndAggregate(ctx)
	if err != nil {
		t.Fatalf("ScheduleExportAndAggregate: %v", err)
	}
	if len(result.Failed) != 1 {
		t.Fatalf("expected job failed, got %+v", result)
	}
	chunks, _ := h.store.ListChunks(ctx, job.ID)
	if chunks[0].Status != inventory.StatusFailed {
		t.Fatalf("expected first chunk failed, got %s", chunks[0].Status)
	}
	if chunks[1].Status != inventory.StatusScheduled {
		t.Fatalf("expected scan to stop at the first dead chunk, got %s", chunks[1].Status)
	}
	got, _ := h.store.GetJob(ctx, job.ID)
	if got.Status != inventory.JobFailed {
		t.Fatalf("expected failed, got %s", got.Status)
	}
}

func TestRunCycleIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if _, err := h.svc.SubmitJob(ctx, api.JobRequest{Site: "S", Variable: "ndvi", Spatial: extent.Tiles("T1"), Temporal: extent.TemporalSpec{Dates: "2020-01-01"}}); err != nil {
		t.Fatalf("SubmitJob: %v", err)
	}
	h.registerAssets(t, 3)
	testsupport.MustRegisterProduct(t, h.store, "modis", "ndvi", "T9", "2020-01-01")

	first, err := h.sched.RunCycle(ctx)
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if first.Idle() {
		t.Fatal("expected first cycle to submit work")
	}
	submissions := h.queue.count()

	second, err := h.sched.RunCycle(ctx)
	if err != nil {
		t.Fatalf("RunCycle repeat: %v", err)
	}
	if !second.Idle() {
		t.Fatalf("expected second cycle idle, got %+v", second)
	}
	if h.queue.count() != submissions {
		t.Fatalf("expected no duplicate submissions, got %d then %d", submissions, h.queue.count())
	}

	empty := newHarness(t)
	summary, err := empty.sched.RunCycle(ctx)
	if err != nil || !summary.Idle() {
		t.Fatalf("expected empty store to run cleanly, got %+v %v", summary, err)
	}
}
