package scheduler_test

import (
	"context"
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

// peers opens two independent stores on the same inventory and builds one
// scheduler over each, both submitting to a shared queue.
func peers(t *testing.T, opts ...testsupport.ConfigOption) (*config.Config, [2]*scheduler.Scheduler, [2]*inventory.Store, *fakeQueue) {
	t.Helper()
	opts = append(opts, testsupport.WithScheduler(func(s *config.Scheduler) {
		s.FetchBatches = 2
		s.FetchBatchSize = 10
	}))
	cfg := testsupport.NewConfig(t, opts...)
	queue := newFakeQueue()
	var (
		scheds [2]*scheduler.Scheduler
		stores [2]*inventory.Store
	)
	for i := range scheds {
		stores[i] = testsupport.MustOpenStore(t, cfg)
		registry, err := drivers.NewRegistry(cfg, logging.NewNop())
		if err != nil {
			t.Fatalf("NewRegistry: %v", err)
		}
		svc := api.NewService(cfg, stores[i], registry, logging.NewNop())
		scheds[i] = scheduler.New(cfg, svc, queue, logging.NewNop())
	}
	return cfg, scheds, stores, queue
}

// race runs fn for both schedulers at once and fails on any error.
func race(t *testing.T, scheds [2]*scheduler.Scheduler, fn func(*scheduler.Scheduler) error) {
	t.Helper()
	var wg sync.WaitGroup
	errs := make(chan error, len(scheds))
	for _, s := range scheds {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- fn(s)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent phase: %v", err)
		}
	}
}

// submittedOnce returns every task argument submitted for kind and fails if
// any appears in more than one task.
func submittedOnce(t *testing.T, q *fakeQueue, kind batchqueue.Kind) map[string]bool {
	t.Helper()
	q.mu.Lock()
	defer q.mu.Unlock()
	seen := map[string]bool{}
	for _, sub := range q.submissions {
		if sub.kind != kind {
			continue
		}
		for _, args := range sub.args {
			key := fmt.Sprint(args)
			if seen[key] {
				t.Fatalf("%s task %s submitted twice", kind, key)
			}
			seen[key] = true
		}
	}
	return seen
}

func exerciseConcurrentClaims(t *testing.T, opts ...testsupport.ConfigOption) {
	_, scheds, stores, queue := peers(t, opts...)
	ctx := context.Background()
	store := stores[0]

	const assets = 60
	for i := range assets {
		testsupport.MustRegisterAsset(t, store, "modis", "MOD09Q1", fmt.Sprintf("T%03d", i), "2020-01-01")
	}
	for round := 0; ; round++ {
		if round > assets {
			t.Fatal("fetch claims never drained")
		}
		before := len(submittedOnce(t, queue, batchqueue.KindFetch))
		race(t, scheds, func(s *scheduler.Scheduler) error {
			_, err := s.ScheduleFetch(ctx, "modis")
			return err
		})
		claimed := submittedOnce(t, queue, batchqueue.KindFetch)
		if len(claimed) == before {
			break
		}
		// Finish the round's batches so the next round is not single-flighted.
		active, err := store.ListAssets(ctx, inventory.AssetQuery{Driver: "modis", Statuses: []inventory.WorkStatus{inventory.StatusScheduled}})
		if err != nil {
			t.Fatalf("ListAssets: %v", err)
		}
		for _, asset := range active {
			for _, to := range []inventory.WorkStatus{inventory.StatusInProgress, inventory.StatusComplete} {
				if err := store.SetAssetStatus(ctx, asset.ID, to); err != nil {
					t.Fatalf("SetAssetStatus(%d, %s): %v", asset.ID, to, err)
				}
			}
		}
	}
	if got := len(submittedOnce(t, queue, batchqueue.KindFetch)); got != assets {
		t.Fatalf("expected every asset fetched exactly once, got %d of %d", got, assets)
	}

	const products = 20
	for day := 1; day <= products; day++ {
		testsupport.MustRegisterProduct(t, store, "modis", "ndvi", "T000", fmt.Sprintf("2020-02-%02d", day))
	}
	race(t, scheds, func(s *scheduler.Scheduler) error {
		_, err := s.ScheduleProcess(ctx)
		return err
	})
	if got := len(submittedOnce(t, queue, batchqueue.KindProcess)); got != products {
		t.Fatalf("expected every product processed exactly once, got %d of %d", got, products)
	}

	const jobs = 10
	var jobIDs []int64
	for i := range jobs {
		job, err := store.CreateJob(ctx, inventory.NewJob{
			Site:     fmt.Sprintf("site-%d", i),
			Variable: "ndvi",
			Driver:   "modis",
			Product:  "ndvi",
			Spatial:  extent.Tiles("A", "B", "C", "D", "E", "F", "G", "H", "I", "J", "K", "L", "M", "N", "O", "P", "Q", "R", "S", "T").Encode(),
			Temporal: extent.TemporalSpec{Dates: "2021-01-01"}.Encode(),
		})
		if err != nil {
			t.Fatalf("CreateJob: %v", err)
		}
		jobIDs = append(jobIDs, job.ID)
	}
	race(t, scheds, func(s *scheduler.Scheduler) error {
		_, err := s.ScheduleQuery(ctx)
		return err
	})
	if got := len(submittedOnce(t, queue, batchqueue.KindQuery)); got != jobs {
		t.Fatalf("expected every job queried exactly once, got %d of %d", got, jobs)
	}

	for _, id := range jobIDs {
		if err := store.SetJobStatus(ctx, id, inventory.JobInProgress); err != nil {
			t.Fatalf("SetJobStatus: %v", err)
		}
	}
	race(t, scheds, func(s *scheduler.Scheduler) error {
		_, err := s.ScheduleExportAndAggregate(ctx)
		return err
	})
	// 20 extents split into two chunks per job.
	if got := len(submittedOnce(t, queue, batchqueue.KindExportAndAggregate)); got != 2*jobs {
		t.Fatalf("expected two chunks per job submitted once, got %d", got)
	}
	for _, id := range jobIDs {
		chunks, err := store.ListChunks(ctx, id)
		if err != nil {
			t.Fatalf("ListChunks: %v", err)
		}
		if len(chunks) != 2 {
			t.Fatalf("job %d: expected 2 chunk rows, got %d", id, len(chunks))
		}
	}
}

func TestConcurrentSchedulersClaimDisjointWorkSQLite(t *testing.T) {
	exerciseConcurrentClaims(t)
}

func TestConcurrentSchedulersClaimDisjointWorkPostgres(t *testing.T) {
	exerciseConcurrentClaims(t, testsupport.WithPostgres(testsupport.PostgresDSN(t)))
}
