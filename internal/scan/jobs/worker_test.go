package jobs_test

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
	"gorm.io/gorm"

	api "github.com/sitescan/sitescan/api/v1alpha1"
	"github.com/sitescan/sitescan/internal/config"
	"github.com/sitescan/sitescan/internal/scan"
	"github.com/sitescan/sitescan/internal/scan/jobs"
	"github.com/sitescan/sitescan/internal/sitemap"
	"github.com/sitescan/sitescan/internal/store"
	"github.com/sitescan/sitescan/internal/validation"
)

const (
	insertScanStm         = "INSERT INTO scans (id, user_id, sitemap_url, status) VALUES ('%s', '%s', '%s', '%s');"
	insertDeductedScanStm = "INSERT INTO scans (id, user_id, sitemap_url, status, credits_deducted) VALUES ('%s', '%s', '%s', '%s', TRUE);"
	insertBalanceStm      = "INSERT INTO credit_balances (user_id, balance) VALUES ('%s', %d);"
	testSitemap           = "https://example.com/sitemap.xml"
)

var _ = Describe("ScanArgs", func() {
	Describe("Kind", func() {
		It("returns the job kind", func() {
			args := jobs.ScanArgs{}
			Expect(args.Kind()).To(Equal("sitemap_scan"))
		})
	})

	Describe("InsertOpts", func() {
		It("returns default insert options", func() {
			args := jobs.ScanArgs{}
			opts := args.InsertOpts()
			Expect(opts.Queue).To(Equal(jobs.DefaultQueue))
			Expect(opts.MaxAttempts).To(Equal(jobs.MaxJobRetries))
		})
	})
})

var _ = Describe("ScanWorker", func() {
	Describe("Timeout", func() {
		It("returns 30 minute timeout", func() {
			worker := jobs.NewScanWorker(nil, nil, nil, nil)
			Expect(worker.Timeout(nil)).To(Equal(jobs.JobTimeout))
		})
	})
})

type stubResolver struct {
	result    *sitemap.Result
	err       error
	calls     int
	onResolve func()
}

func (r *stubResolver) Resolve(ctx context.Context, sitemapURL string) (*sitemap.Result, error) {
	r.calls++
	if r.onResolve != nil {
		r.onResolve()
	}
	return r.result, r.err
}

type stubBatch struct {
	results []validation.Result
}

func (b *stubBatch) Run(ctx context.Context, urls []string, onProgress validation.ProgressFunc) []validation.Result {
	for i := range urls {
		if onProgress != nil {
			onProgress(validation.Progress{Processed: i + 1, Total: len(urls)})
		}
	}
	return b.results
}

type stubLimiter struct {
	waits int
}

func (l *stubLimiter) Wait(ctx context.Context) error {
	l.waits++
	return nil
}

func resolvedUrls(urls ...string) *sitemap.Result {
	return &sitemap.Result{URLs: urls}
}

func batchResults(urls ...string) []validation.Result {
	results := make([]validation.Result, 0, len(urls))
	for _, u := range urls {
		results = append(results, validation.Result{
			URL:       u,
			Errors:    []api.ValidationMessage{},
			Warnings:  []api.ValidationMessage{},
			IsValid:   true,
			CheckedAt: time.Now().UTC(),
		})
	}
	return results
}

func scanJob(scanID uuid.UUID, userID string) *river.Job[jobs.ScanArgs] {
	return &river.Job[jobs.ScanArgs]{
		JobRow: &rivertype.JobRow{ID: 1, Attempt: 1},
		Args: jobs.ScanArgs{
			ScanID:     scanID,
			UserID:     userID,
			SitemapURL: testSitemap,
		},
	}
}

var _ = Describe("scan worker orchestration", Ordered, func() {
	var (
		s      store.Store
		gormdb *gorm.DB
	)

	BeforeAll(func() {
		db, err := store.InitDB(config.NewDefault())
		Expect(err).To(BeNil())

		s = store.NewStore(db)
		gormdb = db
		Expect(s.InitialMigration()).To(BeNil())
	})

	AfterAll(func() {
		s.Close()
	})

	AfterEach(func() {
		gormdb.Exec("DELETE FROM scan_results;")
		gormdb.Exec("DELETE FROM scans;")
		gormdb.Exec("DELETE FROM credit_balances;")
	})

	It("completes a scan end to end", func() {
		scanID := uuid.New()
		tx := gormdb.Exec(fmt.Sprintf(insertScanStm, scanID, "admin", testSitemap, "pending"))
		Expect(tx.Error).To(BeNil())
		tx = gormdb.Exec(fmt.Sprintf(insertBalanceStm, "admin", 10))
		Expect(tx.Error).To(BeNil())

		urls := []string{"https://example.com/", "https://example.com/about"}
		limiter := &stubLimiter{}
		worker := jobs.NewScanWorker(s,
			&stubResolver{result: resolvedUrls(urls...)},
			&stubBatch{results: batchResults(urls...)},
			limiter,
		)

		Expect(worker.Work(context.TODO(), scanJob(scanID, "admin"))).To(BeNil())
		Expect(limiter.waits).To(Equal(1))

		scan, err := s.Scan().Get(context.TODO(), scanID)
		Expect(err).To(BeNil())
		Expect(scan.Status).To(Equal(string(api.ScanStatusSuccess)))
		Expect(scan.TotalUrls).To(Equal(2))
		Expect(scan.CreditsDeducted).To(BeTrue())
		Expect(scan.FinishedAt).ToNot(BeNil())

		balance, err := s.Credit().GetBalance(context.TODO(), "admin")
		Expect(err).To(BeNil())
		Expect(balance).To(Equal(8))

		results, err := s.ScanResult().ListByScan(context.TODO(), scanID)
		Expect(err).To(BeNil())
		Expect(results).To(HaveLen(2))
	})

	It("fails the scan when the sitemap cannot be resolved", func() {
		scanID := uuid.New()
		tx := gormdb.Exec(fmt.Sprintf(insertScanStm, scanID, "admin", testSitemap, "pending"))
		Expect(tx.Error).To(BeNil())
		tx = gormdb.Exec(fmt.Sprintf(insertBalanceStm, "admin", 10))
		Expect(tx.Error).To(BeNil())

		worker := jobs.NewScanWorker(s,
			&stubResolver{err: errors.New("sitemap contains no valid URLs")},
			&stubBatch{},
			nil,
		)

		Expect(worker.Work(context.TODO(), scanJob(scanID, "admin"))).To(BeNil())

		scan, err := s.Scan().Get(context.TODO(), scanID)
		Expect(err).To(BeNil())
		Expect(scan.Status).To(Equal(string(api.ScanStatusFailed)))
		Expect(*scan.ErrorMessage).To(ContainSubstring("no valid URLs"))

		// nothing was charged
		balance, err := s.Credit().GetBalance(context.TODO(), "admin")
		Expect(err).To(BeNil())
		Expect(balance).To(Equal(10))
	})

	It("fails the scan when the balance cannot cover the url count", func() {
		scanID := uuid.New()
		tx := gormdb.Exec(fmt.Sprintf(insertScanStm, scanID, "admin", testSitemap, "pending"))
		Expect(tx.Error).To(BeNil())
		tx = gormdb.Exec(fmt.Sprintf(insertBalanceStm, "admin", 1))
		Expect(tx.Error).To(BeNil())

		urls := []string{"https://example.com/", "https://example.com/about"}
		worker := jobs.NewScanWorker(s,
			&stubResolver{result: resolvedUrls(urls...)},
			&stubBatch{results: batchResults(urls...)},
			nil,
		)

		Expect(worker.Work(context.TODO(), scanJob(scanID, "admin"))).To(BeNil())

		scan, err := s.Scan().Get(context.TODO(), scanID)
		Expect(err).To(BeNil())
		Expect(scan.Status).To(Equal(string(api.ScanStatusFailed)))
		Expect(*scan.ErrorMessage).To(ContainSubstring("insufficient credits"))

		balance, err := s.Credit().GetBalance(context.TODO(), "admin")
		Expect(err).To(BeNil())
		Expect(balance).To(Equal(1))
	})

	It("skips a scan that already reached a terminal state", func() {
		scanID := uuid.New()
		tx := gormdb.Exec(fmt.Sprintf(insertScanStm, scanID, "admin", testSitemap, "success"))
		Expect(tx.Error).To(BeNil())

		resolver := &stubResolver{result: resolvedUrls("https://example.com/")}
		worker := jobs.NewScanWorker(s, resolver, &stubBatch{}, nil)

		Expect(worker.Work(context.TODO(), scanJob(scanID, "admin"))).To(BeNil())
		Expect(resolver.calls).To(Equal(0))
	})

	It("does not charge a scan cancelled while it is running", func() {
		scanID := uuid.New()
		tx := gormdb.Exec(fmt.Sprintf(insertScanStm, scanID, "admin", testSitemap, "pending"))
		Expect(tx.Error).To(BeNil())
		tx = gormdb.Exec(fmt.Sprintf(insertBalanceStm, "admin", 10))
		Expect(tx.Error).To(BeNil())

		urls := []string{"https://example.com/", "https://example.com/about"}
		resolver := &stubResolver{result: resolvedUrls(urls...)}
		resolver.onResolve = func() {
			scan.MarkFailed(context.TODO(), s, scanID, "admin", "cancelled by user", scan.ReasonScanCancel)
		}
		worker := jobs.NewScanWorker(s, resolver, &stubBatch{results: batchResults(urls...)}, nil)

		Expect(worker.Work(context.TODO(), scanJob(scanID, "admin"))).To(BeNil())

		stored, err := s.Scan().Get(context.TODO(), scanID)
		Expect(err).To(BeNil())
		Expect(stored.Status).To(Equal(string(api.ScanStatusFailed)))
		Expect(stored.CreditsDeducted).To(BeFalse())

		// the cancellation refunded nothing, so the worker must charge nothing
		balance, err := s.Credit().GetBalance(context.TODO(), "admin")
		Expect(err).To(BeNil())
		Expect(balance).To(Equal(10))

		results, err := s.ScanResult().ListByScan(context.TODO(), scanID)
		Expect(err).To(BeNil())
		Expect(results).To(BeEmpty())
	})

	It("does not charge twice on a retried job", func() {
		scanID := uuid.New()
		tx := gormdb.Exec(fmt.Sprintf(insertDeductedScanStm, scanID, "admin", testSitemap, "processing"))
		Expect(tx.Error).To(BeNil())
		tx = gormdb.Exec(fmt.Sprintf(insertBalanceStm, "admin", 8))
		Expect(tx.Error).To(BeNil())

		urls := []string{"https://example.com/", "https://example.com/about"}
		worker := jobs.NewScanWorker(s,
			&stubResolver{result: resolvedUrls(urls...)},
			&stubBatch{results: batchResults(urls...)},
			nil,
		)

		Expect(worker.Work(context.TODO(), scanJob(scanID, "admin"))).To(BeNil())

		scan, err := s.Scan().Get(context.TODO(), scanID)
		Expect(err).To(BeNil())
		Expect(scan.Status).To(Equal(string(api.ScanStatusSuccess)))

		// the earlier attempt already paid for this scan
		balance, err := s.Credit().GetBalance(context.TODO(), "admin")
		Expect(err).To(BeNil())
		Expect(balance).To(Equal(8))
	})
})
