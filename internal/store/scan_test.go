package store_test

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"

	api "github.com/sitescan/sitescan/api/v1alpha1"
	"github.com/sitescan/sitescan/internal/config"
	"github.com/sitescan/sitescan/internal/store"
	"github.com/sitescan/sitescan/internal/store/model"
)

const (
	insertScanStm         = "INSERT INTO scans (id, user_id, sitemap_url, status) VALUES ('%s', '%s', '%s', '%s');"
	insertScanResultStm   = "INSERT INTO scan_results (id, scan_id, url, is_valid) VALUES ('%s', '%s', '%s', TRUE);"
	insertDeductedScanStm = "INSERT INTO scans (id, user_id, sitemap_url, status, credits_deducted) VALUES ('%s', '%s', '%s', '%s', TRUE);"
	defaultSitemap        = "https://example.com/sitemap.xml"
)

var _ = Describe("scan store", Ordered, func() {
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
	})

	Context("create and get", func() {
		It("creates a scan and reads it back", func() {
			scanID := uuid.New()
			created, err := s.Scan().Create(context.TODO(), model.Scan{
				ID:         scanID,
				UserID:     "admin",
				SitemapURL: defaultSitemap,
				Status:     string(api.ScanStatusPending),
			})
			Expect(err).To(BeNil())
			Expect(created).ToNot(BeNil())

			scan, err := s.Scan().Get(context.TODO(), scanID)
			Expect(err).To(BeNil())
			Expect(scan.UserID).To(Equal("admin"))
			Expect(scan.SitemapURL).To(Equal(defaultSitemap))
			Expect(scan.Status).To(Equal(string(api.ScanStatusPending)))
			Expect(scan.CreditsDeducted).To(BeFalse())
		})

		It("returns not found for an unknown id", func() {
			_, err := s.Scan().Get(context.TODO(), uuid.New())
			Expect(err).To(MatchError(store.ErrRecordNotFound))
		})
	})

	Context("list", func() {
		It("filters by user", func() {
			tx := gormdb.Exec(fmt.Sprintf(insertScanStm, uuid.NewString(), "admin", defaultSitemap, "pending"))
			Expect(tx.Error).To(BeNil())
			tx = gormdb.Exec(fmt.Sprintf(insertScanStm, uuid.NewString(), "other", defaultSitemap, "pending"))
			Expect(tx.Error).To(BeNil())

			scans, err := s.Scan().List(context.TODO(), store.NewScanQueryFilter().ByUserID("admin"), nil)
			Expect(err).To(BeNil())
			Expect(scans).To(HaveLen(1))
			Expect(scans[0].UserID).To(Equal("admin"))
		})

		It("filters by status", func() {
			tx := gormdb.Exec(fmt.Sprintf(insertScanStm, uuid.NewString(), "admin", defaultSitemap, "pending"))
			Expect(tx.Error).To(BeNil())
			tx = gormdb.Exec(fmt.Sprintf(insertScanStm, uuid.NewString(), "admin", defaultSitemap, "success"))
			Expect(tx.Error).To(BeNil())

			scans, err := s.Scan().List(context.TODO(),
				store.NewScanQueryFilter().ByUserID("admin").ByStatus("success"), nil)
			Expect(err).To(BeNil())
			Expect(scans).To(HaveLen(1))
			Expect(scans[0].Status).To(Equal("success"))
		})

		It("applies the limit option", func() {
			for i := 0; i < 3; i++ {
				tx := gormdb.Exec(fmt.Sprintf(insertScanStm, uuid.NewString(), "admin", defaultSitemap, "pending"))
				Expect(tx.Error).To(BeNil())
			}

			scans, err := s.Scan().List(context.TODO(), nil, store.NewScanQueryOptions().WithLimit(2))
			Expect(err).To(BeNil())
			Expect(scans).To(HaveLen(2))
		})
	})

	Context("status transitions", func() {
		It("moves a pending scan to processing", func() {
			scanID := uuid.New()
			tx := gormdb.Exec(fmt.Sprintf(insertScanStm, scanID, "admin", defaultSitemap, "pending"))
			Expect(tx.Error).To(BeNil())

			scan, err := s.Scan().UpdateStatus(context.TODO(), scanID, api.ScanStatusProcessing, nil)
			Expect(err).To(BeNil())
			Expect(scan.Status).To(Equal(string(api.ScanStatusProcessing)))
			Expect(scan.FinishedAt).To(BeNil())
		})

		It("stamps finished_at on a terminal transition", func() {
			scanID := uuid.New()
			tx := gormdb.Exec(fmt.Sprintf(insertScanStm, scanID, "admin", defaultSitemap, "processing"))
			Expect(tx.Error).To(BeNil())

			msg := "sitemap unreachable"
			scan, err := s.Scan().UpdateStatus(context.TODO(), scanID, api.ScanStatusFailed, &msg)
			Expect(err).To(BeNil())
			Expect(scan.Status).To(Equal(string(api.ScanStatusFailed)))
			Expect(scan.FinishedAt).ToNot(BeNil())
			Expect(*scan.ErrorMessage).To(Equal("sitemap unreachable"))
		})

		It("never touches a scan that already finished", func() {
			scanID := uuid.New()
			tx := gormdb.Exec(fmt.Sprintf(insertScanStm, scanID, "admin", defaultSitemap, "success"))
			Expect(tx.Error).To(BeNil())

			_, err := s.Scan().UpdateStatus(context.TODO(), scanID, api.ScanStatusFailed, nil)
			Expect(err).To(MatchError(store.ErrRecordNotFound))

			scan, err := s.Scan().Get(context.TODO(), scanID)
			Expect(err).To(BeNil())
			Expect(scan.Status).To(Equal("success"))
		})
	})

	Context("credits deducted flag", func() {
		It("flips exactly once", func() {
			scanID := uuid.New()
			tx := gormdb.Exec(fmt.Sprintf(insertScanStm, scanID, "admin", defaultSitemap, "processing"))
			Expect(tx.Error).To(BeNil())

			flipped, err := s.Scan().MarkCreditsDeducted(context.TODO(), scanID)
			Expect(err).To(BeNil())
			Expect(flipped).To(BeTrue())

			flipped, err = s.Scan().MarkCreditsDeducted(context.TODO(), scanID)
			Expect(err).To(BeNil())
			Expect(flipped).To(BeFalse())
		})

		It("reports false for an already deducted scan", func() {
			scanID := uuid.New()
			tx := gormdb.Exec(fmt.Sprintf(insertDeductedScanStm, scanID, "admin", defaultSitemap, "processing"))
			Expect(tx.Error).To(BeNil())

			flipped, err := s.Scan().MarkCreditsDeducted(context.TODO(), scanID)
			Expect(err).To(BeNil())
			Expect(flipped).To(BeFalse())
		})

		It("refuses to flip a scan that left processing", func() {
			scanID := uuid.New()
			tx := gormdb.Exec(fmt.Sprintf(insertScanStm, scanID, "admin", defaultSitemap, "failed"))
			Expect(tx.Error).To(BeNil())

			flipped, err := s.Scan().MarkCreditsDeducted(context.TODO(), scanID)
			Expect(err).To(BeNil())
			Expect(flipped).To(BeFalse())

			scan, err := s.Scan().Get(context.TODO(), scanID)
			Expect(err).To(BeNil())
			Expect(scan.CreditsDeducted).To(BeFalse())
		})
	})

	Context("counters and job binding", func() {
		It("stores the url count", func() {
			scanID := uuid.New()
			tx := gormdb.Exec(fmt.Sprintf(insertScanStm, scanID, "admin", defaultSitemap, "processing"))
			Expect(tx.Error).To(BeNil())

			Expect(s.Scan().SetTotalUrls(context.TODO(), scanID, 17)).To(BeNil())

			scan, err := s.Scan().Get(context.TODO(), scanID)
			Expect(err).To(BeNil())
			Expect(scan.TotalUrls).To(Equal(17))
		})

		It("stores the job id", func() {
			scanID := uuid.New()
			tx := gormdb.Exec(fmt.Sprintf(insertScanStm, scanID, "admin", defaultSitemap, "pending"))
			Expect(tx.Error).To(BeNil())

			Expect(s.Scan().SetJobID(context.TODO(), scanID, 1234)).To(BeNil())

			scan, err := s.Scan().Get(context.TODO(), scanID)
			Expect(err).To(BeNil())
			Expect(scan.JobID).ToNot(BeNil())
			Expect(*scan.JobID).To(Equal(int64(1234)))
		})

		It("reports not found for an unknown scan", func() {
			Expect(s.Scan().SetTotalUrls(context.TODO(), uuid.New(), 1)).To(MatchError(store.ErrRecordNotFound))
		})
	})

	Context("delete", func() {
		It("removes the scan and its results", func() {
			scanID := uuid.New()
			tx := gormdb.Exec(fmt.Sprintf(insertScanStm, scanID, "admin", defaultSitemap, "success"))
			Expect(tx.Error).To(BeNil())
			tx = gormdb.Exec(fmt.Sprintf(insertScanResultStm, uuid.NewString(), scanID, "https://example.com/"))
			Expect(tx.Error).To(BeNil())

			Expect(s.Scan().Delete(context.TODO(), scanID)).To(BeNil())

			count := 0
			Expect(gormdb.Raw("SELECT COUNT(*) FROM scans;").Scan(&count).Error).To(BeNil())
			Expect(count).To(Equal(0))
			Expect(gormdb.Raw("SELECT COUNT(*) FROM scan_results;").Scan(&count).Error).To(BeNil())
			Expect(count).To(Equal(0))
		})

		It("is a no-op for an unknown scan", func() {
			Expect(s.Scan().Delete(context.TODO(), uuid.New())).To(BeNil())
		})
	})
})
