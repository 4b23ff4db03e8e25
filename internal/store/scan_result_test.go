package store_test

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"

	api "github.com/sitescan/sitescan/api/v1alpha1"
	"github.com/sitescan/sitescan/internal/config"
	"github.com/sitescan/sitescan/internal/store"
	"github.com/sitescan/sitescan/internal/store/model"
)

var _ = Describe("scan result store", Ordered, func() {
	var (
		s      store.Store
		gormdb *gorm.DB
		scanID uuid.UUID
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

	BeforeEach(func() {
		scanID = uuid.New()
		tx := gormdb.Exec(fmt.Sprintf(insertScanStm, scanID, "admin", defaultSitemap, "processing"))
		Expect(tx.Error).To(BeNil())
	})

	AfterEach(func() {
		gormdb.Exec("DELETE FROM scan_results;")
		gormdb.Exec("DELETE FROM scans;")
	})

	newResult := func(url string, valid bool, checkedAt time.Time) model.ScanResult {
		row := model.ScanResult{
			ID:        uuid.New(),
			ScanID:    scanID,
			URL:       url,
			IsValid:   valid,
			CheckedAt: checkedAt,
		}
		if !valid {
			row.Errors = &model.JSONField[[]api.ValidationMessage]{
				Data: []api.ValidationMessage{
					{Message: "Unclosed element", Severity: api.SeverityHigh},
				},
			}
		}
		return row
	}

	It("stores a batch and lists it in checked order", func() {
		now := time.Now().UTC()
		rows := []model.ScanResult{
			newResult("https://example.com/b", false, now.Add(time.Second)),
			newResult("https://example.com/a", true, now),
		}
		Expect(s.ScanResult().CreateBulk(context.TODO(), rows)).To(BeNil())

		results, err := s.ScanResult().ListByScan(context.TODO(), scanID)
		Expect(err).To(BeNil())
		Expect(results).To(HaveLen(2))
		Expect(results[0].URL).To(Equal("https://example.com/a"))
		Expect(results[1].URL).To(Equal("https://example.com/b"))

		Expect(results[1].IsValid).To(BeFalse())
		Expect(results[1].Errors).ToNot(BeNil())
		Expect(results[1].Errors.Data).To(HaveLen(1))
		Expect(results[1].Errors.Data[0].Message).To(Equal("Unclosed element"))
	})

	It("accepts an empty batch", func() {
		Expect(s.ScanResult().CreateBulk(context.TODO(), nil)).To(BeNil())
	})

	It("counts per scan", func() {
		now := time.Now().UTC()
		rows := []model.ScanResult{
			newResult("https://example.com/a", true, now),
			newResult("https://example.com/b", true, now),
		}
		Expect(s.ScanResult().CreateBulk(context.TODO(), rows)).To(BeNil())

		count, err := s.ScanResult().CountByScan(context.TODO(), scanID)
		Expect(err).To(BeNil())
		Expect(count).To(Equal(int64(2)))

		count, err = s.ScanResult().CountByScan(context.TODO(), uuid.New())
		Expect(err).To(BeNil())
		Expect(count).To(Equal(int64(0)))
	})

	It("deletes per scan", func() {
		now := time.Now().UTC()
		Expect(s.ScanResult().CreateBulk(context.TODO(), []model.ScanResult{
			newResult("https://example.com/a", true, now),
		})).To(BeNil())

		Expect(s.ScanResult().DeleteByScan(context.TODO(), scanID)).To(BeNil())

		count, err := s.ScanResult().CountByScan(context.TODO(), scanID)
		Expect(err).To(BeNil())
		Expect(count).To(Equal(int64(0)))
	})
})
