package service_test

import (
	"context"
	"errors"
	"fmt"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"

	"github.com/sitescan/sitescan/internal/config"
	"github.com/sitescan/sitescan/internal/service"
	"github.com/sitescan/sitescan/internal/store"
)

var _ = Describe("credit service", Ordered, func() {
	var (
		s      store.Store
		gormdb *gorm.DB
		srv    *service.CreditService
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
		srv = service.NewCreditService(s, 50, 10000)
	})

	AfterEach(func() {
		gormdb.Exec("DELETE FROM credit_balances;")
	})

	Context("balance", func() {
		It("seeds the signup bonus on first contact", func() {
			balance, err := srv.GetBalance(context.TODO(), "newcomer")
			Expect(err).To(BeNil())
			Expect(balance).To(Equal(50))

			// a second read does not seed again
			balance, err = srv.GetBalance(context.TODO(), "newcomer")
			Expect(err).To(BeNil())
			Expect(balance).To(Equal(50))
		})

		It("keeps an existing balance untouched", func() {
			tx := gormdb.Exec(fmt.Sprintf(insertBalanceStm, "admin", 3))
			Expect(tx.Error).To(BeNil())

			balance, err := srv.GetBalance(context.TODO(), "admin")
			Expect(err).To(BeNil())
			Expect(balance).To(Equal(3))
		})
	})

	Context("sufficiency check", func() {
		It("reports the deficit without mutating the balance", func() {
			tx := gormdb.Exec(fmt.Sprintf(insertBalanceStm, "admin", 3))
			Expect(tx.Error).To(BeNil())

			check, err := srv.CheckSufficient(context.TODO(), "admin", 10)
			Expect(err).To(BeNil())
			Expect(check.HasSufficient).To(BeFalse())
			Expect(check.Current).To(Equal(3))
			Expect(check.Required).To(Equal(10))
			Expect(check.Deficit).To(Equal(7))

			balance, err := srv.GetBalance(context.TODO(), "admin")
			Expect(err).To(BeNil())
			Expect(balance).To(Equal(3))
		})

		It("reports sufficiency", func() {
			tx := gormdb.Exec(fmt.Sprintf(insertBalanceStm, "admin", 10))
			Expect(tx.Error).To(BeNil())

			check, err := srv.CheckSufficient(context.TODO(), "admin", 10)
			Expect(err).To(BeNil())
			Expect(check.HasSufficient).To(BeTrue())
			Expect(check.Deficit).To(Equal(0))
		})
	})

	Context("deduct", func() {
		It("charges the ledger", func() {
			tx := gormdb.Exec(fmt.Sprintf(insertBalanceStm, "admin", 10))
			Expect(tx.Error).To(BeNil())

			Expect(srv.Deduct(context.TODO(), "admin", 4, "scan charge")).To(BeNil())

			balance, err := srv.GetBalance(context.TODO(), "admin")
			Expect(err).To(BeNil())
			Expect(balance).To(Equal(6))
		})

		It("translates an insufficient balance", func() {
			tx := gormdb.Exec(fmt.Sprintf(insertBalanceStm, "admin", 3))
			Expect(tx.Error).To(BeNil())

			err := srv.Deduct(context.TODO(), "admin", 10, "scan charge")

			var target *service.ErrInsufficientCredits
			Expect(errors.As(err, &target)).To(BeTrue())
			Expect(target.Required).To(Equal(10))
			Expect(target.Available).To(Equal(3))
			Expect(target.Deficit()).To(Equal(7))
		})
	})

	Context("top up", func() {
		It("adds credits and returns the new balance", func() {
			tx := gormdb.Exec(fmt.Sprintf(insertBalanceStm, "admin", 5))
			Expect(tx.Error).To(BeNil())

			balance, err := srv.Add(context.TODO(), "admin", 100, "")
			Expect(err).To(BeNil())
			Expect(balance).To(Equal(105))
		})

		It("rejects amounts above the ceiling", func() {
			_, err := srv.Add(context.TODO(), "admin", 10001, "")

			var target *service.ErrInvalidCreditAmount
			Expect(errors.As(err, &target)).To(BeTrue())
		})

		It("rejects non-positive amounts", func() {
			_, err := srv.Add(context.TODO(), "admin", 0, "")

			var target *service.ErrInvalidCreditAmount
			Expect(errors.As(err, &target)).To(BeTrue())
		})
	})

	Context("refund", func() {
		It("restores credits without a ceiling", func() {
			tx := gormdb.Exec(fmt.Sprintf(insertBalanceStm, "admin", 5))
			Expect(tx.Error).To(BeNil())

			Expect(srv.Refund(context.TODO(), "admin", 20000, "refund for failed scan")).To(BeNil())

			balance, err := srv.GetBalance(context.TODO(), "admin")
			Expect(err).To(BeNil())
			Expect(balance).To(Equal(20005))
		})

		It("rejects non-positive amounts", func() {
			err := srv.Refund(context.TODO(), "admin", -1, "refund")

			var target *service.ErrInvalidCreditAmount
			Expect(errors.As(err, &target)).To(BeTrue())
		})
	})
})
