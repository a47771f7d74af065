// Package dbtest opens in-memory sqlite databases carrying the billing schema
// for repository tests.
package dbtest

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/jaehyunUm/mats-backend-sub000/pkg/db/models"
	"github.com/jaehyunUm/mats-backend-sub000/pkg/enums"
)

var schema = []string{
	`CREATE TABLE dojangs (
		dojang_code TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		owner_email TEXT NOT NULL,
		created_at DATETIME
	)`,
	`CREATE TABLE students (
		id TEXT PRIMARY KEY,
		dojang_code TEXT NOT NULL,
		first_name TEXT NOT NULL,
		last_name TEXT NOT NULL,
		parent_email TEXT,
		created_at DATETIME
	)`,
	`CREATE TABLE programs (
		id TEXT PRIMARY KEY,
		dojang_code TEXT NOT NULL,
		name TEXT NOT NULL,
		price NUMERIC NOT NULL,
		created_at DATETIME
	)`,
	`CREATE TABLE monthly_payments (
		id TEXT PRIMARY KEY,
		dojang_code TEXT NOT NULL,
		student_id TEXT NOT NULL,
		program_id TEXT NOT NULL,
		fee NUMERIC NOT NULL,
		currency TEXT NOT NULL DEFAULT 'usd',
		anchor_day INTEGER NOT NULL,
		next_payment_date DATETIME NOT NULL,
		last_payment_date DATETIME,
		payment_status TEXT NOT NULL DEFAULT 'pending',
		source_id TEXT,
		customer_id TEXT,
		idempotency_key TEXT,
		last_payment_intent_id TEXT,
		retry_count INTEGER NOT NULL DEFAULT 0,
		retry_state TEXT NOT NULL DEFAULT 'none',
		next_retry_at DATETIME,
		last_failure_reason TEXT,
		created_at DATETIME,
		updated_at DATETIME,
		UNIQUE (dojang_code, student_id, program_id)
	)`,
	`CREATE TABLE program_payments (
		id TEXT PRIMARY KEY,
		dojang_code TEXT NOT NULL,
		monthly_payment_id TEXT NOT NULL,
		student_id TEXT NOT NULL,
		program_id TEXT NOT NULL,
		amount NUMERIC NOT NULL,
		currency TEXT NOT NULL,
		status TEXT NOT NULL,
		transaction_id TEXT NOT NULL,
		idempotency_key TEXT,
		provider TEXT,
		payment_date DATETIME NOT NULL,
		created_at DATETIME
	)`,
	`CREATE TABLE owner_bank_accounts (
		id TEXT PRIMARY KEY,
		dojang_code TEXT NOT NULL UNIQUE,
		provider TEXT NOT NULL,
		access_token TEXT NOT NULL,
		refresh_token TEXT,
		connected_account_id TEXT NOT NULL,
		location_id TEXT,
		token_expires_at DATETIME,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE notifications (
		id TEXT PRIMARY KEY,
		dojang_code TEXT NOT NULL,
		type TEXT NOT NULL,
		title TEXT NOT NULL,
		message TEXT NOT NULL,
		link TEXT,
		is_read BOOLEAN NOT NULL DEFAULT false,
		read_at DATETIME,
		created_at DATETIME
	)`,
}

// Open returns a private in-memory database with the schema applied. A single
// connection backs it so concurrent callers serialize instead of failing with
// "database is locked".
func Open(t testing.TB) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%s?mode=memory&cache=shared", name, uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sqlite handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range schema {
		if err := conn.Exec(stmt).Error; err != nil {
			t.Fatalf("apply schema: %v", err)
		}
	}
	return conn
}

// Date truncates to a UTC calendar date.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// Fixture is a dojang with one student enrolled in one program.
type Fixture struct {
	Dojang  models.Dojang
	Student models.Student
	Program models.Program
}

func MustSeed(t testing.TB, conn *gorm.DB, dojangCode string) Fixture {
	t.Helper()
	f := Fixture{
		Dojang:  models.Dojang{Code: dojangCode, Name: "Dojang " + dojangCode, OwnerEmail: "owner@" + strings.ToLower(dojangCode) + ".test"},
		Student: models.Student{DojangCode: dojangCode, FirstName: "Min", LastName: "Kim"},
		Program: models.Program{DojangCode: dojangCode, Name: "Kids Taekwondo", Price: decimal.RequireFromString("120.00")},
	}
	for _, row := range []any{&f.Dojang, &f.Student, &f.Program} {
		if err := conn.Create(row).Error; err != nil {
			t.Fatalf("seed %T: %v", row, err)
		}
	}
	return f
}

// MustSubscription inserts a monthly plan for the fixture. mutate may adjust
// fields before insert.
func MustSubscription(t testing.TB, conn *gorm.DB, f Fixture, mutate func(*models.MonthlyPayment)) *models.MonthlyPayment {
	t.Helper()
	source := "pm_card_visa"
	sub := &models.MonthlyPayment{
		DojangCode:      f.Dojang.Code,
		StudentID:       f.Student.ID,
		ProgramID:       f.Program.ID,
		Fee:             f.Program.Price,
		Currency:        "usd",
		AnchorDay:       15,
		NextPaymentDate: Date(2024, time.January, 15),
		PaymentStatus:   enums.PaymentStatusPending,
		RetryState:      enums.RetryStateNone,
		SourceID:        &source,
	}
	if mutate != nil {
		mutate(sub)
	}
	if err := conn.Create(sub).Error; err != nil {
		t.Fatalf("seed subscription: %v", err)
	}
	return sub
}
