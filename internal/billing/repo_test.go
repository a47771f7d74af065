package billing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jaehyunUm/mats-backend-sub000/pkg/db/dbtest"
	"github.com/jaehyunUm/mats-backend-sub000/pkg/db/models"
	"github.com/jaehyunUm/mats-backend-sub000/pkg/enums"
	"github.com/jaehyunUm/mats-backend-sub000/pkg/pagination"
)

func TestRepositoryListDueSelection(t *testing.T) {
	ctx := context.Background()
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	today := dbtest.Date(2024, time.January, 15)
	now := today.Add(9 * time.Hour)

	a := dbtest.MustSeed(t, conn, "AAA")
	b := dbtest.MustSeed(t, conn, "BBB")
	c := dbtest.MustSeed(t, conn, "CCC")
	d := dbtest.MustSeed(t, conn, "DDD")
	e := dbtest.MustSeed(t, conn, "EEE")
	f := dbtest.MustSeed(t, conn, "FFF")

	due := dbtest.MustSubscription(t, conn, a, nil)
	overdue := dbtest.MustSubscription(t, conn, b, func(m *models.MonthlyPayment) {
		m.NextPaymentDate = dbtest.Date(2024, time.January, 2)
		m.PaymentStatus = enums.PaymentStatusFailed
		m.RetryState = enums.RetryStateRetrying
		past := now.Add(-time.Minute)
		m.NextRetryAt = &past
	})
	dbtest.MustSubscription(t, conn, c, func(m *models.MonthlyPayment) {
		m.NextPaymentDate = dbtest.Date(2024, time.January, 16)
	})
	dbtest.MustSubscription(t, conn, d, func(m *models.MonthlyPayment) {
		m.RetryState = enums.RetryStateExhausted
		m.PaymentStatus = enums.PaymentStatusFailed
	})
	dbtest.MustSubscription(t, conn, e, func(m *models.MonthlyPayment) {
		future := now.Add(time.Hour)
		m.NextRetryAt = &future
		m.RetryState = enums.RetryStateRetrying
	})
	dbtest.MustSubscription(t, conn, f, func(m *models.MonthlyPayment) {
		m.PaymentStatus = enums.PaymentStatusCompleted
	})

	got, err := repo.ListDue(ctx, today, now, 50)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, overdue.ID, got[0].ID)
	require.Equal(t, due.ID, got[1].ID)

	limited, err := repo.ListDue(ctx, today, now, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
}

func TestRepositoryEnsureIdempotencyKeyKeepsExisting(t *testing.T) {
	ctx := context.Background()
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	sub := dbtest.MustSubscription(t, conn, dbtest.MustSeed(t, conn, "AAA"), nil)

	first, err := repo.EnsureIdempotencyKey(ctx, sub.ID, "key-1")
	require.NoError(t, err)
	require.Equal(t, "key-1", first)

	second, err := repo.EnsureIdempotencyKey(ctx, sub.ID, "key-2")
	require.NoError(t, err)
	require.Equal(t, "key-1", second)
}

func TestRepositoryApplySuccessAndFailure(t *testing.T) {
	ctx := context.Background()
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	sub := dbtest.MustSubscription(t, conn, dbtest.MustSeed(t, conn, "AAA"), nil)

	retryAt := time.Date(2024, time.January, 15, 10, 0, 0, 0, time.UTC)
	rotated := "key-rotated"
	require.NoError(t, repo.ApplyFailure(ctx, sub.ID, FailureUpdate{
		Retry:          RetryDecision{Count: 1, State: enums.RetryStateRetrying, NextRetryAt: &retryAt},
		Reason:         "card declined",
		TransactionID:  "pi_failed",
		IdempotencyKey: &rotated,
	}))

	failed, err := repo.FindByID(ctx, sub.ID)
	require.NoError(t, err)
	require.Equal(t, enums.PaymentStatusFailed, failed.PaymentStatus)
	require.Equal(t, 1, failed.RetryCount)
	require.Equal(t, enums.RetryStateRetrying, failed.RetryState)
	require.NotNil(t, failed.NextRetryAt)
	require.Equal(t, "card declined", *failed.LastFailureReason)
	require.Equal(t, rotated, *failed.IdempotencyKey)
	require.True(t, failed.NextPaymentDate.Equal(sub.NextPaymentDate))

	require.NoError(t, repo.ApplySuccess(ctx, sub.ID, SuccessUpdate{
		NextPaymentDate: dbtest.Date(2024, time.February, 15),
		LastPaymentDate: dbtest.Date(2024, time.January, 15),
		TransactionID:   "pi_ok",
		IdempotencyKey:  "key-next",
	}))

	paid, err := repo.FindByID(ctx, sub.ID)
	require.NoError(t, err)
	require.Equal(t, enums.PaymentStatusPending, paid.PaymentStatus)
	require.Equal(t, 0, paid.RetryCount)
	require.Equal(t, enums.RetryStateNone, paid.RetryState)
	require.Nil(t, paid.NextRetryAt)
	require.Nil(t, paid.LastFailureReason)
	require.Equal(t, "pi_ok", *paid.LastPaymentIntentID)
	require.Equal(t, "key-next", *paid.IdempotencyKey)
	require.True(t, paid.NextPaymentDate.Equal(dbtest.Date(2024, time.February, 15)))
}

func TestRepositoryFindForDojangScopesTenant(t *testing.T) {
	ctx := context.Background()
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	sub := dbtest.MustSubscription(t, conn, dbtest.MustSeed(t, conn, "AAA"), nil)
	dbtest.MustSeed(t, conn, "BBB")

	found, err := repo.FindForDojang(ctx, "AAA", sub.ID)
	require.NoError(t, err)
	require.NotNil(t, found)

	other, err := repo.FindForDojang(ctx, "BBB", sub.ID)
	require.NoError(t, err)
	require.Nil(t, other)
}

func TestRepositoryListPaymentsPaginates(t *testing.T) {
	ctx := context.Background()
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	fixture := dbtest.MustSeed(t, conn, "AAA")
	sub := dbtest.MustSubscription(t, conn, fixture, nil)

	base := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		require.NoError(t, repo.InsertPayment(ctx, &models.ProgramPayment{
			DojangCode:       "AAA",
			MonthlyPaymentID: sub.ID,
			StudentID:        fixture.Student.ID,
			ProgramID:        fixture.Program.ID,
			Amount:           fixture.Program.Price,
			Currency:         "usd",
			Status:           enums.PaymentStatusCompleted,
			TransactionID:    "pi_" + string(rune('a'+i)),
			PaymentDate:      dbtest.Date(2024, time.Month(i+1), 15),
			CreatedAt:        base.AddDate(0, i, 0),
		}))
	}

	cursorOf := func(p models.ProgramPayment) pagination.Cursor {
		return pagination.Cursor{CreatedAt: p.CreatedAt, ID: p.ID}
	}
	rows, err := repo.ListPayments(ctx, ListPaymentsQuery{DojangCode: "AAA", MonthlyPaymentID: &sub.ID, Limit: 2})
	require.NoError(t, err)
	page := pagination.Trim(rows, 2, cursorOf)
	require.Len(t, page.Items, 2)
	require.Equal(t, "pi_c", page.Items[0].TransactionID)
	require.Equal(t, "pi_b", page.Items[1].TransactionID)
	require.NotEmpty(t, page.NextCursor)

	cursor, err := pagination.ParseCursor(page.NextCursor)
	require.NoError(t, err)
	rows, err = repo.ListPayments(ctx, ListPaymentsQuery{DojangCode: "AAA", Limit: 2, Cursor: cursor})
	require.NoError(t, err)
	page = pagination.Trim(rows, 2, cursorOf)
	require.Len(t, page.Items, 1)
	require.Equal(t, "pi_a", page.Items[0].TransactionID)
	require.Empty(t, page.NextCursor)

	other, err := repo.ListPayments(ctx, ListPaymentsQuery{DojangCode: "BBB", Limit: 10})
	require.NoError(t, err)
	require.Empty(t, other)
}
