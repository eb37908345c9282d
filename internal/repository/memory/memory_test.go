package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/shestoi/vnpay-gateway/internal/repository"
)

func TestTransactionRepository_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("assigns id and pending state", func(t *testing.T) {
		repo := NewTransactionRepository()

		tx, err := repo.Create(ctx, repository.Transaction{Reference: "INV", Amount: decimal.NewFromInt(100), Currency: "VND"})

		require.NoError(t, err)
		require.NotEmpty(t, tx.ID)
		require.Equal(t, repository.StatePending, tx.State)
		require.False(t, tx.CreatedAt.IsZero())
	})

	t.Run("duplicate reference", func(t *testing.T) {
		repo := NewTransactionRepository()
		_, err := repo.Create(ctx, repository.Transaction{Reference: "INV"})
		require.NoError(t, err)

		_, err = repo.Create(ctx, repository.Transaction{Reference: "INV"})

		require.ErrorIs(t, err, repository.ErrAlreadyExists)
	})

	t.Run("concurrent duplicates admit exactly one", func(t *testing.T) {
		repo := NewTransactionRepository()
		const n = 20
		var wg sync.WaitGroup
		errs := make(chan error, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := repo.Create(ctx, repository.Transaction{Reference: "SAME"})
				errs <- err
			}()
		}
		wg.Wait()
		close(errs)

		created := 0
		for err := range errs {
			if err == nil {
				created++
				continue
			}
			require.ErrorIs(t, err, repository.ErrAlreadyExists)
		}
		require.Equal(t, 1, created)
	})
}

func TestTransactionRepository_Lookup(t *testing.T) {
	ctx := context.Background()
	repo := NewTransactionRepository()
	for _, ref := range []string{"INV", "INV-1", "INV-2", "INVOICE-7", "OTHER"} {
		_, err := repo.Create(ctx, repository.Transaction{Reference: ref})
		require.NoError(t, err)
	}

	t.Run("find by reference", func(t *testing.T) {
		found, err := repo.FindByReference(ctx, "INV-1")
		require.NoError(t, err)
		require.Len(t, found, 1)

		missing, err := repo.FindByReference(ctx, "INV-9")
		require.NoError(t, err)
		require.Empty(t, missing)
	})

	t.Run("exists", func(t *testing.T) {
		ok, err := repo.ReferenceExists(ctx, "OTHER")
		require.NoError(t, err)
		require.True(t, ok)
	})

	t.Run("prefix scan", func(t *testing.T) {
		refs, err := repo.ReferencesWithPrefix(ctx, "INV")
		require.NoError(t, err)
		require.Equal(t, []string{"INV", "INV-1", "INV-2", "INVOICE-7"}, refs)
	})
}

func TestTransactionRepository_UpdateState(t *testing.T) {
	ctx := context.Background()
	repo := NewTransactionRepository()
	tx, err := repo.Create(ctx, repository.Transaction{Reference: "INV"})
	require.NoError(t, err)

	// Act
	applied, err := repo.UpdateState(ctx, repository.StateUpdate{ID: tx.ID, From: repository.StatePending, To: repository.StateDone})
	require.NoError(t, err)
	require.True(t, applied)

	again, err := repo.UpdateState(ctx, repository.StateUpdate{ID: tx.ID, From: repository.StatePending, To: repository.StateError, Message: "late"})
	require.NoError(t, err)

	// Assert
	require.False(t, again)
	found, err := repo.FindByReference(ctx, "INV")
	require.NoError(t, err)
	require.Equal(t, repository.StateDone, found[0].State)
	require.Empty(t, found[0].StateMessage)

	_, err = repo.UpdateState(ctx, repository.StateUpdate{ID: "missing", From: repository.StatePending, To: repository.StateDone})
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func TestTransactionRepository_SetProviderReference(t *testing.T) {
	ctx := context.Background()
	repo := NewTransactionRepository()
	tx, err := repo.Create(ctx, repository.Transaction{Reference: "INV"})
	require.NoError(t, err)

	require.NoError(t, repo.SetProviderReference(ctx, tx.ID, "first"))
	require.NoError(t, repo.SetProviderReference(ctx, tx.ID, "second"))

	found, err := repo.FindByReference(ctx, "INV")
	require.NoError(t, err)
	require.Equal(t, "first", found[0].ProviderReference)
}

func TestPosOrderRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewPosOrderRepository()

	_, err := repo.GetByID(ctx, "42")
	require.ErrorIs(t, err, repository.ErrNotFound)

	require.NoError(t, repo.Upsert(ctx, repository.PosOrder{ID: "42", Amount: decimal.NewFromInt(1000)}))
	order, err := repo.GetByID(ctx, "42")
	require.NoError(t, err)
	require.Equal(t, repository.PosOrderDraft, order.State)

	require.NoError(t, repo.MarkPaid(ctx, "42"))
	// оплаченный заказ не перезаписывается
	require.NoError(t, repo.Upsert(ctx, repository.PosOrder{ID: "42", Amount: decimal.NewFromInt(5)}))

	order, err = repo.GetByID(ctx, "42")
	require.NoError(t, err)
	require.Equal(t, repository.PosOrderPaid, order.State)
	require.True(t, order.Amount.Equal(decimal.NewFromInt(1000)))

	require.ErrorIs(t, repo.MarkPaid(ctx, "missing"), repository.ErrNotFound)
}

func TestQRSessionRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewQRSessionRepository()

	_, err := repo.GetLatest(ctx, "42")
	require.ErrorIs(t, err, repository.ErrNotFound)

	first := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Save(ctx, repository.QRSession{OrderID: "42", QRData: "a", ExpiresAt: first}))
	require.NoError(t, repo.Save(ctx, repository.QRSession{OrderID: "42", QRData: "b", ExpiresAt: first.Add(time.Hour)}))

	latest, err := repo.GetLatest(ctx, "42")
	require.NoError(t, err)
	require.Equal(t, "b", latest.QRData)
}
