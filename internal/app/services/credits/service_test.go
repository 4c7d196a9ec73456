package credits

import (
	"context"
	"sync"
	"testing"

	"github.com/parcellink/backend/internal/app/domain/credit"
	"github.com/parcellink/backend/internal/app/domain/user"
	"github.com/parcellink/backend/internal/app/storage/memory"
	"github.com/parcellink/backend/internal/errors"
)

func seedUser(t *testing.T, store *memory.Store, credits int64) user.User {
	t.Helper()
	u, err := store.CreateUser(context.Background(), user.User{TelegramID: 42, Role: user.RoleUser})
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	if credits > 0 {
		if _, _, err := store.AddCredits(context.Background(), u.ID, credit.Transaction{Amount: credits}); err != nil {
			t.Fatalf("seed credits: %v", err)
		}
	}
	return u
}

func TestAddAndBalance(t *testing.T) {
	store := memory.New()
	svc := New(store, nil)
	ctx := context.Background()
	u := seedUser(t, store, 0)

	entry, balance, err := svc.Add(ctx, u.ID, 50, credit.KindAdd, "top-up")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if balance != 50 {
		t.Fatalf("balance = %d, want 50", balance)
	}
	if entry.Kind != credit.KindAdd || entry.Amount != 50 {
		t.Fatalf("unexpected entry %+v", entry)
	}

	got, err := svc.Balance(ctx, u.ID)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if got != 50 {
		t.Fatalf("balance = %d, want 50", got)
	}
}

func TestAddRejectsNonPositiveAmount(t *testing.T) {
	store := memory.New()
	svc := New(store, nil)
	u := seedUser(t, store, 0)

	for _, amount := range []int64{0, -5} {
		_, _, err := svc.Add(context.Background(), u.ID, amount, credit.KindAdd, "")
		svcErr := errors.GetServiceError(err)
		if svcErr == nil || svcErr.Code != errors.CodeValidation {
			t.Fatalf("amount %d: err = %v, want VALIDATION_ERROR", amount, err)
		}
	}
}

func TestDeductZeroAmountRecordsFreeAction(t *testing.T) {
	store := memory.New()
	svc := New(store, nil)
	ctx := context.Background()
	u := seedUser(t, store, 30)

	entry, balance, err := svc.Deduct(ctx, u.ID, 0, "free action")
	if err != nil {
		t.Fatalf("zero deduct: %v", err)
	}
	if balance != 30 {
		t.Fatalf("balance = %d, want untouched 30", balance)
	}
	if entry.Kind != credit.KindDeduct || entry.Amount != 0 {
		t.Fatalf("unexpected entry %+v", entry)
	}

	// The free action still lands in the audit trail.
	history, total, err := svc.History(ctx, u.ID, credit.KindDeduct, 0, 0)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if total != 1 || history[0].Amount != 0 {
		t.Fatalf("expected one zero-amount deduct row, got %+v", history)
	}

	// Negative amounts are still rejected.
	_, _, err = svc.Deduct(ctx, u.ID, -5, "")
	svcErr := errors.GetServiceError(err)
	if svcErr == nil || svcErr.Code != errors.CodeValidation {
		t.Fatalf("negative deduct: err = %v, want VALIDATION_ERROR", err)
	}
}

func TestDeductInsufficientCarriesBalance(t *testing.T) {
	store := memory.New()
	svc := New(store, nil)
	u := seedUser(t, store, 30)

	_, _, err := svc.Deduct(context.Background(), u.ID, 100, "fee")
	svcErr := errors.GetServiceError(err)
	if svcErr == nil || svcErr.Code != errors.CodeInsufficientCredits {
		t.Fatalf("err = %v, want INSUFFICIENT_CREDITS", err)
	}
	if svcErr.Details["current_balance"] != int64(30) {
		t.Fatalf("current_balance detail = %v, want 30", svcErr.Details["current_balance"])
	}
	if svcErr.Details["required_amount"] != int64(100) {
		t.Fatalf("required_amount detail = %v, want 100", svcErr.Details["required_amount"])
	}

	// A failed deduction must leave neither a balance change nor history.
	balance, err := svc.Balance(context.Background(), u.ID)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance != 30 {
		t.Fatalf("balance = %d, want untouched 30", balance)
	}
	history, _, err := svc.History(context.Background(), u.ID, credit.KindDeduct, 0, 0)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 0 {
		t.Fatalf("deduct history = %d rows, want 0", len(history))
	}
}

func TestHistoryNewestFirst(t *testing.T) {
	store := memory.New()
	svc := New(store, nil)
	ctx := context.Background()
	u := seedUser(t, store, 0)

	for _, amount := range []int64{10, 20, 30} {
		if _, _, err := svc.Add(ctx, u.ID, amount, credit.KindAdd, ""); err != nil {
			t.Fatalf("add %d: %v", amount, err)
		}
	}

	history, total, err := svc.History(ctx, u.ID, "", 0, 0)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if total != 3 {
		t.Fatalf("total = %d, want 3", total)
	}
	if history[0].Amount != 30 || history[2].Amount != 10 {
		t.Fatalf("history not newest-first: %+v", history)
	}
}

func TestConcurrentDeductsNeverOverdraw(t *testing.T) {
	store := memory.New()
	svc := New(store, nil)
	ctx := context.Background()
	u := seedUser(t, store, 100)

	const workers = 20
	var wg sync.WaitGroup
	successes := make(chan int64, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, _, err := svc.Deduct(ctx, u.ID, 10, "race"); err == nil {
				successes <- 10
			}
		}()
	}
	wg.Wait()
	close(successes)

	var deducted int64
	for amount := range successes {
		deducted += amount
	}
	balance, err := svc.Balance(ctx, u.ID)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance < 0 {
		t.Fatalf("balance went negative: %d", balance)
	}
	if balance != 100-deducted {
		t.Fatalf("balance = %d, want %d (100 - %d deducted)", balance, 100-deducted, deducted)
	}
	if deducted != 100 {
		t.Fatalf("deducted total = %d, want exactly 100", deducted)
	}
}
