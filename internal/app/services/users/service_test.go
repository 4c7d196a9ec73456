package users

import (
	"context"
	"testing"

	"github.com/parcellink/backend/internal/app/domain/credit"
	"github.com/parcellink/backend/internal/app/storage"
	"github.com/parcellink/backend/internal/app/storage/memory"
	"github.com/parcellink/backend/internal/errors"
	"github.com/parcellink/backend/internal/telegram"
)

func TestEnsureUserCreatesWithStartingCredits(t *testing.T) {
	store := memory.New()
	svc := New(store, store, 100, nil)

	u, created, err := svc.EnsureUser(context.Background(), telegram.Identity{
		TelegramID: 42,
		Username:   "sender",
		FirstName:  "Kim",
	})
	if err != nil {
		t.Fatalf("ensure user: %v", err)
	}
	if !created {
		t.Fatal("expected first login to create the user")
	}
	if u.Credits != 100 {
		t.Fatalf("credits = %d, want 100", u.Credits)
	}
	if u.Role != "user" {
		t.Fatalf("role = %q, want user", u.Role)
	}

	history, total, err := store.ListTransactions(context.Background(), storage.TransactionFilter{UserID: u.ID})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if total != 1 {
		t.Fatalf("history rows = %d, want 1 grant entry", total)
	}
	if history[0].Kind != credit.KindAdd || history[0].Amount != 100 {
		t.Fatalf("unexpected grant entry %+v", history[0])
	}
}

func TestEnsureUserIsIdempotentPerTelegramID(t *testing.T) {
	store := memory.New()
	svc := New(store, store, 100, nil)
	ctx := context.Background()

	first, _, err := svc.EnsureUser(ctx, telegram.Identity{TelegramID: 42, Username: "sender"})
	if err != nil {
		t.Fatalf("first login: %v", err)
	}
	second, created, err := svc.EnsureUser(ctx, telegram.Identity{TelegramID: 42, Username: "sender"})
	if err != nil {
		t.Fatalf("second login: %v", err)
	}
	if created {
		t.Fatal("second login must not create a new user")
	}
	if second.ID != first.ID {
		t.Fatalf("second login returned %q, want %q", second.ID, first.ID)
	}
	if second.Credits != 100 {
		t.Fatalf("credits after second login = %d, want 100 (no double grant)", second.Credits)
	}
}

func TestEnsureUserRefreshesProfile(t *testing.T) {
	store := memory.New()
	svc := New(store, store, 0, nil)
	ctx := context.Background()

	u, _, err := svc.EnsureUser(ctx, telegram.Identity{TelegramID: 42, Username: "old_name"})
	if err != nil {
		t.Fatalf("first login: %v", err)
	}

	updated, _, err := svc.EnsureUser(ctx, telegram.Identity{TelegramID: 42, Username: "new_name", FirstName: "Kim"})
	if err != nil {
		t.Fatalf("second login: %v", err)
	}
	if updated.ID != u.ID {
		t.Fatalf("user id changed across logins")
	}
	if updated.Username != "new_name" || updated.FirstName != "Kim" {
		t.Fatalf("profile not refreshed: %+v", updated)
	}
}

func TestGetUnknownUser(t *testing.T) {
	store := memory.New()
	svc := New(store, store, 100, nil)

	_, err := svc.Get(context.Background(), "no-such-id")
	svcErr := errors.GetServiceError(err)
	if svcErr == nil || svcErr.Code != errors.CodeNotFound {
		t.Fatalf("err = %v, want NOT_FOUND", err)
	}
}

func TestEnsureUserStampsLastLogin(t *testing.T) {
	store := memory.New()
	svc := New(store, store, 0, nil)
	ctx := context.Background()

	u, _, err := svc.EnsureUser(ctx, telegram.Identity{TelegramID: 42})
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	fetched, err := svc.Get(ctx, u.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if fetched.LastLoginAt == nil {
		t.Fatal("last_login_at not set on login")
	}
}

func TestCreateRejectsDuplicateTelegramID(t *testing.T) {
	store := memory.New()
	svc := New(store, store, 0, nil)
	ctx := context.Background()

	created, err := svc.Create(ctx, CreateInput{TelegramID: 42, Username: "sender", Credits: 50})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Credits != 50 {
		t.Fatalf("credits = %d, want 50", created.Credits)
	}

	history, total, err := store.ListTransactions(context.Background(), storage.TransactionFilter{UserID: created.ID})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if total != 1 || history[0].Amount != 50 {
		t.Fatalf("expected one 50-credit grant row, got %+v", history)
	}

	_, err = svc.Create(ctx, CreateInput{TelegramID: 42, Username: "other"})
	svcErr := errors.GetServiceError(err)
	if svcErr == nil || svcErr.Code != errors.CodeConflict {
		t.Fatalf("duplicate create: err = %v, want CONFLICT", err)
	}
}

func TestCreateValidatesInput(t *testing.T) {
	store := memory.New()
	svc := New(store, store, 0, nil)

	_, err := svc.Create(context.Background(), CreateInput{TelegramID: 0, Role: "superuser", Credits: -5})
	svcErr := errors.GetServiceError(err)
	if svcErr == nil || svcErr.Code != errors.CodeValidation {
		t.Fatalf("err = %v, want VALIDATION_ERROR", err)
	}
	if svcErr.FieldCount() != 3 {
		t.Fatalf("field violations = %d, want 3 (telegram_id, role, credits)", svcErr.FieldCount())
	}
}

func TestUpdateCreditsRequiresAdmin(t *testing.T) {
	store := memory.New()
	svc := New(store, store, 100, nil)
	ctx := context.Background()

	u, _, err := svc.EnsureUser(ctx, telegram.Identity{TelegramID: 42})
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}

	target := int64(150)
	_, err = svc.Update(ctx, u.ID, false, UpdateInput{Credits: &target})
	svcErr := errors.GetServiceError(err)
	if svcErr == nil || svcErr.Code != errors.CodeForbidden {
		t.Fatalf("non-admin credits update: err = %v, want FORBIDDEN", err)
	}
}

func TestUpdateCreditsGoesThroughLedger(t *testing.T) {
	store := memory.New()
	svc := New(store, store, 100, nil)
	ctx := context.Background()

	u, _, err := svc.EnsureUser(ctx, telegram.Identity{TelegramID: 42})
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}

	target := int64(60)
	updated, err := svc.Update(ctx, u.ID, true, UpdateInput{Credits: &target})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Credits != 60 {
		t.Fatalf("credits = %d, want 60", updated.Credits)
	}

	// The balance must stay the signed sum of history: one 100 grant and
	// one 40 deduction.
	history, total, err := store.ListTransactions(ctx, storage.TransactionFilter{UserID: u.ID})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if total != 2 {
		t.Fatalf("history rows = %d, want 2", total)
	}
	var sum int64
	for _, entry := range history {
		if entry.Kind == credit.KindAdd || entry.Kind == credit.KindRefund {
			sum += entry.Amount
		} else {
			sum -= entry.Amount
		}
	}
	if sum != 60 {
		t.Fatalf("signed history sum = %d, want 60", sum)
	}
}

func TestUpdateProfileFields(t *testing.T) {
	store := memory.New()
	svc := New(store, store, 0, nil)
	ctx := context.Background()

	u, _, err := svc.EnsureUser(ctx, telegram.Identity{TelegramID: 42, Username: "old"})
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}

	name := "  new_name "
	phone := "+995555123456"
	updated, err := svc.Update(ctx, u.ID, false, UpdateInput{Username: &name, Phone: &phone})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Username != "new_name" {
		t.Fatalf("username = %q, want trimmed new_name", updated.Username)
	}
	if updated.Phone != phone {
		t.Fatalf("phone = %q, want %q", updated.Phone, phone)
	}
}

func TestGetByTelegramID(t *testing.T) {
	store := memory.New()
	svc := New(store, store, 0, nil)
	ctx := context.Background()

	u, _, err := svc.EnsureUser(ctx, telegram.Identity{TelegramID: 42})
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}

	found, err := svc.GetByTelegramID(ctx, 42)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if found.ID != u.ID {
		t.Fatalf("lookup returned %q, want %q", found.ID, u.ID)
	}

	_, err = svc.GetByTelegramID(ctx, 43)
	svcErr := errors.GetServiceError(err)
	if svcErr == nil || svcErr.Code != errors.CodeNotFound {
		t.Fatalf("unknown id: err = %v, want NOT_FOUND", err)
	}
}

func TestSetRoleValidation(t *testing.T) {
	store := memory.New()
	svc := New(store, store, 0, nil)
	ctx := context.Background()

	u, _, err := svc.EnsureUser(ctx, telegram.Identity{TelegramID: 1})
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}

	if _, err := svc.SetRole(ctx, u.ID, "superuser"); errors.GetServiceError(err) == nil {
		t.Fatalf("invalid role accepted: %v", err)
	}

	promoted, err := svc.SetRole(ctx, u.ID, "admin")
	if err != nil {
		t.Fatalf("promote: %v", err)
	}
	if !promoted.IsAdmin() {
		t.Fatalf("role = %q, want admin", promoted.Role)
	}
}
