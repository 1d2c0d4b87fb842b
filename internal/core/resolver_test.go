package core

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/khlayyel/alertsystem/internal/config"
	"github.com/khlayyel/alertsystem/internal/sqlite"
	"github.com/khlayyel/alertsystem/pkg/models"
)

func testDB(t *testing.T) *sqlite.DB {
	t.Helper()
	db, err := sqlite.New(sqlite.Options{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Config: config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "test.db")},
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

type directory struct {
	ops, fin       models.DepartmentID
	admin          *models.User
	opsManager     *models.User
	opsMember      *models.User
	finMember      *models.User
	inactiveMember *models.User
}

func seedDirectory(t *testing.T, db *sqlite.DB) directory {
	t.Helper()
	ctx := context.Background()

	ops := &models.Department{Name: "Operations"}
	fin := &models.Department{Name: "Finance"}
	for _, d := range []*models.Department{ops, fin} {
		if err := db.CreateDepartment(ctx, d); err != nil {
			t.Fatal(err)
		}
	}

	mkUser := func(name string, role models.UserRole, dept *models.DepartmentID, active bool) *models.User {
		u := &models.User{FullName: name, Email: name + "@example.com", Role: role, DepartmentID: dept, IsActive: active}
		if err := db.CreateUser(ctx, u); err != nil {
			t.Fatal(err)
		}
		return u
	}

	return directory{
		ops:            ops.ID,
		fin:            fin.ID,
		admin:          mkUser("admin", models.UserRoleAdmin, nil, true),
		opsManager:     mkUser("ops-manager", models.UserRoleManager, &ops.ID, true),
		opsMember:      mkUser("ops-member", models.UserRoleMember, &ops.ID, true),
		finMember:      mkUser("fin-member", models.UserRoleMember, &fin.ID, true),
		inactiveMember: mkUser("ops-gone", models.UserRoleMember, &ops.ID, false),
	}
}

func ids(users []*models.User) map[models.UserID]bool {
	out := make(map[models.UserID]bool, len(users))
	for _, u := range users {
		out[u.ID] = true
	}
	return out
}

func TestResolveRecipientsByIDs(t *testing.T) {
	db := testDB(t)
	d := seedDirectory(t, db)
	ctx := context.Background()

	// Admin resolves across departments; unknown and inactive ids drop out.
	got, err := ResolveRecipients(ctx, db, d.admin, models.TargetSpec{
		UserIDs: []models.UserID{d.opsMember.ID, d.finMember.ID, d.inactiveMember.ID, 9999},
	})
	if err != nil {
		t.Fatalf("ResolveRecipients: %v", err)
	}
	got1 := ids(got)
	if len(got) != 2 || !got1[d.opsMember.ID] || !got1[d.finMember.ID] {
		t.Errorf("admin resolution = %v, want ops and fin members", got1)
	}
}

func TestResolveRecipientsExcludesActor(t *testing.T) {
	db := testDB(t)
	d := seedDirectory(t, db)

	got, err := ResolveRecipients(context.Background(), db, d.opsManager, models.TargetSpec{
		UserIDs: []models.UserID{d.opsManager.ID, d.opsMember.ID},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != d.opsMember.ID {
		t.Errorf("actor must never receive their own alert: %v", ids(got))
	}
}

func TestResolveRecipientsDepartmentScoping(t *testing.T) {
	db := testDB(t)
	d := seedDirectory(t, db)
	ctx := context.Background()

	// A manager cannot reach outside their own department by direct ids.
	got, err := ResolveRecipients(ctx, db, d.opsManager, models.TargetSpec{
		UserIDs: []models.UserID{d.opsMember.ID, d.finMember.ID},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != d.opsMember.ID {
		t.Errorf("cross-department leak: %v", ids(got))
	}

	// Targeting a foreign department resolves to nothing.
	got, err = ResolveRecipients(ctx, db, d.opsManager, models.TargetSpec{DepartmentID: &d.fin})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("foreign department must resolve empty, got %v", ids(got))
	}

	// Admin may target any department.
	got, err = ResolveRecipients(ctx, db, d.admin, models.TargetSpec{DepartmentID: &d.fin})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != d.finMember.ID {
		t.Errorf("admin department targeting = %v", ids(got))
	}
}

func TestResolveRecipientsBroadcast(t *testing.T) {
	db := testDB(t)
	d := seedDirectory(t, db)
	ctx := context.Background()

	// Admin broadcast reaches every active user except the admin.
	got, err := ResolveRecipients(ctx, db, d.admin, models.TargetSpec{Broadcast: true})
	if err != nil {
		t.Fatal(err)
	}
	got1 := ids(got)
	if len(got) != 3 || got1[d.admin.ID] || got1[d.inactiveMember.ID] {
		t.Errorf("admin broadcast = %v, want 3 active non-actor users", got1)
	}

	// Non-admin broadcast collapses to their own department.
	got, err = ResolveRecipients(ctx, db, d.opsManager, models.TargetSpec{Broadcast: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != d.opsMember.ID {
		t.Errorf("manager broadcast = %v, want ops member only", ids(got))
	}
}

func TestResolveRecipientsEmptySpec(t *testing.T) {
	db := testDB(t)
	d := seedDirectory(t, db)

	got, err := ResolveRecipients(context.Background(), db, d.admin, models.TargetSpec{})
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Errorf("empty spec should resolve to nothing, got %v", ids(got))
	}
}

func TestResolveRecipientsNilActor(t *testing.T) {
	db := testDB(t)
	if _, err := ResolveRecipients(context.Background(), db, nil, models.TargetSpec{Broadcast: true}); err == nil {
		t.Error("expected error for nil actor")
	}
}
