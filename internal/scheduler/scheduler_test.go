package scheduler

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/reedfamily/craftbridge/internal/backup"
	"github.com/reedfamily/craftbridge/internal/db"
)

type fakeBackup struct{ reasons []string }

func (f *fakeBackup) Create(ctx context.Context, reason string) (*backup.Backup, error) {
	f.reasons = append(f.reasons, reason)
	return &backup.Backup{ID: "b1", Filename: "world.tar.gz"}, nil
}

type fakeConsole struct{ sent []string }

func (f *fakeConsole) Send(ctx context.Context, cmd string) (string, error) {
	f.sent = append(f.sent, cmd)
	return "ok", nil
}

func newStore(t *testing.T) *Store {
	t.Helper()
	conn, err := db.Open(filepath.Join(t.TempDir(), "sched.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := db.Migrate(conn); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	return NewStore(conn)
}

func TestStoreCRUD(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()

	sc, err := st.Create(ctx, "nightly", "0 3 * * *", ActionBackup)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !sc.Enabled || sc.CronExpr != "0 3 * * *" {
		t.Fatalf("created = %+v", sc)
	}

	off := false
	expr := "*/5 * * * *"
	sc, err = st.Update(ctx, sc.ID, Patch{Enabled: &off, CronExpr: &expr})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if sc.Enabled || sc.CronExpr != expr || sc.Name != "nightly" {
		t.Fatalf("updated = %+v", sc)
	}

	bad := "not cron"
	if _, err := st.Update(ctx, sc.ID, Patch{CronExpr: &bad}); !errors.Is(err, ErrInvalidCron) {
		t.Fatalf("err = %v; want ErrInvalidCron", err)
	}
	if _, err := st.Create(ctx, "x", "* * * * *", "say a\nop me"); !errors.Is(err, ErrInvalidAction) {
		t.Fatalf("err = %v; want ErrInvalidAction", err)
	}

	if err := st.Delete(ctx, sc.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := st.Delete(ctx, sc.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second Delete err = %v", err)
	}
}

func TestTickRunsDueSchedules(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()
	st.Create(ctx, "nightly", "0 3 * * *", ActionBackup)
	st.Create(ctx, "announce", "0 * * * *", "say hourly")
	disabled, _ := st.Create(ctx, "off", "* * * * *", "say never")
	off := false
	st.Update(ctx, disabled.ID, Patch{Enabled: &off})

	fb, fc := &fakeBackup{}, &fakeConsole{}
	s := New(st, fb, fc, nil)

	s.Tick(ctx, time.Date(2024, 5, 1, 3, 0, 0, 0, time.Local))
	if len(fb.reasons) != 1 || fb.reasons[0] != "schedule nightly" {
		t.Fatalf("backups = %q", fb.reasons)
	}
	if len(fc.sent) != 1 || fc.sent[0] != "say hourly" {
		t.Fatalf("console = %q", fc.sent)
	}

	s.Tick(ctx, time.Date(2024, 5, 1, 3, 17, 0, 0, time.Local))
	if len(fb.reasons) != 1 || len(fc.sent) != 1 {
		t.Fatalf("ran outside schedule: %q %q", fb.reasons, fc.sent)
	}

	list, _ := st.List(ctx)
	for _, sc := range list {
		if sc.Enabled && sc.LastRun == "" {
			t.Errorf("schedule %s has no last_run", sc.Name)
		}
	}
}
