package backup

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/reedfamily/craftbridge/internal/db"
)

type recordingConsole struct {
	sent []string
	fail string
}

func (r *recordingConsole) Send(ctx context.Context, cmd string) (string, error) {
	r.sent = append(r.sent, cmd)
	if cmd == r.fail {
		return "", errors.New("rcon down")
	}
	return "", nil
}

func newService(t *testing.T, console Console) (*Service, string) {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := db.Migrate(conn); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	world := filepath.Join(dir, "world")
	if err := os.MkdirAll(filepath.Join(world, "region"), 0755); err != nil {
		t.Fatal(err)
	}
	os.WriteFile(filepath.Join(world, "level.dat"), []byte("level"), 0644)
	os.WriteFile(filepath.Join(world, "region", "r.0.0.mca"), []byte("chunks"), 0644)
	os.WriteFile(filepath.Join(world, "session.lock"), []byte("lock"), 0644)
	return NewService(conn, world, filepath.Join(dir, "backups"), console), world
}

func TestCreateListRestore(t *testing.T) {
	rc := &recordingConsole{}
	svc, world := newService(t, rc)
	ctx := context.Background()

	b, err := svc.Create(ctx, "manual")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	want := []string{"save-off", "save-all flush", "save-on"}
	if len(rc.sent) != len(want) || rc.sent[0] != want[0] || rc.sent[1] != want[1] || rc.sent[2] != want[2] {
		t.Fatalf("console = %q; want %q", rc.sent, want)
	}

	list, err := svc.List(ctx)
	if err != nil || len(list) != 1 || list[0].ID != b.ID || list[0].Reason != "manual" {
		t.Fatalf("List = %+v, %v", list, err)
	}

	os.WriteFile(filepath.Join(world, "level.dat"), []byte("corrupted"), 0644)
	if err := svc.Restore(ctx, b.ID); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(world, "level.dat"))
	if err != nil || string(data) != "level" {
		t.Fatalf("level.dat = %q, %v", data, err)
	}
	if _, err := os.Stat(filepath.Join(world, "region", "r.0.0.mca")); err != nil {
		t.Fatalf("region file not restored: %v", err)
	}
	if _, err := os.Stat(filepath.Join(world, "session.lock")); !os.IsNotExist(err) {
		t.Fatalf("session.lock was archived")
	}

	if err := svc.Delete(ctx, b.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if list, _ := svc.List(ctx); len(list) != 0 {
		t.Fatalf("List after delete = %+v", list)
	}
}

func TestCreateReenablesSaveOnFailure(t *testing.T) {
	rc := &recordingConsole{fail: "save-all flush"}
	svc, _ := newService(t, rc)
	if _, err := svc.Create(context.Background(), "scheduled"); err == nil {
		t.Fatal("expected save-all failure")
	}
	if last := rc.sent[len(rc.sent)-1]; last != "save-on" {
		t.Fatalf("last command = %q; want save-on", last)
	}
}

func TestCreateWithoutConsole(t *testing.T) {
	svc, _ := newService(t, nil)
	if _, err := svc.Create(context.Background(), ""); err != nil {
		t.Fatalf("Create: %v", err)
	}
}

func TestUnpackRejectsEscapingPaths(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "evil.tar.gz")
	f, err := os.Create(src)
	if err != nil {
		t.Fatal(err)
	}
	zw := gzip.NewWriter(f)
	tw := tar.NewWriter(zw)
	body := []byte("pwned")
	if err := tw.WriteHeader(&tar.Header{Name: "../escape.txt", Mode: 0644, Size: int64(len(body)), Typeflag: tar.TypeReg}); err != nil {
		t.Fatal(err)
	}
	tw.Write(body)
	tw.Close()
	zw.Close()
	f.Close()

	dest := filepath.Join(dir, "world")
	if err := os.MkdirAll(dest, 0755); err != nil {
		t.Fatal(err)
	}
	if err := unpackWorld(src, dest); err == nil {
		t.Fatal("unpacked an archive entry outside the destination")
	}
	if _, err := os.Stat(filepath.Join(dir, "escape.txt")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("escape.txt written: %v", err)
	}
}
