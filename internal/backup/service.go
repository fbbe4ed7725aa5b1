package backup

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/reedfamily/craftbridge/internal/logx"
)

type Backup struct {
	ID        string `json:"id"`
	Filename  string `json:"filename"`
	SizeBytes int64  `json:"size_bytes"`
	Reason    string `json:"reason"`
	CreatedAt string `json:"created_at"`
}

// Console runs a server command; used to pause autosave around a backup.
type Console interface {
	Send(ctx context.Context, cmd string) (string, error)
}

type Service struct {
	db        *sql.DB
	worldDir  string
	backupDir string
	console   Console
	log       zerolog.Logger

	mu sync.Mutex
}

// NewService archives worldDir into backupDir. console may be nil, in which
// case the world is copied without pausing saves.
func NewService(db *sql.DB, worldDir, backupDir string, console Console) *Service {
	return &Service{
		db:        db,
		worldDir:  worldDir,
		backupDir: backupDir,
		console:   console,
		log:       logx.Component("backup"),
	}
}

// Create writes a tar.gz of the world directory. Autosave is switched off
// and the world flushed first, and switched back on afterwards even if the
// archive fails.
func (s *Service) Create(ctx context.Context, reason string) (*Backup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(s.worldDir); os.IsNotExist(err) {
		return nil, fmt.Errorf("world directory not found: %s", s.worldDir)
	}
	if err := os.MkdirAll(s.backupDir, 0755); err != nil {
		return nil, fmt.Errorf("create backup directory: %w", err)
	}

	if s.console != nil {
		if _, err := s.console.Send(ctx, "save-off"); err != nil {
			return nil, fmt.Errorf("save-off: %w", err)
		}
		defer func() {
			if _, err := s.console.Send(context.WithoutCancel(ctx), "save-on"); err != nil {
				s.log.Error().Err(err).Msg("save-on failed; autosave is still disabled")
			}
		}()
		if _, err := s.console.Send(ctx, "save-all flush"); err != nil {
			return nil, fmt.Errorf("save-all: %w", err)
		}
	}

	id := uuid.New().String()[:8]
	now := time.Now()
	filename := fmt.Sprintf("%s-%s.tar.gz", now.Format("20060102-150405"), id)
	backupPath := filepath.Join(s.backupDir, filename)

	if err := archiveWorld(backupPath, s.worldDir); err != nil {
		os.Remove(backupPath)
		return nil, fmt.Errorf("create archive: %w", err)
	}

	info, err := os.Stat(backupPath)
	if err != nil {
		return nil, fmt.Errorf("stat backup: %w", err)
	}

	b := &Backup{
		ID:        id,
		Filename:  filename,
		SizeBytes: info.Size(),
		Reason:    reason,
		CreatedAt: now.UTC().Format(time.RFC3339),
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO backups (id, filename, size_bytes, reason, created_at) VALUES (?, ?, ?, ?, ?)`,
		b.ID, b.Filename, b.SizeBytes, b.Reason, b.CreatedAt,
	)
	if err != nil {
		os.Remove(backupPath)
		return nil, fmt.Errorf("save backup record: %w", err)
	}

	s.log.Info().Str("id", b.ID).Int64("bytes", b.SizeBytes).Str("reason", reason).Msg("backup created")
	return b, nil
}

// List returns all backups, newest first.
func (s *Service) List(ctx context.Context) ([]Backup, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, filename, size_bytes, reason, created_at FROM backups ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	backups := []Backup{}
	for rows.Next() {
		var b Backup
		if err := rows.Scan(&b.ID, &b.Filename, &b.SizeBytes, &b.Reason, &b.CreatedAt); err != nil {
			continue
		}
		backups = append(backups, b)
	}
	return backups, rows.Err()
}

// FilePath returns the full path to a backup file.
func (s *Service) FilePath(ctx context.Context, id string) (string, error) {
	var filename string
	err := s.db.QueryRowContext(ctx, `SELECT filename FROM backups WHERE id = ?`, id).Scan(&filename)
	if err != nil {
		return "", fmt.Errorf("backup not found: %w", err)
	}
	return filepath.Join(s.backupDir, filename), nil
}

// Delete removes a backup file and its database record.
func (s *Service) Delete(ctx context.Context, id string) error {
	path, err := s.FilePath(ctx, id)
	if err != nil {
		return err
	}
	os.Remove(path)
	_, err = s.db.ExecContext(ctx, `DELETE FROM backups WHERE id = ?`, id)
	return err
}

// Restore replaces the world directory with the contents of a backup.
// The server must be stopped first.
func (s *Service) Restore(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path, err := s.FilePath(ctx, id)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(s.worldDir); err != nil {
		return fmt.Errorf("clear world directory: %w", err)
	}
	if err := os.MkdirAll(s.worldDir, 0755); err != nil {
		return fmt.Errorf("recreate world directory: %w", err)
	}
	return unpackWorld(path, s.worldDir)
}

// archiveWorld writes srcDir as a gzipped tar to dest. Regular files and
// directories only; session.lock is held open by the running server and
// is left out.
func archiveWorld(dest, srcDir string) (err error) {
	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
	}()

	zw := gzip.NewWriter(out)
	tw := tar.NewWriter(zw)

	walkErr := filepath.WalkDir(srcDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil || rel == "." {
			return err
		}
		if d.Name() == "session.lock" || !(d.IsDir() || d.Type().IsRegular()) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		if d.IsDir() {
			hdr.Name += "/"
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		return copyFile(tw, path)
	})
	if walkErr != nil {
		return walkErr
	}
	if err := tw.Close(); err != nil {
		return err
	}
	return zw.Close()
}

func copyFile(w io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(w, f)
	return err
}

// unpackWorld extracts a backup into destDir. Entries that would land
// outside destDir are rejected; anything other than files and directories
// is skipped.
func unpackWorld(src, destDir string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	zr, err := gzip.NewReader(in)
	if err != nil {
		return fmt.Errorf("read %s: %w", filepath.Base(src), err)
	}
	defer zr.Close()

	tr := tar.NewReader(zr)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		name := filepath.FromSlash(strings.TrimSuffix(hdr.Name, "/"))
		if !filepath.IsLocal(name) {
			return fmt.Errorf("unsafe path in archive: %q", hdr.Name)
		}
		target := filepath.Join(destDir, name)
		mode := fs.FileMode(hdr.Mode).Perm()

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, mode|0700); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := writeFile(target, mode, tr); err != nil {
				return err
			}
		}
	}
}

func writeFile(path string, mode fs.FileMode, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
