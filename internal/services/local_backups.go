package services

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/natefinch/atomic"
	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v3/disk"

	"github.com/isdelr/mealie-backup/internal/models"
)

// Seams for tests.
var (
	fileCreationTime = creationTime
	diskUsage        = disk.Usage
	removeFile       = os.Remove
)

const backupFileMode = 0o644

var errInvalidName = errors.New("backup name is not a plain file name")

// SaveBackup writes data to dir/name. The file is written to a temporary
// file and renamed into place, so it is either complete or absent.
func SaveBackup(dir, name string, data []byte) (string, error) {
	if !isPlainFileName(name) {
		return "", &FilesystemError{Op: "save", Path: name, Err: errInvalidName}
	}
	path := filepath.Join(dir, name)

	usage, err := diskUsage(dir)
	if err != nil {
		log.Warn().Err(err).Str("dir", dir).Msg("Could not determine free disk space, writing anyway")
	} else if usage.Free < uint64(len(data)) {
		return "", &FilesystemError{
			Op:   "save",
			Path: path,
			Err: fmt.Errorf("not enough free space: need %s, have %s",
				humanize.Bytes(uint64(len(data))), humanize.Bytes(usage.Free)),
		}
	}

	// The temp file is created 0600. New backups get 0644, overwritten ones keep their mode.
	mode := os.FileMode(backupFileMode)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return "", &FilesystemError{Op: "save", Path: path, Err: err}
	}
	if err := os.Chmod(path, mode); err != nil {
		return "", &FilesystemError{Op: "chmod", Path: path, Err: err}
	}
	return path, nil
}

// ListLocalBackups returns the regular files in dir. Entries that cannot be
// stat'ed are skipped; files whose creation time cannot be read get the Unix epoch.
func ListLocalBackups(dir string) ([]models.LocalBackupFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &FilesystemError{Op: "read dir", Path: dir, Err: err}
	}

	var files []models.LocalBackupFile
	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())
		info, err := os.Stat(path)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		created, err := fileCreationTime(path, info)
		if err != nil {
			log.Debug().Err(err).Str("path", path).Msg("Creation time unavailable, treating file as oldest")
			created = time.Unix(0, 0).UTC()
		}
		files = append(files, models.LocalBackupFile{
			Name:      entry.Name(),
			Path:      path,
			Size:      info.Size(),
			CreatedAt: created,
		})
	}
	return files, nil
}

// PlanLocalPrune returns the files to delete so that at most keep remain,
// oldest first. It returns nil when len(files) <= keep.
func PlanLocalPrune(files []models.LocalBackupFile, keep int) []models.LocalBackupFile {
	if len(files) <= keep {
		return nil
	}
	sorted := make([]models.LocalBackupFile, len(files))
	copy(sorted, files)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].CreatedAt.Equal(sorted[j].CreatedAt) {
			return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
		}
		return sorted[i].Name < sorted[j].Name
	})
	return sorted[:len(sorted)-keep]
}

// DeleteLocalBackups removes the given files one at a time and stops at the
// first failure. It returns the names that were removed.
func DeleteLocalBackups(files []models.LocalBackupFile) ([]string, error) {
	deleted := make([]string, 0, len(files))
	for _, f := range files {
		if err := removeFile(f.Path); err != nil {
			return deleted, &FilesystemError{Op: "delete", Path: f.Path, Err: err}
		}
		log.Info().Str("path", f.Path).Time("created_at", f.CreatedAt).Msg("Deleted local backup")
		deleted = append(deleted, f.Name)
	}
	return deleted, nil
}

func isPlainFileName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, `/\`) && filepath.Base(name) == name
}
