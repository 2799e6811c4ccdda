package services

import (
	"errors"
	"fmt"
)

// ErrEmptyCatalog matches any *EmptyCatalogError via errors.Is.
var ErrEmptyCatalog = errors.New("no backups found on server")

// EmptyCatalogError is returned when the server lists no backups after one was requested.
type EmptyCatalogError struct {
	Templates int
}

func (e *EmptyCatalogError) Error() string { return ErrEmptyCatalog.Error() }

func (e *EmptyCatalogError) Is(target error) bool { return target == ErrEmptyCatalog }

// FilesystemError wraps a failure reading, writing or deleting local backup files.
type FilesystemError struct {
	Op   string
	Path string
	Err  error
}

func (e *FilesystemError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *FilesystemError) Unwrap() error { return e.Err }

// StepError identifies which step of a run failed, and for which backup.
type StepError struct {
	Step   string
	Backup string
	Err    error
}

func (e *StepError) Error() string {
	if e.Backup != "" {
		return fmt.Sprintf("%s (%s): %v", e.Step, e.Backup, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// Step names used in StepError and in the run ledger.
const (
	StepCreate      = "create backup"
	StepList        = "list backups"
	StepSelect      = "select backup"
	StepDownload    = "download backup"
	StepSave        = "save backup"
	StepPruneServer = "prune server backups"
	StepPruneLocal  = "prune local backups"
)
