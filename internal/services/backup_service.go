package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/isdelr/mealie-backup/internal/metrics"
	"github.com/isdelr/mealie-backup/internal/models"
)

// BackupClient is the subset of the Mealie API used by a backup run.
type BackupClient interface {
	ListBackups(ctx context.Context, locale string) (models.BackupCatalog, error)
	CreateBackup(ctx context.Context, locale string) (models.SuccessResult, error)
	RequestDownloadToken(ctx context.Context, name, locale string) (models.DownloadToken, error)
	DownloadByToken(ctx context.Context, token models.DownloadToken) ([]byte, error)
	DeleteBackup(ctx context.Context, name, locale string) (models.SuccessResult, error)
}

// BackupServiceProvider defines the interface for backup runs.
type BackupServiceProvider interface {
	Run(ctx context.Context) (models.RunSummary, error)
}

// BackupOptions holds the retention settings and local storage location.
type BackupOptions struct {
	MaxServerBackups     int
	MaxLocalBackups      int
	LocalBackupsLocation string
	Locale               string
}

// BackupService creates, downloads and prunes Mealie backups.
type BackupService struct {
	client       BackupClient
	eventService EventServiceProvider
	opts         BackupOptions
}

// NewBackupService creates a new BackupService.
func NewBackupService(client BackupClient, eventService EventServiceProvider, opts BackupOptions) *BackupService {
	return &BackupService{
		client:       client,
		eventService: eventService,
		opts:         opts,
	}
}

// Run performs one full backup cycle: create, list, download the newest
// backup, save it, then prune the server and the local directory. Steps run
// strictly in order and the first failure ends the run.
func (s *BackupService) Run(ctx context.Context) (models.RunSummary, error) {
	summary := models.RunSummary{
		RunID:     uuid.New().String(),
		StartedAt: time.Now(),
	}
	logger := log.With().Str("run_id", summary.RunID).Logger()

	logger.Info().Msg("Starting backup run")
	s.record(summary.RunID, "run.start", "info", "Backup run started.", nil)

	err := s.run(ctx, &summary)
	summary.FinishedAt = time.Now()

	var stepErr *StepError
	if err != nil {
		failedStep := "unknown"
		if errors.As(err, &stepErr) {
			failedStep = stepErr.Step
		}
		metrics.ObserveRun(summary.StartedAt, failedStep)
		logger.Error().Err(err).Str("step", failedStep).Msg("Backup run failed")
		s.record(summary.RunID, "run.fail", "error", fmt.Sprintf("Backup run failed: %v", err), optional(summary.Backup))
		return summary, err
	}

	metrics.ObserveRun(summary.StartedAt, "")
	logger.Info().
		Str("backup", summary.Backup).
		Dur("duration", summary.FinishedAt.Sub(summary.StartedAt)).
		Msg("Backup run finished")
	s.record(summary.RunID, "run.success", "info", fmt.Sprintf("Backup '%s' downloaded and retention applied.", summary.Backup), &summary.Backup)
	return summary, nil
}

func (s *BackupService) run(ctx context.Context, summary *models.RunSummary) error {
	runID := summary.RunID

	// 1. Trigger creation.
	created, err := s.client.CreateBackup(ctx, s.opts.Locale)
	if err != nil {
		return &StepError{Step: StepCreate, Err: err}
	}
	if created.Error {
		log.Warn().Str("run_id", runID).Str("server_message", created.Message).Msg("Server reported an error while creating backup")
		s.record(runID, "backup.create", "warn", fmt.Sprintf("Server reported backup creation error: %s", created.Message), nil)
	} else {
		log.Info().Str("run_id", runID).Str("server_message", created.Message).Msg("Server backup created")
		s.record(runID, "backup.create", "info", "Server backup created.", nil)
	}

	// 2. Enumerate.
	catalog, err := s.client.ListBackups(ctx, s.opts.Locale)
	if err != nil {
		return &StepError{Step: StepList, Err: err}
	}

	// 3. Select target.
	target, err := SelectTarget(catalog)
	if err != nil {
		return &StepError{Step: StepSelect, Err: err}
	}
	summary.Backup = target.Name
	log.Info().Str("run_id", runID).Str("backup", target.Name).Str("date", target.Date).Int("server_backups", len(catalog.Backups)).Msg("Selected backup")

	// 4. Materialize.
	token, err := s.client.RequestDownloadToken(ctx, target.Name, s.opts.Locale)
	if err != nil {
		return &StepError{Step: StepDownload, Backup: target.Name, Err: err}
	}
	data, err := s.client.DownloadByToken(ctx, token)
	if err != nil {
		return &StepError{Step: StepDownload, Backup: target.Name, Err: err}
	}
	summary.Bytes = int64(len(data))
	s.record(runID, "backup.download", "info", fmt.Sprintf("Downloaded backup '%s' (%s).", target.Name, humanize.Bytes(uint64(len(data)))), &target.Name)

	// 5. Persist.
	path, err := SaveBackup(s.opts.LocalBackupsLocation, target.Name, data)
	if err != nil {
		return &StepError{Step: StepSave, Backup: target.Name, Err: err}
	}
	metrics.DownloadedBytesTotal.Add(float64(len(data)))
	log.Info().Str("run_id", runID).Str("path", path).Str("size", humanize.Bytes(uint64(len(data)))).Msg("Backup downloaded and saved successfully")
	s.record(runID, "backup.save", "info", fmt.Sprintf("Saved backup to %s.", path), &target.Name)

	// 6. Prune server.
	if oldest := PlanServerPrune(catalog, s.opts.MaxServerBackups); oldest != nil {
		if _, err := s.client.DeleteBackup(ctx, oldest.Name, s.opts.Locale); err != nil {
			return &StepError{Step: StepPruneServer, Backup: oldest.Name, Err: err}
		}
		summary.ServerDeleted = oldest.Name
		metrics.ServerDeletedTotal.Inc()
		log.Info().Str("run_id", runID).Str("backup", oldest.Name).Str("date", oldest.Date).Msg("Deleted oldest server backup")
		s.record(runID, "backup.prune.server", "warn", fmt.Sprintf("Deleted oldest server backup '%s'.", oldest.Name), &oldest.Name)
	}

	// 7. Prune local.
	files, err := ListLocalBackups(s.opts.LocalBackupsLocation)
	if err != nil {
		return &StepError{Step: StepPruneLocal, Err: err}
	}
	deleted, err := DeleteLocalBackups(PlanLocalPrune(files, s.opts.MaxLocalBackups))
	summary.LocalDeleted = deleted
	metrics.LocalDeletedTotal.Add(float64(len(deleted)))
	for i := range deleted {
		s.record(runID, "backup.prune.local", "warn", fmt.Sprintf("Deleted local backup '%s'.", deleted[i]), &deleted[i])
	}
	if err != nil {
		return &StepError{Step: StepPruneLocal, Err: err}
	}
	return nil
}

// SelectTarget returns the backup to download: the first entry in the
// order the server listed them.
func SelectTarget(catalog models.BackupCatalog) (models.BackupRecord, error) {
	if len(catalog.Backups) == 0 {
		return models.BackupRecord{}, &EmptyCatalogError{Templates: len(catalog.Templates)}
	}
	return catalog.Backups[0], nil
}

// PlanServerPrune returns the server backup to delete, or nil when the
// catalog holds fewer than limit backups. The oldest backup is chosen; backups
// with an unparseable date count as older than any dated backup and the
// first of several equally old backups wins.
func PlanServerPrune(catalog models.BackupCatalog, limit int) *models.BackupRecord {
	if len(catalog.Backups) == 0 || len(catalog.Backups) < limit {
		return nil
	}
	oldest := 0
	for i := 1; i < len(catalog.Backups); i++ {
		if olderThan(catalog.Backups[i], catalog.Backups[oldest]) {
			oldest = i
		}
	}
	b := catalog.Backups[oldest]
	return &b
}

func olderThan(a, b models.BackupRecord) bool {
	at, aok := a.CreatedAt()
	bt, bok := b.CreatedAt()
	switch {
	case !aok:
		return bok
	case !bok:
		return false
	default:
		return at.Before(bt)
	}
}

// record writes an event to the run ledger. Ledger failures never fail a run.
func (s *BackupService) record(runID, eventType, level, message string, backup *string) {
	if s.eventService == nil {
		return
	}
	if err := s.eventService.CreateEvent(runID, eventType, level, message, backup); err != nil {
		log.Warn().Err(err).Str("run_id", runID).Str("event", eventType).Msg("Failed to record event")
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
