package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isdelr/mealie-backup/internal/mealie"
	"github.com/isdelr/mealie-backup/internal/models"
)

// fakeClient implements BackupClient and records every call in order.
type fakeClient struct {
	catalog     models.BackupCatalog
	payload     []byte
	createRes   models.SuccessResult
	createErr   error
	listErr     error
	tokenErr    error
	downloadErr error
	deleteErr   error

	calls   []string
	deleted []string
}

func (f *fakeClient) CreateBackup(_ context.Context, _ string) (models.SuccessResult, error) {
	f.calls = append(f.calls, "create")
	return f.createRes, f.createErr
}

func (f *fakeClient) ListBackups(_ context.Context, _ string) (models.BackupCatalog, error) {
	f.calls = append(f.calls, "list")
	return f.catalog, f.listErr
}

func (f *fakeClient) RequestDownloadToken(_ context.Context, name, _ string) (models.DownloadToken, error) {
	f.calls = append(f.calls, "token:"+name)
	if f.tokenErr != nil {
		return "", f.tokenErr
	}
	return models.DownloadToken("tok-" + name), nil
}

func (f *fakeClient) DownloadByToken(_ context.Context, token models.DownloadToken) ([]byte, error) {
	f.calls = append(f.calls, "download:"+string(token))
	return f.payload, f.downloadErr
}

func (f *fakeClient) DeleteBackup(_ context.Context, name, _ string) (models.SuccessResult, error) {
	f.calls = append(f.calls, "delete:"+name)
	if f.deleteErr != nil {
		return models.SuccessResult{}, f.deleteErr
	}
	f.deleted = append(f.deleted, name)
	return models.SuccessResult{Message: "deleted"}, nil
}

// fakeEvents implements EventServiceProvider in memory.
type fakeEvents struct {
	events []models.Event
	err    error
}

func (f *fakeEvents) CreateEvent(runID, eventType, level, message string, backup *string) error {
	f.events = append(f.events, models.Event{RunID: runID, Type: eventType, Level: level, Message: message, Backup: backup})
	return f.err
}

func (f *fakeEvents) GetRecentEvents(limit int) ([]models.Event, error) {
	return f.events, nil
}

func (f *fakeEvents) types() []string {
	var out []string
	for _, e := range f.events {
		out = append(out, e.Type)
	}
	return out
}

func newService(t *testing.T, client *fakeClient, maxServer, maxLocal int) (*BackupService, *fakeEvents, string) {
	t.Helper()
	dir := t.TempDir()
	events := &fakeEvents{}
	svc := NewBackupService(client, events, BackupOptions{
		MaxServerBackups:     maxServer,
		MaxLocalBackups:      maxLocal,
		LocalBackupsLocation: dir,
		Locale:               "en-US",
	})
	return svc, events, dir
}

func TestRunScenarioA(t *testing.T) {
	client := &fakeClient{
		catalog: models.BackupCatalog{Backups: []models.BackupRecord{
			{Name: "b.zip", Date: "2024-01-02T00:00:00Z"},
			{Name: "a.zip", Date: "2024-01-01T00:00:00Z"},
		}},
		payload: []byte("archive-bytes"),
	}
	svc, events, dir := newService(t, client, 2, 10)

	summary, err := svc.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "b.zip", summary.Backup)
	assert.Equal(t, "a.zip", summary.ServerDeleted)
	assert.Equal(t, int64(len("archive-bytes")), summary.Bytes)
	assert.Empty(t, summary.LocalDeleted)
	assert.NotEmpty(t, summary.RunID)
	assert.Equal(t, []string{"create", "list", "token:b.zip", "download:tok-b.zip", "delete:a.zip"}, client.calls)

	got, err := os.ReadFile(filepath.Join(dir, "b.zip"))
	require.NoError(t, err)
	assert.Equal(t, []byte("archive-bytes"), got)

	assert.Equal(t, []string{"run.start", "backup.create", "backup.download", "backup.save", "backup.prune.server", "run.success"}, events.types())
	for _, e := range events.events {
		assert.Equal(t, summary.RunID, e.RunID)
	}
}

func TestRunScenarioBEmptyCatalog(t *testing.T) {
	client := &fakeClient{catalog: models.BackupCatalog{Backups: []models.BackupRecord{}}}
	svc, events, dir := newService(t, client, 2, 2)

	_, err := svc.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrEmptyCatalog))

	var empty *EmptyCatalogError
	assert.True(t, errors.As(err, &empty))

	assert.Equal(t, []string{"create", "list"}, client.calls, "no calls after the empty listing")
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Equal(t, "run.fail", events.types()[len(events.events)-1])
}

func TestRunScenarioDValidationError(t *testing.T) {
	verr := &mealie.ValidationError{
		StatusCode: 422,
		Details:    []models.FieldViolation{{Loc: []string{"query", "token"}, Msg: "expired", Type: "value_error"}},
	}
	client := &fakeClient{
		catalog:     models.BackupCatalog{Backups: []models.BackupRecord{{Name: "b.zip", Date: "2024-01-02T00:00:00Z"}}},
		downloadErr: verr,
	}
	svc, _, dir := newService(t, client, 5, 5)

	_, err := svc.Run(context.Background())
	var gotVerr *mealie.ValidationError
	require.True(t, errors.As(err, &gotVerr))
	assert.Equal(t, verr.Details, gotVerr.Details)

	var stepErr *StepError
	require.True(t, errors.As(err, &stepErr))
	assert.Equal(t, StepDownload, stepErr.Step)
	assert.Equal(t, "b.zip", stepErr.Backup)

	_, statErr := os.Stat(filepath.Join(dir, "b.zip"))
	assert.True(t, os.IsNotExist(statErr), "no file may be written")
	assert.NotContains(t, client.calls, "delete:b.zip")
}

func TestRunCreateFailureIsFatal(t *testing.T) {
	client := &fakeClient{createErr: &mealie.TransportError{Op: "create backup", Method: "POST", URL: "http://x", StatusCode: 500}}
	svc, _, _ := newService(t, client, 2, 2)

	_, err := svc.Run(context.Background())
	var stepErr *StepError
	require.True(t, errors.As(err, &stepErr))
	assert.Equal(t, StepCreate, stepErr.Step)
	var terr *mealie.TransportError
	assert.True(t, errors.As(err, &terr))
	assert.Equal(t, []string{"create"}, client.calls)
}

func TestRunCreateErrorFlagContinues(t *testing.T) {
	client := &fakeClient{
		createRes: models.SuccessResult{Message: "partial failure", Error: true},
		catalog:   models.BackupCatalog{Backups: []models.BackupRecord{{Name: "only.zip", Date: "2024-01-02T00:00:00Z"}}},
		payload:   []byte("x"),
	}
	svc, events, _ := newService(t, client, 5, 5)

	var buf bytes.Buffer
	orig := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = orig })

	_, err := svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "warn", events.events[1].Level)

	var line map[string]interface{}
	for _, raw := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
		if bytes.Contains(raw, []byte("Server reported an error")) {
			require.NoError(t, json.Unmarshal(raw, &line))
		}
	}
	require.NotNil(t, line)
	assert.Equal(t, "partial failure", line["server_message"])
	assert.Equal(t, "Server reported an error while creating backup", line["message"])
}

func TestRunServerPruneFailureIsFatal(t *testing.T) {
	client := &fakeClient{
		catalog: models.BackupCatalog{Backups: []models.BackupRecord{
			{Name: "b.zip", Date: "2024-01-02T00:00:00Z"},
			{Name: "a.zip", Date: "2024-01-01T00:00:00Z"},
		}},
		payload:   []byte("x"),
		deleteErr: errors.New("boom"),
	}
	svc, _, dir := newService(t, client, 1, 5)

	_, err := svc.Run(context.Background())
	var stepErr *StepError
	require.True(t, errors.As(err, &stepErr))
	assert.Equal(t, StepPruneServer, stepErr.Step)
	assert.Equal(t, "a.zip", stepErr.Backup)

	// The saved file is kept; nothing is rolled back.
	_, statErr := os.Stat(filepath.Join(dir, "b.zip"))
	assert.NoError(t, statErr)
}

func TestRunNoServerPruneBelowLimit(t *testing.T) {
	client := &fakeClient{
		catalog: models.BackupCatalog{Backups: []models.BackupRecord{
			{Name: "b.zip", Date: "2024-01-02T00:00:00Z"},
			{Name: "a.zip", Date: "2024-01-01T00:00:00Z"},
		}},
		payload: []byte("x"),
	}
	svc, _, _ := newService(t, client, 3, 5)

	summary, err := svc.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, client.deleted)
	assert.Empty(t, summary.ServerDeleted)
}

func TestRunPrunesLocal(t *testing.T) {
	client := &fakeClient{
		catalog: models.BackupCatalog{Backups: []models.BackupRecord{{Name: "new.zip", Date: "2024-01-05T00:00:00Z"}}},
		payload: []byte("new"),
	}
	svc, _, dir := newService(t, client, 10, 2)

	for _, name := range []string{"old1.zip", "old2.zip"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(name), 0o644))
	}
	withCreationTimes(t, map[string]int64{"old1.zip": 100, "old2.zip": 200, "new.zip": 300})

	summary, err := svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"old1.zip"}, summary.LocalDeleted)

	assert.NoFileExists(t, filepath.Join(dir, "old1.zip"))
	assert.FileExists(t, filepath.Join(dir, "old2.zip"))
	assert.FileExists(t, filepath.Join(dir, "new.zip"))
}

func TestRunLedgerFailureDoesNotFailRun(t *testing.T) {
	client := &fakeClient{
		catalog: models.BackupCatalog{Backups: []models.BackupRecord{{Name: "b.zip", Date: "2024-01-02T00:00:00Z"}}},
		payload: []byte("x"),
	}
	svc, events, _ := newService(t, client, 5, 5)
	events.err = fmt.Errorf("database is locked")

	_, err := svc.Run(context.Background())
	assert.NoError(t, err)
}

func TestSelectTargetReturnsFirstEntry(t *testing.T) {
	catalogs := [][]models.BackupRecord{
		{{Name: "x", Date: "2020-01-01T00:00:00Z"}},
		{{Name: "older-first", Date: "2020-01-01T00:00:00Z"}, {Name: "newer", Date: "2024-01-01T00:00:00Z"}},
		{{Name: "bad-date", Date: "yesterday"}, {Name: "good", Date: "2024-01-01T00:00:00Z"}},
	}
	for _, backups := range catalogs {
		got, err := SelectTarget(models.BackupCatalog{Backups: backups})
		require.NoError(t, err)
		assert.Equal(t, backups[0], got)
	}

	_, err := SelectTarget(models.BackupCatalog{})
	assert.ErrorIs(t, err, ErrEmptyCatalog)
}

func TestPlanServerPrune(t *testing.T) {
	tests := []struct {
		name    string
		backups []models.BackupRecord
		limit   int
		want    string
	}{
		{
			name:    "below limit",
			backups: []models.BackupRecord{{Name: "a", Date: "2024-01-01T00:00:00Z"}},
			limit:   2,
		},
		{
			name: "at limit deletes oldest",
			backups: []models.BackupRecord{
				{Name: "mid", Date: "2024-01-02T00:00:00Z"},
				{Name: "old", Date: "2024-01-01T00:00:00Z"},
				{Name: "new", Date: "2024-01-03T00:00:00Z"},
			},
			limit: 3,
			want:  "old",
		},
		{
			name: "above limit still deletes one",
			backups: []models.BackupRecord{
				{Name: "new", Date: "2024-01-03T00:00:00Z"},
				{Name: "old", Date: "2024-01-01T00:00:00Z"},
				{Name: "mid", Date: "2024-01-02T00:00:00Z"},
			},
			limit: 1,
			want:  "old",
		},
		{
			name: "unparseable date sorts oldest",
			backups: []models.BackupRecord{
				{Name: "ancient", Date: "0001-01-01T00:00:00Z"},
				{Name: "garbled", Date: "not a date"},
			},
			limit: 2,
			want:  "garbled",
		},
		{
			name: "timezone offsets compared as instants",
			backups: []models.BackupRecord{
				{Name: "utc", Date: "2024-01-01T10:00:00Z"},
				{Name: "offset", Date: "2024-01-01T11:00:00+02:00"},
			},
			limit: 2,
			want:  "offset",
		},
		{
			name: "ties pick the first listed",
			backups: []models.BackupRecord{
				{Name: "first", Date: "2024-01-01T00:00:00Z"},
				{Name: "second", Date: "2024-01-01T00:00:00Z"},
			},
			limit: 2,
			want:  "first",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PlanServerPrune(models.BackupCatalog{Backups: tt.backups}, tt.limit)
			if tt.want == "" {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.Name)
		})
	}
}
