package monitoring

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v3/disk"

	"github.com/isdelr/mealie-backup/internal/metrics"
	"github.com/isdelr/mealie-backup/internal/services"
)

const (
	statInterval      = 1 * time.Minute
	lowDiskPercent    = 90.0
	lowDiskAlertDelay = 6 * time.Hour
)

var diskUsage = disk.Usage

// StatUpdater periodically refreshes the local storage gauges and records a
// ledger warning when the backup filesystem is nearly full.
type StatUpdater struct {
	dir       string
	eventSvc  services.EventServiceProvider
	interval  time.Duration
	lastAlert time.Time
	done      chan struct{}
	stopped   chan struct{}
}

// NewStatUpdater creates a new StatUpdater for the local backup directory.
func NewStatUpdater(dir string, eventSvc services.EventServiceProvider) *StatUpdater {
	return &StatUpdater{
		dir:      dir,
		eventSvc: eventSvc,
		interval: statInterval,
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
}

// Run starts the periodic updates.
func (su *StatUpdater) Run() {
	defer close(su.stopped)
	log.Info().Str("dir", su.dir).Msg("Starting storage stat updater")
	ticker := time.NewTicker(su.interval)
	defer ticker.Stop()

	su.update()

	for {
		select {
		case <-su.done:
			log.Info().Msg("Stopping storage stat updater")
			return
		case <-ticker.C:
			su.update()
		}
	}
}

// Stop halts the periodic updates and waits for the loop to exit.
func (su *StatUpdater) Stop() {
	close(su.done)
	<-su.stopped
}

func (su *StatUpdater) update() {
	files, err := services.ListLocalBackups(su.dir)
	if err != nil {
		log.Warn().Err(err).Msg("StatUpdater: Could not list local backups")
	} else {
		var total int64
		for _, f := range files {
			total += f.Size
		}
		metrics.LocalBackupFiles.Set(float64(len(files)))
		metrics.LocalBackupBytes.Set(float64(total))
	}

	usage, err := diskUsage(su.dir)
	if err != nil {
		log.Warn().Err(err).Str("dir", su.dir).Msg("StatUpdater: Could not read disk usage")
		return
	}
	metrics.DiskFreeBytes.Set(float64(usage.Free))
	su.checkLowDisk(usage)
}

func (su *StatUpdater) checkLowDisk(usage *disk.UsageStat) {
	if usage.UsedPercent < lowDiskPercent {
		return
	}
	if !su.lastAlert.IsZero() && time.Since(su.lastAlert) < lowDiskAlertDelay {
		return
	}
	msg := fmt.Sprintf("Backup filesystem is %.1f%% full (%s free).", usage.UsedPercent, humanize.Bytes(usage.Free))
	log.Warn().Str("dir", su.dir).Float64("used_percent", usage.UsedPercent).Msg("Backup filesystem almost full")
	if err := su.eventSvc.CreateEvent("", "system.alert.disk", "warn", msg, nil); err != nil {
		log.Warn().Err(err).Msg("StatUpdater: Failed to record disk alert")
	}
	su.lastAlert = time.Now()
}
