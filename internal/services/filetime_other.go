//go:build !linux

package services

import (
	"os"
	"time"
)

func creationTime(_ string, info os.FileInfo) (time.Time, error) {
	return info.ModTime(), nil
}
