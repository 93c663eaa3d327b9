package storage

import (
	"fmt"
	"strings"
	"time"
)

// GenerateRunFolderPath generates a consistent folder path for analysis runs
// Format: runs/YYYY/MM/DD/AnalysisRun-YYYY-MM-DD-HH-MM-SS
func GenerateRunFolderPath(timestamp time.Time) string {
	return fmt.Sprintf("runs/%04d/%02d/%02d/AnalysisRun-%04d-%02d-%02d-%02d-%02d-%02d",
		timestamp.Year(), timestamp.Month(), timestamp.Day(),
		timestamp.Year(), timestamp.Month(), timestamp.Day(),
		timestamp.Hour(), timestamp.Minute(), timestamp.Second())
}

// GetContentType determines the MIME content type based on file extension
func GetContentType(filename string) string {
	if strings.HasSuffix(filename, ".json") {
		return "application/json"
	} else if strings.HasSuffix(filename, ".txt") {
		return "text/plain"
	} else if strings.HasSuffix(filename, ".html") {
		return "text/html"
	} else if strings.HasSuffix(filename, ".md") {
		return "text/markdown"
	} else if strings.HasSuffix(filename, ".png") {
		return "image/png"
	} else if strings.HasSuffix(filename, ".cdf") {
		return "application/x-cdf"
	} else if strings.HasSuffix(filename, ".csv") {
		return "text/csv"
	} else {
		return "application/octet-stream"
	}
}
