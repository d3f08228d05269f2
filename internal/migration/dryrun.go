package migration

import (
	"time"
)

// EstimateTransferTime projects a P10 transfer's wall-clock duration from
// payload size and assumed link bandwidth, padded 20% for checksum and
// compression overhead. ProbeNetwork (P5) uses it to turn the measured
// throughput into NetworkProbeResult.Estimate.
func EstimateTransferTime(bytes int64, bandwidthMbps int) time.Duration {
	if bandwidthMbps <= 0 {
		bandwidthMbps = 100
	}

	bytesPerSecond := (bandwidthMbps * 1024 * 1024) / 8
	seconds := bytes / int64(bytesPerSecond)
	seconds = int64(float64(seconds) * 1.2)

	return time.Duration(seconds) * time.Second
}
