package transfer

import (
	"regexp"
	"strconv"
	"strings"
)

// Patterns cover both the rsync 3.1.x and 3.2.x --stats line formats,
// including comma thousand separators; fixtures in parse_test.go pin one
// sample of each.
var (
	// Newer rsync prints "Number of regular files transferred" where older
	// releases print "Number of files transferred"; accept both spellings.
	reFilesTransferred = regexp.MustCompile(`Number of (?:regular )?files transferred:\s*([\d,]+)`)
	reTotalFileSize    = regexp.MustCompile(`Total transferred file size:\s*([\d,]+)\s*bytes`)
	reSentRate         = regexp.MustCompile(`sent\s+[\d,.]+\s+bytes\s+received\s+[\d,.]+\s+bytes\s+([\d,.]+)\s+bytes/sec`)
	reSpeedup          = regexp.MustCompile(`speedup is ([\d.]+)`)
)

// parseRsyncStats extracts file count, byte total, rate, and speedup from
// the stdout of an `rsync --stats` invocation. Unmatched fields are left at
// their zero values rather than erroring; the transfer itself already
// succeeded or failed independently of whether stats parsed cleanly.
func parseRsyncStats(stdout string) (files int, bytes int64, rate, speedup string) {
	if m := reFilesTransferred.FindStringSubmatch(stdout); m != nil {
		files = atoiCommas(m[1])
	}
	if m := reTotalFileSize.FindStringSubmatch(stdout); m != nil {
		bytes = atoi64Commas(m[1])
	}
	if m := reSentRate.FindStringSubmatch(stdout); m != nil {
		rate = m[1] + " bytes/sec"
	}
	if m := reSpeedup.FindStringSubmatch(stdout); m != nil {
		speedup = m[1]
	}
	return
}

func atoiCommas(s string) int {
	n, _ := strconv.Atoi(strings.ReplaceAll(s, ",", ""))
	return n
}

func atoi64Commas(s string) int64 {
	n, _ := strconv.ParseInt(strings.ReplaceAll(s, ",", ""), 10, 64)
	return n
}

// parseZFSProperties parses the tab-separated output of
// `zfs get -H -p <properties> <dataset>`: name, property, value, source.
func parseZFSProperties(stdout string) map[string]string {
	props := make(map[string]string)
	for _, line := range strings.Split(stdout, "\n") {
		fields := strings.Split(line, "\t")
		if len(fields) < 3 {
			continue
		}
		props[fields[1]] = fields[2]
	}
	return props
}
