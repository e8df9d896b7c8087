package scraper

import (
	"bytes"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// exchange is one recorded request/response hop. Request bodies are
// deliberately not kept, so credentials never reach the log files.
type exchange struct {
	method string
	url    string
	status string
	header http.Header
	body   string
}

// logEntry is the full record of one navigation: the entry time, the
// operation's purpose and every hop of the redirect chain in order.
type logEntry struct {
	time    time.Time
	purpose Purpose
	hops    []exchange
}

const (
	logNameLayout = "20060102T150405.000000"
	logTimeLayout = "2006-01-02 15:04:05.000000-07:00"
)

// SaveLogs writes every request & response recorded over the life of
// the session to the given directory, one file per hop, named
// <yyyymmddThhmmss.microseconds>Z-<purpose>-<n>.txt where n counts
// hops within one navigation from 0. Intended only for diagnostics.
// The directory is assumed to exist; filesystem errors propagate
// untranslated.
func (s *Session) SaveLogs(directory string) error {
	for _, entry := range s.log {
		for index, hop := range entry.hops {
			name := fmt.Sprintf(
				"%sZ-%s-%d.txt",
				entry.time.Format(logNameLayout),
				entry.purpose,
				index,
			)

			var contents bytes.Buffer
			contents.WriteString(entry.time.Format(logTimeLayout))
			contents.WriteString("\n")
			fmt.Fprintf(&contents, "%s %s\n", hop.method, hop.url)
			contents.WriteString(hop.status)
			contents.WriteString("\n\n")

			keys := make([]string, 0, len(hop.header))
			for key := range hop.header {
				keys = append(keys, key)
			}
			sort.Strings(keys)
			for _, key := range keys {
				for _, value := range hop.header[key] {
					fmt.Fprintf(&contents, "%s: %s\n", key, value)
				}
			}

			contents.WriteString("\n")
			contents.WriteString(hop.body)

			err := os.WriteFile(filepath.Join(directory, name), contents.Bytes(), 0644)
			if err != nil {
				return err
			}
		}
	}
	return nil
}
