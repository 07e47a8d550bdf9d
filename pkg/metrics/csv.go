// Package metrics records connection and request counters to local CSV
// files for simple, dependency-free deployments.
package metrics

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/tzrikka/xdg"
)

const (
	DefaultMetricsFileRequests = "metrics/epoxy_requests_%s.csv"
	DefaultMetricsFileErrors   = "metrics/epoxy_errors_%s.csv"

	fileFlags = os.O_APPEND | os.O_CREATE | os.O_WRONLY
	filePerms = xdg.NewFilePermissions
)

var (
	muRequests sync.Mutex
	muErrors   sync.Mutex
)

// CountRequest records one dispatched request or event: its method name and,
// for requests, the error code of the response (empty for a clean success or
// for an event, which has no response).
func CountRequest(l zerolog.Logger, t time.Time, method, errCode string) {
	muRequests.Lock()
	defer muRequests.Unlock()

	record := []string{t.Format(time.RFC3339), method, errCode}
	if err := appendToCSVFile(DefaultMetricsFileRequests, t, record); err != nil {
		l.Error().Err(err).Str("method", method).Msg("metrics: failed to record request")
	}
}

// CountProtocolError records one connection-terminating protocol or
// transport failure, keyed by the remote endpoint it was observed on.
func CountProtocolError(l zerolog.Logger, t time.Time, remote string, cause error) {
	muErrors.Lock()
	defer muErrors.Unlock()

	msg := ""
	if cause != nil {
		msg = cause.Error()
	}

	record := []string{t.Format(time.RFC3339), remote, msg}
	if err := appendToCSVFile(DefaultMetricsFileErrors, t, record); err != nil {
		l.Error().Err(err).Str("remote", remote).Msg("metrics: failed to record protocol error")
	}
}

// CountOutstanding records the number of requests still awaiting a response
// on a connection at the moment it was asked, e.g. right before shutdown.
func CountOutstanding(l zerolog.Logger, t time.Time, remote string, count int) {
	muRequests.Lock()
	defer muRequests.Unlock()

	record := []string{t.Format(time.RFC3339), remote, strconv.Itoa(count)}
	if err := appendToCSVFile(DefaultMetricsFileRequests, t, record); err != nil {
		l.Error().Err(err).Str("remote", remote).Msg("metrics: failed to record outstanding count")
	}
}

func appendToCSVFile(filename string, t time.Time, record []string) error {
	filename = fmt.Sprintf(filename, t.Format(time.DateOnly))
	f, err := os.OpenFile(filename, fileFlags, filePerms) //gosec:disable G304 // Hardcoded path.
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(record); err != nil {
		return err
	}

	w.Flush()
	return w.Error()
}
