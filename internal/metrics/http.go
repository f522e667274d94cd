package metrics

import (
	"time"

	"github.com/nilo-qa/nilo-loadtest/internal/check"
	"github.com/nilo-qa/nilo-loadtest/internal/httpclient"
)

// Millis converts d to fractional milliseconds, the unit of every trend.
func Millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// RecordHTTP records the built-in request metrics for resp under endpoint.
func RecordHTTP(sink Sink, endpoint string, resp *httpclient.Response) {
	tag := T("endpoint", endpoint)

	sink.Add(HTTPReqDuration, Millis(resp.Duration), tag)
	if resp.Waiting > 0 {
		sink.Add(HTTPReqWaiting, Millis(resp.Waiting), tag)
	}
	sink.Add(DataReceived, float64(len(resp.Body)))

	failed := 0.0
	if resp.Status < 200 || resp.Status > 399 {
		failed = 1
	}
	sink.Add(HTTPReqFailed, failed, tag)

	switch {
	case resp.Failed():
		if resp.Timeout() {
			sink.Add(RequestTimeouts, 1, tag)
		}
	case resp.Status >= 500:
		sink.Add(HTTPErrors5xx, 1, tag)
	case resp.Status >= 400:
		sink.Add(HTTPErrors4xx, 1, tag)
	}
}

// RecordChecks feeds every check result into the checks rate and counts
// failures, advisory ones included.
func RecordChecks(sink Sink, endpoint string, report check.Report) {
	tag := T("endpoint", endpoint)
	for _, r := range report.Results {
		if r.Err != nil {
			sink.Add(Checks, 0, tag)
			sink.Add(CheckFailures, 1, tag)
			continue
		}
		sink.Add(Checks, 1, tag)
	}
}
