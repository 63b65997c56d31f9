// Package report writes decoded records as single text lines.
package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/robertof/go-proximity-scanner/device"
)

const TimestampFormat = "2006-01-02 15:04:05.000"

type Reporter struct {
	// Defaults to time.Now.
	Now func() time.Time

	mu  sync.Mutex
	out io.Writer
}

func New(out io.Writer) *Reporter {
	return &Reporter{out: out, Now: time.Now}
}

// Format renders `[<timestamp>] <identity>: org=<org> v=<version> model=<model> RSSI=<rssi> msg=<message>`.
// Fields coming from the peer are quoted when they contain non-printable characters, so a
// record always takes exactly one line.
func Format(ts time.Time, r device.ProximityRecord) string {
	return fmt.Sprintf("[%s] %v: org=%s v=%d model=%s RSSI=%d msg=%s\n",
		ts.Format(TimestampFormat), r.Identity, printable(r.Org), r.Version, printable(r.Model), r.RSSI,
		printable(r.Message))
}

func printable(s string) string {
	if strings.IndexFunc(s, func(r rune) bool { return !unicode.IsPrint(r) }) < 0 {
		return s
	}

	return strconv.Quote(s)
}

// Report writes one line for the record. Lines from concurrent callers never interleave.
func (r *Reporter) Report(record device.ProximityRecord) error {
	now := time.Now
	if r.Now != nil {
		now = r.Now
	}

	line := Format(now(), record)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := io.WriteString(r.out, line); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}

	return nil
}
