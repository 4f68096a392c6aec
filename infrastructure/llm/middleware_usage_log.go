package llm

import (
	"context"
	"crypto/md5" // #nosec G501 - short content fingerprints, not security
	"encoding/csv"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

// UsageLogHeader is the first row of every usage log.
var UsageLogHeader = []string{
	"Start Time",
	"Duration(s)",
	"Model Id",
	"Skill Name",
	"Input Tokens",
	"Output Tokens",
	"Input Hash",
	"Output Hash",
}

const usageTimeLayout = "2006-01-02 15:04:05"

// UsageRecord is one row of the usage log.
type UsageRecord struct {
	Start        time.Time
	Duration     time.Duration
	Model        string
	Skill        string
	InputTokens  int
	OutputTokens int
	InputHash    string
	OutputHash   string
}

func (r UsageRecord) row() []string {
	return []string{
		r.Start.Local().Format(usageTimeLayout),
		strconv.FormatFloat(r.Duration.Seconds(), 'f', 3, 64),
		r.Model,
		r.Skill,
		strconv.Itoa(r.InputTokens),
		strconv.Itoa(r.OutputTokens),
		r.InputHash,
		r.OutputHash,
	}
}

// UsageLog appends one CSV row per provider call. It is safe for
// concurrent use and writes the header when the underlying file is empty.
type UsageLog struct {
	mu     sync.Mutex
	w      *csv.Writer
	closer io.Closer
	header bool
}

// NewUsageLog writes rows to w. The header is written before the first row.
func NewUsageLog(w io.Writer) *UsageLog {
	return &UsageLog{w: csv.NewWriter(w)}
}

// OpenUsageLog appends to the CSV file at path, creating it and its parent
// directory as needed. An existing non-empty file keeps its header.
func OpenUsageLog(path string) (*UsageLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create usage log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600) // #nosec G304 - operator-supplied path
	if err != nil {
		return nil, fmt.Errorf("open usage log: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat usage log: %w", err)
	}
	return &UsageLog{w: csv.NewWriter(f), closer: f, header: info.Size() > 0}, nil
}

// Record appends r and flushes.
func (l *UsageLog) Record(r UsageRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.header {
		if err := l.w.Write(UsageLogHeader); err != nil {
			return err
		}
		l.header = true
	}
	if err := l.w.Write(r.row()); err != nil {
		return err
	}
	l.w.Flush()
	return l.w.Error()
}

// Close closes the file opened by OpenUsageLog.
func (l *UsageLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.w.Flush()
	if l.closer == nil {
		return l.w.Error()
	}
	return l.closer.Close()
}

// fingerprint returns the first 8 hex digits of the MD5 of s.
func fingerprint(s string) string {
	sum := md5.Sum([]byte(s)) // #nosec G401
	return hex.EncodeToString(sum[:])[:8]
}

type usageLoggedLLM struct {
	next  CoreLLM
	log   *UsageLog
	onErr func(error)
	now   func() time.Time
}

// UsageLogMiddleware records every call, successful or not, in log. A
// failed call is fingerprinted by its error text and logs zero tokens.
// Write failures go to onErr, which may be nil; they never fail the call.
func UsageLogMiddleware(log *UsageLog, onErr func(error)) Middleware {
	return func(next CoreLLM) CoreLLM {
		if log == nil {
			return next
		}
		return &usageLoggedLLM{next: next, log: log, onErr: onErr, now: time.Now}
	}
}

func (u *usageLoggedLLM) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	start := u.now()
	resp, in, out, err := u.next.DoRequest(ctx, prompt, opts)

	rec := UsageRecord{
		Start:        start,
		Duration:     u.now().Sub(start),
		Model:        ParseRequestOptions(opts, u.next.GetModel()).Model,
		Skill:        SkillOf(opts),
		InputTokens:  in,
		OutputTokens: out,
		InputHash:    fingerprint(prompt),
	}
	if rec.Skill == "" {
		rec.Skill = "Unknown"
	}
	if err != nil {
		rec.OutputHash = fingerprint(err.Error())
	} else {
		rec.OutputHash = fingerprint(resp)
	}

	if werr := u.log.Record(rec); werr != nil && u.onErr != nil {
		u.onErr(fmt.Errorf("usage log: %w", werr))
	}
	return resp, in, out, err
}

func (u *usageLoggedLLM) GetModel() string  { return u.next.GetModel() }
func (u *usageLoggedLLM) SetModel(m string) { u.next.SetModel(m) }
