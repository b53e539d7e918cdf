// Package diary keeps the viewer's append-only note log and exports it.
package diary

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"supernova/api/internal/routes"
	"supernova/api/internal/session"
)

// Entry is one diary line. Timestamp is UTC at second precision.
type Entry struct {
	Timestamp string   `json:"timestamp"`
	Note      string   `json:"note"`
	RFCIDs    []string `json:"rfc_ids,omitempty"`
}

// Entries returns the diary stored in the session, oldest first.
func Entries(sess *session.Session) ([]Entry, error) {
	var entries []Entry
	if _, err := sess.Decode(session.KeyDiary, &entries); err != nil {
		return nil, fmt.Errorf("decode diary: %w", err)
	}
	if entries == nil {
		entries = []Entry{}
	}
	return entries, nil
}

// Append adds a note to the session diary.
func Append(sess *session.Session, note string, rfcIDs []string, now time.Time) (Entry, error) {
	note = strings.TrimSpace(note)
	if note == "" {
		return Entry{}, routes.Invalid("note", "is required")
	}
	entries, err := Entries(sess)
	if err != nil {
		return Entry{}, err
	}
	entry := Entry{
		Timestamp: now.UTC().Truncate(time.Second).Format(time.RFC3339),
		Note:      note,
		RFCIDs:    cleanIDs(rfcIDs),
	}
	sess.Set(session.KeyDiary, append(entries, entry))
	return entry, nil
}

// Markdown renders one bullet per entry; the RFC suffix is omitted when an
// entry references none.
func Markdown(entries []Entry) string {
	var b strings.Builder
	for _, entry := range entries {
		fmt.Fprintf(&b, "* %s: %s", entry.Timestamp, entry.Note)
		if len(entry.RFCIDs) > 0 {
			fmt.Fprintf(&b, " (RFCs: %s)", strings.Join(entry.RFCIDs, ", "))
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// JSON renders the entries as an indent-2 array in insertion order.
func JSON(entries []Entry) ([]byte, error) {
	if entries == nil {
		entries = []Entry{}
	}
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(entries); err != nil {
		return nil, fmt.Errorf("encode diary: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func cleanIDs(ids []string) []string {
	var out []string
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
