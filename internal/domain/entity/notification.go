// Package entity defines the core domain entities for the notification-sync
// worker: notification records, the cached notification set, and the
// content-addressed version used to detect real change.
package entity

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
)

// NotificationRecord represents a single notification as returned by the
// remote service. Identity is the (Folder, Timestamp) pair only; two records
// with the same folder and timestamp are the same record regardless of any
// other field or of field ordering on the wire.
type NotificationRecord struct {
	Folder    string
	Timestamp int64 // epoch milliseconds
	Status    string
	Message   string

	// Extra holds fields the remote service sends that this client does not
	// model. They are carried through persistence untouched.
	Extra map[string]json.RawMessage
}

// knownRecordFields are the wire keys decoded into named struct fields.
var knownRecordFields = map[string]struct{}{
	"folder":    {},
	"timestamp": {},
	"status":    {},
	"message":   {},
}

// recordWire is the fixed portion of the wire format.
type recordWire struct {
	Folder    string `json:"folder"`
	Timestamp int64  `json:"timestamp"`
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
}

// UnmarshalJSON decodes the known fields and preserves everything else in Extra.
func (r *NotificationRecord) UnmarshalJSON(data []byte) error {
	var wire recordWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	r.Folder = wire.Folder
	r.Timestamp = wire.Timestamp
	r.Status = wire.Status
	r.Message = wire.Message
	r.Extra = nil

	for key, value := range raw {
		if _, known := knownRecordFields[key]; known {
			continue
		}
		if r.Extra == nil {
			r.Extra = make(map[string]json.RawMessage)
		}
		r.Extra[key] = value
	}

	return nil
}

// MarshalJSON emits the known fields plus any preserved extra fields.
func (r NotificationRecord) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(r.Extra)+4)
	for key, value := range r.Extra {
		out[key] = value
	}

	folder, err := json.Marshal(r.Folder)
	if err != nil {
		return nil, err
	}
	out["folder"] = folder

	timestamp, err := json.Marshal(r.Timestamp)
	if err != nil {
		return nil, err
	}
	out["timestamp"] = timestamp

	status, err := json.Marshal(r.Status)
	if err != nil {
		return nil, err
	}
	out["status"] = status

	if r.Message != "" {
		message, err := json.Marshal(r.Message)
		if err != nil {
			return nil, err
		}
		out["message"] = message
	}

	return json.Marshal(out)
}

// Identity returns the record's identity string, "folder:timestamp".
func (r NotificationRecord) Identity() string {
	return r.Folder + ":" + strconv.FormatInt(r.Timestamp, 10)
}

// ComputeVersion derives a deterministic fingerprint of the given records:
// the sorted identity strings joined with "|". It is invariant to the order
// of the slice and to per-record field ordering, and sensitive only to
// membership and timestamp changes. Records without a folder are excluded.
func ComputeVersion(records []NotificationRecord) string {
	identities := make([]string, 0, len(records))
	for _, rec := range records {
		if rec.Folder == "" {
			continue
		}
		identities = append(identities, rec.Identity())
	}
	sort.Strings(identities)
	return strings.Join(identities, "|")
}

// NotificationSet is the cached collection of notifications plus its derived
// version. Two sets are equal for sync purposes iff their versions match,
// even when deep structural equality differs.
type NotificationSet struct {
	Records []NotificationRecord `json:"records"`
	Version string               `json:"version"`
}

// NewNotificationSet builds a set from records and computes its version.
func NewNotificationSet(records []NotificationRecord) NotificationSet {
	return NotificationSet{
		Records: records,
		Version: ComputeVersion(records),
	}
}

// WithoutFolder returns a new set with every record in the given folder
// removed and the version recomputed.
func (s NotificationSet) WithoutFolder(folder string) NotificationSet {
	kept := make([]NotificationRecord, 0, len(s.Records))
	for _, rec := range s.Records {
		if rec.Folder == folder {
			continue
		}
		kept = append(kept, rec)
	}
	return NewNotificationSet(kept)
}
