package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

const pendingPrefix = "pending:"

// Ref identifies a tab or task. It is either Pending (a client-allocated
// placeholder that has not been acknowledged by the remote store) or
// Confirmed (the id assigned by the remote store). The zero Ref is invalid.
type Ref struct {
	id      int64
	pending bool
}

// Pending returns a placeholder reference for a not-yet-persisted item.
func Pending(local int64) Ref {
	return Ref{id: local, pending: true}
}

// Confirmed returns a reference carrying a remote-store id.
func Confirmed(id int64) Ref {
	return Ref{id: id}
}

func (r Ref) IsZero() bool    { return r.id == 0 }
func (r Ref) IsPending() bool { return r.pending && r.id != 0 }

// RemoteID returns the remote-store id, or false while the ref is pending.
func (r Ref) RemoteID() (int64, bool) {
	if r.pending || r.id == 0 {
		return 0, false
	}
	return r.id, true
}

func (r Ref) String() string {
	if r.pending {
		return pendingPrefix + strconv.FormatInt(r.id, 10)
	}
	return strconv.FormatInt(r.id, 10)
}

// ParseRef accepts the String form: "42" or "pending:1700000000000".
func ParseRef(s string) (Ref, error) {
	s = strings.TrimSpace(s)
	pending := strings.HasPrefix(s, pendingPrefix)
	raw := strings.TrimPrefix(s, pendingPrefix)
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n <= 0 {
		return Ref{}, fmt.Errorf("invalid id %q", s)
	}
	if pending {
		return Pending(n), nil
	}
	return Confirmed(n), nil
}

func (r Ref) MarshalJSON() ([]byte, error) {
	if r.pending {
		return json.Marshal(r.String())
	}
	return []byte(strconv.FormatInt(r.id, 10)), nil
}

func (r *Ref) UnmarshalJSON(data []byte) error {
	var n int64
	if err := json.Unmarshal(data, &n); err == nil {
		*r = Confirmed(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseRef(s)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// RefPtr returns a pointer to a copy of r.
func RefPtr(r Ref) *Ref {
	return &r
}
