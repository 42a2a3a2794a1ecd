// Package evidence decides whether claimed verification evidence is fresh
// enough to back a claim.
package evidence

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Rogers-F/governance-engine/internal/reason"
	"github.com/Rogers-F/governance-engine/internal/session"
)

// Evidence classes with a non-default TTL.
const (
	ClassIdentitySignal = "identity_signal"
	ClassPreflightProbe = "preflight_probe"
)

// DefaultTTL applies to every class without an explicit override.
const DefaultTTL = 24 * time.Hour

// singleUseWindow is how recent a zero-TTL observation must be.
const singleUseWindow = time.Second

var classTTL = map[string]time.Duration{
	ClassIdentitySignal: 0,
	ClassPreflightProbe: 0,
}

// Item is one piece of claimed evidence.
type Item struct {
	ID         string     `json:"id"`
	Class      string     `json:"class,omitempty"`
	ObservedAt *time.Time `json:"observed_at,omitempty"`
	TTLSeconds *int64     `json:"ttl_seconds,omitempty"`
	Verified   bool       `json:"verified"`
}

// EffectiveTTL returns the explicit TTL when set, else the class default.
func EffectiveTTL(it Item) time.Duration {
	if it.TTLSeconds != nil {
		if *it.TTLSeconds < 0 {
			return 0
		}
		return time.Duration(*it.TTLSeconds) * time.Second
	}
	if ttl, ok := classTTL[it.Class]; ok {
		return ttl
	}
	return DefaultTTL
}

// IsStale reports whether it no longer backs a claim at now. Items without an
// observation time are always stale.
func IsStale(it Item, now time.Time) bool {
	if it.ObservedAt == nil {
		return true
	}
	age := now.Sub(*it.ObservedAt)
	ttl := EffectiveTTL(it)
	if ttl == 0 {
		if age < 0 {
			age = -age
		}
		return age > singleUseWindow
	}
	return age > ttl
}

// Partition splits required evidence ids by their best observed state.
type Partition struct {
	Fresh   []string `json:"fresh"`
	Stale   []string `json:"stale"`
	Missing []string `json:"missing"`
}

// Complete reports whether every required id is backed by fresh evidence.
func (p Partition) Complete() bool {
	return len(p.Stale) == 0 && len(p.Missing) == 0
}

// SubReason picks the NOT_VERIFIED code. Stale evidence wins over missing.
func (p Partition) SubReason() reason.Code {
	switch {
	case len(p.Stale) > 0:
		return reason.NotVerifiedEvidenceStale
	case len(p.Missing) > 0:
		return reason.NotVerifiedMissingEvidence
	default:
		return reason.CodeNone
	}
}

// Unbacked returns the stale and missing ids together, sorted.
func (p Partition) Unbacked() []string {
	out := make([]string, 0, len(p.Stale)+len(p.Missing))
	out = append(out, p.Stale...)
	out = append(out, p.Missing...)
	sort.Strings(out)
	return out
}

// Evaluate partitions the required ids. An id is fresh when any verified item
// for it is fresh, stale when verified items exist but all are stale, and
// missing otherwise. Unverified items never count.
func Evaluate(required []string, items []Item, now time.Time) Partition {
	type state struct{ seen, fresh bool }
	byID := make(map[string]*state, len(items))
	for _, it := range items {
		if !it.Verified || it.ID == "" {
			continue
		}
		st := byID[it.ID]
		if st == nil {
			st = &state{}
			byID[it.ID] = st
		}
		st.seen = true
		if !IsStale(it, now) {
			st.fresh = true
		}
	}

	p := Partition{Fresh: []string{}, Stale: []string{}, Missing: []string{}}
	seen := make(map[string]bool, len(required))
	for _, id := range required {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		st := byID[id]
		switch {
		case st == nil:
			p.Missing = append(p.Missing, id)
		case st.fresh:
			p.Fresh = append(p.Fresh, id)
		default:
			p.Stale = append(p.Stale, id)
		}
	}
	sort.Strings(p.Fresh)
	sort.Strings(p.Stale)
	sort.Strings(p.Missing)
	return p
}

// FromSession reads BuildEvidence.items from the session document.
func FromSession(doc session.Document) []Item {
	raw := doc.Slice("BuildEvidence.items")
	items := make([]Item, 0, len(raw))
	for _, elem := range raw {
		m, ok := elem.(map[string]any)
		if !ok {
			continue
		}
		items = append(items, itemFromMap(m))
	}
	return items
}

func itemFromMap(m map[string]any) Item {
	it := Item{
		ID:    firstString(m, "evidence_id", "claim_id", "claim"),
		Class: firstString(m, "class", "evidence_class"),
	}
	if ts, ok := parseTime(m["observed_at"]); ok {
		it.ObservedAt = &ts
	}
	if ttl, ok := parseSeconds(m["ttl_seconds"]); ok {
		it.TTLSeconds = &ttl
	}
	if v, ok := m["verified"].(bool); ok {
		it.Verified = v
	}
	if res, ok := m["result"].(string); ok {
		switch strings.ToLower(strings.TrimSpace(res)) {
		case "pass", "passed", "verified", "ok":
			it.Verified = true
		default:
			it.Verified = false
		}
	}
	return it
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

func parseTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return time.Time{}, false
		}
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05"} {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts.UTC(), true
			}
		}
		if secs, err := strconv.ParseFloat(s, 64); err == nil {
			return unixFloat(secs), true
		}
	case float64:
		return unixFloat(t), true
	}
	return time.Time{}, false
}

func unixFloat(secs float64) time.Time {
	whole := int64(secs)
	frac := int64((secs - float64(whole)) * float64(time.Second))
	return time.Unix(whole, frac).UTC()
}

func parseSeconds(v any) (int64, bool) {
	switch t := v.(type) {
	case float64:
		return int64(t), true
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		if err == nil {
			return n, true
		}
	}
	return 0, false
}
