// Package models holds the core domain types shared across the remediation
// pipeline: alerts, lambda selections, memory schemas, and approval requests.
package models

import "time"

// AlertStatus is the firing state of a Prometheus alert.
type AlertStatus string

const (
	AlertStatusFiring   AlertStatus = "firing"
	AlertStatusResolved AlertStatus = "resolved"
)

// Alert is the firing unit delivered by Prometheus Alertmanager, carried as
// CloudEvent data. Fields are immutable once extracted from an event.
type Alert struct {
	AlertName   string
	Status      AlertStatus
	Labels      map[string]string
	Annotations map[string]string
	StartsAt    time.Time
	Fingerprint string
}

// Label returns labels[key] or "" if absent.
func (a *Alert) Label(key string) string {
	if a == nil || a.Labels == nil {
		return ""
	}
	return a.Labels[key]
}

// LabelAny returns the first non-empty value among keys, or fallback.
func (a *Alert) LabelAny(fallback string, keys ...string) string {
	for _, k := range keys {
		if v := a.Label(k); v != "" {
			return v
		}
	}
	return fallback
}

// Annotation returns annotations[key] or "" if absent.
func (a *Alert) Annotation(key string) string {
	if a == nil || a.Annotations == nil {
		return ""
	}
	return a.Annotations[key]
}
