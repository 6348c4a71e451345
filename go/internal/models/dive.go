package models

import (
	"time"

	"github.com/google/uuid"
)

type DiveStatus string

const (
	DiveStatusActive    DiveStatus = "active"
	DiveStatusCompleted DiveStatus = "completed"
)

// TeamMember is one entry of a dive's ordered staff roster.
type TeamMember struct {
	Role string `json:"role"`
	Name string `json:"name"`
}

// DiveSettings control the check-in timer for every cart under a dive.
// They are locked as soon as the first check-in row exists under the dive.
type DiveSettings struct {
	PeriodMinutes    int      `json:"period_minutes"`
	WarningMinutes   int      `json:"warning_minutes"`
	OverdueChecklist []string `json:"overdue_checklist"`
}

const (
	DefaultPeriodMinutes  = 60
	DefaultWarningMinutes = 5
)

// DefaultDiveSettings returns the settings used when a dive supplies none.
func DefaultDiveSettings() DiveSettings {
	return DiveSettings{
		PeriodMinutes:    DefaultPeriodMinutes,
		WarningMinutes:   DefaultWarningMinutes,
		OverdueChecklist: []string{},
	}
}

// Merged returns s with zero-valued fields filled from the defaults.
func (s DiveSettings) Merged() DiveSettings {
	out := s
	if out.PeriodMinutes <= 0 {
		out.PeriodMinutes = DefaultPeriodMinutes
	}
	if out.WarningMinutes <= 0 {
		out.WarningMinutes = DefaultWarningMinutes
	}
	if out.OverdueChecklist == nil {
		out.OverdueChecklist = []string{}
	}
	return out
}

// Period returns the check-in period as a duration.
func (s DiveSettings) Period() time.Duration {
	return time.Duration(s.PeriodMinutes) * time.Minute
}

// WarningLead returns the warning lead time as a duration.
func (s DiveSettings) WarningLead() time.Duration {
	return time.Duration(s.WarningMinutes) * time.Minute
}

// Dive is a supervised session scoping a set of carts and their settings.
// At most one dive is active system-wide at any time.
type Dive struct {
	ID             uuid.UUID    `json:"id"`
	Name           *string      `json:"name"`
	ManagerName    string       `json:"manager_name"`
	TeamMembers    []TeamMember `json:"team_members"`
	Settings       DiveSettings `json:"settings"`
	SettingsLocked bool         `json:"settings_locked"`
	Status         DiveStatus   `json:"status"`
	StartedAt      time.Time    `json:"started_at"`
	EndedAt        *time.Time   `json:"ended_at"`
	CreatedAt      time.Time    `json:"created_at"`
}
