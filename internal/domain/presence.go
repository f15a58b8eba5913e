package domain

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// LoginEventKind marks a grader going on or off duty.
type LoginEventKind string

const (
	LoginEventLogin  LoginEventKind = "LOGIN"
	LoginEventLogout LoginEventKind = "LOGOUT"
)

// LoginEvent records a grader duty change for a course. Events are paired
// LOGIN/LOGOUT entries; a grader whose latest event is LOGIN is on duty.
type LoginEvent struct {
	ID       string         `json:"id"`
	CourseID string         `json:"course_id"`
	UserID   string         `json:"user_id"`
	Kind     LoginEventKind `json:"kind"`
	At       time.Time      `json:"at"`
}

func NewLoginEvent(courseID, userID string, kind LoginEventKind, now time.Time) *LoginEvent {
	return &LoginEvent{
		ID:       uuid.NewString(),
		CourseID: courseID,
		UserID:   userID,
		Kind:     kind,
		At:       now,
	}
}

// Session is a contiguous on-duty window derived from paired login events.
// Open sessions have no logout yet.
type Session struct {
	UserID string    `json:"user_id"`
	Start  time.Time `json:"start"`
	End    time.Time `json:"end,omitempty"`
	Open   bool      `json:"open"`
}

// Sessions pairs LOGIN/LOGOUT events per grader into duty windows.
// Duplicate logins extend the current session; stray logouts are dropped.
func Sessions(events []*LoginEvent) []Session {
	ordered := make([]*LoginEvent, len(events))
	copy(ordered, events)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].At.Before(ordered[j].At) })

	open := make(map[string]time.Time)
	var sessions []Session
	for _, e := range ordered {
		switch e.Kind {
		case LoginEventLogin:
			if _, ok := open[e.UserID]; !ok {
				open[e.UserID] = e.At
			}
		case LoginEventLogout:
			if start, ok := open[e.UserID]; ok {
				sessions = append(sessions, Session{UserID: e.UserID, Start: start, End: e.At})
				delete(open, e.UserID)
			}
		}
	}
	for userID, start := range open {
		sessions = append(sessions, Session{UserID: userID, Start: start, Open: true})
	}
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].Start.Before(sessions[j].Start) })
	return sessions
}

// OnDuty returns the user ids whose latest event is a login.
func OnDuty(events []*LoginEvent) []string {
	ordered := make([]*LoginEvent, len(events))
	copy(ordered, events)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].At.Before(ordered[j].At) })

	latest := make(map[string]LoginEventKind)
	for _, e := range ordered {
		latest[e.UserID] = e.Kind
	}
	var active []string
	for userID, kind := range latest {
		if kind == LoginEventLogin {
			active = append(active, userID)
		}
	}
	sort.Strings(active)
	return active
}
