package domain

import (
	"testing"
	"time"
)

func loginEvent(userID string, kind LoginEventKind, at time.Time) *LoginEvent {
	return NewLoginEvent("cs101", userID, kind, at)
}

func TestSessions_Pairing(t *testing.T) {
	events := []*LoginEvent{
		loginEvent("bob", LoginEventLogin, testNow),
		loginEvent("carol", LoginEventLogin, testNow.Add(10*time.Minute)),
		loginEvent("bob", LoginEventLogout, testNow.Add(time.Hour)),
	}

	sessions := Sessions(events)
	if len(sessions) != 2 {
		t.Fatalf("Expected 2 sessions, got %d", len(sessions))
	}

	if sessions[0].UserID != "bob" || sessions[0].Open {
		t.Errorf("Expected bob's session closed, got %+v", sessions[0])
	}
	if got := sessions[0].End.Sub(sessions[0].Start); got != time.Hour {
		t.Errorf("Expected 1h session, got %v", got)
	}
	if sessions[1].UserID != "carol" || !sessions[1].Open {
		t.Errorf("Expected carol's session open, got %+v", sessions[1])
	}
}

func TestSessions_DuplicateLoginAndStrayLogout(t *testing.T) {
	events := []*LoginEvent{
		loginEvent("dave", LoginEventLogout, testNow), // stray, dropped
		loginEvent("bob", LoginEventLogin, testNow.Add(time.Minute)),
		loginEvent("bob", LoginEventLogin, testNow.Add(2*time.Minute)), // extends, no new session
		loginEvent("bob", LoginEventLogout, testNow.Add(30*time.Minute)),
	}

	sessions := Sessions(events)
	if len(sessions) != 1 {
		t.Fatalf("Expected 1 session, got %d", len(sessions))
	}
	if !sessions[0].Start.Equal(testNow.Add(time.Minute)) {
		t.Errorf("Expected session to start at the first login, got %v", sessions[0].Start)
	}
}

func TestOnDuty(t *testing.T) {
	events := []*LoginEvent{
		loginEvent("bob", LoginEventLogin, testNow),
		loginEvent("carol", LoginEventLogin, testNow.Add(time.Minute)),
		loginEvent("bob", LoginEventLogout, testNow.Add(2*time.Minute)),
		loginEvent("bob", LoginEventLogin, testNow.Add(3*time.Minute)),
		loginEvent("carol", LoginEventLogout, testNow.Add(4*time.Minute)),
	}

	active := OnDuty(events)
	if len(active) != 1 || active[0] != "bob" {
		t.Errorf("Expected [bob], got %v", active)
	}

	if got := OnDuty(nil); len(got) != 0 {
		t.Errorf("Expected no one on duty, got %v", got)
	}
}
