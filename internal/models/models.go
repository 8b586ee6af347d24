package models

import (
	"errors"
	"regexp"
)

// Collection names used in the document store.
const (
	CollectionUsers       = "users"
	CollectionContacts    = "contacts"
	CollectionInvitations = "invitations"
	CollectionSessions    = "sessions"
	CollectionRevocations = "revocations"
	CollectionDeletions   = "deletions"
)

// User represents a registered Ash Player account. The document id is the
// identity provider subject.
type User struct {
	UID            string `json:"-" dynamodbav:"-"`
	Name           string `json:"name" dynamodbav:"name"`
	Email          string `json:"email" dynamodbav:"email"`
	LastTimeOnline int64  `json:"lastTimeOnline" dynamodbav:"lastTimeOnline"`
}

// Contacts maps peer uids to a presence flag.
type Contacts map[string]bool

// Invitation is a single-use offer of session membership.
type Invitation struct {
	ID      string `json:"-" dynamodbav:"-"`
	From    string `json:"from" dynamodbav:"from"`
	To      string `json:"to" dynamodbav:"to"`
	Session string `json:"session" dynamodbav:"session"`
}

// MemberStatus is the readiness of a session member.
type MemberStatus string

const (
	MemberNotReady MemberStatus = "not-ready"
	MemberReady    MemberStatus = "ready"
	MemberMismatch MemberStatus = "mismatch"
)

// Member is a participant entry inside a session document.
type Member struct {
	TargetLength *float64     `json:"targetLength,omitempty" dynamodbav:"targetLength,omitempty"`
	Status       MemberStatus `json:"status" dynamodbav:"status"`
}

// Session is a shared playback coordination record.
type Session struct {
	ID           string            `json:"-" dynamodbav:"-"`
	Host         string            `json:"host" dynamodbav:"host"`
	Started      bool              `json:"started" dynamodbav:"started"`
	TargetLength float64           `json:"targetLength" dynamodbav:"targetLength"`
	Signal       Signal            `json:"signal,omitempty" dynamodbav:"signal,omitempty"`
	SignalTime   *int64            `json:"signalTime,omitempty" dynamodbav:"signalTime,omitempty"`
	Members      map[string]Member `json:"members" dynamodbav:"members"`
}

// IsHost reports whether uid holds host authority over the session.
// Host authority comes from the host field, never from the members map.
func (s Session) IsHost(uid string) bool {
	return uid != "" && s.Host == uid
}

// IsMember reports whether uid has joined the session.
func (s Session) IsMember(uid string) bool {
	_, ok := s.Members[uid]
	return ok
}

// PendingMembers returns the uids whose status is not ready.
func (s Session) PendingMembers() []string {
	var pending []string
	for uid, member := range s.Members {
		if member.Status != MemberReady {
			pending = append(pending, uid)
		}
	}
	return pending
}

// Signal is a playback command broadcast by the session host.
type Signal string

const (
	SignalStart  Signal = "start"
	SignalPause  Signal = "pause"
	SignalResume Signal = "resume"
	SignalStop   Signal = "stop"
	SignalEnd    Signal = "end"
)

var seekPattern = regexp.MustCompile(`^time:\d+$`)

// ErrInvalidSignal indicates a signal string is neither static nor a seek.
var ErrInvalidSignal = errors.New("invalid session signal")

// ParseSignal validates raw as a static signal or a seek of the form time:<seconds>.
func ParseSignal(raw string) (Signal, error) {
	switch s := Signal(raw); s {
	case SignalStart, SignalPause, SignalResume, SignalStop, SignalEnd:
		return s, nil
	}
	if seekPattern.MatchString(raw) {
		return Signal(raw), nil
	}
	return "", ErrInvalidSignal
}

// Revocation marks every identity token issued at or before RevokedAt as invalid.
type Revocation struct {
	RevokedAt int64 `json:"revokedAt" dynamodbav:"revokedAt"`
}

// DeletionState tracks the overall progress of an account deletion.
type DeletionState string

const (
	DeletionPending  DeletionState = "pending"
	DeletionComplete DeletionState = "complete"
)

// Deletion records per-step progress of an account deletion cascade.
type Deletion struct {
	UID       string          `json:"-" dynamodbav:"-"`
	State     DeletionState   `json:"state" dynamodbav:"state"`
	Steps     map[string]bool `json:"steps" dynamodbav:"steps"`
	UpdatedAt int64           `json:"updatedAt" dynamodbav:"updatedAt"`
}
