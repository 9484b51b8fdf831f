// Package model defines the domain entities shared across the crewmesh engine.
package model

import "time"

// Role identifies the access level of a person.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// OnlineStatus is the derived liveness state of a person.
type OnlineStatus string

const (
	// StatusUnknown applies only before the first heartbeat or location
	// signal has ever been observed for a person.
	StatusUnknown OnlineStatus = "unknown"
	StatusOnline  OnlineStatus = "online"
	StatusOffline OnlineStatus = "offline"
)

// LocationPoint is a single observed position.
type LocationPoint struct {
	Lat float64   `json:"lat"`
	Lng float64   `json:"lng"`
	At  time.Time `json:"at"`
}

// Person is a roster member tracked by the reconciliation engine. The
// engine is the sole mutator of the derived fields once a person has been
// merged into the snapshot.
type Person struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Role        Role   `json:"role"`
	Department  string `json:"department"`

	Status          OnlineStatus        `json:"status"`
	LastLocation    *LocationPoint      `json:"last_location,omitempty"`
	InsideGeofence  bool                `json:"inside_geofence"`
	Attendance      map[string]struct{} `json:"-"`
	LocationHistory []LocationPoint     `json:"location_history,omitempty"`
}

// HasAttendance reports whether the session key has been marked.
func (p *Person) HasAttendance(session string) bool {
	_, ok := p.Attendance[session]
	return ok
}

// MarkAttendance inserts a session key. The attendance set only grows;
// duplicate marks are no-ops.
func (p *Person) MarkAttendance(session string) bool {
	if p.Attendance == nil {
		p.Attendance = make(map[string]struct{})
	}
	if _, ok := p.Attendance[session]; ok {
		return false
	}
	p.Attendance[session] = struct{}{}
	return true
}

// AttendanceKeys returns the marked session keys in unspecified order.
func (p *Person) AttendanceKeys() []string {
	keys := make([]string, 0, len(p.Attendance))
	for k := range p.Attendance {
		keys = append(keys, k)
	}
	return keys
}

// Clone returns a deep copy safe to hand to snapshot consumers.
func (p *Person) Clone() *Person {
	clone := *p
	if p.LastLocation != nil {
		loc := *p.LastLocation
		clone.LastLocation = &loc
	}
	if p.Attendance != nil {
		clone.Attendance = make(map[string]struct{}, len(p.Attendance))
		for k := range p.Attendance {
			clone.Attendance[k] = struct{}{}
		}
	}
	if p.LocationHistory != nil {
		clone.LocationHistory = make([]LocationPoint, len(p.LocationHistory))
		copy(clone.LocationHistory, p.LocationHistory)
	}
	return &clone
}

// Message is an immutable chat message. Identity is ID; duplicates with the
// same ID collapse to one.
type Message struct {
	ID         string    `json:"id"`
	SenderID   string    `json:"sender_id"`
	ReceiverID string    `json:"receiver_id"`
	Text       string    `json:"text"`
	CreatedAt  time.Time `json:"created_at"`
}

// WorkLogEntry is an immutable work-log record.
type WorkLogEntry struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Task      string    `json:"task"`
	CreatedAt time.Time `json:"created_at"`
}

// EquipmentRecord tracks custody of a piece of equipment. Full-record
// replaces resolve last-write-wins by LastUpdatedAt.
type EquipmentRecord struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	SerialNumber  string    `json:"serial_number"`
	AssignedToID  string    `json:"assigned_to_id"`
	Condition     string    `json:"condition"`
	LastUpdatedAt time.Time `json:"last_updated_at"`
}
