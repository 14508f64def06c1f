package models

import "time"

// StatusRecord is one progress line of a project's status file.
type StatusRecord struct {
	Completion int       `json:"completion" msgpack:"completion"`
	Time       time.Time `json:"time" msgpack:"time"`
	Message    string    `json:"message" msgpack:"message"`
}

// ProjectStatus is the status view served to polling clients.
type ProjectStatus struct {
	Project Project        `json:"project" msgpack:"project"`
	State   string         `json:"state" msgpack:"state"`
	Current *StatusRecord  `json:"current,omitempty" msgpack:"current,omitempty"`
	History []StatusRecord `json:"history,omitempty" msgpack:"history,omitempty"`
	Aborted bool           `json:"aborted" msgpack:"aborted"`
}
