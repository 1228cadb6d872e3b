package model

import (
	"bytes"
	"encoding/json"
)

// FlexString decodes a JSON string, number or null. Campfire is not
// consistent about quoting ids.
type FlexString string

func (f *FlexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	*f = FlexString(b)
	return nil
}

type Member struct {
	ID     FlexString `json:"id"`
	Name   string     `json:"name"`
	Avatar string     `json:"avatar"`
}

type Event struct {
	ID          FlexString `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	StartTime   string     `json:"start_time"`
	EndTime     string     `json:"end_time"`
	Location    FlexString `json:"location"`
}

type Attendee struct {
	ID     FlexString `json:"id"`
	Name   string     `json:"name"`
	Avatar string     `json:"avatar"`
}

// EventAttendance is one event of a group with the trainers who checked in.
type EventAttendance struct {
	Event     Event      `json:"event"`
	Attendees []Attendee `json:"attendees"`
}

type GroupHistory struct {
	GroupID string            `json:"group_id"`
	Members []Member          `json:"members"`
	History []EventAttendance `json:"history"`
}
