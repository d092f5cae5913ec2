// Package protocol defines the wire shapes exchanged between Agents and the
// Controller: the AgentMessage envelope, Report and Directive records, and
// the canonical signing helper used by directives.
//
// Grounded on original_source/protocol/message.py's AgentMessage — a frozen
// envelope whose Data payload is merged under reserved envelope keys on
// serialization and split back out on parse.
package protocol

import (
	"time"
)

// Status is the envelope-level outcome of an agent action.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
	StatusRetry   Status = "retry"
)

func (s Status) Valid() bool {
	switch s {
	case StatusSuccess, StatusError, StatusRetry:
		return true
	default:
		return false
	}
}

var envelopeKeys = map[string]bool{
	"agent": true, "agent_id": true, "status": true, "action": true,
	"error": true, "timestamp": true, "protocol_version": true,
}

// Message is the immutable inter-agent envelope.
type Message struct {
	Status          Status
	Agent           string
	Action          string
	Data            map[string]any
	Error           string
	Timestamp       string
	ProtocolVersion int
}

// NewMessage constructs a Message with the current UTC timestamp and
// protocol version 1.
func NewMessage(status Status, agent, action string, data map[string]any, errMsg string) Message {
	return Message{
		Status:          status,
		Agent:           agent,
		Action:          action,
		Data:            data,
		Error:           errMsg,
		Timestamp:       time.Now().UTC().Format(time.RFC3339Nano),
		ProtocolVersion: 1,
	}
}

// ToMap flattens the message to a map[string]any for JSON encoding: Data
// keys appear at the top level, but envelope fields always win when they
// collide with a Data key.
func (m Message) ToMap() map[string]any {
	out := map[string]any{}
	for k, v := range m.Data {
		out[k] = v
	}
	out["agent"] = m.Agent
	out["status"] = string(m.Status)
	out["action"] = m.Action
	out["error"] = m.Error
	out["timestamp"] = m.Timestamp
	out["protocol_version"] = m.ProtocolVersion
	return out
}

// MessageFromMap reconstructs a Message from a decoded JSON object,
// accepting the legacy "agent_id" key in place of "agent". Any key that is
// not a reserved envelope key is treated as part of Data.
func MessageFromMap(d map[string]any) Message {
	agent, _ := d["agent"].(string)
	if agent == "" {
		agent, _ = d["agent_id"].(string)
	}
	status, _ := d["status"].(string)
	if status == "" {
		status = string(StatusError)
	}
	action, _ := d["action"].(string)
	if action == "" {
		action = "unknown"
	}
	errMsg, _ := d["error"].(string)
	ts, _ := d["timestamp"].(string)
	if ts == "" {
		ts = time.Now().UTC().Format(time.RFC3339Nano)
	}
	version := 1
	if v, ok := d["protocol_version"].(float64); ok {
		version = int(v)
	}

	data := map[string]any{}
	for k, v := range d {
		if !envelopeKeys[k] {
			data[k] = v
		}
	}
	if len(data) == 0 {
		data = nil
	}

	return Message{
		Status:          Status(status),
		Agent:           agent,
		Action:          action,
		Data:            data,
		Error:           errMsg,
		Timestamp:       ts,
		ProtocolVersion: version,
	}
}
