// Package msgs defines the protobuf messages exchanged between the
// simulated transmitter, the receiver and monitors over MQTT.
package msgs

import (
	"github.com/golang/protobuf/proto"

	"github.com/robotalks/rxlink.go/pkg/channels"
)

// Topics relative to a receiver, see Topic.
const (
	TopicRC        = "rc"
	TopicStatus    = "status"
	TopicTelemetry = "telemetry"
	TopicControl   = "control"
)

// Topic returns the topic name of a receiver.
func Topic(rxID, name string) string {
	return rxID + "/" + name
}

// RCFrame carries channel values from the transmitter.
type RCFrame struct {
	ModelID  uint32   `protobuf:"varint,1,opt,name=model_id,proto3" json:"model_id,omitempty"`
	Channels []uint32 `protobuf:"varint,2,rep,packed,name=channels,proto3" json:"channels,omitempty"`
	Seq      uint32   `protobuf:"varint,3,opt,name=seq,proto3" json:"seq,omitempty"`
}

// NewRCFrame creates an RCFrame from channel values.
func NewRCFrame(modelID uint8, values *channels.Values, seq uint32) *RCFrame {
	m := &RCFrame{ModelID: uint32(modelID), Seq: seq, Channels: make([]uint32, len(values))}
	for n, v := range values {
		m.Channels[n] = uint32(v)
	}
	return m
}

// Values returns the channel values, missing channels are 0 and values
// are limited to the wire range.
func (m *RCFrame) Values() (values channels.Values) {
	for n, v := range m.Channels {
		if n >= channels.Count {
			break
		}
		if v > uint32(channels.Limit) {
			v = uint32(channels.Limit)
		}
		values[n] = uint16(v)
	}
	return
}

// ProtoMessage implements proto.Message.
func (m *RCFrame) ProtoMessage() {}

// Reset implements proto.Message.
func (m *RCFrame) Reset() { *m = RCFrame{} }

// String implements proto.Message.
func (m *RCFrame) String() string { return proto.CompactTextString(m) }

// LinkStatus is published by the receiver.
type LinkStatus struct {
	State       string `protobuf:"bytes,1,opt,name=state,proto3" json:"state,omitempty"`
	LinkQuality uint32 `protobuf:"varint,2,opt,name=link_quality,proto3" json:"link_quality,omitempty"`
	ModelMatch  bool   `protobuf:"varint,3,opt,name=model_match,proto3" json:"model_match,omitempty"`
	Received    uint64 `protobuf:"varint,4,opt,name=received,proto3" json:"received,omitempty"`
	Missed      uint64 `protobuf:"varint,5,opt,name=missed,proto3" json:"missed,omitempty"`
}

// ProtoMessage implements proto.Message.
func (m *LinkStatus) ProtoMessage() {}

// Reset implements proto.Message.
func (m *LinkStatus) Reset() { *m = LinkStatus{} }

// String implements proto.Message.
func (m *LinkStatus) String() string { return proto.CompactTextString(m) }

// Telemetry relays a frame from the flight controller.
type Telemetry struct {
	Type    uint32 `protobuf:"varint,1,opt,name=type,proto3" json:"type,omitempty"`
	Payload []byte `protobuf:"bytes,2,opt,name=payload,proto3" json:"payload,omitempty"`
}

// ProtoMessage implements proto.Message.
func (m *Telemetry) ProtoMessage() {}

// Reset implements proto.Message.
func (m *Telemetry) Reset() { *m = Telemetry{} }

// String implements proto.Message.
func (m *Telemetry) String() string { return proto.CompactTextString(m) }

// Control switches a receiver between normal operation and an update mode.
type Control struct {
	State string `protobuf:"bytes,1,opt,name=state,proto3" json:"state,omitempty"`
}

// ProtoMessage implements proto.Message.
func (m *Control) ProtoMessage() {}

// Reset implements proto.Message.
func (m *Control) Reset() { *m = Control{} }

// String implements proto.Message.
func (m *Control) String() string { return proto.CompactTextString(m) }

// Encode serializes a message.
func Encode(msg proto.Message) ([]byte, error) {
	return proto.Marshal(msg)
}

// Decode parses a message by topic name.
func Decode(name string, data []byte) (proto.Message, error) {
	var msg proto.Message
	switch name {
	case TopicRC:
		msg = &RCFrame{}
	case TopicStatus:
		msg = &LinkStatus{}
	case TopicTelemetry:
		msg = &Telemetry{}
	case TopicControl:
		msg = &Control{}
	default:
		return nil, &UnknownTopicError{Name: name}
	}
	if err := proto.Unmarshal(data, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// UnknownTopicError indicates Decode doesn't know the message of a topic.
type UnknownTopicError struct {
	Name string
}

// Error implements error.
func (e *UnknownTopicError) Error() string {
	return "unknown topic " + e.Name
}
