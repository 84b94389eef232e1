package pubsub

import (
	"encoding/json"

	"github.com/syntax-framework/stx/cmn"
	"github.com/syntax-framework/stx/config"
	"github.com/vmihailenco/msgpack/v5"
)

var errorEnvelopeDecode = cmn.ErrOf(
	cmn.ErrValidation,
	"pubsub.envelope.decode",
	"Malformed inbound envelope.", "Codec: %s", "Caused by: %v",
)

var errorEnvelopeEncode = cmn.ErrOf(
	cmn.ErrValidation,
	"pubsub.envelope.encode",
	"The envelope could not be encoded.", "Codec: %s", "Topic: %s", "Event: %s", "Caused by: %v",
)

var errorUnknownCodec = cmn.ErrOf(
	cmn.ErrConfig,
	"pubsub.codec",
	"Unknown codec.", "Name: %s",
)

// ControlSequence the sequence of join and leave envelopes, pushes never use it
const ControlSequence int64 = -1

const (
	JoinEvent  = "stx:join"
	LeaveEvent = "stx:leave"
)

// Envelope the unit sent per outbound push and received per inbound message
type Envelope struct {
	Topic    string      `json:"t" msgpack:"t"`
	Event    string      `json:"e" msgpack:"e"`
	Sequence int64       `json:"s" msgpack:"s"`
	Payload  interface{} `json:"p,omitempty" msgpack:"p,omitempty"`
}

// Codec serializes envelopes
type Codec interface {
	Name() string
	ContentType() string
	// Binary whether frames must be sent as binary messages
	Binary() bool
	Encode(envelope *Envelope) ([]byte, error)
	Decode(data []byte) (*Envelope, error)
}

// CodecByName json or msgpack
func CodecByName(name string) (Codec, error) {
	switch name {
	case "", config.CodecJSON:
		return JSONCodec{}, nil
	case config.CodecMsgpack:
		return MsgpackCodec{}, nil
	}
	return nil, errorUnknownCodec(name)
}

// JSONCodec `{"t":topic,"e":event,"s":sequence,"p":payload}`
type JSONCodec struct{}

func (JSONCodec) Name() string        { return config.CodecJSON }
func (JSONCodec) ContentType() string { return "application/json" }
func (JSONCodec) Binary() bool        { return false }

func (c JSONCodec) Encode(envelope *Envelope) ([]byte, error) {
	data, err := json.Marshal(envelope)
	if err != nil {
		return nil, errorEnvelopeEncode(c.Name(), envelope.Topic, envelope.Event, err)
	}
	return data, nil
}

func (c JSONCodec) Decode(data []byte) (*Envelope, error) {
	envelope := &Envelope{}
	if err := json.Unmarshal(data, envelope); err != nil {
		return nil, errorEnvelopeDecode(c.Name(), err)
	}
	return validEnvelope(c, envelope)
}

// MsgpackCodec same keys as JSONCodec, binary frames
type MsgpackCodec struct{}

func (MsgpackCodec) Name() string        { return config.CodecMsgpack }
func (MsgpackCodec) ContentType() string { return "application/msgpack" }
func (MsgpackCodec) Binary() bool        { return true }

func (c MsgpackCodec) Encode(envelope *Envelope) ([]byte, error) {
	data, err := msgpack.Marshal(envelope)
	if err != nil {
		return nil, errorEnvelopeEncode(c.Name(), envelope.Topic, envelope.Event, err)
	}
	return data, nil
}

func (c MsgpackCodec) Decode(data []byte) (*Envelope, error) {
	envelope := &Envelope{}
	if err := msgpack.Unmarshal(data, envelope); err != nil {
		return nil, errorEnvelopeDecode(c.Name(), err)
	}
	return validEnvelope(c, envelope)
}

func validEnvelope(c Codec, envelope *Envelope) (*Envelope, error) {
	topic, err := NormalizeTopic(envelope.Topic)
	if err != nil {
		return nil, errorEnvelopeDecode(c.Name(), err)
	}
	envelope.Topic = topic
	return envelope, nil
}
