package actions

import (
	"fmt"

	"github.com/pkg/errors"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	"gopkg.in/yaml.v3"
)

// OutPorts resolves MIDI output ports by name
type OutPorts interface {
	GetOutPort(name string) (drivers.Out, error)
}

// MidiHandler handles MIDI message sending
type MidiHandler struct {
	ports OutPorts
}

// MidiActionData is the Code of a midi action, written as a YAML or JSON mapping:
//
//	{port: "LPD8", msg: pc, channel: 1, number: 3}
type MidiActionData struct {
	Port    string `yaml:"port"`    // Output port name
	MsgType string `yaml:"msg"`     // "note_on", "note_off", "cc", "pc"
	Channel int    `yaml:"channel"` // 1-16
	Number  int    `yaml:"number"`  // Note, controller or program (0-127)
	Value   int    `yaml:"value"`   // Velocity or controller value (0-127)
}

func NewMidiHandler(ports OutPorts) *MidiHandler {
	return &MidiHandler{ports: ports}
}

func (h *MidiHandler) IsSupported() bool {
	return h.ports != nil
}

func (h *MidiHandler) Execute(code string) (string, error) {
	data, msg, err := h.parse(code)
	if err != nil {
		return "", err
	}
	if h.ports == nil {
		return "", errors.New("no MIDI driver available")
	}

	outPort, err := h.ports.GetOutPort(data.Port)
	if err != nil {
		return "", err
	}

	send, err := midi.SendTo(outPort)
	if err != nil {
		return "", errors.Wrapf(err, "open %s", data.Port)
	}
	if err := send(msg); err != nil {
		return "", errors.Wrapf(err, "send to %s", data.Port)
	}

	return fmt.Sprintf("Sent %s to %s", data.MsgType, data.Port), nil
}

func (h *MidiHandler) Validate(code string) error {
	_, _, err := h.parse(code)
	return err
}

func (h *MidiHandler) parse(code string) (MidiActionData, midi.Message, error) {
	var data MidiActionData
	if err := yaml.Unmarshal([]byte(code), &data); err != nil {
		return data, nil, errors.Wrap(err, "invalid midi action")
	}
	if data.Port == "" {
		return data, nil, errors.New("no port specified")
	}
	if data.Number < 0 || data.Number > 127 || data.Value < 0 || data.Value > 127 {
		return data, nil, errors.New("midi data out of range")
	}

	channel := uint8(data.Channel - 1) // 0-based
	if data.Channel < 1 || data.Channel > 16 {
		channel = 0
	}
	number, value := uint8(data.Number), uint8(data.Value)

	switch data.MsgType {
	case "note_on":
		return data, midi.NoteOn(channel, number, value), nil
	case "note_off":
		return data, midi.NoteOff(channel, number), nil
	case "cc":
		return data, midi.ControlChange(channel, number, value), nil
	case "pc":
		return data, midi.ProgramChange(channel, number), nil
	}
	return data, nil, errors.Errorf("unknown message type %q", data.MsgType)
}
