package ui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/desertthunder/cadence/internal/models"
)

// MsgKind enumerates all message types in the application.
type MsgKind int

// Msg represents all possible messages in the TUI (Elm-style message union).
type Msg struct {
	kind MsgKind
	data any
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgIntentDone MsgKind = iota
	MsgDevicesFetched
	MsgGuidance
	MsgTick
)

type intentResult struct {
	intent string
	err    error
}

type devicesResult struct {
	devices []models.Device
	err     error
}

// intentDoneMsg is the constructor for [MsgIntentDone]
func intentDoneMsg(intent string, err error) Msg {
	return Msg{kind: MsgIntentDone, data: intentResult{intent, err}}
}

// devicesFetchedMsg is the constructor for [MsgDevicesFetched]
func devicesFetchedMsg(devices []models.Device, err error) Msg {
	return Msg{kind: MsgDevicesFetched, data: devicesResult{devices, err}}
}

// guidanceMsg is the constructor for [MsgGuidance]
func guidanceMsg(g models.Guidance) Msg {
	return Msg{kind: MsgGuidance, data: g}
}

// tickMsg is the constructor for [MsgTick]
func tickMsg() Msg {
	return Msg{kind: MsgTick}
}

// GuidanceChannel is a [playback.Notifier] that buffers guidance for the TUI.
//
// Notify never blocks; guidance is dropped when the buffer is full.
type GuidanceChannel chan models.Guidance

func NewGuidanceChannel(size int) GuidanceChannel {
	return make(GuidanceChannel, size)
}

func (c GuidanceChannel) Notify(g models.Guidance) {
	select {
	case c <- g:
	default:
	}
}
