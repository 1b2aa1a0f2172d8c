// Package ui implements the now-playing terminal interface using bubbletea's Elm architecture.
//
// Two views share one [Model]:
//  1. [NowPlayingView] : Current track, progress, mode and settings, plus recovery guidance
//  2. [DeviceListView] : Output devices as reported by the Music Service
//
// Every key press that maps to an intent is dispatched as a [tea.Cmd], so intents run off the
// render loop and may overlap. The view re-reads the engine snapshot after each one completes.
// Guidance from the engine arrives through a [GuidanceChannel] the model keeps listening on.
//
// Keyboard navigation uses single-key bindings with contextual help from charmbracelet/bubbles/help.
package ui
