// Package ui implements an interactive terminal interface using bubbletea's Elm architecture.
//
// The TUI provides a multi-view workflow for logging a play:
//  1. [SearchView] : Enter a free-text album query
//  2. [ResultListView] : Browse and select a matching album
//  3. [ConfirmView] : Enter the listen date (defaults to today)
//  4. [DoneView] : Display the logged play
//
// The (view) [Model] implements bubbletea/Elm's standard Init/Update/View pattern.
// Album search runs through the catalog client as a non-blocking tea.Cmd.
//
// Keyboard navigation uses vim-style bindings (j/k, enter, esc, q) with contextual help displayed via charmbracelet/bubbles/help.
package ui
