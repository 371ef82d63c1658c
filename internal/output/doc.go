// Package output renders resource types and resource items for the
// command line.
//
// Tables follow the kubectl layout: no borders, tab separated columns and
// upper-case headers. Colors are only used when the writer is a terminal.
// The json and yaml formats print the same values the dashboard API returns.
package output
