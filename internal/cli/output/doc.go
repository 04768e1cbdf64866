// Package output renders lime-cli results.
//
// Results are printed as an aligned table (the default), JSON or YAML.
// YAML is produced from the JSON form so both formats share field names.
// Incoming envelopes are colored by kind when stdout is a terminal.
package output
