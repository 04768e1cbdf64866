// Package confloader loads configuration into koanf-tagged structs.
//
// Sources, lowest priority first:
//
//  1. Values already present in the target struct (defaults)
//  2. A configuration file: YAML (.yaml, .yml, .json) or TOML (.toml)
//  3. Environment variables with the LIME_ prefix, where "__" separates
//     nesting levels: LIME_SERVER__HTTP__ADDR sets server.http.addr
//  4. Maps loaded with LoadMap, typically from command-line flags
//
// Watcher reports writes to the configuration file so that reloadable
// settings such as the log level can follow it.
package confloader
