// Package report records what happened to every archive entry during an import
// and writes the result as CSV, JSON or YAML.
package report
