// Package setups holds the compiled-in board wiring and the HAL config that
// goes with it. One setup is selected per build via tags.
package setups
