// Package control holds controllers that plug into the closed-loop
// simulator. The feedback controller lives in [pid]; this package keeps
// the open-loop [Manual] driver used for bump tests and operator hold.
package control
