// Package adapter manages the external programs a provisioning run depends
// on: the Black Magic Debug App daemon that exposes the probe to GDB, and
// the orbtrace utility that switches target power.
package adapter
