// Package bmp drives a Black Magic Probe (or the hosted Black Magic Debug
// App) through GDB's monitor pass-through.
//
// A Probe extends a gdb.Client with the probe's vendor commands: firmware
// version, SWD access-port scan and mass erase.
package bmp
