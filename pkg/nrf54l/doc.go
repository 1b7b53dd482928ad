// Package nrf54l describes the nRF54L debug topology and memory layout as
// seen through a Black Magic probe.
//
// A locked device exposes only its protected access port. An unlocked
// device exposes the Cortex-M33 core followed by the access port. Classify
// turns a scan result into one of these shapes so that every checkpoint is
// a plain switch over State.
package nrf54l
