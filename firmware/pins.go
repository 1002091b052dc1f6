//go:build tinygo

package main

import "machine"

const (
	// Sampling configuration
	NUM_SIGNALS   = 3    // ADC channels sent in every sample row
	BUFFER_SIZE   = 1024 // Max samples per packet, all channels
	PACKET_PERIOD = 0.2  // Seconds of samples per packet
	MAX_FREQ      = 999  // Hz, bounded by the 3-digit field of the config command

	// ADC configuration
	ADC_REFERENCE_MV = 3300 // Reference voltage in millivolts (3.3V)
	ADC_RESOLUTION   = 12   // ADC resolution in bits (12-bit = 0-4095), must stay below 16 for the marker

	// ADC pins
	PIN_ADC0 = machine.A0
	PIN_ADC1 = machine.A1
	PIN_ADC2 = machine.A2

	// Held high while waiting for configuration, low while acquiring.
	// Can be used to synchronise a camera with the acquisition.
	PIN_SYNC = machine.D7

	// Serial configuration
	// At 999 Hz and 3 signals: 599 rows per 0.2s, (4 + 1797*2) bytes per packet,
	// ~18 KB/s. UART 8N1 at 115200 carries 11.5 KB/s, so high rates need USB CDC.
	UART_BAUD_RATE = 115200
)
