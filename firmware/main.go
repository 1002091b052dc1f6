//go:build tinygo

//go:generate tinygo flash -target=xiao

package main

import (
	"machine"
	"strconv"
	"time"
)

var (
	adcs [NUM_SIGNALS]machine.ADC
	uart = machine.UART0
	led  = machine.LED

	// Acquisition state, zero outputSize means waiting for configuration
	outputSize int
	interval   time.Duration
	nextSample time.Time

	// Double buffer, one half is filled while the other is sent
	dataBuffer   [2][BUFFER_SIZE]uint16
	bufferIndex  int
	bufferSelect int
	bufferReady  bool

	// Configuration command "T%010dF%03d" without the leading T
	configBuffer [14]byte
	configPos    = -1

	packet [4 + 2*BUFFER_SIZE]byte
	line   []byte
)

func main() {
	led.Configure(machine.PinConfig{Mode: machine.PinOutput})
	PIN_SYNC.Configure(machine.PinConfig{Mode: machine.PinOutput})

	adcConfig := machine.ADCConfig{
		Reference:  ADC_REFERENCE_MV,
		Resolution: ADC_RESOLUTION,
	}
	for i, pin := range [NUM_SIGNALS]machine.Pin{PIN_ADC0, PIN_ADC1, PIN_ADC2} {
		pin.Configure(machine.PinConfig{Mode: machine.PinInput})
		adcs[i] = machine.ADC{Pin: pin}
		adcs[i].Configure(adcConfig)
	}

	uart.Configure(machine.UARTConfig{
		BaudRate: UART_BAUD_RATE,
	})

	reset()

	for {
		processSerial()

		if outputSize > 0 {
			now := time.Now()
			for !now.Before(nextSample) {
				readADC()
				nextSample = nextSample.Add(interval)
			}
		}

		if bufferReady {
			sendData()
			bufferReady = false
		}

		time.Sleep(50 * time.Microsecond)
	}
}

func readADC() {
	for i := range adcs {
		// Get returns a 16-bit normalized reading
		dataBuffer[bufferSelect][bufferIndex] = adcs[i].Get() >> (16 - ADC_RESOLUTION)
		bufferIndex++
	}

	if bufferIndex == outputSize {
		bufferIndex = 0
		bufferReady = true
		bufferSelect = 1 - bufferSelect
	}
}

// sendData writes the marker and the last filled buffer, little-endian.
func sendData() {
	packet[0], packet[1], packet[2], packet[3] = 0xff, 0xff, 0xff, 0xff
	n := 4
	for _, v := range dataBuffer[1-bufferSelect][:outputSize] {
		packet[n] = byte(v)
		packet[n+1] = byte(v >> 8)
		n += 2
	}
	uart.Write(packet[:n])
}

func processSerial() {
	for uart.Buffered() > 0 {
		data, err := uart.ReadByte()
		if err != nil {
			break
		}

		if configPos >= 0 {
			configBuffer[configPos] = data
			configPos++
			if configPos == len(configBuffer) {
				configPos = -1
				configure()
			}
			continue
		}

		switch data {
		case 'R':
			reset()
		case 'T':
			configPos = 0
		}
	}
}

// reset stops acquisition and waits for a new configuration.
func reset() {
	outputSize = 0
	bufferIndex = 0
	bufferSelect = 0
	bufferReady = false
	led.High()
	PIN_SYNC.High()
}

func configure() {
	// "1234567890F100"
	if configBuffer[10] != 'F' {
		return
	}
	seconds, err := strconv.ParseInt(string(configBuffer[:10]), 10, 64)
	if err != nil {
		return
	}
	freq, err := strconv.Atoi(string(configBuffer[11:]))
	if err != nil || freq < 1 || freq > MAX_FREQ {
		return
	}

	// Whole rows per packet, at least one
	rows := int(float64(freq) * PACKET_PERIOD)
	if rows < 1 {
		rows = 1
	}
	outputSize = rows * NUM_SIGNALS
	if outputSize > BUFFER_SIZE {
		outputSize = BUFFER_SIZE - BUFFER_SIZE%NUM_SIGNALS
	}
	bufferIndex = 0
	bufferSelect = 0
	bufferReady = false

	// Echo the configuration: "seconds freq bufsize\n"
	line = strconv.AppendInt(line[:0], seconds, 10)
	line = append(line, ' ')
	for f := 100; f > 1 && freq < f; f /= 10 {
		line = append(line, ' ')
	}
	line = strconv.AppendInt(line, int64(freq), 10)
	line = append(line, ' ')
	line = strconv.AppendInt(line, int64(outputSize), 10)
	line = append(line, '\n')
	uart.Write(line)

	interval = time.Second / time.Duration(freq)
	nextSample = time.Now().Add(interval)

	led.Low()
	PIN_SYNC.Low()
}
