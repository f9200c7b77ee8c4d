//go:build tinygo

package main

import "machine"

const (
	// ADC configuration
	ADC_REFERENCE_MV = 3300 // Reference voltage in millivolts (3.3V)
	ADC_RESOLUTION   = 12   // ADC resolution in bits (12-bit = 0-4095)

	// Analog inputs, sampled round-robin
	PIN_AMBIENT = machine.ADC0
	PIN_PLANT   = machine.ADC1
	PIN_UV      = machine.ADC2

	// Clock bus (DS3231)
	PIN_CLOCK_SDA = machine.GP4
	PIN_CLOCK_SCL = machine.GP5

	// Display bus
	PIN_DISPLAY_SDA = machine.GP6
	PIN_DISPLAY_SCL = machine.GP7

	// Valve servos, one PWM slice
	PIN_SERVO_LEFT  = machine.GP14
	PIN_SERVO_RIGHT = machine.GP15

	// Heartbeat LEDs
	PIN_LED1 = machine.LED
	PIN_LED2 = machine.GP16

	// UV digit, segments A to G
	PIN_SEG_A = machine.GP8
	PIN_SEG_B = machine.GP9
	PIN_SEG_C = machine.GP10
	PIN_SEG_D = machine.GP11
	PIN_SEG_E = machine.GP12
	PIN_SEG_F = machine.GP13
	PIN_SEG_G = machine.GP17

	I2C_FREQUENCY = 100 * machine.KHz
)
