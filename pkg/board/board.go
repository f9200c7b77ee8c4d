// Package board bundles the peripherals of a controller board.
package board

import (
	"github.com/itohio/plantcare/pkg/plant"
	"github.com/itohio/plantcare/pkg/water"
)

// Board defines the interface for controller boards (real or simulated).
type Board interface {
	Connect() error
	Close() error
	IsConnected() bool
	Hardware() plant.Hardware
	Servo() water.Servo
}

// Ensure Mock implements Board.
var _ Board = (*Mock)(nil)
