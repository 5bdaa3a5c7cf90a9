// Package hwio adapts periph.io/x/conn/v3 and periph.io/x/host/v3 onto the
// devices.SPI and devices.GPIO contracts, the same shim role the root
// package's embd-backed spi/gpio types used to play before periph.io became
// the more actively maintained choice for this class of device.
package hwio
