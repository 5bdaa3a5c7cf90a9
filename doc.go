// github.com/tve/mcp2515 contains an interrupt-driven driver core for the
// Microchip MCP2515 stand-alone SPI CAN controller. The root package holds
// the SPI/GPIO contracts and the reusable single-transaction async SPI
// engine; the mcp2515 package holds the chip driver itself; canbus holds
// the generic CAN frame/device contracts the driver talks to; hwio adapts
// periph.io/x/conn onto the root contracts for real hardware. Simple
// commands to run the driver can be found in the cmd directory tree.
package devices
