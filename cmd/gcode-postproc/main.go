// gcode-postproc applies layer cooling and flow rate equalization to sliced
// G-code.
//
// Usage:
//
//	gcode-postproc process -c profile.cfg [options] FILE...
//	gcode-postproc estimate [-c profile.cfg] FILE...
//	gcode-postproc version
//
// Examples:
//
//	# Process a job in place
//	gcode-postproc process -c printer.cfg part.gcode
//
//	# Process several jobs into another directory, four at a time
//	gcode-postproc process -c printer.cfg -j 4 --output-dir out *.gcode.gz
//
//	# Print the estimated time of every layer
//	gcode-postproc estimate part.gcode
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
