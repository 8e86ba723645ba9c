// Command hawkeye watches one RTP/MPEG-TS stream for slate/content
// transitions and dispatches configured HTTP actions when they occur.
package main

import (
	"os"

	"github.com/jxs/hawkeye/cmd/hawkeye/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
