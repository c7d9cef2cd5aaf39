// Package process runs the external tools capture backends depend on.
//
// Start spawns a long-lived tool in its own process group:
//   - Raw stdout for binary frame protocols, or line streaming
//   - Stderr always streamed line by line to an OutputHandler
//   - Optional stdin pipe for handshakes
//   - Stop sends SIGINT to the group, then SIGKILL after a timeout
//
// Output runs a short-lived command (simctl, screencapture, osascript)
// to completion under a timeout.
//
// Example:
//
//	p, err := process.Start(process.Options{
//	    ID:   "fbsimctl",
//	    Path: path,
//	    Args: []string{udid, "stream", "--bgra", "-"},
//	    Output: process.LineFunc(func(source, line string) {
//	        log.Printf("%s: %s", source, line)
//	    }),
//	})
//	defer p.Stop()
package process
