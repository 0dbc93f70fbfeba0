// Package process runs a single subprocess that is fed through stdin.
//
// Process wraps os/exec for encoder-style children:
//   - Frames (or any bytes) are written to the child's stdin
//   - Finish closes stdin and waits for the child to flush and exit
//   - Stop sends SIGINT and force kills with SIGKILL after a timeout
//   - Output lines are logged with a pluggable level parser
//
// Example:
//
//	p := process.New("recording", []string{"ffmpeg", "-f", "rawvideo", ...}, logger)
//	stdin, err := p.Start()
//	...
//	stdin.Write(frame)
//	code := p.Finish(5 * time.Second)
package process
