// Package collectors gathers encoder progress reported by ffmpeg.
package collectors

import (
	"bufio"
	"context"
	"errors"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/smazurov/shadercam/internal/logging"
	"github.com/smazurov/shadercam/internal/metrics"
)

// ProgressCollector reads ffmpeg "-progress" key=value blocks from a Unix
// socket and publishes them as encoder metrics for one recording.
type ProgressCollector struct {
	logger      logging.Logger
	socketPath  string
	recordingID string

	mu       sync.Mutex
	listener net.Listener
	ctx      context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once
}

// NewProgressCollector creates a collector listening on socketPath.
func NewProgressCollector(socketPath, recordingID string) *ProgressCollector {
	return &ProgressCollector{
		logger:      logging.GetLogger("encoder"),
		socketPath:  socketPath,
		recordingID: recordingID,
	}
}

// SocketPath returns the socket ffmpeg should report to.
func (f *ProgressCollector) SocketPath() string {
	return f.socketPath
}

// Start begins listening. It returns once the socket accepts connections.
func (f *ProgressCollector) Start(ctx context.Context) error {
	f.ctx, f.cancel = context.WithCancel(ctx)

	if err := os.Remove(f.socketPath); err != nil && !os.IsNotExist(err) {
		f.logger.Warn("Failed to clean up old socket file", "error", err)
	}
	listener, err := net.Listen("unix", f.socketPath)
	if err != nil {
		f.cancel()
		return err
	}
	f.mu.Lock()
	f.listener = listener
	f.mu.Unlock()

	go f.acceptLoop(listener)
	return nil
}

// Stop closes the socket and drops the recording's metrics.
func (f *ProgressCollector) Stop() {
	f.stopOnce.Do(func() {
		if f.cancel != nil {
			f.cancel()
		}
		f.mu.Lock()
		if f.listener != nil {
			f.listener.Close()
			f.listener = nil
		}
		f.mu.Unlock()
		if f.socketPath != "" {
			os.Remove(f.socketPath)
		}
		metrics.DeleteEncoderMetrics(f.recordingID)
	})
}

func (f *ProgressCollector) acceptLoop(listener net.Listener) {
	f.logger.Debug("Progress socket listening", "socket", f.socketPath, "recording", f.recordingID)
	defer func() {
		listener.Close()
		os.Remove(f.socketPath)
	}()

	for {
		select {
		case <-f.ctx.Done():
			return
		default:
		}

		if ul, ok := listener.(*net.UnixListener); ok {
			ul.SetDeadline(time.Now().Add(1 * time.Second))
		}

		conn, acceptErr := listener.Accept()
		if acceptErr != nil {
			if errors.Is(acceptErr, net.ErrClosed) {
				return
			}
			var netErr net.Error
			if errors.As(acceptErr, &netErr) && netErr.Timeout() {
				continue
			}
			f.logger.Warn("Error accepting connection", "error", acceptErr)
			continue
		}

		go f.handleConnection(conn)
	}
}

func (f *ProgressCollector) handleConnection(conn net.Conn) {
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	progressData := make(map[string]string)

	for scanner.Scan() {
		select {
		case <-f.ctx.Done():
			return
		default:
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.Contains(line, "=") {
			parts := strings.SplitN(line, "=", 2)
			if len(parts) == 2 {
				progressData[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
			}
		}

		if strings.Contains(line, "progress=") {
			f.sendProgressMetrics(progressData)
			progressData = make(map[string]string)
		}
	}
}

func (f *ProgressCollector) sendProgressMetrics(data map[string]string) {
	if fps, err := strconv.ParseFloat(data["fps"], 64); err == nil {
		metrics.SetEncoderFPS(f.recordingID, fps)
	}
	if dropped, err := strconv.ParseFloat(data["drop_frames"], 64); err == nil {
		metrics.SetEncoderDroppedFrames(f.recordingID, dropped)
	}
	if dup, err := strconv.ParseFloat(data["dup_frames"], 64); err == nil {
		metrics.SetEncoderDuplicateFrames(f.recordingID, dup)
	}
	speedStr := strings.TrimSuffix(data["speed"], "x")
	if speed, err := strconv.ParseFloat(strings.TrimSpace(speedStr), 64); err == nil {
		metrics.SetEncoderSpeed(f.recordingID, speed)
	}
}
