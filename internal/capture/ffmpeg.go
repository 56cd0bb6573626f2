package capture

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// ErrNoFrame is returned by Grab when the source has not produced a frame
// yet, or the newest frame is older than the staleness window.
var ErrNoFrame = errors.New("no recent frame available")

// maxFrameAge bounds how old a buffered frame may be before Grab refuses
// to hand it out. A frozen camera should surface as an error, not as the
// same face being scanned forever.
const maxFrameAge = 3 * time.Second

// FFmpegSource decodes a camera stream with FFmpeg and keeps only the most
// recent JPEG frame. The scan loop pulls frames with Grab at its own pace;
// frames arriving between ticks are dropped, never queued.
type FFmpegSource struct {
	url   string
	fps   int
	width int

	mu       sync.Mutex
	cancel   context.CancelFunc
	cmd      *exec.Cmd
	latest   []byte
	latestAt time.Time
	runErr   error
	running  bool
}

func NewFFmpegSource(url string, fps, width int) *FFmpegSource {
	if fps <= 0 {
		fps = 5
	}
	return &FFmpegSource{url: url, fps: fps, width: width}
}

// Start launches the FFmpeg process and the background frame reader. It
// returns once the process is started; decoding failures surface through
// Grab.
func (s *FFmpegSource) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("source already running")
	}
	s.running = true
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)

	args := []string{
		"-hide_banner",
		"-loglevel", "warning",
	}

	if strings.HasPrefix(s.url, "rtsp://") || strings.HasPrefix(s.url, "rtsps://") {
		args = append(args,
			"-rtsp_transport", "tcp",
			"-stimeout", "5000000", // microseconds
			"-timeout", "5000000",
		)
	} else if strings.HasPrefix(s.url, "http://") || strings.HasPrefix(s.url, "https://") {
		args = append(args,
			"-reconnect", "1",
			"-reconnect_streamed", "1",
			"-reconnect_delay_max", "5",
			"-timeout", "10000000",
		)
	}

	args = append(args,
		"-i", s.url,
		"-vf", fmt.Sprintf("fps=%d,scale=%d:-1", s.fps, s.width),
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-q:v", "5",
		"pipe:1",
	)

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("ffmpeg stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("ffmpeg stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("start ffmpeg: %w", err)
	}

	s.mu.Lock()
	s.cancel = cancel
	s.cmd = cmd
	s.mu.Unlock()

	go func() {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			slog.Warn("ffmpeg stderr", "output", scanner.Text())
		}
	}()

	go func() {
		err := s.readFrames(ctx, stdout)
		_ = cmd.Wait()

		s.mu.Lock()
		if err != nil && ctx.Err() == nil {
			s.runErr = err
		} else if ctx.Err() == nil {
			s.runErr = fmt.Errorf("camera stream ended")
		}
		s.running = false
		s.mu.Unlock()
	}()

	return nil
}

// Grab returns a copy of the most recent frame.
func (s *FFmpegSource) Grab() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.runErr != nil {
		return nil, s.runErr
	}
	if s.latest == nil || time.Since(s.latestAt) > maxFrameAge {
		return nil, ErrNoFrame
	}

	frame := make([]byte, len(s.latest))
	copy(frame, s.latest)
	return frame, nil
}

// Stop terminates the FFmpeg process.
func (s *FFmpegSource) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
	if s.cmd != nil && s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
}

func (s *FFmpegSource) store(frame []byte) {
	s.mu.Lock()
	s.latest = frame
	s.latestAt = time.Now()
	s.mu.Unlock()
}

// readFrames reads the concatenated-JPEG stream FFmpeg writes to stdout,
// storing each complete frame as the latest. Tolerates an initial EOF
// window while FFmpeg is still connecting.
func (s *FFmpegSource) readFrames(ctx context.Context, r io.Reader) error {
	reader := bufio.NewReaderSize(r, 512*1024)
	framesRead := 0
	const maxStartupRetries = 50 // 50 * 100ms = 5s for the first frame
	startupRetries := 0

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		// JPEG start marker: FF D8
		err := findJPEGStart(reader)
		if err != nil {
			if err == io.EOF {
				if framesRead == 0 && startupRetries < maxStartupRetries {
					startupRetries++
					time.Sleep(100 * time.Millisecond)
					continue
				}
				if framesRead > 0 {
					return nil
				}
				return fmt.Errorf("no frames received from ffmpeg (waited %.1fs)", float64(startupRetries)*0.1)
			}
			return err
		}

		// Read until JPEG end marker: FF D9
		frame, err := readUntilJPEGEnd(reader)
		if err != nil {
			if err == io.EOF && framesRead > 0 {
				return nil
			}
			return err
		}

		if len(frame) > 0 {
			framesRead++
			s.store(frame)
		}
	}
}

func findJPEGStart(r *bufio.Reader) error {
	for {
		b, err := r.ReadByte()
		if err != nil {
			return err
		}
		if b != 0xFF {
			continue
		}
		b, err = r.ReadByte()
		if err != nil {
			return err
		}
		if b == 0xD8 {
			return nil
		}
	}
}

func readUntilJPEGEnd(r *bufio.Reader) ([]byte, error) {
	data := []byte{0xFF, 0xD8}

	for {
		b, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		data = append(data, b)

		if b == 0xFF {
			next, err := r.ReadByte()
			if err != nil {
				return nil, err
			}
			data = append(data, next)
			if next == 0xD9 {
				return data, nil
			}
		}

		// Safety: max 10MB per frame
		if len(data) > 10*1024*1024 {
			return nil, fmt.Errorf("jpeg frame too large: %d bytes", len(data))
		}
	}
}
