package transcode

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"clipstream/storage"
)

var (
	// ErrEncoderSpawn is returned when the encoder process cannot be started.
	ErrEncoderSpawn = errors.New("encoder spawn failed")
	// ErrEncoderCrashed is returned when the encoder exits abnormally. Bytes
	// already forwarded to the sink are not retracted.
	ErrEncoderCrashed = errors.New("encoder crashed")
)

// State is the lifecycle phase of one transcode session.
type State string

const (
	StateIdle     State = "idle"
	StateSpawning State = "spawning"
	StatePiping   State = "piping"
	StateDraining State = "draining"
	StateClosed   State = "closed"
	StateAborted  State = "aborted"
)

// pipeBufferSize bounds the bytes in flight at each forwarding stage.
// Backpressure comes from the blocking pipe writes, not from buffering.
const pipeBufferSize = 64 << 10

// EncoderConfig is the fixed command template for the external encoder. The
// argument list is defined by configuration only; request-supplied values are
// never interpolated into it.
type EncoderConfig struct {
	Command     string
	Args        []string
	ContentType string
}

// DefaultEncoderConfig re-encodes stdin to a streamable fragmented MP4 on
// stdout.
func DefaultEncoderConfig() EncoderConfig {
	return EncoderConfig{
		Command: "ffmpeg",
		Args: []string{
			"-i", "pipe:0",
			"-c:v", "libx264",
			"-preset", "veryfast",
			"-c:a", "aac",
			"-movflags", "frag_keyframe+empty_moov",
			"-f", "mp4",
			"pipe:1",
		},
		ContentType: "video/mp4",
	}
}

// Pipeline streams stored objects through an external encoder process into a
// caller-supplied sink. Each Stream call owns exactly one encoder process
// for its duration and guarantees the process is gone on every exit path.
type Pipeline struct {
	reader  *storage.ObjectReader
	encoder EncoderConfig
}

func NewPipeline(reader *storage.ObjectReader, encoder EncoderConfig) *Pipeline {
	if encoder.Command == "" {
		encoder = DefaultEncoderConfig()
	}
	return &Pipeline{reader: reader, encoder: encoder}
}

// ContentType is the content type of the pipeline's output.
func (p *Pipeline) ContentType() string {
	return p.encoder.ContentType
}

// Stream transcodes the object and writes the encoder output to sink.
//
// The object is opened before the encoder is spawned, so a missing object
// fails with storage.ErrNotFound without ever starting a process. During
// piping three forwarders run concurrently: object bytes into encoder stdin,
// encoder stdout into the sink, and encoder stderr into the log. Cancelling
// ctx or a sink write failure kills the encoder and stops storage reads.
func (p *Pipeline) Stream(ctx context.Context, objectID uuid.UUID, sink io.Writer) error {
	session := &session{logger: zerolog.Ctx(ctx).With().Str("object_id", objectID.String()).Logger()}
	return session.run(ctx, p, objectID, sink)
}

type session struct {
	logger zerolog.Logger

	mu    sync.Mutex
	state State

	// First error seen on each side of the pipe. readErr is a storage
	// failure, sinkErr a client-side one; stdin write failures are left to
	// the process exit status to explain.
	readErr error
	sinkErr error
}

func (s *session) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// State reports the session's current lifecycle phase.
func (s *session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *session) run(ctx context.Context, p *Pipeline, objectID uuid.UUID, sink io.Writer) (err error) {
	s.setState(StateIdle)

	// Confirm the object exists before spawning anything.
	stream, err := p.reader.Open(ctx, objectID)
	if err != nil {
		s.setState(StateAborted)
		return err
	}
	defer stream.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.setState(StateSpawning)
	cmd := exec.CommandContext(ctx, p.encoder.Command, p.encoder.Args...)
	cmd.WaitDelay = 5 * time.Second

	stdin, err := cmd.StdinPipe()
	if err != nil {
		s.setState(StateAborted)
		return fmt.Errorf("%w: %v", ErrEncoderSpawn, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		s.setState(StateAborted)
		return fmt.Errorf("%w: %v", ErrEncoderSpawn, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		s.setState(StateAborted)
		return fmt.Errorf("%w: %v", ErrEncoderSpawn, err)
	}

	if err := cmd.Start(); err != nil {
		s.setState(StateAborted)
		return fmt.Errorf("%w: %v", ErrEncoderSpawn, err)
	}
	s.logger.Debug().Int("pid", cmd.Process.Pid).Str("command", p.encoder.Command).Msg("encoder started")

	s.setState(StatePiping)

	var forwarders sync.WaitGroup
	forwarders.Add(3)
	go func() {
		defer forwarders.Done()
		s.forwardInput(cancel, stream, stdin)
	}()
	go func() {
		defer forwarders.Done()
		s.forwardOutput(cancel, stdout, sink)
	}()
	go func() {
		defer forwarders.Done()
		s.drainDiagnostics(stderr)
	}()

	forwarders.Wait()
	waitErr := cmd.Wait()

	s.mu.Lock()
	readErr, sinkErr := s.readErr, s.sinkErr
	s.mu.Unlock()

	switch {
	case ctx.Err() != nil && sinkErr == nil && readErr == nil:
		// Cancelled from outside: client disconnect or request timeout.
		// CommandContext already killed the process.
		s.setState(StateAborted)
		return ctx.Err()
	case sinkErr != nil:
		s.setState(StateAborted)
		return fmt.Errorf("write to output sink: %w", sinkErr)
	case readErr != nil:
		s.setState(StateAborted)
		return fmt.Errorf("read object stream: %w", readErr)
	case waitErr != nil:
		s.setState(StateAborted)
		return fmt.Errorf("%w: %v", ErrEncoderCrashed, waitErr)
	}

	s.setState(StateClosed)
	s.logger.Debug().Msg("transcode session closed")
	return nil
}

// forwardInput copies object bytes into the encoder's stdin one bounded
// buffer at a time and closes stdin at end of input so the encoder sees EOF.
// A storage read failure is recorded and kills the session; a stdin write
// failure means the encoder went away and its exit status tells the rest.
func (s *session) forwardInput(cancel context.CancelFunc, stream *storage.ObjectStream, stdin io.WriteCloser) {
	defer stdin.Close()

	buf := make([]byte, pipeBufferSize)
	for {
		n, readErr := stream.Read(buf)
		if n > 0 {
			if _, writeErr := stdin.Write(buf[:n]); writeErr != nil {
				return
			}
		}
		if readErr != nil {
			if !errors.Is(readErr, io.EOF) {
				s.fail(&s.readErr, readErr)
				cancel()
			} else {
				// Input exhausted; the session is draining encoder output.
				s.setState(StateDraining)
			}
			return
		}
	}
}

// forwardOutput copies encoder stdout to the sink in encounter order. A sink
// write failure (client gone) cancels the session so the encoder is killed
// instead of writing into the void.
func (s *session) forwardOutput(cancel context.CancelFunc, stdout io.Reader, sink io.Writer) {
	buf := make([]byte, pipeBufferSize)
	for {
		n, readErr := stdout.Read(buf)
		if n > 0 {
			if _, writeErr := sink.Write(buf[:n]); writeErr != nil {
				s.fail(&s.sinkErr, writeErr)
				cancel()
				return
			}
		}
		if readErr != nil {
			return
		}
	}
}

// drainDiagnostics keeps the encoder's stderr moving so it can never block
// the process, logging each line.
func (s *session) drainDiagnostics(stderr io.Reader) {
	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 4096), pipeBufferSize)
	for scanner.Scan() {
		s.logger.Debug().Str("encoder", scanner.Text()).Msg("encoder diagnostics")
	}
}

func (s *session) fail(slot *error, err error) {
	s.mu.Lock()
	if *slot == nil {
		*slot = err
	}
	s.mu.Unlock()
}
