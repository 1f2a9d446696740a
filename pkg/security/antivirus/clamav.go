package antivirus

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"regexp"
	"strings"
	"time"
)

const (
	// clamd command tokens (z-prefixed, null terminated)
	cmdInstream = "zINSTREAM\x00"
	cmdPing     = "zPING\x00"
	cmdVersion  = "zVERSION\x00"

	// ClamAVChunkSize is the INSTREAM payload chunk size
	ClamAVChunkSize = 2048

	// clamd replies are one short line; anything longer is garbage
	maxReplySize = 4096
)

var (
	ErrEmptyReply      = errors.New("clamd returned an empty reply")
	ErrUnexpectedReply = errors.New("clamd returned an unexpected reply")

	foundPattern = regexp.MustCompile(`^(?:[^:]*:\s*)?(.+?)\s+FOUND$`)
)

// ClamAVScanner connects to clamd daemon for malware scanning
type ClamAVScanner struct {
	address string        // TCP address (host:port) or Unix socket path
	timeout time.Duration // Connection and scan timeout
	dialer  net.Dialer
}

var _ Scanner = (*ClamAVScanner)(nil)

// NewClamAVScanner creates a ClamAV scanner
// address: TCP "localhost:3310" or Unix socket "/var/run/clamav/clamd.sock"
// timeout: Recommended 30-60 seconds for large files
func NewClamAVScanner(address string, timeout time.Duration) *ClamAVScanner {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ClamAVScanner{
		address: address,
		timeout: timeout,
		dialer:  net.Dialer{Timeout: timeout},
	}
}

func (c *ClamAVScanner) Name() string {
	return ClamAVScannerName
}

// Ping checks that the daemon answers PONG
func (c *ClamAVScanner) Ping(ctx context.Context) error {
	reply, err := c.roundTrip(ctx, cmdPing)
	if err != nil {
		return err
	}
	if reply != "PONG" {
		return fmt.Errorf("%w: %q", ErrUnexpectedReply, reply)
	}
	return nil
}

// Version returns the daemon's version string (e.g. "ClamAV 1.3.1/27300/...")
func (c *ClamAVScanner) Version(ctx context.Context) (string, error) {
	return c.roundTrip(ctx, cmdVersion)
}

// Scan streams data to clamd with the INSTREAM command
func (c *ClamAVScanner) Scan(ctx context.Context, filename string, data []byte) Verdict {
	s, err := c.connect(ctx)
	if err != nil {
		return NewScanError(c.Name(), err)
	}
	defer s.close()

	if err := s.send(cmdInstream); err != nil {
		return NewScanError(c.Name(), err)
	}
	if err := s.sendStream(data); err != nil {
		return NewScanError(c.Name(), err)
	}

	reply, err := s.readReply()
	if err != nil {
		return NewScanError(c.Name(), err)
	}

	return parseScanReply(c.Name(), reply)
}

func (c *ClamAVScanner) roundTrip(ctx context.Context, cmd string) (string, error) {
	s, err := c.connect(ctx)
	if err != nil {
		return "", err
	}
	defer s.close()

	if err := s.send(cmd); err != nil {
		return "", err
	}
	return s.readReply()
}

func (c *ClamAVScanner) connect(ctx context.Context) (*clamdSession, error) {
	network := "tcp"
	if strings.HasPrefix(c.address, "/") {
		network = "unix"
	}

	conn, err := c.dialer.DialContext(ctx, network, c.address)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to clamd: %w", err)
	}

	// Set deadline for entire operation
	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to set deadline: %w", err)
	}

	return &clamdSession{conn: conn}, nil
}

// clamdSession is one command/response exchange on a single connection.
// clamd closes the socket after answering a z-prefixed command.
type clamdSession struct {
	conn io.ReadWriteCloser
}

func (s *clamdSession) send(cmd string) error {
	if _, err := io.WriteString(s.conn, cmd); err != nil {
		return fmt.Errorf("failed to send command: %w", err)
	}
	return nil
}

func (s *clamdSession) sendStream(data []byte) error {
	w := bufio.NewWriterSize(s.conn, ClamAVChunkSize+4)
	if err := writeChunks(w, data, ClamAVChunkSize); err != nil {
		return fmt.Errorf("failed to stream data: %w", err)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to stream data: %w", err)
	}
	return nil
}

func (s *clamdSession) readReply() (string, error) {
	return readReply(s.conn)
}

func (s *clamdSession) close() {
	s.conn.Close()
}

// writeChunks frames data as INSTREAM chunks: each chunk is prefixed with
// its length as a 4-byte big-endian integer, and the stream ends with a
// zero-length chunk.
func writeChunks(w io.Writer, data []byte, chunkSize int) error {
	if chunkSize <= 0 {
		chunkSize = ClamAVChunkSize
	}

	var prefix [4]byte
	for len(data) > 0 {
		n := chunkSize
		if len(data) < n {
			n = len(data)
		}

		binary.BigEndian.PutUint32(prefix[:], uint32(n))
		if _, err := w.Write(prefix[:]); err != nil {
			return err
		}
		if _, err := w.Write(data[:n]); err != nil {
			return err
		}
		data = data[n:]
	}

	binary.BigEndian.PutUint32(prefix[:], 0)
	_, err := w.Write(prefix[:])
	return err
}

// readReply reads until the null terminator or EOF
func readReply(r io.Reader) (string, error) {
	buf := new(bytes.Buffer)
	_, err := buf.ReadFrom(io.LimitReader(r, maxReplySize))
	if err != nil && !errors.Is(err, io.EOF) {
		// a null-terminated reply may arrive before the peer closes; keep what we got
		if buf.Len() == 0 {
			return "", fmt.Errorf("failed to read response: %w", err)
		}
	}

	reply := buf.String()
	if i := strings.IndexByte(reply, 0); i >= 0 {
		reply = reply[:i]
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return "", ErrEmptyReply
	}
	return reply, nil
}

// parseScanReply classifies an INSTREAM reply
// Clean: "stream: OK"
// Infected: "stream: Eicar-Test-Signature FOUND"
// Error: "INSTREAM size limit exceeded. ERROR"
func parseScanReply(scanner, reply string) Verdict {
	reply = strings.TrimSpace(strings.TrimRight(reply, "\x00"))

	switch {
	case strings.HasSuffix(reply, "FOUND"):
		name := "unknown"
		if m := foundPattern.FindStringSubmatch(reply); len(m) == 2 {
			name = m[1]
		}
		return Infected{
			VerdictMeta: newMeta(scanner),
			Reason:      ReasonSignatureMatch,
			ThreatName:  name,
		}
	case strings.HasSuffix(reply, "ERROR"):
		return NewScanError(scanner, fmt.Errorf("scan error: %s", reply))
	case strings.HasSuffix(reply, ": OK") || reply == "OK":
		return Clean{VerdictMeta: newMeta(scanner)}
	case reply == "":
		return NewScanError(scanner, ErrEmptyReply)
	default:
		return NewScanError(scanner, fmt.Errorf("%w: %q", ErrUnexpectedReply, reply))
	}
}
