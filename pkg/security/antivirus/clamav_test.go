package antivirus

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteChunks(t *testing.T) {
	t.Run("Should frame data in length-prefixed chunks and terminate with zero", func(t *testing.T) {
		data := bytes.Repeat([]byte("a"), 5000)
		buf := new(bytes.Buffer)

		require.NoError(t, writeChunks(buf, data, ClamAVChunkSize))

		out := buf.Bytes()
		var sizes []uint32
		var payload []byte
		for {
			require.GreaterOrEqual(t, len(out), 4)
			n := binary.BigEndian.Uint32(out[:4])
			out = out[4:]
			sizes = append(sizes, n)
			if n == 0 {
				break
			}
			payload = append(payload, out[:n]...)
			out = out[n:]
		}

		assert.Equal(t, []uint32{2048, 2048, 904, 0}, sizes)
		assert.Equal(t, data, payload)
		assert.Empty(t, out)
	})

	t.Run("Should send only the terminator for empty data", func(t *testing.T) {
		buf := new(bytes.Buffer)
		require.NoError(t, writeChunks(buf, nil, ClamAVChunkSize))
		assert.Equal(t, []byte{0, 0, 0, 0}, buf.Bytes())
	})
}

func TestParseScanReply(t *testing.T) {
	t.Run("Should extract the virus name from a FOUND reply", func(t *testing.T) {
		v := parseScanReply("clamav", "stream: Eicar-Test-Signature FOUND\x00")

		infected, ok := v.(Infected)
		require.True(t, ok, "expected Infected, got %T", v)
		assert.Equal(t, "Eicar-Test-Signature", infected.ThreatName)
		assert.Equal(t, ReasonSignatureMatch, infected.Reason)
	})

	t.Run("Should treat OK as clean", func(t *testing.T) {
		assert.Equal(t, StatusClean, parseScanReply("clamav", "stream: OK").Status())
		assert.Equal(t, StatusClean, parseScanReply("clamav", "OK\x00").Status())
	})

	t.Run("Should surface daemon errors as error verdicts", func(t *testing.T) {
		v := parseScanReply("clamav", "INSTREAM size limit exceeded. ERROR")
		assert.Equal(t, StatusError, v.Status())
	})

	t.Run("Should never treat garbage as clean", func(t *testing.T) {
		for _, reply := range []string{"", "\x00", "stream:", "PONG", "UNKNOWN COMMAND", "stream: LOOKUP BROKEN", "stream:OK", "NOTOK"} {
			assert.Equal(t, StatusError, parseScanReply("clamav", reply).Status(), "reply %q", reply)
		}
	})
}

// fakeClamd accepts connections and answers each with reply after
// consuming the command (and the INSTREAM body when present).
type fakeClamd struct {
	ln       net.Listener
	received chan []byte
}

func startFakeClamd(t *testing.T, reply func(cmd string) string) *fakeClamd {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	f := &fakeClamd{ln: ln, received: make(chan []byte, 8)}
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go f.handle(conn, reply)
		}
	}()
	return f
}

func (f *fakeClamd) handle(conn net.Conn, reply func(cmd string) string) {
	defer conn.Close()

	cmd, err := readCommand(conn)
	if err != nil {
		return
	}

	if cmd == "zINSTREAM" {
		var payload []byte
		var prefix [4]byte
		for {
			if _, err := io.ReadFull(conn, prefix[:]); err != nil {
				return
			}
			n := binary.BigEndian.Uint32(prefix[:])
			if n == 0 {
				break
			}
			chunk := make([]byte, n)
			if _, err := io.ReadFull(conn, chunk); err != nil {
				return
			}
			payload = append(payload, chunk...)
		}
		f.received <- payload
	}

	io.WriteString(conn, reply(cmd))
}

func readCommand(r io.Reader) (string, error) {
	var cmd []byte
	b := make([]byte, 1)
	for {
		if _, err := r.Read(b); err != nil {
			return "", err
		}
		if b[0] == 0 {
			return string(cmd), nil
		}
		cmd = append(cmd, b[0])
	}
}

func TestClamAVScanner(t *testing.T) {
	ctx := context.Background()

	t.Run("Should report infected with the signature name", func(t *testing.T) {
		srv := startFakeClamd(t, func(cmd string) string {
			return "stream: Eicar-Test-Signature FOUND\x00"
		})
		scanner := NewClamAVScanner(srv.ln.Addr().String(), 2*time.Second)

		data := bytes.Repeat([]byte("X5O!P%@AP"), 600)
		v := scanner.Scan(ctx, "eicar.com", data)

		infected, ok := v.(Infected)
		require.True(t, ok, "expected Infected, got %T", v)
		assert.Equal(t, "Eicar-Test-Signature", infected.ThreatName)
		assert.Equal(t, "clamav", infected.Scanner)
		assert.Equal(t, data, <-srv.received)
	})

	t.Run("Should report clean for OK", func(t *testing.T) {
		srv := startFakeClamd(t, func(cmd string) string { return "stream: OK\x00" })
		scanner := NewClamAVScanner(srv.ln.Addr().String(), 2*time.Second)

		v := scanner.Scan(ctx, "notes.txt", []byte("hello"))
		assert.Equal(t, StatusClean, v.Status())
	})

	t.Run("Should return error when the daemon is unreachable", func(t *testing.T) {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		addr := ln.Addr().String()
		ln.Close()

		scanner := NewClamAVScanner(addr, 500*time.Millisecond)
		v := scanner.Scan(ctx, "notes.txt", []byte("hello"))

		se, ok := v.(ScanError)
		require.True(t, ok)
		assert.Contains(t, se.Error(), "failed to connect to clamd")
	})

	t.Run("Should return error when the daemon closes without a reply", func(t *testing.T) {
		srv := startFakeClamd(t, func(cmd string) string { return "" })
		scanner := NewClamAVScanner(srv.ln.Addr().String(), 2*time.Second)

		v := scanner.Scan(ctx, "notes.txt", []byte("hello"))
		se, ok := v.(ScanError)
		require.True(t, ok)
		assert.True(t, errors.Is(se, ErrEmptyReply))
	})

	t.Run("Should answer ping and version", func(t *testing.T) {
		srv := startFakeClamd(t, func(cmd string) string {
			switch cmd {
			case "zPING":
				return "PONG\x00"
			case "zVERSION":
				return "ClamAV 1.3.1/27300/Mon Jun 10 08:00:00 2024\x00"
			}
			return "UNKNOWN COMMAND\x00"
		})
		scanner := NewClamAVScanner(srv.ln.Addr().String(), 2*time.Second)

		require.NoError(t, scanner.Ping(ctx))

		version, err := scanner.Version(ctx)
		require.NoError(t, err)
		assert.Equal(t, "ClamAV 1.3.1/27300/Mon Jun 10 08:00:00 2024", version)
	})

	t.Run("Should fail ping on unexpected reply", func(t *testing.T) {
		srv := startFakeClamd(t, func(cmd string) string { return "NOPE\x00" })
		scanner := NewClamAVScanner(srv.ln.Addr().String(), 2*time.Second)

		err := scanner.Ping(ctx)
		assert.ErrorIs(t, err, ErrUnexpectedReply)
	})
}
