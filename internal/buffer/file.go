package buffer

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"io/fs"
	"os"

	"github.com/goccy/go-json"
	"github.com/macrat/outpost/internal/outposterr"
	api "github.com/macrat/outpost/lib-outpost"
	"github.com/rs/zerolog"
)

const maxLineSize = 1024 * 1024

// FileBuffer is a Buffer that stores pings in a JSON lines file.
type FileBuffer struct {
	path string
	gate gate
	log  zerolog.Logger
}

// NewFileBuffer makes a new FileBuffer.
// The file will be created when the first ping appended.
func NewFileBuffer(path string, opts Options) *FileBuffer {
	return &FileBuffer{
		path: path,
		gate: newGate(opts),
		log:  opts.Logger.With().Str("buffer", path).Logger(),
	}
}

// Path returns path to the buffer file.
func (b *FileBuffer) Path() string {
	return b.path
}

func (b *FileBuffer) Append(ctx context.Context, pings []api.Ping) error {
	if len(pings) == 0 {
		return nil
	}

	var buf bytes.Buffer
	for _, p := range pings {
		raw, err := json.Marshal(p)
		if err != nil {
			return outposterr.New(api.ErrIO, err, "failed to encode ping")
		}
		buf.Write(raw)
		buf.WriteByte('\n')
	}

	f, err := os.OpenFile(b.path, os.O_RDWR|os.O_APPEND|os.O_CREATE, 0644)
	if err != nil {
		return outposterr.New(api.ErrIO, err, "failed to open buffer file")
	}

	torn, err := endsWithoutNewline(f)
	if err == nil && torn {
		// Terminate the torn record so that the new records start on their own line.
		_, err = f.Write([]byte{'\n'})
	}
	if err == nil {
		_, err = buf.WriteTo(f)
	}
	if err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return outposterr.New(api.ErrIO, err, "failed to write buffer file")
	}

	return nil
}

// endsWithoutNewline reports whether the file is not empty and its last byte is not a newline.
func endsWithoutNewline(f *os.File) (bool, error) {
	stat, err := f.Stat()
	if err != nil || stat.Size() == 0 {
		return false, err
	}

	var last [1]byte
	if _, err := f.ReadAt(last[:], stat.Size()-1); err != nil {
		return false, err
	}
	return last[0] != '\n', nil
}

func (b *FileBuffer) DrainIfReady(ctx context.Context) ([]api.Ping, error) {
	f, err := os.Open(b.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	} else if err != nil {
		return nil, outposterr.New(api.ErrIO, err, "failed to open buffer file")
	}
	defer f.Close()

	r := bufio.NewReaderSize(f, 64*1024)

	var pings []api.Ping
	lineNum := 0
	for {
		raw, tooLong, err := readLine(r)
		if errors.Is(err, io.EOF) {
			break
		} else if err != nil {
			return nil, outposterr.New(api.ErrIO, err, "failed to read buffer file")
		}
		lineNum++

		if tooLong {
			b.log.Warn().Int("line", lineNum).Int("limit", maxLineSize).Msg("skip too long record in buffer")
			continue
		}

		line := bytes.TrimSpace(raw)
		if len(line) == 0 {
			continue
		}

		var p api.Ping
		if err := json.Unmarshal(line, &p); err != nil {
			b.log.Warn().Err(err).Int("line", lineNum).Msg("skip broken record in buffer")
			continue
		}

		if len(pings) == 0 && !b.gate.isOldEnough(p.Time) {
			return nil, nil
		}

		pings = append(pings, p)
	}

	return pings, nil
}

// readLine reads a line without the newline.
// If the line is longer than maxLineSize, the line is discarded and tooLong is true.
func readLine(r *bufio.Reader) (line []byte, tooLong bool, err error) {
	for {
		chunk, isPrefix, err := r.ReadLine()
		if err != nil {
			if errors.Is(err, io.EOF) && (line != nil || tooLong) {
				return line, tooLong, nil
			}
			return nil, false, err
		}

		if !tooLong {
			if len(line)+len(chunk) > maxLineSize {
				tooLong = true
				line = nil
			} else {
				line = append(line, chunk...)
			}
		}

		if !isPrefix {
			if line == nil {
				line = []byte{}
			}
			return line, tooLong, nil
		}
	}
}

func (b *FileBuffer) Clear(ctx context.Context) error {
	err := os.Truncate(b.path, 0)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return outposterr.New(api.ErrIO, err, "failed to truncate buffer file")
	}
	return nil
}

func (b *FileBuffer) Close() error {
	return nil
}
