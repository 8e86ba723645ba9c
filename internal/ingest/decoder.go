package ingest

import (
	"bufio"
	"bytes"
	"fmt"
	"image"
	"io"
	"log/slog"

	"github.com/jxs/hawkeye/internal/ffmpeg"
	"github.com/jxs/hawkeye/internal/slate"
)

// pngSignature is the fixed 8-byte header every PNG stream begins with.
var pngSignature = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}

// pngIEND is the chunk type marking the end of a PNG image; image2pipe
// concatenates whole PNG files back to back with no other framing, so
// scanning for this tag is how the individual frames are split apart.
var pngIEND = []byte("IEND")

// Decoder runs an ffmpeg subprocess converting an Annex-B H.264 elementary
// stream (fed via Feed) into decoded video frames delivered through onFrame.
// Subprocess decode mirrors the pipeline's own demux/decode split: the
// Depacketizer hands this stage raw access units and never touches pixels
// itself.
type Decoder struct {
	logger  *slog.Logger
	onFrame func(image.Image)
	onError func(error)

	cmd   *ffmpeg.Command
	stdin io.WriteCloser
	done  chan struct{}
}

// NewDecoder starts the ffmpeg subprocess. ffmpegPath may be empty to
// resolve "ffmpeg" from PATH.
func NewDecoder(ffmpegPath string, logger *slog.Logger, onFrame func(image.Image), onError func(error)) (*Decoder, error) {
	if logger == nil {
		logger = slog.Default()
	}

	cmd, err := ffmpeg.NewCommandBuilder(ffmpegPath).Build()
	if err != nil {
		return nil, err
	}

	stdin, stdout, err := cmd.Start()
	if err != nil {
		return nil, fmt.Errorf("starting decoder: %w", err)
	}

	d := &Decoder{
		logger:  logger,
		onFrame: onFrame,
		onError: onError,
		cmd:     cmd,
		stdin:   stdin,
		done:    make(chan struct{}),
	}

	go d.readFrames(stdout)
	return d, nil
}

// Feed writes one Annex-B access unit to the decoder's stdin.
func (d *Decoder) Feed(annexB []byte) error {
	_, err := d.stdin.Write(annexB)
	return err
}

func (d *Decoder) readFrames(stdout io.Reader) {
	defer close(d.done)
	r := bufio.NewReaderSize(stdout, 1<<16)

	for {
		raw, err := readPNGFrame(r)
		if err != nil {
			if err != io.EOF && d.onError != nil {
				d.onError(fmt.Errorf("reading decoder output: %w", err))
			}
			return
		}

		img, err := slate.DecodePNG(raw)
		if err != nil {
			if d.onError != nil {
				d.onError(fmt.Errorf("decoding frame: %w", err))
			}
			continue
		}

		if d.onFrame != nil {
			d.onFrame(img)
		}
	}
}

// readPNGFrame reads one concatenated PNG image from r: the fixed 8-byte
// signature through its IEND chunk (4-byte length=0, "IEND", 4-byte CRC).
func readPNGFrame(r *bufio.Reader) ([]byte, error) {
	var buf bytes.Buffer

	sig := make([]byte, len(pngSignature))
	if _, err := io.ReadFull(r, sig); err != nil {
		return nil, err
	}
	if !bytes.Equal(sig, pngSignature) {
		return nil, fmt.Errorf("expected PNG signature, got %x", sig)
	}
	buf.Write(sig)

	for {
		lenBuf := make([]byte, 4)
		if _, err := io.ReadFull(r, lenBuf); err != nil {
			return nil, err
		}
		chunkLen := int(lenBuf[0])<<24 | int(lenBuf[1])<<16 | int(lenBuf[2])<<8 | int(lenBuf[3])

		chunkType := make([]byte, 4)
		if _, err := io.ReadFull(r, chunkType); err != nil {
			return nil, err
		}

		data := make([]byte, chunkLen)
		if chunkLen > 0 {
			if _, err := io.ReadFull(r, data); err != nil {
				return nil, err
			}
		}

		crc := make([]byte, 4)
		if _, err := io.ReadFull(r, crc); err != nil {
			return nil, err
		}

		buf.Write(lenBuf)
		buf.Write(chunkType)
		buf.Write(data)
		buf.Write(crc)

		if bytes.Equal(chunkType, pngIEND) {
			return buf.Bytes(), nil
		}
	}
}

// Close stops the ffmpeg subprocess.
func (d *Decoder) Close() error {
	if d.stdin != nil {
		d.stdin.Close()
	}
	return d.cmd.Kill()
}

// Wait blocks until the subprocess's stdout has been fully drained.
func (d *Decoder) Wait() {
	<-d.done
}
