// Package imaging loads and saves the netpbm frames produced by the Vulkan
// screenshot layer. The layer writes raw P6 files; ASCII variants and
// grayscale PGM are accepted as well so goldens can be authored by hand.
package imaging

import (
	"bufio"
	"fmt"
	"io"
	"os"
)

// Frame is a decoded image held as raw samples at native bit depth.
// Samples are stored row-major, channel-interleaved: len = Width*Height*Channels.
type Frame struct {
	Width    int
	Height   int
	Channels int
	MaxVal   int
	Samples  []float64
}

// At returns the sample for channel c at (x, y).
func (f *Frame) At(x, y, c int) float64 {
	return f.Samples[(y*f.Width+x)*f.Channels+c]
}

// SameShape reports whether two frames have identical dimensions and channel count.
func (f *Frame) SameShape(other *Frame) bool {
	return f.Width == other.Width && f.Height == other.Height && f.Channels == other.Channels
}

// Shape renders the frame dimensions for error messages.
func (f *Frame) Shape() string {
	return fmt.Sprintf("%dx%dx%d", f.Width, f.Height, f.Channels)
}

// Range returns the minimum and maximum sample values in the frame.
func (f *Frame) Range() (min, max float64) {
	if len(f.Samples) == 0 {
		return 0, 0
	}
	min, max = f.Samples[0], f.Samples[0]
	for _, s := range f.Samples[1:] {
		if s < min {
			min = s
		}
		if s > max {
			max = s
		}
	}
	return min, max
}

// Gray returns a single-channel copy using the standard luminance weighting
// (0.299 R + 0.587 G + 0.114 B). Frames with fewer than three channels are
// returned as-is.
func (f *Frame) Gray() *Frame {
	if f.Channels < 3 {
		return f
	}
	out := &Frame{
		Width:    f.Width,
		Height:   f.Height,
		Channels: 1,
		MaxVal:   f.MaxVal,
		Samples:  make([]float64, f.Width*f.Height),
	}
	for i := 0; i < f.Width*f.Height; i++ {
		base := i * f.Channels
		out.Samples[i] = 0.299*f.Samples[base] + 0.587*f.Samples[base+1] + 0.114*f.Samples[base+2]
	}
	return out
}

// DecodeFile reads a netpbm image from disk.
func DecodeFile(path string) (*Frame, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read image %s: %w", path, err)
	}
	defer file.Close()

	frame, err := Decode(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read image %s: %w", path, err)
	}
	return frame, nil
}

// Decode parses a P2/P3/P5/P6 netpbm stream.
func Decode(r io.Reader) (*Frame, error) {
	br := bufio.NewReader(r)

	magic, err := nextToken(br)
	if err != nil {
		return nil, fmt.Errorf("missing netpbm magic: %w", err)
	}

	var channels int
	var binary bool
	switch magic {
	case "P2":
		channels, binary = 1, false
	case "P3":
		channels, binary = 3, false
	case "P5":
		channels, binary = 1, true
	case "P6":
		channels, binary = 3, true
	default:
		return nil, fmt.Errorf("unsupported netpbm magic %q", magic)
	}

	width, err := headerInt(br, "width")
	if err != nil {
		return nil, err
	}
	height, err := headerInt(br, "height")
	if err != nil {
		return nil, err
	}
	maxVal, err := headerInt(br, "maxval")
	if err != nil {
		return nil, err
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid netpbm dimensions %dx%d", width, height)
	}
	if maxVal <= 0 || maxVal > 65535 {
		return nil, fmt.Errorf("netpbm maxval %d out of range", maxVal)
	}

	frame := &Frame{
		Width:    width,
		Height:   height,
		Channels: channels,
		MaxVal:   maxVal,
		Samples:  make([]float64, width*height*channels),
	}

	if binary {
		if err := readBinarySamples(br, frame); err != nil {
			return nil, err
		}
	} else {
		if err := readASCIISamples(br, frame); err != nil {
			return nil, err
		}
	}
	return frame, nil
}

func readBinarySamples(br *bufio.Reader, frame *Frame) error {
	bytesPerSample := 1
	if frame.MaxVal > 255 {
		bytesPerSample = 2
	}
	raw := make([]byte, len(frame.Samples)*bytesPerSample)
	if _, err := io.ReadFull(br, raw); err != nil {
		return fmt.Errorf("truncated pixel data: %w", err)
	}
	if bytesPerSample == 1 {
		for i := range frame.Samples {
			frame.Samples[i] = float64(raw[i])
		}
		return nil
	}
	// Two-byte samples are big-endian per the netpbm format.
	for i := range frame.Samples {
		frame.Samples[i] = float64(uint16(raw[2*i])<<8 | uint16(raw[2*i+1]))
	}
	return nil
}

func readASCIISamples(br *bufio.Reader, frame *Frame) error {
	for i := range frame.Samples {
		v, err := headerInt(br, "sample")
		if err != nil {
			return fmt.Errorf("truncated pixel data: %w", err)
		}
		if v < 0 || v > frame.MaxVal {
			return fmt.Errorf("sample %d out of range 0..%d", v, frame.MaxVal)
		}
		frame.Samples[i] = float64(v)
	}
	return nil
}

// EncodeFile writes the frame to disk as binary PPM (or PGM for one channel).
func EncodeFile(path string, frame *Frame) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to write image %s: %w", path, err)
	}
	defer file.Close()

	w := bufio.NewWriter(file)
	if err := Encode(w, frame); err != nil {
		return fmt.Errorf("failed to write image %s: %w", path, err)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to write image %s: %w", path, err)
	}
	return nil
}

// Encode writes a frame as P6 (three channels) or P5 (one channel).
func Encode(w io.Writer, frame *Frame) error {
	var magic string
	switch frame.Channels {
	case 1:
		magic = "P5"
	case 3:
		magic = "P6"
	default:
		return fmt.Errorf("cannot encode %d-channel frame as netpbm", frame.Channels)
	}

	if _, err := fmt.Fprintf(w, "%s\n%d %d\n%d\n", magic, frame.Width, frame.Height, frame.MaxVal); err != nil {
		return err
	}

	bytesPerSample := 1
	if frame.MaxVal > 255 {
		bytesPerSample = 2
	}
	raw := make([]byte, len(frame.Samples)*bytesPerSample)
	for i, s := range frame.Samples {
		v := int(s)
		if v < 0 {
			v = 0
		}
		if v > frame.MaxVal {
			v = frame.MaxVal
		}
		if bytesPerSample == 1 {
			raw[i] = byte(v)
		} else {
			raw[2*i] = byte(v >> 8)
			raw[2*i+1] = byte(v)
		}
	}
	_, err := w.Write(raw)
	return err
}

// nextToken returns the next whitespace-delimited token, skipping '#' comments.
func nextToken(br *bufio.Reader) (string, error) {
	var tok []byte
	inComment := false
	for {
		b, err := br.ReadByte()
		if err != nil {
			if err == io.EOF && len(tok) > 0 {
				return string(tok), nil
			}
			return "", err
		}
		if inComment {
			if b == '\n' {
				inComment = false
			}
			continue
		}
		switch {
		case b == '#':
			inComment = true
		case b == ' ' || b == '\t' || b == '\r' || b == '\n':
			if len(tok) > 0 {
				return string(tok), nil
			}
		default:
			tok = append(tok, b)
		}
	}
}

func headerInt(br *bufio.Reader, field string) (int, error) {
	tok, err := nextToken(br)
	if err != nil {
		return 0, fmt.Errorf("missing netpbm %s: %w", field, err)
	}
	n := 0
	for _, c := range tok {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("invalid netpbm %s %q", field, tok)
		}
		n = n*10 + int(c-'0')
	}
	if tok == "" {
		return 0, fmt.Errorf("invalid netpbm %s: empty", field)
	}
	return n, nil
}
