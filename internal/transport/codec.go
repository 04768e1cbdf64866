package transport

import (
	"bufio"
	"errors"
	"io"

	"github.com/yndnr/lime-go/internal/core/domain"
)

// MaxEnvelopeSize bounds one encoded envelope, newline included.
const MaxEnvelopeSize = 1 << 20

// ErrEnvelopeTooLarge is returned when a line exceeds MaxEnvelopeSize.
var ErrEnvelopeTooLarge = domain.ErrMalformedEnvelope.WithDetails("envelope too large")

// WriteEnvelope writes env as one JSON line.
func WriteEnvelope(w io.Writer, env domain.Envelope) error {
	payload, err := domain.EncodeEnvelope(env)
	if err != nil {
		return err
	}
	if len(payload)+1 > MaxEnvelopeSize {
		return ErrEnvelopeTooLarge
	}
	payload = append(payload, '\n')
	_, err = w.Write(payload)
	return err
}

// ReadEnvelope reads one JSON line from r. Blank lines are skipped.
func ReadEnvelope(r *bufio.Reader) (domain.Envelope, error) {
	for {
		line, err := readLine(r)
		if err != nil {
			return nil, err
		}
		if len(line) == 0 {
			continue
		}
		return domain.DecodeEnvelope(line)
	}
}

func readLine(r *bufio.Reader) ([]byte, error) {
	var line []byte
	for {
		chunk, err := r.ReadSlice('\n')
		if len(line)+len(chunk) > MaxEnvelopeSize {
			return nil, ErrEnvelopeTooLarge
		}
		line = append(line, chunk...)
		if err == nil {
			break
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if errors.Is(err, io.EOF) && len(line) > 0 {
			break
		}
		return nil, err
	}
	for len(line) > 0 && (line[len(line)-1] == '\n' || line[len(line)-1] == '\r') {
		line = line[:len(line)-1]
	}
	return line, nil
}
