package source

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/Friends-Embedding-API/internal/embedding/vocab"
)

// maxPrealloc caps the slice capacity reserved from a header count; larger
// vocabularies grow by append.
const maxPrealloc = 1 << 20

// ReadText parses the word2vec text format: an optional "<count> <dim>"
// header followed by one "<token> <v1> ... <vN>" line per token.
func ReadText(r io.Reader) ([]vocab.Pair, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)

	var (
		pairs    []vocab.Pair
		declared = -1
		dim      = -1
		line     int
	)
	for sc.Scan() {
		line++
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		if line == 1 && len(fields) == 2 {
			count, errC := strconv.Atoi(fields[0])
			d, errD := strconv.Atoi(fields[1])
			if errC == nil && errD == nil {
				if count < 0 || d <= 0 {
					return nil, fmt.Errorf("invalid text header: count=%d dim=%d", count, d)
				}
				declared, dim = count, d
				pairs = make([]vocab.Pair, 0, min(count, maxPrealloc))
				continue
			}
		}
		if len(fields) < 2 {
			return nil, fmt.Errorf("line %d: token %q has no vector", line, fields[0])
		}
		if dim < 0 {
			dim = len(fields) - 1
		}
		if len(fields)-1 != dim {
			return nil, fmt.Errorf("line %d: token %q has %d components, expected %d", line, fields[0], len(fields)-1, dim)
		}
		vec := make([]float32, dim)
		for i, f := range fields[1:] {
			v, err := strconv.ParseFloat(f, 32)
			if err != nil {
				return nil, fmt.Errorf("line %d: token %q component %d: %w", line, fields[0], i, err)
			}
			vec[i] = float32(v)
		}
		pairs = append(pairs, vocab.Pair{Token: fields[0], Vector: vec})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading text model: %w", err)
	}
	if declared >= 0 && declared != len(pairs) {
		return nil, fmt.Errorf("header declares %d tokens, found %d", declared, len(pairs))
	}
	return pairs, nil
}

// ReadBinary parses the word2vec binary format: a "<count> <dim>\n" header,
// then per token the token bytes, a space and dim little-endian float32s,
// optionally followed by a newline.
func ReadBinary(r io.Reader) ([]vocab.Pair, error) {
	br := bufio.NewReaderSize(r, 1<<20)
	header, err := br.ReadString('\n')
	if err != nil {
		return nil, fmt.Errorf("reading binary header: %w", err)
	}
	var count, dim int
	if _, err := fmt.Sscanf(strings.TrimSpace(header), "%d %d", &count, &dim); err != nil {
		return nil, fmt.Errorf("parsing binary header %q: %w", strings.TrimSpace(header), err)
	}
	if count < 0 || dim <= 0 {
		return nil, fmt.Errorf("invalid binary header: count=%d dim=%d", count, dim)
	}

	pairs := make([]vocab.Pair, 0, min(count, maxPrealloc))
	raw := make([]byte, dim*4)
	for i := 0; i < count; i++ {
		token, err := br.ReadString(' ')
		if err != nil {
			return nil, fmt.Errorf("token %d: %w", i, unexpected(err))
		}
		token = strings.TrimLeft(strings.TrimSuffix(token, " "), "\n")
		if token == "" {
			return nil, fmt.Errorf("token %d is empty", i)
		}
		if _, err := io.ReadFull(br, raw); err != nil {
			return nil, fmt.Errorf("vector for %q: %w", token, unexpected(err))
		}
		vec := make([]float32, dim)
		for j := range vec {
			vec[j] = math.Float32frombits(binary.LittleEndian.Uint32(raw[j*4:]))
		}
		pairs = append(pairs, vocab.Pair{Token: token, Vector: vec})
	}
	return pairs, nil
}

// WriteText writes pairs in the text format ReadText accepts, header included.
func WriteText(w io.Writer, pairs []vocab.Pair) error {
	bw := bufio.NewWriter(w)
	dim := 0
	if len(pairs) > 0 {
		dim = len(pairs[0].Vector)
	}
	fmt.Fprintf(bw, "%d %d\n", len(pairs), dim)
	for _, p := range pairs {
		bw.WriteString(p.Token)
		for _, v := range p.Vector {
			bw.WriteByte(' ')
			bw.WriteString(strconv.FormatFloat(float64(v), 'g', -1, 32))
		}
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

// WriteBinary writes pairs in the binary format ReadBinary accepts.
func WriteBinary(w io.Writer, pairs []vocab.Pair) error {
	bw := bufio.NewWriter(w)
	dim := 0
	if len(pairs) > 0 {
		dim = len(pairs[0].Vector)
	}
	fmt.Fprintf(bw, "%d %d\n", len(pairs), dim)
	for _, p := range pairs {
		bw.WriteString(p.Token)
		bw.WriteByte(' ')
		bw.Write(encodeVector(p.Vector))
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

// encodeVector packs a vector as little-endian float32s, the layout shared
// by the binary model format and the SQLite BLOB column.
func encodeVector(vec []float32) []byte {
	b := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(v))
	}
	return b
}

func decodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("vector blob length %d is not a multiple of 4", len(b))
	}
	vec := make([]float32, len(b)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return vec, nil
}

func unexpected(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}
