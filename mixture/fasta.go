package mixture

import (
	"bufio"
	"context"
	"strings"

	"github.com/grailbio/base/compress"
	"github.com/grailbio/base/file"
	"github.com/pkg/errors"
)

// readFasta parses FASTA-formatted data holding one consensus sequence.  The
// name is the stretch of characters after '>' up to the first space; the
// sequence may span any number of lines.  When the data holds several
// records the last one wins.
func readFasta(ctx context.Context, path string) (name, seq string, err error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return "", "", err
	}
	defer file.CloseAndReport(ctx, in, &err)
	r, _ := compress.NewReader(in.Reader(ctx))
	defer func() {
		if e := r.Close(); e != nil && err == nil {
			err = e
		}
	}()

	var sb strings.Builder
	sawHeader := false
	scanner := bufio.NewScanner(r)
	scanner.Buffer(nil, 64*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, ">") {
			sawHeader = true
			sb.Reset()
			name = strings.TrimPrefix(line, ">")
			if i := strings.IndexByte(name, ' '); i >= 0 {
				name = name[:i]
			}
			continue
		}
		if !sawHeader {
			return "", "", errors.Errorf("mixture: %s: sequence data before FASTA header", path)
		}
		sb.WriteString(strings.TrimRight(line, " \t\r"))
	}
	if err := scanner.Err(); err != nil {
		return "", "", errors.Wrapf(err, "mixture: reading %s", path)
	}
	if !sawHeader {
		return "", "", errors.Errorf("mixture: %s: no FASTA record", path)
	}
	return name, sb.String(), nil
}
