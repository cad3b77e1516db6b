package ingestion

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/facet-search/internal/indexer/schema"
	"github.com/Adithya-Monish-Kumar-K/facet-search/internal/ingestion/validator"
	apperrors "github.com/Adithya-Monish-Kumar-K/facet-search/pkg/errors"
)

const maxLineBytes = 4 << 20

// LoadStats summarizes one LoadJSONL run.
type LoadStats struct {
	Lines    int `json:"lines"`
	Indexed  int `json:"indexed"`
	Rejected int `json:"rejected"`
}

// LoadOptions controls LoadJSONL.
type LoadOptions struct {
	// Strict stops at the first bad record instead of skipping it.
	Strict bool
}

// LoadJSONL reads one JSON object per line from r, validates each against s
// and hands it to sink. Blank lines are ignored.
func LoadJSONL(ctx context.Context, r io.Reader, s *schema.Schema, sink Sink, opts LoadOptions) (LoadStats, error) {
	logger := slog.Default().With("component", "jsonl-loader")
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var stats LoadStats
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		stats.Lines++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		doc, err := decodeRecord(line, s)
		if err != nil {
			if opts.Strict {
				return stats, fmt.Errorf("line %d: %w", stats.Lines, err)
			}
			stats.Rejected++
			logger.Warn("skipping record", "line", stats.Lines, "error", err)
			continue
		}
		if err := sink.Add(ctx, doc); err != nil {
			return stats, fmt.Errorf("line %d: %w", stats.Lines, err)
		}
		stats.Indexed++
	}
	if err := scanner.Err(); err != nil {
		return stats, fmt.Errorf("reading input after line %d: %w", stats.Lines, err)
	}
	return stats, nil
}

func decodeRecord(line []byte, s *schema.Schema) (schema.NamedDocument, error) {
	var rec Record
	if err := json.Unmarshal(line, &rec); err != nil {
		return nil, fmt.Errorf("%w: malformed JSON record: %v", apperrors.ErrInvalidInput, err)
	}
	doc := rec.Named()
	if err := validator.ValidateDocument(s, doc); err != nil {
		var verr *validator.ValidationError
		if errors.As(err, &verr) {
			return nil, fmt.Errorf("%w: %s", apperrors.ErrInvalidInput, verr.Error())
		}
		return nil, err
	}
	return doc, nil
}
