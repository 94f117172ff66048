package memory

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"

	memerrors "github.com/cadre-oss/scopemem/internal/errors"
)

// ExportFormat selects the export encoding.
type ExportFormat string

const (
	FormatJSON ExportFormat = "json"
	FormatCSV  ExportFormat = "csv"
	FormatCBOR ExportFormat = "cbor"
)

// ParseExportFormat validates a format name.
func ParseExportFormat(s string) (ExportFormat, error) {
	switch f := ExportFormat(s); f {
	case FormatJSON, FormatCSV, FormatCBOR:
		return f, nil
	default:
		return "", memerrors.Validation("unknown export format %q", s).
			WithSuggestion("use json, csv or cbor")
	}
}

// ExportOptions controls Export.
type ExportOptions struct {
	Format         ExportFormat
	Compress       bool // zstd-compress the output
	IncludeExpired bool // include records the sweeper has not removed yet
}

var cborMode = func() cbor.EncMode {
	opts := cbor.CoreDetEncOptions()
	opts.Time = cbor.TimeRFC3339Nano
	mode, err := opts.EncMode()
	if err != nil {
		panic(err)
	}
	return mode
}()

// Export writes every record of one store to w and returns the count.
func (m *Manager) Export(ctx context.Context, store string, w io.Writer, opts ExportOptions) (int, error) {
	if m.disabled {
		return 0, nil
	}
	if opts.Format == "" {
		opts.Format = FormatJSON
	}
	if _, err := ParseExportFormat(string(opts.Format)); err != nil {
		return 0, err
	}

	if err := m.knownStore(ctx, store); err != nil {
		return 0, err
	}

	f := Filter{}
	if !opts.IncludeExpired {
		f.Now = m.now()
	}
	recs, err := m.store.Query(ctx, store, f)
	if err != nil {
		return 0, m.storageError(store, "export", err)
	}

	out := w
	var zw *zstd.Encoder
	if opts.Compress {
		zw, err = zstd.NewWriter(w)
		if err != nil {
			return 0, fmt.Errorf("zstd writer: %w", err)
		}
		out = zw
	}

	switch opts.Format {
	case FormatJSON:
		err = writeJSON(out, recs)
	case FormatCSV:
		err = writeCSV(out, recs)
	case FormatCBOR:
		err = cborMode.NewEncoder(out).Encode(recs)
	}
	if zw != nil {
		if cerr := zw.Close(); err == nil {
			err = cerr
		}
	}
	if err != nil {
		return 0, fmt.Errorf("export %s: %w", store, err)
	}

	m.logger.Info("Store exported", "store", store, "format", string(opts.Format), "records", len(recs))
	return len(recs), nil
}

func writeJSON(w io.Writer, recs []Record) error {
	if recs == nil {
		recs = []Record{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(recs)
}

var csvHeader = []string{
	"id", "seq", "store", "scope", "agent_id", "priority",
	"created_at", "expires_at", "key", "content", "metadata",
}

func writeCSV(w io.Writer, recs []Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, r := range recs {
		md, err := encodeMetadata(r.Metadata)
		if err != nil {
			return err
		}
		if err := cw.Write([]string{
			r.ID,
			strconv.FormatInt(r.Seq, 10),
			r.Store,
			r.Scope,
			r.AgentID,
			string(r.Priority),
			r.CreatedAt.UTC().Format(time.RFC3339Nano),
			r.ExpiresAt.UTC().Format(time.RFC3339Nano),
			r.Key,
			r.Content,
			md,
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
