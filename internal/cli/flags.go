package cli

import (
	"github.com/spf13/pflag"

	"github.com/cadre-oss/scopemem/internal/memory"
)

// priorityValue is a --priority flag that only accepts known priorities.
// The zero value means "use the scope default".
type priorityValue struct {
	p memory.Priority
}

var _ pflag.Value = (*priorityValue)(nil)

func (v *priorityValue) String() string { return string(v.p) }
func (v *priorityValue) Type() string   { return "priority" }

func (v *priorityValue) Set(s string) error {
	p, err := memory.ParsePriority(s)
	if err != nil {
		return err
	}
	v.p = p
	return nil
}

// storeOptions turns the flag into write options.
func (v *priorityValue) storeOptions() []memory.StoreOption {
	if v.p == "" {
		return nil
	}
	return []memory.StoreOption{memory.WithPriority(v.p)}
}

// formatValue is an --format flag for exports.
type formatValue struct {
	f memory.ExportFormat
}

var _ pflag.Value = (*formatValue)(nil)

func (v *formatValue) String() string { return string(v.f) }
func (v *formatValue) Type() string   { return "format" }

func (v *formatValue) Set(s string) error {
	f, err := memory.ParseExportFormat(s)
	if err != nil {
		return err
	}
	v.f = f
	return nil
}

// addPriorityFlag registers --priority/-p on fs.
func addPriorityFlag(fs *pflag.FlagSet, v *priorityValue) {
	fs.VarP(v, "priority", "p", "record priority (critical, high, medium, low); defaults to the scope's")
}

// toMetadata converts key=value flag pairs into record metadata.
func toMetadata(kv map[string]string) map[string]any {
	if len(kv) == 0 {
		return nil
	}
	md := make(map[string]any, len(kv))
	for k, v := range kv {
		md[k] = v
	}
	return md
}
