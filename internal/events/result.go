package events

import (
	"fmt"
	"maps"
	"reflect"

	"github.com/go-viper/mapstructure/v2"
)

// Result is the payload of a completed task. Which fields are set depends on
// the task kind; an empty string means the field does not apply.
type Result struct {
	Filename    string `mapstructure:"filename" json:"filename,omitempty"`
	OutputPath  string `mapstructure:"output_path" json:"output_path,omitempty"`
	CSVFilename string `mapstructure:"csv_filename" json:"csv_filename,omitempty"`
	CSVPath     string `mapstructure:"csv_path" json:"csv_path,omitempty"`
	OutputCSV   string `mapstructure:"output_csv" json:"output_csv,omitempty"`
	AudioDir    string `mapstructure:"audio_dir" json:"audio_dir,omitempty"`
	Method      string `mapstructure:"method" json:"method,omitempty"`
	Message     string `mapstructure:"message" json:"message,omitempty"`

	// Extra keeps fields this client has no label for.
	Extra map[string]any `mapstructure:",remain" json:"-"`
}

// Field is one labelled, present result value.
type Field struct {
	Label string
	Value string
}

// resultKeys are the result fields Result has a label for.
var resultKeys = map[string]bool{
	"filename":     true,
	"output_path":  true,
	"csv_filename": true,
	"csv_path":     true,
	"output_csv":   true,
	"audio_dir":    true,
	"method":       true,
	"message":      true,
}

// DecodeResult converts the loose "result" object of a completed frame.
// A nil map yields an empty Result. Scalar values are accepted for any
// field and rendered as strings. A labelled key holding an object or a
// list is moved to Extra and its field left empty.
func DecodeResult(m map[string]any) (Result, error) {
	var r Result
	if m == nil {
		return r, nil
	}

	scalars := make(map[string]any, len(m))
	var nested map[string]any
	for k, v := range m {
		if resultKeys[k] && !isScalar(v) {
			if nested == nil {
				nested = make(map[string]any)
			}
			nested[k] = v
			continue
		}
		scalars[k] = v
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &r,
	})
	if err != nil {
		return Result{}, err
	}
	if err := dec.Decode(scalars); err != nil {
		return Result{}, fmt.Errorf("decoding result: %w", err)
	}

	if len(nested) > 0 {
		if r.Extra == nil {
			r.Extra = make(map[string]any, len(nested))
		}
		maps.Copy(r.Extra, nested)
	}
	return r, nil
}

func isScalar(v any) bool {
	if v == nil {
		return true
	}
	switch reflect.TypeOf(v).Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct, reflect.Pointer:
		return false
	}
	return true
}

// Fields returns the present values in display order.
func (r Result) Fields() []Field {
	all := []Field{
		{"File", r.Filename},
		{"Output", r.OutputPath},
		{"CSV File", r.CSVFilename},
		{"CSV Path", r.CSVPath},
		{"Output CSV", r.OutputCSV},
		{"Audio Directory", r.AudioDir},
		{"Method", r.Method},
		{"Message", r.Message},
	}
	fields := all[:0]
	for _, f := range all {
		if f.Value != "" {
			fields = append(fields, f)
		}
	}
	return fields
}
