package events

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

//go:embed frame.schema.json
var frameSchemaJSON string

var (
	frameSchema = mustCompileSchema(frameSchemaJSON, "frame.schema.json")
	printer     = message.NewPrinter(language.English)
)

// DecodeError is returned for a frame that is not a well-formed status event.
// Such frames are dropped without touching monitor state.
type DecodeError struct {
	Raw []byte
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decoding status frame: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

type wireFrame struct {
	Status  string      `json:"status"`
	Message any         `json:"message"`
	Detail  *wireDetail `json:"detail"`
	Result  any         `json:"result"`
}

type wireDetail struct {
	Percent *float64 `json:"percent"`
	Message any      `json:"message"`
}

// Decode turns one raw frame into a StatusEvent. Invalid JSON, a missing or
// non-string status, or a wrongly typed detail yields a *DecodeError.
// Messages may be any scalar and are rendered as text. Once the status is
// known, the shape of a completed frame's result never rejects the frame.
func Decode(raw []byte) (StatusEvent, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, &DecodeError{Raw: raw, Err: err}
	}
	if errs := validate(doc); len(errs) > 0 {
		return nil, &DecodeError{Raw: raw, Err: errors.New(strings.Join(errs, "; "))}
	}

	var f wireFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, &DecodeError{Raw: raw, Err: err}
	}

	switch f.Status {
	case StatusCompleted:
		return TerminalSuccess{Result: completedResult(f.Result)}, nil
	case StatusError:
		var msg string
		if s := scalarText(f.Message); s != nil {
			msg = *s
		}
		return TerminalError{Message: msg}, nil
	default:
		p := Progress{Label: f.Status}
		if f.Detail != nil {
			p.Detail = &Detail{Percent: f.Detail.Percent, Message: scalarText(f.Detail.Message)}
		}
		return p, nil
	}
}

// completedResult decodes what it can of v. Anything it cannot label ends
// up in Extra, under "result" when v is not an object at all.
func completedResult(v any) Result {
	switch r := v.(type) {
	case nil:
		return Result{}
	case map[string]any:
		res, err := DecodeResult(r)
		if err != nil {
			return Result{Extra: r}
		}
		return res
	default:
		return Result{Extra: map[string]any{"result": v}}
	}
}

// scalarText renders a JSON scalar as text; nil stays nil.
func scalarText(v any) *string {
	var s string
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		s = t
	case float64:
		s = strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		s = strconv.FormatBool(t)
	default:
		s = fmt.Sprint(t)
	}
	return &s
}

func mustCompileSchema(raw string, name string) *jsonschema.Schema {
	var schemaDoc any
	if err := json.Unmarshal([]byte(raw), &schemaDoc); err != nil {
		panic(fmt.Sprintf("failed to parse embedded %s: %v", name, err))
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, schemaDoc); err != nil {
		panic(fmt.Sprintf("failed to add %s resource: %v", name, err))
	}

	sch, err := compiler.Compile(name)
	if err != nil {
		panic(fmt.Sprintf("failed to compile %s: %v", name, err))
	}
	return sch
}

func validate(doc any) []string {
	err := frameSchema.Validate(doc)
	if err == nil {
		return nil
	}
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return []string{fmt.Sprintf("schema: %v", err)}
	}
	var errs []string
	collectSchemaErrors(ve, &errs)
	return errs
}

func collectSchemaErrors(ve *jsonschema.ValidationError, errs *[]string) {
	if len(ve.Causes) == 0 {
		loc := "/" + strings.Join(ve.InstanceLocation, "/")
		*errs = append(*errs, fmt.Sprintf("%s: %s", loc, ve.ErrorKind.LocalizedString(printer)))
		return
	}
	for _, c := range ve.Causes {
		collectSchemaErrors(c, errs)
	}
}
