package enumerate

import (
	"bytes"
	"strings"
	"text/template"

	bgerr "github.com/jcdickinson/eguinet/internal/errors"
)

var nativeTemplate = template.Must(template.New("egui_fn.rs").Parse(`// Code generated by eguinet. DO NOT EDIT.

#[allow(warnings)]
#[derive(Clone, Copy, Debug, PartialEq, Eq, Hash)]
#[repr(u32)]
pub enum EguiFn {
{{- range .Slots}}
    {{.Variant}} = {{.Ordinal}},
{{- end}}
}

impl EguiFn {
    /// All variants in ordinal order.
    pub const ALL: &[Self] = &[
{{- range .Slots}}
        Self::{{.Variant}},
{{- end}}
    ];
}

const _: () = assert!(EguiFn::ALL.len() == {{len .Slots}});

pub const AUTOGENERATED_EGUI_FNS: EguiFnMap = egui_fn_map()
{{- range .Bound}}
    .with(EguiFn::{{.Key}}, {{.Path}} as fn({{.Params}}) -> _)
{{- end}}
    ;
`))

type nativeBinding struct {
	Key    string
	Path   string
	Params string
}

// EmitNative renders the native enum, its ALL table and the dispatch table
// population expression.
func (e *Enumeration) EmitNative() ([]byte, error) {
	data := struct {
		Slots []Slot
		Bound []nativeBinding
	}{Slots: e.Slots()}

	for i := range e.Descriptors {
		d := &e.Descriptors[i]
		if !d.Bound {
			continue
		}
		data.Bound = append(data.Bound, nativeBinding{Key: d.Key, Path: d.Path, Params: castParams(d)})
	}

	var buf bytes.Buffer
	if err := nativeTemplate.Execute(&buf, data); err != nil {
		return nil, bgerr.New(bgerr.StageEmit, bgerr.KindIO).Subject("egui_fn.rs").Cause(err).Build()
	}
	return buf.Bytes(), nil
}

// castParams is the parameter list of the function pointer cast. Borrowed
// inputs are materialized from the decoded owned value at dispatch time.
func castParams(d *Descriptor) string {
	parts := make([]string, len(d.Inputs))
	for i, p := range d.Inputs {
		if p.Type.Kind == RefByRef {
			parts[i] = "&_"
		} else {
			parts[i] = "_"
		}
	}
	return strings.Join(parts, ", ")
}
