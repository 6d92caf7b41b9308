package abi

import (
	"fmt"
	"strings"

	"go.bytecodealliance.org/wit"
)

// Param is one argument of an ABI function.
type Param struct {
	Type wit.Type
	Name string
	// Out marks a caller-owned buffer the function writes into.
	Out bool
}

// Signature describes one exported C function in WIT terms. Pointers to
// caller buffers are u64 addresses.
type Signature struct {
	Result wit.Type
	Name   string
	Doc    string
	Params []Param
}

var array2PtrName = "array2-ptr"

// Array2Ptr is the WIT record matching struct Array2Ptr.
var Array2Ptr = &wit.TypeDef{
	Name: &array2PtrName,
	Kind: &wit.Record{
		Fields: []wit.Field{
			{Name: "data-address", Type: wit.U64{}},
			{Name: "dim1", Type: wit.S32{}},
			{Name: "dim2", Type: wit.S32{}},
		},
	},
}

// Signatures lists the ABI functions in header order.
func Signatures() []Signature {
	handle := Param{Name: "h", Type: wit.U64{}}
	return []Signature{
		{Name: "new_model", Result: wit.U64{},
			Doc: "allocate an unfitted model; 0 on failure"},
		{Name: "delete_model", Params: []Param{handle},
			Doc: "release a model and invalidate its handle"},
		{Name: "fit", Params: []Param{handle, {Name: "x", Type: Array2Ptr}, {Name: "y", Type: Array2Ptr}},
			Doc: "train on x (rows x features) and y (rows x outputs)"},
		{Name: "predict", Params: []Param{{Name: "out", Type: Array2Ptr, Out: true}, handle, {Name: "x", Type: Array2Ptr}},
			Doc: "write predictions for x into out (rows x outputs)"},
		{Name: "get_params", Params: []Param{handle, {Name: "out", Type: wit.U64{}, Out: true}},
			Doc: "write the params text into a buffer of the documented capacity"},
		{Name: "set_params", Params: []Param{handle, {Name: "params", Type: wit.String{}}},
			Doc: "replace the model state with a params text"},
		{Name: "get_params_len", Params: []Param{handle}, Result: wit.S64{},
			Doc: "params text length without the NUL; -1 on failure"},
		{Name: "get_params_into", Params: []Param{handle, {Name: "out", Type: wit.U64{}, Out: true}, {Name: "cap", Type: wit.S64{}}}, Result: wit.S64{},
			Doc: "bytes written, -(needed+1) if cap is too small, -1 on failure"},
		{Name: "last_error_code", Params: []Param{handle}, Result: wit.S32{},
			Doc: "code of the last failure for a handle value; 0 if none"},
		{Name: "last_error_message", Params: []Param{handle, {Name: "out", Type: wit.U64{}, Out: true}, {Name: "cap", Type: wit.S32{}}}, Result: wit.S32{},
			Doc: "message of the last failure for a handle value"},
		{Name: "live_models", Result: wit.S32{},
			Doc: "number of live models"},
		{Name: "modelrt_shutdown",
			Doc: "release every model"},
	}
}

// Lookup returns the signature named name.
func Lookup(name string) (Signature, bool) {
	for _, sig := range Signatures() {
		if sig.Name == name {
			return sig, true
		}
	}
	return Signature{}, false
}

// String renders the signature in WIT function syntax.
func (s Signature) String() string {
	params := make([]string, len(s.Params))
	for i, p := range s.Params {
		params[i] = p.Name + ": " + TypeName(p.Type)
	}
	out := s.Name + ": func(" + strings.Join(params, ", ") + ")"
	if s.Result != nil {
		out += " -> " + TypeName(s.Result)
	}
	return out
}

// TypeName returns the WIT spelling of t.
func TypeName(t wit.Type) string {
	switch v := t.(type) {
	case wit.Bool:
		return "bool"
	case wit.U32:
		return "u32"
	case wit.S32:
		return "s32"
	case wit.U64:
		return "u64"
	case wit.S64:
		return "s64"
	case wit.F64:
		return "f64"
	case wit.String:
		return "string"
	case *wit.TypeDef:
		if v.Name != nil {
			return *v.Name
		}
		return "typedef"
	default:
		return fmt.Sprintf("%T", t)
	}
}
