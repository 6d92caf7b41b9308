// Package codec encodes model state as versioned parameter text.
//
// The text form is what get_params returns and set_params accepts. It is
// a JSON object carrying the format tag, the format version, the learner
// hyperparameters and, for fitted models, the trained coefficients:
//
//	{"format":"modelrt.linear","version":1,
//	 "learner":{"name":"sgd","loss":"squared_error", ...},
//	 "n_features":1,"n_outputs":1,
//	 "coef":[[2.0]],"intercept":[1.0],
//	 "n_iter":37,"training_loss":0.0004}
//
// Decoding a document produced by Encode yields a state that predicts
// identically to the encoded one. The JSON backend is selected by name and
// defaults to go-json.
package codec

import "fmt"

// Codec encodes/decodes values.
// Implementations must be safe for concurrent use.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
	Name() string
}

// ByName returns a built-in codec by its stable name.
func ByName(name string) (Codec, bool) {
	switch name {
	case "json":
		return JSON{}, true
	case "go-json":
		return GoJSON{}, true
	default:
		return nil, false
	}
}

// Names lists the built-in codec names.
func Names() []string {
	return []string{"go-json", "json"}
}

// MustByName is ByName for configuration that has already been validated.
func MustByName(name string) Codec {
	c, ok := ByName(name)
	if !ok {
		panic(fmt.Errorf("codec: unknown codec %q", name))
	}
	return c
}

// Default is the codec used when none is configured.
var Default Codec = GoJSON{}
